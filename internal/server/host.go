package server

import (
	"context"
	"fmt"

	"github.com/lotas/tabgenius/internal/types"
)

// Host commands sent to the extension.
const (
	ActionGetTab      = "getTab"
	ActionGetWindow   = "getWindow"
	ActionGetWindows  = "getWindows"
	ActionQueryGroups = "queryGroups"
	ActionQueryTabs   = "queryTabs"
	ActionGroup       = "group"
	ActionUngroup     = "ungroup"
	ActionUpdateGroup = "updateGroup"
)

// GetTab returns the current state of a tab.
func (s *Server) GetTab(ctx context.Context, id int) (*types.Tab, error) {
	res, err := s.Call(ctx, OutgoingMsg{Action: ActionGetTab, TabID: id})
	if err != nil {
		return nil, err
	}
	return ParseTab(res.Tab)
}

// GetWindow returns a window without its tabs.
func (s *Server) GetWindow(ctx context.Context, id int) (*types.Window, error) {
	res, err := s.Call(ctx, OutgoingMsg{Action: ActionGetWindow, WindowID: id})
	if err != nil {
		return nil, err
	}
	return ParseWindow(res.Window)
}

// Windows returns every window populated with its tabs.
func (s *Server) Windows(ctx context.Context) ([]types.Window, error) {
	res, err := s.Call(ctx, OutgoingMsg{Action: ActionGetWindows, Populate: true})
	if err != nil {
		return nil, err
	}
	return ParseWindows(res.Windows)
}

// Groups returns the tab groups of one window.
func (s *Server) Groups(ctx context.Context, windowID int) ([]types.TabGroup, error) {
	res, err := s.Call(ctx, OutgoingMsg{Action: ActionQueryGroups, WindowID: windowID})
	if err != nil {
		return nil, err
	}
	groups, err := ParseGroups(res.Groups)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].WindowID == 0 {
			groups[i].WindowID = windowID
		}
	}
	return groups, nil
}

// QueryTabs returns the tabs of the current window, or of every window.
func (s *Server) QueryTabs(ctx context.Context, currentWindow bool) ([]types.Tab, error) {
	res, err := s.Call(ctx, OutgoingMsg{Action: ActionQueryTabs, CurrentWindow: currentWindow})
	if err != nil {
		return nil, err
	}
	return ParseTabs(res.Tabs)
}

// Group moves tabs into a group and returns its id.
func (s *Server) Group(ctx context.Context, tabIDs []int, opts types.GroupOptions) (int, error) {
	res, err := s.Call(ctx, OutgoingMsg{
		Action:   ActionGroup,
		TabIDs:   tabIDs,
		GroupID:  opts.GroupID,
		WindowID: opts.WindowID,
	})
	if err != nil {
		return 0, err
	}
	if res.GroupID == 0 {
		return 0, fmt.Errorf("%w: group: no group id in result", ErrHost)
	}
	return res.GroupID, nil
}

// Ungroup removes tabs from their groups.
func (s *Server) Ungroup(ctx context.Context, tabIDs []int) error {
	_, err := s.Call(ctx, OutgoingMsg{Action: ActionUngroup, TabIDs: tabIDs})
	return err
}

// UpdateGroup sets a group's title and/or colour.
func (s *Server) UpdateGroup(ctx context.Context, groupID int, upd types.GroupUpdate) error {
	_, err := s.Call(ctx, OutgoingMsg{
		Action:  ActionUpdateGroup,
		GroupID: groupID,
		Title:   upd.Title,
		Color:   string(upd.Color),
	})
	return err
}
