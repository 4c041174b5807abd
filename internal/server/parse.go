package server

import (
	"encoding/json"
	"fmt"

	"github.com/lotas/tabgenius/internal/types"
)

type wireTab struct {
	ID        int    `json:"id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	GroupID   *int   `json:"groupId"`
	WindowID  int    `json:"windowId"`
	Status    string `json:"status"`
	Incognito bool   `json:"incognito"`
}

type wireWindow struct {
	ID        int       `json:"id"`
	Type      string    `json:"type"`
	Incognito bool      `json:"incognito"`
	Tabs      []wireTab `json:"tabs"`
}

type wireGroup struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Color    string `json:"color"`
	WindowID int    `json:"windowId"`
}

func (wt wireTab) tab() types.Tab {
	t := types.Tab{
		ID:        wt.ID,
		Title:     wt.Title,
		URL:       wt.URL,
		WindowID:  wt.WindowID,
		GroupID:   types.GroupNone,
		Status:    wt.Status,
		Incognito: wt.Incognito,
	}
	if wt.GroupID != nil {
		t.GroupID = *wt.GroupID
	}
	return t
}

func (ww wireWindow) window() types.Window {
	w := types.Window{ID: ww.ID, Type: ww.Type, Incognito: ww.Incognito}
	for _, wt := range ww.Tabs {
		w.Tabs = append(w.Tabs, wt.tab())
	}
	return w
}

// ParseTab converts a raw JSON tab into a Tab. A missing groupId means the
// tab is ungrouped.
func ParseTab(raw json.RawMessage) (*types.Tab, error) {
	var wt wireTab
	if err := json.Unmarshal(raw, &wt); err != nil {
		return nil, fmt.Errorf("parse tab: %w", err)
	}
	t := wt.tab()
	return &t, nil
}

// ParseTabs converts a raw JSON array of tabs.
func ParseTabs(raw json.RawMessage) ([]types.Tab, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var wts []wireTab
	if err := json.Unmarshal(raw, &wts); err != nil {
		return nil, fmt.Errorf("parse tabs: %w", err)
	}
	tabs := make([]types.Tab, 0, len(wts))
	for _, wt := range wts {
		tabs = append(tabs, wt.tab())
	}
	return tabs, nil
}

// ParseWindow converts a raw JSON window, with its tabs if populated.
func ParseWindow(raw json.RawMessage) (*types.Window, error) {
	var ww wireWindow
	if err := json.Unmarshal(raw, &ww); err != nil {
		return nil, fmt.Errorf("parse window: %w", err)
	}
	w := ww.window()
	return &w, nil
}

// ParseWindows converts a raw JSON array of windows.
func ParseWindows(raw json.RawMessage) ([]types.Window, error) {
	var wws []wireWindow
	if err := json.Unmarshal(raw, &wws); err != nil {
		return nil, fmt.Errorf("parse windows: %w", err)
	}
	out := make([]types.Window, 0, len(wws))
	for _, ww := range wws {
		out = append(out, ww.window())
	}
	return out, nil
}

// ParseGroups converts a raw JSON array of tab groups.
func ParseGroups(raw json.RawMessage) ([]types.TabGroup, error) {
	var wgs []wireGroup
	if err := json.Unmarshal(raw, &wgs); err != nil {
		return nil, fmt.Errorf("parse groups: %w", err)
	}
	out := make([]types.TabGroup, 0, len(wgs))
	for _, g := range wgs {
		out = append(out, types.TabGroup{
			ID:       g.ID,
			Title:    g.Title,
			Color:    types.Color(g.Color),
			WindowID: g.WindowID,
		})
	}
	return out, nil
}
