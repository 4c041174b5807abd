package plan

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lotas/tabgenius/internal/types"
)

// Sim is an in-memory browser seeded from a session file. It applies group
// operations to its own state only, so the engine can run against it
// without touching the real browser.
type Sim struct {
	mu        sync.Mutex
	windows   []types.Window // tabs are kept in tabs, not here
	tabs      map[int]*types.Tab
	order     []int
	groups    map[int]*types.TabGroup
	nextGroup int
}

// NewSim copies the windows, tabs and groups of sd.
func NewSim(sd *types.SessionData) *Sim {
	s := &Sim{
		tabs:   make(map[int]*types.Tab),
		groups: make(map[int]*types.TabGroup),
	}
	for _, w := range sd.Windows {
		for _, t := range w.Tabs {
			t := t
			s.tabs[t.ID] = &t
			s.order = append(s.order, t.ID)
		}
		w.Tabs = nil
		s.windows = append(s.windows, w)
	}
	for _, g := range sd.Groups {
		g := g
		s.groups[g.ID] = &g
		if g.ID >= s.nextGroup {
			s.nextGroup = g.ID + 1
		}
	}
	if s.nextGroup == 0 {
		s.nextGroup = 1
	}
	return s
}

func (s *Sim) tabsOf(windowID int) []types.Tab {
	var out []types.Tab
	for _, id := range s.order {
		if t := s.tabs[id]; t.WindowID == windowID {
			out = append(out, *t)
		}
	}
	return out
}

func (s *Sim) Windows(ctx context.Context) ([]types.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Window, 0, len(s.windows))
	for _, w := range s.windows {
		w.Tabs = s.tabsOf(w.ID)
		out = append(out, w)
	}
	return out, nil
}

func (s *Sim) Groups(ctx context.Context, windowID int) ([]types.TabGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.TabGroup
	for _, g := range s.groups {
		if g.WindowID == windowID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Sim) GetTab(ctx context.Context, id int) (*types.Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabs[id]
	if !ok {
		return nil, fmt.Errorf("no tab with id %d", id)
	}
	cp := *t
	return &cp, nil
}

func (s *Sim) GetWindow(ctx context.Context, id int) (*types.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.windows {
		if w.ID == id {
			return &w, nil
		}
	}
	return nil, fmt.Errorf("no window with id %d", id)
}

// QueryTabs treats the first window as the current one.
func (s *Sim) QueryTabs(ctx context.Context, currentWindow bool) ([]types.Tab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !currentWindow {
		out := make([]types.Tab, 0, len(s.order))
		for _, id := range s.order {
			out = append(out, *s.tabs[id])
		}
		return out, nil
	}
	if len(s.windows) == 0 {
		return nil, nil
	}
	return s.tabsOf(s.windows[0].ID), nil
}

func (s *Sim) Group(ctx context.Context, tabIDs []int, opts types.GroupOptions) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(tabIDs) == 0 {
		return 0, fmt.Errorf("group: no tabs")
	}
	for _, id := range tabIDs {
		if _, ok := s.tabs[id]; !ok {
			return 0, fmt.Errorf("no tab with id %d", id)
		}
	}

	gid := opts.GroupID
	if gid != 0 {
		if _, ok := s.groups[gid]; !ok {
			return 0, fmt.Errorf("no group with id %d", gid)
		}
	} else {
		wid := opts.WindowID
		if wid == 0 {
			wid = s.tabs[tabIDs[0]].WindowID
		}
		gid = s.nextGroup
		s.nextGroup++
		s.groups[gid] = &types.TabGroup{ID: gid, WindowID: wid, Color: types.Grey}
	}
	for _, id := range tabIDs {
		s.tabs[id].GroupID = gid
		s.tabs[id].WindowID = s.groups[gid].WindowID
	}
	s.dropEmpty()
	return gid, nil
}

func (s *Sim) Ungroup(ctx context.Context, tabIDs []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range tabIDs {
		if t, ok := s.tabs[id]; ok {
			t.GroupID = types.GroupNone
		}
	}
	s.dropEmpty()
	return nil
}

func (s *Sim) UpdateGroup(ctx context.Context, groupID int, upd types.GroupUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return fmt.Errorf("no group with id %d", groupID)
	}
	if upd.Title != "" {
		g.Title = upd.Title
	}
	if upd.Color != "" {
		g.Color = upd.Color
	}
	return nil
}

// dropEmpty removes groups left without tabs, as the browser does.
func (s *Sim) dropEmpty() {
	used := make(map[int]bool)
	for _, t := range s.tabs {
		used[t.GroupID] = true
	}
	for id := range s.groups {
		if !used[id] {
			delete(s.groups, id)
		}
	}
}
