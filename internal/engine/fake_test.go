package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/lotas/tabgenius/internal/decide"
	"github.com/lotas/tabgenius/internal/registry"
	"github.com/lotas/tabgenius/internal/storage"
	"github.com/lotas/tabgenius/internal/types"
)

// fakeHost is an in-memory browser.
type fakeHost struct {
	mu        sync.Mutex
	windows   map[int]string // id -> type
	tabs      map[int]*types.Tab
	groups    map[int]*types.TabGroup
	nextGroup int
	current   int

	// groupErr, if set, is consulted before every Group call.
	groupErr  func(ids []int, opts types.GroupOptions) error
	ungrouped [][]int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		windows:   map[int]string{1: types.WindowNormal},
		tabs:      make(map[int]*types.Tab),
		groups:    make(map[int]*types.TabGroup),
		nextGroup: 100,
		current:   1,
	}
}

func (h *fakeHost) addWindow(id int, typ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows[id] = typ
}

func (h *fakeHost) addTab(t types.Tab) types.Tab {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t.WindowID == 0 {
		t.WindowID = 1
	}
	if t.GroupID == 0 {
		t.GroupID = types.GroupNone
	}
	if t.Status == "" {
		t.Status = types.StatusComplete
	}
	h.tabs[t.ID] = &t
	return t
}

func (h *fakeHost) addGroup(g types.TabGroup, tabIDs ...int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.groups[g.ID] = &g
	for _, id := range tabIDs {
		h.tabs[id].GroupID = g.ID
	}
}

func (h *fakeHost) group(id int) types.TabGroup {
	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := h.groups[id]; ok {
		return *g
	}
	return types.TabGroup{}
}

func (h *fakeHost) tab(id int) types.Tab {
	h.mu.Lock()
	defer h.mu.Unlock()
	return *h.tabs[id]
}

// groupsByTitle returns group titles mapped to sorted member tab ids.
func (h *fakeHost) groupsByTitle() map[string][]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string][]int)
	for _, g := range h.groups {
		var ids []int
		for _, t := range h.tabs {
			if t.GroupID == g.ID {
				ids = append(ids, t.ID)
			}
		}
		sort.Ints(ids)
		out[g.Title] = ids
	}
	return out
}

func (h *fakeHost) Windows(ctx context.Context) ([]types.Window, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []int
	for id := range h.windows {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var out []types.Window
	for _, id := range ids {
		out = append(out, types.Window{ID: id, Type: h.windows[id], Tabs: h.tabsOf(id)})
	}
	return out, nil
}

func (h *fakeHost) tabsOf(windowID int) []types.Tab {
	var out []types.Tab
	for _, t := range h.tabs {
		if t.WindowID == windowID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *fakeHost) Groups(ctx context.Context, windowID int) ([]types.TabGroup, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []types.TabGroup
	for _, g := range h.groups {
		if g.WindowID == windowID {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (h *fakeHost) GetTab(ctx context.Context, id int) (*types.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	if !ok {
		return nil, fmt.Errorf("no tab with id %d", id)
	}
	c := *t
	return &c, nil
}

func (h *fakeHost) GetWindow(ctx context.Context, id int) (*types.Window, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	typ, ok := h.windows[id]
	if !ok {
		return nil, fmt.Errorf("no window with id %d", id)
	}
	return &types.Window{ID: id, Type: typ}, nil
}

func (h *fakeHost) QueryTabs(ctx context.Context, currentWindow bool) ([]types.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if currentWindow {
		return h.tabsOf(h.current), nil
	}
	var out []types.Tab
	for _, t := range h.tabs {
		out = append(out, *t)
	}
	return out, nil
}

func (h *fakeHost) Group(ctx context.Context, ids []int, opts types.GroupOptions) (int, error) {
	if h.groupErr != nil {
		if err := h.groupErr(ids, opts); err != nil {
			return 0, err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range ids {
		if _, ok := h.tabs[id]; !ok {
			return 0, fmt.Errorf("no tab with id %d", id)
		}
	}

	gid := opts.GroupID
	if gid != 0 {
		if _, ok := h.groups[gid]; !ok {
			return 0, fmt.Errorf("no group with id %d", gid)
		}
	} else {
		gid = h.nextGroup
		h.nextGroup++
		wid := opts.WindowID
		if wid == 0 {
			wid = h.tabs[ids[0]].WindowID
		}
		h.groups[gid] = &types.TabGroup{ID: gid, WindowID: wid, Color: types.Grey}
	}
	for _, id := range ids {
		h.tabs[id].GroupID = gid
		h.tabs[id].WindowID = h.groups[gid].WindowID
	}
	return gid, nil
}

func (h *fakeHost) Ungroup(ctx context.Context, ids []int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ungrouped = append(h.ungrouped, append([]int(nil), ids...))
	for _, id := range ids {
		if t, ok := h.tabs[id]; ok {
			t.GroupID = types.GroupNone
		}
	}
	for gid := range h.groups {
		empty := true
		for _, t := range h.tabs {
			if t.GroupID == gid {
				empty = false
				break
			}
		}
		if empty {
			delete(h.groups, gid)
		}
	}
	return nil
}

func (h *fakeHost) UpdateGroup(ctx context.Context, id int, upd types.GroupUpdate) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.groups[id]
	if !ok {
		return fmt.Errorf("no group with id %d", id)
	}
	if upd.Title != "" {
		g.Title = upd.Title
	}
	if upd.Color != "" {
		g.Color = upd.Color
	}
	return nil
}

// fakeStore keeps settings in memory.
type fakeStore struct {
	mu      sync.Mutex
	prefs   types.Preferences
	cfg     decide.Config
	saved   []decide.Config
	records []storage.Placement
}

func newFakeStore() *fakeStore {
	return &fakeStore{prefs: types.Preferences{
		Grouping:  types.GroupingAI,
		AutoGroup: types.AutoGroupAlways,
		SortOrder: types.SortDesc,
	}}
}

func (s *fakeStore) Preferences() (types.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prefs, nil
}

func (s *fakeStore) SetPreference(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case storage.KeyGrouping:
		s.prefs.Grouping = value
	case storage.KeyAutoGroup:
		s.prefs.AutoGroup = value
	case storage.KeySortOrder:
		s.prefs.SortOrder = value
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

func (s *fakeStore) ActiveConfig() (decide.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return nil, decide.ErrConfigMissing
	}
	return s.cfg, nil
}

func (s *fakeStore) SaveProviderConfig(cfg decide.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, cfg)
	s.cfg = cfg
	return nil
}

func (s *fakeStore) RecordPlacement(p storage.Placement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, p)
	return nil
}

func (s *fakeStore) history() []storage.Placement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Placement(nil), s.records...)
}

// fakeProvider returns canned answers.
type fakeProvider struct {
	validateErr error
	cats        decide.Categories
	catsErr     error
	decision    decide.Decision

	mu        sync.Mutex
	batches   [][]decide.TabSummary
	decisions []decide.TabSummary
}

func (p *fakeProvider) Kind() decide.Kind { return decide.KindAzure }

func (p *fakeProvider) Validate(ctx context.Context) error { return p.validateErr }

func (p *fakeProvider) CategorizeBatch(ctx context.Context, tabs []decide.TabSummary) (decide.Categories, error) {
	p.mu.Lock()
	p.batches = append(p.batches, tabs)
	p.mu.Unlock()
	return p.cats, p.catsErr
}

func (p *fakeProvider) DecidePlacement(ctx context.Context, tab decide.TabSummary, reg *registry.Registry, pal *types.Palette) decide.Placement {
	p.mu.Lock()
	p.decisions = append(p.decisions, tab)
	p.mu.Unlock()
	return decide.Resolve(p.decision, reg, pal)
}

func newTestEngine(h *fakeHost, s *fakeStore, p *fakeProvider) *Engine {
	return New(h, s,
		WithPalette(types.NewPalette(42)),
		WithProviderFactory(func(cfg decide.Config) (decide.Provider, error) {
			return p, nil
		}),
	)
}
