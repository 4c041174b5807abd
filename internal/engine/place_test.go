package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotas/tabgenius/internal/decide"
	"github.com/lotas/tabgenius/internal/types"
)

func TestAutoPlaceSkips(t *testing.T) {
	tests := []struct {
		name   string
		prefs  types.Preferences
		tab    types.Tab
		reason string
	}{
		{"auto-group disabled", types.Preferences{Grouping: "ai", AutoGroup: "disable"},
			types.Tab{ID: 1, URL: "https://a.com"}, SkipDisabled},
		{"grouping cancelled", types.Preferences{Grouping: "cancel", AutoGroup: "always"},
			types.Tab{ID: 1, URL: "https://a.com"}, SkipDisabled},
		{"incognito", types.Preferences{Grouping: "domain", AutoGroup: "always"},
			types.Tab{ID: 1, URL: "https://a.com", Incognito: true}, SkipIncognito},
		{"new tab page", types.Preferences{Grouping: "domain", AutoGroup: "always"},
			types.Tab{ID: 1, URL: "chrome://newtab/"}, SkipBlank},
		{"blank with query", types.Preferences{Grouping: "domain", AutoGroup: "always"},
			types.Tab{ID: 1, URL: "about:blank?x=1"}, SkipBlank},
		{"empty url", types.Preferences{Grouping: "ai", AutoGroup: "always"},
			types.Tab{ID: 1}, SkipBlank},
		{"ai without config", types.Preferences{Grouping: "ai", AutoGroup: "always"},
			types.Tab{ID: 1, Title: "A", URL: "https://a.com"}, SkipNoConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newFakeHost()
			h.addTab(tt.tab)
			s := newFakeStore()
			s.prefs = tt.prefs
			e := newTestEngine(h, s, &fakeProvider{})

			out := e.AutoPlace(context.Background(), h.tab(tt.tab.ID))
			assert.Equal(t, OutcomeSkipped, out.Kind)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Equal(t, types.GroupNone, h.tab(tt.tab.ID).GroupID)
			assert.Empty(t, h.groupsByTitle())
		})
	}
}

func domainStore() *fakeStore {
	s := newFakeStore()
	s.prefs.Grouping = types.GroupingDomain
	return s
}

func TestAutoPlaceDomainJoinsExisting(t *testing.T) {
	h := newFakeHost()
	h.addTab(types.Tab{ID: 1, URL: "https://github.com/a"})
	tab := h.addTab(types.Tab{ID: 2, URL: "https://www.github.com/b"})
	h.addGroup(types.TabGroup{ID: 7, Title: " GitHub.com ", Color: types.Cyan, WindowID: 1}, 1)
	s := domainStore()
	e := newTestEngine(h, s, &fakeProvider{})

	out := e.AutoPlace(context.Background(), tab)
	require.Equal(t, OutcomeJoined, out.Kind, "err: %v", out.Err)
	assert.Equal(t, 7, out.GroupID)
	assert.Equal(t, 7, h.tab(2).GroupID)

	entry, ok := out.Registry.Lookup("github.com")
	require.True(t, ok)
	require.Len(t, entry.Tabs, 2)
	assert.Equal(t, 2, entry.Tabs[1].ID)
	assert.Same(t, out.Registry, e.Snapshot())

	hist := s.history()
	require.Len(t, hist, 1)
	assert.Equal(t, "joined", hist[0].Outcome)
	assert.Equal(t, "www.github.com", hist[0].Host)
}

func TestAutoPlaceDomainCreates(t *testing.T) {
	h := newFakeHost()
	tab := h.addTab(types.Tab{ID: 2, URL: "file:///home/me/notes.txt"})
	e := newTestEngine(h, domainStore(), &fakeProvider{})

	out := e.AutoPlace(context.Background(), tab)
	require.Equal(t, OutcomeCreated, out.Kind, "err: %v", out.Err)
	assert.Equal(t, "Local Files", out.Title)
	g := h.group(out.GroupID)
	assert.Equal(t, "Local Files", g.Title)
	assert.True(t, g.Color.Valid())
	assert.Equal(t, 1, out.Registry.Len())
}

func TestAutoPlaceDomainIgnoresItself(t *testing.T) {
	h := newFakeHost()
	// The tab already sits alone in an untitled group; it must not be
	// matched against itself and the untitled group is not indexed.
	tab := h.addTab(types.Tab{ID: 2, URL: "https://a.com"})
	h.addGroup(types.TabGroup{ID: 7, Title: "", WindowID: 1}, 2)
	e := newTestEngine(h, domainStore(), &fakeProvider{})

	out := e.AutoPlace(context.Background(), h.tab(tab.ID))
	require.Equal(t, OutcomeCreated, out.Kind)
	assert.NotEqual(t, 7, out.GroupID)
}

func aiStore() *fakeStore {
	s := newFakeStore()
	s.cfg = azureCfg
	return s
}

func TestAutoPlaceAIJoinsAndRecolours(t *testing.T) {
	h := newFakeHost()
	h.addTab(types.Tab{ID: 1, Title: "BBC", URL: "https://bbc.co.uk/news"})
	tab := h.addTab(types.Tab{ID: 2, Title: "CNN", URL: "https://edition.cnn.com/world?id=4"})
	h.addGroup(types.TabGroup{ID: 7, Title: "News", Color: types.Grey, WindowID: 1}, 1)
	p := &fakeProvider{decision: decide.Decision{Action: "new", Name: "news"}}
	e := newTestEngine(h, aiStore(), p)

	out := e.AutoPlace(context.Background(), tab)
	require.Equal(t, OutcomeJoined, out.Kind, "err: %v", out.Err)
	assert.Equal(t, "News", out.Title)
	assert.Equal(t, 7, h.tab(2).GroupID)
	assert.Len(t, h.groupsByTitle(), 1)

	require.Len(t, p.decisions, 1)
	assert.Equal(t, decide.TabSummary{Title: "CNN", Host: "edition.cnn.com"}, p.decisions[0])
}

func TestAutoPlaceAICreates(t *testing.T) {
	h := newFakeHost()
	tab := h.addTab(types.Tab{ID: 2, Title: "Go", URL: "https://go.dev"})
	p := &fakeProvider{decision: decide.Decision{Action: "new", Name: "Programming"}}
	e := newTestEngine(h, aiStore(), p)

	out := e.AutoPlace(context.Background(), tab)
	require.Equal(t, OutcomeCreated, out.Kind, "err: %v", out.Err)
	assert.Equal(t, map[string][]int{"Programming": {2}}, h.groupsByTitle())
	_, ok := out.Registry.Lookup("programming")
	assert.True(t, ok)
}

func TestAutoPlaceAIAddWithoutMatch(t *testing.T) {
	h := newFakeHost()
	tab := h.addTab(types.Tab{ID: 2, Title: "Go", URL: "https://go.dev"})
	p := &fakeProvider{decision: decide.Decision{Action: "add", Name: "News"}}
	e := newTestEngine(h, aiStore(), p)

	out := e.AutoPlace(context.Background(), tab)
	assert.Equal(t, OutcomeSkipped, out.Kind)
	assert.Equal(t, SkipNoGroup, out.Reason)
	assert.Empty(t, h.groupsByTitle())
	assert.Nil(t, e.Snapshot())
}

func TestAutoPlaceHostFailure(t *testing.T) {
	h := newFakeHost()
	tab := h.addTab(types.Tab{ID: 2, Title: "Go", URL: "https://go.dev"})
	h.groupErr = func([]int, types.GroupOptions) error { return errors.New("tab was closed") }
	s := aiStore()
	p := &fakeProvider{decision: decide.Decision{Action: "new", Name: "Programming"}}
	e := newTestEngine(h, s, p)

	out := e.AutoPlace(context.Background(), tab)
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.EqualError(t, out.Err, "tab was closed")
	assert.Nil(t, out.Registry)

	hist := s.history()
	require.Len(t, hist, 1)
	assert.Equal(t, "failed", hist[0].Outcome)
	assert.Equal(t, "ai", hist[0].Mode)
}
