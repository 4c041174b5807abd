package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/lotas/tabgenius/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	windows []types.Window
	groups  map[int][]types.TabGroup
	err     error
}

func (f *fakeSource) Windows(ctx context.Context) ([]types.Window, error) {
	return f.windows, f.err
}

func (f *fakeSource) Groups(ctx context.Context, windowID int) ([]types.TabGroup, error) {
	return f.groups[windowID], nil
}

func sampleSource() *fakeSource {
	return &fakeSource{
		windows: []types.Window{
			{ID: 1, Type: types.WindowNormal, Tabs: []types.Tab{
				{ID: 10, Title: "HN", URL: "https://news.ycombinator.com", GroupID: 100},
				{ID: 11, Title: "Lobsters", URL: "https://lobste.rs", GroupID: 100},
				{ID: 12, Title: "Untitled member", URL: "https://a.com", GroupID: 101},
				{ID: 13, Title: "Loose", URL: "https://b.com", GroupID: types.GroupNone},
			}},
			{ID: 2, Type: types.WindowPopup, Tabs: []types.Tab{
				{ID: 20, Title: "Popup", URL: "https://c.com", GroupID: 200},
			}},
			{ID: 3, Type: types.WindowNormal, Tabs: []types.Tab{
				{ID: 30, Title: "Docs", URL: "https://go.dev/doc", GroupID: 300},
				{ID: 31, Title: "More news", URL: "https://lwn.net", GroupID: 301},
			}},
		},
		groups: map[int][]types.TabGroup{
			1: {{ID: 100, Title: " News ", WindowID: 1}, {ID: 101, Title: "", WindowID: 1}},
			2: {{ID: 200, Title: "Popup group", WindowID: 2}},
			3: {{ID: 300, Title: "Go", WindowID: 3}, {ID: 301, Title: "NEWS", WindowID: 3}},
		},
	}
}

func TestBuild(t *testing.T) {
	reg, err := Build(context.Background(), sampleSource(), 0)
	require.NoError(t, err)

	// Untitled and popup-window groups are invisible; the second "news" loses.
	assert.Equal(t, 2, reg.Len())

	news, ok := reg.Lookup("news")
	require.True(t, ok, "group titled \" News \" must be found by \"news\"")
	assert.Equal(t, 100, news.GroupID)
	assert.Equal(t, " News ", news.Title)
	assert.Len(t, news.Tabs, 2)

	_, ok = reg.Lookup("Popup group")
	assert.False(t, ok)

	goEntry, ok := reg.Lookup("  GO")
	require.True(t, ok)
	assert.Equal(t, 3, goEntry.WindowID)
}

func TestBuildExcludesTab(t *testing.T) {
	reg, err := Build(context.Background(), sampleSource(), 11)
	require.NoError(t, err)

	news, ok := reg.Lookup("News")
	require.True(t, ok)
	require.Len(t, news.Tabs, 1)
	assert.Equal(t, 10, news.Tabs[0].ID)
}

func TestBuildError(t *testing.T) {
	src := &fakeSource{err: errors.New("bridge down")}
	_, err := Build(context.Background(), src, 0)
	require.Error(t, err)
}

func TestLookupIsExact(t *testing.T) {
	reg := New(Entry{GroupID: 1, Title: "Work"})
	_, ok := reg.Lookup("Work stuff")
	assert.False(t, ok, "no substring matching")
	_, ok = reg.Lookup("wor")
	assert.False(t, ok, "no prefix matching")
	_, ok = reg.Lookup("\tWORK\n")
	assert.True(t, ok)
}

func TestWithTabAndEntryCopy(t *testing.T) {
	orig := New(Entry{GroupID: 1, Title: "Work"})

	next := orig.WithTab("work", types.Tab{ID: 5})
	e, _ := next.Lookup("Work")
	assert.Len(t, e.Tabs, 1)

	e, _ = orig.Lookup("Work")
	assert.Empty(t, e.Tabs, "original snapshot must not change")

	next = next.WithEntry(Entry{GroupID: 2, Title: "Play"})
	assert.Equal(t, 2, next.Len())
	assert.Equal(t, 1, orig.Len())

	titles := []string{}
	for _, e := range next.Entries() {
		titles = append(titles, e.Title)
	}
	assert.Equal(t, []string{"Work", "Play"}, titles)
}

func TestNilRegistry(t *testing.T) {
	var r *Registry
	_, ok := r.Lookup("x")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, r.WithEntry(Entry{GroupID: 1, Title: "x"}).Len())
}

func TestCache(t *testing.T) {
	var c Cache
	assert.Nil(t, c.Load())
	r := New(Entry{GroupID: 1, Title: "a"})
	c.Store(r)
	assert.Same(t, r, c.Load())
	c.Clear()
	assert.Nil(t, c.Load())
}
