// Package registry indexes the titled tab groups that exist in the browser at
// one point in time.
//
// A Registry is a snapshot: it is built from host introspection at the start
// of a workflow and never mutated in place. Workflows that place a tab derive
// a new snapshot with WithTab or WithEntry and pass it on explicitly.
package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lotas/tabgenius/internal/applog"
	"github.com/lotas/tabgenius/internal/types"
)

// Source is the subset of the host capability needed to build a registry.
type Source interface {
	// Windows returns all windows populated with their tabs.
	Windows(ctx context.Context) ([]types.Window, error)
	// Groups returns the tab groups of one window.
	Groups(ctx context.Context, windowID int) ([]types.TabGroup, error)
}

// Entry is one titled tab group and the tabs it held when observed.
type Entry struct {
	GroupID  int
	Title    string
	WindowID int
	Tabs     []types.Tab
}

// Registry maps normalized group titles to entries.
type Registry struct {
	entries map[string]Entry
	order   []string
}

// Key normalizes a group title for lookup.
func Key(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// New returns a registry holding the given entries. Entries whose titles are
// blank are ignored; of two entries with the same key the first wins.
func New(entries ...Entry) *Registry {
	r := &Registry{entries: make(map[string]Entry)}
	for _, e := range entries {
		r.add(e)
	}
	return r
}

func (r *Registry) add(e Entry) bool {
	k := Key(e.Title)
	if k == "" {
		return false
	}
	if _, dup := r.entries[k]; dup {
		return false
	}
	r.entries[k] = e
	r.order = append(r.order, k)
	return true
}

// Build enumerates all normal windows and their titled groups. The tab with
// id excludeTabID (0 for none) is left out of every member list so that a tab
// being placed never sees itself as a member.
func Build(ctx context.Context, src Source, excludeTabID int) (*Registry, error) {
	windows, err := src.Windows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}

	r := New()
	for _, w := range windows {
		if !w.Normal() {
			continue
		}
		groups, err := src.Groups(ctx, w.ID)
		if err != nil {
			return nil, fmt.Errorf("list groups of window %d: %w", w.ID, err)
		}
		for _, g := range groups {
			if strings.TrimSpace(g.Title) == "" {
				continue
			}
			e := Entry{GroupID: g.ID, Title: g.Title, WindowID: w.ID}
			for _, t := range w.Tabs {
				if t.GroupID != g.ID {
					continue
				}
				if excludeTabID != 0 && t.ID == excludeTabID {
					continue
				}
				e.Tabs = append(e.Tabs, t)
			}
			if !r.add(e) {
				applog.Info("registry.duplicate", "title", g.Title, "group", g.ID)
			}
		}
	}
	return r, nil
}

// Lookup finds the entry whose title matches name, ignoring case and
// surrounding whitespace. Matching is exact otherwise.
func (r *Registry) Lookup(name string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	e, ok := r.entries[Key(name)]
	return e, ok
}

// Entries returns the entries in discovery order.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.entries[k])
	}
	return out
}

// Len returns the number of indexed groups.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

func (r *Registry) clone() *Registry {
	c := &Registry{
		entries: make(map[string]Entry, len(r.entries)+1),
		order:   append([]string(nil), r.order...),
	}
	for k, e := range r.entries {
		e.Tabs = append([]types.Tab(nil), e.Tabs...)
		c.entries[k] = e
	}
	return c
}

// WithTab returns a copy of r with tab appended to the group titled title.
// If no such group exists the copy is returned unchanged.
func (r *Registry) WithTab(title string, tab types.Tab) *Registry {
	if r == nil {
		r = New()
	}
	c := r.clone()
	k := Key(title)
	if e, ok := c.entries[k]; ok {
		e.Tabs = append(e.Tabs, tab)
		c.entries[k] = e
	}
	return c
}

// WithEntry returns a copy of r with e added. An existing entry with the same
// key is replaced.
func (r *Registry) WithEntry(e Entry) *Registry {
	if r == nil {
		r = New()
	}
	c := r.clone()
	k := Key(e.Title)
	if k == "" {
		return c
	}
	if _, ok := c.entries[k]; !ok {
		c.order = append(c.order, k)
	}
	c.entries[k] = e
	return c
}

// Cache holds the most recent snapshot produced by a workflow. It exists for
// status reporting; decisions always rebuild from the host.
type Cache struct {
	mu   sync.Mutex
	last *Registry
}

// Store replaces the cached snapshot.
func (c *Cache) Store(r *Registry) {
	c.mu.Lock()
	c.last = r
	c.mu.Unlock()
}

// Load returns the cached snapshot, or nil.
func (c *Cache) Load() *Registry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// Clear drops the cached snapshot.
func (c *Cache) Clear() {
	c.Store(nil)
}
