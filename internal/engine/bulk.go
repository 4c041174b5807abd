package engine

import (
	"context"
	"fmt"

	"github.com/lotas/tabgenius/internal/applog"
	"github.com/lotas/tabgenius/internal/decide"
	"github.com/lotas/tabgenius/internal/domain"
	"github.com/lotas/tabgenius/internal/metrics"
	"github.com/lotas/tabgenius/internal/registry"
	"github.com/lotas/tabgenius/internal/storage"
	"github.com/lotas/tabgenius/internal/types"
)

// Bulk modes as recorded in history and metrics.
const (
	ModeBulkDomain = "bulk-domain"
	ModeBulkAI     = "bulk-ai"
)

// CreatedGroup is one group created by a bulk workflow.
type CreatedGroup struct {
	ID       int
	Title    string
	Color    types.Color
	WindowID int
	TabIDs   []int
}

// BulkResult reports what a bulk workflow did. Failed counts groups that
// were attempted but rejected by the host.
type BulkResult struct {
	Groups   []CreatedGroup
	Failed   int
	Filtered int // input tabs dropped as unknown or outside normal windows
}

func (r *BulkResult) err(mode string) error {
	if r.Failed > 0 && len(r.Groups) == 0 {
		return fmt.Errorf("%s: %w (%d attempted)", mode, ErrBulkFailed, r.Failed)
	}
	return nil
}

// normalTabs refreshes each input tab from the host and keeps those that
// live in a normal window, in input order.
func (e *Engine) normalTabs(ctx context.Context, tabs []types.Tab) ([]types.Tab, error) {
	normal := make(map[int]bool)
	var out []types.Tab
	for _, t := range tabs {
		if t.ID == 0 {
			continue
		}
		fresh, err := e.host.GetTab(ctx, t.ID)
		if err != nil {
			applog.Error("engine.filter.tab", err, "tab", t.ID)
			continue
		}
		if fresh.WindowID == 0 {
			continue
		}
		ok, seen := normal[fresh.WindowID]
		if !seen {
			w, err := e.host.GetWindow(ctx, fresh.WindowID)
			if err != nil {
				applog.Error("engine.filter.window", err, "window", fresh.WindowID)
				continue
			}
			ok = w.Normal()
			normal[fresh.WindowID] = ok
		}
		if ok {
			out = append(out, *fresh)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoTabs
	}
	return out, nil
}

// createGroup groups ids, titles the new group and records the outcome.
// It returns false if the host rejected either step.
func (e *Engine) createGroup(ctx context.Context, mode string, ids []int, opts types.GroupOptions, title string, color types.Color) (int, bool) {
	gid, err := e.host.Group(ctx, ids, opts)
	if err == nil {
		err = e.host.UpdateGroup(ctx, gid, types.GroupUpdate{Title: title, Color: color})
	}
	if err != nil {
		applog.Error("engine.bulk.group", err, "mode", mode, "title", title, "tabs", len(ids))
		metrics.BulkFailures.WithLabelValues(mode).Inc()
		e.record(storage.Placement{TabID: ids[0], WindowID: opts.WindowID, Mode: mode,
			Outcome: string(OutcomeFailed), GroupTitle: title, Error: err.Error()})
		return 0, false
	}
	metrics.GroupsCreated.WithLabelValues(mode).Inc()
	e.record(storage.Placement{TabID: ids[0], WindowID: opts.WindowID, Mode: mode,
		Outcome: string(OutcomeCreated), GroupID: gid, GroupTitle: title})
	return gid, true
}

// GroupByDomain regroups tabs by domain key, one group per key per window.
// Colours cycle through the palette in bucket-discovery order within each
// window. A rejected bucket is logged and skipped.
func (e *Engine) GroupByDomain(ctx context.Context, tabs []types.Tab) (*BulkResult, error) {
	normal, err := e.normalTabs(ctx, tabs)
	if err != nil {
		return nil, err
	}
	res := &BulkResult{Filtered: len(tabs) - len(normal)}

	var windowOrder []int
	byWindow := make(map[int][]types.Tab)
	for _, t := range normal {
		if _, ok := byWindow[t.WindowID]; !ok {
			windowOrder = append(windowOrder, t.WindowID)
		}
		byWindow[t.WindowID] = append(byWindow[t.WindowID], t)
	}

	reg := registry.New()
	for _, wid := range windowOrder {
		wtabs := byWindow[wid]
		ids := make([]int, 0, len(wtabs))
		for _, t := range wtabs {
			ids = append(ids, t.ID)
		}
		if err := e.host.Ungroup(ctx, ids); err != nil {
			applog.Error("engine.bulk.ungroup", err, "window", wid, "tabs", len(ids))
		}

		var keys []string
		buckets := make(map[string][]types.Tab)
		for _, t := range wtabs {
			k := domain.ExtractKey(t.URL)
			if _, ok := buckets[k]; !ok {
				keys = append(keys, k)
			}
			buckets[k] = append(buckets[k], t)
		}

		for i, k := range keys {
			members := buckets[k]
			bucketIDs := make([]int, 0, len(members))
			for _, t := range members {
				bucketIDs = append(bucketIDs, t.ID)
			}
			color := e.palette.Cycle(i)
			gid, ok := e.createGroup(ctx, ModeBulkDomain, bucketIDs, types.GroupOptions{WindowID: wid}, k, color)
			if !ok {
				res.Failed++
				continue
			}
			res.Groups = append(res.Groups, CreatedGroup{ID: gid, Title: k, Color: color, WindowID: wid, TabIDs: bucketIDs})
			reg = reg.WithEntry(registry.Entry{GroupID: gid, Title: k, WindowID: wid, Tabs: members})
		}
	}

	e.cache.Store(reg)
	applog.Info("engine.bulk.domain", "tabs", len(normal), "groups", len(res.Groups), "failed", res.Failed)
	return res, res.err(ModeBulkDomain)
}

// GroupByAI asks the active provider to categorize tabs and creates one
// group per non-empty category with a random colour.
func (e *Engine) GroupByAI(ctx context.Context, tabs []types.Tab) (*BulkResult, error) {
	normal, err := e.normalTabs(ctx, tabs)
	if err != nil {
		return nil, err
	}

	cfg, err := e.store.ActiveConfig()
	if err != nil {
		return nil, err
	}
	provider, err := e.newProvider(cfg)
	if err != nil {
		return nil, err
	}
	if err := provider.Validate(ctx); err != nil {
		return nil, err
	}

	summaries := make([]decide.TabSummary, len(normal))
	for i, t := range normal {
		summaries[i] = decide.TabSummary{Title: t.Title, Host: domain.Hostname(t.URL)}
	}
	applog.Info("engine.bulk.ai", "provider", provider.Kind(), "tabs", len(summaries))

	cats, err := provider.CategorizeBatch(ctx, summaries)
	if err != nil {
		return nil, err
	}
	if len(cats) == 0 {
		return nil, decide.ErrNoCategories
	}

	res := &BulkResult{Filtered: len(tabs) - len(normal)}
	reg := registry.New()
	for _, c := range cats {
		var ids []int
		var members []types.Tab
		for _, i := range c.Indices {
			if i < 0 || i >= len(normal) || normal[i].ID == 0 {
				continue
			}
			ids = append(ids, normal[i].ID)
			members = append(members, normal[i])
		}
		if len(ids) == 0 {
			applog.Info("engine.bulk.ai.empty", "category", c.Name)
			continue
		}

		color := e.palette.Random()
		gid, ok := e.createGroup(ctx, ModeBulkAI, ids, types.GroupOptions{}, c.Name, color)
		if !ok {
			res.Failed++
			continue
		}
		res.Groups = append(res.Groups, CreatedGroup{ID: gid, Title: c.Name, Color: color, WindowID: members[0].WindowID, TabIDs: ids})
		reg = reg.WithEntry(registry.Entry{GroupID: gid, Title: c.Name, WindowID: members[0].WindowID, Tabs: members})
	}

	e.cache.Store(reg)
	applog.Info("engine.bulk.ai.done", "groups", len(res.Groups), "failed", res.Failed)
	return res, res.err(ModeBulkAI)
}
