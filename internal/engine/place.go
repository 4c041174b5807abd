package engine

import (
	"context"
	"errors"

	"github.com/lotas/tabgenius/internal/applog"
	"github.com/lotas/tabgenius/internal/decide"
	"github.com/lotas/tabgenius/internal/domain"
	"github.com/lotas/tabgenius/internal/metrics"
	"github.com/lotas/tabgenius/internal/registry"
	"github.com/lotas/tabgenius/internal/storage"
	"github.com/lotas/tabgenius/internal/types"
)

// OutcomeKind is the terminal state of one auto-placement.
type OutcomeKind string

const (
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeJoined  OutcomeKind = "joined"
	OutcomeCreated OutcomeKind = "created"
	OutcomeFailed  OutcomeKind = "failed"
)

// Skip reasons.
const (
	SkipDisabled  = "grouping disabled"
	SkipIncognito = "incognito tab"
	SkipBlank     = "blank page"
	SkipNoConfig  = "no provider config"
	SkipNoGroup   = "no placement"
	SkipGone      = "tab closed"
)

// Outcome describes what AutoPlace did with a tab.
type Outcome struct {
	TabID    int
	WindowID int
	Mode     string // grouping preference in effect
	Kind     OutcomeKind
	GroupID  int
	Title    string
	Reason   string // set when skipped
	Err      error  // set when failed

	// Registry is the snapshot after placement, including the tab. Only set
	// for joined and created outcomes.
	Registry *registry.Registry
}

// AutoPlace puts one loaded tab into a group according to the user's
// grouping preference. It never returns an error: failures are logged,
// recorded and reported as OutcomeFailed, and the tab is left where it is.
func (e *Engine) AutoPlace(ctx context.Context, tab types.Tab) Outcome {
	out := e.autoPlace(ctx, tab)
	out.TabID = tab.ID
	out.WindowID = tab.WindowID

	metrics.Placements.WithLabelValues(out.Mode, string(out.Kind)).Inc()
	rec := storage.Placement{
		TabID:      tab.ID,
		WindowID:   tab.WindowID,
		Mode:       out.Mode,
		Outcome:    string(out.Kind),
		GroupID:    out.GroupID,
		GroupTitle: out.Title,
		Host:       domain.Hostname(tab.URL),
	}
	switch out.Kind {
	case OutcomeFailed:
		rec.Error = out.Err.Error()
		applog.Error("engine.place", out.Err, "tab", tab.ID, "mode", out.Mode)
	case OutcomeSkipped:
		rec.Error = out.Reason
		applog.Info("engine.place.skip", "tab", tab.ID, "reason", out.Reason)
	default:
		e.cache.Store(out.Registry)
		applog.Info("engine.place", "tab", tab.ID, "mode", out.Mode, "outcome", out.Kind, "group", out.Title)
	}
	e.record(rec)
	return out
}

func (e *Engine) autoPlace(ctx context.Context, tab types.Tab) Outcome {
	prefs, err := e.store.Preferences()
	if err != nil {
		return Outcome{Mode: "unknown", Kind: OutcomeFailed, Err: err}
	}
	mode := prefs.Grouping

	switch {
	case prefs.Grouping == types.GroupingCancel || prefs.AutoGroup == types.AutoGroupDisable:
		return skipped(mode, SkipDisabled)
	case tab.Incognito:
		return skipped(mode, SkipIncognito)
	case e.blank.Match(tab.URL):
		return skipped(mode, SkipBlank)
	}

	if mode == types.GroupingDomain {
		return e.placeByDomain(ctx, tab)
	}
	return e.placeByAI(ctx, tab)
}

func skipped(mode, reason string) Outcome {
	return Outcome{Mode: mode, Kind: OutcomeSkipped, Reason: reason}
}

func failed(mode string, err error) Outcome {
	return Outcome{Mode: mode, Kind: OutcomeFailed, Err: err}
}

func (e *Engine) placeByDomain(ctx context.Context, tab types.Tab) Outcome {
	mode := types.GroupingDomain
	reg, err := registry.Build(ctx, e.host, tab.ID)
	if err != nil {
		return failed(mode, err)
	}

	key := domain.ExtractKey(tab.URL)
	if entry, ok := reg.Lookup(key); ok {
		return e.join(ctx, mode, tab, reg, entry)
	}
	return e.create(ctx, mode, tab, reg, key, e.palette.Random())
}

func (e *Engine) placeByAI(ctx context.Context, tab types.Tab) Outcome {
	mode := types.GroupingAI
	cfg, err := e.store.ActiveConfig()
	if errors.Is(err, decide.ErrConfigMissing) {
		return skipped(mode, SkipNoConfig)
	}
	if err != nil {
		return failed(mode, err)
	}
	provider, err := e.newProvider(cfg)
	if err != nil {
		return failed(mode, err)
	}

	reg, err := registry.Build(ctx, e.host, tab.ID)
	if err != nil {
		return failed(mode, err)
	}

	summary := decide.TabSummary{Title: tab.Title, Host: domain.Hostname(tab.URL)}
	p := provider.DecidePlacement(ctx, summary, reg, e.palette)
	switch p.Kind {
	case decide.PlaceExisting:
		entry, ok := reg.Lookup(p.Title)
		if !ok {
			entry = registry.Entry{GroupID: p.GroupID, Title: p.Title}
		}
		return e.join(ctx, mode, tab, reg, entry)
	case decide.PlaceNew:
		return e.create(ctx, mode, tab, reg, p.Title, p.Color)
	}
	return skipped(mode, SkipNoGroup)
}

// join adds tab to entry's group and gives the group a fresh random colour.
func (e *Engine) join(ctx context.Context, mode string, tab types.Tab, reg *registry.Registry, entry registry.Entry) Outcome {
	if _, err := e.host.Group(ctx, []int{tab.ID}, types.GroupOptions{GroupID: entry.GroupID}); err != nil {
		return failed(mode, err)
	}
	if err := e.host.UpdateGroup(ctx, entry.GroupID, types.GroupUpdate{Color: e.palette.Random()}); err != nil {
		return failed(mode, err)
	}
	return Outcome{
		Mode:     mode,
		Kind:     OutcomeJoined,
		GroupID:  entry.GroupID,
		Title:    entry.Title,
		Registry: reg.WithTab(entry.Title, tab),
	}
}

// create starts a new group for tab.
func (e *Engine) create(ctx context.Context, mode string, tab types.Tab, reg *registry.Registry, title string, color types.Color) Outcome {
	gid, err := e.host.Group(ctx, []int{tab.ID}, types.GroupOptions{WindowID: tab.WindowID})
	if err != nil {
		return failed(mode, err)
	}
	if err := e.host.UpdateGroup(ctx, gid, types.GroupUpdate{Title: title, Color: color}); err != nil {
		return failed(mode, err)
	}
	return Outcome{
		Mode:    mode,
		Kind:    OutcomeCreated,
		GroupID: gid,
		Title:   title,
		Registry: reg.WithEntry(registry.Entry{
			GroupID:  gid,
			Title:    title,
			WindowID: tab.WindowID,
			Tabs:     []types.Tab{tab},
		}),
	}
}
