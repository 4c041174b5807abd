// Package engine runs the grouping workflows: bulk grouping by domain or by
// AI categorization, automatic placement of single tabs, and cancel-all.
//
// Every workflow builds its own registry snapshot from the host and threads
// updated snapshots explicitly. The engine keeps the latest snapshot in a
// cache for status display only.
package engine

import (
	"context"
	"errors"

	"github.com/lotas/tabgenius/internal/applog"
	"github.com/lotas/tabgenius/internal/decide"
	"github.com/lotas/tabgenius/internal/domain"
	"github.com/lotas/tabgenius/internal/registry"
	"github.com/lotas/tabgenius/internal/storage"
	"github.com/lotas/tabgenius/internal/types"
)

var (
	// ErrNoTabs means no input tab belongs to a normal window.
	ErrNoTabs = errors.New("no valid tabs found in normal windows")
	// ErrBulkFailed means every group a bulk workflow attempted failed.
	ErrBulkFailed = errors.New("all group operations failed")
)

// Host is the browser's tab and group capability.
type Host interface {
	registry.Source
	GetTab(ctx context.Context, id int) (*types.Tab, error)
	GetWindow(ctx context.Context, id int) (*types.Window, error)
	// QueryTabs returns the tabs of the current window, or of all windows.
	QueryTabs(ctx context.Context, currentWindow bool) ([]types.Tab, error)
	// Group adds tabs to an existing group or creates a new one and returns
	// the group id.
	Group(ctx context.Context, tabIDs []int, opts types.GroupOptions) (int, error)
	Ungroup(ctx context.Context, tabIDs []int) error
	UpdateGroup(ctx context.Context, groupID int, upd types.GroupUpdate) error
}

// Store persists preferences, provider configs and placement history.
type Store interface {
	Preferences() (types.Preferences, error)
	SetPreference(key, value string) error
	// ActiveConfig returns the selected provider's config or
	// decide.ErrConfigMissing.
	ActiveConfig() (decide.Config, error)
	SaveProviderConfig(cfg decide.Config) error
	RecordPlacement(p storage.Placement) error
}

// ProviderFactory builds a decision provider for a config.
type ProviderFactory func(cfg decide.Config) (decide.Provider, error)

// Engine runs grouping workflows against one host.
type Engine struct {
	host        Host
	store       Store
	palette     *types.Palette
	blank       *domain.BlankMatcher
	newProvider ProviderFactory
	cache       registry.Cache
}

// Option configures an Engine.
type Option func(*Engine)

// WithPalette sets the colour source.
func WithPalette(p *types.Palette) Option {
	return func(e *Engine) { e.palette = p }
}

// WithBlankMatcher sets the matcher for pages that are never placed.
func WithBlankMatcher(m *domain.BlankMatcher) Option {
	return func(e *Engine) { e.blank = m }
}

// WithProviderFactory replaces decide.New.
func WithProviderFactory(f ProviderFactory) Option {
	return func(e *Engine) { e.newProvider = f }
}

// New returns an engine for host and store.
func New(host Host, store Store, opts ...Option) *Engine {
	e := &Engine{
		host:  host,
		store: store,
		newProvider: func(cfg decide.Config) (decide.Provider, error) {
			return decide.New(cfg)
		},
	}
	for _, o := range opts {
		o(e)
	}
	if e.palette == nil {
		e.palette = types.NewPalette(0)
	}
	if e.blank == nil {
		m, err := domain.NewBlankMatcher()
		if err != nil {
			panic(err)
		}
		e.blank = m
	}
	return e
}

// Snapshot returns the most recent registry snapshot, or nil.
func (e *Engine) Snapshot() *registry.Registry {
	return e.cache.Load()
}

// CancelAll ungroups every grouped tab in the current window and turns
// auto-grouping off. The preference is written even when nothing was
// grouped.
func (e *Engine) CancelAll(ctx context.Context) error {
	tabs, err := e.host.QueryTabs(ctx, true)
	if err != nil {
		return err
	}

	var ids []int
	for _, t := range tabs {
		if t.Grouped() && t.ID != 0 {
			ids = append(ids, t.ID)
		}
	}
	if len(ids) > 0 {
		if err := e.host.Ungroup(ctx, ids); err != nil {
			applog.Error("engine.cancel", err, "tabs", len(ids))
			return err
		}
	}

	e.cache.Clear()
	if err := e.store.SetPreference(storage.KeyAutoGroup, types.AutoGroupDisable); err != nil {
		return err
	}
	applog.Info("engine.cancel", "ungrouped", len(ids))
	return nil
}

// SetProviderConfig normalizes cfg, validates it against the backend and
// stores it.
func (e *Engine) SetProviderConfig(ctx context.Context, cfg decide.Config) error {
	if cfg == nil {
		return decide.ErrConfigMissing
	}
	cfg = cfg.Normalized()
	p, err := e.newProvider(cfg)
	if err != nil {
		return err
	}
	if err := p.Validate(ctx); err != nil {
		applog.Error("engine.provider.validate", err, "provider", cfg.Kind())
		return err
	}
	if err := e.store.SaveProviderConfig(cfg); err != nil {
		return err
	}
	applog.Info("engine.provider.saved", "provider", cfg.Kind())
	return nil
}

func (e *Engine) record(p storage.Placement) {
	if err := e.store.RecordPlacement(p); err != nil {
		applog.Error("engine.history", err, "tab", p.TabID)
	}
}
