// Package plan previews grouping offline: it runs the engine's bulk
// workflows against a simulated copy of a saved Firefox session and
// renders the resulting layout.
package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/lotas/tabgenius/internal/decide"
	"github.com/lotas/tabgenius/internal/engine"
	"github.com/lotas/tabgenius/internal/firefox"
	"github.com/lotas/tabgenius/internal/storage"
	"github.com/lotas/tabgenius/internal/types"
)

// Plan modes.
const (
	ModeDomain = "domain"
	ModeAI     = "ai"
)

// ErrReadOnly is returned when a preview tries to change stored settings.
var ErrReadOnly = errors.New("plan: settings are read-only")

// ConfigSource supplies the active provider config for AI previews.
type ConfigSource interface {
	ActiveConfig() (decide.Config, error)
}

// Result is the simulated layout after a preview.
type Result struct {
	Profile string
	Mode    string
	Bulk    *engine.BulkResult
	Windows []types.Window
	Groups  map[int]types.TabGroup
}

// Run previews mode over the normal-window tabs of sd. configs may be nil
// for domain previews.
func Run(ctx context.Context, sd *types.SessionData, mode string, configs ConfigSource, opts ...engine.Option) (*Result, error) {
	sim := NewSim(sd)
	eng := engine.New(sim, dryStore{configs: configs}, opts...)

	tabs := firefox.Tabs(sd)
	var (
		bulk *engine.BulkResult
		err  error
	)
	switch mode {
	case ModeDomain:
		bulk, err = eng.GroupByDomain(ctx, tabs)
	case ModeAI:
		bulk, err = eng.GroupByAI(ctx, tabs)
	default:
		return nil, fmt.Errorf("plan: unknown mode %q", mode)
	}
	if err != nil {
		return nil, err
	}

	windows, _ := sim.Windows(ctx)
	res := &Result{Profile: sd.Profile.Name, Mode: mode, Bulk: bulk, Windows: windows, Groups: make(map[int]types.TabGroup)}
	for _, w := range windows {
		groups, _ := sim.Groups(ctx, w.ID)
		for _, g := range groups {
			res.Groups[g.ID] = g
		}
	}
	return res, nil
}

// dryStore serves default preferences and discards history.
type dryStore struct {
	configs ConfigSource
}

func (dryStore) Preferences() (types.Preferences, error) {
	return types.Preferences{
		Grouping:  types.GroupingDomain,
		AutoGroup: types.AutoGroupDisable,
		SortOrder: types.SortDesc,
	}, nil
}

func (dryStore) SetPreference(key, value string) error { return ErrReadOnly }

func (s dryStore) ActiveConfig() (decide.Config, error) {
	if s.configs == nil {
		return nil, decide.ErrConfigMissing
	}
	return s.configs.ActiveConfig()
}

func (dryStore) SaveProviderConfig(cfg decide.Config) error { return ErrReadOnly }

func (dryStore) RecordPlacement(p storage.Placement) error { return nil }
