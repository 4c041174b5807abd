package decide

import (
	"context"
	"errors"

	"github.com/lotas/tabgenius/internal/applog"
	"github.com/lotas/tabgenius/internal/metrics"
	"github.com/lotas/tabgenius/internal/registry"
	"github.com/lotas/tabgenius/internal/types"
)

// categorize sends the batch through send and parses the reply.
func categorize(ctx context.Context, kind Kind, tabs []TabSummary, send func(context.Context, string) (string, error)) (Categories, error) {
	payload, err := tabsJSON(tabs)
	if err != nil {
		return nil, err
	}
	raw, err := send(ctx, payload)
	if err != nil {
		return nil, err
	}
	cats, err := ParseCategories(raw, len(tabs))
	if err != nil {
		applog.Error("decide.categorize.parse", err, "provider", kind)
		return nil, err
	}
	applog.Info("decide.categorize", "provider", kind, "tabs", len(tabs), "categories", len(cats))
	return cats, nil
}

// decidePlacement sends the decision context through send and resolves the
// reply against reg. Every failure is logged and becomes PlaceNone.
func decidePlacement(ctx context.Context, kind Kind, tab TabSummary, reg *registry.Registry, pal *types.Palette, send func(context.Context, string) (string, error)) Placement {
	if tab.Title == "" {
		return Placement{}
	}
	payload, err := contextJSON(tab, reg)
	if err != nil {
		applog.Error("decide.placement", err, "provider", kind)
		return Placement{}
	}
	raw, err := send(ctx, payload)
	if err != nil {
		applog.Error("decide.placement", err, "provider", kind)
		return Placement{}
	}
	d, err := ParseDecision(raw)
	if err != nil {
		if errors.Is(err, ErrDecisionParse) {
			metrics.DecisionParseErrors.WithLabelValues(string(kind)).Inc()
		}
		applog.Error("decide.placement.parse", err, "provider", kind)
		return Placement{}
	}
	p := Resolve(d, reg, pal)
	applog.Info("decide.placement", "provider", kind, "action", d.Action, "name", d.Name, "resolved", p.Kind, "title", p.Title)
	return p
}
