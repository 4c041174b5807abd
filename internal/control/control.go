// Package control dispatches requests and events from the extension to the
// engine and the watcher, and sends replies.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/lotas/tabgenius/internal/applog"
	"github.com/lotas/tabgenius/internal/decide"
	"github.com/lotas/tabgenius/internal/engine"
	"github.com/lotas/tabgenius/internal/server"
	"github.com/lotas/tabgenius/internal/storage"
	"github.com/lotas/tabgenius/internal/types"
	"github.com/lotas/tabgenius/internal/watcher"
)

// ErrBadRequest means a request was missing fields or malformed.
var ErrBadRequest = errors.New("bad request")

// Bridge is the extension connection.
type Bridge interface {
	Messages() <-chan server.IncomingMsg
	Reply(id string, err error, groups []server.GroupPayload) error
}

// Engine runs the user-triggered workflows.
type Engine interface {
	GroupByDomain(ctx context.Context, tabs []types.Tab) (*engine.BulkResult, error)
	GroupByAI(ctx context.Context, tabs []types.Tab) (*engine.BulkResult, error)
	CancelAll(ctx context.Context) error
	SetProviderConfig(ctx context.Context, cfg decide.Config) error
}

// Settings stores preferences written by the settings page.
type Settings interface {
	SetPreference(key, value string) error
}

// Watcher receives tab navigation events.
type Watcher interface {
	Dispatch(ctx context.Context, u watcher.TabUpdate)
}

// Dispatcher routes extension messages.
type Dispatcher struct {
	bridge   Bridge
	engine   Engine
	settings Settings
	watcher  Watcher
	wg       sync.WaitGroup
}

// New returns a dispatcher.
func New(bridge Bridge, eng Engine, settings Settings, w Watcher) *Dispatcher {
	return &Dispatcher{bridge: bridge, engine: eng, settings: settings, watcher: w}
}

// Run handles messages until ctx is cancelled. Each request runs on its own
// goroutine. Run waits for in-flight requests before returning.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.wg.Wait()
	msgs := d.bridge.Messages()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			if msg.Type == server.TypeTabUpdated {
				d.Handle(ctx, msg)
				continue
			}
			d.wg.Add(1)
			go func() {
				defer d.wg.Done()
				d.Handle(ctx, msg)
			}()
		}
	}
}

// Handle processes one message. Requests are answered through the bridge;
// tab events are passed to the watcher.
func (d *Dispatcher) Handle(ctx context.Context, msg server.IncomingMsg) {
	switch msg.Type {
	case server.TypeTabUpdated:
		d.tabUpdated(ctx, msg)
		return
	case server.TypeGroupByDomain, server.TypeGroupByAI:
		groups, err := d.bulk(ctx, msg)
		d.reply(msg, err, groups)
	case server.TypeCancelGroup:
		d.reply(msg, d.engine.CancelAll(ctx), nil)
	case server.TypeSetAPIKey:
		d.reply(msg, d.setAPIKey(ctx, msg), nil)
	case server.TypeSetSettings:
		d.reply(msg, d.setSettings(msg), nil)
	default:
		applog.Info("control.unknown", "type", msg.Type)
		d.reply(msg, fmt.Errorf("%w: unknown type %q", ErrBadRequest, msg.Type), nil)
	}
}

func (d *Dispatcher) reply(msg server.IncomingMsg, err error, groups []server.GroupPayload) {
	if err != nil {
		applog.Error("control."+msg.Type, err, "id", msg.ID)
	} else {
		applog.Info("control."+msg.Type, "id", msg.ID, "groups", len(groups))
	}
	if msg.ID == "" {
		return
	}
	if rerr := d.bridge.Reply(msg.ID, err, groups); rerr != nil {
		applog.Error("control.reply", rerr, "id", msg.ID)
	}
}

func (d *Dispatcher) bulk(ctx context.Context, msg server.IncomingMsg) ([]server.GroupPayload, error) {
	if len(msg.Tabs) == 0 {
		return nil, fmt.Errorf("%w: tabs required", ErrBadRequest)
	}
	tabs, err := server.ParseTabs(msg.Tabs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	var res *engine.BulkResult
	if msg.Type == server.TypeGroupByAI {
		res, err = d.engine.GroupByAI(ctx, tabs)
	} else {
		res, err = d.engine.GroupByDomain(ctx, tabs)
	}
	if res == nil {
		return nil, err
	}

	groups := make([]server.GroupPayload, 0, len(res.Groups))
	for _, g := range res.Groups {
		groups = append(groups, server.GroupPayload{
			ID:       g.ID,
			Title:    g.Title,
			Color:    string(g.Color),
			WindowID: g.WindowID,
			TabIDs:   g.TabIDs,
		})
	}
	return groups, err
}

func (d *Dispatcher) setAPIKey(ctx context.Context, msg server.IncomingMsg) error {
	cfg, err := ParseProviderConfig(msg.Provider, msg.Config)
	if err != nil {
		return err
	}
	return d.engine.SetProviderConfig(ctx, cfg)
}

// ParseProviderConfig decodes a provider config sent by the settings page.
// The provider is always named explicitly. SiliconFlow configs may carry the
// model as "modelId".
func ParseProviderConfig(provider string, raw json.RawMessage) (decide.Config, error) {
	kind, err := decide.ParseKind(provider)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: config required", ErrBadRequest)
	}
	cfg, err := decide.UnmarshalConfig(kind, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if sf, ok := cfg.(decide.SiliconConfig); ok && sf.Model == "" {
		var alias struct {
			ModelID string `json:"modelId"`
		}
		if json.Unmarshal(raw, &alias) == nil {
			sf.Model = alias.ModelID
		}
		cfg = sf
	}
	return cfg, nil
}

func (d *Dispatcher) setSettings(msg server.IncomingMsg) error {
	updates := []struct{ key, value string }{
		{storage.KeyProvider, msg.Provider},
		{storage.KeyGrouping, msg.Grouping},
		{storage.KeyAutoGroup, msg.AutoGroup},
		{storage.KeySortOrder, msg.SortOrder},
	}
	n := 0
	for _, u := range updates {
		if u.value == "" {
			continue
		}
		if err := d.settings.SetPreference(u.key, u.value); err != nil {
			return err
		}
		n++
	}
	if n == 0 {
		return fmt.Errorf("%w: no settings given", ErrBadRequest)
	}
	return nil
}

func (d *Dispatcher) tabUpdated(ctx context.Context, msg server.IncomingMsg) {
	if msg.ChangeInfo == nil || msg.ChangeInfo.URL == "" {
		return
	}
	u := watcher.TabUpdate{TabID: msg.TabID, URL: msg.ChangeInfo.URL}
	if len(msg.Tab) > 0 {
		tab, err := server.ParseTab(msg.Tab)
		if err != nil {
			applog.Error("control.tabUpdated", err, "tab", msg.TabID)
		} else {
			u.Tab = *tab
		}
	}
	d.watcher.Dispatch(ctx, u)
}
