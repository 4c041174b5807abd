package control

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lotas/tabgenius/internal/decide"
	"github.com/lotas/tabgenius/internal/engine"
	"github.com/lotas/tabgenius/internal/server"
	"github.com/lotas/tabgenius/internal/types"
	"github.com/lotas/tabgenius/internal/watcher"
)

type reply struct {
	id     string
	err    error
	groups []server.GroupPayload
}

type fakeBridge struct {
	msgs    chan server.IncomingMsg
	mu      sync.Mutex
	replies []reply
	got     chan reply
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{msgs: make(chan server.IncomingMsg, 8), got: make(chan reply, 8)}
}

func (b *fakeBridge) Messages() <-chan server.IncomingMsg { return b.msgs }

func (b *fakeBridge) Reply(id string, err error, groups []server.GroupPayload) error {
	r := reply{id: id, err: err, groups: groups}
	b.mu.Lock()
	b.replies = append(b.replies, r)
	b.mu.Unlock()
	b.got <- r
	return nil
}

func (b *fakeBridge) last(t *testing.T) reply {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	require.NotEmpty(t, b.replies)
	return b.replies[len(b.replies)-1]
}

type fakeEngine struct {
	tabs     []types.Tab
	result   *engine.BulkResult
	err      error
	mode     string
	cancels  int
	cfg      decide.Config
	cfgError error
}

func (e *fakeEngine) GroupByDomain(ctx context.Context, tabs []types.Tab) (*engine.BulkResult, error) {
	e.mode, e.tabs = "domain", tabs
	return e.result, e.err
}

func (e *fakeEngine) GroupByAI(ctx context.Context, tabs []types.Tab) (*engine.BulkResult, error) {
	e.mode, e.tabs = "ai", tabs
	return e.result, e.err
}

func (e *fakeEngine) CancelAll(ctx context.Context) error {
	e.cancels++
	return e.err
}

func (e *fakeEngine) SetProviderConfig(ctx context.Context, cfg decide.Config) error {
	e.cfg = cfg
	return e.cfgError
}

type fakeSettings struct{ set map[string]string }

func (s *fakeSettings) SetPreference(key, value string) error {
	if value == "bogus" {
		return errors.New("invalid setting")
	}
	s.set[key] = value
	return nil
}

type fakeWatcher struct{ updates []watcher.TabUpdate }

func (w *fakeWatcher) Dispatch(ctx context.Context, u watcher.TabUpdate) {
	w.updates = append(w.updates, u)
}

func setup() (*Dispatcher, *fakeBridge, *fakeEngine, *fakeSettings, *fakeWatcher) {
	b := newFakeBridge()
	e := &fakeEngine{}
	s := &fakeSettings{set: map[string]string{}}
	w := &fakeWatcher{}
	return New(b, e, s, w), b, e, s, w
}

func msg(t *testing.T, raw string) server.IncomingMsg {
	t.Helper()
	var m server.IncomingMsg
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	return m
}

func TestGroupByDomainReply(t *testing.T) {
	d, b, e, _, _ := setup()
	e.result = &engine.BulkResult{Groups: []engine.CreatedGroup{
		{ID: 100, Title: "go.dev", Color: types.Grey, WindowID: 1, TabIDs: []int{1, 2}},
	}}

	d.Handle(context.Background(), msg(t, `{"type":"groupByDomain","id":"r1","tabs":[{"id":1,"url":"https://go.dev"},{"id":2,"url":"https://go.dev/doc"}]}`))

	assert.Equal(t, "domain", e.mode)
	assert.Len(t, e.tabs, 2)
	r := b.last(t)
	assert.Equal(t, "r1", r.id)
	assert.NoError(t, r.err)
	assert.Equal(t, []server.GroupPayload{{ID: 100, Title: "go.dev", Color: "grey", WindowID: 1, TabIDs: []int{1, 2}}}, r.groups)
}

func TestGroupByAIFailureReply(t *testing.T) {
	d, b, e, _, _ := setup()
	e.err = decide.ErrNoCategories

	d.Handle(context.Background(), msg(t, `{"type":"groupByAI","id":"r2","tabs":[{"id":1}]}`))

	assert.Equal(t, "ai", e.mode)
	assert.ErrorIs(t, b.last(t).err, decide.ErrNoCategories)
}

func TestBulkWithoutTabs(t *testing.T) {
	d, b, e, _, _ := setup()
	d.Handle(context.Background(), msg(t, `{"type":"groupByDomain","id":"r3"}`))
	assert.ErrorIs(t, b.last(t).err, ErrBadRequest)
	assert.Empty(t, e.mode)
}

func TestCancelGroup(t *testing.T) {
	d, b, e, _, _ := setup()
	d.Handle(context.Background(), msg(t, `{"type":"cancelGroup","id":"r4"}`))
	assert.Equal(t, 1, e.cancels)
	assert.NoError(t, b.last(t).err)
}

func TestSetAPIKey(t *testing.T) {
	d, b, e, _, _ := setup()
	d.Handle(context.Background(), msg(t, `{"type":"setApiKey","id":"r5","provider":"siliconflow","config":{"apiKey":"sk","modelId":"Qwen/Qwen2"}}`))

	require.NoError(t, b.last(t).err)
	assert.Equal(t, decide.SiliconConfig{APIKey: "sk", Model: "Qwen/Qwen2"}, e.cfg)
}

func TestSetAPIKeyNeedsProvider(t *testing.T) {
	d, b, e, _, _ := setup()
	// A config shaped like Azure's is not enough; the provider must be named.
	d.Handle(context.Background(), msg(t, `{"type":"setApiKey","id":"r6","config":{"apiKey":"k","endpoint":"https://e","deploymentName":"d"}}`))

	assert.ErrorIs(t, b.last(t).err, ErrBadRequest)
	assert.Nil(t, e.cfg)
}

func TestSetAPIKeyValidationFailure(t *testing.T) {
	d, b, e, _, _ := setup()
	e.cfgError = errors.New("API test failed: 401")
	d.Handle(context.Background(), msg(t, `{"type":"setApiKey","id":"r7","provider":"azure-openai","config":{"apiKey":"k","endpoint":"https://e","deploymentName":"d"}}`))

	assert.EqualError(t, b.last(t).err, "API test failed: 401")
}

func TestSetSettings(t *testing.T) {
	d, b, _, s, _ := setup()
	d.Handle(context.Background(), msg(t, `{"type":"setSettings","id":"r8","grouping":"domain","autoGroup":"always"}`))

	require.NoError(t, b.last(t).err)
	assert.Equal(t, map[string]string{"grouping": "domain", "autoGroup": "always"}, s.set)

	d.Handle(context.Background(), msg(t, `{"type":"setSettings","id":"r9"}`))
	assert.ErrorIs(t, b.last(t).err, ErrBadRequest)

	d.Handle(context.Background(), msg(t, `{"type":"setSettings","id":"r10","sortOrder":"bogus"}`))
	assert.Error(t, b.last(t).err)
}

func TestTabUpdated(t *testing.T) {
	d, b, _, _, w := setup()

	d.Handle(context.Background(), msg(t, `{"type":"tabUpdated","tabId":3,"changeInfo":{"status":"loading"}}`))
	assert.Empty(t, w.updates)

	d.Handle(context.Background(), msg(t, `{"type":"tabUpdated","tabId":3,"changeInfo":{"url":"https://go.dev"},"tab":{"id":3,"windowId":2,"incognito":true}}`))
	require.Len(t, w.updates, 1)
	assert.Equal(t, 3, w.updates[0].TabID)
	assert.Equal(t, "https://go.dev", w.updates[0].URL)
	assert.Equal(t, 2, w.updates[0].Tab.WindowID)
	assert.True(t, w.updates[0].Tab.Incognito)

	assert.Empty(t, b.replies)
}

func TestUnknownType(t *testing.T) {
	d, b, _, _, _ := setup()
	d.Handle(context.Background(), msg(t, `{"type":"snapshot","id":"r11"}`))
	assert.ErrorIs(t, b.last(t).err, ErrBadRequest)
}

func TestRun(t *testing.T) {
	d, b, e, _, _ := setup()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	b.msgs <- msg(t, `{"type":"cancelGroup","id":"r12"}`)
	select {
	case r := <-b.got:
		assert.Equal(t, "r12", r.id)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}
	assert.Equal(t, 1, e.cancels)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
