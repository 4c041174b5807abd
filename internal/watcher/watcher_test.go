package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lotas/tabgenius/internal/engine"
	"github.com/lotas/tabgenius/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// loadingHost reports a tab as loading for a number of lookups.
type loadingHost struct {
	mu      sync.Mutex
	tabs    map[int]types.Tab
	loading map[int]int // remaining loading polls
	gone    map[int]int // lookups after which the tab disappears
	calls   int
}

func newLoadingHost() *loadingHost {
	return &loadingHost{
		tabs:    make(map[int]types.Tab),
		loading: make(map[int]int),
		gone:    make(map[int]int),
	}
}

func (h *loadingHost) GetTab(ctx context.Context, id int) (*types.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	t, ok := h.tabs[id]
	if !ok {
		return nil, errors.New("no tab")
	}
	if n, ok := h.gone[id]; ok {
		if n == 0 {
			delete(h.tabs, id)
			return nil, errors.New("no tab")
		}
		h.gone[id] = n - 1
	}
	if h.loading[id] > 0 {
		h.loading[id]--
		t.Status = types.StatusLoading
	} else {
		t.Status = types.StatusComplete
	}
	return &t, nil
}

// recordingPlacer records placed tabs.
type recordingPlacer struct {
	mu     sync.Mutex
	placed []types.Tab
}

func (p *recordingPlacer) AutoPlace(ctx context.Context, tab types.Tab) engine.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, tab)
	return engine.Outcome{TabID: tab.ID, Kind: engine.OutcomeCreated}
}

func TestWaitForLoad(t *testing.T) {
	h := newLoadingHost()
	h.tabs[1] = types.Tab{ID: 1, URL: "https://a.com"}
	h.loading[1] = 3

	tab := WaitForLoad(context.Background(), h, 1, time.Millisecond)
	require.NotNil(t, tab)
	assert.Equal(t, types.StatusComplete, tab.Status)
	assert.Equal(t, 4, h.calls)
}

func TestWaitForLoadTabClosed(t *testing.T) {
	h := newLoadingHost()
	h.tabs[1] = types.Tab{ID: 1}
	h.loading[1] = 100
	h.gone[1] = 2

	assert.Nil(t, WaitForLoad(context.Background(), h, 1, time.Millisecond))
}

func TestWaitForLoadCancelled(t *testing.T) {
	h := newLoadingHost()
	h.tabs[1] = types.Tab{ID: 1}
	h.loading[1] = 1 << 30

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Nil(t, WaitForLoad(ctx, h, 1, time.Millisecond))
}

func TestHandleUpdateIgnoresNonURLChanges(t *testing.T) {
	h := newLoadingHost()
	h.tabs[1] = types.Tab{ID: 1, URL: "https://a.com"}
	p := &recordingPlacer{}
	w := New(h, p, WithPollInterval(time.Millisecond))

	w.HandleUpdate(context.Background(), TabUpdate{TabID: 1})
	assert.Empty(t, p.placed)
	assert.Zero(t, h.calls)
}

func TestHandleUpdatePlacesLoadedTab(t *testing.T) {
	h := newLoadingHost()
	h.tabs[1] = types.Tab{ID: 1, WindowID: 1, URL: "https://a.com/next", Title: "Next"}
	h.loading[1] = 2
	p := &recordingPlacer{}
	w := New(h, p, WithPollInterval(time.Millisecond))

	w.HandleUpdate(context.Background(), TabUpdate{TabID: 1, URL: "https://a.com/next"})
	require.Len(t, p.placed, 1)
	assert.Equal(t, "Next", p.placed[0].Title)
	assert.Equal(t, types.StatusComplete, p.placed[0].Status)

	out := <-w.Outcomes()
	assert.Equal(t, engine.OutcomeCreated, out.Kind)
}

func TestHandleUpdateTabClosedMidWait(t *testing.T) {
	h := newLoadingHost()
	h.tabs[1] = types.Tab{ID: 1, WindowID: 1}
	h.loading[1] = 100
	h.gone[1] = 1
	p := &recordingPlacer{}
	w := New(h, p, WithPollInterval(time.Millisecond))

	w.HandleUpdate(context.Background(), TabUpdate{TabID: 1, URL: "https://a.com"})
	assert.Empty(t, p.placed)

	out := <-w.Outcomes()
	assert.Equal(t, engine.OutcomeSkipped, out.Kind)
	assert.Equal(t, engine.SkipGone, out.Reason)
}

// racyPlacer creates a group if none with the title exists, with a pause
// between the check and the creation.
type racyPlacer struct {
	mu      sync.Mutex
	created map[string]int
}

func (p *racyPlacer) AutoPlace(ctx context.Context, tab types.Tab) engine.Outcome {
	p.mu.Lock()
	_, exists := p.created[tab.Title]
	p.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	if exists {
		return engine.Outcome{TabID: tab.ID, Kind: engine.OutcomeJoined, Title: tab.Title}
	}
	p.created[tab.Title]++
	return engine.Outcome{TabID: tab.ID, Kind: engine.OutcomeCreated, Title: tab.Title}
}

func TestConcurrentPlacementsInOneWindow(t *testing.T) {
	h := newLoadingHost()
	h.tabs[1] = types.Tab{ID: 1, WindowID: 1, Title: "News"}
	h.tabs[2] = types.Tab{ID: 2, WindowID: 1, Title: "News"}
	p := &racyPlacer{created: make(map[string]int)}
	w := New(h, p, WithPollInterval(time.Millisecond))

	ctx := context.Background()
	w.Dispatch(ctx, TabUpdate{TabID: 1, URL: "https://bbc.co.uk"})
	w.Dispatch(ctx, TabUpdate{TabID: 2, URL: "https://cnn.com"})
	w.Wait()

	assert.Equal(t, 1, p.created["News"])

	kinds := map[engine.OutcomeKind]int{}
	for i := 0; i < 2; i++ {
		kinds[(<-w.Outcomes()).Kind]++
	}
	assert.Equal(t, map[engine.OutcomeKind]int{engine.OutcomeCreated: 1, engine.OutcomeJoined: 1}, kinds)
}

// blockingPlacer holds every placement until released.
type blockingPlacer struct {
	entered chan int
	release chan struct{}
}

func (p *blockingPlacer) AutoPlace(ctx context.Context, tab types.Tab) engine.Outcome {
	p.entered <- tab.WindowID
	<-p.release
	return engine.Outcome{TabID: tab.ID, Kind: engine.OutcomeSkipped}
}

func TestPlacementsInDifferentWindowsRunConcurrently(t *testing.T) {
	h := newLoadingHost()
	h.tabs[1] = types.Tab{ID: 1, WindowID: 1}
	h.tabs[2] = types.Tab{ID: 2, WindowID: 2}
	p := &blockingPlacer{entered: make(chan int, 2), release: make(chan struct{})}
	w := New(h, p, WithPollInterval(time.Millisecond))

	ctx := context.Background()
	w.Dispatch(ctx, TabUpdate{TabID: 1, URL: "https://a.com"})
	w.Dispatch(ctx, TabUpdate{TabID: 2, URL: "https://b.com"})

	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case wid := <-p.entered:
			seen[wid] = true
		case <-time.After(2 * time.Second):
			t.Fatal("placements in different windows did not run concurrently")
		}
	}
	close(p.release)
	w.Wait()
	assert.Equal(t, map[int]bool{1: true, 2: true}, seen)
}

func (w *Watcher) windowRefs(windowID int) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if l, ok := w.windows[windowID]; ok {
		return l.refs
	}
	return 0
}

func TestWindowLocksReleased(t *testing.T) {
	h := newLoadingHost()
	h.tabs[1] = types.Tab{ID: 1, WindowID: 1}
	h.tabs[2] = types.Tab{ID: 2, WindowID: 1}
	h.tabs[3] = types.Tab{ID: 3, WindowID: 2}
	p := &blockingPlacer{entered: make(chan int, 3), release: make(chan struct{})}
	w := New(h, p, WithPollInterval(time.Millisecond))

	ctx := context.Background()
	w.Dispatch(ctx, TabUpdate{TabID: 1, URL: "https://a.com"})
	<-p.entered

	waiting, cancel := context.WithCancel(ctx)
	w.Dispatch(waiting, TabUpdate{TabID: 2, URL: "https://b.com"})
	require.Eventually(t, func() bool { return w.windowRefs(1) == 2 }, 2*time.Second, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return w.windowRefs(1) == 1 }, 2*time.Second, time.Millisecond)

	w.Dispatch(ctx, TabUpdate{TabID: 3, URL: "https://c.com"})
	assert.Equal(t, 2, <-p.entered)
	assert.Equal(t, 2, w.lockedWindows())

	close(p.release)
	w.Wait()
	assert.Equal(t, 0, w.lockedWindows())
	assert.Empty(t, p.entered)
}
