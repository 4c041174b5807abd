// Package watcher reacts to tab navigation events and hands loaded tabs to
// the engine for automatic placement.
package watcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lotas/tabgenius/internal/applog"
	"github.com/lotas/tabgenius/internal/engine"
	"github.com/lotas/tabgenius/internal/types"
)

// DefaultPollInterval is how often WaitForLoad re-reads a loading tab.
const DefaultPollInterval = 100 * time.Millisecond

// TabGetter looks up a tab by id.
type TabGetter interface {
	GetTab(ctx context.Context, id int) (*types.Tab, error)
}

// Placer places one loaded tab.
type Placer interface {
	AutoPlace(ctx context.Context, tab types.Tab) engine.Outcome
}

// TabUpdate is a tab-updated event. URL is the changed URL and is empty when
// the update did not change it.
type TabUpdate struct {
	TabID int
	URL   string
	Tab   types.Tab
}

// Watcher runs placements for navigation events. Placements in the same
// window run one at a time so that two tabs proposing the same new group
// cannot both create it.
type Watcher struct {
	host     TabGetter
	placer   Placer
	interval time.Duration

	mu      sync.Mutex
	windows map[int]*windowLock

	outcomes chan engine.Outcome
	wg       sync.WaitGroup
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPollInterval sets the load polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// New returns a watcher.
func New(host TabGetter, placer Placer, opts ...Option) *Watcher {
	w := &Watcher{
		host:     host,
		placer:   placer,
		interval: DefaultPollInterval,
		windows:  make(map[int]*windowLock),
		outcomes: make(chan engine.Outcome, 64),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Outcomes returns the channel placement outcomes are published on.
func (w *Watcher) Outcomes() <-chan engine.Outcome {
	return w.outcomes
}

// Dispatch handles u on its own goroutine.
func (w *Watcher) Dispatch(ctx context.Context, u TabUpdate) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.HandleUpdate(ctx, u)
	}()
}

// Wait blocks until all dispatched updates are done.
func (w *Watcher) Wait() {
	w.wg.Wait()
}

// HandleUpdate waits for the tab to load and places it. Updates without a
// URL change are ignored.
func (w *Watcher) HandleUpdate(ctx context.Context, u TabUpdate) {
	if u.URL == "" {
		return
	}
	id := u.TabID
	if id == 0 {
		id = u.Tab.ID
	}
	if id == 0 {
		return
	}
	applog.Info("watcher.navigated", "tab", id, "url", u.URL)

	tab := WaitForLoad(ctx, w.host, id, w.interval)
	if tab == nil {
		w.publish(engine.Outcome{TabID: id, Kind: engine.OutcomeSkipped, Reason: engine.SkipGone})
		return
	}

	if err := w.lock(ctx, tab.WindowID); err != nil {
		return
	}
	defer w.unlock(tab.WindowID)

	w.publish(w.placer.AutoPlace(ctx, *tab))
}

// windowLock serializes placements in one window. refs counts goroutines
// holding or waiting on sem; the entry is dropped when it reaches zero.
type windowLock struct {
	sem  *semaphore.Weighted
	refs int
}

func (w *Watcher) lock(ctx context.Context, windowID int) error {
	w.mu.Lock()
	l, ok := w.windows[windowID]
	if !ok {
		l = &windowLock{sem: semaphore.NewWeighted(1)}
		w.windows[windowID] = l
	}
	l.refs++
	w.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		w.release(windowID, l)
		return err
	}
	return nil
}

func (w *Watcher) unlock(windowID int) {
	w.mu.Lock()
	l := w.windows[windowID]
	w.mu.Unlock()
	l.sem.Release(1)
	w.release(windowID, l)
}

func (w *Watcher) release(windowID int, l *windowLock) {
	w.mu.Lock()
	defer w.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(w.windows, windowID)
	}
}

// lockedWindows returns the number of windows with a live lock entry.
func (w *Watcher) lockedWindows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.windows)
}

func (w *Watcher) publish(o engine.Outcome) {
	select {
	case w.outcomes <- o:
	default:
	}
}

// WaitForLoad polls the tab every interval until it reports complete. It
// returns nil if the tab can no longer be looked up or ctx ends first.
func WaitForLoad(ctx context.Context, host TabGetter, id int, interval time.Duration) *types.Tab {
	if id == 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		tab, err := host.GetTab(ctx, id)
		if err != nil {
			applog.Error("watcher.wait", err, "tab", id)
			return nil
		}
		if tab.Status == types.StatusComplete {
			return tab
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
