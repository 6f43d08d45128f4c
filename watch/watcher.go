// Package watch contains the periodic pollers: stream liveness, new
// clips, and viewer watchtime. Each poller is a ticker loop that exits
// on context cancellation.
package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/beanjamin25/beanbot/telemetry"
)

// Watcher polls a remote collection on an interval and fires OnNew for
// every item that was absent from the previous snapshot. A failed
// fetch keeps the previous snapshot so items are not re-announced when
// the remote recovers. Until Prime establishes a baseline the watcher
// idles.
type Watcher[T any] struct {
	Name     string
	Interval time.Duration
	Fetch    func(ctx context.Context) ([]T, error)
	Key      func(T) string
	OnNew    func(ctx context.Context, item T)

	mu   sync.Mutex
	seen map[string]bool
}

// SetFetch swaps the fetch function, used when the query parameters
// change between streams.
func (w *Watcher[T]) SetFetch(fetch func(ctx context.Context) ([]T, error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Fetch = fetch
}

func (w *Watcher[T]) fetch() func(ctx context.Context) ([]T, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Fetch
}

// Prime establishes the baseline snapshot without firing OnNew, so
// items that already exist when watching starts are not announced.
func (w *Watcher[T]) Prime(ctx context.Context) error {
	items, err := w.fetch()(ctx)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = make(map[string]bool, len(items))
	for _, item := range items {
		w.seen[w.Key(item)] = true
	}
	return nil
}

// PrimeEmpty establishes an empty baseline, announcing everything the
// next poll returns.
func (w *Watcher[T]) PrimeEmpty() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = make(map[string]bool)
}

// MarkSeen adds a key to the baseline so a later poll won't announce it.
func (w *Watcher[T]) MarkSeen(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen == nil {
		w.seen = make(map[string]bool)
	}
	w.seen[key] = true
}

// Reset drops the baseline. The watcher idles until the next Prime.
func (w *Watcher[T]) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen = nil
}

func (w *Watcher[T]) primed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen != nil
}

// markNew records key in the baseline, reporting whether it was new.
// False when the baseline was dropped mid-poll.
func (w *Watcher[T]) markNew(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen == nil || w.seen[key] {
		return false
	}
	w.seen[key] = true
	return true
}

func (w *Watcher[T]) poll(ctx context.Context) {
	if !w.primed() {
		return
	}
	telemetry.PollCycles.Inc()
	items, err := w.fetch()(ctx)
	if err != nil {
		telemetry.PollFailures.Inc()
		slog.Warn("poll failed", "watcher", w.Name, "error", err)
		return
	}
	for _, item := range items {
		if w.markNew(w.Key(item)) {
			w.OnNew(ctx, item)
		}
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}
