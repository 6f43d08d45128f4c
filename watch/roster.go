package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beanjamin25/beanbot/ledger"
	"github.com/beanjamin25/beanbot/telemetry"
)

// watchtimeLedger is the document name accumulated watchtimes persist
// under.
const watchtimeLedger = "watchtime"

// Roster polls the channel's chatter list and accumulates watchtime
// per viewer. Totals are written through to the ledger store only
// while the stream is live, so idle offline chat does not churn the
// document.
type Roster struct {
	Interval time.Duration
	Fetch    func(ctx context.Context) ([]string, error)
	Live     func() bool

	store ledger.Store

	mu         sync.Mutex
	totals     map[string]float64 // seconds
	current    []string
	thisStream map[string]bool
	lastTick   time.Time
	now        func() time.Time
}

// NewRoster loads persisted watchtimes, starting empty when no
// document exists yet.
func NewRoster(ctx context.Context, store ledger.Store, interval time.Duration, fetch func(ctx context.Context) ([]string, error), live func() bool) (*Roster, error) {
	r := &Roster{
		Interval:   interval,
		Fetch:      fetch,
		Live:       live,
		store:      store,
		totals:     make(map[string]float64),
		thisStream: make(map[string]bool),
		now:        time.Now,
	}
	err := store.Load(ctx, watchtimeLedger, &r.totals)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("load watchtime: %w", err)
	}
	return r, nil
}

// Watchtime returns the viewer's accumulated watchtime.
func (r *Roster) Watchtime(user string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.totals[user] * float64(time.Second))
}

// Current returns the viewers present at the last poll.
func (r *Roster) Current() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.current))
	copy(out, r.current)
	return out
}

// ThisStream returns every viewer seen since the process started.
func (r *Roster) ThisStream() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.thisStream))
	for v := range r.thisStream {
		out = append(out, v)
	}
	return out
}

func (r *Roster) poll(ctx context.Context) {
	telemetry.PollCycles.Inc()

	// advance the clock before fetching so a failed poll's window is
	// not credited to anyone once the fetch recovers
	r.mu.Lock()
	now := r.now()
	delta := now.Sub(r.lastTick).Seconds()
	if r.lastTick.IsZero() {
		delta = 0
	}
	r.lastTick = now
	r.mu.Unlock()

	viewers, err := r.Fetch(ctx)
	if err != nil {
		telemetry.PollFailures.Inc()
		slog.Warn("roster poll failed", "error", err)
		return
	}

	r.mu.Lock()
	r.current = viewers
	for _, v := range viewers {
		r.totals[v] += delta
		r.thisStream[v] = true
	}
	live := r.Live == nil || r.Live()
	r.mu.Unlock()

	if live {
		if err := r.store.Save(ctx, watchtimeLedger, r.snapshot()); err != nil {
			slog.Error("persist watchtime", "error", err)
		}
	}
}

func (r *Roster) snapshot() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]float64, len(r.totals))
	for k, v := range r.totals {
		out[k] = v
	}
	return out
}

// Run polls until ctx is cancelled.
func (r *Roster) Run(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

// FormatDuration renders a duration the way chat replies expect it.
func FormatDuration(d time.Duration) string {
	total := int(d.Seconds())
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%d hours, %d minutes, and %d seconds", hours, minutes, seconds)
}
