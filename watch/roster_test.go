package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beanjamin25/beanbot/ledger"
)

func TestRosterAccumulatesWatchtime(t *testing.T) {
	ctx := context.Background()
	viewers := []string{"alice", "bob"}
	r, err := NewRoster(ctx, ledger.NewFileStore(t.TempDir()), time.Second,
		func(ctx context.Context) ([]string, error) { return viewers, nil },
		func() bool { return true })
	if err != nil {
		t.Fatal(err)
	}
	clock := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	r.poll(ctx) // first tick establishes the clock, no delta
	clock = clock.Add(5 * time.Second)
	r.poll(ctx)
	clock = clock.Add(5 * time.Second)
	viewers = []string{"alice"}
	r.poll(ctx)

	if got := r.Watchtime("alice"); got != 10*time.Second {
		t.Errorf("alice watchtime = %v, want 10s", got)
	}
	if got := r.Watchtime("bob"); got != 5*time.Second {
		t.Errorf("bob watchtime = %v, want 5s", got)
	}
	if got := r.Watchtime("stranger"); got != 0 {
		t.Errorf("stranger watchtime = %v, want 0", got)
	}
}

func TestRosterPersistsOnlyWhileLive(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	live := false
	r, err := NewRoster(ctx, ledger.NewFileStore(dir), time.Second,
		func(ctx context.Context) ([]string, error) { return []string{"alice"}, nil },
		func() bool { return live })
	if err != nil {
		t.Fatal(err)
	}
	clock := time.Now()
	r.now = func() time.Time { return clock }

	r.poll(ctx)
	clock = clock.Add(time.Second)
	r.poll(ctx)

	var totals map[string]float64
	err = ledger.NewFileStore(dir).Load(ctx, "watchtime", &totals)
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("offline polls persisted: err = %v, totals = %v", err, totals)
	}

	live = true
	clock = clock.Add(time.Second)
	r.poll(ctx)
	if err := ledger.NewFileStore(dir).Load(ctx, "watchtime", &totals); err != nil {
		t.Fatalf("live poll did not persist: %v", err)
	}
	if totals["alice"] != 2 {
		t.Errorf("persisted alice = %v, want 2", totals["alice"])
	}
}

func TestRosterFetchFailureKeepsTotals(t *testing.T) {
	ctx := context.Background()
	fail := false
	r, err := NewRoster(ctx, ledger.NewFileStore(t.TempDir()), time.Second,
		func(ctx context.Context) ([]string, error) {
			if fail {
				return nil, errors.New("chatters endpoint down")
			}
			return []string{"alice"}, nil
		},
		func() bool { return true })
	if err != nil {
		t.Fatal(err)
	}
	clock := time.Now()
	r.now = func() time.Time { return clock }

	r.poll(ctx)
	clock = clock.Add(time.Second)
	r.poll(ctx)

	fail = true
	clock = clock.Add(time.Hour)
	r.poll(ctx)

	// the hour the fetch was down is not credited to anyone, and the next
	// successful poll measures from the failed tick
	fail = false
	clock = clock.Add(time.Second)
	r.poll(ctx)

	got := r.Watchtime("alice")
	if got < time.Second || got > 5*time.Second {
		t.Errorf("alice watchtime = %v, want a few seconds", got)
	}
}

func TestFormatDuration(t *testing.T) {
	d := 2*time.Hour + 3*time.Minute + 4*time.Second
	if got := FormatDuration(d); got != "2 hours, 3 minutes, and 4 seconds" {
		t.Errorf("FormatDuration = %q", got)
	}
}
