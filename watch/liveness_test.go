package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beanjamin25/beanbot/twitchapi"
)

func TestLivenessEdgeTriggered(t *testing.T) {
	states := []bool{false, true, true, true, false, false}
	i := 0
	var wentLive, wentOffline int

	l := &Liveness{
		Channel: "somechannel",
		Probe: func(ctx context.Context) (*twitchapi.StreamInfo, error) {
			live := states[i]
			i++
			if !live {
				return nil, nil
			}
			return &twitchapi.StreamInfo{StartedAt: time.Now()}, nil
		},
		OnLive:    func(context.Context, *twitchapi.StreamInfo) { wentLive++ },
		OnOffline: func(context.Context) { wentOffline++ },
	}

	ctx := context.Background()
	for range states {
		l.poll(ctx)
	}
	if wentLive != 1 || wentOffline != 1 {
		t.Errorf("wentLive = %d, wentOffline = %d, want 1 and 1", wentLive, wentOffline)
	}
	if l.Live() {
		t.Error("Live() = true after final offline poll")
	}
}

func TestLivenessProbeFailureKeepsState(t *testing.T) {
	calls := 0
	var wentOffline int
	l := &Liveness{
		Channel: "somechannel",
		Probe: func(ctx context.Context) (*twitchapi.StreamInfo, error) {
			calls++
			if calls == 2 {
				return nil, errors.New("api down")
			}
			return &twitchapi.StreamInfo{}, nil
		},
		OnOffline: func(context.Context) { wentOffline++ },
	}

	ctx := context.Background()
	l.poll(ctx) // live
	l.poll(ctx) // probe fails
	if !l.Live() {
		t.Error("probe failure flipped liveness")
	}
	if wentOffline != 0 {
		t.Errorf("wentOffline = %d, want 0", wentOffline)
	}
}
