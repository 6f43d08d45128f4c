package watch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/beanjamin25/beanbot/telemetry"
	"github.com/beanjamin25/beanbot/twitchapi"
)

// Liveness polls stream metadata and fires edge-triggered callbacks
// when the channel transitions between live and offline. Repeated
// polls in the same state do not re-fire, and a failed probe keeps
// the last known state.
type Liveness struct {
	Channel  string
	Interval time.Duration
	Probe    func(ctx context.Context) (*twitchapi.StreamInfo, error)

	// OnLive receives the stream info of the freshly started stream.
	OnLive func(ctx context.Context, info *twitchapi.StreamInfo)
	// OnOffline fires once when the stream ends.
	OnOffline func(ctx context.Context)

	live atomic.Bool
}

// Live reports the last observed liveness state.
func (l *Liveness) Live() bool { return l.live.Load() }

func (l *Liveness) poll(ctx context.Context) {
	telemetry.PollCycles.Inc()
	info, err := l.Probe(ctx)
	if err != nil {
		telemetry.PollFailures.Inc()
		slog.Warn("liveness probe failed", "channel", l.Channel, "error", err)
		return
	}
	isLive := info != nil
	was := l.live.Swap(isLive)
	if isLive == was {
		return
	}
	telemetry.SetStreamLive(isLive)
	if isLive {
		slog.Info("stream went live", "channel", l.Channel, "title", info.Title, "started_at", info.StartedAt)
		if l.OnLive != nil {
			l.OnLive(ctx, info)
		}
	} else {
		slog.Info("stream ended", "channel", l.Channel)
		if l.OnOffline != nil {
			l.OnOffline(ctx)
		}
	}
}

// Run polls until ctx is cancelled.
func (l *Liveness) Run(ctx context.Context) {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.poll(ctx)
		}
	}
}
