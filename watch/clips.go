package watch

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/beanjamin25/beanbot/twitchapi"
)

// ClipLister is the slice of the platform API the clip watcher needs.
type ClipLister interface {
	GetClips(ctx context.Context, broadcasterID string, since time.Time) ([]twitchapi.Clip, error)
}

// ClipWatcher announces clips created during the current stream. It is
// primed with the clips that already exist when the stream starts, so
// only clips made after going live are announced. Clips the bot itself
// creates are skipped.
type ClipWatcher struct {
	BotName  string
	Announce func(url string)

	api           ClipLister
	broadcasterID string
	watcher       *Watcher[twitchapi.Clip]
}

// NewClipWatcher builds a watcher over the broadcaster's clips. It
// idles until StreamStarted establishes a baseline.
func NewClipWatcher(api ClipLister, broadcasterID, botName string, interval time.Duration, announce func(url string)) *ClipWatcher {
	cw := &ClipWatcher{
		BotName:       botName,
		Announce:      announce,
		api:           api,
		broadcasterID: broadcasterID,
	}
	cw.watcher = &Watcher[twitchapi.Clip]{
		Name:     "clips",
		Interval: interval,
		Key:      func(c twitchapi.Clip) string { return c.ID },
		OnNew:    cw.onNew,
	}
	return cw
}

func (cw *ClipWatcher) onNew(ctx context.Context, clip twitchapi.Clip) {
	if strings.EqualFold(clip.CreatorName, cw.BotName) {
		return
	}
	slog.Info("new clip", "id", clip.ID, "creator", clip.CreatorName)
	cw.Announce(clip.URL)
}

// StreamStarted primes the baseline with clips that predate the
// stream and starts announcing new ones.
func (cw *ClipWatcher) StreamStarted(ctx context.Context, startedAt time.Time) {
	cw.watcher.SetFetch(func(ctx context.Context) ([]twitchapi.Clip, error) {
		return cw.api.GetClips(ctx, cw.broadcasterID, startedAt)
	})
	if err := cw.watcher.Prime(ctx); err != nil {
		slog.Warn("prime clip baseline failed", "error", err)
		cw.watcher.PrimeEmpty()
	}
}

// StreamEnded stops announcements until the next StreamStarted.
func (cw *ClipWatcher) StreamEnded() {
	cw.watcher.Reset()
}

// AddSeen marks a clip id as announced so the poller won't repeat it.
// Used for clips the bot creates on demand.
func (cw *ClipWatcher) AddSeen(id string) {
	cw.watcher.MarkSeen(id)
}

// Run polls until ctx is cancelled.
func (cw *ClipWatcher) Run(ctx context.Context) {
	cw.watcher.Run(ctx)
}
