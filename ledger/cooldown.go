package ledger

import (
	"errors"
	"sync"
	"time"
)

// Domain errors shared by rate-limited subsystems. They are rendered as
// user-facing chat messages by the caller, never treated as fatal.
var (
	ErrOnCooldown = errors.New("action is on cooldown")
	ErrExhausted  = errors.New("resource exhausted")
)

// Cooldown enforces a per-key minimum interval between actions. Try is a
// test-and-set: an accepted call refreshes the key's timestamp atomically
// with the check, so two racing calls inside the window can never both pass.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Try reports whether an action for key is allowed. When denied it returns
// the remaining wait. When allowed the key's last-action time is set to now.
func (c *Cooldown) Try(key string) (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if last, ok := c.last[key]; ok {
		if elapsed := now.Sub(last); elapsed < c.window {
			return false, c.window - elapsed
		}
	}
	c.last[key] = now
	return true, 0
}

// Window returns the configured cooldown interval.
func (c *Cooldown) Window() time.Duration { return c.window }
