package ledger

import (
	"testing"
	"time"
)

func TestCooldownTestAndSet(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewCooldown(time.Second)
	c.now = func() time.Time { return now }

	ok, _ := c.Try("alice")
	if !ok {
		t.Fatal("first call should be allowed")
	}
	ok, wait := c.Try("alice")
	if ok {
		t.Fatal("second call inside window should be denied")
	}
	if wait != time.Second {
		t.Errorf("wait = %v, want 1s", wait)
	}

	// A different key is unaffected.
	if ok, _ := c.Try("bob"); !ok {
		t.Error("independent key should be allowed")
	}

	now = now.Add(time.Second)
	if ok, _ := c.Try("alice"); !ok {
		t.Error("call after window elapses should be allowed again")
	}
}

func TestCooldownDenialDoesNotRefresh(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewCooldown(10 * time.Second)
	c.now = func() time.Time { return now }

	c.Try("alice")
	now = now.Add(9 * time.Second)
	if ok, _ := c.Try("alice"); ok {
		t.Fatal("should still be on cooldown")
	}
	// The denied attempt must not have reset the window.
	now = now.Add(time.Second)
	if ok, _ := c.Try("alice"); !ok {
		t.Error("window should be measured from the accepted action only")
	}
}
