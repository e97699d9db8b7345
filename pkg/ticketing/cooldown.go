package ticketing

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CooldownTracker throttles ticket creation per user. It is in-memory only; a
// restart clears all cooldowns, which fails open (at worst a user re-opens a
// ticket early).
type CooldownTracker struct {
	mtx sync.Mutex

	// limiters holds one single-burst limiter per user that has opened a
	// ticket, refilling once per cooldown interval.
	limiters map[string]*rate.Limiter

	// cooldown returns the currently configured cooldown interval. Changing
	// the configuration only affects cooldowns started afterwards.
	cooldown func() time.Duration

	// now is the clock, replaceable in tests.
	now func() time.Time
}

// NewCooldownTracker creates a tracker that reads the configured cooldown
// interval through the given func.
func NewCooldownTracker(cooldown func() time.Duration) *CooldownTracker {
	return &CooldownTracker{
		limiters: make(map[string]*rate.Limiter),
		cooldown: cooldown,
		now:      time.Now,
	}
}

// Start begins (or restarts) the user's cooldown.
func (c *CooldownTracker) Start(userID string) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	interval := c.cooldown()
	if interval <= 0 {
		delete(c.limiters, userID)
		return
	}

	lim := rate.NewLimiter(rate.Every(interval), 1)
	// Consume the single token now; it refills once the cooldown has elapsed.
	lim.ReserveN(c.now(), 1)
	c.limiters[userID] = lim
}

// Remaining returns how long the user must still wait before opening another
// ticket. It returns 0 when no cooldown applies and is never negative.
func (c *CooldownTracker) Remaining(userID string) time.Duration {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	lim, ok := c.limiters[userID]
	if !ok {
		return 0
	}

	now := c.now()
	r := lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	// Probe only; give the reservation straight back.
	r.CancelAt(now)

	if delay < 0 {
		return 0
	}
	return delay
}
