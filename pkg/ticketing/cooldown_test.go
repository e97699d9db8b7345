package ticketing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCooldownTracker(interval time.Duration) (*CooldownTracker, *time.Time) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewCooldownTracker(func() time.Duration { return interval })
	c.now = func() time.Time { return now }
	return c, &now
}

func TestCooldown_NoCooldownBeforeStart(t *testing.T) {
	c, _ := newTestCooldownTracker(time.Minute)
	require.Zero(t, c.Remaining("u1"))
}

func TestCooldown_CountsDown(t *testing.T) {
	c, now := newTestCooldownTracker(time.Minute)
	start := *now

	c.Start("u1")
	require.InDelta(t, time.Minute.Seconds(), c.Remaining("u1").Seconds(), 0.01)

	*now = start.Add(45 * time.Second)
	require.InDelta(t, (15 * time.Second).Seconds(), c.Remaining("u1").Seconds(), 0.01)

	*now = start.Add(time.Minute)
	require.LessOrEqual(t, c.Remaining("u1"), 10*time.Millisecond)

	// Never negative, even long after expiry.
	*now = start.Add(time.Hour)
	require.Zero(t, c.Remaining("u1"))
}

func TestCooldown_ProbingDoesNotConsume(t *testing.T) {
	c, _ := newTestCooldownTracker(time.Minute)
	c.Start("u1")

	first := c.Remaining("u1")
	second := c.Remaining("u1")
	require.Equal(t, first, second)
}

func TestCooldown_RestartResets(t *testing.T) {
	c, now := newTestCooldownTracker(time.Minute)
	start := *now

	c.Start("u1")
	*now = start.Add(time.Minute)
	require.LessOrEqual(t, c.Remaining("u1"), 10*time.Millisecond)

	c.Start("u1")
	require.InDelta(t, time.Minute.Seconds(), c.Remaining("u1").Seconds(), 0.01)
}

func TestCooldown_PerUser(t *testing.T) {
	c, _ := newTestCooldownTracker(time.Minute)

	c.Start("u1")
	require.NotZero(t, c.Remaining("u1"))
	require.Zero(t, c.Remaining("u2"))
}

func TestCooldown_ZeroIntervalDisables(t *testing.T) {
	c, _ := newTestCooldownTracker(0)

	c.Start("u1")
	require.Zero(t, c.Remaining("u1"))
}
