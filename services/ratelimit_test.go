package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterPerClient(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRateLimiter(60, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("session:a"))
	assert.True(t, l.Allow("session:a"))
	assert.False(t, l.Allow("session:a"))
	assert.True(t, l.Allow("session:b"), "buckets are independent")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("session:a"), "one token refills per second at 60 rpm")

	snap := l.Snapshot()
	require.Contains(t, snap, "session:a")
	a := snap["session:a"]
	assert.Equal(t, 1, a.Rejected)
	assert.False(t, a.Throttled)
	assert.Equal(t, 60.0, a.Limit)
	assert.Equal(t, "0s ago", a.UpdatedAgo)
}

func TestRateLimiterEvictsIdle(t *testing.T) {
	now := time.Now()
	l := NewRateLimiter(10, 1)
	l.now = func() time.Time { return now }

	l.Allow("old")
	now = now.Add(time.Hour)
	l.Allow("new")

	snap := l.Snapshot()
	assert.NotContains(t, snap, "old")
	assert.Contains(t, snap, "new")
}
