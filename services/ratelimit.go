package services

import (
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL   = 30 * time.Minute
	limiterSweepRate = time.Minute
)

// RateLimitInfo is the state of one client's bucket.
type RateLimitInfo struct {
	Client     string  `json:"client"`
	Limit      float64 `json:"limit_per_minute"`
	Burst      int     `json:"burst"`
	Remaining  int     `json:"remaining"`
	Throttled  bool    `json:"throttled"`
	Rejected   int     `json:"rejected"`
	UpdatedAt  int64   `json:"updated_at"`
	UpdatedAgo string  `json:"updated_ago"`
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	info     RateLimitInfo
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	rpm     int
	burst   int
	buckets map[string]*clientBucket
	swept   time.Time
	now     func() time.Time
}

func NewRateLimiter(rpm, burst int) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(float64(rpm) / 60.0),
		rpm:     rpm,
		burst:   burst,
		buckets: map[string]*clientBucket{},
		now:     time.Now,
	}
}

// Allow consumes one token for key and reports whether the request may
// proceed.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		l.evictIdle(now)
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		b.info = RateLimitInfo{Client: key, Limit: float64(l.rpm), Burst: l.burst}
		l.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	b.info.Throttled = !allowed
	if !allowed {
		b.info.Rejected++
	}
	b.info.Remaining = int(b.limiter.TokensAt(now))
	b.info.UpdatedAt = now.UnixMilli()
	return allowed
}

func (l *RateLimiter) evictIdle(now time.Time) {
	if now.Sub(l.swept) < limiterSweepRate {
		return
	}
	l.swept = now
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > limiterIdleTTL {
			delete(l.buckets, k)
		}
	}
}

// Snapshot returns a copy of every tracked bucket.
func (l *RateLimiter) Snapshot() map[string]*RateLimitInfo {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]*RateLimitInfo, len(l.buckets))
	now := l.now()
	for k, b := range l.buckets {
		cp := b.info
		cp.Remaining = int(b.limiter.TokensAt(now))
		ago := now.Sub(time.UnixMilli(cp.UpdatedAt))
		if ago < time.Minute {
			cp.UpdatedAgo = strconv.Itoa(int(ago.Seconds())) + "s ago"
		} else {
			cp.UpdatedAgo = strconv.Itoa(int(ago.Minutes())) + "m ago"
		}
		out[k] = &cp
	}
	return out
}
