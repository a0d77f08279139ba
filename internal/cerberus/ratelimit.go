package cerberus

import (
	"sync"
	"time"

	"github.com/Wikid82/revalidator/internal/models"
)

type limitSettings struct {
	window time.Duration
	max    int
	block  time.Duration
}

func limits(sec models.SecurityConfig) limitSettings {
	l := limitSettings{window: sec.RateLimitWindow, max: sec.RateLimitMax, block: sec.BlockDuration}
	if l.window <= 0 {
		l.window = time.Minute
	}
	if l.max <= 0 {
		l.max = 1
	}
	if l.block <= 0 {
		l.block = l.window
	}
	return l
}

// rateLimiter owns the per-IP records. Every hit is a single
// read-modify-write under mu, so concurrent requests never lose a count.
type rateLimiter struct {
	mu      sync.Mutex
	records map[string]*models.RateLimitRecord
}

func newRateLimiter() *rateLimiter {
	return &rateLimiter{records: make(map[string]*models.RateLimitRecord)}
}

// hit counts one request from ip. It returns whether the request is admitted
// and, when it is not, how long until the caller may retry.
func (l *rateLimiter) hit(ip string, now time.Time, s limitSettings) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[ip]
	if !ok {
		rec = &models.RateLimitRecord{LastReset: now}
		l.records[ip] = rec
	}
	windowEnd := rec.LastReset.Add(s.window)
	if now.After(windowEnd) {
		reset(rec, now)
		windowEnd = now.Add(s.window)
	}
	if rec.Blocked {
		if now.Before(rec.BlockedUntil) {
			return false, retryAfter(now, rec.BlockedUntil, windowEnd)
		}
		reset(rec, now)
		windowEnd = now.Add(s.window)
	}

	rec.Count++
	if rec.Count > s.max {
		rec.Blocked = true
		rec.BlockedUntil = now.Add(s.block)
		return false, retryAfter(now, rec.BlockedUntil, windowEnd)
	}
	return true, 0
}

// retryAfter is the earlier of block expiry and window reset, which both
// clear the block.
func retryAfter(now, blockedUntil, windowEnd time.Time) time.Duration {
	until := blockedUntil
	if windowEnd.Before(until) {
		until = windowEnd
	}
	if d := until.Sub(now); d > 0 {
		return d
	}
	return 0
}

func reset(rec *models.RateLimitRecord, now time.Time) {
	rec.Count = 0
	rec.LastReset = now
	rec.Blocked = false
	rec.BlockedUntil = time.Time{}
}

// sweep deletes records whose window has elapsed; their next hit would reset
// them anyway.
func (l *rateLimiter) sweep(now time.Time, window time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip, rec := range l.records {
		if now.After(rec.LastReset.Add(window)) {
			delete(l.records, ip)
			removed++
		}
	}
	return removed
}

func (l *rateLimiter) snapshot(now time.Time, window time.Duration) (tracked, blocked int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range l.records {
		if rec.Blocked && now.Before(rec.BlockedUntil) && !now.After(rec.LastReset.Add(window)) {
			blocked++
		}
	}
	return len(l.records), blocked
}

func (l *rateLimiter) get(ip string) (models.RateLimitRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[ip]
	if !ok {
		return models.RateLimitRecord{}, false
	}
	return *rec, true
}
