package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Provider names used for budgets and stats.
const (
	Groq   = "groq"
	Gemini = "gemini"
)

// AIRateLimiter enforces per-provider daily request budgets. A limit of 0
// means unlimited.
type AIRateLimiter struct {
	mu        sync.Mutex
	used      map[string]int
	limits    map[string]int
	totalUsed int
	maxTotal  int
	resetTime time.Time
	cacheHits int
	now       func() time.Time
}

// NewAIRateLimiter creates a limiter with the given per-provider daily limits.
func NewAIRateLimiter(limits map[string]int, maxTotal int) *AIRateLimiter {
	l := make(map[string]int, len(limits))
	for k, v := range limits {
		l[k] = v
	}
	return &AIRateLimiter{
		used:      make(map[string]int),
		limits:    l,
		maxTotal:  maxTotal,
		resetTime: time.Now().Add(24 * time.Hour),
		now:       time.Now,
	}
}

// CanUse reports whether provider still has budget left.
func (rl *AIRateLimiter) CanUse(provider string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	return rl.availableLocked(provider) == nil
}

// Use consumes one request from provider's budget.
func (rl *AIRateLimiter) Use(provider string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.checkReset()
	if err := rl.availableLocked(provider); err != nil {
		return err
	}

	rl.used[provider]++
	rl.totalUsed++
	slog.Debug("ai usage", "provider", provider, "used", rl.used[provider], "limit", rl.limits[provider],
		"total", rl.totalUsed, "total_limit", rl.maxTotal)
	return nil
}

func (rl *AIRateLimiter) availableLocked(provider string) error {
	if max := rl.limits[provider]; max > 0 && rl.used[provider] >= max {
		slog.Warn("ai rate limit reached", "provider", provider, "used", rl.used[provider], "limit", max)
		return fmt.Errorf("%s rate limit exceeded", provider)
	}
	if rl.maxTotal > 0 && rl.totalUsed >= rl.maxTotal {
		slog.Warn("total ai rate limit reached", "used", rl.totalUsed, "limit", rl.maxTotal)
		return fmt.Errorf("total AI rate limit exceeded")
	}
	return nil
}

// RecordCacheHit counts a request avoided through the translation cache.
func (rl *AIRateLimiter) RecordCacheHit() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cacheHits++
}

// GetStats returns current rate limiter statistics
func (rl *AIRateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := map[string]interface{}{
		"total_used":  rl.totalUsed,
		"total_limit": rl.maxTotal,
		"cache_hits":  rl.cacheHits,
		"reset_time":  rl.resetTime.Format(time.RFC3339),
	}
	for p, max := range rl.limits {
		stats[p+"_used"] = rl.used[p]
		stats[p+"_limit"] = max
	}
	return stats
}

// checkReset resets counters if reset time has passed
func (rl *AIRateLimiter) checkReset() {
	now := rl.now()
	if now.After(rl.resetTime) {
		slog.Info("resetting ai rate limiter counters", "total_used", rl.totalUsed, "cache_hits", rl.cacheHits)
		rl.used = make(map[string]int)
		rl.totalUsed = 0
		rl.cacheHits = 0
		rl.resetTime = now.Add(24 * time.Hour)
	}
}

// Pacer enforces a fixed pause between sequential batches, measured from
// the end of one batch to the start of the next.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	limiter  *rate.Limiter
}

// NewPacer pauses interval after each batch. A zero interval never waits.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{interval: interval, limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next batch may start or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	lim := p.limiter
	p.mu.Unlock()
	return lim.Wait(ctx)
}

// Done marks the end of a batch; the next Wait lasts a full interval from now.
func (p *Pacer) Done() {
	if p.interval <= 0 {
		return
	}
	lim := rate.NewLimiter(rate.Every(p.interval), 1)
	lim.Allow()

	p.mu.Lock()
	p.limiter = lim
	p.mu.Unlock()
}
