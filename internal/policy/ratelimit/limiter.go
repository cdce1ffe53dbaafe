// Package ratelimit implements the pacing gate that serializes outbound
// fetches and browser activations for a run.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/meeting-crawler/internal/metrics"
)

// DefaultRPS is used when no rate is configured.
const DefaultRPS = 2.0

// Limiter holds one token shared by every caller. Each Wait consumes it, so
// successive dispatches are at least 1/RPS apart.
type Limiter struct {
	limiter *rate.Limiter
}

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerSecond is the dispatch rate. Negative disables pacing.
	RequestsPerSecond float64
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = DefaultRPS
	}
	limit := rate.Limit(rps)
	if rps < 0 {
		limit = rate.Inf
	}
	return &Limiter{limiter: rate.NewLimiter(limit, 1)}
}

// Interval reports the minimum spacing between dispatches.
func (l *Limiter) Interval() time.Duration {
	if l.limiter.Limit() == rate.Inf {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l.limiter.Limit()))
}

// Wait blocks until the minimum interval since the previous dispatch has
// elapsed, or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}
