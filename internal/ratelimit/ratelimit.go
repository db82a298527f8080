// Package ratelimit paces provider API calls with one token bucket
// per (account, API). Buckets adapt: a throttle response halves the
// rate, sustained success claws it back additively.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/skimworks/skim/telemetry"
)

// Registry hands out token buckets keyed by account and API name
type Registry struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	base    rate.Limit
	burst   int
}

type bucket struct {
	limiter    *rate.Limiter
	base       rate.Limit
	lastChange time.Time
}

// NewRegistry creates a registry with a base rate and burst applied
// to every new bucket
func NewRegistry(callsPerSecond float64, burst int) *Registry {
	return &Registry{
		buckets: make(map[string]*bucket),
		base:    rate.Limit(callsPerSecond),
		burst:   burst,
	}
}

// Wait blocks until the (account, api) bucket grants a token or the
// context is cancelled
func (r *Registry) Wait(ctx context.Context, account, api string) error {
	return r.get(account, api).limiter.Wait(ctx)
}

// Feedback adjusts the bucket after a call: throttled halves the
// rate, success nudges it back toward the configured base
func (r *Registry) Feedback(account, api string, throttled bool) {
	if throttled {
		telemetry.AddThrottleEvents(context.Background(), 1)
	}
	b := r.get(account, api)

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	// dampen oscillation
	if now.Sub(b.lastChange) < 100*time.Millisecond {
		return
	}

	current := b.limiter.Limit()
	if throttled {
		next := current / 2
		if next < rate.Limit(0.5) {
			next = rate.Limit(0.5)
		}
		b.limiter.SetLimit(next)
		b.lastChange = now
		return
	}

	if current < b.base {
		next := current + 1
		if next > b.base {
			next = b.base
		}
		b.limiter.SetLimit(next)
		b.lastChange = now
	}
}

// Rate reports the current limit for a bucket, mainly for tests and
// telemetry
func (r *Registry) Rate(account, api string) float64 {
	return float64(r.get(account, api).limiter.Limit())
}

func (r *Registry) get(account, api string) *bucket {
	key := account + "|" + api

	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{
			limiter: rate.NewLimiter(r.base, r.burst),
			base:    r.base,
		}
		r.buckets[key] = b
	}
	return b
}
