package redisgovernor

import (
	"context"
	"time"
)

// Limiter is the core interface satisfied by both the in-memory and
// Governor-backed GCRA engines, so callers can swap one for the other
// without changing call sites.
type Limiter interface {
	// Allow checks whether a single request identified by key should be allowed.
	Allow(ctx context.Context, key string) (*Result, error)

	// AllowN checks whether n requests identified by key should be allowed.
	AllowN(ctx context.Context, key string, n int) (*Result, error)

	// Reset clears all rate limit state for the given key.
	Reset(ctx context.Context, key string) error
}

// Result holds the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Remaining  int64
	Limit      int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Options configures a GCRA Limiter.
type Options struct {
	// FailOpen controls behavior when the Governor backend is unreachable.
	// If true (default), requests are allowed on transport errors.
	// If false, requests are denied on transport errors.
	FailOpen bool

	// GovernorInstance selects the distributed engine, backed by a
	// Governor Instance's leased connection, Remote Clock, and Remote
	// State Store. Omit it for a process-local in-memory limiter.
	GovernorInstance *Instance
}

// Option is a functional option for configuring a Limiter.
type Option func(*Options)

// WithFailOpen controls behavior when the Governor backend is unreachable.
// If true (default), requests are allowed on transport errors.
// If false, requests are denied on transport errors.
func WithFailOpen(failOpen bool) Option {
	return func(o *Options) { o.FailOpen = failOpen }
}

// WithGovernorInstance selects the distributed GCRA engine, sharing inst's
// leased connection, Remote Clock, and Remote State Store.
func WithGovernorInstance(inst *Instance) Option {
	return func(o *Options) { o.GovernorInstance = inst }
}

func defaultOptions() *Options {
	return &Options{FailOpen: true}
}

func applyOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}
