package redisgovernor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Quota describes a GCRA rate limit as (Period, Burst): up to Burst
// requests may be admitted back-to-back, after which admission is spaced
// by Period/Burst (e.g. "5 requests per hour", "12 requests per
// minute"). Period/Burst is taken in whole nanoseconds and is never less
// than one nanosecond.
type Quota struct {
	Period time.Duration
	Burst  int64
}

// NewQuota builds a Quota admitting burst requests per period.
func NewQuota(period time.Duration, burst int64) Quota {
	return Quota{Period: period, Burst: burst}
}

// PerSecond is a Quota admitting burst requests per second.
func PerSecond(burst int64) Quota { return Quota{Period: time.Second, Burst: burst} }

// PerMinute is a Quota admitting burst requests per minute.
func PerMinute(burst int64) Quota { return Quota{Period: time.Minute, Burst: burst} }

// PerHour is a Quota admitting burst requests per hour.
func PerHour(burst int64) Quota { return Quota{Period: time.Hour, Burst: burst} }

func (q Quota) emissionInterval() time.Duration {
	if e := q.Period / time.Duration(q.Burst); e > 0 {
		return e
	}
	return 1
}

func (q Quota) burstOffset() time.Duration {
	return q.emissionInterval() * time.Duration(q.Burst-1)
}

// gcraOutcome is the accepted-path result carried through
// Store[gcraOutcome].MeasureAndReplace. On the rejected path decide
// returns a *DeniedError instead, so gcraOutcome never needs to represent
// denial itself.
type gcraOutcome struct {
	remaining int64
	resetAt   Instant
}

// gcraDecide closes over (quota, now, n) and implements the GCRA
// admission test against the previous theoretical arrival time: admit if
// the new TAT would lie within burstOffset+emission of now, advancing the
// stored TAT by one emission interval per admitted request; otherwise
// decline without advancing it.
func gcraDecide(quota Quota, now Instant, n int64) Decide[gcraOutcome] {
	emission := quota.emissionInterval()
	burstOffset := quota.burstOffset()

	return func(prev *uint64) (gcraOutcome, uint64, error) {
		tat := now
		if prev != nil {
			tat = Instant(*prev)
		}
		if tat < now {
			tat = now
		}

		newTAT := tat.Add(emission * time.Duration(n))
		diff := newTAT.DurationSince(now)

		if diff <= burstOffset+emission {
			remaining := int64((burstOffset - diff + emission) / emission)
			return gcraOutcome{remaining: remaining, resetAt: newTAT}, uint64(newTAT), nil
		}

		retryAfter := diff - burstOffset - emission
		return gcraOutcome{}, 0, &DeniedError{
			NotUntil:   now.Add(retryAfter).Time(),
			RetryAfter: retryAfter,
		}
	}
}

// NewGCRA creates a GCRA rate limiter for quota. Pass WithGovernorInstance
// for distributed mode, backed by a Governor Instance's Remote Clock and
// Remote State Store; omit it for a process-local in-memory limiter.
func NewGCRA(quota Quota, opts ...Option) (Limiter, error) {
	if quota.Burst <= 0 || quota.Period <= 0 {
		return nil, fmt.Errorf("redisgovernor: quota period and burst must be positive")
	}
	o := applyOptions(opts)

	if o.GovernorInstance != nil {
		in := o.GovernorInstance
		l := newGCRARedisLimiter(quota, in.clock, newStore[gcraOutcome](in.lease, in.prefix))
		l.failOpen = o.FailOpen
		return l, nil
	}
	return &gcraMemoryLimiter{
		states: make(map[string]*gcraMemState),
		quota:  quota,
	}, nil
}

// ─── Distributed (Governor-backed) ──────────────────────────────────────────

// gcraRedisLimiter is the distributed GCRA engine: admission decisions
// flow through Store.MeasureAndReplace, which provides the CAS loop and
// conflict retries, so this type only has to know the GCRA math.
type gcraRedisLimiter struct {
	quota    Quota
	clock    *redisClock
	store    *Store[gcraOutcome]
	failOpen bool
}

func newGCRARedisLimiter(quota Quota, clock *redisClock, store *Store[gcraOutcome]) *gcraRedisLimiter {
	return &gcraRedisLimiter{quota: quota, clock: clock, store: store}
}

func (g *gcraRedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return g.AllowN(ctx, key, 1)
}

func (g *gcraRedisLimiter) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	now, err := g.clock.Now(ctx)
	if err != nil {
		return g.transportFailure(err)
	}

	outcome, err := g.store.MeasureAndReplace(ctx, key, gcraDecide(g.quota, now, int64(n)))
	if err != nil {
		var denied *DeniedError
		if errors.As(err, &denied) {
			// Decision rejection is the normal "denied" path, not a
			// backend failure — surface it as a non-error Result
			// rather than propagating it.
			return &Result{
				Allowed:    false,
				Limit:      g.quota.Burst,
				ResetAt:    denied.NotUntil,
				RetryAfter: denied.RetryAfter,
			}, nil
		}
		return g.transportFailure(err)
	}

	return &Result{
		Allowed:   true,
		Remaining: outcome.remaining,
		Limit:     g.quota.Burst,
		ResetAt:   outcome.resetAt.Time(),
	}, nil
}

// transportFailure applies Options.FailOpen to a backend failure (a
// TransportError, ErrCASRetriesExceeded, or a WATCH/EXEC error as
// reported by go-redis), deciding whether to admit the request anyway
// when the Governor backend is unreachable.
func (g *gcraRedisLimiter) transportFailure(err error) (*Result, error) {
	logrus.WithField("fail_open", g.failOpen).WithError(err).
		Warn("redisgovernor: distributed GCRA backend failure")
	if g.failOpen {
		return &Result{Allowed: true, Remaining: g.quota.Burst - 1, Limit: g.quota.Burst}, nil
	}
	return nil, err
}

// Reset clears the key's sentinel and hash field, returning it to an
// unseen state. A concurrent MeasureAndReplace racing this call is
// resolved by WATCH: whichever commits second wins, same as any other CAS
// conflict.
func (g *gcraRedisLimiter) Reset(ctx context.Context, key string) error {
	digest := digestKey(key)
	conn := g.store.lease.conn
	if err := conn.Del(ctx, g.store.sentinelKey(digest)).Err(); err != nil {
		return transportErr("DEL", err)
	}
	if err := conn.HDel(ctx, g.store.hashKey(), digest).Err(); err != nil {
		return transportErr("HDEL", err)
	}
	return nil
}

// ─── In-memory ───────────────────────────────────────────────────────────────

// gcraMemState holds one key's theoretical arrival time, represented as
// nanoseconds since the Unix epoch so it is directly comparable with
// time.Now().UnixNano() without a second reference point.
type gcraMemState struct {
	tat time.Duration
}

// gcraMemoryLimiter is a process-local GCRA limiter, used when no
// GovernorInstance is configured. Logic matches gcraDecide but operates on
// the process wall clock instead of a Remote Clock, and a mutex instead of
// the CAS loop.
type gcraMemoryLimiter struct {
	mu     sync.Mutex
	states map[string]*gcraMemState
	quota  Quota
}

func (g *gcraMemoryLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return g.AllowN(ctx, key, 1)
}

func (g *gcraMemoryLimiter) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	emission := g.quota.emissionInterval()
	burstOffset := g.quota.burstOffset()
	now := time.Duration(time.Now().UnixNano())

	state, ok := g.states[key]
	if !ok {
		state = &gcraMemState{tat: now}
		g.states[key] = state
	}
	tat := state.tat
	if tat < now {
		tat = now
	}

	newTAT := tat + emission*time.Duration(n)
	diff := newTAT - now

	if diff <= burstOffset+emission {
		state.tat = newTAT
		remaining := int64((burstOffset - diff + emission) / emission)
		return &Result{
			Allowed:   true,
			Remaining: remaining,
			Limit:     g.quota.Burst,
			ResetAt:   time.Unix(0, int64(newTAT)),
		}, nil
	}

	retryAfter := diff - burstOffset - emission
	return &Result{
		Allowed:    false,
		Limit:      g.quota.Burst,
		RetryAfter: retryAfter,
		ResetAt:    time.Unix(0, int64(now+retryAfter)),
	}, nil
}

func (g *gcraMemoryLimiter) Reset(ctx context.Context, key string) error {
	g.mu.Lock()
	delete(g.states, key)
	g.mu.Unlock()
	return nil
}
