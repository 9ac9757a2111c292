package redisgovernor

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Governor is a holder of (connection pool, prefix). Cheap to copy —
// Governor values share the same underlying *redis.Client pool, so
// minting Instances from multiple goroutines is safe even though each
// Instance itself is not.
//
// A concrete *redis.Client is required (not the broader
// redis.UniversalClient) because Instance() leases a single pooled
// connection via Conn(), which go-redis only exposes on the standalone
// client — WATCH is session-scoped, so a cluster/sentinel client that
// might route commands to different nodes per call cannot safely serve
// this role. Cluster and Sentinel deployments are out of scope for this
// reason.
type Governor struct {
	client *redis.Client
	prefix string
}

// New creates a Governor for prefix over client. prefix namespaces every
// Redis key this governor and its instances touch, allowing independent
// tenants to cohabit one Redis instance.
func New(client *redis.Client, prefix string) *Governor {
	return &Governor{client: client, prefix: prefix}
}

// Instance leases one pooled connection and returns a Governor Instance
// bound to it. The returned Instance is not safe for concurrent use —
// each concurrent worker should call Instance() for its own.
func (g *Governor) Instance() *Instance {
	conn := g.client.Conn()
	l := newLease(conn)
	return &Instance{
		lease:  l,
		prefix: g.prefix,
		clock:  newRedisClock(l, g.prefix),
	}
}

// Instance holds (leased connection, prefix, clock) for one concurrent
// actor. Not thread-safe: it mutates a single pooled connection.
type Instance struct {
	lease  *lease
	prefix string
	clock  *redisClock
}

// Clock returns the instance's Remote Clock, useful for diagnostic reads
// of the current time or elected epoch.
func (in *Instance) Clock() Clock { return in.clock }

// RateLimiter constructs a distributed GCRA Limiter parameterized by
// quota, sharing this instance's clock and leased connection.
func (in *Instance) RateLimiter(quota Quota) Limiter {
	return newGCRARedisLimiter(quota, in.clock, newStore[gcraOutcome](in.lease, in.prefix))
}

// Wipe clears all rate-limit state for this instance's prefix: it resets
// the clock's epoch (so a fresh one is elected on next use) and deletes
// the shared governor hash. Re-floating the epoch rather than leaving a
// stale one matters when tests or operators need a truly fresh start.
func (in *Instance) Wipe(ctx context.Context) error {
	if err := in.clock.ResetStart(ctx); err != nil {
		return err
	}
	if err := wipeHash(ctx, in.lease, in.prefix); err != nil {
		return err
	}
	logrus.WithField("prefix", in.prefix).Info("redisgovernor: wiped instance state")
	return nil
}

// Close returns the instance's leased connection to the pool. Safe to
// call more than once.
func (in *Instance) Close() error {
	return in.lease.Close()
}
