package redisgovernor

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Store exposes MeasureAndReplace, whose contract is "read the current
// cell, invoke the caller-supplied decision function with the previous
// value, and — iff the decision is accept — atomically replace the cell
// conditional on it not having changed." Retries on conflict happen
// inside Store and are never visible to the caller.
//
// T is the type decide returns alongside the new cell value; instantiate
// one Store[T] per result type (this package's own GCRA engine uses
// Store[gcraOutcome]) rather than resorting to `any` and a type assertion
// at every call site.
//
// Storage uses one Redis hash per prefix (field = digest(key), value = a
// 64-bit integer) plus one scalar "sentinel" key per logical entry,
// because Redis WATCH cannot watch an individual hash field — watching
// the whole hash would make every key under the prefix contend with every
// other.
type Store[T any] struct {
	lease  *lease
	prefix string
}

func newStore[T any](l *lease, prefix string) *Store[T] {
	return &Store[T]{lease: l, prefix: prefix}
}

func (s *Store[T]) hashKey() string { return s.prefix + ":governor:hash" }

func (s *Store[T]) sentinelKey(digest string) string {
	return s.prefix + ":governor:value:" + digest
}

// Decide is the external decision callback passed to MeasureAndReplace. It
// receives the previous cell value (nil if the key has never been
// written), and returns either an accepted (result, newValue) pair or an
// error. Returning an error performs no write and exits the CAS loop
// immediately — the decision-rejection path.
type Decide[T any] func(prev *uint64) (T, uint64, error)

// MeasureAndReplace:
//  1. digest(key) composes the sentinel key and hash field name.
//  2. Enter the CAS loop watching the sentinel.
//  3. HGET the previous value from the shared hash.
//  4. Invoke decide(prev). On error, return it untouched, no writes.
//     On success, SET the sentinel and HSET the hash field inside one
//     MULTI/EXEC. A nil EXEC (conflict) retries from the top; a
//     successful EXEC returns decide's result.
func (s *Store[T]) MeasureAndReplace(ctx context.Context, key string, decide Decide[T]) (T, error) {
	digest := digestKey(key)
	sentinelKey := s.sentinelKey(digest)

	var (
		out      T
		declined error
	)

	err := casLoop(ctx, s.lease.conn, sentinelKey, func(tx *redis.Tx) error {
		prevStr, err := tx.HGet(ctx, s.hashKey(), digest).Result()
		var prev *uint64
		switch {
		case err == redis.Nil:
			prev = nil
		case err != nil:
			return transportErr("HGET", err)
		default:
			v, perr := strconv.ParseUint(prevStr, 10, 64)
			if perr != nil {
				return transportErr("HGET/parse", perr)
			}
			prev = &v
		}

		result, newValue, derr := decide(prev)
		if derr != nil {
			declined = derr
			// UNWATCH before the early return: EXEC implicitly UNWATCHes,
			// but we never reach EXEC on this branch, so clear the watch
			// explicitly rather than leaving it dangling on the session.
			_ = tx.Unwatch(ctx)
			return derr
		}

		_, pipeErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sentinelKey, newValue, 0)
			pipe.HSet(ctx, s.hashKey(), digest, newValue)
			return nil
		})
		if pipeErr != nil {
			return pipeErr
		}
		out = result
		return nil
	})

	if err != nil {
		if declined != nil {
			var zero T
			return zero, declined
		}
		var zero T
		return zero, err
	}
	return out, nil
}

// wipeHash deletes the shared hash. Sentinel scalars are intentionally
// left in place — they age harmlessly, and the next MeasureAndReplace for
// that key rewrites them.
func wipeHash(ctx context.Context, l *lease, prefix string) error {
	if err := l.conn.Del(ctx, prefix+":governor:hash").Err(); err != nil {
		return transportErr("DEL hash", err)
	}
	return nil
}
