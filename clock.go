package redisgovernor

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Instant wraps a nanosecond count obtained from the Redis server's TIME
// command. It is monotonic across successive queries against the same
// Redis primary, and is the same representation used for the GCRA
// "theoretical arrival time" cell persisted in the Remote State Store.
type Instant uint64

// Add returns an Instant shifted forward by d.
func (i Instant) Add(d time.Duration) Instant {
	if d < 0 {
		return i.SaturatingSub(-d)
	}
	return i + Instant(d)
}

// DurationSince returns i - earlier, floored at zero rather than going
// negative.
func (i Instant) DurationSince(earlier Instant) time.Duration {
	if i <= earlier {
		return 0
	}
	return time.Duration(i - earlier)
}

// SaturatingSub returns i shifted back by d, floored at zero.
func (i Instant) SaturatingSub(d time.Duration) Instant {
	if Instant(d) >= i {
		return 0
	}
	return i - Instant(d)
}

// Time converts i to a wall-clock time.Time, valid because Instant is
// always derived from Redis TIME (seconds since the Unix epoch plus
// microseconds) and so already counts nanoseconds since the epoch.
func (i Instant) Time() time.Time {
	return time.Unix(0, int64(i))
}

// Clock is a monotonic remote time source plus a once-elected fleet
// epoch.
type Clock interface {
	// Now issues a Redis TIME round-trip and returns the current instant.
	// Failure to query is a TransportError.
	Now(ctx context.Context) (Instant, error)

	// Start returns the fleet-wide epoch, electing one via the CAS loop
	// if no participant has yet. Safe to call concurrently from many
	// processes sharing a prefix; exactly one election commits.
	Start(ctx context.Context) (Instant, error)

	// ResetStart deletes the persisted epoch, forcing re-election on the
	// next Start call. Called by Instance.Wipe, so wiping an instance
	// re-floats the epoch rather than leaving it stale.
	ResetStart(ctx context.Context) error
}

// redisClock implements Clock against a single leased connection.
type redisClock struct {
	lease  *lease
	prefix string
}

func newRedisClock(l *lease, prefix string) *redisClock {
	return &redisClock{lease: l, prefix: prefix}
}

func (c *redisClock) startKey() string { return c.prefix + ":start" }

// Now issues Redis TIME and combines (seconds, microseconds) into
// nanoseconds.
func (c *redisClock) Now(ctx context.Context) (Instant, error) {
	reply, err := c.lease.conn.Do(ctx, "TIME").Slice()
	if err != nil {
		return 0, transportErr("TIME", err)
	}
	if len(reply) != 2 {
		return 0, transportErr("TIME", errUnexpectedReply)
	}
	secs, err := parseReplyUint(reply[0])
	if err != nil {
		return 0, transportErr("TIME", err)
	}
	micros, err := parseReplyUint(reply[1])
	if err != nil {
		return 0, transportErr("TIME", err)
	}
	return Instant(secs*1_000_000_000 + micros*1_000), nil
}

// Start elects the fleet-wide epoch:
//  1. Enter the CAS loop watching {prefix}:start.
//  2. Read {prefix}:start.
//  3. If present, return its value.
//  4. Otherwise sample now(), then MULTI/SET/GET/EXEC.
//  5. A nil EXEC means a concurrent participant won; retry (the next
//     iteration's GET observes their value).
//  6. A successful EXEC returns the value read by the GET queued inside
//     the same transaction, which is the value just SET.
func (c *redisClock) Start(ctx context.Context) (Instant, error) {
	var result Instant
	err := casLoop(ctx, c.lease.conn, c.startKey(), func(tx *redis.Tx) error {
		existing, err := tx.Get(ctx, c.startKey()).Result()
		if err == nil {
			v, perr := strconv.ParseUint(existing, 10, 64)
			if perr != nil {
				return transportErr("GET start", perr)
			}
			result = Instant(v)
			return nil
		}
		if err != redis.Nil {
			return transportErr("GET start", err)
		}

		now, nerr := c.Now(ctx)
		if nerr != nil {
			return nerr
		}

		var getCmd *redis.StringCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, c.startKey(), uint64(now), 0)
			getCmd = pipe.Get(ctx, c.startKey())
			return nil
		})
		if err != nil {
			return err
		}
		committed, err := getCmd.Result()
		if err != nil {
			return transportErr("GET start", err)
		}
		v, perr := strconv.ParseUint(committed, 10, 64)
		if perr != nil {
			return transportErr("GET start", perr)
		}
		result = Instant(v)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// ResetStart deletes the elected epoch so the next Start call re-elects.
func (c *redisClock) ResetStart(ctx context.Context) error {
	if err := c.lease.conn.Del(ctx, c.startKey()).Err(); err != nil {
		return transportErr("DEL start", err)
	}
	return nil
}

func parseReplyUint(v interface{}) (uint64, error) {
	switch t := v.(type) {
	case string:
		return strconv.ParseUint(t, 10, 64)
	case int64:
		return uint64(t), nil
	default:
		return 0, errUnexpectedReply
	}
}
