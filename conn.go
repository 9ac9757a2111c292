package redisgovernor

import (
	"sync"

	"github.com/redis/go-redis/v9"
)

// lease adapts a single pooled Redis connection, leased from a
// *redis.Client via Conn(), so the Remote Clock and Remote State Store
// can issue commands on the same session within one Instance. WATCH is
// session-scoped in Redis, so splitting the session between clock and
// state would silently break optimistic concurrency — every component on
// an Instance shares exactly this one lease.
//
// Close is idempotent and returns the connection to the pool; it is safe
// to call multiple times.
type lease struct {
	conn      *redis.Conn
	closeOnce sync.Once
}

func newLease(conn *redis.Conn) *lease {
	return &lease{conn: conn}
}

// Close returns the leased connection to the pool. Safe to call more than
// once; only the first call has any effect.
func (l *lease) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.conn.Close()
	})
	return err
}
