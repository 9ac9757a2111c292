package redisgovernor

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// maxCASRetries bounds the compare-and-set retry loop shared by the Remote
// Clock's epoch election and the Remote State Store's MeasureAndReplace.
// Unbounded retry under pathological contention would hang the caller
// forever, so this package enforces a ceiling and surfaces
// ErrCASRetriesExceeded instead.
const maxCASRetries = 100

// casLoop runs the WATCH / read / MULTI / EXEC retry skeleton against
// watchKey on the single leased connection conn. txf is expected to read
// the watched state, decide, and (if it decides to write) issue an atomic
// pipeline via tx.TxPipelined; returning redis.TxFailedErr from
// TxPipelined signals a lost race and is retried here. Any other error
// returned by txf stops the loop immediately and is returned unmodified —
// this is how a decision-rejection (no-write) exit is threaded back out
// without an extra layer of error wrapping.
//
// EXEC implicitly UNWATCHes, so a fresh WATCH is required every
// iteration; go-redis's (*redis.Conn).Watch does this per call, one call
// per loop iteration.
func casLoop(ctx context.Context, conn *redis.Conn, watchKey string, txf func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		err := conn.Watch(ctx, txf, watchKey)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			logrus.WithFields(logrus.Fields{
				"watch_key": watchKey,
				"attempt":   attempt,
			}).Debug("redisgovernor: CAS conflict, retrying")
			continue
		}
		return err
	}
	return ErrCASRetriesExceeded
}
