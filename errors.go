package redisgovernor

import (
	"errors"
	"fmt"
	"time"
)

// TransportError wraps a failure of one of the individual Redis commands
// this package issues: connection refused, protocol violations,
// unexpected reply types. Errors from the WATCH/MULTI/EXEC transaction
// itself (other than a conflict, which is retried) are returned as
// go-redis reports them and are not wrapped in a TransportError. Failures
// are returned as errors rather than panicking, so callers can apply
// their own fail-open or fail-closed policy.
type TransportError struct {
	// Op names the Redis command or phase that failed (e.g. "TIME", "HGET",
	// "DEL hash").
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("redisgovernor: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func transportErr(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// errUnexpectedReply marks a Redis reply that doesn't match the shape this
// package expects for a given command (e.g. TIME returning the wrong
// arity). Always wrapped in a TransportError before leaving this package.
var errUnexpectedReply = errors.New("redisgovernor: unexpected reply shape")

// ErrCASRetriesExceeded is returned by the CAS loop protocol when a key
// remains contended past maxCASRetries, bounding retry instead of looping
// forever under pathological contention.
var ErrCASRetriesExceeded = errors.New("redisgovernor: exceeded maximum compare-and-set retries")

// DeniedError is the decision-rejection outcome from the GCRA engine: the
// key is over quota until NotUntil. It is returned from the decide
// callback passed to Store.MeasureAndReplace and never reaches a caller of
// Limiter.Allow directly — Allow translates it into a denied *Result
// instead, since a rate-limit denial is an ordinary outcome, not a
// transport or backend failure.
type DeniedError struct {
	NotUntil   time.Time
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("redisgovernor: rate limited, retry after %s", e.RetryAfter)
}
