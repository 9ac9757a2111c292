// Package redisgovernor implements a distributed GCRA (Generic Cell Rate
// Algorithm) rate limiter coordinated across processes through a Governor:
// a fleet of workers agrees on a single shared epoch and measures admission
// decisions against one another's writes via Redis optimistic locking
// (WATCH/MULTI/EXEC), rather than each process racing an independent
// Lua script.
//
// # Quick Start — in-memory
//
//	limiter, err := redisgovernor.NewGCRA(redisgovernor.PerSecond(10))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := limiter.Allow(ctx, "user:123")
//	if result.Allowed {
//	    // serve request
//	}
//
// # Distributed GCRA
//
// Multiple processes sharing a key prefix coordinate through a [Governor]:
// each worker calls [Governor.Instance] to obtain its own leased connection,
// Remote Clock, and Remote State Store, then builds a [Limiter] against it.
// An Instance is not safe for concurrent use; one per worker goroutine.
//
//	gov := redisgovernor.New(redisClient, "api")
//	inst := gov.Instance()
//	defer inst.Close()
//
//	limiter, _ := redisgovernor.NewGCRA(redisgovernor.PerMinute(12),
//	    redisgovernor.WithGovernorInstance(inst),
//	)
//
// [Limiter] returns a [Result] with Allowed, Remaining, Limit, ResetAt, and
// RetryAfter fields. [Instance.Wipe] clears both the shared epoch and the
// entry hash, so a fresh epoch is elected on next use.
package redisgovernor
