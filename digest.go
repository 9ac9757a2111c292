package redisgovernor

import (
	"fmt"

	"github.com/dchest/siphash"
)

// digestKey maps an arbitrary user-supplied rate-limit key to a short,
// stable, hex-formatted string used in Redis key composition. It is the
// hex rendering of a 64-bit SipHash-2-4 finish, keyed with zero so the
// digest is stable across processes in a deployment — required, since
// independent workers must compute the same Redis field name for the
// same logical key.
//
// This is not a cryptographic hash: collisions are a deliberate trade for
// a short key. At ~65k distinct live keys under one prefix, the birthday
// bound puts collision risk at roughly 1-in-2^32. A collision conflates
// two logical rate limiters under one Redis slot — a safe failure mode,
// not a correctness violation.
func digestKey(key string) string {
	h := siphash.Hash(0, 0, []byte(key))
	return fmt.Sprintf("%016x", h)
}
