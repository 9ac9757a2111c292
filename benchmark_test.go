package redisgovernor

import (
	"context"
	"testing"
	"time"
)

// ─── Single-key (serial) ─────────────────────────────────────────────────────

func BenchmarkGCRA(b *testing.B) {
	l, _ := NewGCRA(NewQuota(time.Second, int64(b.N)+1))
	benchAllow(b, l)
}

// ─── Parallel (contended single key) ─────────────────────────────────────────

func BenchmarkGCRA_Parallel(b *testing.B) {
	l, _ := NewGCRA(NewQuota(time.Second, 1<<62))
	benchAllowParallel(b, l, "shared")
}

// ─── AllowN ──────────────────────────────────────────────────────────────────

func BenchmarkGCRA_AllowN(b *testing.B) {
	l, _ := NewGCRA(NewQuota(time.Second, 1<<62))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = l.AllowN(ctx, "k", 5)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func benchAllow(b *testing.B, l Limiter) {
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = l.Allow(ctx, "k")
	}
}

func benchAllowParallel(b *testing.B, l Limiter, key string) {
	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = l.Allow(ctx, key)
		}
	})
}
