package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterEnforcesLimit(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	if !limiter.Allow("session-confirm") {
		t.Fatalf("first request should be allowed")
	}
	if !limiter.Allow("session-confirm") {
		t.Fatalf("second request should be allowed")
	}
	if limiter.Allow("session-confirm") {
		t.Fatalf("third request should be rejected")
	}
	if !limiter.Allow("other-key") {
		t.Fatalf("separate key should have its own quota")
	}
}

func TestFixedWindowLimiterFailsClosedWithoutRedis(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "", 1, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	redis.Close()
	if limiter.Allow("any") {
		t.Fatalf("expected fail-closed when redis is down")
	}
}

func TestFixedWindowLimiterRejectsBadConfig(t *testing.T) {
	if _, err := NewRedisFixedWindowLimiter("localhost:6379", "", "", 0, time.Minute); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := NewRedisFixedWindowLimiter("", "", "", 1, time.Minute); err == nil {
		t.Fatalf("expected error for missing addr")
	}
}
