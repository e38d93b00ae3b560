package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestRedisRefreshValidatorLifecycle(t *testing.T) {
	mr := miniredis.RunT(t)
	v := NewRedisRefreshValidator(mr.Addr(), "")
	ctx := context.Background()

	if err := v.Register(ctx, "u1", "tok-1", time.Hour); err != nil {
		t.Fatalf("register: %v", err)
	}
	owner, ok, err := v.Validate(ctx, "tok-1")
	if err != nil || !ok || owner != "u1" {
		t.Fatalf("validate: owner=%q ok=%v err=%v", owner, ok, err)
	}

	if err := v.Register(ctx, "u1", "tok-2", time.Hour); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok, _ := v.Validate(ctx, "tok-1"); ok {
		t.Fatalf("rotated-out token must be invalid")
	}
	if known, _ := v.HasOwner(ctx, "u1"); !known {
		t.Fatalf("owner must have a live registration")
	}

	if err := v.RevokeOwner(ctx, "u1"); err != nil {
		t.Fatalf("revoke owner: %v", err)
	}
	if _, ok, _ := v.Validate(ctx, "tok-2"); ok {
		t.Fatalf("revoked token must be invalid")
	}
}

func TestRedisRefreshValidatorExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	v := NewRedisRefreshValidator(mr.Addr(), "")
	ctx := context.Background()

	if err := v.Register(ctx, "u1", "tok-1", time.Second); err != nil {
		t.Fatalf("register: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, ok, _ := v.Validate(ctx, "tok-1"); ok {
		t.Fatalf("expired token must be invalid")
	}
	if known, _ := v.HasOwner(ctx, "u1"); known {
		t.Fatalf("expired registration must not count as live")
	}
}
