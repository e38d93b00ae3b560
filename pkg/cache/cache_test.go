package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestFileSlotStoreRoundTrip(t *testing.T) {
	store, err := NewFileSlotStore(t.TempDir())
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	runSlotStoreTests(t, store)
}

func TestRedisSlotStoreRoundTrip(t *testing.T) {
	redis := miniredis.RunT(t)
	runSlotStoreTests(t, NewRedisSlotStore(redis.Addr(), "", "test:slots"))
}

func runSlotStoreTests(t *testing.T, store SlotStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, SlotCartItems); err != nil || ok {
		t.Fatalf("missing slot: got ok=%v err=%v, want absent", ok, err)
	}

	payload := []byte(`[{"book":{"id":"b1"},"quantity":2}]`)
	if err := store.Set(ctx, SlotCartItems, payload); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := store.Get(ctx, SlotCartItems)
	if err != nil || !ok {
		t.Fatalf("get after set: ok=%v err=%v", ok, err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: %q", got)
	}

	// Slots are independent.
	if _, ok, _ := store.Get(ctx, SlotShippingAddress); ok {
		t.Fatalf("shipping slot should be empty")
	}

	if err := store.Set(ctx, SlotCartItems, []byte("[]")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, _ = store.Get(ctx, SlotCartItems)
	if string(got) != "[]" {
		t.Fatalf("overwrite mismatch: %q", got)
	}

	if err := store.Delete(ctx, SlotCartItems); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, SlotCartItems); ok {
		t.Fatalf("slot should be gone after delete")
	}
	if err := store.Delete(ctx, SlotCartItems); err != nil {
		t.Fatalf("deleting a missing slot should be a no-op, got %v", err)
	}
}
