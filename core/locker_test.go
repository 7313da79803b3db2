package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRefreshLockerAcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryRefreshLocker()

	handle, err := locker.Acquire(ctx, "default", time.Minute)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, err := locker.Acquire(ctx, "default", time.Minute); !errors.Is(err, ErrRefreshLockHeld) {
		t.Fatalf("expected ErrRefreshLockHeld while held, got %v", err)
	}

	// Different keys do not contend.
	other, err := locker.Acquire(ctx, "tenant-b", time.Minute)
	if err != nil {
		t.Fatalf("acquire for different key failed: %v", err)
	}
	_ = other.Unlock(ctx)

	if err := handle.Unlock(ctx); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
	// Unlock is idempotent.
	if err := handle.Unlock(ctx); err != nil {
		t.Fatalf("second unlock failed: %v", err)
	}

	if _, err := locker.Acquire(ctx, "default", time.Minute); err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
}

func TestMemoryRefreshLockerExpiredLockIsReacquirable(t *testing.T) {
	ctx := context.Background()
	current := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	locker := NewMemoryRefreshLocker()
	locker.nowFn = func() time.Time { return current }

	if _, err := locker.Acquire(ctx, "default", 30*time.Second); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	current = current.Add(31 * time.Second)
	if _, err := locker.Acquire(ctx, "default", 30*time.Second); err != nil {
		t.Fatalf("expected expired lock to be reacquirable, got %v", err)
	}
}

func TestMemoryRefreshLockerValidation(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryRefreshLocker()

	if _, err := locker.Acquire(ctx, "  ", time.Minute); err == nil {
		t.Fatal("expected error for blank key")
	}
}
