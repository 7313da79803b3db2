package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrRefreshLockHeld is returned when another refresh pass already holds the
// advisory lock for a credential key.
var ErrRefreshLockHeld = fmt.Errorf("core: refresh lock already held")

// MemoryRefreshLocker is a process-local RefreshLocker. Deployments running
// multiple instances against a shared database should swap in a distributed
// implementation; single-instance deployments get correct exclusion from
// this one combined with the in-flight request deduplication in Service.
type MemoryRefreshLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemoryRefreshLocker() *MemoryRefreshLocker {
	return &MemoryRefreshLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryRefreshLocker) Acquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: refresh locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: credential key is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.locks[key]; ok && now.Before(until) {
		return nil, fmt.Errorf("%w for credential key %q", ErrRefreshLockHeld, key)
	}
	l.locks[key] = now.Add(ttl)
	return &memoryLockHandle{locker: l, key: key}, nil
}

type memoryLockHandle struct {
	locker *MemoryRefreshLocker
	key    string
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.locks, h.key)
		h.locker.mu.Unlock()
	})
	return nil
}
