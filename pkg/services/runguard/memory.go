package runguard

import (
	"context"
	"sync/atomic"
	"time"
)

type memoryLease struct {
	holder  string
	expires time.Time
}

// MemoryLock guards runs within one process.
type MemoryLock struct {
	state atomic.Pointer[memoryLease]
	now   func() time.Time
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{now: time.Now}
}

func (l *MemoryLock) Name() string {
	return "memory"
}

func (l *MemoryLock) Acquire(_ context.Context, holder string, lease time.Duration) (bool, error) {
	next := &memoryLease{holder: holder, expires: l.now().Add(lease)}
	for {
		cur := l.state.Load()
		if cur != nil && l.now().Before(cur.expires) {
			return false, nil
		}
		if l.state.CompareAndSwap(cur, next) {
			return true, nil
		}
	}
}

func (l *MemoryLock) Release(_ context.Context, holder string) error {
	cur := l.state.Load()
	if cur == nil || cur.holder != holder {
		return nil
	}
	l.state.CompareAndSwap(cur, nil)
	return nil
}
