package workflow

import (
	"context"
	"sync"
)

// memoryLocker serializes applies within a single process. Deployments with
// Redis use the distributed locker from the persistence package instead.
type memoryLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemoryLocker builds an in-process ticket locker.
func NewMemoryLocker() TicketLocker {
	return &memoryLocker{held: make(map[string]struct{})}
}

func (l *memoryLocker) Acquire(_ context.Context, ticketID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[ticketID]; ok {
		return nil, ErrLockHeld
	}
	l.held[ticketID] = struct{}{}
	release := func() {
		l.mu.Lock()
		delete(l.held, ticketID)
		l.mu.Unlock()
	}
	return release, nil
}
