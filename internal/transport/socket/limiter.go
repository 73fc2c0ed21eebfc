package socket

// limiter.go caps the number of inbound connections served at once.
//
// The accept loop acquires a slot before handing a connection to a worker
// and the worker releases it when the connection closes. At shutdown
// WaitForDrain blocks until every worker has returned.

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxConnections is used when the configured limit is not positive.
const DefaultMaxConnections = 64

// ConnLimiter is a counting semaphore over connection workers.
type ConnLimiter struct {
	semaphore chan struct{}

	mu     sync.RWMutex
	active int
}

// NewConnLimiter creates a limiter that admits at most maxConns workers.
func NewConnLimiter(maxConns int) *ConnLimiter {
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	return &ConnLimiter{semaphore: make(chan struct{}, maxConns)}
}

// Acquire blocks until a slot is free or ctx is done.
// The caller MUST call Release() when the worker exits.
func (l *ConnLimiter) Acquire(ctx context.Context) error {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (l *ConnLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of running workers.
func (l *ConnLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConnections returns the configured limit.
func (l *ConnLimiter) MaxConnections() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *ConnLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no worker is active or ctx is done.
func (l *ConnLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
