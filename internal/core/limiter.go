package core

// limiter.go bounds how many imports run at once.
//
// Imports hold a store transaction and table locks for their whole run, so
// running many in one process only makes them queue on each other's locks.
// Callers past the limit wait up to maxWait before ErrTooManyImports.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyImports is returned when no import slot frees up within the wait time.
var ErrTooManyImports = errors.New("too many concurrent imports, try again later")

const (
	defaultMaxConcurrentImports = 1
	defaultMaxWaitTime          = 5 * time.Minute
	drainPollInterval           = 100 * time.Millisecond
)

// ImportLimiter is a counting semaphore for imports.
type ImportLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int32
}

// NewImportLimiter allows at most maxConcurrent imports at a time.
// Non-positive arguments fall back to the defaults.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = defaultMaxWaitTime
	}
	return &ImportLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot. The caller must Release it when the import ends.
func (l *ImportLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyImports
	}
}

// Release frees a slot taken by Acquire.
func (l *ImportLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// Active returns the number of imports holding a slot.
func (l *ImportLimiter) Active() int {
	return int(l.active.Load())
}

// WaitForDrain blocks until no import holds a slot or ctx ends.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	if l.Active() == 0 {
		return nil
	}

	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.Active() == 0 {
				return nil
			}
		}
	}
}

// ImportLimiterStatus is a snapshot of limiter usage.
type ImportLimiterStatus struct {
	Active        int
	Available     int
	MaxConcurrent int
}

// Status returns current limiter usage.
func (l *ImportLimiter) Status() ImportLimiterStatus {
	return ImportLimiterStatus{
		Active:        l.Active(),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}
