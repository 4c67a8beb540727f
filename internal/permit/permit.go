// Package permit provides a bounded counting permit with FIFO waiter
// fairness, used by the listener container to cap concurrent message
// handler invocations.
package permit

import (
	"context"
	"sync"
)

// Permit is a counting semaphore initialized with a fixed capacity N.
// Unlike a buffered-channel semaphore, Permit guarantees that a waiter
// already queued when a release happens is granted the permit before
// any goroutine that calls Acquire afterward - a buffered channel alone
// cannot make that guarantee, since a fresh receive can race an
// already-parked one.
type Permit struct {
	mu       sync.Mutex
	max      int
	permits  int
	waiters  []chan struct{}
}

// New creates a Permit with capacity n. n must be >= 1.
func New(n int) *Permit {
	if n < 1 {
		n = 1
	}
	return &Permit{max: n, permits: n}
}

// Acquire blocks until a permit is available, honoring ctx cancellation.
// If ctx is cancelled while queued, Acquire returns ctx.Err() and does
// not consume a permit.
func (p *Permit) Acquire(ctx context.Context) error {
	p.mu.Lock()
	if p.permits > 0 && len(p.waiters) == 0 {
		p.permits--
		p.mu.Unlock()
		return nil
	}

	wait := make(chan struct{})
	p.waiters = append(p.waiters, wait)
	p.mu.Unlock()

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		p.cancelWaiter(wait)
		return ctx.Err()
	}
}

// cancelWaiter removes wait from the queue if it has not yet been
// granted. If it was already granted (the channel was closed and
// removed from the slice between the select firing and this call),
// the permit it carried is released back to the pool so it is not
// leaked.
func (p *Permit) cancelWaiter(wait chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, w := range p.waiters {
		if w == wait {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}

	// Not found: it was already popped and granted by Release racing
	// with ctx cancellation. Treat it as an immediate Release so the
	// permit isn't lost.
	select {
	case <-wait:
		// already granted, but caller is abandoning it - put it back.
		p.releaseLocked()
	default:
	}
}

// Release returns a permit to the pool, or hands it directly to the
// oldest queued waiter if one exists.
func (p *Permit) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

func (p *Permit) releaseLocked() {
	if len(p.waiters) > 0 {
		next := p.waiters[0]
		p.waiters = p.waiters[1:]
		close(next)
		return
	}
	if p.permits < p.max {
		p.permits++
	}
}

// Available returns the number of permits not currently checked out,
// not counting queued waiters. Intended for metrics/tests.
func (p *Permit) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permits
}

// Waiting returns the number of goroutines currently queued for a
// permit. Intended for metrics/tests.
func (p *Permit) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}
