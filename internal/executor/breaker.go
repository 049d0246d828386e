package executor

import (
	"sync"
)

// breaker counts consecutive connection failures across all workers.
type breaker struct {
	threshold int

	mu          sync.Mutex
	consecutive int
	open        bool
	cause       error
}

func newBreaker(threshold int) *breaker {
	return &breaker{threshold: threshold}
}

// connectionFailure records a failure to reach the store.
func (b *breaker) connectionFailure(err error) {
	if b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive++
	if !b.open && b.consecutive >= b.threshold {
		b.open = true
		b.cause = err
	}
}

// reachable records any outcome that proves the store answered.
func (b *breaker) reachable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
}

// tripped reports whether the breaker opened, and the failure that opened it.
// Once open it stays open for the rest of the run.
func (b *breaker) tripped() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open, b.cause
}
