package executor

import (
	"errors"
	"time"

	"github.com/openmined/docsync/internal/cancel"
	"github.com/openmined/docsync/internal/planner"
)

const (
	DefaultConcurrency      = 8
	DefaultMaxAttempts      = 3
	DefaultBaseDelay        = time.Second
	DefaultBreakerThreshold = 3
)

var (
	// ErrCancelled marks actions that were never finished because the run was cancelled.
	ErrCancelled = cancel.ErrCancelled
	// ErrRemoteUnreachable fails actions once repeated connection failures opened the breaker.
	ErrRemoteUnreachable = errors.New("remote unreachable, aborting remaining actions")
)

// TransferResult is the outcome of one upload or delete.
type TransferResult struct {
	Action  planner.SyncAction
	Success bool
	Err     error
	// Retries counts failed attempts, so a failure after N attempts reports N
	// and a delete, which is tried once, reports 1 when it fails.
	Retries   int
	Cancelled bool
	Duration  time.Duration
}

// Failed reports whether the result counts as a failure. Cancelled actions never do.
func (r TransferResult) Failed() bool {
	return !r.Success && !r.Cancelled
}

// Totals are the running counts handed to the progress callback.
type Totals struct {
	Done      int
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
}

// ProgressFunc is called once per finished action. Calls are serialised.
type ProgressFunc func(result TransferResult, totals Totals)

type Options struct {
	// Concurrency is the number of actions in flight at once.
	Concurrency int
	// MaxAttempts bounds upload attempts, the first one included.
	MaxAttempts int
	// BaseDelay is the first backoff; it doubles on every further retry.
	BaseDelay time.Duration
	// BreakerThreshold is the number of consecutive connection failures that
	// aborts the remaining batch. Zero or less disables the breaker.
	BreakerThreshold int
	// Sleep waits between attempts. Defaults to a timer honouring ctx.
	Sleep SleepFunc
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay < 0 {
		o.BaseDelay = 0
	} else if o.BaseDelay == 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	return o
}
