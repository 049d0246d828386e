// Package executor runs the uploads and deletes of a sync plan on a bounded
// worker pool, retrying transient upload failures with exponential backoff.
//
// Every action is independent: one failing, retrying or being cancelled never
// changes the outcome of another. There is no rollback.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/openmined/docsync/internal/cancel"
	"github.com/openmined/docsync/internal/planner"
	"github.com/openmined/docsync/internal/remote"
)

// Executor applies plan actions to one store.
type Executor struct {
	store   remote.Store
	storeID string
	opts    Options
}

// New creates an executor for the store identified by storeID.
func New(store remote.Store, storeID string, opts Options) *Executor {
	return &Executor{
		store:   store,
		storeID: storeID,
		opts:    opts.withDefaults(),
	}
}

// Run executes plan.Uploads and plan.Deletes and returns one result per
// action, in completion order. Skips need no work and produce no result.
func (e *Executor) Run(sig cancel.Signal, plan *planner.SyncPlan, onProgress ProgressFunc) []TransferResult {
	actions := make([]planner.SyncAction, 0, plan.Mutations())
	actions = append(actions, plan.Uploads...)
	actions = append(actions, plan.Deletes...)

	run := &batch{
		Executor:   e,
		sig:        sig,
		breaker:    newBreaker(e.opts.BreakerThreshold),
		onProgress: onProgress,
		results:    make([]TransferResult, 0, len(actions)),
		totals:     Totals{Total: len(actions)},
	}
	if len(actions) == 0 {
		return run.results
	}

	workers := min(e.opts.Concurrency, len(actions))
	opsChan := make(chan planner.SyncAction)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for action := range opsChan {
				run.record(run.execute(action))
			}
		}()
	}

	tStart := time.Now()
schedule:
	for i, action := range actions {
		// hand out work only while a worker is free and the run is still live
		if run.cancelled() {
			run.drain(actions[i:])
			break
		}
		select {
		case opsChan <- action:
		case <-sig.Done():
			run.drain(actions[i:])
			break schedule
		}
	}
	close(opsChan)
	wg.Wait()

	slog.Info("transfer batch finished",
		"total", run.totals.Total,
		"succeeded", run.totals.Succeeded,
		"failed", run.totals.Failed,
		"cancelled", run.totals.Cancelled,
		"took", time.Since(tStart),
	)
	return run.results
}

// batch is the state shared by the workers of one Run.
type batch struct {
	*Executor
	sig        cancel.Signal
	breaker    *breaker
	onProgress ProgressFunc

	mu      sync.Mutex
	results []TransferResult
	totals  Totals
}

func (b *batch) cancelled() bool {
	return b.sig.Cancelled() || b.sig.Context().Err() != nil
}

// drain records actions that were never handed to a worker as cancelled.
func (b *batch) drain(rest []planner.SyncAction) {
	for _, action := range rest {
		b.record(TransferResult{Action: action, Cancelled: true, Err: ErrCancelled})
	}
}

func (b *batch) record(res TransferResult) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.results = append(b.results, res)
	b.totals.Done++
	switch {
	case res.Success:
		b.totals.Succeeded++
	case res.Cancelled:
		b.totals.Cancelled++
	default:
		b.totals.Failed++
	}

	if b.onProgress != nil {
		b.onProgress(res, b.totals)
	}
}

func (b *batch) execute(action planner.SyncAction) TransferResult {
	start := time.Now()
	var res TransferResult
	switch action.Kind {
	case planner.ActionUpload:
		res = b.upload(action)
	case planner.ActionDelete:
		res = b.delete(action)
	default:
		res = TransferResult{Action: action, Err: fmt.Errorf("unexpected action kind %q", action.Kind)}
	}
	res.Duration = time.Since(start)
	return res
}

func (b *batch) upload(action planner.SyncAction) TransferResult {
	ctx := b.sig.Context()
	req := remote.UploadRequest{
		Identity:    action.Identity(),
		DisplayName: action.Identity(),
		ContentHash: action.Hash,
		Path:        action.Local.AbsPath,
		Size:        action.Local.Size,
		Replaces:    action.Remote,
	}

	failures := 0
	var lastErr error
	for attempt := range b.opts.MaxAttempts {
		if b.cancelled() {
			return b.cancelledResult(action, failures)
		}
		if res, open := b.breakerResult(action, "upload", failures); open {
			return res
		}

		if attempt > 0 {
			delay := backoff(b.opts.BaseDelay, attempt)
			slog.Debug("sync", "op", planner.ActionUpload, "path", req.Identity, "retry", attempt, "backoff", delay, "error", lastErr)
			if err := b.opts.Sleep(ctx, delay); err != nil || b.cancelled() {
				return b.cancelledResult(action, failures)
			}
			if res, open := b.breakerResult(action, "upload", failures); open {
				return res
			}
		}

		_, err := b.store.UploadFile(ctx, b.storeID, req)
		if err == nil {
			b.breaker.reachable()
			slog.Info("sync", "op", planner.ActionUpload, "path", req.Identity, "reason", action.Reason, "size", humanize.Bytes(uint64(req.Size)), "retries", failures)
			return TransferResult{Action: action, Success: true, Retries: failures}
		}

		if b.isCancellation(err) {
			return b.cancelledResult(action, failures)
		}

		failures++
		lastErr = err
		b.observe(err)

		if !remote.IsRetryable(err) {
			slog.Error("sync", "op", planner.ActionUpload, "path", req.Identity, "attempt", attempt+1, "error", err, "retryable", false)
			break
		}
		slog.Warn("sync", "op", planner.ActionUpload, "path", req.Identity, "attempt", attempt+1, "of", b.opts.MaxAttempts, "error", err)
	}

	return TransferResult{Action: action, Err: lastErr, Retries: failures}
}

func (b *batch) delete(action planner.SyncAction) TransferResult {
	if b.cancelled() {
		return b.cancelledResult(action, 0)
	}
	if res, open := b.breakerResult(action, "delete", 0); open {
		return res
	}

	err := b.store.DeleteFile(b.sig.Context(), b.storeID, *action.Remote)
	if err == nil {
		b.breaker.reachable()
		slog.Info("sync", "op", planner.ActionDelete, "path", action.Identity(), "id", action.Remote.ID, "reason", action.Reason)
		return TransferResult{Action: action, Success: true}
	}
	if b.isCancellation(err) {
		return b.cancelledResult(action, 0)
	}

	b.observe(err)
	slog.Error("sync", "op", planner.ActionDelete, "path", action.Identity(), "id", action.Remote.ID, "error", err)
	return TransferResult{Action: action, Err: err, Retries: 1}
}

// observe feeds a failed call into the connection breaker.
func (b *batch) observe(err error) {
	if remote.KindOf(err) == remote.KindConnection {
		b.breaker.connectionFailure(err)
		return
	}
	b.breaker.reachable()
}

func (b *batch) isCancellation(err error) bool {
	if remote.KindOf(err) == remote.KindCancelled {
		return true
	}
	return b.cancelled() && (errors.Is(err, context.Canceled) || errors.Is(err, cancel.ErrCancelled))
}

func (b *batch) cancelledResult(action planner.SyncAction, failures int) TransferResult {
	slog.Debug("sync", "op", action.Kind, "path", action.Identity(), "status", "cancelled")
	return TransferResult{Action: action, Cancelled: true, Err: ErrCancelled, Retries: failures}
}

func (b *batch) breakerResult(action planner.SyncAction, op string, failures int) (TransferResult, bool) {
	open, cause := b.breaker.tripped()
	if !open {
		return TransferResult{}, false
	}
	err := remote.Connection(op, action.Identity(), fmt.Errorf("%w: %v", ErrRemoteUnreachable, cause))
	return TransferResult{Action: action, Err: err, Retries: failures}, true
}
