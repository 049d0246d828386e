// Package engine wires scanning, hashing, planning and execution into one
// sync run against a remote store.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/openmined/docsync/internal/cancel"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/executor"
	"github.com/openmined/docsync/internal/hasher"
	"github.com/openmined/docsync/internal/planner"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/scanner"
)

// Reporter renders a run for the user.
type Reporter interface {
	Plan(plan *planner.SyncPlan)
	Progress(result executor.TransferResult, totals executor.Totals)
	Summary(summary *Summary)
}

// Confirmer asks the user whether plan should be applied.
type Confirmer func(sig cancel.Signal, plan *planner.SyncPlan) (bool, error)

type Engine struct {
	cfg      *config.Config
	store    remote.Store
	reporter Reporter
	confirm  Confirmer

	// sleep overrides the executor backoff wait
	sleep executor.SleepFunc
}

// New returns an engine for a validated config. confirm may be nil when
// cfg.AutoConfirm is set.
func New(cfg *config.Config, store remote.Store, reporter Reporter, confirm Confirmer) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		reporter: reporter,
		confirm:  confirm,
	}
}

// Run performs one sync. Setup failures (scan, hash, listing) are returned as
// errors before anything is mutated. Per action failures are reported in the
// summary only.
func (e *Engine) Run(token *cancel.Token) (*Summary, error) {
	start := time.Now()
	summary := &Summary{DryRun: e.cfg.DryRun}
	finish := func() (*Summary, error) {
		summary.Duration = time.Since(start)
		e.reporter.Summary(summary)
		return summary, nil
	}

	token.OnCancel(func() {
		slog.Warn("sync cancel requested, finishing in-flight transfers")
	})

	plan, err := e.prepare(token)
	if err != nil {
		if token.Cancelled() {
			summary.Interrupted = true
			return finish()
		}
		return nil, err
	}

	summary.Plan = plan
	summary.Skipped = len(plan.Skips)
	e.reporter.Plan(plan)

	if e.cfg.DryRun || !plan.HasWork() {
		slog.Debug("sync nothing to execute", "dryRun", e.cfg.DryRun, "mutations", plan.Mutations())
		return finish()
	}

	if !e.cfg.AutoConfirm {
		ok, err := e.ask(token, plan)
		if err != nil {
			if token.Cancelled() {
				summary.Interrupted = true
				return finish()
			}
			return nil, err
		}
		if !ok {
			slog.Info("sync declined")
			summary.Declined = true
			return finish()
		}
	}

	ex := executor.New(e.store, e.cfg.Store, executor.Options{
		Concurrency:      e.cfg.Concurrency,
		MaxAttempts:      e.cfg.MaxAttempts,
		BaseDelay:        e.cfg.BaseDelay,
		BreakerThreshold: e.cfg.BreakerThreshold,
		Sleep:            e.sleep,
	})
	results := ex.Run(token, plan, e.reporter.Progress)

	summary.tally(results)
	// a cancel that lands after the last action finished changes nothing
	summary.Interrupted = summary.Cancelled > 0
	slog.Info("sync done",
		"uploaded", summary.Uploaded,
		"deleted", summary.Deleted,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"cancelled", summary.Cancelled,
		"took", time.Since(start),
	)
	return finish()
}

// prepare scans, hashes and lists the remote store, then diffs them.
func (e *Engine) prepare(token *cancel.Token) (*planner.SyncPlan, error) {
	ctx := token.Context()

	local, err := scanner.Scan(ctx, scanner.Options{
		BaseDir: e.cfg.BaseDir,
		Include: e.cfg.Include,
		Exclude: e.cfg.Exclude,
	})
	if err != nil {
		return nil, err
	}

	var total int64
	for _, f := range local {
		total += f.Size
	}
	slog.Info("sync scanned", "dir", e.cfg.BaseDir, "files", len(local), "size", humanize.Bytes(uint64(total)))

	hashes, err := hasher.HashFiles(ctx, local, e.cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("hash local files: %w", err)
	}

	remoteFiles, err := e.store.ListFiles(ctx, e.cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("list store %q: %w", e.cfg.Store, err)
	}
	slog.Info("sync listed", "store", e.cfg.Store, "documents", len(remoteFiles))

	plan, err := planner.Plan(local, hashes, remoteFiles, planner.Options{Delete: e.cfg.Delete})
	if err != nil {
		return nil, err
	}
	slog.Info("sync planned",
		"uploads", len(plan.Uploads),
		"skips", len(plan.Skips),
		"deletes", len(plan.Deletes),
	)
	return plan, nil
}

func (e *Engine) ask(token *cancel.Token, plan *planner.SyncPlan) (bool, error) {
	if e.confirm == nil {
		return false, &config.Error{Key: "yes", Reason: "no way to confirm the plan, rerun with --yes"}
	}
	return e.confirm(token, plan)
}
