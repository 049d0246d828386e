package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmined/docsync/internal/cancel"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/executor"
	"github.com/openmined/docsync/internal/planner"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/remote/memstore"
)

const storeID = "corpus"

type recorder struct {
	mu       sync.Mutex
	plans    []*planner.SyncPlan
	progress []executor.Totals
	summary  *Summary
}

func (r *recorder) Plan(plan *planner.SyncPlan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = append(r.plans, plan)
}

func (r *recorder) Progress(_ executor.TransferResult, totals executor.Totals) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, totals)
}

func (r *recorder) Summary(s *Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summary = s
}

// failingStore rejects uploads for selected identities.
type failingStore struct {
	*memstore.Store
	uploadErr map[string]error
	listErr   error
}

func (f *failingStore) ListFiles(ctx context.Context, store string) ([]remote.RemoteFile, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListFiles(ctx, store)
}

func (f *failingStore) UploadFile(ctx context.Context, store string, req remote.UploadRequest) (*remote.RemoteFile, error) {
	if err := f.uploadErr[req.Identity]; err != nil {
		return nil, err
	}
	return f.Store.UploadFile(ctx, store, req)
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.BaseDir = t.TempDir()
	cfg.Store = storeID
	cfg.Backend = config.BackendMemory
	cfg.AutoConfirm = true
	cfg.Delete = true
	cfg.BaseDelay = time.Millisecond
	require.NoError(t, cfg.Validate())
	return cfg
}

func run(t *testing.T, cfg *config.Config, store remote.Store, confirm Confirmer) (*Summary, *recorder, error) {
	t.Helper()
	rec := &recorder{}
	eng := New(cfg, store, rec, confirm)
	eng.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	summary, err := eng.Run(cancel.New(context.Background()))
	return summary, rec, err
}

func TestRunWorkedExample(t *testing.T) {
	cfg := testConfig(t)
	writeFiles(t, cfg.BaseDir, map[string]string{"a.txt": "X", "b.txt": "Y"})

	store := memstore.New()
	store.Seed(storeID,
		remote.RemoteFile{Identity: "a.txt", DisplayName: "a.txt", ContentHash: digest("X")},
		remote.RemoteFile{Identity: "c.txt", DisplayName: "c.txt", ContentHash: digest("Z")},
	)

	summary, rec, err := run(t, cfg, store, nil)
	require.NoError(t, err)

	require.Len(t, rec.plans, 1)
	plan := rec.plans[0]
	require.Len(t, plan.Uploads, 1)
	assert.Equal(t, "b.txt", plan.Uploads[0].Identity())
	assert.Equal(t, planner.ReasonNewFile, plan.Uploads[0].Reason)
	require.Len(t, plan.Skips, 1)
	assert.Equal(t, "a.txt", plan.Skips[0].Identity())
	require.Len(t, plan.Deletes, 1)
	assert.Equal(t, "c.txt", plan.Deletes[0].Identity())
	assert.Equal(t, planner.ReasonNotLocal, plan.Deletes[0].Reason)

	assert.Equal(t, 1, summary.Uploaded)
	assert.Equal(t, 1, summary.Deleted)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, ExitOK, summary.ExitCode())
	assert.Len(t, rec.progress, 2)
	assert.Same(t, summary, rec.summary)

	content, ok := store.Content(storeID, "b.txt")
	require.True(t, ok)
	assert.Equal(t, "Y", string(content))
	_, ok = store.Content(storeID, "c.txt")
	assert.False(t, ok)
}

func TestRunIdempotent(t *testing.T) {
	cfg := testConfig(t)
	writeFiles(t, cfg.BaseDir, map[string]string{
		"a.txt":           "alpha",
		"notes/b.md":      "beta",
		"notes/deep/c.md": "gamma",
	})
	store := memstore.New()
	store.Seed(storeID, remote.RemoteFile{Identity: "legacy.txt"})

	first, _, err := run(t, cfg, store, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Uploaded)
	assert.Equal(t, 1, first.Deleted)

	second, rec, err := run(t, cfg, store, nil)
	require.NoError(t, err)
	plan := rec.plans[0]
	assert.Empty(t, plan.Uploads)
	assert.Empty(t, plan.Deletes)
	assert.Len(t, plan.Skips, 3)
	assert.False(t, second.Executed())
	assert.Empty(t, rec.progress)
	assert.Equal(t, ExitOK, second.ExitCode())
}

func TestRunChangedContentReplaces(t *testing.T) {
	cfg := testConfig(t)
	writeFiles(t, cfg.BaseDir, map[string]string{"a.txt": "v1"})
	store := memstore.New()

	_, _, err := run(t, cfg, store, nil)
	require.NoError(t, err)

	writeFiles(t, cfg.BaseDir, map[string]string{"a.txt": "v2"})
	summary, rec, err := run(t, cfg, store, nil)
	require.NoError(t, err)
	require.Len(t, rec.plans[0].Uploads, 1)
	assert.Equal(t, planner.ReasonChanged, rec.plans[0].Uploads[0].Reason)
	assert.Equal(t, 1, summary.Uploaded)

	files, err := store.ListFiles(context.Background(), storeID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, digest("v2"), files[0].ContentHash)
}

func TestRunDryRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true
	writeFiles(t, cfg.BaseDir, map[string]string{"a.txt": "X"})
	store := memstore.New()
	store.Seed(storeID, remote.RemoteFile{Identity: "c.txt"})

	summary, rec, err := run(t, cfg, store, nil)
	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.False(t, summary.Executed())
	assert.Len(t, rec.plans[0].Uploads, 1)
	assert.Equal(t, ExitOK, summary.ExitCode())

	files, _ := store.ListFiles(context.Background(), storeID)
	require.Len(t, files, 1)
	assert.Equal(t, "c.txt", files[0].Identity)
}

func TestRunDeleteDisabledKeepsOrphans(t *testing.T) {
	cfg := testConfig(t)
	cfg.Delete = false
	store := memstore.New()
	store.Seed(storeID, remote.RemoteFile{Identity: "c.txt"})

	summary, rec, err := run(t, cfg, store, nil)
	require.NoError(t, err)
	assert.Empty(t, rec.plans[0].Deletes)
	assert.Equal(t, ExitOK, summary.ExitCode())
}

func TestRunConfirmation(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AutoConfirm = false
		writeFiles(t, cfg.BaseDir, map[string]string{"a.txt": "X"})
		store := memstore.New()

		asked := 0
		summary, _, err := run(t, cfg, store, func(sig cancel.Signal, plan *planner.SyncPlan) (bool, error) {
			asked++
			assert.Equal(t, 1, plan.Mutations())
			return false, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, asked)
		assert.True(t, summary.Declined)
		assert.Equal(t, ExitCancelled, summary.ExitCode())
		_, ok := store.Content(storeID, "a.txt")
		assert.False(t, ok)
	})

	t.Run("accepted", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AutoConfirm = false
		writeFiles(t, cfg.BaseDir, map[string]string{"a.txt": "X"})

		summary, _, err := run(t, cfg, memstore.New(), func(cancel.Signal, *planner.SyncPlan) (bool, error) {
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Uploaded)
	})

	t.Run("not asked without work", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AutoConfirm = false

		summary, _, err := run(t, cfg, memstore.New(), func(cancel.Signal, *planner.SyncPlan) (bool, error) {
			t.Fatal("confirm called for an empty plan")
			return false, nil
		})
		require.NoError(t, err)
		assert.Equal(t, ExitOK, summary.ExitCode())
	})

	t.Run("no confirmer", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AutoConfirm = false
		writeFiles(t, cfg.BaseDir, map[string]string{"a.txt": "X"})

		_, _, err := run(t, cfg, memstore.New(), nil)
		require.Error(t, err)
		assert.True(t, config.IsConfigError(err))
	})

	t.Run("cancelled while asking", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.AutoConfirm = false
		writeFiles(t, cfg.BaseDir, map[string]string{"a.txt": "X"})

		rec := &recorder{}
		token := cancel.New(context.Background())
		eng := New(cfg, memstore.New(), rec, func(cancel.Signal, *planner.SyncPlan) (bool, error) {
			token.Cancel()
			return false, cancel.ErrCancelled
		})
		summary, err := eng.Run(token)
		require.NoError(t, err)
		assert.True(t, summary.Interrupted)
		assert.Equal(t, ExitCancelled, summary.ExitCode())
	})
}

func TestRunFailuresAreIsolated(t *testing.T) {
	cfg := testConfig(t)
	writeFiles(t, cfg.BaseDir, map[string]string{"good.txt": "1", "bad.txt": "2", "also-good.txt": "3"})

	store := &failingStore{
		Store:     memstore.New(),
		uploadErr: map[string]error{"bad.txt": remote.Client("upload", "bad.txt", errors.New("rejected"))},
	}
	summary, _, err := run(t, cfg, store, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Uploaded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, ExitFailure, summary.ExitCode())

	failures := summary.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "bad.txt", failures[0].Action.Identity())
	assert.Equal(t, 1, failures[0].Retries)
}

func TestRunListFailureAbortsBeforeMutation(t *testing.T) {
	cfg := testConfig(t)
	writeFiles(t, cfg.BaseDir, map[string]string{"a.txt": "X"})
	store := &failingStore{
		Store:   memstore.New(),
		listErr: remote.Connection("list", "", errors.New("connection refused")),
	}

	summary, rec, err := run(t, cfg, store, nil)
	require.Error(t, err)
	assert.Nil(t, summary)
	assert.Empty(t, rec.plans)
	assert.Equal(t, remote.KindConnection, remote.KindOf(err))
	_, ok := store.Content(storeID, "a.txt")
	assert.False(t, ok)
}

func TestRunScanFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.BaseDir = filepath.Join(cfg.BaseDir, "gone")

	_, _, err := run(t, cfg, memstore.New(), nil)
	require.Error(t, err)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	cfg := testConfig(t)
	writeFiles(t, cfg.BaseDir, map[string]string{"a.txt": "X"})

	rec := &recorder{}
	token := cancel.New(context.Background())
	token.Cancel()

	summary, err := New(cfg, memstore.New(), rec, nil).Run(token)
	require.NoError(t, err)
	assert.True(t, summary.Interrupted)
	assert.Nil(t, summary.Plan)
	assert.Equal(t, ExitCancelled, summary.ExitCode())
	assert.Same(t, summary, rec.summary)
}

// cancelAtEnd cancels the run from the progress callback of the last action.
type cancelAtEnd struct {
	recorder
	token *cancel.Token
}

func (c *cancelAtEnd) Progress(res executor.TransferResult, totals executor.Totals) {
	c.recorder.Progress(res, totals)
	if totals.Done == totals.Total {
		c.token.Cancel()
	}
}

func TestRunCancelAfterLastActionIsNotInterrupted(t *testing.T) {
	cfg := testConfig(t)
	writeFiles(t, cfg.BaseDir, map[string]string{"a.txt": "A", "b.txt": "B"})

	token := cancel.New(context.Background())
	rep := &cancelAtEnd{token: token}

	summary, err := New(cfg, memstore.New(), rep, nil).Run(token)
	require.NoError(t, err)
	assert.True(t, token.Cancelled())
	assert.Equal(t, 2, summary.Uploaded)
	assert.Zero(t, summary.Cancelled)
	assert.False(t, summary.Interrupted)
	assert.Equal(t, ExitOK, summary.ExitCode())
}

func TestSummaryExitCode(t *testing.T) {
	tests := []struct {
		name    string
		summary Summary
		want    int
	}{
		{"clean", Summary{Uploaded: 2}, ExitOK},
		{"failed", Summary{Failed: 1}, ExitFailure},
		{"failed and cancelled", Summary{Failed: 1, Cancelled: 3, Interrupted: true}, ExitFailure},
		{"cancelled", Summary{Cancelled: 3, Interrupted: true}, ExitCancelled},
		{"declined", Summary{Declined: true}, ExitCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.summary.ExitCode())
		})
	}
}

func TestSummaryTally(t *testing.T) {
	up := planner.SyncAction{Kind: planner.ActionUpload}
	del := planner.SyncAction{Kind: planner.ActionDelete}

	var s Summary
	s.tally([]executor.TransferResult{
		{Action: up, Success: true},
		{Action: up, Err: errors.New("boom")},
		{Action: del, Success: true},
		{Action: del, Cancelled: true, Err: executor.ErrCancelled},
	})
	assert.Equal(t, 1, s.Uploaded)
	assert.Equal(t, 1, s.Deleted)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Cancelled)
	assert.Len(t, s.Failures(), 1)
}
