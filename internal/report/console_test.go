package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/executor"
	"github.com/openmined/docsync/internal/planner"
	"github.com/openmined/docsync/internal/remote"
	"github.com/openmined/docsync/internal/scanner"
)

func samplePlan() *planner.SyncPlan {
	return &planner.SyncPlan{
		Uploads: []planner.SyncAction{{
			Kind:   planner.ActionUpload,
			Local:  &scanner.LocalFile{RelPath: "notes/b.txt", Size: 2048},
			Reason: planner.ReasonNewFile,
		}},
		Skips: []planner.SyncAction{{
			Kind:   planner.ActionSkip,
			Local:  &scanner.LocalFile{RelPath: "a.txt", Size: 10},
			Reason: planner.ReasonUnchanged,
		}},
		Deletes: []planner.SyncAction{{
			Kind:   planner.ActionDelete,
			Remote: &remote.RemoteFile{Identity: "c.txt", Size: 5},
			Reason: planner.ReasonNotLocal,
		}},
	}
}

func TestConsolePlan(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf, Options{}).Plan(samplePlan())
	out := buf.String()

	assert.Contains(t, out, "Plan: 1 to upload (2.0 kB), 1 to delete, 1 unchanged")
	assert.Contains(t, out, "+ upload notes/b.txt (new file, 2.0 kB)")
	assert.Contains(t, out, "- delete c.txt (not present locally, 5 B)")
	assert.NotContains(t, out, "a.txt")
}

func TestConsolePlanVerbose(t *testing.T) {
	var buf bytes.Buffer
	NewConsole(&buf, Options{Verbose: true}).Plan(samplePlan())
	assert.Contains(t, buf.String(), "a.txt (unchanged")
}

func TestConsoleProgress(t *testing.T) {
	plan := samplePlan()
	var buf bytes.Buffer
	c := NewConsole(&buf, Options{})

	c.Progress(executor.TransferResult{Action: plan.Uploads[0], Success: true, Retries: 2, Duration: 1500 * time.Millisecond},
		executor.Totals{Done: 1, Total: 3})
	c.Progress(executor.TransferResult{Action: plan.Deletes[0], Err: errors.New("forbidden")},
		executor.Totals{Done: 2, Total: 3})
	c.Progress(executor.TransferResult{Action: plan.Uploads[0], Cancelled: true, Err: executor.ErrCancelled},
		executor.Totals{Done: 3, Total: 3})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"[1/3] ok upload notes/b.txt 1.5s, 2 retries",
		"[2/3] failed delete c.txt: forbidden",
		"[3/3] cancelled upload notes/b.txt",
	}, lines)
}

func TestConsoleSummary(t *testing.T) {
	plan := samplePlan()
	failed := executor.TransferResult{Action: plan.Deletes[0], Err: errors.New("forbidden")}

	tests := []struct {
		name    string
		summary engine.Summary
		want    []string
	}{
		{
			name:    "cancelled early",
			summary: engine.Summary{Interrupted: true},
			want:    []string{"Cancelled before any transfer"},
		},
		{
			name:    "dry run",
			summary: engine.Summary{Plan: plan, DryRun: true},
			want:    []string{"Dry run, nothing changed."},
		},
		{
			name:    "declined",
			summary: engine.Summary{Plan: plan, Declined: true},
			want:    []string{"Aborted"},
		},
		{
			name:    "up to date",
			summary: engine.Summary{Plan: &planner.SyncPlan{}, Skipped: 4},
			want:    []string{"Everything up to date."},
		},
		{
			name: "with failures",
			summary: engine.Summary{
				Plan:     plan,
				Results:  []executor.TransferResult{{Action: plan.Uploads[0], Success: true}, failed},
				Uploaded: 1, Skipped: 1, Failed: 1,
				Duration: 2 * time.Second,
			},
			want: []string{
				"Done in 2s: 1 uploaded, 0 deleted, 1 unchanged, 1 failed, 0 cancelled",
				"Failed:",
				"  delete c.txt: forbidden",
			},
		},
		{
			name: "interrupted",
			summary: engine.Summary{
				Plan:        plan,
				Results:     []executor.TransferResult{{Action: plan.Uploads[0], Cancelled: true}},
				Cancelled:   1,
				Interrupted: true,
				Duration:    30 * time.Millisecond,
			},
			want: []string{"Interrupted in 30ms: 0 uploaded, 0 deleted, 0 unchanged, 0 failed, 1 cancelled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewConsole(&buf, Options{}).Summary(&tt.summary)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestConsoleColor(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, Options{Color: true})
	c.Plan(samplePlan())
	// styling must not drop content
	assert.Contains(t, buf.String(), "notes/b.txt")
}
