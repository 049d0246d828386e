// Package report renders sync plans, progress and summaries for a terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/executor"
	"github.com/openmined/docsync/internal/planner"
)

var (
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	titleText = cyan.Bold(true)
)

type Options struct {
	Color   bool
	Verbose bool // list skipped files too
}

// Console writes human readable output to w.
type Console struct {
	mu   sync.Mutex
	w    io.Writer
	opts Options
}

var _ engine.Reporter = (*Console)(nil)

func NewConsole(w io.Writer, opts Options) *Console {
	return &Console{w: w, opts: opts}
}

// ColorEnabled reports whether f is a terminal that should get colour.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (c *Console) paint(style lipgloss.Style, s string) string {
	if !c.opts.Color {
		return s
	}
	return style.Render(s)
}

func (c *Console) printf(format string, args ...any) {
	fmt.Fprintf(c.w, format, args...)
}

func (c *Console) Plan(plan *planner.SyncPlan) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var uploadBytes int64
	for i := range plan.Uploads {
		uploadBytes += plan.Uploads[i].Size()
	}

	c.printf("%s %d to upload (%s), %d to delete, %d unchanged\n",
		c.paint(titleText, "Plan:"),
		len(plan.Uploads), humanize.Bytes(uint64(uploadBytes)),
		len(plan.Deletes), len(plan.Skips),
	)

	for i := range plan.Uploads {
		c.action(green, "+ upload", &plan.Uploads[i])
	}
	for i := range plan.Deletes {
		c.action(red, "- delete", &plan.Deletes[i])
	}
	if c.opts.Verbose {
		for i := range plan.Skips {
			c.action(gray, "= skip  ", &plan.Skips[i])
		}
	}
}

func (c *Console) action(style lipgloss.Style, label string, a *planner.SyncAction) {
	c.printf("  %s %s %s\n",
		c.paint(style, label),
		a.Identity(),
		c.paint(gray, fmt.Sprintf("(%s, %s)", a.Reason, humanize.Bytes(uint64(a.Size())))),
	)
}

func (c *Console) Progress(res executor.TransferResult, totals executor.Totals) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counter := c.paint(gray, fmt.Sprintf("[%d/%d]", totals.Done, totals.Total))
	op := string(res.Action.Kind)
	id := res.Action.Identity()

	switch {
	case res.Success:
		extra := formatDuration(res.Duration)
		if res.Retries > 0 {
			extra += fmt.Sprintf(", %d %s", res.Retries, plural(res.Retries, "retry", "retries"))
		}
		c.printf("%s %s %s %s %s\n", counter, c.paint(green, "ok"), op, id, c.paint(gray, extra))
	case res.Cancelled:
		c.printf("%s %s %s %s\n", counter, c.paint(yellow, "cancelled"), op, id)
	default:
		c.printf("%s %s %s %s: %v\n", counter, c.paint(red, "failed"), op, id, res.Err)
	}
}

func (c *Console) Summary(s *engine.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case s.Plan == nil && s.Interrupted:
		c.printf("%s\n", c.paint(yellow, "Cancelled before any transfer, nothing changed."))
		return
	case s.DryRun:
		c.printf("%s\n", c.paint(cyan, "Dry run, nothing changed."))
		return
	case s.Declined:
		c.printf("%s\n", c.paint(yellow, "Aborted, nothing changed."))
		return
	case !s.Executed() && !s.Interrupted:
		c.printf("%s\n", c.paint(green, "Everything up to date."))
		return
	}

	parts := []string{
		fmt.Sprintf("%d uploaded", s.Uploaded),
		fmt.Sprintf("%d deleted", s.Deleted),
		fmt.Sprintf("%d unchanged", s.Skipped),
	}
	if s.Failed > 0 {
		parts = append(parts, c.paint(red, fmt.Sprintf("%d failed", s.Failed)))
	} else {
		parts = append(parts, "0 failed")
	}
	if s.Cancelled > 0 {
		parts = append(parts, c.paint(yellow, fmt.Sprintf("%d cancelled", s.Cancelled)))
	} else {
		parts = append(parts, "0 cancelled")
	}

	title := "Done"
	if s.Interrupted {
		title = "Interrupted"
	}
	c.printf("%s in %s: %s\n", c.paint(titleText, title), formatDuration(s.Duration), strings.Join(parts, ", "))

	failures := s.Failures()
	if len(failures) == 0 {
		return
	}
	c.printf("%s\n", c.paint(red, "Failed:"))
	for _, f := range failures {
		c.printf("  %s %s: %v\n", f.Action.Kind, f.Action.Identity(), f.Err)
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
