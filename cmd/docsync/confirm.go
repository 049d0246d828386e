package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/openmined/docsync/internal/cancel"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/planner"
)

const (
	txtConfirmQuestion = "Apply %d %s to the remote store?"
	txtConfirmHint     = "[y/N]"
	txtConfirmHelp     = "Press 'y' to apply, 'n' or 'Enter' to abort."
)

var (
	questionStyle = cyan.Bold(true)
	hintStyle     = gray
	yesStyle      = green
	noStyle       = red
)

var confirmKeys = struct {
	Yes key.Binding
	No  key.Binding
}{
	Yes: key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "apply")),
	No:  key.NewBinding(key.WithKeys("n", "N", "q", "enter", "esc", "ctrl+c"), key.WithHelp("n", "abort")),
}

type confirmModel struct {
	question string
	detail   string

	answered bool
	yes      bool
}

func newConfirmModel(plan *planner.SyncPlan) confirmModel {
	n := plan.Mutations()
	noun := "changes"
	if n == 1 {
		noun = "change"
	}

	var upload int64
	for i := range plan.Uploads {
		upload += plan.Uploads[i].Size()
	}

	return confirmModel{
		question: fmt.Sprintf(txtConfirmQuestion, n, noun),
		detail: fmt.Sprintf("%d uploads (%s), %d deletes",
			len(plan.Uploads), humanize.Bytes(uint64(upload)), len(plan.Deletes)),
	}
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, confirmKeys.Yes):
		m.answered = true
		m.yes = true
		return m, tea.Quit
	case key.Matches(keyMsg, confirmKeys.No):
		m.answered = true
		m.yes = false
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	var b strings.Builder
	b.WriteString(questionStyle.Render(m.question))
	b.WriteString(" ")
	b.WriteString(hintStyle.Render(m.detail))
	b.WriteString(" ")

	if m.answered {
		if m.yes {
			b.WriteString(yesStyle.Render("yes"))
		} else {
			b.WriteString(noStyle.Render("no"))
		}
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(txtConfirmHint)
	b.WriteString("\n")
	b.WriteString(hintStyle.Render(txtConfirmHelp))
	b.WriteString("\n")
	return b.String()
}

// confirmPlan asks on the terminal before anything is mutated.
func confirmPlan(in io.Reader, out io.Writer) engine.Confirmer {
	return func(sig cancel.Signal, plan *planner.SyncPlan) (bool, error) {
		p := tea.NewProgram(newConfirmModel(plan),
			tea.WithInput(in),
			tea.WithOutput(out),
			tea.WithContext(sig.Context()),
		)

		final, err := p.Run()
		if err != nil {
			if sig.Cancelled() || errors.Is(err, tea.ErrProgramKilled) {
				return false, cancel.ErrCancelled
			}
			return false, fmt.Errorf("confirm prompt: %w", err)
		}

		fm, ok := final.(confirmModel)
		if !ok {
			return false, nil
		}
		return fm.yes, nil
	}
}
