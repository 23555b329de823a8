// Package tui is the terminal client a respondent uses to take an audition.
// It drives the session engine in-process, one question at a time.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/quillsociety/auditions/internal/services"
)

// SessionRunner is the part of services.SessionService the client uses.
type SessionRunner interface {
	InitializeSession(ctx context.Context, caller services.Caller, respondentID string) (*services.Session, error)
	Answer(ctx context.Context, caller services.Caller, respondentID, questionID, text string) error
	Complete(ctx context.Context, caller services.Caller, respondentID string) (*services.CompletionResult, error)
}

type takeState int

const (
	stateLoading takeState = iota
	stateAnswering
	stateSaving
	stateDone
	stateFailed
)

type sessionLoadedMsg struct {
	session *services.Session
	err     error
}

type answerSavedMsg struct {
	questionID string
	err        error
}

type completedMsg struct {
	result *services.CompletionResult
	err    error
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	questionStyle = lipgloss.NewStyle().Bold(true).Padding(1, 0)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
)

// Model is the bubbletea model for one audition session.
type Model struct {
	ctx    context.Context
	runner SessionRunner
	caller services.Caller

	state   takeState
	session *services.Session
	input   textarea.Model
	status  string
	err     error
	result  *services.CompletionResult
	answers int
}

func New(ctx context.Context, runner SessionRunner, caller services.Caller) *Model {
	ta := textarea.New()
	ta.Placeholder = "Your answer..."
	ta.CharLimit = 10000
	ta.SetWidth(72)
	ta.SetHeight(6)
	ta.Focus()
	return &Model{ctx: ctx, runner: runner, caller: caller, state: stateLoading, input: ta}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.load(), textarea.Blink)
}

func (m *Model) load() tea.Cmd {
	return func() tea.Msg {
		s, err := m.runner.InitializeSession(m.ctx, m.caller, m.caller.UserID)
		return sessionLoadedMsg{session: s, err: err}
	}
}

func (m *Model) save(questionID, text string) tea.Cmd {
	return func() tea.Msg {
		return answerSavedMsg{questionID: questionID, err: m.runner.Answer(m.ctx, m.caller, m.caller.UserID, questionID, text)}
	}
}

func (m *Model) complete() tea.Cmd {
	return func() tea.Msg {
		res, err := m.runner.Complete(m.ctx, m.caller, m.caller.UserID)
		return completedMsg{result: res, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case sessionLoadedMsg:
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.session = msg.session
		m.state = stateAnswering
		return m, m.advanceOrFinish()

	case answerSavedMsg:
		switch {
		case msg.err == nil:
			m.answers++
			m.status = ""
		case services.IsCode(msg.err, services.ErrorConflict):
			m.status = "That question was already answered; moving on."
		case services.IsCode(msg.err, services.ErrorNotFound):
			m.status = "That question was removed from the bank; moving on."
		default:
			// Keep the text so the respondent can retry.
			m.state = stateAnswering
			m.status = "Could not save: " + msg.err.Error()
			return m, nil
		}
		m.input.Reset()
		m.session.Advance()
		m.state = stateAnswering
		return m, m.advanceOrFinish()

	case completedMsg:
		if msg.err != nil {
			return m.fail(msg.err)
		}
		m.result = msg.result
		m.state = stateDone
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}
		switch m.state {
		case stateDone, stateFailed:
			if msg.String() == "q" || msg.String() == "enter" {
				return m, tea.Quit
			}
			return m, nil
		case stateAnswering:
			return m.handleAnswerKey(msg)
		}
		return m, nil
	}

	if m.state == stateAnswering {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) handleAnswerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+s":
		q, ok := m.session.Current()
		if !ok {
			return m, nil
		}
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			m.status = "Write an answer, or press ctrl+n to skip."
			return m, nil
		}
		m.state = stateSaving
		m.status = "Saving..."
		return m, m.save(q.ID, text)
	case "ctrl+n":
		m.input.Reset()
		m.status = ""
		m.session.Skip()
		return m, m.advanceOrFinish()
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// advanceOrFinish submits the session once no question is left.
func (m *Model) advanceOrFinish() tea.Cmd {
	if !m.session.Done() {
		return nil
	}
	m.state = stateSaving
	m.status = "Submitting..."
	return m.complete()
}

func (m *Model) fail(err error) (tea.Model, tea.Cmd) {
	m.err = err
	m.state = stateFailed
	return m, nil
}

// Err is the error that stopped the session, if any.
func (m *Model) Err() error { return m.err }

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Quill Society audition"))
	b.WriteString("\n")

	switch m.state {
	case stateLoading:
		b.WriteString("\nLoading your questions...\n")
	case stateFailed:
		b.WriteString("\n" + errorStyle.Render("Error: "+m.err.Error()) + "\n")
		b.WriteString(hintStyle.Render("press q to quit") + "\n")
	case stateDone:
		b.WriteString("\n" + m.doneMessage() + "\n")
		b.WriteString(hintStyle.Render(fmt.Sprintf("%d answer(s) saved this time. press q to quit", m.answers)) + "\n")
	default:
		if q, ok := m.session.Current(); ok {
			i, n := m.session.Position()
			b.WriteString(hintStyle.Render(fmt.Sprintf("Question %d of %d", i, n)))
			b.WriteString("\n")
			b.WriteString(questionStyle.Render(q.Text))
			b.WriteString("\n")
			b.WriteString(m.input.View())
			b.WriteString("\n\n")
		}
		if m.status != "" {
			b.WriteString(statusStyle.Render(m.status) + "\n")
		}
		b.WriteString(hintStyle.Render("ctrl+s save and continue  ctrl+n skip  esc quit") + "\n")
	}
	return b.String()
}

func (m *Model) doneMessage() string {
	if m.result == nil {
		return ""
	}
	if m.result.AllAnswered {
		return doneStyle.Render("All questions answered. Thank you!")
	}
	return statusStyle.Render("Submitted. Some questions were skipped; run take again to answer them.")
}

// Run takes the caller through their audition on the terminal.
func Run(ctx context.Context, runner SessionRunner, caller services.Caller, opts ...tea.ProgramOption) error {
	if caller.UserID == "" {
		return errors.New("respondent id required")
	}
	m := New(ctx, runner, caller)
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(m, opts...).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(*Model); ok && fm.Err() != nil {
		return fm.Err()
	}
	return nil
}
