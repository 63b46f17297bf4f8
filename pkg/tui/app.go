package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ormasoftchile/remedy/pkg/analytics"
	"github.com/ormasoftchile/remedy/pkg/render"
	"github.com/ormasoftchile/remedy/pkg/session"
	"github.com/ormasoftchile/remedy/pkg/workflow"
)

// ElapsedMsg carries a timer reading for the step in focus.
type ElapsedMsg struct {
	StepID  string
	Elapsed time.Duration
}

// Model is the top-level Bubble Tea model for the TUI.
type Model struct {
	ctx  context.Context
	sess *session.Session

	cursor  int
	detail  viewport.Model
	input   textinput.Model
	editing bool
	full    bool

	elapsedStep string
	elapsed     time.Duration

	message  string
	errLines []string

	width  int
	height int
}

// NewModel creates a model over sess with the cursor on the step in focus.
func NewModel(ctx context.Context, sess *session.Session) Model {
	ti := textinput.New()
	ti.Placeholder = "What went wrong?"
	ti.CharLimit = 2000
	ti.Prompt = "problem> "

	m := Model{
		ctx:    ctx,
		sess:   sess,
		detail: viewport.New(76, 10),
		input:  ti,
		width:  80,
		height: 24,
	}
	m.focusCurrent()
	m.refreshDetail()
	return m
}

// Run starts the full-screen program and a live timer feeding it.
func Run(ctx context.Context, sess *session.Session) error {
	p := tea.NewProgram(NewModel(ctx, sess), tea.WithAltScreen(), tea.WithContext(ctx))
	timer := workflow.NewTimer(sess.Machine, time.Second, func(id string, elapsed time.Duration) {
		p.Send(ElapsedMsg{StepID: id, Elapsed: elapsed})
	})
	timer.Start()
	defer timer.Stop()
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		m.refreshDetail()
		return m, nil
	case ElapsedMsg:
		m.elapsedStep, m.elapsed = msg.StepID, msg.Elapsed
		return m, nil
	case tea.KeyMsg:
		if m.editing {
			return m.handleEditKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Submit):
		m.sess.SetProblem(m.input.Value())
		m.input.Blur()
		m.editing = false
		m.setMessage("Problem recorded.")
		return m, nil
	case key.Matches(msg, keys.Cancel):
		m.input.Blur()
		m.editing = false
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	mc := m.sess.Machine
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(mc.Steps())-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.PgUp):
		m.detail.HalfViewUp()
		return m, nil
	case key.Matches(msg, keys.PgDown):
		m.detail.HalfViewDown()
		return m, nil
	case key.Matches(msg, keys.Help):
		m.full = !m.full
		m.layout()
	case key.Matches(msg, keys.Next):
		m.next(false)
	case key.Matches(msg, keys.Force):
		m.next(true)
	case key.Matches(msg, keys.Goto):
		id := m.selectedID()
		if err := mc.AdvanceToStep(m.ctx, id, false); err != nil {
			m.setError(err)
		} else {
			m.setMessage(fmt.Sprintf("▸ %s", id))
		}
	case key.Matches(msg, keys.Skip):
		id := m.selectedID()
		if err := mc.SkipStep(id); err != nil {
			m.setError(err)
		} else {
			m.setMessage(fmt.Sprintf("↷ %s skipped", id))
		}
	case key.Matches(msg, keys.Fail):
		id := m.selectedID()
		if err := mc.MarkStepFailed(id, "marked failed from the terminal UI"); err != nil {
			m.setError(err)
		} else {
			m.setMessage(fmt.Sprintf("✗ %s marked failed", id))
		}
	case key.Matches(msg, keys.Validate):
		id := m.selectedID()
		ok, err := mc.ValidateStep(m.ctx, id)
		switch {
		case err != nil:
			m.setError(err)
		case ok:
			m.setMessage(fmt.Sprintf("✓ %s passes all checks", id))
		default:
			m.setError(&workflow.ValidationFailedError{StepID: id, Messages: mc.ValidationErrors(id)})
		}
	case key.Matches(msg, keys.Problem):
		m.editing = true
		m.input.SetValue(m.sess.Problem())
		cmd := m.input.Focus()
		return m, cmd
	default:
		return m, nil
	}
	m.refreshDetail()
	return m, nil
}

// next moves to the next pending step or finishes the last one.
func (m *Model) next(skipValidation bool) {
	mc := m.sess.Machine
	target, ok := mc.NextPending()
	if !ok {
		if err := mc.Finish(m.ctx, skipValidation); err != nil {
			m.setError(err)
			return
		}
		m.setMessage("✓ workflow complete")
		return
	}
	if err := mc.AdvanceToStep(m.ctx, target, skipValidation); err != nil {
		m.setError(err)
		return
	}
	m.focusCurrent()
	m.setMessage(fmt.Sprintf("▸ %s", target))
}

func (m *Model) focusCurrent() {
	cur := m.sess.Machine.CurrentStepID()
	for i, s := range m.sess.Machine.Steps() {
		if s.ID == cur {
			m.cursor = i
		}
	}
}

func (m Model) selectedID() string {
	steps := m.sess.Machine.Steps()
	if m.cursor < 0 || m.cursor >= len(steps) {
		return ""
	}
	return steps[m.cursor].ID
}

func (m *Model) setMessage(s string) {
	m.message, m.errLines = s, nil
}

// setError turns a rejected operation into lines telling the user what to
// do next.
func (m *Model) setError(err error) {
	m.message = ""
	var req *workflow.RequirementsError
	var val *workflow.ValidationFailedError
	switch {
	case errors.As(err, &req):
		m.errLines = append([]string{fmt.Sprintf("Cannot start %s yet. Finish first:", req.StepID)}, bullet("-", req.Missing)...)
	case errors.As(err, &val):
		m.errLines = append([]string{fmt.Sprintf("%s is not done yet:", val.StepID)}, bullet("✗", val.Messages)...)
		m.errLines = append(m.errLines, "Press N to move on anyway.")
	default:
		m.errLines = []string{err.Error()}
	}
}

func bullet(mark string, items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, "  "+mark+" "+it)
	}
	return out
}

func (m *Model) layout() {
	listW := m.listWidth()
	m.detail.Width = max(20, m.width-listW-4)
	reserved := 6 + len(m.errLines)
	if m.full {
		reserved++
	}
	m.detail.Height = max(3, m.height-reserved)
	m.input.Width = max(10, m.width-12)
}

func (m Model) listWidth() int {
	return max(24, m.width*2/5)
}

func (m *Model) refreshDetail() {
	id := m.selectedID()
	if id == "" {
		m.detail.SetContent("")
		return
	}
	st, err := m.sess.Machine.Revisit(id)
	if err != nil {
		m.detail.SetContent(err.Error())
		return
	}
	md := render.StepMarkdown(st, m.sess.Machine.ValidationErrors(id))
	m.detail.SetContent(render.Markdown(md, m.detail.Width))
	m.detail.GotoTop()
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	list := panelBorder.Width(m.listWidth()).Render(panelTitle.Render("Steps") + "\n" + m.renderSteps())
	detail := panelBorder.Render(panelTitle.Render("Detail") + "\n" + m.detail.View())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, list, detail))
	b.WriteString("\n")

	b.WriteString(" " + render.Summary(m.sess.Analytics()) + "\n")
	if m.editing {
		b.WriteString(" " + m.input.View() + "\n")
	}
	if m.message != "" {
		b.WriteString(" " + messageStyle.Render(m.message) + "\n")
	}
	for _, l := range m.errLines {
		b.WriteString(" " + errorStyle.Render(l) + "\n")
	}
	b.WriteString(" " + keyBarText(m.editing, m.full))
	return b.String()
}

func (m Model) renderHeader() string {
	head := headerStyle.Render("remedy") + dimStyle.Render(" session "+m.sess.ID)
	cur := m.sess.Machine.CurrentStepID()
	if cur == "" {
		return head
	}
	elapsed := m.sess.Machine.Elapsed(cur)
	if m.elapsedStep == cur && m.elapsed > elapsed {
		elapsed = m.elapsed
	}
	if elapsed <= 0 {
		return head
	}
	return head + " " + timerBadgeStyle.Render(fmt.Sprintf("%s %s", cur, analytics.FormatDuration(elapsed)))
}

func (m Model) renderSteps() string {
	var b strings.Builder
	width := m.listWidth() - 4
	for i, s := range m.sess.Machine.Steps() {
		line := render.StepLine(s, width)
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("›") + styleFor(s.Status).Render(line))
		} else {
			b.WriteString(" " + styleFor(s.Status).Render(line))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
