package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// AskFunc answers one question and returns the rendered reply.
type AskFunc func(ctx context.Context, question string) (string, error)

// RunChat runs the chat until the user quits, ctx is cancelled, or input
// ends. It uses bubbletea on an interactive terminal and line mode otherwise.
func RunChat(ctx context.Context, cfg Config, in io.Reader, ask AskFunc) error {
	if !Interactive(cfg) {
		return RunLineChat(ctx, in, cfg.Output, ask)
	}

	styles := GetStyles(!Colored(cfg))
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(cfg.Output)}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	p := tea.NewProgram(newChatModel(ctx, ask, styles), opts...)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}

// replyMsg carries a finished answer back to the model.
type replyMsg struct {
	question string
	reply    string
	err      error
}

// chatModel is the bubbletea model for the chat.
type chatModel struct {
	ctx      context.Context
	ask      AskFunc
	input    textinput.Model
	spinner  spinner.Model
	styles   Styles
	pending  string
	busy     bool
	asked    int
	width    int
	quitting bool
}

func newChatModel(ctx context.Context, ask AskFunc, styles Styles) *chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask a question"
	ti.Prompt = "› "
	ti.PromptStyle = styles.Prompt
	ti.CharLimit = 2000
	ti.Width = 76
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	return &chatModel{
		ctx:     ctx,
		ask:     ask,
		input:   ti,
		spinner: s,
		styles:  styles,
		width:   80,
	}
}

// Init implements tea.Model.
func (m *chatModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 20)
		return m, nil

	case replyMsg:
		m.busy = false
		m.pending = ""
		return m, tea.Println(m.renderExchange(msg))

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the current input as a question.
func (m *chatModel) submit() (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	question := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if question == "" {
		return m, nil
	}
	if isQuit(question) {
		m.quitting = true
		return m, tea.Quit
	}

	m.busy = true
	m.pending = question
	m.asked++
	return m, tea.Batch(m.spinner.Tick, m.askCmd(question))
}

func (m *chatModel) askCmd(question string) tea.Cmd {
	ctx, ask := m.ctx, m.ask
	return func() tea.Msg {
		reply, err := ask(ctx, question)
		return replyMsg{question: question, reply: reply, err: err}
	}
}

func (m *chatModel) renderExchange(msg replyMsg) string {
	var sb strings.Builder
	sb.WriteString(m.styles.Prompt.Render("› "))
	sb.WriteString(m.styles.Header.Render(msg.question))
	sb.WriteString("\n\n")
	if msg.err != nil {
		sb.WriteString(m.styles.Error.Render("✗ " + msg.err.Error()))
		sb.WriteString("\n")
	} else {
		sb.WriteString(strings.TrimRight(msg.reply, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}

// View implements tea.Model.
func (m *chatModel) View() string {
	if m.quitting {
		return ""
	}

	var sections []string
	if m.asked == 0 {
		sections = append(sections, m.styles.Header.Render("amanrag chat"))
	}
	if m.busy {
		sections = append(sections, fmt.Sprintf("%s %s", m.spinner.View(),
			m.styles.Label.Render("retrieving: "+Snippet(m.pending, 60))))
	} else {
		sections = append(sections, m.input.View())
	}
	sections = append(sections, m.styles.Dim.Render("enter to ask  │  esc to quit"))
	return strings.Join(sections, "\n") + "\n"
}

func isQuit(s string) bool {
	switch strings.ToLower(s) {
	case "exit", "quit", "/quit", "/exit", ":q":
		return true
	}
	return false
}
