package ui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChat(ask AskFunc) *chatModel {
	return newChatModel(context.Background(), ask, NoColorStyles())
}

func typeText(m *chatModel, s string) {
	for _, r := range s {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func TestChatModel_InitialView(t *testing.T) {
	m := newTestChat(nil)

	view := m.View()

	assert.Contains(t, view, "amanrag chat")
	assert.Contains(t, view, "esc to quit")
}

func TestChatModel_SubmitAsksAndPrintsReply(t *testing.T) {
	// Given: a chat with a typed question
	var asked []string
	m := newTestChat(func(_ context.Context, q string) (string, error) {
		asked = append(asked, q)
		return "Pods restart [1].", nil
	})
	typeText(m, "why do pods restart?")

	// When: pressing enter
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	// Then: the model is busy and the input is cleared
	require.NotNil(t, cmd)
	assert.True(t, m.busy)
	assert.Empty(t, m.input.Value())
	assert.Contains(t, m.View(), "retrieving: why do pods restart?")

	// When: the ask command completes
	msg := m.askCmd("why do pods restart?")()
	reply, ok := msg.(replyMsg)
	require.True(t, ok)
	_, printCmd := m.Update(reply)

	// Then: the exchange is printed and input is accepted again
	assert.Equal(t, []string{"why do pods restart?"}, asked)
	assert.NotNil(t, printCmd)
	assert.False(t, m.busy)
	assert.Contains(t, m.renderExchange(reply), "Pods restart [1].")
}

func TestChatModel_IgnoresEnterWhileBusy(t *testing.T) {
	m := newTestChat(func(context.Context, string) (string, error) { return "", nil })
	typeText(m, "first")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	asked := m.asked

	typeText(m, "second")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.Equal(t, asked, m.asked)
}

func TestChatModel_BlankInputIsIgnored(t *testing.T) {
	m := newTestChat(nil)
	typeText(m, "   ")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.Nil(t, cmd)
	assert.False(t, m.busy)
}

func TestChatModel_Quit(t *testing.T) {
	tests := []struct {
		name string
		keys func(m *chatModel) tea.Cmd
	}{
		{"esc", func(m *chatModel) tea.Cmd {
			_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
			return cmd
		}},
		{"ctrl+c", func(m *chatModel) tea.Cmd {
			_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
			return cmd
		}},
		{"exit command", func(m *chatModel) tea.Cmd {
			typeText(m, "exit")
			_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
			return cmd
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestChat(nil)

			cmd := tt.keys(m)

			require.NotNil(t, cmd)
			assert.IsType(t, tea.QuitMsg{}, cmd())
			assert.True(t, m.quitting)
			assert.Empty(t, m.View())
		})
	}
}

func TestChatModel_RenderExchangeError(t *testing.T) {
	m := newTestChat(nil)

	out := m.renderExchange(replyMsg{question: "q", err: errors.New("engine not ready")})

	assert.Contains(t, out, "› q")
	assert.Contains(t, out, "✗ engine not ready")
}

func TestChatModel_WindowResize(t *testing.T) {
	m := newTestChat(nil)

	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Equal(t, 120, m.width)
	assert.Equal(t, 116, m.input.Width)
}
