package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/domain"
	"ragchat/internal/service"
)

const (
	// tokenSize is how many characters each streamed token carries.
	tokenSize      = 3
	streamInterval = 15 * time.Millisecond
	welcome        = "Chat is up and running!"
)

// Asker is the chat-facing subset of the question service.
type Asker interface {
	Ask(ctx context.Context, question string) (domain.Answer, error)
}

// HistoryReader lists previously asked questions.
type HistoryReader interface {
	Read() ([]string, error)
}

type role int

const (
	roleSystem role = iota
	roleUser
	roleAssistant
)

type message struct {
	role role
	text string
}

type answerMsg struct {
	answer domain.Answer
	err    error
}

type tokenMsg struct{}

// Model is the Bubble Tea model of the chat.
type Model struct {
	ctx      context.Context
	asker    Asker
	history  HistoryReader
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	messages  []message
	stream    []rune
	sources   []string
	streaming bool
	pending   bool
	questions []string
	histIdx   int
	status    string
	ready     bool
}

// New creates the chat model. chunks is the size of the loaded index.
func New(ctx context.Context, asker Asker, history HistoryReader, chunks int) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	m := Model{
		ctx:      ctx,
		asker:    asker,
		history:  history,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		messages: []message{{role: roleSystem, text: welcome}},
		status:   fmt.Sprintf("%d chunks indexed. Up/down recalls earlier questions, Ctrl+C quits.", chunks),
	}
	m.loadHistory()
	return m
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window, answer and streaming events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + 1 + qh + 1 // header, thinking line, status, input
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending || m.streaming {
				return m, nil
			}
			m.messages = append(m.messages, message{role: roleUser, text: q})
			m.input.SetValue("")
			m.pending = true
			m.refresh()
			return m, tea.Batch(m.ask(q), m.spinner.Tick)
		case "up":
			if len(m.questions) > 0 {
				m.histIdx = max(m.histIdx-1, 0)
				m.input.SetValue(m.questions[m.histIdx])
				m.input.CursorEnd()
			}
			return m, nil
		case "down":
			if len(m.questions) > 0 {
				m.histIdx = min(m.histIdx+1, len(m.questions))
				if m.histIdx == len(m.questions) {
					m.input.SetValue("")
				} else {
					m.input.SetValue(m.questions[m.histIdx])
					m.input.CursorEnd()
				}
			}
			return m, nil
		}
	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.messages = append(m.messages, message{role: roleSystem, text: "Error: " + msg.err.Error()})
			m.refresh()
			return m, nil
		}
		m.loadHistory()
		m.messages = append(m.messages, message{role: roleAssistant})
		m.stream = []rune(msg.answer.Text)
		m.streaming = true
		m.sources = service.ExtractSources(msg.answer.Metadata)
		return m, streamTick()
	case tokenMsg:
		if !m.streaming {
			return m, nil
		}
		n := min(tokenSize, len(m.stream))
		last := &m.messages[len(m.messages)-1]
		last.text += string(m.stream[:n])
		m.stream = m.stream[n:]
		if len(m.stream) > 0 {
			m.refresh()
			return m, streamTick()
		}
		if len(m.sources) > 0 {
			m.messages = append(m.messages, message{role: roleSystem, text: "Sources: " + strings.Join(m.sources, ", ")})
		} else {
			m.messages = append(m.messages, message{role: roleSystem, text: "This answer is unrelated to our context."})
		}
		m.sources = nil
		m.streaming = false
		m.refresh()
		return m, nil
	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	ctx := m.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return func() tea.Msg {
		answer, err := m.asker.Ask(ctx, question)
		return answerMsg{answer: answer, err: err}
	}
}

func streamTick() tea.Cmd {
	return tea.Tick(streamInterval, func(time.Time) tea.Msg { return tokenMsg{} })
}

func (m *Model) loadHistory() {
	if m.history == nil {
		return
	}
	if qs, err := m.history.Read(); err == nil {
		m.questions = qs
	}
	m.histIdx = len(m.questions)
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

// View renders the conversation, the input box and the status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("RAG Chat")
	thinking := ""
	if m.pending {
		thinking = m.spinner.View() + " thinking..."
	}
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + m.viewport.View() + "\n" + thinking + "\n" + input + "\n" + status
}

func (m Model) renderMessages() string {
	width := max(20, m.viewport.Width)
	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		var style lipgloss.Style
		prefix := ""
		switch msg.role {
		case roleUser:
			style, prefix = userStyle, "You: "
		case roleAssistant:
			style = assistantStyle
		default:
			style = systemStyle
		}
		b.WriteString(style.Width(width).Render(prefix + msg.text))
	}
	return b.String()
}

var (
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle()
	systemStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
