package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"finqa/internal/domain"
	"finqa/internal/session"
)

// ShellPort is the TUI-facing subset of the conversational shell.
type ShellPort interface {
	Begin(ctx context.Context, s *session.Session, input string) (*session.Turn, error)
	Tickers() *session.Tickers
}

type turnStartedMsg struct {
	turn *session.Turn
	err  error
}

type fragmentMsg struct {
	text string
	done bool
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	ctx      context.Context
	shell    ShellPort
	session  *session.Session
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	// messages is the transcript snapshot rendered by View. The session itself is only
	// read between turns, never while a command goroutine may be writing to it.
	messages    []domain.Message
	pending     string
	turn        *session.Turn
	partial     string
	busy        bool
	showSources bool
	status      string
	ready       bool
	width       int
}

// New creates a new chat model for the given session.
func New(ctx context.Context, shell ShellPort, s *session.Session) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about a company's filings and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		shell:    shell,
		session:  s,
		input:    ti,
		viewport: vp,
		spinner:  sp,
		messages: s.Messages(),
		status:   "Ready. Name a ticker in your question or pick a default with tab.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and turn events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, rh := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + help, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.refresh()
		return m, nil

	case turnStartedMsg:
		if msg.err != nil {
			m.busy = false
			m.pending = ""
			m.messages = m.session.Messages()
			m.status = "Error: " + msg.err.Error()
			m.refresh()
			return m, nil
		}
		m.turn = msg.turn
		m.pending = ""
		m.messages = m.session.Messages()
		m.status = tickerStatus(msg.turn)
		m.refresh()
		return m, recv(msg.turn)

	case fragmentMsg:
		if m.turn == nil {
			return m, nil
		}
		if msg.done {
			m.turn = nil
			m.partial = ""
			m.busy = false
			m.messages = m.session.Messages()
			m.refresh()
			return m, nil
		}
		m.partial += msg.text
		m.refresh()
		return m, recv(m.turn)

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyTab, tea.KeyShiftTab:
			if m.busy {
				return m, nil
			}
			tk := m.shell.Tickers()
			if msg.Type == tea.KeyTab {
				m.session.SetDefaultTicker(tk.Next(m.session.DefaultTicker()))
			} else {
				m.session.SetDefaultTicker(tk.Prev(m.session.DefaultTicker()))
			}
			m.status = fmt.Sprintf("Default ticker is %s.", m.session.DefaultTicker())
			return m, nil
		case tea.KeyCtrlR:
			if m.busy {
				return m, nil
			}
			m.session.Reset()
			m.messages = nil
			m.status = "Conversation cleared."
			m.refresh()
			return m, nil
		case tea.KeyCtrlS:
			m.showSources = !m.showSources
			m.refresh()
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.input.Value())
	if q == "" || m.busy {
		return m, nil
	}
	m.input.Reset()
	m.busy = true
	m.pending = q
	m.status = "Searching the filings..."
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, begin(m.ctx, m.shell, m.session, q))
}

func begin(ctx context.Context, shell ShellPort, s *session.Session, q string) tea.Cmd {
	return func() tea.Msg {
		turn, err := shell.Begin(ctx, s, q)
		return turnStartedMsg{turn: turn, err: err}
	}
}

func recv(turn *session.Turn) tea.Cmd {
	return func() tea.Msg {
		f, err := turn.Recv()
		if errors.Is(err, io.EOF) {
			return fragmentMsg{done: true}
		}
		if err != nil {
			return fragmentMsg{text: "\n" + err.Error()}
		}
		return fragmentMsg{text: f}
	}
}

func tickerStatus(turn *session.Turn) string {
	if turn.UsedDefault {
		return fmt.Sprintf("No ticker found in the question. Using default ticker %s.", turn.Tickers[0])
	}
	return "Analyzing " + strings.Join(turn.Tickers, ", ") + "."
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Financial QA") + "  " + badgeStyle.Render(m.session.DefaultTicker())
	help := helpStyle.Render("enter ask · tab/shift+tab default ticker · ctrl+s sources · ctrl+r reset · ctrl+c quit")
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	if m.busy && m.turn == nil {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + help + "\n" + transcript + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.messages) == 0 && m.pending == "" {
		return helpStyle.Render("No questions yet.")
	}
	wrap := lipgloss.NewStyle().Width(max(20, m.viewport.Width-2))
	var b strings.Builder
	question := ""
	for _, msg := range m.messages {
		switch msg.Role {
		case domain.RoleUser:
			question = msg.Content
			b.WriteString(userStyle.Render("You") + "\n" + wrap.Render(msg.Content) + "\n\n")
		case domain.RoleAssistant:
			b.WriteString(assistantStyle.Render("Analyst") + "\n" + wrap.Render(msg.Content) + "\n")
			if m.showSources {
				b.WriteString(renderSources(msg.Contexts, question, wrap))
			}
			b.WriteString("\n")
		}
	}
	if m.pending != "" {
		b.WriteString(userStyle.Render("You") + "\n" + wrap.Render(m.pending) + "\n\n")
	}
	if m.turn != nil {
		b.WriteString(assistantStyle.Render("Analyst") + "\n" + wrap.Render(m.partial+"▌") + "\n")
	}
	return b.String()
}

func renderSources(contexts []domain.Context, question string, wrap lipgloss.Style) string {
	if len(contexts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(helpStyle.Render("Sources") + "\n")
	for i, c := range contexts {
		line := fmt.Sprintf("%d. %s %s", i+1, badgeStyle.Render(c.Ticker), highlightBestSentence(c.Text, question))
		b.WriteString(wrap.Render(line) + "\n")
	}
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	headerStyle        = lipgloss.NewStyle().Bold(true)
	badgeStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("14")).Padding(0, 1)
	helpStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)
