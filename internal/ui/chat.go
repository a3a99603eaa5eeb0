package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Conn is the relay connection driven by the chat UI.
type Conn interface {
	Send(text string) error
	Messages() <-chan string
	Err() error
}

// Messages for async operations
type incomingMsg string
type disconnectedMsg struct{ err error }
type sendResultMsg struct{ err error }

// chatKeyMap defines key bindings for the chat screen
type chatKeyMap struct {
	Send     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k chatKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.PageUp, k.PageDown, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k chatKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func newChatKeyMap() chatKeyMap {
	return chatKeyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("pgdn", "scroll down"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
}

// ChatModel is the interactive chat screen: a scrolling log of relay
// messages above a single-line prompt.
type ChatModel struct {
	conn Conn
	url  string

	viewport viewport.Model
	input    textinput.Model
	help     help.Model
	keys     chatKeyMap

	lines  []string
	width  int
	height int

	disconnected bool
	err          error
}

// NewChatModel creates the chat screen for a connected relay.
func NewChatModel(conn Conn, url string) ChatModel {
	width, height := GetTerminalSize()

	input := textinput.New()
	input.Placeholder = "Type a message"
	input.Prompt = "> "
	input.CharLimit = 4096
	input.Focus()

	keys := newChatKeyMap()
	vp := viewport.New(width, viewportHeight(height))
	vp.KeyMap = viewport.KeyMap{
		PageUp:   keys.PageUp,
		PageDown: keys.PageDown,
	}

	m := ChatModel{
		conn:     conn,
		url:      url,
		viewport: vp,
		input:    input,
		help:     help.New(),
		keys:     keys,
		width:    width,
		height:   height,
	}
	m.input.Width = width - 4
	return m
}

func viewportHeight(height int) int {
	h := height - chromeHeight - inputHeight
	if h < 1 {
		return 1
	}
	return h
}

// Init implements tea.Model
func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForMessage(m.conn))
}

// waitForMessage delivers the next relay message, or the disconnect once the
// connection ends.
func waitForMessage(conn Conn) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-conn.Messages()
		if !ok {
			return disconnectedMsg{err: conn.Err()}
		}
		return incomingMsg(msg)
	}
}

func sendMessage(conn Conn, text string) tea.Cmd {
	return func() tea.Msg {
		return sendResultMsg{err: conn.Send(text)}
	}
}

// Update implements tea.Model
func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.height = msg.Height
		m.viewport.Width = m.width
		m.viewport.Height = viewportHeight(msg.Height)
		m.input.Width = m.width - 4
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Send):
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.disconnected {
				return m, nil
			}
			m.input.Reset()
			return m, sendMessage(m.conn, text)

		case key.Matches(msg, m.keys.PageUp, m.keys.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case incomingMsg:
		m.lines = append(m.lines, RenderMessageLine(string(msg)))
		m.refresh()
		return m, waitForMessage(m.conn)

	case sendResultMsg:
		if msg.err != nil {
			m.err = msg.err
		}
		return m, nil

	case disconnectedMsg:
		m.disconnected = true
		m.err = msg.err
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refresh re-renders the log and follows the newest line
func (m *ChatModel) refresh() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// View implements tea.Model
func (m ChatModel) View() string {
	title := HeaderTitleStyle.Render("WSRELAY CHAT") + "  " + HeaderParamValueStyle.Render(m.url)
	header := HeaderBorderStyle(m.width).Render(title)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.input.View(),
		m.statusLine(),
		HelpStyle.Render(m.help.View(m.keys)),
	)
}

func (m ChatModel) statusLine() string {
	switch {
	case m.disconnected && m.err != nil:
		return StatusErrorStyle.Render("  " + FailureMarker + " disconnected: " + m.err.Error())
	case m.disconnected:
		return StatusErrorStyle.Render("  " + FailureMarker + " disconnected")
	case m.err != nil:
		return StatusErrorStyle.Render("  " + FailureMarker + " " + m.err.Error())
	default:
		return StatusConnectedStyle.Render("  " + SuccessMarker + " connected")
	}
}

// Lines returns the rendered log lines.
func (m ChatModel) Lines() []string {
	return m.lines
}

// Disconnected reports whether the relay connection has ended.
func (m ChatModel) Disconnected() bool {
	return m.disconnected
}

// RunChat runs the interactive chat screen until the user quits.
func RunChat(conn Conn, url string) error {
	p := tea.NewProgram(NewChatModel(conn, url), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
