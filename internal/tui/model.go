// Package tui is the terminal view over a realtime session. It renders the
// session snapshot and turns key presses into session intents; it holds no
// chat state of its own.
package tui

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/campuschat/client/internal/protocol"
	"github.com/campuschat/client/internal/session"
)

// bannerFadeDelay is how long the matched/ended banner stays visible.
const bannerFadeDelay = 5 * time.Second

// Session is the part of the realtime client the TUI drives.
type Session interface {
	Snapshot() session.Snapshot
	Notifications() <-chan session.Notification

	JoinQueue()
	LeaveQueue()
	SendMessage(text string)
	EndChat()
	StartTyping()
	StopTyping()
	Refresh()
}

// notificationMsg wraps a session notification for the bubbletea loop.
type notificationMsg struct {
	n session.Notification
}

// bannerFadeMsg clears the banner if it is still the one identified by seq.
type bannerFadeMsg struct {
	seq int
}

// Model is the top-level bubbletea model.
type Model struct {
	session Session
	keys    KeyMap
	theme   Theme

	snap session.Snapshot

	input    textinput.Model
	viewport viewport.Model

	width  int
	height int
	ready  bool

	banner    string
	bannerSeq int

	logLine  string
	logLevel int // 0 info, 1 warn, 2 error
	logSeq   int
}

// NewModel returns a model showing the session's current snapshot.
func NewModel(s Session) Model {
	input := textinput.New()
	input.Placeholder = "Type a message"
	input.CharLimit = protocol.MaxContentChars
	input.Prompt = "> "
	input.Focus()

	return Model{
		session:  s,
		keys:     DefaultKeyMap,
		theme:    DefaultTheme,
		snap:     s.Snapshot(),
		input:    input,
		viewport: viewport.New(0, 0),
	}
}

// Init implements tea.Model.
func (model Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, listenForNotification(model.session.Notifications()))
}

// listenForNotification blocks until the session emits, then delivers the
// notification as a notificationMsg.
func listenForNotification(ch <-chan session.Notification) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return notificationMsg{n: n}
	}
}

// Update implements tea.Model.
func (model Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.KeyMsg:
		return model.handleKey(message)

	case tea.FocusMsg:
		// The terminal regained focus; catch up on anything missed.
		model.session.Refresh()

	case tea.WindowSizeMsg:
		model.width = message.Width
		model.height = message.Height
		model.ready = true
		model.input.Width = max(message.Width-4, 10)
		model.layout()

	case notificationMsg:
		cmd := model.applyNotification(message.n)
		return model, tea.Batch(cmd, listenForNotification(model.session.Notifications()))

	case bannerFadeMsg:
		if message.seq == model.bannerSeq {
			model.banner = ""
		}

	case logRecordMsg:
		model.logSeq++
		model.logLine = message.Summary
		model.logLevel = message.severity()
		seq := model.logSeq
		return model, tea.Tick(logRecordFadeDelay, func(time.Time) tea.Msg {
			return logRecordFadeMsg{seq: seq}
		})

	case logRecordFadeMsg:
		if message.seq == model.logSeq {
			model.logLine = ""
		}
	}
	return model, nil
}

func (model Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, model.keys.Quit):
		return model, tea.Quit

	case key.Matches(message, model.keys.Submit):
		if model.snap.HasChat() {
			text := model.input.Value()
			if strings.TrimSpace(text) == "" {
				return model, nil
			}
			if err := protocol.ValidateContent(text); err != nil {
				return model.Update(logRecordMsg{Summary: err.Error(), Level: slog.LevelWarn})
			}
			model.session.SendMessage(text)
			model.input.Reset()
		} else if !model.snap.InQueue {
			model.session.JoinQueue()
		}
		return model, nil

	case key.Matches(message, model.keys.LeaveQueue):
		if model.snap.InQueue {
			model.session.LeaveQueue()
		}
		return model, nil

	case key.Matches(message, model.keys.EndChat):
		if model.snap.HasChat() {
			model.session.EndChat()
		}
		return model, nil

	case key.Matches(message, model.keys.Refresh):
		model.session.Refresh()
		return model, nil

	case key.Matches(message, model.keys.ScrollUp):
		model.viewport.HalfViewUp()
		return model, nil

	case key.Matches(message, model.keys.ScrollDown):
		model.viewport.HalfViewDown()
		return model, nil
	}

	before := model.input.Value()
	var cmd tea.Cmd
	model.input, cmd = model.input.Update(message)
	after := model.input.Value()

	if model.snap.HasChat() && after != before {
		if after == "" {
			model.session.StopTyping()
		} else {
			model.session.StartTyping()
		}
	}
	return model, cmd
}

func (model *Model) applyNotification(n session.Notification) tea.Cmd {
	prevMessages := 0
	if model.snap.Chat != nil {
		prevMessages = len(model.snap.Chat.Messages)
	}
	model.snap = n.Snapshot

	var cmd tea.Cmd
	switch n.Kind {
	case session.Matched:
		model.input.Reset()
		cmd = model.showBanner("Matched! Say hi.")
	case session.Ended:
		model.input.Reset()
		cmd = model.showBanner("Chat ended.")
	}

	model.layout()
	if model.snap.Chat != nil && len(model.snap.Chat.Messages) != prevMessages {
		model.viewport.GotoBottom()
	}
	return cmd
}

func (model *Model) showBanner(text string) tea.Cmd {
	model.bannerSeq++
	model.banner = text
	seq := model.bannerSeq
	return tea.Tick(bannerFadeDelay, func(time.Time) tea.Msg {
		return bannerFadeMsg{seq: seq}
	})
}

// layout sizes the viewport and refreshes its content.
func (model *Model) layout() {
	if !model.ready {
		return
	}
	// header, banner, border top/bottom, input, status line
	chrome := 6
	model.viewport.Width = max(model.width-2, 10)
	model.viewport.Height = max(model.height-chrome, 1)
	model.viewport.SetContent(model.body())
}

// View implements tea.Model.
func (model Model) View() string {
	if !model.ready {
		return "Connecting..."
	}

	pane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(model.theme.BorderColor).
		Width(model.viewport.Width).
		Render(model.viewport.View())

	sections := []string{
		model.header(),
		model.bannerLine(),
		pane,
		model.input.View(),
		model.statusLine(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model Model) header() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(model.theme.HeaderForeground).Render("campuschat")

	var connColor lipgloss.Color
	switch model.snap.Connection {
	case session.Connected:
		connColor = model.theme.Connected
	case session.Connecting:
		connColor = model.theme.Connecting
	default:
		connColor = model.theme.Disconnected
	}
	conn := lipgloss.NewStyle().Foreground(connColor).Render("● " + model.snap.Connection.String())

	parts := []string{title, conn}
	if a := model.snap.Access; a != nil {
		if a.CollegeName != "" {
			parts = append(parts, a.CollegeName)
		}
		if a.WindowStart != "" && a.WindowEnd != "" {
			parts = append(parts, fmt.Sprintf("window %s-%s", shortClock(a.WindowStart), shortClock(a.WindowEnd)))
		}
	}
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	return strings.Join(parts, faint.Render("  ·  "))
}

func (model Model) bannerLine() string {
	if model.banner == "" {
		return ""
	}
	return lipgloss.NewStyle().Bold(true).Foreground(model.theme.BannerForeground).Render(model.banner)
}

// body renders the lobby or the active chat transcript.
func (model Model) body() string {
	if model.snap.HasChat() {
		return model.chatBody()
	}
	return model.lobbyBody()
}

func (model Model) lobbyBody() string {
	normal := lipgloss.NewStyle().Foreground(model.theme.NormalText)
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	warn := lipgloss.NewStyle().Foreground(model.theme.WarnText)

	var lines []string
	if a := model.snap.Access; a != nil && !a.CanAccess {
		msg := a.Message
		if msg == "" {
			msg = "Chat is closed for your campus right now."
		}
		lines = append(lines, warn.Render(msg))
	}
	if act := model.snap.Activity; act != nil {
		lines = append(lines, normal.Render(fmt.Sprintf("%d active chats, %d waiting", act.ActiveChats, act.WaitingCount)))
	}

	switch {
	case model.snap.Connection != session.Connected:
		lines = append(lines, faint.Render("Waiting for connection..."))
	case model.snap.InQueue:
		lines = append(lines, normal.Render("In queue, waiting for a match. Esc to leave."))
	default:
		lines = append(lines, normal.Render("Press Enter to join the queue."))
	}
	return strings.Join(lines, "\n")
}

func (model Model) chatBody() string {
	own := lipgloss.NewStyle().Foreground(model.theme.OwnMessage)
	peer := lipgloss.NewStyle().Foreground(model.theme.PeerMessage)
	system := lipgloss.NewStyle().Italic(true).Foreground(model.theme.SystemMessage)
	faint := lipgloss.NewStyle().Foreground(model.theme.FaintText)
	width := max(model.viewport.Width-2, 10)

	var lines []string
	for _, m := range model.snap.Chat.Messages {
		switch {
		case m.MessageType == protocol.MessageSystem:
			lines = append(lines, system.Width(width).Render("* "+m.Content))
		case m.IsOwn:
			lines = append(lines, own.Width(width).Render("you: "+m.Content))
		default:
			lines = append(lines, peer.Width(width).Render("stranger: "+m.Content))
		}
	}
	if len(lines) == 0 {
		lines = append(lines, faint.Render("No messages yet."))
	}
	if model.snap.PeerTyping {
		lines = append(lines, faint.Render("stranger is typing..."))
	}
	return strings.Join(lines, "\n")
}

func (model Model) statusLine() string {
	if model.logLine != "" {
		color := model.theme.FaintText
		switch model.logLevel {
		case 1:
			color = model.theme.WarnText
		case 2:
			color = model.theme.ErrorText
		}
		return lipgloss.NewStyle().Foreground(color).MaxWidth(model.width).Render(model.logLine)
	}

	bindings := []key.Binding{model.keys.Submit, model.keys.Quit}
	switch {
	case model.snap.HasChat():
		bindings = []key.Binding{model.keys.Submit, model.keys.EndChat, model.keys.ScrollUp, model.keys.Quit}
	case model.snap.InQueue:
		bindings = []key.Binding{model.keys.LeaveQueue, model.keys.Quit}
	}
	var parts []string
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return lipgloss.NewStyle().Foreground(model.theme.HelpText).MaxWidth(model.width).Render(strings.Join(parts, "  "))
}

// shortClock trims "21:00:00" to "21:00".
func shortClock(s string) string {
	if len(s) == len("15:04:05") && s[5] == ':' {
		return s[:5]
	}
	return s
}
