package tui

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/campuschat/client/internal/protocol"
	"github.com/campuschat/client/internal/session"
)

// fakeSession records intents and serves a fixed snapshot.
type fakeSession struct {
	snap   session.Snapshot
	notify chan session.Notification
	calls  []string
	sent   []string
}

func newFakeSession(snap session.Snapshot) *fakeSession {
	return &fakeSession{snap: snap, notify: make(chan session.Notification, 8)}
}

func (f *fakeSession) Snapshot() session.Snapshot                 { return f.snap }
func (f *fakeSession) Notifications() <-chan session.Notification { return f.notify }
func (f *fakeSession) JoinQueue()                                 { f.calls = append(f.calls, "join_queue") }
func (f *fakeSession) LeaveQueue()                                { f.calls = append(f.calls, "leave_queue") }
func (f *fakeSession) EndChat()                                   { f.calls = append(f.calls, "end_chat") }
func (f *fakeSession) StartTyping()                               { f.calls = append(f.calls, "typing_start") }
func (f *fakeSession) StopTyping()                                { f.calls = append(f.calls, "typing_stop") }
func (f *fakeSession) Refresh()                                   { f.calls = append(f.calls, "refresh") }
func (f *fakeSession) SendMessage(text string) {
	f.calls = append(f.calls, "send_message")
	f.sent = append(f.sent, text)
}

func lobby() session.Snapshot {
	return session.Snapshot{
		Connection: session.Connected,
		State: session.State{
			UserID:   "u1",
			Access:   &protocol.Access{CanAccess: true, CollegeName: "State U", WindowStart: "21:00:00", WindowEnd: "23:59:00"},
			Activity: &protocol.Activity{ActiveChats: 3, WaitingCount: 1},
		},
	}
}

func inChat() session.Snapshot {
	snap := lobby()
	snap.Chat = &protocol.Chat{ChatID: "c1", Messages: []protocol.Message{
		{ID: "1", Content: "hello there", MessageType: protocol.MessageText, SenderID: "u2"},
		{ID: "2", Content: "hi!", MessageType: protocol.MessageText, IsOwn: true},
	}}
	return snap
}

func sized(t *testing.T, model Model) Model {
	t.Helper()
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return updated.(Model)
}

func press(t *testing.T, model Model, msg tea.KeyMsg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := model.Update(msg)
	return updated.(Model), cmd
}

func typeText(t *testing.T, model Model, text string) Model {
	t.Helper()
	for _, r := range text {
		model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return model
}

func TestModelViewBeforeSize(t *testing.T) {
	model := NewModel(newFakeSession(lobby()))
	if view := model.View(); view != "Connecting..." {
		t.Fatalf("expected placeholder before WindowSizeMsg, got %q", view)
	}
}

func TestModelLobbyView(t *testing.T) {
	model := sized(t, NewModel(newFakeSession(lobby())))
	view := model.View()

	for _, want := range []string{"connected", "State U", "window 21:00-23:59", "3 active chats, 1 waiting", "Press Enter to join the queue"} {
		if !strings.Contains(view, want) {
			t.Errorf("lobby view should contain %q", want)
		}
	}
}

func TestModelAccessDenied(t *testing.T) {
	snap := lobby()
	snap.Access = &protocol.Access{CanAccess: false, Message: "Chat opens at 21:00"}
	model := sized(t, NewModel(newFakeSession(snap)))

	if !strings.Contains(model.View(), "Chat opens at 21:00") {
		t.Error("view should show the access message")
	}
}

func TestModelJoinAndLeaveQueue(t *testing.T) {
	fs := newFakeSession(lobby())
	model := sized(t, NewModel(fs))

	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	if len(fs.calls) != 1 || fs.calls[0] != "join_queue" {
		t.Fatalf("expected join_queue, got %v", fs.calls)
	}

	// Esc outside the queue does nothing.
	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyEsc})
	if len(fs.calls) != 1 {
		t.Fatalf("expected no leave outside the queue, got %v", fs.calls)
	}

	queued := lobby()
	queued.InQueue = true
	updated, _ := model.Update(notificationMsg{n: session.Notification{Kind: session.Changed, Snapshot: queued}})
	model = updated.(Model)
	if !strings.Contains(model.View(), "In queue") {
		t.Error("view should show queue membership")
	}

	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyEsc})
	if got := strings.Join(fs.calls, ","); got != "join_queue,leave_queue" {
		t.Fatalf("expected enter ignored in queue then leave, got %s", got)
	}
}

func TestModelChatView(t *testing.T) {
	snap := inChat()
	snap.PeerTyping = true
	model := sized(t, NewModel(newFakeSession(snap)))
	view := model.View()

	for _, want := range []string{"stranger: hello there", "you: hi!", "stranger is typing"} {
		if !strings.Contains(view, want) {
			t.Errorf("chat view should contain %q", want)
		}
	}
}

func TestModelTypingAndSend(t *testing.T) {
	fs := newFakeSession(inChat())
	model := sized(t, NewModel(fs))

	model = typeText(t, model, "hey")
	if got := strings.Join(fs.calls, ","); got != "typing_start,typing_start,typing_start" {
		t.Fatalf("expected a typing hook per keystroke, got %s", got)
	}

	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	if len(fs.sent) != 1 || fs.sent[0] != "hey" {
		t.Fatalf("expected 'hey' sent, got %v", fs.sent)
	}
	if model.input.Value() != "" {
		t.Fatalf("expected input cleared after send, got %q", model.input.Value())
	}
}

func TestModelClearingInputStopsTyping(t *testing.T) {
	fs := newFakeSession(inChat())
	model := sized(t, NewModel(fs))

	model = typeText(t, model, "a")
	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyBackspace})
	if got := strings.Join(fs.calls, ","); got != "typing_start,typing_stop" {
		t.Fatalf("expected start then stop, got %s", got)
	}
}

func TestModelBlankInputNotSent(t *testing.T) {
	fs := newFakeSession(inChat())
	model := sized(t, NewModel(fs))

	model = typeText(t, model, "  ")
	fs.calls = nil
	press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	if len(fs.sent) != 0 || len(fs.calls) != 0 {
		t.Fatalf("expected nothing sent, got %v %v", fs.sent, fs.calls)
	}
}

func TestModelTypingOutsideChatIsSilent(t *testing.T) {
	fs := newFakeSession(lobby())
	model := sized(t, NewModel(fs))

	typeText(t, model, "hi")
	if len(fs.calls) != 0 {
		t.Fatalf("expected no intents in the lobby, got %v", fs.calls)
	}
}

func TestModelEndChat(t *testing.T) {
	fs := newFakeSession(lobby())
	model := sized(t, NewModel(fs))

	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyCtrlE})
	if len(fs.calls) != 0 {
		t.Fatalf("expected end chat ignored without a chat, got %v", fs.calls)
	}

	updated, _ := model.Update(notificationMsg{n: session.Notification{Kind: session.Changed, Snapshot: inChat()}})
	model = updated.(Model)
	press(t, model, tea.KeyMsg{Type: tea.KeyCtrlE})
	if len(fs.calls) != 1 || fs.calls[0] != "end_chat" {
		t.Fatalf("expected end_chat, got %v", fs.calls)
	}
}

func TestModelMatchedAndEndedBanners(t *testing.T) {
	fs := newFakeSession(lobby())
	model := sized(t, NewModel(fs))

	updated, cmd := model.Update(notificationMsg{n: session.Notification{Kind: session.Matched, ChatID: "c1", Snapshot: inChat()}})
	model = updated.(Model)
	if cmd == nil {
		t.Fatal("expected follow-up commands after a notification")
	}
	if !strings.Contains(model.View(), "Matched!") {
		t.Error("view should show the matched banner")
	}

	updated, _ = model.Update(notificationMsg{n: session.Notification{Kind: session.Ended, ChatID: "c1", Snapshot: lobby()}})
	model = updated.(Model)
	view := model.View()
	if !strings.Contains(view, "Chat ended.") {
		t.Error("view should show the ended banner")
	}
	if strings.Contains(view, "hello there") {
		t.Error("transcript should be gone after the chat ended")
	}

	// A stale fade does not clear the newer banner.
	updated, _ = model.Update(bannerFadeMsg{seq: 1})
	model = updated.(Model)
	if model.banner != "Chat ended." {
		t.Fatalf("expected banner kept, got %q", model.banner)
	}
	updated, _ = model.Update(bannerFadeMsg{seq: model.bannerSeq})
	model = updated.(Model)
	if model.banner != "" {
		t.Fatalf("expected banner cleared, got %q", model.banner)
	}
}

func TestModelNotificationListener(t *testing.T) {
	fs := newFakeSession(lobby())
	fs.notify <- session.Notification{Kind: session.Changed, Snapshot: inChat()}

	msg := listenForNotification(fs.Notifications())()
	nm, ok := msg.(notificationMsg)
	if !ok {
		t.Fatalf("expected notificationMsg, got %T", msg)
	}
	if nm.n.Snapshot.ChatID() != "c1" {
		t.Fatalf("expected chat c1, got %q", nm.n.Snapshot.ChatID())
	}

	close(fs.notify)
	if msg := listenForNotification(fs.Notifications())(); msg != nil {
		t.Fatalf("expected nil after close, got %T", msg)
	}
}

func TestModelFocusRefreshes(t *testing.T) {
	fs := newFakeSession(lobby())
	model := sized(t, NewModel(fs))

	model.Update(tea.FocusMsg{})
	press(t, model, tea.KeyMsg{Type: tea.KeyCtrlR})
	if got := strings.Join(fs.calls, ","); got != "refresh,refresh" {
		t.Fatalf("expected two refreshes, got %s", got)
	}
}

func TestModelQuit(t *testing.T) {
	model := NewModel(newFakeSession(lobby()))

	_, cmd := press(t, model, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected QuitMsg")
	}
}

func TestModelLogLine(t *testing.T) {
	model := sized(t, NewModel(newFakeSession(lobby())))

	updated, cmd := model.Update(logRecordMsg{Summary: "ws: dial failed", Level: slog.LevelWarn})
	model = updated.(Model)
	if cmd == nil {
		t.Fatal("expected a fade command")
	}
	if !strings.Contains(model.View(), "ws: dial failed") {
		t.Error("status bar should show the log line")
	}

	updated, _ = model.Update(logRecordFadeMsg{seq: model.logSeq})
	model = updated.(Model)
	if strings.Contains(model.View(), "ws: dial failed") {
		t.Error("log line should fade")
	}
}

func TestLogHandlerSummary(t *testing.T) {
	h := NewLogHandler(slog.LevelInfo)
	derived := h.WithAttrs([]slog.Attr{slog.String("component", "ws")}).(*LogHandler)

	record := slog.NewRecord(time.Now(), slog.LevelWarn, "dial failed", 0)
	record.AddAttrs(slog.String("err", "refused"))
	if got := derived.summary(record); got != "ws: dial failed (err=refused)" {
		t.Fatalf("unexpected summary %q", got)
	}
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be filtered")
	}
	// No program attached yet: the record waits in the queue.
	if err := derived.Handle(context.Background(), record); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(h.out.queue) != 1 {
		t.Fatalf("expected 1 queued record, got %d", len(h.out.queue))
	}
}

func TestLogHandlerDropsWhenFull(t *testing.T) {
	h := NewLogHandler(slog.LevelInfo)
	record := slog.NewRecord(time.Now(), slog.LevelWarn, "flood", 0)

	done := make(chan struct{})
	go func() {
		for i := 0; i < logQueueSize*2; i++ {
			_ = h.Handle(context.Background(), record)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Handle blocked on a full queue")
	}
	if len(h.out.queue) != logQueueSize {
		t.Fatalf("expected %d queued records, got %d", logQueueSize, len(h.out.queue))
	}
}

// warningSession logs a warning from LeaveQueue, the way a failing
// notification sink does, and records Refresh calls.
type warningSession struct {
	fakeSession
	logger *slog.Logger

	mu        sync.Mutex
	refreshed bool
}

func (s *warningSession) LeaveQueue() {
	s.logger.Warn("publish notification", "err", "nats: connection closed")
}

func (s *warningSession) Refresh() {
	s.mu.Lock()
	s.refreshed = true
	s.mu.Unlock()
}

func (s *warningSession) wasRefreshed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshed
}

func TestProgramSurvivesWarningFromUpdate(t *testing.T) {
	snap := lobby()
	snap.InQueue = true
	logs := NewLogHandler(slog.LevelWarn)
	s := &warningSession{fakeSession: *newFakeSession(snap), logger: slog.New(logs)}

	var out bytes.Buffer
	program := tea.NewProgram(NewModel(s),
		tea.WithInput(nil),
		tea.WithOutput(&out),
		tea.WithoutSignalHandler(),
	)
	logs.SetProgram(program)
	defer logs.SetProgram(nil)

	finished := make(chan error, 1)
	go func() {
		_, err := program.Run()
		finished <- err
	}()

	program.Send(tea.KeyMsg{Type: tea.KeyEsc})
	sent := make(chan struct{})
	go func() {
		program.Send(tea.KeyMsg{Type: tea.KeyCtrlR})
		close(sent)
	}()

	deadline := time.After(3 * time.Second)
	for !s.wasRefreshed() {
		select {
		case <-deadline:
			t.Fatal("event loop stopped after a warning was logged in Update")
		case <-time.After(5 * time.Millisecond):
		}
	}
	<-sent

	program.Quit()
	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("program did not quit")
	}
}

func TestModelRejectsInvalidContent(t *testing.T) {
	fs := newFakeSession(inChat())
	model := sized(t, NewModel(fs))
	model.input.CharLimit = 0
	model.input.SetValue(strings.Repeat("a", protocol.MaxContentChars+1))

	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	if len(fs.sent) != 0 {
		t.Fatalf("expected oversized message not sent, got %d", len(fs.sent))
	}
	if !strings.Contains(model.logLine, "limit") {
		t.Fatalf("expected a limit warning, got %q", model.logLine)
	}
}
