package session

import (
	"strings"

	"github.com/campuschat/client/internal/protocol"
)

// Outcome says how an event was handled, so the caller can log it at the
// right level.
type Outcome int

const (
	// Applied means the event was folded into the state.
	Applied Outcome = iota
	// Ignored means the event is expected and carries no state change
	// (pong, self typing, the "not in a chat" race).
	Ignored
	// Desync means the event referenced state the client does not hold,
	// e.g. a message with no active chat. It is dropped.
	Desync
	// Unhandled means the event kind is not modelled.
	Unhandled
	// ServerError means the server reported a protocol-level error.
	ServerError
)

// Signal is a side notification raised by an event, on top of the state
// change itself.
type Signal int

const (
	SignalNone Signal = iota
	SignalMatched
	SignalEnded
)

// Result is the output of Apply.
type Result struct {
	State   State
	Outcome Outcome
	Signal  Signal
	ChatID  string // chat the signal refers to
}

// Apply folds one server event into s and returns the new state. s itself
// is never modified: message slices are copied before appending so that
// snapshots already handed out stay valid.
func Apply(s State, ev protocol.Event) Result {
	switch e := ev.(type) {
	case protocol.InitialState:
		if e.User.ID != "" {
			s.UserID = e.User.ID.String()
		}
		access := e.Access
		activity := e.Activity
		s.Access = &access
		s.Activity = &activity
		s.InQueue = e.Queue.IsInQueue
		s.Chat = cloneChat(e.Chat)
		if s.Chat == nil {
			s.PeerTyping = false
		}
		return Result{State: s, Outcome: Applied}

	case protocol.QueueJoined:
		s.InQueue = true
		return Result{State: s, Outcome: Applied}

	case protocol.QueueLeft:
		s.InQueue = false
		return Result{State: s, Outcome: Applied}

	case protocol.ChatMatched:
		s.Chat = cloneChat(&e.Chat)
		s.InQueue = false
		s.PeerTyping = false
		return Result{State: s, Outcome: Applied, Signal: SignalMatched, ChatID: e.Chat.ChatID}

	case protocol.ChatJoined:
		s.Chat = cloneChat(&e.Chat)
		return Result{State: s, Outcome: Applied}

	case protocol.ChatLeft, protocol.ChatEnded:
		chatID := s.ChatID()
		s.Chat = nil
		s.PeerTyping = false
		return Result{State: s, Outcome: Applied, Signal: SignalEnded, ChatID: chatID}

	case protocol.MessageReceived:
		if s.Chat == nil {
			return Result{State: s, Outcome: Desync}
		}
		chat := *s.Chat
		msgs := make([]protocol.Message, len(chat.Messages), len(chat.Messages)+1)
		copy(msgs, chat.Messages)
		chat.Messages = append(msgs, e.Message)
		s.Chat = &chat
		return Result{State: s, Outcome: Applied}

	case protocol.TypingStarted:
		if isSelf(s, e.UserID) {
			return Result{State: s, Outcome: Ignored}
		}
		s.PeerTyping = true
		return Result{State: s, Outcome: Applied}

	case protocol.TypingStopped:
		if isSelf(s, e.UserID) {
			return Result{State: s, Outcome: Ignored}
		}
		s.PeerTyping = false
		return Result{State: s, Outcome: Applied}

	case protocol.ActivityUpdate:
		activity := e.Activity
		s.Activity = &activity
		return Result{State: s, Outcome: Applied}

	case protocol.AccessUpdate:
		access := e.Access
		s.Access = &access
		return Result{State: s, Outcome: Applied}

	case protocol.ServerError:
		if IsNotInChat(e.Message) {
			return Result{State: s, Outcome: Ignored}
		}
		return Result{State: s, Outcome: ServerError}

	case protocol.Pong:
		return Result{State: s, Outcome: Ignored}

	default:
		return Result{State: s, Outcome: Unhandled}
	}
}

// IsNotInChat reports whether a server error message is the "not in a
// chat" reply. It arrives legitimately when a typing or heartbeat echo
// races the local end of a chat.
func IsNotInChat(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	m = strings.TrimRight(m, ".!")
	return m == "not in a chat"
}

// isSelf reports whether a typing signal came from the local user. With no
// known local id every sender is treated as the peer.
func isSelf(s State, sender protocol.ID) bool {
	return s.UserID != "" && sender.String() == s.UserID
}

func cloneChat(c *protocol.Chat) *protocol.Chat {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]protocol.Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}
