// Package session holds the client-side view of a user's realtime session:
// connection state, access window, campus activity, queue membership, the
// active chat and the peer typing signal. The server is authoritative for
// everything here; this package only folds server events into a local
// snapshot.
package session

import "github.com/campuschat/client/internal/protocol"

// ConnState is the lifecycle state of the realtime connection.
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
)

// String returns the lowercase name of the state.
func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// State is the derived state built from server pushes. Its zero value is
// the empty default every field is reset to when the connection is lost.
type State struct {
	UserID     string             // local user, used to filter self typing signals
	Access     *protocol.Access   // nil until the server reports it
	Activity   *protocol.Activity // nil until the server reports it
	InQueue    bool
	Chat       *protocol.Chat // at most one chat is held at a time
	PeerTyping bool
}

// HasChat reports whether a chat session is active.
func (s State) HasChat() bool { return s.Chat != nil }

// ChatID returns the active chat id, or "" when there is none.
func (s State) ChatID() string {
	if s.Chat == nil {
		return ""
	}
	return s.Chat.ChatID
}

// Synced reports whether the server has pushed its view of the session
// since the connection opened. Access is only ever set from server data.
func (s State) Synced() bool { return s.Access != nil }

// Snapshot is a read-only copy of the client's state handed to observers.
// Pointers inside are never mutated after publication.
type Snapshot struct {
	Connection ConnState
	State
}

// NotificationKind classifies a Notification.
type NotificationKind int

const (
	// Changed is emitted whenever the snapshot changed.
	Changed NotificationKind = iota
	// Matched is emitted when the server pairs the user into a new chat.
	Matched
	// Ended is emitted when the active chat ends or is left.
	Ended
)

// String returns the lowercase name of the kind.
func (k NotificationKind) String() string {
	switch k {
	case Changed:
		return "state"
	case Matched:
		return "matched"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// Notification is what the rest of the application observes.
type Notification struct {
	Kind     NotificationKind
	ChatID   string // set for Matched and Ended
	Snapshot Snapshot
}
