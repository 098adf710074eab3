// Package protocol defines the messages exchanged with the campus chat
// realtime endpoint. Outbound intents are small JSON envelopes carrying an
// "action" name; inbound events carry a "type" discriminator and are decoded
// into one concrete struct per kind.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Action names (client -> server)
// ---------------------------------------------------------------------------

const (
	ActionHeartbeat   = "heartbeat"
	ActionJoinQueue   = "join_queue"
	ActionLeaveQueue  = "leave_queue"
	ActionJoinChat    = "join_chat"
	ActionLeaveChat   = "leave_chat"
	ActionSendMessage = "send_message"
	ActionEndChat     = "end_chat"
	ActionTypingStart = "typing_start"
	ActionTypingStop  = "typing_stop"
	ActionRefresh     = "refresh"
)

// ---------------------------------------------------------------------------
// Event types (server -> client)
// ---------------------------------------------------------------------------

const (
	TypeInitialState   = "initial_state"
	TypeQueueJoined    = "queue_joined"
	TypeQueueLeft      = "queue_left"
	TypeChatMatched    = "chat_matched"
	TypeChatJoined     = "chat_joined"
	TypeChatLeft       = "chat_left"
	TypeMessage        = "message"
	TypeChatEnded      = "chat_ended"
	TypeTypingStart    = "typing_start"
	TypeTypingStop     = "typing_stop"
	TypeActivityUpdate = "activity_update"
	TypeAccessUpdate   = "access_update"
	TypeError          = "error"
	TypePong           = "pong"
)

// ---------------------------------------------------------------------------
// Outbound envelope
// ---------------------------------------------------------------------------

// Action is a client intent. Payload fields are omitted when empty so that
// every action serializes to the minimal {"action": ...} form the server
// expects.
type Action struct {
	Action  string `json:"action"`
	ChatID  string `json:"chat_id,omitempty"`
	Content string `json:"content,omitempty"`
}

func Heartbeat() Action   { return Action{Action: ActionHeartbeat} }
func JoinQueue() Action   { return Action{Action: ActionJoinQueue} }
func LeaveQueue() Action  { return Action{Action: ActionLeaveQueue} }
func LeaveChat() Action   { return Action{Action: ActionLeaveChat} }
func EndChat() Action     { return Action{Action: ActionEndChat} }
func TypingStart() Action { return Action{Action: ActionTypingStart} }
func TypingStop() Action  { return Action{Action: ActionTypingStop} }
func Refresh() Action     { return Action{Action: ActionRefresh} }

// JoinChat asks the server to attach this connection to an existing chat.
func JoinChat(chatID string) Action {
	return Action{Action: ActionJoinChat, ChatID: chatID}
}

// SendMessage carries a chat message body.
func SendMessage(content string) Action {
	return Action{Action: ActionSendMessage, Content: content}
}

// EncodeAction serializes an action for a text frame.
func EncodeAction(a Action) ([]byte, error) {
	if a.Action == "" {
		return nil, fmt.Errorf("protocol: action name is empty")
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal action %q: %w", a.Action, err)
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the event type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}
