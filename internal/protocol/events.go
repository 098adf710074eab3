package protocol

import (
	"encoding/json"
	"fmt"
)

// Event is an inbound server event. The set of implementations is closed:
// every kind the server documents has its own struct, and anything else
// decodes to Unknown.
type Event interface {
	// Kind returns the wire discriminator of the event.
	Kind() string
	isEvent()
}

// InitialState is the full snapshot pushed after connect and on refresh.
type InitialState struct {
	User     User     `json:"user"`
	Access   Access   `json:"access"`
	Activity Activity `json:"activity"`
	Queue    Queue    `json:"queue"`
	Chat     *Chat    `json:"chat"`
}

// QueueJoined confirms the user is enqueued for matching.
type QueueJoined struct{}

// QueueLeft confirms the user left the queue.
type QueueLeft struct{}

// ChatMatched announces a fresh pairing.
type ChatMatched struct {
	Chat Chat `json:"chat"`
}

// ChatJoined re-attaches the connection to a chat already in progress.
type ChatJoined struct {
	Chat Chat `json:"chat"`
}

// ChatLeft confirms the user left the chat.
type ChatLeft struct{}

// ChatEnded reports the chat was ended by either participant or the server.
type ChatEnded struct{}

// MessageReceived carries one new chat message. On the wire the message
// fields sit directly next to "type".
type MessageReceived struct {
	Message Message
}

// TypingStarted reports that UserID began composing.
type TypingStarted struct {
	UserID ID `json:"user_id"`
}

// TypingStopped reports that UserID stopped composing.
type TypingStopped struct {
	UserID ID `json:"user_id"`
}

// ActivityUpdate replaces the campus activity counters.
type ActivityUpdate struct {
	Activity Activity `json:"activity"`
}

// AccessUpdate replaces the access window state.
type AccessUpdate struct {
	Access Access `json:"access"`
}

// ServerError is a protocol-level error reported by the server.
type ServerError struct {
	Message string `json:"message"`
}

// Pong answers a heartbeat.
type Pong struct{}

// Unknown is any event kind this client does not model.
type Unknown struct {
	Type string
	Raw  json.RawMessage
}

func (InitialState) Kind() string    { return TypeInitialState }
func (QueueJoined) Kind() string     { return TypeQueueJoined }
func (QueueLeft) Kind() string       { return TypeQueueLeft }
func (ChatMatched) Kind() string     { return TypeChatMatched }
func (ChatJoined) Kind() string      { return TypeChatJoined }
func (ChatLeft) Kind() string        { return TypeChatLeft }
func (ChatEnded) Kind() string       { return TypeChatEnded }
func (MessageReceived) Kind() string { return TypeMessage }
func (TypingStarted) Kind() string   { return TypeTypingStart }
func (TypingStopped) Kind() string   { return TypeTypingStop }
func (ActivityUpdate) Kind() string  { return TypeActivityUpdate }
func (AccessUpdate) Kind() string    { return TypeAccessUpdate }
func (ServerError) Kind() string     { return TypeError }
func (Pong) Kind() string            { return TypePong }
func (u Unknown) Kind() string       { return u.Type }

func (InitialState) isEvent()    {}
func (QueueJoined) isEvent()     {}
func (QueueLeft) isEvent()       {}
func (ChatMatched) isEvent()     {}
func (ChatJoined) isEvent()      {}
func (ChatLeft) isEvent()        {}
func (ChatEnded) isEvent()       {}
func (MessageReceived) isEvent() {}
func (TypingStarted) isEvent()   {}
func (TypingStopped) isEvent()   {}
func (ActivityUpdate) isEvent()  {}
func (AccessUpdate) isEvent()    {}
func (ServerError) isEvent()     {}
func (Pong) isEvent()            {}
func (Unknown) isEvent()         {}

// ParseServerEvent decodes a raw text frame into a typed Event. Unknown
// kinds are returned as Unknown rather than as an error; an error means the
// frame was not a valid envelope or its payload did not match its kind.
func ParseServerEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: failed to parse event: %w", err)
	}

	var (
		ev  Event
		err error
	)

	switch env.Type {
	case TypeInitialState:
		var m InitialState
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeQueueJoined:
		ev = QueueJoined{}
	case TypeQueueLeft:
		ev = QueueLeft{}
	case TypeChatMatched:
		var m ChatMatched
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeChatJoined:
		var m ChatJoined
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeChatLeft:
		ev = ChatLeft{}
	case TypeMessage:
		var m Message
		err = json.Unmarshal(env.Raw, &m)
		ev = MessageReceived{Message: m}
	case TypeChatEnded:
		ev = ChatEnded{}
	case TypeTypingStart:
		var m TypingStarted
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeTypingStop:
		var m TypingStopped
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeActivityUpdate:
		var m ActivityUpdate
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeAccessUpdate:
		var m AccessUpdate
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypeError:
		var m ServerError
		err = json.Unmarshal(env.Raw, &m)
		ev = m
	case TypePong:
		ev = Pong{}
	default:
		return Unknown{Type: env.Type, Raw: env.Raw}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return ev, nil
}
