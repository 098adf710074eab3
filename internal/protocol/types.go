package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an identifier the backend sends either as a JSON string or as a
// JSON number. It is always handled as a string on this side.
type ID string

// UnmarshalJSON accepts "abc", 42 and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("protocol: invalid id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("protocol: invalid id %s: %w", data, err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("protocol: invalid id %s: %w", data, err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier as text.
func (id ID) String() string { return string(id) }

// Access reason codes reported when chat is not currently permitted.
const (
	ReasonOutsideWindow   = "outside_window"
	ReasonCollegeInactive = "college_inactive"
	ReasonNoCollege       = "no_college"
)

// Access describes whether the user's campus is inside its chat window.
// The window boundaries are authoritative server-side; the client never
// derives CanAccess from its own clock.
type Access struct {
	CanAccess            bool   `json:"can_access"`
	Reason               string `json:"reason,omitempty"`
	Message              string `json:"message,omitempty"`
	CollegeName          string `json:"college_name,omitempty"`
	CollegeDomain        string `json:"college_domain,omitempty"`
	WindowStart          string `json:"window_start,omitempty"`
	WindowEnd            string `json:"window_end,omitempty"`
	TimeRemainingSeconds int    `json:"time_remaining_seconds,omitempty"`
	IsServiceAccount     bool   `json:"is_service_account,omitempty"`
}

// Activity holds campus-scoped counters.
type Activity struct {
	College            string `json:"college"`
	CollegeID          ID     `json:"college_id,omitempty"`
	ActiveChats        int    `json:"active_chats"`
	WaitingCount       int    `json:"waiting_count"`
	RegisteredStudents int    `json:"registered_students"`
}

// Queue reports matchmaking queue membership.
type Queue struct {
	IsInQueue bool `json:"is_in_queue"`
}

// Message kinds.
const (
	MessageText   = "text"
	MessageSystem = "system"
)

// Message is a single chat message.
type Message struct {
	ID          ID     `json:"id"`
	Content     string `json:"content"`
	SenderID    ID     `json:"sender_id,omitempty"`
	MessageType string `json:"message_type"`
	Timestamp   string `json:"timestamp"`
	IsOwn       bool   `json:"is_own"`
}

// Chat is one paired conversation and its transcript so far.
type Chat struct {
	ChatID    string    `json:"chat_id"`
	College   string    `json:"college"`
	CreatedAt string    `json:"created_at"`
	IsActive  bool      `json:"is_active"`
	Messages  []Message `json:"messages"`
}

// User identifies the connected account.
type User struct {
	ID               ID   `json:"id"`
	IsServiceAccount bool `json:"is_service_account"`
}
