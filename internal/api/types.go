package api

import "github.com/campuschat/client/internal/protocol"

// College is the campus a user belongs to.
type College struct {
	ID          protocol.ID `json:"id"`
	Name        string      `json:"name"`
	Domain      string      `json:"domain"`
	IsActive    bool        `json:"is_active"`
	WindowStart string      `json:"window_start"`
	WindowEnd   string      `json:"window_end"`
}

// User is the profile returned by /auth/user/.
type User struct {
	ID             protocol.ID `json:"id"`
	Email          string      `json:"email"`
	FirstName      string      `json:"first_name"`
	LastName       string      `json:"last_name"`
	ProfilePicture string      `json:"profile_picture,omitempty"`
	IsActive       bool        `json:"is_active"`
	DateJoined     string      `json:"date_joined"`
	College        *College    `json:"college,omitempty"`
}

// LoginResponse is returned by the Google code exchange.
type LoginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	User    User   `json:"user"`
}

// ActiveChat says whether the user has a chat in progress.
type ActiveChat struct {
	HasActiveChat bool   `json:"has_active_chat"`
	ChatID        string `json:"chat_id,omitempty"`
}
