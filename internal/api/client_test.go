package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuschat/client/internal/protocol"
)

// newTestClient starts a server running handler and returns a Client
// pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/"})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
	_, err = NewClient(Config{BaseURL: "ws://host"})
	assert.Error(t, err)
	_, err = NewClient(DefaultConfig())
	assert.NoError(t, err)
}

func TestCurrentUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/user/", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"id": 42, "email": "a@state.edu", "first_name": "A",
			"college": map[string]any{"id": 7, "name": "State U", "window_start": "21:00:00"},
		})
	})

	u, err := c.CurrentUser(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, protocol.ID("42"), u.ID)
	require.NotNil(t, u.College)
	assert.Equal(t, "State U", u.College.Name)
}

func TestStatusErrors(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrForbidden},
		{http.StatusNotFound, ErrNotFound},
	}
	for _, tc := range cases {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, tc.status, map[string]string{"detail": "nope"})
		})
		_, err := c.Chat(context.Background(), "tok", "abc")
		require.Error(t, err)
		assert.True(t, errors.Is(err, tc.want), "status %d: got %v", tc.status, err)
		assert.Contains(t, err.Error(), "nope")
		assert.False(t, Temporary(err))
	}
}

func TestServerErrorIsTemporary(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := c.ActiveChat(context.Background(), "tok")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	assert.Equal(t, "boom", se.Detail)
	assert.True(t, Temporary(err))
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestTransportErrorIsTemporary(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: url})
	require.NoError(t, err)
	_, err = c.CurrentUser(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, Temporary(err))
}

func TestLoginAndRefresh(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch r.URL.Path {
		case "/auth/google/login/":
			assert.Equal(t, "code-1", body["code"])
			writeJSON(w, http.StatusOK, map[string]any{"access": "a1", "refresh": "r1", "user": map[string]any{"id": 1}})
		case "/auth/token/refresh/":
			if body["refresh"] != "r1" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"access": "a2"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})
	ctx := context.Background()

	login, err := c.Login(ctx, "code-1")
	require.NoError(t, err)
	assert.Equal(t, "a1", login.Access)
	assert.Equal(t, "r1", login.Refresh)

	access, err := c.RefreshToken(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "a2", access)

	_, err = c.RefreshToken(ctx, "stale")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestActiveChatAndChat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat/active/":
			writeJSON(w, http.StatusOK, map[string]any{"has_active_chat": true, "chat_id": "abc"})
		case "/api/chat/abc/":
			writeJSON(w, http.StatusOK, map[string]any{
				"chat_id": "abc", "is_active": true,
				"messages": []any{map[string]any{"id": 1, "content": "hi", "message_type": "text", "is_own": true}},
			})
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	active, err := c.ActiveChat(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, active.HasActiveChat)
	assert.Equal(t, "abc", active.ChatID)

	chat, err := c.Chat(ctx, "tok", active.ChatID)
	require.NoError(t, err)
	require.Len(t, chat.Messages, 1)
	assert.Equal(t, protocol.ID("1"), chat.Messages[0].ID)
	assert.True(t, chat.Messages[0].IsOwn)

	_, err = c.Chat(ctx, "tok", "")
	assert.Error(t, err)
}

func TestCheckAccess(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"can_access": true, "message": "open", "time_remaining_seconds": 600})
		})
		a, err := c.CheckAccess(context.Background(), "tok")
		require.NoError(t, err)
		assert.True(t, a.CanAccess)
		assert.Equal(t, 600, a.TimeRemainingSeconds)
	})

	t.Run("denied body on 403", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusForbidden, map[string]any{
				"can_access": false, "reason": "outside_window", "message": "Chat opens at 21:00",
				"window_start": "21:00:00", "window_end": "23:59:00",
			})
		})
		a, err := c.CheckAccess(context.Background(), "tok")
		require.NoError(t, err)
		assert.False(t, a.CanAccess)
		assert.Equal(t, protocol.ReasonOutsideWindow, a.Reason)
		assert.Equal(t, "21:00:00", a.WindowStart)
	})

	t.Run("bare 403", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
		_, err := c.CheckAccess(context.Background(), "tok")
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestAuthURLAndActivity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/google/auth_url/":
			writeJSON(w, http.StatusOK, map[string]string{"url": "https://accounts.google.com/o/oauth2/auth?x=1"})
		case "/api/college/activity/":
			writeJSON(w, http.StatusOK, map[string]any{"college": "State U", "college_id": 7, "active_chats": 3, "waiting_count": 1})
		}
	})
	ctx := context.Background()

	u, err := c.AuthURL(ctx)
	require.NoError(t, err)
	assert.Contains(t, u, "accounts.google.com")

	act, err := c.Activity(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, 3, act.ActiveChats)
	assert.Equal(t, protocol.ID("7"), act.CollegeID)
}
