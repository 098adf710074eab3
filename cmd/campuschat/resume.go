package main

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/campuschat/client/internal/api"
	"github.com/campuschat/client/internal/protocol"
	"github.com/campuschat/client/internal/session"
)

// joiner is the part of the realtime client the resumer drives.
type joiner interface {
	Snapshot() session.Snapshot
	JoinChat(chatID string)
}

type chatLookup interface {
	ActiveChat(ctx context.Context, token string) (api.ActiveChat, error)
	Chat(ctx context.Context, token, chatID string) (protocol.Chat, error)
}

// resumer rejoins a chat that was still in progress when the previous run
// ended. The chat comes from the REST API. join_chat waits for the
// server's first snapshot on the realtime connection and is skipped when
// that snapshot already carries a chat.
type resumer struct {
	logger *slog.Logger

	mu      sync.Mutex
	client  joiner
	pending string
}

func newResumer(logger *slog.Logger) *resumer {
	return &resumer{logger: logger.With("component", "resume")}
}

func (r *resumer) bind(c joiner) {
	r.mu.Lock()
	r.client = c
	r.mu.Unlock()
}

// lookup asks the API for an active chat, checks it can still be opened and
// joins it once the connection is synced.
func (r *resumer) lookup(ctx context.Context, a chatLookup, token string) {
	active, err := a.ActiveChat(ctx, token)
	if err != nil {
		r.logger.Warn("active chat lookup failed", "err", err)
		return
	}
	if !active.HasActiveChat || active.ChatID == "" {
		return
	}

	chat, err := a.Chat(ctx, token, active.ChatID)
	switch {
	case errors.Is(err, api.ErrNotFound):
		r.logger.Warn("chat no longer available", "chat_id", active.ChatID)
		return
	case errors.Is(err, api.ErrForbidden):
		r.logger.Warn("chat not accessible", "chat_id", active.ChatID)
		return
	case err != nil:
		r.logger.Warn("chat lookup failed", "chat_id", active.ChatID, "err", err)
		return
	}
	r.logger.Debug("active chat found", "chat_id", chat.ChatID, "messages", len(chat.Messages))

	r.mu.Lock()
	r.pending = active.ChatID
	c := r.client
	r.mu.Unlock()

	if c != nil {
		r.tryJoin(c.Snapshot())
	}
}

// Publish implements ws.Sink.
func (r *resumer) Publish(n session.Notification) {
	r.tryJoin(n.Snapshot)
}

// idle reports whether no join is waiting.
func (r *resumer) idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending == ""
}

func (r *resumer) tryJoin(snap session.Snapshot) {
	if snap.Connection != session.Connected || !snap.Synced() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.pending
	if id == "" || r.client == nil {
		return
	}
	r.pending = ""

	if snap.HasChat() {
		r.logger.Debug("chat already restored by the server", "chat_id", snap.ChatID(), "wanted", id)
		return
	}
	r.logger.Info("resuming active chat", "chat_id", id)
	r.client.JoinChat(id)
}
