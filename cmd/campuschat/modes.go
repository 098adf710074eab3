package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/campuschat/client/internal/api"
	"github.com/campuschat/client/internal/auth"
	"github.com/campuschat/client/internal/config"
	"github.com/campuschat/client/internal/messaging"
	"github.com/campuschat/client/internal/session"
)

// notifier is the part of the realtime client the headless loop reads.
type notifier interface {
	Notifications() <-chan session.Notification
}

// runHeadless logs session notifications until ctx is done.
func runHeadless(ctx context.Context, c notifier, logger *slog.Logger) {
	logger = logger.With("component", "headless")
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-c.Notifications():
			snap := n.Snapshot
			switch n.Kind {
			case session.Matched:
				logger.Info("matched", "chat_id", n.ChatID)
				seen = 0
			case session.Ended:
				logger.Info("chat ended", "chat_id", n.ChatID)
				seen = 0
			default:
				logger.Debug("state changed",
					"connection", snap.Connection.String(),
					"in_queue", snap.InQueue,
					"chat_id", snap.ChatID(),
					"peer_typing", snap.PeerTyping)
			}
			if snap.Chat == nil {
				continue
			}
			for _, m := range snap.Chat.Messages[min(seen, len(snap.Chat.Messages)):] {
				if !m.IsOwn {
					logger.Info("message", "chat_id", snap.ChatID(), "type", m.MessageType, "content", m.Content)
				}
			}
			seen = len(snap.Chat.Messages)
		}
	}
}

// printStatus writes account, access window, campus activity and active
// chat to w.
func printStatus(ctx context.Context, w io.Writer, a *api.Client, p *auth.Provider) error {
	token := p.AccessToken()
	fmt.Fprintf(w, "Signed in as %s\n", displayName(p.User()))

	access, err := a.CheckAccess(ctx, token)
	if err != nil {
		return err
	}
	if access.CanAccess {
		fmt.Fprintf(w, "Chat is open")
		if access.TimeRemainingSeconds > 0 {
			fmt.Fprintf(w, ", closes in %s", (time.Duration(access.TimeRemainingSeconds) * time.Second).String())
		}
		fmt.Fprintln(w)
	} else {
		msg := access.Message
		if msg == "" {
			msg = "Chat is closed (" + access.Reason + ")"
		}
		fmt.Fprintln(w, msg)
	}
	if access.WindowStart != "" {
		fmt.Fprintf(w, "Window: %s-%s\n", access.WindowStart, access.WindowEnd)
	}

	if activity, err := a.Activity(ctx, token); err == nil {
		fmt.Fprintf(w, "%s: %d active chats, %d waiting\n", activity.College, activity.ActiveChats, activity.WaitingCount)
	} else if !errors.Is(err, api.ErrForbidden) {
		return err
	}

	active, err := a.ActiveChat(ctx, token)
	if err != nil {
		return err
	}
	if active.HasActiveChat {
		fmt.Fprintf(w, "Active chat: %s\n", active.ChatID)
	} else {
		fmt.Fprintln(w, "No active chat")
	}
	return nil
}

// watch prints notifications another campuschat process publishes for
// user until ctx is done.
func watch(ctx context.Context, cfg config.Config, user string, logger *slog.Logger, w io.Writer) error {
	natsConfig, ok := cfg.NATS()
	if !ok {
		return errors.New("--watch needs CAMPUSCHAT_NATS_URL")
	}
	natsConfig.Name += "-watch"
	nc, err := messaging.NewNATSClient(natsConfig, logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	err = nc.Subscribe(messaging.WildcardSubject(user), func(m *nats.Msg) {
		var p messaging.Payload
		if err := json.Unmarshal(m.Data, &p); err != nil {
			logger.Warn("undecodable notification", "subject", m.Subject, "err", err)
			return
		}
		fmt.Fprintln(w, formatPayload(p))
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func formatPayload(p messaging.Payload) string {
	s := fmt.Sprintf("%s %-7s %s", p.At.Local().Format(time.TimeOnly), p.Kind, p.Connection)
	if p.ChatID != "" {
		s += fmt.Sprintf(" chat=%s messages=%d", p.ChatID, p.Messages)
	}
	if p.InQueue {
		s += " in_queue"
	}
	if p.PeerTyping {
		s += " peer_typing"
	}
	return s
}
