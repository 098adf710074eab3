package ws

import (
	"github.com/campuschat/client/internal/metrics"
	"github.com/campuschat/client/internal/protocol"
	"github.com/campuschat/client/internal/session"
)

// handleFrame decodes one text frame from connection gen and folds it into
// the state. Malformed, stale and unknown input is logged and dropped.
func (c *Client) handleFrame(gen uint64, data []byte) {
	ev, err := protocol.ParseServerEvent(data)
	if err != nil {
		c.logger.Warn("dropping malformed event", "err", err, "bytes", len(data))
		return
	}

	label := ev.Kind()
	if _, ok := ev.(protocol.Unknown); ok {
		label = "unknown"
	}
	metrics.EventsTotal.WithLabelValues(label).Inc()

	c.mu.Lock()
	if gen != c.gen || c.connState != session.Connected {
		c.mu.Unlock()
		return
	}
	res := session.Apply(c.state, ev)
	c.state = res.State
	if res.Signal == session.SignalMatched || res.Signal == session.SignalEnded {
		// The typing burst belonged to the previous chat.
		c.typing = false
		c.typingSeq++
		stopTimer(&c.typingTimer)
	}

	var ns []session.Notification
	if res.Outcome == session.Applied {
		ns = append(ns, c.changedLocked())
		snap := c.snapshotLocked()
		switch res.Signal {
		case session.SignalMatched:
			ns = append(ns, session.Notification{Kind: session.Matched, ChatID: res.ChatID, Snapshot: snap})
		case session.SignalEnded:
			ns = append(ns, session.Notification{Kind: session.Ended, ChatID: res.ChatID, Snapshot: snap})
		}
	}
	c.mu.Unlock()

	c.logOutcome(ev, res)
	if _, ok := ev.(protocol.MessageReceived); ok && res.Outcome == session.Applied {
		metrics.MessagesTotal.WithLabelValues("received").Inc()
	}
	c.emit(ns...)
}

func (c *Client) logOutcome(ev protocol.Event, res session.Result) {
	switch res.Outcome {
	case session.Applied:
		c.logger.Debug("event applied", "type", ev.Kind())
	case session.Ignored:
		if e, ok := ev.(protocol.ServerError); ok {
			c.logger.Debug("suppressed server error", "message", e.Message)
		}
	case session.Desync:
		c.logger.Warn("event does not match local state, dropped", "type", ev.Kind())
	case session.Unhandled:
		c.logger.Warn("unhandled event type", "type", ev.Kind())
	case session.ServerError:
		e := ev.(protocol.ServerError)
		c.logger.Error("server error", "message", e.Message)
	}
}
