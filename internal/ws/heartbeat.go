package ws

import (
	"github.com/campuschat/client/internal/protocol"
	"github.com/campuschat/client/internal/session"
)

// armHeartbeatLocked schedules the next heartbeat for connection gen. The
// callback re-arms itself for as long as that connection stays open.
func (c *Client) armHeartbeatLocked(gen uint64) {
	stopTimer(&c.heartbeat)
	c.heartbeat = c.clock.AfterFunc(c.config.HeartbeatInterval, func() {
		c.sendHeartbeat(gen)
	})
}

func (c *Client) sendHeartbeat(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.connState != session.Connected {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.armHeartbeatLocked(gen)
	c.mu.Unlock()

	c.write(conn, protocol.Heartbeat())
}
