package ws

import "github.com/campuschat/client/internal/protocol"

// StartTyping tells the peer the user is composing. Only the idle to
// typing transition is sent; every call pushes the automatic typing_stop
// back by the typing timeout. Without an active chat it does nothing, so an
// input outside the chat view cannot leak a typing signal.
func (c *Client) StartTyping() {
	c.mu.Lock()
	if !c.state.HasChat() {
		c.mu.Unlock()
		return
	}
	start := !c.typing
	c.typing = true
	c.typingSeq++
	seq := c.typingSeq
	stopTimer(&c.typingTimer)
	c.typingTimer = c.clock.AfterFunc(c.config.TypingTimeout, func() {
		c.typingExpired(seq)
	})
	conn := c.liveLocked()
	c.mu.Unlock()

	if start {
		c.write(conn, protocol.TypingStart())
	}
}

// StopTyping ends the typing signal. Without an active chat only the local
// flag and timer are cleared.
func (c *Client) StopTyping() {
	c.mu.Lock()
	wasTyping := c.typing
	c.typing = false
	c.typingSeq++
	stopTimer(&c.typingTimer)
	if !c.state.HasChat() {
		c.mu.Unlock()
		return
	}
	conn := c.liveLocked()
	c.mu.Unlock()

	if wasTyping {
		c.write(conn, protocol.TypingStop())
	}
}

// typingExpired is the typing timer callback. seq identifies the StartTyping
// call that armed it; anything newer wins.
func (c *Client) typingExpired(seq uint64) {
	c.mu.Lock()
	if seq != c.typingSeq || !c.typing {
		c.mu.Unlock()
		return
	}
	c.typing = false
	c.typingTimer = nil
	conn := c.liveLocked()
	c.mu.Unlock()

	c.write(conn, protocol.TypingStop())
}
