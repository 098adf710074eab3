package ws

import (
	"bytes"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// maxFrameSize caps one server message; larger ones end the connection.
const maxFrameSize = 4 << 20

// closeTimeout bounds how long a close frame write may block on a peer that
// stopped reading.
const closeTimeout = time.Second

// connection wraps the single live socket of a Client. All frame writes go
// through writeMu so that application frames, heartbeats and control frame
// replies never interleave on the wire.
type connection struct {
	conn      net.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newConnection(conn net.Conn) *connection {
	return &connection{conn: conn}
}

// writeText sends a masked client text frame.
func (c *connection) writeText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// close sends a close frame with the given status and releases the socket.
// Safe to call more than once; only the first call writes.
func (c *connection) close(code ws.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(code, reason))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
}

// release closes the socket without a close frame.
func (c *connection) release() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// readLoop reads frames until the connection ends and hands every text
// payload to onText. Pings are answered and a server close is acknowledged
// before returning. The returned status is the peer's close code, or
// StatusAbnormalClosure when the socket failed without one.
func (c *connection) readLoop(onText func([]byte)) (ws.StatusCode, string) {
	var ctrl bytes.Buffer
	handler := wsutil.ControlFrameHandler(&ctrl, ws.StateClientSide)
	control := func(h ws.Header, r io.Reader) error {
		err := handler(h, r)
		if ctrl.Len() > 0 {
			c.writeMu.Lock()
			_, werr := c.conn.Write(ctrl.Bytes())
			c.writeMu.Unlock()
			ctrl.Reset()
			if err == nil {
				err = werr
			}
		}
		return err
	}

	rd := &wsutil.Reader{
		Source:         c.conn,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: control,
	}

	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return closeStatus(err)
		}

		if hdr.OpCode.IsControl() {
			if err := control(hdr, rd); err != nil {
				return closeStatus(err)
			}
			continue
		}

		if hdr.OpCode != ws.OpText {
			if err := rd.Discard(); err != nil {
				return closeStatus(err)
			}
			continue
		}

		data, err := io.ReadAll(io.LimitReader(rd, maxFrameSize+1))
		if err != nil {
			return closeStatus(err)
		}
		if len(data) > maxFrameSize {
			c.close(ws.StatusMessageTooBig, "message too big")
			return ws.StatusMessageTooBig, "message too big"
		}
		onText(data)
	}
}

func closeStatus(err error) (ws.StatusCode, string) {
	var closed wsutil.ClosedError
	if errors.As(err, &closed) {
		return closed.Code, closed.Reason
	}
	return ws.StatusAbnormalClosure, err.Error()
}
