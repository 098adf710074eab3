package ws

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gobwas/ws"
)

// DialFunc opens an upgraded websocket connection to url. Tests substitute
// an in-memory implementation.
type DialFunc func(ctx context.Context, url string) (net.Conn, error)

// NetDialer returns a DialFunc backed by gobwas ws.Dialer.
func NetDialer(timeout time.Duration) DialFunc {
	d := ws.Dialer{Timeout: timeout}
	return func(ctx context.Context, url string) (net.Conn, error) {
		conn, br, _, err := d.Dial(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("ws: dial: %w", err)
		}
		if br != nil {
			// The server already sent frames along with the handshake
			// response; they sit in br and must be read first.
			return &bufferedConn{Conn: conn, r: br}, nil
		}
		return conn, nil
	}
}

type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// Endpoint builds the realtime URL for base, path and token. The token
// travels as a query parameter because browsers cannot set headers on the
// websocket handshake and the server only looks there. http and https bases
// are mapped to ws and wss.
func Endpoint(base, path, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("ws: invalid base url %q: %w", base, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("ws: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("ws: base url %q has no host", base)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
