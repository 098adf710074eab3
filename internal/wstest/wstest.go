// Package wstest provides a fake realtime endpoint for tests. The server end
// of each connection is a Peer that records the actions the client sends and
// can push events, close with a status code or drop the socket.
package wstest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/campuschat/client/internal/protocol"
)

// Timeout bounds every wait in this package.
const Timeout = 2 * time.Second

// ErrRefused is returned by Dial while failures are queued with FailDials.
var ErrRefused = errors.New("wstest: connection refused")

// Server hands out Peers, either through Dial (in-memory pipes, no
// handshake) or through a real HTTP listener started by NewHTTPServer.
type Server struct {
	peers chan *Peer

	mu       sync.Mutex
	dials    int
	failures int
	urls     []string
	tokens   []string
	paths    []string

	http *httptest.Server
}

// NewServer returns an in-memory server. Pass its Dial method as the
// client's DialFunc.
func NewServer() *Server {
	return &Server{peers: make(chan *Peer, 16)}
}

// NewHTTPServer returns a server listening on a loopback port that performs
// the real websocket upgrade. Close it when done.
func NewHTTPServer() *Server {
	s := NewServer()
	s.http = httptest.NewServer(http.HandlerFunc(s.handleUpgrade))
	return s
}

// URL is the ws:// base url of an HTTP server.
func (s *Server) URL() string {
	if s.http == nil {
		return "ws://wstest.invalid"
	}
	return "ws" + strings.TrimPrefix(s.http.URL, "http")
}

// Close stops the HTTP listener, if any.
func (s *Server) Close() {
	if s.http != nil {
		s.http.CloseClientConnections()
		s.http.Close()
	}
}

// Dial implements the client's DialFunc over net.Pipe.
func (s *Server) Dial(ctx context.Context, url string) (net.Conn, error) {
	s.mu.Lock()
	s.dials++
	s.urls = append(s.urls, url)
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if fail {
		return nil, ErrRefused
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, server := net.Pipe()
	s.peers <- newPeer(server)
	return client, nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.dials++
	s.urls = append(s.urls, r.URL.String())
	s.tokens = append(s.tokens, r.URL.Query().Get("token"))
	s.paths = append(s.paths, r.URL.Path)
	s.mu.Unlock()

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	s.peers <- newPeer(conn)
}

// FailDials makes the next n in-memory dials fail with ErrRefused.
func (s *Server) FailDials(n int) {
	s.mu.Lock()
	s.failures += n
	s.mu.Unlock()
}

// Dials returns how many connection attempts reached the server.
func (s *Server) Dials() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

// URLs returns the url of every dial, in order.
func (s *Server) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.urls...)
}

// Tokens returns the token query parameter of every HTTP upgrade.
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

// Paths returns the request path of every HTTP upgrade.
func (s *Server) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

// Accept waits for the next connection.
func (s *Server) Accept(t testing.TB) *Peer {
	t.Helper()
	select {
	case p := <-s.peers:
		t.Cleanup(p.Drop)
		return p
	case <-time.After(Timeout):
		t.Fatalf("wstest: no connection within %s", Timeout)
		return nil
	}
}

// ---------------------------------------------------------------------------
// Peer
// ---------------------------------------------------------------------------

// Peer is the server side of one client connection.
type Peer struct {
	conn    net.Conn
	writeMu sync.Mutex
	actions chan protocol.Action
	done    chan struct{}

	mu        sync.Mutex
	received  []protocol.Action
	closeCode ws.StatusCode
	closeText string
}

func newPeer(conn net.Conn) *Peer {
	p := &Peer{
		conn:    conn,
		actions: make(chan protocol.Action, 256),
		done:    make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *Peer) readLoop() {
	defer close(p.done)
	for {
		header, reader, err := wsutil.NextReader(p.conn, ws.StateServerSide)
		if err != nil {
			return
		}
		payload, err := io.ReadAll(reader)
		if err != nil {
			return
		}

		switch header.OpCode {
		case ws.OpClose:
			code, reason := ws.ParseCloseFrameData(payload)
			p.mu.Lock()
			p.closeCode = code
			p.closeText = reason
			p.mu.Unlock()
			return
		case ws.OpText:
			var a protocol.Action
			if err := json.Unmarshal(payload, &a); err != nil {
				continue
			}
			p.mu.Lock()
			p.received = append(p.received, a)
			p.mu.Unlock()
			p.actions <- a
		}
	}
}

// Send pushes an event to the client. v is marshaled as JSON.
func (p *Peer) Send(t testing.TB, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("wstest: marshal event: %v", err)
	}
	p.SendRaw(t, data)
}

// SendRaw pushes a raw text frame to the client.
func (p *Peer) SendRaw(t testing.TB, data []byte) {
	t.Helper()
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(Timeout))
	if err := wsutil.WriteServerMessage(p.conn, ws.OpText, data); err != nil {
		t.Fatalf("wstest: send: %v", err)
	}
}

// Ping sends a protocol-level ping frame.
func (p *Peer) Ping(t testing.TB) {
	t.Helper()
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := ws.WriteFrame(p.conn, ws.NewPingFrame([]byte("ka"))); err != nil {
		t.Fatalf("wstest: ping: %v", err)
	}
}

// CloseWith sends a close frame with code, waits for the client to answer
// and closes the socket.
func (p *Peer) CloseWith(t testing.TB, code ws.StatusCode, reason string) {
	t.Helper()
	p.writeMu.Lock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(Timeout))
	err := ws.WriteFrame(p.conn, ws.NewCloseFrame(ws.NewCloseFrameBody(code, reason)))
	p.writeMu.Unlock()
	if err != nil {
		t.Fatalf("wstest: close: %v", err)
	}
	select {
	case <-p.done:
	case <-time.After(Timeout):
	}
	_ = p.conn.Close()
}

// Drop closes the socket without a close frame.
func (p *Peer) Drop() {
	_ = p.conn.Close()
}

// NextAction waits for the next action the client sends.
func (p *Peer) NextAction(t testing.TB) protocol.Action {
	t.Helper()
	select {
	case a := <-p.actions:
		return a
	case <-time.After(Timeout):
		t.Fatalf("wstest: no action within %s", Timeout)
		return protocol.Action{}
	}
}

// ExpectAction waits for the next action and fails unless it is named name.
func (p *Peer) ExpectAction(t testing.TB, name string) protocol.Action {
	t.Helper()
	a := p.NextAction(t)
	if a.Action != name {
		t.Fatalf("wstest: expected action %q, got %q", name, a.Action)
	}
	return a
}

// Actions returns every action received so far.
func (p *Peer) Actions() []protocol.Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Action(nil), p.received...)
}

// WaitClosed waits until the client stops sending and returns the close
// code it sent, or 0 if the socket ended without a close frame.
func (p *Peer) WaitClosed(t testing.TB) (ws.StatusCode, string) {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(Timeout):
		t.Fatalf("wstest: connection still open after %s", Timeout)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCode, p.closeText
}
