package transport

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tokligence/chat-bridge/internal/bridge"
)

const wsWriteTimeout = 10 * time.Second

// WSSink adapts a websocket connection to the sink contract. Writes happen
// only while the socket is open; disconnection races surface as no-ops, not
// errors for the generation path.
type WSSink struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

var _ bridge.Sink = (*WSSink)(nil)

// NewWSSink wraps an upgraded connection.
func NewWSSink(conn *websocket.Conn) *WSSink {
	return &WSSink{conn: conn, done: make(chan struct{})}
}

// Send writes one chunk as a JSON text message.
func (s *WSSink) Send(chunk bridge.StreamChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bridge.ErrSinkClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := s.conn.WriteJSON(chunk); err != nil {
		// the peer is gone
		s.closeLocked()
		return err
	}
	return nil
}

// Close sends a close frame and closes the connection. Idempotent.
func (s *WSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closeLocked()
	return nil
}

// Done is closed once the sink is closed.
func (s *WSSink) Done() <-chan struct{} {
	return s.done
}

// closeLocked tears the connection down. Callers hold s.mu.
func (s *WSSink) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	_ = s.conn.Close()
	close(s.done)
}
