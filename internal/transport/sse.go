// Package transport provides the two delivery mechanisms behind the sink
// abstraction: a server-sent-events stream and a websocket connection. The
// registry and the generation driver never know which one they hold.
package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tokligence/chat-bridge/internal/bridge"
	"github.com/tokligence/chat-bridge/internal/eventhub"
)

// sseWriteTimeout bounds each frame write. The outer http.Server carries no
// WriteTimeout so streams can stay open indefinitely; without a per-write
// deadline here, one peer stalled on TCP backpressure would hold s.mu — and
// everything queued behind Close — until the kernel gives up.
const sseWriteTimeout = 10 * time.Second

// SSEStream wraps a long-lived text/event-stream response held open over the
// initial request. Writes are framed as one `data:` record per payload and
// flushed immediately; intermediary buffering is disabled via headers.
type SSEStream struct {
	mu           sync.Mutex
	w            http.ResponseWriter
	flusher      http.Flusher
	ctrl         *http.ResponseController
	writeTimeout time.Duration
	closed       bool
	done         chan struct{}
}

// SSEStream serves both chat chunks and the diagnostics feed.
var (
	_ bridge.Sink       = (*SSEStream)(nil)
	_ bridge.KeepAliver = (*SSEStream)(nil)
	_ eventhub.Sink     = (*SSEStream)(nil)
	_ eventhub.Pinger   = (*SSEStream)(nil)
)

// NewSSEStream prepares w for streaming and writes the response header.
func NewSSEStream(w http.ResponseWriter) (*SSEStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEStream{
		w:            w,
		flusher:      flusher,
		ctrl:         http.NewResponseController(w),
		writeTimeout: sseWriteTimeout,
		done:         make(chan struct{}),
	}, nil
}

// setWriteTimeout overrides the per-write deadline.
func (s *SSEStream) setWriteTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeTimeout = d
}

// armDeadline sets the write deadline for the next frame. Writers that do
// not support deadlines (response recorders) are left unbounded. Callers
// hold s.mu.
func (s *SSEStream) armDeadline() {
	if s.writeTimeout > 0 {
		_ = s.ctrl.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
}

// Send writes one chunk record. After Close it is a safe no-op.
func (s *SSEStream) Send(chunk bridge.StreamChunk) error {
	return s.writeJSON(chunk)
}

// SendEvent writes one activity event record.
func (s *SSEStream) SendEvent(evt eventhub.Event) error {
	return s.writeJSON(evt)
}

// Ping writes an SSE comment frame to keep intermediaries from timing the
// connection out.
func (s *SSEStream) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bridge.ErrSinkClosed
	}
	s.armDeadline()
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		s.closeLocked()
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close ends the stream. Idempotent; the handler blocked on Done unblocks.
func (s *SSEStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

// Done is closed when the stream is closed, releasing the HTTP handler that
// keeps the response open.
func (s *SSEStream) Done() <-chan struct{} {
	return s.done
}

func (s *SSEStream) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bridge.ErrSinkClosed
	}
	s.armDeadline()
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		// the peer is gone
		s.closeLocked()
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *SSEStream) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
