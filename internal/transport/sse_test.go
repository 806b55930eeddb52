package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tokligence/chat-bridge/internal/bridge"
	"github.com/tokligence/chat-bridge/internal/eventhub"
)

func TestSSEStreamHeadersAndFraming(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSEStream(rec)
	if err != nil {
		t.Fatalf("NewSSEStream: %v", err)
	}

	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("unexpected cache control %q", got)
	}
	if got := rec.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Fatalf("buffering must be disabled, got %q", got)
	}

	if err := s.Send(bridge.DeltaChunk("He")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Send(bridge.DoneChunk()); err != nil {
		t.Fatalf("Send: %v", err)
	}

	body := rec.Body.String()
	want := "data: {\"delta\":\"He\",\"done\":false}\n\ndata: {\"delta\":\"\",\"done\":true}\n\n"
	if body != want {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestSSEStreamSendAfterCloseIsNoop(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSEStream(rec)
	if err != nil {
		t.Fatalf("NewSSEStream: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close must be idempotent: %v", err)
	}

	before := rec.Body.Len()
	if err := s.Send(bridge.DeltaChunk("late")); err != bridge.ErrSinkClosed {
		t.Fatalf("expected ErrSinkClosed, got %v", err)
	}
	if err := s.Ping(); err != bridge.ErrSinkClosed {
		t.Fatalf("expected ErrSinkClosed from ping, got %v", err)
	}
	if rec.Body.Len() != before {
		t.Fatalf("closed stream must not write")
	}

	select {
	case <-s.Done():
	default:
		t.Fatalf("Done must be closed after Close")
	}
}

func TestSSEStreamPing(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSEStream(rec)
	if err != nil {
		t.Fatalf("NewSSEStream: %v", err)
	}
	if err := s.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if got := rec.Body.String(); got != ": ping\n\n" {
		t.Fatalf("unexpected ping frame %q", got)
	}
}

// A peer that stops reading must not hold a write open indefinitely: once
// socket buffers fill, the per-write deadline fails the write and the stream
// closes itself, so teardown paths blocked on s.mu stay bounded.
func TestSSEStreamWriteDeadlineBoundsStalledPeer(t *testing.T) {
	streamCh := make(chan *SSEStream, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := NewSSEStream(w)
		if err != nil {
			t.Errorf("NewSSEStream: %v", err)
			return
		}
		s.setWriteTimeout(200 * time.Millisecond)
		streamCh <- s
		<-s.Done()
	}))
	t.Cleanup(srv.Close)

	// connect, then never read the body
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var s *SSEStream
	select {
	case s = <-streamCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never produced a stream")
	}
	t.Cleanup(func() { _ = s.Close() })

	// flood until the socket buffers fill and the deadline fires
	chunk := bridge.DeltaChunk(strings.Repeat("x", 64*1024))
	deadline := time.Now().Add(10 * time.Second)
	for i := 0; i < 4096; i++ {
		if time.Now().After(deadline) {
			t.Fatalf("write to a stalled peer never failed")
		}
		if err := s.Send(chunk); err != nil {
			select {
			case <-s.Done():
			default:
				t.Fatalf("failed write must close the stream")
			}
			return
		}
	}
	t.Fatalf("write to a stalled peer never failed")
}

func TestSSEStreamSendEvent(t *testing.T) {
	rec := httptest.NewRecorder()
	s, err := NewSSEStream(rec)
	if err != nil {
		t.Fatalf("NewSSEStream: %v", err)
	}
	evt := eventhub.New(eventhub.DirectionIn, "http", "request", map[string]any{"path": "/chat"})
	if err := s.SendEvent(evt); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: {") || !strings.Contains(body, `"direction":"in"`) {
		t.Fatalf("unexpected event frame %q", body)
	}
}
