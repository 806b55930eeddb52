package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tokligence/chat-bridge/internal/bridge"
)

// wsPair upgrades one connection and hands the server side to the test.
func wsPair(t *testing.T) (*WSSink, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	sinkCh := make(chan *WSSink, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		sinkCh <- NewWSSink(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	select {
	case sink := <-sinkCh:
		return sink, client
	case <-time.After(2 * time.Second):
		t.Fatalf("server side never upgraded")
		return nil, nil
	}
}

func TestWSSinkSendDeliversJSON(t *testing.T) {
	sink, client := wsPair(t)

	if err := sink.Send(bridge.DeltaChunk("He")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	var chunk bridge.StreamChunk
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := client.ReadJSON(&chunk); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if chunk.Delta != "He" || chunk.Done {
		t.Fatalf("unexpected chunk %+v", chunk)
	}
}

func TestWSSinkCloseIsIdempotentAndSendBecomesNoop(t *testing.T) {
	sink, client := wsPair(t)

	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sink.Send(bridge.DeltaChunk("late")); err != bridge.ErrSinkClosed {
		t.Fatalf("expected ErrSinkClosed, got %v", err)
	}

	// the client observes a normal closure, not a dropped connection
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	if err == nil {
		t.Fatalf("expected close, got a message")
	}
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal closure, got %v", err)
	}

	select {
	case <-sink.Done():
	default:
		t.Fatalf("Done must be closed after Close")
	}
}
