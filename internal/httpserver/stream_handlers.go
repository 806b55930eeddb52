package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tokligence/chat-bridge/internal/bridge"
	"github.com/tokligence/chat-bridge/internal/transport"
)

// handleChatStream attaches a push stream for a client. Only one stream per
// client is live at a time; a newer attach replaces the older one.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	if !s.sseActive() {
		s.respondError(w, http.StatusBadRequest, errors.New("push streaming is disabled; the socket transport is active"))
		return
	}
	clientID := clientIDOrDefault(r.URL.Query().Get("clientId"))

	stream, err := transport.NewSSEStream(w)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	sess, err := s.registry.OpenSession(clientID, stream)
	if err != nil {
		_ = stream.Close()
		return
	}
	s.debugf("stream attached client=%s", clientID)

	select {
	case <-r.Context().Done():
	case <-stream.Done():
	}
	s.registry.CloseSession(clientID, sess)
}

type wsClientMessage struct {
	Type     string `json:"type"`
	Prompt   string `json:"prompt"`
	Model    string `json:"model"`
	ClientID string `json:"clientId"`
}

// handleChatWS runs the socket variant of the chat protocol: one connection
// carries prompts and stop requests inbound and chunks outbound.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		return
	}

	clientID := clientIDOrDefault(r.URL.Query().Get("clientId"))

	if s.sseActive() {
		// The handshake succeeded, so report the mode mismatch in-band and
		// hang up without registering a session.
		_ = conn.WriteJSON(bridge.ErrorChunk("socket transport is disabled; the push-stream transport is active"))
		_ = conn.Close()
		return
	}

	sink := transport.NewWSSink(conn)
	sess, err := s.registry.OpenSession(clientID, sink)
	if err != nil {
		_ = sink.Close()
		return
	}
	s.debugf("socket attached client=%s", clientID)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var msg wsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			// malformed frames are dropped, not fatal
			continue
		}
		switch msg.Type {
		case "chat":
			if err := s.registry.SubmitPrompt(clientID, msg.Prompt, msg.Model); err != nil {
				_ = sink.Send(bridge.ErrorChunk(err.Error()))
			}
		case "stop":
			s.registry.RequestStop(clientID)
		default:
			s.debugf("ignoring socket message type=%q client=%s", msg.Type, clientID)
		}
	}
	s.registry.CloseSession(clientID, sess)
}

// handleEvents serves the diagnostics feed. It is available in both transport
// modes and always speaks server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	stream, err := transport.NewSSEStream(w)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.hub.Subscribe(stream)

	select {
	case <-r.Context().Done():
	case <-stream.Done():
	}
	s.hub.Unsubscribe(stream)
	_ = stream.Close()
}
