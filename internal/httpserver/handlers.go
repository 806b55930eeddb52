package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/tokligence/chat-bridge/internal/bridge"
	"github.com/tokligence/chat-bridge/internal/ledger"
	"github.com/tokligence/chat-bridge/internal/provider"
	"github.com/tokligence/chat-bridge/internal/version"
)

type chatRequest struct {
	Prompt   string `json:"prompt"`
	Model    string `json:"model"`
	ClientID string `json:"clientId"`
}

type stopRequest struct {
	ClientID string `json:"clientId"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"transport": s.transport,
		"port":      s.port,
		"version":   version.Info(),
	})
}

// handleModels never fails the request: an unreachable provider degrades to
// an empty catalog so clients can still render their picker.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.provider.ListModels(r.Context())
	if err != nil {
		s.logger.Printf("model listing failed: %v", err)
		models = nil
	}
	if models == nil {
		models = []provider.ModelDescriptor{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"models": models})
}

// handleUsage reports the ledger's aggregate summary and the most recent
// generation rows. It is a diagnostics surface like /events, not part of the
// chat protocol.
func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.respondError(w, http.StatusNotFound, errors.New("usage ledger disabled"))
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	summary, err := s.ledger.Summary(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	recent, err := s.ledger.ListRecent(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if recent == nil {
		recent = []ledger.Entry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"summary": summary, "recent": recent})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	clientID := clientIDOrDefault(req.ClientID)

	err := s.registry.SubmitPrompt(clientID, req.Prompt, req.Model)
	switch {
	case errors.Is(err, bridge.ErrEmptyPrompt):
		s.respondError(w, http.StatusBadRequest, err)
	case errors.Is(err, bridge.ErrNoSession):
		s.respondError(w, http.StatusConflict, err)
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err)
	default:
		s.debugf("prompt accepted client=%s model=%q", clientID, req.Model)
		s.respondJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "clientId": clientID})
	}
}

func (s *Server) handleChatStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	clientID := clientIDOrDefault(req.ClientID)
	stopped := s.registry.RequestStop(clientID)
	s.respondJSON(w, http.StatusOK, map[string]any{"stopped": stopped, "clientId": clientID})
}
