package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/tokligence/chat-bridge/internal/bridge"
	"github.com/tokligence/chat-bridge/internal/config"
	"github.com/tokligence/chat-bridge/internal/eventhub"
	"github.com/tokligence/chat-bridge/internal/ledger"
	"github.com/tokligence/chat-bridge/internal/provider"
)

// Config holds the pieces the HTTP layer wires together.
type Config struct {
	Transport         string // config.TransportSSE or config.TransportWebSocket
	Port              int
	KeepAliveInterval time.Duration
	Provider          provider.Provider
	Ledger            ledger.Store
	Logger            *log.Logger
	Debug             bool
}

// Server exposes the bridge endpoints: health/config/models, the chat
// protocol, and the diagnostics feed.
type Server struct {
	transport string
	port      int

	registry *bridge.Registry
	hub      *eventhub.Hub
	provider provider.Provider
	ledger   ledger.Store // nil when usage recording is disabled

	upgrader websocket.Upgrader
	logger   *log.Logger
	debug    bool
}

// New constructs a Server owning its registry and event hub. Both are torn
// down by Close.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	hub := eventhub.NewHub(cfg.KeepAliveInterval)
	hub.SetLogger(logger)

	registry := bridge.NewRegistry(cfg.Provider, hub)
	registry.SetLogger(logger)
	registry.SetKeepAliveInterval(cfg.KeepAliveInterval)
	if cfg.Ledger != nil {
		registry.SetLedger(cfg.Ledger)
	}

	return &Server{
		transport: cfg.Transport,
		port:      cfg.Port,
		registry:  registry,
		hub:       hub,
		provider:  cfg.Provider,
		ledger:    cfg.Ledger,
		// clients are local webviews and tools; the loopback gate is the
		// actual boundary, not the Origin header
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:   logger,
		debug:    cfg.Debug,
	}
}

// Registry exposes the session registry, mainly for the daemon and tests.
func (s *Server) Registry() *bridge.Registry { return s.registry }

// Hub exposes the event hub.
func (s *Server) Hub() *eventhub.Hub { return s.hub }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	// no middleware.RealIP here: the loopback gate must judge the socket
	// peer, never a spoofable forwarded header
	r.Use(s.localOnly)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Get("/config", s.handleConfig)
	r.Get("/models", s.handleModels)
	r.Get("/usage", s.handleUsage)
	r.Post("/chat", s.handleChat)
	r.Post("/chat/stop", s.handleChatStop)
	r.Get("/chat/stream", s.handleChatStream)
	r.Get("/chat/ws", s.handleChatWS)
	r.Get("/events", s.handleEvents)
	return r
}

// Close tears down every session and every feed subscriber.
func (s *Server) Close() {
	s.registry.Close()
	s.hub.Close()
}

// localOnly rejects any peer that is not a loopback address.
func (s *Server) localOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(strings.TrimSpace(host))
		if ip == nil || !ip.IsLoopback() {
			s.hub.Emit(eventhub.New(eventhub.DirectionError, "gate", "rejected non-local peer", map[string]any{"peer": r.RemoteAddr}))
			s.respondError(w, http.StatusForbidden, errors.New("local connections only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe mirrors every inbound request onto the activity feed.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hub.Emit(eventhub.New(eventhub.DirectionIn, "http", r.Method+" "+r.URL.Path, nil))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) debugf(format string, args ...any) {
	if s.debug {
		s.logger.Printf("DEBUG "+format, args...)
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}

func clientIDOrDefault(id string) string {
	if strings.TrimSpace(id) == "" {
		return bridge.DefaultClientID
	}
	return id
}

// sseActive reports whether the push-stream chat endpoint is the live mode.
func (s *Server) sseActive() bool { return s.transport == config.TransportSSE }
