// Package bridge contains the chat session registry and the generation state
// machine: the part of the system that binds clients to transport sinks and
// drives prompts through the upstream provider.
package bridge

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tokligence/chat-bridge/internal/eventhub"
	"github.com/tokligence/chat-bridge/internal/ledger"
	"github.com/tokligence/chat-bridge/internal/provider"
)

// DefaultClientID is used when a caller omits a client identifier.
const DefaultClientID = "default"

// Session binds one ClientId to one transport sink and at most one live
// generation. All fields beyond ClientID are owned by the Registry.
type Session struct {
	ClientID string

	sink   Sink
	gen    *generation
	kaStop chan struct{} // nil when the sink needs no keep-alive
}

// Registry owns the session map. At most one Session exists per ClientId; a
// new connection atomically replaces any prior one. All mutations run under
// one mutex, the Go shape of the original single-threaded event loop.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool

	provider  provider.Provider
	hub       *eventhub.Hub
	store     ledger.Store
	keepAlive time.Duration
	logger    *log.Logger

	wg sync.WaitGroup // live generation goroutines
}

// NewRegistry creates a registry. hub may be nil to disable the activity feed.
func NewRegistry(p provider.Provider, hub *eventhub.Hub) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		provider: p,
		hub:      hub,
		logger:   log.New(io.Discard, "", 0),
	}
}

// SetLogger overrides the registry logger.
func (r *Registry) SetLogger(logger *log.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetLedger enables usage recording for finished generations.
func (r *Registry) SetLedger(store ledger.Store) { r.store = store }

// SetKeepAliveInterval enables periodic pings for sinks that implement
// KeepAliver. Zero disables pinging.
func (r *Registry) SetKeepAliveInterval(d time.Duration) { r.keepAlive = d }

// OpenSession installs sink as the one live session for clientID, tearing
// down any prior session for that id first. The old sink never coexists with
// the new one, not even momentarily.
func (r *Registry) OpenSession(clientID string, sink Sink) (*Session, error) {
	if clientID == "" {
		clientID = DefaultClientID
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = sink.Close()
		return nil, ErrClosed
	}
	replaced := false
	if old, ok := r.sessions[clientID]; ok {
		r.teardownLocked(old)
		delete(r.sessions, clientID)
		replaced = true
	}
	sess := &Session{ClientID: clientID, sink: sink}
	if ka, ok := sink.(KeepAliver); ok && r.keepAlive > 0 {
		sess.kaStop = make(chan struct{})
		go r.keepAliveLoop(ka, sess.kaStop)
	}
	r.sessions[clientID] = sess
	r.mu.Unlock()

	if replaced {
		r.emit(eventhub.New(eventhub.DirectionEvent, "registry", "session replaced", map[string]any{"clientId": clientID}))
	}
	r.emit(eventhub.New(eventhub.DirectionEvent, "registry", "session opened", map[string]any{"clientId": clientID}))
	return sess, nil
}

// CloseSession tears down the session for clientID. When expected is non-nil
// it must match the live session: a disconnect callback firing after a
// reconnection already replaced the session must not tear down the new one.
func (r *Registry) CloseSession(clientID string, expected *Session) {
	if clientID == "" {
		clientID = DefaultClientID
	}
	r.mu.Lock()
	cur, ok := r.sessions[clientID]
	if !ok || (expected != nil && cur != expected) {
		r.mu.Unlock()
		return
	}
	r.teardownLocked(cur)
	delete(r.sessions, clientID)
	r.mu.Unlock()

	r.emit(eventhub.New(eventhub.DirectionEvent, "registry", "session closed", map[string]any{"clientId": clientID}))
}

// SubmitPrompt validates and accepts one prompt for clientID. Acceptance is
// synchronous and decoupled from outcome: a nil return only means the
// generation is queued to stream; provider failures arrive later as a
// terminal error chunk on the session's sink.
func (r *Registry) SubmitPrompt(clientID, prompt, modelID string) error {
	if clientID == "" {
		clientID = DefaultClientID
	}
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	sess, ok := r.sessions[clientID]
	if !ok {
		r.mu.Unlock()
		return ErrNoSession
	}
	if sess.gen != nil {
		sess.gen.cancel()
		sess.gen = nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	gen := &generation{
		id:       uuid.NewString(),
		clientID: clientID,
		prompt:   prompt,
		modelID:  modelID,
		sink:     sess.sink,
		ctx:      ctx,
		cancel:   cancel,
		started:  time.Now(),
	}
	sess.gen = gen
	r.wg.Add(1)
	r.mu.Unlock()

	go r.run(gen)
	return nil
}

// RequestStop cancels the live generation for clientID, if any. Idempotent.
func (r *Registry) RequestStop(clientID string) bool {
	if clientID == "" {
		clientID = DefaultClientID
	}
	r.mu.Lock()
	sess, ok := r.sessions[clientID]
	if !ok || sess.gen == nil {
		r.mu.Unlock()
		return false
	}
	gen := sess.gen
	sess.gen = nil
	r.mu.Unlock()

	gen.cancel()
	r.emit(eventhub.New(eventhub.DirectionEvent, "registry", "stop requested", map[string]any{"clientId": clientID, "generationId": gen.id}))
	return true
}

// SessionCount reports the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close tears down every session and waits for all generation goroutines to
// finish. The registry is unusable afterwards.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.wg.Wait()
		return
	}
	r.closed = true
	for id, sess := range r.sessions {
		r.teardownLocked(sess)
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// teardownLocked cancels the session's generation, stops its keep-alive and
// closes its sink, in that order. Callers hold r.mu.
func (r *Registry) teardownLocked(sess *Session) {
	if sess.gen != nil {
		sess.gen.cancel()
		sess.gen = nil
	}
	if sess.kaStop != nil {
		close(sess.kaStop)
		sess.kaStop = nil
	}
	if err := sess.sink.Close(); err != nil {
		r.logger.Printf("close sink for %s: %v", sess.ClientID, err)
	}
}

// clearGeneration detaches gen from its session if it is still the current
// one; a replacement submitted during the run must not be cleared.
func (r *Registry) clearGeneration(gen *generation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[gen.clientID]; ok && sess.gen == gen {
		sess.gen = nil
	}
}

func (r *Registry) keepAliveLoop(ka KeepAliver, stop <-chan struct{}) {
	t := time.NewTicker(r.keepAlive)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			if err := ka.Ping(); err != nil {
				// peer gone; the transport handler notices and closes the session
				return
			}
		}
	}
}

func (r *Registry) emit(evt eventhub.Event) {
	if r.hub != nil {
		r.hub.Emit(evt)
	}
}
