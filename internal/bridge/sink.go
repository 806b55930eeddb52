package bridge

import "errors"

// ErrSinkClosed is returned by Send on a closed sink. Callers on the
// generation path treat it as "the peer is gone" and never surface it.
var ErrSinkClosed = errors.New("sink closed")

// Sink delivers stream chunks to one connected client. Implementations must
// make Send after Close a safe no-op (returning ErrSinkClosed), make Close
// idempotent, and never panic under normal disconnection races.
type Sink interface {
	Send(chunk StreamChunk) error
	Close() error
}

// KeepAliver is implemented by sinks that need periodic side-band pings to
// hold their channel open (the push-stream variant). Ping failures mean the
// peer is gone.
type KeepAliver interface {
	Ping() error
}
