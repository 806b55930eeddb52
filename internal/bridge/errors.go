package bridge

import "errors"

// Validation and session errors surfaced synchronously to the HTTP layer.
// Provider-level failures never appear here; they are delivered in-stream as
// terminal error chunks.
var (
	ErrEmptyPrompt = errors.New("prompt must not be empty")
	ErrNoSession   = errors.New("no active stream for this client")
	ErrClosed      = errors.New("registry closed")
)

// msgNoModels is the terminal error chunk text when no model can be resolved.
const msgNoModels = "No language models are available. Configure an upstream provider or install a model."
