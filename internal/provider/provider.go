package provider

import (
	"context"
	"fmt"
)

// ModelDescriptor identifies one text-generation model offered by a provider.
type ModelDescriptor struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Vendor  string `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Family  string `json:"family,omitempty" yaml:"family,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// GenerateRequest carries one prompt to the provider. ModelID is optional;
// the caller resolves it to a concrete model before generation starts.
type GenerateRequest struct {
	Prompt  string
	ModelID string
}

// StreamEvent is one item of a provider's lazy fragment sequence. Exactly one
// of Text or Err is meaningful; a closed channel means clean exhaustion.
type StreamEvent struct {
	Text string
	Err  error
}

// Provider is the upstream text-generation capability consumed by the bridge.
// Generate honors the context: cancelling it stops fragment production. The
// returned channel is closed when the sequence is exhausted.
type Provider interface {
	ListModels(ctx context.Context) ([]ModelDescriptor, error)
	Generate(ctx context.Context, req GenerateRequest) (<-chan StreamEvent, error)
}

// Error wraps a provider-level failure so callers can distinguish it from
// local validation problems.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
