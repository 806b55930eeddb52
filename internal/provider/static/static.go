// Package static implements a deterministic in-process provider. It is the
// default when no upstream is configured and the workhorse of the test suite:
// it answers from a canned catalog, optionally loaded from a YAML file, and
// streams replies fragment by fragment like a real model runner would.
package static

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tokligence/chat-bridge/internal/provider"
)

// Catalog describes the models and canned replies served by the provider.
type Catalog struct {
	Models []provider.ModelDescriptor `yaml:"models"`
	// Replies maps an exact prompt (after trimming) to a fixed reply.
	// Prompts not listed here fall back to echoing.
	Replies map[string]string `yaml:"replies"`
}

// Provider implements provider.Provider from a static catalog.
type Provider struct {
	catalog      Catalog
	fragmentSize int
	delay        time.Duration
}

// Ensure Provider implements provider.Provider.
var _ provider.Provider = (*Provider)(nil)

// Option configures a static Provider.
type Option func(*Provider)

// WithCatalog replaces the default single-model catalog.
func WithCatalog(c Catalog) Option {
	return func(p *Provider) { p.catalog = c }
}

// WithFragmentSize sets how many runes each streamed fragment carries.
func WithFragmentSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.fragmentSize = n
		}
	}
}

// WithDelay inserts a pause between fragments, approximating model latency.
func WithDelay(d time.Duration) Option {
	return func(p *Provider) { p.delay = d }
}

// New creates a static provider with a single echo model unless a catalog
// option overrides it.
func New(opts ...Option) *Provider {
	p := &Provider{
		catalog: Catalog{
			Models: []provider.ModelDescriptor{
				{ID: "static-echo", Name: "Static Echo", Vendor: "tokligence", Family: "static"},
			},
		},
		fragmentSize: 4,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LoadCatalog reads a YAML catalog file and returns a provider serving it.
func LoadCatalog(path string, opts ...Option) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(c.Models) == 0 {
		return nil, fmt.Errorf("catalog %s declares no models", path)
	}
	return New(append([]Option{WithCatalog(c)}, opts...)...), nil
}

// ListModels returns the catalog models.
func (p *Provider) ListModels(ctx context.Context) ([]provider.ModelDescriptor, error) {
	out := make([]provider.ModelDescriptor, len(p.catalog.Models))
	copy(out, p.catalog.Models)
	return out, nil
}

// Generate streams the canned (or echoed) reply for the prompt.
func (p *Provider) Generate(ctx context.Context, req provider.GenerateRequest) (<-chan provider.StreamEvent, error) {
	reply, ok := p.catalog.Replies[strings.TrimSpace(req.Prompt)]
	if !ok {
		reply = "[static] " + strings.TrimSpace(req.Prompt)
	}

	ch := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(ch)
		for _, frag := range splitRunes(reply, p.fragmentSize) {
			if p.delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.delay):
				}
			} else if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case ch <- provider.StreamEvent{Text: frag}:
			}
		}
	}()
	return ch, nil
}

func splitRunes(s string, size int) []string {
	if size <= 0 {
		size = 4
	}
	runes := []rune(s)
	var out []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}
