// Package openai talks to any OpenAI-compatible endpoint, which covers the
// hosted API as well as local model runners (ollama, llama.cpp server, vllm).
package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tokligence/chat-bridge/internal/provider"
)

// Ensure Provider implements provider.Provider.
var _ provider.Provider = (*Provider)(nil)

// Config holds configuration for the OpenAI-compatible provider.
type Config struct {
	BaseURL        string // e.g. http://localhost:11434/v1
	APIKey         string // optional; local runners usually need none
	RequestTimeout time.Duration
}

// Provider sends requests to an OpenAI-compatible API.
type Provider struct {
	baseURL string
	apiKey  string
	// listClient has a request timeout; streamClient must not, a generation
	// can legitimately outlive any fixed deadline.
	listClient   *http.Client
	streamClient *http.Client
}

// New creates a Provider instance.
func New(cfg Config) (*Provider, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("openai: base url required")
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Provider{
		baseURL:      baseURL,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		listClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}, nil
}

type modelsResponse struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

// ListModels fetches /models and converts it to descriptors.
func (p *Provider) ListModels(ctx context.Context) ([]provider.ModelDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, &provider.Error{Provider: "openai", Err: err}
	}
	p.authorize(req)

	resp, err := p.listClient.Do(req)
	if err != nil {
		return nil, &provider.Error{Provider: "openai", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &provider.Error{Provider: "openai", Err: fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))}
	}

	var body modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &provider.Error{Provider: "openai", Err: fmt.Errorf("decode models: %w", err)}
	}
	models := make([]provider.ModelDescriptor, 0, len(body.Data))
	for _, m := range body.Data {
		models = append(models, provider.ModelDescriptor{
			ID:     m.ID,
			Name:   m.ID,
			Vendor: m.OwnedBy,
		})
	}
	return models, nil
}

type chunkPayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// Generate streams one chat completion and forwards content deltas as
// fragments. The channel closes on [DONE] or stream end.
func (p *Provider) Generate(ctx context.Context, genReq provider.GenerateRequest) (<-chan provider.StreamEvent, error) {
	payload := map[string]any{
		"model": genReq.ModelID,
		"messages": []map[string]string{
			{"role": "user", "content": genReq.Prompt},
		},
		"stream": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &provider.Error{Provider: "openai", Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &provider.Error{Provider: "openai", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	p.authorize(req)

	resp, err := p.streamClient.Do(req)
	if err != nil {
		return nil, &provider.Error{Provider: "openai", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &provider.Error{Provider: "openai", Err: fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))}
	}

	ch := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, ":") {
				continue
			}
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var chunk chunkPayload
			if perr := json.Unmarshal([]byte(data), &chunk); perr != nil {
				ch <- provider.StreamEvent{Err: &provider.Error{Provider: "openai", Err: fmt.Errorf("parse stream: %w", perr)}}
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if text := chunk.Choices[0].Delta.Content; text != "" {
				select {
				case <-ctx.Done():
					return
				case ch <- provider.StreamEvent{Text: text}:
				}
			}
			if chunk.Choices[0].FinishReason != nil {
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			ch <- provider.StreamEvent{Err: &provider.Error{Provider: "openai", Err: fmt.Errorf("read stream: %w", err)}}
		}
	}()
	return ch, nil
}

func (p *Provider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}
