// Package ollama exposes a local Ollama server as a model session provider.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MusheghMov/checkx/internal/logger"
	"github.com/MusheghMov/checkx/internal/session"
)

const defaultEndpoint = "http://localhost:11434"

var errClosed = errors.New("ollama session destroyed")

// Provider implements session.Provider against the Ollama HTTP API.
type Provider struct {
	endpoint string
	model    string
	client   *http.Client
	log      *slog.Logger
}

var _ session.Provider = (*Provider)(nil)

// New creates a provider. An empty model selects the first model the server lists.
func New(endpoint, model string, client *http.Client, log *slog.Logger) *Provider {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &Provider{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		model:    model,
		client:   client,
		log:      logger.OrDiscard(log),
	}
}

// Available reports whether the server answers and offers the configured model.
func (p *Provider) Available(ctx context.Context) bool {
	model, err := p.resolveModel(ctx)
	if err != nil {
		p.log.Debug("ollama not available", slog.String("endpoint", p.endpoint), slog.Any("err", err))
		return false
	}
	return model != ""
}

// Create returns a session bound to the resolved model and options.
func (p *Provider) Create(ctx context.Context, opts session.Options) (session.Session, error) {
	model, err := p.resolveModel(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{provider: p, model: model, opts: opts}, nil
}

func (p *Provider) resolveModel(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/api/tags", nil)
	if err != nil {
		return "", fmt.Errorf("build tags request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("list models: unexpected status %s", resp.Status)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return "", fmt.Errorf("decode models: %w", err)
	}
	if len(tags.Models) == 0 {
		return "", fmt.Errorf("no models installed at %s", p.endpoint)
	}

	if p.model == "" {
		return tags.Models[0].Name, nil
	}
	for _, m := range tags.Models {
		if m.Name == p.model || strings.TrimSuffix(m.Name, ":latest") == p.model {
			return m.Name, nil
		}
	}
	return "", fmt.Errorf("model %q not installed at %s", p.model, p.endpoint)
}

// Session is a stateless chat binding; every prompt is a single-shot exchange.
type Session struct {
	provider *Provider
	model    string
	opts     session.Options

	mu     sync.Mutex
	closed bool
}

// Prompt sends one user message together with the session's system prompt.
func (s *Session) Prompt(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", errClosed
	}

	messages := make([]map[string]string, 0, 2)
	if s.opts.SystemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": s.opts.SystemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": text})

	options := map[string]any{
		"temperature": s.opts.Temperature,
	}
	if s.opts.TopK > 0 {
		options["top_k"] = s.opts.TopK
	}
	if s.opts.MaxTokens > 0 {
		options["num_predict"] = s.opts.MaxTokens
	}

	body, err := json.Marshal(map[string]any{
		"model":    s.model,
		"messages": messages,
		"stream":   false,
		"options":  options,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.provider.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.provider.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ollama error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var result struct {
		Model   string `json:"model"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Done bool `json:"done"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}

	s.provider.log.Debug("ollama response",
		slog.String("model", result.Model),
		slog.Int("content_length", len(result.Message.Content)),
	)
	return result.Message.Content, nil
}

// Destroy marks the session unusable.
func (s *Session) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
