// Package sessiontest provides an in-memory model provider for tests.
package sessiontest

import (
	"context"
	"errors"
	"sync"

	"github.com/MusheghMov/checkx/internal/session"
)

// ErrDestroyed is returned when prompting a destroyed session.
var ErrDestroyed = errors.New("session destroyed")

// Provider is a scriptable session.Provider.
type Provider struct {
	// Reply answers every prompt. A nil Reply echoes an empty JSON object.
	Reply func(prompt string) (string, error)
	// Unavailable makes Available report false.
	Unavailable bool
	// CreateErr is returned from Create when set.
	CreateErr error
	// Gate, when set, blocks Create until closed.
	Gate <-chan struct{}
	// Entered receives a value each time Create is entered, if non-nil.
	Entered chan<- struct{}

	mu       sync.Mutex
	creates  int
	destroys int
	prompts  []string
	lastOpts session.Options
}

var _ session.Provider = (*Provider)(nil)

// Available implements session.Provider.
func (p *Provider) Available(context.Context) bool {
	return !p.Unavailable
}

// Create implements session.Provider.
func (p *Provider) Create(ctx context.Context, opts session.Options) (session.Session, error) {
	if p.Entered != nil {
		p.Entered <- struct{}{}
	}
	if p.Gate != nil {
		select {
		case <-p.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.creates++
	p.lastOpts = opts
	if p.CreateErr != nil {
		return nil, p.CreateErr
	}
	return &fakeSession{provider: p}, nil
}

// Creates returns how many times Create was called.
func (p *Provider) Creates() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creates
}

// Destroys returns how many sessions were destroyed.
func (p *Provider) Destroys() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroys
}

// Prompts returns every prompt received, in order.
func (p *Provider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.prompts))
	copy(out, p.prompts)
	return out
}

// LastOptions returns the options of the most recent Create call.
func (p *Provider) LastOptions() session.Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOpts
}

type fakeSession struct {
	provider  *Provider
	mu        sync.Mutex
	destroyed bool
}

func (s *fakeSession) Prompt(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return "", ErrDestroyed
	}

	s.provider.mu.Lock()
	s.provider.prompts = append(s.provider.prompts, text)
	reply := s.provider.Reply
	s.provider.mu.Unlock()

	if reply == nil {
		return "{}", nil
	}
	return reply(text)
}

func (s *fakeSession) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil
	}
	s.destroyed = true

	s.provider.mu.Lock()
	s.provider.destroys++
	s.provider.mu.Unlock()
	return nil
}
