package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MusheghMov/checkx/internal/logger"
)

const initKey = "session"

// Manager owns the lifecycle of one model session and hands it out on demand.
// Concurrent initializations collapse into one in-flight attempt, and prompts
// issued against the shared session are serialized.
type Manager struct {
	provider Provider
	opts     Options
	log      *slog.Logger

	mu      sync.Mutex
	current Session
	gen     uint64

	inits    singleflight.Group
	promptMu sync.Mutex
}

// NewManager wires a provider; the session itself is created lazily.
func NewManager(provider Provider, opts Options, log *slog.Logger) *Manager {
	return &Manager{
		provider: provider,
		opts:     opts,
		log:      logger.OrDiscard(log),
	}
}

// CheckAvailability reports whether the host exposes a usable model.
func (m *Manager) CheckAvailability(ctx context.Context) (ok bool) {
	if m.provider == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("availability check panicked", slog.Any("panic", r))
			ok = false
		}
	}()
	return m.provider.Available(ctx)
}

// Initialize makes sure a session exists. With force it replaces the current one.
// Callers that arrive while an initialization is running wait for that attempt.
func (m *Manager) Initialize(ctx context.Context, force bool) bool {
	if !force && m.IsReady() {
		return true
	}

	v, _, shared := m.inits.Do(initKey, func() (any, error) {
		return m.initialize(context.WithoutCancel(ctx), force), nil
	})
	if shared {
		m.log.Debug("joined in-flight session initialization")
	}
	return v.(bool)
}

func (m *Manager) initialize(ctx context.Context, force bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("session initialization panicked", slog.Any("panic", r))
			m.swap(nil)
			ok = false
		}
	}()

	if !force && m.IsReady() {
		return true
	}

	if !m.CheckAvailability(ctx) {
		m.log.Warn("model not available for initialization")
		return false
	}

	if old := m.swap(nil); old != nil {
		if err := old.Destroy(); err != nil {
			m.log.Warn("destroy previous session", slog.Any("err", err))
		}
	}

	sess, err := m.provider.Create(ctx, m.opts)
	if err != nil || sess == nil {
		m.log.Error("create model session", slog.Any("err", err))
		return false
	}

	m.swap(sess)
	m.log.Info("model session created",
		slog.Float64("temperature", m.opts.Temperature),
		slog.Int("top_k", m.opts.TopK),
	)
	return true
}

// Session returns the current session, initializing one first if needed.
// It returns nil when no session can be created.
func (m *Manager) Session(ctx context.Context) Session {
	if sess := m.load(); sess != nil {
		return sess
	}
	if !m.Initialize(ctx, false) {
		return nil
	}
	return m.load()
}

// IsReady reports whether a session currently exists.
func (m *Manager) IsReady() bool {
	return m.load() != nil
}

// ExecutePrompt sends prompt to the session. After a failed attempt the session
// is recreated and the prompt retried, up to retries more times.
func (m *Manager) ExecutePrompt(ctx context.Context, prompt string, retries int) (string, error) {
	if retries < 0 {
		retries = 0
	}

	if m.Session(ctx) == nil {
		m.log.Warn("no model session available for prompt")
		return "", ErrUnavailable
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		resp, gen, err := m.prompt(ctx, prompt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		m.log.Warn("prompt attempt failed", slog.Int("attempt", attempt+1), slog.Any("err", err))

		if attempt < retries {
			m.renew(ctx, gen)
		}
	}

	return "", fmt.Errorf("%w after %d attempts: %v", ErrPromptFailed, retries+1, lastErr)
}

// prompt runs text against whichever session is current once the prompt lock
// is held, and reports that session's generation.
func (m *Manager) prompt(ctx context.Context, text string) (resp string, gen uint64, err error) {
	m.promptMu.Lock()
	defer m.promptMu.Unlock()

	sess, gen := m.loadGen()
	if sess == nil {
		return "", gen, ErrUnavailable
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prompt panicked: %v", r)
		}
	}()
	resp, err = sess.Prompt(ctx, text)
	return resp, gen, err
}

// renew replaces the session of generation failed. A session that has
// already been replaced since is kept.
func (m *Manager) renew(ctx context.Context, failed uint64) bool {
	v, _, _ := m.inits.Do(initKey, func() (any, error) {
		if sess, gen := m.loadGen(); sess != nil && gen != failed {
			return true, nil
		}
		return m.initialize(context.WithoutCancel(ctx), true), nil
	})
	return v.(bool)
}

// Cleanup destroys the current session. It is safe to call repeatedly.
func (m *Manager) Cleanup() {
	old := m.swap(nil)
	if old == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn("session destroy panicked", slog.Any("panic", r))
		}
	}()
	if err := old.Destroy(); err != nil {
		m.log.Warn("cleanup session", slog.Any("err", err))
	}
}

func (m *Manager) load() Session {
	sess, _ := m.loadGen()
	return sess
}

func (m *Manager) loadGen() (Session, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.gen
}

func (m *Manager) swap(next Session) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.current
	m.current = next
	m.gen++
	return prev
}
