package session_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/MusheghMov/checkx/internal/session"
	"github.com/MusheghMov/checkx/internal/session/sessiontest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestInitializeCreatesSessionWithOptions(t *testing.T) {
	p := &sessiontest.Provider{}
	m := session.NewManager(p, session.DefaultOptions(), nil)

	require.False(t, m.IsReady())
	require.True(t, m.Initialize(context.Background(), false))
	require.True(t, m.IsReady())

	opts := p.LastOptions()
	require.Equal(t, session.SystemPrompt, opts.SystemPrompt)
	require.Equal(t, 0.3, opts.Temperature)
	require.Equal(t, 10, opts.TopK)

	// Existing session without force is a no-op.
	require.True(t, m.Initialize(context.Background(), false))
	require.Equal(t, 1, p.Creates())
}

func TestInitializeForceReplacesSession(t *testing.T) {
	p := &sessiontest.Provider{}
	m := session.NewManager(p, session.DefaultOptions(), nil)

	require.True(t, m.Initialize(context.Background(), false))
	require.True(t, m.Initialize(context.Background(), true))
	require.Equal(t, 2, p.Creates())
	require.Equal(t, 1, p.Destroys())
}

func TestInitializeUnavailable(t *testing.T) {
	p := &sessiontest.Provider{Unavailable: true}
	m := session.NewManager(p, session.DefaultOptions(), nil)

	require.False(t, m.CheckAvailability(context.Background()))
	require.False(t, m.Initialize(context.Background(), false))
	require.Nil(t, m.Session(context.Background()))
	require.Equal(t, 0, p.Creates())
}

func TestInitializeCreateFailure(t *testing.T) {
	p := &sessiontest.Provider{CreateErr: errors.New("boom")}
	m := session.NewManager(p, session.DefaultOptions(), nil)

	require.False(t, m.Initialize(context.Background(), false))
	require.False(t, m.IsReady())
}

func TestNilProviderIsUnavailable(t *testing.T) {
	m := session.NewManager(nil, session.DefaultOptions(), nil)
	require.False(t, m.CheckAvailability(context.Background()))
	require.False(t, m.Initialize(context.Background(), false))

	_, err := m.ExecutePrompt(context.Background(), "hi", 1)
	require.ErrorIs(t, err, session.ErrUnavailable)
}

func TestConcurrentInitializeCreatesOnce(t *testing.T) {
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	p := &sessiontest.Provider{Gate: gate, Entered: entered}
	m := session.NewManager(p, session.DefaultOptions(), nil)

	const callers = 16
	results := make([]bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Initialize(context.Background(), false)
		}(i)
	}

	<-entered
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.Equal(t, 1, p.Creates())
	for _, ok := range results {
		require.True(t, ok)
	}
}

func TestExecutePromptSuccess(t *testing.T) {
	p := &sessiontest.Provider{Reply: func(prompt string) (string, error) {
		return "echo: " + prompt, nil
	}}
	m := session.NewManager(p, session.DefaultOptions(), nil)

	got, err := m.ExecutePrompt(context.Background(), "hello", 1)
	require.NoError(t, err)
	require.Equal(t, "echo: hello", got)
	require.Equal(t, 1, p.Creates())
}

func TestExecutePromptRetriesOnFreshSession(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	p := &sessiontest.Provider{Reply: func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	}}
	m := session.NewManager(p, session.DefaultOptions(), nil)

	got, err := m.ExecutePrompt(context.Background(), "hello", 1)
	require.NoError(t, err)
	require.Equal(t, "ok", got)
	require.Equal(t, 2, p.Creates())
	require.Equal(t, 1, p.Destroys())
}

func TestExecutePromptExhaustsRetries(t *testing.T) {
	p := &sessiontest.Provider{Reply: func(string) (string, error) {
		return "", errors.New("always")
	}}
	m := session.NewManager(p, session.DefaultOptions(), nil)

	_, err := m.ExecutePrompt(context.Background(), "hello", 2)
	require.ErrorIs(t, err, session.ErrPromptFailed)
	require.Len(t, p.Prompts(), 3)
}

func TestExecutePromptRecoversPanics(t *testing.T) {
	p := &sessiontest.Provider{Reply: func(string) (string, error) {
		panic("model crashed")
	}}
	m := session.NewManager(p, session.DefaultOptions(), nil)

	_, err := m.ExecutePrompt(context.Background(), "hello", 0)
	require.ErrorIs(t, err, session.ErrPromptFailed)
}

func TestQueuedPromptUsesReplacementSession(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	p := &sessiontest.Provider{Reply: func(string) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return "", errors.New("transient")
		}
		return "ok", nil
	}}
	m := session.NewManager(p, session.DefaultOptions(), nil)
	require.True(t, m.Initialize(context.Background(), false))

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errA = m.ExecutePrompt(context.Background(), "a", 1)
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, errB = m.ExecutePrompt(context.Background(), "b", 0)
	}()
	// Let the second caller queue behind the blocked prompt.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	require.Equal(t, 2, p.Creates())
	require.Equal(t, 1, p.Destroys())
	require.True(t, m.IsReady())
}

func TestPromptsNeverOverlap(t *testing.T) {
	var inflight atomic.Int32
	var overlapped atomic.Bool
	p := &sessiontest.Provider{Reply: func(string) (string, error) {
		if inflight.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(time.Millisecond)
		inflight.Add(-1)
		return "ok", nil
	}}
	m := session.NewManager(p, session.DefaultOptions(), nil)

	var wg sync.WaitGroup
	var failed atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.ExecutePrompt(context.Background(), "hello", 0); err != nil {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Zero(t, failed.Load())
	require.False(t, overlapped.Load())
	require.Len(t, p.Prompts(), 8)
}

func TestCleanupIsIdempotent(t *testing.T) {
	p := &sessiontest.Provider{}
	m := session.NewManager(p, session.DefaultOptions(), nil)

	require.True(t, m.Initialize(context.Background(), false))
	m.Cleanup()
	m.Cleanup()
	require.False(t, m.IsReady())
	require.Equal(t, 1, p.Destroys())

	// A later prompt transparently creates a new session.
	_, err := m.ExecutePrompt(context.Background(), "again", 0)
	require.NoError(t, err)
	require.Equal(t, 2, p.Creates())
}
