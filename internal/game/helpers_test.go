package game

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// scriptedWords hands out its queue in order and fails once it runs dry.
// It also counts draws made while a store transaction held the lock.
type scriptedWords struct {
	mu        sync.Mutex
	queue     []string
	asked     []Difficulty
	store     *MemoryStore
	drawnInTx int
}

func (w *scriptedWords) RandomWord(_ context.Context, d Difficulty) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.asked = append(w.asked, d)
	if w.store != nil {
		if w.store.mu.TryLock() {
			w.store.mu.Unlock()
		} else {
			w.drawnInTx++
		}
	}
	if len(w.queue) == 0 {
		return "", errors.New("no words left")
	}
	next := w.queue[0]
	w.queue = w.queue[1:]
	return next, nil
}

type testEnv struct {
	engine *Engine
	store  *MemoryStore
	clock  *fakeClock
	words  *scriptedWords
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv wires an engine whose coin flips always land on 0: player1
// starts and every re-roll picks Easy.
func newTestEnv(t *testing.T, cfg Config, words ...string) *testEnv {
	t.Helper()
	clock := newFakeClock()
	store := NewMemoryStore()
	store.now = clock.Now
	ws := &scriptedWords{queue: words, store: store}
	e := NewEngine(cfg, store, ws,
		WithClock(clock.Now),
		WithRand(func(int) int { return 0 }),
		WithLogger(discardLogger()),
	)
	return &testEnv{engine: e, store: store, clock: clock, words: ws}
}

func (env *testEnv) create(t *testing.T) *Match {
	t.Helper()
	m, err := env.engine.CreateMatch(context.Background(), "alice", "bob", Easy, false)
	require.NoError(t, err)
	return m
}

func (env *testEnv) load(t *testing.T, id string) *Match {
	t.Helper()
	m, err := env.store.Match(context.Background(), id)
	require.NoError(t, err)
	require.NoError(t, m.Validate())
	return m
}

// miss submits a guess of the right length that shares no letter with any test word.
func (env *testEnv) miss(t *testing.T, id, playerID string) Result {
	t.Helper()
	m := env.load(t, id)
	res, err := env.engine.SubmitGuess(context.Background(), id, playerID, strings.Repeat("z", wordLen(m.CurrentWord)))
	require.NoError(t, err)
	require.False(t, res.Correct)
	return res
}
