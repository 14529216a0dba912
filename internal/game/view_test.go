package game

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchView_HidesWordUntilFinished(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Config{}, "crane")
	m := env.create(t)

	v, err := env.engine.View(ctx, m.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, P2, v.You)
	assert.Equal(t, 5, v.WordLength)
	assert.Equal(t, "c", v.FirstLetter)
	assert.Empty(t, v.RevealedWord)
	assert.Equal(t, "alice", v.CurrentTurn)
	assert.Equal(t, env.clock.Now().Add(30*time.Second).UnixMilli(), v.TurnDeadline)

	raw, err := json.Marshal(v)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "crane")

	outsider, err := env.engine.View(ctx, m.ID, "mallory")
	require.NoError(t, err)
	assert.Empty(t, outsider.You)

	_, err = env.engine.ForfeitMatch(ctx, m.ID, "alice")
	require.NoError(t, err)

	v, err = env.engine.View(ctx, m.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "crane", v.RevealedWord)
	assert.Empty(t, v.CurrentTurn)
	assert.Zero(t, v.TurnDeadline)
}

func TestMatchView_CopiesRows(t *testing.T) {
	env := newTestEnv(t, Config{}, "crane")
	m := env.create(t)
	env.miss(t, m.ID, "alice")

	stored := env.load(t, m.ID)
	v := stored.View("alice", 0)
	v.GuessResults[0][0] = TileCorrect
	v.Guesses[0] = "mutated"

	assert.Equal(t, TileAbsent, stored.GuessResults[0][0])
	assert.Equal(t, "zzzzz", stored.Guesses[0])
	assert.Zero(t, v.TurnDeadline)
}
