package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReaper_SweepsOnInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnv(t, Config{ReapInterval: 20 * time.Millisecond}, "crane")
	m := env.create(t)
	env.clock.Advance(10 * time.Minute)

	r := NewReaper(env.engine, discardLogger())
	require.NoError(t, r.Start(ctx))
	defer func() { require.NoError(t, r.Stop()) }()

	require.Eventually(t, func() bool {
		got, err := env.store.Match(ctx, m.ID)
		return err == nil && got.Status == StatusFinished && got.IsDraw
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReaper_StopWithoutStart(t *testing.T) {
	env := newTestEnv(t, Config{}, "crane")
	require.NoError(t, NewReaper(env.engine, nil).Stop())
}
