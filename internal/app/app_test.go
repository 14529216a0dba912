package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"example.com/wordduel/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() config.Config {
	var c config.Config
	c.Env = "dev"
	c.Log.Format = "text"
	c.HTTP.Addr = ":0"
	c.HTTP.ShutdownTimeout = time.Second
	c.Store.Backend = config.BackendMemory
	c.Broker.Backend = config.BackendMemory
	c.Auth.Secret = "test-secret"
	c.Auth.TokenTTL = time.Hour
	c.Auth.ServiceToken = "svc"
	c.Game.TurnTimeLimit = 30 * time.Second
	c.Game.StartingHearts = 3
	c.Game.StaleAfter = 5 * time.Minute
	c.Game.ReapInterval = time.Minute
	return c
}

func post(t *testing.T, url string, hdr map[string]string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func TestApp_MemoryBackends(t *testing.T) {
	require.NoError(t, memoryConfig().Validate())

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), memoryConfig(), log)
	require.NoError(t, err)

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	type login struct {
		AccessToken string `json:"accessToken"`
		PlayerID    string `json:"playerId"`
	}
	guest := func(name string) login {
		code, raw := post(t, ts.URL+"/api/auth/guest", nil, map[string]string{"name": name})
		require.Equal(t, http.StatusCreated, code, string(raw))
		var l login
		require.NoError(t, json.Unmarshal(raw, &l))
		return l
	}
	anna, bert := guest("Anna"), guest("Bert")

	code, raw := post(t, ts.URL+"/api/matches", map[string]string{"X-Service-Token": "svc"}, map[string]any{
		"player1Id":  anna.PlayerID,
		"player2Id":  bert.PlayerID,
		"difficulty": "medium",
	})
	require.Equal(t, http.StatusCreated, code, string(raw))
	var created struct {
		MatchID string `json:"matchId"`
	}
	require.NoError(t, json.Unmarshal(raw, &created))

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/matches/"+created.MatchID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bert.AccessToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view struct {
		You        string `json:"you"`
		Difficulty string `json:"difficulty"`
		WordLength int    `json:"wordLength"`
		Revealed   string `json:"revealedWord"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "p2", view.You)
	assert.Equal(t, "medium", view.Difficulty)
	assert.Positive(t, view.WordLength)
	assert.Empty(t, view.Revealed)

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/api/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+anna.AccessToken)
	me, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer me.Body.Close()
	require.Equal(t, http.StatusOK, me.StatusCode)
	var profile map[string]any
	require.NoError(t, json.NewDecoder(me.Body).Decode(&profile))
	assert.Equal(t, "Anna", profile["displayName"])
	assert.Equal(t, true, profile["guest"])
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := memoryConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"
	a, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
