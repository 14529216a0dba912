package game

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func TestServer_CreateMatchNeedsServiceToken(t *testing.T) {
	env := newTestEnv(t, Config{}, "crane")
	ts := newTestServer(t, env)

	body := CreateMatchRequest{Player1ID: "alice", Player2ID: "bob", Difficulty: "easy"}

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/matches", "", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/matches", &buf)
	require.NoError(t, err)
	req.Header.Set("X-Service-Token", "svc-secret")
	r2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer r2.Body.Close()
	require.Equal(t, http.StatusCreated, r2.StatusCode)

	var created CreateMatchResponse
	require.NoError(t, json.NewDecoder(r2.Body).Decode(&created))
	assert.NotEmpty(t, created.MatchID)

	big := CreateMatchRequest{Player1ID: strings.Repeat("a", 1<<17), Player2ID: "bob", Difficulty: "easy"}
	buf.Reset()
	require.NoError(t, json.NewEncoder(&buf).Encode(big))
	req, err = http.NewRequest(http.MethodPost, ts.URL+"/api/matches", &buf)
	require.NoError(t, err)
	req.Header.Set("X-Service-Token", "svc-secret")
	r3, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer r3.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, r3.StatusCode)
}

func TestServer_Routes(t *testing.T) {
	cases := []struct {
		name       string
		method     string
		path       func(id string) string
		token      string
		body       any
		wantStatus int
		wantCode   string
	}{
		{name: "get as player", method: http.MethodGet, path: func(id string) string { return "/api/matches/" + id }, token: "bob-token", wantStatus: http.StatusOK},
		{name: "get without token", method: http.MethodGet, path: func(id string) string { return "/api/matches/" + id }, wantStatus: http.StatusUnauthorized, wantCode: "unauthorized"},
		{name: "get unknown", method: http.MethodGet, path: func(string) string { return "/api/matches/nope" }, token: "bob-token", wantStatus: http.StatusNotFound, wantCode: "not_found"},
		{name: "guess out of turn", method: http.MethodPost, path: func(id string) string { return "/api/matches/" + id + "/guess" }, token: "bob-token", body: GuessPayload{Guess: "crane"}, wantStatus: http.StatusConflict, wantCode: "not_your_turn"},
		{name: "guess wrong length", method: http.MethodPost, path: func(id string) string { return "/api/matches/" + id + "/guess" }, token: "alice-token", body: GuessPayload{Guess: "cranes"}, wantStatus: http.StatusUnprocessableEntity, wantCode: "length_mismatch"},
		{name: "guess body too large", method: http.MethodPost, path: func(id string) string { return "/api/matches/" + id + "/guess" }, token: "alice-token", body: GuessPayload{Guess: strings.Repeat("a", 1<<17)}, wantStatus: http.StatusRequestEntityTooLarge, wantCode: "too_large"},
		{name: "typing body too large", method: http.MethodPost, path: func(id string) string { return "/api/matches/" + id + "/typing" }, token: "alice-token", body: GuessPayload{Guess: strings.Repeat("a", 1<<17)}, wantStatus: http.StatusRequestEntityTooLarge, wantCode: "too_large"},
		{name: "guess body not an object", method: http.MethodPost, path: func(id string) string { return "/api/matches/" + id + "/guess" }, token: "alice-token", body: "crane", wantStatus: http.StatusBadRequest, wantCode: "bad_request"},
		{name: "guess", method: http.MethodPost, path: func(id string) string { return "/api/matches/" + id + "/guess" }, token: "alice-token", body: GuessPayload{Guess: "react"}, wantStatus: http.StatusOK},
		{name: "skip too early", method: http.MethodPost, path: func(id string) string { return "/api/matches/" + id + "/skip" }, token: "bob-token", wantStatus: http.StatusTooEarly, wantCode: "too_early"},
		{name: "typing", method: http.MethodPost, path: func(id string) string { return "/api/matches/" + id + "/typing" }, token: "alice-token", body: GuessPayload{Guess: "cr"}, wantStatus: http.StatusOK},
		{name: "rematch while active", method: http.MethodPost, path: func(id string) string { return "/api/matches/" + id + "/rematch" }, token: "alice-token", wantStatus: http.StatusConflict, wantCode: "not_active"},
		{name: "forfeit", method: http.MethodPost, path: func(id string) string { return "/api/matches/" + id + "/forfeit" }, token: "alice-token", wantStatus: http.StatusOK},
		{name: "active match", method: http.MethodGet, path: func(string) string { return "/api/matches/active" }, token: "alice-token", wantStatus: http.StatusOK},
		{name: "recent matches", method: http.MethodGet, path: func(string) string { return "/api/matches/mine?limit=5" }, token: "alice-token", wantStatus: http.StatusOK},
		{name: "leaderboard", method: http.MethodGet, path: func(string) string { return "/api/leaderboard" }, wantStatus: http.StatusOK},
		{name: "stats unknown player", method: http.MethodGet, path: func(string) string { return "/api/players/nobody/stats" }, wantStatus: http.StatusNotFound, wantCode: "player_not_found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Config{}, "crane")
			m := env.create(t)
			ts := newTestServer(t, env)

			resp, raw := doJSON(t, tc.method, ts.URL+tc.path(m.ID), tc.token, tc.body)
			require.Equal(t, tc.wantStatus, resp.StatusCode, string(raw))
			if tc.wantCode != "" {
				var p ErrorPayload
				require.NoError(t, json.Unmarshal(raw, &p))
				assert.Equal(t, tc.wantCode, p.Code)
			}
		})
	}
}

func TestServer_ForfeitThenRematchFlow(t *testing.T) {
	env := newTestEnv(t, Config{}, "crane", "stone")
	m := env.create(t)
	ts := newTestServer(t, env)
	base := ts.URL + "/api/matches/" + m.ID

	resp, raw := doJSON(t, http.MethodPost, base+"/forfeit", "bob-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var op OperationResponse
	require.NoError(t, json.Unmarshal(raw, &op))
	assert.True(t, op.Result.MatchEnded)
	assert.Equal(t, "alice", op.Match.WinnerID)
	assert.Equal(t, "crane", op.Match.RevealedWord)

	resp, _ = doJSON(t, http.MethodPost, base+"/rematch", "alice-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodDelete, base+"/rematch", "alice-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = doJSON(t, http.MethodPost, base+"/rematch", "alice-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, raw = doJSON(t, http.MethodPost, base+"/rematch", "bob-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(raw, &op))
	require.NotEmpty(t, op.Result.RematchMatchID)
	assert.Equal(t, op.Result.RematchMatchID, op.Match.RematchMatchID)

	resp, raw = doJSON(t, http.MethodPost, base+"/ratings", "alice-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rr RatingResult
	require.NoError(t, json.Unmarshal(raw, &rr))
	assert.False(t, rr.Applied)

	resp, _ = doJSON(t, http.MethodPost, base+"/leave", "alice-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/api/players/alice/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st PlayerStats
	require.NoError(t, json.Unmarshal(raw, &st))
	assert.Equal(t, 1016, st.Rating)
	assert.Equal(t, 1, st.Rank)
}
