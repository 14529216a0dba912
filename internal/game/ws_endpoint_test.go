package game

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/wordduel/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// testVerifier accepts "<player>-token" for alice and bob.
type testVerifier struct{}

func (v testVerifier) Verify(token string) (*auth.Claims, error) {
	switch token {
	case "alice-token":
		return &auth.Claims{PlayerID: "alice", Name: "Alice"}, nil
	case "bob-token":
		return &auth.Claims{PlayerID: "bob", Name: "Bob"}, nil
	}
	return nil, errors.New("bad token")
}

func newTestServer(t *testing.T, env *testEnv) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	NewServer(env.engine, testVerifier{}, "svc-secret", discardLogger()).RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

// readUntil returns the first envelope of type want, skipping others.
func readUntil(t *testing.T, ws *websocket.Conn, want string) Envelope {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %q", want)
		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		if env.Type == want {
			return env
		}
	}
}

func TestWS_Endpoint_PathParam(t *testing.T) {
	env := newTestEnv(t, Config{}, "crane")
	m := env.create(t)
	ts := newTestServer(t, env)

	cases := []struct {
		name        string
		urlPath     string
		token       string
		sendAuthMsg bool
		wantCode    int // 0 => expect success (101)
	}{
		{name: "success_auth_header", urlPath: "/ws/" + m.ID, token: "alice-token"},
		{name: "success_auth_message", urlPath: "/ws/" + m.ID, sendAuthMsg: true},
		{name: "success_query_token", urlPath: "/ws/" + m.ID + "?token=bob-token"},
		{name: "missing_id", urlPath: "/ws/", wantCode: http.StatusNotFound},
		{name: "extra_segment", urlPath: "/ws/" + m.ID + "/x", wantCode: http.StatusNotFound},
		{name: "not_found", urlPath: "/ws/unknown", token: "alice-token", wantCode: http.StatusNotFound},
		{name: "unauthorized_header", urlPath: "/ws/" + m.ID, token: "bad", wantCode: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hdr := http.Header{}
			if tc.token != "" {
				hdr.Set("Authorization", "Bearer "+tc.token)
			}

			ws, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, tc.urlPath), hdr)
			if tc.wantCode != 0 {
				require.Error(t, err)
				require.NotNil(t, resp)
				require.Equal(t, tc.wantCode, resp.StatusCode)
				return
			}
			require.NoError(t, err)
			defer ws.Close()

			if tc.sendAuthMsg {
				require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"auth","payload":{"token":"alice-token"}}`)))
			}

			st := readUntil(t, ws, MsgState)
			var v MatchView
			require.NoError(t, json.Unmarshal(st.Payload, &v))
			require.Equal(t, m.ID, v.ID)
			require.NotEmpty(t, v.You)
		})
	}
}

func TestWS_BadAuthFrame(t *testing.T) {
	env := newTestEnv(t, Config{}, "crane")
	m := env.create(t)
	ts := newTestServer(t, env)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/"+m.ID), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"auth","payload":{"token":"nope"}}`)))
	env2 := readUntil(t, ws, MsgError)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(env2.Payload, &p))
	require.Equal(t, "unauthorized", p.Code)
}

func TestWS_PlayBroadcastsToOpponent(t *testing.T) {
	env := newTestEnv(t, Config{}, "crane", "stone")
	m := env.create(t)
	ts := newTestServer(t, env)

	dial := func(token string) *websocket.Conn {
		hdr := http.Header{}
		hdr.Set("Authorization", "Bearer "+token)
		ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/"+m.ID), hdr)
		require.NoError(t, err)
		t.Cleanup(func() { _ = ws.Close() })
		readUntil(t, ws, MsgState)
		return ws
	}
	alice := dial("alice-token")
	bob := dial("bob-token")

	require.NoError(t, bob.WriteJSON(Envelope{Type: MsgSubmitGuess, Payload: mustJSON(GuessPayload{Guess: "crane"})}))
	errEnv := readUntil(t, bob, MsgError)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(errEnv.Payload, &p))
	require.Equal(t, "not_your_turn", p.Code)

	require.NoError(t, alice.WriteJSON(Envelope{Type: MsgSubmitGuess, Payload: mustJSON(GuessPayload{Guess: "crane"})}))
	resEnv := readUntil(t, alice, MsgResult)
	var rp ResultPayload
	require.NoError(t, json.Unmarshal(resEnv.Payload, &rp))
	require.NotNil(t, rp.Result)
	require.True(t, rp.Result.Correct)
	require.Equal(t, 500, rp.Result.Points)

	for {
		st := readUntil(t, bob, MsgState)
		var v MatchView
		require.NoError(t, json.Unmarshal(st.Payload, &v))
		if v.Round == 2 {
			require.Equal(t, "bob", v.CurrentTurn)
			require.Equal(t, "crane", v.PreviousWord)
			break
		}
	}

	got, err := env.engine.Match(context.Background(), m.ID)
	require.NoError(t, err)
	require.Equal(t, 500, got.Player1Score)
}

func TestWS_UnknownType(t *testing.T) {
	env := newTestEnv(t, Config{}, "crane")
	m := env.create(t)
	ts := newTestServer(t, env)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/"+m.ID+"?token=alice-token"), nil)
	require.NoError(t, err)
	defer ws.Close()
	readUntil(t, ws, MsgState)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"set_secret"}`)))
	e := readUntil(t, ws, MsgError)
	var p ErrorPayload
	require.NoError(t, json.Unmarshal(e.Payload, &p))
	require.Equal(t, "unknown_type", p.Code)
}
