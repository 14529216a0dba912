package game

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"example.com/wordduel/internal/httpapi"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	wsAuthWait   = 10 * time.Second
	wsPingPeriod = 25 * time.Second
	wsPongWait   = 60 * time.Second
	wsWriteWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type ClientConn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

func newClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{ws: ws, send: make(chan []byte, 64), done: make(chan struct{})}
}

// Send queues a frame; it drops the frame when the client is gone or too slow.
func (c *ClientConn) Send(env Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- b:
	default:
	}
}

func (c *ClientConn) SendError(err error) {
	code := ErrorCode(err)
	msg := err.Error()
	if code == "internal" {
		msg = "internal error"
	}
	c.Send(Envelope{Type: MsgError, Payload: mustJSON(ErrorPayload{Code: code, Message: msg})})
}

func (c *ClientConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *ClientConn) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// handleWS streams one match to one client. The token comes from the
// Authorization header, a token query parameter or a first "auth" frame.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	matchID := chi.URLParam(r, "matchID")

	if _, err := s.engine.Match(ctx, matchID); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	token := httpapi.BearerToken(r)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	var playerID string
	if token != "" {
		claims, err := s.verifier.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		playerID = claims.PlayerID
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if playerID == "" {
		playerID, err = s.readAuthFrame(ws)
		if err != nil {
			_ = ws.WriteJSON(Envelope{Type: MsgError, Payload: mustJSON(ErrorPayload{Code: "unauthorized", Message: err.Error()})})
			_ = ws.Close()
			return
		}
	}

	cc := newClientConn(ws)
	defer cc.Close()
	go cc.writeLoop()

	events, unsubscribe, err := s.engine.Broker().Subscribe(ctx, matchID)
	if err != nil {
		s.log.Error("ws subscribe failed", "match_id", matchID, "err", err)
		cc.SendError(err)
		return
	}
	defer unsubscribe()

	go func() {
		for range events {
			s.sendState(ctx, cc, matchID, playerID)
		}
	}()

	s.sendState(ctx, cc, matchID, playerID)
	s.log.Info("ws attached", "match_id", matchID, "player_id", playerID)

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			cc.Send(Envelope{Type: MsgError, Payload: mustJSON(ErrorPayload{Code: "bad_json", Message: "invalid json"})})
			continue
		}
		s.dispatch(ctx, cc, matchID, playerID, env)
	}

	s.log.Info("ws detached", "match_id", matchID, "player_id", playerID)
}

func (s *Server) readAuthFrame(ws *websocket.Conn) (string, error) {
	_ = ws.SetReadDeadline(time.Now().Add(wsAuthWait))
	defer ws.SetReadDeadline(time.Time{})

	var env Envelope
	if err := ws.ReadJSON(&env); err != nil {
		return "", errors.New("auth frame expected")
	}
	if env.Type != MsgAuth {
		return "", errors.New("auth frame expected")
	}
	var p AuthPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil || p.Token == "" {
		return "", errors.New("token required")
	}
	claims, err := s.verifier.Verify(p.Token)
	if err != nil {
		return "", errors.New("invalid token")
	}
	return claims.PlayerID, nil
}

func (s *Server) sendState(ctx context.Context, cc *ClientConn, matchID, playerID string) {
	v, err := s.engine.View(ctx, matchID, playerID)
	if err != nil {
		cc.SendError(err)
		return
	}
	cc.Send(Envelope{Type: MsgState, Payload: mustJSON(v)})
}

func (s *Server) dispatch(ctx context.Context, cc *ClientConn, matchID, playerID string, env Envelope) {
	var (
		res Result
		err error
	)
	switch env.Type {
	case MsgSubmitGuess, MsgTyping:
		var p GuessPayload
		if jerr := json.Unmarshal(env.Payload, &p); jerr != nil {
			cc.Send(Envelope{Type: MsgError, Payload: mustJSON(ErrorPayload{Code: "bad_input", Message: "invalid payload"})})
			return
		}
		if env.Type == MsgSubmitGuess {
			res, err = s.engine.SubmitGuess(ctx, matchID, playerID, p.Guess)
		} else {
			res, err = s.engine.UpdateLiveGuess(ctx, matchID, playerID, p.Guess)
		}
	case MsgSkipTurn:
		res, err = s.engine.SkipTurn(ctx, matchID, playerID)
	case MsgForfeit:
		res, err = s.engine.ForfeitMatch(ctx, matchID, playerID)
	case MsgRematchRequest:
		res, err = s.engine.RequestRematch(ctx, matchID, playerID)
	case MsgRematchCancel:
		res, err = s.engine.CancelRematch(ctx, matchID, playerID)
	case MsgLeave:
		res, err = s.engine.LeaveMatch(ctx, matchID, playerID)
	case MsgUpdateRatings:
		rr, rerr := s.engine.UpdateMatchRatings(ctx, matchID, playerID)
		if rerr != nil {
			cc.SendError(rerr)
			return
		}
		cc.Send(Envelope{Type: MsgResult, Payload: mustJSON(ResultPayload{Op: env.Type, Ratings: &rr})})
		return
	default:
		cc.Send(Envelope{Type: MsgError, Payload: mustJSON(ErrorPayload{Code: "unknown_type", Message: "unknown message type"})})
		return
	}
	if err != nil {
		cc.SendError(err)
		return
	}
	if env.Type == MsgTyping {
		return
	}
	cc.Send(Envelope{Type: MsgResult, Payload: mustJSON(ResultPayload{Op: env.Type, Result: &res})})
}
