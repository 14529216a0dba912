package game

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"example.com/wordduel/internal/httpapi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	engine       *Engine
	verifier     httpapi.TokenVerifier
	serviceToken string
	log          *slog.Logger
}

// NewServer builds the match transport. serviceToken guards match
// creation, which only the pairing layer may call.
func NewServer(engine *Engine, verifier httpapi.TokenVerifier, serviceToken string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, verifier: verifier, serviceToken: serviceToken, log: log}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(10 * time.Second))

		r.With(httpapi.ServiceTokenMiddleware(s.serviceToken)).Post("/api/matches", s.handleCreateMatch)

		r.Group(func(r chi.Router) {
			r.Use(httpapi.AuthMiddleware(s.verifier))
			r.Get("/api/matches/active", s.handleActiveMatch)
			r.Get("/api/matches/mine", s.handleRecentMatches)
			r.Get("/api/matches/{matchID}", s.handleGetMatch)
			r.Post("/api/matches/{matchID}/guess", s.handleGuess)
			r.Post("/api/matches/{matchID}/typing", s.handleTyping)
			r.Post("/api/matches/{matchID}/skip", s.operation(s.engine.SkipTurn))
			r.Post("/api/matches/{matchID}/forfeit", s.operation(s.engine.ForfeitMatch))
			r.Post("/api/matches/{matchID}/rematch", s.operation(s.engine.RequestRematch))
			r.Delete("/api/matches/{matchID}/rematch", s.operation(s.engine.CancelRematch))
			r.Post("/api/matches/{matchID}/leave", s.operation(s.engine.LeaveMatch))
			r.Post("/api/matches/{matchID}/ratings", s.handleRatings)
		})

		r.Get("/api/leaderboard", s.handleLeaderboard)
		r.Get("/api/players/{playerID}/stats", s.handlePlayerStats)
	})

	r.Get("/ws/{matchID}", s.handleWS)
}

func (s *Server) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var req CreateMatchRequest
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	d, err := ParseDifficulty(req.Difficulty)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	m, err := s.engine.CreateMatch(r.Context(), req.Player1ID, req.Player2ID, d, req.FixedDifficulty)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusCreated, CreateMatchResponse{MatchID: m.ID})
}

func (s *Server) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	playerID, _ := httpapi.PlayerIDFromContext(r.Context())
	v, err := s.engine.View(r.Context(), chi.URLParam(r, "matchID"), playerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, v)
}

func (s *Server) handleActiveMatch(w http.ResponseWriter, r *http.Request) {
	playerID, _ := httpapi.PlayerIDFromContext(r.Context())
	v, err := s.engine.ActiveMatch(r.Context(), playerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, v)
}

func (s *Server) handleRecentMatches(w http.ResponseWriter, r *http.Request) {
	playerID, _ := httpapi.PlayerIDFromContext(r.Context())
	views, err := s.engine.RecentMatches(r.Context(), playerID, queryInt(r, "limit", 10))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"matches": views})
}

func (s *Server) handleGuess(w http.ResponseWriter, r *http.Request) {
	var p GuessPayload
	if !httpapi.DecodeJSON(w, r, &p) {
		return
	}
	s.operation(func(ctx context.Context, matchID, playerID string) (Result, error) {
		return s.engine.SubmitGuess(ctx, matchID, playerID, p.Guess)
	})(w, r)
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request) {
	var p GuessPayload
	if !httpapi.DecodeJSON(w, r, &p) {
		return
	}
	s.operation(func(ctx context.Context, matchID, playerID string) (Result, error) {
		return s.engine.UpdateLiveGuess(ctx, matchID, playerID, p.Guess)
	})(w, r)
}

// operation adapts an engine call to an HTTP handler answering with the
// result and the caller's fresh view of the match.
func (s *Server) operation(op func(ctx context.Context, matchID, playerID string) (Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, _ := httpapi.PlayerIDFromContext(r.Context())
		matchID := chi.URLParam(r, "matchID")

		res, err := op(r.Context(), matchID, playerID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		v, err := s.engine.View(r.Context(), matchID, playerID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, OperationResponse{Result: res, Match: v})
	}
}

func (s *Server) handleRatings(w http.ResponseWriter, r *http.Request) {
	playerID, _ := httpapi.PlayerIDFromContext(r.Context())
	res, err := s.engine.UpdateMatchRatings(r.Context(), chi.URLParam(r, "matchID"), playerID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, res)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	players, err := s.engine.Ratings().Leaderboard(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"players": players})
}

func (s *Server) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Ratings().Stats(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, st)
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	code := ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case "not_found", "player_not_found":
		status = http.StatusNotFound
	case "not_active", "not_your_turn":
		status = http.StatusConflict
	case "not_a_player":
		status = http.StatusForbidden
	case "too_early":
		status = http.StatusTooEarly
	case "length_mismatch":
		status = http.StatusUnprocessableEntity
	case "bad_input":
		status = http.StatusBadRequest
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		if !errors.Is(err, context.Canceled) {
			s.log.Error("request failed", "err", err)
		}
		msg = "internal error"
	}
	httpapi.WriteError(w, status, code, msg)
}

func queryInt(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
