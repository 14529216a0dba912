package account

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"example.com/wordduel/internal/auth"
	"example.com/wordduel/internal/game"
	"example.com/wordduel/internal/httpapi"
	"example.com/wordduel/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Accounts interface {
	Create(ctx context.Context, a store.Account) error
	GetByEmail(ctx context.Context, email string) (store.Account, error)
	GetByID(ctx context.Context, playerID string) (store.Account, error)
}

type Players interface {
	EnsurePlayer(ctx context.Context, id, name string) (*game.Player, error)
}

type Stats interface {
	Stats(ctx context.Context, playerID string) (game.PlayerStats, error)
}

// Handler issues player tokens: anonymous guests or email/password accounts.
type Handler struct {
	Accounts Accounts
	Players  Players
	Stats    Stats
	Auth     *auth.Service
	TokenTTL time.Duration
	Log      *slog.Logger
}

type GuestRequest struct {
	Name string `json:"name"`
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	PlayerID    string `json:"playerId"`
}

const minPasswordLen = 8

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/auth/guest", h.Guest)
	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)
	r.With(httpapi.AuthMiddleware(h.Auth)).Get("/api/me", h.Me)
}

func (h *Handler) logger() *slog.Logger {
	if h.Log == nil {
		return slog.Default()
	}
	return h.Log
}

func (h *Handler) Guest(w http.ResponseWriter, r *http.Request) {
	var req GuestRequest
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Guest"
	}

	id := uuid.NewString()
	if _, err := h.Players.EnsurePlayer(r.Context(), id, name); err != nil {
		h.logger().Error("guest register failed", "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "internal", "failed to create player")
		return
	}
	h.issue(w, http.StatusCreated, id, name)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "bad_request", "email, password and displayName are required")
		return
	}
	if len(req.Password) < minPasswordLen {
		httpapi.WriteError(w, http.StatusBadRequest, "bad_request", "password must be at least 8 chars")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, "internal", "failed to hash password")
		return
	}

	id := uuid.NewString()
	err = h.Accounts.Create(r.Context(), store.Account{
		PlayerID:     id,
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.DisplayName,
	})
	if errors.Is(err, store.ErrEmailTaken) {
		httpapi.WriteError(w, http.StatusConflict, "email_taken", "email already exists")
		return
	}
	if err != nil {
		h.logger().Error("account create failed", "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "internal", "failed to create account")
		return
	}
	if _, err := h.Players.EnsurePlayer(r.Context(), id, req.DisplayName); err != nil {
		h.logger().Error("account player row failed", "player", id, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "internal", "failed to create player")
		return
	}
	h.issue(w, http.StatusCreated, id, req.DisplayName)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httpapi.DecodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if req.Email == "" || req.Password == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	a, err := h.Accounts.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, store.ErrAccountNotFound) {
			h.logger().Error("account lookup failed", "err", err)
		}
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(req.Password)); err != nil {
		httpapi.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	h.issue(w, http.StatusOK, a.PlayerID, a.Name)
}

func (h *Handler) issue(w http.ResponseWriter, status int, playerID, name string) {
	token, err := h.Auth.Sign(playerID, name, h.TokenTTL)
	if err != nil {
		httpapi.WriteError(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	httpapi.WriteJSON(w, status, LoginResponse{AccessToken: token, PlayerID: playerID})
}

// Me returns the caller's ranked profile plus the account email, if any.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	playerID, ok := httpapi.PlayerIDFromContext(r.Context())
	if !ok {
		httpapi.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing auth context")
		return
	}

	st, err := h.Stats.Stats(r.Context(), playerID)
	if errors.Is(err, game.ErrPlayerNotFound) {
		httpapi.WriteError(w, http.StatusNotFound, "player_not_found", "player not found")
		return
	}
	if err != nil {
		h.logger().Error("load stats failed", "player", playerID, "err", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "internal", "failed to load stats")
		return
	}

	resp := map[string]any{
		"id":          st.ID,
		"displayName": st.Name,
		"createdAt":   st.CreatedAt,
		"guest":       true,
		"stats":       st,
	}
	a, err := h.Accounts.GetByID(r.Context(), playerID)
	switch {
	case err == nil:
		resp["email"] = a.Email
		resp["guest"] = false
	case !errors.Is(err, store.ErrAccountNotFound):
		h.logger().Error("load account failed", "player", playerID, "err", err)
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}
