package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrEmailTaken      = errors.New("email already registered")
)

// Account holds password credentials for a player. Guests have none.
type Account struct {
	PlayerID     string
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
}

type AccountStore struct {
	db *pgxpool.Pool
}

func NewAccountStore(db *pgxpool.Pool) *AccountStore {
	return &AccountStore{db: db}
}

// Create inserts the account together with its player row.
func (s *AccountStore) Create(ctx context.Context, a Account) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO players (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`,
			a.PlayerID, a.Name,
		); err != nil {
			return fmt.Errorf("store: create player: %w", err)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO accounts (player_id, email, password_hash) VALUES ($1, $2, $3)`,
			a.PlayerID, a.Email, a.PasswordHash,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		if err != nil {
			return fmt.Errorf("store: create account: %w", err)
		}
		return nil
	})
}

const accountQuery = `
	SELECT a.player_id, a.email, a.password_hash, p.name, a.created_at
	FROM accounts a JOIN players p ON p.id = a.player_id`

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	return scanAccount(s.db.QueryRow(ctx, accountQuery+` WHERE a.email = $1`, email))
}

func (s *AccountStore) GetByID(ctx context.Context, playerID string) (Account, error) {
	return scanAccount(s.db.QueryRow(ctx, accountQuery+` WHERE a.player_id = $1`, playerID))
}

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.PlayerID, &a.Email, &a.PasswordHash, &a.Name, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("store: load account: %w", err)
	}
	return a, nil
}

// MemoryAccountStore backs STORE_BACKEND=memory.
type MemoryAccountStore struct {
	mu      sync.Mutex
	byEmail map[string]Account
	now     func() time.Time
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{byEmail: make(map[string]Account), now: time.Now}
}

func (s *MemoryAccountStore) Create(_ context.Context, a Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(a.Email)
	if _, ok := s.byEmail[key]; ok {
		return ErrEmailTaken
	}
	a.CreatedAt = s.now()
	s.byEmail[key] = a
	return nil
}

func (s *MemoryAccountStore) GetByEmail(_ context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (s *MemoryAccountStore) GetByID(_ context.Context, playerID string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byEmail {
		if a.PlayerID == playerID {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}
