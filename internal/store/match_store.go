package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/wordduel/internal/game"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStaleWrite means a match row changed between read and write.
var ErrStaleWrite = errors.New("match was modified concurrently")

// MatchStore keeps matches and players in Postgres. A match is stored as a
// JSONB document next to the columns the queries filter on.
type MatchStore struct {
	db *pgxpool.Pool
}

func NewMatchStore(db *pgxpool.Pool) *MatchStore {
	return &MatchStore{db: db}
}

var _ game.Store = (*MatchStore)(nil)

// WithTx runs fn in a read-committed transaction. Rows read through the Tx
// are locked with FOR UPDATE until commit.
func (s *MatchStore) WithTx(ctx context.Context, fn func(tx game.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Match(ctx context.Context, id string) (*game.Match, error) {
	return scanMatch(t.tx.QueryRow(ctx,
		`SELECT state, version FROM matches WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) InsertMatch(ctx context.Context, m *game.Match) error {
	m.Version = 1
	state, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("store: encode match: %w", err)
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO matches (id, player1_id, player2_id, status, rematch_of_id, state, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)`,
		m.ID, m.Player1ID, m.Player2ID, string(m.Status), m.RematchOfID, state, m.Version, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert match: %w", err)
	}
	return nil
}

func (t *pgTx) SaveMatch(ctx context.Context, m *game.Match) error {
	prev := m.Version
	m.Version++
	state, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("store: encode match: %w", err)
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE matches
		 SET status = $2, state = $3, version = $4, updated_at = $5
		 WHERE id = $1 AND version = $6`,
		m.ID, string(m.Status), state, m.Version, m.UpdatedAt, prev,
	)
	if err != nil {
		m.Version = prev
		return fmt.Errorf("store: save match: %w", err)
	}
	if tag.RowsAffected() == 0 {
		m.Version = prev
		var exists bool
		if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM matches WHERE id = $1)`, m.ID).Scan(&exists); err != nil {
			return fmt.Errorf("store: save match: %w", err)
		}
		if !exists {
			return game.ErrNotFound
		}
		return fmt.Errorf("%w: %s", ErrStaleWrite, m.ID)
	}
	return nil
}

func (t *pgTx) Player(ctx context.Context, id string) (*game.Player, error) {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO players (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		return nil, fmt.Errorf("store: ensure player: %w", err)
	}
	return scanPlayer(t.tx.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) SavePlayer(ctx context.Context, p *game.Player) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE players SET name = $2, rating = $3, wins = $4, losses = $5 WHERE id = $1`,
		p.ID, p.Name, p.Rating, p.Wins, p.Losses,
	)
	if err != nil {
		return fmt.Errorf("store: save player: %w", err)
	}
	return nil
}

func (s *MatchStore) Match(ctx context.Context, id string) (*game.Match, error) {
	return scanMatch(s.db.QueryRow(ctx, `SELECT state, version FROM matches WHERE id = $1`, id))
}

func (s *MatchStore) ActiveMatchFor(ctx context.Context, playerID string) (*game.Match, error) {
	return scanMatch(s.db.QueryRow(ctx,
		`SELECT state, version FROM matches
		 WHERE (player1_id = $1 OR player2_id = $1) AND status = 'active'
		 ORDER BY created_at DESC
		 LIMIT 1`, playerID))
}

func (s *MatchStore) RecentMatches(ctx context.Context, playerID string, limit int) ([]*game.Match, error) {
	rows, err := s.db.Query(ctx,
		`SELECT state, version FROM matches
		 WHERE (player1_id = $1 OR player2_id = $1) AND status = 'finished'
		 ORDER BY created_at DESC
		 LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent matches: %w", err)
	}
	defer rows.Close()

	var out []*game.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *MatchStore) StaleMatchIDs(ctx context.Context, idleSince time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM matches
		 WHERE status = 'active' AND updated_at < $1
		 ORDER BY updated_at
		 LIMIT $2`, idleSince, limit)
	if err != nil {
		return nil, fmt.Errorf("store: stale matches: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("store: stale matches: %w", err)
	}
	return ids, nil
}

func scanMatch(row pgx.Row) (*game.Match, error) {
	var (
		state   []byte
		version int64
	)
	if err := row.Scan(&state, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, game.ErrNotFound
		}
		return nil, fmt.Errorf("store: load match: %w", err)
	}
	var m game.Match
	if err := json.Unmarshal(state, &m); err != nil {
		return nil, fmt.Errorf("store: decode match: %w", err)
	}
	m.Version = version
	return &m, nil
}
