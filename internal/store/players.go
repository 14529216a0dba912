package store

import (
	"context"
	"errors"
	"fmt"

	"example.com/wordduel/internal/game"
	"github.com/jackc/pgx/v5"
)

const playerColumns = `id, name, rating, wins, losses, created_at`

func (s *MatchStore) EnsurePlayer(ctx context.Context, id, name string) (*game.Player, error) {
	return scanPlayer(s.db.QueryRow(ctx, `
		INSERT INTO players (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET name = CASE WHEN players.name = '' THEN EXCLUDED.name ELSE players.name END
		RETURNING `+playerColumns, id, name))
}

func (s *MatchStore) Player(ctx context.Context, id string) (*game.Player, error) {
	return scanPlayer(s.db.QueryRow(ctx, `SELECT `+playerColumns+` FROM players WHERE id = $1`, id))
}

func (s *MatchStore) Leaderboard(ctx context.Context, limit int) ([]game.Player, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+playerColumns+` FROM players
		ORDER BY rating DESC, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: leaderboard: %w", err)
	}
	defer rows.Close()

	var out []game.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// PlayerRank is the 1-based leaderboard position of id.
func (s *MatchStore) PlayerRank(ctx context.Context, id string) (int, error) {
	var rank int
	err := s.db.QueryRow(ctx, `
		SELECT 1 + (
			SELECT count(*) FROM players o
			WHERE o.rating > p.rating OR (o.rating = p.rating AND o.id < p.id)
		)
		FROM players p WHERE p.id = $1`, id).Scan(&rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, game.ErrPlayerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: player rank: %w", err)
	}
	return rank, nil
}

func scanPlayer(row pgx.Row) (*game.Player, error) {
	var p game.Player
	err := row.Scan(&p.ID, &p.Name, &p.Rating, &p.Wins, &p.Losses, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, game.ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load player: %w", err)
	}
	return &p, nil
}
