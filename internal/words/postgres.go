package words

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"example.com/wordduel/internal/game"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSource draws words from the words table and falls back to another
// source while a tier has no rows.
type PGSource struct {
	db       *pgxpool.Pool
	fallback game.WordSource
	log      *slog.Logger
}

func NewPGSource(db *pgxpool.Pool, fallback game.WordSource, log *slog.Logger) *PGSource {
	if log == nil {
		log = slog.Default()
	}
	return &PGSource{db: db, fallback: fallback, log: log}
}

func (s *PGSource) RandomWord(ctx context.Context, d game.Difficulty) (string, error) {
	var w string
	err := s.db.QueryRow(ctx,
		`SELECT word FROM words
		 WHERE difficulty = $1 AND length BETWEEN $2 AND $3
		 ORDER BY random() LIMIT 1`,
		string(d), game.MinWordLength, game.MaxWordLength,
	).Scan(&w)
	if errors.Is(err, pgx.ErrNoRows) {
		if s.fallback == nil {
			return "", fmt.Errorf("%w: %s", ErrNoWords, d)
		}
		s.log.Warn("word table empty for tier, using fallback list", "difficulty", d)
		return s.fallback.RandomWord(ctx, d)
	}
	if err != nil {
		return "", fmt.Errorf("words: random %s: %w", d, err)
	}
	return w, nil
}

// SeedResult counts what Seed did.
type SeedResult struct {
	Created int
	Skipped int
}

// Seed inserts normalized entries, leaving existing (difficulty, word)
// pairs alone. Nothing is written if any entry is unplayable.
func (s *PGSource) Seed(ctx context.Context, entries []Entry) (SeedResult, error) {
	const batchSize = 100

	var res SeedResult
	for i, e := range entries {
		e.Word = game.NormalizeWord(e.Word)
		if err := checkEntry(e); err != nil {
			return res, fmt.Errorf("words: seed entry %d: %w", i, err)
		}
	}
	for start := 0; start < len(entries); start += batchSize {
		end := min(start+batchSize, len(entries))

		batch := &pgx.Batch{}
		for _, e := range entries[start:end] {
			w := game.NormalizeWord(e.Word)
			batch.Queue(
				`INSERT INTO words (word, difficulty, length)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (difficulty, word) DO NOTHING`,
				w, string(e.Difficulty), len([]rune(w)),
			)
		}

		br := s.db.SendBatch(ctx, batch)
		for range entries[start:end] {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return res, fmt.Errorf("words: seed: %w", err)
			}
			if tag.RowsAffected() == 1 {
				res.Created++
			} else {
				res.Skipped++
			}
		}
		if err := br.Close(); err != nil {
			return res, fmt.Errorf("words: seed: %w", err)
		}
	}

	s.log.Info("word catalogue seeded", "created", res.Created, "skipped", res.Skipped)
	return res, nil
}

func (s *PGSource) Counts(ctx context.Context) (map[game.Difficulty]int, error) {
	rows, err := s.db.Query(ctx, `SELECT difficulty, count(*) FROM words GROUP BY difficulty`)
	if err != nil {
		return nil, fmt.Errorf("words: counts: %w", err)
	}
	defer rows.Close()

	out := make(map[game.Difficulty]int, len(game.Difficulties))
	for _, d := range game.Difficulties {
		out[d] = 0
	}
	for rows.Next() {
		var (
			d string
			n int
		)
		if err := rows.Scan(&d, &n); err != nil {
			return nil, err
		}
		out[game.Difficulty(d)] = n
	}
	return out, rows.Err()
}
