package game

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"
)

// Player is the ranked profile touched by rating updates.
type Player struct {
	ID        string    `json:"playerId"`
	Name      string    `json:"name"`
	Rating    int       `json:"rankedRating"`
	Wins      int       `json:"rankedWins"`
	Losses    int       `json:"rankedLosses"`
	CreatedAt time.Time `json:"createdAt"`
}

func newPlayer(id, name string, now time.Time) *Player {
	return &Player{ID: id, Name: name, Rating: StartingRating, CreatedAt: now}
}

const eloK = 32

// EloDelta is the rating change for a player rated mine after a decisive
// game against other. Halves round up, matching the leaderboard clients.
func EloDelta(mine, other int, won bool) int {
	expected := 1 / (1 + math.Pow(10, float64(other-mine)/400))
	actual := 0.0
	if won {
		actual = 1
	}
	return int(math.Floor(eloK*(actual-expected) + 0.5))
}

type RatingResult struct {
	MatchID string `json:"matchId"`
	// Applied is false when the match had already been processed.
	Applied       bool `json:"applied"`
	Draw          bool `json:"draw"`
	Player1Delta  int  `json:"player1Delta"`
	Player2Delta  int  `json:"player2Delta"`
	Player1Rating int  `json:"player1Rating,omitempty"`
	Player2Rating int  `json:"player2Rating,omitempty"`
}

type RatingService struct {
	store Store
	log   *slog.Logger
}

func NewRatingService(store Store, log *slog.Logger) *RatingService {
	if log == nil {
		log = slog.Default()
	}
	return &RatingService{store: store, log: log}
}

// UpdateMatchRatings applies the rating outcome of a finished match once.
// The flag check, both player rows and the flag write share one transaction.
func (s *RatingService) UpdateMatchRatings(ctx context.Context, matchID string) (RatingResult, error) {
	res := RatingResult{MatchID: matchID}

	err := s.store.WithTx(ctx, func(tx Tx) error {
		m, err := tx.Match(ctx, matchID)
		if err != nil {
			return err
		}
		if m.RatingsUpdated {
			res.Draw = m.IsDraw
			return nil
		}
		if m.Status != StatusFinished {
			return ErrNotFinished
		}

		res.Applied = true
		if m.IsDraw || m.WinnerID == "" {
			res.Draw = true
			m.RatingsUpdated = true
			return tx.SaveMatch(ctx, m)
		}

		// lock rows in a stable order
		ids := []string{m.Player1ID, m.Player2ID}
		sort.Strings(ids)
		rows := make(map[string]*Player, 2)
		for _, id := range ids {
			p, err := tx.Player(ctx, id)
			if err != nil {
				return err
			}
			rows[id] = p
		}
		p1, p2 := rows[m.Player1ID], rows[m.Player2ID]

		p1Won := m.WinnerID == m.Player1ID
		res.Player1Delta = EloDelta(p1.Rating, p2.Rating, p1Won)
		res.Player2Delta = EloDelta(p2.Rating, p1.Rating, !p1Won)

		applyResult(p1, res.Player1Delta, p1Won)
		applyResult(p2, res.Player2Delta, !p1Won)
		res.Player1Rating, res.Player2Rating = p1.Rating, p2.Rating

		for _, p := range []*Player{p1, p2} {
			if err := tx.SavePlayer(ctx, p); err != nil {
				return err
			}
		}
		m.RatingsUpdated = true
		return tx.SaveMatch(ctx, m)
	})
	if err != nil {
		return RatingResult{}, err
	}
	if res.Applied {
		s.log.Info("ratings applied", "match", matchID, "draw", res.Draw,
			"p1Delta", res.Player1Delta, "p2Delta", res.Player2Delta)
	}
	return res, nil
}

func applyResult(p *Player, delta int, won bool) {
	p.Rating += delta
	if p.Rating < 0 {
		p.Rating = 0
	}
	if won {
		p.Wins++
	} else {
		p.Losses++
	}
}

// PlayerStats is the ranked summary shown on profiles.
type PlayerStats struct {
	Player
	TotalGames int `json:"totalGames"`
	WinRate    int `json:"winRate"` // percent, rounded
	Rank       int `json:"rank"`
}

func (s *RatingService) Stats(ctx context.Context, playerID string) (PlayerStats, error) {
	p, err := s.store.Player(ctx, playerID)
	if err != nil {
		return PlayerStats{}, err
	}
	rank, err := s.store.PlayerRank(ctx, playerID)
	if err != nil {
		return PlayerStats{}, err
	}
	st := PlayerStats{Player: *p, TotalGames: p.Wins + p.Losses, Rank: rank}
	if st.TotalGames > 0 {
		st.WinRate = int(math.Floor(float64(p.Wins)*100/float64(st.TotalGames) + 0.5))
	}
	return st, nil
}

func (s *RatingService) Leaderboard(ctx context.Context, limit int) ([]Player, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.store.Leaderboard(ctx, limit)
}
