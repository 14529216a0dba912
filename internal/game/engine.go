package game

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	TurnTimeLimit  time.Duration // server-side turn clock
	StartingHearts int
	StaleAfter     time.Duration // idle active matches older than this are reaped
	ReapInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.TurnTimeLimit <= 0 {
		c.TurnTimeLimit = 30 * time.Second
	}
	if c.StartingHearts <= 0 {
		c.StartingHearts = DefaultHearts
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 5 * time.Minute
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = 2 * time.Minute
	}
	return c
}

// WordSource hands out a secret word for a difficulty tier.
type WordSource interface {
	RandomWord(ctx context.Context, d Difficulty) (string, error)
}

// fallbackWords keeps rounds going when the word source comes back empty.
var fallbackWords = map[Difficulty]string{
	Easy:   "māja",
	Medium: "ziema",
	Hard:   "vasara",
}

// Result describes what an operation did to a match.
type Result struct {
	MatchID        string `json:"matchId"`
	Correct        bool   `json:"correct"`
	Tiles          []Tile `json:"tiles,omitempty"`
	Points         int    `json:"points,omitempty"`
	TimedOutID     string `json:"timedOutId,omitempty"`
	BothLostHeart  bool   `json:"bothLostHeart,omitempty"`
	RoundEnded     bool   `json:"roundEnded"`
	MatchEnded     bool   `json:"matchEnded"`
	WinnerID       string `json:"winnerId,omitempty"`
	Draw           bool   `json:"draw"`
	Round          int    `json:"round"`
	RematchMatchID string `json:"rematchMatchId,omitempty"`

	noop bool
}

type Engine struct {
	cfg     Config
	store   Store
	words   WordSource
	broker  Broker
	ratings *RatingService
	log     *slog.Logger

	now  func() time.Time
	intn func(n int) int
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithRand replaces the source of difficulty re-rolls and first-turn picks.
func WithRand(intn func(n int) int) Option { return func(e *Engine) { e.intn = intn } }

func WithBroker(b Broker) Option { return func(e *Engine) { e.broker = b } }

func WithLogger(log *slog.Logger) Option { return func(e *Engine) { e.log = log } }

func NewEngine(cfg Config, store Store, words WordSource, opts ...Option) *Engine {
	e := &Engine{
		cfg:   cfg.withDefaults(),
		store: store,
		words: words,
		log:   slog.Default(),
		now:   time.Now,
		intn:  rand.IntN,
	}
	for _, o := range opts {
		o(e)
	}
	if e.broker == nil {
		e.broker = NewMemoryBroker()
	}
	e.ratings = NewRatingService(store, e.log)
	return e
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Ratings() *RatingService { return e.ratings }

func (e *Engine) Broker() Broker { return e.broker }

// CreateMatch is the entry point for the pairing layer. Round 1 is drawn
// and the first turn is assigned at random.
func (e *Engine) CreateMatch(ctx context.Context, player1ID, player2ID string, d Difficulty, fixed bool) (*Match, error) {
	if player1ID == "" || player2ID == "" || player1ID == player2ID {
		return nil, ErrSamePlayer
	}
	if _, err := ParseDifficulty(string(d)); err != nil {
		return nil, err
	}

	starter := player1ID
	if e.intn(2) == 1 {
		starter = player2ID
	}
	m := e.newMatch(player1ID, player2ID, roundWord{Difficulty: d, Word: e.drawWord(ctx, d)}, fixed, starter)

	err := e.store.WithTx(ctx, func(tx Tx) error {
		return tx.InsertMatch(ctx, m)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("match created", "match", m.ID, "p1", player1ID, "p2", player2ID,
		"difficulty", d, "fixed", fixed)
	e.publish(ctx, m, EventCreated)
	return m.Clone(), nil
}

func (e *Engine) newMatch(p1, p2 string, w roundWord, fixed bool, starter string) *Match {
	now := e.now()
	return &Match{
		ID:                uuid.NewString(),
		Player1ID:         p1,
		Player2ID:         p2,
		Status:            StatusActive,
		CurrentWord:       w.Word,
		CurrentDifficulty: w.Difficulty,
		FixedDifficulty:   fixed,
		CurrentRound:      1,
		CurrentTurn:       starter,
		FirstStarterID:    starter,
		TurnStartedAt:     now,
		Guesses:           []string{},
		GuessResults:      [][]Tile{},
		Player1Hearts:     e.cfg.StartingHearts,
		Player2Hearts:     e.cfg.StartingHearts,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (e *Engine) drawWord(ctx context.Context, d Difficulty) string {
	if e.words != nil {
		w, err := e.words.RandomWord(ctx, d)
		if err != nil {
			e.log.Warn("word source failed, using fallback", "difficulty", d, "err", err)
		}
		if w = NormalizeWord(w); err == nil && ValidWord(w) {
			return w
		}
		if err == nil {
			e.log.Warn("word source returned an unplayable word, using fallback", "difficulty", d, "length", wordLen(w))
		}
	}
	if w, ok := fallbackWords[d]; ok {
		return w
	}
	return fallbackWords[Medium]
}

// Match returns the full record. Callers outside the engine should prefer View.
func (e *Engine) Match(ctx context.Context, id string) (*Match, error) {
	return e.store.Match(ctx, id)
}

func (e *Engine) View(ctx context.Context, matchID, viewerID string) (MatchView, error) {
	m, err := e.store.Match(ctx, matchID)
	if err != nil {
		return MatchView{}, err
	}
	return m.View(viewerID, e.cfg.TurnTimeLimit), nil
}

func (e *Engine) ActiveMatch(ctx context.Context, playerID string) (MatchView, error) {
	m, err := e.store.ActiveMatchFor(ctx, playerID)
	if err != nil {
		return MatchView{}, err
	}
	return m.View(playerID, e.cfg.TurnTimeLimit), nil
}

func (e *Engine) RecentMatches(ctx context.Context, playerID string, limit int) ([]MatchView, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	ms, err := e.store.RecentMatches(ctx, playerID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]MatchView, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.View(playerID, e.cfg.TurnTimeLimit))
	}
	return out, nil
}

func (e *Engine) EnsurePlayer(ctx context.Context, id, name string) (*Player, error) {
	return e.store.EnsurePlayer(ctx, id, name)
}

// roundWord is a secret word drawn before the match transaction opens.
type roundWord struct {
	Difficulty Difficulty
	Word       string
}

// needWord aborts a mutation attempt that has to start a round without a
// staged word. mutate draws one for the tier and runs the attempt again.
type needWord struct{ difficulty Difficulty }

func (n *needWord) Error() string { return "word needed for " + string(n.difficulty) }

// maxWordAttempts bounds reruns when concurrent moves change which tier a
// match needs between attempts.
const maxWordAttempts = 3

type mutation func(ctx context.Context, tx Tx, m *Match, slot Slot, now time.Time, staged *roundWord) (Result, error)

// mutate runs fn as one read-modify-write transaction on matchID on behalf
// of playerID, then notifies subscribers and settles ratings if it ended the match.
// Words are never drawn while the transaction holds its connection.
func (e *Engine) mutate(ctx context.Context, matchID, playerID string, fn mutation) (Result, error) {
	var (
		res    Result
		after  *Match
		staged *roundWord
		err    error
	)
	for attempt := 1; ; attempt++ {
		res, after, err = e.attempt(ctx, matchID, playerID, fn, staged)
		var nw *needWord
		if !errors.As(err, &nw) || attempt == maxWordAttempts {
			break
		}
		staged = &roundWord{Difficulty: nw.difficulty, Word: e.drawWord(ctx, nw.difficulty)}
	}
	if err != nil {
		if IsDomainError(err) {
			e.log.Debug("match operation rejected", "match", matchID, "player", playerID, "err", err)
		} else {
			e.log.Error("match operation failed", "match", matchID, "player", playerID, "err", err)
		}
		return Result{}, err
	}
	if after != nil {
		e.publish(ctx, after, EventUpdated)
		if res.MatchEnded {
			e.settleRatings(ctx, after.ID)
		}
	}
	return res, nil
}

func (e *Engine) attempt(ctx context.Context, matchID, playerID string, fn mutation, staged *roundWord) (Result, *Match, error) {
	var (
		res   Result
		after *Match
	)
	err := e.store.WithTx(ctx, func(tx Tx) error {
		m, err := tx.Match(ctx, matchID)
		if err != nil {
			return err
		}
		slot, ok := m.SlotOf(playerID)
		if !ok {
			return ErrNotAPlayer
		}
		now := e.now()
		res, err = fn(ctx, tx, m, slot, now, staged)
		if err != nil {
			return err
		}
		res.MatchID = m.ID
		res.Round = m.CurrentRound
		if res.noop {
			return nil
		}
		m.UpdatedAt = now
		if err := tx.SaveMatch(ctx, m); err != nil {
			return err
		}
		after = m
		return nil
	})
	return res, after, err
}

// nextWord hands back the staged word, or asks mutate for one in the tier
// the match moves to.
func (e *Engine) nextWord(m *Match, staged *roundWord) (roundWord, error) {
	if staged != nil {
		return *staged, nil
	}
	d := m.CurrentDifficulty
	if !m.FixedDifficulty {
		d = Difficulties[e.intn(len(Difficulties))]
	}
	return roundWord{}, &needWord{difficulty: d}
}

func (e *Engine) publish(ctx context.Context, m *Match, kind string) {
	ev := Event{MatchID: m.ID, Version: m.Version, Kind: kind}
	if err := e.broker.Publish(ctx, ev); err != nil {
		e.log.Warn("publish match event", "match", m.ID, "err", err)
	}
}

func (e *Engine) settleRatings(ctx context.Context, matchID string) {
	if _, err := e.ratings.UpdateMatchRatings(ctx, matchID); err != nil {
		// clients and the reaper retry through UpdateMatchRatings
		e.log.Error("rating update failed", "match", matchID, "err", err)
		return
	}
	if m, err := e.store.Match(ctx, matchID); err == nil {
		e.publish(ctx, m, EventUpdated)
	}
}

func (e *Engine) SubmitGuess(ctx context.Context, matchID, playerID, guess string) (Result, error) {
	return e.mutate(ctx, matchID, playerID, func(_ context.Context, _ Tx, m *Match, slot Slot, now time.Time, staged *roundWord) (Result, error) {
		if m.Status != StatusActive {
			return Result{}, ErrNotActive
		}
		if m.CurrentTurn != playerID {
			return Result{}, ErrNotYourTurn
		}
		guess = NormalizeWord(guess)
		if wordLen(guess) != wordLen(m.CurrentWord) {
			return Result{}, ErrLengthMismatch
		}

		tiles := Evaluate(guess, m.CurrentWord)
		m.Guesses = append(m.Guesses, guess)
		m.GuessResults = append(m.GuessResults, tiles)
		m.setTyping(slot, "")

		res := Result{Tiles: tiles}
		if !IsWin(tiles) {
			if err := e.afterMiss(m, now, &res, staged); err != nil {
				return Result{}, err
			}
			return res, nil
		}

		res.Correct = true
		res.Points = pointsFor(len(m.Guesses))
		res.RoundEnded = true
		m.addScore(slot, res.Points)
		m.loseHeart(slot.Other())

		if m.Hearts(slot.Other()) == 0 {
			m.finish(playerID, false)
			res.MatchEnded, res.WinnerID = true, playerID
			return res, nil
		}
		w, err := e.nextWord(m, staged)
		if err != nil {
			return Result{}, err
		}
		startNextRound(m, now, w)
		return res, nil
	})
}

// SkipTurn settles an expired turn clock. Either participant may report it;
// the server decides from the stored turn start.
func (e *Engine) SkipTurn(ctx context.Context, matchID, playerID string) (Result, error) {
	return e.mutate(ctx, matchID, playerID, func(_ context.Context, _ Tx, m *Match, _ Slot, now time.Time, staged *roundWord) (Result, error) {
		if m.Status != StatusActive {
			return Result{}, ErrNotActive
		}
		if now.Sub(m.TurnStartedAt) < e.cfg.TurnTimeLimit {
			return Result{}, ErrTooEarly
		}

		late, _ := m.SlotOf(m.CurrentTurn)
		m.Guesses = append(m.Guesses, "")
		m.GuessResults = append(m.GuessResults, absentRow(wordLen(m.CurrentWord)))
		m.setTyping(late, "")
		m.loseHeart(late)

		res := Result{TimedOutID: m.CurrentTurn}
		if m.Hearts(late) == 0 {
			winner := m.PlayerID(late.Other())
			m.finish(winner, false)
			res.RoundEnded, res.MatchEnded, res.WinnerID = true, true, winner
			return res, nil
		}
		if err := e.afterMiss(m, now, &res, staged); err != nil {
			return Result{}, err
		}
		return res, nil
	})
}

// afterMiss handles a guess that did not solve the word: the sixth miss
// costs both players a heart, otherwise the turn passes.
func (e *Engine) afterMiss(m *Match, now time.Time, res *Result, staged *roundWord) error {
	if len(m.Guesses) < MaxGuesses {
		m.CurrentTurn = m.OpponentOf(m.CurrentTurn)
		m.TurnStartedAt = now
		return nil
	}

	m.loseHeart(P1)
	m.loseHeart(P2)
	res.BothLostHeart = true
	res.RoundEnded = true

	if m.outOfHearts() {
		m.finishByHearts()
		res.MatchEnded = true
		res.WinnerID = m.WinnerID
		res.Draw = m.IsDraw
		return nil
	}
	w, err := e.nextWord(m, staged)
	if err != nil {
		return err
	}
	startNextRound(m, now, w)
	return nil
}

func startNextRound(m *Match, now time.Time, w roundWord) {
	m.PreviousRoundWord = m.CurrentWord
	m.CurrentWord = w.Word
	m.CurrentDifficulty = w.Difficulty
	m.CurrentRound++
	m.CurrentTurn = m.roundStarter(m.CurrentRound)
	m.TurnStartedAt = now
	m.Guesses = []string{}
	m.GuessResults = [][]Tile{}
	m.Player1Typing, m.Player2Typing = "", ""
}

func (e *Engine) ForfeitMatch(ctx context.Context, matchID, playerID string) (Result, error) {
	return e.mutate(ctx, matchID, playerID, func(_ context.Context, _ Tx, m *Match, slot Slot, _ time.Time, _ *roundWord) (Result, error) {
		if m.Status != StatusActive {
			return Result{}, ErrNotActive
		}
		winner := m.PlayerID(slot.Other())
		m.finish(winner, false)
		return Result{MatchEnded: true, WinnerID: winner}, nil
	})
}

// UpdateLiveGuess records what the player on turn is typing so the
// opponent can watch it. It is display-only and never validated as a guess.
func (e *Engine) UpdateLiveGuess(ctx context.Context, matchID, playerID, partial string) (Result, error) {
	return e.mutate(ctx, matchID, playerID, func(_ context.Context, _ Tx, m *Match, slot Slot, _ time.Time, _ *roundWord) (Result, error) {
		if m.Status != StatusActive {
			return Result{}, ErrNotActive
		}
		if m.CurrentTurn != playerID {
			return Result{}, ErrNotYourTurn
		}
		partial = NormalizeWord(partial)
		if r := []rune(partial); len(r) > wordLen(m.CurrentWord) {
			partial = string(r[:wordLen(m.CurrentWord)])
		}
		if m.typing(slot) == partial {
			return Result{noop: true}, nil
		}
		m.setTyping(slot, partial)
		return Result{}, nil
	})
}

// RequestRematch records the caller's intent. When both sides agree the
// follow-up match is inserted and linked in the same transaction.
func (e *Engine) RequestRematch(ctx context.Context, matchID, playerID string) (Result, error) {
	return e.mutate(ctx, matchID, playerID, func(ctx context.Context, tx Tx, m *Match, slot Slot, _ time.Time, staged *roundWord) (Result, error) {
		if m.Status != StatusFinished {
			return Result{}, ErrNotFinished
		}
		if m.RematchMatchID != "" {
			return Result{RematchMatchID: m.RematchMatchID, noop: true}, nil
		}
		m.setWantsRematch(slot, true)
		if !m.Player1WantsRematch || !m.Player2WantsRematch {
			return Result{}, nil
		}

		w, err := e.nextWord(m, staged)
		if err != nil {
			return Result{}, err
		}
		starter := m.OpponentOf(m.FirstStarterID)
		next := e.newMatch(m.Player1ID, m.Player2ID, w, m.FixedDifficulty, starter)
		next.RematchOfID = m.ID
		if err := tx.InsertMatch(ctx, next); err != nil {
			return Result{}, err
		}
		m.RematchMatchID = next.ID
		e.log.Info("rematch created", "match", m.ID, "rematch", next.ID)
		return Result{RematchMatchID: next.ID}, nil
	})
}

func (e *Engine) CancelRematch(ctx context.Context, matchID, playerID string) (Result, error) {
	return e.mutate(ctx, matchID, playerID, func(_ context.Context, _ Tx, m *Match, slot Slot, _ time.Time, _ *roundWord) (Result, error) {
		if m.Status != StatusFinished {
			return Result{}, ErrNotFinished
		}
		if m.RematchMatchID != "" || !m.wantsRematch(slot) {
			return Result{RematchMatchID: m.RematchMatchID, noop: true}, nil
		}
		m.setWantsRematch(slot, false)
		return Result{}, nil
	})
}

// LeaveMatch marks that the caller walked away from a finished match,
// withdrawing any pending rematch intent.
func (e *Engine) LeaveMatch(ctx context.Context, matchID, playerID string) (Result, error) {
	return e.mutate(ctx, matchID, playerID, func(_ context.Context, _ Tx, m *Match, slot Slot, _ time.Time, _ *roundWord) (Result, error) {
		if m.Status != StatusFinished {
			return Result{}, ErrNotFinished
		}
		m.setLeft(slot)
		if m.RematchMatchID == "" {
			m.setWantsRematch(slot, false)
		}
		return Result{RematchMatchID: m.RematchMatchID}, nil
	})
}

// UpdateMatchRatings settles ratings for a finished match; repeated calls
// are no-ops. Any participant may trigger it.
func (e *Engine) UpdateMatchRatings(ctx context.Context, matchID, playerID string) (RatingResult, error) {
	m, err := e.store.Match(ctx, matchID)
	if err != nil {
		return RatingResult{}, err
	}
	if _, ok := m.SlotOf(playerID); !ok {
		return RatingResult{}, ErrNotAPlayer
	}
	res, err := e.ratings.UpdateMatchRatings(ctx, matchID)
	if err != nil {
		return RatingResult{}, err
	}
	if res.Applied {
		if m, err := e.store.Match(ctx, matchID); err == nil {
			e.publish(ctx, m, EventUpdated)
		}
	}
	return res, nil
}

// ReapStaleMatches force-finishes active matches idle for longer than
// StaleAfter as draws. Each match is re-checked inside its own transaction,
// so overlapping sweeps and live play cannot double-finish anything.
func (e *Engine) ReapStaleMatches(ctx context.Context) (int, error) {
	cutoff := e.now().Add(-e.cfg.StaleAfter)
	ids, err := e.store.StaleMatchIDs(ctx, cutoff, 200)
	if err != nil {
		return 0, err
	}

	reaped := 0
	var errs []error
	for _, id := range ids {
		var (
			after *Match
			idle  time.Duration
		)
		err := e.store.WithTx(ctx, func(tx Tx) error {
			m, err := tx.Match(ctx, id)
			if err != nil {
				return err
			}
			now := e.now()
			if m.Status != StatusActive || now.Sub(m.UpdatedAt) <= e.cfg.StaleAfter {
				return nil
			}
			idle = now.Sub(m.UpdatedAt)
			m.finish("", true)
			m.UpdatedAt = now
			if err := tx.SaveMatch(ctx, m); err != nil {
				return err
			}
			after = m
			return nil
		})
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				errs = append(errs, err)
			}
			continue
		}
		if after == nil {
			continue
		}
		reaped++
		e.log.Info("stale match reaped", "match", id, "idle", idle)
		e.publish(ctx, after, EventUpdated)
		e.settleRatings(ctx, id)
	}
	return reaped, errors.Join(errs...)
}
