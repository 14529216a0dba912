package game

import (
	"errors"
	"fmt"
	"time"
)

type Slot string

const (
	P1 Slot = "p1"
	P2 Slot = "p2"
)

func (s Slot) Other() Slot {
	if s == P1 {
		return P2
	}
	return P1
}

type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Difficulties is the tier set a per-round re-roll draws from.
var Difficulties = []Difficulty{Easy, Medium, Hard}

func ParseDifficulty(s string) (Difficulty, error) {
	for _, d := range Difficulties {
		if string(d) == s {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDifficulty, s)
}

const (
	MaxGuesses     = 6
	DefaultHearts  = 3
	StartingRating = 1000

	MinWordLength = 4
	MaxWordLength = 9
)

// ValidWord reports whether w is a playable secret word.
func ValidWord(w string) bool {
	n := wordLen(w)
	return n >= MinWordLength && n <= MaxWordLength
}

// pointsTable maps the attempt a word was solved on to the points awarded.
var pointsTable = map[int]int{1: 500, 2: 200, 3: 100, 4: 50, 5: 25, 6: 10}

func pointsFor(attempt int) int {
	if p, ok := pointsTable[attempt]; ok {
		return p
	}
	return 10
}

// Match is the full server-side record of a duel, secret word included.
// Clients only ever see it through View.
type Match struct {
	ID        string `json:"id"`
	Player1ID string `json:"player1Id"`
	Player2ID string `json:"player2Id"`
	Status    Status `json:"status"`

	CurrentWord       string     `json:"currentWord"`
	CurrentDifficulty Difficulty `json:"currentDifficulty"`
	FixedDifficulty   bool       `json:"fixedDifficulty"`
	CurrentRound      int        `json:"currentRound"`
	CurrentTurn       string     `json:"currentTurn"`
	FirstStarterID    string     `json:"firstStarterId"` // round 1 starter; later rounds alternate from it
	TurnStartedAt     time.Time  `json:"turnStartedAt"`

	Guesses      []string `json:"guesses"` // "" marks a timed-out turn
	GuessResults [][]Tile `json:"guessResults"`

	Player1Hearts int `json:"player1Hearts"`
	Player2Hearts int `json:"player2Hearts"`
	Player1Score  int `json:"player1Score"`
	Player2Score  int `json:"player2Score"`

	WinnerID       string `json:"winnerId,omitempty"`
	IsDraw         bool   `json:"isDraw"`
	RatingsUpdated bool   `json:"ratingsUpdated"`

	Player1WantsRematch bool   `json:"player1WantsRematch"`
	Player2WantsRematch bool   `json:"player2WantsRematch"`
	RematchMatchID      string `json:"rematchMatchId,omitempty"`
	RematchOfID         string `json:"rematchOfId,omitempty"`

	Player1Left bool `json:"player1Left"`
	Player2Left bool `json:"player2Left"`

	// live typing of whoever is on turn
	Player1Typing string `json:"player1Typing,omitempty"`
	Player2Typing string `json:"player2Typing,omitempty"`

	PreviousRoundWord string `json:"previousRoundWord,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Version   int64     `json:"version"`
}

// SlotOf reports which side playerID plays on.
func (m *Match) SlotOf(playerID string) (Slot, bool) {
	switch {
	case playerID == "":
		return "", false
	case playerID == m.Player1ID:
		return P1, true
	case playerID == m.Player2ID:
		return P2, true
	}
	return "", false
}

func (m *Match) PlayerID(s Slot) string {
	if s == P1 {
		return m.Player1ID
	}
	return m.Player2ID
}

func (m *Match) OpponentOf(playerID string) string {
	if playerID == m.Player1ID {
		return m.Player2ID
	}
	return m.Player1ID
}

func (m *Match) Hearts(s Slot) int {
	if s == P1 {
		return m.Player1Hearts
	}
	return m.Player2Hearts
}

func (m *Match) Score(s Slot) int {
	if s == P1 {
		return m.Player1Score
	}
	return m.Player2Score
}

func (m *Match) loseHeart(s Slot) {
	h := &m.Player2Hearts
	if s == P1 {
		h = &m.Player1Hearts
	}
	if *h > 0 {
		*h--
	}
}

func (m *Match) addScore(s Slot, pts int) {
	if s == P1 {
		m.Player1Score += pts
	} else {
		m.Player2Score += pts
	}
}

func (m *Match) setTyping(s Slot, v string) {
	if s == P1 {
		m.Player1Typing = v
	} else {
		m.Player2Typing = v
	}
}

func (m *Match) typing(s Slot) string {
	if s == P1 {
		return m.Player1Typing
	}
	return m.Player2Typing
}

func (m *Match) wantsRematch(s Slot) bool {
	if s == P1 {
		return m.Player1WantsRematch
	}
	return m.Player2WantsRematch
}

func (m *Match) setWantsRematch(s Slot, v bool) {
	if s == P1 {
		m.Player1WantsRematch = v
	} else {
		m.Player2WantsRematch = v
	}
}

func (m *Match) setLeft(s Slot) {
	if s == P1 {
		m.Player1Left = true
	} else {
		m.Player2Left = true
	}
}

// roundStarter alternates strictly by round parity from the round 1 starter.
func (m *Match) roundStarter(round int) string {
	if round%2 == 1 {
		return m.FirstStarterID
	}
	return m.OpponentOf(m.FirstStarterID)
}

func (m *Match) finish(winnerID string, draw bool) {
	m.Status = StatusFinished
	m.WinnerID = winnerID
	m.IsDraw = draw
	m.Player1Typing, m.Player2Typing = "", ""
}

// finishByHearts settles a match where at least one side is out of hearts.
// Equal zero hearts are broken by score; equal scores are a draw.
func (m *Match) finishByHearts() {
	switch {
	case m.Player1Hearts == 0 && m.Player2Hearts == 0:
		switch {
		case m.Player1Score > m.Player2Score:
			m.finish(m.Player1ID, false)
		case m.Player2Score > m.Player1Score:
			m.finish(m.Player2ID, false)
		default:
			m.finish("", true)
		}
	case m.Player1Hearts == 0:
		m.finish(m.Player2ID, false)
	default:
		m.finish(m.Player1ID, false)
	}
}

func (m *Match) outOfHearts() bool {
	return m.Player1Hearts == 0 || m.Player2Hearts == 0
}

// Validate checks the structural invariants every persisted match holds.
func (m *Match) Validate() error {
	var errs []error
	if len(m.Guesses) != len(m.GuessResults) {
		errs = append(errs, fmt.Errorf("guesses=%d results=%d", len(m.Guesses), len(m.GuessResults)))
	}
	if m.Player1Hearts < 0 || m.Player2Hearts < 0 {
		errs = append(errs, errors.New("negative hearts"))
	}
	if m.Status == StatusActive && !ValidWord(m.CurrentWord) {
		errs = append(errs, fmt.Errorf("word length %d out of range", wordLen(m.CurrentWord)))
	}
	if len(m.Guesses) > MaxGuesses {
		errs = append(errs, fmt.Errorf("round has %d guesses", len(m.Guesses)))
	}
	terminal := 0
	if m.WinnerID != "" {
		terminal++
	}
	if m.IsDraw {
		terminal++
	}
	if m.Status == StatusActive {
		terminal++
		if _, ok := m.SlotOf(m.CurrentTurn); !ok {
			errs = append(errs, fmt.Errorf("turn %q is not a participant", m.CurrentTurn))
		}
	}
	if terminal != 1 {
		errs = append(errs, fmt.Errorf("status=%s winner=%q draw=%v", m.Status, m.WinnerID, m.IsDraw))
	}
	return errors.Join(errs...)
}
