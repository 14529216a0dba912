package game

import "time"

// MatchView is the client-facing projection of a Match. The secret word
// is replaced by its length and first letter until the match is finished.
type MatchView struct {
	ID              string     `json:"id"`
	You             Slot       `json:"you,omitempty"`
	Player1ID       string     `json:"player1Id"`
	Player2ID       string     `json:"player2Id"`
	Status          Status     `json:"status"`
	Difficulty      Difficulty `json:"difficulty"`
	FixedDifficulty bool       `json:"fixedDifficulty"`

	Round          int    `json:"round"`
	CurrentTurn    string `json:"currentTurn,omitempty"`
	TurnStartedAt  int64  `json:"turnStartedAt"`
	TurnDeadline   int64  `json:"turnDeadline"`
	WordLength     int    `json:"wordLength"`
	FirstLetter    string `json:"firstLetter"`
	RevealedWord   string `json:"revealedWord,omitempty"`
	PreviousWord   string `json:"previousRoundWord,omitempty"`
	OpponentTyping string `json:"opponentTyping,omitempty"`

	Guesses      []string `json:"guesses"`
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
	Player1Left         bool   `json:"player1Left"`
	Player2Left         bool   `json:"player2Left"`

	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
	Version   int64 `json:"version"`
}

// View projects m for viewerID. Non-participants get the same sanitized
// record without a slot or typing preview.
func (m *Match) View(viewerID string, turnLimit time.Duration) MatchView {
	v := MatchView{
		ID:              m.ID,
		Player1ID:       m.Player1ID,
		Player2ID:       m.Player2ID,
		Status:          m.Status,
		Difficulty:      m.CurrentDifficulty,
		FixedDifficulty: m.FixedDifficulty,
		Round:           m.CurrentRound,
		WordLength:      wordLen(m.CurrentWord),
		FirstLetter:     firstLetter(m.CurrentWord),
		PreviousWord:    m.PreviousRoundWord,

		Guesses:      append([]string{}, m.Guesses...),
		GuessResults: make([][]Tile, 0, len(m.GuessResults)),

		Player1Hearts: m.Player1Hearts,
		Player2Hearts: m.Player2Hearts,
		Player1Score:  m.Player1Score,
		Player2Score:  m.Player2Score,

		WinnerID:       m.WinnerID,
		IsDraw:         m.IsDraw,
		RatingsUpdated: m.RatingsUpdated,

		Player1WantsRematch: m.Player1WantsRematch,
		Player2WantsRematch: m.Player2WantsRematch,
		RematchMatchID:      m.RematchMatchID,
		RematchOfID:         m.RematchOfID,
		Player1Left:         m.Player1Left,
		Player2Left:         m.Player2Left,

		CreatedAt: toMs(m.CreatedAt),
		UpdatedAt: toMs(m.UpdatedAt),
		Version:   m.Version,
	}
	for _, row := range m.GuessResults {
		v.GuessResults = append(v.GuessResults, append([]Tile(nil), row...))
	}

	if m.Status == StatusActive {
		v.CurrentTurn = m.CurrentTurn
		v.TurnStartedAt = toMs(m.TurnStartedAt)
		if turnLimit > 0 && !m.TurnStartedAt.IsZero() {
			v.TurnDeadline = toMs(m.TurnStartedAt.Add(turnLimit))
		}
	} else {
		v.RevealedWord = m.CurrentWord
	}

	if slot, ok := m.SlotOf(viewerID); ok {
		v.You = slot
		if m.Status == StatusActive && m.CurrentTurn == m.PlayerID(slot.Other()) {
			v.OpponentTyping = m.typing(slot.Other())
		}
	}
	return v
}

func toMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
