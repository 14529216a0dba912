package game

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("match not found")
	ErrNotActive         = errors.New("match is not in the required state")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrNotAPlayer        = errors.New("not a participant of this match")
	ErrTooEarly          = errors.New("turn time has not expired yet")
	ErrLengthMismatch    = errors.New("guess length does not match word length")
	ErrInvalidDifficulty = errors.New("unknown difficulty")
	ErrSamePlayer        = errors.New("a match needs two distinct players")
	ErrPlayerNotFound    = errors.New("player not found")
)

// ErrNotFinished is the finished-only flavour of ErrNotActive.
var ErrNotFinished = fmt.Errorf("%w: match is not finished", ErrNotActive)

// ErrorCode maps an error to the stable code sent to clients.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotActive):
		return "not_active"
	case errors.Is(err, ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, ErrNotAPlayer):
		return "not_a_player"
	case errors.Is(err, ErrTooEarly):
		return "too_early"
	case errors.Is(err, ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(err, ErrInvalidDifficulty), errors.Is(err, ErrSamePlayer):
		return "bad_input"
	case errors.Is(err, ErrPlayerNotFound):
		return "player_not_found"
	}
	return "internal"
}

// IsDomainError reports whether err is a caller mistake rather than a server fault.
func IsDomainError(err error) bool {
	code := ErrorCode(err)
	return code != "" && code != "internal"
}
