package game

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

type Tile string

const (
	TileCorrect Tile = "correct"
	TilePresent Tile = "present"
	TileAbsent  Tile = "absent"
)

// Evaluate scores guess against target letter by letter.
// Both are expected to be normalized and of equal rune length.
func Evaluate(guess, target string) []Tile {
	g := []rune(guess)
	t := []rune(target)
	out := make([]Tile, len(t))

	remaining := make(map[rune]int, len(t))
	for _, r := range t {
		remaining[r]++
	}

	// exact matches consume their letter first
	for i := range t {
		if i < len(g) && g[i] == t[i] {
			out[i] = TileCorrect
			remaining[t[i]]--
		}
	}

	for i := range t {
		if out[i] == TileCorrect {
			continue
		}
		if i < len(g) && remaining[g[i]] > 0 {
			out[i] = TilePresent
			remaining[g[i]]--
			continue
		}
		out[i] = TileAbsent
	}
	return out
}

func IsWin(tiles []Tile) bool {
	if len(tiles) == 0 {
		return false
	}
	for _, t := range tiles {
		if t != TileCorrect {
			return false
		}
	}
	return true
}

// absentRow is the tile row recorded for a skipped turn.
func absentRow(n int) []Tile {
	row := make([]Tile, n)
	for i := range row {
		row[i] = TileAbsent
	}
	return row
}

// NormalizeWord folds s to NFC lower case. A Caser is not safe for
// concurrent use, so one is built per call.
func NormalizeWord(s string) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	return cases.Lower(language.Und).String(s)
}

func wordLen(s string) int { return utf8.RuneCountInString(s) }

func firstLetter(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError {
		return ""
	}
	return string(r)
}
