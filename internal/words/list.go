package words

import (
	"bufio"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"strings"

	"example.com/wordduel/internal/game"
)

//go:embed lists/*.txt
var embedded embed.FS

var (
	ErrNoWords    = errors.New("no words for difficulty")
	ErrWordLength = fmt.Errorf("word must have %d to %d letters", game.MinWordLength, game.MaxWordLength)
)

func checkEntry(e Entry) error {
	if !game.ValidWord(e.Word) {
		return fmt.Errorf("%w: %s %q", ErrWordLength, e.Difficulty, e.Word)
	}
	return nil
}

// Entry is one catalogue word with its tier.
type Entry struct {
	Word       string
	Difficulty game.Difficulty
}

// List is an in-memory catalogue read from one "<difficulty>.txt" file per
// tier. Lines are normalized, blanks and "#" comments are skipped, and an
// unplayable word fails the whole load.
type List struct {
	byTier map[game.Difficulty][]string
	intn   func(n int) int
}

// Embedded returns the catalogue compiled into the binary.
func Embedded() (*List, error) {
	sub, err := fs.Sub(embedded, "lists")
	if err != nil {
		return nil, err
	}
	return Load(sub)
}

// LoadDir reads the tier files from dir on disk.
func LoadDir(dir string) (*List, error) {
	return Load(os.DirFS(dir))
}

func Load(fsys fs.FS) (*List, error) {
	l := &List{byTier: make(map[game.Difficulty][]string), intn: rand.IntN}
	for _, d := range game.Difficulties {
		f, err := fsys.Open(string(d) + ".txt")
		if err != nil {
			return nil, fmt.Errorf("words: open %s list: %w", d, err)
		}
		seen := make(map[string]struct{})
		sc := bufio.NewScanner(f)
		lineNo := 0
		for sc.Scan() {
			lineNo++
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			w := game.NormalizeWord(line)
			if err := checkEntry(Entry{Word: w, Difficulty: d}); err != nil {
				_ = f.Close()
				return nil, fmt.Errorf("words: %s.txt:%d: %w", d, lineNo, err)
			}
			if _, dup := seen[w]; dup {
				continue
			}
			seen[w] = struct{}{}
			l.byTier[d] = append(l.byTier[d], w)
		}
		err = sc.Err()
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("words: read %s list: %w", d, err)
		}
	}
	return l, nil
}

func (l *List) RandomWord(_ context.Context, d game.Difficulty) (string, error) {
	ws := l.byTier[d]
	if len(ws) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoWords, d)
	}
	return ws[l.intn(len(ws))], nil
}

// Entries flattens the catalogue in tier order, for seeding.
func (l *List) Entries() []Entry {
	var out []Entry
	for _, d := range game.Difficulties {
		for _, w := range l.byTier[d] {
			out = append(out, Entry{Word: w, Difficulty: d})
		}
	}
	return out
}

func (l *List) Counts() map[game.Difficulty]int {
	out := make(map[game.Difficulty]int, len(game.Difficulties))
	for _, d := range game.Difficulties {
		out[d] = len(l.byTier[d])
	}
	return out
}
