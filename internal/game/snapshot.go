package game

// Clone returns a deep copy so stored state never aliases caller state.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Guesses = append([]string(nil), m.Guesses...)
	if m.GuessResults != nil {
		c.GuessResults = make([][]Tile, len(m.GuessResults))
		for i, row := range m.GuessResults {
			c.GuessResults[i] = append([]Tile(nil), row...)
		}
	}
	return &c
}

func (p *Player) Clone() *Player {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
