package game

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Tx is a read-modify-write unit scoped to the records it touches.
// Records returned by Match and Player are locked until the transaction ends.
type Tx interface {
	Match(ctx context.Context, id string) (*Match, error)
	InsertMatch(ctx context.Context, m *Match) error
	SaveMatch(ctx context.Context, m *Match) error
	// Player returns the rating row for id, creating a default one if missing.
	Player(ctx context.Context, id string) (*Player, error)
	SavePlayer(ctx context.Context, p *Player) error
}

// Store is the contract for match and player persistence.
// WithTx commits only when fn returns nil.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Match(ctx context.Context, id string) (*Match, error)
	ActiveMatchFor(ctx context.Context, playerID string) (*Match, error)
	RecentMatches(ctx context.Context, playerID string, limit int) ([]*Match, error)
	StaleMatchIDs(ctx context.Context, idleSince time.Time, limit int) ([]string, error)

	EnsurePlayer(ctx context.Context, id, name string) (*Player, error)
	Player(ctx context.Context, id string) (*Player, error)
	Leaderboard(ctx context.Context, limit int) ([]Player, error)
	PlayerRank(ctx context.Context, id string) (int, error)
}

// MemoryStore keeps everything in process. Transactions are serialized
// behind one mutex and staged on copies, so a failed fn leaves no trace.
type MemoryStore struct {
	mu      sync.Mutex
	matches map[string]*Match
	players map[string]*Player
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches: make(map[string]*Match),
		players: make(map[string]*Player),
		now:     time.Now,
	}
}

type memTx struct {
	s       *MemoryStore
	matches map[string]*Match
	players map[string]*Player
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s, matches: map[string]*Match{}, players: map[string]*Player{}}
	if err := fn(tx); err != nil {
		return err
	}
	for id, m := range tx.matches {
		s.matches[id] = m
	}
	for id, p := range tx.players {
		s.players[id] = p
	}
	return nil
}

func (t *memTx) Match(_ context.Context, id string) (*Match, error) {
	if m, ok := t.matches[id]; ok {
		return m.Clone(), nil
	}
	m, ok := t.s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (t *memTx) InsertMatch(_ context.Context, m *Match) error {
	m.Version = 1
	t.matches[m.ID] = m.Clone()
	return nil
}

func (t *memTx) SaveMatch(_ context.Context, m *Match) error {
	if _, ok := t.matches[m.ID]; !ok {
		if _, ok := t.s.matches[m.ID]; !ok {
			return ErrNotFound
		}
	}
	m.Version++
	t.matches[m.ID] = m.Clone()
	return nil
}

func (t *memTx) Player(_ context.Context, id string) (*Player, error) {
	if p, ok := t.players[id]; ok {
		return p.Clone(), nil
	}
	if p, ok := t.s.players[id]; ok {
		return p.Clone(), nil
	}
	p := newPlayer(id, "", t.s.now())
	t.players[id] = p
	return p.Clone(), nil
}

func (t *memTx) SavePlayer(_ context.Context, p *Player) error {
	t.players[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) Match(_ context.Context, id string) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *MemoryStore) ActiveMatchFor(_ context.Context, playerID string) (*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *Match
	for _, m := range s.matches {
		if m.Status != StatusActive {
			continue
		}
		if _, ok := m.SlotOf(playerID); !ok {
			continue
		}
		if found == nil || m.CreatedAt.After(found.CreatedAt) {
			found = m
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found.Clone(), nil
}

func (s *MemoryStore) RecentMatches(_ context.Context, playerID string, limit int) ([]*Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Match
	for _, m := range s.matches {
		if m.Status != StatusFinished {
			continue
		}
		if _, ok := m.SlotOf(playerID); ok {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) StaleMatchIDs(_ context.Context, idleSince time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, m := range s.matches {
		if m.Status == StatusActive && m.UpdatedAt.Before(idleSince) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *MemoryStore) EnsurePlayer(_ context.Context, id, name string) (*Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[id]; ok {
		if p.Name == "" && name != "" {
			p.Name = name
		}
		return p.Clone(), nil
	}
	p := newPlayer(id, name, s.now())
	s.players[id] = p
	return p.Clone(), nil
}

func (s *MemoryStore) Player(_ context.Context, id string) (*Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return nil, ErrPlayerNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Leaderboard(_ context.Context, limit int) ([]Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rankedLocked(limit), nil
}

func (s *MemoryStore) PlayerRank(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.rankedLocked(0) {
		if p.ID == id {
			return i + 1, nil
		}
	}
	return 0, ErrPlayerNotFound
}

func (s *MemoryStore) rankedLocked(limit int) []Player {
	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
