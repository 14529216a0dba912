package game

import (
	"context"
	"sync"
)

// Event tells subscribers that a match changed; they re-read it themselves.
type Event struct {
	MatchID string `json:"matchId"`
	Version int64  `json:"version"`
	Kind    string `json:"kind"`
}

const (
	EventUpdated = "updated"
	EventCreated = "created"
)

// Broker fans match change notifications out to every subscribed client,
// whichever process the client is connected to.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, matchID string) (<-chan Event, func(), error)
}

// MemoryBroker is a single-process Broker.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[chan Event]struct{})}
}

func (b *MemoryBroker) Publish(_ context.Context, ev Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.MatchID] {
		select {
		case ch <- ev:
		default:
			// slow reader: it will catch up on the next event
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(_ context.Context, matchID string) (<-chan Event, func(), error) {
	ch := make(chan Event, 16)

	b.mu.Lock()
	if b.subs[matchID] == nil {
		b.subs[matchID] = make(map[chan Event]struct{})
	}
	b.subs[matchID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[matchID], ch)
			if len(b.subs[matchID]) == 0 {
				delete(b.subs, matchID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}
