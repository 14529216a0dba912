package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroker publishes match events on a per-match pub/sub channel.
type RedisBroker struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisBroker(rdb *redis.Client, log *slog.Logger) *RedisBroker {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBroker{rdb: rdb, log: log}
}

func (b *RedisBroker) channel(matchID string) string {
	return fmt.Sprintf("match:%s:events", matchID)
}

func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel(ev.MatchID), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, matchID string) (<-chan Event, func(), error) {
	ps := b.rdb.Subscribe(ctx, b.channel(matchID))
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("redis subscribe %s: %w", matchID, err)
	}

	out := make(chan Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.log.Warn("bad match event", "match", matchID, "err", err)
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}
