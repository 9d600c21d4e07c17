// Package relay is the sync relay: it rebroadcasts actions between
// connected participants and keeps the last pushed snapshot for late
// joiners.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"collabtext/internal/protocol"
)

// Broker fans messages out to every relay instance serving a document,
// including the one that published them.
type Broker interface {
	Publish(ctx context.Context, env protocol.Envelope) error
	// Subscribe delivers published messages until ctx is done. The
	// returned channel is never closed.
	Subscribe(ctx context.Context) (<-chan protocol.Envelope, error)
}

// MemoryBroker serves a single relay process.
type MemoryBroker struct {
	mu   sync.RWMutex
	subs map[*memorySub]struct{}
}

type memorySub struct {
	ch   chan protocol.Envelope
	done <-chan struct{}
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: map[*memorySub]struct{}{}}
}

func (b *MemoryBroker) Publish(ctx context.Context, env protocol.Envelope) error {
	b.mu.RLock()
	subs := make([]*memorySub, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.ch <- env:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context) (<-chan protocol.Envelope, error) {
	s := &memorySub{ch: make(chan protocol.Envelope, 256), done: ctx.Done()}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, s)
		b.mu.Unlock()
	}()
	return s.ch, nil
}

// RedisBroker fans out over a redis pub/sub channel so several relay
// processes can serve the same document.
type RedisBroker struct {
	rdb     *redis.Client
	channel string
	log     *slog.Logger
}

func NewRedisBroker(rdb *redis.Client, document string, log *slog.Logger) *RedisBroker {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBroker{rdb: rdb, channel: "collabtext:" + document, log: log}
}

func (b *RedisBroker) Publish(ctx context.Context, env protocol.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan protocol.Envelope, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", b.channel, err)
	}

	out := make(chan protocol.Envelope, 256)
	go func() {
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var env protocol.Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.log.Warn("dropping malformed redis message", "err", err)
					continue
				}
				select {
				case out <- env:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
