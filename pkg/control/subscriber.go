// Package control implements the Redis pub/sub control channel (C8): the
// bot subscribes to bot_commands:<connectionId> and decodes inbound
// commands such as {"action":"leave"}.
//
// Grounded on the realtime.NewRedisPubSub(rdb.Client, logger) wiring in
// other_examples' webinar backend main.go, adapted from a hub fan-out to a
// single-subscriber decode loop.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/lokutor-ai/meetbot/pkg/orchestrator"
)

const channelPrefix = "bot_commands:"

// Subscriber implements orchestrator.ControlChannel over go-redis pub/sub.
type Subscriber struct {
	rdb    *redis.Client
	logger orchestrator.Logger

	mu   sync.Mutex
	pub  *redis.PubSub
}

// New builds a Subscriber over an existing redis client. Callers typically
// share the same *redis.Client used by pkg/registry.
func New(rdb *redis.Client, logger orchestrator.Logger) *Subscriber {
	if logger == nil {
		logger = orchestrator.NoOpLogger{}
	}
	return &Subscriber{rdb: rdb, logger: logger}
}

// Subscribe opens bot_commands:<connectionID> and decodes every message
// into a ControlCommand, skipping malformed payloads. The returned channel
// closes when ctx is cancelled or Close is called.
func (s *Subscriber) Subscribe(ctx context.Context, connectionID string) (<-chan orchestrator.ControlCommand, error) {
	channel := channelPrefix + connectionID
	pub := s.rdb.Subscribe(ctx, channel)

	if _, err := pub.Receive(ctx); err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	s.mu.Lock()
	s.pub = pub
	s.mu.Unlock()

	out := make(chan orchestrator.ControlCommand, 8)
	go func() {
		defer close(out)
		ch := pub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var cmd orchestrator.ControlCommand
				if err := json.Unmarshal([]byte(msg.Payload), &cmd); err != nil {
					s.logger.Warn("malformed control command", "channel", channel, "error", err)
					continue
				}
				select {
				case out <- cmd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close unsubscribes and releases the pub/sub connection.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	pub := s.pub
	s.pub = nil
	s.mu.Unlock()

	if pub == nil {
		return nil
	}
	return pub.Close()
}

var _ orchestrator.ControlChannel = (*Subscriber)(nil)
