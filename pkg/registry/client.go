// Package registry implements the shared server registry (C5): a
// Redis-backed sorted set ranking transcription servers by active client
// count, with Lua scripts providing atomic allocate/release/fail so
// concurrently starting bots never double-book a server's last slot.
//
// Grounded on the functional-options wrapper shape of
// AltairaLabs-PromptKit/runtime/statestore.RedisStore, adapted from a
// conversation-state store to a ranked-allocation registry.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lokutor-ai/meetbot/pkg/orchestrator"
)

const defaultRankingKey = "wl:rank"

// Client is a RedisClient-backed implementation of
// orchestrator.RegistryClient.
type Client struct {
	rdb *redis.Client
	key string

	allocateSHA string
	releaseSHA  string
	failSHA     string
}

// Option configures a Client.
type Option func(*Client)

// WithKey overrides the sorted-set key. Default is "wl:rank".
func WithKey(key string) Option {
	return func(c *Client) { c.key = key }
}

// New builds a Client from a redis URL (redis://host:port/db).
func New(redisURL string, opts ...Option) (*Client, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewFromOptions(redisOpts, opts...), nil
}

// NewFromOptions builds a Client from already-parsed redis.Options, useful
// for tests pointed at a miniredis instance.
func NewFromOptions(opts *redis.Options, extra ...Option) *Client {
	c := &Client{
		rdb: redis.NewClient(opts),
		key: defaultRankingKey,
	}
	for _, opt := range extra {
		opt(c)
	}
	return c
}

// NewFromClient wraps an existing *redis.Client, for callers that already
// share one connection pool across the registry, control channel, etc.
func NewFromClient(rdb *redis.Client, opts ...Option) *Client {
	c := &Client{rdb: rdb, key: defaultRankingKey}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Allocate returns the lowest-loaded server URL with score < maxClients, or
// orchestrator.ErrNoRegistryCandidate if the set is empty or every member is
// at capacity.
func (c *Client) Allocate(ctx context.Context, maxClients int) (string, error) {
	res, err := c.rdb.Eval(ctx, allocateScript, []string{c.key}, maxClients).Result()
	return c.decodeCandidate(res, err)
}

// Release decrements url's load score, floored at zero.
func (c *Client) Release(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	return c.rdb.Eval(ctx, releaseScript, []string{c.key}, url).Err()
}

// Fail removes url from the ranking (treating it as dead) and immediately
// allocates a replacement in the same round trip.
func (c *Client) Fail(ctx context.Context, url string, maxClients int) (string, error) {
	res, err := c.rdb.Eval(ctx, failScript, []string{c.key}, url, maxClients).Result()
	return c.decodeCandidate(res, err)
}

func (c *Client) decodeCandidate(res interface{}, err error) (string, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", orchestrator.ErrNoRegistryCandidate
		}
		return "", fmt.Errorf("registry script: %w", err)
	}
	if res == nil {
		return "", orchestrator.ErrNoRegistryCandidate
	}
	member, ok := res.(string)
	if !ok || member == "" {
		return "", orchestrator.ErrNoRegistryCandidate
	}
	return member, nil
}

// Register adds a server to the ranking at score 0 if it isn't present
// already. Used by the transcription-server fleet itself (out of scope for
// the bot, but exposed so operators can seed the set from the same client).
func (c *Client) Register(ctx context.Context, url string) error {
	return c.rdb.ZAddNX(ctx, c.key, redis.Z{Score: 0, Member: url}).Err()
}

// Ping verifies connectivity, with a 2s timeout.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return c.rdb.Ping(pingCtx).Err()
}

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

var _ orchestrator.RegistryClient = (*Client)(nil)
