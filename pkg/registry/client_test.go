package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lokutor-ai/meetbot/pkg/orchestrator"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	c := NewFromOptions(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestAllocatePicksLowestLoaded(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	if err := c.Register(ctx, "ws://a"); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := c.Register(ctx, "ws://b"); err != nil {
		t.Fatalf("register b: %v", err)
	}
	mr.ZAdd("wl:rank", 3, "ws://a")
	mr.ZAdd("wl:rank", 1, "ws://b")

	got, err := c.Allocate(ctx, 10)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if got != "ws://b" {
		t.Fatalf("Allocate = %q, want ws://b (lowest score)", got)
	}

	score, _ := mr.ZScore("wl:rank", "ws://b")
	if score != 2 {
		t.Fatalf("score after allocate = %v, want 2", score)
	}
}

func TestAllocateNoCandidateUnderCapacity(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	mr.ZAdd("wl:rank", 10, "ws://full")

	_, err := c.Allocate(ctx, 10)
	if !errors.Is(err, orchestrator.ErrNoRegistryCandidate) {
		t.Fatalf("Allocate err = %v, want ErrNoRegistryCandidate", err)
	}
}

func TestAllocateEmptyRegistry(t *testing.T) {
	c, _ := newTestClient(t)
	_, err := c.Allocate(context.Background(), 10)
	if !errors.Is(err, orchestrator.ErrNoRegistryCandidate) {
		t.Fatalf("Allocate err = %v, want ErrNoRegistryCandidate", err)
	}
}

func TestReleaseFloorsAtZero(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	mr.ZAdd("wl:rank", 0, "ws://a")

	if err := c.Release(ctx, "ws://a"); err != nil {
		t.Fatalf("Release: %v", err)
	}

	score, _ := mr.ZScore("wl:rank", "ws://a")
	if score != 0 {
		t.Fatalf("score = %v, want floored at 0", score)
	}
}

func TestFailRemovesAndReallocates(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()
	mr.ZAdd("wl:rank", 2, "ws://dead")
	mr.ZAdd("wl:rank", 1, "ws://alive")

	got, err := c.Fail(ctx, "ws://dead", 10)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if got != "ws://alive" {
		t.Fatalf("Fail replacement = %q, want ws://alive", got)
	}
	members, _ := mr.ZMembers("wl:rank")
	for _, m := range members {
		if m == "ws://dead" {
			t.Fatalf("expected ws://dead to be removed from the ranking")
		}
	}
}
