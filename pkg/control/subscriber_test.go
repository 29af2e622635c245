package control

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSubscribeDecodesLeaveCommand(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sub := New(rdb, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmds, err := sub.Subscribe(ctx, "conn-1")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	published, err := mr.Publish("bot_commands:conn-1", `{"action":"leave"}`)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if published == 0 {
		t.Fatalf("expected at least one subscriber to receive the publish")
	}

	select {
	case cmd := <-cmds:
		if cmd.Action != "leave" {
			t.Fatalf("Action = %q, want leave", cmd.Action)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for control command")
	}
}

func TestSubscribeSkipsMalformedPayload(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sub := New(rdb, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmds, err := sub.Subscribe(ctx, "conn-2")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	mr.Publish("bot_commands:conn-2", `not json`)
	mr.Publish("bot_commands:conn-2", `{"action":"leave"}`)

	select {
	case cmd := <-cmds:
		if cmd.Action != "leave" {
			t.Fatalf("Action = %q, want leave (malformed payload should have been skipped)", cmd.Action)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for control command")
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	sub := New(rdb, nil)
	cmds, err := sub.Subscribe(context.Background(), "conn-3")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case _, ok := <-cmds:
		if ok {
			t.Fatalf("expected channel to be closed after Close")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for channel close")
	}
}
