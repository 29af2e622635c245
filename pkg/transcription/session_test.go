package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/lokutor-ai/meetbot/pkg/orchestrator"
)

// fakeRegistry hands out a single fixed URL and records Release/Fail calls.
type fakeRegistry struct {
	url     string
	failed  chan string
	release chan string
}

func newFakeRegistry(url string) *fakeRegistry {
	return &fakeRegistry{url: url, failed: make(chan string, 8), release: make(chan string, 8)}
}

func (r *fakeRegistry) Allocate(ctx context.Context, maxClients int) (string, error) {
	return r.url, nil
}

func (r *fakeRegistry) Release(ctx context.Context, url string) error {
	r.release <- url
	return nil
}

func (r *fakeRegistry) Fail(ctx context.Context, url string, maxClients int) (string, error) {
	r.failed <- url
	return r.url, nil
}

// newFakeServer starts an httptest server that accepts one WebSocket
// connection, reads the initial config frame, replies SERVER_READY, and
// echoes every binary/JSON frame it receives onto recv. Grounded on the
// teacher's pkg/providers/tts/lokutor_test.go pattern of pairing
// httptest.NewServer with websocket.Accept + wsjson for a fake server.
func newFakeServer(t *testing.T, recv chan<- interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		var initial map[string]interface{}
		if err := wsjson.Read(r.Context(), conn, &initial); err != nil {
			return
		}
		recv <- initial

		if err := wsjson.Write(r.Context(), conn, map[string]interface{}{"status": "SERVER_READY"}); err != nil {
			return
		}

		for {
			typ, payload, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				recv <- append([]byte(nil), payload...)
				continue
			}
			var msg map[string]interface{}
			if jsonErr := json.Unmarshal(payload, &msg); jsonErr == nil {
				recv <- msg
			}
		}
	}))
}

func TestSessionReachesReadyAndStreamsAudio(t *testing.T) {
	recv := make(chan interface{}, 32)
	server := newFakeServer(t, recv)
	defer server.Close()

	registry := newFakeRegistry("ws://" + strings.TrimPrefix(server.URL, "http://"))

	s := New(context.Background(), Config{
		UID:        "conn-1",
		Platform:   orchestrator.PlatformGoogleMeet,
		MaxClients: 10,
		Mode:       ReconnectSimple,
	}, registry)
	defer s.Close(context.Background())

	waitForState(t, s, StateReady, time.Second)

	// First item off the wire is the initial config frame.
	initial := <-recv
	cfg, ok := initial.(map[string]interface{})
	if !ok {
		t.Fatalf("expected initial config map, got %T", initial)
	}
	if cfg["uid"] != "conn-1" {
		t.Fatalf("uid = %v, want conn-1", cfg["uid"])
	}

	s.PushAudio(orchestrator.AudioFrame{Samples: []float32{0, 0.5, -0.5}, EmittedAt: time.Now()})

	if !s.Handle().HasT0() {
		t.Fatalf("expected T0 to be set after first audio frame")
	}

	deadline := time.After(time.Second)
	sawMeta, sawBinary := false, false
	for !sawMeta || !sawBinary {
		select {
		case item := <-recv:
			switch v := item.(type) {
			case []byte:
				sawBinary = true
				if len(v) != 6 {
					t.Fatalf("expected 6 bytes (3 int16 samples), got %d", len(v))
				}
			case map[string]interface{}:
				if v["type"] == "audio_chunk_metadata" {
					sawMeta = true
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for audio frames (meta=%v binary=%v)", sawMeta, sawBinary)
		}
	}
}

func TestSessionDropsAudioBeforeReady(t *testing.T) {
	recv := make(chan interface{}, 32)
	server := newFakeServer(t, recv)
	defer server.Close()

	registry := newFakeRegistry("ws://" + strings.TrimPrefix(server.URL, "http://"))

	s := New(context.Background(), Config{UID: "conn-2", MaxClients: 10}, registry)
	defer s.Close(context.Background())

	// Push before the connect loop has had a chance to dial; must be dropped
	// silently rather than panicking or blocking.
	s.PushAudio(orchestrator.AudioFrame{Samples: []float32{1}})
	s.PushSpeakerEvent(orchestrator.SpeakerEvent{Type: orchestrator.SpeakerStart})

	if s.Handle().HasT0() {
		t.Fatalf("T0 must not be set before READY")
	}
}

func TestSessionCloseReleasesRegistrySlot(t *testing.T) {
	recv := make(chan interface{}, 32)
	server := newFakeServer(t, recv)
	defer server.Close()

	url := "ws://" + strings.TrimPrefix(server.URL, "http://")
	registry := newFakeRegistry(url)

	s := New(context.Background(), Config{UID: "conn-3", MaxClients: 10}, registry)
	waitForState(t, s, StateReady, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case released := <-registry.release:
		if released != url {
			t.Fatalf("released %q, want %q", released, url)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected Release to be called on Close")
	}

	if s.State() != StateClosed {
		t.Fatalf("state = %v, want closed", s.State())
	}
}

func waitForState(t *testing.T, s *Session, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never reached state %v (stuck at %v)", want, s.State())
}
