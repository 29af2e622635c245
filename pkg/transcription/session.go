// Package transcription implements the resilient transcription-server
// session (C4): a single WebSocket connection per bot run that streams
// audio and speaker-activity events to an external server obtained from the
// server registry (C5), with reconnection and server-ready gating.
//
// Grounded on the teacher's pkg/providers/tts.LokutorTTS (mutex-guarded
// *websocket.Conn, dial/read/write over github.com/coder/websocket) and on
// pkg/orchestrator/managed_stream.go's generation-counter idiom for
// discarding stale callbacks, here reused to discard stale reconnect
// attempts after Close.
package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/lokutor-ai/meetbot/pkg/audio"
	"github.com/lokutor-ai/meetbot/pkg/orchestrator"
)

// State is the connection lifecycle state from spec.md §4.4.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpenUnready
	StateReady
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpenUnready:
		return "open_unready"
	case StateReady:
		return "ready"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReconnectMode selects one of the two policies from spec.md §4.4.
type ReconnectMode int

const (
	// ReconnectSimple asks the registry for one candidate on close, retries
	// after 1s, and falls back to polling every 5s if none is available.
	ReconnectSimple ReconnectMode = iota
	// ReconnectStubborn never gives up: on any failure it deallocates the
	// failed URL, requests the next candidate, and backs off 1s forever
	// until the caller cancels.
	ReconnectStubborn
)

// Config configures one Session.
type Config struct {
	Platform    orchestrator.Platform
	UID         string
	Language    string
	Task        string
	Token       string
	MeetingID   string
	MeetingURL  string
	MaxClients  int
	OverrideURL string // WhisperLiveURL; bypasses the registry when set
	Mode        ReconnectMode
	Logger      orchestrator.Logger
}

func (c Config) task() string {
	if c.Task == "" {
		return "transcribe"
	}
	return c.Task
}

func (c Config) logger() orchestrator.Logger {
	if c.Logger == nil {
		return orchestrator.NoOpLogger{}
	}
	return c.Logger
}

// Session is one resilient WebSocket session to a transcription server. It
// satisfies orchestrator.TranscriptionSession.
type Session struct {
	cfg      Config
	registry orchestrator.RegistryClient

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	conn       *websocket.Conn
	state      atomic.Int32
	handle     orchestrator.SessionHandle
	serverURL  string
	generation uint64 // bumped on every Close; stale goroutines check and exit

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts a Session and its connect loop in the background. It never
// blocks waiting for a server: callers that need to know when the session
// becomes READY should poll State() or rely on PushAudio's drop-until-ready
// behavior, which is safe under spec.md's back-pressure contract.
func New(ctx context.Context, cfg Config, registry orchestrator.RegistryClient) *Session {
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		cfg:      cfg,
		registry: registry,
		ctx:      sctx,
		cancel:   cancel,
	}
	s.state.Store(int32(StateDisconnected))
	s.wg.Add(1)
	go s.connectLoop()
	return s
}

// NewFactory adapts New into an orchestrator.SessionFactory, reading the
// override URL and capacity bound from BotConfig and wiring the per-platform
// reconnect mode (stubborn for the providers that need to survive a long
// meeting, simple otherwise — see reconnectModeFor in cmd/agent).
func NewFactory(mode ReconnectMode) orchestrator.SessionFactory {
	return func(ctx context.Context, cfg orchestrator.BotConfig, registry orchestrator.RegistryClient, logger orchestrator.Logger) (orchestrator.TranscriptionSession, error) {
		s := New(ctx, Config{
			Platform:    cfg.Platform,
			UID:         cfg.ConnectionID,
			Language:    cfg.Language,
			Task:        cfg.Task,
			Token:       cfg.Token,
			MeetingID:   cfg.NativeMeetingID,
			MeetingURL:  cfg.MeetingURL,
			MaxClients:  cfg.MaxClients,
			OverrideURL: cfg.WhisperLiveURL,
			Mode:        mode,
			Logger:      logger,
		}, registry)
		return s, nil
	}
}

// State returns the current connection state.
func (s *Session) State() State { return State(s.state.Load()) }

// Handle returns a copy of the current SessionHandle (ID/ServerURL/T0).
func (s *Session) Handle() orchestrator.SessionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// PushAudio sends one frame if the session is READY; otherwise it is
// dropped per spec.md §4.4's send discipline. T0 is assigned on the first
// frame delivered after server-ready.
func (s *Session) PushAudio(frame orchestrator.AudioFrame) {
	if s.State() != StateReady {
		return
	}

	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return
	}
	if !s.handle.HasT0() {
		s.handle.T0 = frame.EmittedAt
		if s.handle.T0.IsZero() {
			s.handle.T0 = time.Now()
		}
		s.cfg.logger().Info("transcription session T0 set", "sessionID", s.handle.ID, "serverURL", s.handle.ServerURL)
	}
	s.mu.Unlock()

	meta := map[string]interface{}{
		"type":       "audio_chunk_metadata",
		"sampleCount": len(frame.Samples),
		"sampleRate": 16000,
	}
	metaCtx, cancel := context.WithTimeout(s.ctx, time.Second)
	_ = wsjson.Write(metaCtx, conn, meta)
	cancel()

	payload := audio.EncodePCM16(frame.Samples)
	writeCtx, cancel2 := context.WithTimeout(s.ctx, time.Second)
	if err := conn.Write(writeCtx, websocket.MessageBinary, payload); err != nil {
		s.cfg.logger().Warn("audio frame write failed", "error", err)
	}
	cancel2()
}

// PushSpeakerEvent sends a speaker_activity frame. Events are dropped (not
// queued) until T0 exists, per spec.md's invariant.
func (s *Session) PushSpeakerEvent(event orchestrator.SpeakerEvent) {
	if s.State() != StateReady {
		return
	}

	s.mu.Lock()
	conn := s.conn
	t0 := s.handle.T0
	s.mu.Unlock()

	if conn == nil || t0.IsZero() {
		return
	}

	relativeMs := time.Since(t0).Milliseconds()
	msg := map[string]interface{}{
		"type": "speaker_activity",
		"payload": map[string]interface{}{
			"event_type":                  string(event.Type),
			"participant_name":            event.ParticipantName,
			"participant_id_meet":         event.ParticipantID,
			"relative_client_timestamp_ms": relativeMs,
			"uid":                         s.cfg.UID,
			"token":                       s.cfg.Token,
			"platform":                    string(s.cfg.Platform),
			"meeting_id":                  s.cfg.MeetingID,
			"meeting_url":                 s.cfg.MeetingURL,
		},
	}

	writeCtx, cancel := context.WithTimeout(s.ctx, time.Second)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, msg); err != nil {
		s.cfg.logger().Warn("speaker event write failed", "error", err)
	}
}

// SendSessionControl best-effort sends a session_control frame whenever the
// socket is open (READY not required), per spec.md §4.4.
func (s *Session) SendSessionControl(ctx context.Context, event string) error {
	s.mu.Lock()
	conn := s.conn
	st := State(s.state.Load())
	s.mu.Unlock()

	if conn == nil || st == StateDisconnected || st == StateClosed {
		return fmt.Errorf("session_control %q: no open socket", event)
	}

	msg := map[string]interface{}{
		"type": "session_control",
		"payload": map[string]interface{}{
			"event":              event,
			"uid":                s.cfg.UID,
			"client_timestamp_ms": time.Now().UnixMilli(),
			"token":              s.cfg.Token,
			"platform":           string(s.cfg.Platform),
			"meeting_id":         s.cfg.MeetingID,
		},
	}
	return wsjson.Write(ctx, conn, msg)
}

// Close tears down the session: cancels the connect/read loops, closes the
// socket, and releases the registry slot on the last known server URL.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		atomic.AddUint64(&s.generation, 1)
		s.cancel()

		s.mu.Lock()
		conn := s.conn
		url := s.serverURL
		s.conn = nil
		s.mu.Unlock()

		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "bot exiting")
		}
		if url != "" && s.registry != nil {
			if rerr := s.registry.Release(ctx, url); rerr != nil {
				s.cfg.logger().Warn("registry release failed", "url", url, "error", rerr)
			}
		}
		s.setState(StateClosed)
	})
	s.wg.Wait()
	return err
}

// connectLoop drives DISCONNECTED -> CONNECTING -> OPEN_UNREADY -> READY and
// the reconnection policy selected by cfg.Mode.
func (s *Session) connectLoop() {
	defer s.wg.Done()

	myGeneration := atomic.LoadUint64(&s.generation)
	attempt := 0
	var lastURL string

	for {
		if s.ctx.Err() != nil {
			return
		}
		if atomic.LoadUint64(&s.generation) != myGeneration {
			return
		}

		url, err := s.pickServer(s.ctx, lastURL, attempt > 0)
		if err != nil {
			delay := s.retryDelay(attempt, false)
			s.cfg.logger().Warn("no transcription server available, retrying", "delay", delay, "error", err)
			if !s.sleep(delay) {
				return
			}
			attempt++
			continue
		}

		s.setState(StateConnecting)
		connectCtx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		conn, _, dialErr := websocket.Dial(connectCtx, url, nil)
		cancel()

		if dialErr != nil {
			s.cfg.logger().Warn("connect failed", "url", url, "error", dialErr)
			s.onFailure(url)
			lastURL = url
			delay := s.retryDelay(attempt, true)
			if !s.sleep(delay) {
				return
			}
			attempt++
			continue
		}

		attempt = 0
		lastURL = url
		s.mu.Lock()
		s.conn = conn
		s.serverURL = url
		s.handle = orchestrator.SessionHandle{ID: uuid.NewString(), ServerURL: url}
		s.mu.Unlock()

		s.setState(StateOpenUnready)
		s.sendInitialConfig(conn)

		s.readLoop(conn)

		if s.ctx.Err() != nil {
			return
		}
		// Socket closed (server DISCONNECT, abrupt close, or watchdog). Loop
		// around and reconnect per the selected policy.
		s.onFailure(url)
		if !s.sleep(s.retryDelay(attempt, true)) {
			return
		}
	}
}

func (s *Session) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// retryDelay implements the two reconnection policies from spec.md §4.4.
func (s *Session) retryDelay(attempt int, hadCandidate bool) time.Duration {
	if s.cfg.Mode == ReconnectStubborn {
		return time.Second
	}
	// Simple: first retry after 1s, then poll every 5s.
	if attempt == 0 {
		return time.Second
	}
	return 5 * time.Second
}

// onFailure applies the registry side-effects of a failed/closed connection:
// stubborn mode deallocates the URL outright; simple mode just lets the next
// allocate() re-rank it.
func (s *Session) onFailure(url string) {
	if url == "" || s.registry == nil {
		return
	}
	if s.cfg.Mode == ReconnectStubborn {
		if _, err := s.registry.Fail(s.ctx, url, s.cfg.MaxClients); err != nil {
			s.cfg.logger().Warn("registry fail() errored", "url", url, "error", err)
		}
		return
	}
	if err := s.registry.Release(s.ctx, url); err != nil {
		s.cfg.logger().Warn("registry release on failure errored", "url", url, "error", err)
	}
}

func (s *Session) pickServer(ctx context.Context, _ string, _ bool) (string, error) {
	if s.cfg.OverrideURL != "" {
		return s.cfg.OverrideURL, nil
	}
	if s.registry == nil {
		return "", orchestrator.ErrNoRegistryCandidate
	}
	return s.registry.Allocate(ctx, s.cfg.MaxClients)
}

func (s *Session) sendInitialConfig(conn *websocket.Conn) {
	msg := map[string]interface{}{
		"uid":      s.cfg.UID,
		"language": nullableString(s.cfg.Language),
		"task":     s.cfg.task(),
		"model":    nil,
		"use_vad":  true,
		"platform": string(s.cfg.Platform),
		"token":    s.cfg.Token,
		"meeting_id":  s.cfg.MeetingID,
		"meeting_url": nullableString(s.cfg.MeetingURL),
	}
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		s.cfg.logger().Warn("initial config write failed", "error", err)
	}
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

// inboundMessage is the superset of discriminators a transcription server
// may send, per spec.md §6.
type inboundMessage struct {
	Status    string `json:"status"`
	Language  string `json:"language"`
	Message   string `json:"message"`
	Segments  []json.RawMessage `json:"segments,omitempty"`
}

// readLoop consumes server messages until the socket closes, driving
// OPEN_UNREADY -> READY on SERVER_READY and exiting on DISCONNECT/close.
func (s *Session) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.Read(s.ctx)
		if err != nil {
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()
			if s.State() != StateClosing && s.State() != StateClosed {
				s.setState(StateDisconnected)
			}
			return
		}

		var msg inboundMessage
		if jsonErr := json.Unmarshal(payload, &msg); jsonErr != nil {
			continue
		}

		switch {
		case msg.Status == "SERVER_READY":
			s.setState(StateReady)
			s.cfg.logger().Info("transcription server ready", "serverURL", s.serverURL)
		case msg.Status == "WAIT":
			s.cfg.logger().Debug("transcription server waiting", "serverURL", s.serverURL)
		case msg.Status == "ERROR":
			s.cfg.logger().Warn("transcription server error", "serverURL", s.serverURL)
		case msg.Message == "DISCONNECT":
			_ = conn.Close(websocket.StatusNormalClosure, "server requested disconnect")
			s.mu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.mu.Unlock()
			s.setState(StateDisconnected)
			return
		}
	}
}
