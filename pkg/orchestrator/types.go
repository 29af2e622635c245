// Package orchestrator implements the cross-platform meeting flow controller
// (C6), its monitors (C7), and the data model shared by the rest of the bot.
package orchestrator

import (
	"strings"
	"time"
)

// Logger is the structured logging interface every component is handed.
// Mirrors the shape used throughout the rest of the bot so call sites never
// need to know whether they're talking to zap, a test double, or nothing.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything. Used as the default when no logger is
// injected and in tests that don't care about log output.
type NoOpLogger struct{}

func (NoOpLogger) Debug(msg string, args ...interface{}) {}
func (NoOpLogger) Info(msg string, args ...interface{})  {}
func (NoOpLogger) Warn(msg string, args ...interface{})  {}
func (NoOpLogger) Error(msg string, args ...interface{}) {}

// Platform identifies a video-conferencing provider.
type Platform string

const (
	PlatformGoogleMeet Platform = "google_meet"
	PlatformTeams      Platform = "teams"
)

// ReasonPrefix returns the uppercased platform tag used as a prefix for
// removal/monitor reason tokens sent to the transcription server
// (e.g. "TEAMS_BOT_REMOVED_BY_ADMIN").
func (p Platform) ReasonPrefix() string {
	switch p {
	case PlatformGoogleMeet:
		return "GOOGLE_MEET_"
	case PlatformTeams:
		return "TEAMS_"
	default:
		return strings.ToUpper(string(p)) + "_"
	}
}

// AutomaticLeave bundles the three admission/alone timeouts, all in
// milliseconds on the wire.
type AutomaticLeave struct {
	WaitingRoomTimeoutMs  int64 `json:"waitingRoomTimeout"`
	NoOneJoinedTimeoutMs  int64 `json:"noOneJoinedTimeout"`
	EveryoneLeftTimeoutMs int64 `json:"everyoneLeftTimeout"`
}

// BotConfig is the immutable-after-start configuration for a single bot run.
type BotConfig struct {
	Platform              Platform       `json:"platform"`
	MeetingURL            string         `json:"meetingUrl"`
	BotName               string         `json:"botName"`
	ConnectionID          string         `json:"connectionId"`
	NativeMeetingID       string         `json:"nativeMeetingId"`
	Token                 string         `json:"token"`
	Language              string         `json:"language,omitempty"`
	Task                  string         `json:"task,omitempty"`
	AutomaticLeave        AutomaticLeave `json:"automaticLeave"`
	RedisURL              string         `json:"redisUrl"`
	BotManagerCallbackURL string         `json:"botManagerCallbackUrl"`
	ContainerName         string         `json:"container_name"`

	// WhisperLiveURL overrides server-registry allocation with a fixed
	// transcription-server URL when set (env WHISPER_LIVE_URL).
	WhisperLiveURL string `json:"-"`
	// MaxClients is the per-server capacity bound (env WL_MAX_CLIENTS).
	MaxClients int `json:"-"`
}

// WaitingRoomTimeout returns the admission deadline, defaulting to 5 minutes
// per spec.md §5 when unset.
func (c BotConfig) WaitingRoomTimeout() time.Duration {
	if c.AutomaticLeave.WaitingRoomTimeoutMs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.AutomaticLeave.WaitingRoomTimeoutMs) * time.Millisecond
}

// StartupAloneTimeout returns the startup-alone deadline, folding in
// NoOneJoinedTimeoutMs per the Open Question resolution in DESIGN.md: the
// two config knobs (automaticLeave.noOneJoinedTimeout and the 20-minute
// provider default) both feed the same countdown rather than racing two
// independent timers.
func (c BotConfig) StartupAloneTimeout() time.Duration {
	if c.AutomaticLeave.NoOneJoinedTimeoutMs > 0 {
		return time.Duration(c.AutomaticLeave.NoOneJoinedTimeoutMs) * time.Millisecond
	}
	return 20 * time.Minute
}

// EveryoneLeftTimeout returns the alone-after-co-participant deadline,
// defaulting to 10s per spec.md §4.7.
func (c BotConfig) EveryoneLeftTimeout() time.Duration {
	if c.AutomaticLeave.EveryoneLeftTimeoutMs > 0 {
		return time.Duration(c.AutomaticLeave.EveryoneLeftTimeoutMs) * time.Millisecond
	}
	return 10 * time.Second
}

// SessionHandle identifies one transcription-server WebSocket session. A
// fresh handle is minted on every successful connect (initial or reconnect).
type SessionHandle struct {
	ID        string
	ServerURL string
	T0        time.Time // zero until the first post-ready audio frame
}

// HasT0 reports whether T0 has been assigned yet.
func (h SessionHandle) HasT0() bool { return !h.T0.IsZero() }

// AudioFrame is one chunk of mono 16kHz audio produced by the browser
// capture pipeline (C2).
type AudioFrame struct {
	Samples   []float32
	EmittedAt time.Time
}

// SpeakerEventType distinguishes the two speaker-activity transitions.
type SpeakerEventType string

const (
	SpeakerStart SpeakerEventType = "SPEAKER_START"
	SpeakerEnd   SpeakerEventType = "SPEAKER_END"
)

// SpeakerEvent is a single speaking-state transition observed by C3,
// reported relative to the owning session's T0.
type SpeakerEvent struct {
	Type            SpeakerEventType
	ParticipantName string
	ParticipantID   string
	RelativeMs      int64
}

// ParticipantState is the logical speaking state of a tracked participant.
type ParticipantState string

const (
	ParticipantSpeaking ParticipantState = "speaking"
	ParticipantSilent   ParticipantState = "silent"
)

// ParticipantRecord tracks one participant's detector state across the life
// of its DOM node.
type ParticipantRecord struct {
	ID       string
	Name     string
	State    ParticipantState
	LastSeen time.Time
}

// ExitOutcome is the single tagged reason a bot run terminates with.
type ExitOutcome string

const (
	OutcomeAdmissionRejected   ExitOutcome = "admission_rejected_by_admin"
	OutcomeAdmissionTimeout    ExitOutcome = "admission_timeout"
	OutcomeRemovedByAdmin      ExitOutcome = "removed_by_admin"
	OutcomeLeftAloneTimeout    ExitOutcome = "left_alone_timeout"
	OutcomeStartupAloneTimeout ExitOutcome = "startup_alone_timeout"
	OutcomeNormalCompletion    ExitOutcome = "normal_completion"
	OutcomeStopRequestedPre    ExitOutcome = "stop_requested_pre_admission"
	OutcomeMissingMeetingURL   ExitOutcome = "missing_meeting_url"
	OutcomeJoinMeetingError    ExitOutcome = "join_meeting_error"
	OutcomePostJoinSetupError  ExitOutcome = "post_join_setup_error"
	OutcomeTeamsError          ExitOutcome = "teams_error"
	OutcomeGoogleMeetError     ExitOutcome = "google_meet_error"
)

// benignOutcomes exit with code 0; everything else exits 1.
var benignOutcomes = map[ExitOutcome]bool{
	OutcomeAdmissionRejected:   true,
	OutcomeAdmissionTimeout:    true,
	OutcomeRemovedByAdmin:      true,
	OutcomeLeftAloneTimeout:    true,
	OutcomeStartupAloneTimeout: true,
	OutcomeNormalCompletion:    true,
	OutcomeStopRequestedPre:    true,
}

// Code maps the outcome to a process exit code per spec.md §6.
func (o ExitOutcome) Code() int {
	if benignOutcomes[o] {
		return 0
	}
	return 1
}

func (o ExitOutcome) String() string { return string(o) }

// ErrorDetail carries optional diagnostic context attached to an ExitOutcome
// for the final /exited callback.
type ErrorDetail struct {
	Message   string
	Name      string
	Stack     string
	Context   string
	Platform  Platform
	Timestamp time.Time
}

// Result is the terminal outcome of a bot run, as produced by Controller.Run.
type Result struct {
	Outcome ExitOutcome
	Detail  *ErrorDetail
}
