package orchestrator

import "errors"

var (
	// ErrMissingMeetingURL maps to ExitOutcome missing_meeting_url.
	ErrMissingMeetingURL = errors.New("bot config has no meeting URL")

	// ErrJoinFailed maps to ExitOutcome join_meeting_error.
	ErrJoinFailed = errors.New("failed to join meeting")

	// ErrAdmissionTimeout is attached as Result.Detail by Controller.Run when
	// the bot is neither admitted nor rejected before the deadline.
	ErrAdmissionTimeout = errors.New("admission wait timed out")

	// ErrAdmissionRejected is attached as Result.Detail by Controller.Run
	// when the host rejects the bot from the lobby.
	ErrAdmissionRejected = errors.New("admission rejected by host")

	// ErrNilProvider guards against a missing platform strategy.
	ErrNilProvider = errors.New("required provider is nil")

	// ErrNoRegistryCandidate is surfaced by the registry client when no
	// server qualifies for allocation; C4 treats it as a retry signal, never
	// a bot failure.
	ErrNoRegistryCandidate = errors.New("no transcription server available")
)
