// Package provider implements C1: one generic orchestrator.Provider driven
// entirely by a per-platform Selectors table, plus the Teams and Google Meet
// tables themselves.
//
// Grounded on the teacher's provider-as-strategy shape (cmd/agent/main.go's
// switch-on-env-var provider selection) generalized from LLM/STT/TTS vendor
// selection to meeting-platform selection; selectors are pure data per
// spec.md §4.1.
package provider

// Selectors is the pure-data description of one platform's DOM surface.
// Every operation in Generic (provider.go) is selector-table-driven; no
// platform-specific Go code exists beyond the two selector tables.
type Selectors struct {
	// Pre-join
	NameInput      string
	JoinButton     string
	MuteMicButton  string
	MuteCamButton  string

	// Admission
	WaitingRoomIndicators []string
	AdmissionIndicator    string // visible & enabled => admitted (e.g. the in-meeting Leave control)
	PreJoinTextSelector   string
	RejectionIndicators   []string

	// Removal
	RemovalIndicators []string

	// Leave
	PrimaryLeaveButton   string
	SecondaryLeaveButton string // confirmation, optional

	// Participants / speaker detection
	ParticipantContainer     string
	SpeakerIndicatorSelector string
	// SpeakingIndicatorPolarity resolves spec.md §9's "polarity per
	// provider" open question: true means the indicator is visible while
	// the participant speaks; false means it is visible while silent
	// (inverted, per the asymmetric provider noted in spec.md §4.1).
	SpeakingIndicatorPolarity bool
	SpeakingClassSubstrings   []string
	NameSelectors             []string
	IDAttributes              []string
}
