package provider

// teamsSelectors holds Microsoft Teams' web-client DOM surface. Probe
// strings target the public Teams web meeting client; real deployments
// should expect these to drift with UI releases, which is exactly why
// spec.md §4.1 keeps selectors as pure data instead of inline logic.
var teamsSelectors = Selectors{
	NameInput:     `input[data-tid="prejoin-display-name-input"]`,
	JoinButton:    `button[data-tid="prejoin-join-button"]`,
	MuteMicButton: `button[data-tid="toggle-mute"][aria-pressed="false"]`,
	MuteCamButton: `button[data-tid="toggle-video"][aria-pressed="false"]`,

	WaitingRoomIndicators: []string{
		`[data-tid="lobby-screen"]`,
		`div:has-text("Someone in the meeting should let you in soon")`,
	},
	AdmissionIndicator:  `button[data-tid="hangup-main-btn"]`,
	PreJoinTextSelector: `[data-tid="prejoin-display-name-input"]`,
	RejectionIndicators: []string{
		`[data-tid="call-declined-screen"]`,
		`div:has-text("You weren't admitted to the meeting")`,
	},

	RemovalIndicators: []string{
		`div:has-text("You were removed from this meeting")`,
		`[data-tid="removed-from-meeting-screen"]`,
	},

	PrimaryLeaveButton: `button[data-tid="hangup-main-btn"]`,

	ParticipantContainer:     `[data-tid="participantsInCall-row"]`,
	SpeakerIndicatorSelector: `[data-tid="voice-level-stream-outline"]`,
	// Teams shows the voice-level outline while the participant is
	// speaking: visible == speaking (normal polarity).
	SpeakingIndicatorPolarity: true,
	SpeakingClassSubstrings:   []string{"video-speaking-indicator"},
	NameSelectors:             []string{`[data-tid="participantName"]`, `.ui-chat__participantname`},
	IDAttributes:              []string{"data-tid", "data-cid"},
}
