package provider

// googleMeetSelectors holds Google Meet's web-client DOM surface. Google
// Meet is the provider noted in spec.md §4.1/§9 whose voice-level element
// is inverted: the indicator is visible while silent and hidden while
// speaking, hence SpeakingIndicatorPolarity is false here and true for
// Teams.
var googleMeetSelectors = Selectors{
	NameInput:  `input[aria-label="Your name"]`,
	JoinButton: `button[jsname="Qx7uuf"]`, // "Ask to join" / "Join now"

	MuteMicButton: `div[aria-label^="Turn off microphone"]`,
	MuteCamButton: `div[aria-label^="Turn off camera"]`,

	WaitingRoomIndicators: []string{
		`span:has-text("Asking to be let in")`,
		`div:has-text("Waiting for the host")`,
	},
	AdmissionIndicator:  `div[aria-label="Leave call"]`,
	PreJoinTextSelector: `input[aria-label="Your name"]`,
	RejectionIndicators: []string{
		`div:has-text("You can't join this video call")`,
		`div:has-text("denied your request to join")`,
	},

	RemovalIndicators: []string{
		`div:has-text("You've been removed from the meeting")`,
		`div:has-text("Removed from the meeting")`,
	},

	PrimaryLeaveButton: `div[aria-label="Leave call"]`,

	ParticipantContainer:     `[data-participant-id]`,
	SpeakerIndicatorSelector: `div[class*="voice-level"]`,
	// Google Meet hides the voice-level indicator while speaking and shows
	// it while silent — the inverted polarity spec.md calls out explicitly.
	SpeakingIndicatorPolarity: false,
	SpeakingClassSubstrings:   []string{"speaking-animation"},
	NameSelectors:             []string{`[data-self-name]`, `span[jsname="YRi0gb"]`},
	IDAttributes:              []string{"data-participant-id"},
}
