package orchestrator

import (
	"context"
	"time"
)

// BrowserPage is the thin interface the controller and provider strategies
// depend on. The production implementation (pkg/browser) wraps chromedp; a
// fake implementation drives the controller's unit tests without a real
// browser, per SPEC_FULL.md §4.1.
type BrowserPage interface {
	// Navigate loads the given URL.
	Navigate(ctx context.Context, url string) error
	// Evaluate runs JS and decodes the result into out (nil to discard).
	Evaluate(ctx context.Context, script string, out interface{}) error
	// WaitVisible blocks until selector is visible, or ctx/timeout expires.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// ExistsVisible reports whether selector currently resolves to a
	// visible, non-disabled element, without blocking.
	ExistsVisible(ctx context.Context, selector string) (bool, error)
	// TextContent returns the trimmed text content of the first element
	// matching selector, or "" if not found.
	TextContent(ctx context.Context, selector string) (string, error)
	// ExposeFunction installs a one-way binding callable from page JS as
	// window.<name>(payloadString). Bindings are fire-and-forget, mirroring
	// the CDP Runtime.addBinding primitive the production implementation is
	// built on: the page never awaits a reply, which is why C2's delegate
	// and C3's event emission can stay non-blocking.
	ExposeFunction(ctx context.Context, name string, handler func(payload string)) error
	// Close tears down the page/browser session.
	Close(ctx context.Context) error
}

// AdmissionResult is the outcome of a single WaitForAdmission poll.
type AdmissionResult struct {
	Admitted bool
	Rejected bool
	Reason   string
}

// ExitSignal is what StartRecording's in-page pipeline resolves or rejects
// with: either a nil error (normal completion) or a tagged reason such as
// "<PREFIX>BOT_REMOVED_BY_ADMIN", "<PREFIX>LEFT_ALONE_TIMEOUT", or
// "<PREFIX>STARTUP_ALONE_TIMEOUT".
type ExitSignal struct {
	Reason string // empty means normal completion
}

// Provider is the per-platform strategy consumed by the Controller (C6).
// Implementations are pure orchestration over BrowserPage plus a selector
// table; they never import a browser-automation library directly.
type Provider interface {
	Name() string
	Platform() Platform

	Join(ctx context.Context, page BrowserPage, cfg BotConfig) error
	WaitForAdmission(ctx context.Context, page BrowserPage, timeout time.Duration, cfg BotConfig) (AdmissionResult, error)
	Prepare(ctx context.Context, page BrowserPage, cfg BotConfig) error
	StartRecording(ctx context.Context, page BrowserPage, cfg BotConfig, sink AudioSpeakerSink) (ExitSignal, error)
	StartRemovalMonitor(ctx context.Context, page BrowserPage, onRemoval func()) (stop func(), err error)
	Leave(ctx context.Context, page BrowserPage, cfg BotConfig, reason string) (bool, error)
}

// AudioSpeakerSink receives PCM frames and speaker events forwarded out of
// the in-page capture pipeline (C2/C3), destined for the transcription
// session (C4). Implemented by pkg/transcription.Session.
type AudioSpeakerSink interface {
	PushAudio(frame AudioFrame)
	PushSpeakerEvent(event SpeakerEvent)
}
