package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lokutor-ai/meetbot/pkg/browser"
	"github.com/lokutor-ai/meetbot/pkg/orchestrator"
)

// Generic implements orchestrator.Provider entirely off a Selectors table;
// Teams and Google Meet differ only in which table they carry (NewTeams,
// NewGoogleMeet below). One instance is meant to drive exactly one bot run.
type Generic struct {
	name      string
	platform  orchestrator.Platform
	selectors Selectors

	left atomic.Bool
}

// NewTeams returns the C1 strategy for Microsoft Teams.
func NewTeams() *Generic {
	return &Generic{name: "teams", platform: orchestrator.PlatformTeams, selectors: teamsSelectors}
}

// NewGoogleMeet returns the C1 strategy for Google Meet.
func NewGoogleMeet() *Generic {
	return &Generic{name: "google_meet", platform: orchestrator.PlatformGoogleMeet, selectors: googleMeetSelectors}
}

func (g *Generic) Name() string                    { return g.name }
func (g *Generic) Platform() orchestrator.Platform { return g.platform }

// Join navigates to the meeting URL and drives the pre-join UX: set display
// name, mute mic/camera, submit.
func (g *Generic) Join(ctx context.Context, page orchestrator.BrowserPage, cfg orchestrator.BotConfig) error {
	if err := page.Navigate(ctx, cfg.MeetingURL); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}

	if g.selectors.NameInput != "" {
		if err := page.WaitVisible(ctx, g.selectors.NameInput, 20*time.Second); err != nil {
			return fmt.Errorf("name input never appeared: %w", err)
		}
		script := fmt.Sprintf(`(function(){
			var el = document.querySelector(%q);
			if (el) { el.value = %q; el.dispatchEvent(new Event('input', {bubbles: true})); }
			return true;
		})()`, g.selectors.NameInput, cfg.BotName)
		if err := page.Evaluate(ctx, script, nil); err != nil {
			return fmt.Errorf("set display name: %w", err)
		}
	}

	if g.selectors.MuteMicButton != "" {
		_ = page.Click(ctx, g.selectors.MuteMicButton)
	}
	if g.selectors.MuteCamButton != "" {
		_ = page.Click(ctx, g.selectors.MuteCamButton)
	}

	if g.selectors.JoinButton != "" {
		if err := page.WaitVisible(ctx, g.selectors.JoinButton, 20*time.Second); err != nil {
			return fmt.Errorf("join button never appeared: %w", err)
		}
		if err := page.Click(ctx, g.selectors.JoinButton); err != nil {
			return fmt.Errorf("click join: %w", err)
		}
	}

	return nil
}

// WaitForAdmission polls at the cadence spec.md §4.1 requires: ≤2s while in
// lobby, checking rejection before admission on every tick.
func (g *Generic) WaitForAdmission(ctx context.Context, page orchestrator.BrowserPage, timeout time.Duration, cfg orchestrator.BotConfig) (orchestrator.AdmissionResult, error) {
	if timeout <= 0 {
		admitted, err := g.checkAdmitted(ctx, page)
		if err != nil || admitted {
			return orchestrator.AdmissionResult{Admitted: admitted}, err
		}
		return orchestrator.AdmissionResult{Admitted: false}, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		rejected, reason, err := g.checkRejected(ctx, page)
		if err != nil {
			return orchestrator.AdmissionResult{}, err
		}
		if rejected {
			return orchestrator.AdmissionResult{Rejected: true, Reason: reason}, nil
		}

		admitted, err := g.checkAdmitted(ctx, page)
		if err != nil {
			return orchestrator.AdmissionResult{}, err
		}
		if admitted {
			return orchestrator.AdmissionResult{Admitted: true}, nil
		}

		if time.Now().After(deadline) {
			return orchestrator.AdmissionResult{Admitted: false}, nil
		}

		select {
		case <-ctx.Done():
			return orchestrator.AdmissionResult{}, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (g *Generic) checkAdmitted(ctx context.Context, page orchestrator.BrowserPage) (bool, error) {
	if g.selectors.AdmissionIndicator == "" {
		return false, nil
	}
	visible, err := page.ExistsVisible(ctx, g.selectors.AdmissionIndicator)
	if err != nil || !visible {
		return false, err
	}
	if g.selectors.PreJoinTextSelector != "" {
		stillPreJoin, err := page.ExistsVisible(ctx, g.selectors.PreJoinTextSelector)
		if err != nil {
			return false, err
		}
		if stillPreJoin {
			return false, nil
		}
	}
	return true, nil
}

func (g *Generic) checkRejected(ctx context.Context, page orchestrator.BrowserPage) (bool, string, error) {
	for _, sel := range g.selectors.RejectionIndicators {
		visible, err := page.ExistsVisible(ctx, sel)
		if err != nil {
			return false, "", err
		}
		if visible {
			return true, g.platform.ReasonPrefix() + "ADMISSION_REJECTED", nil
		}
	}
	return false, "", nil
}

// Prepare installs the in-page leave action idempotently and stashes the
// selector table on window, where that leave action reads its buttons.
func (g *Generic) Prepare(ctx context.Context, page orchestrator.BrowserPage, cfg orchestrator.BotConfig) error {
	selectorsJSON, err := json.Marshal(g.selectors)
	if err != nil {
		return fmt.Errorf("marshal selectors: %w", err)
	}
	script := fmt.Sprintf(`(function(){
		if (window.__meetbotPrepared) return true;
		window.__meetbotPrepared = true;
		window.__meetbotSelectors = %s;
		window.__meetbotPerformLeave = function(){
			var primary = document.querySelector(window.__meetbotSelectors.PrimaryLeaveButton);
			if (primary) primary.click();
			var secondary = window.__meetbotSelectors.SecondaryLeaveButton;
			if (secondary) {
				setTimeout(function(){
					var el = document.querySelector(secondary);
					if (el) el.click();
				}, 500);
			}
			return true;
		};
		return true;
	})()`, string(selectorsJSON))
	return page.Evaluate(ctx, script, nil)
}

// StartRecording wires the capture pipeline (C2/C3) and the alone-timeout
// monitor into the page, bridges their output to sink, and blocks until the
// in-page pipeline resolves normally or with a tagged reason.
func (g *Generic) StartRecording(ctx context.Context, page orchestrator.BrowserPage, cfg orchestrator.BotConfig, sink orchestrator.AudioSpeakerSink) (orchestrator.ExitSignal, error) {
	resolveCh := make(chan string, 1)
	var resolveOnce sync.Once

	if err := page.ExposeFunction(ctx, "__meetbot_pushAudio", func(payload string) {
		if sink == nil {
			return
		}
		var msg struct {
			Samples   []float32 `json:"samples"`
			EmittedAt int64     `json:"emittedAt"`
		}
		if json.Unmarshal([]byte(payload), &msg) != nil {
			return
		}
		sink.PushAudio(orchestrator.AudioFrame{Samples: msg.Samples, EmittedAt: time.UnixMilli(msg.EmittedAt)})
	}); err != nil {
		return orchestrator.ExitSignal{}, fmt.Errorf("expose pushAudio: %w", err)
	}

	if err := page.ExposeFunction(ctx, "__meetbot_pushSpeaker", func(payload string) {
		if sink == nil {
			return
		}
		var msg struct {
			EventType       string `json:"eventType"`
			ParticipantID   string `json:"participantId"`
			ParticipantName string `json:"participantName"`
		}
		if json.Unmarshal([]byte(payload), &msg) != nil {
			return
		}
		sink.PushSpeakerEvent(orchestrator.SpeakerEvent{
			Type:            orchestrator.SpeakerEventType(msg.EventType),
			ParticipantID:   msg.ParticipantID,
			ParticipantName: msg.ParticipantName,
		})
	}); err != nil {
		return orchestrator.ExitSignal{}, fmt.Errorf("expose pushSpeaker: %w", err)
	}

	if err := page.ExposeFunction(ctx, "__meetbot_resolve", func(payload string) {
		resolveOnce.Do(func() { resolveCh <- payload })
	}); err != nil {
		return orchestrator.ExitSignal{}, fmt.Errorf("expose resolve: %w", err)
	}

	for _, script := range []string{browser.AudioPipelineJS, browser.SpeakerDetectorJS, browser.AloneMonitorJS} {
		if err := page.Evaluate(ctx, script, nil); err != nil {
			return orchestrator.ExitSignal{}, fmt.Errorf("inject capture pipeline: %w", err)
		}
	}

	if err := page.Evaluate(ctx, "window.__meetbotStartAudioPipeline()", nil); err != nil {
		return orchestrator.ExitSignal{}, fmt.Errorf("start audio pipeline: %w", err)
	}

	speakerCfg, _ := json.Marshal(map[string]interface{}{
		"participantContainerSelector": g.selectors.ParticipantContainer,
		"speakerIndicatorSelector":     g.selectors.SpeakerIndicatorSelector,
		"speakerIndicatorPolarity":     g.selectors.SpeakingIndicatorPolarity,
		"speakingClassSubstrings":      g.selectors.SpeakingClassSubstrings,
		"nameSelectors":                g.selectors.NameSelectors,
		"idAttributes":                 g.selectors.IDAttributes,
	})
	if err := page.Evaluate(ctx, fmt.Sprintf("window.__meetbotStartSpeakerDetector(%q)", string(speakerCfg)), nil); err != nil {
		return orchestrator.ExitSignal{}, fmt.Errorf("start speaker detector: %w", err)
	}

	aloneCfg, _ := json.Marshal(map[string]interface{}{
		"startupAloneMs": cfg.StartupAloneTimeout().Milliseconds(),
		"everyoneLeftMs": cfg.EveryoneLeftTimeout().Milliseconds(),
		"reasonPrefix":   g.platform.ReasonPrefix(),
	})
	if err := page.Evaluate(ctx, fmt.Sprintf("window.__meetbotStartAloneMonitor(%q)", string(aloneCfg)), nil); err != nil {
		return orchestrator.ExitSignal{}, fmt.Errorf("start alone monitor: %w", err)
	}

	select {
	case reason := <-resolveCh:
		return orchestrator.ExitSignal{Reason: reason}, nil
	case <-ctx.Done():
		return orchestrator.ExitSignal{}, ctx.Err()
	}
}

// StartRemovalMonitor polls RemovalIndicators at ~1.5s cadence, per spec.md
// §4.7, invoking onRemoval at most once.
func (g *Generic) StartRemovalMonitor(ctx context.Context, page orchestrator.BrowserPage, onRemoval func()) (func(), error) {
	monitorCtx, cancel := context.WithCancel(ctx)
	var fired atomic.Bool

	go func() {
		ticker := time.NewTicker(1500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				for _, sel := range g.selectors.RemovalIndicators {
					visible, err := page.ExistsVisible(monitorCtx, sel)
					if err != nil || !visible {
						continue
					}
					if fired.CompareAndSwap(false, true) {
						onRemoval()
					}
					return
				}
			}
		}
	}()

	return cancel, nil
}

// Leave runs the primary/secondary click sequence at most once per Generic
// instance, per spec.md §8's round-trip property.
func (g *Generic) Leave(ctx context.Context, page orchestrator.BrowserPage, cfg orchestrator.BotConfig, reason string) (bool, error) {
	if !g.left.CompareAndSwap(false, true) {
		return false, nil
	}
	if g.selectors.PrimaryLeaveButton == "" {
		return false, nil
	}

	visible, err := page.ExistsVisible(ctx, g.selectors.PrimaryLeaveButton)
	if err != nil || !visible {
		return false, err
	}
	if err := page.Click(ctx, g.selectors.PrimaryLeaveButton); err != nil {
		return false, err
	}

	if g.selectors.SecondaryLeaveButton != "" {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return true, nil
		}
		if visible, _ := page.ExistsVisible(ctx, g.selectors.SecondaryLeaveButton); visible {
			_ = page.Click(ctx, g.selectors.SecondaryLeaveButton)
		}
	}

	return true, nil
}

var _ orchestrator.Provider = (*Generic)(nil)
