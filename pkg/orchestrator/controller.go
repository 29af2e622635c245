package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Controller is the meeting flow controller (C6): a single-threaded
// orchestrator per bot run that composes the provider strategy, the
// transcription session, the registry, the control channel and the
// lifecycle callback client, and converges on exactly one ExitOutcome.
//
// Modeled on the teacher's Orchestrator/ManagedStream split: Controller
// holds its collaborators the way Orchestrator holds stt/llm/tts/vad/logger,
// and Run plays the role of the managed stream's event loop, racing
// monitor-pushed signals into a one-shot sink.
type Controller struct {
	Provider  Provider
	Page      BrowserPage
	Config    BotConfig
	Registry  RegistryClient
	Callbacks CallbackClient
	Control   ControlChannel
	Logger    Logger
	NewSession SessionFactory

	stopRequested atomic.Bool
	recording     atomic.Bool
	leaveOnce     sync.Once
}

func (c *Controller) logger() Logger {
	if c.Logger == nil {
		return NoOpLogger{}
	}
	return c.Logger
}

// Run executes the full meeting lifecycle and returns the single Result for
// this bot run. It never panics on collaborator errors: every external call
// past config validation is captured into the outcome table of spec.md §4.6.
func (c *Controller) Run(ctx context.Context) Result {
	log := c.logger()

	// Every return below funnels through runGracefulLeave so the manager
	// always sees exactly one /exited callback per spec.md §7, even on the
	// earliest exit paths where no session or removal monitor ever started.
	if c.Config.MeetingURL == "" {
		result := Result{Outcome: OutcomeMissingMeetingURL, Detail: detailFor(c.Config, ErrMissingMeetingURL)}
		c.runGracefulLeave(ctx, nil, result)
		return result
	}

	if c.Provider == nil {
		result := Result{Outcome: OutcomeJoinMeetingError, Detail: detailFor(c.Config, ErrNilProvider)}
		c.runGracefulLeave(ctx, nil, result)
		return result
	}

	c.fireCallback(ctx, "joining")

	if c.Control != nil {
		cmds, err := c.Control.Subscribe(ctx, c.Config.ConnectionID)
		if err != nil {
			log.Warn("control channel subscribe failed", "error", err)
		} else {
			go c.watchControl(ctx, cmds)
		}
	}

	if err := c.Provider.Join(ctx, c.Page, c.Config); err != nil {
		result := Result{Outcome: OutcomeJoinMeetingError, Detail: detailFor(c.Config, fmt.Errorf("%w: %v", ErrJoinFailed, err))}
		c.runGracefulLeave(ctx, nil, result)
		return result
	}

	if c.stopRequested.Load() {
		result := Result{Outcome: OutcomeStopRequestedPre}
		c.runGracefulLeave(ctx, nil, result)
		return result
	}

	admission, prepErr := c.raceAdmission(ctx)
	if prepErr != nil {
		log.Warn("prepare failed", "error", prepErr)
	}

	if admission.Rejected {
		result := Result{Outcome: OutcomeAdmissionRejected, Detail: detailFor(c.Config, ErrAdmissionRejected)}
		c.runGracefulLeave(ctx, nil, result)
		return result
	}
	if !admission.Admitted {
		// Best-effort cancel of the outstanding join request.
		_, _ = c.Provider.Leave(ctx, c.Page, c.Config, string(OutcomeAdmissionTimeout))
		result := Result{Outcome: OutcomeAdmissionTimeout, Detail: detailFor(c.Config, ErrAdmissionTimeout)}
		c.runGracefulLeave(ctx, nil, result)
		return result
	}

	c.fireCallback(ctx, "active")
	c.recording.Store(true)

	removalCh := make(chan struct{}, 1)
	var removalOnce sync.Once
	stopRemoval, err := c.Provider.StartRemovalMonitor(ctx, c.Page, func() {
		removalOnce.Do(func() { removalCh <- struct{}{} })
	})
	if err != nil {
		log.Warn("removal monitor failed to start", "error", err)
		stopRemoval = func() {}
	}
	defer stopRemoval()

	var session TranscriptionSession
	if c.NewSession != nil {
		session, err = c.NewSession(ctx, c.Config, c.Registry, log)
		if err != nil {
			log.Warn("transcription session init failed", "error", err)
		}
	}

	outcome, detail := c.raceRecording(ctx, session, removalCh)
	result := Result{Outcome: outcome, Detail: detail}

	c.runGracefulLeave(ctx, session, result)

	return result
}

// raceAdmission runs Prepare and WaitForAdmission concurrently, per spec.md
// §4.6 step 4: prepare installs the in-page leave action while the
// controller polls for admission. Prepare's error is non-fatal.
func (c *Controller) raceAdmission(ctx context.Context) (AdmissionResult, error) {
	var prepErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		prepErr = c.Provider.Prepare(ctx, c.Page, c.Config)
	}()

	c.fireCallback(ctx, "awaiting_admission")
	admission, err := c.Provider.WaitForAdmission(ctx, c.Page, c.Config.WaitingRoomTimeout(), c.Config)
	if err != nil {
		admission = AdmissionResult{Admitted: false}
	}

	wg.Wait()
	return admission, prepErr
}

// raceRecording races StartRecording against the removal-monitor signal, per
// spec.md §4.6 step 7. Whichever fires first determines the outcome; the
// other is ignored.
func (c *Controller) raceRecording(ctx context.Context, session TranscriptionSession, removalCh <-chan struct{}) (ExitOutcome, *ErrorDetail) {
	recordCh := make(chan ExitSignal, 1)
	errCh := make(chan error, 1)

	go func() {
		var sink AudioSpeakerSink
		if session != nil {
			sink = session
		}
		sig, err := c.Provider.StartRecording(ctx, c.Page, c.Config, sink)
		if err != nil {
			errCh <- err
			return
		}
		recordCh <- sig
	}()

	select {
	case <-removalCh:
		return OutcomeRemovedByAdmin, nil
	case sig := <-recordCh:
		if sig.Reason == "" {
			return OutcomeNormalCompletion, nil
		}
		return classifyExitReason(c.Provider.Platform(), sig.Reason)
	case err := <-errCh:
		return OutcomePostJoinSetupError, detailFor(c.Config, err)
	}
}

// classifyExitReason maps a tagged in-page rejection reason to an
// ExitOutcome per spec.md §4.6 step 7. A reason that carries the platform's
// prefix but isn't one of the three named timeout/removal tokens is an
// in-page exception specific to that provider's UI, surfaced as the
// platform-specific *_error outcome from spec.md §3 rather than the generic
// post_join_setup_error.
func classifyExitReason(platform Platform, reason string) (ExitOutcome, *ErrorDetail) {
	prefix := platform.ReasonPrefix()
	switch reason {
	case prefix + "BOT_REMOVED_BY_ADMIN":
		return OutcomeRemovedByAdmin, nil
	case prefix + "LEFT_ALONE_TIMEOUT":
		return OutcomeLeftAloneTimeout, nil
	case prefix + "STARTUP_ALONE_TIMEOUT":
		return OutcomeStartupAloneTimeout, nil
	}

	detail := &ErrorDetail{Message: reason, Platform: platform, Timestamp: time.Now()}
	if strings.HasPrefix(reason, prefix) {
		switch platform {
		case PlatformTeams:
			return OutcomeTeamsError, detail
		case PlatformGoogleMeet:
			return OutcomeGoogleMeetError, detail
		}
	}
	return OutcomePostJoinSetupError, detail
}

// runGracefulLeave is the single exit path (C10): every step is best-effort
// and timeboxed, and the whole sequence runs at most once per Controller.
func (c *Controller) runGracefulLeave(ctx context.Context, session TranscriptionSession, result Result) {
	c.leaveOnce.Do(func() {
		log := c.logger()

		if session != nil {
			leaveCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			if err := session.SendSessionControl(leaveCtx, "LEAVING_MEETING"); err != nil {
				log.Warn("session_control LEAVING_MEETING failed", "error", err)
			}
			cancel()
		}

		// Admission timeout already made its best-effort Leave call in Run.
		if result.Outcome != OutcomeAdmissionRejected && result.Outcome != OutcomeAdmissionTimeout && result.Outcome != OutcomeMissingMeetingURL && result.Outcome != OutcomeJoinMeetingError {
			if _, err := c.Provider.Leave(ctx, c.Page, c.Config, string(result.Outcome)); err != nil {
				log.Warn("provider leave failed", "error", err)
			}
		}

		c.fireCallback(context.Background(), "leaving")
		if c.Callbacks != nil {
			if err := c.Callbacks.Exited(context.Background(), c.Config, result); err != nil {
				log.Warn("exited callback failed", "error", err)
			}
		}

		if c.Registry != nil && session != nil {
			// Nothing is released here: session.Close below releases the
			// registry slot held on the session's last server URL.
		}

		if session != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := session.Close(closeCtx); err != nil {
				log.Warn("session close failed", "error", err)
			}
			cancel()
		}

		if c.Control != nil {
			if err := c.Control.Close(); err != nil {
				log.Warn("control channel close failed", "error", err)
			}
		}
	})
}

// watchControl applies manager-issued control commands. Before admission, a
// leave command only sets stopRequested, checked once in Run right after Join.
// Once the bot is already in the meeting (c.recording), that check has
// already passed, so watchControl also triggers the in-page leave action
// directly, per spec.md §4.8: "a stop signal also triggers the in-page leave
// action if already in-meeting."
func (c *Controller) watchControl(ctx context.Context, cmds <-chan ControlCommand) {
	for cmd := range cmds {
		if cmd.Action != "leave" {
			continue
		}
		c.stopRequested.Store(true)
		if c.recording.Load() {
			if err := c.Page.Evaluate(ctx, "window.__meetbotForceResolve('')", nil); err != nil {
				c.logger().Warn("force-resolve on control leave failed", "error", err)
			}
		}
	}
}

// fireCallback invokes the named lifecycle callback if a CallbackClient is
// configured. All failures are warnings per spec.md §4.9/§7: they never
// affect the ExitOutcome.
func (c *Controller) fireCallback(ctx context.Context, name string) {
	if c.Callbacks == nil {
		return
	}
	var err error
	switch name {
	case "joining":
		err = c.Callbacks.Joining(ctx, c.Config)
	case "awaiting_admission":
		err = c.Callbacks.AwaitingAdmission(ctx, c.Config)
	case "active":
		err = c.Callbacks.Active(ctx, c.Config)
	case "leaving":
		err = c.Callbacks.Leaving(ctx, c.Config)
	}
	if err != nil {
		c.logger().Warn(fmt.Sprintf("%s callback failed", name), "error", err)
	}
}

func detailFor(cfg BotConfig, err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	return &ErrorDetail{
		Message:   err.Error(),
		Platform:  cfg.Platform,
		Timestamp: time.Now(),
	}
}
