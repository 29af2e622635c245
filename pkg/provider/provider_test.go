package provider

import (
	"context"
	"testing"
	"time"

	"github.com/lokutor-ai/meetbot/pkg/orchestrator"
)

// fakePage is a minimal orchestrator.BrowserPage double driven entirely by
// maps, enough to exercise the selector-table-driven logic in Generic
// without a real browser.
type fakePage struct {
	visible   map[string]bool
	texts     map[string]string
	clicked   []string
	navigated string
}

func newFakePage() *fakePage {
	return &fakePage{visible: map[string]bool{}, texts: map[string]string{}}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error { p.navigated = url; return nil }
func (p *fakePage) Evaluate(ctx context.Context, script string, out interface{}) error { return nil }
func (p *fakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if p.visible[selector] {
		return nil
	}
	return context.DeadlineExceeded
}
func (p *fakePage) Click(ctx context.Context, selector string) error {
	p.clicked = append(p.clicked, selector)
	return nil
}
func (p *fakePage) ExistsVisible(ctx context.Context, selector string) (bool, error) {
	return p.visible[selector], nil
}
func (p *fakePage) TextContent(ctx context.Context, selector string) (string, error) {
	return p.texts[selector], nil
}
func (p *fakePage) ExposeFunction(ctx context.Context, name string, handler func(payload string)) error {
	return nil
}
func (p *fakePage) Close(ctx context.Context) error { return nil }

var _ orchestrator.BrowserPage = (*fakePage)(nil)

func TestWaitForAdmissionImmediatelyAdmitted(t *testing.T) {
	g := NewGoogleMeet()
	page := newFakePage()
	page.visible[g.selectors.AdmissionIndicator] = true

	result, err := g.WaitForAdmission(context.Background(), page, time.Minute, orchestrator.BotConfig{})
	if err != nil {
		t.Fatalf("WaitForAdmission: %v", err)
	}
	if !result.Admitted {
		t.Fatalf("expected immediate admission")
	}
}

func TestWaitForAdmissionRejected(t *testing.T) {
	g := NewTeams()
	page := newFakePage()
	page.visible[g.selectors.RejectionIndicators[0]] = true

	result, err := g.WaitForAdmission(context.Background(), page, time.Minute, orchestrator.BotConfig{})
	if err != nil {
		t.Fatalf("WaitForAdmission: %v", err)
	}
	if !result.Rejected {
		t.Fatalf("expected rejection")
	}
}

func TestWaitForAdmissionZeroTimeoutIsImmediate(t *testing.T) {
	g := NewTeams()
	page := newFakePage()

	result, err := g.WaitForAdmission(context.Background(), page, 0, orchestrator.BotConfig{})
	if err != nil {
		t.Fatalf("WaitForAdmission: %v", err)
	}
	if result.Admitted {
		t.Fatalf("expected admission_timeout semantics with zero timeout and no admission indicator")
	}
}

func TestLeaveIsIdempotentPerInstance(t *testing.T) {
	g := NewTeams()
	page := newFakePage()
	page.visible[g.selectors.PrimaryLeaveButton] = true

	ok, err := g.Leave(context.Background(), page, orchestrator.BotConfig{}, "normal_completion")
	if err != nil || !ok {
		t.Fatalf("first Leave = (%v, %v), want (true, nil)", ok, err)
	}

	ok, err = g.Leave(context.Background(), page, orchestrator.BotConfig{}, "normal_completion")
	if err != nil || ok {
		t.Fatalf("second Leave = (%v, %v), want (false, nil)", ok, err)
	}
	if len(page.clicked) != 1 {
		t.Fatalf("expected exactly one click, got %d", len(page.clicked))
	}
}

func TestStartRemovalMonitorFiresOnce(t *testing.T) {
	g := NewGoogleMeet()
	page := newFakePage()
	page.visible[g.selectors.RemovalIndicators[0]] = true

	fired := make(chan struct{}, 4)
	stop, err := g.StartRemovalMonitor(context.Background(), page, func() { fired <- struct{}{} })
	if err != nil {
		t.Fatalf("StartRemovalMonitor: %v", err)
	}
	defer stop()

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatalf("onRemoval was never called")
	}

	select {
	case <-fired:
		t.Fatalf("onRemoval fired more than once")
	case <-time.After(2 * time.Second):
	}
}
