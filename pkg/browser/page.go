package browser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/lokutor-ai/meetbot/pkg/orchestrator"
)

// hasTextPattern matches the Playwright-style `prefix:has-text("text")`
// pseudo-selector used by the provider selector tables for indicators that
// are only identifiable by their rendered text (e.g. "Removed from the
// meeting"). It is not valid CSS, so it can never be handed to
// document.querySelector directly.
var hasTextPattern = regexp.MustCompile(`^(.*):has-text\(\s*["'](.*)["']\s*\)$`)

// parseHasText splits a `prefix:has-text("text")` selector into its CSS
// prefix (which may be empty, meaning "any element") and the text to search
// for. ok is false for a plain CSS selector.
func parseHasText(selector string) (prefix, text string, ok bool) {
	m := hasTextPattern.FindStringSubmatch(selector)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// Page is the production orchestrator.BrowserPage, backed by chromedp.
type Page struct {
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      orchestrator.Logger
}

// New launches a headless Chrome instance that auto-accepts media permission
// prompts and allows autoplay without a user gesture, and returns a
// ready-to-use Page.
func New(ctx context.Context, logger orchestrator.Logger) (*Page, error) {
	if logger == nil {
		logger = orchestrator.NoOpLogger{}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	if err := chromedp.Run(browserCtx); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &Page{ctx: browserCtx, cancelCtx: cancelCtx, cancelAlloc: cancelAlloc, logger: logger}, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	return chromedp.Run(p.ctx, chromedp.Navigate(url))
}

// Evaluate runs script with promise-awaiting semantics, since most of C1-C3's
// bootstrap calls return a Promise.
func (p *Page) Evaluate(ctx context.Context, script string, out interface{}) error {
	if out == nil {
		var discard interface{}
		out = &discard
	}
	action := chromedp.Evaluate(script, out, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	})
	return chromedp.Run(p.ctx, action)
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *Page) Click(ctx context.Context, selector string) error {
	return chromedp.Run(p.ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// ExistsVisible probes without blocking, per spec.md §4.1's ≤500ms-per-probe
// cadence requirement — a single Evaluate round trip rather than a
// WaitVisible that would block until timeout on a negative result.
//
// selector is either a real CSS selector, or a `prefix:has-text("text")`
// pseudo-selector (see parseHasText) for indicators only identifiable by
// their rendered text, which document.querySelector cannot evaluate
// directly and would otherwise throw a SyntaxError on.
func (p *Page) ExistsVisible(ctx context.Context, selector string) (bool, error) {
	var visible bool
	var script string
	if prefix, text, ok := parseHasText(selector); ok {
		if prefix == "" {
			prefix = "*"
		}
		script = fmt.Sprintf(`(function(){
			var nodes = document.querySelectorAll(%q);
			for (var i = 0; i < nodes.length; i++) {
				var el = nodes[i];
				if (!el.textContent || el.textContent.indexOf(%q) === -1) continue;
				if (el.offsetParent === null) continue;
				if (el.hasAttribute('disabled') || el.getAttribute('aria-disabled') === 'true') continue;
				return true;
			}
			return false;
		})()`, prefix, text)
	} else {
		script = fmt.Sprintf(`(function(){
			var el = document.querySelector(%q);
			if (!el) return false;
			if (el.offsetParent === null) return false;
			if (el.hasAttribute('disabled') || el.getAttribute('aria-disabled') === 'true') return false;
			return true;
		})()`, selector)
	}
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(script, &visible)); err != nil {
		return false, err
	}
	return visible, nil
}

func (p *Page) TextContent(ctx context.Context, selector string) (string, error) {
	var text string
	script := fmt.Sprintf(`(function(){
		var el = document.querySelector(%q);
		return el ? el.textContent.trim() : "";
	})()`, selector)
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(script, &text)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// ExposeFunction installs a CDP Runtime binding and forwards every call to
// handler. Bindings are one-way: the page's window.<name>(payload) call
// never blocks on a reply, matching C2/C4's non-blocking delegate contract.
func (p *Page) ExposeFunction(ctx context.Context, name string, handler func(payload string)) error {
	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return runtime.AddBinding(name).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("add binding %s: %w", name, err)
	}

	chromedp.ListenTarget(p.ctx, func(ev interface{}) {
		bindingEvent, ok := ev.(*runtime.EventBindingCalled)
		if !ok || bindingEvent.Name != name {
			return
		}
		handler(bindingEvent.Payload)
	})

	return nil
}

func (p *Page) Close(ctx context.Context) error {
	p.cancelCtx()
	p.cancelAlloc()
	return nil
}

var _ orchestrator.BrowserPage = (*Page)(nil)
