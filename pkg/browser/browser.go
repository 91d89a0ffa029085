// Package browser owns the pooled headless-browser processes. Browsers
// are expensive to launch, so one live instance per engine family is
// cached and health-checked on every acquisition; anything that fails
// its check is torn down and relaunched.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
)

// ErrUnavailable wraps launch and health-check failures.
var ErrUnavailable = errors.New("browser unavailable")

// Instance is one live browser process. Callers borrow it for the
// duration of a single rendered page and must not hold page state past
// Render returning.
type Instance interface {
	Family() string
	// Healthy opens and immediately closes a throwaway browsing context
	// with the fingerprint profile applied.
	Healthy(ctx context.Context) error
	// Render navigates a fresh tab to url and returns the page HTML
	// once the body is ready. The tab is closed on every exit path.
	Render(ctx context.Context, url string) (string, error)
	Close()
}

const startTimeout = 20 * time.Second

// fingerprint is the profile applied to every browsing context so a
// headless render looks like a desktop session.
var fingerprint = struct {
	userAgent string
	width     int64
	height    int64
}{
	userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	width:     1920,
	height:    1080,
}

type chromeInstance struct {
	family      string
	allocCancel context.CancelFunc
	browserCtx  context.Context
	cancel      context.CancelFunc
}

// launchChrome starts a local Chrome with the hardening flag set:
// automation-detection signals off, sandboxing off for the hosting
// environment, GPU and background throttling off for determinism.
func launchChrome(family string, headless bool) (Instance, error) {
	opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
	copy(opts, chromedp.DefaultExecAllocatorOptions[:])
	opts = append(opts,
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(int(fingerprint.width), int(fingerprint.height)),
		chromedp.UserAgent(fingerprint.userAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx)

	// Start the process with an empty run. The CDP session binds to the
	// context given to the first Run, so the timeout is enforced out of
	// band instead of through a derived context.
	startDone := make(chan error, 1)
	go func() { startDone <- chromedp.Run(browserCtx) }()
	select {
	case err := <-startDone:
		if err != nil {
			cancel()
			allocCancel()
			return nil, fmt.Errorf("%w: launch %s: %v", ErrUnavailable, family, err)
		}
	case <-time.After(startTimeout):
		cancel()
		allocCancel()
		return nil, fmt.Errorf("%w: launch %s: timed out after %v", ErrUnavailable, family, startTimeout)
	}

	return &chromeInstance{
		family:      family,
		allocCancel: allocCancel,
		browserCtx:  browserCtx,
		cancel:      cancel,
	}, nil
}

func (c *chromeInstance) Family() string { return c.family }

func (c *chromeInstance) Healthy(ctx context.Context) error {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	defer tabCancel()

	runCtx, cancel := context.WithTimeout(tabCtx, 10*time.Second)
	defer cancel()

	err := chromedp.Run(runCtx,
		emulation.SetUserAgentOverride(fingerprint.userAgent),
		emulation.SetDeviceMetricsOverride(fingerprint.width, fingerprint.height, 1.0, false),
	)
	if err != nil {
		return fmt.Errorf("%w: health check %s: %v", ErrUnavailable, c.family, err)
	}
	return nil
}

func (c *chromeInstance) Render(ctx context.Context, url string) (string, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	defer tabCancel()

	runCtx := tabCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(tabCtx, deadline)
		defer cancel()
	}

	var html string
	err := chromedp.Run(runCtx,
		emulation.SetUserAgentOverride(fingerprint.userAgent),
		emulation.SetDeviceMetricsOverride(fingerprint.width, fingerprint.height, 1.0, false),
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(500*time.Millisecond), // let late scripts settle
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}

func (c *chromeInstance) Close() {
	c.cancel()
	c.allocCancel()
}

// sessionClosedMarkers are the error shapes a dead or half-closed
// browser session produces. Any of them means the cached process is
// useless and the whole pool should be rebuilt.
var sessionClosedMarkers = []string{
	"session closed",
	"target closed",
	"browser closed",
	"websocket: close",
	"context canceled",
	"invalid context",
}

// IsSessionClosed classifies an error as a dead browser session.
func IsSessionClosed(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range sessionClosedMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
