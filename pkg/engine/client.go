package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

// ErrBotChallenge means the engine served a captcha or an "unusual
// traffic" interstitial instead of results. The orchestrator treats it
// as a cue to retry the attempt through a rendered browser page.
var ErrBotChallenge = errors.New("bot challenge page served")

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
}

// Client fetches SERP markup over plain HTTP. Each engine gets its own
// token-bucket spacing so back-to-back searches do not hammer a single
// provider, independent of the caller's global quota.
type Client struct {
	http *http.Client

	mu       sync.Mutex
	uaIndex  int
	spacing  map[string]*rate.Limiter
	interval time.Duration
}

// NewClient creates a SERP client. interval is the minimum spacing
// between consecutive requests to the same engine.
func NewClient(interval time.Duration) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		spacing:  make(map[string]*rate.Limiter),
		interval: interval,
	}
}

func (c *Client) nextUserAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ua := userAgents[c.uaIndex]
	c.uaIndex = (c.uaIndex + 1) % len(userAgents)
	return ua
}

func (c *Client) limiterFor(engine string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.spacing[engine]
	if !ok {
		l = rate.NewLimiter(rate.Every(c.interval), 1)
		c.spacing[engine] = l
	}
	return l
}

// FetchSERP retrieves and parses the SERP for one engine. The context
// carries the attempt deadline; it also bounds the spacing wait.
func (c *Client) FetchSERP(ctx context.Context, engine, serpURL string) (*goquery.Document, error) {
	if err := c.limiterFor(engine).Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serpURL, nil)
	if err != nil {
		return nil, err
	}
	setBrowserHeaders(req, c.nextUserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", engine, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%s: status %d: %w", engine, resp.StatusCode, ErrBotChallenge)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", engine, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: parse response: %w", engine, err)
	}
	if IsBotChallenge(doc) {
		return nil, fmt.Errorf("%s: %w", engine, ErrBotChallenge)
	}
	return doc, nil
}

// setBrowserHeaders applies the full header fingerprint of a desktop
// browser; a bare Go client UA is rejected outright by every engine.
func setBrowserHeaders(req *http.Request, ua string) {
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "max-age=0")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
}

var botChallengePhrases = []string{
	"unusual traffic",
	"confirm you are a human",
	"verify you are a human",
	"automated system",
	"suspicious activity",
	"verify it's you",
}

// IsBotChallenge reports whether the document is a captcha or
// anti-automation interstitial rather than a result page.
func IsBotChallenge(doc *goquery.Document) bool {
	if doc.Find("form#captcha-form, div.g-recaptcha, #recaptcha, body.captcha").Length() > 0 {
		return true
	}
	body := strings.ToLower(doc.Find("body").Text())
	for _, phrase := range botChallengePhrases {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	return false
}
