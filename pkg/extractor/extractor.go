// Package extractor turns result URLs into clean page text. The cheap
// path is an HTTP fetch plus readability parse; when that comes back
// thin or markup-dominated the extractor escalates to a rendered
// browser page. Batch extraction runs with bounded concurrency and
// records per-URL failures on the result itself.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"golang.org/x/sync/errgroup"

	"webscout/models"
	"webscout/pkg/cache"
)

// Kind classifies an extraction failure by cause.
type Kind string

const (
	KindTimeout      Kind = "timeout"
	KindAccessDenied Kind = "access_denied"
	KindUnsupported  Kind = "unsupported_content"
	KindNetwork      Kind = "network"
)

// Error is a per-URL extraction failure. It is recorded on the
// individual result during batch extraction and never raised to the
// batch caller.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("extract %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Renderer produces fully rendered page HTML; the browser pool
// satisfies it. A nil Renderer disables escalation.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Extractor fetches and cleans page content.
type Extractor struct {
	cfg      *models.Config
	client   *http.Client
	pages    *cache.Cache
	renderer Renderer
	logger   *slog.Logger
}

func New(cfg *models.Config, renderer Renderer, logger *slog.Logger) *Extractor {
	return &Extractor{
		cfg:      cfg,
		client:   &http.Client{},
		pages:    cache.New(cfg.CacheTTL),
		renderer: renderer,
		logger:   logger,
	}
}

const extractorUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// boilerplateSelectors are stripped before text extraction; readability
// misses some of these on pages it half-understands.
const boilerplateSelectors = "script, style, nav, header, footer, aside, form, iframe, noscript, " +
	"[class*='ad-'], [class*='advert'], [class*='banner'], [class*='cookie'], " +
	"[class*='popup'], [class*='sidebar'], [id*='banner'], [id*='cookie']"

var whitespaceRe = regexp.MustCompile(`\s+`)

// ExtractContent returns the cleaned text of one page, trimmed to
// maxLength. PDFs are refused up front: they are not renderable markup
// and neither fetch path is attempted for them.
func (e *Extractor) ExtractContent(ctx context.Context, rawURL string, timeout time.Duration, maxLength int) (string, error) {
	if timeout <= 0 {
		timeout = e.cfg.ExtractTimeout
	}
	if maxLength <= 0 {
		maxLength = e.cfg.MaxContentLength
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", &Error{Kind: KindUnsupported, URL: rawURL, Err: errors.New("not an absolute http(s) URL")}
	}
	if strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		return "", &Error{Kind: KindUnsupported, URL: rawURL, Err: errors.New("pdf content skipped")}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if e.forceRender(u.Hostname()) {
		rendered, renderErr := e.renderAndClean(ctx, rawURL)
		if renderErr != nil {
			return "", renderErr
		}
		return trimToLength(rendered, maxLength), nil
	}

	text, rawLen, err := e.fetchAndClean(ctx, rawURL)
	if err == nil && e.goodEnough(text, rawLen) {
		return trimToLength(text, maxLength), nil
	}

	// Lightweight path failed or produced junk: escalate if we can.
	// Both sides of the comparison are untrimmed.
	if e.renderer != nil {
		e.logger.Debug("escalating to browser render", "url", rawURL, "text_len", len(text))
		rendered, renderErr := e.renderAndClean(ctx, rawURL)
		if renderErr == nil && len(rendered) > len(text) {
			return trimToLength(rendered, maxLength), nil
		}
	}

	if err != nil {
		return "", e.classify(rawURL, err)
	}
	return trimToLength(text, maxLength), nil
}

// forceRender reports whether the host is known to require script
// execution before any content exists.
func (e *Extractor) forceRender(host string) bool {
	if e.renderer == nil {
		return false
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for _, h := range e.cfg.RenderHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// goodEnough judges the lightweight result: long enough, and not a
// sliver of text lost in a markup-dominated page.
func (e *Extractor) goodEnough(text string, rawLen int) bool {
	if len(text) < e.cfg.MinContentLength {
		return false
	}
	if rawLen > 10000 && len(text)*100 < rawLen {
		return false
	}
	return true
}

func (e *Extractor) fetchAndClean(ctx context.Context, rawURL string) (text string, rawLen int, err error) {
	var body []byte
	if cached, ok := e.pages.Get(rawURL); ok {
		body = cached
	} else {
		body, err = e.fetch(ctx, rawURL)
		if err != nil {
			return "", 0, err
		}
		e.pages.Set(rawURL, body)
	}
	return cleanHTML(rawURL, string(body)), len(body), nil
}

func (e *Extractor) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", extractorUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		return nil, &Error{Kind: KindAccessDenied, URL: rawURL, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" &&
		!strings.Contains(ct, "text/html") && !strings.Contains(ct, "text/plain") &&
		!strings.Contains(ct, "xhtml") {
		return nil, &Error{Kind: KindUnsupported, URL: rawURL, Err: fmt.Errorf("content type %s", ct)}
	}

	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// renderAndClean returns the cleaned text of a browser-rendered page,
// untrimmed so callers can compare it against other candidates first.
func (e *Extractor) renderAndClean(ctx context.Context, rawURL string) (string, error) {
	if e.renderer == nil {
		return "", &Error{Kind: KindNetwork, URL: rawURL, Err: errors.New("no renderer configured")}
	}
	html, err := e.renderer.Render(ctx, rawURL)
	if err != nil {
		return "", e.classify(rawURL, err)
	}
	return cleanHTML(rawURL, html), nil
}

// cleanHTML strips boilerplate and collapses whitespace. Readability
// gets the first shot at isolating the article body; pages it cannot
// make sense of fall back to a denylist-stripped full-body sweep.
func cleanHTML(rawURL, html string) string {
	pageURL, _ := url.Parse(rawURL)

	parser := readability.NewParser()
	if article, err := parser.Parse(strings.NewReader(html), pageURL); err == nil {
		if text := collapseWhitespace(article.TextContent); len(text) > 0 {
			return text
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find(boilerplateSelectors).Remove()
	return collapseWhitespace(doc.Find("body").Text())
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// trimToLength cuts at the last word boundary before max.
func trimToLength(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := s[:max]
	if i := strings.LastIndexByte(cut, ' '); i > max/2 {
		cut = cut[:i]
	}
	return cut
}

// classify maps transport errors onto the extraction failure taxonomy.
func (e *Extractor) classify(rawURL string, err error) error {
	var ee *Error
	if errors.As(err, &ee) {
		return ee
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return &Error{Kind: KindTimeout, URL: rawURL, Err: err}
	default:
		return &Error{Kind: KindNetwork, URL: rawURL, Err: err}
	}
}

// ExtractForResults fills FullContent, WordCount and Status in place
// for up to targetCount successful results, fanning out with bounded
// concurrency. Output order always matches input order because each
// goroutine writes back through its own index. A failed URL is
// recorded on its result and never aborts a sibling extraction.
func (e *Extractor) ExtractForResults(ctx context.Context, results []models.SearchResult, targetCount int) []models.SearchResult {
	if targetCount <= 0 || targetCount > len(results) {
		targetCount = len(results)
	}

	var successes atomic.Int32
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.ExtractConcurrency)

	for i := range results {
		if int(successes.Load()) >= targetCount {
			break
		}
		g.Go(func() error {
			if int(successes.Load()) >= targetCount {
				return nil
			}
			r := &results[i]
			content, err := e.ExtractContent(ctx, r.URL, e.cfg.ExtractTimeout, e.cfg.MaxContentLength)
			if err != nil {
				r.Status = statusFor(err)
				r.Error = err.Error()
				e.logger.Warn("extraction failed", "url", r.URL, "error", err)
				return nil
			}
			r.FullContent = content
			r.WordCount = len(strings.Fields(content))
			r.Status = models.FetchSuccess
			successes.Add(1)
			return nil
		})
	}
	g.Wait()
	return results
}

func statusFor(err error) models.FetchStatus {
	var ee *Error
	if errors.As(err, &ee) && ee.Kind == KindTimeout {
		return models.FetchTimeout
	}
	return models.FetchError
}
