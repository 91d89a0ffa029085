package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"webscout/models"
	"webscout/pkg/browser"
	"webscout/pkg/engine"
	"webscout/pkg/ratelimit"
)

// Both cards match every meaningful query term of "capital of France".
const bingExcellentSERP = `<html><body><ol id="b_results">
<li class="b_algo">
  <h2><a href="https://en.wikipedia.org/wiki/Paris">Paris is the capital of France</a></h2>
  <div class="b_caption"><p>France names Paris as its capital city.</p></div>
</li>
<li class="b_algo">
  <h2><a href="https://example.org/france">Capital of France</a></h2>
  <div class="b_caption"><p>The capital of France is Paris.</p></div>
</li>
</ol></body></html>`

// One full match and one zero match, so the set scores 0.5.
const ddgModerateSERP = `<html><body>
<div class="result">
  <h2><a class="result__a" href="https://history.example.com/france">Capital of France history</a></h2>
  <a class="result__snippet">How the capital of France moved over the centuries.</a>
</div>
<div class="result">
  <h2><a class="result__a" href="https://garden.example.com/tips">Gardening tips</a></h2>
  <a class="result__snippet">Plant care basics for beginners.</a>
</div>
</body></html>`

// No card matches any term of an informational query, and every card
// trips an off-topic pattern.
const bingOffTopicSERP = `<html><body><ol id="b_results">
<li class="b_algo">
  <h2><a href="https://shop.example.com/cake">Chocolate cake recipe</a></h2>
  <div class="b_caption"><p>Ingredients and cooking steps.</p></div>
</li>
</ol></body></html>`

type fakeSERP struct {
	pages map[string]string // engine name -> SERP markup
	errs  map[string]error
	calls []string
}

func (f *fakeSERP) FetchSERP(_ context.Context, engineName, _ string) (*goquery.Document, error) {
	f.calls = append(f.calls, engineName)
	if err, ok := f.errs[engineName]; ok {
		return nil, err
	}
	page, ok := f.pages[engineName]
	if !ok {
		return nil, fmt.Errorf("%s: connection refused", engineName)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(page))
}

type fakeBrowser struct {
	family string
	render func(url string) (string, error)
}

func (f *fakeBrowser) Family() string                { return f.family }
func (f *fakeBrowser) Healthy(context.Context) error { return nil }
func (f *fakeBrowser) Close()                        {}

func (f *fakeBrowser) Render(_ context.Context, url string) (string, error) {
	return f.render(url)
}

type fakePool struct {
	mu       sync.Mutex
	render   map[string]func(url string) (string, error)
	launches map[string]int
	drops    []string
	releases int
}

func newFakePool() *fakePool {
	return &fakePool{
		render:   make(map[string]func(string) (string, error)),
		launches: make(map[string]int),
	}
}

func (p *fakePool) Acquire(_ context.Context, family string) (browser.Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.render[family]
	if !ok {
		return nil, fmt.Errorf("%w: launch failed for %s", browser.ErrUnavailable, family)
	}
	p.launches[family]++
	return &fakeBrowser{family: family, render: r}, nil
}

func (p *fakePool) Drop(family string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drops = append(p.drops, family)
}

func (p *fakePool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releases++
}

func newTestOrchestrator(cfg *models.Config, pool BrowserPool, serp SERPFetcher) *Orchestrator {
	o := New(cfg, ratelimit.New(cfg.MaxRequestsPerWindow, cfg.MaxConcurrent), pool, serp,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	o.backoff = time.Millisecond
	return o
}

func TestSearchExcellentFirstEngineReturnsImmediately(t *testing.T) {
	serp := &fakeSERP{pages: map[string]string{"Bing": bingExcellentSERP}}
	o := newTestOrchestrator(models.DefaultConfig(), newFakePool(), serp)

	resp, err := o.Search(context.Background(), models.SearchOptions{Query: "capital of France"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.EngineUsed != "Bing" {
		t.Errorf("EngineUsed = %q, want Bing", resp.EngineUsed)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(resp.Results))
	}
	if resp.Degraded {
		t.Error("excellent result set marked degraded")
	}
	if len(serp.calls) != 1 {
		t.Errorf("consulted %d engines %v, want Bing only", len(serp.calls), serp.calls)
	}
}

func TestSearchClosedSessionTearsDownPoolThenFallsBack(t *testing.T) {
	pool := newFakePool()
	// Bing dies with a closed browser session on its rendered try;
	// DuckDuckGo is bot-challenged over HTTP and succeeds rendered.
	pool.render["Bing"] = func(string) (string, error) {
		return "", errors.New("chrome render: session closed")
	}
	pool.render["DuckDuckGo"] = func(string) (string, error) {
		return ddgModerateSERP, nil
	}
	serp := &fakeSERP{errs: map[string]error{
		"Bing":       fmt.Errorf("Bing: status 500"),
		"DuckDuckGo": fmt.Errorf("DuckDuckGo: %w", engine.ErrBotChallenge),
	}}

	o := newTestOrchestrator(models.DefaultConfig(), pool, serp)
	resp, err := o.Search(context.Background(), models.SearchOptions{Query: "capital of France"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if resp.EngineUsed != "DuckDuckGo" {
		t.Fatalf("EngineUsed = %q, want DuckDuckGo", resp.EngineUsed)
	}
	if resp.Degraded {
		t.Error("acceptable fallback set marked degraded")
	}
	if pool.releases != 1 {
		t.Errorf("pool released %d times, want exactly 1", pool.releases)
	}
	if n := pool.launches["DuckDuckGo"]; n != 1 {
		t.Errorf("DuckDuckGo browser launched %d times, want a single fresh launch", n)
	}
}

func TestSearchHoldsBackFirstPriorityModerateSet(t *testing.T) {
	serp := &fakeSERP{pages: map[string]string{"Bing": bingModerateSERP}}
	o := newTestOrchestrator(models.DefaultConfig(), newFakePool(), serp)

	resp, err := o.Search(context.Background(), models.SearchOptions{Query: "capital of France"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// The moderate first-priority set must not return early; it wins
	// only after the fallbacks fail.
	if len(serp.calls) != 3 {
		t.Fatalf("consulted engines %v, want all three", serp.calls)
	}
	if resp.EngineUsed != "Bing" {
		t.Errorf("EngineUsed = %q, want Bing as best-so-far", resp.EngineUsed)
	}
	if resp.Degraded {
		t.Error("set above the acceptance threshold marked degraded")
	}
}

// bingModerateSERP mirrors ddgModerateSERP in Bing markup: one full
// term match, one miss, set score 0.5.
const bingModerateSERP = `<html><body><ol id="b_results">
<li class="b_algo">
  <h2><a href="https://history.example.com/france">Capital of France history</a></h2>
  <div class="b_caption"><p>How the capital of France moved over the centuries.</p></div>
</li>
<li class="b_algo">
  <h2><a href="https://garden.example.com/tips">Gardening tips</a></h2>
  <div class="b_caption"><p>Plant care basics for beginners.</p></div>
</li>
</ol></body></html>`

func TestSearchAllEnginesFailReturnsEmptySet(t *testing.T) {
	serp := &fakeSERP{errs: map[string]error{
		"Bing":       errors.New("Bing: connection refused"),
		"DuckDuckGo": errors.New("DuckDuckGo: connection refused"),
		"Google":     errors.New("Google: connection refused"),
	}}
	o := newTestOrchestrator(models.DefaultConfig(), newFakePool(), serp)

	resp, err := o.Search(context.Background(), models.SearchOptions{Query: "capital of France"})
	if err != nil {
		t.Fatalf("Search should contain engine failures, got %v", err)
	}
	if resp.EngineUsed != NoEngine {
		t.Errorf("EngineUsed = %q, want %q", resp.EngineUsed, NoEngine)
	}
	if len(resp.Results) != 0 {
		t.Errorf("got %d results from failing engines", len(resp.Results))
	}
}

func TestSearchOffTopicSetReturnsDegraded(t *testing.T) {
	serp := &fakeSERP{
		pages: map[string]string{"Bing": bingOffTopicSERP},
		errs: map[string]error{
			"DuckDuckGo": errors.New("DuckDuckGo: connection refused"),
			"Google":     errors.New("Google: connection refused"),
		},
	}
	o := newTestOrchestrator(models.DefaultConfig(), newFakePool(), serp)

	resp, err := o.Search(context.Background(), models.SearchOptions{Query: "quantum computing hardware"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !resp.Degraded {
		t.Error("sub-threshold set not marked degraded")
	}
	if len(resp.Results) == 0 {
		t.Error("degraded return dropped the only available results")
	}
	if resp.EngineUsed != "Bing" {
		t.Errorf("EngineUsed = %q, want Bing", resp.EngineUsed)
	}
}

func TestSearchScoringDisabledTakesFirstNonEmptySet(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.ScoringEnabled = false
	serp := &fakeSERP{pages: map[string]string{"Bing": bingOffTopicSERP}}
	o := newTestOrchestrator(cfg, newFakePool(), serp)

	resp, err := o.Search(context.Background(), models.SearchOptions{Query: "quantum computing hardware"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.EngineUsed != "Bing" || len(serp.calls) != 1 {
		t.Errorf("EngineUsed = %q after %v, want first engine only", resp.EngineUsed, serp.calls)
	}
}

func TestSearchRateLimited(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.MaxRequestsPerWindow = 1
	serp := &fakeSERP{pages: map[string]string{"Bing": bingExcellentSERP}}
	o := newTestOrchestrator(cfg, newFakePool(), serp)

	if _, err := o.Search(context.Background(), models.SearchOptions{Query: "capital of France"}); err != nil {
		t.Fatalf("first search: %v", err)
	}
	_, err := o.Search(context.Background(), models.SearchOptions{Query: "capital of France"})
	var rlErr *ratelimit.Error
	if !errors.As(err, &rlErr) {
		t.Fatalf("want *ratelimit.Error on exhausted quota, got %v", err)
	}
	if rlErr.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", rlErr.RetryAfter)
	}
}

func TestSearchEmptyQueryRejected(t *testing.T) {
	o := newTestOrchestrator(models.DefaultConfig(), newFakePool(), &fakeSERP{})
	if _, err := o.Search(context.Background(), models.SearchOptions{Query: "   "}); err == nil {
		t.Fatal("blank query accepted")
	}
}

func TestRenderRetryUsesFreshInstance(t *testing.T) {
	pool := newFakePool()
	attempts := 0
	pool.render["Bing"] = func(string) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("net::ERR_CONNECTION_RESET")
		}
		return bingExcellentSERP, nil
	}
	serp := &fakeSERP{errs: map[string]error{
		"Bing": fmt.Errorf("Bing: %w", engine.ErrBotChallenge),
	}}
	o := newTestOrchestrator(models.DefaultConfig(), pool, serp)

	resp, err := o.Search(context.Background(), models.SearchOptions{Query: "capital of France"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.EngineUsed != "Bing" {
		t.Fatalf("EngineUsed = %q, want Bing after retry", resp.EngineUsed)
	}
	if len(pool.drops) != 1 || pool.drops[0] != "Bing" {
		t.Errorf("drops = %v, want the failed Bing instance dropped before the retry", pool.drops)
	}
	if pool.launches["Bing"] != 2 {
		t.Errorf("Bing launched %d times, want 2 (one per try)", pool.launches["Bing"])
	}
}

// blockingSERP stalls every fetch until its context expires, recording
// the deadline each attempt carried.
type blockingSERP struct {
	mu        sync.Mutex
	deadlines []time.Time
}

func (b *blockingSERP) FetchSERP(ctx context.Context, engineName, serpURL string) (*goquery.Document, error) {
	if d, ok := ctx.Deadline(); ok {
		b.mu.Lock()
		b.deadlines = append(b.deadlines, d)
		b.mu.Unlock()
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSearchReturnsWithinTimeout(t *testing.T) {
	o := newTestOrchestrator(models.DefaultConfig(), newFakePool(), &blockingSERP{})

	start := time.Now()
	resp, err := o.Search(context.Background(), models.SearchOptions{
		Query:   "capital of France",
		Timeout: 300 * time.Millisecond,
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("Search took %v against a 300ms budget", elapsed)
	}
	if resp.EngineUsed != NoEngine {
		t.Errorf("EngineUsed = %q, want %q", resp.EngineUsed, NoEngine)
	}
	if len(resp.Results) != 0 {
		t.Errorf("got %d results from stalled engines, want 0", len(resp.Results))
	}
}

func TestSearchCapsPerEngineAttemptTime(t *testing.T) {
	cfg := models.DefaultConfig()
	cfg.AttemptTimeoutCap = 50 * time.Millisecond
	serp := &blockingSERP{}
	o := newTestOrchestrator(cfg, newFakePool(), serp)

	start := time.Now()
	resp, err := o.Search(context.Background(), models.SearchOptions{
		Query:   "capital of France",
		Timeout: time.Minute,
	})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	// Three stalled engines at 50ms apiece must not come near the
	// one-minute overall budget.
	if elapsed > 2*time.Second {
		t.Fatalf("Search took %v with a 50ms attempt cap", elapsed)
	}
	if resp.EngineUsed != NoEngine {
		t.Errorf("EngineUsed = %q, want %q", resp.EngineUsed, NoEngine)
	}
	if len(serp.deadlines) != 3 {
		t.Fatalf("recorded %d attempt deadlines, want 3", len(serp.deadlines))
	}
	for i, d := range serp.deadlines {
		if budget := d.Sub(start); budget > time.Second {
			t.Errorf("attempt %d carried a %v deadline, want the 50ms cap", i, budget)
		}
	}
}
