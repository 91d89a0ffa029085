// Package orchestrator sequences engine attempts for one search. It
// walks the fallback chain in priority order, scores every result set,
// and decides between returning early and trying the next engine.
// Engine failures are contained here; the caller only ever sees a
// result set or a rate-limit rejection.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sony/gobreaker/v2"

	"webscout/models"
	"webscout/pkg/browser"
	"webscout/pkg/engine"
	"webscout/pkg/ratelimit"
	"webscout/pkg/scorer"
)

const (
	browserTries   = 2
	retryBackoff   = 500 * time.Millisecond
	breakerTrip    = 3
	breakerTimeout = 30 * time.Second
)

// NoEngine is the EngineUsed value when every engine failed or
// returned nothing.
const NoEngine = "None"

// SERPFetcher retrieves and parses one engine's result page over HTTP.
// engine.Client is the production implementation.
type SERPFetcher interface {
	FetchSERP(ctx context.Context, engineName, serpURL string) (*goquery.Document, error)
}

// BrowserPool is the slice of the pool API the orchestrator needs.
type BrowserPool interface {
	Acquire(ctx context.Context, family string) (browser.Instance, error)
	Drop(family string)
	ReleaseAll()
}

// Orchestrator owns the fallback chain. One instance serves all
// searches for the process lifetime.
type Orchestrator struct {
	cfg      *models.Config
	limiter  *ratelimit.Limiter
	pool     BrowserPool
	serp     SERPFetcher
	engines  []engine.Parser
	breakers map[string]*gobreaker.CircuitBreaker[[]models.SearchResult]
	logger   *slog.Logger

	backoff time.Duration // between browser tries; shortened in tests
}

// New builds an orchestrator over the configured engine allowlist. An
// engine that keeps failing trips its breaker and is skipped for a
// cooldown instead of burning attempt budget on every search.
func New(cfg *models.Config, limiter *ratelimit.Limiter, pool BrowserPool, serp SERPFetcher, logger *slog.Logger) *Orchestrator {
	engines := engine.Select(cfg.Engines)
	breakers := make(map[string]*gobreaker.CircuitBreaker[[]models.SearchResult], len(engines))
	for _, eng := range engines {
		name := eng.Name()
		breakers[name] = gobreaker.NewCircuitBreaker[[]models.SearchResult](gobreaker.Settings{
			Name:        "engine:" + name,
			MaxRequests: 1,
			Timeout:     breakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerTrip
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("engine breaker state change",
					"breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return &Orchestrator{
		cfg:      cfg,
		limiter:  limiter,
		pool:     pool,
		serp:     serp,
		engines:  engines,
		breakers: breakers,
		logger:   logger,
		backoff:  retryBackoff,
	}
}

// Search runs the fallback chain for one query. The whole search
// consumes one unit of rate-limit quota; a *ratelimit.Error comes back
// unwrapped so the facade can surface the retry-after hint.
func (o *Orchestrator) Search(ctx context.Context, opts models.SearchOptions) (*models.SearchResponse, error) {
	opts = opts.Normalize(o.cfg.MaxResults, o.cfg.SearchTimeout)
	if opts.Query == "" {
		return nil, errors.New("empty query")
	}

	var resp *models.SearchResponse
	err := o.limiter.Execute(ctx, func(ctx context.Context) error {
		var runErr error
		resp, runErr = o.run(ctx, opts)
		return runErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// run walks the chain. Attempts are strictly sequential; two engines
// never run concurrently for one query.
func (o *Orchestrator) run(ctx context.Context, opts models.SearchOptions) (*models.SearchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	// No single slow engine may eat the whole budget.
	attemptTimeout := opts.Timeout / 3
	if attemptTimeout > o.cfg.AttemptTimeoutCap {
		attemptTimeout = o.cfg.AttemptTimeoutCap
	}

	var (
		bestResults []models.SearchResult
		bestScore   = -1.0
		bestEngine  string
	)

	for i, eng := range o.engines {
		if ctx.Err() != nil {
			break
		}

		results, err := o.breakers[eng.Name()].Execute(func() ([]models.SearchResult, error) {
			return o.attempt(ctx, eng, opts, attemptTimeout)
		})
		if err != nil {
			o.logger.Warn("engine attempt failed", "engine", eng.Name(), "error", err)
			if browser.IsSessionClosed(err) {
				// A stale pool entry would fail every later browser
				// attempt the same way. Start the next engine clean.
				o.logger.Warn("browser session closed, releasing pool")
				o.pool.ReleaseAll()
			}
			continue
		}
		if len(results) == 0 {
			continue
		}

		if !o.cfg.ScoringEnabled {
			return &models.SearchResponse{Results: results, EngineUsed: eng.Name()}, nil
		}

		score := scorer.Score(results, opts.Query)
		o.logger.Info("scored result set",
			"engine", eng.Name(), "score", score, "results", len(results))

		if score >= o.cfg.ExcellentScore && !o.cfg.ForceMultiEngine {
			return &models.SearchResponse{Results: results, EngineUsed: eng.Name()}, nil
		}
		// A merely acceptable set from the first-priority engine is
		// held back in case a later engine does better; from any
		// fallback engine it is taken as-is.
		if score >= o.cfg.MinAcceptScore && i > 0 {
			return &models.SearchResponse{Results: results, EngineUsed: eng.Name()}, nil
		}
		if score > bestScore {
			bestResults, bestScore, bestEngine = results, score, eng.Name()
		}
	}

	switch {
	case bestScore >= o.cfg.MinAcceptScore:
		return &models.SearchResponse{Results: bestResults, EngineUsed: bestEngine}, nil
	case len(bestResults) > 0:
		// Quality degradation is data, not failure.
		return &models.SearchResponse{Results: bestResults, EngineUsed: bestEngine, Degraded: true}, nil
	default:
		return &models.SearchResponse{Results: []models.SearchResult{}, EngineUsed: NoEngine}, nil
	}
}

// attempt runs one engine: plain HTTP first, rendered browser page when
// the HTTP path fails or comes back empty. Engines routinely serve a
// stripped or challenged page to non-browser clients, so an empty HTTP
// parse is an escalation cue, not a verdict.
func (o *Orchestrator) attempt(ctx context.Context, eng engine.Parser, opts models.SearchOptions, timeout time.Duration) ([]models.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	serpURL := eng.SearchURL(opts.Query, opts.NumResults)

	doc, err := o.serp.FetchSERP(ctx, eng.Name(), serpURL)
	if err == nil {
		if results := eng.Parse(doc, opts.NumResults); len(results) > 0 {
			return results, nil
		}
		err = fmt.Errorf("%s: empty result set over http", eng.Name())
	} else if errors.Is(err, engine.ErrBotChallenge) {
		o.logger.Debug("bot challenge over http, retrying rendered", "engine", eng.Name())
	}

	results, renderErr := o.renderSERP(ctx, eng, serpURL, opts.NumResults)
	if renderErr != nil {
		return nil, fmt.Errorf("http: %v; rendered: %w", err, renderErr)
	}
	return results, nil
}

// renderSERP fetches the result page through a pooled browser, up to
// browserTries tries. A failed try drops its pool entry so the retry
// always gets a freshly launched instance.
func (o *Orchestrator) renderSERP(ctx context.Context, eng engine.Parser, serpURL string, maxResults int) ([]models.SearchResult, error) {
	var lastErr error
	for try := 0; try < browserTries; try++ {
		if try > 0 {
			o.pool.Drop(eng.Name())
			select {
			case <-time.After(o.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		inst, err := o.pool.Acquire(ctx, eng.Name())
		if err != nil {
			lastErr = err
			continue
		}
		html, err := inst.Render(ctx, serpURL)
		if err != nil {
			lastErr = err
			if browser.IsSessionClosed(err) {
				break
			}
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			lastErr = err
			continue
		}
		if engine.IsBotChallenge(doc) {
			lastErr = fmt.Errorf("%s: %w", eng.Name(), engine.ErrBotChallenge)
			continue
		}
		if results := eng.Parse(doc, maxResults); len(results) > 0 {
			return results, nil
		}
		lastErr = fmt.Errorf("%s: no results in rendered page", eng.Name())
	}
	return nil, lastErr
}

// CloseAll releases every pooled browser. Must be called on graceful
// shutdown.
func (o *Orchestrator) CloseAll() {
	o.pool.ReleaseAll()
}
