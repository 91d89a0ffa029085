// Package searchcmd implements the `search` CLI command: one query
// through the engine fallback chain, optional content extraction,
// human or JSON output.
package searchcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"webscout/internal/common"
	"webscout/models"
	"webscout/pkg/browser"
	"webscout/pkg/engine"
	"webscout/pkg/extractor"
	"webscout/pkg/orchestrator"
	"webscout/pkg/ratelimit"
)

// serpSpacing is the minimum gap between consecutive hits to the same
// engine, independent of the global quota window.
const serpSpacing = 2 * time.Second

var (
	colorHeader = color.New(color.FgHiMagenta, color.Bold)
	colorBold   = color.New(color.Bold)
	colorCyan   = color.New(color.FgCyan)
	colorWarn   = color.New(color.FgYellow)
)

func SearchAction(c *cli.Context) error {
	logger := common.NewLogger(c.Bool("quiet"))

	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return cli.Exit("invalid configuration", 2)
	}
	if c.IsSet("engines") {
		cfg.Engines = strings.Split(c.String("engines"), ",")
	}
	if c.IsSet("force-multi-engine") {
		cfg.ForceMultiEngine = c.Bool("force-multi-engine")
	}
	if c.IsSet("headless") {
		cfg.Headless = c.Bool("headless")
	}

	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "Error: no query provided")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, `  webscout search "capital of France"`)
		fmt.Fprintln(os.Stderr, `  webscout search --num 10 --json "golang errgroup"`)
		return cli.Exit("", 1)
	}

	pool := browser.NewPool(cfg.MaxBrowsers, cfg.Headless, nil, logger)
	limiter := ratelimit.New(cfg.MaxRequestsPerWindow, cfg.MaxConcurrent)
	orch := orchestrator.New(cfg, limiter, pool, engine.NewClient(serpSpacing), logger)
	defer orch.CloseAll()

	ctx := context.Background()
	opts := models.SearchOptions{
		Query:      query,
		NumResults: c.Int("num"),
		Timeout:    c.Duration("timeout"),
	}

	resp, err := orch.Search(ctx, opts)
	if err != nil {
		var rlErr *ratelimit.Error
		if errors.As(err, &rlErr) {
			msg := fmt.Sprintf("Rate limit exceeded, retry in %s", rlErr.RetryAfter.Round(time.Second))
			return cli.Exit(msg, 1)
		}
		logger.Error("search failed", "error", err)
		return cli.Exit("search failed", 2)
	}

	if !c.Bool("no-extract") && len(resp.Results) > 0 {
		ext := extractor.New(cfg, browser.NewPageRenderer(pool), logger)
		resp.Results = ext.ExtractForResults(ctx, resp.Results, opts.NumResults)
	}

	if c.Bool("json") {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			logger.Error("failed to marshal results", "error", err)
			return cli.Exit("encoding results failed", 2)
		}
		fmt.Println(string(data))
		return nil
	}

	printResults(query, resp)
	return nil
}

func printResults(query string, resp *models.SearchResponse) {
	if len(resp.Results) == 0 {
		colorWarn.Printf("No results for '%s'\n", query)
		return
	}

	colorHeader.Printf("\nResults for '%s'", query)
	fmt.Printf("  (engine: %s)\n", resp.EngineUsed)
	if resp.Degraded {
		colorWarn.Println("Warning: results scored below the quality threshold")
	}
	fmt.Println()

	for i, r := range resp.Results {
		colorBold.Printf("%d. %s\n", i+1, r.Title)
		colorCyan.Printf("   %s\n", r.URL)
		if r.Description != "" {
			fmt.Printf("   %s\n", r.Description)
		}
		switch {
		case r.Status == models.FetchSuccess && r.WordCount > 0:
			fmt.Printf("   [%d words extracted]\n", r.WordCount)
		case r.Status == models.FetchError, r.Status == models.FetchTimeout:
			colorWarn.Printf("   [extraction failed: %s]\n", r.Error)
		}
		fmt.Println()
	}
}
