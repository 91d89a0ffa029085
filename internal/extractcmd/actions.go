// Package extractcmd implements the `extract` CLI command: clean page
// text for a single URL.
package extractcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"webscout/internal/common"
	"webscout/models"
	"webscout/pkg/browser"
	"webscout/pkg/extractor"
)

func ExtractAction(c *cli.Context) error {
	logger := common.NewLogger(c.Bool("quiet"))

	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return cli.Exit("invalid configuration", 2)
	}
	if c.IsSet("headless") {
		cfg.Headless = c.Bool("headless")
	}

	rawURL := common.SanitizeURL(c.Args().First())
	if !common.ValidateURL(rawURL) {
		fmt.Fprintln(os.Stderr, "Error: no valid URL provided")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, `  webscout extract https://example.com/article`)
		fmt.Fprintln(os.Stderr, `  webscout extract --max-length 4000 --json https://example.com/article`)
		return cli.Exit("", 1)
	}

	pool := browser.NewPool(cfg.MaxBrowsers, cfg.Headless, nil, logger)
	defer pool.ReleaseAll()
	ext := extractor.New(cfg, browser.NewPageRenderer(pool), logger)

	text, err := ext.ExtractContent(context.Background(), rawURL, c.Duration("timeout"), c.Int("max-length"))
	if err != nil {
		var exErr *extractor.Error
		if errors.As(err, &exErr) {
			return cli.Exit(fmt.Sprintf("Extraction failed (%s): %s", exErr.Kind, rawURL), 1)
		}
		logger.Error("extraction failed", "url", rawURL, "error", err)
		return cli.Exit("extraction failed", 2)
	}

	if c.Bool("json") {
		out := map[string]any{
			"url":        rawURL,
			"content":    text,
			"word_count": len(strings.Fields(text)),
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			logger.Error("failed to marshal output", "error", err)
			return cli.Exit("encoding output failed", 2)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(text)
	return nil
}
