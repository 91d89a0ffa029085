package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"webscout/internal/extractcmd"
	"webscout/internal/searchcmd"
	"webscout/internal/serve"
	"webscout/models"
)

func main() {
	app := &cli.App{
		Name:    "webscout",
		Usage:   "multi-engine web search with quality-scored fallback and content extraction",
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to YAML config file",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "log errors only",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "run a query through the engine fallback chain",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "num",
						Usage: "number of results",
						Value: models.DefaultNumResults,
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "overall search budget",
						Value: 60 * time.Second,
					},
					&cli.StringFlag{
						Name:  "engines",
						Usage: "comma-separated engine allowlist (Bing, DuckDuckGo, Google)",
					},
					&cli.BoolFlag{
						Name:  "force-multi-engine",
						Usage: "keep trying engines even after an excellent result set",
					},
					&cli.BoolFlag{
						Name:  "no-extract",
						Usage: "skip page content extraction",
					},
					&cli.BoolFlag{
						Name:  "headless",
						Usage: "run pooled browsers headless",
						Value: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "emit JSON instead of formatted text",
					},
				},
				Action: searchcmd.SearchAction,
			},
			{
				Name:      "extract",
				Usage:     "extract the main text content of one URL",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "extraction budget",
						Value: 15 * time.Second,
					},
					&cli.IntFlag{
						Name:  "max-length",
						Usage: "maximum content length in characters",
					},
					&cli.BoolFlag{
						Name:  "headless",
						Usage: "run pooled browsers headless",
						Value: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "emit JSON instead of plain text",
					},
				},
				Action: extractcmd.ExtractAction,
			},
			{
				Name:   "serve",
				Usage:  "expose search and extract_content as MCP tools over stdio",
				Action: serve.ServeAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
