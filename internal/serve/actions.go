// Package serve exposes search and extraction as MCP tools over stdio,
// so an agent can drive the engine chain without shelling out.
package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v2"

	"webscout/internal/common"
	"webscout/models"
	"webscout/pkg/browser"
	"webscout/pkg/engine"
	"webscout/pkg/extractor"
	"webscout/pkg/orchestrator"
	"webscout/pkg/ratelimit"
)

const serpSpacing = 2 * time.Second

// Server wires the core components behind the MCP tool handlers. The
// handlers are pure request/response mapping; every decision lives in
// the orchestrator and the extractor.
type Server struct {
	cfg       *models.Config
	orch      *orchestrator.Orchestrator
	extractor *extractor.Extractor
}

func ServeAction(c *cli.Context) error {
	logger := common.NewLogger(c.Bool("quiet"))

	cfg, err := models.LoadConfig(c.String("config"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return cli.Exit("invalid configuration", 2)
	}

	pool := browser.NewPool(cfg.MaxBrowsers, cfg.Headless, nil, logger)
	limiter := ratelimit.New(cfg.MaxRequestsPerWindow, cfg.MaxConcurrent)
	orch := orchestrator.New(cfg, limiter, pool, engine.NewClient(serpSpacing), logger)
	defer orch.CloseAll()

	s := &Server{
		cfg:       cfg,
		orch:      orch,
		extractor: extractor.New(cfg, browser.NewPageRenderer(pool), logger),
	}

	mcpServer := server.NewMCPServer("webscout", c.App.Version,
		server.WithToolCapabilities(false),
	)
	mcpServer.AddTool(searchTool(), s.handleSearch)
	mcpServer.AddTool(extractTool(), s.handleExtract)

	logger.Info("serving MCP over stdio")
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Error("mcp server stopped", "error", err)
		return cli.Exit("mcp server stopped", 2)
	}
	return nil
}

func searchTool() mcp.Tool {
	return mcp.NewTool("search",
		mcp.WithDescription("Search the web across multiple engines with automatic fallback. Returns ranked results with title, URL, snippet and optionally extracted page content."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The search query"),
		),
		mcp.WithNumber("num_results",
			mcp.Description(fmt.Sprintf("Number of results to return (default %d)", models.DefaultNumResults)),
		),
		mcp.WithBoolean("extract_content",
			mcp.Description("Also fetch and extract the full text of each result page"),
		),
	)
}

func extractTool() mcp.Tool {
	return mcp.NewTool("extract_content",
		mcp.WithDescription("Fetch one URL and return its main text content with boilerplate removed."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The absolute http(s) URL to extract"),
		),
		mcp.WithNumber("max_length",
			mcp.Description("Maximum content length in characters"),
		),
	)
}

func (s *Server) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	opts := models.SearchOptions{
		Query:      query,
		NumResults: req.GetInt("num_results", models.DefaultNumResults),
	}
	resp, err := s.orch.Search(ctx, opts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if req.GetBool("extract_content", false) && len(resp.Results) > 0 {
		resp.Results = s.extractor.ExtractForResults(ctx, resp.Results, opts.NumResults)
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawURL = common.SanitizeURL(rawURL)
	if !common.ValidateURL(rawURL) {
		return mcp.NewToolResultError(fmt.Sprintf("not a valid http(s) URL: %s", rawURL)), nil
	}

	text, err := s.extractor.ExtractContent(ctx, rawURL, s.cfg.ExtractTimeout, req.GetInt("max_length", s.cfg.MaxContentLength))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", err)), nil
	}

	out := map[string]any{
		"url":        rawURL,
		"content":    text,
		"word_count": len(strings.Fields(text)),
	}
	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
