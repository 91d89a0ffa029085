// Package models defines the shared data structures and process configuration.
package models

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration. It is constructed once at
// startup (defaults, then optional YAML file, then flag overrides) and
// passed by reference into the orchestrator, browser pool and extractor.
// Nothing mutates it after construction, so it is treated as immutable.
type Config struct {
	// Engine selection. Empty allowlist means all known engines, in
	// built-in priority order.
	Engines []string `yaml:"engines"`

	// Orchestration thresholds. Scores are in [0,1].
	MinAcceptScore   float64 `yaml:"min_accept_score"`
	ExcellentScore   float64 `yaml:"excellent_score"`
	ScoringEnabled   bool    `yaml:"scoring_enabled"`
	ForceMultiEngine bool    `yaml:"force_multi_engine"`

	// Budgets and caps.
	SearchTimeout     time.Duration `yaml:"search_timeout"`
	AttemptTimeoutCap time.Duration `yaml:"attempt_timeout_cap"`
	MaxResults        int           `yaml:"max_results"`

	// Rate limiting.
	MaxRequestsPerWindow int `yaml:"max_requests_per_window"`
	MaxConcurrent        int `yaml:"max_concurrent"`

	// Browser pool.
	Headless    bool          `yaml:"headless"`
	MaxBrowsers int           `yaml:"max_browsers"`
	NavTimeout  time.Duration `yaml:"nav_timeout"`

	// Content extraction.
	ExtractTimeout     time.Duration `yaml:"extract_timeout"`
	MaxContentLength   int           `yaml:"max_content_length"`
	MinContentLength   int           `yaml:"min_content_length"`
	ExtractConcurrency int           `yaml:"extract_concurrency"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	// Hosts that never yield useful content without script execution;
	// the extractor goes straight to the browser for these.
	RenderHosts []string `yaml:"render_hosts"`
}

// DefaultConfig returns the tuned defaults. The two score thresholds and
// the first-priority special case in the orchestrator were tuned by
// observation, not derived; they are deliberately configuration rather
// than constants.
func DefaultConfig() *Config {
	return &Config{
		Engines:              nil,
		MinAcceptScore:       0.3,
		ExcellentScore:       0.8,
		ScoringEnabled:       true,
		ForceMultiEngine:     false,
		SearchTimeout:        60 * time.Second,
		AttemptTimeoutCap:    20 * time.Second,
		MaxResults:           10,
		MaxRequestsPerWindow: 30,
		MaxConcurrent:        5,
		Headless:             true,
		MaxBrowsers:          2,
		NavTimeout:           30 * time.Second,
		ExtractTimeout:       15 * time.Second,
		MaxContentLength:     8000,
		MinContentLength:     200,
		ExtractConcurrency:   3,
		CacheTTL:             15 * time.Minute,
		RenderHosts:          []string{"twitter.com", "x.com"},
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values that would make a component misbehave silently.
func (c *Config) Validate() error {
	if c.MinAcceptScore < 0 || c.MinAcceptScore > 1 {
		return fmt.Errorf("min_accept_score %v outside [0,1]", c.MinAcceptScore)
	}
	if c.ExcellentScore < 0 || c.ExcellentScore > 1 {
		return fmt.Errorf("excellent_score %v outside [0,1]", c.ExcellentScore)
	}
	if c.MaxRequestsPerWindow <= 0 {
		return fmt.Errorf("max_requests_per_window must be positive")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive")
	}
	if c.MaxBrowsers <= 0 {
		return fmt.Errorf("max_browsers must be positive")
	}
	if c.ExtractConcurrency <= 0 {
		return fmt.Errorf("extract_concurrency must be positive")
	}
	return nil
}
