package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// FetchStatus records the outcome of content extraction for one result.
type FetchStatus string

const (
	FetchPending FetchStatus = "pending"
	FetchSuccess FetchStatus = "success"
	FetchError   FetchStatus = "error"
	FetchTimeout FetchStatus = "timeout"
)

// SearchResult is one entry of a parsed result set. URL is always a
// decoded, absolute address; engine redirect wrappers are resolved at
// parse time. FullContent, WordCount and Status are filled in exactly
// once by the content extractor.
type SearchResult struct {
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Description string      `json:"description"`
	FullContent string      `json:"full_content,omitempty"`
	WordCount   int         `json:"word_count"`
	Timestamp   time.Time   `json:"timestamp"`
	Status      FetchStatus `json:"fetch_status"`
	Error       string      `json:"error,omitempty"`
}

// SearchOptions are the caller-facing knobs for one search.
type SearchOptions struct {
	Query      string
	NumResults int
	Timeout    time.Duration
}

const (
	DefaultNumResults = 5
	MaxQueryLength    = 400
)

// SanitizeQuery trims and length-caps a raw query before it is ever sent
// to an engine.
func SanitizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if len(q) > MaxQueryLength {
		cut := MaxQueryLength
		// Never split a multi-byte rune at the cap.
		for cut > 0 && !utf8.RuneStart(q[cut]) {
			cut--
		}
		q = q[:cut]
	}
	return q
}

// Normalize applies defaults and caps to caller-supplied options.
func (o SearchOptions) Normalize(maxResults int, defaultTimeout time.Duration) SearchOptions {
	o.Query = SanitizeQuery(o.Query)
	if o.NumResults <= 0 {
		o.NumResults = DefaultNumResults
	}
	if maxResults > 0 && o.NumResults > maxResults {
		o.NumResults = maxResults
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o
}

// SearchResponse is what the orchestrator hands back to the facade.
// EngineUsed is "None" when every engine failed or returned nothing.
type SearchResponse struct {
	Results    []SearchResult `json:"results"`
	EngineUsed string         `json:"engine_used"`
	Degraded   bool           `json:"degraded,omitempty"`
}
