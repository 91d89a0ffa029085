// Package common holds the small helpers shared by every CLI command.
package common

import (
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
)

// NewLogger builds the process logger: JSON to stderr, errors only in
// quiet mode.
func NewLogger(quiet bool) *slog.Logger {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// markdownLinkRe extracts the URL out of a pasted markdown link:
// [text](https://example.com) -> https://example.com.
var markdownLinkRe = regexp.MustCompile(`^\[.*?\]\((https?://[^\)]+)\)$`)

// SanitizeURL cleans up common copy-paste damage on a URL: surrounding
// whitespace, markdown link syntax, stray leading and trailing
// punctuation.
func SanitizeURL(rawURL string) string {
	cleaned := strings.TrimSpace(rawURL)

	if matches := markdownLinkRe.FindStringSubmatch(cleaned); len(matches) > 1 {
		cleaned = matches[1]
	}

	for _, ch := range []string{",", ".", ")", "}", "]", `"`, "'", ">", ";"} {
		cleaned = strings.TrimSuffix(cleaned, ch)
	}
	for _, ch := range []string{"(", "[", "<", `"`, "'"} {
		cleaned = strings.TrimPrefix(cleaned, ch)
	}
	return strings.TrimSpace(cleaned)
}

// ValidateURL reports whether a sanitized URL is a fetchable absolute
// http(s) address.
func ValidateURL(rawURL string) bool {
	if rawURL == "" || strings.Contains(rawURL, " ") {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" || strings.ContainsAny(u.Host, `{}[]<>"'`) {
		return false
	}
	return true
}
