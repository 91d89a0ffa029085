package engine

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"webscout/models"
)

// Google is the last-priority engine: best coverage, most aggressive
// bot detection, and the most volatile markup.
type Google struct{}

var googleInternalHosts = []string{"google.com", "googleusercontent.com", "gstatic.com", "youtube.com"}

var googleTables = []selectorSet{
	{
		container: "#search .g, #rso .g",
		titles:    []string{"h3.LC20lb", "h3"},
		snippets:  []string{".VwiC3b", ".IsZvec", "div[data-sncf]", "div[role='doc-subtitle']"},
	},
	{
		container: "#search .MjjYud, #rso .MjjYud",
		titles:    []string{"h3"},
		snippets:  []string{".VwiC3b", "[data-content-feature='1']"},
	},
	{
		container: "#rso > div, #search div[data-hveid]",
		titles:    []string{"h3"},
		snippets:  []string{".VwiC3b", "span.st"},
	},
}

var googleLinks = []string{".yuRUbf a", "h3 a", "a[href]"}

// googleRedirectRe is the fallback extractor for /url? wrappers that
// url.ParseQuery chokes on.
var googleRedirectRe = regexp.MustCompile(`[?&](?:q|url)=([^&]+)`)

func (Google) Name() string { return "Google" }

func (Google) SearchURL(query string, numResults int) string {
	// Ask for a few extra results to absorb cards rejected during parsing.
	return fmt.Sprintf("https://www.google.com/search?q=%s&num=%d&hl=en&safe=off&pws=0",
		url.QueryEscape(query), numResults+5)
}

func (g Google) Parse(doc *goquery.Document, maxResults int) []models.SearchResult {
	results := parseWithTables(doc, googleTables, googleLinks, g.NormalizeURL, googleInternalHosts, maxResults)
	if len(results) == 0 {
		results = parseAnyHeading(doc, g.NormalizeURL, googleInternalHosts, maxResults)
	}
	return results
}

// NormalizeURL resolves Google's /url?q=<target> redirect wrapper (the
// target sometimes rides in url= instead). A regex pass backs up the
// query parser; if neither finds a destination the wrapped URL is kept.
func (Google) NormalizeURL(raw string) string {
	raw = protocolRelative(raw)

	if !strings.HasPrefix(raw, "/url?") && !strings.Contains(raw, "google.com/url?") {
		return raw
	}

	if _, query, ok := strings.Cut(raw, "?"); ok {
		if params, err := url.ParseQuery(query); err == nil {
			if target := params.Get("q"); isAbsoluteHTTP(target) {
				return target
			}
			if target := params.Get("url"); isAbsoluteHTTP(target) {
				return target
			}
		}
	}

	if m := googleRedirectRe.FindStringSubmatch(raw); len(m) > 1 {
		if target, err := url.QueryUnescape(m[1]); err == nil && isAbsoluteHTTP(target) {
			return target
		}
	}
	return raw
}

func isAbsoluteHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
