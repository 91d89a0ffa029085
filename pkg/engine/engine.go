// Package engine implements the per-engine result parsers and the SERP
// fetch path. Each engine owns its selector tables and its URL
// de-redirection scheme; the scan loop and the final-resort pass are
// shared.
package engine

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"webscout/models"
)

// Parser is the capability set one engine exposes: build the SERP URL,
// turn raw markup into normalized results, and resolve the engine's
// link-wrapping convention.
type Parser interface {
	Name() string
	SearchURL(query string, numResults int) string
	Parse(doc *goquery.Document, maxResults int) []models.SearchResult
	NormalizeURL(raw string) string
}

// selectorSet is one family of selectors known to contain a result card.
// Within a card the title and snippet selector lists are tried in order,
// first non-empty match wins.
type selectorSet struct {
	container string
	titles    []string
	snippets  []string
}

// firstText returns the text of the first selector in sels that matches
// something non-empty under s.
func firstText(s *goquery.Selection, sels []string) string {
	for _, sel := range sels {
		if t := strings.TrimSpace(s.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// firstHref returns the href of the first anchor-bearing selector under s.
func firstHref(s *goquery.Selection, sels []string) string {
	for _, sel := range sels {
		if href, ok := s.Find(sel).First().Attr("href"); ok && href != "" {
			return href
		}
	}
	return ""
}

// isAcceptableURL is the validity predicate applied to every candidate:
// absolute http(s), a real host, and not a page on the engine's own
// domain (navigation, vertical tabs, preference links).
func isAcceptableURL(raw string, internalHosts []string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host == "" {
		return false
	}
	host := strings.ToLower(strings.TrimPrefix(u.Host, "www."))
	for _, internal := range internalHosts {
		if host == internal || strings.HasSuffix(host, "."+internal) {
			return false
		}
	}
	return true
}

// parseWithTables runs the structured pass: selector families in
// priority order, stopping at the first family that yields at least one
// accepted result. Rejected cards are skipped, never abort the scan.
func parseWithTables(doc *goquery.Document, tables []selectorSet, links []string,
	normalize func(string) string, internalHosts []string, maxResults int) []models.SearchResult {

	for _, table := range tables {
		var results []models.SearchResult
		doc.Find(table.container).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if len(results) >= maxResults {
				return false
			}
			title := firstText(s, table.titles)
			if title == "" {
				return true
			}
			href := firstHref(s, links)
			if href == "" {
				return true
			}
			resolved := normalize(href)
			if !isAcceptableURL(resolved, internalHosts) {
				return true
			}
			results = append(results, models.SearchResult{
				Title:       title,
				URL:         resolved,
				Description: firstText(s, table.snippets),
				Timestamp:   time.Now(),
				Status:      models.FetchPending,
			})
			return true
		})
		if len(results) > 0 {
			return results
		}
	}
	return nil
}

// parseAnyHeading is the final-resort pass used when the structured scan
// found nothing: any heading-like element anchored inside a hyperlink
// counts, ignoring semantic selectors entirely. SERP markup shifts
// without notice; a permissive sweep beats an empty set.
func parseAnyHeading(doc *goquery.Document, normalize func(string) string,
	internalHosts []string, maxResults int) []models.SearchResult {

	var results []models.SearchResult
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(results) >= maxResults {
			return false
		}
		heading := a.Find("h1, h2, h3, h4").First()
		if heading.Length() == 0 {
			return true
		}
		title := strings.TrimSpace(heading.Text())
		if title == "" {
			return true
		}
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return true
		}
		resolved := normalize(href)
		if !isAcceptableURL(resolved, internalHosts) {
			return true
		}
		results = append(results, models.SearchResult{
			Title:     title,
			URL:       resolved,
			Timestamp: time.Now(),
			Status:    models.FetchPending,
		})
		return true
	})
	return results
}

// protocolRelative prepends https: to scheme-relative hrefs and leaves
// everything else untouched.
func protocolRelative(raw string) string {
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return raw
}
