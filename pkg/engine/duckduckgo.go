package engine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"webscout/models"
)

// DuckDuckGo is the second-priority engine. The html.duckduckgo.com
// endpoint serves script-free markup, which makes the plain HTTP path
// reliable.
type DuckDuckGo struct{}

var ddgInternalHosts = []string{"duckduckgo.com"}

var ddgTables = []selectorSet{
	{
		container: ".result, article.result, .web-result",
		titles:    []string{"h2 a.result__a", ".result__title", "h2"},
		snippets:  []string{".result__snippet", ".result__snippet-truncate"},
	},
	{
		container: "div.results_links",
		titles:    []string{"a.result__a", "h2"},
		snippets:  []string{".result__snippet"},
	},
}

var ddgLinks = []string{"a.result__a", "a.result__url", "h2 a", "a"}

func (DuckDuckGo) Name() string { return "DuckDuckGo" }

func (DuckDuckGo) SearchURL(query string, _ int) string {
	return fmt.Sprintf("https://html.duckduckgo.com/html/?q=%s", url.QueryEscape(query))
}

func (d DuckDuckGo) Parse(doc *goquery.Document, maxResults int) []models.SearchResult {
	results := parseWithTables(doc, ddgTables, ddgLinks, d.NormalizeURL, ddgInternalHosts, maxResults)
	if len(results) == 0 {
		results = parseAnyHeading(doc, d.NormalizeURL, ddgInternalHosts, maxResults)
	}
	return results
}

// NormalizeURL resolves DuckDuckGo's redirect wrapper. Result hrefs come
// out protocol-relative (//duckduckgo.com/l/?uddg=<escaped target>), so
// the scheme is repaired first, then the true destination is pulled out
// of the uddg parameter. Decode failures keep the wrapped URL.
func (DuckDuckGo) NormalizeURL(raw string) string {
	raw = protocolRelative(raw)

	if !strings.Contains(raw, "duckduckgo.com/l/") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	target := u.Query().Get("uddg")
	if target == "" {
		return raw
	}
	return protocolRelative(target)
}
