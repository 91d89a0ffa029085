package engine

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"webscout/models"
)

// Bing is the first-priority engine: its markup has been the most
// stable and it challenges scrapers the least.
type Bing struct{}

var bingInternalHosts = []string{"bing.com", "microsoft.com", "msn.com"}

var bingTables = []selectorSet{
	{
		container: "li.b_algo",
		titles:    []string{"h2 a", "h2"},
		snippets:  []string{"div.b_caption p", "p.b_paractl", "p"},
	},
	{
		container: "#b_results > li",
		titles:    []string{"h2 a", "h2", "a strong"},
		snippets:  []string{"div.b_caption p", "p"},
	},
}

var bingLinks = []string{"h2 a", "div.b_title a", "a"}

func (Bing) Name() string { return "Bing" }

func (Bing) SearchURL(query string, numResults int) string {
	return fmt.Sprintf("https://www.bing.com/search?q=%s&count=%d",
		url.QueryEscape(query), numResults)
}

func (b Bing) Parse(doc *goquery.Document, maxResults int) []models.SearchResult {
	results := parseWithTables(doc, bingTables, bingLinks, b.NormalizeURL, bingInternalHosts, maxResults)
	if len(results) == 0 {
		results = parseAnyHeading(doc, b.NormalizeURL, bingInternalHosts, maxResults)
	}
	return results
}

// NormalizeURL resolves Bing's redirect wrapper
// (bing.com/ck/a?...&u=a1<base64url>...). The encoded segment carries an
// "a1" prefix and is frequently emitted without base64 padding, so the
// padding is repaired by hand before decoding. Any decode failure falls
// back to the wrapped URL.
func (Bing) NormalizeURL(raw string) string {
	raw = protocolRelative(raw)

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if !strings.HasSuffix(strings.ToLower(u.Hostname()), "bing.com") || !strings.HasPrefix(u.Path, "/ck/") {
		return raw
	}

	encoded := u.Query().Get("u")
	if encoded == "" {
		return raw
	}
	encoded = strings.TrimPrefix(encoded, "a1")
	if pad := len(encoded) % 4; pad != 0 {
		encoded += strings.Repeat("=", 4-pad)
	}
	decoded, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return raw
	}
	target := string(decoded)
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return raw
	}
	return target
}
