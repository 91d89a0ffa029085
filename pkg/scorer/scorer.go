// Package scorer estimates how relevant a result set is to the query
// that produced it. The score drives engine arbitration only; it is a
// heuristic, not ground-truth relevance.
package scorer

import (
	"strings"

	"webscout/models"
)

// stopWords are query terms that carry no topical signal.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "his": {}, "has": {}, "how": {},
	"man": {}, "new": {}, "now": {}, "old": {}, "see": {}, "two": {},
	"way": {}, "who": {}, "did": {}, "get": {}, "may": {}, "say": {},
	"she": {}, "use": {}, "that": {}, "this": {}, "with": {}, "have": {},
	"from": {}, "they": {}, "what": {}, "been": {}, "were": {}, "when": {},
	"your": {}, "will": {}, "does": {}, "about": {}, "which": {}, "their": {},
	"would": {}, "there": {}, "could": {}, "other": {},
}

// offTopicPatterns flag result sets that drifted into a generic consumer
// category unrelated to most informational queries. Each match costs a
// fixed penalty.
var offTopicPatterns = []string{
	"recipe", "cooking", "ingredients",
	"weather forecast", "temperature today",
	"buy now", "free shipping", "add to cart", "best price",
	"movie showtimes", "episode guide", "celebrity",
	"live score", "league table", "match highlights",
	"flight deals", "hotel booking", "travel package",
	"used cars", "car dealership", "test drive",
	"homes for sale", "real estate listing", "mortgage rates",
}

const (
	phraseBonus     = 0.3
	offTopicPenalty = 0.2
	neutralScore    = 0.5
	minTermLength   = 3 // a meaningful term has length > 2
)

// Terms extracts the meaningful query terms: case-folded, longer than
// two characters, and not stop-words.
func Terms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, `"'.,!?()[]`)
		if len(w) < minTermLength {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		terms = append(terms, w)
	}
	return terms
}

// phrases builds the bigrams and trigrams of adjacent meaningful terms.
func phrases(terms []string) []string {
	var out []string
	for i := 0; i+1 < len(terms); i++ {
		out = append(out, terms[i]+" "+terms[i+1])
	}
	for i := 0; i+2 < len(terms); i++ {
		out = append(out, terms[i]+" "+terms[i+1]+" "+terms[i+2])
	}
	return out
}

// Score rates results against the original query in [0,1]. Zero results
// score 0. A query with no meaningful terms scores a neutral 0.5: there
// is nothing to measure against, and a neutral score keeps the
// orchestrator's acceptance logic working.
func Score(results []models.SearchResult, originalQuery string) float64 {
	if len(results) == 0 {
		return 0
	}

	terms := Terms(originalQuery)
	if len(terms) == 0 {
		return neutralScore
	}
	grams := phrases(terms)

	var total float64
	for _, r := range results {
		total += scoreOne(r, terms, grams)
	}
	return total / float64(len(results))
}

func scoreOne(r models.SearchResult, terms, grams []string) float64 {
	haystack := strings.ToLower(r.Title + " " + r.Description + " " + r.URL)

	matched := 0
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			matched++
		}
	}
	hitRatio := float64(matched) / float64(len(terms))

	var bonus float64
	for _, g := range grams {
		if strings.Contains(haystack, g) {
			bonus += phraseBonus
		}
	}

	score := hitRatio + bonus
	if score > 1 {
		score = 1
	}

	var penalty float64
	for _, p := range offTopicPatterns {
		if strings.Contains(haystack, p) {
			penalty += offTopicPenalty
		}
	}

	score -= penalty
	if score < 0 {
		score = 0
	}
	return score
}
