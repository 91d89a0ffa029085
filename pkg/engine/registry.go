package engine

import "strings"

// priorityOrder is the fallback chain. The ordering is a manually tuned
// reliability ranking: Bing's markup has been the most stable and the
// least bot-guarded, Google the opposite.
var priorityOrder = []Parser{Bing{}, DuckDuckGo{}, Google{}}

// All returns every known engine in priority order.
func All() []Parser {
	out := make([]Parser, len(priorityOrder))
	copy(out, priorityOrder)
	return out
}

// Select filters the priority chain down to an allowlist of engine
// names (case-insensitive, surrounding whitespace ignored). An empty
// allowlist keeps the full chain. Unknown names are ignored; relative
// priority is always preserved.
func Select(allow []string) []Parser {
	if len(allow) == 0 {
		return All()
	}
	allowed := make(map[string]struct{}, len(allow))
	for _, name := range allow {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		allowed[name] = struct{}{}
	}
	var out []Parser
	for _, p := range priorityOrder {
		if _, ok := allowed[strings.ToLower(p.Name())]; ok {
			out = append(out, p)
		}
	}
	return out
}
