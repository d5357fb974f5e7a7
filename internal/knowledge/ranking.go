package knowledge

import (
	"regexp"
	"sort"
	"strings"
)

// contextPrefix introduces the injected facts to the model.
const contextPrefix = "Use these portfolio facts:"

// Query tokens: alphanumeric plus #.@- runs of at least three characters,
// so "c#", "go" and stop-word noise are skipped while "node.js",
// "user@host" and "full-stack" survive.
var tokenPattern = regexp.MustCompile(`[a-z0-9#.@-]{3,}`)

// Ranker selects facts relevant to a query. Limit caps how many matched
// facts are returned; Fallback is how many leading facts stand in when
// nothing matches.
type Ranker struct {
	Facts    []string
	Limit    int
	Fallback int
}

// Tokenize lower-cases the query and extracts ranking tokens.
func Tokenize(query string) []string {
	return tokenPattern.FindAllString(strings.ToLower(query), -1)
}

// Select returns the chosen facts in ranked order. Scoring counts query
// tokens occurring as substrings of the lower-cased fact; ties prefer the
// shorter fact. The sort is stable, so equal entries keep document order
// and the result is identical for identical inputs.
func (r *Ranker) Select(query string) []string {
	if len(r.Facts) == 0 {
		return nil
	}

	tokens := Tokenize(query)

	type scored struct {
		text  string
		score int
	}
	ranked := make([]scored, 0, len(r.Facts))
	for _, fact := range r.Facts {
		lowered := strings.ToLower(fact)
		n := 0
		for _, tok := range tokens {
			if strings.Contains(lowered, tok) {
				n++
			}
		}
		ranked = append(ranked, scored{text: fact, score: n})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return len(ranked[i].text) < len(ranked[j].text)
	})

	var picked []string
	if ranked[0].score > 0 {
		for _, s := range ranked {
			if s.score == 0 || len(picked) == r.Limit {
				break
			}
			picked = append(picked, s.text)
		}
	} else {
		// Off-topic query: general-purpose context in document order.
		n := r.Fallback
		if n > len(r.Facts) {
			n = len(r.Facts)
		}
		picked = append(picked, r.Facts[:n]...)
	}
	return picked
}

// ContextMessage renders the selected facts as one system-message body,
// or the empty string when there is nothing to inject.
func (r *Ranker) ContextMessage(query string) string {
	picked := r.Select(query)
	if len(picked) == 0 {
		return ""
	}
	return contextPrefix + "\n- " + strings.Join(picked, "\n- ")
}
