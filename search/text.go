package search

import "strings"

// Stop words ignored when checking for verbatim matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "what": true, "did": true, "about": true,
}

// terms lowercases text, trims punctuation and drops stop words.
func terms(text string) []string {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			out = append(out, cleaned)
		}
	}
	return out
}

// verbatim reports whether every query term appears in contents.
// A query made only of stop words never matches.
func verbatim(contents string, queryTerms []string) bool {
	if len(queryTerms) == 0 {
		return false
	}
	have := make(map[string]struct{})
	for _, w := range terms(contents) {
		have[w] = struct{}{}
	}
	for _, q := range queryTerms {
		if _, ok := have[q]; !ok {
			return false
		}
	}
	return true
}
