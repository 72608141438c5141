package scorer

import "strings"

// stopWords are excluded from keyword overlap so filler never counts
// as a match.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "but": true, "by": true, "for": true,
	"from": true, "how": true, "i": true, "in": true, "is": true,
	"it": true, "my": true, "of": true, "on": true, "or": true,
	"that": true, "the": true, "this": true, "to": true, "with": true,
	"what": true, "when": true, "where": true, "will": true, "you": true,
	"your": true,
}

// keywords tokenizes s into lowercase terms with stop words removed.
func keywords(s string) map[string]bool {
	out := map[string]bool{}
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) < 2 || stopWords[tok] {
			continue
		}
		out[tok] = true
	}
	return out
}

// keywordOverlap counts terms shared between the target and the
// block's intention text.
func keywordOverlap(target, intention string) int {
	targetTerms := keywords(target)
	overlap := 0
	for term := range keywords(intention) {
		if targetTerms[term] {
			overlap++
		}
	}
	return overlap
}
