package textmatch

import "strings"

// FuzzyThreshold is the acceptance bar for fuzzy item resolution.
// Scores below it report not-found rather than guessing.
const FuzzyThreshold = 0.75

// fillerWords carry no matching signal and are dropped from tokens.
var fillerWords = map[string]struct{}{
	"in": {}, "with": {}, "and": {}, "or": {}, "the": {},
	"a": {}, "an": {}, "of": {}, "on": {}, "for": {},
}

func meaningfulTokens(s string) []string {
	var out []string
	for _, t := range strings.Fields(Normalize(s)) {
		if _, skip := fillerWords[t]; !skip {
			out = append(out, t)
		}
	}
	return out
}

func tokensMatch(a, b string) bool {
	return a == b || a+"s" == b || a == b+"s"
}

// TokenSimilarity scores word-level overlap between two phrases in
// [0,1]. Overlap counts plural variants as hits; a bonus rewards
// tokens appearing in the same order, which separates "donner pita"
// matching "Donner in Pita" from a bag-of-words coincidence.
func TokenSimilarity(a, b string) float64 {
	at := meaningfulTokens(a)
	bt := meaningfulTokens(b)
	if len(at) == 0 || len(bt) == 0 {
		return 0
	}

	bset := make(map[string]struct{}, len(bt))
	for _, t := range bt {
		bset[t] = struct{}{}
	}
	matches := 0
	for _, t := range dedupTokens(at) {
		if _, ok := bset[t]; ok {
			matches++
			continue
		}
		if _, ok := bset[t+"s"]; ok {
			matches++
			continue
		}
		if _, ok := bset[strings.TrimSuffix(t, "s")]; ok {
			matches++
		}
	}
	max := len(at)
	if len(bt) > max {
		max = len(bt)
	}
	base := float64(matches) / float64(max)

	sequential := 0
	i := 0
	for _, t := range bt {
		if i < len(at) && tokensMatch(at[i], t) {
			sequential++
			i++
		}
	}
	bonus := float64(sequential) / float64(len(at))

	return base*0.7 + bonus*0.3
}

func dedupTokens(ts []string) []string {
	seen := make(map[string]struct{}, len(ts))
	var out []string
	for _, t := range ts {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// levenshtein computes edit distance with a rolling two-row table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// LevenshteinSimilarity normalizes edit distance to [0,1].
func LevenshteinSimilarity(a, b string) float64 {
	max := len([]rune(a))
	if n := len([]rune(b)); n > max {
		max = n
	}
	if max == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(max)
}

// FuzzySimilarity combines token overlap (0.8) with character-level
// similarity (0.2). Token overlap dominates because menu names are
// multi-word; the character term rescues near-misses from speech
// transcription.
func FuzzySimilarity(input, name string) float64 {
	in := rewriteWordAliases(Normalize(input))
	if Squash(in) == Squash(name) {
		return 1.0
	}
	token := TokenSimilarity(in, name)
	leven := LevenshteinSimilarity(Squash(in), Squash(name))
	return token*0.8 + leven*0.2
}
