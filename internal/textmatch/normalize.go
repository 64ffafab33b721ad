// Package textmatch maps free-text phrases from the voice model to
// catalog entities. Matching is deterministic: exact folds first, then
// plural-tolerant substring passes, then fuzzy scoring behind a strict
// threshold.
package textmatch

import (
	"strings"
	"unicode"
)

// Normalize lower-cases, maps "&" to "and", strips punctuation and
// collapses runs of whitespace to single spaces. The result keeps word
// boundaries so it can be tokenized.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "&", "and")

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		}
	}
	return b.String()
}

// Squash is Normalize with the spaces removed. It is the fold used for
// exact and substring comparison, so "amigoburger" matches
// "Amigo Burger".
func Squash(s string) string {
	return strings.ReplaceAll(Normalize(s), " ", "")
}

// PluralMatch reports whether a and b differ only by a trailing "s".
func PluralMatch(a, b string) bool {
	return a == b || a == b+"s" || a+"s" == b
}

// genericSuffixes are food-type words customers append to qualifier
// phrases ("pepperoni pizza" for the item named "Pepperoni").
var genericSuffixes = []string{
	"pizza", "pizzas",
	"burger", "burgers",
	"wrap", "wraps",
	"sub", "subs",
	"sandwich", "sandwiches",
	"meal", "meals",
	"combo", "combos",
	"box", "boxes",
	"milkshake", "milkshakes",
	"shake", "shakes",
	"drink", "drinks",
}

// SemanticName strips one trailing generic food-type word from the
// phrase, so "pepperoni pizza" also gets tried as "pepperoni". Returns
// the normalized phrase unchanged when nothing strips.
func SemanticName(raw string) string {
	n := Normalize(raw)
	for _, word := range genericSuffixes {
		if rest, ok := strings.CutSuffix(n, " "+word); ok {
			if rest = strings.TrimSpace(rest); rest != "" {
				return rest
			}
			break
		}
	}
	return n
}

// vocabAliases maps whole phrases customers use to the vocabulary this
// menu is written in. Tried before any fuzzy logic so "fries" never
// drifts to an unrelated item.
var vocabAliases = map[string]string{
	"fries":   "chips",
	"soda":    "fizzy drink",
	"cookie":  "biscuit",
	"cookies": "biscuits",
}

// VocabAlias returns the menu-vocabulary phrase for a customer phrase,
// if one is known. Lookup is on the squashed fold.
func VocabAlias(raw string) (string, bool) {
	alias, ok := vocabAliases[Squash(raw)]
	return alias, ok
}

// wordAliases rewrites individual words inside a longer phrase before
// fuzzy scoring, the reverse direction of VocabAlias.
var wordAliases = map[string]string{
	"chips":     "fries",
	"crisps":    "chips",
	"biscuit":   "cookie",
	"biscuits":  "cookies",
	"fizzy":     "soda",
	"courgette": "zucchini",
	"aubergine": "eggplant",
	"rocket":    "arugula",
}

func rewriteWordAliases(normalized string) string {
	words := strings.Fields(normalized)
	changed := false
	for i, w := range words {
		if alias, ok := wordAliases[w]; ok {
			words[i] = alias
			changed = true
		}
	}
	if !changed {
		return normalized
	}
	return strings.Join(words, " ")
}
