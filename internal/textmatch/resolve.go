package textmatch

import (
	"strings"

	"github.com/voicekiosk/voicekiosk/internal/catalog"
)

// ItemMatch is a resolved item together with its owning category.
type ItemMatch struct {
	Item     *catalog.Item
	Category *catalog.Category
}

// ResolveItem maps a free-text phrase to a catalog item. Precedence,
// most to least certain: vocabulary alias, exact in the selected
// category, exact anywhere, plural-tolerant substring in the selected
// category, substring anywhere, then the same four passes with the
// generic food-type suffix stripped, and finally fuzzy scoring behind
// FuzzyThreshold. A substring pass matching more than one item returns
// nothing from that pass: ambiguity reported as not-found beats a
// guessed item. Returns nil when every pass fails.
func ResolveItem(c *catalog.Catalog, selected *catalog.Category, raw string) *ItemMatch {
	if c == nil || strings.TrimSpace(raw) == "" {
		return nil
	}

	if alias, ok := VocabAlias(raw); ok {
		if m := resolvePasses(c, selected, alias); m != nil {
			return m
		}
	}

	if m := resolvePasses(c, selected, raw); m != nil {
		return m
	}

	if semantic := SemanticName(raw); semantic != Normalize(raw) {
		if m := resolvePasses(c, selected, semantic); m != nil {
			return m
		}
	}

	if selected != nil {
		if item := fuzzyInCategory(selected, raw); item != nil {
			return &ItemMatch{Item: item, Category: selected}
		}
	}
	return fuzzyGlobal(c, raw)
}

func resolvePasses(c *catalog.Catalog, selected *catalog.Category, phrase string) *ItemMatch {
	if selected != nil {
		if item := exactInCategory(selected, phrase); item != nil {
			return &ItemMatch{Item: item, Category: selected}
		}
	}
	if m := exactGlobal(c, phrase); m != nil {
		return m
	}
	if selected != nil {
		if item := containsInCategory(selected, phrase); item != nil {
			return &ItemMatch{Item: item, Category: selected}
		}
	}
	return containsGlobal(c, phrase)
}

func exactInCategory(cat *catalog.Category, phrase string) *catalog.Item {
	q := Squash(phrase)
	if q == "" {
		return nil
	}
	for i := range cat.Items {
		if Squash(cat.Items[i].Name) == q {
			return &cat.Items[i]
		}
	}
	return nil
}

func exactGlobal(c *catalog.Catalog, phrase string) *ItemMatch {
	for i := range c.Categories {
		if item := exactInCategory(&c.Categories[i], phrase); item != nil {
			return &ItemMatch{Item: item, Category: &c.Categories[i]}
		}
	}
	return nil
}

// containsInCategory matches by plural-tolerant substring. Multiple
// hits return nil so "burger" against two burgers never picks one.
func containsInCategory(cat *catalog.Category, phrase string) *catalog.Item {
	q := Squash(phrase)
	if q == "" {
		return nil
	}
	var only *catalog.Item
	for i := range cat.Items {
		n := Squash(cat.Items[i].Name)
		if strings.Contains(n, q) || strings.Contains(q, n) || PluralMatch(q, n) {
			if only != nil {
				return nil
			}
			only = &cat.Items[i]
		}
	}
	return only
}

func containsGlobal(c *catalog.Catalog, phrase string) *ItemMatch {
	for i := range c.Categories {
		if item := containsInCategory(&c.Categories[i], phrase); item != nil {
			return &ItemMatch{Item: item, Category: &c.Categories[i]}
		}
	}
	return nil
}

func fuzzyInCategory(cat *catalog.Category, phrase string) *catalog.Item {
	var best *catalog.Item
	bestScore := 0.0
	for i := range cat.Items {
		score := FuzzySimilarity(phrase, cat.Items[i].Name)
		if score >= FuzzyThreshold && score > bestScore {
			bestScore = score
			best = &cat.Items[i]
		}
	}
	return best
}

func fuzzyGlobal(c *catalog.Catalog, phrase string) *ItemMatch {
	var best *ItemMatch
	bestScore := 0.0
	for i := range c.Categories {
		cat := &c.Categories[i]
		for j := range cat.Items {
			score := FuzzySimilarity(phrase, cat.Items[j].Name)
			if score >= FuzzyThreshold && score > bestScore {
				bestScore = score
				best = &ItemMatch{Item: &cat.Items[j], Category: cat}
			}
		}
	}
	return best
}

// FindCategory maps a phrase to a category: plural-tolerant exact
// first, then substring either direction, then token overlap.
func FindCategory(c *catalog.Catalog, phrase string) *catalog.Category {
	q := Squash(phrase)
	if c == nil || q == "" {
		return nil
	}
	for i := range c.Categories {
		if PluralMatch(q, Squash(c.Categories[i].Name)) {
			return &c.Categories[i]
		}
	}
	for i := range c.Categories {
		n := Squash(c.Categories[i].Name)
		if strings.Contains(q, n) || strings.Contains(n, q) {
			return &c.Categories[i]
		}
	}
	for i := range c.Categories {
		if strongTokenOverlap(phrase, c.Categories[i].Name) {
			return &c.Categories[i]
		}
	}
	return nil
}

func strongTokenOverlap(phrase, name string) bool {
	p := tokenSet(phrase)
	cTokens := strings.Fields(Normalize(name))
	if len(p) == 0 || len(cTokens) == 0 {
		return false
	}
	hit := func(t string) bool {
		if _, ok := p[t]; ok {
			return true
		}
		if _, ok := p[t+"s"]; ok {
			return true
		}
		_, ok := p[strings.TrimSuffix(t, "s")]
		return ok
	}
	for _, t := range cTokens {
		if hit(t) {
			return true
		}
	}
	return false
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(Normalize(s)) {
		set[t] = struct{}{}
	}
	return set
}

// IsPureCategoryRequest reports whether the phrase names the category
// itself rather than an item in it, optionally prefixed by a browse
// verb ("show burgers").
func IsPureCategoryRequest(phrase, categoryName string) bool {
	p := Normalize(phrase)
	c := Normalize(categoryName)
	if PluralMatch(Squash(phrase), Squash(categoryName)) {
		return true
	}
	pTokens := strings.Fields(p)
	cTokens := strings.Fields(c)
	if len(pTokens) == len(cTokens) && p == c {
		return true
	}
	browseVerbs := map[string]struct{}{
		"show": {}, "open": {}, "go": {}, "see": {}, "browse": {}, "view": {},
	}
	if len(pTokens) == len(cTokens)+1 {
		if _, ok := browseVerbs[pTokens[0]]; ok {
			rest := Squash(strings.Join(pTokens[1:], " "))
			return PluralMatch(rest, Squash(categoryName))
		}
	}
	return false
}

// ScoreCategory ranks how well a phrase names a category: 100 for a
// plural-tolerant exact match, 60 for substring either direction, else
// 10 plus 10 per overlapping token, 0 for no overlap.
func ScoreCategory(phrase, name string) int {
	p := Squash(phrase)
	c := Squash(name)
	if p == "" || c == "" {
		return 0
	}
	if PluralMatch(p, c) {
		return 100
	}
	if strings.Contains(p, c) || strings.Contains(c, p) {
		return 60
	}
	pSet := tokenSet(phrase)
	hits := 0
	for _, t := range strings.Fields(Normalize(name)) {
		if _, ok := pSet[t]; ok {
			hits++
			continue
		}
		if _, ok := pSet[t+"s"]; ok {
			hits++
			continue
		}
		if _, ok := pSet[strings.TrimSuffix(t, "s")]; ok {
			hits++
		}
	}
	if hits == 0 {
		return 0
	}
	return 10 + hits*10
}

// InferCategory returns the best-scoring category for a phrase that
// failed item resolution, or nil when nothing overlaps. Guiding the
// customer to a relevant screen is lower-risk than adding a wrong
// item, so the bar here is any positive score.
func InferCategory(c *catalog.Catalog, phrase string) *catalog.Category {
	if c == nil {
		return nil
	}
	var best *catalog.Category
	bestScore := 0
	for i := range c.Categories {
		if s := ScoreCategory(phrase, c.Categories[i].Name); s > bestScore {
			bestScore = s
			best = &c.Categories[i]
		}
	}
	return best
}
