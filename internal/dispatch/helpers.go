package dispatch

import (
	"fmt"
	"strings"

	"github.com/voicekiosk/voicekiosk/internal/catalog"
	"github.com/voicekiosk/voicekiosk/internal/order"
	"github.com/voicekiosk/voicekiosk/internal/textmatch"
)

func pounds(pence int) string {
	return fmt.Sprintf("£%.2f", float64(pence)/100)
}

func addedToken(itemName string) string {
	return "ADDED:" + itemName + `. SCREEN_READY. MUST_ASK: "Anything else?"`
}

func squashContains(a, b string) bool {
	sa, sb := textmatch.Squash(a), textmatch.Squash(b)
	if sa == "" || sb == "" {
		return false
	}
	return strings.Contains(sa, sb) || strings.Contains(sb, sa)
}

func variantNames(vs []catalog.Variant) string {
	names := make([]string, len(vs))
	for i := range vs {
		names[i] = vs[i].Name
	}
	return strings.Join(names, ", ")
}

func matchVariant(item *catalog.Item, name string) *catalog.Variant {
	for i := range item.Variants {
		if squashContains(item.Variants[i].Name, name) {
			return &item.Variants[i]
		}
	}
	return nil
}

// groupSummary lists each modifier group with up to four options, the
// shape the model can read back to the customer.
func groupSummary(v *catalog.Variant) string {
	var groups []string
	for _, g := range v.ModifierGroups {
		if len(g.Modifiers) == 0 {
			continue
		}
		names := make([]string, 0, 4)
		for _, m := range g.Modifiers {
			if len(names) == 4 {
				break
			}
			names = append(names, m.Name)
		}
		groups = append(groups, g.GroupName+": "+strings.Join(names, ", "))
	}
	return strings.Join(groups, " | ")
}

func freeSummary(v *catalog.Variant) string {
	var free []string
	for _, g := range v.ModifierGroups {
		for _, m := range g.Modifiers {
			if m.Price == 0 {
				free = append(free, m.Name)
			}
		}
	}
	if len(free) == 0 {
		return ""
	}
	return " [FREE: " + strings.Join(free, ", ") + "]"
}

func selectedFrom(m *catalog.Modifier, g *catalog.ModifierGroup) order.SelectedModifier {
	return order.SelectedModifier{
		ID:        m.ID,
		GroupID:   g.ID,
		GroupName: g.GroupName,
		Name:      m.Name,
		Price:     m.Price,
		Qty:       1,
	}
}

// findModifier matches a requested phrase against the variant's
// option lists by name containment.
func findModifier(v *catalog.Variant, phrase string) (*catalog.Modifier, *catalog.ModifierGroup) {
	sq := textmatch.Squash(phrase)
	if sq == "" {
		return nil, nil
	}
	for gi := range v.ModifierGroups {
		g := &v.ModifierGroups[gi]
		for mi := range g.Modifiers {
			m := &g.Modifiers[mi]
			if strings.Contains(textmatch.Squash(m.Name), sq) {
				return m, g
			}
		}
	}
	return nil, nil
}

// findEmbeddedModifier handles phrases that wrap a known option in
// extra words ("with extra cheese please"). The leftover text, minus
// connective lead-ins, comes back for the note.
func findEmbeddedModifier(v *catalog.Variant, phrase string) (*catalog.Modifier, *catalog.ModifierGroup, string) {
	sq := textmatch.Squash(phrase)
	if sq == "" {
		return nil, nil, ""
	}
	for gi := range v.ModifierGroups {
		g := &v.ModifierGroups[gi]
		for mi := range g.Modifiers {
			m := &g.Modifiers[mi]
			msq := textmatch.Squash(m.Name)
			if msq == "" || !strings.Contains(sq, msq) {
				continue
			}
			return m, g, stripName(phrase, m.Name)
		}
	}
	return nil, nil, ""
}

func stripName(phrase, name string) string {
	lower := strings.ToLower(phrase)
	if idx := strings.Index(lower, strings.ToLower(name)); idx >= 0 {
		phrase = phrase[:idx] + phrase[idx+len(name):]
	}
	words := strings.Fields(phrase)
	for len(words) > 0 {
		switch strings.ToLower(words[0]) {
		case "with", "and":
			words = words[1:]
			continue
		}
		break
	}
	out := strings.Join(words, " ")
	if textmatch.Normalize(out) == "" {
		return ""
	}
	return out
}

// resolveModifiers maps requested modifier phrases onto the variant's
// options. Phrases that match nothing come back as missing and end up
// on the line note instead of being dropped.
func resolveModifiers(v *catalog.Variant, wanted []string) ([]order.SelectedModifier, []string) {
	var sel []order.SelectedModifier
	var missing []string
	for _, w := range wanted {
		phrase := strings.TrimSpace(w)
		if phrase == "" {
			continue
		}
		if m, g := findModifier(v, phrase); m != nil {
			sel = appendSelected(sel, m, g)
			continue
		}
		if m, g, rest := findEmbeddedModifier(v, phrase); m != nil {
			sel = appendSelected(sel, m, g)
			if rest != "" {
				missing = append(missing, rest)
			}
			continue
		}
		missing = append(missing, phrase)
	}
	return sel, missing
}

func appendSelected(sel []order.SelectedModifier, m *catalog.Modifier, g *catalog.ModifierGroup) []order.SelectedModifier {
	for i := range sel {
		if sel[i].ID == m.ID {
			return sel
		}
	}
	return append(sel, selectedFrom(m, g))
}

func appendNote(note, extra string) string {
	extra = strings.TrimSpace(extra)
	if extra == "" {
		return note
	}
	if note == "" {
		return extra
	}
	if strings.Contains(textmatch.Squash(note), textmatch.Squash(extra)) {
		return note
	}
	return note + "; " + extra
}

func removeNotePart(note, phrase string) string {
	var kept []string
	for _, p := range strings.Split(note, ";") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if squashContains(p, phrase) {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "; ")
}

func findSelected(mods []order.SelectedModifier, name string) int {
	for i := range mods {
		if squashContains(mods[i].Name, name) {
			return i
		}
	}
	return -1
}
