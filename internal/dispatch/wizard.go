package dispatch

import (
	"fmt"
	"strings"

	"github.com/voicekiosk/voicekiosk/internal/catalog"
	"github.com/voicekiosk/voicekiosk/internal/order"
	"github.com/voicekiosk/voicekiosk/internal/textmatch"
)

func (d *Dispatcher) startItemFlow(inv Invocation) string {
	args, err := decodeArgs[itemNameArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:startItemFlow"
	}
	menu := d.orders.Catalog()
	if menu == nil {
		return "ITEM_NOT_FOUND:" + args.ItemName
	}
	m := textmatch.ResolveItem(menu, d.orders.SelectedCategory(), args.ItemName)
	if m == nil {
		return "ITEM_NOT_FOUND:" + args.ItemName
	}
	if m.Category != nil {
		if sel := d.orders.SelectedCategory(); sel == nil || sel.ID != m.Category.ID {
			d.orders.SelectCategory(m.Category.ID)
		}
	}
	d.orders.StartItemFlow(m.Item)
	switch d.orders.Step() {
	case order.StepVariant:
		return "WIZARD_STARTED:SELECT_VARIANT:" + m.Item.Name +
			" (Options: " + variantNames(m.Item.Variants) + ")"
	case order.StepModifier:
		return "WIZARD_STARTED:SELECT_MODIFIERS:" + m.Item.Name
	default:
		// A single plain variant goes straight to the cart.
		return addedToken(m.Item.Name)
	}
}

func (d *Dispatcher) selectVariant(inv Invocation) string {
	args, err := decodeArgs[variantNameArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:selectVariant"
	}
	item := d.orders.ActiveItem()
	if item == nil {
		return "ERROR:No active item. Use startItemFlow first."
	}
	v := matchVariant(item, args.VariantName)
	if v == nil {
		return "VARIANT_NOT_FOUND:" + args.VariantName + ". Available: " + variantNames(item.Variants)
	}
	d.orders.SelectVariant(v)
	if v.HasModifiers() {
		return "VARIANT_SELECTED:" + v.Name + ". SELECT_MODIFIERS:" + item.Name
	}
	return "ADDED:" + item.Name + " (" + v.Name + `). SCREEN_READY. MUST_ASK: "Anything else?"`
}

func (d *Dispatcher) toggleModifier(inv Invocation) string {
	args, err := decodeArgs[toggleModifierArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:toggleModifier"
	}
	variant := d.orders.ActiveVariant()
	if d.orders.ActiveItem() == nil || variant == nil {
		return "ERROR:No active customization. Use startItemFlow first."
	}

	m, g, ambiguous := matchModifierLoose(variant, args.ModifierName)
	if len(ambiguous) > 1 {
		opts := strings.Join(ambiguous, ", ")
		return "MODIFIER_AMBIGUOUS:" + args.ModifierName + ". Options: " + opts +
			`. ASK_USER: "Which one - ` + opts + `?"`
	}
	if m == nil {
		// Unknown request: keep it as a kitchen note instead of
		// silently dropping it.
		cur := d.orders.ActiveNote()
		if merged := appendNote(cur, args.ModifierName); merged != cur {
			d.orders.SetNote(merged)
		}
		return "NOTE_ADDED:" + args.ModifierName
	}

	curQty := 0
	selected := false
	for _, sm := range d.orders.ActiveModifiers() {
		if sm.ID == m.ID {
			selected = true
			curQty = sm.Qty
			break
		}
	}

	if args.Quantity != nil {
		q := int(*args.Quantity)
		if q <= 0 {
			if !selected {
				return "MODIFIER_ALREADY_REMOVED:" + m.Name
			}
			d.orders.ToggleModifier(*m, *g, true)
			return "MODIFIER_REMOVED:" + m.Name
		}
		if !selected {
			d.orders.ToggleModifier(*m, *g, false)
			if bool(g.IsMultiple) && q > 1 {
				d.orders.UpdateModifierQty(m.ID, q-1)
			}
			return "MODIFIER_ADDED:" + m.Name
		}
		if q == curQty {
			return fmt.Sprintf("MODIFIER_ALREADY_HAS_QTY:%s (%d)", m.Name, curQty)
		}
		d.orders.UpdateModifierQty(m.ID, q-curQty)
		return fmt.Sprintf("MODIFIER_QTY_UPDATED:%s to %d", m.Name, q)
	}

	d.orders.ToggleModifier(*m, *g, false)
	if selected && !bool(g.IsMultiple) {
		return "MODIFIER_REMOVED:" + m.Name
	}
	return "MODIFIER_ADDED:" + m.Name
}

// matchModifierLoose collects every option whose name overlaps the
// request. One hit (or an exact hit among several) resolves; several
// loose hits come back as option names for a follow-up question.
func matchModifierLoose(v *catalog.Variant, name string) (*catalog.Modifier, *catalog.ModifierGroup, []string) {
	sq := textmatch.Squash(name)
	if sq == "" {
		return nil, nil, nil
	}
	type hit struct {
		m *catalog.Modifier
		g *catalog.ModifierGroup
	}
	var hits []hit
	for gi := range v.ModifierGroups {
		g := &v.ModifierGroups[gi]
		for mi := range g.Modifiers {
			m := &g.Modifiers[mi]
			msq := textmatch.Squash(m.Name)
			if msq == "" {
				continue
			}
			if strings.Contains(msq, sq) || strings.Contains(sq, msq) {
				hits = append(hits, hit{m, g})
			}
		}
	}
	if len(hits) == 0 {
		return nil, nil, nil
	}
	if len(hits) > 1 {
		for _, h := range hits {
			if textmatch.Squash(h.m.Name) == sq {
				return h.m, h.g, nil
			}
		}
		names := make([]string, 0, 3)
		for _, h := range hits {
			if len(names) == 3 {
				break
			}
			names = append(names, h.m.Name)
		}
		return nil, nil, names
	}
	return hits[0].m, hits[0].g, nil
}

func (d *Dispatcher) confirmSelection() string {
	item := d.orders.ActiveItem()
	if item == nil {
		return "NO_ACTIVE_ITEM_TO_CONFIRM"
	}
	name := item.Name
	d.orders.ConfirmItem()
	return "ITEM_CONFIRMED:" + name + ". SHOWING_CATEGORIES. ASK_ANYTHING_ELSE"
}

func (d *Dispatcher) updateModifierQuantity(inv Invocation) string {
	args, err := decodeArgs[modifierQtyArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:updateModifierQuantity"
	}
	if d.orders.ActiveItem() == nil || d.orders.ActiveVariant() == nil {
		return "ERROR:No active customization. Use startItemFlow first."
	}
	mods := d.orders.ActiveModifiers()
	idx := findSelected(mods, args.ModifierName)
	if idx < 0 {
		return "ERROR:" + args.ModifierName + " not selected. Use toggleModifier first."
	}
	q := int(args.Quantity)
	delta := q - mods[idx].Qty
	if delta == 0 {
		return fmt.Sprintf("MODIFIER_QUANTITY_UNCHANGED:%s already x%d", mods[idx].Name, q)
	}
	d.orders.UpdateModifierQty(mods[idx].ID, delta)
	return fmt.Sprintf("MODIFIER_QUANTITY_UPDATED:%s x%d", mods[idx].Name, q)
}

func (d *Dispatcher) changeCategory(inv Invocation) string {
	args, err := decodeArgs[categoryNameArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:changeCategory"
	}
	menu := d.orders.Catalog()
	if menu == nil {
		return "CATEGORY_NOT_FOUND:" + args.CategoryName
	}
	c := textmatch.FindCategory(menu, args.CategoryName)
	if c == nil {
		names := make([]string, len(menu.Categories))
		for i := range menu.Categories {
			names[i] = menu.Categories[i].Name
		}
		return "CATEGORY_NOT_FOUND:" + args.CategoryName + ".AVAILABLE:" + strings.Join(names, ", ")
	}
	d.orders.CancelFlow()
	d.orders.SelectCategory(c.ID)
	return "CATEGORY_SHOWN:" + c.Name
}

func (d *Dispatcher) getMenuDetails(inv Invocation) string {
	args, err := decodeArgs[itemNameArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:getMenuDetails"
	}
	menu := d.orders.Catalog()
	if menu == nil {
		return "ITEM_NOT_FOUND:" + args.ItemName
	}
	m := textmatch.ResolveItem(menu, d.orders.SelectedCategory(), args.ItemName)
	if m == nil {
		return "ITEM_NOT_FOUND:" + args.ItemName
	}
	if m.Category != nil {
		d.orders.SelectCategory(m.Category.ID)
	}
	price := "Varies"
	if len(m.Item.Variants) == 1 {
		price = pounds(m.Item.Variants[0].Price)
	}
	desc := m.Item.Description
	if desc == "" {
		desc = "No description available"
	}
	return "DETAILS: Item: " + m.Item.Name + ". Price: " + price + ". Description: " + desc
}

func (d *Dispatcher) getModifierDetails(inv Invocation) string {
	args, err := decodeArgs[modifierDetailArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:getModifierDetails"
	}
	menu := d.orders.Catalog()
	if menu == nil {
		return "ITEM_NOT_FOUND:" + args.ItemName
	}
	m := textmatch.ResolveItem(menu, d.orders.SelectedCategory(), args.ItemName)
	if m == nil {
		return "ITEM_NOT_FOUND:" + args.ItemName
	}
	for vi := range m.Item.Variants {
		if mod, _ := findModifier(&m.Item.Variants[vi], args.ModifierName); mod != nil {
			if mod.Price == 0 {
				return fmt.Sprintf("MODIFIER_DETAILS: %s is FREE_WITH_MEAL in %s", mod.Name, m.Item.Name)
			}
			return fmt.Sprintf("MODIFIER_DETAILS: %s costs %s in %s", mod.Name, pounds(mod.Price), m.Item.Name)
		}
	}
	return "MODIFIER_NOT_FOUND:" + args.ModifierName + " in " + m.Item.Name
}

func (d *Dispatcher) showModifierShowcase() string {
	if d.orders.Step() != order.StepModifier {
		return "ERROR:Modifier screen not active"
	}
	return "SCROLLING_MODIFIERS:Showcasing all available toppings (3 seconds)"
}
