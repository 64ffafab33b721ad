package dispatch

import (
	"fmt"
	"strings"

	"github.com/voicekiosk/voicekiosk/internal/order"
	"github.com/voicekiosk/voicekiosk/internal/textmatch"
)

func (d *Dispatcher) findCartLine(name string) *order.CartLine {
	sq := textmatch.Squash(name)
	if sq == "" {
		return nil
	}
	cart := d.orders.Cart()
	for i := range cart {
		if textmatch.Squash(cart[i].Name) == sq {
			return &cart[i]
		}
	}
	for i := range cart {
		if squashContains(cart[i].Name, name) {
			return &cart[i]
		}
	}
	return nil
}

func (d *Dispatcher) editCartItem(inv Invocation) string {
	args, err := decodeArgs[editCartItemArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:editCartItem"
	}
	line := d.findCartLine(args.ItemName)
	if line == nil {
		return "CART_ITEM_NOT_FOUND:" + args.ItemName
	}
	menu := d.orders.Catalog()
	if menu == nil {
		return "ITEM_DETAILS_NOT_FOUND"
	}
	item, _ := menu.Item(line.ItemID)
	if item == nil {
		return "ITEM_DETAILS_NOT_FOUND"
	}

	variant := item.Variant(line.VariantID)
	variantChanged := ""
	if v := strings.TrimSpace(args.VariantName); v != "" {
		if target := matchVariant(item, v); target != nil && target.ID != line.VariantID {
			d.orders.UpdateCartLineVariant(line.CartID, target)
			variant = target
			variantChanged = target.Name
		}
	}

	mods := append([]order.SelectedModifier(nil), line.Modifiers...)
	note := line.Note
	modsChanged := false
	noteChanged := false
	var added, removed, noted []string

	for _, upd := range args.ModifierUpdates {
		q := int(upd.Quantity)
		idx := findSelected(mods, upd.Name)
		if q <= 0 {
			if idx >= 0 {
				removed = append(removed, mods[idx].Name)
				mods = append(mods[:idx], mods[idx+1:]...)
				modsChanged = true
			} else if note != "" && squashContains(note, upd.Name) {
				note = removeNotePart(note, upd.Name)
				noteChanged = true
				removed = append(removed, upd.Name)
			}
			continue
		}
		if idx >= 0 {
			if mods[idx].Qty != q {
				mods[idx].Qty = q
				modsChanged = true
				added = append(added, fmt.Sprintf("%s x%d", mods[idx].Name, q))
			}
			continue
		}
		if variant != nil {
			if m, g := findModifier(variant, upd.Name); m != nil {
				sm := selectedFrom(m, g)
				sm.Qty = q
				mods = append(mods, sm)
				modsChanged = true
				added = append(added, fmt.Sprintf("%s x%d", m.Name, q))
				continue
			}
		}
		noted = append(noted, upd.Name)
	}

	for _, name := range args.ModifiersToAdd {
		if findSelected(mods, name) >= 0 {
			continue
		}
		if variant != nil {
			if m, g := findModifier(variant, name); m != nil {
				mods = appendSelected(mods, m, g)
				modsChanged = true
				added = append(added, m.Name)
				continue
			}
		}
		noted = append(noted, name)
	}

	if modsChanged {
		d.orders.UpdateCartLineModifiers(line.CartID, mods)
	}
	for _, n := range noted {
		if merged := appendNote(note, n); merged != note {
			note = merged
			noteChanged = true
		}
	}
	if args.Note != nil && *args.Note != line.Note {
		note = *args.Note
		noteChanged = true
	}
	if noteChanged {
		d.orders.UpdateCartLineNote(line.CartID, note)
	}

	if variantChanged != "" && !modsChanged && !noteChanged {
		return "UPDATED_VARIANT:" + line.Name + " to " + variantChanged
	}

	var parts []string
	if variantChanged != "" {
		parts = append(parts, "Variant: "+variantChanged+".")
	}
	if len(added) > 0 {
		parts = append(parts, "Added: "+strings.Join(added, ", ")+".")
	}
	if len(removed) > 0 {
		parts = append(parts, "Removed: "+strings.Join(removed, ", ")+".")
	}
	if len(noted) > 0 {
		parts = append(parts, "Notes: "+strings.Join(noted, ", ")+".")
	}
	if args.Note != nil && noteChanged {
		parts = append(parts, "Note updated.")
	}
	if len(parts) == 0 {
		return "NO_CHANGES_MADE:" + line.Name
	}
	return "CHANGES_SAVED: " + strings.Join(parts, " ")
}

func (d *Dispatcher) showCart() string {
	cart := d.orders.Cart()
	entries := make([]string, 0, len(cart))
	for _, l := range cart {
		entry := fmt.Sprintf("%dx %s", l.Qty, l.Name)
		if l.VariantName != "" && !strings.EqualFold(l.VariantName, l.Name) {
			entry += " (" + l.VariantName + ")"
		}
		if len(l.Modifiers) > 0 {
			names := make([]string, 0, len(l.Modifiers))
			for _, m := range l.Modifiers {
				if m.Qty > 1 {
					names = append(names, fmt.Sprintf("%s x%d", m.Name, m.Qty))
				} else {
					names = append(names, m.Name)
				}
			}
			entry += " (+" + strings.Join(names, ", ") + ")"
		}
		entries = append(entries, entry)
	}
	return "OPENED_CART_DRAWER: Success. Cart Items: [" + strings.Join(entries, ", ") +
		"]. Total: " + pounds(d.orders.CartTotal())
}

func (d *Dispatcher) showPaymentOptions() string {
	return "PAYMENT_OPTIONS_SHOWN. Cart total: " + pounds(d.orders.CartTotal()) +
		`. SCREEN_READY. NOW_ASK: "Would you like to pay by card or cash?"`
}

func (d *Dispatcher) setPaymentMethod(inv Invocation) string {
	args, err := decodeArgs[paymentArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:setPaymentMethod"
	}
	switch strings.ToLower(strings.TrimSpace(args.PaymentMethod)) {
	case "card":
		d.orders.SetPaymentMethod(order.PayCard)
		return "PAYMENT_SET:card"
	case "cash":
		d.orders.SetPaymentMethod(order.PayCash)
		return "PAYMENT_SET:cash"
	default:
		return "PAYMENT_METHOD_INVALID"
	}
}

func (d *Dispatcher) checkout(inv Invocation) string {
	args, err := decodeArgs[paymentArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:checkout"
	}
	method := order.PayCash
	if strings.Contains(strings.ToLower(args.PaymentMethod), "card") {
		method = order.PayCard
	}
	d.orders.SetPaymentMethod(method)
	if method == order.PayCard {
		d.orders.SetCardStatus(order.CardProcessing)
	}
	num, err := d.orders.PlaceOrder(method)
	if err != nil {
		if method == order.PayCard {
			d.orders.SetCardStatus(order.CardFailed)
		}
		d.logger.Error().Err(err).Msg("order submission failed")
		return "ORDER_ERROR"
	}
	if method == order.PayCard {
		d.orders.SetCardStatus(order.CardSuccess)
	}
	return fmt.Sprintf("ORDER_SUBMITTED:%d", num)
}

func (d *Dispatcher) removeFromCart(inv Invocation) string {
	args, err := decodeArgs[itemNameArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:removeFromCart"
	}
	cart := d.orders.Cart()
	// Latest addition first: "remove the burger" after adding two
	// means the most recent one.
	for i := len(cart) - 1; i >= 0; i-- {
		if squashContains(cart[i].Name, args.ItemName) {
			d.orders.RemoveFromCart(cart[i].CartID)
			return "REMOVED:" + cart[i].Name
		}
	}
	return "ITEM_NOT_IN_CART:" + args.ItemName
}

func (d *Dispatcher) updateCartItemQuantity(inv Invocation) string {
	args, err := decodeArgs[cartQtyArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:updateCartItemQuantity"
	}
	line := d.findCartLine(args.ItemName)
	if line == nil {
		return "ITEM_NOT_IN_CART:" + args.ItemName
	}
	q := int(args.Quantity)
	if q < 0 {
		q = 0
	}
	delta := q - line.Qty
	if delta == 0 {
		return fmt.Sprintf("QUANTITY_UNCHANGED:%s is already %d", line.Name, q)
	}
	d.orders.UpdateCartLineQty(line.CartID, delta)
	return fmt.Sprintf("QUANTITY_UPDATED:%s to %d", line.Name, q)
}
