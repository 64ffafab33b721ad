// Package dispatch executes tool invocations from the live session
// against the order state, returning the token strings the model is
// prompted to react to. Every handler is synchronous; the session
// serializes calls in arrival order.
package dispatch

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/voicekiosk/voicekiosk/internal/catalog"
	"github.com/voicekiosk/voicekiosk/internal/order"
	"github.com/voicekiosk/voicekiosk/internal/textmatch"
)

// Dispatcher routes tool invocations to order-state handlers.
type Dispatcher struct {
	logger zerolog.Logger
	orders *order.Manager
	dedup  *Tracker

	// stop tears the live session down; invoked by stopListening.
	stop func()

	mu        sync.Mutex
	processed map[string]struct{}
}

func New(orders *order.Manager, dedup *Tracker, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:    logger.With().Str("component", "dispatch").Logger(),
		orders:    orders,
		dedup:     dedup,
		processed: make(map[string]struct{}),
	}
}

// SetStopFunc registers the session teardown used by stopListening.
func (d *Dispatcher) SetStopFunc(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stop = fn
}

// Reset forgets processed invocation ids and dedup history. Called
// when a session ends so a fresh session starts clean.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.processed = make(map[string]struct{})
	d.mu.Unlock()
	d.dedup.Clear()
}

// Handle runs one invocation. The second return is false when the
// invocation id was already processed; replays get no response at all
// rather than a second state mutation.
func (d *Dispatcher) Handle(inv Invocation) (Result, bool) {
	if inv.ID != "" {
		d.mu.Lock()
		if _, seen := d.processed[inv.ID]; seen {
			d.mu.Unlock()
			d.logger.Warn().Str("id", inv.ID).Str("tool", inv.Name).Msg("replayed invocation ignored")
			return Result{}, false
		}
		d.processed[inv.ID] = struct{}{}
		d.mu.Unlock()
	}
	out := d.run(inv)
	d.logger.Debug().Str("tool", inv.Name).Str("result", out).Msg("tool handled")
	return Result{ID: inv.ID, Name: inv.Name, Output: out}, true
}

func (d *Dispatcher) run(inv Invocation) string {
	switch inv.Name {
	case "stopListening":
		return d.stopListening()
	case "addToCart":
		return d.addToCart(inv)
	case "clearCart":
		d.orders.ClearCart()
		return "CART_CLEARED_AND_CLOSED"
	case "editCartItem":
		return d.editCartItem(inv)
	case "showCart":
		return d.showCart()
	case "showPaymentOptions":
		return d.showPaymentOptions()
	case "setPaymentMethod":
		return d.setPaymentMethod(inv)
	case "checkout":
		return d.checkout(inv)
	case "startItemFlow":
		return d.startItemFlow(inv)
	case "selectVariant":
		return d.selectVariant(inv)
	case "toggleModifier":
		return d.toggleModifier(inv)
	case "confirmSelection":
		return d.confirmSelection()
	case "updateModifierQuantity":
		return d.updateModifierQuantity(inv)
	case "changeCategory":
		return d.changeCategory(inv)
	case "getMenuDetails":
		return d.getMenuDetails(inv)
	case "getModifierDetails":
		return d.getModifierDetails(inv)
	case "removeFromCart":
		return d.removeFromCart(inv)
	case "updateCartItemQuantity":
		return d.updateCartItemQuantity(inv)
	case "showModifierShowcase":
		return d.showModifierShowcase()
	default:
		d.logger.Warn().Str("tool", inv.Name).Msg("unknown tool name")
		return "UNKNOWN_TOOL:" + inv.Name
	}
}

func (d *Dispatcher) stopListening() string {
	d.mu.Lock()
	stop := d.stop
	d.mu.Unlock()
	if stop != nil {
		// Deferred so the response reaches the wire before the
		// connection drops.
		go stop()
	}
	return "MICROPHONE_STOPPED"
}

func (d *Dispatcher) addToCart(inv Invocation) string {
	args, err := decodeArgs[addToCartArgs](inv.Args)
	if err != nil {
		return "INVALID_ARGUMENTS:addToCart"
	}
	name := strings.TrimSpace(args.ItemName)
	qty := int(args.Quantity)
	if qty <= 0 {
		qty = 1
	}
	mode := args.Mode
	if mode == "" {
		mode = "add"
	}

	if d.dedup.IsDuplicate(AddKey(name, args.VariantName, qty)) {
		return "DUPLICATE_ADD_IGNORED:" + name
	}
	if name == "" {
		return "ITEM_NOT_FOUND:"
	}
	menu := d.orders.Catalog()
	if menu == nil {
		return "ITEM_NOT_FOUND:" + name
	}

	// "Show me the burgers" must land on the category screen, not on
	// whichever burger matched first.
	if c := textmatch.FindCategory(menu, name); c != nil && treatAsCategory(name, c.Name) {
		d.orders.SelectCategory(c.ID)
		return "CATEGORY_SHOWN:" + c.Name
	}

	item, owner := d.resolveWithContext(menu, name)
	if item == nil {
		if c := inferAnyCategory(menu, name); c != nil {
			d.orders.SelectCategory(c.ID)
			return "ITEM_NOT_FOUND_CATEGORY_SHOWN:" + name + "->" + c.Name
		}
		return "ITEM_NOT_FOUND:" + name
	}
	if owner != nil {
		if sel := d.orders.SelectedCategory(); sel == nil || sel.ID != owner.ID {
			d.orders.SelectCategory(owner.ID)
		}
	}
	if len(item.Variants) == 0 {
		return "ITEM_NOT_FOUND:" + name
	}

	if len(item.Variants) > 1 && strings.TrimSpace(args.VariantName) == "" {
		if mode == "show" {
			return "SHOWING_ITEM:" + item.Name
		}
		d.orders.StartItemFlow(item)
		if args.Note != "" {
			d.orders.SetNote(args.Note)
		}
		return "SELECT_VARIANT:" + item.Name + " (Options: " + variantNames(item.Variants) + "). SCREEN_READY. NOW_ASK_VARIANT"
	}

	target := &item.Variants[0]
	if v := strings.TrimSpace(args.VariantName); v != "" {
		target = matchVariant(item, v)
		if target == nil {
			d.orders.StartItemFlow(item)
			return "VARIANT_MISMATCH:" + item.Name
		}
	}

	if target.HasModifiers() && args.Modifiers == nil {
		active := d.orders.ActiveItem()
		if mode == "show" && (active == nil || active.ID != item.ID) {
			return "SHOWING_ITEM:" + item.Name
		}
		d.orders.StartItemFlow(item)
		d.orders.SelectVariant(target)
		if args.Note != "" {
			d.orders.SetNote(args.Note)
		}
		return "SELECT_MODIFIERS:" + target.Name + " " + item.Name +
			" (Groups: " + groupSummary(target) + ")" + freeSummary(target) +
			". SCREEN_READY. NOW_ASK_MODIFIERS"
	}

	if args.Modifiers != nil {
		mods, missing := resolveModifiers(target, args.Modifiers)
		note := args.Note
		for _, m := range missing {
			note = appendNote(note, m)
		}
		d.orders.AddToCart(item, target.ID, mods, qty, note)
		d.orders.CancelFlow()
		return addedToken(item.Name)
	}

	// Simple item: no modifier choice to make.
	if !args.AllowDuplicate && mode == "add" {
		if line := d.sameItemInCart(item); line != nil {
			return "ITEM_ALREADY_IN_CART:" + item.Name +
				`. ASK_USER: "You already have ` + item.Name +
				` in your cart. Do you want to add another one, or change the existing one?"`
		}
	}
	if mode == "add" {
		d.orders.AddToCart(item, target.ID, nil, qty, args.Note)
		return addedToken(item.Name)
	}
	return "SHOWING_ITEM:" + item.Name
}

// resolveWithContext prefers the wizard's active item when the phrase
// plainly refers to it ("add it", "the large one"), then falls back to
// full catalog resolution.
func (d *Dispatcher) resolveWithContext(menu *catalog.Catalog, phrase string) (*catalog.Item, *catalog.Category) {
	if active := d.orders.ActiveItem(); active != nil && refersToActive(active, phrase) {
		return active, d.orders.SelectedCategory()
	}
	if m := textmatch.ResolveItem(menu, d.orders.SelectedCategory(), phrase); m != nil {
		return m.Item, m.Category
	}
	return nil, nil
}

func (d *Dispatcher) sameItemInCart(item *catalog.Item) *order.CartLine {
	cart := d.orders.Cart()
	for i := range cart {
		if cart[i].ItemID == item.ID || textmatch.Squash(cart[i].Name) == textmatch.Squash(item.Name) {
			return &cart[i]
		}
	}
	return nil
}

func refersToActive(active *catalog.Item, phrase string) bool {
	sq := textmatch.Squash(phrase)
	switch sq {
	case "item", "it", "this", "that", "with", "withme", "withmeal":
		return true
	}
	if sq == "" {
		return false
	}
	an := textmatch.Squash(active.Name)
	if strings.Contains(an, sq) || strings.Contains(sq, an) {
		return true
	}
	for i := range active.Variants {
		vn := textmatch.Squash(active.Variants[i].Name)
		if vn != "" && (vn == sq || strings.Contains(sq, vn)) {
			return true
		}
	}
	return false
}

// treatAsCategory reports whether a phrase that loosely matched a
// category really is a category request rather than an item whose name
// shares words with it. Beyond pure browse phrasing, "add burgers" and
// plain "burgers" count; "amigo burger" does not.
func treatAsCategory(phrase, categoryName string) bool {
	if textmatch.IsPureCategoryRequest(phrase, categoryName) {
		return true
	}
	norm := textmatch.Normalize(phrase)
	normCat := textmatch.Normalize(categoryName)
	if norm == "" || normCat == "" {
		return false
	}
	for _, w := range strings.Fields(norm) {
		switch w {
		case "add", "want", "buy", "get", "have":
			continue
		}
		if !strings.Contains(normCat, w) {
			return false
		}
	}
	return true
}

func inferAnyCategory(menu *catalog.Catalog, phrase string) *catalog.Category {
	if c := textmatch.InferCategory(menu, phrase); c != nil {
		return c
	}
	return textmatch.FindCategory(menu, phrase)
}
