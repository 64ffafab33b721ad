package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicekiosk/voicekiosk/internal/catalog"
	"github.com/voicekiosk/voicekiosk/internal/order"
)

func testMenu() *catalog.Catalog {
	toppings := catalog.ModifierGroup{
		ID: "g1", GroupName: "Extra Toppings", IsMultiple: true,
		Modifiers: []catalog.Modifier{
			{ID: "m1", Name: "Extra Cheese", Price: 50},
			{ID: "m2", Name: "Olives", Price: 30},
			{ID: "m3", Name: "Mushrooms", Price: 40},
		},
	}
	drinkChoice := catalog.ModifierGroup{
		ID: "g2", GroupName: "Drink Choice", IsMultiple: false,
		Modifiers: []catalog.Modifier{
			{ID: "m10", Name: "Pepsi Can", Price: 0},
			{ID: "m11", Name: "Diet Pepsi Can", Price: 0},
			{ID: "m12", Name: "Pepsi Max Can", Price: 0},
			{ID: "m13", Name: "7UP Can", Price: 0},
		},
	}
	return &catalog.Catalog{Categories: []catalog.Category{
		{
			ID: "1", Name: "Pizza",
			Items: []catalog.Item{
				{
					ID: "10", Name: "Pepperoni Pizza",
					Variants: []catalog.Variant{
						{ID: "100", Name: "Regular", Price: 899, ModifierGroups: []catalog.ModifierGroup{toppings}},
					},
				},
				{
					ID: "11", Name: "Margherita Pizza", Description: "Classic tomato and mozzarella",
					Variants: []catalog.Variant{{ID: "110", Name: "Regular", Price: 799}},
				},
			},
		},
		{
			ID: "2", Name: "Burgers",
			Items: []catalog.Item{
				{
					ID: "20", Name: "Amigo Burger",
					Variants: []catalog.Variant{
						{ID: "200", Name: "Solo", Price: 549},
						{ID: "201", Name: "Meal", Price: 749},
					},
				},
			},
		},
		{
			ID: "3", Name: "Meals",
			Items: []catalog.Item{
				{
					ID: "30", Name: "Amigo Burger Meal",
					Variants: []catalog.Variant{
						{ID: "300", Name: "Regular", Price: 1299, ModifierGroups: []catalog.ModifierGroup{drinkChoice}},
					},
				},
			},
		},
		{
			ID: "4", Name: "Drinks",
			Items: []catalog.Item{
				{ID: "40", Name: "Coke", Variants: []catalog.Variant{{ID: "400", Name: "Can", Price: 150}}},
			},
		},
	}}
}

type fixture struct {
	d      *Dispatcher
	orders *order.Manager
	now    time.Time
	seq    int
}

func newFixture() *fixture {
	f := &fixture{now: time.Unix(1700000000, 0)}
	f.orders = order.NewManager(testMenu(), zerolog.Nop())
	tracker := newTrackerAt(200*time.Millisecond, func() time.Time { return f.now })
	f.d = New(f.orders, tracker, zerolog.Nop())
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) call(t *testing.T, name, args string) string {
	t.Helper()
	f.seq++
	res, ok := f.d.Handle(Invocation{
		ID:   fmt.Sprintf("inv-%d", f.seq),
		Name: name,
		Args: json.RawMessage(args),
	})
	if !ok {
		t.Fatalf("%s invocation dropped", name)
	}
	return res.Output
}

func TestAddToCart_ModifierFlow(t *testing.T) {
	f := newFixture()

	out := f.call(t, "addToCart", `{"itemName":"pepperoni pizza"}`)
	if !strings.HasPrefix(out, "SELECT_MODIFIERS:") {
		t.Fatalf("first call = %q, want SELECT_MODIFIERS prefix", out)
	}
	if f.orders.Step() != order.StepModifier {
		t.Fatalf("step = %q, want MODIFIER", f.orders.Step())
	}
	if len(f.orders.Cart()) != 0 {
		t.Fatalf("cart mutated before modifiers chosen")
	}

	f.advance(time.Second)
	out = f.call(t, "addToCart", `{"itemName":"pepperoni pizza","modifiers":["extra cheese"]}`)
	if !strings.HasPrefix(out, "ADDED:Pepperoni Pizza") {
		t.Fatalf("second call = %q, want ADDED prefix", out)
	}
	cart := f.orders.Cart()
	if len(cart) != 1 {
		t.Fatalf("cart lines = %d, want 1", len(cart))
	}
	if cart[0].Total != 949 {
		t.Fatalf("line total = %d, want 949", cart[0].Total)
	}
	if len(cart[0].Modifiers) != 1 || cart[0].Modifiers[0].Name != "Extra Cheese" {
		t.Fatalf("modifiers = %+v", cart[0].Modifiers)
	}
	if f.orders.ActiveItem() != nil {
		t.Fatalf("wizard still open after add")
	}
}

func TestAddToCart_CategoryResolution(t *testing.T) {
	f := newFixture()
	out := f.call(t, "addToCart", `{"itemName":"pizza"}`)
	if out != "CATEGORY_SHOWN:Pizza" {
		t.Fatalf("result = %q", out)
	}
	if len(f.orders.Cart()) != 0 {
		t.Fatalf("cart mutated by category request")
	}
	if got := f.orders.SelectedCategory(); got == nil || got.Name != "Pizza" {
		t.Fatalf("selected category = %+v", got)
	}
}

func TestAddToCart_DuplicateWindow(t *testing.T) {
	f := newFixture()

	out := f.call(t, "addToCart", `{"itemName":"coke","quantity":1}`)
	if !strings.HasPrefix(out, "ADDED:Coke") {
		t.Fatalf("first add = %q", out)
	}
	out = f.call(t, "addToCart", `{"itemName":"coke","quantity":1}`)
	if out != "DUPLICATE_ADD_IGNORED:coke" {
		t.Fatalf("burst repeat = %q", out)
	}
	if len(f.orders.Cart()) != 1 {
		t.Fatalf("cart lines = %d, want 1", len(f.orders.Cart()))
	}

	// Past the window the guard moves to the softer already-in-cart
	// question, and an explicit confirmation goes through.
	f.advance(time.Second)
	out = f.call(t, "addToCart", `{"itemName":"coke","quantity":1}`)
	if !strings.HasPrefix(out, "ITEM_ALREADY_IN_CART:Coke") {
		t.Fatalf("repeat after window = %q", out)
	}
	f.advance(time.Second)
	out = f.call(t, "addToCart", `{"itemName":"coke","quantity":1,"allowDuplicate":true}`)
	if !strings.HasPrefix(out, "ADDED:Coke") {
		t.Fatalf("confirmed duplicate = %q", out)
	}
	if len(f.orders.Cart()) != 2 {
		t.Fatalf("cart lines = %d, want 2", len(f.orders.Cart()))
	}
}

func TestToggleModifier_AmbiguousMatch(t *testing.T) {
	f := newFixture()
	out := f.call(t, "startItemFlow", `{"itemName":"amigo burger meal"}`)
	if out != "WIZARD_STARTED:SELECT_MODIFIERS:Amigo Burger Meal" {
		t.Fatalf("flow start = %q", out)
	}

	out = f.call(t, "toggleModifier", `{"modifierName":"pepsi"}`)
	want := "MODIFIER_AMBIGUOUS:pepsi. Options: Pepsi Can, Diet Pepsi Can, Pepsi Max Can"
	if !strings.HasPrefix(out, want) {
		t.Fatalf("result = %q, want prefix %q", out, want)
	}
	if len(f.orders.ActiveModifiers()) != 0 {
		t.Fatalf("ambiguous request selected a modifier")
	}

	out = f.call(t, "toggleModifier", `{"modifierName":"pepsi max"}`)
	if out != "MODIFIER_ADDED:Pepsi Max Can" {
		t.Fatalf("narrowed request = %q", out)
	}
}

func TestToggleModifier_QuantitiesAndNotes(t *testing.T) {
	f := newFixture()
	f.call(t, "startItemFlow", `{"itemName":"pepperoni pizza"}`)

	if out := f.call(t, "toggleModifier", `{"modifierName":"olives","quantity":3}`); out != "MODIFIER_ADDED:Olives" {
		t.Fatalf("add with quantity = %q", out)
	}
	mods := f.orders.ActiveModifiers()
	if len(mods) != 1 || mods[0].Qty != 3 {
		t.Fatalf("modifiers = %+v, want Olives x3", mods)
	}
	if out := f.call(t, "toggleModifier", `{"modifierName":"olives","quantity":"3"}`); out != "MODIFIER_ALREADY_HAS_QTY:Olives (3)" {
		t.Fatalf("same quantity = %q", out)
	}
	if out := f.call(t, "toggleModifier", `{"modifierName":"olives","quantity":0}`); out != "MODIFIER_REMOVED:Olives" {
		t.Fatalf("removal = %q", out)
	}
	if out := f.call(t, "toggleModifier", `{"modifierName":"olives","quantity":0}`); out != "MODIFIER_ALREADY_REMOVED:Olives" {
		t.Fatalf("repeat removal = %q", out)
	}

	if out := f.call(t, "toggleModifier", `{"modifierName":"gluten free base"}`); out != "NOTE_ADDED:gluten free base" {
		t.Fatalf("unknown modifier = %q", out)
	}
	if got := f.orders.ActiveNote(); got != "gluten free base" {
		t.Fatalf("note = %q", got)
	}
}

func TestHandle_ReplayedInvocationIgnored(t *testing.T) {
	f := newFixture()
	inv := Invocation{ID: "tool-1", Name: "addToCart", Args: json.RawMessage(`{"itemName":"coke"}`)}

	if _, ok := f.d.Handle(inv); !ok {
		t.Fatalf("first delivery dropped")
	}
	if _, ok := f.d.Handle(inv); ok {
		t.Fatalf("replay produced a response")
	}
	if len(f.orders.Cart()) != 1 {
		t.Fatalf("cart lines = %d, want 1", len(f.orders.Cart()))
	}
}

func TestTracker_WindowAndClear(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tr := newTrackerAt(200*time.Millisecond, func() time.Time { return now })
	key := AddKey("Coke", "", 1)

	if tr.IsDuplicate(key) {
		t.Fatalf("fresh key flagged as duplicate")
	}
	now = now.Add(100 * time.Millisecond)
	if !tr.IsDuplicate(key) {
		t.Fatalf("key inside window not flagged")
	}
	now = now.Add(300 * time.Millisecond)
	if tr.IsDuplicate(key) {
		t.Fatalf("key after window still flagged")
	}

	tr.Clear()
	if tr.IsDuplicate(key) {
		t.Fatalf("key survived Clear")
	}
	if AddKey("Coke", "", 0) != AddKey("coke", "", 1) {
		t.Fatalf("zero quantity should normalize to 1")
	}
}

func TestTracker_PrunesStaleEntries(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tr := newTrackerAt(200*time.Millisecond, func() time.Time { return now })
	for i := 0; i <= dedupMaxEntries; i++ {
		tr.IsDuplicate(fmt.Sprintf("k%d", i))
	}
	now = now.Add(2 * time.Second)
	tr.IsDuplicate("fresh")
	if len(tr.seen) != 1 {
		t.Fatalf("seen = %d entries after prune, want 1", len(tr.seen))
	}
}

func TestAddToCart_VariantSelection(t *testing.T) {
	f := newFixture()

	out := f.call(t, "addToCart", `{"itemName":"amigo burger"}`)
	if !strings.HasPrefix(out, "SELECT_VARIANT:Amigo Burger (Options: Solo, Meal)") {
		t.Fatalf("multi-variant add = %q", out)
	}
	if f.orders.Step() != order.StepVariant {
		t.Fatalf("step = %q, want VARIANT", f.orders.Step())
	}

	if out := f.call(t, "selectVariant", `{"variantName":"family"}`); !strings.HasPrefix(out, "VARIANT_NOT_FOUND:family. Available: Solo, Meal") {
		t.Fatalf("unknown variant = %q", out)
	}
	out = f.call(t, "selectVariant", `{"variantName":"meal"}`)
	if !strings.HasPrefix(out, "ADDED:Amigo Burger (Meal)") {
		t.Fatalf("variant pick = %q", out)
	}
	cart := f.orders.Cart()
	if len(cart) != 1 || cart[0].Total != 749 {
		t.Fatalf("cart = %+v", cart)
	}

	f.advance(time.Second)
	if out := f.call(t, "addToCart", `{"itemName":"amigo burger","variantName":"family","allowDuplicate":true}`); out != "VARIANT_MISMATCH:Amigo Burger" {
		t.Fatalf("bad variant name = %q", out)
	}
}

func TestSelectVariant_NoActiveItem(t *testing.T) {
	f := newFixture()
	if out := f.call(t, "selectVariant", `{"variantName":"meal"}`); !strings.HasPrefix(out, "ERROR:No active item") {
		t.Fatalf("result = %q", out)
	}
}

func TestAddToCart_ShowMode(t *testing.T) {
	f := newFixture()
	out := f.call(t, "addToCart", `{"itemName":"margherita pizza","mode":"show"}`)
	if out != "SHOWING_ITEM:Margherita Pizza" {
		t.Fatalf("result = %q", out)
	}
	if len(f.orders.Cart()) != 0 {
		t.Fatalf("show mode mutated the cart")
	}
}

func TestEditCartItem(t *testing.T) {
	f := newFixture()
	f.call(t, "addToCart", `{"itemName":"pepperoni pizza","modifiers":["extra cheese"]}`)

	out := f.call(t, "editCartItem", `{"itemName":"pepperoni","modifierUpdates":[{"name":"extra cheese","quantity":0}]}`)
	if !strings.Contains(out, "Removed: Extra Cheese") {
		t.Fatalf("result = %q", out)
	}
	cart := f.orders.Cart()
	if cart[0].Total != 899 {
		t.Fatalf("total after removal = %d, want 899", cart[0].Total)
	}

	out = f.call(t, "editCartItem", `{"itemName":"pepperoni","note":"well done"}`)
	if !strings.Contains(out, "Note updated") {
		t.Fatalf("result = %q", out)
	}
	if got := f.orders.Cart()[0].Note; got != "well done" {
		t.Fatalf("note = %q", got)
	}

	if out := f.call(t, "editCartItem", `{"itemName":"sushi"}`); out != "CART_ITEM_NOT_FOUND:sushi" {
		t.Fatalf("missing line = %q", out)
	}
}

func TestShowCartAndCheckout(t *testing.T) {
	f := newFixture()

	if out := f.call(t, "checkout", `{"paymentMethod":"card"}`); out != "ORDER_ERROR" {
		t.Fatalf("empty checkout = %q", out)
	}
	if f.orders.CardStatus() != order.CardFailed {
		t.Fatalf("card status = %q, want failed", f.orders.CardStatus())
	}

	f.call(t, "addToCart", `{"itemName":"coke"}`)
	out := f.callNoArgs(t, "showCart")
	if !strings.Contains(out, "1x Coke") || !strings.Contains(out, "Total: £1.50") {
		t.Fatalf("cart summary = %q", out)
	}
	out = f.call(t, "showPaymentOptions", ``)
	if !strings.HasPrefix(out, "PAYMENT_OPTIONS_SHOWN. Cart total: £1.50") {
		t.Fatalf("payment options = %q", out)
	}
	if out := f.call(t, "setPaymentMethod", `{"paymentMethod":"bitcoin"}`); out != "PAYMENT_METHOD_INVALID" {
		t.Fatalf("bad method = %q", out)
	}
	if out := f.call(t, "checkout", `{"paymentMethod":"card"}`); out != "ORDER_SUBMITTED:1" {
		t.Fatalf("checkout = %q", out)
	}
	if len(f.orders.Cart()) != 0 {
		t.Fatalf("cart not cleared after order")
	}
	if f.orders.CardStatus() != order.CardSuccess {
		t.Fatalf("card status = %q, want success", f.orders.CardStatus())
	}
}

func (f *fixture) callNoArgs(t *testing.T, name string) string {
	t.Helper()
	return f.call(t, name, ``)
}

func TestRemoveFromCart_LatestFirst(t *testing.T) {
	f := newFixture()
	f.call(t, "addToCart", `{"itemName":"coke"}`)
	f.advance(time.Second)
	f.call(t, "addToCart", `{"itemName":"coke","allowDuplicate":true}`)

	first := f.orders.Cart()[0].CartID
	if out := f.call(t, "removeFromCart", `{"itemName":"coke"}`); out != "REMOVED:Coke" {
		t.Fatalf("result = %q", out)
	}
	cart := f.orders.Cart()
	if len(cart) != 1 || cart[0].CartID != first {
		t.Fatalf("wrong line removed: %+v", cart)
	}
	if out := f.call(t, "removeFromCart", `{"itemName":"sushi"}`); out != "ITEM_NOT_IN_CART:sushi" {
		t.Fatalf("missing item = %q", out)
	}
}

func TestUpdateCartItemQuantity(t *testing.T) {
	f := newFixture()
	f.call(t, "addToCart", `{"itemName":"coke"}`)

	if out := f.call(t, "updateCartItemQuantity", `{"itemName":"coke","quantity":3}`); out != "QUANTITY_UPDATED:Coke to 3" {
		t.Fatalf("result = %q", out)
	}
	cart := f.orders.Cart()
	if cart[0].Qty != 3 || cart[0].Total != 450 {
		t.Fatalf("line = %+v", cart[0])
	}
	if out := f.call(t, "updateCartItemQuantity", `{"itemName":"coke","quantity":3}`); out != "QUANTITY_UNCHANGED:Coke is already 3" {
		t.Fatalf("no-op = %q", out)
	}
}

func TestChangeCategory(t *testing.T) {
	f := newFixture()
	if out := f.call(t, "changeCategory", `{"categoryName":"drinks"}`); out != "CATEGORY_SHOWN:Drinks" {
		t.Fatalf("result = %q", out)
	}
	out := f.call(t, "changeCategory", `{"categoryName":"desserts"}`)
	if !strings.HasPrefix(out, "CATEGORY_NOT_FOUND:desserts.AVAILABLE:") || !strings.Contains(out, "Pizza") {
		t.Fatalf("missing category = %q", out)
	}
}

func TestMenuAndModifierDetails(t *testing.T) {
	f := newFixture()

	out := f.call(t, "getMenuDetails", `{"itemName":"margherita pizza"}`)
	want := "DETAILS: Item: Margherita Pizza. Price: £7.99. Description: Classic tomato and mozzarella"
	if out != want {
		t.Fatalf("details = %q, want %q", out, want)
	}
	if got := f.orders.SelectedCategory(); got == nil || got.Name != "Pizza" {
		t.Fatalf("details did not show the category")
	}

	out = f.call(t, "getModifierDetails", `{"itemName":"pepperoni pizza","modifierName":"extra cheese"}`)
	if out != "MODIFIER_DETAILS: Extra Cheese costs £0.50 in Pepperoni Pizza" {
		t.Fatalf("paid modifier = %q", out)
	}
	out = f.call(t, "getModifierDetails", `{"itemName":"amigo burger meal","modifierName":"pepsi can"}`)
	if out != "MODIFIER_DETAILS: Pepsi Can is FREE_WITH_MEAL in Amigo Burger Meal" {
		t.Fatalf("free modifier = %q", out)
	}
	out = f.call(t, "getModifierDetails", `{"itemName":"pepperoni pizza","modifierName":"pineapple"}`)
	if out != "MODIFIER_NOT_FOUND:pineapple in Pepperoni Pizza" {
		t.Fatalf("unknown modifier = %q", out)
	}
}

func TestConfirmSelection(t *testing.T) {
	f := newFixture()
	if out := f.callNoArgs(t, "confirmSelection"); out != "NO_ACTIVE_ITEM_TO_CONFIRM" {
		t.Fatalf("idle confirm = %q", out)
	}

	f.call(t, "startItemFlow", `{"itemName":"pepperoni pizza"}`)
	f.call(t, "toggleModifier", `{"modifierName":"extra cheese"}`)
	out := f.callNoArgs(t, "confirmSelection")
	if !strings.HasPrefix(out, "ITEM_CONFIRMED:Pepperoni Pizza") {
		t.Fatalf("confirm = %q", out)
	}
	cart := f.orders.Cart()
	if len(cart) != 1 || cart[0].Total != 949 {
		t.Fatalf("cart after confirm = %+v", cart)
	}
}

func TestUpdateModifierQuantity(t *testing.T) {
	f := newFixture()
	f.call(t, "startItemFlow", `{"itemName":"pepperoni pizza"}`)

	if out := f.call(t, "updateModifierQuantity", `{"modifierName":"olives","quantity":2}`); !strings.HasPrefix(out, "ERROR:olives not selected") {
		t.Fatalf("unselected = %q", out)
	}
	f.call(t, "toggleModifier", `{"modifierName":"olives"}`)
	if out := f.call(t, "updateModifierQuantity", `{"modifierName":"olives","quantity":2}`); out != "MODIFIER_QUANTITY_UPDATED:Olives x2" {
		t.Fatalf("update = %q", out)
	}
	if out := f.call(t, "updateModifierQuantity", `{"modifierName":"olives","quantity":2}`); out != "MODIFIER_QUANTITY_UNCHANGED:Olives already x2" {
		t.Fatalf("no-op = %q", out)
	}
}

func TestShowModifierShowcase(t *testing.T) {
	f := newFixture()
	if out := f.callNoArgs(t, "showModifierShowcase"); out != "ERROR:Modifier screen not active" {
		t.Fatalf("inactive = %q", out)
	}
	f.call(t, "startItemFlow", `{"itemName":"pepperoni pizza"}`)
	if out := f.callNoArgs(t, "showModifierShowcase"); !strings.HasPrefix(out, "SCROLLING_MODIFIERS:") {
		t.Fatalf("active = %q", out)
	}
}

func TestStopListening(t *testing.T) {
	f := newFixture()
	stopped := make(chan struct{})
	f.d.SetStopFunc(func() { close(stopped) })

	if out := f.callNoArgs(t, "stopListening"); out != "MICROPHONE_STOPPED" {
		t.Fatalf("result = %q", out)
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("stop callback never fired")
	}
}

func TestUnknownTool(t *testing.T) {
	f := newFixture()
	if out := f.callNoArgs(t, "orderTaxi"); out != "UNKNOWN_TOOL:orderTaxi" {
		t.Fatalf("result = %q", out)
	}
}

func TestClearCartAndReset(t *testing.T) {
	f := newFixture()
	f.call(t, "addToCart", `{"itemName":"coke"}`)
	if out := f.callNoArgs(t, "clearCart"); out != "CART_CLEARED_AND_CLOSED" {
		t.Fatalf("result = %q", out)
	}
	if len(f.orders.Cart()) != 0 {
		t.Fatalf("cart not cleared")
	}

	// Reset must rearm both guards: the id set and the dedup window.
	inv := Invocation{ID: "repeat-id", Name: "addToCart", Args: json.RawMessage(`{"itemName":"coke"}`)}
	f.d.Handle(inv)
	f.d.Reset()
	if _, ok := f.d.Handle(inv); !ok {
		t.Fatalf("id survived Reset")
	}
}
