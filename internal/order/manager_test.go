package order

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/voicekiosk/voicekiosk/internal/catalog"
)

func testCatalog() *catalog.Catalog {
	extraToppings := catalog.ModifierGroup{
		ID: "g1", GroupName: "Extra Toppings", IsMultiple: true,
		Modifiers: []catalog.Modifier{
			{ID: "m1", Name: "Extra Cheese", Price: 50},
			{ID: "m2", Name: "Olives", Price: 30},
		},
	}
	sauce := catalog.ModifierGroup{
		ID: "g2", GroupName: "Sauce", IsMultiple: false,
		Modifiers: []catalog.Modifier{
			{ID: "m3", Name: "BBQ", Price: 0},
			{ID: "m4", Name: "Garlic", Price: 0},
		},
	}
	return &catalog.Catalog{Categories: []catalog.Category{
		{
			ID: "1", Name: "Pizza",
			Items: []catalog.Item{
				{
					ID: "10", Name: "Pepperoni Pizza",
					Variants: []catalog.Variant{
						{ID: "100", Name: "Medium", Price: 899, ModifierGroups: []catalog.ModifierGroup{extraToppings, sauce}},
						{ID: "101", Name: "Large", Price: 1099, ModifierGroups: []catalog.ModifierGroup{extraToppings, sauce}},
					},
				},
				{
					ID: "11", Name: "Margherita Pizza",
					Variants: []catalog.Variant{{ID: "110", Name: "Medium", Price: 799}},
				},
			},
		},
		{
			ID: "2", Name: "Drinks",
			Items: []catalog.Item{
				{ID: "20", Name: "Cola", Variants: []catalog.Variant{{ID: "200", Name: "Can", Price: 150}}},
			},
		},
	}}
}

func newTestManager() *Manager {
	return NewManager(testCatalog(), zerolog.Nop())
}

func TestSelectCategory(t *testing.T) {
	m := newTestManager()
	if !m.SelectCategory("2") {
		t.Fatalf("known category rejected")
	}
	if got := m.SelectedCategory().Name; got != "Drinks" {
		t.Fatalf("selected = %q", got)
	}
	if m.SelectCategory("99") {
		t.Fatalf("unknown category accepted")
	}
}

func TestStartItemFlow_MultiVariantStopsAtVariantStep(t *testing.T) {
	m := newTestManager()
	item, _ := m.Catalog().Item("10")
	m.StartItemFlow(item)
	if m.Step() != StepVariant {
		t.Fatalf("step = %q, want VARIANT", m.Step())
	}
	if len(m.Cart()) != 0 {
		t.Fatalf("cart mutated before variant chosen")
	}
}

func TestStartItemFlow_SingleVariantNoModifiersAddsDirectly(t *testing.T) {
	m := newTestManager()
	item, _ := m.Catalog().Item("20")
	m.StartItemFlow(item)
	if m.Step() != StepBrowse {
		t.Fatalf("step = %q, want BROWSE", m.Step())
	}
	cart := m.Cart()
	if len(cart) != 1 || cart[0].Total != 150 {
		t.Fatalf("cart = %+v", cart)
	}
}

func TestStartItemFlow_SingleVariantWithModifiersStopsAtModifierStep(t *testing.T) {
	m := newTestManager()
	item, _ := m.Catalog().Item("11")
	// Margherita has one variant, no modifier groups: direct add.
	m.StartItemFlow(item)
	if len(m.Cart()) != 1 {
		t.Fatalf("single plain variant should add directly")
	}

	pep, _ := m.Catalog().Item("10")
	m.StartItemFlow(pep)
	m.SelectVariant(pep.Variant("100"))
	if m.Step() != StepModifier {
		t.Fatalf("step = %q, want MODIFIER", m.Step())
	}
}

func TestToggleModifier(t *testing.T) {
	m := newTestManager()
	pep, _ := m.Catalog().Item("10")
	v := pep.Variant("100")
	toppings := v.ModifierGroups[0]
	sauce := v.ModifierGroups[1]

	m.StartItemFlow(pep)
	m.SelectVariant(v)

	// Multi-select: re-toggle increments quantity.
	m.ToggleModifier(toppings.Modifiers[0], toppings, false)
	m.ToggleModifier(toppings.Modifiers[0], toppings, false)
	mods := m.ActiveModifiers()
	if len(mods) != 1 || mods[0].Qty != 2 {
		t.Fatalf("multi-select increment failed: %+v", mods)
	}

	// Single-select: second choice replaces the first.
	m.ToggleModifier(sauce.Modifiers[0], sauce, false)
	m.ToggleModifier(sauce.Modifiers[1], sauce, false)
	mods = m.ActiveModifiers()
	var sauces []SelectedModifier
	for _, sel := range mods {
		if sel.GroupID == "g2" {
			sauces = append(sauces, sel)
		}
	}
	if len(sauces) != 1 || sauces[0].Name != "Garlic" {
		t.Fatalf("single-select replace failed: %+v", sauces)
	}

	// Force remove deselects, and is a no-op for unselected mods.
	m.ToggleModifier(sauce.Modifiers[1], sauce, true)
	m.ToggleModifier(sauce.Modifiers[0], sauce, true)
	for _, sel := range m.ActiveModifiers() {
		if sel.GroupID == "g2" {
			t.Fatalf("sauce still selected after force remove: %+v", sel)
		}
	}
}

func TestConfirmItem_LineMath(t *testing.T) {
	m := newTestManager()
	pep, _ := m.Catalog().Item("10")
	v := pep.Variant("100")
	toppings := v.ModifierGroups[0]

	m.StartItemFlow(pep)
	m.SelectVariant(v)
	m.ToggleModifier(toppings.Modifiers[0], toppings, false) // +50
	m.ToggleModifier(toppings.Modifiers[0], toppings, false) // qty 2
	m.SetNote("well done")
	m.ConfirmItem()

	cart := m.Cart()
	if len(cart) != 1 {
		t.Fatalf("cart = %+v", cart)
	}
	line := cart[0]
	// 899 + 50×2 = 999
	if line.Total != 999 {
		t.Fatalf("total = %d, want 999", line.Total)
	}
	if line.Note != "well done" {
		t.Fatalf("note = %q", line.Note)
	}
	if m.Step() != StepBrowse || m.ActiveItem() != nil {
		t.Fatalf("wizard not reset after confirm")
	}
}

func TestUpdateCartLineQty(t *testing.T) {
	m := newTestManager()
	item, _ := m.Catalog().Item("20")
	line, ok := m.AddToCart(item, "200", nil, 2, "")
	if !ok {
		t.Fatalf("AddToCart failed")
	}
	if line.Total != 300 {
		t.Fatalf("total = %d, want 300", line.Total)
	}

	m.UpdateCartLineQty(line.CartID, 1)
	if got := m.Cart()[0].Total; got != 450 {
		t.Fatalf("total after +1 = %d, want 450", got)
	}

	// Dropping to zero removes the line.
	m.UpdateCartLineQty(line.CartID, -3)
	if len(m.Cart()) != 0 {
		t.Fatalf("line not removed at zero qty")
	}
}

func TestUpdateCartLineVariant(t *testing.T) {
	m := newTestManager()
	pep, _ := m.Catalog().Item("10")
	mods := []SelectedModifier{{ID: "m1", GroupID: "g1", Name: "Extra Cheese", Price: 50, Qty: 1}}
	line, _ := m.AddToCart(pep, "100", mods, 2, "")
	// (899+50)×2
	if line.Total != 1898 {
		t.Fatalf("total = %d", line.Total)
	}

	m.UpdateCartLineVariant(line.CartID, pep.Variant("101"))
	got := m.Cart()[0]
	// (1099+50)×2, modifiers kept
	if got.Total != 2298 || got.VariantName != "Large" || len(got.Modifiers) != 1 {
		t.Fatalf("variant switch wrong: %+v", got)
	}
}

func TestAddToCart_UnknownVariantFallsBackToFirst(t *testing.T) {
	m := newTestManager()
	item, _ := m.Catalog().Item("20")
	line, ok := m.AddToCart(item, "999", nil, 1, "")
	if !ok || line.VariantID != "200" {
		t.Fatalf("fallback failed: %+v", line)
	}
}

func TestPlaceOrder(t *testing.T) {
	m := newTestManager()
	if _, err := m.PlaceOrder(PayCard); err != ErrEmptyCart {
		t.Fatalf("empty cart error = %v", err)
	}

	item, _ := m.Catalog().Item("20")
	m.AddToCart(item, "200", nil, 1, "")
	n, err := m.PlaceOrder(PayCash)
	if err != nil || n != 1 {
		t.Fatalf("PlaceOrder = %d, %v", n, err)
	}
	if len(m.Cart()) != 0 {
		t.Fatalf("cart not cleared after order")
	}

	m.AddToCart(item, "200", nil, 1, "")
	if n, _ := m.PlaceOrder(PayCard); n != 2 {
		t.Fatalf("order number not monotonic: %d", n)
	}
}

func TestSubscribeAndSnapshot(t *testing.T) {
	m := newTestManager()
	var last Snapshot
	calls := 0
	unsub := m.Subscribe(func(s Snapshot) {
		last = s
		calls++
	})

	m.SelectCategory("1")
	if last.Category != "Pizza" || calls != 1 {
		t.Fatalf("notification missing: %+v calls=%d", last, calls)
	}

	item, _ := m.Catalog().Item("20")
	m.AddToCart(item, "200", nil, 1, "")
	if last.CartCount != 1 || last.CartTotal != 150 {
		t.Fatalf("snapshot stale: %+v", last)
	}

	unsub()
	m.ClearCart()
	if calls != 2 {
		t.Fatalf("unsubscribed fn still called")
	}
}

func TestGoBack_WizardSteps(t *testing.T) {
	m := newTestManager()
	pep, _ := m.Catalog().Item("10")
	m.StartItemFlow(pep)
	m.SelectVariant(pep.Variant("100"))
	if m.Step() != StepModifier {
		t.Fatalf("step = %q, want MODIFIER", m.Step())
	}

	// Multi-variant item: modifier step backs into variant choice.
	m.GoBack()
	if m.Step() != StepVariant {
		t.Fatalf("step = %q, want VARIANT", m.Step())
	}
	m.GoBack()
	if m.Step() != StepBrowse {
		t.Fatalf("step = %q, want BROWSE", m.Step())
	}
	m.GoBack() // already browsing
	if m.Step() != StepBrowse {
		t.Fatalf("step = %q after extra back", m.Step())
	}
}

func TestPaymentMethodRoundTrip(t *testing.T) {
	m := newTestManager()
	if m.PaymentMethod() != PayCard {
		t.Fatalf("default method = %q, want card", m.PaymentMethod())
	}
	m.SetPaymentMethod(PayCash)
	if m.PaymentMethod() != PayCash {
		t.Fatalf("method = %q after set", m.PaymentMethod())
	}
}

func TestSetCatalogResetsState(t *testing.T) {
	m := newTestManager()
	item, _ := m.Catalog().Item("20")
	m.AddToCart(item, "200", nil, 1, "")
	m.SelectCategory("1")

	next := testCatalog()
	m.SetCatalog(next)
	if m.Catalog() != next {
		t.Fatalf("catalog not swapped")
	}
	if len(m.Cart()) != 0 || m.SelectedCategory() != nil {
		t.Fatalf("state not reset on catalog swap")
	}
}
