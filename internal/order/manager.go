package order

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voicekiosk/voicekiosk/internal/catalog"
)

// ErrEmptyCart is returned by PlaceOrder when there is nothing to buy.
var ErrEmptyCart = errors.New("cart is empty")

// Manager is the single owner of order state. All mutations run under
// one mutex; subscribers are notified with a fresh Snapshot after each
// mutation and must not call back into the Manager.
type Manager struct {
	logger zerolog.Logger

	mu       sync.Mutex
	catalog  *catalog.Catalog
	selected *catalog.Category
	cart     []CartLine

	step            WizardStep
	activeItem      *catalog.Item
	activeVariant   *catalog.Variant
	activeModifiers []SelectedModifier
	activeNote      string

	payment    PaymentMethod
	cardStatus CardStatus
	orderSeq   int

	nextSubID int
	subs      map[int]func(Snapshot)
}

func NewManager(c *catalog.Catalog, logger zerolog.Logger) *Manager {
	return &Manager{
		logger:     logger.With().Str("component", "order").Logger(),
		catalog:    c,
		step:       StepBrowse,
		payment:    PayCard,
		cardStatus: CardIdle,
		subs:       make(map[int]func(Snapshot)),
	}
}

// Subscribe registers fn for state-change notifications and returns an
// unsubscribe function.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	s := Snapshot{
		Step:          m.step,
		CartCount:     len(m.cart),
		PaymentMethod: m.payment,
		CardStatus:    m.cardStatus,
	}
	for _, line := range m.cart {
		s.CartTotal += line.Total
	}
	if m.selected != nil {
		s.Category = m.selected.Name
	}
	if m.activeItem != nil {
		s.ActiveItem = m.activeItem.Name
	}
	if m.activeVariant != nil {
		s.ActiveVariant = m.activeVariant.Name
	}
	return s
}

// notify fans a fresh snapshot out to subscribers. Called with the
// mutex held; subscribers must not call back into the Manager.
func (m *Manager) notify() {
	snap := m.snapshotLocked()
	for _, fn := range m.subs {
		fn(snap)
	}
}

// Snapshot returns the current state view.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Catalog returns the catalog currently in effect.
func (m *Manager) Catalog() *catalog.Catalog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.catalog
}

// SetCatalog swaps the menu tree and resets all order state; called on
// catalog hot-reload so no cart line can reference a stale entity.
func (m *Manager) SetCatalog(c *catalog.Catalog) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog = c
	m.resetLocked()
	m.notify()
}

// Reset clears cart, wizard, selection and checkout flags; used on
// idle timeout and order completion.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.notify()
}

func (m *Manager) resetLocked() {
	m.selected = nil
	m.cart = nil
	m.clearFlowLocked()
	m.payment = PayCard
	m.cardStatus = CardIdle
}

func (m *Manager) clearFlowLocked() {
	m.step = StepBrowse
	m.activeItem = nil
	m.activeVariant = nil
	m.activeModifiers = nil
	m.activeNote = ""
}

// SelectCategory makes the category with the given id the visible one.
// Returns false when the id is unknown.
func (m *Manager) SelectCategory(id catalog.ID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cat := m.catalog.Category(id)
	if cat == nil {
		return false
	}
	m.selected = cat
	m.step = StepBrowse
	m.notify()
	return true
}

// SelectedCategory returns the visible category, or nil.
func (m *Manager) SelectedCategory() *catalog.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}

// Wizard state accessors.

func (m *Manager) Step() WizardStep {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

func (m *Manager) ActiveItem() *catalog.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeItem
}

func (m *Manager) ActiveVariant() *catalog.Variant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeVariant
}

func (m *Manager) ActiveModifiers() []SelectedModifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SelectedModifier, len(m.activeModifiers))
	copy(out, m.activeModifiers)
	return out
}

// StartItemFlow opens the wizard for an item. Items with several
// variants stop at the variant step; a single variant with modifier
// groups stops at the modifier step; otherwise the item goes straight
// to the cart.
func (m *Manager) StartItemFlow(item *catalog.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeItem = item
	m.activeVariant = nil
	m.activeModifiers = nil
	m.activeNote = ""

	switch {
	case len(item.Variants) > 1:
		m.step = StepVariant
	case len(item.Variants) == 1:
		v := &item.Variants[0]
		m.activeVariant = v
		if v.HasModifiers() {
			m.step = StepModifier
		} else {
			m.addLineLocked(item, v, nil, 1, "")
			m.clearFlowLocked()
		}
	}
	m.notify()
}

// SelectVariant picks a variant for the active item; with no modifier
// groups the line is added immediately and the wizard closes.
func (m *Manager) SelectVariant(v *catalog.Variant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeVariant = v
	if v.HasModifiers() {
		m.step = StepModifier
		m.notify()
		return
	}
	if m.activeItem != nil {
		m.addLineLocked(m.activeItem, v, nil, 1, "")
		m.clearFlowLocked()
	}
	m.notify()
}

// ToggleModifier adds, removes or increments a modifier in the wizard.
// Selecting an already-selected modifier in a multi-select group
// increments its quantity; in a single-select group (or with
// forceRemove) it deselects. Selecting within a single-select group
// replaces any other choice from the same group.
func (m *Manager) ToggleModifier(mod catalog.Modifier, group catalog.ModifierGroup, forceRemove bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	multiple := bool(group.IsMultiple)

	for i, sel := range m.activeModifiers {
		if sel.ID != mod.ID {
			continue
		}
		if forceRemove || !multiple {
			m.activeModifiers = append(m.activeModifiers[:i], m.activeModifiers[i+1:]...)
		} else {
			m.activeModifiers[i].Qty++
		}
		m.notify()
		return
	}
	if forceRemove {
		m.notify()
		return
	}

	next := SelectedModifier{
		ID:        mod.ID,
		GroupID:   group.ID,
		GroupName: group.GroupName,
		Name:      mod.Name,
		Price:     mod.Price,
		Qty:       1,
	}
	if multiple {
		m.activeModifiers = append(m.activeModifiers, next)
	} else {
		kept := m.activeModifiers[:0]
		for _, sel := range m.activeModifiers {
			if sel.GroupID != group.ID {
				kept = append(kept, sel)
			}
		}
		m.activeModifiers = append(kept, next)
	}
	m.notify()
}

// UpdateModifierQty adjusts a selected modifier's quantity; zero or
// below deselects it.
func (m *Manager) UpdateModifierQty(id catalog.ID, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.activeModifiers[:0]
	for _, sel := range m.activeModifiers {
		if sel.ID == id {
			sel.Qty += delta
		}
		if sel.Qty > 0 {
			kept = append(kept, sel)
		}
	}
	m.activeModifiers = kept
	m.notify()
}

// SetNote sets the free-text note for the item being customized.
func (m *Manager) SetNote(note string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeNote = note
}

func (m *Manager) ActiveNote() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeNote
}

// ConfirmItem commits the wizard's item to the cart and closes the
// wizard. A wizard without item and variant is a no-op.
func (m *Manager) ConfirmItem() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeItem == nil || m.activeVariant == nil {
		return
	}
	m.addLineLocked(m.activeItem, m.activeVariant, m.activeModifiers, 1, m.activeNote)
	m.clearFlowLocked()
	m.notify()
}

// CancelFlow abandons the wizard without touching the cart.
func (m *Manager) CancelFlow() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearFlowLocked()
	m.notify()
}

// GoBack steps the wizard one screen toward browsing.
func (m *Manager) GoBack() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.step {
	case StepModifier:
		if m.activeItem != nil && len(m.activeItem.Variants) > 1 {
			m.step = StepVariant
		} else {
			m.step = StepBrowse
		}
	case StepVariant:
		m.step = StepBrowse
	}
	m.notify()
}

// AddToCart appends a line for the item and variant. An unknown
// variant id falls back to the item's first variant; an item without
// variants is rejected.
func (m *Manager) AddToCart(item *catalog.Item, variantID catalog.ID, mods []SelectedModifier, qty int, note string) (CartLine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := item.Variant(variantID)
	if v == nil {
		if len(item.Variants) == 0 {
			return CartLine{}, false
		}
		v = &item.Variants[0]
	}
	line := m.addLineLocked(item, v, mods, qty, note)
	m.notify()
	return line, true
}

func (m *Manager) addLineLocked(item *catalog.Item, v *catalog.Variant, mods []SelectedModifier, qty int, note string) CartLine {
	if qty < 1 {
		qty = 1
	}
	modsCopy := make([]SelectedModifier, len(mods))
	copy(modsCopy, mods)
	line := CartLine{
		CartID:      uuid.NewString(),
		ItemID:      item.ID,
		Name:        item.Name,
		VariantID:   v.ID,
		VariantName: v.Name,
		BasePrice:   v.Price,
		Qty:         qty,
		Total:       (v.Price + modifiersTotal(modsCopy)) * qty,
		Modifiers:   modsCopy,
		Note:        note,
	}
	m.cart = append(m.cart, line)
	m.logger.Debug().Str("item", line.Name).Str("variant", line.VariantName).Int("qty", qty).Msg("cart line added")
	return line
}

// Cart returns a copy of the cart lines in order.
func (m *Manager) Cart() []CartLine {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CartLine, len(m.cart))
	copy(out, m.cart)
	return out
}

// CartTotal returns the sum of line totals in pence.
func (m *Manager) CartTotal() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, line := range m.cart {
		sum += line.Total
	}
	return sum
}

// RemoveFromCart deletes the line with the given cart id.
func (m *Manager) RemoveFromCart(cartID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, line := range m.cart {
		if line.CartID == cartID {
			m.cart = append(m.cart[:i], m.cart[i+1:]...)
			m.notify()
			return true
		}
	}
	return false
}

// UpdateCartLineQty adjusts a line's quantity by delta; zero or below
// removes the line.
func (m *Manager) UpdateCartLineQty(cartID string, delta int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.cart {
		if m.cart[i].CartID != cartID {
			continue
		}
		qty := m.cart[i].Qty + delta
		if qty <= 0 {
			m.cart = append(m.cart[:i], m.cart[i+1:]...)
		} else {
			m.cart[i].Qty = qty
			m.cart[i].Total = (m.cart[i].BasePrice + modifiersTotal(m.cart[i].Modifiers)) * qty
		}
		m.notify()
		return true
	}
	return false
}

// UpdateCartLineNote replaces a line's free-text note.
func (m *Manager) UpdateCartLineNote(cartID, note string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.cart {
		if m.cart[i].CartID == cartID {
			m.cart[i].Note = note
			m.notify()
			return true
		}
	}
	return false
}

// UpdateCartLineModifiers replaces a line's modifier selection and
// recomputes its total.
func (m *Manager) UpdateCartLineModifiers(cartID string, mods []SelectedModifier) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.cart {
		if m.cart[i].CartID != cartID {
			continue
		}
		modsCopy := make([]SelectedModifier, len(mods))
		copy(modsCopy, mods)
		m.cart[i].Modifiers = modsCopy
		m.cart[i].Total = (m.cart[i].BasePrice + modifiersTotal(modsCopy)) * m.cart[i].Qty
		m.notify()
		return true
	}
	return false
}

// UpdateCartLineVariant switches a line to another variant of the same
// item, keeping modifiers and recomputing the total from the new base
// price.
func (m *Manager) UpdateCartLineVariant(cartID string, v *catalog.Variant) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.cart {
		if m.cart[i].CartID != cartID {
			continue
		}
		m.cart[i].VariantID = v.ID
		m.cart[i].VariantName = v.Name
		m.cart[i].BasePrice = v.Price
		m.cart[i].Total = (v.Price + modifiersTotal(m.cart[i].Modifiers)) * m.cart[i].Qty
		m.notify()
		return true
	}
	return false
}

// ClearCart empties the cart, leaving category and wizard untouched.
func (m *Manager) ClearCart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cart = nil
	m.notify()
}

// SetPaymentMethod selects card or cash settlement.
func (m *Manager) SetPaymentMethod(p PaymentMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payment = p
	m.notify()
}

func (m *Manager) PaymentMethod() PaymentMethod {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payment
}

// SetCardStatus updates the terminal state shown on screen.
func (m *Manager) SetCardStatus(s CardStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cardStatus = s
	m.notify()
}

func (m *Manager) CardStatus() CardStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cardStatus
}

// PlaceOrder finalizes the current cart: assigns an order number,
// empties the cart and resets the wizard and checkout flags. The order
// payload itself is handed to the store backend by the surrounding
// application, not here.
func (m *Manager) PlaceOrder(p PaymentMethod) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.cart) == 0 {
		return 0, ErrEmptyCart
	}
	m.orderSeq++
	number := m.orderSeq
	total := 0
	for _, line := range m.cart {
		total += line.Total
	}
	m.logger.Info().Int("order", number).Int("total_pence", total).Str("method", string(p)).Msg("order placed")
	m.cart = nil
	m.clearFlowLocked()
	m.payment = p
	m.cardStatus = CardIdle
	m.notify()
	return number, nil
}
