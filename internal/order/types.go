// Package order owns the kiosk's mutable ordering state: the selected
// category, the cart, the item-customization wizard and the checkout
// flags. Both human taps and voice-driven tool invocations mutate it
// through the same Manager.
package order

import "github.com/voicekiosk/voicekiosk/internal/catalog"

// WizardStep is the item-customization state machine position.
type WizardStep string

const (
	StepBrowse   WizardStep = "BROWSE"
	StepVariant  WizardStep = "VARIANT"
	StepModifier WizardStep = "MODIFIER"
)

// PaymentMethod selects how the order is settled.
type PaymentMethod string

const (
	PayCard PaymentMethod = "card"
	PayCash PaymentMethod = "cash"
)

// CardStatus tracks the payment terminal's visible state.
type CardStatus string

const (
	CardIdle       CardStatus = "idle"
	CardActive     CardStatus = "active"
	CardProcessing CardStatus = "processing"
	CardSuccess    CardStatus = "success"
	CardFailed     CardStatus = "failed"
)

// SelectedModifier is a chosen modifier on a cart line or in the
// wizard. Price is per unit in pence, Qty the per-line count.
type SelectedModifier struct {
	ID        catalog.ID
	GroupID   catalog.ID
	GroupName string
	Name      string
	Price     int
	Qty       int
}

// CartLine is one entry in the cart. Total is
// (BasePrice + Σ modifier price×qty) × Qty, in pence.
type CartLine struct {
	CartID      string
	ItemID      catalog.ID
	Name        string
	VariantID   catalog.ID
	VariantName string
	BasePrice   int
	Qty         int
	Total       int
	Modifiers   []SelectedModifier
	Note        string
}

func modifiersTotal(mods []SelectedModifier) int {
	sum := 0
	for _, m := range mods {
		sum += m.Price * m.Qty
	}
	return sum
}

// Snapshot is a read-only view of the state the screen tracker and
// control API report. Field values are display names, not ids.
type Snapshot struct {
	Category      string
	ActiveItem    string
	ActiveVariant string
	Step          WizardStep
	CartCount     int
	CartTotal     int
	PaymentMethod PaymentMethod
	CardStatus    CardStatus
}
