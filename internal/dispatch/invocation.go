package dispatch

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Invocation is one tool call lifted off the wire. Args stays raw
// until the named handler decodes it into its own argument struct, so
// a malformed call fails only that call.
type Invocation struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Result is the reply sent back for an invocation. Output is the
// machine-readable token string the model steers on.
type Result struct {
	ID     string
	Name   string
	Output string
}

// flexInt tolerates quantities arriving as JSON numbers or numeric
// strings; the model is not consistent about which it emits.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("quantity %q: %w", s, err)
	}
	*f = flexInt(int(n))
	return nil
}

type addToCartArgs struct {
	ItemName    string `json:"itemName"`
	VariantName string `json:"variantName"`
	// nil means the caller made no statement about modifiers; an
	// empty list means "none, add as-is".
	Modifiers      []string `json:"modifiers"`
	Quantity       flexInt  `json:"quantity"`
	Note           string   `json:"note"`
	Mode           string   `json:"mode"`
	AllowDuplicate bool     `json:"allowDuplicate"`
}

type modifierUpdate struct {
	Name     string  `json:"name"`
	Quantity flexInt `json:"quantity"`
}

type editCartItemArgs struct {
	ItemName        string           `json:"itemName"`
	VariantName     string           `json:"variantName"`
	ModifierUpdates []modifierUpdate `json:"modifierUpdates"`
	ModifiersToAdd  []string         `json:"modifiersToAdd"`
	Note            *string          `json:"note"`
}

type paymentArgs struct {
	PaymentMethod string `json:"paymentMethod"`
}

type itemNameArgs struct {
	ItemName string `json:"itemName"`
}

type variantNameArgs struct {
	VariantName string `json:"variantName"`
}

type toggleModifierArgs struct {
	ModifierName string `json:"modifierName"`
	// nil asks for a plain toggle; zero asks for removal.
	Quantity *flexInt `json:"quantity"`
}

type modifierQtyArgs struct {
	ModifierName string  `json:"modifierName"`
	Quantity     flexInt `json:"quantity"`
}

type categoryNameArgs struct {
	CategoryName string `json:"categoryName"`
}

type modifierDetailArgs struct {
	ItemName     string `json:"itemName"`
	ModifierName string `json:"modifierName"`
}

type cartQtyArgs struct {
	ItemName string  `json:"itemName"`
	Quantity flexInt `json:"quantity"`
}

func decodeArgs[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}
