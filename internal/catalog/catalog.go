// Package catalog holds the read-only menu tree the voice subsystem
// resolves phrases against. The tree is loaded from the store's menu
// JSON and replaced wholesale on reload; nothing in this package
// mutates it after load.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a catalog entity identifier. Store exports are inconsistent
// about whether ids are JSON numbers or strings, so it decodes both.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("catalog id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Flag decodes the export's number-or-boolean truthiness fields.
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	switch {
	case bytes.Equal(data, []byte("true")):
		*f = true
	case bytes.Equal(data, []byte("false")), bytes.Equal(data, []byte("null")):
		*f = false
	default:
		n, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("catalog flag: %w", err)
		}
		*f = n != 0
	}
	return nil
}

// Modifier is a single selectable option inside a group. Price is in
// pence; zero means free of charge.
type Modifier struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	Price   int    `json:"price"`
	Disable Flag   `json:"disable"`
}

// ModifierGroup groups modifiers under one heading. IsMultiple allows
// more than one selection from the group; Limit caps per-modifier
// quantity when positive.
type ModifierGroup struct {
	ID         ID         `json:"id"`
	GroupName  string     `json:"group_name"`
	IsMultiple Flag       `json:"is_multiple"`
	Limit      int        `json:"limit_on_modifier"`
	Modifiers  []Modifier `json:"list"`
}

// Variant is a purchasable form of an item (size, flavour). Price is
// in pence.
type Variant struct {
	ID             ID              `json:"id"`
	Name           string          `json:"name"`
	Price          int             `json:"price"`
	Description    string          `json:"description"`
	ModifierGroups []ModifierGroup `json:"modifierlist"`
}

// HasModifiers reports whether any modifier group carries options.
func (v *Variant) HasModifiers() bool {
	for _, g := range v.ModifierGroups {
		if len(g.Modifiers) > 0 {
			return true
		}
	}
	return false
}

// Item is a menu entry with one or more variants.
type Item struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	OutOfStock  Flag      `json:"out_of_stock"`
	Variants    []Variant `json:"variantlist"`
}

// Variant returns the variant with the given id, or nil.
func (it *Item) Variant(id ID) *Variant {
	for i := range it.Variants {
		if it.Variants[i].ID == id {
			return &it.Variants[i]
		}
	}
	return nil
}

// Category is a top-level menu section.
type Category struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Items []Item `json:"itemlist"`
}

// Catalog is the full menu tree as served to the kiosk.
type Catalog struct {
	Categories []Category `json:"categorylist"`
}

// Category returns the category with the given id, or nil.
func (c *Catalog) Category(id ID) *Category {
	for i := range c.Categories {
		if c.Categories[i].ID == id {
			return &c.Categories[i]
		}
	}
	return nil
}

// Item returns the item with the given id and its owning category,
// or nils when absent.
func (c *Catalog) Item(id ID) (*Item, *Category) {
	for i := range c.Categories {
		cat := &c.Categories[i]
		for j := range cat.Items {
			if cat.Items[j].ID == id {
				return &cat.Items[j], cat
			}
		}
	}
	return nil, nil
}
