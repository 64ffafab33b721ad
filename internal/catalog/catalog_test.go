package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const sampleJSON = `{
  "categorylist": [
    {
      "id": 1,
      "name": "Pizza",
      "itemlist": [
        {
          "id": "10",
          "name": "Pepperoni Pizza",
          "out_of_stock": 0,
          "variantlist": [
            {
              "id": 100,
              "name": "Regular",
              "price": 899,
              "modifierlist": [
                {
                  "id": 1000,
                  "group_name": "Extra Toppings",
                  "is_multiple": 1,
                  "limit_on_modifier": 3,
                  "list": [
                    {"id": 10000, "name": "Extra Cheese", "price": 50, "disable": false},
                    {"id": 10001, "name": "Olives", "price": 0, "disable": 1}
                  ]
                }
              ]
            }
          ]
        }
      ]
    }
  ]
}`

func writeSample(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "catalog.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MixedIDAndFlagEncodings(t *testing.T) {
	path := writeSample(t, t.TempDir(), sampleJSON)

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cat := c.Category("1")
	if cat == nil || cat.Name != "Pizza" {
		t.Fatalf("numeric id not normalized: %+v", c.Categories)
	}
	item, owner := c.Item("10")
	if item == nil || item.Name != "Pepperoni Pizza" {
		t.Fatalf("string id lookup failed")
	}
	if owner.ID != "1" {
		t.Fatalf("owning category = %q, want 1", owner.ID)
	}
	v := item.Variant("100")
	if v == nil || v.Price != 899 {
		t.Fatalf("variant lookup failed: %+v", item.Variants)
	}
	mods := v.ModifierGroups[0].Modifiers
	if bool(mods[0].Disable) {
		t.Fatalf("boolean false flag decoded as true")
	}
	if !bool(mods[1].Disable) {
		t.Fatalf("numeric 1 flag decoded as false")
	}
	if !v.HasModifiers() {
		t.Fatalf("variant with a modifier group should report modifiers")
	}
}

func TestLoad_EmptyCatalogRejected(t *testing.T) {
	path := writeSample(t, t.TempDir(), `{"categorylist": []}`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for empty catalog")
	}
}

func TestStore_ReloadSwapsAndNotifies(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir, sampleJSON)

	store, err := NewStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	var swapped *Catalog
	store.OnSwap(func(c *Catalog) { swapped = c })

	updated := `{"categorylist": [{"id": 2, "name": "Drinks", "itemlist": []}]}`
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := store.Current().Categories[0].Name; got != "Drinks" {
		t.Fatalf("current = %q, want Drinks", got)
	}
	if swapped == nil || swapped != store.Current() {
		t.Fatalf("subscriber did not receive the swapped tree")
	}
}

func TestStore_FailedReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := writeSample(t, dir, sampleJSON)

	store, err := NewStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	before := store.Current()

	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(); err == nil {
		t.Fatalf("expected reload error")
	}
	if store.Current() != before {
		t.Fatalf("failed reload must keep the previous tree")
	}
}
