package live

func str(desc string) *schema  { return &schema{Type: "string", Description: desc} }
func num(desc string) *schema  { return &schema{Type: "integer", Description: desc} }
func flag(desc string) *schema { return &schema{Type: "boolean", Description: desc} }

func strList(desc string) *schema {
	return &schema{Type: "array", Description: desc, Items: &schema{Type: "string"}}
}

func obj(props map[string]*schema, required ...string) *schema {
	return &schema{Type: "object", Properties: props, Required: required}
}

// kioskTools declares the ordering tool surface the model may invoke.
// Names and argument shapes must stay in sync with the dispatch
// package's handlers.
func kioskTools() []toolDecl {
	decls := []functionDeclaration{
		{
			Name:        "stopListening",
			Description: "End the voice session when the customer is finished.",
		},
		{
			Name:        "addToCart",
			Description: "Add a menu item to the cart, or show it on screen with mode 'show'.",
			Parameters: obj(map[string]*schema{
				"itemName":       str("Item the customer asked for, as spoken."),
				"variantName":    str("Size or flavour if the customer named one."),
				"modifiers":      strList("Modifier choices if the customer named them. Omit to be asked."),
				"quantity":       num("How many. Defaults to 1."),
				"note":           str("Free-text kitchen note."),
				"mode":           &schema{Type: "string", Enum: []string{"add", "show"}},
				"allowDuplicate": flag("Set after the customer confirms they want another of the same item."),
			}, "itemName"),
		},
		{
			Name:        "clearCart",
			Description: "Empty the cart completely.",
		},
		{
			Name:        "editCartItem",
			Description: "Change an item already in the cart: variant, modifiers or note.",
			Parameters: obj(map[string]*schema{
				"itemName":    str("Which cart item to change."),
				"variantName": str("New size or flavour."),
				"modifierUpdates": &schema{Type: "array", Items: obj(map[string]*schema{
					"name":     str("Modifier name."),
					"quantity": num("New quantity; 0 removes it."),
				}, "name", "quantity")},
				"modifiersToAdd": strList("Modifiers to add with quantity 1."),
				"note":           str("Replacement kitchen note."),
			}, "itemName"),
		},
		{
			Name:        "showCart",
			Description: "Open the cart drawer and read back its contents.",
		},
		{
			Name:        "showPaymentOptions",
			Description: "Show the payment screen when the customer wants to pay.",
		},
		{
			Name:        "setPaymentMethod",
			Description: "Record whether the customer pays by card or cash.",
			Parameters: obj(map[string]*schema{
				"paymentMethod": &schema{Type: "string", Enum: []string{"card", "cash"}},
			}, "paymentMethod"),
		},
		{
			Name:        "checkout",
			Description: "Submit the order with the chosen payment method.",
			Parameters: obj(map[string]*schema{
				"paymentMethod": str("card or cash."),
			}, "paymentMethod"),
		},
		{
			Name:        "startItemFlow",
			Description: "Open the customization wizard for an item.",
			Parameters:  obj(map[string]*schema{"itemName": str("Item to customize.")}, "itemName"),
		},
		{
			Name:        "selectVariant",
			Description: "Pick a size or flavour in the open wizard.",
			Parameters:  obj(map[string]*schema{"variantName": str("Variant to pick.")}, "variantName"),
		},
		{
			Name:        "toggleModifier",
			Description: "Add or remove a modifier in the open wizard.",
			Parameters: obj(map[string]*schema{
				"modifierName": str("Modifier the customer asked for."),
				"quantity":     num("Desired quantity; 0 removes. Omit for a plain toggle."),
			}, "modifierName"),
		},
		{
			Name:        "confirmSelection",
			Description: "Commit the customized item to the cart.",
		},
		{
			Name:        "updateModifierQuantity",
			Description: "Change the quantity of an already-selected modifier.",
			Parameters: obj(map[string]*schema{
				"modifierName": str("Selected modifier."),
				"quantity":     num("New quantity."),
			}, "modifierName", "quantity"),
		},
		{
			Name:        "changeCategory",
			Description: "Show a different menu category.",
			Parameters:  obj(map[string]*schema{"categoryName": str("Category to show.")}, "categoryName"),
		},
		{
			Name:        "getMenuDetails",
			Description: "Read back price and description for an item.",
			Parameters:  obj(map[string]*schema{"itemName": str("Item to describe.")}, "itemName"),
		},
		{
			Name:        "getModifierDetails",
			Description: "Read back the price of a modifier on an item.",
			Parameters: obj(map[string]*schema{
				"itemName":     str("Item the modifier belongs to."),
				"modifierName": str("Modifier to price."),
			}, "itemName", "modifierName"),
		},
		{
			Name:        "removeFromCart",
			Description: "Remove the most recently added matching item from the cart.",
			Parameters:  obj(map[string]*schema{"itemName": str("Item to remove.")}, "itemName"),
		},
		{
			Name:        "updateCartItemQuantity",
			Description: "Set the quantity of a cart item.",
			Parameters: obj(map[string]*schema{
				"itemName": str("Cart item."),
				"quantity": num("New quantity; 0 removes the line."),
			}, "itemName", "quantity"),
		},
		{
			Name:        "showModifierShowcase",
			Description: "Scroll through the modifier list on screen while talking it through.",
		},
	}
	return []toolDecl{{FunctionDeclarations: decls}}
}
