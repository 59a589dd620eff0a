package cart

import "slices"

// Add merges quantity units of item into the cart. An existing line for the
// same product has its quantity increased in place; otherwise a new line is
// appended. A non-positive quantity never creates a line, and a merge whose
// result is not positive removes the line.
func Add(s State, item Snapshot, quantity int) State {
	items := slices.Clone(s.Items)

	if i := indexOf(items, item.ProductID); i >= 0 {
		items[i].Quantity += quantity
		if items[i].Quantity <= 0 {
			items = slices.Delete(items, i, i+1)
		}
		return newState(items)
	}

	if quantity <= 0 {
		return newState(items)
	}
	return newState(append(items, Line{Snapshot: item, Quantity: quantity}))
}

// Remove deletes the line for productID. Removing an absent product leaves
// the cart unchanged.
func Remove(s State, productID string) State {
	items := slices.DeleteFunc(slices.Clone(s.Items), func(l Line) bool {
		return l.ProductID == productID
	})
	return newState(items)
}

// UpdateQuantity replaces the quantity of the line for productID. A
// non-positive quantity removes the line; an absent product is a no-op.
func UpdateQuantity(s State, productID string, quantity int) State {
	if quantity <= 0 {
		return Remove(s, productID)
	}

	items := slices.Clone(s.Items)
	if i := indexOf(items, productID); i >= 0 {
		items[i].Quantity = quantity
	}
	return newState(items)
}

// Clear returns the empty cart.
func Clear() State {
	return newState(nil)
}

// Load rebuilds a cart from previously persisted lines. Lines whose quantity
// is not positive are dropped and repeated product ids are merged into the
// first occurrence so the one-line-per-product invariant holds even for
// hand-edited or partially written storage.
func Load(lines []Line) State {
	items := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			continue
		}
		if i := indexOf(items, l.ProductID); i >= 0 {
			items[i].Quantity += l.Quantity
			continue
		}
		items = append(items, l)
	}
	return newState(items)
}
