// Package cart implements the pure cart state transitions: merge-on-add,
// quantity updates, removal and the derived total. Persistence and
// notification live in the cart service; every function here returns fresh
// slices and never mutates its input.
package cart

import (
	"strings"
	"time"

	domain "github.com/renewtech/api/internal/domain"
)

// Total derives the monetary sum over all lines. It is the only way a cart
// total is ever produced; callers must re-derive after each mutation.
func Total(lines []domain.CartLine) int64 {
	var total int64
	for _, line := range lines {
		if line.Quantity <= 0 || line.UnitPrice < 0 {
			continue
		}
		total += line.UnitPrice * int64(line.Quantity)
	}
	return total
}

// Add merges the given line into the list. When a line for the same product
// already exists its quantity is incremented and its originally captured
// unit price is retained; otherwise the line is appended, preserving
// insertion order. The caller supplies the identifier for a fresh line.
func Add(lines []domain.CartLine, line domain.CartLine, now time.Time) []domain.CartLine {
	out := Clone(lines)
	productID := strings.TrimSpace(line.ProductID)
	for i := range out {
		// Product identifiers are opaque; matching is exact, never folded.
		if strings.TrimSpace(out[i].ProductID) != productID {
			continue
		}
		out[i].Quantity += line.Quantity
		ts := now
		out[i].UpdatedAt = &ts
		return out
	}
	added := line
	added.ProductID = productID
	added.AddedAt = now
	added.UpdatedAt = nil
	return append(out, added)
}

// Remove deletes the line for the product, if present. Removing an absent
// product is a no-op, not an error.
func Remove(lines []domain.CartLine, productID string) []domain.CartLine {
	target := strings.TrimSpace(productID)
	out := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line.ProductID) == target {
			continue
		}
		out = append(out, line)
	}
	return out
}

// SetQuantity overwrites the quantity for the product's line. The engine
// performs no clamping; validating against stock is the caller's concern.
// A missing line leaves the list unchanged.
func SetQuantity(lines []domain.CartLine, productID string, quantity int, now time.Time) []domain.CartLine {
	out := Clone(lines)
	target := strings.TrimSpace(productID)
	for i := range out {
		if strings.TrimSpace(out[i].ProductID) != target {
			continue
		}
		out[i].Quantity = quantity
		ts := now
		out[i].UpdatedAt = &ts
		break
	}
	return out
}

// Clone copies the line slice so callers can mutate freely.
func Clone(lines []domain.CartLine) []domain.CartLine {
	if len(lines) == 0 {
		return []domain.CartLine{}
	}
	out := make([]domain.CartLine, len(lines))
	copy(out, lines)
	for i := range out {
		if out[i].UpdatedAt != nil {
			ts := out[i].UpdatedAt.UTC()
			out[i].UpdatedAt = &ts
		}
	}
	return out
}

// Normalise repairs a cart loaded from storage: malformed lines (empty
// product, non-positive quantity, negative price) are dropped rather than
// failing the load, and the derived total is recomputed from the surviving
// lines.
func Normalise(c domain.Cart, userID string, currency string, now time.Time) domain.Cart {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		c.ID = strings.TrimSpace(userID)
	}
	c.UserID = strings.TrimSpace(userID)
	c.Currency = strings.ToUpper(strings.TrimSpace(c.Currency))
	if c.Currency == "" {
		c.Currency = strings.ToUpper(strings.TrimSpace(currency))
	}

	kept := make([]domain.CartLine, 0, len(c.Lines))
	for _, line := range c.Lines {
		line.ID = strings.TrimSpace(line.ID)
		line.ProductID = strings.TrimSpace(line.ProductID)
		if line.ProductID == "" || line.Quantity <= 0 || line.UnitPrice < 0 {
			continue
		}
		kept = append(kept, line)
	}
	c.Lines = kept
	c.Total = Total(c.Lines)

	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	return c
}
