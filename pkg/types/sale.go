package types

import (
	"fmt"
	"strconv"
)

// Sale is a single line item within an Event.
type Sale struct {
	Category string `json:"category"`
	// Decimal amount, kept as text to avoid float rounding on the wire.
	Value    string `json:"value"`
	SKU      string `json:"sku,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

// NewSale validates value as a decimal number and returns a Sale.
func NewSale(category, value string) (Sale, error) {
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return Sale{}, fmt.Errorf("sale value %q: %w", value, err)
	}
	return Sale{Category: category, Value: value}, nil
}

// wire renders the sale the way the tracking backend expects it: every
// field is a string.
func (s Sale) wire() map[string]any {
	m := map[string]any{
		"category": s.Category,
		"value":    s.Value,
	}
	if s.SKU != "" {
		m["sku"] = s.SKU
	}
	if s.Quantity > 0 {
		m["quantity"] = strconv.Itoa(s.Quantity)
	}
	return m
}
