package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// LineKey identifies a cart line. Two additions with the same key merge.
type LineKey struct {
	ProductID ProductID
	Variant   string
}

func (k LineKey) String() string {
	if k.Variant == "" {
		return string(k.ProductID)
	}
	return string(k.ProductID) + "/" + k.Variant
}

// Line is one (product, variant, quantity) entry.
type Line struct {
	Product  Product `json:"product"`
	Variant  string  `json:"variant,omitempty"`
	Quantity int     `json:"quantity"`
}

// Key returns the line's merge key.
func (l Line) Key() LineKey {
	return LineKey{ProductID: l.Product.ID, Variant: l.Variant}
}

// Subtotal is price times quantity.
func (l Line) Subtotal() int64 {
	return l.Product.Price * int64(l.Quantity)
}

// Snapshot is the whole cart as persisted and as returned by the API.
// Total and Count are derived from Items and are never trusted on decode.
type Snapshot struct {
	Items []Line `json:"items"`
	Total int64  `json:"total"`
	Count int    `json:"count"`
}

// Totals computes (Σ price×qty, Σ qty) over lines.
func Totals(lines []Line) (total int64, count int) {
	for _, l := range lines {
		total += l.Subtotal()
		count += l.Quantity
	}
	return total, count
}

// AddSubtotal returns total + price×quantity. ok is false when the result
// does not fit in an int64. total, price and quantity must not be negative.
func AddSubtotal(total, price int64, quantity int) (sum int64, ok bool) {
	if quantity == 0 || price == 0 {
		return total, true
	}
	q := int64(quantity)
	if price > math.MaxInt64/q {
		return 0, false
	}
	sub := price * q
	if total > math.MaxInt64-sub {
		return 0, false
	}
	return total + sub, true
}

// NewSnapshot builds a snapshot with aggregates derived from lines.
func NewSnapshot(lines []Line) Snapshot {
	if lines == nil {
		lines = []Line{}
	}
	total, count := Totals(lines)
	return Snapshot{Items: lines, Total: total, Count: count}
}

// ErrCorruptSnapshot marks persisted data that cannot be restored.
var ErrCorruptSnapshot = errors.New("corrupt cart snapshot")

// storedLine accepts both the current "variant" key and the "color" key
// older storefront builds wrote.
type storedLine struct {
	Product  Product `json:"product"`
	Variant  *string `json:"variant"`
	Color    *string `json:"color"`
	Quantity int     `json:"quantity"`
}

type storedCart struct {
	Items []storedLine `json:"items"`
}

// DecodeSnapshot parses a persisted snapshot. It accepts the current
// object form, the {items,total} form without variants and the bare line
// array. Lines with the same key are merged in first-seen order and the
// aggregates are recomputed. Any line without a product id, with a price
// outside [0, MaxPrice] or with a quantity below 1 makes the whole snapshot
// corrupt, as does a total that overflows.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var raw []storedLine
	trimmed := firstNonSpace(data)
	switch trimmed {
	case '[':
		if err := json.Unmarshal(data, &raw); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
	case '{':
		var sc storedCart
		if err := json.Unmarshal(data, &sc); err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
		}
		raw = sc.Items
	default:
		return Snapshot{}, fmt.Errorf("%w: not a JSON object or array", ErrCorruptSnapshot)
	}

	lines := make([]Line, 0, len(raw))
	index := make(map[LineKey]int, len(raw))
	var total int64
	for i, sl := range raw {
		line := Line{Product: sl.Product, Quantity: sl.Quantity}
		switch {
		case sl.Variant != nil:
			line.Variant = *sl.Variant
		case sl.Color != nil:
			line.Variant = *sl.Color
		}

		switch {
		case line.Product.ID == "":
			return Snapshot{}, fmt.Errorf("%w: line %d has no product id", ErrCorruptSnapshot, i)
		case line.Product.Price < 0:
			return Snapshot{}, fmt.Errorf("%w: line %d has a negative price", ErrCorruptSnapshot, i)
		case line.Product.Price > MaxPrice:
			return Snapshot{}, fmt.Errorf("%w: line %d has a price above %d", ErrCorruptSnapshot, i, MaxPrice)
		case line.Quantity < 1:
			return Snapshot{}, fmt.Errorf("%w: line %d has quantity %d", ErrCorruptSnapshot, i, line.Quantity)
		}

		sum, fits := AddSubtotal(total, line.Product.Price, line.Quantity)
		if !fits {
			return Snapshot{}, fmt.Errorf("%w: total overflows at line %d", ErrCorruptSnapshot, i)
		}
		total = sum

		if at, ok := index[line.Key()]; ok {
			lines[at].Quantity += line.Quantity
			continue
		}
		index[line.Key()] = len(lines)
		lines = append(lines, line)
	}

	return NewSnapshot(lines), nil
}

// Encode serializes the snapshot in its current form.
func (s Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c
	}
	return 0
}
