package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"

	apperrors "github.com/Ariya-Dice/tansoo/pkg/errors"
	"github.com/Ariya-Dice/tansoo/pkg/validator"
)

// ProductID is a catalog product identifier. The local catalog API sends
// numbers and the database-backed one sends strings, so both decode into
// the same string form.
type ProductID string

// UnmarshalJSON accepts a JSON string or an integral JSON number.
func (id *ProductID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ProductID(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("product id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("product id %s is not an integer", n)
	}
	*id = ProductID(n.String())
	return nil
}

func (id ProductID) String() string { return string(id) }

// Product is the catalog record a cart line keeps a copy of. Only ID,
// Name, Price and Colors affect cart behaviour; the rest is carried for
// display.
type Product struct {
	ID           ProductID         `json:"id" validate:"required"`
	Name         string            `json:"name" validate:"required"`
	Price        int64             `json:"price" validate:"gte=0,lte=1000000000000"`
	Colors       []string          `json:"colors,omitempty"`
	Category     string            `json:"category,omitempty"`
	Type         string            `json:"type,omitempty"`
	Description  string            `json:"description,omitempty"`
	Specs        map[string]string `json:"specs,omitempty"`
	Images       Images            `json:"images,omitempty"`
	IsNew        bool              `json:"isNew,omitempty"`
	IsBestSeller bool              `json:"isBestSeller,omitempty"`
}

// MaxPrice is the largest accepted price in the smallest currency unit. It
// must match the lte bound on Product.Price.
const MaxPrice int64 = 1_000_000_000_000

// HasVariants reports whether the product declares a variant dimension.
func (p Product) HasVariants() bool {
	return len(p.Colors) > 0
}

// Validate checks the product and the chosen variant at the cart boundary.
// A product that declares colors only accepts one of them; a product that
// declares none accepts any variant, including none.
func (p Product) Validate(variant string) error {
	if err := validator.Validate(p); err != nil {
		return err
	}
	if p.HasVariants() && !slices.Contains(p.Colors, variant) {
		return apperrors.InvalidInput(fmt.Sprintf("variant %q is not offered for product %s", variant, p.ID))
	}
	return nil
}

// Clone returns a deep copy so a line never aliases the caller's maps or
// slices.
func (p Product) Clone() Product {
	c := p
	c.Colors = slices.Clone(p.Colors)
	if p.Specs != nil {
		c.Specs = make(map[string]string, len(p.Specs))
		for k, v := range p.Specs {
			c.Specs[k] = v
		}
	}
	c.Images = maps.Clone(p.Images)
	return c
}

// Images maps a variant key to an image URL. The database-backed catalog
// sends a plain URL list instead; list entries are keyed by their index.
type Images map[string]string

// UnmarshalJSON accepts an object of variant to URL or an array of URLs.
func (im *Images) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var urls []string
		if err := json.Unmarshal(data, &urls); err != nil {
			return fmt.Errorf("product images: %w", err)
		}
		m := make(Images, len(urls))
		for i, u := range urls {
			m[strconv.Itoa(i)] = u
		}
		*im = m
		return nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("product images: %w", err)
	}
	*im = m
	return nil
}
