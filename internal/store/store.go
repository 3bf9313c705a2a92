// Package store holds a single cart in memory and mirrors every mutation
// into a durable slot.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/Ariya-Dice/tansoo/internal/domain"
	"github.com/Ariya-Dice/tansoo/internal/slot"
	apperrors "github.com/Ariya-Dice/tansoo/pkg/errors"
	"github.com/Ariya-Dice/tansoo/pkg/logger"
)

// Store is one cart bound to one slot key. It is not safe for concurrent
// use; callers serialize access.
type Store struct {
	slot  slot.Slot
	key   string
	lines []domain.Line
	total int64
	count int
}

// New creates an empty store persisting under key. Call Restore to load
// what the slot already holds.
func New(s slot.Slot, key string) *Store {
	return &Store{slot: s, key: key}
}

// Key returns the slot key the store writes to.
func (s *Store) Key() string { return s.key }

// Restore replaces the in-memory cart with the persisted snapshot. A
// missing, unreadable or corrupt snapshot leaves the cart empty and is
// only logged.
func (s *Store) Restore(ctx context.Context) {
	s.set(nil)

	raw, found, err := s.slot.Get(ctx, s.key)
	if err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "cart slot unreadable, starting empty",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
		return
	}
	if !found {
		return
	}

	snap, err := domain.DecodeSnapshot([]byte(raw))
	if err != nil {
		logger.FromContext(ctx).WarnContext(ctx, "discarding corrupt cart snapshot",
			slog.String("key", s.key),
			slog.String("error", err.Error()),
		)
		return
	}
	s.set(snap.Items)
}

// AddItem adds quantity units of product in variant. An existing line with
// the same product id and variant grows; otherwise a line is appended. The
// product is validated first and an invalid product leaves the cart as is.
func (s *Store) AddItem(ctx context.Context, product domain.Product, variant string, quantity int) error {
	if quantity <= 0 {
		return apperrors.InvalidInput("quantity must be greater than 0")
	}
	if err := product.Validate(variant); err != nil {
		return err
	}

	key := domain.LineKey{ProductID: product.ID, Variant: variant}
	i := s.find(key)
	price := product.Price
	if i >= 0 {
		price = s.lines[i].Product.Price
	}
	if err := s.checkGrowth(price, quantity); err != nil {
		return err
	}

	if i >= 0 {
		s.lines[i].Quantity += quantity
	} else {
		s.lines = append(s.lines, domain.Line{
			Product:  product.Clone(),
			Variant:  variant,
			Quantity: quantity,
		})
	}
	return s.commit(ctx)
}

// UpdateQuantity sets the quantity of an existing line. A quantity of zero
// or less removes the line. Updating a line that is not in the cart does
// nothing.
func (s *Store) UpdateQuantity(ctx context.Context, productID domain.ProductID, variant string, quantity int) error {
	i := s.find(domain.LineKey{ProductID: productID, Variant: variant})
	if i < 0 {
		return nil
	}
	if quantity <= 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
		return s.commit(ctx)
	}
	if delta := quantity - s.lines[i].Quantity; delta > 0 {
		if err := s.checkGrowth(s.lines[i].Product.Price, delta); err != nil {
			return err
		}
	}
	s.lines[i].Quantity = quantity
	return s.commit(ctx)
}

// RemoveItem drops the line if present.
func (s *Store) RemoveItem(ctx context.Context, productID domain.ProductID, variant string) error {
	i := s.find(domain.LineKey{ProductID: productID, Variant: variant})
	if i < 0 {
		return nil
	}
	s.lines = append(s.lines[:i], s.lines[i+1:]...)
	return s.commit(ctx)
}

// Clear empties the cart and persists the empty snapshot.
func (s *Store) Clear(ctx context.Context) error {
	s.lines = nil
	return s.commit(ctx)
}

// Discard empties the cart and deletes its slot key. A later Restore
// yields an empty cart, exactly as after Clear.
func (s *Store) Discard(ctx context.Context) error {
	s.set(nil)
	if err := s.slot.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("delete cart %s: %w", s.key, err)
	}
	return nil
}

// Total returns Σ price×quantity over all lines.
func (s *Store) Total() int64 { return s.total }

// Count returns Σ quantity over all lines.
func (s *Store) Count() int { return s.count }

// Len returns the number of distinct lines.
func (s *Store) Len() int { return len(s.lines) }

// Line returns the line under key, if any.
func (s *Store) Line(productID domain.ProductID, variant string) (domain.Line, bool) {
	i := s.find(domain.LineKey{ProductID: productID, Variant: variant})
	if i < 0 {
		return domain.Line{}, false
	}
	l := s.lines[i]
	l.Product = l.Product.Clone()
	return l, true
}

// Lines returns a copy of the lines in insertion order.
func (s *Store) Lines() []domain.Line {
	out := make([]domain.Line, len(s.lines))
	for i, l := range s.lines {
		l.Product = l.Product.Clone()
		out[i] = l
	}
	return out
}

// Snapshot returns a copy of the lines with their aggregates.
func (s *Store) Snapshot() domain.Snapshot {
	return domain.Snapshot{Items: s.Lines(), Total: s.total, Count: s.count}
}

func (s *Store) find(key domain.LineKey) int {
	for i := range s.lines {
		if s.lines[i].Key() == key {
			return i
		}
	}
	return -1
}

// checkGrowth rejects adding quantity units at price when the total or the
// count would no longer fit.
func (s *Store) checkGrowth(price int64, quantity int) error {
	if _, ok := domain.AddSubtotal(s.total, price, quantity); !ok || s.count > math.MaxInt-quantity {
		return apperrors.InvalidInput("cart total is too large")
	}
	return nil
}

func (s *Store) set(lines []domain.Line) {
	s.lines = lines
	s.total, s.count = domain.Totals(lines)
}

// commit recomputes the aggregates and writes the snapshot. The in-memory
// state is kept even when the write fails.
func (s *Store) commit(ctx context.Context) error {
	s.total, s.count = domain.Totals(s.lines)
	return s.persist(ctx)
}

func (s *Store) persist(ctx context.Context) error {
	data, err := s.Snapshot().Encode()
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", s.key, err)
	}
	if err := s.slot.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("persist cart %s: %w", s.key, err)
	}
	return nil
}
