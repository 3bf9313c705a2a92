package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ariya-Dice/tansoo/internal/domain"
	"github.com/Ariya-Dice/tansoo/internal/slot"
	apperrors "github.com/Ariya-Dice/tansoo/pkg/errors"
)

const testKey = "cart:sess-1"

var faucet = domain.Product{
	ID:     "7",
	Name:   "شیر روشویی",
	Price:  1_500_000,
	Colors: []string{"chrome", "white"},
}

var sink = domain.Product{ID: "9", Name: "سینک", Price: 2_000_000}

// flakySlot fails writes while failing is set.
type flakySlot struct {
	*slot.Memory
	failing bool
	getErr  error
}

func (f *flakySlot) Set(ctx context.Context, key, value string) error {
	if f.failing {
		return errors.New("disk full")
	}
	return f.Memory.Set(ctx, key, value)
}

func (f *flakySlot) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	return f.Memory.Get(ctx, key)
}

func newStore(t *testing.T) (*Store, *slot.Memory) {
	t.Helper()
	mem := slot.NewMemory()
	s := New(mem, testKey)
	s.Restore(context.Background())
	return s, mem
}

func assertConsistent(t *testing.T, s *Store) {
	t.Helper()
	var total int64
	var count int
	for _, l := range s.Lines() {
		total += l.Product.Price * int64(l.Quantity)
		count += l.Quantity
	}
	assert.Equal(t, total, s.Total(), "total")
	assert.Equal(t, count, s.Count(), "count")
}

func TestFaucetScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.AddItem(ctx, faucet, "chrome", 2))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, int64(3_000_000), s.Total())

	require.NoError(t, s.AddItem(ctx, faucet, "chrome", 1))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, int64(4_500_000), s.Total())

	require.NoError(t, s.AddItem(ctx, faucet, "white", 1))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 4, s.Count())
	assert.Equal(t, int64(6_000_000), s.Total())

	require.NoError(t, s.UpdateQuantity(ctx, faucet.ID, "chrome", 0))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, int64(1_500_000), s.Total())
	_, ok := s.Line(faucet.ID, "white")
	assert.True(t, ok)

	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, int64(0), s.Total())
}

func TestAddItem_MergesSameKey(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.AddItem(ctx, sink, "", 1))
	require.NoError(t, s.AddItem(ctx, faucet, "white", 2))
	require.NoError(t, s.AddItem(ctx, sink, "", 4))

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, sink.ID, lines[0].Product.ID, "insertion order kept")
	assert.Equal(t, 5, lines[0].Quantity)
	assert.Equal(t, 2, lines[1].Quantity)
	assertConsistent(t, s)
}

func TestAddItem_DifferentVariantsAreSeparateLines(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	require.NoError(t, s.AddItem(ctx, faucet, "chrome", 1))
	require.NoError(t, s.AddItem(ctx, faucet, "white", 1))
	assert.Equal(t, 2, s.Len())
}

func TestAddItem_RejectsNonPositiveQuantity(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t)
	require.NoError(t, s.AddItem(ctx, sink, "", 1))
	before, _, _ := mem.Get(ctx, testKey)

	for _, qty := range []int{0, -3} {
		err := s.AddItem(ctx, sink, "", qty)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}

	assert.Equal(t, 1, s.Count())
	after, _, _ := mem.Get(ctx, testKey)
	assert.Equal(t, before, after)
}

func TestAddItem_SnapshotsProduct(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	p := faucet.Clone()
	require.NoError(t, s.AddItem(ctx, p, "chrome", 1))
	p.Price = 1
	p.Colors[0] = "gold"

	line, ok := s.Line(faucet.ID, "chrome")
	require.True(t, ok)
	assert.Equal(t, int64(1_500_000), line.Product.Price)
	assert.Equal(t, "chrome", line.Product.Colors[0])
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("sets quantity", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.AddItem(ctx, sink, "", 1))
		require.NoError(t, s.UpdateQuantity(ctx, sink.ID, "", 6))
		assert.Equal(t, 6, s.Count())
		assert.Equal(t, int64(12_000_000), s.Total())
	})

	t.Run("negative removes", func(t *testing.T) {
		s, _ := newStore(t)
		require.NoError(t, s.AddItem(ctx, sink, "", 1))
		require.NoError(t, s.UpdateQuantity(ctx, sink.ID, "", -1))
		assert.Equal(t, 0, s.Len())
		assertConsistent(t, s)
	})

	t.Run("missing line is a no-op", func(t *testing.T) {
		s, mem := newStore(t)
		require.NoError(t, s.AddItem(ctx, sink, "", 1))
		require.NoError(t, s.UpdateQuantity(ctx, "404", "", 3))
		require.NoError(t, s.UpdateQuantity(ctx, sink.ID, "white", 3))
		assert.Equal(t, 1, s.Count())

		restored := New(mem, testKey)
		restored.Restore(ctx)
		assert.Equal(t, s.Snapshot(), restored.Snapshot())
	})
}

func TestRemoveItem_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.AddItem(ctx, faucet, "chrome", 2))
	require.NoError(t, s.AddItem(ctx, sink, "", 1))

	require.NoError(t, s.RemoveItem(ctx, faucet.ID, "chrome"))
	once := s.Snapshot()
	require.NoError(t, s.RemoveItem(ctx, faucet.ID, "chrome"))
	assert.Equal(t, once, s.Snapshot())
	assert.Equal(t, 1, s.Count())
	assertConsistent(t, s)
}

func TestPersistRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t)
	require.NoError(t, s.AddItem(ctx, faucet, "white", 3))
	require.NoError(t, s.AddItem(ctx, sink, "", 1))
	require.NoError(t, s.UpdateQuantity(ctx, faucet.ID, "white", 2))

	restored := New(mem, testKey)
	restored.Restore(ctx)

	assert.Equal(t, s.Snapshot(), restored.Snapshot())
	assert.Equal(t, int64(5_000_000), restored.Total())
	assert.Equal(t, 3, restored.Count())
}

func TestClear_PersistsEmptySnapshot(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t)
	require.NoError(t, s.AddItem(ctx, sink, "", 2))
	require.NoError(t, s.Clear(ctx))

	raw, found, err := mem.Get(ctx, testKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"items":[],"total":0,"count":0}`, raw)
}

func TestRestore_FailsOpen(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "{{{"},
		{"scalar", "42"},
		{"negative price", `{"items":[{"product":{"id":"1","name":"x","price":-5},"quantity":1}]}`},
		{"zero quantity", `{"items":[{"product":{"id":"1","name":"x","price":5},"quantity":0}]}`},
		{"missing id", `[{"product":{"name":"x","price":5},"quantity":1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := slot.NewMemory()
			require.NoError(t, mem.Set(ctx, testKey, tt.raw))

			s := New(mem, testKey)
			s.Restore(ctx)
			assert.Equal(t, 0, s.Len())
			assert.Equal(t, 0, s.Count())
			assert.Equal(t, int64(0), s.Total())
		})
	}
}

func TestRestore_UnreadableSlot(t *testing.T) {
	f := &flakySlot{Memory: slot.NewMemory(), getErr: errors.New("connection refused")}
	s := New(f, testKey)
	s.Restore(context.Background())
	assert.Equal(t, 0, s.Len())
}

func TestRestore_LegacyArrayMergesAndRecomputes(t *testing.T) {
	ctx := context.Background()
	mem := slot.NewMemory()
	require.NoError(t, mem.Set(ctx, testKey, `[
		{"product":{"id":7,"name":"faucet","price":1500000,"colors":["chrome","white"]},"color":"chrome","quantity":1},
		{"product":{"id":7,"name":"faucet","price":1500000,"colors":["chrome","white"]},"color":"chrome","quantity":2}
	]`))

	s := New(mem, testKey)
	s.Restore(ctx)
	require.Equal(t, 1, s.Len())
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, int64(4_500_000), s.Total())
}

func TestRestore_ReplacesInMemoryState(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t)
	require.NoError(t, s.AddItem(ctx, sink, "", 1))
	require.NoError(t, mem.Delete(ctx, testKey))

	s.Restore(ctx)
	assert.Equal(t, 0, s.Len())
}

func TestPersistFailure_MutationStands(t *testing.T) {
	ctx := context.Background()
	f := &flakySlot{Memory: slot.NewMemory()}
	s := New(f, testKey)
	s.Restore(ctx)

	require.NoError(t, s.AddItem(ctx, sink, "", 1))
	f.failing = true

	err := s.AddItem(ctx, sink, "", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist cart "+testKey)
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, int64(6_000_000), s.Total())

	raw, _, _ := f.Memory.Get(ctx, testKey)
	snap, err := domain.DecodeSnapshot([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Count, "slot still holds the last good write")
}

func TestLines_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	require.NoError(t, s.AddItem(ctx, faucet, "chrome", 1))

	lines := s.Lines()
	lines[0].Quantity = 99
	lines[0].Product.Colors[0] = "gold"

	line, _ := s.Line(faucet.ID, "chrome")
	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, "chrome", line.Product.Colors[0])
}

func TestDiscard_DeletesSlot(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t)
	require.NoError(t, s.AddItem(ctx, sink, "", 2))

	require.NoError(t, s.Discard(ctx))
	assert.Equal(t, 0, s.Count())
	assert.Equal(t, 0, mem.Len())

	restored := New(mem, testKey)
	restored.Restore(ctx)
	assert.Equal(t, 0, restored.Len())
}

func TestAddItem_RejectsInvalidProduct(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t)
	require.NoError(t, s.AddItem(ctx, faucet, "chrome", 2))
	before, _, _ := mem.Get(ctx, testKey)

	tests := []struct {
		name    string
		product domain.Product
		variant string
	}{
		{"empty id", domain.Product{Name: "بی‌شناسه", Price: 1000}, ""},
		{"empty name", domain.Product{ID: "3", Price: 1000}, ""},
		{"negative price", domain.Product{ID: "3", Name: "دوش", Price: -1}, ""},
		{"price above max", domain.Product{ID: "3", Name: "دوش", Price: domain.MaxPrice + 1}, ""},
		{"undeclared variant", faucet, "gold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, s.AddItem(ctx, tt.product, tt.variant, 1))
		})
	}

	assert.Equal(t, 1, s.Len())
	after, _, _ := mem.Get(ctx, testKey)
	assert.Equal(t, before, after)

	restored := New(mem, testKey)
	restored.Restore(ctx)
	assert.Equal(t, 1, restored.Len())
	assert.Equal(t, 2, restored.Count())
	assert.Equal(t, int64(3_000_000), restored.Total())
}

func TestAddItem_RejectsTotalOverflow(t *testing.T) {
	ctx := context.Background()
	s, mem := newStore(t)
	expensive := domain.Product{ID: "11", Name: "جکوزی", Price: domain.MaxPrice}

	require.NoError(t, s.AddItem(ctx, expensive, "", 9_000_000))
	before, _, _ := mem.Get(ctx, testKey)

	err := s.AddItem(ctx, expensive, "", 300_000)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	err = s.AddItem(ctx, sink, "", 200_000_000_000)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Equal(t, 9_000_000, s.Count())
	assert.Equal(t, domain.MaxPrice*9_000_000, s.Total())
	assertConsistent(t, s)
	after, _, _ := mem.Get(ctx, testKey)
	assert.Equal(t, before, after)
}

func TestUpdateQuantity_RejectsTotalOverflow(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	expensive := domain.Product{ID: "11", Name: "جکوزی", Price: domain.MaxPrice}
	require.NoError(t, s.AddItem(ctx, expensive, "", 1))

	err := s.UpdateQuantity(ctx, expensive.ID, "", 10_000_000)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, 1, s.Count())

	require.NoError(t, s.UpdateQuantity(ctx, expensive.ID, "", 9_000_000))
	assert.Equal(t, domain.MaxPrice*9_000_000, s.Total())
	assertConsistent(t, s)
}

func TestLine_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	p := faucet.Clone()
	p.Specs = map[string]string{"جنس": "برنج"}
	p.Images = domain.Images{"chrome": "/img/chrome.jpg"}
	require.NoError(t, s.AddItem(ctx, p, "chrome", 1))

	line, ok := s.Line(faucet.ID, "chrome")
	require.True(t, ok)
	line.Product.Colors[0] = "gold"
	line.Product.Specs["جنس"] = "پلاستیک"
	line.Product.Images["chrome"] = "/img/other.jpg"

	again, _ := s.Line(faucet.ID, "chrome")
	assert.Equal(t, "chrome", again.Product.Colors[0])
	assert.Equal(t, "برنج", again.Product.Specs["جنس"])
	assert.Equal(t, "/img/chrome.jpg", again.Product.Images["chrome"])
}
