package catalog

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaufCode/venella-pharmacy/internal/dbtest"
)

func seedProduct(t *testing.T, s *Store, name string, price string, stock int) *Product {
	t.Helper()
	p := &Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock}
	require.NoError(t, s.Create(context.Background(), p))
	return p
}

func TestDecrement_Success(t *testing.T) {
	s := NewStore(dbtest.Open(t, &Product{}))
	p := seedProduct(t, s, "Paracetamol", "15.00", 20)

	got, err := s.Decrement(context.Background(), p.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, 18, got.Stock)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("15.00")))
}

func TestDecrement_ExactStockReachesZero(t *testing.T) {
	s := NewStore(dbtest.Open(t, &Product{}))
	p := seedProduct(t, s, "Ibuprofen", "9.99", 3)

	got, err := s.Decrement(context.Background(), p.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestDecrement_InsufficientLeavesStock(t *testing.T) {
	s := NewStore(dbtest.Open(t, &Product{}))
	ctx := context.Background()
	p := seedProduct(t, s, "Vitamin C", "5.00", 1)

	_, err := s.Decrement(ctx, p.ID, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	again, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Stock)
}

func TestDecrement_UnknownProduct(t *testing.T) {
	s := NewStore(dbtest.Open(t, &Product{}))
	_, err := s.Decrement(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestDecrement_RejectsNonPositive(t *testing.T) {
	s := NewStore(dbtest.Open(t, &Product{}))
	p := seedProduct(t, s, "Zinc", "1.00", 5)
	_, err := s.Decrement(context.Background(), p.ID, 0)
	assert.Error(t, err)
}

// Concurrent buyers of the last units: exactly as many succeed as there is stock.
func TestDecrement_ConcurrentNeverOversells(t *testing.T) {
	s := NewStore(dbtest.Open(t, &Product{}))
	ctx := context.Background()
	p := seedProduct(t, s, "Masks", "2.50", 5)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Decrement(ctx, p.ID, 1)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else {
				fail++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 3, fail)
	final, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, final.Stock)
}

func TestGetMany(t *testing.T) {
	s := NewStore(dbtest.Open(t, &Product{}))
	a := seedProduct(t, s, "A", "1.00", 1)
	b := seedProduct(t, s, "B", "2.00", 1)

	got, err := s.GetMany(context.Background(), []string{a.ID, b.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "B", got[b.ID].Name)
}

func TestLowStock(t *testing.T) {
	s := NewStore(dbtest.Open(t, &Product{}))
	seedProduct(t, s, "Plenty", "1.00", 50)
	seedProduct(t, s, "Edge", "1.00", 10)
	seedProduct(t, s, "Empty", "1.00", 0)

	got, err := s.LowStock(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Empty", got[0].Name)
	assert.Equal(t, "Edge", got[1].Name)
}
