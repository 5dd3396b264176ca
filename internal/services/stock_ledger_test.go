package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

type stubItemRepo struct {
	repositories.ItemRepository
	findFn      func(context.Context, int64) (domain.Item, error)
	decrementFn func(context.Context, int64, int) error
}

func (s *stubItemRepo) FindByID(ctx context.Context, id int64) (domain.Item, error) {
	if s.findFn != nil {
		return s.findFn(ctx, id)
	}
	return domain.Item{}, errNotFound("item")
}

func (s *stubItemRepo) FindForUpdate(ctx context.Context, id int64) (domain.Item, error) {
	return s.FindByID(ctx, id)
}

func (s *stubItemRepo) DecrementStock(ctx context.Context, id int64, qty int) error {
	if s.decrementFn != nil {
		return s.decrementFn(ctx, id, qty)
	}
	return nil
}

func TestStockLedgerReserve(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	item := store.addItem("Pipe Wrench", "420", 5)
	pool := store.addDamaged(item.ID, "300", 1, domain.DamagedItemStatusResellable)
	other := store.addItem("Saw", "800", 5)
	ledger, err := NewStockLedger(StockLedgerDeps{Items: store.Items(), DamagedItems: store.DamagedItems()})
	require.NoError(t, err)
	ctx := context.Background()

	level, err := ledger.Reserve(ctx, domain.ItemSource(item.ID), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, level.Available)

	_, err = ledger.Reserve(ctx, domain.ItemSource(item.ID), 6)
	require.ErrorIs(t, err, ErrInsufficientStock)

	level, err = ledger.Reserve(ctx, domain.DamagedItemSource(item.ID, pool.ID), 1)
	require.NoError(t, err)
	assert.Equal(t, "Pipe Wrench", level.Name)
	assert.Equal(t, "300", level.Price.String())

	_, err = ledger.Reserve(ctx, domain.DamagedItemSource(other.ID, pool.ID), 1)
	require.ErrorIs(t, err, ErrDamagedItemNotFound, "pool must belong to the named item")

	_, err = ledger.Reserve(ctx, domain.ItemSource(item.ID), 0)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = ledger.Level(ctx, domain.StockSource{})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestStockLedgerCommitAndRestore(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	item := store.addItem("Level", "250", 3)
	pool := store.addDamaged(item.ID, "150", 2, domain.DamagedItemStatusResellable)
	ledger, err := NewStockLedger(StockLedgerDeps{Items: store.Items(), DamagedItems: store.DamagedItems()})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, ledger.Commit(ctx, domain.ItemSource(item.ID), 3))
	assert.Equal(t, 0, store.itemQty(item.ID))

	err = ledger.Commit(ctx, domain.ItemSource(item.ID), 1)
	var stockErr *StockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, 0, store.itemQty(item.ID), "a short conditional decrement writes nothing")

	require.NoError(t, ledger.Commit(ctx, domain.DamagedItemSource(item.ID, pool.ID), 2))
	assert.Equal(t, 0, store.damagedQty(pool.ID))
	assert.Equal(t, 0, store.itemQty(item.ID), "damaged stock is a separate pool")

	require.NoError(t, ledger.Restore(ctx, domain.ItemSource(item.ID), 4))
	assert.Equal(t, 4, store.itemQty(item.ID))

	require.ErrorIs(t, ledger.Restore(ctx, domain.ItemSource(999), 1), ErrItemNotFound)
}

func TestStockLedgerCommitMapsRepositoryFailures(t *testing.T) {
	t.Parallel()

	items := &stubItemRepo{decrementFn: func(context.Context, int64, int) error {
		return errors.New("connection reset")
	}}
	ledger, err := NewStockLedger(StockLedgerDeps{Items: items, DamagedItems: newMemoryStore().DamagedItems()})
	require.NoError(t, err)

	err = ledger.Commit(context.Background(), domain.ItemSource(1), 1)
	require.ErrorIs(t, err, ErrPersistence)
}

func TestNewStockLedgerValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := NewStockLedger(StockLedgerDeps{})
	require.Error(t, err)
	_, err = NewStockLedger(StockLedgerDeps{Items: &stubItemRepo{}})
	require.Error(t, err)
}
