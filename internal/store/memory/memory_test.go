package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/ledger"
	"apotekin/backend/internal/store"
	"apotekin/backend/internal/store/seed"
)

func newStockedStore(t *testing.T) (*Store, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	s := New()
	productID, invID, batchID := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, s.CreateProduct(ctx, domain.Product{ID: productID, Name: "Ibuprofen 400mg", Price: decimal.NewFromInt(10)}))
	require.NoError(t, s.CreateInventory(ctx, domain.Inventory{ID: invID, ProductID: productID, Quantity: 5, ReorderLevel: 2}))
	require.NoError(t, s.CreateBatch(ctx, domain.ProductBatch{
		ID: batchID, ProductID: productID, BatchNumber: "IBU-1", Quantity: 3,
		ExpiryDate: time.Now().AddDate(1, 0, 0),
	}))
	return s, invID, batchID
}

func TestWithTx_CommitsAllWrites(t *testing.T) {
	ctx := context.Background()
	s, invID, batchID := newStockedStore(t)
	saleID := uuid.New()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertSale(ctx, domain.Sale{
			ID:    saleID,
			Items: []domain.SaleItem{{InventoryID: invID, Quantity: 3}},
		}); err != nil {
			return err
		}
		if err := tx.ApplyInventoryDeltas(ctx, []ledger.Delta{{RowID: invID, Qty: -3}}); err != nil {
			return err
		}
		return tx.ApplyBatchDeltas(ctx, []ledger.Delta{{RowID: batchID, Qty: -3}})
	})
	require.NoError(t, err)

	inv, err := s.GetInventory(ctx, invID)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.Quantity)

	batch, err := s.GetBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Quantity)
	assert.Equal(t, domain.BatchStatusDepleted, batch.Status)

	_, err = s.GetSale(ctx, saleID)
	assert.NoError(t, err)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s, invID, batchID := newStockedStore(t)
	saleID := uuid.New()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		require.NoError(t, tx.InsertSale(ctx, domain.Sale{ID: saleID, Items: []domain.SaleItem{{InventoryID: invID, Quantity: 1}}}))
		require.NoError(t, tx.ApplyInventoryDeltas(ctx, []ledger.Delta{{RowID: invID, Qty: -1}}))
		require.NoError(t, tx.ApplyBatchDeltas(ctx, []ledger.Delta{{RowID: batchID, Qty: -1}}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	inv, _ := s.GetInventory(ctx, invID)
	assert.Equal(t, 5, inv.Quantity)
	batch, _ := s.GetBatch(ctx, batchID)
	assert.Equal(t, 3, batch.Quantity)
	_, err = s.GetSale(ctx, saleID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithTx_CancelledContextLeavesNoWrites(t *testing.T) {
	s, invID, _ := newStockedStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.ApplyInventoryDeltas(ctx, []ledger.Delta{{RowID: invID, Qty: -2}}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	inv, _ := s.GetInventory(context.Background(), invID)
	assert.Equal(t, 5, inv.Quantity)
}

func TestApplyInventoryDeltas_RejectsWholeSetWhenOneRowGoesNegative(t *testing.T) {
	ctx := context.Background()
	s, invID, _ := newStockedStore(t)
	other := uuid.New()
	product, _ := s.GetInventory(ctx, invID)
	require.NoError(t, s.CreateInventory(ctx, domain.Inventory{ID: other, ProductID: product.ProductID, Quantity: 10}))

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.ApplyInventoryDeltas(ctx, []ledger.Delta{{RowID: other, Qty: -4}, {RowID: invID, Qty: -6}})
	})

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, 6, stockErr.Requested)

	a, _ := s.GetInventory(ctx, invID)
	b, _ := s.GetInventory(ctx, other)
	assert.Equal(t, 5, a.Quantity)
	assert.Equal(t, 10, b.Quantity)
}

func TestApplyBatchDeltas_UnknownRow(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStockedStore(t)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.ApplyBatchDeltas(ctx, []ledger.Delta{{RowID: uuid.New(), Qty: 1}})
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteSale_SecondDeleteIsNotFound(t *testing.T) {
	ctx := context.Background()
	s, invID, _ := newStockedStore(t)
	saleID := uuid.New()
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertSale(ctx, domain.Sale{ID: saleID, Items: []domain.SaleItem{{InventoryID: invID, Quantity: 1}}})
	}))

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error { return tx.DeleteSale(ctx, saleID) }))
	err := s.WithTx(ctx, func(tx store.Tx) error { return tx.DeleteSale(ctx, saleID) })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateCustomer_DuplicatePhone(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateCustomer(ctx, domain.Customer{ID: uuid.New(), Name: "Sari", Phone: "0812"}))
	err := s.CreateCustomer(ctx, domain.Customer{ID: uuid.New(), Name: "Sari W", Phone: "0812"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestListInventory_Filters(t *testing.T) {
	ctx := context.Background()
	s := NewSeeded()
	today := domain.DateOf(time.Now())

	low, total, err := s.ListInventory(ctx, domain.InventoryFilter{LowStock: true, Page: 1, Limit: 50})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, seed.InventoryCetirizine, low[0].ID)

	expiring, total, err := s.ListInventory(ctx, domain.InventoryFilter{
		ExpiringSoon:  true,
		ExpiringFrom:  today,
		ExpiringUntil: today.AddDate(0, 0, 90),
		Page:          1,
		Limit:         50,
	})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, seed.InventoryCetirizine, expiring[0].ID)

	page, total, err := s.ListInventory(ctx, domain.InventoryFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, page, 2)
}

func TestSeededUsersAreHashed(t *testing.T) {
	s := NewSeeded()
	users, err := s.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.NotEqual(t, "admin123", u.Password)
		assert.Contains(t, u.Password, "$2a$")
	}
}
