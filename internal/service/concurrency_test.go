package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"apotekin/backend/internal/domain"
)

func TestCreateSale_ConcurrentSalesNeverOversell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rowID := uuid.New()
	require.NoError(t, f.repo.CreateInventory(ctx, domain.Inventory{ID: rowID, ProductID: f.productID, Quantity: 5}))

	var ok, short atomic.Int32
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := f.svc.CreateSale(ctx, saleRequest(line(f.productID, rowID, 5, "10")))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				short.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(1), short.Load())
	assert.Equal(t, 0, f.quantity(t, rowID))
	assert.Equal(t, 1, f.saleCount(t))
}

func TestCreateSale_ManySmallConcurrentSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ok atomic.Int32
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := f.svc.CreateSale(ctx, saleRequest(line(f.productID, f.invID, 1, "10")))
			if err == nil {
				ok.Add(1)
				return nil
			}
			if errors.Is(err, domain.ErrInsufficientStock) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(10), ok.Load())
	assert.Equal(t, 0, f.quantity(t, f.invID))
	assert.Equal(t, 10, f.saleCount(t))
}

func TestCreateSale_ConcurrentBatchSales(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ok atomic.Int32
	var g errgroup.Group
	for i := 0; i < 6; i++ {
		g.Go(func() error {
			item := line(f.rxProductID, f.rxInvID, 1, "25")
			item.Batch = &domain.BatchRef{ID: f.batchID.String()}
			req := saleRequest(item)
			req.HasPrescription = true
			_, err := f.svc.CreateSale(ctx, req)
			if err == nil {
				ok.Add(1)
				return nil
			}
			if errors.Is(err, domain.ErrInsufficientStock) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(3), ok.Load())
	b := f.batch(t)
	assert.Equal(t, 0, b.Quantity)
	assert.Equal(t, domain.BatchStatusDepleted, b.Status)
	assert.Equal(t, 17, f.quantity(t, f.rxInvID))
}
