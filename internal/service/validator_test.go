package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/service"
)

func TestValidator_Failures(t *testing.T) {
	f := newFixture(t)
	v := service.NewValidator(f.repo, nil)

	withBatch := func(item domain.SaleItemRequest, id string) domain.SaleItemRequest {
		item.Batch = &domain.BatchRef{ID: id}
		return item
	}

	tests := []struct {
		name      string
		req       domain.SaleRequest
		wantKind  error
		wantField string
	}{
		{
			name:      "empty cart",
			req:       saleRequest(),
			wantKind:  domain.ErrValidation,
			wantField: "items",
		},
		{
			name: "missing product id",
			req: saleRequest(domain.SaleItemRequest{
				InventoryID: f.invID.String(), Quantity: 1, UnitPrice: price("10"),
			}),
			wantKind:  domain.ErrValidation,
			wantField: "items[0].product_id",
		},
		{
			name:      "zero quantity",
			req:       saleRequest(line(f.productID, f.invID, 0, "10")),
			wantKind:  domain.ErrValidation,
			wantField: "items[0].quantity",
		},
		{
			name: "missing unit price",
			req: saleRequest(domain.SaleItemRequest{
				ProductID: f.productID.String(), InventoryID: f.invID.String(), Quantity: 1,
			}),
			wantKind:  domain.ErrValidation,
			wantField: "items[0].unit_price",
		},
		{
			name: "missing field wins over malformed id in a later line",
			req: saleRequest(
				domain.SaleItemRequest{ProductID: "not-a-uuid", InventoryID: f.invID.String(), Quantity: 1, UnitPrice: price("10")},
				domain.SaleItemRequest{ProductID: f.productID.String(), Quantity: 1, UnitPrice: price("10")},
			),
			wantKind:  domain.ErrValidation,
			wantField: "items[1].inventory_id",
		},
		{
			name: "malformed product id",
			req: saleRequest(domain.SaleItemRequest{
				ProductID: "not-a-uuid", InventoryID: f.invID.String(), Quantity: 1, UnitPrice: price("10"),
			}),
			wantKind:  domain.ErrValidation,
			wantField: "items[0].product_id",
		},
		{
			name:      "malformed batch id",
			req:       saleRequest(withBatch(line(f.rxProductID, f.rxInvID, 1, "25"), "batch-7")),
			wantKind:  domain.ErrValidation,
			wantField: "items[0].batch.id",
		},
		{
			name: "discount above unit price",
			req: saleRequest(domain.SaleItemRequest{
				ProductID: f.productID.String(), InventoryID: f.invID.String(), Quantity: 1,
				UnitPrice: price("10"), Discount: decimal.NewFromInt(11),
			}),
			wantKind:  domain.ErrValidation,
			wantField: "items[0].discount",
		},
		{
			name: "unknown payment method",
			req: func() domain.SaleRequest {
				r := saleRequest(line(f.productID, f.invID, 1, "10"))
				r.PaymentMethod = "voucher"
				return r
			}(),
			wantKind:  domain.ErrValidation,
			wantField: "payment_method",
		},
		{
			name: "total mismatch",
			req: func() domain.SaleRequest {
				r := saleRequest(line(f.productID, f.invID, 3, "10"))
				r.TotalAmount = price("25")
				return r
			}(),
			wantKind:  domain.ErrValidation,
			wantField: "total_amount",
		},
		{
			name: "missing operator",
			req: func() domain.SaleRequest {
				r := saleRequest(line(f.productID, f.invID, 1, "10"))
				r.ProcessedBy = " "
				return r
			}(),
			wantKind:  domain.ErrValidation,
			wantField: "processed_by",
		},
		{
			name:     "unknown inventory row",
			req:      saleRequest(line(f.productID, uuid.New(), 1, "10")),
			wantKind: domain.ErrNotFound,
		},
		{
			name:     "unknown product",
			req:      saleRequest(line(uuid.New(), f.invID, 1, "10")),
			wantKind: domain.ErrNotFound,
		},
		{
			name:      "inventory row of another product",
			req:       saleRequest(line(f.productID, f.rxInvID, 1, "10")),
			wantKind:  domain.ErrValidation,
			wantField: "items[0].inventory_id",
		},
		{
			name:     "unknown batch",
			req:      saleRequest(withBatch(line(f.rxProductID, f.rxInvID, 1, "25"), uuid.NewString())),
			wantKind: domain.ErrNotFound,
		},
		{
			name:     "insufficient inventory",
			req:      saleRequest(line(f.productID, f.invID, 11, "10")),
			wantKind: domain.ErrInsufficientStock,
		},
		{
			name:     "insufficient batch",
			req:      saleRequest(withBatch(line(f.rxProductID, f.rxInvID, 4, "25"), f.batchID.String())),
			wantKind: domain.ErrInsufficientStock,
		},
		{
			name:     "lines on one row are summed",
			req:      saleRequest(line(f.productID, f.invID, 6, "10"), line(f.productID, f.invID, 5, "10")),
			wantKind: domain.ErrInsufficientStock,
		},
		{
			name:     "stock shortfall reported before prescription",
			req:      saleRequest(line(f.rxProductID, f.rxInvID, 21, "25")),
			wantKind: domain.ErrInsufficientStock,
		},
		{
			name:     "prescription required",
			req:      saleRequest(line(f.productID, f.invID, 1, "10"), line(f.rxProductID, f.rxInvID, 1, "25")),
			wantKind: domain.ErrPrescriptionRequired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.wantKind)
			if tt.wantField != "" {
				var vErr *domain.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, tt.wantField, vErr.Field)
			}
		})
	}

	assert.Equal(t, 10, f.quantity(t, f.invID))
	assert.Equal(t, 20, f.quantity(t, f.rxInvID))
}

func TestValidator_InsufficientStockCarriesAvailable(t *testing.T) {
	f := newFixture(t)
	v := service.NewValidator(f.repo, nil)

	_, err := v.Validate(context.Background(), saleRequest(line(f.productID, f.invID, 12, "10")))

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 10, stockErr.Available)
	assert.Equal(t, 12, stockErr.Requested)
	assert.Equal(t, f.invID.String(), stockErr.ID)
}

func TestValidator_RejectsExpiredStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	expired := domain.DateOf(time.Now()).AddDate(0, 0, -1)
	rowID, batchID := uuid.New(), uuid.New()
	require.NoError(t, f.repo.CreateInventory(ctx, domain.Inventory{ID: rowID, ProductID: f.productID, Quantity: 50, ExpiryDate: &expired}))
	require.NoError(t, f.repo.CreateBatch(ctx, domain.ProductBatch{ID: batchID, ProductID: f.rxProductID, BatchNumber: "OLD", Quantity: 5, ExpiryDate: expired}))
	v := service.NewValidator(f.repo, nil)

	_, err := v.Validate(ctx, saleRequest(line(f.productID, rowID, 1, "10")))
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "expired stock", vErr.Reason)

	item := line(f.rxProductID, f.rxInvID, 1, "25")
	item.Batch = &domain.BatchRef{ID: batchID.String()}
	req := saleRequest(item)
	req.HasPrescription = true
	_, err = v.Validate(ctx, req)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "expired stock", vErr.Reason)
}

func TestValidator_ExpiringTodayIsSellable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	today := domain.DateOf(time.Now())
	rowID := uuid.New()
	require.NoError(t, f.repo.CreateInventory(ctx, domain.Inventory{ID: rowID, ProductID: f.productID, Quantity: 5, ExpiryDate: &today}))
	v := service.NewValidator(f.repo, nil)

	validated, err := v.Validate(ctx, saleRequest(line(f.productID, rowID, 5, "10")))
	require.NoError(t, err)
	assert.Equal(t, "50", validated.TotalAmount.String())
}

func TestValidator_ResolvesLiveEntities(t *testing.T) {
	f := newFixture(t)
	v := service.NewValidator(f.repo, nil)
	item := line(f.rxProductID, f.rxInvID, 2, "25")
	item.Batch = &domain.BatchRef{ID: f.batchID.String(), BatchNumber: "typed-by-hand"}
	req := saleRequest(item)
	req.HasPrescription = true

	validated, err := v.Validate(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, validated.Items, 1)

	it := validated.Items[0]
	assert.Equal(t, f.rxInvID, it.Inventory.ID)
	require.NotNil(t, it.Batch)
	assert.Equal(t, 3, it.Batch.Quantity)
	assert.Equal(t, "AMX-1", it.Item.BatchDetails.BatchNumber)
}
