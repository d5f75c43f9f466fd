package ledger_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/ledger"
)

func TestConsolidate(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	c := uuid.MustParse("00000000-0000-0000-0000-00000000000c")

	tests := []struct {
		name string
		in   []ledger.Delta
		want []ledger.Delta
	}{
		{name: "empty", in: nil, want: nil},
		{
			name: "merges same row",
			in:   []ledger.Delta{{RowID: b, Qty: -2}, {RowID: b, Qty: -3}},
			want: []ledger.Delta{{RowID: b, Qty: -5}},
		},
		{
			name: "orders by row id",
			in:   []ledger.Delta{{RowID: c, Qty: 1}, {RowID: a, Qty: 2}, {RowID: b, Qty: 3}},
			want: []ledger.Delta{{RowID: a, Qty: 2}, {RowID: b, Qty: 3}, {RowID: c, Qty: 1}},
		},
		{
			name: "drops rows netting to zero",
			in:   []ledger.Delta{{RowID: a, Qty: 4}, {RowID: a, Qty: -4}, {RowID: c, Qty: -1}},
			want: []ledger.Delta{{RowID: c, Qty: -1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ledger.Consolidate(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConsolidate_RandomIDsAreSorted(t *testing.T) {
	in := make([]ledger.Delta, 0, 20)
	for n := 0; n < 20; n++ {
		in = append(in, ledger.Delta{RowID: uuid.New(), Qty: -1})
	}

	got := ledger.Consolidate(in)

	require.Len(t, got, 20)
	for i := 1; i < len(got); i++ {
		assert.Negative(t, bytes.Compare(got[i-1].RowID[:], got[i].RowID[:]))
	}
}

func TestApply(t *testing.T) {
	id := uuid.New()

	next, err := ledger.Apply(ledger.EntityInventory, id, 10, -3)
	require.NoError(t, err)
	assert.Equal(t, 7, next)

	next, err = ledger.Apply(ledger.EntityInventory, id, 5, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, next)

	next, err = ledger.Apply(ledger.EntityBatch, id, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, next)

	_, err = ledger.Apply(ledger.EntityBatch, id, 2, -3)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, ledger.EntityBatch, stockErr.Entity)
	assert.Equal(t, id.String(), stockErr.ID)
}

func TestBatchStatus(t *testing.T) {
	assert.Equal(t, domain.BatchStatusDepleted, ledger.BatchStatus(0))
	assert.Equal(t, domain.BatchStatusActive, ledger.BatchStatus(1))
	assert.Equal(t, domain.BatchStatusActive, ledger.BatchStatus(250))
}

func TestSaleAndReversalDeltasAreInverse(t *testing.T) {
	invA, invB := uuid.New(), uuid.New()
	batch := uuid.New()
	items := []domain.SaleItem{
		{InventoryID: invA, Quantity: 3, UnitPrice: decimal.NewFromInt(10)},
		{
			InventoryID: invB,
			Quantity:    2,
			UnitPrice:   decimal.NewFromInt(5),
			BatchDetails: &domain.BatchSnapshot{
				BatchID:     batch,
				BatchNumber: "B-01",
				ExpiryDate:  time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		{InventoryID: invA, Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
	}

	saleInv, saleBatches := ledger.SaleDeltas(items)
	revInv, revBatches := ledger.ReversalDeltas(items)

	require.Len(t, saleInv, 2)
	require.Len(t, saleBatches, 1)
	assert.Equal(t, ledger.Delta{RowID: batch, Qty: -2}, saleBatches[0])

	byRow := map[uuid.UUID]int{}
	for _, d := range saleInv {
		byRow[d.RowID] = d.Qty
	}
	assert.Equal(t, -4, byRow[invA])
	assert.Equal(t, -2, byRow[invB])

	for i := range saleInv {
		assert.Equal(t, saleInv[i].RowID, revInv[i].RowID)
		assert.Equal(t, -saleInv[i].Qty, revInv[i].Qty)
	}
	assert.Equal(t, ledger.Delta{RowID: batch, Qty: 2}, revBatches[0])
}
