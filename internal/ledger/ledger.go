// Package ledger holds the stock ledger primitives shared by every store:
// signed per-row deltas, their consolidation into lock order, the
// non-negative quantity rule and batch status derivation.
package ledger

import (
	"bytes"
	"slices"

	"github.com/google/uuid"

	"apotekin/backend/internal/domain"
)

const (
	EntityInventory = "inventory"
	EntityBatch     = "batch"
)

// Delta is a signed quantity change against one stock row.
type Delta struct {
	RowID uuid.UUID
	Qty   int
}

// Consolidate merges deltas for the same row, drops rows whose sum is zero
// and orders the result by row id. Stores apply deltas in this order so that
// concurrent units always lock rows in the same sequence.
func Consolidate(deltas []Delta) []Delta {
	if len(deltas) == 0 {
		return nil
	}
	sums := make(map[uuid.UUID]int, len(deltas))
	for _, d := range deltas {
		sums[d.RowID] += d.Qty
	}
	out := make([]Delta, 0, len(sums))
	for id, qty := range sums {
		if qty == 0 {
			continue
		}
		out = append(out, Delta{RowID: id, Qty: qty})
	}
	slices.SortFunc(out, func(a, b Delta) int {
		return bytes.Compare(a.RowID[:], b.RowID[:])
	})
	return out
}

// RowIDs returns the row ids of deltas in their current order.
func RowIDs(deltas []Delta) []uuid.UUID {
	ids := make([]uuid.UUID, len(deltas))
	for i, d := range deltas {
		ids[i] = d.RowID
	}
	return ids
}

// Apply returns current+delta, or an InsufficientStockError carrying the
// current quantity when the result would be negative.
func Apply(entity string, id uuid.UUID, current, delta int) (int, error) {
	next := current + delta
	if next < 0 {
		return current, &domain.InsufficientStockError{
			Entity:    entity,
			ID:        id.String(),
			Available: current,
			Requested: -delta,
		}
	}
	return next, nil
}

// BatchStatus derives the status of a batch from its quantity.
func BatchStatus(qty int) domain.BatchStatus {
	if qty == 0 {
		return domain.BatchStatusDepleted
	}
	return domain.BatchStatusActive
}

// SaleDeltas returns the deductions that record items: one negative
// inventory delta per item and one negative batch delta per item that
// carries a batch snapshot.
func SaleDeltas(items []domain.SaleItem) (inventory, batches []Delta) {
	return itemDeltas(items, -1)
}

// ReversalDeltas is the exact inverse of SaleDeltas. It reads only the
// stored snapshot, never live batch or product state.
func ReversalDeltas(items []domain.SaleItem) (inventory, batches []Delta) {
	return itemDeltas(items, 1)
}

func itemDeltas(items []domain.SaleItem, sign int) (inventory, batches []Delta) {
	inventory = make([]Delta, 0, len(items))
	for _, item := range items {
		inventory = append(inventory, Delta{RowID: item.InventoryID, Qty: sign * item.Quantity})
		if item.BatchDetails != nil {
			batches = append(batches, Delta{RowID: item.BatchDetails.BatchID, Qty: sign * item.Quantity})
		}
	}
	return Consolidate(inventory), Consolidate(batches)
}
