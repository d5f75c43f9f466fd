package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/ledger"
	"apotekin/backend/internal/store"
)

// DeleteSale reverses a sale: the stored item snapshot is added back to
// inventory and batches and the sale is removed, all in one atomic unit.
// Live batch or product state is never consulted.
func (s *Service) DeleteSale(ctx context.Context, id uuid.UUID) error {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return err
	}

	inventoryDeltas, batchDeltas := ledger.ReversalDeltas(sale.Items)

	attempts := 0
	for {
		attempts++
		err = s.repo.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.DeleteSale(ctx, sale.ID); err != nil {
				return fmt.Errorf("delete sale: %w", err)
			}
			if err := tx.ApplyInventoryDeltas(ctx, inventoryDeltas); err != nil {
				return fmt.Errorf("restore inventory: %w", err)
			}
			if err := tx.ApplyBatchDeltas(ctx, batchDeltas); err != nil {
				return fmt.Errorf("restore batches: %w", err)
			}
			return nil
		})
		if err == nil || domain.IsClientError(err) || ctx.Err() != nil || attempts >= maxCommitAttempts {
			break
		}
		s.logger.Warn("sale reversal failed, retrying", "sale_id", sale.ID, "attempt", attempts, "error", err)
	}
	if err != nil {
		if domain.IsClientError(err) {
			return err
		}
		return &domain.TransactionError{Op: "delete sale", Attempts: attempts, Err: err}
	}

	s.evictReceipt(ctx, sale.ID)
	snapshot, err := json.Marshal(sale)
	if err != nil {
		snapshot = []byte(fmt.Sprintf("items=%d,total=%s", len(sale.Items), sale.TotalAmount.StringFixed(2)))
	}
	s.logAudit(ctx, "sale_delete", "sale", sale.ID.String(), string(snapshot))
	s.logger.Info("sale reversed", "sale_id", sale.ID, "items", len(sale.Items))

	return nil
}

func (s *Service) evictReceipt(ctx context.Context, id uuid.UUID) {
	if err := s.receipts.Delete(context.WithoutCancel(ctx), id); err != nil {
		s.logger.Warn("failed to evict cached receipt", "sale_id", id, "error", err)
	}
}
