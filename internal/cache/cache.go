package cache

//go:generate mockgen -source=cache.go -destination=cache_mock.go -package=cache

import (
	"context"

	"github.com/google/uuid"

	"apotekin/backend/internal/domain"
)

// ReceiptCache holds resolved sale receipts. Sales never change after
// commit, so an entry only goes stale when its sale is reversed, and the
// reversal path deletes it.
type ReceiptCache interface {
	Get(ctx context.Context, saleID uuid.UUID) (*domain.SaleReceipt, bool, error)
	Set(ctx context.Context, receipt domain.SaleReceipt) error
	Delete(ctx context.Context, saleID uuid.UUID) error
}

type NoopReceiptCache struct{}

func (NoopReceiptCache) Get(_ context.Context, _ uuid.UUID) (*domain.SaleReceipt, bool, error) {
	return nil, false, nil
}

func (NoopReceiptCache) Set(_ context.Context, _ domain.SaleReceipt) error {
	return nil
}

func (NoopReceiptCache) Delete(_ context.Context, _ uuid.UUID) error {
	return nil
}
