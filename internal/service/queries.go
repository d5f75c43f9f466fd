package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"apotekin/backend/internal/domain"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// GetSale returns one sale as a receipt, from cache when possible.
func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (*domain.SaleReceipt, error) {
	if cached, ok, err := s.receipts.Get(ctx, id); err != nil {
		s.logger.Warn("receipt cache read failed", "sale_id", id, "error", err)
	} else if ok {
		return cached, nil
	}

	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	receipts, err := s.resolveReceipts(ctx, []domain.Sale{*sale})
	if err != nil {
		return nil, err
	}
	receipt := receipts[0]
	if err := s.receipts.Set(ctx, receipt); err != nil {
		s.logger.Warn("failed to cache receipt", "sale_id", id, "error", err)
		return &receipt, nil
	}
	// A reversal that committed between the read and the Set above has
	// already evicted, so the entry just written would outlive the sale.
	if _, err := s.repo.GetSale(ctx, id); err != nil {
		if domain.IsNotFound(err) {
			s.evictReceipt(ctx, id)
			return nil, err
		}
		s.logger.Warn("receipt recheck failed", "sale_id", id, "error", err)
	}
	return &receipt, nil
}

// ListSales pages through sales inside a date window that defaults to the
// configured lookback ending now.
func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) (*domain.Page[domain.SaleReceipt], error) {
	now := s.now()
	if filter.To.IsZero() {
		filter.To = now
	}
	if filter.From.IsZero() {
		filter.From = filter.To.AddDate(0, 0, -s.settings.SalesLookbackDays)
	}
	if filter.From.After(filter.To) {
		return nil, &domain.ValidationError{Field: "from", Reason: "must not be after to"}
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Reason: "must be one of completed, returned, cancelled"}
	}
	switch filter.SortBy {
	case "":
		filter.SortBy = domain.SortByCreatedAt
	case domain.SortByCreatedAt, domain.SortByTotalAmount:
	default:
		return nil, &domain.ValidationError{Field: "sortBy", Reason: "must be createdAt or totalAmount"}
	}
	switch filter.SortOrder {
	case "":
		filter.SortOrder = domain.SortDesc
	case domain.SortAsc, domain.SortDesc:
	default:
		return nil, &domain.ValidationError{Field: "sortOrder", Reason: "must be asc or desc"}
	}
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit)

	sales, total, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return nil, err
	}
	receipts, err := s.resolveReceipts(ctx, sales)
	if err != nil {
		return nil, err
	}
	return &domain.Page[domain.SaleReceipt]{
		Data:       receipts,
		Pagination: domain.NewPagination(filter.Page, filter.Limit, total),
	}, nil
}

// ListInventory pages through stock rows. The expiring-soon window runs
// from today through the configured number of days ahead.
func (s *Service) ListInventory(ctx context.Context, filter domain.InventoryFilter) (*domain.Page[domain.Inventory], error) {
	if filter.ExpiringSoon {
		today := domain.DateOf(s.now())
		filter.ExpiringFrom = today
		filter.ExpiringUntil = today.Add(time.Duration(s.settings.ExpiringSoonDays) * 24 * time.Hour)
	}
	filter.Page, filter.Limit = normalizePage(filter.Page, filter.Limit)

	rows, total, err := s.repo.ListInventory(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &domain.Page[domain.Inventory]{
		Data:       rows,
		Pagination: domain.NewPagination(filter.Page, filter.Limit, total),
	}, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}
