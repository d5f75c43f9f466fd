package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/ledger"
	"apotekin/backend/internal/store"
)

// CreateSale records a sale. It validates the cart, resolves the customer,
// then inserts the sale and deducts inventory and batch stock in a single
// atomic unit. A failed unit leaves no trace and is retried once with fresh
// stock reads unless the failure is the caller's fault.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (*domain.SaleReceipt, error) {
	if actor, ok := ActorFromContext(ctx); ok {
		req.ProcessedBy = actor.Username
	}

	validated, err := s.validator.Validate(ctx, req)
	if err != nil {
		return nil, err
	}

	customer, err := s.customers.Resolve(ctx, req.Customer)
	if err != nil {
		return nil, fmt.Errorf("resolve customer: %w", err)
	}

	sale := domain.Sale{
		ID:              uuid.New(),
		TotalAmount:     validated.TotalAmount,
		PaymentMethod:   validated.PaymentMethod,
		HasPrescription: validated.HasPrescription,
		Prescription:    validated.Prescription,
		ProcessedBy:     validated.ProcessedBy,
		Status:          domain.SaleStatusCompleted,
		CreatedAt:       s.now(),
		Items:           validated.SaleItems(),
	}
	if customer != nil {
		sale.CustomerID = &customer.ID
	}

	attempts := 0
	for {
		attempts++
		err = s.commitSale(ctx, sale)
		if err == nil {
			break
		}
		if attempts > 1 && errors.Is(err, store.ErrDuplicate) {
			// The first attempt committed even though it reported an error.
			if persisted, getErr := s.repo.GetSale(ctx, sale.ID); getErr == nil {
				sale, err = *persisted, nil
				break
			}
		}
		if domain.IsClientError(err) || ctx.Err() != nil || attempts >= maxCommitAttempts {
			break
		}

		s.logger.Warn("sale commit failed, retrying with fresh stock", "sale_id", sale.ID, "attempt", attempts, "error", err)
		fresh, verr := s.validator.Validate(ctx, req)
		if verr != nil {
			return nil, verr
		}
		sale.Items = fresh.SaleItems()
	}
	if err != nil {
		if domain.IsClientError(err) {
			return nil, err
		}
		return nil, &domain.TransactionError{Op: "create sale", Attempts: attempts, Err: err}
	}

	receipt := s.receiptFor(ctx, sale)
	if err := s.receipts.Set(context.WithoutCancel(ctx), receipt); err != nil {
		s.logger.Warn("failed to cache receipt", "sale_id", sale.ID, "error", err)
	}
	s.logAudit(ctx, "sale_create", "sale", sale.ID.String(), fmt.Sprintf(
		"items=%d,total=%s,payment=%s,prescription=%t",
		len(sale.Items), sale.TotalAmount.StringFixed(2), sale.PaymentMethod, sale.HasPrescription,
	))
	s.logger.Info("sale recorded", "sale_id", sale.ID, "items", len(sale.Items), "total", sale.TotalAmount.StringFixed(2), "processed_by", sale.ProcessedBy)

	return &receipt, nil
}

func (s *Service) commitSale(ctx context.Context, sale domain.Sale) error {
	inventoryDeltas, batchDeltas := ledger.SaleDeltas(sale.Items)

	return s.repo.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertSale(ctx, sale); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}
		if err := tx.ApplyInventoryDeltas(ctx, inventoryDeltas); err != nil {
			return fmt.Errorf("apply inventory deltas: %w", err)
		}
		if err := tx.ApplyBatchDeltas(ctx, batchDeltas); err != nil {
			return fmt.Errorf("apply batch deltas: %w", err)
		}
		return nil
	})
}

// receiptFor resolves names for a sale that is already committed. Lookup
// failures degrade to ids rather than failing the caller.
func (s *Service) receiptFor(ctx context.Context, sale domain.Sale) domain.SaleReceipt {
	receipts, err := s.resolveReceipts(ctx, []domain.Sale{sale})
	if err != nil {
		s.logger.Warn("failed to resolve receipt names", "sale_id", sale.ID, "error", err)
		return plainReceipt(sale)
	}
	return receipts[0]
}

func (s *Service) resolveReceipts(ctx context.Context, sales []domain.Sale) ([]domain.SaleReceipt, error) {
	productIDs := make([]uuid.UUID, 0, len(sales))
	customerIDs := make([]uuid.UUID, 0, len(sales))
	seen := map[uuid.UUID]bool{}
	for _, sale := range sales {
		if sale.CustomerID != nil && !seen[*sale.CustomerID] {
			seen[*sale.CustomerID] = true
			customerIDs = append(customerIDs, *sale.CustomerID)
		}
		for _, item := range sale.Items {
			if !seen[item.ProductID] {
				seen[item.ProductID] = true
				productIDs = append(productIDs, item.ProductID)
			}
		}
	}

	products, err := s.repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	customers := map[uuid.UUID]domain.Customer{}
	if len(customerIDs) > 0 {
		customers, err = s.repo.GetCustomersByIDs(ctx, customerIDs)
		if err != nil {
			return nil, fmt.Errorf("load customers: %w", err)
		}
	}
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load operators: %w", err)
	}
	operators := make(map[string]string, len(users))
	for _, u := range users {
		operators[u.Username] = u.DisplayName
	}

	out := make([]domain.SaleReceipt, len(sales))
	for i, sale := range sales {
		receipt := plainReceipt(sale)
		if name := operators[strings.ToLower(sale.ProcessedBy)]; name != "" {
			receipt.ProcessedByName = name
		}
		if sale.CustomerID != nil {
			if c, ok := customers[*sale.CustomerID]; ok {
				receipt.Customer = &domain.CustomerSummary{ID: c.ID, Name: c.Name, Phone: c.Phone}
			}
		}
		for j := range receipt.Items {
			if p, ok := products[receipt.Items[j].ProductID]; ok {
				receipt.Items[j].ProductName = p.Name
			}
		}
		out[i] = receipt
	}
	return out, nil
}

func plainReceipt(sale domain.Sale) domain.SaleReceipt {
	items := make([]domain.ReceiptItem, len(sale.Items))
	for i, item := range sale.Items {
		items[i] = domain.ReceiptItem{SaleItem: item, LineTotal: item.Total()}
	}
	receipt := domain.SaleReceipt{
		ID:              sale.ID,
		Items:           items,
		TotalAmount:     sale.TotalAmount,
		PaymentMethod:   sale.PaymentMethod,
		HasPrescription: sale.HasPrescription,
		Prescription:    sale.Prescription,
		ProcessedBy:     sale.ProcessedBy,
		ProcessedByName: sale.ProcessedBy,
		Status:          sale.Status,
		CreatedAt:       sale.CreatedAt,
	}
	if sale.CustomerID != nil {
		receipt.Customer = &domain.CustomerSummary{ID: *sale.CustomerID}
	}
	return receipt
}
