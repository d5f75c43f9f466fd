package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/ledger"
	"apotekin/backend/internal/store"
)

// ValidatedItem is a request line resolved against live catalog and stock.
type ValidatedItem struct {
	Item      domain.SaleItem
	Product   domain.Product
	Inventory domain.Inventory
	Batch     *domain.ProductBatch
}

type ValidatedSale struct {
	Items           []ValidatedItem
	TotalAmount     decimal.Decimal
	PaymentMethod   domain.PaymentMethod
	HasPrescription bool
	Prescription    *domain.Prescription
	ProcessedBy     string
}

// SaleItems returns the sale lines with their frozen batch snapshots.
func (v ValidatedSale) SaleItems() []domain.SaleItem {
	items := make([]domain.SaleItem, len(v.Items))
	for i, it := range v.Items {
		items[i] = it.Item
	}
	return items
}

// Validator checks a sale request without writing anything. Checks run in a
// fixed order and the first failure wins.
type Validator struct {
	catalog store.CatalogReader
	now     func() time.Time
}

func NewValidator(catalog store.CatalogReader, now func() time.Time) *Validator {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Validator{catalog: catalog, now: now}
}

type parsedItem struct {
	productID   uuid.UUID
	inventoryID uuid.UUID
	batchID     *uuid.UUID
}

func (v *Validator) Validate(ctx context.Context, req domain.SaleRequest) (*ValidatedSale, error) {
	if len(req.Items) == 0 {
		return nil, &domain.ValidationError{Field: "items", Reason: "empty cart"}
	}

	for i, item := range req.Items {
		if err := checkItemFields(i, item); err != nil {
			return nil, err
		}
	}

	parsed := make([]parsedItem, len(req.Items))
	for i, item := range req.Items {
		p, err := parseItemIDs(i, item)
		if err != nil {
			return nil, err
		}
		parsed[i] = p
	}

	total, err := checkRequest(req)
	if err != nil {
		return nil, err
	}

	today := domain.DateOf(v.now())
	products := map[uuid.UUID]*domain.Product{}
	rows := map[uuid.UUID]*domain.Inventory{}
	batches := map[uuid.UUID]*domain.ProductBatch{}

	items := make([]ValidatedItem, len(req.Items))
	for i, item := range req.Items {
		p := parsed[i]
		field := fmt.Sprintf("items[%d]", i)

		row, ok := rows[p.inventoryID]
		if !ok {
			row, err = v.catalog.GetInventory(ctx, p.inventoryID)
			if err != nil {
				return nil, err
			}
			rows[p.inventoryID] = row
		}
		product, ok := products[p.productID]
		if !ok {
			product, err = v.catalog.GetProduct(ctx, p.productID)
			if err != nil {
				return nil, err
			}
			products[p.productID] = product
		}
		if row.ProductID != product.ID {
			return nil, &domain.ValidationError{Field: field + ".inventory_id", Reason: "inventory row belongs to another product"}
		}
		if row.Expired(today) {
			return nil, &domain.ValidationError{Field: field + ".inventory_id", Reason: "expired stock"}
		}

		items[i] = ValidatedItem{
			Item: domain.SaleItem{
				ProductID:   p.productID,
				InventoryID: p.inventoryID,
				Quantity:    item.Quantity,
				UnitPrice:   *item.UnitPrice,
				Discount:    item.Discount,
			},
			Product:   *product,
			Inventory: *row,
		}
	}

	for i, p := range parsed {
		if p.batchID == nil {
			continue
		}
		field := fmt.Sprintf("items[%d].batch", i)
		batch, ok := batches[*p.batchID]
		if !ok {
			batch, err = v.catalog.GetBatch(ctx, *p.batchID)
			if err != nil {
				return nil, err
			}
			batches[*p.batchID] = batch
		}
		if batch.ProductID != p.productID {
			return nil, &domain.ValidationError{Field: field, Reason: "batch belongs to another product"}
		}
		if batch.Expired(today) {
			return nil, &domain.ValidationError{Field: field, Reason: "expired stock"}
		}
		items[i].Batch = batch
		items[i].Item.BatchDetails = &domain.BatchSnapshot{
			BatchID:     batch.ID,
			BatchNumber: batch.BatchNumber,
			ExpiryDate:  batch.ExpiryDate,
		}
	}

	if err := checkStock(items); err != nil {
		return nil, err
	}

	if !req.HasPrescription {
		for _, it := range items {
			if it.Product.RequiresPrescription {
				return nil, &domain.PrescriptionRequiredError{
					ProductID:   it.Product.ID.String(),
					ProductName: it.Product.Name,
				}
			}
		}
	}

	return &ValidatedSale{
		Items:           items,
		TotalAmount:     total,
		PaymentMethod:   req.PaymentMethod,
		HasPrescription: req.HasPrescription,
		Prescription:    req.Prescription,
		ProcessedBy:     strings.TrimSpace(req.ProcessedBy),
	}, nil
}

func checkItemFields(i int, item domain.SaleItemRequest) error {
	field := fmt.Sprintf("items[%d]", i)
	switch {
	case strings.TrimSpace(item.ProductID) == "":
		return &domain.ValidationError{Field: field + ".product_id", Reason: "missing field"}
	case strings.TrimSpace(item.InventoryID) == "":
		return &domain.ValidationError{Field: field + ".inventory_id", Reason: "missing field"}
	case item.Quantity <= 0:
		return &domain.ValidationError{Field: field + ".quantity", Reason: "missing field"}
	case item.UnitPrice == nil:
		return &domain.ValidationError{Field: field + ".unit_price", Reason: "missing field"}
	case item.Batch != nil && strings.TrimSpace(item.Batch.ID) == "":
		return &domain.ValidationError{Field: field + ".batch.id", Reason: "missing field"}
	case item.UnitPrice.IsNegative():
		return &domain.ValidationError{Field: field + ".unit_price", Reason: "must not be negative"}
	case item.Discount.IsNegative() || item.Discount.GreaterThan(*item.UnitPrice):
		return &domain.ValidationError{Field: field + ".discount", Reason: "must be between 0 and unit price"}
	}
	return nil
}

func parseItemIDs(i int, item domain.SaleItemRequest) (parsedItem, error) {
	field := fmt.Sprintf("items[%d]", i)
	var p parsedItem
	var err error
	if p.productID, err = uuid.Parse(strings.TrimSpace(item.ProductID)); err != nil {
		return p, &domain.ValidationError{Field: field + ".product_id", Reason: "malformed id"}
	}
	if p.inventoryID, err = uuid.Parse(strings.TrimSpace(item.InventoryID)); err != nil {
		return p, &domain.ValidationError{Field: field + ".inventory_id", Reason: "malformed id"}
	}
	if item.Batch != nil {
		batchID, err := uuid.Parse(strings.TrimSpace(item.Batch.ID))
		if err != nil {
			return p, &domain.ValidationError{Field: field + ".batch.id", Reason: "malformed id"}
		}
		p.batchID = &batchID
	}
	return p, nil
}

// checkRequest validates the request-level fields and returns the sale total.
func checkRequest(req domain.SaleRequest) (decimal.Decimal, error) {
	if !req.PaymentMethod.Valid() {
		return decimal.Zero, &domain.ValidationError{Field: "payment_method", Reason: "must be one of cash, card, mobile, other"}
	}
	if strings.TrimSpace(req.ProcessedBy) == "" {
		return decimal.Zero, &domain.ValidationError{Field: "processed_by", Reason: "missing field"}
	}
	if req.Customer != nil && strings.TrimSpace(req.Customer.Phone) == "" {
		return decimal.Zero, &domain.ValidationError{Field: "customer.phone", Reason: "missing field"}
	}

	total := decimal.Zero
	for _, item := range req.Items {
		line := item.UnitPrice.Sub(item.Discount).Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(line)
	}
	if req.TotalAmount != nil && !req.TotalAmount.Equal(total) {
		return decimal.Zero, &domain.ValidationError{
			Field:  "total_amount",
			Reason: fmt.Sprintf("does not match item total %s", total.StringFixed(2)),
		}
	}
	return total, nil
}

// checkStock sums quantities per row so several lines on one row cannot
// oversell it. Batch lines are checked against the batch and the inventory row.
func checkStock(items []ValidatedItem) error {
	perRow := map[uuid.UUID]int{}
	perBatch := map[uuid.UUID]int{}
	for _, it := range items {
		perRow[it.Inventory.ID] += it.Item.Quantity
		if it.Batch != nil {
			perBatch[it.Batch.ID] += it.Item.Quantity
		}
	}

	for _, it := range items {
		if it.Batch != nil {
			if want := perBatch[it.Batch.ID]; it.Batch.Quantity < want {
				return &domain.InsufficientStockError{
					Entity:    ledger.EntityBatch,
					ID:        it.Batch.ID.String(),
					Available: it.Batch.Quantity,
					Requested: want,
				}
			}
		}
		if want := perRow[it.Inventory.ID]; it.Inventory.Quantity < want {
			return &domain.InsufficientStockError{
				Entity:    ledger.EntityInventory,
				ID:        it.Inventory.ID.String(),
				Available: it.Inventory.Quantity,
				Requested: want,
			}
		}
	}
	return nil
}
