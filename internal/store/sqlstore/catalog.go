package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/ledger"
)

const (
	productColumns   = `id, name, generic_name, requires_prescription, expiry_date_required, price`
	inventoryColumns = `id, product_id, quantity, reorder_level, location, expiry_date, batch_label, updated_at`
	batchColumns     = `id, product_id, batch_number, quantity, selling_price, expiry_date, status, updated_at`
)

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) error {
	if product.ID == uuid.Nil || strings.TrimSpace(product.Name) == "" {
		return &domain.ValidationError{Field: "product", Reason: "id and name are required"}
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO products (`+productColumns+`)
		VALUES (?,?,?,?,?,?)
	`), product.ID, product.Name, product.GenericName, product.RequiresPrescription, product.ExpiryDateRequired, product.Price)
	return s.mapErr(err)
}

func (s *Store) CreateInventory(ctx context.Context, inventory domain.Inventory) error {
	if inventory.ID == uuid.Nil || inventory.Quantity < 0 {
		return &domain.ValidationError{Field: "inventory", Reason: "id required and quantity must not be negative"}
	}
	if _, err := s.GetProduct(ctx, inventory.ProductID); err != nil {
		return err
	}
	if inventory.UpdatedAt.IsZero() {
		inventory.UpdatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO inventory (`+inventoryColumns+`)
		VALUES (?,?,?,?,?,?,?,?)
	`), inventory.ID, inventory.ProductID, inventory.Quantity, inventory.ReorderLevel, inventory.Location,
		nullDate(inventory.ExpiryDate), inventory.Batch, inventory.UpdatedAt.UTC())
	return s.mapErr(err)
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.ProductBatch) error {
	if batch.ID == uuid.Nil || batch.Quantity < 0 || strings.TrimSpace(batch.BatchNumber) == "" {
		return &domain.ValidationError{Field: "batch", Reason: "id and batch number required and quantity must not be negative"}
	}
	if _, err := s.GetProduct(ctx, batch.ProductID); err != nil {
		return err
	}
	if batch.UpdatedAt.IsZero() {
		batch.UpdatedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO product_batches (`+batchColumns+`)
		VALUES (?,?,?,?,?,?,?,?)
	`), batch.ID, batch.ProductID, batch.BatchNumber, batch.Quantity, batch.SellingPrice,
		domain.DateOf(batch.ExpiryDate), ledger.BatchStatus(batch.Quantity), batch.UpdatedAt.UTC())
	return s.mapErr(err)
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var product domain.Product
	err := s.db.GetContext(ctx, &product, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "product", ID: id.String()}
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Product, error) {
	out := make(map[uuid.UUID]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+productColumns+` FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var products []domain.Product
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}

func (s *Store) GetInventory(ctx context.Context, id uuid.UUID) (*domain.Inventory, error) {
	var row domain.Inventory
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+inventoryColumns+` FROM inventory WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: ledger.EntityInventory, ID: id.String()}
		}
		return nil, err
	}
	normalizeInventory(&row)
	return &row, nil
}

func (s *Store) GetBatch(ctx context.Context, id uuid.UUID) (*domain.ProductBatch, error) {
	var batch domain.ProductBatch
	err := s.db.GetContext(ctx, &batch, s.db.Rebind(`SELECT `+batchColumns+` FROM product_batches WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: ledger.EntityBatch, ID: id.String()}
		}
		return nil, err
	}
	batch.ExpiryDate = domain.DateOf(batch.ExpiryDate)
	batch.UpdatedAt = batch.UpdatedAt.UTC()
	return &batch, nil
}

func (s *Store) ListInventory(ctx context.Context, filter domain.InventoryFilter) ([]domain.Inventory, int, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.ProductID != nil {
		where = append(where, "product_id = ?")
		args = append(args, *filter.ProductID)
	}
	if filter.LowStock {
		where = append(where, "quantity <= reorder_level")
	}
	if filter.ExpiringSoon {
		where = append(where, "expiry_date IS NOT NULL AND expiry_date >= ? AND expiry_date <= ?")
		args = append(args, domain.DateOf(filter.ExpiringFrom), domain.DateOf(filter.ExpiringUntil))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM inventory`+clause), args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + inventoryColumns + ` FROM inventory` + clause + ` ORDER BY id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset(), 0))
	}
	rows := make([]domain.Inventory, 0, max(filter.Limit, 0))
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, 0, err
	}
	for i := range rows {
		normalizeInventory(&rows[i])
	}
	return rows, total, nil
}

func normalizeInventory(row *domain.Inventory) {
	if row.ExpiryDate != nil {
		expiry := domain.DateOf(*row.ExpiryDate)
		row.ExpiryDate = &expiry
	}
	row.UpdatedAt = row.UpdatedAt.UTC()
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return domain.DateOf(*val)
}
