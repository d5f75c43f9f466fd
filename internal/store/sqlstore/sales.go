package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/ledger"
)

const saleColumns = `id, customer_id, total_amount, payment_method, has_prescription, prescription, processed_by, status, created_at`

type saleRow struct {
	ID              uuid.UUID            `db:"id"`
	CustomerID      *uuid.UUID           `db:"customer_id"`
	TotalAmount     decimal.Decimal      `db:"total_amount"`
	PaymentMethod   domain.PaymentMethod `db:"payment_method"`
	HasPrescription bool                 `db:"has_prescription"`
	Prescription    sql.NullString       `db:"prescription"`
	ProcessedBy     string               `db:"processed_by"`
	Status          domain.SaleStatus    `db:"status"`
	CreatedAt       time.Time            `db:"created_at"`
}

type saleItemRow struct {
	SaleID          uuid.UUID       `db:"sale_id"`
	LineNo          int             `db:"line_no"`
	ProductID       uuid.UUID       `db:"product_id"`
	InventoryID     uuid.UUID       `db:"inventory_id"`
	Quantity        int             `db:"quantity"`
	UnitPrice       decimal.Decimal `db:"unit_price"`
	Discount        decimal.Decimal `db:"discount"`
	BatchID         *uuid.UUID      `db:"batch_id"`
	BatchNumber     sql.NullString  `db:"batch_number"`
	BatchExpiryDate sql.NullTime    `db:"batch_expiry_date"`
}

func (r saleRow) toDomain(items []domain.SaleItem) (domain.Sale, error) {
	sale := domain.Sale{
		ID:              r.ID,
		CustomerID:      r.CustomerID,
		Items:           items,
		TotalAmount:     r.TotalAmount,
		PaymentMethod:   r.PaymentMethod,
		HasPrescription: r.HasPrescription,
		ProcessedBy:     r.ProcessedBy,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt.UTC(),
	}
	if r.Prescription.Valid && r.Prescription.String != "" {
		var p domain.Prescription
		if err := json.Unmarshal([]byte(r.Prescription.String), &p); err != nil {
			return domain.Sale{}, fmt.Errorf("decode prescription of sale %s: %w", r.ID, err)
		}
		sale.Prescription = &p
	}
	if sale.Items == nil {
		sale.Items = []domain.SaleItem{}
	}
	return sale, nil
}

func (r saleItemRow) toDomain() domain.SaleItem {
	item := domain.SaleItem{
		ProductID:   r.ProductID,
		InventoryID: r.InventoryID,
		Quantity:    r.Quantity,
		UnitPrice:   r.UnitPrice,
		Discount:    r.Discount,
	}
	if r.BatchID != nil {
		item.BatchDetails = &domain.BatchSnapshot{
			BatchID:     *r.BatchID,
			BatchNumber: r.BatchNumber.String,
		}
		if r.BatchExpiryDate.Valid {
			item.BatchDetails.ExpiryDate = domain.DateOf(r.BatchExpiryDate.Time)
		}
	}
	return item
}

func (s *Store) GetSale(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	var row saleRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+saleColumns+` FROM sales WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "sale", ID: id.String()}
		}
		return nil, err
	}

	items, err := s.loadItems(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	sale, err := row.toDomain(items[id])
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error) {
	where := make([]string, 0, 4)
	args := make([]any, 0, 6)
	if !filter.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, filter.To.UTC())
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.CustomerID != nil {
		where = append(where, "customer_id = ?")
		args = append(args, *filter.CustomerID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM sales`+clause), args...); err != nil {
		return nil, 0, err
	}

	orderBy := "created_at"
	if filter.SortBy == domain.SortByTotalAmount {
		orderBy = s.dialect.moneyOrder("total_amount")
	}
	direction := "DESC"
	if filter.SortOrder == domain.SortAsc {
		direction = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s FROM sales%s ORDER BY %s %s, id %s`, saleColumns, clause, orderBy, direction, direction)
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, max(filter.Offset(), 0))
	}

	var rows []saleRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, 0, err
	}
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	items, err := s.loadItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	sales := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		sale, err := row.toDomain(items[row.ID])
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, sale)
	}
	return sales, total, nil
}

func (s *Store) loadItems(ctx context.Context, saleIDs []uuid.UUID) (map[uuid.UUID][]domain.SaleItem, error) {
	out := make(map[uuid.UUID][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT sale_id, line_no, product_id, inventory_id, quantity, unit_price, discount,
			batch_id, batch_number, batch_expiry_date
		FROM sale_items
		WHERE sale_id IN (?)
		ORDER BY sale_id, line_no
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	var rows []saleItemRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.SaleID] = append(out[row.SaleID], row.toDomain())
	}
	return out, nil
}

// txStore is the store.Tx handed to WithTx callbacks.
type txStore struct {
	tx      *sqlx.Tx
	dialect Dialect
	now     func() time.Time
}

func (t *txStore) InsertSale(ctx context.Context, sale domain.Sale) error {
	if len(sale.Items) == 0 {
		return &domain.ValidationError{Field: "items", Reason: "empty cart"}
	}

	var prescription sql.NullString
	if sale.Prescription != nil {
		raw, err := json.Marshal(sale.Prescription)
		if err != nil {
			return fmt.Errorf("encode prescription: %w", err)
		}
		prescription = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
		INSERT INTO sales (`+saleColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?)
	`), sale.ID, sale.CustomerID, sale.TotalAmount, sale.PaymentMethod, sale.HasPrescription,
		prescription, sale.ProcessedBy, sale.Status, sale.CreatedAt.UTC())
	if err != nil {
		return mapErr(t.dialect, err)
	}

	for i, item := range sale.Items {
		var batchID *uuid.UUID
		var batchNumber sql.NullString
		var batchExpiry sql.NullTime
		if snap := item.BatchDetails; snap != nil {
			id := snap.BatchID
			batchID = &id
			batchNumber = sql.NullString{String: snap.BatchNumber, Valid: true}
			batchExpiry = sql.NullTime{Time: domain.DateOf(snap.ExpiryDate), Valid: !snap.ExpiryDate.IsZero()}
		}
		_, err := t.tx.ExecContext(ctx, t.tx.Rebind(`
			INSERT INTO sale_items (
				sale_id, line_no, product_id, inventory_id, quantity, unit_price, discount,
				batch_id, batch_number, batch_expiry_date
			)
			VALUES (?,?,?,?,?,?,?,?,?,?)
		`), sale.ID, i, item.ProductID, item.InventoryID, item.Quantity, item.UnitPrice, item.Discount,
			batchID, batchNumber, batchExpiry)
		if err != nil {
			return mapErr(t.dialect, err)
		}
	}
	return nil
}

func (t *txStore) DeleteSale(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(`DELETE FROM sales WHERE id = ?`), id)
	if err != nil {
		return mapErr(t.dialect, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &domain.NotFoundError{Entity: "sale", ID: id.String()}
	}
	return nil
}

func (t *txStore) ApplyInventoryDeltas(ctx context.Context, deltas []ledger.Delta) error {
	return t.applyDeltas(ctx, ledger.EntityInventory, "inventory", deltas)
}

func (t *txStore) ApplyBatchDeltas(ctx context.Context, deltas []ledger.Delta) error {
	return t.applyDeltas(ctx, ledger.EntityBatch, "product_batches", deltas)
}

// applyDeltas locks each row in ledger order, re-reads its quantity and
// writes the new value. Any rejected row fails the whole unit.
func (t *txStore) applyDeltas(ctx context.Context, entity, table string, deltas []ledger.Delta) error {
	now := t.now()
	for _, d := range ledger.Consolidate(deltas) {
		var current int
		err := t.tx.GetContext(ctx, &current, t.tx.Rebind(`SELECT quantity FROM `+table+` WHERE id = ?`+t.dialect.forUpdate()), d.RowID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &domain.NotFoundError{Entity: entity, ID: d.RowID.String()}
			}
			return mapErr(t.dialect, err)
		}

		next, err := ledger.Apply(entity, d.RowID, current, d.Qty)
		if err != nil {
			return err
		}

		if entity == ledger.EntityBatch {
			_, err = t.tx.ExecContext(ctx, t.tx.Rebind(`
				UPDATE product_batches SET quantity = ?, status = ?, updated_at = ? WHERE id = ?
			`), next, ledger.BatchStatus(next), now, d.RowID)
		} else {
			_, err = t.tx.ExecContext(ctx, t.tx.Rebind(`
				UPDATE inventory SET quantity = ?, updated_at = ? WHERE id = ?
			`), next, now, d.RowID)
		}
		if err != nil {
			return mapErr(t.dialect, err)
		}
	}
	return nil
}
