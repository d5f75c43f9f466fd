package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"apotekin/backend/internal/domain"
)

const customerColumns = `id, name, phone, email, address, created_at, updated_at`

func (s *Store) FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	var customer domain.Customer
	err := s.db.GetContext(ctx, &customer, s.db.Rebind(`SELECT `+customerColumns+` FROM customers WHERE phone = ?`), phone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.NotFoundError{Entity: "customer", ID: phone}
		}
		return nil, err
	}
	customer.CreatedAt = customer.CreatedAt.UTC()
	customer.UpdatedAt = customer.UpdatedAt.UTC()
	return &customer, nil
}

// CreateCustomer relies on the unique phone index; a concurrent insert of
// the same phone surfaces as store.ErrDuplicate.
func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO customers (`+customerColumns+`)
		VALUES (?,?,?,?,?,?,?)
	`), customer.ID, customer.Name, customer.Phone, customer.Email, customer.Address,
		customer.CreatedAt.UTC(), customer.UpdatedAt.UTC())
	return s.mapErr(err)
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE customers
		SET name = ?, email = ?, address = ?, updated_at = ?
		WHERE id = ?
	`), customer.Name, customer.Email, customer.Address, customer.UpdatedAt.UTC(), customer.ID)
	if err != nil {
		return s.mapErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &domain.NotFoundError{Entity: "customer", ID: customer.ID.String()}
	}
	return nil
}

func (s *Store) GetCustomersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Customer, error) {
	out := make(map[uuid.UUID]domain.Customer, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`SELECT `+customerColumns+` FROM customers WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	var customers []domain.Customer
	if err := s.db.SelectContext(ctx, &customers, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, c := range customers {
		out[c.ID] = c
	}
	return out, nil
}
