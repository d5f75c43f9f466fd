package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/ledger"
)

var (
	// ErrConflict is a retryable storage conflict: serialization failure,
	// deadlock or a busy database. The unit that hit it was rolled back.
	ErrConflict = errors.New("storage conflict")
	// ErrDuplicate is a unique key violation.
	ErrDuplicate = errors.New("duplicate key")
)

// Tx is the atomic unit used by the sale coordinator and the reversal
// processor. Everything done through a Tx becomes visible together on
// commit or not at all.
type Tx interface {
	InsertSale(ctx context.Context, sale domain.Sale) error
	// DeleteSale fails with a domain NotFoundError when the sale is gone,
	// which makes concurrent reversals of one sale mutually exclusive.
	DeleteSale(ctx context.Context, id uuid.UUID) error
	// ApplyInventoryDeltas re-reads each row inside the unit and rejects the
	// whole set when any quantity would go negative.
	ApplyInventoryDeltas(ctx context.Context, deltas []ledger.Delta) error
	// ApplyBatchDeltas does the same for batches and recomputes status.
	ApplyBatchDeltas(ctx context.Context, deltas []ledger.Delta) error
}

type CatalogReader interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Product, error)
	GetInventory(ctx context.Context, id uuid.UUID) (*domain.Inventory, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.ProductBatch, error)
	ListInventory(ctx context.Context, filter domain.InventoryFilter) ([]domain.Inventory, int, error)
}

// Receiving is the inventory receiving surface. Only seeding and tests use
// it from inside this module.
type Receiving interface {
	CreateProduct(ctx context.Context, product domain.Product) error
	CreateInventory(ctx context.Context, inventory domain.Inventory) error
	CreateBatch(ctx context.Context, batch domain.ProductBatch) error
}

type CustomerStore interface {
	FindCustomerByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	// CreateCustomer returns ErrDuplicate when the phone is already taken.
	CreateCustomer(ctx context.Context, customer domain.Customer) error
	UpdateCustomer(ctx context.Context, customer domain.Customer) error
	GetCustomersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Customer, error)
}

type SaleReader interface {
	GetSale(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)
}

type Repository interface {
	CatalogReader
	Receiving
	CustomerStore
	SaleReader
	UserStore
	AuditStore

	// WithTx runs fn in one atomic unit. The unit commits when fn returns
	// nil and rolls back otherwise, including when ctx is done before commit.
	// fn must only use the Tx it is given.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
