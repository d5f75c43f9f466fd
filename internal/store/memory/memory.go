package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/ledger"
	"apotekin/backend/internal/store"
)

// Store keeps every entity in process. A single mutex serializes atomic
// units, so a Tx always sees the latest committed quantities.
type Store struct {
	mu              sync.RWMutex
	products        map[uuid.UUID]domain.Product
	inventory       map[uuid.UUID]domain.Inventory
	batches         map[uuid.UUID]domain.ProductBatch
	customers       map[uuid.UUID]domain.Customer
	customerByPhone map[string]uuid.UUID
	sales           map[uuid.UUID]domain.Sale
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
	now             func() time.Time
}

func New() *Store {
	return &Store{
		products:        make(map[uuid.UUID]domain.Product),
		inventory:       make(map[uuid.UUID]domain.Inventory),
		batches:         make(map[uuid.UUID]domain.ProductBatch),
		customers:       make(map[uuid.UUID]domain.Customer),
		customerByPhone: make(map[string]uuid.UUID),
		sales:           make(map[uuid.UUID]domain.Sale),
		usersByUsername: make(map[string]domain.UserAccount),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:         s,
		inventory: make(map[uuid.UUID]domain.Inventory),
		batches:   make(map[uuid.UUID]domain.ProductBatch),
		inserted:  make(map[uuid.UUID]domain.Sale),
		deleted:   make(map[uuid.UUID]struct{}),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx stages writes and publishes them in commit. The store mutex is held
// for its whole life.
type memTx struct {
	s         *Store
	inventory map[uuid.UUID]domain.Inventory
	batches   map[uuid.UUID]domain.ProductBatch
	inserted  map[uuid.UUID]domain.Sale
	deleted   map[uuid.UUID]struct{}
}

func (t *memTx) InsertSale(ctx context.Context, sale domain.Sale) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(sale.Items) == 0 {
		return &domain.ValidationError{Field: "items", Reason: "empty cart"}
	}
	if _, ok := t.inserted[sale.ID]; ok {
		return store.ErrDuplicate
	}
	if _, ok := t.s.sales[sale.ID]; ok {
		if _, gone := t.deleted[sale.ID]; !gone {
			return store.ErrDuplicate
		}
	}
	t.inserted[sale.ID] = cloneSale(sale)
	return nil
}

func (t *memTx) DeleteSale(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := t.inserted[id]; ok {
		delete(t.inserted, id)
		return nil
	}
	_, exists := t.s.sales[id]
	_, gone := t.deleted[id]
	if !exists || gone {
		return &domain.NotFoundError{Entity: "sale", ID: id.String()}
	}
	t.deleted[id] = struct{}{}
	return nil
}

func (t *memTx) ApplyInventoryDeltas(ctx context.Context, deltas []ledger.Delta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := t.s.now()
	pending := make([]domain.Inventory, 0, len(deltas))
	for _, d := range ledger.Consolidate(deltas) {
		row, ok := t.inventory[d.RowID]
		if !ok {
			row, ok = t.s.inventory[d.RowID]
		}
		if !ok {
			return &domain.NotFoundError{Entity: ledger.EntityInventory, ID: d.RowID.String()}
		}
		next, err := ledger.Apply(ledger.EntityInventory, d.RowID, row.Quantity, d.Qty)
		if err != nil {
			return err
		}
		row.Quantity = next
		row.UpdatedAt = now
		pending = append(pending, row)
	}
	for _, row := range pending {
		t.inventory[row.ID] = row
	}
	return nil
}

func (t *memTx) ApplyBatchDeltas(ctx context.Context, deltas []ledger.Delta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := t.s.now()
	pending := make([]domain.ProductBatch, 0, len(deltas))
	for _, d := range ledger.Consolidate(deltas) {
		row, ok := t.batches[d.RowID]
		if !ok {
			row, ok = t.s.batches[d.RowID]
		}
		if !ok {
			return &domain.NotFoundError{Entity: ledger.EntityBatch, ID: d.RowID.String()}
		}
		next, err := ledger.Apply(ledger.EntityBatch, d.RowID, row.Quantity, d.Qty)
		if err != nil {
			return err
		}
		row.Quantity = next
		row.Status = ledger.BatchStatus(next)
		row.UpdatedAt = now
		pending = append(pending, row)
	}
	for _, row := range pending {
		t.batches[row.ID] = row
	}
	return nil
}

func (t *memTx) commit() {
	for id, row := range t.inventory {
		t.s.inventory[id] = row
	}
	for id, row := range t.batches {
		t.s.batches[id] = row
	}
	for id := range t.deleted {
		delete(t.s.sales, id)
	}
	for id, sale := range t.inserted {
		t.s.sales[id] = sale
	}
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) error {
	if product.ID == uuid.Nil || strings.TrimSpace(product.Name) == "" {
		return &domain.ValidationError{Field: "product", Reason: "id and name are required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; ok {
		return store.ErrDuplicate
	}
	s.products[product.ID] = product
	return nil
}

func (s *Store) CreateInventory(_ context.Context, inventory domain.Inventory) error {
	if inventory.ID == uuid.Nil || inventory.Quantity < 0 {
		return &domain.ValidationError{Field: "inventory", Reason: "id required and quantity must not be negative"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[inventory.ProductID]; !ok {
		return &domain.NotFoundError{Entity: "product", ID: inventory.ProductID.String()}
	}
	if _, ok := s.inventory[inventory.ID]; ok {
		return store.ErrDuplicate
	}
	if inventory.UpdatedAt.IsZero() {
		inventory.UpdatedAt = s.now()
	}
	s.inventory[inventory.ID] = cloneInventory(inventory)
	return nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.ProductBatch) error {
	if batch.ID == uuid.Nil || batch.Quantity < 0 || strings.TrimSpace(batch.BatchNumber) == "" {
		return &domain.ValidationError{Field: "batch", Reason: "id and batch number required and quantity must not be negative"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[batch.ProductID]; !ok {
		return &domain.NotFoundError{Entity: "product", ID: batch.ProductID.String()}
	}
	if _, ok := s.batches[batch.ID]; ok {
		return store.ErrDuplicate
	}
	batch.Status = ledger.BatchStatus(batch.Quantity)
	if batch.UpdatedAt.IsZero() {
		batch.UpdatedAt = s.now()
	}
	s.batches[batch.ID] = batch
	return nil
}

func (s *Store) GetProduct(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "product", ID: id.String()}
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]domain.Product, len(ids))
	for _, id := range ids {
		if product, ok := s.products[id]; ok {
			out[id] = product
		}
	}
	return out, nil
}

func (s *Store) GetInventory(_ context.Context, id uuid.UUID) (*domain.Inventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.inventory[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: ledger.EntityInventory, ID: id.String()}
	}
	row = cloneInventory(row)
	return &row, nil
}

func (s *Store) GetBatch(_ context.Context, id uuid.UUID) (*domain.ProductBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.batches[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: ledger.EntityBatch, ID: id.String()}
	}
	return &batch, nil
}

func (s *Store) ListInventory(_ context.Context, filter domain.InventoryFilter) ([]domain.Inventory, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := domain.DateOf(filter.ExpiringFrom)
	until := domain.DateOf(filter.ExpiringUntil)

	matched := make([]domain.Inventory, 0, len(s.inventory))
	for _, row := range s.inventory {
		if filter.ProductID != nil && row.ProductID != *filter.ProductID {
			continue
		}
		if filter.LowStock && !row.LowStock() {
			continue
		}
		if filter.ExpiringSoon {
			if row.ExpiryDate == nil {
				continue
			}
			expiry := domain.DateOf(*row.ExpiryDate)
			if expiry.Before(from) || expiry.After(until) {
				continue
			}
		}
		matched = append(matched, cloneInventory(row))
	}
	slices.SortFunc(matched, func(a, b domain.Inventory) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return paginate(matched, filter.Offset(), filter.Limit), len(matched), nil
}

func (s *Store) FindCustomerByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.customerByPhone[phone]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "customer", ID: phone}
	}
	customer := s.customers[id]
	return &customer, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customerByPhone[customer.Phone]; ok {
		return store.ErrDuplicate
	}
	if _, ok := s.customers[customer.ID]; ok {
		return store.ErrDuplicate
	}
	s.customers[customer.ID] = customer
	s.customerByPhone[customer.Phone] = customer.ID
	return nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.customers[customer.ID]
	if !ok {
		return &domain.NotFoundError{Entity: "customer", ID: customer.ID.String()}
	}
	existing.Name = customer.Name
	existing.Email = customer.Email
	existing.Address = customer.Address
	existing.UpdatedAt = customer.UpdatedAt
	s.customers[customer.ID] = existing
	return nil
}

func (s *Store) GetCustomersByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uuid.UUID]domain.Customer, len(ids))
	for _, id := range ids {
		if customer, ok := s.customers[id]; ok {
			out[id] = customer
		}
	}
	return out, nil
}

func (s *Store) GetSale(_ context.Context, id uuid.UUID) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, &domain.NotFoundError{Entity: "sale", ID: id.String()}
	}
	sale = cloneSale(sale)
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if !filter.From.IsZero() && sale.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && sale.CreatedAt.After(filter.To) {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if filter.CustomerID != nil && (sale.CustomerID == nil || *sale.CustomerID != *filter.CustomerID) {
			continue
		}
		matched = append(matched, cloneSale(sale))
	}

	desc := filter.SortOrder != domain.SortAsc
	slices.SortFunc(matched, func(a, b domain.Sale) int {
		var c int
		if filter.SortBy == domain.SortByTotalAmount {
			c = a.TotalAmount.Cmp(b.TotalAmount)
		} else {
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = strings.Compare(a.ID.String(), b.ID.String())
		}
		if desc {
			return -c
		}
		return c
	})
	return paginate(matched, filter.Offset(), filter.Limit), len(matched), nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return &domain.ValidationError{Field: "username", Reason: "required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return fmt.Errorf("username %s: %w", username, store.ErrDuplicate)
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return &domain.NotFoundError{Entity: "user", ID: username}
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

// ListAuditLogs returns the newest entries first.
func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]domain.AuditLog, 0, min(limit, len(s.auditLogs)))
	for i := len(s.auditLogs) - 1; i >= 0 && len(logs) < limit; i-- {
		logs = append(logs, s.auditLogs[i])
	}
	return logs, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func cloneInventory(row domain.Inventory) domain.Inventory {
	if row.ExpiryDate != nil {
		expiry := *row.ExpiryDate
		row.ExpiryDate = &expiry
	}
	return row
}

func cloneSale(sale domain.Sale) domain.Sale {
	out := sale
	if sale.CustomerID != nil {
		id := *sale.CustomerID
		out.CustomerID = &id
	}
	if sale.Prescription != nil {
		p := *sale.Prescription
		out.Prescription = &p
	}
	out.Items = make([]domain.SaleItem, len(sale.Items))
	for i, item := range sale.Items {
		if item.BatchDetails != nil {
			snap := *item.BatchDetails
			item.BatchDetails = &snap
		}
		out.Items[i] = item
	}
	return out
}
