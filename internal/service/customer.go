package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/store"
)

const resolveTimeout = 5 * time.Second

// CustomerResolver finds or creates a customer by phone. It writes outside
// the sale's atomic unit, so every path through it is safe to repeat.
type CustomerResolver struct {
	customers store.CustomerStore
	inflight  singleflight.Group
	now       func() time.Time
}

func NewCustomerResolver(customers store.CustomerStore, now func() time.Time) *CustomerResolver {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CustomerResolver{customers: customers, now: now}
}

// Resolve returns nil for a walk-in sale.
func (r *CustomerResolver) Resolve(ctx context.Context, input *domain.CustomerInput) (*domain.Customer, error) {
	if input == nil {
		return nil, nil
	}
	in := domain.CustomerInput{
		Name:    strings.TrimSpace(input.Name),
		Phone:   strings.TrimSpace(input.Phone),
		Email:   strings.TrimSpace(input.Email),
		Address: strings.TrimSpace(input.Address),
	}
	if in.Phone == "" {
		return nil, &domain.ValidationError{Field: "customer.phone", Reason: "missing field"}
	}

	// Identical concurrent requests share one lookup-or-create. The shared
	// call is detached from the cancellation of whichever caller started it.
	key := strings.Join([]string{in.Phone, in.Name, in.Email, in.Address}, "\x00")
	ch := r.inflight.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return r.resolve(sctx, in)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		customer := res.Val.(domain.Customer)
		return &customer, nil
	}
}

func (r *CustomerResolver) resolve(ctx context.Context, in domain.CustomerInput) (domain.Customer, error) {
	for attempt := 0; attempt < 2; attempt++ {
		existing, err := r.customers.FindCustomerByPhone(ctx, in.Phone)
		switch {
		case err == nil:
			return r.refresh(ctx, *existing, in)
		case !errors.Is(err, domain.ErrNotFound):
			return domain.Customer{}, fmt.Errorf("find customer: %w", err)
		}

		now := r.now()
		created := domain.Customer{
			ID:        uuid.New(),
			Name:      in.Name,
			Phone:     in.Phone,
			Email:     in.Email,
			Address:   in.Address,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = r.customers.CreateCustomer(ctx, created)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return domain.Customer{}, fmt.Errorf("create customer: %w", err)
		}
		// Another request created this phone first; read it back and update.
	}
	return domain.Customer{}, fmt.Errorf("resolve customer %s: %w", in.Phone, store.ErrConflict)
}

// refresh applies last-write-wins to the non-empty fields of in.
func (r *CustomerResolver) refresh(ctx context.Context, existing domain.Customer, in domain.CustomerInput) (domain.Customer, error) {
	updated := existing
	if in.Name != "" {
		updated.Name = in.Name
	}
	if in.Email != "" {
		updated.Email = in.Email
	}
	if in.Address != "" {
		updated.Address = in.Address
	}
	if updated == existing {
		return existing, nil
	}
	updated.UpdatedAt = r.now()
	if err := r.customers.UpdateCustomer(ctx, updated); err != nil {
		return domain.Customer{}, fmt.Errorf("update customer: %w", err)
	}
	return updated, nil
}
