// Package seed loads the demo pharmacy catalog and the default operator
// accounts into any store. Ids are stable across restarts so a dev frontend
// can bookmark them.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"apotekin/backend/internal/domain"
	"apotekin/backend/internal/store"
)

var (
	ProductParacetamol   = uuid.MustParse("0b6f3c1e-5a3e-4d6e-9a51-1f0e9d0c0a01")
	ProductAmoxicillin   = uuid.MustParse("0b6f3c1e-5a3e-4d6e-9a51-1f0e9d0c0a02")
	ProductCetirizine    = uuid.MustParse("0b6f3c1e-5a3e-4d6e-9a51-1f0e9d0c0a03")
	ProductOmeprazole    = uuid.MustParse("0b6f3c1e-5a3e-4d6e-9a51-1f0e9d0c0a04")
	ProductVitaminC      = uuid.MustParse("0b6f3c1e-5a3e-4d6e-9a51-1f0e9d0c0a05")
	InventoryParacetamol = uuid.MustParse("7d1c2b44-2f0a-4c55-8c0e-6b3a1e2d0b01")
	InventoryAmoxicillin = uuid.MustParse("7d1c2b44-2f0a-4c55-8c0e-6b3a1e2d0b02")
	InventoryCetirizine  = uuid.MustParse("7d1c2b44-2f0a-4c55-8c0e-6b3a1e2d0b03")
	InventoryOmeprazole  = uuid.MustParse("7d1c2b44-2f0a-4c55-8c0e-6b3a1e2d0b04")
	InventoryVitaminC    = uuid.MustParse("7d1c2b44-2f0a-4c55-8c0e-6b3a1e2d0b05")
	BatchAmoxicillin     = uuid.MustParse("c3a9e7f2-8b61-4f0d-a2c4-5e7d9b1f0c01")
	BatchOmeprazole      = uuid.MustParse("c3a9e7f2-8b61-4f0d-a2c4-5e7d9b1f0c02")
)

type Target interface {
	store.Receiving
	store.UserStore
}

// Load writes the catalog and operator accounts. Stores that already have
// operators are left untouched, so Load is safe to call on every boot.
func Load(ctx context.Context, target Target, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	existing, err := target.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	if err := loadCatalog(ctx, target, time.Now()); err != nil {
		return err
	}
	users, err := Users(logger)
	if err != nil {
		return err
	}
	for _, u := range users {
		if err := target.CreateUser(ctx, u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
	}
	logger.Info("seeded demo catalog", "products", 5, "operators", len(users))
	return nil
}

// Users builds the default operator accounts. Credentials are read from
// SEED_ADMIN_PASSWORD and SEED_PHARMACIST_PASSWORD; unset values fall back
// to dev defaults with a warning.
func Users(logger *slog.Logger) ([]domain.UserAccount, error) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	pharmacistPwd := envOr("SEED_PHARMACIST_PASSWORD", "pharmacist123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_PHARMACIST_PASSWORD") == "" {
		logger.Warn("seeding default dev credentials; set SEED_ADMIN_PASSWORD and SEED_PHARMACIST_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := make([]domain.UserAccount, 0, 2)
	for _, u := range []struct {
		username    string
		displayName string
		password    string
		role        string
	}{
		{"admin", "Store Manager", adminPwd, domain.RoleAdmin},
		{"pharmacist", "Duty Pharmacist", pharmacistPwd, domain.RolePharmacist},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash seed password for %s: %w", u.username, err)
		}
		users = append(users, domain.UserAccount{
			Username:    u.username,
			DisplayName: u.displayName,
			Password:    string(hash),
			Role:        u.role,
			Active:      true,
			CreatedAt:   now,
		})
	}
	return users, nil
}

func loadCatalog(ctx context.Context, target store.Receiving, now time.Time) error {
	today := domain.DateOf(now)
	inMonths := func(m int) *time.Time {
		t := today.AddDate(0, m, 0)
		return &t
	}

	products := []domain.Product{
		{ID: ProductParacetamol, Name: "Paracetamol 500mg", GenericName: "paracetamol", Price: decimal.RequireFromString("4500")},
		{ID: ProductAmoxicillin, Name: "Amoxicillin 500mg", GenericName: "amoxicillin", RequiresPrescription: true, ExpiryDateRequired: true, Price: decimal.RequireFromString("12000")},
		{ID: ProductCetirizine, Name: "Cetirizine 10mg", GenericName: "cetirizine", Price: decimal.RequireFromString("8000")},
		{ID: ProductOmeprazole, Name: "Omeprazole 20mg", GenericName: "omeprazole", RequiresPrescription: true, ExpiryDateRequired: true, Price: decimal.RequireFromString("15000")},
		{ID: ProductVitaminC, Name: "Vitamin C 500mg", GenericName: "ascorbic acid", Price: decimal.RequireFromString("3000")},
	}
	// Cetirizine is the only row that is both low on stock and expiring
	// inside the default 90-day window.
	inventory := []domain.Inventory{
		{ID: InventoryParacetamol, ProductID: ProductParacetamol, Quantity: 120, ReorderLevel: 20, Location: "A1", ExpiryDate: inMonths(18)},
		{ID: InventoryAmoxicillin, ProductID: ProductAmoxicillin, Quantity: 40, ReorderLevel: 10, Location: "RX-1", ExpiryDate: inMonths(9), Batch: "AMX-2401"},
		{ID: InventoryCetirizine, ProductID: ProductCetirizine, Quantity: 8, ReorderLevel: 10, Location: "A2", ExpiryDate: inMonths(2)},
		{ID: InventoryOmeprazole, ProductID: ProductOmeprazole, Quantity: 25, ReorderLevel: 5, Location: "RX-2", ExpiryDate: inMonths(14), Batch: "OMP-2402"},
		{ID: InventoryVitaminC, ProductID: ProductVitaminC, Quantity: 200, ReorderLevel: 30, Location: "B1"},
	}
	batches := []domain.ProductBatch{
		{ID: BatchAmoxicillin, ProductID: ProductAmoxicillin, BatchNumber: "AMX-2401", Quantity: 40, SellingPrice: decimal.RequireFromString("12000"), ExpiryDate: *inMonths(9)},
		{ID: BatchOmeprazole, ProductID: ProductOmeprazole, BatchNumber: "OMP-2402", Quantity: 25, SellingPrice: decimal.RequireFromString("15000"), ExpiryDate: *inMonths(14)},
	}

	for _, p := range products {
		if err := target.CreateProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.Name, err)
		}
	}
	for _, row := range inventory {
		if err := target.CreateInventory(ctx, row); err != nil {
			return fmt.Errorf("seed inventory %s: %w", row.ID, err)
		}
	}
	for _, b := range batches {
		if err := target.CreateBatch(ctx, b); err != nil {
			return fmt.Errorf("seed batch %s: %w", b.BatchNumber, err)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
