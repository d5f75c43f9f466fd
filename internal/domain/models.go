package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentCard   PaymentMethod = "card"
	PaymentMobile PaymentMethod = "mobile"
	PaymentOther  PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobile, PaymentOther:
		return true
	}
	return false
}

type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusReturned  SaleStatus = "returned"
	SaleStatusCancelled SaleStatus = "cancelled"
)

func (s SaleStatus) Valid() bool {
	switch s {
	case SaleStatusCompleted, SaleStatusReturned, SaleStatusCancelled:
		return true
	}
	return false
}

type BatchStatus string

const (
	BatchStatusActive   BatchStatus = "active"
	BatchStatusDepleted BatchStatus = "depleted"
)

const (
	RoleAdmin      = "admin"
	RolePharmacist = "pharmacist"
)

// Product is owned by the catalog; the sale core only reads it.
type Product struct {
	ID                   uuid.UUID       `json:"id" db:"id"`
	Name                 string          `json:"name" db:"name"`
	GenericName          string          `json:"generic_name,omitempty" db:"generic_name"`
	RequiresPrescription bool            `json:"requires_prescription" db:"requires_prescription"`
	ExpiryDateRequired   bool            `json:"expiry_date_required" db:"expiry_date_required"`
	Price                decimal.Decimal `json:"price" db:"price"`
}

// Inventory is one stock row per product, or per product and batch label.
type Inventory struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	ProductID    uuid.UUID  `json:"product_id" db:"product_id"`
	Quantity     int        `json:"quantity" db:"quantity"`
	ReorderLevel int        `json:"reorder_level" db:"reorder_level"`
	Location     string     `json:"location" db:"location"`
	ExpiryDate   *time.Time `json:"expiry_date,omitempty" db:"expiry_date"`
	Batch        string     `json:"batch,omitempty" db:"batch_label"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

func (i Inventory) LowStock() bool {
	return i.Quantity <= i.ReorderLevel
}

// Expired reports whether the row's expiry date lies before the day of today.
func (i Inventory) Expired(today time.Time) bool {
	return i.ExpiryDate != nil && DateOf(*i.ExpiryDate).Before(DateOf(today))
}

type ProductBatch struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	ProductID    uuid.UUID       `json:"product_id" db:"product_id"`
	BatchNumber  string          `json:"batch_number" db:"batch_number"`
	Quantity     int             `json:"quantity" db:"quantity"`
	SellingPrice decimal.Decimal `json:"selling_price" db:"selling_price"`
	ExpiryDate   time.Time       `json:"expiry_date" db:"expiry_date"`
	Status       BatchStatus     `json:"status" db:"status"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

func (b ProductBatch) Expired(today time.Time) bool {
	return !b.ExpiryDate.IsZero() && DateOf(b.ExpiryDate).Before(DateOf(today))
}

type Customer struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Phone     string    `json:"phone" db:"phone"`
	Email     string    `json:"email,omitempty" db:"email"`
	Address   string    `json:"address,omitempty" db:"address"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BatchSnapshot is copied from the batch at sale time and never refreshed.
type BatchSnapshot struct {
	BatchID     uuid.UUID `json:"batch_id"`
	BatchNumber string    `json:"batch_number"`
	ExpiryDate  time.Time `json:"expiry_date"`
}

type SaleItem struct {
	ProductID    uuid.UUID       `json:"product_id"`
	InventoryID  uuid.UUID       `json:"inventory_id"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Discount     decimal.Decimal `json:"discount"`
	BatchDetails *BatchSnapshot  `json:"batch_details,omitempty"`
}

// Total is quantity * (unitPrice - discount).
func (i SaleItem) Total() decimal.Decimal {
	return i.UnitPrice.Sub(i.Discount).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Prescription struct {
	Reference   string `json:"reference,omitempty"`
	DoctorName  string `json:"doctor_name,omitempty"`
	PatientName string `json:"patient_name,omitempty"`
	IssuedOn    string `json:"issued_on,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Sale is immutable once persisted; reversal deletes it.
type Sale struct {
	ID              uuid.UUID       `json:"id"`
	CustomerID      *uuid.UUID      `json:"customer_id,omitempty"`
	Items           []SaleItem      `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	HasPrescription bool            `json:"has_prescription"`
	Prescription    *Prescription   `json:"prescription,omitempty"`
	ProcessedBy     string          `json:"processed_by"`
	Status          SaleStatus      `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (s Sale) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.Total())
	}
	return total
}

type CustomerInput struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type BatchRef struct {
	ID          string `json:"id"`
	BatchNumber string `json:"batch_number,omitempty"`
	ExpiryDate  string `json:"expiry_date,omitempty"`
}

type SaleItemRequest struct {
	ProductID   string           `json:"product_id"`
	InventoryID string           `json:"inventory_id"`
	Quantity    int              `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
	Discount    decimal.Decimal  `json:"discount"`
	Batch       *BatchRef        `json:"batch,omitempty"`
}

type SaleRequest struct {
	Items           []SaleItemRequest `json:"items"`
	Customer        *CustomerInput    `json:"customer,omitempty"`
	TotalAmount     *decimal.Decimal  `json:"total_amount,omitempty"`
	PaymentMethod   PaymentMethod     `json:"payment_method"`
	HasPrescription bool              `json:"has_prescription"`
	Prescription    *Prescription     `json:"prescription,omitempty"`
	ProcessedBy     string            `json:"processed_by,omitempty"`
}

type CustomerSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Phone string    `json:"phone"`
}

type ReceiptItem struct {
	SaleItem
	ProductName string          `json:"product_name"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// SaleReceipt is a Sale with customer, operator and product names resolved.
type SaleReceipt struct {
	ID              uuid.UUID        `json:"id"`
	Customer        *CustomerSummary `json:"customer,omitempty"`
	Items           []ReceiptItem    `json:"items"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	PaymentMethod   PaymentMethod    `json:"payment_method"`
	HasPrescription bool             `json:"has_prescription"`
	Prescription    *Prescription    `json:"prescription,omitempty"`
	ProcessedBy     string           `json:"processed_by"`
	ProcessedByName string           `json:"processed_by_name"`
	Status          SaleStatus       `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
}

const (
	SortByCreatedAt   = "createdAt"
	SortByTotalAmount = "totalAmount"
	SortAsc           = "asc"
	SortDesc          = "desc"
)

type SaleFilter struct {
	From       time.Time
	To         time.Time
	Status     SaleStatus
	CustomerID *uuid.UUID
	Page       int
	Limit      int
	SortBy     string
	SortOrder  string
}

func (f SaleFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type InventoryFilter struct {
	ProductID    *uuid.UUID
	LowStock     bool
	ExpiringSoon bool
	// ExpiringFrom and ExpiringUntil bound the expiring-soon window, both inclusive dates.
	ExpiringFrom  time.Time
	ExpiringUntil time.Time
	Page          int
	Limit         int
}

func (f InventoryFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username    string    `json:"username" db:"username"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Password    string    `json:"-" db:"password_hash"`
	Role        string    `json:"role" db:"role"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type AuditLog struct {
	ID            uuid.UUID `json:"id" db:"id"`
	ActorUsername string    `json:"actor_username" db:"actor_username"`
	ActorRole     string    `json:"actor_role" db:"actor_role"`
	Action        string    `json:"action" db:"action"`
	EntityType    string    `json:"entity_type" db:"entity_type"`
	EntityID      string    `json:"entity_id" db:"entity_id"`
	Detail        string    `json:"detail" db:"detail"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
