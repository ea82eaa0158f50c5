package domain

import "time"

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

type RegisterRequest struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor identifies the authenticated caller for the duration of a request.
type Actor struct {
	UserID string
	Email  string
}

type StoreProfile struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Description  string    `json:"description,omitempty"`
	Address      string    `json:"address"`
	Country      string    `json:"country"`
	City         string    `json:"city"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Website      string    `json:"website,omitempty"`
	OpeningHours string    `json:"opening_hours,omitempty"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type StoreCreateRequest struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	Description  string `json:"description,omitempty"`
	Address      string `json:"address"`
	Country      string `json:"country"`
	City         string `json:"city"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Website      string `json:"website,omitempty"`
	OpeningHours string `json:"opening_hours,omitempty"`
}

// Product belongs to exactly one store. PriceCents is the cost price,
// SellPriceCents the default selling price. AvailableQuantity is the portion
// of Quantity not committed to an active sale; only the sale operations may
// move it.
type Product struct {
	ID                string    `json:"id"`
	StoreID           string    `json:"store_id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	PriceCents        int64     `json:"price_cents"`
	SellPriceCents    int64     `json:"sell_price_cents"`
	Quantity          int       `json:"quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	Category          string    `json:"category"`
	Image             string    `json:"image,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	PriceCents        int64  `json:"price_cents"`
	SellPriceCents    int64  `json:"sell_price_cents"`
	Quantity          int    `json:"quantity"`
	AvailableQuantity *int   `json:"available_quantity,omitempty"`
	Category          string `json:"category,omitempty"`
	Image             string `json:"image,omitempty"`
}

type ProductUpdateRequest struct {
	Name              string `json:"name"`
	Description       string `json:"description,omitempty"`
	PriceCents        int64  `json:"price_cents"`
	SellPriceCents    int64  `json:"sell_price_cents"`
	Quantity          int    `json:"quantity"`
	AvailableQuantity *int   `json:"available_quantity,omitempty"`
	Category          string `json:"category,omitempty"`
	Image             string `json:"image,omitempty"`
}

// ProductSnapshot is the denormalized product view attached to a sale item.
// It reflects the catalog row at read time; nil when the product has since
// been deleted.
type ProductSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Category   string `json:"category"`
}

// SaleItem is one line of a sale. SellPriceCents is captured at sale time and
// never follows later catalog price changes.
type SaleItem struct {
	ID             string           `json:"id"`
	SaleID         string           `json:"sale_id"`
	ProductID      string           `json:"product_id"`
	Quantity       int              `json:"quantity"`
	SellPriceCents int64            `json:"sell_price_cents"`
	Product        *ProductSnapshot `json:"product,omitempty"`
}

type Sale struct {
	ID          string     `json:"id"`
	StoreID     string     `json:"store_id"`
	ClientName  string     `json:"client_name,omitempty"`
	ClientPhone string     `json:"client_phone,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Items       []SaleItem `json:"items"`
}

type SaleItemRequest struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	SellPriceCents *int64 `json:"sell_price_cents"`
}

type SaleRequest struct {
	ClientName  string            `json:"client_name,omitempty"`
	ClientPhone string            `json:"client_phone,omitempty"`
	Items       []SaleItemRequest `json:"items"`
}

type SaleDeleteResponse struct {
	Deleted bool   `json:"deleted"`
	SaleID  string `json:"sale_id"`
}

type Debt struct {
	ID          string     `json:"id"`
	StoreID     string     `json:"store_id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	AmountCents int64      `json:"amount_cents"`
	Status      string     `json:"status"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type DebtRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status,omitempty"`
	PaidAt      string `json:"paid_at,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type KPIReport struct {
	TotalRevenueCents  int64  `json:"total_revenue_cents"`
	TotalExpensesCents int64  `json:"total_expenses_cents"`
	TotalDebtsCents    int64  `json:"total_debts_cents"`
	LowStockAlerts     int    `json:"low_stock_alerts"`
	Month              string `json:"month"`
}

type SalesChartPoint struct {
	Date          string `json:"date"`
	FullDate      string `json:"full_date"`
	RevenueCents  int64  `json:"revenue_cents"`
	ExpensesCents int64  `json:"expenses_cents"`
	SalesCount    int    `json:"sales_count"`
}

const (
	DebtTypeCustomer = "CUSTOMER"
	DebtTypeSupplier = "SUPPLIER"
)

const (
	DebtStatusPending = "PENDING"
	DebtStatusPaid    = "PAID"
	DebtStatusOverdue = "OVERDUE"
)
