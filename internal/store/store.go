package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tokoku/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrNoStore           = errors.New("user has no store")
)

// StockError reports a stock-sufficiency violation for a single product. It
// unwraps to ErrInsufficientStock so callers can match with errors.Is.
type StockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient quantity for product %s: available %d, requested %d", e.ProductName, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// Repository is the persistence surface for the whole backend. The sale
// methods are the transactional core: each one applies its sale rows and the
// matching available-quantity adjustments as a single atomic unit, and
// re-validates stock sufficiency inside that unit.
type Repository interface {
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)

	CreateStore(ctx context.Context, profile domain.StoreProfile) (*domain.StoreProfile, error)
	ListStoresByUser(ctx context.Context, userID string) ([]domain.StoreProfile, error)

	ListProducts(ctx context.Context, storeID string) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, storeID string, productID string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, storeID string, productIDs []string) (map[string]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, storeID string, productID string) error

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, storeID string, saleID string) error
	GetSale(ctx context.Context, storeID string, saleID string) (*domain.Sale, error)
	ListSales(ctx context.Context, storeID string) ([]domain.Sale, error)

	ListDebts(ctx context.Context, storeID string) ([]domain.Debt, error)
	CreateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error)
	UpdateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error)
	DeleteDebt(ctx context.Context, storeID string, debtID string) error

	GetSalesRevenue(ctx context.Context, storeID string, from time.Time, to time.Time) (int64, int, error)
	GetInventoryCost(ctx context.Context, storeID string) (int64, error)
	CountLowStockProducts(ctx context.Context, storeID string, threshold int) (int, error)
	GetDebtTotal(ctx context.Context, storeID string) (int64, error)
}
