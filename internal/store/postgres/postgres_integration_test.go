package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"tokoku/internal/domain"
	"tokoku/internal/store"
)

// TestSaleRebalanceAgainstPostgres exercises the transactional sale path
// against a real database. Set TOKOKU_TEST_DATABASE_URL to run it; the schema
// must already exist.
func TestSaleRebalanceAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("TOKOKU_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TOKOKU_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	user, err := s.CreateUser(ctx, domain.UserAccount{
		Name:         "Integration Owner",
		Email:        "it-owner-" + time.Now().UTC().Format("20060102150405.000") + "@example.com",
		PasswordHash: "not-a-real-hash",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(context.Background(), `DELETE FROM app_users WHERE id = $1`, user.ID)
	})

	profile, err := s.CreateStore(ctx, domain.StoreProfile{
		Name:     "Integration Store",
		Category: "General",
		Address:  "Jl. Integrasi 1",
		Country:  "Indonesia",
		City:     "Bandung",
		UserID:   user.ID,
	})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(context.Background(), `DELETE FROM sale_items WHERE sale_id IN (SELECT id FROM sales WHERE store_id = $1)`, profile.ID)
		_, _ = s.db.ExecContext(context.Background(), `DELETE FROM sales WHERE store_id = $1`, profile.ID)
		_, _ = s.db.ExecContext(context.Background(), `DELETE FROM products WHERE store_id = $1`, profile.ID)
		_, _ = s.db.ExecContext(context.Background(), `DELETE FROM stores WHERE id = $1`, profile.ID)
	})

	product, err := s.CreateProduct(ctx, domain.Product{
		StoreID:           profile.ID,
		Name:              "Integration Item",
		PriceCents:        50000,
		SellPriceCents:    80000,
		Quantity:          10,
		AvailableQuantity: 10,
		Category:          "Test",
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	sale, err := s.CreateSale(ctx, domain.Sale{
		StoreID: profile.ID,
		Items: []domain.SaleItem{
			{ProductID: product.ID, Quantity: 2, SellPriceCents: 90000},
		},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	assertAvailability(t, s, ctx, profile.ID, product.ID, 8)

	if _, err := s.UpdateSale(ctx, domain.Sale{
		ID:      sale.ID,
		StoreID: profile.ID,
		Items: []domain.SaleItem{
			{ProductID: product.ID, Quantity: 5, SellPriceCents: 90000},
		},
	}); err != nil {
		t.Fatalf("update sale: %v", err)
	}
	assertAvailability(t, s, ctx, profile.ID, product.ID, 5)

	_, err = s.UpdateSale(ctx, domain.Sale{
		ID:      sale.ID,
		StoreID: profile.ID,
		Items: []domain.SaleItem{
			{ProductID: product.ID, Quantity: 11, SellPriceCents: 90000},
		},
	})
	var stockErr *store.StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected *store.StockError, got %v", err)
	}
	if stockErr.Available != 10 || stockErr.Requested != 11 {
		t.Fatalf("availability must include the restored quantity, got %+v", stockErr)
	}
	assertAvailability(t, s, ctx, profile.ID, product.ID, 5)

	if err := s.DeleteSale(ctx, profile.ID, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	assertAvailability(t, s, ctx, profile.ID, product.ID, 10)
}

func assertAvailability(t *testing.T, s *Store, ctx context.Context, storeID string, productID string, want int) {
	t.Helper()

	p, err := s.GetProduct(ctx, storeID, productID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.AvailableQuantity != want {
		t.Fatalf("expected availability %d, got %d", want, p.AvailableQuantity)
	}
}
