package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokoku/internal/domain"
	"tokoku/internal/store"
	"tokoku/internal/xid"
)

// Store is an in-memory Repository used for dev mode and tests. The sale
// methods hold the write lock for their whole body and validate every product
// before mutating any of them, so a failed sale leaves no partial state,
// matching the postgres transaction semantics.
type Store struct {
	mu       sync.RWMutex
	users    map[string]domain.UserAccount
	byEmail  map[string]string
	stores   map[string]domain.StoreProfile
	products map[string]domain.Product
	sales    map[string]domain.Sale
	debts    map[string]domain.Debt
}

func New() *Store {
	return &Store{
		users:    make(map[string]domain.UserAccount),
		byEmail:  make(map[string]string),
		stores:   make(map[string]domain.StoreProfile),
		products: make(map[string]domain.Product),
		sales:    make(map[string]domain.Sale),
		debts:    make(map[string]domain.Debt),
	}
}

// NewSeeded returns a store preloaded with a demo owner, one store and a small
// catalog so the API is usable without postgres.
func NewSeeded() *Store {
	s := New()
	ctx := context.Background()

	password := os.Getenv("SEED_OWNER_PASSWORD")
	if password == "" {
		password = "owner-dev-password"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[memory] seed password hash failed: %v", err)
		return s
	}

	owner, err := s.CreateUser(ctx, domain.UserAccount{
		Name:         "Demo Owner",
		Email:        "owner@tokoku.local",
		PasswordHash: string(hash),
	})
	if err != nil {
		log.Printf("[memory] seed user failed: %v", err)
		return s
	}

	profile, err := s.CreateStore(ctx, domain.StoreProfile{
		Name:     "Toko Demo",
		Category: "General",
		Address:  "Jl. Melati 1",
		Country:  "Indonesia",
		City:     "Bandung",
		UserID:   owner.ID,
	})
	if err != nil {
		log.Printf("[memory] seed store failed: %v", err)
		return s
	}

	seedProducts := []domain.Product{
		{Name: "Kopi Susu Botol", PriceCents: 90000, SellPriceCents: 150000, Quantity: 40, AvailableQuantity: 40, Category: "Beverage"},
		{Name: "Roti Bakar Pack", PriceCents: 60000, SellPriceCents: 110000, Quantity: 25, AvailableQuantity: 25, Category: "Food"},
		{Name: "Gula Aren 1kg", PriceCents: 180000, SellPriceCents: 250000, Quantity: 8, AvailableQuantity: 8, Category: "Pantry"},
	}
	for _, p := range seedProducts {
		p.StoreID = profile.ID
		if _, err := s.CreateProduct(ctx, p); err != nil {
			log.Printf("[memory] seed product failed: %v", err)
		}
	}

	return s
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[user.Email]; exists {
		return nil, store.ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.users[user.ID] = user
	s.byEmail[user.Email] = user.ID

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *Store) CreateStore(_ context.Context, profile domain.StoreProfile) (*domain.StoreProfile, error) {
	if profile.UserID == "" || profile.Name == "" {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if profile.ID == "" {
		profile.ID = xid.New("store")
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}
	s.stores[profile.ID] = profile

	created := profile
	return &created, nil
}

func (s *Store) ListStoresByUser(_ context.Context, userID string) ([]domain.StoreProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StoreProfile, 0, 2)
	for _, profile := range s.stores {
		if profile.UserID == userID {
			result = append(result, profile)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) ListProducts(_ context.Context, storeID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.StoreID == storeID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.StoreID == "" || product.Name == "" || product.PriceCents < 1 || product.SellPriceCents < 1 {
		return nil, store.ErrInvalidSale
	}
	if product.Quantity < 0 || product.AvailableQuantity < 0 || product.AvailableQuantity > product.Quantity {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) GetProduct(_ context.Context, storeID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok || p.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, storeID string, productIDs []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok && p.StoreID == storeID {
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.StoreID == "" || product.ID == "" || product.Name == "" || product.PriceCents < 1 || product.SellPriceCents < 1 {
		return nil, store.ErrInvalidSale
	}
	if product.Quantity < 0 || product.AvailableQuantity < 0 || product.AvailableQuantity > product.Quantity {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok || existing.StoreID != product.StoreID {
		return nil, store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, storeID string, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok || p.StoreID != storeID {
		return store.ErrNotFound
	}
	delete(s.products, productID)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.StoreID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	requested := requestedQuantities(sale.Items)

	// Validate everything before touching any product.
	for productID, qty := range requested {
		p, ok := s.products[productID]
		if !ok || p.StoreID != sale.StoreID {
			return nil, store.ErrInvalidSale
		}
		if p.AvailableQuantity < qty {
			return nil, &store.StockError{ProductID: productID, ProductName: p.Name, Available: p.AvailableQuantity, Requested: qty}
		}
	}

	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.UpdatedAt = now

	for productID, qty := range requested {
		p := s.products[productID]
		p.AvailableQuantity -= qty
		p.UpdatedAt = now
		s.products[productID] = p
	}

	items := make([]domain.SaleItem, len(sale.Items))
	for i, item := range sale.Items {
		if item.ID == "" {
			item.ID = xid.New("sitem")
		}
		item.SaleID = sale.ID
		item.Product = nil
		items[i] = item
	}
	sale.Items = items
	s.sales[sale.ID] = cloneSale(sale)

	return s.getSaleLocked(sale.StoreID, sale.ID)
}

func (s *Store) UpdateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.StoreID == "" || sale.ID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sales[sale.ID]
	if !ok || existing.StoreID != sale.StoreID {
		return nil, store.ErrNotFound
	}

	oldQuantities := requestedQuantities(existing.Items)
	requested := requestedQuantities(sale.Items)

	// Sufficiency is judged against post-restoration availability: the old
	// items' quantities come back before the new set is applied.
	for productID, qty := range requested {
		p, ok := s.products[productID]
		if !ok || p.StoreID != sale.StoreID {
			return nil, store.ErrInvalidSale
		}
		available := p.AvailableQuantity + oldQuantities[productID]
		if available < qty {
			return nil, &store.StockError{ProductID: productID, ProductName: p.Name, Available: available, Requested: qty}
		}
	}

	now := time.Now().UTC()
	for productID, qty := range oldQuantities {
		if p, ok := s.products[productID]; ok {
			p.AvailableQuantity += qty
			p.UpdatedAt = now
			s.products[productID] = p
		}
	}
	for productID, qty := range requested {
		p := s.products[productID]
		p.AvailableQuantity -= qty
		p.UpdatedAt = now
		s.products[productID] = p
	}

	items := make([]domain.SaleItem, len(sale.Items))
	for i, item := range sale.Items {
		if item.ID == "" {
			item.ID = xid.New("sitem")
		}
		item.SaleID = sale.ID
		item.Product = nil
		items[i] = item
	}

	updated := existing
	updated.ClientName = sale.ClientName
	updated.ClientPhone = sale.ClientPhone
	updated.UpdatedAt = now
	updated.Items = items
	s.sales[sale.ID] = cloneSale(updated)

	return s.getSaleLocked(sale.StoreID, sale.ID)
}

func (s *Store) DeleteSale(_ context.Context, storeID string, saleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.sales[saleID]
	if !ok || existing.StoreID != storeID {
		return store.ErrNotFound
	}

	now := time.Now().UTC()
	for productID, qty := range requestedQuantities(existing.Items) {
		if p, ok := s.products[productID]; ok {
			p.AvailableQuantity += qty
			p.UpdatedAt = now
			s.products[productID] = p
		}
	}
	delete(s.sales, saleID)
	return nil
}

func (s *Store) GetSale(_ context.Context, storeID string, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSaleLocked(storeID, saleID)
}

func (s *Store) ListSales(_ context.Context, storeID string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if sale.StoreID == storeID {
			result = append(result, s.withSnapshots(sale))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) ListDebts(_ context.Context, storeID string) ([]domain.Debt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Debt, 0, len(s.debts))
	for _, debt := range s.debts {
		if debt.StoreID == storeID {
			result = append(result, debt)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) CreateDebt(_ context.Context, debt domain.Debt) (*domain.Debt, error) {
	if debt.StoreID == "" || debt.Name == "" || debt.AmountCents < 1 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if debt.ID == "" {
		debt.ID = xid.New("debt")
	}
	if debt.CreatedAt.IsZero() {
		debt.CreatedAt = time.Now().UTC()
	}
	s.debts[debt.ID] = debt

	created := debt
	return &created, nil
}

func (s *Store) UpdateDebt(_ context.Context, debt domain.Debt) (*domain.Debt, error) {
	if debt.StoreID == "" || debt.ID == "" || debt.Name == "" || debt.AmountCents < 1 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.debts[debt.ID]
	if !ok || existing.StoreID != debt.StoreID {
		return nil, store.ErrNotFound
	}
	debt.CreatedAt = existing.CreatedAt
	s.debts[debt.ID] = debt

	updated := debt
	return &updated, nil
}

func (s *Store) DeleteDebt(_ context.Context, storeID string, debtID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.debts[debtID]
	if !ok || existing.StoreID != storeID {
		return store.ErrNotFound
	}
	delete(s.debts, debtID)
	return nil
}

func (s *Store) GetSalesRevenue(_ context.Context, storeID string, from time.Time, to time.Time) (int64, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var revenue int64
	var count int
	for _, sale := range s.sales {
		if sale.StoreID != storeID {
			continue
		}
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		count++
		for _, item := range sale.Items {
			revenue += item.SellPriceCents * int64(item.Quantity)
		}
	}
	return revenue, count, nil
}

func (s *Store) GetInventoryCost(_ context.Context, storeID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, p := range s.products {
		if p.StoreID == storeID {
			total += p.PriceCents * int64(p.Quantity)
		}
	}
	return total, nil
}

func (s *Store) CountLowStockProducts(_ context.Context, storeID string, threshold int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.products {
		if p.StoreID == storeID && p.AvailableQuantity <= threshold {
			count++
		}
	}
	return count, nil
}

func (s *Store) GetDebtTotal(_ context.Context, storeID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, debt := range s.debts {
		if debt.StoreID == storeID {
			total += debt.AmountCents
		}
	}
	return total, nil
}

func (s *Store) getSaleLocked(storeID string, saleID string) (*domain.Sale, error) {
	sale, ok := s.sales[saleID]
	if !ok || sale.StoreID != storeID {
		return nil, store.ErrNotFound
	}
	result := s.withSnapshots(sale)
	return &result, nil
}

// withSnapshots returns a deep copy of the sale with the current catalog rows
// attached as item snapshots; deleted products leave a nil snapshot.
func (s *Store) withSnapshots(sale domain.Sale) domain.Sale {
	result := cloneSale(sale)
	for i := range result.Items {
		if p, ok := s.products[result.Items[i].ProductID]; ok {
			result.Items[i].Product = &domain.ProductSnapshot{
				ID:         p.ID,
				Name:       p.Name,
				PriceCents: p.PriceCents,
				Category:   p.Category,
			}
		}
	}
	return result
}

func cloneSale(sale domain.Sale) domain.Sale {
	result := sale
	result.Items = make([]domain.SaleItem, len(sale.Items))
	copy(result.Items, sale.Items)
	for i := range result.Items {
		result.Items[i].Product = nil
	}
	return result
}

func requestedQuantities(items []domain.SaleItem) map[string]int {
	result := make(map[string]int, len(items))
	for _, item := range items {
		result[item.ProductID] += item.Quantity
	}
	return result
}
