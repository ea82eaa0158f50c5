package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tokoku/internal/cache"
	"tokoku/internal/domain"
	"tokoku/internal/store"
)

var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo              store.Repository
	dashboards        cache.DashboardCache
	lowStockThreshold int
	kpiTTL            time.Duration
}

func New(repo store.Repository, dashboards cache.DashboardCache, lowStockThreshold int, kpiTTL time.Duration) *Service {
	if dashboards == nil {
		dashboards = cache.NoopDashboardCache{}
	}
	if lowStockThreshold < 1 {
		lowStockThreshold = 10
	}
	if kpiTTL <= 0 {
		kpiTTL = time.Minute
	}

	return &Service{
		repo:              repo,
		dashboards:        dashboards,
		lowStockThreshold: lowStockThreshold,
		kpiTTL:            kpiTTL,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (domain.RegisterResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.RegisterResponse{}, fmt.Errorf("%w: valid email required", store.ErrInvalidSale)
	}
	if len(req.Password) < 8 {
		return domain.RegisterResponse{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalidSale)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return domain.RegisterResponse{}, err
	}

	log.Printf("[service] user registered id=%s", created.ID)

	return domain.RegisterResponse{
		ID:    created.ID,
		Name:  created.Name,
		Email: created.Email,
	}, nil
}

// Authenticate resolves email+password to an actor. Missing users and wrong
// passwords both map to ErrInvalidCredentials so the response does not reveal
// which accounts exist.
func (s *Service) Authenticate(ctx context.Context, email string, password string) (domain.Actor, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Actor{}, ErrInvalidCredentials
		}
		return domain.Actor{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return domain.Actor{}, ErrInvalidCredentials
	}
	return domain.Actor{UserID: user.ID, Email: user.Email}, nil
}

func (s *Service) ListStores(ctx context.Context) ([]domain.StoreProfile, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, ErrUnauthenticated
	}
	return s.repo.ListStoresByUser(ctx, actor.UserID)
}

func (s *Service) CreateStore(ctx context.Context, req domain.StoreCreateRequest) (domain.StoreProfile, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.StoreProfile{}, ErrUnauthenticated
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Address = strings.TrimSpace(req.Address)
	req.Country = strings.TrimSpace(req.Country)
	req.City = strings.TrimSpace(req.City)
	if req.Name == "" || req.Category == "" || req.Address == "" || req.Country == "" || req.City == "" {
		return domain.StoreProfile{}, fmt.Errorf("%w: name, category, address, country and city are required", store.ErrInvalidSale)
	}

	created, err := s.repo.CreateStore(ctx, domain.StoreProfile{
		Name:         req.Name,
		Category:     req.Category,
		Description:  strings.TrimSpace(req.Description),
		Address:      req.Address,
		Country:      req.Country,
		City:         req.City,
		Email:        strings.TrimSpace(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
		Website:      strings.TrimSpace(req.Website),
		OpeningHours: strings.TrimSpace(req.OpeningHours),
		UserID:       actor.UserID,
	})
	if err != nil {
		return domain.StoreProfile{}, err
	}

	log.Printf("[service] store created id=%s user=%s", created.ID, actor.UserID)
	return *created, nil
}

// resolveStore maps the authenticated actor to their store. Users with more
// than one store always operate on the earliest-created one.
func (s *Service) resolveStore(ctx context.Context) (domain.StoreProfile, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.StoreProfile{}, ErrUnauthenticated
	}

	stores, err := s.repo.ListStoresByUser(ctx, actor.UserID)
	if err != nil {
		return domain.StoreProfile{}, err
	}
	if len(stores) == 0 {
		return domain.StoreProfile{}, store.ErrNoStore
	}
	return stores[0], nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, profile.ID)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	product, err := productFromRequest(req.Name, req.Description, req.PriceCents, req.SellPriceCents, req.Quantity, req.AvailableQuantity, req.Category, req.Image)
	if err != nil {
		return domain.Product{}, err
	}
	product.StoreID = profile.ID

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] product created id=%s store=%s", created.ID, profile.ID)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id required", store.ErrInvalidSale)
	}

	product, err := productFromRequest(req.Name, req.Description, req.PriceCents, req.SellPriceCents, req.Quantity, req.AvailableQuantity, req.Category, req.Image)
	if err != nil {
		return domain.Product{}, err
	}
	product.ID = productID
	product.StoreID = profile.ID

	// An omitted available_quantity keeps the stored value; the sale
	// coordinator owns that number.
	if req.AvailableQuantity == nil {
		existing, err := s.repo.GetProduct(ctx, profile.ID, productID)
		if err != nil {
			return domain.Product{}, err
		}
		product.AvailableQuantity = existing.AvailableQuantity
		if product.AvailableQuantity > product.Quantity {
			product.AvailableQuantity = product.Quantity
		}
	}

	updated, err := s.repo.UpdateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] product updated id=%s store=%s", updated.ID, profile.ID)
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, productID string) error {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id required", store.ErrInvalidSale)
	}

	if err := s.repo.DeleteProduct(ctx, profile.ID, productID); err != nil {
		return err
	}

	log.Printf("[service] product deleted id=%s store=%s", productID, profile.ID)
	return nil
}

func productFromRequest(name string, description string, priceCents int64, sellPriceCents int64, quantity int, availableQuantity *int, category string, image string) (domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: product name required", store.ErrInvalidSale)
	}
	if priceCents < 1 || sellPriceCents < 1 {
		return domain.Product{}, fmt.Errorf("%w: price and sell price must be positive", store.ErrInvalidSale)
	}
	if quantity < 0 {
		return domain.Product{}, fmt.Errorf("%w: quantity must not be negative", store.ErrInvalidSale)
	}

	available := quantity
	if availableQuantity != nil {
		available = *availableQuantity
		if available < 0 || available > quantity {
			return domain.Product{}, fmt.Errorf("%w: available quantity must be between 0 and quantity", store.ErrInvalidSale)
		}
	}

	category = strings.TrimSpace(category)
	if category == "" {
		category = "Uncategorized"
	}

	return domain.Product{
		Name:              name,
		Description:       strings.TrimSpace(description),
		PriceCents:        priceCents,
		SellPriceCents:    sellPriceCents,
		Quantity:          quantity,
		AvailableQuantity: available,
		Category:          category,
		Image:             strings.TrimSpace(image),
	}, nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListSales(ctx, profile.ID)
}

func (s *Service) GetSale(ctx context.Context, saleID string) (domain.Sale, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, fmt.Errorf("%w: sale id required", store.ErrInvalidSale)
	}

	sale, err := s.repo.GetSale(ctx, profile.ID, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	items, err := validateSaleRequest(req)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.precheckStock(ctx, profile.ID, items, nil); err != nil {
		return domain.Sale{}, err
	}

	created, err := s.repo.CreateSale(ctx, domain.Sale{
		StoreID:     profile.ID,
		ClientName:  strings.TrimSpace(req.ClientName),
		ClientPhone: strings.TrimSpace(req.ClientPhone),
		Items:       items,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	log.Printf("[service] sale created id=%s store=%s items=%d", created.ID, profile.ID, len(created.Items))
	return *created, nil
}

func (s *Service) UpdateSale(ctx context.Context, saleID string, req domain.SaleRequest) (domain.Sale, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, fmt.Errorf("%w: sale id required", store.ErrInvalidSale)
	}

	items, err := validateSaleRequest(req)
	if err != nil {
		return domain.Sale{}, err
	}

	existing, err := s.repo.GetSale(ctx, profile.ID, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.precheckStock(ctx, profile.ID, items, existing.Items); err != nil {
		return domain.Sale{}, err
	}

	updated, err := s.repo.UpdateSale(ctx, domain.Sale{
		ID:          saleID,
		StoreID:     profile.ID,
		ClientName:  strings.TrimSpace(req.ClientName),
		ClientPhone: strings.TrimSpace(req.ClientPhone),
		Items:       items,
	})
	if err != nil {
		return domain.Sale{}, err
	}

	log.Printf("[service] sale updated id=%s store=%s items=%d", updated.ID, profile.ID, len(updated.Items))
	return *updated, nil
}

func (s *Service) DeleteSale(ctx context.Context, saleID string) (domain.SaleDeleteResponse, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return domain.SaleDeleteResponse{}, err
	}
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.SaleDeleteResponse{}, fmt.Errorf("%w: sale id required", store.ErrInvalidSale)
	}

	if err := s.repo.DeleteSale(ctx, profile.ID, saleID); err != nil {
		return domain.SaleDeleteResponse{}, err
	}

	log.Printf("[service] sale deleted id=%s store=%s", saleID, profile.ID)
	return domain.SaleDeleteResponse{Deleted: true, SaleID: saleID}, nil
}

// validateSaleRequest checks the request shape and converts it to sale items.
// It is pure: no repository access, no mutation.
func validateSaleRequest(req domain.SaleRequest) ([]domain.SaleItem, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: sale must have at least one item", store.ErrInvalidSale)
	}

	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: item product id required", store.ErrInvalidSale)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("%w: item quantity must be at least 1", store.ErrInvalidSale)
		}
		if item.SellPriceCents == nil || *item.SellPriceCents < 0 {
			return nil, fmt.Errorf("%w: item sell price required", store.ErrInvalidSale)
		}
		items = append(items, domain.SaleItem{
			ProductID:      productID,
			Quantity:       item.Quantity,
			SellPriceCents: *item.SellPriceCents,
		})
	}
	return items, nil
}

// precheckStock verifies that every referenced product belongs to the store
// and looks sufficient before the transaction is attempted. The repository
// repeats both checks under its row locks; this pass only exists to fail fast
// with a friendly error. For updates, the prior items' quantities are credited
// back before comparing, the same way the transaction restores them.
func (s *Service) precheckStock(ctx context.Context, storeID string, items []domain.SaleItem, prior []domain.SaleItem) error {
	requested := make(map[string]int, len(items))
	for _, item := range items {
		requested[item.ProductID] += item.Quantity
	}
	restored := make(map[string]int, len(prior))
	for _, item := range prior {
		restored[item.ProductID] += item.Quantity
	}

	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}

	products, err := s.repo.GetProductsByIDs(ctx, storeID, ids)
	if err != nil {
		return err
	}
	if len(products) != len(requested) {
		return fmt.Errorf("%w: sale references a product outside this store", store.ErrInvalidSale)
	}

	for id, qty := range requested {
		p := products[id]
		available := p.AvailableQuantity + restored[id]
		if available < qty {
			return &store.StockError{ProductID: id, ProductName: p.Name, Available: available, Requested: qty}
		}
	}
	return nil
}

func (s *Service) ListDebts(ctx context.Context) ([]domain.Debt, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDebts(ctx, profile.ID)
}

func (s *Service) CreateDebt(ctx context.Context, req domain.DebtRequest) (domain.Debt, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return domain.Debt{}, err
	}

	debt, err := debtFromRequest(req)
	if err != nil {
		return domain.Debt{}, err
	}
	debt.StoreID = profile.ID

	created, err := s.repo.CreateDebt(ctx, debt)
	if err != nil {
		return domain.Debt{}, err
	}

	log.Printf("[service] debt created id=%s store=%s", created.ID, profile.ID)
	return *created, nil
}

func (s *Service) UpdateDebt(ctx context.Context, debtID string, req domain.DebtRequest) (domain.Debt, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return domain.Debt{}, err
	}
	debtID = strings.TrimSpace(debtID)
	if debtID == "" {
		return domain.Debt{}, fmt.Errorf("%w: debt id required", store.ErrInvalidSale)
	}

	debt, err := debtFromRequest(req)
	if err != nil {
		return domain.Debt{}, err
	}
	debt.ID = debtID
	debt.StoreID = profile.ID

	updated, err := s.repo.UpdateDebt(ctx, debt)
	if err != nil {
		return domain.Debt{}, err
	}

	log.Printf("[service] debt updated id=%s store=%s", updated.ID, profile.ID)
	return *updated, nil
}

func (s *Service) DeleteDebt(ctx context.Context, debtID string) error {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return err
	}
	debtID = strings.TrimSpace(debtID)
	if debtID == "" {
		return fmt.Errorf("%w: debt id required", store.ErrInvalidSale)
	}

	if err := s.repo.DeleteDebt(ctx, profile.ID, debtID); err != nil {
		return err
	}

	log.Printf("[service] debt deleted id=%s store=%s", debtID, profile.ID)
	return nil
}

func debtFromRequest(req domain.DebtRequest) (domain.Debt, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Debt{}, fmt.Errorf("%w: debt name required", store.ErrInvalidSale)
	}
	if req.AmountCents < 1 {
		return domain.Debt{}, fmt.Errorf("%w: debt amount must be positive", store.ErrInvalidSale)
	}

	debtType := strings.ToUpper(strings.TrimSpace(req.Type))
	if debtType != domain.DebtTypeCustomer && debtType != domain.DebtTypeSupplier {
		return domain.Debt{}, fmt.Errorf("%w: debt type must be CUSTOMER or SUPPLIER", store.ErrInvalidSale)
	}

	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if status == "" {
		status = domain.DebtStatusPending
	}
	if status != domain.DebtStatusPending && status != domain.DebtStatusPaid && status != domain.DebtStatusOverdue {
		return domain.Debt{}, fmt.Errorf("%w: debt status must be PENDING, PAID or OVERDUE", store.ErrInvalidSale)
	}

	var paidAt *time.Time
	if strings.TrimSpace(req.PaidAt) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(req.PaidAt))
		if err != nil {
			return domain.Debt{}, fmt.Errorf("%w: paid_at must be YYYY-MM-DD", store.ErrInvalidSale)
		}
		at := parsed.UTC()
		paidAt = &at
	}
	if status == domain.DebtStatusPaid && paidAt == nil {
		now := time.Now().UTC()
		paidAt = &now
	}

	return domain.Debt{
		Name:        name,
		Type:        debtType,
		AmountCents: req.AmountCents,
		Status:      status,
		PaidAt:      paidAt,
		Notes:       strings.TrimSpace(req.Notes),
	}, nil
}

func (s *Service) DashboardKPI(ctx context.Context) (domain.KPIReport, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return domain.KPIReport{}, err
	}

	if cached, ok, err := s.dashboards.GetKPI(ctx, profile.ID); err != nil {
		log.Printf("[service] WARN: kpi cache read failed store=%s: %v", profile.ID, err)
	} else if ok {
		return *cached, nil
	}

	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	revenue, _, err := s.repo.GetSalesRevenue(ctx, profile.ID, monthStart, monthEnd)
	if err != nil {
		return domain.KPIReport{}, err
	}
	expenses, err := s.repo.GetInventoryCost(ctx, profile.ID)
	if err != nil {
		return domain.KPIReport{}, err
	}
	debts, err := s.repo.GetDebtTotal(ctx, profile.ID)
	if err != nil {
		return domain.KPIReport{}, err
	}
	lowStock, err := s.repo.CountLowStockProducts(ctx, profile.ID, s.lowStockThreshold)
	if err != nil {
		return domain.KPIReport{}, err
	}

	report := domain.KPIReport{
		TotalRevenueCents:  revenue,
		TotalExpensesCents: expenses,
		TotalDebtsCents:    debts,
		LowStockAlerts:     lowStock,
		Month:              now.Format("January 2006"),
	}

	if err := s.dashboards.SetKPI(ctx, profile.ID, &report, s.kpiTTL); err != nil {
		log.Printf("[service] WARN: kpi cache write failed store=%s: %v", profile.ID, err)
	}

	return report, nil
}

// SalesChart returns one row per month of the current year. Expenses follow
// the dashboard convention: the whole-catalog cost is shown on the current
// month only.
func (s *Service) SalesChart(ctx context.Context) ([]domain.SalesChartPoint, error) {
	profile, err := s.resolveStore(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expenses, err := s.repo.GetInventoryCost(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	points := make([]domain.SalesChartPoint, 0, 12)
	for month := time.January; month <= time.December; month++ {
		monthStart := time.Date(now.Year(), month, 1, 0, 0, 0, 0, time.UTC)
		monthEnd := monthStart.AddDate(0, 1, 0)

		revenue, count, err := s.repo.GetSalesRevenue(ctx, profile.ID, monthStart, monthEnd)
		if err != nil {
			return nil, err
		}

		point := domain.SalesChartPoint{
			Date:         monthStart.Format("Jan"),
			FullDate:     monthStart.Format("2006-01"),
			RevenueCents: revenue,
			SalesCount:   count,
		}
		if month == now.Month() {
			point.ExpensesCents = expenses
		}
		points = append(points, point)
	}

	return points, nil
}
