package postgres

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tokoku/internal/domain"
	"tokoku/internal/store"
	"tokoku/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidSale
	}
	if user.ID == "" {
		user.ID = xid.New("user")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (id, name, email, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.ID, nullIfEmpty(user.Name), user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateEmail
		}
		return nil, err
	}

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	var user domain.UserAccount
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, created_at
		FROM app_users
		WHERE email = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&user.ID, &name, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if name.Valid {
		user.Name = name.String
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) CreateStore(ctx context.Context, profile domain.StoreProfile) (*domain.StoreProfile, error) {
	if profile.UserID == "" || profile.Name == "" {
		return nil, store.ErrInvalidSale
	}
	if profile.ID == "" {
		profile.ID = xid.New("store")
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (
			id, name, category, description, address, country, city,
			email, phone, website, opening_hours, user_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, profile.ID, profile.Name, profile.Category, nullIfEmpty(profile.Description), profile.Address,
		profile.Country, profile.City, nullIfEmpty(profile.Email), nullIfEmpty(profile.Phone),
		nullIfEmpty(profile.Website), nullIfEmpty(profile.OpeningHours), profile.UserID, profile.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := profile
	return &created, nil
}

func (s *Store) ListStoresByUser(ctx context.Context, userID string) ([]domain.StoreProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, COALESCE(description,''), address, country, city,
			COALESCE(email,''), COALESCE(phone,''), COALESCE(website,''), COALESCE(opening_hours,''),
			user_id, created_at
		FROM stores
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stores := make([]domain.StoreProfile, 0, 2)
	for rows.Next() {
		var p domain.StoreProfile
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.Address, &p.Country, &p.City,
			&p.Email, &p.Phone, &p.Website, &p.OpeningHours, &p.UserID, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		stores = append(stores, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stores, nil
}

func (s *Store) ListProducts(ctx context.Context, storeID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, COALESCE(description,''), price_cents, sell_price_cents,
			quantity, available_quantity, category, COALESCE(image,''), created_at, updated_at
		FROM products
		WHERE store_id = $1
		ORDER BY created_at DESC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.StoreID == "" || product.Name == "" || product.PriceCents < 1 || product.SellPriceCents < 1 {
		return nil, store.ErrInvalidSale
	}
	if product.Quantity < 0 || product.AvailableQuantity < 0 || product.AvailableQuantity > product.Quantity {
		return nil, store.ErrInvalidSale
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, store_id, name, description, price_cents, sell_price_cents,
			quantity, available_quantity, category, image, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, product.ID, product.StoreID, product.Name, nullIfEmpty(product.Description), product.PriceCents,
		product.SellPriceCents, product.Quantity, product.AvailableQuantity, product.Category,
		nullIfEmpty(product.Image), product.CreatedAt, product.UpdatedAt)
	if err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, storeID string, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, name, COALESCE(description,''), price_cents, sell_price_cents,
			quantity, available_quantity, category, COALESCE(image,''), created_at, updated_at
		FROM products
		WHERE store_id = $1 AND id = $2
	`, storeID, productID).Scan(&p.ID, &p.StoreID, &p.Name, &p.Description, &p.PriceCents, &p.SellPriceCents,
		&p.Quantity, &p.AvailableQuantity, &p.Category, &p.Image, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, storeID string, productIDs []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, COALESCE(description,''), price_cents, sell_price_cents,
			quantity, available_quantity, category, COALESCE(image,''), created_at, updated_at
		FROM products
		WHERE store_id = $1 AND id = ANY($2)
	`, storeID, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.StoreID == "" || product.ID == "" || product.Name == "" || product.PriceCents < 1 || product.SellPriceCents < 1 {
		return nil, store.ErrInvalidSale
	}
	if product.Quantity < 0 || product.AvailableQuantity < 0 || product.AvailableQuantity > product.Quantity {
		return nil, store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $3, description = $4, price_cents = $5, sell_price_cents = $6,
			quantity = $7, available_quantity = $8, category = $9, image = $10, updated_at = now()
		WHERE store_id = $1 AND id = $2
	`, product.StoreID, product.ID, product.Name, nullIfEmpty(product.Description), product.PriceCents,
		product.SellPriceCents, product.Quantity, product.AvailableQuantity, product.Category, nullIfEmpty(product.Image))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProduct(ctx, product.StoreID, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, storeID string, productID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM products
		WHERE store_id = $1 AND id = $2
	`, storeID, productID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CreateSale inserts the sale and its items and decrements the referenced
// products' available quantity as one serializable transaction. The product
// rows are locked and availability is re-checked under that lock, so two
// concurrent sales cannot both pass the sufficiency check and oversell.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.StoreID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidSale
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	now := time.Now().UTC()
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = now
	}
	sale.UpdatedAt = now

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	requested := requestedQuantities(sale.Items)
	locked, err := lockProducts(ctx, pgTx, sale.StoreID, productIDs(requested))
	if err != nil {
		return nil, err
	}
	if len(locked) != len(requested) {
		return nil, store.ErrInvalidSale
	}

	for productID, qty := range requested {
		p := locked[productID]
		if p.available < qty {
			return nil, &store.StockError{ProductID: productID, ProductName: p.name, Available: p.available, Requested: qty}
		}
	}

	for productID, qty := range requested {
		if err := decrementAvailable(ctx, pgTx, sale.StoreID, productID, qty); err != nil {
			return nil, err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, store_id, client_name, client_phone, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, sale.ID, sale.StoreID, nullIfEmpty(sale.ClientName), nullIfEmpty(sale.ClientPhone), sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := insertSaleItems(ctx, pgTx, sale.ID, sale.Items); err != nil {
		return nil, err
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSale(ctx, sale.StoreID, sale.ID)
}

// UpdateSale replaces a sale's items and client fields atomically. The old
// items' quantities are restored before the new set is applied, and the new
// set is validated against the restored availability, so an update that keeps
// a product but changes its quantity is judged against the full stock.
func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if sale.StoreID == "" || sale.ID == "" || len(sale.Items) == 0 {
		return nil, store.ErrInvalidSale
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var saleID string
	err = pgTx.QueryRowContext(ctx, `
		SELECT id
		FROM sales
		WHERE store_id = $1 AND id = $2
		FOR UPDATE
	`, sale.StoreID, sale.ID).Scan(&saleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	oldItems, err := readSaleItemQuantities(ctx, pgTx, sale.ID)
	if err != nil {
		return nil, err
	}

	requested := requestedQuantities(sale.Items)
	allIDs := unionIDs(productIDs(requested), productIDs(oldItems))
	locked, err := lockProducts(ctx, pgTx, sale.StoreID, allIDs)
	if err != nil {
		return nil, err
	}
	for productID := range requested {
		if _, ok := locked[productID]; !ok {
			return nil, store.ErrInvalidSale
		}
	}

	// Restore the old items' quantities first. Products deleted since the
	// original sale are simply skipped; their stock no longer exists.
	for productID, qty := range oldItems {
		if _, ok := locked[productID]; !ok {
			continue
		}
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET available_quantity = available_quantity + $3, updated_at = now()
			WHERE store_id = $1 AND id = $2
		`, sale.StoreID, productID, qty)
		if err != nil {
			return nil, err
		}
	}

	// Sufficiency for the new set is judged against post-restoration levels.
	for productID, qty := range requested {
		p := locked[productID]
		available := p.available + oldItems[productID]
		if available < qty {
			return nil, &store.StockError{ProductID: productID, ProductName: p.name, Available: available, Requested: qty}
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		DELETE FROM sale_items
		WHERE sale_id = $1
	`, sale.ID)
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE sales
		SET client_name = $3, client_phone = $4, updated_at = now()
		WHERE store_id = $1 AND id = $2
	`, sale.StoreID, sale.ID, nullIfEmpty(sale.ClientName), nullIfEmpty(sale.ClientPhone))
	if err != nil {
		return nil, err
	}

	if err := insertSaleItems(ctx, pgTx, sale.ID, sale.Items); err != nil {
		return nil, err
	}

	for productID, qty := range requested {
		if err := decrementAvailable(ctx, pgTx, sale.StoreID, productID, qty); err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return s.GetSale(ctx, sale.StoreID, sale.ID)
}

// DeleteSale removes the sale and its items and restores the referenced
// products' available quantity in one transaction.
func (s *Store) DeleteSale(ctx context.Context, storeID string, saleID string) error {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	var id string
	err = pgTx.QueryRowContext(ctx, `
		SELECT id
		FROM sales
		WHERE store_id = $1 AND id = $2
		FOR UPDATE
	`, storeID, saleID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	items, err := readSaleItemQuantities(ctx, pgTx, saleID)
	if err != nil {
		return err
	}

	for productID, qty := range items {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET available_quantity = available_quantity + $3, updated_at = now()
			WHERE store_id = $1 AND id = $2
		`, storeID, productID, qty)
		if err != nil {
			return err
		}
	}

	_, err = pgTx.ExecContext(ctx, `
		DELETE FROM sale_items
		WHERE sale_id = $1
	`, saleID)
	if err != nil {
		return err
	}

	_, err = pgTx.ExecContext(ctx, `
		DELETE FROM sales
		WHERE store_id = $1 AND id = $2
	`, storeID, saleID)
	if err != nil {
		return err
	}

	return pgTx.Commit()
}

func (s *Store) GetSale(ctx context.Context, storeID string, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	var clientName sql.NullString
	var clientPhone sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, client_name, client_phone, created_at, updated_at
		FROM sales
		WHERE store_id = $1 AND id = $2
	`, storeID, saleID).Scan(&sale.ID, &sale.StoreID, &clientName, &clientPhone, &sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if clientName.Valid {
		sale.ClientName = clientName.String
	}
	if clientPhone.Valid {
		sale.ClientPhone = clientPhone.String
	}
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()

	itemsBySale, err := s.loadSaleItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = itemsBySale[sale.ID]
	if sale.Items == nil {
		sale.Items = []domain.SaleItem{}
	}

	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, storeID string) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, client_name, client_phone, created_at, updated_at
		FROM sales
		WHERE store_id = $1
		ORDER BY created_at DESC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 32)
	saleIDs := make([]string, 0, 32)
	for rows.Next() {
		var sale domain.Sale
		var clientName sql.NullString
		var clientPhone sql.NullString
		if err := rows.Scan(&sale.ID, &sale.StoreID, &clientName, &clientPhone, &sale.CreatedAt, &sale.UpdatedAt); err != nil {
			return nil, err
		}
		if clientName.Valid {
			sale.ClientName = clientName.String
		}
		if clientPhone.Valid {
			sale.ClientPhone = clientPhone.String
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sale.UpdatedAt = sale.UpdatedAt.UTC()
		sale.Items = []domain.SaleItem{}
		sales = append(sales, sale)
		saleIDs = append(saleIDs, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemsBySale, err := s.loadSaleItems(ctx, saleIDs)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		if items, ok := itemsBySale[sales[i].ID]; ok {
			sales[i].Items = items
		}
	}

	return sales, nil
}

// loadSaleItems fetches the items for the given sales joined with the current
// catalog row for the product snapshot. The join is LEFT so items whose
// product was deleted keep their recorded quantity and price with a nil
// snapshot.
func (s *Store) loadSaleItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleItem, error) {
	result := make(map[string][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT si.id, si.sale_id, si.product_id, si.quantity, si.sell_price_cents,
			p.id, p.name, p.price_cents, p.category
		FROM sale_items si
		LEFT JOIN products p ON p.id = si.product_id
		WHERE si.sale_id = ANY($1)
		ORDER BY si.id ASC
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		var snapID sql.NullString
		var snapName sql.NullString
		var snapPrice sql.NullInt64
		var snapCategory sql.NullString
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.SellPriceCents,
			&snapID, &snapName, &snapPrice, &snapCategory); err != nil {
			return nil, err
		}
		if snapID.Valid {
			item.Product = &domain.ProductSnapshot{
				ID:         snapID.String,
				Name:       snapName.String,
				PriceCents: snapPrice.Int64,
				Category:   snapCategory.String,
			}
		}
		result[item.SaleID] = append(result[item.SaleID], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ListDebts(ctx context.Context, storeID string) ([]domain.Debt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, name, type, amount_cents, status, paid_at, COALESCE(notes,''), created_at
		FROM debts
		WHERE store_id = $1
		ORDER BY created_at DESC
	`, storeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	debts := make([]domain.Debt, 0, 32)
	for rows.Next() {
		var debt domain.Debt
		var paidAt sql.NullTime
		if err := rows.Scan(&debt.ID, &debt.StoreID, &debt.Name, &debt.Type, &debt.AmountCents, &debt.Status,
			&paidAt, &debt.Notes, &debt.CreatedAt); err != nil {
			return nil, err
		}
		if paidAt.Valid {
			at := paidAt.Time.UTC()
			debt.PaidAt = &at
		}
		debt.CreatedAt = debt.CreatedAt.UTC()
		debts = append(debts, debt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return debts, nil
}

func (s *Store) CreateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error) {
	if debt.StoreID == "" || debt.Name == "" || debt.AmountCents < 1 {
		return nil, store.ErrInvalidSale
	}
	if debt.ID == "" {
		debt.ID = xid.New("debt")
	}
	if debt.CreatedAt.IsZero() {
		debt.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO debts (id, store_id, name, type, amount_cents, status, paid_at, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, debt.ID, debt.StoreID, debt.Name, debt.Type, debt.AmountCents, debt.Status,
		nullTime(debt.PaidAt), nullIfEmpty(debt.Notes), debt.CreatedAt)
	if err != nil {
		return nil, err
	}

	created := debt
	return &created, nil
}

func (s *Store) UpdateDebt(ctx context.Context, debt domain.Debt) (*domain.Debt, error) {
	if debt.StoreID == "" || debt.ID == "" || debt.Name == "" || debt.AmountCents < 1 {
		return nil, store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE debts
		SET name = $3, type = $4, amount_cents = $5, status = $6, paid_at = $7, notes = $8
		WHERE store_id = $1 AND id = $2
	`, debt.StoreID, debt.ID, debt.Name, debt.Type, debt.AmountCents, debt.Status,
		nullTime(debt.PaidAt), nullIfEmpty(debt.Notes))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := debt
	return &updated, nil
}

func (s *Store) DeleteDebt(ctx context.Context, storeID string, debtID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM debts
		WHERE store_id = $1 AND id = $2
	`, storeID, debtID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetSalesRevenue(ctx context.Context, storeID string, from time.Time, to time.Time) (int64, int, error) {
	var revenue int64
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(si.sell_price_cents * si.quantity), 0), COUNT(DISTINCT s.id)
		FROM sales s
		LEFT JOIN sale_items si ON si.sale_id = s.id
		WHERE s.store_id = $1 AND s.created_at >= $2 AND s.created_at < $3
	`, storeID, from, to).Scan(&revenue, &count)
	if err != nil {
		return 0, 0, err
	}
	return revenue, count, nil
}

func (s *Store) GetInventoryCost(ctx context.Context, storeID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(price_cents * quantity), 0)
		FROM products
		WHERE store_id = $1
	`, storeID).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) CountLowStockProducts(ctx context.Context, storeID string, threshold int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM products
		WHERE store_id = $1 AND available_quantity <= $2
	`, storeID, threshold).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) GetDebtTotal(ctx context.Context, storeID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM debts
		WHERE store_id = $1
	`, storeID).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

type lockedProduct struct {
	name      string
	available int
}

// lockProducts reads the named products FOR UPDATE so their availability
// cannot move under this transaction.
func lockProducts(ctx context.Context, tx *sql.Tx, storeID string, ids []string) (map[string]lockedProduct, error) {
	result := make(map[string]lockedProduct, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, name, available_quantity
		FROM products
		WHERE store_id = $1 AND id = ANY($2)
		FOR UPDATE
	`, storeID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var p lockedProduct
		if err := rows.Scan(&id, &p.name, &p.available); err != nil {
			return nil, err
		}
		result[id] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// decrementAvailable applies a conditional decrement. The availability guard
// is re-stated in SQL even though the caller checked under the row lock;
// zero rows affected means the guard failed and the transaction must abort.
func decrementAvailable(ctx context.Context, tx *sql.Tx, storeID string, productID string, qty int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET available_quantity = available_quantity - $3, updated_at = now()
		WHERE store_id = $1 AND id = $2 AND available_quantity >= $3
	`, storeID, productID, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &store.StockError{ProductID: productID, Requested: qty}
	}
	return nil
}

func insertSaleItems(ctx context.Context, tx *sql.Tx, saleID string, items []domain.SaleItem) error {
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 || item.SellPriceCents < 0 {
			return store.ErrInvalidSale
		}
		itemID := item.ID
		if itemID == "" {
			itemID = xid.New("sitem")
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, quantity, sell_price_cents)
			VALUES ($1,$2,$3,$4,$5)
		`, itemID, saleID, item.ProductID, item.Quantity, item.SellPriceCents)
		if err != nil {
			return err
		}
	}
	return nil
}

func readSaleItemQuantities(ctx context.Context, tx *sql.Tx, saleID string) (map[string]int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity
		FROM sale_items
		WHERE sale_id = $1
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int, 8)
	for rows.Next() {
		var productID string
		var qty int
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		result[productID] += qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func requestedQuantities(items []domain.SaleItem) map[string]int {
	result := make(map[string]int, len(items))
	for _, item := range items {
		result[item.ProductID] += item.Quantity
	}
	return result
}

func productIDs(quantities map[string]int) []string {
	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func unionIDs(a []string, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		set[id] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner, p *domain.Product) error {
	if err := row.Scan(&p.ID, &p.StoreID, &p.Name, &p.Description, &p.PriceCents, &p.SellPriceCents,
		&p.Quantity, &p.AvailableQuantity, &p.Category, &p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
