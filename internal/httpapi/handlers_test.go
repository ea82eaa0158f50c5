package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tokoku/internal/domain"
	"tokoku/internal/service"
	"tokoku/internal/store/memory"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	svc := service.New(repo, nil, 10, time.Minute)
	auth := NewAuthManager("unit-test-secret-key-0123456789ab", time.Hour)
	return New(svc, auth, "*")
}

func doJSON(t *testing.T, api *API, method string, path string, token string, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()

	rec := doJSON(t, api, http.MethodGet, "/api/v1/auth/csrf-token", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csrf token fetch failed: %d %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Token string `json:"csrf_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode csrf response: %v", err)
	}
	if payload.Token == "" {
		t.Fatalf("empty csrf token")
	}
	return payload.Token
}

// loginAsOwner registers an owner with one store and returns a bearer token
// plus a CSRF token for mutating calls.
func loginAsOwner(t *testing.T, api *API) (string, string) {
	t.Helper()

	token := registerAndLogin(t, api, "owner@example.com")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/stores", token, csrf, domain.StoreCreateRequest{
		Name:     "Warung Tes",
		Category: "General",
		Address:  "Jl. Tes 1",
		Country:  "Indonesia",
		City:     "Bandung",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create store failed: %d %s", rec.Code, rec.Body.String())
	}

	return token, csrf
}

func registerAndLogin(t *testing.T, api *API, email string) string {
	t.Helper()

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/register", "", "", domain.RegisterRequest{
		Name:     "Owner",
		Email:    email,
		Password: "correct-horse-battery",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{
		Email:    email,
		Password: "correct-horse-battery",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatalf("empty access token")
	}
	return resp.AccessToken
}

func createProductHTTP(t *testing.T, api *API, token string, csrf string, name string, quantity int) domain.Product {
	t.Helper()

	rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, csrf, domain.ProductCreateRequest{
		Name:           name,
		PriceCents:     50000,
		SellPriceCents: 80000,
		Quantity:       quantity,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product failed: %d %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Product domain.Product `json:"product"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode product response: %v", err)
	}
	return payload.Product
}

func productAvailability(t *testing.T, api *API, token string, productID string) int {
	t.Helper()

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list products failed: %d %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode products response: %v", err)
	}
	for _, p := range payload.Products {
		if p.ID == productID {
			return p.AvailableQuantity
		}
	}
	t.Fatalf("product %s not found", productID)
	return 0
}

func saleRequest(productID string, quantity int, sellPrice int64) domain.SaleRequest {
	return domain.SaleRequest{
		ClientName: "Budi",
		Items: []domain.SaleItemRequest{
			{ProductID: productID, Quantity: quantity, SellPriceCents: &sellPrice},
		},
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := doJSON(t, api, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok":true`) {
		t.Fatalf("unexpected health body: %s", rec.Body.String())
	}
}

func TestRegisterAndLoginOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	token := registerAndLogin(t, api, "anita@example.com")
	if token == "" {
		t.Fatalf("expected token")
	}

	rec := doJSON(t, api, http.MethodPost, "/api/v1/auth/register", "", "", domain.RegisterRequest{
		Email:    "anita@example.com",
		Password: "correct-horse-battery",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate email, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/auth/login", "", "", domain.LoginRequest{
		Email:    "anita@example.com",
		Password: "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/v1/sales", "/api/v1/products", "/api/v1/debts", "/api/v1/dashboard/kpi"} {
		rec := doJSON(t, api, http.MethodGet, path, "", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s without token, got %d", path, rec.Code)
		}
	}

	rec := doJSON(t, api, http.MethodGet, "/api/v1/sales", "not-a-jwt", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestMissingStoreReturns404(t *testing.T) {
	api := newTestAPI(t)
	token := registerAndLogin(t, api, "storeless@example.com")

	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a store, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token, csrf := loginAsOwner(t, api)
	product := createProductHTTP(t, api, token, csrf, "Kopi Susu", 10)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, saleRequest(product.ID, 3, 90000))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale failed: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}
	if created.Sale.ID == "" || len(created.Sale.Items) != 1 {
		t.Fatalf("unexpected sale payload: %+v", created.Sale)
	}
	if got := productAvailability(t, api, token, product.ID); got != 7 {
		t.Fatalf("expected availability 7 after sale, got %d", got)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/sales/"+created.Sale.ID, token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get sale failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPut, "/api/v1/sales/"+created.Sale.ID, token, csrf, saleRequest(product.ID, 5, 90000))
	if rec.Code != http.StatusOK {
		t.Fatalf("update sale failed: %d %s", rec.Code, rec.Body.String())
	}
	if got := productAvailability(t, api, token, product.ID); got != 5 {
		t.Fatalf("expected availability 5 after update, got %d", got)
	}

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/sales/"+created.Sale.ID, token, csrf, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete sale failed: %d %s", rec.Code, rec.Body.String())
	}
	var deleted domain.SaleDeleteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &deleted); err != nil {
		t.Fatalf("decode delete response: %v", err)
	}
	if !deleted.Deleted || deleted.SaleID != created.Sale.ID {
		t.Fatalf("unexpected delete response: %+v", deleted)
	}
	if got := productAvailability(t, api, token, product.ID); got != 10 {
		t.Fatalf("expected availability restored to 10, got %d", got)
	}
}

func TestSaleErrorStatuses(t *testing.T) {
	api := newTestAPI(t)
	token, csrf := loginAsOwner(t, api)
	product := createProductHTTP(t, api, token, csrf, "Gula Aren", 5)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, saleRequest(product.ID, 6, 90000))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for oversell, got %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Gula Aren") {
		t.Fatalf("conflict body should name the product, got %s", rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, domain.SaleRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty sale, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/sales/sale-nope", token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sale, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/sales/", token, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing sale id, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestSalesAreInvisibleAcrossOwners(t *testing.T) {
	api := newTestAPI(t)
	token, csrf := loginAsOwner(t, api)
	product := createProductHTTP(t, api, token, csrf, "Scoped", 10)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, saleRequest(product.ID, 2, 90000))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale failed: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}

	otherToken := registerAndLogin(t, api, "other@example.com")
	rec = doJSON(t, api, http.MethodPost, "/api/v1/stores", otherToken, csrf, domain.StoreCreateRequest{
		Name:     "Toko Lain",
		Category: "General",
		Address:  "Jl. Lain 2",
		Country:  "Indonesia",
		City:     "Jakarta",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create other store failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/sales/"+created.Sale.ID, otherToken, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign sale must answer 404, got %d %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, api, http.MethodDelete, "/api/v1/sales/"+created.Sale.ID, otherToken, csrf, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign delete must answer 404, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestDashboardOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token, csrf := loginAsOwner(t, api)
	product := createProductHTTP(t, api, token, csrf, "KPI Item", 20)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/sales", token, csrf, saleRequest(product.ID, 3, 100000))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sale failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/dashboard/kpi", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("kpi failed: %d %s", rec.Code, rec.Body.String())
	}
	var report domain.KPIReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode kpi: %v", err)
	}
	if report.TotalRevenueCents != 300000 {
		t.Fatalf("expected revenue 300000, got %d", report.TotalRevenueCents)
	}

	rec = doJSON(t, api, http.MethodGet, "/api/v1/dashboard/sales-chart", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("sales chart failed: %d %s", rec.Code, rec.Body.String())
	}
	var chart struct {
		Points []domain.SalesChartPoint `json:"points"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &chart); err != nil {
		t.Fatalf("decode chart: %v", err)
	}
	if len(chart.Points) != 12 {
		t.Fatalf("expected 12 chart points, got %d", len(chart.Points))
	}
}

func TestDebtEndpoints(t *testing.T) {
	api := newTestAPI(t)
	token, csrf := loginAsOwner(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/debts", token, csrf, domain.DebtRequest{
		Name:        "Pak Agus",
		Type:        "CUSTOMER",
		AmountCents: 250000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create debt failed: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Debt domain.Debt `json:"debt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode debt: %v", err)
	}

	rec = doJSON(t, api, http.MethodPut, "/api/v1/debts/"+created.Debt.ID, token, csrf, domain.DebtRequest{
		Name:        "Pak Agus",
		Type:        "CUSTOMER",
		AmountCents: 250000,
		Status:      "PAID",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update debt failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodDelete, "/api/v1/debts/"+created.Debt.ID, token, csrf, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete debt failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/debts", token, csrf, domain.DebtRequest{
		Name:        "Pak Agus",
		Type:        "FRIEND",
		AmountCents: 100,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad debt type, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	api := newTestAPI(t)
	token, csrf := loginAsOwner(t, api)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(`{"name":"X","price_cents":1,"sell_price_cents":1,"quantity":1,"bogus":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-CSRF-Token", csrf)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)
	token, csrf := loginAsOwner(t, api)

	rec := doJSON(t, api, http.MethodPatch, "/api/v1/sales", token, csrf, saleRequest("prod-x", 1, 100))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d %s", rec.Code, rec.Body.String())
	}
}
