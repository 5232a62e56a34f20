package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"cafeledger/backend/internal/blob"
	"cafeledger/backend/internal/service"
	"cafeledger/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.New()
	svc := service.New(repo, nil, blob.NewMemoryStorage("http://images.test"))
	auth := NewAuthManager(repo, "test-secret-key-with-enough-length", time.Hour)

	return New(svc, auth, "*")
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload == nil {
		body = bytes.NewReader(nil)
	} else {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, rec.Body.String())
	}
}

// signUp registers and logs in a user, returning the bearer token.
func signUp(t *testing.T, handler http.Handler, email string) string {
	t.Helper()
	creds := map[string]string{"email": email, "password": "correct-horse"}

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", creds)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("login expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		AccessToken string `json:"access_token"`
	}
	decodeInto(t, rec, &body)
	if body.AccessToken == "" {
		t.Fatalf("expected access token")
	}
	return body.AccessToken
}

// createEntity posts payload and returns the id found under key.
func createEntity(t *testing.T, handler http.Handler, path string, token string, key string, payload any) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, path, token, payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST %s expected 201, got %d (body: %s)", path, rec.Code, rec.Body.String())
	}
	var body map[string]map[string]any
	decodeInto(t, rec, &body)
	id, _ := body[key]["id"].(string)
	if id == "" {
		t.Fatalf("POST %s: missing %s.id in %v", path, key, body)
	}
	return id
}

type cafeFixture struct {
	handler http.Handler
	token   string
	cafe    string
	milk    string
	latte   string
	staff   string
}

func newCafeFixture(t *testing.T) cafeFixture {
	t.Helper()
	handler := newTestAPI(t).Handler()
	token := signUp(t, handler, "owner@example.com")

	cafe := createEntity(t, handler, "/api/v1/cafes", token, "cafe", map[string]any{"name": "Blue Door"})
	base := "/api/v1/cafes/" + cafe
	milk := createEntity(t, handler, base+"/stock", token, "item", map[string]any{
		"name":                "Milk",
		"unit_of_measure":     "l",
		"current_quantity":    "10",
		"cost_per_unit":       "2",
		"low_stock_threshold": "1",
	})
	latte := createEntity(t, handler, base+"/menu", token, "item", map[string]any{
		"name":       "Latte",
		"sale_price": "4.50",
	})
	rec := doJSON(t, handler, http.MethodPost, base+"/menu/"+latte+"/recipe", token, map[string]any{
		"stock_item_id": milk,
		"quantity_used": "0.3",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add recipe line expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	staff := createEntity(t, handler, base+"/staff", token, "staff", map[string]any{
		"name":         "Ana",
		"role":         "barista",
		"daily_salary": "30",
	})

	return cafeFixture{handler: handler, token: token, cafe: cafe, milk: milk, latte: latte, staff: staff}
}

func (f cafeFixture) path(suffix string) string {
	return "/api/v1/cafes/" + f.cafe + suffix
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeInto(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	handler := newTestAPI(t).Handler()
	signUp(t, handler, "dup@example.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "DUP@example.com",
		"password": "another-password",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	handler := newTestAPI(t).Handler()
	signUp(t, handler, "someone@example.com")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "someone@example.com",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "wrongpassword",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email expected 401, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireBearer(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/cafes", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/cafes", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}
}

func TestMeReturnsProfile(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := signUp(t, handler, "me@example.com")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		User struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	decodeInto(t, rec, &body)
	if body.User.Email != "me@example.com" {
		t.Fatalf("expected me@example.com, got %q", body.User.Email)
	}
}

func TestOrderFlowOverHTTP(t *testing.T) {
	f := newCafeFixture(t)

	order := createEntity(t, f.handler, f.path("/orders"), f.token, "order", map[string]any{
		"staff_id": f.staff,
		"items":    []map[string]any{{"menu_item_id": f.latte, "quantity": 2}},
	})

	rec := doJSON(t, f.handler, http.MethodGet, f.path("/stock/"+f.milk), f.token, nil)
	var stock struct {
		Item struct {
			CurrentQuantity string `json:"current_quantity"`
		} `json:"item"`
	}
	decodeInto(t, rec, &stock)
	if stock.Item.CurrentQuantity != "9.4" {
		t.Fatalf("expected milk 9.4 after order, got %q", stock.Item.CurrentQuantity)
	}

	rec = doJSON(t, f.handler, http.MethodGet, f.path("/reports/daily"), f.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("daily report expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var report struct {
		Orders       int    `json:"orders"`
		TotalRevenue string `json:"total_revenue"`
		TotalCOGS    string `json:"total_cogs"`
	}
	decodeInto(t, rec, &report)
	if report.Orders != 1 || report.TotalRevenue != "9" || report.TotalCOGS != "1.2" {
		t.Fatalf("unexpected report %+v", report)
	}

	rec = doJSON(t, f.handler, http.MethodDelete, f.path("/orders/"+order), f.token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete order expected 204, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, f.handler, http.MethodGet, f.path("/orders/"+order), f.token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted order expected 404, got %d", rec.Code)
	}
}

func TestOrderBeyondStockDrivesQuantityNegative(t *testing.T) {
	f := newCafeFixture(t)

	createEntity(t, f.handler, f.path("/orders"), f.token, "order", map[string]any{
		"staff_id": f.staff,
		"items":    []map[string]any{{"menu_item_id": f.latte, "quantity": 40}},
	})

	rec := doJSON(t, f.handler, http.MethodGet, f.path("/stock/"+f.milk), f.token, nil)
	var stock struct {
		Item struct {
			CurrentQuantity string `json:"current_quantity"`
		} `json:"item"`
	}
	decodeInto(t, rec, &stock)
	if stock.Item.CurrentQuantity != "-2" {
		t.Fatalf("expected milk -2 after oversold order, got %q", stock.Item.CurrentQuantity)
	}

	rec = doJSON(t, f.handler, http.MethodGet, f.path("/stock/"+f.milk+"/reconcile"), f.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Reconciliation struct {
			Balanced       bool   `json:"balanced"`
			LedgerQuantity string `json:"ledger_quantity"`
		} `json:"reconciliation"`
	}
	decodeInto(t, rec, &body)
	if !body.Reconciliation.Balanced || body.Reconciliation.LedgerQuantity != "-2" {
		t.Fatalf("expected balanced ledger at -2, got %+v", body.Reconciliation)
	}
}

func TestDailyReportFormats(t *testing.T) {
	f := newCafeFixture(t)

	rec := doJSON(t, f.handler, http.MethodGet, f.path("/reports/daily?format=csv"), f.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected text/csv, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "costs,salaries,30.00") {
		t.Fatalf("expected salary line in csv, got:\n%s", rec.Body.String())
	}

	rec = doJSON(t, f.handler, http.MethodGet, f.path("/reports/daily?format=html"), f.token, nil)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected text/html, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "Daily Report") {
		t.Fatalf("expected printable report, got:\n%s", rec.Body.String())
	}

	rec = doJSON(t, f.handler, http.MethodGet, f.path("/reports/daily?date=31-01-2024"), f.token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date expected 400, got %d", rec.Code)
	}
}

func TestMonthlyReportOverHTTP(t *testing.T) {
	f := newCafeFixture(t)

	rec := doJSON(t, f.handler, http.MethodGet, f.path("/reports/monthly?month=2024-02"), f.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var report struct {
		Month          string `json:"month"`
		DailyBreakdown []any  `json:"daily_reports"`
	}
	decodeInto(t, rec, &report)
	if report.Month != "2024-02" || len(report.DailyBreakdown) != 29 {
		t.Fatalf("unexpected monthly report month=%s days=%d", report.Month, len(report.DailyBreakdown))
	}
}

func TestNonMemberIsForbidden(t *testing.T) {
	f := newCafeFixture(t)
	outsider := signUp(t, f.handler, "outsider@example.com")

	rec := doJSON(t, f.handler, http.MethodGet, f.path("/stock"), outsider, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestServerCannotManageMenu(t *testing.T) {
	f := newCafeFixture(t)
	server := signUp(t, f.handler, "server@example.com")

	rec := doJSON(t, f.handler, http.MethodPost, f.path("/members"), f.token, map[string]string{
		"email": "server@example.com",
		"role":  "server",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, f.handler, http.MethodPost, f.path("/menu"), server, map[string]any{"name": "Mocha", "sale_price": "5"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("server creating menu item expected 403, got %d", rec.Code)
	}
	rec = doJSON(t, f.handler, http.MethodPost, f.path("/orders"), server, map[string]any{
		"staff_id": f.staff,
		"items":    []map[string]any{{"menu_item_id": f.latte, "quantity": 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("server creating order expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestExpenseKindRoute(t *testing.T) {
	f := newCafeFixture(t)

	createEntity(t, f.handler, f.path("/expenses/monthly"), f.token, "expense", map[string]any{
		"date":        "2024-02",
		"description": "Rent",
		"amount":      "290",
	})
	rec := doJSON(t, f.handler, http.MethodGet, f.path("/expenses/monthly?period=2024-02"), f.token, nil)
	var body struct {
		Expenses []struct {
			Description string `json:"description"`
		} `json:"expenses"`
	}
	decodeInto(t, rec, &body)
	if len(body.Expenses) != 1 || body.Expenses[0].Description != "Rent" {
		t.Fatalf("unexpected expenses %+v", body.Expenses)
	}

	rec = doJSON(t, f.handler, http.MethodGet, f.path("/expenses/weekly"), f.token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown kind expected 404, got %d", rec.Code)
	}
}

func TestDeleteStockDropsRecipeLines(t *testing.T) {
	f := newCafeFixture(t)

	rec := doJSON(t, f.handler, http.MethodDelete, f.path("/stock/"+f.milk), f.token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, f.handler, http.MethodGet, f.path("/menu/"+f.latte+"/recipe"), f.token, nil)
	var body struct {
		Lines []any `json:"lines"`
	}
	decodeInto(t, rec, &body)
	if len(body.Lines) != 0 {
		t.Fatalf("expected recipe lines removed with the stock item, got %d", len(body.Lines))
	}
}

func TestUploadMenuImage(t *testing.T) {
	f := newCafeFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="latte.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write([]byte("\x89PNG fake"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPut, f.path("/menu/"+f.latte+"/image"), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Item struct {
			ImageURL string `json:"image_url"`
		} `json:"item"`
	}
	decodeInto(t, rec, &body)
	if !strings.HasPrefix(body.Item.ImageURL, "http://images.test/") || !strings.HasSuffix(body.Item.ImageURL, ".png") {
		t.Fatalf("unexpected image url %q", body.Item.ImageURL)
	}

	rec = doJSON(t, f.handler, http.MethodDelete, f.path("/menu/"+f.latte+"/image"), f.token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete image expected 204, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestUnitCostPreview(t *testing.T) {
	f := newCafeFixture(t)

	rec := doJSON(t, f.handler, http.MethodGet, f.path(fmt.Sprintf("/menu/%s/cost", f.latte)), f.token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body struct {
		Cost struct {
			Total string `json:"total"`
		} `json:"cost"`
	}
	decodeInto(t, rec, &body)
	if body.Cost.Total != "0.6" {
		t.Fatalf("expected unit cost 0.6, got %q", body.Cost.Total)
	}
}
