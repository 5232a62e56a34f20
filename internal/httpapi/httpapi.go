package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"cafeledger/backend/internal/blob"
	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/orders"
	"cafeledger/backend/internal/service"
	"cafeledger/backend/internal/store"
)

const (
	maxJSONBody  = 1 << 20
	maxImageBody = 8 << 20
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.withMiddleware)
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) { writeMethodNotAllowed(w) })
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", a.handleRegister)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)
			r.Get("/me", a.handleMe)
			r.Get("/cafes", a.handleListCafes)
			r.Post("/cafes", a.handleCreateCafe)

			r.Route("/cafes/{cafeID}", func(r chi.Router) {
				r.Get("/", a.handleGetCafe)
				r.Patch("/", a.handleUpdateCafe)
				r.Delete("/", a.handleDeleteCafe)

				r.Get("/members", a.handleListMembers)
				r.Post("/members", a.handleAssignMember)
				r.Delete("/members/{userID}", a.handleRemoveMember)
				r.Get("/audit-logs", a.handleAuditLogs)

				r.Get("/stock", a.handleListStock)
				r.Post("/stock", a.handleCreateStock)
				r.Get("/stock/history", a.handleCafeStockHistory)
				r.Route("/stock/{itemID}", func(r chi.Router) {
					r.Get("/", a.handleGetStock)
					r.Patch("/", a.handleUpdateStock)
					r.Delete("/", a.handleDeleteStock)
					r.Post("/costs", a.handleSetStockCost)
					r.Get("/costs", a.handleStockCostHistory)
					r.Post("/restock", a.handleRestock)
					r.Post("/waste", a.handleStockWaste)
					r.Get("/history", a.handleStockHistory)
					r.Get("/reconcile", a.handleReconcileStock)
				})

				r.Get("/categories", a.handleListCategories)
				r.Post("/categories", a.handleCreateCategory)
				r.Patch("/categories/{categoryID}", a.handleUpdateCategory)
				r.Delete("/categories/{categoryID}", a.handleDeleteCategory)

				r.Get("/menu", a.handleListMenu)
				r.Post("/menu", a.handleCreateMenuItem)
				r.Route("/menu/{menuItemID}", func(r chi.Router) {
					r.Get("/", a.handleGetMenuItem)
					r.Patch("/", a.handleUpdateMenuItem)
					r.Delete("/", a.handleDeleteMenuItem)
					r.Post("/prices", a.handleSetMenuPrice)
					r.Get("/prices", a.handleMenuPriceHistory)
					r.Get("/recipe", a.handleListRecipe)
					r.Post("/recipe", a.handleAddRecipeLine)
					r.Delete("/recipe/{lineID}", a.handleRemoveRecipeLine)
					r.Get("/cost", a.handleUnitCost)
					r.Put("/image", a.handleUploadMenuImage)
					r.Delete("/image", a.handleDeleteMenuImage)
				})
				r.Get("/menu-waste", a.handleListMenuWaste)
				r.Post("/menu-waste", a.handleRecordMenuWaste)

				r.Get("/staff", a.handleListStaff)
				r.Post("/staff", a.handleCreateStaff)
				r.Route("/staff/{staffID}", func(r chi.Router) {
					r.Get("/", a.handleGetStaff)
					r.Patch("/", a.handleUpdateStaff)
					r.Delete("/", a.handleDeleteStaff)
					r.Post("/salaries", a.handleSetSalary)
					r.Get("/salaries", a.handleSalaryHistory)
				})

				r.Get("/expenses/{kind}", a.handleListExpenses)
				r.Post("/expenses/{kind}", a.handleCreateExpense)
				r.Patch("/expenses/{kind}/{expenseID}", a.handleUpdateExpense)
				r.Delete("/expenses/{kind}/{expenseID}", a.handleDeleteExpense)

				r.Get("/orders", a.handleListOrders)
				r.Post("/orders", a.handleCreateOrder)
				r.Get("/orders/{orderID}", a.handleGetOrder)
				r.Delete("/orders/{orderID}", a.handleDeleteOrder)

				r.Get("/reports/daily", a.handleDailyReport)
				r.Get("/reports/monthly", a.handleMonthlyReport)
			})
		})
	})

	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many attempts"))
		return
	}
	var req domain.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := a.auth.Register(r.Context(), req)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if errors.Is(err, ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.service.CurrentUser(r.Context())
	respond(w, http.StatusOK, "user", user, err)
}

func (a *API) handleListCafes(w http.ResponseWriter, r *http.Request) {
	cafes, err := a.service.ListMyCafes(r.Context())
	respond(w, http.StatusOK, "cafes", cafes, err)
}

func (a *API) handleCreateCafe(w http.ResponseWriter, r *http.Request) {
	var req domain.CafeCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cafe, err := a.service.CreateCafe(r.Context(), req)
	respond(w, http.StatusCreated, "cafe", cafe, err)
}

func (a *API) handleGetCafe(w http.ResponseWriter, r *http.Request) {
	cafe, err := a.service.GetCafe(r.Context(), cafeID(r))
	respond(w, http.StatusOK, "cafe", cafe, err)
}

func (a *API) handleUpdateCafe(w http.ResponseWriter, r *http.Request) {
	var req domain.CafeUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cafe, err := a.service.UpdateCafe(r.Context(), cafeID(r), req)
	respond(w, http.StatusOK, "cafe", cafe, err)
}

func (a *API) handleDeleteCafe(w http.ResponseWriter, r *http.Request) {
	noContent(w, a.service.DeleteCafe(r.Context(), cafeID(r)))
}

func (a *API) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := a.service.ListMembers(r.Context(), cafeID(r))
	respond(w, http.StatusOK, "members", members, err)
}

func (a *API) handleAssignMember(w http.ResponseWriter, r *http.Request) {
	var req domain.MemberAssignRequest
	if !decodeBody(w, r, &req) {
		return
	}
	member, err := a.service.AssignMember(r.Context(), cafeID(r), req)
	respond(w, http.StatusOK, "member", member, err)
}

func (a *API) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	noContent(w, a.service.RemoveMember(r.Context(), cafeID(r), chi.URLParam(r, "userID")))
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	from, err := parseOptionalTime(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseOptionalTime(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), cafeID(r), from, to, limit)
	respond(w, http.StatusOK, "logs", logs, err)
}

func (a *API) handleListStock(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListStock(r.Context(), cafeID(r))
	respond(w, http.StatusOK, "items", items, err)
}

func (a *API) handleCreateStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockItemCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := a.service.CreateStock(r.Context(), cafeID(r), req)
	respond(w, http.StatusCreated, "item", item, err)
}

func (a *API) handleGetStock(w http.ResponseWriter, r *http.Request) {
	item, err := a.service.GetStock(r.Context(), cafeID(r), chi.URLParam(r, "itemID"))
	respond(w, http.StatusOK, "item", item, err)
}

func (a *API) handleUpdateStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockItemUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := a.service.UpdateStock(r.Context(), cafeID(r), chi.URLParam(r, "itemID"), req)
	respond(w, http.StatusOK, "item", item, err)
}

func (a *API) handleDeleteStock(w http.ResponseWriter, r *http.Request) {
	noContent(w, a.service.DeleteStock(r.Context(), cafeID(r), chi.URLParam(r, "itemID")))
}

func (a *API) handleSetStockCost(w http.ResponseWriter, r *http.Request) {
	var req domain.CostUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	cost, err := a.service.SetStockCost(r.Context(), cafeID(r), chi.URLParam(r, "itemID"), req)
	respond(w, http.StatusCreated, "cost", cost, err)
}

func (a *API) handleStockCostHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.service.StockCostHistory(r.Context(), cafeID(r), chi.URLParam(r, "itemID"))
	respond(w, http.StatusOK, "history", history, err)
}

func (a *API) handleRestock(w http.ResponseWriter, r *http.Request) {
	var req domain.RestockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	level, err := a.service.Restock(r.Context(), cafeID(r), chi.URLParam(r, "itemID"), req)
	respond(w, http.StatusOK, "stock", level, err)
}

func (a *API) handleStockWaste(w http.ResponseWriter, r *http.Request) {
	var req domain.WasteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	level, err := a.service.RecordWaste(r.Context(), cafeID(r), chi.URLParam(r, "itemID"), req)
	respond(w, http.StatusOK, "stock", level, err)
}

func (a *API) handleStockHistory(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	history, err := a.service.StockHistory(r.Context(), cafeID(r), chi.URLParam(r, "itemID"), limit)
	respond(w, http.StatusOK, "history", history, err)
}

func (a *API) handleCafeStockHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.service.CafeStockHistory(r.Context(), cafeID(r))
	respond(w, http.StatusOK, "history", history, err)
}

func (a *API) handleReconcileStock(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.ReconcileStock(r.Context(), cafeID(r), chi.URLParam(r, "itemID"))
	respond(w, http.StatusOK, "reconciliation", result, err)
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.ListCategories(r.Context(), cafeID(r))
	respond(w, http.StatusOK, "categories", categories, err)
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	category, err := a.service.CreateCategory(r.Context(), cafeID(r), req)
	respond(w, http.StatusCreated, "category", category, err)
}

func (a *API) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req domain.CategoryUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	category, err := a.service.UpdateCategory(r.Context(), cafeID(r), chi.URLParam(r, "categoryID"), req)
	respond(w, http.StatusOK, "category", category, err)
}

func (a *API) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	noContent(w, a.service.DeleteCategory(r.Context(), cafeID(r), chi.URLParam(r, "categoryID")))
}

func (a *API) handleListMenu(w http.ResponseWriter, r *http.Request) {
	items, err := a.service.ListMenu(r.Context(), cafeID(r))
	respond(w, http.StatusOK, "items", items, err)
}

func (a *API) handleCreateMenuItem(w http.ResponseWriter, r *http.Request) {
	var req domain.MenuItemCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := a.service.CreateMenuItem(r.Context(), cafeID(r), req)
	respond(w, http.StatusCreated, "item", item, err)
}

func (a *API) handleGetMenuItem(w http.ResponseWriter, r *http.Request) {
	item, err := a.service.GetMenuItem(r.Context(), cafeID(r), chi.URLParam(r, "menuItemID"))
	respond(w, http.StatusOK, "item", item, err)
}

func (a *API) handleUpdateMenuItem(w http.ResponseWriter, r *http.Request) {
	var req domain.MenuItemUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := a.service.UpdateMenuItem(r.Context(), cafeID(r), chi.URLParam(r, "menuItemID"), req)
	respond(w, http.StatusOK, "item", item, err)
}

func (a *API) handleDeleteMenuItem(w http.ResponseWriter, r *http.Request) {
	noContent(w, a.service.DeleteMenuItem(r.Context(), cafeID(r), chi.URLParam(r, "menuItemID")))
}

func (a *API) handleSetMenuPrice(w http.ResponseWriter, r *http.Request) {
	var req domain.PriceUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	price, err := a.service.SetMenuPrice(r.Context(), cafeID(r), chi.URLParam(r, "menuItemID"), req)
	respond(w, http.StatusCreated, "price", price, err)
}

func (a *API) handleMenuPriceHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.service.MenuPriceHistory(r.Context(), cafeID(r), chi.URLParam(r, "menuItemID"))
	respond(w, http.StatusOK, "history", history, err)
}

func (a *API) handleListRecipe(w http.ResponseWriter, r *http.Request) {
	lines, err := a.service.ListRecipe(r.Context(), cafeID(r), chi.URLParam(r, "menuItemID"))
	respond(w, http.StatusOK, "lines", lines, err)
}

func (a *API) handleAddRecipeLine(w http.ResponseWriter, r *http.Request) {
	var req domain.RecipeLineCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	line, err := a.service.AddRecipeLine(r.Context(), cafeID(r), chi.URLParam(r, "menuItemID"), req)
	respond(w, http.StatusCreated, "line", line, err)
}

func (a *API) handleRemoveRecipeLine(w http.ResponseWriter, r *http.Request) {
	noContent(w, a.service.RemoveRecipeLine(r.Context(), cafeID(r), chi.URLParam(r, "menuItemID"), chi.URLParam(r, "lineID")))
}

func (a *API) handleUnitCost(w http.ResponseWriter, r *http.Request) {
	cost, err := a.service.UnitCost(r.Context(), cafeID(r), chi.URLParam(r, "menuItemID"), r.URL.Query().Get("date"))
	respond(w, http.StatusOK, "cost", cost, err)
}

func (a *API) handleUploadMenuImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)
	if err := r.ParseMultipartForm(maxImageBody); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid multipart body: %w", err))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("image file field is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		writeError(w, http.StatusBadRequest, errors.New("file must be an image"))
		return
	}
	item, err := a.service.UploadMenuImage(r.Context(), cafeID(r), chi.URLParam(r, "menuItemID"), header.Filename, contentType, file)
	respond(w, http.StatusOK, "item", item, err)
}

func (a *API) handleDeleteMenuImage(w http.ResponseWriter, r *http.Request) {
	noContent(w, a.service.DeleteMenuImage(r.Context(), cafeID(r), chi.URLParam(r, "menuItemID")))
}

func (a *API) handleListMenuWaste(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	waste, err := a.service.ListMenuWaste(r.Context(), cafeID(r), limit)
	respond(w, http.StatusOK, "waste", waste, err)
}

func (a *API) handleRecordMenuWaste(w http.ResponseWriter, r *http.Request) {
	var req domain.MenuWasteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	waste, err := a.service.RecordMenuWaste(r.Context(), cafeID(r), req)
	respond(w, http.StatusCreated, "waste", waste, err)
}

func (a *API) handleListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := a.service.ListStaff(r.Context(), cafeID(r))
	respond(w, http.StatusOK, "staff", staff, err)
}

func (a *API) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	staff, err := a.service.CreateStaff(r.Context(), cafeID(r), req)
	respond(w, http.StatusCreated, "staff", staff, err)
}

func (a *API) handleGetStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := a.service.GetStaff(r.Context(), cafeID(r), chi.URLParam(r, "staffID"))
	respond(w, http.StatusOK, "staff", staff, err)
}

func (a *API) handleUpdateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	staff, err := a.service.UpdateStaff(r.Context(), cafeID(r), chi.URLParam(r, "staffID"), req)
	respond(w, http.StatusOK, "staff", staff, err)
}

func (a *API) handleDeleteStaff(w http.ResponseWriter, r *http.Request) {
	noContent(w, a.service.DeleteStaff(r.Context(), cafeID(r), chi.URLParam(r, "staffID")))
}

func (a *API) handleSetSalary(w http.ResponseWriter, r *http.Request) {
	var req domain.SalaryUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	salary, err := a.service.SetSalary(r.Context(), cafeID(r), chi.URLParam(r, "staffID"), req)
	respond(w, http.StatusCreated, "salary", salary, err)
}

func (a *API) handleSalaryHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.service.SalaryHistory(r.Context(), cafeID(r), chi.URLParam(r, "staffID"))
	respond(w, http.StatusOK, "history", history, err)
}

func expenseKind(r *http.Request) (domain.ExpenseKind, error) {
	kind := domain.ExpenseKind(strings.ToLower(chi.URLParam(r, "kind")))
	if kind != domain.ExpenseMonthly && kind != domain.ExpenseDaily {
		return "", fmt.Errorf("expense kind must be monthly or daily: %w", store.ErrNotFound)
	}
	return kind, nil
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	kind, err := expenseKind(r)
	if err != nil {
		fail(w, err)
		return
	}
	expenses, err := a.service.ListExpenses(r.Context(), cafeID(r), kind, r.URL.Query().Get("period"))
	respond(w, http.StatusOK, "expenses", expenses, err)
}

func (a *API) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	kind, err := expenseKind(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req domain.ExpenseCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	expense, err := a.service.CreateExpense(r.Context(), cafeID(r), kind, req)
	respond(w, http.StatusCreated, "expense", expense, err)
}

func (a *API) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	kind, err := expenseKind(r)
	if err != nil {
		fail(w, err)
		return
	}
	var req domain.ExpenseUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	expense, err := a.service.UpdateExpense(r.Context(), cafeID(r), kind, chi.URLParam(r, "expenseID"), req)
	respond(w, http.StatusOK, "expense", expense, err)
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	kind, err := expenseKind(r)
	if err != nil {
		fail(w, err)
		return
	}
	noContent(w, a.service.DeleteExpense(r.Context(), cafeID(r), kind, chi.URLParam(r, "expenseID")))
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := a.service.ListOrders(r.Context(), cafeID(r), r.URL.Query().Get("date"))
	respond(w, http.StatusOK, "orders", list, err)
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderCreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := a.service.CreateOrder(r.Context(), cafeID(r), req)
	respond(w, http.StatusCreated, "order", receipt, err)
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.service.GetOrder(r.Context(), cafeID(r), chi.URLParam(r, "orderID"))
	respond(w, http.StatusOK, "order", receipt, err)
}

func (a *API) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	noContent(w, a.service.DeleteOrder(r.Context(), cafeID(r), chi.URLParam(r, "orderID")))
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	report, err := a.service.DailyReport(r.Context(), cafeID(r), r.URL.Query().Get("date"))
	if err != nil {
		fail(w, err)
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"daily-report-%s.csv\"", report.Date))
		_, _ = w.Write([]byte(dailyReportToCSV(report)))
	case "html", "pdf":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(dailyReportToPrintableHTML(report)))
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.MonthlyReport(r.Context(), cafeID(r), r.URL.Query().Get("month"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func dailyReportToCSV(report domain.DailyReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,date,%s", report.Date),
		fmt.Sprintf("summary,cafe_id,%s", report.CafeID),
		fmt.Sprintf("summary,orders,%d", report.Orders),
		fmt.Sprintf("summary,total_revenue,%s", report.TotalRevenue.StringFixed(2)),
		fmt.Sprintf("summary,total_cogs,%s", report.TotalCOGS.StringFixed(2)),
		fmt.Sprintf("summary,gross_profit,%s", report.GrossProfit.StringFixed(2)),
		fmt.Sprintf("costs,salaries,%s", report.Costs.Salaries.StringFixed(2)),
		fmt.Sprintf("costs,daily_expenses,%s", report.Costs.DailyExpenses.StringFixed(2)),
		fmt.Sprintf("costs,pro_rated_monthly_expenses,%s", report.Costs.ProRatedMonthlyExpenses.StringFixed(2)),
		fmt.Sprintf("costs,total_costs,%s", report.Costs.TotalCosts.StringFixed(2)),
		fmt.Sprintf("summary,net_profit,%s", report.NetProfit.StringFixed(2)),
	}
	return strings.Join(lines, "\n") + "\n"
}

var dailyReportHTMLTmpl = template.Must(template.New("daily-report").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Daily Report {{.Date}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Daily Report {{.Date}}</h2>
  <p>Café: {{.CafeID}}</p>
  <p>Orders: {{.Orders}}</p>

  <h3>Sales</h3>
  <table>
    <tbody>
      <tr><td>Revenue</td><td class="num">{{.TotalRevenue.StringFixed 2}}</td></tr>
      <tr><td>Cost of goods sold</td><td class="num">{{.TotalCOGS.StringFixed 2}}</td></tr>
      <tr><td>Gross profit</td><td class="num">{{.GrossProfit.StringFixed 2}}</td></tr>
    </tbody>
  </table>

  <h3>Costs</h3>
  <table>
    <tbody>
      <tr><td>Salaries</td><td class="num">{{.Costs.Salaries.StringFixed 2}}</td></tr>
      <tr><td>Daily expenses</td><td class="num">{{.Costs.DailyExpenses.StringFixed 2}}</td></tr>
      <tr><td>Monthly expenses (pro-rated)</td><td class="num">{{.Costs.ProRatedMonthlyExpenses.StringFixed 2}}</td></tr>
      <tr><td>Total</td><td class="num">{{.Costs.TotalCosts.StringFixed 2}}</td></tr>
    </tbody>
  </table>

  <h3>Net profit: {{.NetProfit.StringFixed 2}}</h3>
</body>
</html>
`))

func dailyReportToPrintableHTML(report domain.DailyReport) string {
	var buf bytes.Buffer
	if err := dailyReportHTMLTmpl.Execute(&buf, report); err != nil {
		log.Printf("[httpapi] WARN: render daily report %s: %v", report.Date, err)
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}

func cafeID(r *http.Request) string {
	return chi.URLParam(r, "cafeID")
}

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, orders.ErrMissingPrice):
		return http.StatusUnprocessableEntity
	case errors.Is(err, blob.ErrUpstream):
		return http.StatusBadGateway
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func respond(w http.ResponseWriter, status int, key string, payload any, err error) {
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, status, map[string]any{key: payload})
}

func noContent(w http.ResponseWriter, err error) {
	if err != nil {
		fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody writes the 400 itself and reports whether the handler may go on.
func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := decodeJSON(r, dest); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
			return false
		}
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parseOptionalTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return time.Time{}, errors.New("time must be RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies carry a generic message; details go to the log only.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
		if status == http.StatusBadGateway {
			msg = "storage service unavailable"
		}
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
