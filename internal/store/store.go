package store

import (
	"context"
	"errors"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"cafeledger/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
)

// Queries is the data access surface. Every café-scoped read and write filters
// by café id, so a row belonging to another café is reported as ErrNotFound.
type Queries interface {
	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)

	CreateCafe(ctx context.Context, cafe domain.Cafe) (*domain.Cafe, error)
	GetCafe(ctx context.Context, id string) (*domain.Cafe, error)
	UpdateCafe(ctx context.Context, cafe domain.Cafe) (*domain.Cafe, error)
	DeleteCafe(ctx context.Context, id string) error
	ListCafesForUser(ctx context.Context, userID string) ([]domain.Cafe, error)
	UpsertCafeRole(ctx context.Context, role domain.CafeRole) error
	GetCafeRole(ctx context.Context, cafeID string, userID string) (domain.Role, error)
	ListCafeMembers(ctx context.Context, cafeID string) ([]domain.CafeMember, error)
	DeleteCafeRole(ctx context.Context, cafeID string, userID string) error

	CreateStockItem(ctx context.Context, item domain.StockItem) (*domain.StockItem, error)
	GetStockItem(ctx context.Context, cafeID string, id string) (*domain.StockItem, error)
	ListStockItems(ctx context.Context, cafeID string) ([]domain.StockItem, error)
	UpdateStockItem(ctx context.Context, item domain.StockItem) (*domain.StockItem, error)
	DeleteStockItem(ctx context.Context, cafeID string, id string) error
	// AdjustStockQuantity adds delta to the current quantity in one atomic
	// update. When allowNegative is false and the result would drop below
	// zero it fails with ErrInsufficientStock and changes nothing.
	AdjustStockQuantity(ctx context.Context, cafeID string, id string, delta decimal.Decimal, allowNegative bool) (decimal.Decimal, error)
	AppendStockCost(ctx context.Context, cost domain.StockCost) (*domain.StockCost, error)
	ListStockCostHistory(ctx context.Context, stockItemID string) ([]domain.StockCost, error)
	StockCostAsOf(ctx context.Context, stockItemID string, asOf time.Time) (mo.Option[domain.StockCost], error)
	AppendStockTransaction(ctx context.Context, tx domain.StockTransaction) error
	ListStockTransactions(ctx context.Context, cafeID string, stockItemID string, limit int) ([]domain.StockTransaction, error)
	SumStockTransactions(ctx context.Context, stockItemID string) (decimal.Decimal, error)

	CreateCategory(ctx context.Context, category domain.MenuCategory) (*domain.MenuCategory, error)
	GetCategory(ctx context.Context, cafeID string, id string) (*domain.MenuCategory, error)
	ListCategories(ctx context.Context, cafeID string) ([]domain.MenuCategory, error)
	UpdateCategory(ctx context.Context, category domain.MenuCategory) (*domain.MenuCategory, error)
	DeleteCategory(ctx context.Context, cafeID string, id string) error

	CreateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error)
	GetMenuItem(ctx context.Context, cafeID string, id string) (*domain.MenuItem, error)
	ListMenuItems(ctx context.Context, cafeID string) ([]domain.MenuItem, error)
	UpdateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error)
	DeleteMenuItem(ctx context.Context, cafeID string, id string) error
	AppendMenuPrice(ctx context.Context, price domain.MenuPrice) (*domain.MenuPrice, error)
	ListMenuPriceHistory(ctx context.Context, menuItemID string) ([]domain.MenuPrice, error)
	MenuPriceAsOf(ctx context.Context, menuItemID string, asOf time.Time) (mo.Option[domain.MenuPrice], error)
	AddRecipeLine(ctx context.Context, line domain.RecipeLine) (*domain.RecipeLine, error)
	ListRecipe(ctx context.Context, menuItemID string) ([]domain.RecipeLineDetail, error)
	DeleteRecipeLine(ctx context.Context, menuItemID string, lineID string) error
	CreateMenuWaste(ctx context.Context, waste domain.MenuWaste) (*domain.MenuWaste, error)
	ListMenuWaste(ctx context.Context, cafeID string, limit int) ([]domain.MenuWaste, error)

	CreateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error)
	GetStaff(ctx context.Context, cafeID string, id string) (*domain.Staff, error)
	ListStaff(ctx context.Context, cafeID string) ([]domain.Staff, error)
	UpdateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error)
	DeleteStaff(ctx context.Context, cafeID string, id string) error
	AppendStaffSalary(ctx context.Context, salary domain.StaffSalary) (*domain.StaffSalary, error)
	ListStaffSalaryHistory(ctx context.Context, staffID string) ([]domain.StaffSalary, error)
	// ListCafeSalaryHistories returns every salary row of the café's staff
	// keyed by staff id.
	ListCafeSalaryHistories(ctx context.Context, cafeID string) (map[string][]domain.StaffSalary, error)

	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, cafeID string, id string) (*domain.Order, error)
	ListOrders(ctx context.Context, cafeID string, from time.Time, to time.Time) ([]domain.Order, error)
	DeleteOrder(ctx context.Context, cafeID string, id string) error
	// ListSaleLines returns the items of orders with from <= timestamp < to.
	ListSaleLines(ctx context.Context, cafeID string, from time.Time, to time.Time) ([]domain.SaleLine, error)

	CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	GetExpense(ctx context.Context, cafeID string, kind domain.ExpenseKind, id string) (*domain.Expense, error)
	UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error)
	DeleteExpense(ctx context.Context, cafeID string, kind domain.ExpenseKind, id string) error
	// ListExpenses returns expenses of one kind dated from <= date < to.
	ListExpenses(ctx context.Context, cafeID string, kind domain.ExpenseKind, from time.Time, to time.Time) ([]domain.Expense, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, cafeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

// Repository adds transactional execution on top of Queries. Writes made
// through the Queries handed to fn are committed together when fn returns
// nil and discarded otherwise.
type Repository interface {
	Queries
	Atomic(ctx context.Context, fn func(q Queries) error) error
	Close() error
}
