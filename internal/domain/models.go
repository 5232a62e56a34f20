package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleServer  Role = "server"
)

// Rank orders roles so that a higher rank satisfies every lower requirement.
// Unknown roles rank 0 and satisfy nothing.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleManager:
		return 2
	case RoleServer:
		return 1
	default:
		return 0
	}
}

func (r Role) Valid() bool {
	return r.Rank() > 0
}

func (r Role) Satisfies(minimum Role) bool {
	return r.Valid() && r.Rank() >= minimum.Rank()
}

type Actor struct {
	UserID  string
	Email   string
	IsAdmin bool
}

// User is the persistence model for login credentials.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	ExpiresAt   string `json:"expires_at"`
}

type UserProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

type Cafe struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	CurrencySymbol string    `json:"currency_symbol"`
	OwnerID        string    `json:"owner_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CafeCreateRequest struct {
	Name           string `json:"name"`
	Address        string `json:"address"`
	CurrencySymbol string `json:"currency_symbol"`
}

type CafeUpdateRequest struct {
	Name           *string `json:"name,omitempty"`
	Address        *string `json:"address,omitempty"`
	CurrencySymbol *string `json:"currency_symbol,omitempty"`
}

type CafeRole struct {
	UserID    string    `json:"user_id"`
	CafeID    string    `json:"cafe_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type CafeMember struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberAssignRequest struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

type StockItem struct {
	ID                string          `json:"id"`
	CafeID            string          `json:"cafe_id"`
	Name              string          `json:"name"`
	UnitOfMeasure     string          `json:"unit_of_measure"`
	CurrentQuantity   decimal.Decimal `json:"current_quantity"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// StockItemView is a stock item with its cost in effect on the view date.
type StockItemView struct {
	StockItem
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	LowStock    bool            `json:"low_stock"`
}

type StockItemCreateRequest struct {
	Name              string          `json:"name"`
	UnitOfMeasure     string          `json:"unit_of_measure"`
	CurrentQuantity   decimal.Decimal `json:"current_quantity"`
	LowStockThreshold decimal.Decimal `json:"low_stock_threshold"`
	CostPerUnit       decimal.Decimal `json:"cost_per_unit"`
}

type StockItemUpdateRequest struct {
	Name              *string          `json:"name,omitempty"`
	UnitOfMeasure     *string          `json:"unit_of_measure,omitempty"`
	LowStockThreshold *decimal.Decimal `json:"low_stock_threshold,omitempty"`
}

type StockCost struct {
	ID          string          `json:"id"`
	StockItemID string          `json:"stock_item_id"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	StartDate   time.Time       `json:"start_date"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (c StockCost) EffectiveFrom() time.Time { return c.StartDate }
func (c StockCost) RecordedAt() time.Time    { return c.CreatedAt }

type CostUpdateRequest struct {
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`
	StartDate   string          `json:"start_date,omitempty"`
}

type RestockRequest struct {
	Quantity    decimal.Decimal  `json:"quantity"`
	CostPerUnit *decimal.Decimal `json:"cost_per_unit,omitempty"`
	Notes       string           `json:"notes"`
}

type WasteRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
	Reason   string          `json:"reason"`
}

type StockLevel struct {
	StockItemID string          `json:"stock_item_id"`
	NewQuantity decimal.Decimal `json:"new_quantity"`
}

const (
	StockTxInitial       = "initial"
	StockTxRestock       = "restock"
	StockTxWaste         = "waste"
	StockTxUsage         = "usage"
	StockTxUsageReversal = "usage_reversal"
)

type StockTransaction struct {
	ID             string          `json:"id"`
	StockItemID    string          `json:"stock_item_id"`
	StockItemName  string          `json:"stock_item_name,omitempty"`
	QuantityChange decimal.Decimal `json:"quantity_change"`
	Type           string          `json:"transaction_type"`
	Notes          string          `json:"notes"`
	CreatedBy      string          `json:"created_by,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type StockReconciliation struct {
	StockItemID     string          `json:"stock_item_id"`
	CurrentQuantity decimal.Decimal `json:"current_quantity"`
	LedgerQuantity  decimal.Decimal `json:"ledger_quantity"`
	Drift           decimal.Decimal `json:"drift"`
	Balanced        bool            `json:"balanced"`
}

type MenuCategory struct {
	ID           string    `json:"id"`
	CafeID       string    `json:"cafe_id"`
	Name         string    `json:"name"`
	NameAR       string    `json:"name_ar,omitempty"`
	Icon         string    `json:"icon"`
	ColorFrom    string    `json:"color_from"`
	ColorTo      string    `json:"color_to"`
	BgLight      string    `json:"bg_light"`
	BorderColor  string    `json:"border_color"`
	DisplayOrder int       `json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type CategoryCreateRequest struct {
	Name         string `json:"name"`
	NameAR       string `json:"name_ar"`
	Icon         string `json:"icon"`
	ColorFrom    string `json:"color_from"`
	ColorTo      string `json:"color_to"`
	BgLight      string `json:"bg_light"`
	BorderColor  string `json:"border_color"`
	DisplayOrder int    `json:"display_order"`
}

type CategoryUpdateRequest struct {
	Name         *string `json:"name,omitempty"`
	NameAR       *string `json:"name_ar,omitempty"`
	Icon         *string `json:"icon,omitempty"`
	ColorFrom    *string `json:"color_from,omitempty"`
	ColorTo      *string `json:"color_to,omitempty"`
	BgLight      *string `json:"bg_light,omitempty"`
	BorderColor  *string `json:"border_color,omitempty"`
	DisplayOrder *int    `json:"display_order,omitempty"`
}

type MenuItem struct {
	ID         string    `json:"id"`
	CafeID     string    `json:"cafe_id"`
	CategoryID string    `json:"category_id,omitempty"`
	Name       string    `json:"name"`
	ImageURL   string    `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MenuItemView is a menu item with the sale price in effect on the view date.
type MenuItemView struct {
	MenuItem
	SalePrice decimal.Decimal `json:"sale_price"`
}

type MenuItemCreateRequest struct {
	Name       string          `json:"name"`
	CategoryID string          `json:"category_id"`
	ImageURL   string          `json:"image_url"`
	SalePrice  decimal.Decimal `json:"sale_price"`
}

type MenuItemUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	CategoryID *string `json:"category_id,omitempty"`
	ImageURL   *string `json:"image_url,omitempty"`
}

type MenuPrice struct {
	ID         string          `json:"id"`
	MenuItemID string          `json:"menu_item_id"`
	SalePrice  decimal.Decimal `json:"sale_price"`
	StartDate  time.Time       `json:"start_date"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (p MenuPrice) EffectiveFrom() time.Time { return p.StartDate }
func (p MenuPrice) RecordedAt() time.Time    { return p.CreatedAt }

type PriceUpdateRequest struct {
	SalePrice decimal.Decimal `json:"sale_price"`
	StartDate string          `json:"start_date,omitempty"`
}

type RecipeLine struct {
	ID           string          `json:"id"`
	MenuItemID   string          `json:"menu_item_id"`
	StockItemID  string          `json:"stock_item_id"`
	QuantityUsed decimal.Decimal `json:"quantity_used"`
	CreatedAt    time.Time       `json:"created_at"`
}

type RecipeLineDetail struct {
	RecipeLine
	StockItemName string `json:"stock_item_name"`
	UnitOfMeasure string `json:"unit_of_measure"`
}

type RecipeLineCreateRequest struct {
	StockItemID  string          `json:"stock_item_id"`
	QuantityUsed decimal.Decimal `json:"quantity_used"`
}

type CostLine struct {
	StockItemID  string          `json:"stock_item_id"`
	QuantityUsed decimal.Decimal `json:"quantity_used"`
	CostPerUnit  decimal.Decimal `json:"cost_per_unit"`
	LineCost     decimal.Decimal `json:"line_cost"`
	Priced       bool            `json:"priced"`
}

type CostBreakdown struct {
	MenuItemID string          `json:"menu_item_id"`
	AsOf       string          `json:"as_of"`
	Lines      []CostLine      `json:"lines"`
	Total      decimal.Decimal `json:"total"`
	Unpriced   []string        `json:"unpriced_stock_item_ids,omitempty"`
}

type MenuWaste struct {
	ID           string          `json:"id"`
	CafeID       string          `json:"cafe_id"`
	MenuItemID   string          `json:"menu_item_id"`
	MenuItemName string          `json:"menu_item_name,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Reason       string          `json:"reason"`
	CreatedBy    string          `json:"created_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type MenuWasteRequest struct {
	MenuItemID string          `json:"menu_item_id"`
	Quantity   decimal.Decimal `json:"quantity"`
	Reason     string          `json:"reason"`
}

type Staff struct {
	ID        string    `json:"id"`
	CafeID    string    `json:"cafe_id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StaffView carries the daily salary in effect on the view date; it is null
// for staff without any salary history.
type StaffView struct {
	Staff
	DailySalary decimal.NullDecimal `json:"daily_salary"`
}

type StaffCreateRequest struct {
	Name        string           `json:"name"`
	Role        string           `json:"role"`
	Email       string           `json:"email"`
	Phone       string           `json:"phone"`
	DailySalary *decimal.Decimal `json:"daily_salary,omitempty"`
}

type StaffUpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Role   *string `json:"role,omitempty"`
	Email  *string `json:"email,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Active *bool   `json:"is_active,omitempty"`
}

type StaffSalary struct {
	ID          string          `json:"id"`
	StaffID     string          `json:"staff_id"`
	DailySalary decimal.Decimal `json:"daily_salary"`
	StartDate   time.Time       `json:"start_date"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (s StaffSalary) EffectiveFrom() time.Time { return s.StartDate }
func (s StaffSalary) RecordedAt() time.Time    { return s.CreatedAt }

type SalaryUpdateRequest struct {
	DailySalary decimal.Decimal `json:"daily_salary"`
	StartDate   string          `json:"start_date,omitempty"`
}

type ExpenseKind string

const (
	ExpenseMonthly ExpenseKind = "monthly"
	ExpenseDaily   ExpenseKind = "daily"
)

// Expense is a flat cost record. For monthly expenses Date is the first day
// of the month.
type Expense struct {
	ID          string          `json:"id"`
	CafeID      string          `json:"cafe_id"`
	Kind        ExpenseKind     `json:"kind"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

type ExpenseCreateRequest struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type ExpenseUpdateRequest struct {
	Date        *string          `json:"date,omitempty"`
	Description *string          `json:"description,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
}

type Order struct {
	ID        string
	CafeID    string
	StaffID   string
	Timestamp time.Time
	CreatedAt time.Time
	Items     []OrderItem
}

// OrderItem prices are snapshots taken when the order was created.
type OrderItem struct {
	ID          string
	OrderID     string
	MenuItemID  string
	Quantity    int
	PriceAtSale decimal.Decimal
	CostAtSale  decimal.Decimal
	CreatedAt   time.Time
}

type OrderLineRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

type OrderCreateRequest struct {
	StaffID   string             `json:"staff_id"`
	Timestamp *time.Time         `json:"timestamp,omitempty"`
	Items     []OrderLineRequest `json:"items"`
}

type OrderReceiptLine struct {
	ID           string          `json:"id"`
	MenuItemID   string          `json:"menu_item_id"`
	MenuItemName string          `json:"menu_item_name"`
	Quantity     int             `json:"quantity"`
	PriceAtSale  decimal.Decimal `json:"price_at_sale"`
	CostAtSale   decimal.Decimal `json:"cost_at_sale"`
}

type OrderReceipt struct {
	ID           string             `json:"id"`
	CafeID       string             `json:"cafe_id"`
	StaffID      string             `json:"staff_id"`
	StaffName    string             `json:"staff_name"`
	Timestamp    time.Time          `json:"timestamp"`
	Items        []OrderReceiptLine `json:"items"`
	TotalRevenue decimal.Decimal    `json:"total_revenue"`
	TotalCost    decimal.Decimal    `json:"total_cost"`
}

// SaleLine is the reporting projection of an order item.
type SaleLine struct {
	OrderID     string
	Timestamp   time.Time
	Quantity    int
	PriceAtSale decimal.Decimal
	CostAtSale  decimal.Decimal
}

type DailyCosts struct {
	Salaries                decimal.Decimal `json:"salaries"`
	DailyExpenses           decimal.Decimal `json:"daily_expenses"`
	ProRatedMonthlyExpenses decimal.Decimal `json:"pro_rated_monthly_expenses"`
	TotalCosts              decimal.Decimal `json:"total_costs"`
}

type DailyReport struct {
	CafeID       string          `json:"cafe_id"`
	Date         string          `json:"date"`
	Orders       int             `json:"orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalCOGS    decimal.Decimal `json:"total_cogs"`
	GrossProfit  decimal.Decimal `json:"gross_profit"`
	Costs        DailyCosts      `json:"costs"`
	NetProfit    decimal.Decimal `json:"net_profit"`
}

type MonthlyCosts struct {
	Salaries        decimal.Decimal `json:"salaries"`
	MonthlyExpenses decimal.Decimal `json:"monthly_expenses"`
	DailyExpenses   decimal.Decimal `json:"daily_expenses"`
	TotalCosts      decimal.Decimal `json:"total_costs"`
}

type DailyBreakdownEntry struct {
	Date                    string          `json:"date"`
	Revenue                 decimal.Decimal `json:"revenue"`
	COGS                    decimal.Decimal `json:"cogs"`
	Salaries                decimal.Decimal `json:"salaries"`
	ProRatedMonthlyExpenses decimal.Decimal `json:"pro_rated_monthly_expenses"`
	DailyExpenses           decimal.Decimal `json:"daily_expenses"`
	NetProfit               decimal.Decimal `json:"profit"`
}

type MonthlyReport struct {
	CafeID                string                `json:"cafe_id"`
	Month                 string                `json:"month"`
	Orders                int                   `json:"orders"`
	TotalRevenue          decimal.Decimal       `json:"total_revenue"`
	TotalCOGS             decimal.Decimal       `json:"total_cogs"`
	GrossProfit           decimal.Decimal       `json:"gross_profit"`
	Costs                 MonthlyCosts          `json:"costs"`
	NetProfit             decimal.Decimal       `json:"net_profit"`
	IncludesDailyExpenses bool                  `json:"includes_daily_expenses"`
	DailyBreakdown        []DailyBreakdownEntry `json:"daily_reports"`
}

type AuditLog struct {
	ID          string    `json:"id"`
	CafeID      string    `json:"cafe_id"`
	ActorUserID string    `json:"actor_user_id"`
	ActorEmail  string    `json:"actor_email"`
	Action      string    `json:"action"`
	EntityType  string    `json:"entity_type"`
	EntityID    string    `json:"entity_id"`
	Detail      string    `json:"detail"`
	CreatedAt   time.Time `json:"created_at"`
}
