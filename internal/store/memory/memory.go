package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/versioned"
	"cafeledger/backend/internal/xid"
)

type dataset struct {
	usersByID    map[string]domain.User
	cafesByID    map[string]domain.Cafe
	roles        map[string]map[string]domain.CafeRole
	stockItems   map[string]domain.StockItem
	stockCosts   map[string][]domain.StockCost
	stockTxs     []domain.StockTransaction
	categories   map[string]domain.MenuCategory
	menuItems    map[string]domain.MenuItem
	menuPrices   map[string][]domain.MenuPrice
	recipes      map[string][]domain.RecipeLine
	menuWaste    []domain.MenuWaste
	staffByID    map[string]domain.Staff
	salaries     map[string][]domain.StaffSalary
	ordersByID   map[string]domain.Order
	expensesByID map[string]domain.Expense
	auditLogs    []domain.AuditLog
}

func newDataset() *dataset {
	return &dataset{
		usersByID:    make(map[string]domain.User),
		cafesByID:    make(map[string]domain.Cafe),
		roles:        make(map[string]map[string]domain.CafeRole),
		stockItems:   make(map[string]domain.StockItem),
		stockCosts:   make(map[string][]domain.StockCost),
		categories:   make(map[string]domain.MenuCategory),
		menuItems:    make(map[string]domain.MenuItem),
		menuPrices:   make(map[string][]domain.MenuPrice),
		recipes:      make(map[string][]domain.RecipeLine),
		staffByID:    make(map[string]domain.Staff),
		salaries:     make(map[string][]domain.StaffSalary),
		ordersByID:   make(map[string]domain.Order),
		expensesByID: make(map[string]domain.Expense),
	}
}

func (d *dataset) clone() *dataset {
	roles := make(map[string]map[string]domain.CafeRole, len(d.roles))
	for cafeID, members := range d.roles {
		roles[cafeID] = maps.Clone(members)
	}
	orders := make(map[string]domain.Order, len(d.ordersByID))
	for id, order := range d.ordersByID {
		order.Items = slices.Clone(order.Items)
		orders[id] = order
	}
	return &dataset{
		usersByID:    maps.Clone(d.usersByID),
		cafesByID:    maps.Clone(d.cafesByID),
		roles:        roles,
		stockItems:   maps.Clone(d.stockItems),
		stockCosts:   cloneHistory(d.stockCosts),
		stockTxs:     slices.Clone(d.stockTxs),
		categories:   maps.Clone(d.categories),
		menuItems:    maps.Clone(d.menuItems),
		menuPrices:   cloneHistory(d.menuPrices),
		recipes:      cloneHistory(d.recipes),
		menuWaste:    slices.Clone(d.menuWaste),
		staffByID:    maps.Clone(d.staffByID),
		salaries:     cloneHistory(d.salaries),
		ordersByID:   orders,
		expensesByID: maps.Clone(d.expensesByID),
		auditLogs:    slices.Clone(d.auditLogs),
	}
}

func cloneHistory[T any](src map[string][]T) map[string][]T {
	out := make(map[string][]T, len(src))
	for k, v := range src {
		out[k] = slices.Clone(v)
	}
	return out
}

// Store keeps everything in process memory. Atomic runs its callback against
// a private copy of the data and swaps it in only when the callback succeeds.
type Store struct {
	mu   *sync.RWMutex
	data *dataset
	inTx bool
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{mu: &sync.RWMutex{}, data: newDataset()}
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Atomic(_ context.Context, fn func(q store.Queries) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Store{mu: s.mu, data: s.data.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.data = tx.data
	return nil
}

func (s *Store) read(fn func(d *dataset) error) error {
	if s.inTx {
		return fn(s.data)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

func (s *Store) write(fn func(d *dataset) error) error {
	if s.inTx {
		return fn(s.data)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	user.Email = normalizeEmail(user.Email)
	if user.Email == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		for _, existing := range d.usersByID {
			if existing.Email == user.Email {
				return store.ErrConflict
			}
		}
		if user.ID == "" {
			user.ID = xid.New("usr")
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = time.Now().UTC()
		}
		d.usersByID[user.ID] = user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	email = normalizeEmail(email)
	var found *domain.User
	err := s.read(func(d *dataset) error {
		for _, user := range d.usersByID {
			if user.Email == email {
				copyUser := user
				found = &copyUser
				return nil
			}
		}
		return store.ErrNotFound
	})
	return found, err
}

func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	var found *domain.User
	err := s.read(func(d *dataset) error {
		user, ok := d.usersByID[id]
		if !ok {
			return store.ErrNotFound
		}
		found = &user
		return nil
	})
	return found, err
}

func (s *Store) CreateCafe(_ context.Context, cafe domain.Cafe) (*domain.Cafe, error) {
	if strings.TrimSpace(cafe.Name) == "" || cafe.OwnerID == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		if _, ok := d.usersByID[cafe.OwnerID]; !ok {
			return store.ErrNotFound
		}
		if cafe.ID == "" {
			cafe.ID = xid.New("cafe")
		}
		now := time.Now().UTC()
		cafe.CreatedAt, cafe.UpdatedAt = now, now
		d.cafesByID[cafe.ID] = cafe
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cafe, nil
}

func (s *Store) GetCafe(_ context.Context, id string) (*domain.Cafe, error) {
	var found *domain.Cafe
	err := s.read(func(d *dataset) error {
		cafe, ok := d.cafesByID[id]
		if !ok {
			return store.ErrNotFound
		}
		found = &cafe
		return nil
	})
	return found, err
}

func (s *Store) UpdateCafe(_ context.Context, cafe domain.Cafe) (*domain.Cafe, error) {
	if strings.TrimSpace(cafe.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		existing, ok := d.cafesByID[cafe.ID]
		if !ok {
			return store.ErrNotFound
		}
		cafe.OwnerID = existing.OwnerID
		cafe.CreatedAt = existing.CreatedAt
		cafe.UpdatedAt = time.Now().UTC()
		d.cafesByID[cafe.ID] = cafe
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cafe, nil
}

// DeleteCafe removes the café and everything it owns.
func (s *Store) DeleteCafe(_ context.Context, id string) error {
	return s.write(func(d *dataset) error {
		if _, ok := d.cafesByID[id]; !ok {
			return store.ErrNotFound
		}
		delete(d.cafesByID, id)
		delete(d.roles, id)

		for itemID, item := range d.stockItems {
			if item.CafeID == id {
				delete(d.stockItems, itemID)
				delete(d.stockCosts, itemID)
			}
		}
		d.stockTxs = lo.Filter(d.stockTxs, func(tx domain.StockTransaction, _ int) bool {
			_, ok := d.stockItems[tx.StockItemID]
			return ok
		})
		for catID, cat := range d.categories {
			if cat.CafeID == id {
				delete(d.categories, catID)
			}
		}
		for menuID, item := range d.menuItems {
			if item.CafeID == id {
				delete(d.menuItems, menuID)
				delete(d.menuPrices, menuID)
				delete(d.recipes, menuID)
			}
		}
		d.menuWaste = lo.Reject(d.menuWaste, func(w domain.MenuWaste, _ int) bool { return w.CafeID == id })
		for staffID, staff := range d.staffByID {
			if staff.CafeID == id {
				delete(d.staffByID, staffID)
				delete(d.salaries, staffID)
			}
		}
		for orderID, order := range d.ordersByID {
			if order.CafeID == id {
				delete(d.ordersByID, orderID)
			}
		}
		for expenseID, expense := range d.expensesByID {
			if expense.CafeID == id {
				delete(d.expensesByID, expenseID)
			}
		}
		d.auditLogs = lo.Reject(d.auditLogs, func(a domain.AuditLog, _ int) bool { return a.CafeID == id })
		return nil
	})
}

func (s *Store) ListCafesForUser(_ context.Context, userID string) ([]domain.Cafe, error) {
	result := make([]domain.Cafe, 0, 4)
	err := s.read(func(d *dataset) error {
		for cafeID, members := range d.roles {
			if _, ok := members[userID]; !ok {
				continue
			}
			if cafe, ok := d.cafesByID[cafeID]; ok {
				result = append(result, cafe)
			}
		}
		return nil
	})
	slices.SortFunc(result, func(a, b domain.Cafe) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return result, err
}

func (s *Store) UpsertCafeRole(_ context.Context, role domain.CafeRole) error {
	if !role.Role.Valid() {
		return store.ErrInvalidInput
	}
	return s.write(func(d *dataset) error {
		if _, ok := d.cafesByID[role.CafeID]; !ok {
			return store.ErrNotFound
		}
		if _, ok := d.usersByID[role.UserID]; !ok {
			return store.ErrNotFound
		}
		members := d.roles[role.CafeID]
		if members == nil {
			members = make(map[string]domain.CafeRole)
			d.roles[role.CafeID] = members
		}
		if existing, ok := members[role.UserID]; ok {
			role.CreatedAt = existing.CreatedAt
		} else if role.CreatedAt.IsZero() {
			role.CreatedAt = time.Now().UTC()
		}
		members[role.UserID] = role
		return nil
	})
}

func (s *Store) GetCafeRole(_ context.Context, cafeID string, userID string) (domain.Role, error) {
	var role domain.Role
	err := s.read(func(d *dataset) error {
		entry, ok := d.roles[cafeID][userID]
		if !ok {
			return store.ErrNotFound
		}
		role = entry.Role
		return nil
	})
	return role, err
}

func (s *Store) ListCafeMembers(_ context.Context, cafeID string) ([]domain.CafeMember, error) {
	result := make([]domain.CafeMember, 0, 8)
	err := s.read(func(d *dataset) error {
		for userID, entry := range d.roles[cafeID] {
			user := d.usersByID[userID]
			result = append(result, domain.CafeMember{
				UserID:    userID,
				Email:     user.Email,
				Role:      entry.Role,
				CreatedAt: entry.CreatedAt,
			})
		}
		return nil
	})
	slices.SortFunc(result, func(a, b domain.CafeMember) int {
		return cmp.Or(cmp.Compare(b.Role.Rank(), a.Role.Rank()), cmp.Compare(a.Email, b.Email))
	})
	return result, err
}

func (s *Store) DeleteCafeRole(_ context.Context, cafeID string, userID string) error {
	return s.write(func(d *dataset) error {
		if _, ok := d.roles[cafeID][userID]; !ok {
			return store.ErrNotFound
		}
		delete(d.roles[cafeID], userID)
		return nil
	})
}

func (s *Store) CreateStockItem(_ context.Context, item domain.StockItem) (*domain.StockItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		if _, ok := d.cafesByID[item.CafeID]; !ok {
			return store.ErrNotFound
		}
		if stockNameTaken(d, item.CafeID, item.Name, "") {
			return store.ErrConflict
		}
		if item.ID == "" {
			item.ID = xid.New("stk")
		}
		now := time.Now().UTC()
		item.CreatedAt, item.UpdatedAt = now, now
		d.stockItems[item.ID] = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetStockItem(_ context.Context, cafeID string, id string) (*domain.StockItem, error) {
	var found *domain.StockItem
	err := s.read(func(d *dataset) error {
		item, ok := d.stockItems[id]
		if !ok || item.CafeID != cafeID {
			return store.ErrNotFound
		}
		found = &item
		return nil
	})
	return found, err
}

func (s *Store) ListStockItems(_ context.Context, cafeID string) ([]domain.StockItem, error) {
	var result []domain.StockItem
	err := s.read(func(d *dataset) error {
		result = lo.Filter(lo.Values(d.stockItems), func(item domain.StockItem, _ int) bool {
			return item.CafeID == cafeID
		})
		return nil
	})
	slices.SortFunc(result, func(a, b domain.StockItem) int { return cmp.Compare(a.Name, b.Name) })
	return result, err
}

func (s *Store) UpdateStockItem(_ context.Context, item domain.StockItem) (*domain.StockItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		existing, ok := d.stockItems[item.ID]
		if !ok || existing.CafeID != item.CafeID {
			return store.ErrNotFound
		}
		if stockNameTaken(d, item.CafeID, item.Name, item.ID) {
			return store.ErrConflict
		}
		existing.Name = item.Name
		existing.UnitOfMeasure = item.UnitOfMeasure
		existing.LowStockThreshold = item.LowStockThreshold
		existing.UpdatedAt = time.Now().UTC()
		d.stockItems[item.ID] = existing
		item = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) DeleteStockItem(_ context.Context, cafeID string, id string) error {
	return s.write(func(d *dataset) error {
		item, ok := d.stockItems[id]
		if !ok || item.CafeID != cafeID {
			return store.ErrNotFound
		}
		delete(d.stockItems, id)
		delete(d.stockCosts, id)
		d.stockTxs = lo.Reject(d.stockTxs, func(tx domain.StockTransaction, _ int) bool { return tx.StockItemID == id })
		for menuID, lines := range d.recipes {
			d.recipes[menuID] = lo.Reject(lines, func(l domain.RecipeLine, _ int) bool { return l.StockItemID == id })
		}
		return nil
	})
}

func (s *Store) AdjustStockQuantity(_ context.Context, cafeID string, id string, delta decimal.Decimal, allowNegative bool) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := s.write(func(d *dataset) error {
		item, ok := d.stockItems[id]
		if !ok || item.CafeID != cafeID {
			return store.ErrNotFound
		}
		next := item.CurrentQuantity.Add(delta)
		if !allowNegative && next.IsNegative() {
			return store.ErrInsufficientStock
		}
		item.CurrentQuantity = next
		item.UpdatedAt = time.Now().UTC()
		d.stockItems[id] = item
		qty = next
		return nil
	})
	return qty, err
}

func (s *Store) AppendStockCost(_ context.Context, cost domain.StockCost) (*domain.StockCost, error) {
	if cost.CostPerUnit.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		if _, ok := d.stockItems[cost.StockItemID]; !ok {
			return store.ErrNotFound
		}
		if cost.ID == "" {
			cost.ID = xid.New("cost")
		}
		if cost.CreatedAt.IsZero() {
			cost.CreatedAt = time.Now().UTC()
		}
		cost.StartDate = versioned.CalendarDate(cost.StartDate)
		d.stockCosts[cost.StockItemID] = append(d.stockCosts[cost.StockItemID], cost)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cost, nil
}

func (s *Store) ListStockCostHistory(_ context.Context, stockItemID string) ([]domain.StockCost, error) {
	var result []domain.StockCost
	err := s.read(func(d *dataset) error {
		result = newestFirst(d.stockCosts[stockItemID])
		return nil
	})
	return result, err
}

func (s *Store) StockCostAsOf(_ context.Context, stockItemID string, asOf time.Time) (mo.Option[domain.StockCost], error) {
	var found mo.Option[domain.StockCost]
	err := s.read(func(d *dataset) error {
		found = versioned.Resolve(d.stockCosts[stockItemID], asOf)
		return nil
	})
	return found, err
}

func (s *Store) AppendStockTransaction(_ context.Context, tx domain.StockTransaction) error {
	return s.write(func(d *dataset) error {
		if _, ok := d.stockItems[tx.StockItemID]; !ok {
			return store.ErrNotFound
		}
		if tx.ID == "" {
			tx.ID = xid.New("stx")
		}
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = time.Now().UTC()
		}
		d.stockTxs = append(d.stockTxs, tx)
		return nil
	})
}

func (s *Store) ListStockTransactions(_ context.Context, cafeID string, stockItemID string, limit int) ([]domain.StockTransaction, error) {
	result := make([]domain.StockTransaction, 0, 32)
	err := s.read(func(d *dataset) error {
		for _, tx := range d.stockTxs {
			item, ok := d.stockItems[tx.StockItemID]
			if !ok || item.CafeID != cafeID {
				continue
			}
			if stockItemID != "" && tx.StockItemID != stockItemID {
				continue
			}
			tx.StockItemName = item.Name
			result = append(result, tx)
		}
		return nil
	})
	slices.SortFunc(result, func(a, b domain.StockTransaction) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, err
}

func (s *Store) SumStockTransactions(_ context.Context, stockItemID string) (decimal.Decimal, error) {
	total := decimal.Zero
	err := s.read(func(d *dataset) error {
		for _, tx := range d.stockTxs {
			if tx.StockItemID == stockItemID {
				total = total.Add(tx.QuantityChange)
			}
		}
		return nil
	})
	return total, err
}

func (s *Store) CreateCategory(_ context.Context, category domain.MenuCategory) (*domain.MenuCategory, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		if _, ok := d.cafesByID[category.CafeID]; !ok {
			return store.ErrNotFound
		}
		if categoryNameTaken(d, category.CafeID, category.Name, "") {
			return store.ErrConflict
		}
		if category.ID == "" {
			category.ID = xid.New("cat")
		}
		now := time.Now().UTC()
		category.CreatedAt, category.UpdatedAt = now, now
		d.categories[category.ID] = category
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *Store) GetCategory(_ context.Context, cafeID string, id string) (*domain.MenuCategory, error) {
	var found *domain.MenuCategory
	err := s.read(func(d *dataset) error {
		category, ok := d.categories[id]
		if !ok || category.CafeID != cafeID {
			return store.ErrNotFound
		}
		found = &category
		return nil
	})
	return found, err
}

func (s *Store) ListCategories(_ context.Context, cafeID string) ([]domain.MenuCategory, error) {
	var result []domain.MenuCategory
	err := s.read(func(d *dataset) error {
		result = lo.Filter(lo.Values(d.categories), func(c domain.MenuCategory, _ int) bool {
			return c.CafeID == cafeID
		})
		return nil
	})
	slices.SortFunc(result, func(a, b domain.MenuCategory) int {
		return cmp.Or(cmp.Compare(a.DisplayOrder, b.DisplayOrder), cmp.Compare(a.Name, b.Name))
	})
	return result, err
}

func (s *Store) UpdateCategory(_ context.Context, category domain.MenuCategory) (*domain.MenuCategory, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		existing, ok := d.categories[category.ID]
		if !ok || existing.CafeID != category.CafeID {
			return store.ErrNotFound
		}
		if categoryNameTaken(d, category.CafeID, category.Name, category.ID) {
			return store.ErrConflict
		}
		category.CreatedAt = existing.CreatedAt
		category.UpdatedAt = time.Now().UTC()
		d.categories[category.ID] = category
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &category, nil
}

// DeleteCategory detaches the category's menu items before removing it.
func (s *Store) DeleteCategory(_ context.Context, cafeID string, id string) error {
	return s.write(func(d *dataset) error {
		category, ok := d.categories[id]
		if !ok || category.CafeID != cafeID {
			return store.ErrNotFound
		}
		for menuID, item := range d.menuItems {
			if item.CategoryID == id {
				item.CategoryID = ""
				d.menuItems[menuID] = item
			}
		}
		delete(d.categories, id)
		return nil
	})
}

func (s *Store) CreateMenuItem(_ context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		if _, ok := d.cafesByID[item.CafeID]; !ok {
			return store.ErrNotFound
		}
		if err := checkCategory(d, item.CafeID, item.CategoryID); err != nil {
			return err
		}
		if menuNameTaken(d, item.CafeID, item.Name, "") {
			return store.ErrConflict
		}
		if item.ID == "" {
			item.ID = xid.New("menu")
		}
		now := time.Now().UTC()
		item.CreatedAt, item.UpdatedAt = now, now
		d.menuItems[item.ID] = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetMenuItem(_ context.Context, cafeID string, id string) (*domain.MenuItem, error) {
	var found *domain.MenuItem
	err := s.read(func(d *dataset) error {
		item, ok := d.menuItems[id]
		if !ok || item.CafeID != cafeID {
			return store.ErrNotFound
		}
		found = &item
		return nil
	})
	return found, err
}

func (s *Store) ListMenuItems(_ context.Context, cafeID string) ([]domain.MenuItem, error) {
	var result []domain.MenuItem
	err := s.read(func(d *dataset) error {
		result = lo.Filter(lo.Values(d.menuItems), func(item domain.MenuItem, _ int) bool {
			return item.CafeID == cafeID
		})
		return nil
	})
	slices.SortFunc(result, func(a, b domain.MenuItem) int { return cmp.Compare(a.Name, b.Name) })
	return result, err
}

func (s *Store) UpdateMenuItem(_ context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		existing, ok := d.menuItems[item.ID]
		if !ok || existing.CafeID != item.CafeID {
			return store.ErrNotFound
		}
		if err := checkCategory(d, item.CafeID, item.CategoryID); err != nil {
			return err
		}
		if menuNameTaken(d, item.CafeID, item.Name, item.ID) {
			return store.ErrConflict
		}
		item.CreatedAt = existing.CreatedAt
		item.UpdatedAt = time.Now().UTC()
		d.menuItems[item.ID] = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) DeleteMenuItem(_ context.Context, cafeID string, id string) error {
	return s.write(func(d *dataset) error {
		item, ok := d.menuItems[id]
		if !ok || item.CafeID != cafeID {
			return store.ErrNotFound
		}
		for _, order := range d.ordersByID {
			if lo.ContainsBy(order.Items, func(oi domain.OrderItem) bool { return oi.MenuItemID == id }) {
				return store.ErrConflict
			}
		}
		delete(d.menuItems, id)
		delete(d.menuPrices, id)
		delete(d.recipes, id)
		d.menuWaste = lo.Reject(d.menuWaste, func(w domain.MenuWaste, _ int) bool { return w.MenuItemID == id })
		return nil
	})
}

func (s *Store) AppendMenuPrice(_ context.Context, price domain.MenuPrice) (*domain.MenuPrice, error) {
	if price.SalePrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		if _, ok := d.menuItems[price.MenuItemID]; !ok {
			return store.ErrNotFound
		}
		if price.ID == "" {
			price.ID = xid.New("price")
		}
		if price.CreatedAt.IsZero() {
			price.CreatedAt = time.Now().UTC()
		}
		price.StartDate = versioned.CalendarDate(price.StartDate)
		d.menuPrices[price.MenuItemID] = append(d.menuPrices[price.MenuItemID], price)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &price, nil
}

func (s *Store) ListMenuPriceHistory(_ context.Context, menuItemID string) ([]domain.MenuPrice, error) {
	var result []domain.MenuPrice
	err := s.read(func(d *dataset) error {
		result = newestFirst(d.menuPrices[menuItemID])
		return nil
	})
	return result, err
}

func (s *Store) MenuPriceAsOf(_ context.Context, menuItemID string, asOf time.Time) (mo.Option[domain.MenuPrice], error) {
	var found mo.Option[domain.MenuPrice]
	err := s.read(func(d *dataset) error {
		found = versioned.Resolve(d.menuPrices[menuItemID], asOf)
		return nil
	})
	return found, err
}

func (s *Store) AddRecipeLine(_ context.Context, line domain.RecipeLine) (*domain.RecipeLine, error) {
	if !line.QuantityUsed.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		menu, ok := d.menuItems[line.MenuItemID]
		if !ok {
			return store.ErrNotFound
		}
		stock, ok := d.stockItems[line.StockItemID]
		if !ok || stock.CafeID != menu.CafeID {
			return store.ErrNotFound
		}
		if line.ID == "" {
			line.ID = xid.New("rcp")
		}
		line.CreatedAt = time.Now().UTC()
		d.recipes[line.MenuItemID] = append(d.recipes[line.MenuItemID], line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (s *Store) ListRecipe(_ context.Context, menuItemID string) ([]domain.RecipeLineDetail, error) {
	var result []domain.RecipeLineDetail
	err := s.read(func(d *dataset) error {
		result = lo.Map(d.recipes[menuItemID], func(line domain.RecipeLine, _ int) domain.RecipeLineDetail {
			stock := d.stockItems[line.StockItemID]
			return domain.RecipeLineDetail{
				RecipeLine:    line,
				StockItemName: stock.Name,
				UnitOfMeasure: stock.UnitOfMeasure,
			}
		})
		return nil
	})
	return result, err
}

func (s *Store) DeleteRecipeLine(_ context.Context, menuItemID string, lineID string) error {
	return s.write(func(d *dataset) error {
		lines := d.recipes[menuItemID]
		idx := slices.IndexFunc(lines, func(l domain.RecipeLine) bool { return l.ID == lineID })
		if idx < 0 {
			return store.ErrNotFound
		}
		d.recipes[menuItemID] = slices.Delete(slices.Clone(lines), idx, idx+1)
		return nil
	})
}

func (s *Store) CreateMenuWaste(_ context.Context, waste domain.MenuWaste) (*domain.MenuWaste, error) {
	err := s.write(func(d *dataset) error {
		item, ok := d.menuItems[waste.MenuItemID]
		if !ok || item.CafeID != waste.CafeID {
			return store.ErrNotFound
		}
		if waste.ID == "" {
			waste.ID = xid.New("mwst")
		}
		if waste.CreatedAt.IsZero() {
			waste.CreatedAt = time.Now().UTC()
		}
		d.menuWaste = append(d.menuWaste, waste)
		waste.MenuItemName = item.Name
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &waste, nil
}

func (s *Store) ListMenuWaste(_ context.Context, cafeID string, limit int) ([]domain.MenuWaste, error) {
	result := make([]domain.MenuWaste, 0, 16)
	err := s.read(func(d *dataset) error {
		for _, waste := range d.menuWaste {
			if waste.CafeID != cafeID {
				continue
			}
			waste.MenuItemName = d.menuItems[waste.MenuItemID].Name
			result = append(result, waste)
		}
		return nil
	})
	slices.SortFunc(result, func(a, b domain.MenuWaste) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, err
}

func (s *Store) CreateStaff(_ context.Context, staff domain.Staff) (*domain.Staff, error) {
	if strings.TrimSpace(staff.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		if _, ok := d.cafesByID[staff.CafeID]; !ok {
			return store.ErrNotFound
		}
		if staffEmailTaken(d, staff.CafeID, staff.Email, "") {
			return store.ErrConflict
		}
		if staff.ID == "" {
			staff.ID = xid.New("stf")
		}
		now := time.Now().UTC()
		staff.CreatedAt, staff.UpdatedAt = now, now
		d.staffByID[staff.ID] = staff
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &staff, nil
}

func (s *Store) GetStaff(_ context.Context, cafeID string, id string) (*domain.Staff, error) {
	var found *domain.Staff
	err := s.read(func(d *dataset) error {
		staff, ok := d.staffByID[id]
		if !ok || staff.CafeID != cafeID {
			return store.ErrNotFound
		}
		found = &staff
		return nil
	})
	return found, err
}

func (s *Store) ListStaff(_ context.Context, cafeID string) ([]domain.Staff, error) {
	var result []domain.Staff
	err := s.read(func(d *dataset) error {
		result = lo.Filter(lo.Values(d.staffByID), func(staff domain.Staff, _ int) bool {
			return staff.CafeID == cafeID
		})
		return nil
	})
	slices.SortFunc(result, func(a, b domain.Staff) int {
		return cmp.Or(cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return result, err
}

func (s *Store) UpdateStaff(_ context.Context, staff domain.Staff) (*domain.Staff, error) {
	if strings.TrimSpace(staff.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		existing, ok := d.staffByID[staff.ID]
		if !ok || existing.CafeID != staff.CafeID {
			return store.ErrNotFound
		}
		if staffEmailTaken(d, staff.CafeID, staff.Email, staff.ID) {
			return store.ErrConflict
		}
		staff.CreatedAt = existing.CreatedAt
		staff.UpdatedAt = time.Now().UTC()
		d.staffByID[staff.ID] = staff
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &staff, nil
}

func (s *Store) DeleteStaff(_ context.Context, cafeID string, id string) error {
	return s.write(func(d *dataset) error {
		staff, ok := d.staffByID[id]
		if !ok || staff.CafeID != cafeID {
			return store.ErrNotFound
		}
		for _, order := range d.ordersByID {
			if order.StaffID == id {
				return store.ErrConflict
			}
		}
		delete(d.staffByID, id)
		delete(d.salaries, id)
		return nil
	})
}

func (s *Store) AppendStaffSalary(_ context.Context, salary domain.StaffSalary) (*domain.StaffSalary, error) {
	if salary.DailySalary.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		if _, ok := d.staffByID[salary.StaffID]; !ok {
			return store.ErrNotFound
		}
		if salary.ID == "" {
			salary.ID = xid.New("sal")
		}
		if salary.CreatedAt.IsZero() {
			salary.CreatedAt = time.Now().UTC()
		}
		salary.StartDate = versioned.CalendarDate(salary.StartDate)
		d.salaries[salary.StaffID] = append(d.salaries[salary.StaffID], salary)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &salary, nil
}

func (s *Store) ListStaffSalaryHistory(_ context.Context, staffID string) ([]domain.StaffSalary, error) {
	var result []domain.StaffSalary
	err := s.read(func(d *dataset) error {
		result = newestFirst(d.salaries[staffID])
		return nil
	})
	return result, err
}

func (s *Store) ListCafeSalaryHistories(_ context.Context, cafeID string) (map[string][]domain.StaffSalary, error) {
	result := make(map[string][]domain.StaffSalary)
	err := s.read(func(d *dataset) error {
		for staffID, staff := range d.staffByID {
			if staff.CafeID != cafeID {
				continue
			}
			if rows := d.salaries[staffID]; len(rows) > 0 {
				result[staffID] = slices.Clone(rows)
			}
		}
		return nil
	})
	return result, err
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	err := s.write(func(d *dataset) error {
		staff, ok := d.staffByID[order.StaffID]
		if !ok || staff.CafeID != order.CafeID {
			return store.ErrNotFound
		}
		if order.ID == "" {
			order.ID = xid.New("ord")
		}
		now := time.Now().UTC()
		if order.CreatedAt.IsZero() {
			order.CreatedAt = now
		}
		items := make([]domain.OrderItem, 0, len(order.Items))
		for _, item := range order.Items {
			menu, ok := d.menuItems[item.MenuItemID]
			if !ok || menu.CafeID != order.CafeID {
				return store.ErrNotFound
			}
			if item.Quantity < 1 {
				return store.ErrInvalidInput
			}
			item.ID = xid.New("oi")
			item.OrderID = order.ID
			item.CreatedAt = now
			items = append(items, item)
		}
		order.Items = items
		d.ordersByID[order.ID] = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Store) GetOrder(_ context.Context, cafeID string, id string) (*domain.Order, error) {
	var found *domain.Order
	err := s.read(func(d *dataset) error {
		order, ok := d.ordersByID[id]
		if !ok || order.CafeID != cafeID {
			return store.ErrNotFound
		}
		order.Items = slices.Clone(order.Items)
		found = &order
		return nil
	})
	return found, err
}

func (s *Store) ListOrders(_ context.Context, cafeID string, from time.Time, to time.Time) ([]domain.Order, error) {
	result := make([]domain.Order, 0, 32)
	err := s.read(func(d *dataset) error {
		for _, order := range d.ordersByID {
			if order.CafeID != cafeID || !inRange(order.Timestamp, from, to) {
				continue
			}
			order.Items = slices.Clone(order.Items)
			result = append(result, order)
		}
		return nil
	})
	slices.SortFunc(result, func(a, b domain.Order) int {
		return cmp.Or(b.Timestamp.Compare(a.Timestamp), cmp.Compare(b.ID, a.ID))
	})
	return result, err
}

func (s *Store) DeleteOrder(_ context.Context, cafeID string, id string) error {
	return s.write(func(d *dataset) error {
		order, ok := d.ordersByID[id]
		if !ok || order.CafeID != cafeID {
			return store.ErrNotFound
		}
		delete(d.ordersByID, id)
		return nil
	})
}

func (s *Store) ListSaleLines(_ context.Context, cafeID string, from time.Time, to time.Time) ([]domain.SaleLine, error) {
	result := make([]domain.SaleLine, 0, 64)
	err := s.read(func(d *dataset) error {
		for _, order := range d.ordersByID {
			if order.CafeID != cafeID || !inRange(order.Timestamp, from, to) {
				continue
			}
			for _, item := range order.Items {
				result = append(result, domain.SaleLine{
					OrderID:     order.ID,
					Timestamp:   order.Timestamp,
					Quantity:    item.Quantity,
					PriceAtSale: item.PriceAtSale,
					CostAtSale:  item.CostAtSale,
				})
			}
		}
		return nil
	})
	slices.SortFunc(result, func(a, b domain.SaleLine) int {
		return cmp.Or(a.Timestamp.Compare(b.Timestamp), cmp.Compare(a.OrderID, b.OrderID))
	})
	return result, err
}

func (s *Store) CreateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	if err := validateExpense(expense); err != nil {
		return nil, err
	}
	err := s.write(func(d *dataset) error {
		if _, ok := d.cafesByID[expense.CafeID]; !ok {
			return store.ErrNotFound
		}
		if expense.ID == "" {
			expense.ID = xid.New("exp")
		}
		if expense.CreatedAt.IsZero() {
			expense.CreatedAt = time.Now().UTC()
		}
		d.expensesByID[expense.ID] = expense
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) GetExpense(_ context.Context, cafeID string, kind domain.ExpenseKind, id string) (*domain.Expense, error) {
	var found *domain.Expense
	err := s.read(func(d *dataset) error {
		expense, ok := d.expensesByID[id]
		if !ok || expense.CafeID != cafeID || expense.Kind != kind {
			return store.ErrNotFound
		}
		found = &expense
		return nil
	})
	return found, err
}

func (s *Store) UpdateExpense(_ context.Context, expense domain.Expense) (*domain.Expense, error) {
	if err := validateExpense(expense); err != nil {
		return nil, err
	}
	err := s.write(func(d *dataset) error {
		existing, ok := d.expensesByID[expense.ID]
		if !ok || existing.CafeID != expense.CafeID || existing.Kind != expense.Kind {
			return store.ErrNotFound
		}
		expense.CreatedAt = existing.CreatedAt
		d.expensesByID[expense.ID] = expense
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

func (s *Store) DeleteExpense(_ context.Context, cafeID string, kind domain.ExpenseKind, id string) error {
	return s.write(func(d *dataset) error {
		expense, ok := d.expensesByID[id]
		if !ok || expense.CafeID != cafeID || expense.Kind != kind {
			return store.ErrNotFound
		}
		delete(d.expensesByID, id)
		return nil
	})
}

func (s *Store) ListExpenses(_ context.Context, cafeID string, kind domain.ExpenseKind, from time.Time, to time.Time) ([]domain.Expense, error) {
	result := make([]domain.Expense, 0, 16)
	err := s.read(func(d *dataset) error {
		for _, expense := range d.expensesByID {
			if expense.CafeID != cafeID || expense.Kind != kind || !inRange(expense.Date, from, to) {
				continue
			}
			result = append(result, expense)
		}
		return nil
	})
	slices.SortFunc(result, func(a, b domain.Expense) int {
		return cmp.Or(b.Date.Compare(a.Date), cmp.Compare(b.ID, a.ID))
	})
	return result, err
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	return s.write(func(d *dataset) error {
		if entry.ID == "" {
			entry.ID = xid.New("audit")
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}
		d.auditLogs = append(d.auditLogs, entry)
		return nil
	})
}

func (s *Store) ListAuditLogs(_ context.Context, cafeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	result := make([]domain.AuditLog, 0, 64)
	err := s.read(func(d *dataset) error {
		for _, entry := range d.auditLogs {
			if entry.CafeID != cafeID || !inRange(entry.CreatedAt, from, to) {
				continue
			}
			result = append(result, entry)
		}
		return nil
	})
	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, err
}

// newestFirst orders a history the way the postgres store does:
// start_date DESC, created_at DESC, then reverse insertion.
func newestFirst[T versioned.Entry](rows []T) []T {
	out := slices.Clone(rows)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b T) int {
		return cmp.Or(b.EffectiveFrom().Compare(a.EffectiveFrom()), b.RecordedAt().Compare(a.RecordedAt()))
	})
	if out == nil {
		out = []T{}
	}
	return out
}

// inRange reports from <= t < to; a zero bound is open.
func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func stockNameTaken(d *dataset, cafeID, name, exceptID string) bool {
	for id, item := range d.stockItems {
		if id != exceptID && item.CafeID == cafeID && sameName(item.Name, name) {
			return true
		}
	}
	return false
}

func menuNameTaken(d *dataset, cafeID, name, exceptID string) bool {
	for id, item := range d.menuItems {
		if id != exceptID && item.CafeID == cafeID && sameName(item.Name, name) {
			return true
		}
	}
	return false
}

func categoryNameTaken(d *dataset, cafeID, name, exceptID string) bool {
	for id, category := range d.categories {
		if id != exceptID && category.CafeID == cafeID && sameName(category.Name, name) {
			return true
		}
	}
	return false
}

func staffEmailTaken(d *dataset, cafeID, email, exceptID string) bool {
	if strings.TrimSpace(email) == "" {
		return false
	}
	for id, staff := range d.staffByID {
		if id != exceptID && staff.CafeID == cafeID && sameName(staff.Email, email) {
			return true
		}
	}
	return false
}

func checkCategory(d *dataset, cafeID, categoryID string) error {
	if categoryID == "" {
		return nil
	}
	category, ok := d.categories[categoryID]
	if !ok || category.CafeID != cafeID {
		return store.ErrNotFound
	}
	return nil
}

func validateExpense(expense domain.Expense) error {
	if expense.Kind != domain.ExpenseMonthly && expense.Kind != domain.ExpenseDaily {
		return store.ErrInvalidInput
	}
	if strings.TrimSpace(expense.Description) == "" || expense.Amount.IsNegative() || expense.Date.IsZero() {
		return store.ErrInvalidInput
	}
	return nil
}
