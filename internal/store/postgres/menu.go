package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/samber/mo"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/xid"
)

const categoryColumns = `id, cafe_id, name, name_ar, icon, color_from, color_to, bg_light, border_color, display_order, created_at, updated_at`

func scanCategory(row interface{ Scan(...any) error }) (domain.MenuCategory, error) {
	var c domain.MenuCategory
	err := row.Scan(&c.ID, &c.CafeID, &c.Name, &c.NameAR, &c.Icon, &c.ColorFrom, &c.ColorTo, &c.BgLight, &c.BorderColor, &c.DisplayOrder, &c.CreatedAt, &c.UpdatedAt)
	c.CreatedAt, c.UpdatedAt = c.CreatedAt.UTC(), c.UpdatedAt.UTC()
	return c, err
}

func (q *queries) CreateCategory(ctx context.Context, category domain.MenuCategory) (*domain.MenuCategory, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	created, err := scanCategory(q.db.QueryRowContext(ctx, `
		INSERT INTO menu_categories (
			id, cafe_id, name, name_ar, icon, color_from, color_to, bg_light, border_color, display_order, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
		RETURNING `+categoryColumns,
		category.ID, category.CafeID, category.Name, category.NameAR, category.Icon, category.ColorFrom,
		category.ColorTo, category.BgLight, category.BorderColor, category.DisplayOrder))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &created, nil
}

func (q *queries) GetCategory(ctx context.Context, cafeID string, id string) (*domain.MenuCategory, error) {
	category, err := scanCategory(q.db.QueryRowContext(ctx, `
		SELECT `+categoryColumns+` FROM menu_categories WHERE cafe_id = $1 AND id = $2
	`, cafeID, id))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &category, nil
}

func (q *queries) ListCategories(ctx context.Context, cafeID string) ([]domain.MenuCategory, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+categoryColumns+` FROM menu_categories WHERE cafe_id = $1 ORDER BY display_order, name
	`, cafeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.MenuCategory, 0, 16)
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (q *queries) UpdateCategory(ctx context.Context, category domain.MenuCategory) (*domain.MenuCategory, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	updated, err := scanCategory(q.db.QueryRowContext(ctx, `
		UPDATE menu_categories
		SET name = $3, name_ar = $4, icon = $5, color_from = $6, color_to = $7, bg_light = $8,
			border_color = $9, display_order = $10, updated_at = now()
		WHERE cafe_id = $1 AND id = $2
		RETURNING `+categoryColumns,
		category.CafeID, category.ID, category.Name, category.NameAR, category.Icon, category.ColorFrom,
		category.ColorTo, category.BgLight, category.BorderColor, category.DisplayOrder))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &updated, nil
}

func (q *queries) DeleteCategory(ctx context.Context, cafeID string, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM menu_categories WHERE cafe_id = $1 AND id = $2`, cafeID, id)
	return affectedOne(res, err)
}

const menuColumns = `id, cafe_id, COALESCE(category_id, ''), name, image_url, created_at, updated_at`

func scanMenuItem(row interface{ Scan(...any) error }) (domain.MenuItem, error) {
	var item domain.MenuItem
	err := row.Scan(&item.ID, &item.CafeID, &item.CategoryID, &item.Name, &item.ImageURL, &item.CreatedAt, &item.UpdatedAt)
	item.CreatedAt, item.UpdatedAt = item.CreatedAt.UTC(), item.UpdatedAt.UTC()
	return item, err
}

// checkCategory fails with ErrNotFound when a non-empty category id does not
// belong to the café.
func (q *queries) checkCategory(ctx context.Context, cafeID string, categoryID string) error {
	if categoryID == "" {
		return nil
	}
	_, err := q.GetCategory(ctx, cafeID, categoryID)
	return err
}

func (q *queries) CreateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if err := q.checkCategory(ctx, item.CafeID, item.CategoryID); err != nil {
		return nil, err
	}
	if item.ID == "" {
		item.ID = xid.New("menu")
	}
	created, err := scanMenuItem(q.db.QueryRowContext(ctx, `
		INSERT INTO menu_items (id, cafe_id, category_id, name, image_url, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		RETURNING `+menuColumns,
		item.ID, item.CafeID, nullIfEmpty(item.CategoryID), item.Name, item.ImageURL))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &created, nil
}

func (q *queries) GetMenuItem(ctx context.Context, cafeID string, id string) (*domain.MenuItem, error) {
	item, err := scanMenuItem(q.db.QueryRowContext(ctx, `
		SELECT `+menuColumns+` FROM menu_items WHERE cafe_id = $1 AND id = $2
	`, cafeID, id))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &item, nil
}

func (q *queries) ListMenuItems(ctx context.Context, cafeID string) ([]domain.MenuItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+menuColumns+` FROM menu_items WHERE cafe_id = $1 ORDER BY name
	`, cafeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.MenuItem, 0, 64)
	for rows.Next() {
		item, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (q *queries) UpdateMenuItem(ctx context.Context, item domain.MenuItem) (*domain.MenuItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if err := q.checkCategory(ctx, item.CafeID, item.CategoryID); err != nil {
		return nil, err
	}
	updated, err := scanMenuItem(q.db.QueryRowContext(ctx, `
		UPDATE menu_items
		SET category_id = $3, name = $4, image_url = $5, updated_at = now()
		WHERE cafe_id = $1 AND id = $2
		RETURNING `+menuColumns,
		item.CafeID, item.ID, nullIfEmpty(item.CategoryID), item.Name, item.ImageURL))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &updated, nil
}

// DeleteMenuItem fails with ErrConflict while orders still reference the item.
func (q *queries) DeleteMenuItem(ctx context.Context, cafeID string, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM menu_items WHERE cafe_id = $1 AND id = $2`, cafeID, id)
	return affectedOne(res, err)
}

func (q *queries) AppendMenuPrice(ctx context.Context, price domain.MenuPrice) (*domain.MenuPrice, error) {
	if price.SalePrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if price.ID == "" {
		price.ID = xid.New("price")
	}
	price.StartDate = calendar(price.StartDate)
	if price.CreatedAt.IsZero() {
		price.CreatedAt = time.Now().UTC()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO menu_prices (id, menu_item_id, sale_price, start_date, created_at)
		VALUES ($1,$2,$3,$4::date,$5)
	`, price.ID, price.MenuItemID, price.SalePrice, dateArg(price.StartDate), price.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &price, nil
}

func scanMenuPrice(row interface{ Scan(...any) error }) (domain.MenuPrice, error) {
	var price domain.MenuPrice
	err := row.Scan(&price.ID, &price.MenuItemID, &price.SalePrice, &price.StartDate, &price.CreatedAt)
	price.StartDate, price.CreatedAt = calendar(price.StartDate), price.CreatedAt.UTC()
	return price, err
}

func (q *queries) ListMenuPriceHistory(ctx context.Context, menuItemID string) ([]domain.MenuPrice, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, menu_item_id, sale_price, start_date, created_at
		FROM menu_prices
		WHERE menu_item_id = $1
		`+historyOrder, menuItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.MenuPrice, 0, 8)
	for rows.Next() {
		price, err := scanMenuPrice(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, price)
	}
	return history, rows.Err()
}

func (q *queries) MenuPriceAsOf(ctx context.Context, menuItemID string, asOf time.Time) (mo.Option[domain.MenuPrice], error) {
	price, err := scanMenuPrice(q.db.QueryRowContext(ctx, `
		SELECT id, menu_item_id, sale_price, start_date, created_at
		FROM menu_prices
		WHERE menu_item_id = $1 AND start_date <= $2::date
		`+historyOrder+`
		LIMIT 1
	`, menuItemID, dateArg(asOf)))
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[domain.MenuPrice](), nil
	}
	if err != nil {
		return mo.None[domain.MenuPrice](), err
	}
	return mo.Some(price), nil
}

func (q *queries) AddRecipeLine(ctx context.Context, line domain.RecipeLine) (*domain.RecipeLine, error) {
	if !line.QuantityUsed.IsPositive() {
		return nil, store.ErrInvalidInput
	}
	if line.ID == "" {
		line.ID = xid.New("rcp")
	}
	line.CreatedAt = time.Now().UTC()

	// Both items must belong to the same café.
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO recipe_lines (id, menu_item_id, stock_item_id, quantity_used, created_at)
		SELECT $1, m.id, s.id, $4, $5
		FROM menu_items m
		JOIN stock_items s ON s.cafe_id = m.cafe_id
		WHERE m.id = $2 AND s.id = $3
	`, line.ID, line.MenuItemID, line.StockItemID, line.QuantityUsed, line.CreatedAt)
	if err := affectedOne(res, mapWriteErr(err)); err != nil {
		return nil, err
	}
	return &line, nil
}

func (q *queries) ListRecipe(ctx context.Context, menuItemID string) ([]domain.RecipeLineDetail, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT r.id, r.menu_item_id, r.stock_item_id, r.quantity_used, r.created_at, s.name, s.unit_of_measure
		FROM recipe_lines r
		JOIN stock_items s ON s.id = r.stock_item_id
		WHERE r.menu_item_id = $1
		ORDER BY r.created_at, r.id
	`, menuItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.RecipeLineDetail, 0, 8)
	for rows.Next() {
		var line domain.RecipeLineDetail
		if err := rows.Scan(&line.ID, &line.MenuItemID, &line.StockItemID, &line.QuantityUsed, &line.CreatedAt, &line.StockItemName, &line.UnitOfMeasure); err != nil {
			return nil, err
		}
		line.CreatedAt = line.CreatedAt.UTC()
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (q *queries) DeleteRecipeLine(ctx context.Context, menuItemID string, lineID string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM recipe_lines WHERE menu_item_id = $1 AND id = $2`, menuItemID, lineID)
	return affectedOne(res, err)
}

func (q *queries) CreateMenuWaste(ctx context.Context, waste domain.MenuWaste) (*domain.MenuWaste, error) {
	item, err := q.GetMenuItem(ctx, waste.CafeID, waste.MenuItemID)
	if err != nil {
		return nil, err
	}
	if waste.ID == "" {
		waste.ID = xid.New("mwst")
	}
	if waste.CreatedAt.IsZero() {
		waste.CreatedAt = time.Now().UTC()
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO menu_waste (id, cafe_id, menu_item_id, quantity, total_cost, reason, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, waste.ID, waste.CafeID, waste.MenuItemID, waste.Quantity, waste.TotalCost, waste.Reason, waste.CreatedBy, waste.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	waste.MenuItemName = item.Name
	return &waste, nil
}

func (q *queries) ListMenuWaste(ctx context.Context, cafeID string, limit int) ([]domain.MenuWaste, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT w.id, w.cafe_id, w.menu_item_id, m.name, w.quantity, w.total_cost, w.reason, w.created_by, w.created_at
		FROM menu_waste w
		JOIN menu_items m ON m.id = w.menu_item_id
		WHERE w.cafe_id = $1
		ORDER BY w.created_at DESC, w.id DESC
		LIMIT $2
	`, cafeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wastes := make([]domain.MenuWaste, 0, limit)
	for rows.Next() {
		var w domain.MenuWaste
		if err := rows.Scan(&w.ID, &w.CafeID, &w.MenuItemID, &w.MenuItemName, &w.Quantity, &w.TotalCost, &w.Reason, &w.CreatedBy, &w.CreatedAt); err != nil {
			return nil, err
		}
		w.CreatedAt = w.CreatedAt.UTC()
		wastes = append(wastes, w)
	}
	return wastes, rows.Err()
}
