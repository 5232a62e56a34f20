package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/xid"
)

const stockColumns = `id, cafe_id, name, unit_of_measure, current_quantity, low_stock_threshold, created_at, updated_at`

func scanStockItem(row interface{ Scan(...any) error }) (domain.StockItem, error) {
	var item domain.StockItem
	err := row.Scan(&item.ID, &item.CafeID, &item.Name, &item.UnitOfMeasure, &item.CurrentQuantity, &item.LowStockThreshold, &item.CreatedAt, &item.UpdatedAt)
	item.CreatedAt, item.UpdatedAt = item.CreatedAt.UTC(), item.UpdatedAt.UTC()
	return item, err
}

func (q *queries) CreateStockItem(ctx context.Context, item domain.StockItem) (*domain.StockItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if item.ID == "" {
		item.ID = xid.New("stk")
	}
	created, err := scanStockItem(q.db.QueryRowContext(ctx, `
		INSERT INTO stock_items (id, cafe_id, name, unit_of_measure, current_quantity, low_stock_threshold, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
		RETURNING `+stockColumns,
		item.ID, item.CafeID, item.Name, item.UnitOfMeasure, item.CurrentQuantity, item.LowStockThreshold))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &created, nil
}

func (q *queries) GetStockItem(ctx context.Context, cafeID string, id string) (*domain.StockItem, error) {
	item, err := scanStockItem(q.db.QueryRowContext(ctx, `
		SELECT `+stockColumns+` FROM stock_items WHERE cafe_id = $1 AND id = $2
	`, cafeID, id))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &item, nil
}

func (q *queries) ListStockItems(ctx context.Context, cafeID string) ([]domain.StockItem, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+stockColumns+` FROM stock_items WHERE cafe_id = $1 ORDER BY name
	`, cafeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.StockItem, 0, 64)
	for rows.Next() {
		item, err := scanStockItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (q *queries) UpdateStockItem(ctx context.Context, item domain.StockItem) (*domain.StockItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	updated, err := scanStockItem(q.db.QueryRowContext(ctx, `
		UPDATE stock_items
		SET name = $3, unit_of_measure = $4, low_stock_threshold = $5, updated_at = now()
		WHERE cafe_id = $1 AND id = $2
		RETURNING `+stockColumns,
		item.CafeID, item.ID, item.Name, item.UnitOfMeasure, item.LowStockThreshold))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &updated, nil
}

func (q *queries) DeleteStockItem(ctx context.Context, cafeID string, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM stock_items WHERE cafe_id = $1 AND id = $2`, cafeID, id)
	return affectedOne(res, err)
}

func (q *queries) AdjustStockQuantity(ctx context.Context, cafeID string, id string, delta decimal.Decimal, allowNegative bool) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := q.db.QueryRowContext(ctx, `
		UPDATE stock_items
		SET current_quantity = current_quantity + $3::numeric, updated_at = now()
		WHERE cafe_id = $1 AND id = $2
			AND ($4 OR current_quantity + $3::numeric >= 0)
		RETURNING current_quantity
	`, cafeID, id, delta, allowNegative).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := q.GetStockItem(ctx, cafeID, id); getErr != nil {
			return decimal.Zero, getErr
		}
		return decimal.Zero, store.ErrInsufficientStock
	}
	if err != nil {
		return decimal.Zero, err
	}
	return qty, nil
}

func (q *queries) AppendStockCost(ctx context.Context, cost domain.StockCost) (*domain.StockCost, error) {
	if cost.CostPerUnit.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if cost.ID == "" {
		cost.ID = xid.New("cost")
	}
	cost.StartDate = calendar(cost.StartDate)
	if cost.CreatedAt.IsZero() {
		cost.CreatedAt = time.Now().UTC()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO stock_costs (id, stock_item_id, cost_per_unit, start_date, created_at)
		VALUES ($1,$2,$3,$4::date,$5)
	`, cost.ID, cost.StockItemID, cost.CostPerUnit, dateArg(cost.StartDate), cost.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &cost, nil
}

// History reads are ordered newest first: start_date, then recording time,
// then id, which is time ordered as well.
const historyOrder = `ORDER BY start_date DESC, created_at DESC, id DESC`

func (q *queries) ListStockCostHistory(ctx context.Context, stockItemID string) ([]domain.StockCost, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, stock_item_id, cost_per_unit, start_date, created_at
		FROM stock_costs
		WHERE stock_item_id = $1
		`+historyOrder, stockItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.StockCost, 0, 8)
	for rows.Next() {
		cost, err := scanStockCost(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, cost)
	}
	return history, rows.Err()
}

func (q *queries) StockCostAsOf(ctx context.Context, stockItemID string, asOf time.Time) (mo.Option[domain.StockCost], error) {
	cost, err := scanStockCost(q.db.QueryRowContext(ctx, `
		SELECT id, stock_item_id, cost_per_unit, start_date, created_at
		FROM stock_costs
		WHERE stock_item_id = $1 AND start_date <= $2::date
		`+historyOrder+`
		LIMIT 1
	`, stockItemID, dateArg(asOf)))
	if errors.Is(err, sql.ErrNoRows) {
		return mo.None[domain.StockCost](), nil
	}
	if err != nil {
		return mo.None[domain.StockCost](), err
	}
	return mo.Some(cost), nil
}

func scanStockCost(row interface{ Scan(...any) error }) (domain.StockCost, error) {
	var cost domain.StockCost
	err := row.Scan(&cost.ID, &cost.StockItemID, &cost.CostPerUnit, &cost.StartDate, &cost.CreatedAt)
	cost.StartDate, cost.CreatedAt = calendar(cost.StartDate), cost.CreatedAt.UTC()
	return cost, err
}

func (q *queries) AppendStockTransaction(ctx context.Context, tx domain.StockTransaction) error {
	if tx.ID == "" {
		tx.ID = xid.New("stx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO stock_transactions (id, stock_item_id, quantity_change, transaction_type, notes, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, tx.ID, tx.StockItemID, tx.QuantityChange, tx.Type, tx.Notes, tx.CreatedBy, tx.CreatedAt)
	return mapWriteErr(err)
}

func (q *queries) ListStockTransactions(ctx context.Context, cafeID string, stockItemID string, limit int) ([]domain.StockTransaction, error) {
	query := `
		SELECT t.id, t.stock_item_id, i.name, t.quantity_change, t.transaction_type, t.notes, t.created_by, t.created_at
		FROM stock_transactions t
		JOIN stock_items i ON i.id = t.stock_item_id
		WHERE i.cafe_id = $1
			AND ($2::text IS NULL OR t.stock_item_id = $2)
		ORDER BY t.created_at DESC, t.id DESC`
	args := []any{cafeID, nullIfEmpty(stockItemID)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.StockTransaction, 0, 32)
	for rows.Next() {
		var tx domain.StockTransaction
		if err := rows.Scan(&tx.ID, &tx.StockItemID, &tx.StockItemName, &tx.QuantityChange, &tx.Type, &tx.Notes, &tx.CreatedBy, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (q *queries) SumStockTransactions(ctx context.Context, stockItemID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity_change), 0) FROM stock_transactions WHERE stock_item_id = $1
	`, stockItemID).Scan(&total)
	return total, err
}
