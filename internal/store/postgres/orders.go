package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/xid"
)

func (q *queries) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if _, err := q.GetStaff(ctx, order.CafeID, order.StaffID); err != nil {
		return nil, err
	}
	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	now := time.Now().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO orders (id, cafe_id, staff_id, ordered_at, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, order.ID, order.CafeID, order.StaffID, order.Timestamp, order.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}

	items := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidInput
		}
		if _, err := q.GetMenuItem(ctx, order.CafeID, item.MenuItemID); err != nil {
			return nil, err
		}
		item.ID = xid.New("oi")
		item.OrderID = order.ID
		item.CreatedAt = now
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, menu_item_id, quantity, price_at_sale, cost_at_sale, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, item.ID, item.OrderID, item.MenuItemID, item.Quantity, item.PriceAtSale, item.CostAtSale, item.CreatedAt); err != nil {
			return nil, mapWriteErr(err)
		}
		items = append(items, item)
	}
	order.Items = items
	return &order, nil
}

func (q *queries) GetOrder(ctx context.Context, cafeID string, id string) (*domain.Order, error) {
	var order domain.Order
	err := q.db.QueryRowContext(ctx, `
		SELECT id, cafe_id, staff_id, ordered_at, created_at
		FROM orders
		WHERE cafe_id = $1 AND id = $2
	`, cafeID, id).Scan(&order.ID, &order.CafeID, &order.StaffID, &order.Timestamp, &order.CreatedAt)
	if err != nil {
		return nil, mapReadErr(err)
	}
	order.Timestamp, order.CreatedAt = order.Timestamp.UTC(), order.CreatedAt.UTC()

	items, err := q.orderItems(ctx, []string{order.ID})
	if err != nil {
		return nil, err
	}
	order.Items = items[order.ID]
	return &order, nil
}

func (q *queries) ListOrders(ctx context.Context, cafeID string, from time.Time, to time.Time) ([]domain.Order, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, cafe_id, staff_id, ordered_at, created_at
		FROM orders
		WHERE cafe_id = $1
			AND ($2::timestamptz IS NULL OR ordered_at >= $2)
			AND ($3::timestamptz IS NULL OR ordered_at < $3)
		ORDER BY ordered_at DESC, id DESC
	`, cafeID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 32)
	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.CafeID, &order.StaffID, &order.Timestamp, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.Timestamp, order.CreatedAt = order.Timestamp.UTC(), order.CreatedAt.UTC()
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := q.orderItems(ctx, lo.Map(orders, func(o domain.Order, _ int) string { return o.ID }))
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (q *queries) orderItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	result := make(map[string][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, order_id, menu_item_id, quantity, price_at_sale, cost_at_sale, created_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, created_at, id
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.MenuItemID, &item.Quantity, &item.PriceAtSale, &item.CostAtSale, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CreatedAt = item.CreatedAt.UTC()
		result[item.OrderID] = append(result[item.OrderID], item)
	}
	return result, rows.Err()
}

func (q *queries) DeleteOrder(ctx context.Context, cafeID string, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM orders WHERE cafe_id = $1 AND id = $2`, cafeID, id)
	return affectedOne(res, err)
}

func (q *queries) ListSaleLines(ctx context.Context, cafeID string, from time.Time, to time.Time) ([]domain.SaleLine, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT o.id, o.ordered_at, i.quantity, i.price_at_sale, i.cost_at_sale
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE o.cafe_id = $1
			AND ($2::timestamptz IS NULL OR o.ordered_at >= $2)
			AND ($3::timestamptz IS NULL OR o.ordered_at < $3)
		ORDER BY o.ordered_at, o.id, i.id
	`, cafeID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 64)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.OrderID, &line.Timestamp, &line.Quantity, &line.PriceAtSale, &line.CostAtSale); err != nil {
			return nil, err
		}
		line.Timestamp = line.Timestamp.UTC()
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

const expenseColumns = `id, cafe_id, kind, expense_date, description, amount, created_at`

func scanExpense(row interface{ Scan(...any) error }) (domain.Expense, error) {
	var e domain.Expense
	var kind string
	err := row.Scan(&e.ID, &e.CafeID, &kind, &e.Date, &e.Description, &e.Amount, &e.CreatedAt)
	e.Kind = domain.ExpenseKind(kind)
	e.Date, e.CreatedAt = calendar(e.Date), e.CreatedAt.UTC()
	return e, err
}

func (q *queries) CreateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if strings.TrimSpace(expense.Description) == "" || expense.Amount.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if expense.ID == "" {
		expense.ID = xid.New("exp")
	}
	created, err := scanExpense(q.db.QueryRowContext(ctx, `
		INSERT INTO expenses (id, cafe_id, kind, expense_date, description, amount, created_at)
		VALUES ($1,$2,$3,$4::date,$5,$6,now())
		RETURNING `+expenseColumns,
		expense.ID, expense.CafeID, string(expense.Kind), dateArg(expense.Date), expense.Description, expense.Amount))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &created, nil
}

func (q *queries) GetExpense(ctx context.Context, cafeID string, kind domain.ExpenseKind, id string) (*domain.Expense, error) {
	expense, err := scanExpense(q.db.QueryRowContext(ctx, `
		SELECT `+expenseColumns+` FROM expenses WHERE cafe_id = $1 AND kind = $2 AND id = $3
	`, cafeID, string(kind), id))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &expense, nil
}

func (q *queries) UpdateExpense(ctx context.Context, expense domain.Expense) (*domain.Expense, error) {
	if strings.TrimSpace(expense.Description) == "" || expense.Amount.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	updated, err := scanExpense(q.db.QueryRowContext(ctx, `
		UPDATE expenses
		SET expense_date = $4::date, description = $5, amount = $6
		WHERE cafe_id = $1 AND kind = $2 AND id = $3
		RETURNING `+expenseColumns,
		expense.CafeID, string(expense.Kind), expense.ID, dateArg(expense.Date), expense.Description, expense.Amount))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &updated, nil
}

func (q *queries) DeleteExpense(ctx context.Context, cafeID string, kind domain.ExpenseKind, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM expenses WHERE cafe_id = $1 AND kind = $2 AND id = $3`, cafeID, string(kind), id)
	return affectedOne(res, err)
}

func (q *queries) ListExpenses(ctx context.Context, cafeID string, kind domain.ExpenseKind, from time.Time, to time.Time) ([]domain.Expense, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE cafe_id = $1 AND kind = $2
			AND ($3::date IS NULL OR expense_date >= $3::date)
			AND ($4::date IS NULL OR expense_date < $4::date)
		ORDER BY expense_date DESC, created_at DESC, id DESC
	`, cafeID, string(kind), nullDate(from), nullDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]domain.Expense, 0, 32)
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, expense)
	}
	return expenses, rows.Err()
}
