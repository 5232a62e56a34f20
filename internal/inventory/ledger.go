// Package inventory mutates stock quantities and keeps the append-only stock
// transaction log in step with them. Every method takes the Queries of the
// surrounding store transaction so a quantity change and its log row commit
// together.
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"cafeledger/backend/internal/costing"
	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/versioned"
)

type Ledger struct {
	now func() time.Time
	loc *time.Location
}

func NewLedger(loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{now: time.Now, loc: loc}
}

func (l *Ledger) today() time.Time {
	return versioned.Day(l.now(), l.loc)
}

// Initialize records the opening quantity and cost of a freshly created item.
func (l *Ledger) Initialize(ctx context.Context, q store.Queries, item domain.StockItem, costPerUnit decimal.Decimal, actor string) error {
	if _, err := q.AppendStockCost(ctx, domain.StockCost{
		StockItemID: item.ID,
		CostPerUnit: costPerUnit,
		StartDate:   l.today(),
	}); err != nil {
		return err
	}
	return q.AppendStockTransaction(ctx, domain.StockTransaction{
		StockItemID:    item.ID,
		QuantityChange: item.CurrentQuantity,
		Type:           domain.StockTxInitial,
		Notes:          "Initial stock",
		CreatedBy:      actor,
	})
}

// Restock adds quantity and, when newCost differs from the cost in effect
// today, appends a cost row dated today.
func (l *Ledger) Restock(ctx context.Context, q store.Queries, cafeID string, itemID string, quantity decimal.Decimal, newCost mo.Option[decimal.Decimal], notes string, actor string) (domain.StockLevel, error) {
	if !quantity.IsPositive() {
		return domain.StockLevel{}, fmt.Errorf("restock quantity must be positive: %w", store.ErrInvalidInput)
	}
	if cost, ok := newCost.Get(); ok && cost.IsNegative() {
		return domain.StockLevel{}, fmt.Errorf("cost per unit must not be negative: %w", store.ErrInvalidInput)
	}

	qty, err := q.AdjustStockQuantity(ctx, cafeID, itemID, quantity, true)
	if err != nil {
		return domain.StockLevel{}, err
	}

	if cost, ok := newCost.Get(); ok {
		today := l.today()
		current, err := q.StockCostAsOf(ctx, itemID, today)
		if err != nil {
			return domain.StockLevel{}, err
		}
		if existing, found := current.Get(); !found || !existing.CostPerUnit.Equal(cost) {
			if _, err := q.AppendStockCost(ctx, domain.StockCost{StockItemID: itemID, CostPerUnit: cost, StartDate: today}); err != nil {
				return domain.StockLevel{}, err
			}
		}
	}

	if strings.TrimSpace(notes) == "" {
		notes = "Restocked"
	}
	if err := q.AppendStockTransaction(ctx, domain.StockTransaction{
		StockItemID:    itemID,
		QuantityChange: quantity,
		Type:           domain.StockTxRestock,
		Notes:          notes,
		CreatedBy:      actor,
	}); err != nil {
		return domain.StockLevel{}, err
	}
	return domain.StockLevel{StockItemID: itemID, NewQuantity: qty}, nil
}

// RecordWaste removes quantity and refuses to take the item below zero.
func (l *Ledger) RecordWaste(ctx context.Context, q store.Queries, cafeID string, itemID string, quantity decimal.Decimal, reason string, actor string) (domain.StockLevel, error) {
	if !quantity.IsPositive() {
		return domain.StockLevel{}, fmt.Errorf("waste quantity must be positive: %w", store.ErrInvalidInput)
	}

	qty, err := q.AdjustStockQuantity(ctx, cafeID, itemID, quantity.Neg(), false)
	if err != nil {
		return domain.StockLevel{}, err
	}

	if err := q.AppendStockTransaction(ctx, domain.StockTransaction{
		StockItemID:    itemID,
		QuantityChange: quantity.Neg(),
		Type:           domain.StockTxWaste,
		Notes:          reason,
		CreatedBy:      actor,
	}); err != nil {
		return domain.StockLevel{}, err
	}
	return domain.StockLevel{StockItemID: itemID, NewQuantity: qty}, nil
}

// ApplyRecipeConsumption draws down every ingredient of a menu item for
// units sold. Quantities are allowed to go negative.
func (l *Ledger) ApplyRecipeConsumption(ctx context.Context, q store.Queries, cafeID string, menuItemID string, units int, note string, actor string) error {
	return l.consume(ctx, q, cafeID, menuItemID, decimal.NewFromInt(int64(units)).Neg(), domain.StockTxUsage, note, actor)
}

// ReverseRecipeConsumption adds back what ApplyRecipeConsumption took.
func (l *Ledger) ReverseRecipeConsumption(ctx context.Context, q store.Queries, cafeID string, menuItemID string, units int, note string, actor string) error {
	return l.consume(ctx, q, cafeID, menuItemID, decimal.NewFromInt(int64(units)), domain.StockTxUsageReversal, note, actor)
}

func (l *Ledger) consume(ctx context.Context, q store.Queries, cafeID string, menuItemID string, factor decimal.Decimal, txType string, note string, actor string) error {
	recipe, err := q.ListRecipe(ctx, menuItemID)
	if err != nil {
		return err
	}
	for _, line := range recipe {
		delta := line.QuantityUsed.Mul(factor)
		if _, err := q.AdjustStockQuantity(ctx, cafeID, line.StockItemID, delta, true); err != nil {
			return fmt.Errorf("adjust %s: %w", line.StockItemID, err)
		}
		if err := q.AppendStockTransaction(ctx, domain.StockTransaction{
			StockItemID:    line.StockItemID,
			QuantityChange: delta,
			Type:           txType,
			Notes:          note,
			CreatedBy:      actor,
		}); err != nil {
			return err
		}
	}
	return nil
}

// RecordMenuWaste discards prepared menu items. The recipe is costed at
// today's ingredient costs before any ingredient is drawn down.
func (l *Ledger) RecordMenuWaste(ctx context.Context, q store.Queries, cafeID string, menuItemID string, quantity decimal.Decimal, reason string, actor string) (*domain.MenuWaste, error) {
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("waste quantity must be positive: %w", store.ErrInvalidInput)
	}

	item, err := q.GetMenuItem(ctx, cafeID, menuItemID)
	if err != nil {
		return nil, err
	}

	breakdown, err := costing.UnitCost(ctx, q, item.ID, l.today())
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("Menu waste: %s x%s", item.Name, quantity.String())
	if strings.TrimSpace(reason) != "" {
		note += " - " + reason
	}
	for _, line := range breakdown.Lines {
		delta := line.QuantityUsed.Mul(quantity).Neg()
		if _, err := q.AdjustStockQuantity(ctx, cafeID, line.StockItemID, delta, true); err != nil {
			return nil, fmt.Errorf("adjust %s: %w", line.StockItemID, err)
		}
		if err := q.AppendStockTransaction(ctx, domain.StockTransaction{
			StockItemID:    line.StockItemID,
			QuantityChange: delta,
			Type:           domain.StockTxWaste,
			Notes:          note,
			CreatedBy:      actor,
		}); err != nil {
			return nil, err
		}
	}

	return q.CreateMenuWaste(ctx, domain.MenuWaste{
		CafeID:     cafeID,
		MenuItemID: item.ID,
		Quantity:   quantity,
		TotalCost:  breakdown.Total.Mul(quantity),
		Reason:     reason,
		CreatedBy:  actor,
	})
}

// Reconcile compares an item's current quantity with the sum of its log.
func (l *Ledger) Reconcile(ctx context.Context, q store.Queries, cafeID string, itemID string) (domain.StockReconciliation, error) {
	item, err := q.GetStockItem(ctx, cafeID, itemID)
	if err != nil {
		return domain.StockReconciliation{}, err
	}
	sum, err := q.SumStockTransactions(ctx, itemID)
	if err != nil {
		return domain.StockReconciliation{}, err
	}
	drift := item.CurrentQuantity.Sub(sum)
	return domain.StockReconciliation{
		StockItemID:     itemID,
		CurrentQuantity: item.CurrentQuantity,
		LedgerQuantity:  sum,
		Drift:           drift,
		Balanced:        drift.IsZero(),
	}, nil
}
