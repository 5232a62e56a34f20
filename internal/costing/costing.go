// Package costing prices a menu item's recipe against ingredient cost
// histories.
package costing

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"cafeledger/backend/internal/domain"
)

// Lookup is the read access costing needs. store.Queries satisfies it.
type Lookup interface {
	ListRecipe(ctx context.Context, menuItemID string) ([]domain.RecipeLineDetail, error)
	StockCostAsOf(ctx context.Context, stockItemID string, asOf time.Time) (mo.Option[domain.StockCost], error)
}

// UnitCost returns the cost of one unit of a menu item on asOf: the sum of
// quantity used times ingredient cost per line. An ingredient without cost
// history contributes zero and is listed in Unpriced.
func UnitCost(ctx context.Context, lookup Lookup, menuItemID string, asOf time.Time) (domain.CostBreakdown, error) {
	breakdown := domain.CostBreakdown{
		MenuItemID: menuItemID,
		AsOf:       asOf.Format(domain.DateLayout),
		Lines:      []domain.CostLine{},
		Total:      decimal.Zero,
	}

	recipe, err := lookup.ListRecipe(ctx, menuItemID)
	if err != nil {
		return breakdown, fmt.Errorf("load recipe: %w", err)
	}

	for _, line := range recipe {
		cost, err := lookup.StockCostAsOf(ctx, line.StockItemID, asOf)
		if err != nil {
			return breakdown, fmt.Errorf("load cost for %s: %w", line.StockItemID, err)
		}

		entry := domain.CostLine{
			StockItemID:  line.StockItemID,
			QuantityUsed: line.QuantityUsed,
			CostPerUnit:  decimal.Zero,
			LineCost:     decimal.Zero,
		}
		if current, ok := cost.Get(); ok {
			entry.Priced = true
			entry.CostPerUnit = current.CostPerUnit
			entry.LineCost = line.QuantityUsed.Mul(current.CostPerUnit)
		} else {
			breakdown.Unpriced = append(breakdown.Unpriced, line.StockItemID)
		}
		breakdown.Lines = append(breakdown.Lines, entry)
		breakdown.Total = breakdown.Total.Add(entry.LineCost)
	}

	return breakdown, nil
}
