package costing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/versioned"
)

type fakeLookup struct {
	recipes map[string][]domain.RecipeLineDetail
	costs   map[string][]domain.StockCost
	failFor string
}

func (f fakeLookup) ListRecipe(_ context.Context, menuItemID string) ([]domain.RecipeLineDetail, error) {
	return f.recipes[menuItemID], nil
}

func (f fakeLookup) StockCostAsOf(_ context.Context, stockItemID string, asOf time.Time) (mo.Option[domain.StockCost], error) {
	if stockItemID == f.failFor {
		return mo.None[domain.StockCost](), errors.New("boom")
	}
	return versioned.Resolve(f.costs[stockItemID], asOf), nil
}

func line(stockID string, qty string) domain.RecipeLineDetail {
	return domain.RecipeLineDetail{RecipeLine: domain.RecipeLine{StockItemID: stockID, QuantityUsed: decimal.RequireFromString(qty)}}
}

func cost(value string, start time.Time) domain.StockCost {
	return domain.StockCost{CostPerUnit: decimal.RequireFromString(value), StartDate: start, CreatedAt: start}
}

func TestUnitCostSumsRecipeLines(t *testing.T) {
	day := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	lookup := fakeLookup{
		recipes: map[string][]domain.RecipeLineDetail{
			"cake": {line("flour", "2"), line("sugar", "1")},
		},
		costs: map[string][]domain.StockCost{
			"flour": {cost("0.40", day.AddDate(0, -1, 0)), cost("0.50", day)},
			"sugar": {cost("0.20", day.AddDate(0, 0, -3))},
		},
	}

	got, err := UnitCost(context.Background(), lookup, "cake", day)
	require.NoError(t, err)
	require.True(t, got.Total.Equal(decimal.RequireFromString("1.20")), "total %s", got.Total)
	require.Len(t, got.Lines, 2)
	require.Empty(t, got.Unpriced)

	earlier, err := UnitCost(context.Background(), lookup, "cake", day.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.True(t, earlier.Total.Equal(decimal.RequireFromString("1.00")), "total %s", earlier.Total)
}

func TestUnitCostTreatsMissingCostAsZero(t *testing.T) {
	day := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	lookup := fakeLookup{
		recipes: map[string][]domain.RecipeLineDetail{
			"latte": {line("milk", "0.25"), line("beans", "0.018")},
		},
		costs: map[string][]domain.StockCost{
			"milk": {cost("1.60", day)},
		},
	}

	got, err := UnitCost(context.Background(), lookup, "latte", day)
	require.NoError(t, err)
	require.True(t, got.Total.Equal(decimal.RequireFromString("0.4")))
	require.Equal(t, []string{"beans"}, got.Unpriced)
	require.False(t, got.Lines[1].Priced)
}

func TestUnitCostEmptyRecipeIsZero(t *testing.T) {
	got, err := UnitCost(context.Background(), fakeLookup{}, "water", time.Now())
	require.NoError(t, err)
	require.True(t, got.Total.IsZero())
	require.Empty(t, got.Lines)
}

func TestUnitCostPropagatesLookupErrors(t *testing.T) {
	lookup := fakeLookup{
		recipes: map[string][]domain.RecipeLineDetail{"x": {line("bad", "1")}},
		failFor: "bad",
	}
	_, err := UnitCost(context.Background(), lookup, "x", time.Now())
	require.Error(t, err)
}
