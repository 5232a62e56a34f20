package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	repo   *memory.Store
	ledger *Ledger
	cafeID string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()
	user, err := repo.CreateUser(ctx, domain.User{Email: "owner@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	cafe, err := repo.CreateCafe(ctx, domain.Cafe{Name: "Corner", OwnerID: user.ID})
	require.NoError(t, err)

	ledger := NewLedger(time.UTC)
	ledger.now = func() time.Time { return time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC) }
	return fixture{repo: repo, ledger: ledger, cafeID: cafe.ID}
}

func (f fixture) stock(t *testing.T, name string, qty string, cost string) domain.StockItem {
	t.Helper()
	ctx := context.Background()
	var created domain.StockItem
	err := f.repo.Atomic(ctx, func(q store.Queries) error {
		item, err := q.CreateStockItem(ctx, domain.StockItem{CafeID: f.cafeID, Name: name, UnitOfMeasure: "kg", CurrentQuantity: dec(qty)})
		if err != nil {
			return err
		}
		created = *item
		return f.ledger.Initialize(ctx, q, *item, dec(cost), "owner@example.com")
	})
	require.NoError(t, err)
	return created
}

func TestRecordWasteBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.stock(t, "Milk", "5", "1.20")

	err := f.repo.Atomic(ctx, func(q store.Queries) error {
		_, err := f.ledger.RecordWaste(ctx, q, f.cafeID, item.ID, dec("5.001"), "spilled", "")
		return err
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	var level domain.StockLevel
	err = f.repo.Atomic(ctx, func(q store.Queries) error {
		var err error
		level, err = f.ledger.RecordWaste(ctx, q, f.cafeID, item.ID, dec("5"), "spilled", "")
		return err
	})
	require.NoError(t, err)
	require.True(t, level.NewQuantity.IsZero())

	rec, err := f.ledger.Reconcile(ctx, f.repo, f.cafeID, item.ID)
	require.NoError(t, err)
	require.True(t, rec.Balanced)
}

func TestRecordWasteRejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.stock(t, "Sugar", "2", "0.20")
	_, err := f.ledger.RecordWaste(ctx, f.repo, f.cafeID, item.ID, dec("0"), "", "")
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestRestockAppendsCostOnlyWhenChanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.stock(t, "Beans", "10", "8.00")

	_, err := f.ledger.Restock(ctx, f.repo, f.cafeID, item.ID, dec("4"), mo.Some(dec("8.00")), "", "")
	require.NoError(t, err)
	history, err := f.repo.ListStockCostHistory(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	level, err := f.ledger.Restock(ctx, f.repo, f.cafeID, item.ID, dec("6"), mo.Some(dec("9.50")), "supplier B", "")
	require.NoError(t, err)
	require.True(t, level.NewQuantity.Equal(dec("20")))

	history, err = f.repo.ListStockCostHistory(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.True(t, history[0].CostPerUnit.Equal(dec("9.50")))

	txs, err := f.repo.ListStockTransactions(ctx, f.cafeID, item.ID, 0)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	require.Equal(t, domain.StockTxRestock, txs[0].Type)
}

func TestRecipeConsumptionRoundTripAllowsNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	flour := f.stock(t, "Flour", "1", "0.50")
	menu, err := f.repo.CreateMenuItem(ctx, domain.MenuItem{CafeID: f.cafeID, Name: "Bread"})
	require.NoError(t, err)
	_, err = f.repo.AddRecipeLine(ctx, domain.RecipeLine{MenuItemID: menu.ID, StockItemID: flour.ID, QuantityUsed: dec("0.4")})
	require.NoError(t, err)

	require.NoError(t, f.ledger.ApplyRecipeConsumption(ctx, f.repo, f.cafeID, menu.ID, 3, "sale", ""))
	got, err := f.repo.GetStockItem(ctx, f.cafeID, flour.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentQuantity.Equal(dec("-0.2")), "quantity %s", got.CurrentQuantity)

	require.NoError(t, f.ledger.ReverseRecipeConsumption(ctx, f.repo, f.cafeID, menu.ID, 3, "undo", ""))
	got, err = f.repo.GetStockItem(ctx, f.cafeID, flour.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentQuantity.Equal(dec("1")))

	rec, err := f.ledger.Reconcile(ctx, f.repo, f.cafeID, flour.ID)
	require.NoError(t, err)
	require.True(t, rec.Balanced, "drift %s", rec.Drift)
}

func TestRecordMenuWasteCostsRecipe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	milk := f.stock(t, "Milk", "3", "1.50")
	menu, err := f.repo.CreateMenuItem(ctx, domain.MenuItem{CafeID: f.cafeID, Name: "Latte"})
	require.NoError(t, err)
	_, err = f.repo.AddRecipeLine(ctx, domain.RecipeLine{MenuItemID: menu.ID, StockItemID: milk.ID, QuantityUsed: dec("0.2")})
	require.NoError(t, err)

	waste, err := f.ledger.RecordMenuWaste(ctx, f.repo, f.cafeID, menu.ID, dec("2"), "dropped", "")
	require.NoError(t, err)
	require.True(t, waste.TotalCost.Equal(dec("0.6")), "total %s", waste.TotalCost)

	got, err := f.repo.GetStockItem(ctx, f.cafeID, milk.ID)
	require.NoError(t, err)
	require.True(t, got.CurrentQuantity.Equal(dec("2.6")))
}

func TestLedgerIsScopedToCafe(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	item := f.stock(t, "Tea", "4", "0.10")

	owner, err := f.repo.GetUserByEmail(ctx, "owner@example.com")
	require.NoError(t, err)
	other, err := f.repo.CreateCafe(ctx, domain.Cafe{Name: "Other", OwnerID: owner.ID})
	require.NoError(t, err)

	_, err = f.ledger.RecordWaste(ctx, f.repo, other.ID, item.ID, dec("1"), "", "")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.ledger.Restock(ctx, f.repo, other.ID, item.ID, dec("1"), mo.None[decimal.Decimal](), "", "")
	require.ErrorIs(t, err, store.ErrNotFound)
}
