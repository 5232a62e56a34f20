package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
)

func seedCafe(t *testing.T, s *Store) (domain.Cafe, domain.StockItem) {
	t.Helper()
	ctx := context.Background()
	user, err := s.CreateUser(ctx, domain.User{Email: "Owner@Example.com", PasswordHash: "hash"})
	require.NoError(t, err)
	cafe, err := s.CreateCafe(ctx, domain.Cafe{Name: "Corner", OwnerID: user.ID})
	require.NoError(t, err)
	require.NoError(t, s.UpsertCafeRole(ctx, domain.CafeRole{CafeID: cafe.ID, UserID: user.ID, Role: domain.RoleOwner}))
	item, err := s.CreateStockItem(ctx, domain.StockItem{CafeID: cafe.ID, Name: "Milk", UnitOfMeasure: "l", CurrentQuantity: decimal.NewFromInt(5)})
	require.NoError(t, err)
	return *cafe, *item
}

func TestAtomicRollsBackOnError(t *testing.T) {
	s := New()
	cafe, milk := seedCafe(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(q store.Queries) error {
		if _, err := q.AdjustStockQuantity(ctx, cafe.ID, milk.ID, decimal.NewFromInt(-3), false); err != nil {
			return err
		}
		if err := q.AppendStockTransaction(ctx, domain.StockTransaction{StockItemID: milk.ID, QuantityChange: decimal.NewFromInt(-3), Type: domain.StockTxUsage}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	item, err := s.GetStockItem(ctx, cafe.ID, milk.ID)
	require.NoError(t, err)
	require.True(t, item.CurrentQuantity.Equal(decimal.NewFromInt(5)))
	txs, err := s.ListStockTransactions(ctx, cafe.ID, milk.ID, 0)
	require.NoError(t, err)
	require.Empty(t, txs)
}

func TestAtomicCommits(t *testing.T) {
	s := New()
	cafe, milk := seedCafe(t, s)
	ctx := context.Background()

	err := s.Atomic(ctx, func(q store.Queries) error {
		_, err := q.AdjustStockQuantity(ctx, cafe.ID, milk.ID, decimal.NewFromInt(2), false)
		return err
	})
	require.NoError(t, err)

	item, err := s.GetStockItem(ctx, cafe.ID, milk.ID)
	require.NoError(t, err)
	require.True(t, item.CurrentQuantity.Equal(decimal.NewFromInt(7)))
}

func TestAdjustRefusesNegativeUnlessAllowed(t *testing.T) {
	s := New()
	cafe, milk := seedCafe(t, s)
	ctx := context.Background()

	_, err := s.AdjustStockQuantity(ctx, cafe.ID, milk.ID, decimal.RequireFromString("-5.001"), false)
	require.ErrorIs(t, err, store.ErrInsufficientStock)

	qty, err := s.AdjustStockQuantity(ctx, cafe.ID, milk.ID, decimal.NewFromInt(-6), true)
	require.NoError(t, err)
	require.True(t, qty.Equal(decimal.NewFromInt(-1)))
}

func TestUniqueNamesAndEmails(t *testing.T) {
	s := New()
	cafe, _ := seedCafe(t, s)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, domain.User{Email: "owner@example.com ", PasswordHash: "hash"})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = s.CreateStockItem(ctx, domain.StockItem{CafeID: cafe.ID, Name: "MILK", UnitOfMeasure: "l"})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = s.CreateMenuItem(ctx, domain.MenuItem{CafeID: cafe.ID, Name: "Latte"})
	require.NoError(t, err)
	_, err = s.CreateMenuItem(ctx, domain.MenuItem{CafeID: cafe.ID, Name: "latte"})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestHistoryAsOfPicksLatestRecordedRow(t *testing.T) {
	s := New()
	_, milk := seedCafe(t, s)
	ctx := context.Background()
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, cost := range []string{"1.00", "1.25"} {
		_, err := s.AppendStockCost(ctx, domain.StockCost{StockItemID: milk.ID, CostPerUnit: decimal.RequireFromString(cost), StartDate: day})
		require.NoError(t, err)
	}

	before, err := s.StockCostAsOf(ctx, milk.ID, day.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.True(t, before.IsAbsent())

	current, err := s.StockCostAsOf(ctx, milk.ID, day)
	require.NoError(t, err)
	require.True(t, current.MustGet().CostPerUnit.Equal(decimal.RequireFromString("1.25")))

	history, err := s.ListStockCostHistory(ctx, milk.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.True(t, history[0].CostPerUnit.Equal(decimal.RequireFromString("1.25")))
}

func TestDeleteCafeCascades(t *testing.T) {
	s := New()
	cafe, milk := seedCafe(t, s)
	ctx := context.Background()

	require.NoError(t, s.DeleteCafe(ctx, cafe.ID))

	_, err := s.GetStockItem(ctx, cafe.ID, milk.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetCafeRole(ctx, cafe.ID, cafe.OwnerID)
	require.ErrorIs(t, err, store.ErrNotFound)
	cafes, err := s.ListCafesForUser(ctx, cafe.OwnerID)
	require.NoError(t, err)
	require.Empty(t, cafes)
}

func TestScopedLookups(t *testing.T) {
	s := New()
	cafe, milk := seedCafe(t, s)
	other, err := s.CreateCafe(context.Background(), domain.Cafe{Name: "Other", OwnerID: cafe.OwnerID})
	require.NoError(t, err)

	_, err = s.GetStockItem(context.Background(), other.ID, milk.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.DeleteStockItem(context.Background(), other.ID, milk.ID), store.ErrNotFound)
}
