package reporting

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cafeledger/backend/internal/cache"
	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/store/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

type books struct {
	repo   *memory.Store
	cafeID string
	staff  string
	menu   string
}

func newBooks(t *testing.T) books {
	t.Helper()
	ctx := context.Background()
	repo := memory.New()
	user, err := repo.CreateUser(ctx, domain.User{Email: "owner@example.com", PasswordHash: "x"})
	require.NoError(t, err)
	cafe, err := repo.CreateCafe(ctx, domain.Cafe{Name: "June Cafe", OwnerID: user.ID})
	require.NoError(t, err)
	staff, err := repo.CreateStaff(ctx, domain.Staff{CafeID: cafe.ID, Name: "Ana", Active: true})
	require.NoError(t, err)
	menu, err := repo.CreateMenuItem(ctx, domain.MenuItem{CafeID: cafe.ID, Name: "Espresso"})
	require.NoError(t, err)
	return books{repo: repo, cafeID: cafe.ID, staff: staff.ID, menu: menu.ID}
}

func (b books) sale(t *testing.T, at time.Time, qty int, price, cost string) {
	t.Helper()
	_, err := b.repo.CreateOrder(context.Background(), domain.Order{
		CafeID:    b.cafeID,
		StaffID:   b.staff,
		Timestamp: at,
		Items: []domain.OrderItem{{
			MenuItemID:  b.menu,
			Quantity:    qty,
			PriceAtSale: dec(price),
			CostAtSale:  dec(cost),
		}},
	})
	require.NoError(t, err)
}

func (b books) expense(t *testing.T, kind domain.ExpenseKind, date time.Time, amount string) {
	t.Helper()
	_, err := b.repo.CreateExpense(context.Background(), domain.Expense{
		CafeID:      b.cafeID,
		Kind:        kind,
		Date:        date,
		Description: "rent",
		Amount:      dec(amount),
	})
	require.NoError(t, err)
}

func (b books) salary(t *testing.T, staffID string, from time.Time, amount string) {
	t.Helper()
	_, err := b.repo.AppendStaffSalary(context.Background(), domain.StaffSalary{StaffID: staffID, DailySalary: dec(amount), StartDate: from})
	require.NoError(t, err)
}

func TestDailyReportProRatesMonthlyExpenses(t *testing.T) {
	b := newBooks(t)
	b.expense(t, domain.ExpenseMonthly, day(1), "300")
	engine := NewEngine(b.repo, nil, Options{})

	for _, d := range []int{1, 15, 30} {
		report, err := engine.DailyReport(context.Background(), b.cafeID, day(d))
		require.NoError(t, err)
		require.True(t, report.Costs.ProRatedMonthlyExpenses.Equal(dec("10")), "day %d got %s", d, report.Costs.ProRatedMonthlyExpenses)
	}
}

func TestDailyReportTotals(t *testing.T) {
	b := newBooks(t)
	b.salary(t, b.staff, day(1), "50")
	b.expense(t, domain.ExpenseDaily, day(12), "7.5")
	b.expense(t, domain.ExpenseDaily, day(13), "99")
	b.sale(t, day(12).Add(9*time.Hour), 3, "4.00", "1.20")
	b.sale(t, day(12).Add(23*time.Hour+59*time.Minute), 1, "4.00", "1.20")
	b.sale(t, day(13), 10, "4.00", "1.20")

	inactive, err := b.repo.CreateStaff(context.Background(), domain.Staff{CafeID: b.cafeID, Name: "Gone", Active: false})
	require.NoError(t, err)
	b.salary(t, inactive.ID, day(1), "80")

	engine := NewEngine(b.repo, nil, Options{})
	report, err := engine.DailyReport(context.Background(), b.cafeID, day(12))
	require.NoError(t, err)

	require.Equal(t, 2, report.Orders)
	require.True(t, report.TotalRevenue.Equal(dec("16")))
	require.True(t, report.TotalCOGS.Equal(dec("4.8")))
	require.True(t, report.GrossProfit.Equal(dec("11.2")))
	require.True(t, report.Costs.Salaries.Equal(dec("50")))
	require.True(t, report.Costs.DailyExpenses.Equal(dec("7.5")))
	require.True(t, report.NetProfit.Equal(dec("-46.3")), "net %s", report.NetProfit)
}

func TestMonthlyReportResolvesSalaryPerDay(t *testing.T) {
	b := newBooks(t)
	b.salary(t, b.staff, day(1), "10")
	b.salary(t, b.staff, day(16), "20")
	b.expense(t, domain.ExpenseMonthly, day(1), "300")
	b.expense(t, domain.ExpenseDaily, day(3), "5")
	b.sale(t, day(2).Add(time.Hour), 2, "5.00", "2.00")

	engine := NewEngine(b.repo, nil, Options{})
	report, err := engine.MonthlyReport(context.Background(), b.cafeID, day(20))
	require.NoError(t, err)

	require.Equal(t, "2024-06", report.Month)
	require.Len(t, report.DailyBreakdown, 30)
	require.True(t, report.Costs.Salaries.Equal(dec("450")), "salaries %s", report.Costs.Salaries)
	require.True(t, report.Costs.MonthlyExpenses.Equal(dec("300")))
	require.True(t, report.Costs.DailyExpenses.Equal(dec("5")))
	require.True(t, report.Costs.TotalCosts.Equal(dec("750")))
	require.True(t, report.NetProfit.Equal(dec("-744")), "net %s", report.NetProfit)
	require.False(t, report.IncludesDailyExpenses)

	second := report.DailyBreakdown[1]
	require.Equal(t, "2024-06-02", second.Date)
	require.True(t, second.NetProfit.Equal(dec("-14")), "day 2 net %s", second.NetProfit)
	third := report.DailyBreakdown[2]
	require.True(t, third.DailyExpenses.Equal(dec("5")))
	require.True(t, third.NetProfit.Equal(dec("-20")), "day 3 net %s", third.NetProfit)
	require.True(t, report.DailyBreakdown[15].Salaries.Equal(dec("20")))
}

func TestMonthlyReportCanIncludeDailyExpenses(t *testing.T) {
	b := newBooks(t)
	b.expense(t, domain.ExpenseDaily, day(3), "5")

	engine := NewEngine(b.repo, nil, Options{MonthlyIncludesDailyExpenses: true})
	report, err := engine.MonthlyReport(context.Background(), b.cafeID, day(1))
	require.NoError(t, err)
	require.True(t, report.IncludesDailyExpenses)
	require.True(t, report.Costs.TotalCosts.Equal(dec("5")))
	require.True(t, report.DailyBreakdown[2].NetProfit.Equal(dec("-5")))
}

func TestReportsAreCachedUntilInvalidated(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	engine := NewEngine(b.repo, cache.NewMemoryReportCache(), Options{CacheTTL: time.Hour})

	first, err := engine.DailyReport(ctx, b.cafeID, day(5))
	require.NoError(t, err)
	require.True(t, first.TotalRevenue.IsZero())

	b.sale(t, day(5).Add(time.Hour), 1, "3.00", "1.00")
	cached, err := engine.DailyReport(ctx, b.cafeID, day(5))
	require.NoError(t, err)
	require.True(t, cached.TotalRevenue.IsZero())

	engine.Invalidate(ctx, b.cafeID)
	fresh, err := engine.DailyReport(ctx, b.cafeID, day(5))
	require.NoError(t, err)
	require.True(t, fresh.TotalRevenue.Equal(dec("3")))
}

// commitDuringRead runs hook once, right after the sales of a report have
// been read.
type commitDuringRead struct {
	store.Queries
	hook func()
}

func (q *commitDuringRead) ListSaleLines(ctx context.Context, cafeID string, from time.Time, to time.Time) ([]domain.SaleLine, error) {
	lines, err := q.Queries.ListSaleLines(ctx, cafeID, from, to)
	if hook := q.hook; hook != nil {
		q.hook = nil
		hook()
	}
	return lines, err
}

func TestReportComputedAcrossInvalidationIsNotServed(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	queries := &commitDuringRead{Queries: b.repo}
	engine := NewEngine(queries, cache.NewMemoryReportCache(), Options{CacheTTL: time.Hour})
	queries.hook = func() {
		b.sale(t, day(5).Add(time.Hour), 1, "3.00", "1.00")
		engine.Invalidate(ctx, b.cafeID)
	}

	stale, err := engine.DailyReport(ctx, b.cafeID, day(5))
	require.NoError(t, err)
	require.True(t, stale.TotalRevenue.IsZero())

	fresh, err := engine.DailyReport(ctx, b.cafeID, day(5))
	require.NoError(t, err)
	require.True(t, fresh.TotalRevenue.Equal(dec("3")), "revenue %s", fresh.TotalRevenue)
}

func TestMonthlyExpenseProRatingRoundsPerDay(t *testing.T) {
	b := newBooks(t)
	ctx := context.Background()
	july := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	b.expense(t, domain.ExpenseMonthly, july, "100")
	engine := NewEngine(b.repo, nil, Options{})

	daily, err := engine.DailyReport(ctx, b.cafeID, july.AddDate(0, 0, 14))
	require.NoError(t, err)
	require.True(t, daily.Costs.ProRatedMonthlyExpenses.Equal(dec("3.226")), "pro-rated %s", daily.Costs.ProRatedMonthlyExpenses)

	monthly, err := engine.MonthlyReport(ctx, b.cafeID, july)
	require.NoError(t, err)
	require.Len(t, monthly.DailyBreakdown, 31)
	require.True(t, monthly.Costs.MonthlyExpenses.Equal(dec("100")))
	require.True(t, monthly.NetProfit.Equal(dec("-100")), "net %s", monthly.NetProfit)

	breakdownNet := decimal.Zero
	for _, entry := range monthly.DailyBreakdown {
		require.True(t, entry.ProRatedMonthlyExpenses.Equal(dec("3.226")))
		breakdownNet = breakdownNet.Add(entry.NetProfit)
	}
	// Per-day shares are rounded to money precision, so the breakdown drifts
	// from the monthly total by the rounding remainder.
	require.True(t, breakdownNet.Equal(dec("-100.006")), "breakdown net %s", breakdownNet)
}

func TestDailyReportUsesReportLocation(t *testing.T) {
	b := newBooks(t)
	loc := time.FixedZone("UTC+7", 7*60*60)
	b.sale(t, time.Date(2024, 6, 9, 20, 0, 0, 0, time.UTC), 1, "2.00", "0.50")

	engine := NewEngine(b.repo, nil, Options{Location: loc})
	report, err := engine.DailyReport(context.Background(), b.cafeID, day(10))
	require.NoError(t, err)
	require.True(t, report.TotalRevenue.Equal(dec("2")))
}
