// Package reporting aggregates sales snapshots, salaries and expenses into
// daily and monthly profit reports.
package reporting

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"cafeledger/backend/internal/cache"
	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/versioned"
)

// proRatePlaces matches the three decimal places money is stored with.
const proRatePlaces = 3

type Options struct {
	Location *time.Location
	CacheTTL time.Duration
	// MonthlyIncludesDailyExpenses makes daily expense rows count against
	// monthly totals and the per-day breakdown. Off by default.
	MonthlyIncludesDailyExpenses bool
}

type Engine struct {
	repo      store.Queries
	cache     cache.ReportCache
	cacheTTL  time.Duration
	loc       *time.Location
	withDaily bool

	mu   sync.Mutex
	gens map[string]uint64
}

func NewEngine(repo store.Queries, cacheStore cache.ReportCache, opts Options) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 60 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Engine{
		repo:      repo,
		cache:     cacheStore,
		cacheTTL:  opts.CacheTTL,
		loc:       opts.Location,
		withDaily: opts.MonthlyIncludesDailyExpenses,
		gens:      make(map[string]uint64),
	}
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

// Invalidate drops every cached report of a café. A report still being
// computed when this runs is cached under the previous generation, which no
// later lookup reads.
func (e *Engine) Invalidate(ctx context.Context, cafeID string) {
	e.mu.Lock()
	e.gens[cafeID]++
	e.mu.Unlock()
	if err := e.cache.InvalidatePrefix(ctx, cachePrefix(cafeID)); err != nil {
		log.Printf("[reporting] WARN: failed to invalidate cached reports cafe=%s: %v", cafeID, err)
	}
}

func (e *Engine) DailyReport(ctx context.Context, cafeID string, date time.Time) (*domain.DailyReport, error) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, e.loc)
	key := fmt.Sprintf("%sdaily:%s", e.keyPrefix(cafeID), start.Format(domain.DateLayout))
	if cached, ok, err := cache.GetJSON[domain.DailyReport](ctx, e.cache, key); err == nil && ok {
		return cached, nil
	}

	sales, err := e.repo.ListSaleLines(ctx, cafeID, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	active, histories, err := e.salaryInputs(ctx, cafeID)
	if err != nil {
		return nil, err
	}

	calendarDay := versioned.CalendarDate(start)
	dailyExpenses, err := e.repo.ListExpenses(ctx, cafeID, domain.ExpenseDaily, calendarDay, calendarDay.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	proRated, err := e.proRatedMonthly(ctx, cafeID, start)
	if err != nil {
		return nil, err
	}

	revenue, cogs := saleTotals(sales)
	salaries := salaryOn(active, histories, start)
	daily := sumExpenses(dailyExpenses)
	totalCosts := salaries.Add(daily).Add(proRated)
	gross := revenue.Sub(cogs)

	report := &domain.DailyReport{
		CafeID:       cafeID,
		Date:         start.Format(domain.DateLayout),
		Orders:       len(lo.UniqBy(sales, func(s domain.SaleLine) string { return s.OrderID })),
		TotalRevenue: revenue,
		TotalCOGS:    cogs,
		GrossProfit:  gross,
		Costs: domain.DailyCosts{
			Salaries:                salaries,
			DailyExpenses:           daily,
			ProRatedMonthlyExpenses: proRated,
			TotalCosts:              totalCosts,
		},
		NetProfit: gross.Sub(totalCosts),
	}

	if err := cache.SetJSON(ctx, e.cache, key, report, e.cacheTTL); err != nil {
		log.Printf("[reporting] WARN: failed to cache daily report cafe=%s: %v", cafeID, err)
	}
	return report, nil
}

// MonthlyReport aggregates the month of the given date. Salaries are resolved
// day by day so a mid-month change is honoured.
func (e *Engine) MonthlyReport(ctx context.Context, cafeID string, month time.Time) (*domain.MonthlyReport, error) {
	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, e.loc)
	end := start.AddDate(0, 1, 0)
	days := daysIn(start)
	key := fmt.Sprintf("%smonthly:%s:%t", e.keyPrefix(cafeID), start.Format(domain.MonthLayout), e.withDaily)
	if cached, ok, err := cache.GetJSON[domain.MonthlyReport](ctx, e.cache, key); err == nil && ok {
		return cached, nil
	}

	sales, err := e.repo.ListSaleLines(ctx, cafeID, start, end)
	if err != nil {
		return nil, err
	}
	active, histories, err := e.salaryInputs(ctx, cafeID)
	if err != nil {
		return nil, err
	}

	calendarMonth := versioned.CalendarDate(start)
	monthlyRows, err := e.repo.ListExpenses(ctx, cafeID, domain.ExpenseMonthly, calendarMonth, calendarMonth.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}
	dailyRows, err := e.repo.ListExpenses(ctx, cafeID, domain.ExpenseDaily, calendarMonth, calendarMonth.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}

	monthlyTotal := sumExpenses(monthlyRows)
	proRated := monthlyTotal.DivRound(decimal.NewFromInt(int64(days)), proRatePlaces)

	salesByDay := lo.GroupBy(sales, func(s domain.SaleLine) int {
		return s.Timestamp.In(e.loc).Day()
	})
	dailyByDay := lo.GroupBy(dailyRows, func(x domain.Expense) int {
		return x.Date.Day()
	})

	report := &domain.MonthlyReport{
		CafeID:                cafeID,
		Month:                 start.Format(domain.MonthLayout),
		Orders:                len(lo.UniqBy(sales, func(s domain.SaleLine) string { return s.OrderID })),
		IncludesDailyExpenses: e.withDaily,
		DailyBreakdown:        make([]domain.DailyBreakdownEntry, 0, days),
	}

	salaryTotal := decimal.Zero
	for day := 1; day <= days; day++ {
		date := time.Date(start.Year(), start.Month(), day, 0, 0, 0, 0, e.loc)
		revenue, cogs := saleTotals(salesByDay[day])
		salaries := salaryOn(active, histories, date)
		daily := sumExpenses(dailyByDay[day])
		salaryTotal = salaryTotal.Add(salaries)

		net := revenue.Sub(cogs).Sub(salaries).Sub(proRated)
		if e.withDaily {
			net = net.Sub(daily)
		}
		report.DailyBreakdown = append(report.DailyBreakdown, domain.DailyBreakdownEntry{
			Date:                    date.Format(domain.DateLayout),
			Revenue:                 revenue,
			COGS:                    cogs,
			Salaries:                salaries,
			ProRatedMonthlyExpenses: proRated,
			DailyExpenses:           daily,
			NetProfit:               net,
		})
	}

	revenue, cogs := saleTotals(sales)
	dailyTotal := sumExpenses(dailyRows)
	totalCosts := salaryTotal.Add(monthlyTotal)
	if e.withDaily {
		totalCosts = totalCosts.Add(dailyTotal)
	}
	report.TotalRevenue = revenue
	report.TotalCOGS = cogs
	report.GrossProfit = revenue.Sub(cogs)
	report.Costs = domain.MonthlyCosts{
		Salaries:        salaryTotal,
		MonthlyExpenses: monthlyTotal,
		DailyExpenses:   dailyTotal,
		TotalCosts:      totalCosts,
	}
	report.NetProfit = report.GrossProfit.Sub(totalCosts)

	if err := cache.SetJSON(ctx, e.cache, key, report, e.cacheTTL); err != nil {
		log.Printf("[reporting] WARN: failed to cache monthly report cafe=%s: %v", cafeID, err)
	}
	return report, nil
}

func (e *Engine) salaryInputs(ctx context.Context, cafeID string) ([]domain.Staff, map[string][]domain.StaffSalary, error) {
	staff, err := e.repo.ListStaff(ctx, cafeID)
	if err != nil {
		return nil, nil, err
	}
	histories, err := e.repo.ListCafeSalaryHistories(ctx, cafeID)
	if err != nil {
		return nil, nil, err
	}
	active := lo.Filter(staff, func(s domain.Staff, _ int) bool { return s.Active })
	return active, histories, nil
}

func (e *Engine) proRatedMonthly(ctx context.Context, cafeID string, day time.Time) (decimal.Decimal, error) {
	monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	rows, err := e.repo.ListExpenses(ctx, cafeID, domain.ExpenseMonthly, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		return decimal.Zero, err
	}
	return sumExpenses(rows).DivRound(decimal.NewFromInt(int64(daysIn(monthStart))), proRatePlaces), nil
}

// salaryOn sums the salary each staff member had on date; staff without a
// salary row contribute nothing.
func salaryOn(staff []domain.Staff, histories map[string][]domain.StaffSalary, date time.Time) decimal.Decimal {
	return lo.Reduce(staff, func(total decimal.Decimal, s domain.Staff, _ int) decimal.Decimal {
		if salary, ok := versioned.Resolve(histories[s.ID], date).Get(); ok {
			return total.Add(salary.DailySalary)
		}
		return total
	}, decimal.Zero)
}

func saleTotals(lines []domain.SaleLine) (decimal.Decimal, decimal.Decimal) {
	revenue, cogs := decimal.Zero, decimal.Zero
	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		revenue = revenue.Add(line.PriceAtSale.Mul(qty))
		cogs = cogs.Add(line.CostAtSale.Mul(qty))
	}
	return revenue, cogs
}

func sumExpenses(rows []domain.Expense) decimal.Decimal {
	return lo.Reduce(rows, func(total decimal.Decimal, x domain.Expense, _ int) decimal.Decimal {
		return total.Add(x.Amount)
	}, decimal.Zero)
}

func daysIn(monthStart time.Time) int {
	return time.Date(monthStart.Year(), monthStart.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (e *Engine) keyPrefix(cafeID string) string {
	e.mu.Lock()
	gen := e.gens[cafeID]
	e.mu.Unlock()
	return fmt.Sprintf("%sg%d:", cachePrefix(cafeID), gen)
}

func cachePrefix(cafeID string) string {
	return "report:" + cafeID + ":"
}
