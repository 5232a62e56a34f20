package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
)

// expenseDate normalises the date of an expense of the given kind. Monthly
// expenses are pinned to the first of their month.
func (s *Service) expenseDate(kind domain.ExpenseKind, value string) (time.Time, error) {
	if kind == domain.ExpenseMonthly {
		return s.parseMonth(value)
	}
	return s.parseDay(value)
}

func validKind(kind domain.ExpenseKind) error {
	if kind != domain.ExpenseMonthly && kind != domain.ExpenseDaily {
		return fmt.Errorf("expense kind must be monthly or daily: %w", store.ErrInvalidInput)
	}
	return nil
}

// ListExpenses returns expenses of one kind; period is YYYY-MM, or empty for
// all of them.
func (s *Service) ListExpenses(ctx context.Context, cafeID string, kind domain.ExpenseKind, period string) ([]domain.Expense, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	if err := validKind(kind); err != nil {
		return nil, err
	}
	var from, to time.Time
	if strings.TrimSpace(period) != "" {
		month, err := s.parseMonth(period)
		if err != nil {
			return nil, err
		}
		from, to = month, month.AddDate(0, 1, 0)
	}
	return s.repo.ListExpenses(ctx, cafeID, kind, from, to)
}

func (s *Service) CreateExpense(ctx context.Context, cafeID string, kind domain.ExpenseKind, req domain.ExpenseCreateRequest) (domain.Expense, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.Expense{}, err
	}
	if err := validKind(kind); err != nil {
		return domain.Expense{}, err
	}
	date, err := s.expenseDate(kind, req.Date)
	if err != nil {
		return domain.Expense{}, err
	}
	if req.Amount.IsNegative() || strings.TrimSpace(req.Description) == "" {
		return domain.Expense{}, fmt.Errorf("description and a non-negative amount are required: %w", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateExpense(ctx, domain.Expense{
		CafeID:      cafeID,
		Kind:        kind,
		Date:        date,
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
	})
	if err != nil {
		return domain.Expense{}, err
	}
	s.reports.Invalidate(ctx, cafeID)
	s.logAudit(ctx, cafeID, "expense_create", string(kind)+"_expense", created.ID, fmt.Sprintf("amount=%s,date=%s", created.Amount, date.Format(domain.DateLayout)))
	return *created, nil
}

func (s *Service) UpdateExpense(ctx context.Context, cafeID string, kind domain.ExpenseKind, expenseID string, req domain.ExpenseUpdateRequest) (domain.Expense, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.Expense{}, err
	}
	if err := validKind(kind); err != nil {
		return domain.Expense{}, err
	}
	expense, err := s.repo.GetExpense(ctx, cafeID, kind, expenseID)
	if err != nil {
		return domain.Expense{}, err
	}
	if req.Date != nil {
		date, err := s.expenseDate(kind, *req.Date)
		if err != nil {
			return domain.Expense{}, err
		}
		expense.Date = date
	}
	if v := trimmed(req.Description); v != nil {
		expense.Description = *v
	}
	if req.Amount != nil {
		expense.Amount = *req.Amount
	}

	updated, err := s.repo.UpdateExpense(ctx, *expense)
	if err != nil {
		return domain.Expense{}, err
	}
	s.reports.Invalidate(ctx, cafeID)
	s.logAudit(ctx, cafeID, "expense_update", string(kind)+"_expense", expenseID, fmt.Sprintf("amount=%s", updated.Amount))
	return *updated, nil
}

func (s *Service) DeleteExpense(ctx context.Context, cafeID string, kind domain.ExpenseKind, expenseID string) error {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return err
	}
	if err := validKind(kind); err != nil {
		return err
	}
	if err := s.repo.DeleteExpense(ctx, cafeID, kind, expenseID); err != nil {
		return err
	}
	s.reports.Invalidate(ctx, cafeID)
	s.logAudit(ctx, cafeID, "expense_delete", string(kind)+"_expense", expenseID, "")
	return nil
}
