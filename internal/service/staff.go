package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/versioned"
)

func (s *Service) staffView(ctx context.Context, q store.Queries, staff domain.Staff) (domain.StaffView, error) {
	history, err := q.ListStaffSalaryHistory(ctx, staff.ID)
	if err != nil {
		return domain.StaffView{}, err
	}
	view := domain.StaffView{Staff: staff}
	if salary, ok := versioned.Resolve(history, s.today()).Get(); ok {
		view.DailySalary = decimal.NewNullDecimal(salary.DailySalary)
	}
	return view, nil
}

func (s *Service) ListStaff(ctx context.Context, cafeID string) ([]domain.StaffView, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	staff, err := s.repo.ListStaff(ctx, cafeID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.StaffView, 0, len(staff))
	for _, member := range staff {
		view, err := s.staffView(ctx, s.repo, member)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) GetStaff(ctx context.Context, cafeID string, staffID string) (domain.StaffView, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return domain.StaffView{}, err
	}
	staff, err := s.repo.GetStaff(ctx, cafeID, staffID)
	if err != nil {
		return domain.StaffView{}, err
	}
	return s.staffView(ctx, s.repo, *staff)
}

func (s *Service) CreateStaff(ctx context.Context, cafeID string, req domain.StaffCreateRequest) (domain.StaffView, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.StaffView{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.StaffView{}, fmt.Errorf("staff name is required: %w", store.ErrInvalidInput)
	}
	if req.DailySalary != nil && req.DailySalary.IsNegative() {
		return domain.StaffView{}, fmt.Errorf("daily_salary must not be negative: %w", store.ErrInvalidInput)
	}

	var view domain.StaffView
	err := s.repo.Atomic(ctx, func(q store.Queries) error {
		created, err := q.CreateStaff(ctx, domain.Staff{
			CafeID: cafeID,
			Name:   req.Name,
			Role:   strings.TrimSpace(req.Role),
			Email:  strings.ToLower(strings.TrimSpace(req.Email)),
			Phone:  strings.TrimSpace(req.Phone),
			Active: true,
		})
		if err != nil {
			return err
		}
		if req.DailySalary != nil {
			if _, err := q.AppendStaffSalary(ctx, domain.StaffSalary{StaffID: created.ID, DailySalary: *req.DailySalary, StartDate: s.today()}); err != nil {
				return err
			}
		}
		view, err = s.staffView(ctx, q, *created)
		return err
	})
	if err != nil {
		return domain.StaffView{}, err
	}

	s.reports.Invalidate(ctx, cafeID)
	s.logAudit(ctx, cafeID, "staff_create", "staff", view.ID, "name="+view.Name)
	return view, nil
}

func (s *Service) UpdateStaff(ctx context.Context, cafeID string, staffID string, req domain.StaffUpdateRequest) (domain.StaffView, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.StaffView{}, err
	}
	staff, err := s.repo.GetStaff(ctx, cafeID, staffID)
	if err != nil {
		return domain.StaffView{}, err
	}
	if v := trimmed(req.Name); v != nil {
		staff.Name = *v
	}
	if v := trimmed(req.Role); v != nil {
		staff.Role = *v
	}
	if v := trimmed(req.Email); v != nil {
		staff.Email = strings.ToLower(*v)
	}
	if v := trimmed(req.Phone); v != nil {
		staff.Phone = *v
	}
	if req.Active != nil {
		staff.Active = *req.Active
	}

	updated, err := s.repo.UpdateStaff(ctx, *staff)
	if err != nil {
		return domain.StaffView{}, err
	}
	s.reports.Invalidate(ctx, cafeID)
	s.logAudit(ctx, cafeID, "staff_update", "staff", staffID, fmt.Sprintf("name=%s,active=%t", updated.Name, updated.Active))
	return s.staffView(ctx, s.repo, *updated)
}

func (s *Service) DeleteStaff(ctx context.Context, cafeID string, staffID string) error {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteStaff(ctx, cafeID, staffID); err != nil {
		return err
	}
	s.reports.Invalidate(ctx, cafeID)
	s.logAudit(ctx, cafeID, "staff_delete", "staff", staffID, "")
	return nil
}

// SetSalary appends a salary row effective from the given date.
func (s *Service) SetSalary(ctx context.Context, cafeID string, staffID string, req domain.SalaryUpdateRequest) (domain.StaffSalary, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.StaffSalary{}, err
	}
	if req.DailySalary.IsNegative() {
		return domain.StaffSalary{}, fmt.Errorf("daily_salary must not be negative: %w", store.ErrInvalidInput)
	}
	start, err := s.parseDay(req.StartDate)
	if err != nil {
		return domain.StaffSalary{}, err
	}

	var created *domain.StaffSalary
	err = s.repo.Atomic(ctx, func(q store.Queries) error {
		if _, err := q.GetStaff(ctx, cafeID, staffID); err != nil {
			return err
		}
		created, err = q.AppendStaffSalary(ctx, domain.StaffSalary{StaffID: staffID, DailySalary: req.DailySalary, StartDate: start})
		return err
	})
	if err != nil {
		return domain.StaffSalary{}, err
	}
	s.reports.Invalidate(ctx, cafeID)
	s.logAudit(ctx, cafeID, "staff_salary_set", "staff", staffID, fmt.Sprintf("salary=%s,start=%s", created.DailySalary, start.Format(domain.DateLayout)))
	return *created, nil
}

func (s *Service) SalaryHistory(ctx context.Context, cafeID string, staffID string) ([]domain.StaffSalary, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetStaff(ctx, cafeID, staffID); err != nil {
		return nil, err
	}
	return s.repo.ListStaffSalaryHistory(ctx, staffID)
}
