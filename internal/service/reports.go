package service

import (
	"context"

	"cafeledger/backend/internal/domain"
)

func (s *Service) DailyReport(ctx context.Context, cafeID string, date string) (domain.DailyReport, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return domain.DailyReport{}, err
	}
	day, err := s.parseDay(date)
	if err != nil {
		return domain.DailyReport{}, err
	}
	report, err := s.reports.DailyReport(ctx, cafeID, day)
	if err != nil {
		return domain.DailyReport{}, err
	}
	return *report, nil
}

func (s *Service) MonthlyReport(ctx context.Context, cafeID string, month string) (domain.MonthlyReport, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return domain.MonthlyReport{}, err
	}
	start, err := s.parseMonth(month)
	if err != nil {
		return domain.MonthlyReport{}, err
	}
	report, err := s.reports.MonthlyReport(ctx, cafeID, start)
	if err != nil {
		return domain.MonthlyReport{}, err
	}
	return *report, nil
}
