package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cafeledger/backend/internal/domain"
)

func (s *Service) CreateOrder(ctx context.Context, cafeID string, req domain.OrderCreateRequest) (domain.OrderReceipt, error) {
	actor, err := s.authorize(ctx, cafeID, domain.RoleServer)
	if err != nil {
		return domain.OrderReceipt{}, err
	}
	receipt, err := s.orders.CreateOrder(ctx, cafeID, req, actor.Email)
	if err != nil {
		return domain.OrderReceipt{}, err
	}

	s.reports.Invalidate(ctx, cafeID)
	s.logAudit(ctx, cafeID, "order_create", "order", receipt.ID, fmt.Sprintf("lines=%d,revenue=%s,cost=%s", len(receipt.Items), receipt.TotalRevenue, receipt.TotalCost))
	return *receipt, nil
}

// ListOrders lists the café's orders; date (YYYY-MM-DD) narrows to one day.
func (s *Service) ListOrders(ctx context.Context, cafeID string, date string) ([]domain.OrderReceipt, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	var day time.Time
	if strings.TrimSpace(date) != "" {
		parsed, err := s.parseDay(date)
		if err != nil {
			return nil, err
		}
		day = parsed
	}
	return s.orders.ListOrders(ctx, cafeID, day)
}

func (s *Service) GetOrder(ctx context.Context, cafeID string, orderID string) (domain.OrderReceipt, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return domain.OrderReceipt{}, err
	}
	receipt, err := s.orders.GetOrder(ctx, cafeID, orderID)
	if err != nil {
		return domain.OrderReceipt{}, err
	}
	return *receipt, nil
}

// DeleteOrder undoes a sale: its ingredients go back to stock.
func (s *Service) DeleteOrder(ctx context.Context, cafeID string, orderID string) error {
	actor, err := s.authorize(ctx, cafeID, domain.RoleManager)
	if err != nil {
		return err
	}
	if err := s.orders.DeleteOrder(ctx, cafeID, orderID, actor.Email); err != nil {
		return err
	}
	s.reports.Invalidate(ctx, cafeID)
	s.logAudit(ctx, cafeID, "order_delete", "order", orderID, "")
	return nil
}
