package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
)

const cafeHistoryLimit = 100

func (s *Service) stockView(ctx context.Context, q store.Queries, item domain.StockItem) (domain.StockItemView, error) {
	cost, err := q.StockCostAsOf(ctx, item.ID, s.today())
	if err != nil {
		return domain.StockItemView{}, err
	}
	view := domain.StockItemView{
		StockItem:   item,
		CostPerUnit: decimal.Zero,
		LowStock:    item.CurrentQuantity.LessThanOrEqual(item.LowStockThreshold),
	}
	if current, ok := cost.Get(); ok {
		view.CostPerUnit = current.CostPerUnit
	}
	return view, nil
}

func (s *Service) ListStock(ctx context.Context, cafeID string) ([]domain.StockItemView, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	items, err := s.repo.ListStockItems(ctx, cafeID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.StockItemView, 0, len(items))
	for _, item := range items {
		view, err := s.stockView(ctx, s.repo, item)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) GetStock(ctx context.Context, cafeID string, itemID string) (domain.StockItemView, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return domain.StockItemView{}, err
	}
	item, err := s.repo.GetStockItem(ctx, cafeID, itemID)
	if err != nil {
		return domain.StockItemView{}, err
	}
	return s.stockView(ctx, s.repo, *item)
}

// CreateStock creates the item with its opening cost row and an initial
// ledger entry.
func (s *Service) CreateStock(ctx context.Context, cafeID string, req domain.StockItemCreateRequest) (domain.StockItemView, error) {
	actor, err := s.authorize(ctx, cafeID, domain.RoleManager)
	if err != nil {
		return domain.StockItemView{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || strings.TrimSpace(req.UnitOfMeasure) == "" {
		return domain.StockItemView{}, fmt.Errorf("name and unit_of_measure are required: %w", store.ErrInvalidInput)
	}
	if req.CurrentQuantity.IsNegative() || req.LowStockThreshold.IsNegative() || req.CostPerUnit.IsNegative() {
		return domain.StockItemView{}, fmt.Errorf("quantities and cost must not be negative: %w", store.ErrInvalidInput)
	}

	var view domain.StockItemView
	err = s.repo.Atomic(ctx, func(q store.Queries) error {
		created, err := q.CreateStockItem(ctx, domain.StockItem{
			CafeID:            cafeID,
			Name:              req.Name,
			UnitOfMeasure:     strings.TrimSpace(req.UnitOfMeasure),
			CurrentQuantity:   req.CurrentQuantity,
			LowStockThreshold: req.LowStockThreshold,
		})
		if err != nil {
			return err
		}
		if err := s.ledger.Initialize(ctx, q, *created, req.CostPerUnit, actor.Email); err != nil {
			return err
		}
		view, err = s.stockView(ctx, q, *created)
		return err
	})
	if err != nil {
		return domain.StockItemView{}, err
	}

	s.logAudit(ctx, cafeID, "stock_create", "stock_item", view.ID, fmt.Sprintf("name=%s,qty=%s,cost=%s", view.Name, view.CurrentQuantity, view.CostPerUnit))
	return view, nil
}

func (s *Service) UpdateStock(ctx context.Context, cafeID string, itemID string, req domain.StockItemUpdateRequest) (domain.StockItemView, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.StockItemView{}, err
	}
	item, err := s.repo.GetStockItem(ctx, cafeID, itemID)
	if err != nil {
		return domain.StockItemView{}, err
	}
	if v := trimmed(req.Name); v != nil {
		item.Name = *v
	}
	if v := trimmed(req.UnitOfMeasure); v != nil {
		item.UnitOfMeasure = *v
	}
	if req.LowStockThreshold != nil {
		if req.LowStockThreshold.IsNegative() {
			return domain.StockItemView{}, fmt.Errorf("low_stock_threshold must not be negative: %w", store.ErrInvalidInput)
		}
		item.LowStockThreshold = *req.LowStockThreshold
	}

	updated, err := s.repo.UpdateStockItem(ctx, *item)
	if err != nil {
		return domain.StockItemView{}, err
	}
	s.logAudit(ctx, cafeID, "stock_update", "stock_item", itemID, "name="+updated.Name)
	return s.stockView(ctx, s.repo, *updated)
}

func (s *Service) DeleteStock(ctx context.Context, cafeID string, itemID string) error {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteStockItem(ctx, cafeID, itemID); err != nil {
		return err
	}
	s.logAudit(ctx, cafeID, "stock_delete", "stock_item", itemID, "")
	return nil
}

// SetStockCost appends a cost row. Earlier rows are kept as history.
func (s *Service) SetStockCost(ctx context.Context, cafeID string, itemID string, req domain.CostUpdateRequest) (domain.StockCost, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.StockCost{}, err
	}
	if req.CostPerUnit.IsNegative() {
		return domain.StockCost{}, fmt.Errorf("cost_per_unit must not be negative: %w", store.ErrInvalidInput)
	}
	start, err := s.parseDay(req.StartDate)
	if err != nil {
		return domain.StockCost{}, err
	}

	var created *domain.StockCost
	err = s.repo.Atomic(ctx, func(q store.Queries) error {
		if _, err := q.GetStockItem(ctx, cafeID, itemID); err != nil {
			return err
		}
		created, err = q.AppendStockCost(ctx, domain.StockCost{StockItemID: itemID, CostPerUnit: req.CostPerUnit, StartDate: start})
		return err
	})
	if err != nil {
		return domain.StockCost{}, err
	}
	s.logAudit(ctx, cafeID, "stock_cost_set", "stock_item", itemID, fmt.Sprintf("cost=%s,start=%s", created.CostPerUnit, start.Format(domain.DateLayout)))
	return *created, nil
}

func (s *Service) StockCostHistory(ctx context.Context, cafeID string, itemID string) ([]domain.StockCost, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetStockItem(ctx, cafeID, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListStockCostHistory(ctx, itemID)
}

func (s *Service) Restock(ctx context.Context, cafeID string, itemID string, req domain.RestockRequest) (domain.StockLevel, error) {
	actor, err := s.authorize(ctx, cafeID, domain.RoleServer)
	if err != nil {
		return domain.StockLevel{}, err
	}
	newCost := mo.PointerToOption(req.CostPerUnit)

	var level domain.StockLevel
	err = s.repo.Atomic(ctx, func(q store.Queries) error {
		var err error
		level, err = s.ledger.Restock(ctx, q, cafeID, itemID, req.Quantity, newCost, strings.TrimSpace(req.Notes), actor.Email)
		return err
	})
	if err != nil {
		return domain.StockLevel{}, err
	}
	s.logAudit(ctx, cafeID, "stock_restock", "stock_item", itemID, fmt.Sprintf("qty=%s,new_qty=%s", req.Quantity, level.NewQuantity))
	return level, nil
}

func (s *Service) RecordWaste(ctx context.Context, cafeID string, itemID string, req domain.WasteRequest) (domain.StockLevel, error) {
	actor, err := s.authorize(ctx, cafeID, domain.RoleServer)
	if err != nil {
		return domain.StockLevel{}, err
	}

	var level domain.StockLevel
	err = s.repo.Atomic(ctx, func(q store.Queries) error {
		var err error
		level, err = s.ledger.RecordWaste(ctx, q, cafeID, itemID, req.Quantity, strings.TrimSpace(req.Reason), actor.Email)
		return err
	})
	if err != nil {
		return domain.StockLevel{}, err
	}
	s.logAudit(ctx, cafeID, "stock_waste", "stock_item", itemID, fmt.Sprintf("qty=%s,reason=%s", req.Quantity, req.Reason))
	return level, nil
}

func (s *Service) StockHistory(ctx context.Context, cafeID string, itemID string, limit int) ([]domain.StockTransaction, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetStockItem(ctx, cafeID, itemID); err != nil {
		return nil, err
	}
	return s.repo.ListStockTransactions(ctx, cafeID, itemID, limit)
}

// CafeStockHistory returns the latest ledger entries across all items.
func (s *Service) CafeStockHistory(ctx context.Context, cafeID string) ([]domain.StockTransaction, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	return s.repo.ListStockTransactions(ctx, cafeID, "", cafeHistoryLimit)
}

func (s *Service) ReconcileStock(ctx context.Context, cafeID string, itemID string) (domain.StockReconciliation, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return domain.StockReconciliation{}, err
	}
	return s.ledger.Reconcile(ctx, s.repo, cafeID, itemID)
}
