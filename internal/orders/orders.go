// Package orders records sales. An order snapshots the price and unit cost of
// each line at the sale date and draws the recipe ingredients out of stock,
// all inside one store transaction.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"cafeledger/backend/internal/costing"
	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/inventory"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/versioned"
)

var ErrMissingPrice = errors.New("menu item has no price on the sale date")

type Processor struct {
	repo   store.Repository
	ledger *inventory.Ledger
	loc    *time.Location
	now    func() time.Time
}

func NewProcessor(repo store.Repository, ledger *inventory.Ledger, loc *time.Location) *Processor {
	if loc == nil {
		loc = time.UTC
	}
	return &Processor{repo: repo, ledger: ledger, loc: loc, now: time.Now}
}

// CreateOrder validates, prices and persists an order. Any failure rolls the
// whole order back, including stock already drawn for earlier lines.
func (p *Processor) CreateOrder(ctx context.Context, cafeID string, req domain.OrderCreateRequest, actor string) (*domain.OrderReceipt, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("order needs at least one item: %w", store.ErrInvalidInput)
	}
	for _, line := range req.Items {
		if line.MenuItemID == "" || line.Quantity < 1 {
			return nil, fmt.Errorf("order lines need a menu item and quantity >= 1: %w", store.ErrInvalidInput)
		}
	}

	timestamp := p.now().UTC()
	if req.Timestamp != nil && !req.Timestamp.IsZero() {
		timestamp = req.Timestamp.UTC()
	}
	saleDate := versioned.Day(timestamp, p.loc)

	var receipt *domain.OrderReceipt
	err := p.repo.Atomic(ctx, func(q store.Queries) error {
		staff, err := q.GetStaff(ctx, cafeID, req.StaffID)
		if err != nil {
			return fmt.Errorf("staff %s: %w", req.StaffID, err)
		}

		items := make([]domain.OrderItem, 0, len(req.Items))
		names := make(map[string]string, len(req.Items))
		for _, line := range req.Items {
			menu, err := q.GetMenuItem(ctx, cafeID, line.MenuItemID)
			if err != nil {
				return fmt.Errorf("menu item %s: %w", line.MenuItemID, err)
			}
			names[menu.ID] = menu.Name

			price, err := q.MenuPriceAsOf(ctx, menu.ID, saleDate)
			if err != nil {
				return err
			}
			current, ok := price.Get()
			if !ok {
				return fmt.Errorf("%s on %s: %w", menu.Name, saleDate.Format(domain.DateLayout), ErrMissingPrice)
			}

			breakdown, err := costing.UnitCost(ctx, q, menu.ID, saleDate)
			if err != nil {
				return err
			}
			for _, stockID := range breakdown.Unpriced {
				log.Printf("[orders] WARN: stock item %s has no cost on %s, costing %s at zero", stockID, saleDate.Format(domain.DateLayout), menu.Name)
			}

			items = append(items, domain.OrderItem{
				MenuItemID:  menu.ID,
				Quantity:    line.Quantity,
				PriceAtSale: current.SalePrice,
				CostAtSale:  breakdown.Total,
			})
		}

		order, err := q.CreateOrder(ctx, domain.Order{
			CafeID:    cafeID,
			StaffID:   staff.ID,
			Timestamp: timestamp,
			Items:     items,
		})
		if err != nil {
			return err
		}

		note := "Order " + order.ID
		for _, item := range order.Items {
			if err := p.ledger.ApplyRecipeConsumption(ctx, q, cafeID, item.MenuItemID, item.Quantity, note, actor); err != nil {
				return err
			}
		}

		receipt = buildReceipt(*order, staff.Name, names)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// DeleteOrder returns every ingredient the order consumed and removes it.
func (p *Processor) DeleteOrder(ctx context.Context, cafeID string, orderID string, actor string) error {
	return p.repo.Atomic(ctx, func(q store.Queries) error {
		order, err := q.GetOrder(ctx, cafeID, orderID)
		if err != nil {
			return err
		}
		note := "Order " + order.ID + " deleted"
		for _, item := range order.Items {
			if err := p.ledger.ReverseRecipeConsumption(ctx, q, cafeID, item.MenuItemID, item.Quantity, note, actor); err != nil {
				return err
			}
		}
		return q.DeleteOrder(ctx, cafeID, orderID)
	})
}

func (p *Processor) GetOrder(ctx context.Context, cafeID string, orderID string) (*domain.OrderReceipt, error) {
	order, err := p.repo.GetOrder(ctx, cafeID, orderID)
	if err != nil {
		return nil, err
	}
	receipts, err := p.receipts(ctx, cafeID, []domain.Order{*order})
	if err != nil {
		return nil, err
	}
	return &receipts[0], nil
}

// ListOrders returns the café's orders, newest first. A non-zero day limits
// the result to that calendar day in the report location.
func (p *Processor) ListOrders(ctx context.Context, cafeID string, day time.Time) ([]domain.OrderReceipt, error) {
	var from, to time.Time
	if !day.IsZero() {
		from = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, p.loc)
		to = from.AddDate(0, 0, 1)
	}
	list, err := p.repo.ListOrders(ctx, cafeID, from, to)
	if err != nil {
		return nil, err
	}
	return p.receipts(ctx, cafeID, list)
}

func (p *Processor) receipts(ctx context.Context, cafeID string, list []domain.Order) ([]domain.OrderReceipt, error) {
	menuItems, err := p.repo.ListMenuItems(ctx, cafeID)
	if err != nil {
		return nil, err
	}
	staff, err := p.repo.ListStaff(ctx, cafeID)
	if err != nil {
		return nil, err
	}
	menuNames := lo.SliceToMap(menuItems, func(m domain.MenuItem) (string, string) { return m.ID, m.Name })
	staffNames := lo.SliceToMap(staff, func(s domain.Staff) (string, string) { return s.ID, s.Name })

	return lo.Map(list, func(order domain.Order, _ int) domain.OrderReceipt {
		return *buildReceipt(order, staffNames[order.StaffID], menuNames)
	}), nil
}

func buildReceipt(order domain.Order, staffName string, menuNames map[string]string) *domain.OrderReceipt {
	receipt := &domain.OrderReceipt{
		ID:           order.ID,
		CafeID:       order.CafeID,
		StaffID:      order.StaffID,
		StaffName:    staffName,
		Timestamp:    order.Timestamp,
		Items:        make([]domain.OrderReceiptLine, 0, len(order.Items)),
		TotalRevenue: decimal.Zero,
		TotalCost:    decimal.Zero,
	}
	for _, item := range order.Items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		receipt.Items = append(receipt.Items, domain.OrderReceiptLine{
			ID:           item.ID,
			MenuItemID:   item.MenuItemID,
			MenuItemName: menuNames[item.MenuItemID],
			Quantity:     item.Quantity,
			PriceAtSale:  item.PriceAtSale,
			CostAtSale:   item.CostAtSale,
		})
		receipt.TotalRevenue = receipt.TotalRevenue.Add(item.PriceAtSale.Mul(qty))
		receipt.TotalCost = receipt.TotalCost.Add(item.CostAtSale.Mul(qty))
	}
	return receipt
}
