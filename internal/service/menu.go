package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"cafeledger/backend/internal/blob"
	"cafeledger/backend/internal/costing"
	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
)

func (s *Service) ListCategories(ctx context.Context, cafeID string) ([]domain.MenuCategory, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx, cafeID)
}

func (s *Service) CreateCategory(ctx context.Context, cafeID string, req domain.CategoryCreateRequest) (domain.MenuCategory, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.MenuCategory{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.MenuCategory{}, fmt.Errorf("category name is required: %w", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateCategory(ctx, domain.MenuCategory{
		CafeID:       cafeID,
		Name:         req.Name,
		NameAR:       strings.TrimSpace(req.NameAR),
		Icon:         defaultString(req.Icon, "☕"),
		ColorFrom:    defaultString(req.ColorFrom, "#f59e0b"),
		ColorTo:      defaultString(req.ColorTo, "#d97706"),
		BgLight:      defaultString(req.BgLight, "#fef3c7"),
		BorderColor:  defaultString(req.BorderColor, "#fcd34d"),
		DisplayOrder: req.DisplayOrder,
	})
	if err != nil {
		return domain.MenuCategory{}, err
	}
	s.logAudit(ctx, cafeID, "category_create", "category", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, cafeID string, categoryID string, req domain.CategoryUpdateRequest) (domain.MenuCategory, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.MenuCategory{}, err
	}
	category, err := s.repo.GetCategory(ctx, cafeID, categoryID)
	if err != nil {
		return domain.MenuCategory{}, err
	}
	for _, field := range []struct {
		src *string
		dst *string
	}{
		{req.Name, &category.Name},
		{req.NameAR, &category.NameAR},
		{req.Icon, &category.Icon},
		{req.ColorFrom, &category.ColorFrom},
		{req.ColorTo, &category.ColorTo},
		{req.BgLight, &category.BgLight},
		{req.BorderColor, &category.BorderColor},
	} {
		if v := trimmed(field.src); v != nil {
			*field.dst = *v
		}
	}
	if req.DisplayOrder != nil {
		category.DisplayOrder = *req.DisplayOrder
	}

	updated, err := s.repo.UpdateCategory(ctx, *category)
	if err != nil {
		return domain.MenuCategory{}, err
	}
	s.logAudit(ctx, cafeID, "category_update", "category", categoryID, "name="+updated.Name)
	return *updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, cafeID string, categoryID string) error {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, cafeID, categoryID); err != nil {
		return err
	}
	s.logAudit(ctx, cafeID, "category_delete", "category", categoryID, "")
	return nil
}

func (s *Service) menuView(ctx context.Context, q store.Queries, item domain.MenuItem) (domain.MenuItemView, error) {
	price, err := q.MenuPriceAsOf(ctx, item.ID, s.today())
	if err != nil {
		return domain.MenuItemView{}, err
	}
	view := domain.MenuItemView{MenuItem: item, SalePrice: decimal.Zero}
	if current, ok := price.Get(); ok {
		view.SalePrice = current.SalePrice
	}
	return view, nil
}

func (s *Service) ListMenu(ctx context.Context, cafeID string) ([]domain.MenuItemView, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	items, err := s.repo.ListMenuItems(ctx, cafeID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.MenuItemView, 0, len(items))
	for _, item := range items {
		view, err := s.menuView(ctx, s.repo, item)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) GetMenuItem(ctx context.Context, cafeID string, menuItemID string) (domain.MenuItemView, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return domain.MenuItemView{}, err
	}
	item, err := s.repo.GetMenuItem(ctx, cafeID, menuItemID)
	if err != nil {
		return domain.MenuItemView{}, err
	}
	return s.menuView(ctx, s.repo, *item)
}

// CreateMenuItem creates the item with its first price row dated today.
func (s *Service) CreateMenuItem(ctx context.Context, cafeID string, req domain.MenuItemCreateRequest) (domain.MenuItemView, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.MenuItemView{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.MenuItemView{}, fmt.Errorf("menu item name is required: %w", store.ErrInvalidInput)
	}
	if req.SalePrice.IsNegative() {
		return domain.MenuItemView{}, fmt.Errorf("sale_price must not be negative: %w", store.ErrInvalidInput)
	}

	var view domain.MenuItemView
	err := s.repo.Atomic(ctx, func(q store.Queries) error {
		created, err := q.CreateMenuItem(ctx, domain.MenuItem{
			CafeID:     cafeID,
			CategoryID: strings.TrimSpace(req.CategoryID),
			Name:       req.Name,
			ImageURL:   strings.TrimSpace(req.ImageURL),
		})
		if err != nil {
			return err
		}
		if _, err := q.AppendMenuPrice(ctx, domain.MenuPrice{MenuItemID: created.ID, SalePrice: req.SalePrice, StartDate: s.today()}); err != nil {
			return err
		}
		view, err = s.menuView(ctx, q, *created)
		return err
	})
	if err != nil {
		return domain.MenuItemView{}, err
	}
	s.logAudit(ctx, cafeID, "menu_create", "menu_item", view.ID, fmt.Sprintf("name=%s,price=%s", view.Name, view.SalePrice))
	return view, nil
}

func (s *Service) UpdateMenuItem(ctx context.Context, cafeID string, menuItemID string, req domain.MenuItemUpdateRequest) (domain.MenuItemView, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.MenuItemView{}, err
	}
	item, err := s.repo.GetMenuItem(ctx, cafeID, menuItemID)
	if err != nil {
		return domain.MenuItemView{}, err
	}
	if v := trimmed(req.Name); v != nil {
		item.Name = *v
	}
	if v := trimmed(req.CategoryID); v != nil {
		item.CategoryID = *v
	}
	if v := trimmed(req.ImageURL); v != nil {
		item.ImageURL = *v
	}

	updated, err := s.repo.UpdateMenuItem(ctx, *item)
	if err != nil {
		return domain.MenuItemView{}, err
	}
	s.logAudit(ctx, cafeID, "menu_update", "menu_item", menuItemID, "name="+updated.Name)
	return s.menuView(ctx, s.repo, *updated)
}

func (s *Service) DeleteMenuItem(ctx context.Context, cafeID string, menuItemID string) error {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return err
	}
	if err := s.repo.DeleteMenuItem(ctx, cafeID, menuItemID); err != nil {
		return err
	}
	s.logAudit(ctx, cafeID, "menu_delete", "menu_item", menuItemID, "")
	return nil
}

// SetMenuPrice appends a price row. Orders already taken keep their snapshot.
func (s *Service) SetMenuPrice(ctx context.Context, cafeID string, menuItemID string, req domain.PriceUpdateRequest) (domain.MenuPrice, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.MenuPrice{}, err
	}
	if req.SalePrice.IsNegative() {
		return domain.MenuPrice{}, fmt.Errorf("sale_price must not be negative: %w", store.ErrInvalidInput)
	}
	start, err := s.parseDay(req.StartDate)
	if err != nil {
		return domain.MenuPrice{}, err
	}

	var created *domain.MenuPrice
	err = s.repo.Atomic(ctx, func(q store.Queries) error {
		if _, err := q.GetMenuItem(ctx, cafeID, menuItemID); err != nil {
			return err
		}
		created, err = q.AppendMenuPrice(ctx, domain.MenuPrice{MenuItemID: menuItemID, SalePrice: req.SalePrice, StartDate: start})
		return err
	})
	if err != nil {
		return domain.MenuPrice{}, err
	}
	s.logAudit(ctx, cafeID, "menu_price_set", "menu_item", menuItemID, fmt.Sprintf("price=%s,start=%s", created.SalePrice, start.Format(domain.DateLayout)))
	return *created, nil
}

func (s *Service) MenuPriceHistory(ctx context.Context, cafeID string, menuItemID string) ([]domain.MenuPrice, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetMenuItem(ctx, cafeID, menuItemID); err != nil {
		return nil, err
	}
	return s.repo.ListMenuPriceHistory(ctx, menuItemID)
}

func (s *Service) ListRecipe(ctx context.Context, cafeID string, menuItemID string) ([]domain.RecipeLineDetail, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetMenuItem(ctx, cafeID, menuItemID); err != nil {
		return nil, err
	}
	return s.repo.ListRecipe(ctx, menuItemID)
}

func (s *Service) AddRecipeLine(ctx context.Context, cafeID string, menuItemID string, req domain.RecipeLineCreateRequest) (domain.RecipeLine, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.RecipeLine{}, err
	}
	if !req.QuantityUsed.IsPositive() {
		return domain.RecipeLine{}, fmt.Errorf("quantity_used must be positive: %w", store.ErrInvalidInput)
	}

	var created *domain.RecipeLine
	err := s.repo.Atomic(ctx, func(q store.Queries) error {
		if _, err := q.GetMenuItem(ctx, cafeID, menuItemID); err != nil {
			return err
		}
		if _, err := q.GetStockItem(ctx, cafeID, req.StockItemID); err != nil {
			return err
		}
		var err error
		created, err = q.AddRecipeLine(ctx, domain.RecipeLine{MenuItemID: menuItemID, StockItemID: req.StockItemID, QuantityUsed: req.QuantityUsed})
		return err
	})
	if err != nil {
		return domain.RecipeLine{}, err
	}
	s.logAudit(ctx, cafeID, "recipe_add", "menu_item", menuItemID, fmt.Sprintf("stock=%s,qty=%s", req.StockItemID, req.QuantityUsed))
	return *created, nil
}

func (s *Service) RemoveRecipeLine(ctx context.Context, cafeID string, menuItemID string, lineID string) error {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return err
	}
	if _, err := s.repo.GetMenuItem(ctx, cafeID, menuItemID); err != nil {
		return err
	}
	if err := s.repo.DeleteRecipeLine(ctx, menuItemID, lineID); err != nil {
		return err
	}
	s.logAudit(ctx, cafeID, "recipe_remove", "menu_item", menuItemID, "line="+lineID)
	return nil
}

// UnitCost previews what one unit of the item costs on the given date.
func (s *Service) UnitCost(ctx context.Context, cafeID string, menuItemID string, date string) (domain.CostBreakdown, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return domain.CostBreakdown{}, err
	}
	asOf, err := s.parseDay(date)
	if err != nil {
		return domain.CostBreakdown{}, err
	}
	if _, err := s.repo.GetMenuItem(ctx, cafeID, menuItemID); err != nil {
		return domain.CostBreakdown{}, err
	}
	return costing.UnitCost(ctx, s.repo, menuItemID, asOf)
}

// UploadMenuImage stores the image and points the menu item at it. A
// previous image is removed from storage on a best-effort basis.
func (s *Service) UploadMenuImage(ctx context.Context, cafeID string, menuItemID string, filename string, contentType string, body io.Reader) (domain.MenuItemView, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return domain.MenuItemView{}, err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return domain.MenuItemView{}, fmt.Errorf("file must be an image: %w", store.ErrInvalidInput)
	}
	item, err := s.repo.GetMenuItem(ctx, cafeID, menuItemID)
	if err != nil {
		return domain.MenuItemView{}, err
	}

	url, err := s.images.Upload(ctx, blob.ObjectName(filename), contentType, body)
	if err != nil {
		return domain.MenuItemView{}, err
	}
	previous := item.ImageURL
	item.ImageURL = url
	updated, err := s.repo.UpdateMenuItem(ctx, *item)
	if err != nil {
		if delErr := s.images.Delete(ctx, blob.NameFromURL(url)); delErr != nil {
			log.Printf("[service] WARN: failed to remove orphaned image menu_item=%s: %v", menuItemID, delErr)
		}
		return domain.MenuItemView{}, err
	}
	if previous != "" {
		if err := s.images.Delete(ctx, blob.NameFromURL(previous)); err != nil {
			log.Printf("[service] WARN: failed to delete replaced image menu_item=%s: %v", menuItemID, err)
		}
	}

	s.logAudit(ctx, cafeID, "menu_image_upload", "menu_item", menuItemID, "url="+url)
	return s.menuView(ctx, s.repo, *updated)
}

func (s *Service) DeleteMenuImage(ctx context.Context, cafeID string, menuItemID string) error {
	if _, err := s.authorize(ctx, cafeID, domain.RoleManager); err != nil {
		return err
	}
	item, err := s.repo.GetMenuItem(ctx, cafeID, menuItemID)
	if err != nil {
		return err
	}
	if item.ImageURL == "" {
		return fmt.Errorf("menu item has no image: %w", store.ErrNotFound)
	}
	if err := s.images.Delete(ctx, blob.NameFromURL(item.ImageURL)); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	item.ImageURL = ""
	if _, err := s.repo.UpdateMenuItem(ctx, *item); err != nil {
		return err
	}
	s.logAudit(ctx, cafeID, "menu_image_delete", "menu_item", menuItemID, "")
	return nil
}

func (s *Service) RecordMenuWaste(ctx context.Context, cafeID string, req domain.MenuWasteRequest) (domain.MenuWaste, error) {
	actor, err := s.authorize(ctx, cafeID, domain.RoleServer)
	if err != nil {
		return domain.MenuWaste{}, err
	}

	var waste *domain.MenuWaste
	err = s.repo.Atomic(ctx, func(q store.Queries) error {
		var err error
		waste, err = s.ledger.RecordMenuWaste(ctx, q, cafeID, req.MenuItemID, req.Quantity, strings.TrimSpace(req.Reason), actor.Email)
		return err
	})
	if err != nil {
		return domain.MenuWaste{}, err
	}
	s.logAudit(ctx, cafeID, "menu_waste", "menu_item", req.MenuItemID, fmt.Sprintf("qty=%s,cost=%s", waste.Quantity, waste.TotalCost))
	return *waste, nil
}

func (s *Service) ListMenuWaste(ctx context.Context, cafeID string, limit int) ([]domain.MenuWaste, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListMenuWaste(ctx, cafeID, limit)
}
