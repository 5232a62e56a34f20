package service

import (
	"context"
	"fmt"
	"strings"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
)

func (s *Service) CurrentUser(ctx context.Context) (domain.UserProfile, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.UserProfile{}, err
	}
	user, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return domain.UserProfile{ID: user.ID, Email: user.Email, IsAdmin: user.IsAdmin, CreatedAt: user.CreatedAt}, nil
}

// CreateCafe creates a café owned by the caller.
func (s *Service) CreateCafe(ctx context.Context, req domain.CafeCreateRequest) (domain.Cafe, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Cafe{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Cafe{}, fmt.Errorf("cafe name is required: %w", store.ErrInvalidInput)
	}

	var created *domain.Cafe
	err = s.repo.Atomic(ctx, func(q store.Queries) error {
		var err error
		created, err = q.CreateCafe(ctx, domain.Cafe{
			Name:           req.Name,
			Address:        strings.TrimSpace(req.Address),
			CurrencySymbol: defaultString(strings.TrimSpace(req.CurrencySymbol), "$"),
			OwnerID:        actor.UserID,
		})
		if err != nil {
			return err
		}
		return q.UpsertCafeRole(ctx, domain.CafeRole{CafeID: created.ID, UserID: actor.UserID, Role: domain.RoleOwner})
	})
	if err != nil {
		return domain.Cafe{}, err
	}

	s.logAudit(ctx, created.ID, "cafe_create", "cafe", created.ID, "name="+created.Name)
	return *created, nil
}

func (s *Service) ListMyCafes(ctx context.Context) ([]domain.Cafe, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCafesForUser(ctx, actor.UserID)
}

func (s *Service) GetCafe(ctx context.Context, cafeID string) (domain.Cafe, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return domain.Cafe{}, err
	}
	cafe, err := s.repo.GetCafe(ctx, cafeID)
	if err != nil {
		return domain.Cafe{}, err
	}
	return *cafe, nil
}

func (s *Service) UpdateCafe(ctx context.Context, cafeID string, req domain.CafeUpdateRequest) (domain.Cafe, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleOwner); err != nil {
		return domain.Cafe{}, err
	}
	cafe, err := s.repo.GetCafe(ctx, cafeID)
	if err != nil {
		return domain.Cafe{}, err
	}
	if v := trimmed(req.Name); v != nil {
		cafe.Name = *v
	}
	if v := trimmed(req.Address); v != nil {
		cafe.Address = *v
	}
	if v := trimmed(req.CurrencySymbol); v != nil {
		cafe.CurrencySymbol = *v
	}

	updated, err := s.repo.UpdateCafe(ctx, *cafe)
	if err != nil {
		return domain.Cafe{}, err
	}
	s.logAudit(ctx, cafeID, "cafe_update", "cafe", cafeID, "name="+updated.Name)
	return *updated, nil
}

// DeleteCafe removes the café and everything it owns.
func (s *Service) DeleteCafe(ctx context.Context, cafeID string) error {
	if _, err := s.authorize(ctx, cafeID, domain.RoleOwner); err != nil {
		return err
	}
	if err := s.repo.DeleteCafe(ctx, cafeID); err != nil {
		return err
	}
	s.reports.Invalidate(ctx, cafeID)
	return nil
}

func (s *Service) ListMembers(ctx context.Context, cafeID string) ([]domain.CafeMember, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleServer); err != nil {
		return nil, err
	}
	return s.repo.ListCafeMembers(ctx, cafeID)
}

// AssignMember grants a registered user a role in the café, replacing any
// role they already hold there.
func (s *Service) AssignMember(ctx context.Context, cafeID string, req domain.MemberAssignRequest) (domain.CafeMember, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleOwner); err != nil {
		return domain.CafeMember{}, err
	}
	if !req.Role.Valid() {
		return domain.CafeMember{}, fmt.Errorf("role must be owner, manager or server: %w", store.ErrInvalidInput)
	}
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return domain.CafeMember{}, err
	}
	if err := s.repo.UpsertCafeRole(ctx, domain.CafeRole{CafeID: cafeID, UserID: user.ID, Role: req.Role}); err != nil {
		return domain.CafeMember{}, err
	}

	s.logAudit(ctx, cafeID, "member_assign", "user", user.ID, fmt.Sprintf("email=%s,role=%s", user.Email, req.Role))
	return domain.CafeMember{UserID: user.ID, Email: user.Email, Role: req.Role}, nil
}

func (s *Service) RemoveMember(ctx context.Context, cafeID string, userID string) error {
	if _, err := s.authorize(ctx, cafeID, domain.RoleOwner); err != nil {
		return err
	}
	cafe, err := s.repo.GetCafe(ctx, cafeID)
	if err != nil {
		return err
	}
	if cafe.OwnerID == userID {
		return fmt.Errorf("the cafe owner cannot be removed: %w", store.ErrConflict)
	}
	if err := s.repo.DeleteCafeRole(ctx, cafeID, userID); err != nil {
		return err
	}
	s.logAudit(ctx, cafeID, "member_remove", "user", userID, "")
	return nil
}
