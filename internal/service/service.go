package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"cafeledger/backend/internal/blob"
	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/inventory"
	"cafeledger/backend/internal/orders"
	"cafeledger/backend/internal/reporting"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/versioned"
	"cafeledger/backend/internal/xid"
)

var (
	ErrUnauthorized = errors.New("authentication required")
	ErrForbidden    = errors.New("insufficient role for this cafe")
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo    store.Repository
	ledger  *inventory.Ledger
	orders  *orders.Processor
	reports *reporting.Engine
	images  blob.Storage
	loc     *time.Location
	now     func() time.Time
}

func New(repo store.Repository, reports *reporting.Engine, images blob.Storage) *Service {
	if reports == nil {
		reports = reporting.NewEngine(repo, nil, reporting.Options{})
	}
	if images == nil {
		images = blob.NewMemoryStorage("http://localhost/images")
	}
	loc := reports.Location()
	ledger := inventory.NewLedger(loc)

	return &Service{
		repo:    repo,
		ledger:  ledger,
		orders:  orders.NewProcessor(repo, ledger, loc),
		reports: reports,
		images:  images,
		loc:     loc,
		now:     time.Now,
	}
}

// authorize resolves the caller and checks that they hold at least minimum in
// the café. A missing café is reported as not found, a missing or weaker
// role as forbidden.
func (s *Service) authorize(ctx context.Context, cafeID string, minimum domain.Role) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, ErrUnauthorized
	}

	role, err := s.repo.GetCafeRole(ctx, cafeID, actor.UserID)
	if errors.Is(err, store.ErrNotFound) {
		if _, cafeErr := s.repo.GetCafe(ctx, cafeID); cafeErr != nil {
			return domain.Actor{}, cafeErr
		}
		return domain.Actor{}, ErrForbidden
	}
	if err != nil {
		return domain.Actor{}, err
	}
	if !role.Satisfies(minimum) {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == "" {
		return domain.Actor{}, ErrUnauthorized
	}
	return actor, nil
}

func (s *Service) today() time.Time {
	return versioned.Day(s.now(), s.loc)
}

// parseDay reads a YYYY-MM-DD value; empty means today.
func (s *Service) parseDay(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return versioned.CalendarDate(s.today()), nil
	}
	day, err := time.Parse(domain.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", store.ErrInvalidInput)
	}
	return day, nil
}

// parseMonth reads YYYY-MM or YYYY-MM-DD and returns the first of the month;
// empty means the current month.
func (s *Service) parseMonth(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		t := s.today()
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	}
	month, err := time.Parse(domain.MonthLayout, value)
	if err != nil {
		day, dayErr := time.Parse(domain.DateLayout, value)
		if dayErr != nil {
			return time.Time{}, fmt.Errorf("month must be YYYY-MM: %w", store.ErrInvalidInput)
		}
		month = time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return month, nil
}

func (s *Service) logAudit(ctx context.Context, cafeID string, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{UserID: "system", Email: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:          xid.New("audit"),
		CafeID:      cafeID,
		ActorUserID: actor.UserID,
		ActorEmail:  actor.Email,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Detail:      detail,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func (s *Service) ListAuditLogs(ctx context.Context, cafeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if _, err := s.authorize(ctx, cafeID, domain.RoleOwner); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, cafeID, from, to, limit)
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
