package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/xid"
)

//go:embed schema.sql
var schema string

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements store.Queries on top of a connection or a transaction.
type queries struct {
	db dbtx
}

type Store struct {
	queries
	sqlDB *sql.DB
}

var _ store.Repository = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{queries: queries{db: db}, sqlDB: db}, nil
}

func (s *Store) Close() error {
	return s.sqlDB.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.sqlDB.ExecContext(ctx, schema)
	return err
}

// Atomic runs fn inside one READ COMMITTED transaction. Stock counters only
// change through single-statement relative updates.
func (s *Store) Atomic(ctx context.Context, fn func(q store.Queries) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (q *queries) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	user.Email = normalizeEmail(user.Email)
	if user.Email == "" || strings.TrimSpace(user.PasswordHash) == "" {
		return nil, store.ErrInvalidInput
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, is_admin, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.ID, user.Email, user.PasswordHash, user.IsAdmin, user.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &user, nil
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return q.getUser(ctx, "email", normalizeEmail(email))
}

func (q *queries) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return q.getUser(ctx, "id", id)
}

func (q *queries) getUser(ctx context.Context, column string, value string) (*domain.User, error) {
	var user domain.User
	err := q.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, is_admin, created_at
		FROM users
		WHERE `+column+` = $1
	`, value).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		return nil, mapReadErr(err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (q *queries) CreateCafe(ctx context.Context, cafe domain.Cafe) (*domain.Cafe, error) {
	if strings.TrimSpace(cafe.Name) == "" || cafe.OwnerID == "" {
		return nil, store.ErrInvalidInput
	}
	if cafe.ID == "" {
		cafe.ID = xid.New("cafe")
	}
	now := time.Now().UTC()
	cafe.CreatedAt, cafe.UpdatedAt = now, now

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO cafes (id, name, address, currency_symbol, owner_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
	`, cafe.ID, cafe.Name, cafe.Address, cafe.CurrencySymbol, cafe.OwnerID, now)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &cafe, nil
}

const cafeColumns = `id, name, address, currency_symbol, owner_id, created_at, updated_at`

func scanCafe(row interface{ Scan(...any) error }) (domain.Cafe, error) {
	var cafe domain.Cafe
	err := row.Scan(&cafe.ID, &cafe.Name, &cafe.Address, &cafe.CurrencySymbol, &cafe.OwnerID, &cafe.CreatedAt, &cafe.UpdatedAt)
	cafe.CreatedAt, cafe.UpdatedAt = cafe.CreatedAt.UTC(), cafe.UpdatedAt.UTC()
	return cafe, err
}

func (q *queries) GetCafe(ctx context.Context, id string) (*domain.Cafe, error) {
	cafe, err := scanCafe(q.db.QueryRowContext(ctx, `SELECT `+cafeColumns+` FROM cafes WHERE id = $1`, id))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &cafe, nil
}

func (q *queries) UpdateCafe(ctx context.Context, cafe domain.Cafe) (*domain.Cafe, error) {
	if strings.TrimSpace(cafe.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	updated, err := scanCafe(q.db.QueryRowContext(ctx, `
		UPDATE cafes
		SET name = $2, address = $3, currency_symbol = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+cafeColumns,
		cafe.ID, cafe.Name, cafe.Address, cafe.CurrencySymbol))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &updated, nil
}

func (q *queries) DeleteCafe(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM cafes WHERE id = $1`, id)
	return affectedOne(res, err)
}

func (q *queries) ListCafesForUser(ctx context.Context, userID string) ([]domain.Cafe, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.address, c.currency_symbol, c.owner_id, c.created_at, c.updated_at
		FROM cafes c
		JOIN cafe_roles r ON r.cafe_id = c.id
		WHERE r.user_id = $1
		ORDER BY c.name, c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cafes := make([]domain.Cafe, 0, 4)
	for rows.Next() {
		cafe, err := scanCafe(rows)
		if err != nil {
			return nil, err
		}
		cafes = append(cafes, cafe)
	}
	return cafes, rows.Err()
}

func (q *queries) UpsertCafeRole(ctx context.Context, role domain.CafeRole) error {
	if !role.Role.Valid() {
		return store.ErrInvalidInput
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO cafe_roles (cafe_id, user_id, role, created_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (cafe_id, user_id)
		DO UPDATE SET role = EXCLUDED.role
	`, role.CafeID, role.UserID, string(role.Role))
	return mapWriteErr(err)
}

func (q *queries) GetCafeRole(ctx context.Context, cafeID string, userID string) (domain.Role, error) {
	var role string
	err := q.db.QueryRowContext(ctx, `
		SELECT role FROM cafe_roles WHERE cafe_id = $1 AND user_id = $2
	`, cafeID, userID).Scan(&role)
	if err != nil {
		return "", mapReadErr(err)
	}
	return domain.Role(role), nil
}

func (q *queries) ListCafeMembers(ctx context.Context, cafeID string) ([]domain.CafeMember, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT r.user_id, u.email, r.role, r.created_at
		FROM cafe_roles r
		JOIN users u ON u.id = r.user_id
		WHERE r.cafe_id = $1
		ORDER BY r.created_at, u.email
	`, cafeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]domain.CafeMember, 0, 8)
	for rows.Next() {
		var member domain.CafeMember
		var role string
		if err := rows.Scan(&member.UserID, &member.Email, &role, &member.CreatedAt); err != nil {
			return nil, err
		}
		member.Role = domain.Role(role)
		member.CreatedAt = member.CreatedAt.UTC()
		members = append(members, member)
	}
	return members, rows.Err()
}

func (q *queries) DeleteCafeRole(ctx context.Context, cafeID string, userID string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM cafe_roles WHERE cafe_id = $1 AND user_id = $2`, cafeID, userID)
	return affectedOne(res, err)
}

func (q *queries) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, cafe_id, actor_user_id, actor_email, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, entry.ID, entry.CafeID, entry.ActorUserID, entry.ActorEmail, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (q *queries) ListAuditLogs(ctx context.Context, cafeID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := q.db.QueryContext(ctx, `
		SELECT id, cafe_id, actor_user_id, actor_email, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE cafe_id = $1
			AND ($2::timestamptz IS NULL OR created_at >= $2)
			AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4
	`, cafeID, nullTime(from), nullTime(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.CafeID, &entry.ActorUserID, &entry.ActorEmail, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

// mapWriteErr classifies constraint failures: duplicates are conflicts, a
// dangling reference means the parent row does not exist.
func mapWriteErr(err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return store.ErrConflict
	case isForeignKeyViolation(err):
		return store.ErrNotFound
	default:
		return err
	}
}

func mapReadErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return mapWriteErr(err)
}

// mapDeleteErr treats a row that is still referenced as a conflict.
func mapDeleteErr(err error) error {
	if isForeignKeyViolation(err) {
		return store.ErrConflict
	}
	return err
}

func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return mapDeleteErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return val
}

// dateArg renders the civil date of t for a DATE column.
func dateArg(t time.Time) string {
	return t.Format(domain.DateLayout)
}

func nullDate(val time.Time) any {
	if val.IsZero() {
		return nil
	}
	return dateArg(val)
}

// calendar normalises a scanned DATE to midnight UTC.
func calendar(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
