package postgres

import (
	"context"
	"strings"
	"time"

	"cafeledger/backend/internal/domain"
	"cafeledger/backend/internal/store"
	"cafeledger/backend/internal/xid"
)

const staffColumns = `id, cafe_id, name, role, email, phone, is_active, created_at, updated_at`

func scanStaff(row interface{ Scan(...any) error }) (domain.Staff, error) {
	var s domain.Staff
	err := row.Scan(&s.ID, &s.CafeID, &s.Name, &s.Role, &s.Email, &s.Phone, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
	return s, err
}

func (q *queries) CreateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error) {
	if strings.TrimSpace(staff.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	if staff.ID == "" {
		staff.ID = xid.New("stf")
	}
	created, err := scanStaff(q.db.QueryRowContext(ctx, `
		INSERT INTO staff (id, cafe_id, name, role, email, phone, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
		RETURNING `+staffColumns,
		staff.ID, staff.CafeID, staff.Name, staff.Role, staff.Email, staff.Phone, staff.Active))
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &created, nil
}

func (q *queries) GetStaff(ctx context.Context, cafeID string, id string) (*domain.Staff, error) {
	staff, err := scanStaff(q.db.QueryRowContext(ctx, `
		SELECT `+staffColumns+` FROM staff WHERE cafe_id = $1 AND id = $2
	`, cafeID, id))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &staff, nil
}

func (q *queries) ListStaff(ctx context.Context, cafeID string) ([]domain.Staff, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+staffColumns+` FROM staff WHERE cafe_id = $1 ORDER BY name, id
	`, cafeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Staff, 0, 16)
	for rows.Next() {
		staff, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, staff)
	}
	return result, rows.Err()
}

func (q *queries) UpdateStaff(ctx context.Context, staff domain.Staff) (*domain.Staff, error) {
	if strings.TrimSpace(staff.Name) == "" {
		return nil, store.ErrInvalidInput
	}
	updated, err := scanStaff(q.db.QueryRowContext(ctx, `
		UPDATE staff
		SET name = $3, role = $4, email = $5, phone = $6, is_active = $7, updated_at = now()
		WHERE cafe_id = $1 AND id = $2
		RETURNING `+staffColumns,
		staff.CafeID, staff.ID, staff.Name, staff.Role, staff.Email, staff.Phone, staff.Active))
	if err != nil {
		return nil, mapReadErr(err)
	}
	return &updated, nil
}

// DeleteStaff fails with ErrConflict while orders still reference the member.
func (q *queries) DeleteStaff(ctx context.Context, cafeID string, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM staff WHERE cafe_id = $1 AND id = $2`, cafeID, id)
	return affectedOne(res, err)
}

func (q *queries) AppendStaffSalary(ctx context.Context, salary domain.StaffSalary) (*domain.StaffSalary, error) {
	if salary.DailySalary.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if salary.ID == "" {
		salary.ID = xid.New("sal")
	}
	salary.StartDate = calendar(salary.StartDate)
	if salary.CreatedAt.IsZero() {
		salary.CreatedAt = time.Now().UTC()
	}

	_, err := q.db.ExecContext(ctx, `
		INSERT INTO staff_salaries (id, staff_id, daily_salary, start_date, created_at)
		VALUES ($1,$2,$3,$4::date,$5)
	`, salary.ID, salary.StaffID, salary.DailySalary, dateArg(salary.StartDate), salary.CreatedAt)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return &salary, nil
}

func scanSalary(row interface{ Scan(...any) error }) (domain.StaffSalary, error) {
	var s domain.StaffSalary
	err := row.Scan(&s.ID, &s.StaffID, &s.DailySalary, &s.StartDate, &s.CreatedAt)
	s.StartDate, s.CreatedAt = calendar(s.StartDate), s.CreatedAt.UTC()
	return s, err
}

func (q *queries) ListStaffSalaryHistory(ctx context.Context, staffID string) ([]domain.StaffSalary, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, staff_id, daily_salary, start_date, created_at
		FROM staff_salaries
		WHERE staff_id = $1
		`+historyOrder, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.StaffSalary, 0, 8)
	for rows.Next() {
		salary, err := scanSalary(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, salary)
	}
	return history, rows.Err()
}

func (q *queries) ListCafeSalaryHistories(ctx context.Context, cafeID string) (map[string][]domain.StaffSalary, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT s.id, s.staff_id, s.daily_salary, s.start_date, s.created_at
		FROM staff_salaries s
		JOIN staff st ON st.id = s.staff_id
		WHERE st.cafe_id = $1
		ORDER BY s.staff_id, s.start_date DESC, s.created_at DESC, s.id DESC
	`, cafeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	histories := make(map[string][]domain.StaffSalary)
	for rows.Next() {
		salary, err := scanSalary(rows)
		if err != nil {
			return nil, err
		}
		histories[salary.StaffID] = append(histories[salary.StaffID], salary)
	}
	return histories, rows.Err()
}
