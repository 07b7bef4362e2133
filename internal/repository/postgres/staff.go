package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
)

const staffColumns = `id, first_name, last_name, email, phone_number, institution_id, role, department,
	password_hash, schedule, availability, permissions, last_login, failed_attempts, locked_until,
	created_at, updated_at`

func (r *staffRepository) Create(ctx context.Context, staff *model.Staff) error {
	staff.Touch(time.Now().UTC())

	query := `
		INSERT INTO staff (` + staffColumns + `)
		VALUES (:id, :first_name, :last_name, :email, :phone_number, :institution_id, :role, :department,
			:password_hash, :schedule, :availability, :permissions, :last_login, :failed_attempts, :locked_until,
			:created_at, :updated_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, staff)
	return translate("create staff", err)
}

func (r *staffRepository) Get(ctx context.Context, id uuid.UUID) (*model.Staff, error) {
	var staff model.Staff
	query := `SELECT ` + staffColumns + ` FROM staff WHERE id = $1`
	if err := r.db.GetContext(ctx, &staff, query, id); err != nil {
		return nil, translate("get staff", err)
	}
	return &staff, nil
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*model.Staff, error) {
	var staff model.Staff
	query := `SELECT ` + staffColumns + ` FROM staff WHERE lower(email) = lower($1)`
	if err := r.db.GetContext(ctx, &staff, query, email); err != nil {
		return nil, translate("get staff by email", err)
	}
	return &staff, nil
}

func (r *staffRepository) Update(ctx context.Context, staff *model.Staff) error {
	staff.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE staff SET
			first_name = :first_name,
			last_name = :last_name,
			email = :email,
			phone_number = :phone_number,
			institution_id = :institution_id,
			role = :role,
			department = :department,
			schedule = :schedule,
			availability = :availability,
			permissions = :permissions,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, staff)
	if err != nil {
		return translate("update staff", err)
	}
	return affected("update staff", result)
}

func (r *staffRepository) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) (bool, error) {
	query := `
		UPDATE staff SET
			failed_attempts = CASE WHEN failed_attempts + 1 >= $2 THEN 0 ELSE failed_attempts + 1 END,
			locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
			updated_at = $4
		WHERE id = $1
		RETURNING failed_attempts = 0
	`
	var locked bool
	if err := r.db.GetContext(ctx, &locked, query, id, maxAttempts, lockUntil, time.Now().UTC()); err != nil {
		return false, translate("record login failure", err)
	}
	return locked, nil
}

func (r *staffRepository) RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE staff SET failed_attempts = 0, locked_until = NULL, last_login = $2, updated_at = $2
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return translate("record login success", err)
	}
	return affected("record login success", result)
}

func (r *staffRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM staff WHERE id = $1`, id)
	if err != nil {
		return translate("delete staff", err)
	}
	return affected("delete staff", result)
}

func staffWhere(filter *model.StaffFilter) whereBuilder {
	var where whereBuilder
	if filter == nil {
		return where
	}
	if filter.Role != "" {
		where.add("role = $%d", filter.Role)
	}
	if filter.InstitutionID != nil {
		where.add("institution_id = $%d", *filter.InstitutionID)
	}
	return where
}

func (r *staffRepository) List(ctx context.Context, filter *model.StaffFilter) ([]*model.Staff, error) {
	where := staffWhere(filter)
	query := `SELECT ` + staffColumns + ` FROM staff` + where.sql() + ` ORDER BY created_at DESC, id::text ASC`

	staff := []*model.Staff{}
	if err := r.db.SelectContext(ctx, &staff, query, where.args...); err != nil {
		return nil, translate("list staff", err)
	}
	return staff, nil
}

func (r *staffRepository) Count(ctx context.Context, filter *model.StaffFilter) (int, error) {
	where := staffWhere(filter)
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM staff`+where.sql(), where.args...); err != nil {
		return 0, translate("count staff", err)
	}
	return n, nil
}
