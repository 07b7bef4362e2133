package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
)

const appointmentColumns = `id, citizen_id, institution_id, staff_id, type, status, scheduled_time, duration,
	location, notes, reminders, emergency_access, created_at, updated_at`

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	appointment.Touch(time.Now().UTC())

	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES (:id, :citizen_id, :institution_id, :staff_id, :type, :status, :scheduled_time, :duration,
			:location, :notes, :reminders, :emergency_access, :created_at, :updated_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, appointment)
	return translate("create appointment", err)
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var appointment model.Appointment
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, translate("get appointment", err)
	}
	return &appointment, nil
}

type appointmentUpdate struct {
	*model.Appointment
	From model.AppointmentStatus `db:"from_status"`
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment, from model.AppointmentStatus) error {
	appointment.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE appointments SET
			citizen_id = :citizen_id,
			institution_id = :institution_id,
			staff_id = :staff_id,
			type = :type,
			status = :status,
			scheduled_time = :scheduled_time,
			duration = :duration,
			location = :location,
			notes = :notes,
			reminders = :reminders,
			emergency_access = :emergency_access,
			updated_at = :updated_at
		WHERE id = :id AND status = :from_status
	`
	result, err := r.db.NamedExecContext(ctx, query, appointmentUpdate{Appointment: appointment, From: from})
	if err != nil {
		return translate("update appointment", err)
	}
	return r.guarded(ctx, "update appointment", "appointments", appointment.ID, result)
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus) error {
	query := `UPDATE appointments SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, from, to, time.Now().UTC())
	if err != nil {
		return translate("update appointment status", err)
	}
	return r.guarded(ctx, "update appointment status", "appointments", id, result)
}

func (r *appointmentRepository) MarkRemindersSent(ctx context.Context, id uuid.UUID, reminders model.Reminders) error {
	query := `
		UPDATE appointments SET reminders = $2, updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'confirmed')
	`
	result, err := r.db.ExecContext(ctx, query, id, reminders, time.Now().UTC())
	if err != nil {
		return translate("mark reminders sent", err)
	}
	return r.guarded(ctx, "mark reminders sent", "appointments", id, result)
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return translate("delete appointment", err)
	}
	return affected("delete appointment", result)
}

func appointmentWhere(filter *model.AppointmentFilter) whereBuilder {
	var where whereBuilder
	if filter == nil {
		return where
	}
	if filter.Type != "" {
		where.add("type = $%d", filter.Type)
	}
	if filter.Status != "" {
		where.add("status = $%d", filter.Status)
	}
	if filter.CitizenID != nil {
		where.add("citizen_id = $%d", *filter.CitizenID)
	}
	if filter.InstitutionID != nil {
		where.add("institution_id = $%d", *filter.InstitutionID)
	}
	if filter.StaffID != nil {
		where.add("staff_id = $%d", *filter.StaffID)
	}
	return where
}

func (r *appointmentRepository) List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, error) {
	where := appointmentWhere(filter)
	query := `SELECT ` + appointmentColumns + ` FROM appointments` + where.sql() + ` ORDER BY scheduled_time DESC, id::text ASC`

	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, where.args...); err != nil {
		return nil, translate("list appointments", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) Count(ctx context.Context, filter *model.AppointmentFilter) (int, error) {
	where := appointmentWhere(filter)
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM appointments`+where.sql(), where.args...); err != nil {
		return 0, translate("count appointments", err)
	}
	return n, nil
}

func (r *appointmentRepository) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status IN ('pending', 'confirmed')
		AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(reminders) AS r
			WHERE (r->>'sent')::boolean = false
			AND (r->>'timestamp')::timestamptz <= $1
		)
		ORDER BY scheduled_time DESC, id::text ASC
		LIMIT NULLIF($2, 0)
	`
	appointments := []*model.Appointment{}
	if err := r.db.SelectContext(ctx, &appointments, query, now, limit); err != nil {
		return nil, translate("list due reminders", err)
	}
	return appointments, nil
}
