package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
)

type appointmentRepository struct {
	rows *table[model.Appointment]
}

func NewAppointmentRepository() repository.AppointmentRepository {
	return &appointmentRepository{rows: newTable(cloneAppointment)}
}

func cloneAppointment(src *model.Appointment) *model.Appointment {
	a := *src
	a.Reminders = make(model.Reminders, len(src.Reminders))
	for i, r := range src.Reminders {
		r.SentAt = cloneTime(r.SentAt)
		a.Reminders[i] = r
	}
	return &a
}

func appointmentMatches(filter *model.AppointmentFilter) func(*model.Appointment) bool {
	return func(a *model.Appointment) bool {
		if filter == nil {
			return true
		}
		if filter.Type != "" && string(a.Type) != filter.Type {
			return false
		}
		if filter.Status != "" && string(a.Status) != filter.Status {
			return false
		}
		return sameID(filter.CitizenID, a.CitizenID) &&
			sameID(filter.InstitutionID, a.InstitutionID) &&
			sameID(filter.StaffID, a.StaffID)
	}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	appointment.Touch(time.Now().UTC())
	return r.rows.insert(appointment.ID, appointment, nil)
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return r.rows.get(id)
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment, from model.AppointmentStatus) error {
	appointment.UpdatedAt = time.Now().UTC()
	return r.rows.update(appointment.ID, nil, func(stored *model.Appointment) (*model.Appointment, error) {
		if stored.Status != from {
			return nil, repository.ErrStale
		}
		return appointment, nil
	})
}

func (r *appointmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus) error {
	return r.rows.update(id, nil, func(stored *model.Appointment) (*model.Appointment, error) {
		if stored.Status != from {
			return nil, repository.ErrStale
		}
		next := *stored
		next.Status = to
		next.UpdatedAt = time.Now().UTC()
		return &next, nil
	})
}

func (r *appointmentRepository) MarkRemindersSent(ctx context.Context, id uuid.UUID, reminders model.Reminders) error {
	return r.rows.update(id, nil, func(stored *model.Appointment) (*model.Appointment, error) {
		if !stored.Status.Active() {
			return nil, repository.ErrStale
		}
		next := *stored
		next.Reminders = reminders
		next.UpdatedAt = time.Now().UTC()
		return &next, nil
	})
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.rows.remove(id)
}

func (r *appointmentRepository) List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, error) {
	items := r.rows.scan(appointmentMatches(filter))
	newestFirst(items, func(a *model.Appointment) (time.Time, uuid.UUID) { return a.ScheduledTime, a.ID })
	return items, nil
}

func (r *appointmentRepository) Count(ctx context.Context, filter *model.AppointmentFilter) (int, error) {
	return r.rows.count(appointmentMatches(filter)), nil
}

func (r *appointmentRepository) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*model.Appointment, error) {
	items := r.rows.scan(func(a *model.Appointment) bool {
		if !a.Status.Active() {
			return false
		}
		for _, rem := range a.Reminders {
			if rem.Due(now) {
				return true
			}
		}
		return false
	})
	newestFirst(items, func(a *model.Appointment) (time.Time, uuid.UUID) { return a.ScheduledTime, a.ID })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
