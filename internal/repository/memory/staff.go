package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
)

type staffRepository struct {
	rows *table[model.Staff]
}

func NewStaffRepository() repository.StaffRepository {
	return &staffRepository{rows: newTable(cloneStaff)}
}

func cloneStaff(src *model.Staff) *model.Staff {
	s := *src
	if src.Schedule != nil {
		schedule := *src.Schedule
		schedule.Days = append([]string(nil), src.Schedule.Days...)
		s.Schedule = &schedule
	}
	s.Availability.NextAvailable = cloneTime(src.Availability.NextAvailable)
	s.LastLogin = cloneTime(src.LastLogin)
	s.LockedUntil = cloneTime(src.LockedUntil)
	return &s
}

func staffEmail(email string) func(*model.Staff) bool {
	return func(existing *model.Staff) bool {
		return strings.EqualFold(existing.Email, email)
	}
}

func staffMatches(filter *model.StaffFilter) func(*model.Staff) bool {
	return func(s *model.Staff) bool {
		if filter == nil {
			return true
		}
		if filter.Role != "" && string(s.Role) != filter.Role {
			return false
		}
		return sameID(filter.InstitutionID, s.InstitutionID)
	}
}

func (r *staffRepository) Create(ctx context.Context, staff *model.Staff) error {
	staff.Touch(time.Now().UTC())
	return r.rows.insert(staff.ID, staff, staffEmail(staff.Email))
}

func (r *staffRepository) Get(ctx context.Context, id uuid.UUID) (*model.Staff, error) {
	return r.rows.get(id)
}

func (r *staffRepository) GetByEmail(ctx context.Context, email string) (*model.Staff, error) {
	return r.rows.find(staffEmail(email))
}

func (r *staffRepository) Update(ctx context.Context, staff *model.Staff) error {
	staff.UpdatedAt = time.Now().UTC()
	return r.rows.update(staff.ID, staffEmail(staff.Email), func(stored *model.Staff) (*model.Staff, error) {
		next := *staff
		next.PasswordHash = stored.PasswordHash
		next.LastLogin = stored.LastLogin
		next.FailedAttempts = stored.FailedAttempts
		next.LockedUntil = stored.LockedUntil
		return &next, nil
	})
}

func (r *staffRepository) RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) (bool, error) {
	locked := false
	err := r.rows.update(id, nil, func(stored *model.Staff) (*model.Staff, error) {
		next := *stored
		next.FailedAttempts++
		if next.FailedAttempts >= maxAttempts {
			next.FailedAttempts = 0
			next.LockedUntil = &lockUntil
			locked = true
		}
		next.UpdatedAt = time.Now().UTC()
		return &next, nil
	})
	return locked, err
}

func (r *staffRepository) RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.rows.update(id, nil, func(stored *model.Staff) (*model.Staff, error) {
		next := *stored
		next.FailedAttempts = 0
		next.LockedUntil = nil
		next.LastLogin = &at
		next.UpdatedAt = at
		return &next, nil
	})
}

func (r *staffRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.rows.remove(id)
}

func (r *staffRepository) List(ctx context.Context, filter *model.StaffFilter) ([]*model.Staff, error) {
	items := r.rows.scan(staffMatches(filter))
	newestFirst(items, func(s *model.Staff) (time.Time, uuid.UUID) { return s.CreatedAt, s.ID })
	return items, nil
}

func (r *staffRepository) Count(ctx context.Context, filter *model.StaffFilter) (int, error) {
	return r.rows.count(staffMatches(filter)), nil
}
