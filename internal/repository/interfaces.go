package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
)

// Adapter-independent errors. Services translate them into the API taxonomy.
var (
	ErrNotFound   = errors.New("record not found")
	ErrDuplicate  = errors.New("duplicate key")
	// ErrReferenced reports a write that breaks a reference between records.
	ErrReferenced = errors.New("referenced record constraint")
	// ErrStale reports a conditional write whose record no longer holds the
	// expected status.
	ErrStale = errors.New("record changed concurrently")
)

// All repository interfaces in one file
type (
	CitizenRepository interface {
		Create(ctx context.Context, citizen *model.Citizen) error
		Get(ctx context.Context, id uuid.UUID) (*model.Citizen, error)
		GetByEmail(ctx context.Context, email string) (*model.Citizen, error)
		Update(ctx context.Context, citizen *model.Citizen) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filter *model.CitizenFilter) ([]*model.Citizen, error)
	}

	StaffRepository interface {
		Create(ctx context.Context, staff *model.Staff) error
		Get(ctx context.Context, id uuid.UUID) (*model.Staff, error)
		GetByEmail(ctx context.Context, email string) (*model.Staff, error)
		// Update writes profile fields only; credentials and login counters are untouched.
		Update(ctx context.Context, staff *model.Staff) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filter *model.StaffFilter) ([]*model.Staff, error)
		Count(ctx context.Context, filter *model.StaffFilter) (int, error)
		// RecordLoginFailure increments the failure counter. Reaching maxAttempts
		// resets it and locks the account until lockUntil; locked reports that.
		RecordLoginFailure(ctx context.Context, id uuid.UUID, maxAttempts int, lockUntil time.Time) (locked bool, err error)
		RecordLoginSuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	}

	InstitutionRepository interface {
		Create(ctx context.Context, institution *model.Institution) error
		Get(ctx context.Context, id uuid.UUID) (*model.Institution, error)
		Update(ctx context.Context, institution *model.Institution) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filter *model.InstitutionFilter) ([]*model.Institution, error)

		CreateAPIKey(ctx context.Context, key *model.APIKey) error
		ListAPIKeys(ctx context.Context, institutionID uuid.UUID) ([]*model.APIKey, error)
		GetAPIKey(ctx context.Context, id uuid.UUID) (*model.APIKey, error)
		GetAPIKeyByDigest(ctx context.Context, digest string) (*model.APIKey, error)
		TouchAPIKey(ctx context.Context, id uuid.UUID, at time.Time) error
		DeactivateAPIKey(ctx context.Context, id uuid.UUID) error
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// Update succeeds only while the stored status is still from, else ErrStale.
		Update(ctx context.Context, appointment *model.Appointment, from model.AppointmentStatus) error
		// UpdateStatus moves the record from one status to another, else ErrStale.
		UpdateStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus) error
		// MarkRemindersSent writes reminders while the appointment is active, else ErrStale.
		MarkRemindersSent(ctx context.Context, id uuid.UUID, reminders model.Reminders) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.Appointment, error)
		Count(ctx context.Context, filter *model.AppointmentFilter) (int, error)
		// ListDueReminders returns active appointments holding at least one unsent reminder due at now.
		ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*model.Appointment, error)
	}

	DemandeRepository interface {
		Create(ctx context.Context, demande *model.Demande) error
		Get(ctx context.Context, id uuid.UUID) (*model.Demande, error)
		// Update succeeds only while the stored status is still from, else ErrStale.
		Update(ctx context.Context, demande *model.Demande, from model.DemandeStatus) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filter *model.DemandeFilter) ([]*model.Demande, error)
		Count(ctx context.Context, filter *model.DemandeFilter) (int, error)
		// Statistics aggregates the requests filed with an institution.
		Statistics(ctx context.Context, institutionID uuid.UUID) (*model.Statistics, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		// MarkFailed records an attempt; the event fails permanently after maxAttempts.
		MarkFailed(ctx context.Context, id uuid.UUID, reason string, maxAttempts int) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// RefreshTokenStore keeps refresh sessions keyed by token digest.
	RefreshTokenStore interface {
		Save(ctx context.Context, digest string, session *model.RefreshSession, ttl time.Duration) error
		// Consume returns the session and deletes it atomically.
		Consume(ctx context.Context, digest string) (*model.RefreshSession, error)
		Revoke(ctx context.Context, digest string) error
	}
)
