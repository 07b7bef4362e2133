package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
	"github.com/jwalitptl/citizen-registry/internal/schema"
	"github.com/jwalitptl/citizen-registry/internal/service"
	"github.com/jwalitptl/citizen-registry/internal/service/reference"
	apperrors "github.com/jwalitptl/citizen-registry/pkg/errors"
	"github.com/jwalitptl/citizen-registry/pkg/event"
)

const aggregate = "appointment"

type Servicer interface {
	Create(ctx context.Context, doc schema.Document, actor *model.Identity) (*model.AppointmentView, error)
	Get(ctx context.Context, id uuid.UUID) (*model.AppointmentView, error)
	List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.AppointmentView, error)
	Update(ctx context.Context, id uuid.UUID, patch schema.Document) (*model.AppointmentView, error)
	Transition(ctx context.Context, id uuid.UUID, to model.AppointmentStatus) (*model.AppointmentView, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	appointments repository.AppointmentRepository
	citizens     repository.CitizenRepository
	institutions repository.InstitutionRepository
	staff        repository.StaffRepository
	refs         *reference.Checker
	events       event.Recorder
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	appointments repository.AppointmentRepository,
	citizens repository.CitizenRepository,
	institutions repository.InstitutionRepository,
	staff repository.StaffRepository,
	refs *reference.Checker,
	events event.Recorder,
	logger zerolog.Logger,
) *Service {
	return &Service{
		appointments: appointments,
		citizens:     citizens,
		institutions: institutions,
		staff:        staff,
		refs:         refs,
		events:       events,
		logger:       logger,
		now:          time.Now,
	}
}

// Create books an appointment. Citizens may only book for themselves.
func (s *Service) Create(ctx context.Context, doc schema.Document, actor *model.Identity) (*model.AppointmentView, error) {
	if err := schema.Appointment.ValidateCreate(doc, s.now().UTC()); err != nil {
		return nil, err
	}

	appt := &model.Appointment{}
	if err := schema.Decode(doc, appt); err != nil {
		return nil, err
	}
	appt.Base = model.Base{}

	if appt.Status != model.AppointmentStatusPending {
		return nil, apperrors.NewValidation("status", "new appointments must be pending")
	}
	if actor != nil && actor.Role == model.RoleCitizen && actor.Subject != appt.CitizenID {
		return nil, apperrors.Forbidden("citizens may only book their own appointments")
	}
	if err := s.checkReferences(ctx, appt); err != nil {
		return nil, err
	}

	if err := s.appointments.Create(ctx, appt); err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}

	s.events.Record(ctx, aggregate, event.ActionCreated, appt.ID, map[string]interface{}{
		"citizen":       appt.CitizenID,
		"institution":   appt.InstitutionID,
		"staff":         appt.StaffID,
		"scheduledTime": appt.ScheduledTime,
	})
	return s.expand(ctx, appt)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.AppointmentView, error) {
	appt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}
	return s.expand(ctx, appt)
}

func (s *Service) List(ctx context.Context, filter *model.AppointmentFilter) ([]*model.AppointmentView, error) {
	items, err := s.appointments.List(ctx, filter)
	if err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}

	views := make([]*model.AppointmentView, 0, len(items))
	for _, appt := range items {
		view, err := s.expand(ctx, appt)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Update applies an allow-listed patch. Terminal appointments are frozen and a
// status change must follow the state machine.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch schema.Document) (*model.AppointmentView, error) {
	current, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}

	if err := guard(current.Status, patch); err != nil {
		return nil, err
	}

	currentDoc, err := schema.ToDocument(current)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	merged, err := schema.Appointment.ValidateUpdate(patch, currentDoc, s.now().UTC())
	if err != nil {
		return nil, err
	}

	updated := &model.Appointment{}
	if err := schema.Decode(merged, updated); err != nil {
		return nil, err
	}
	updated.Base = current.Base
	updated.CitizenID = current.CitizenID
	updated.InstitutionID = current.InstitutionID
	updated.StaffID = current.StaffID
	updated.EmergencyAccess = current.EmergencyAccess

	if err := s.appointments.Update(ctx, updated, current.Status); err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}

	s.recordUpdate(ctx, current.Status, updated, patch)
	return s.expand(ctx, updated)
}

// Transition drives the confirm, complete and cancel actions.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to model.AppointmentStatus) (*model.AppointmentView, error) {
	appt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}

	from := appt.Status
	if !from.CanTransition(to) {
		return nil, apperrors.NewInvalidTransition(aggregate, string(from), string(to))
	}

	if err := s.appointments.UpdateStatus(ctx, id, from, to); err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}
	appt.Status = to

	s.events.Record(ctx, aggregate, event.ActionStatusChanged, id, map[string]interface{}{
		"from": from,
		"to":   to,
	})
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("appointment status changed")
	return s.expand(ctx, appt)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.appointments.Delete(ctx, id); err != nil {
		return service.MapError(err, aggregate, "id")
	}
	s.events.Record(ctx, aggregate, event.ActionDeleted, id, nil)
	return nil
}

func (s *Service) checkReferences(ctx context.Context, appt *model.Appointment) error {
	if err := s.refs.Require(ctx, reference.Citizen, "citizen", appt.CitizenID); err != nil {
		return err
	}
	if err := s.refs.Require(ctx, reference.Institution, "institution", appt.InstitutionID); err != nil {
		return err
	}

	member, err := s.staff.Get(ctx, appt.StaffID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewValidation("staff", "does not exist")
	}
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if member.InstitutionID != appt.InstitutionID {
		return apperrors.NewValidation("staff", "does not belong to the institution")
	}
	return nil
}

func (s *Service) recordUpdate(ctx context.Context, from model.AppointmentStatus, appt *model.Appointment, patch schema.Document) {
	if appt.Status != from {
		s.events.Record(ctx, aggregate, event.ActionStatusChanged, appt.ID, map[string]interface{}{
			"from": from,
			"to":   appt.Status,
		})
	}
	s.events.Record(ctx, aggregate, event.ActionUpdated, appt.ID, map[string]interface{}{"fields": service.FieldNames(patch)})
}

func (s *Service) expand(ctx context.Context, appt *model.Appointment) (*model.AppointmentView, error) {
	citizen, err := service.Optional(s.citizens.Get(ctx, appt.CitizenID))
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	inst, err := service.Optional(s.institutions.Get(ctx, appt.InstitutionID))
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	member, err := service.Optional(s.staff.Get(ctx, appt.StaffID))
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	return &model.AppointmentView{
		Appointment:        appt,
		CitizenDetails:     citizen.Summary(),
		InstitutionDetails: inst.Summary(),
		StaffDetails:       member.Summary(),
	}, nil
}

// guard rejects updates to terminal appointments and status jumps the state
// machine does not allow. Unknown statuses are left to the schema.
func guard(from model.AppointmentStatus, patch schema.Document) error {
	to, _ := patch["status"].(string)

	if from.Terminal() {
		if to == "" {
			to = string(from)
		}
		return apperrors.NewInvalidTransition(aggregate, string(from), to)
	}
	if to == "" || to == string(from) || !model.AppointmentStatuses.Has(to) {
		return nil
	}
	if !from.CanTransition(model.AppointmentStatus(to)) {
		return apperrors.NewInvalidTransition(aggregate, string(from), to)
	}
	return nil
}
