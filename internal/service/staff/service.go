package staff

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/jwalitptl/citizen-registry/pkg/security"
)

const aggregate = "staff"

type Servicer interface {
	Create(ctx context.Context, doc schema.Document) (*model.StaffView, error)
	Get(ctx context.Context, id uuid.UUID) (*model.StaffView, error)
	List(ctx context.Context, filter *model.StaffFilter) ([]*model.StaffView, error)
	Update(ctx context.Context, id uuid.UUID, patch schema.Document) (*model.StaffView, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	staff        repository.StaffRepository
	institutions repository.InstitutionRepository
	appointments repository.AppointmentRepository
	hasher       security.PasswordHasher
	refs         *reference.Checker
	events       event.Recorder
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	staff repository.StaffRepository,
	institutions repository.InstitutionRepository,
	appointments repository.AppointmentRepository,
	hasher security.PasswordHasher,
	refs *reference.Checker,
	events event.Recorder,
	logger zerolog.Logger,
) *Service {
	return &Service{
		staff:        staff,
		institutions: institutions,
		appointments: appointments,
		hasher:       hasher,
		refs:         refs,
		events:       events,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) Create(ctx context.Context, doc schema.Document) (*model.StaffView, error) {
	if err := schema.Staff.ValidateCreate(doc, s.now().UTC()); err != nil {
		return nil, err
	}

	member := &model.Staff{}
	if err := schema.Decode(doc, member); err != nil {
		return nil, err
	}
	member.Base = model.Base{}
	member.Credentials = model.Credentials{}

	if err := s.refs.Require(ctx, reference.Institution, "institution", member.InstitutionID); err != nil {
		return nil, err
	}

	// Staff without a password cannot log in.
	if password, _ := doc["password"].(string); password != "" {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return nil, apperrors.NewInternal(fmt.Errorf("failed to hash password: %w", err))
		}
		member.PasswordHash = hash
	}

	if err := s.staff.Create(ctx, member); err != nil {
		return nil, service.MapError(err, aggregate, "email")
	}
	s.refs.Remember(reference.Staff, member.ID)

	s.events.Record(ctx, aggregate, event.ActionCreated, member.ID, member.Summary())
	return s.expand(ctx, member)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.StaffView, error) {
	member, err := s.staff.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "email")
	}
	return s.expand(ctx, member)
}

func (s *Service) List(ctx context.Context, filter *model.StaffFilter) ([]*model.StaffView, error) {
	members, err := s.staff.List(ctx, filter)
	if err != nil {
		return nil, service.MapError(err, aggregate, "email")
	}

	views := make([]*model.StaffView, 0, len(members))
	for _, m := range members {
		view, err := s.expand(ctx, m)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, patch schema.Document) (*model.StaffView, error) {
	current, err := s.staff.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "email")
	}

	currentDoc, err := schema.ToDocument(current)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	merged, err := schema.Staff.ValidateUpdate(patch, currentDoc, s.now().UTC())
	if err != nil {
		return nil, err
	}

	updated := &model.Staff{}
	if err := schema.Decode(merged, updated); err != nil {
		return nil, err
	}
	updated.Base = current.Base
	updated.PasswordHash = current.PasswordHash
	updated.Credentials = current.Credentials

	if updated.InstitutionID != current.InstitutionID {
		if err := s.refs.Require(ctx, reference.Institution, "institution", updated.InstitutionID); err != nil {
			return nil, err
		}
	}

	if err := s.staff.Update(ctx, updated); err != nil {
		return nil, service.MapError(err, aggregate, "email")
	}

	s.events.Record(ctx, aggregate, event.ActionUpdated, id, map[string]interface{}{"fields": service.FieldNames(patch)})
	return s.expand(ctx, updated)
}

// Delete refuses while any appointment still references the staff member.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.staff.Get(ctx, id); err != nil {
		return service.MapError(err, aggregate, "email")
	}

	n, err := s.appointments.Count(ctx, &model.AppointmentFilter{StaffID: &id})
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if n > 0 {
		return apperrors.NewHasDependents(fmt.Sprintf("staff member is referenced by %d appointment(s)", n))
	}

	if err := s.staff.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return apperrors.NewHasDependents("staff member is still referenced")
		}
		return service.MapError(err, aggregate, "email")
	}
	s.refs.Forget(reference.Staff, id)

	s.events.Record(ctx, aggregate, event.ActionDeleted, id, nil)
	return nil
}

func (s *Service) expand(ctx context.Context, member *model.Staff) (*model.StaffView, error) {
	inst, err := service.Optional(s.institutions.Get(ctx, member.InstitutionID))
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &model.StaffView{Staff: member, Institution: inst.Summary()}, nil
}
