package citizen

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

const aggregate = "citizen"

type Servicer interface {
	Create(ctx context.Context, doc schema.Document) (*model.CitizenView, error)
	Get(ctx context.Context, id uuid.UUID) (*model.CitizenView, error)
	List(ctx context.Context, filter *model.CitizenFilter) ([]*model.CitizenView, error)
	Update(ctx context.Context, id uuid.UUID, patch schema.Document) (*model.CitizenView, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Emergency(ctx context.Context, id uuid.UUID, actor *model.Identity) (*model.EmergencyView, error)
}

type Service struct {
	citizens     repository.CitizenRepository
	appointments repository.AppointmentRepository
	demandes     repository.DemandeRepository
	hasher       security.PasswordHasher
	// encryptor seals biometric vectors; nil disables enrollment.
	encryptor security.Encryptor
	refs      *reference.Checker
	events    event.Recorder
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(
	citizens repository.CitizenRepository,
	appointments repository.AppointmentRepository,
	demandes repository.DemandeRepository,
	hasher security.PasswordHasher,
	encryptor security.Encryptor,
	refs *reference.Checker,
	events event.Recorder,
	logger zerolog.Logger,
) *Service {
	return &Service{
		citizens:     citizens,
		appointments: appointments,
		demandes:     demandes,
		hasher:       hasher,
		encryptor:    encryptor,
		refs:         refs,
		events:       events,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) Create(ctx context.Context, doc schema.Document) (*model.CitizenView, error) {
	now := s.now().UTC()
	if err := schema.Citizen.ValidateCreate(doc, now); err != nil {
		return nil, err
	}

	citizen := &model.Citizen{}
	if err := schema.Decode(doc, citizen); err != nil {
		return nil, err
	}
	citizen.Base = model.Base{}
	citizen.BiometricUpdatedAt = nil

	password, _ := doc["password"].(string)
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("failed to hash password: %w", err))
	}
	citizen.PasswordHash = hash

	if err := s.sealBiometric(citizen, now); err != nil {
		return nil, err
	}

	if err := s.citizens.Create(ctx, citizen); err != nil {
		return nil, service.MapError(err, aggregate, "email")
	}
	s.refs.Remember(reference.Citizen, citizen.ID)

	s.events.Record(ctx, aggregate, event.ActionCreated, citizen.ID, citizen.Summary())
	s.logger.Info().Str("citizen_id", citizen.ID.String()).Msg("citizen registered")

	return &model.CitizenView{Citizen: citizen, Appointments: []uuid.UUID{}, Requests: []uuid.UUID{}}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.CitizenView, error) {
	citizen, err := s.citizens.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "email")
	}
	return s.expand(ctx, citizen)
}

func (s *Service) List(ctx context.Context, filter *model.CitizenFilter) ([]*model.CitizenView, error) {
	citizens, err := s.citizens.List(ctx, filter)
	if err != nil {
		return nil, service.MapError(err, aggregate, "email")
	}

	views := make([]*model.CitizenView, 0, len(citizens))
	for _, c := range citizens {
		view, err := s.expand(ctx, c)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, patch schema.Document) (*model.CitizenView, error) {
	current, err := s.citizens.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "email")
	}

	currentDoc, err := schema.ToDocument(current)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	now := s.now().UTC()
	merged, err := schema.Citizen.ValidateUpdate(patch, currentDoc, now)
	if err != nil {
		return nil, err
	}

	updated := &model.Citizen{}
	if err := schema.Decode(merged, updated); err != nil {
		return nil, err
	}
	updated.Base = current.Base
	updated.PasswordHash = current.PasswordHash
	updated.BiometricCipher = current.BiometricCipher
	updated.BiometricUpdatedAt = current.BiometricUpdatedAt

	if _, ok := patch["biometricData"]; ok {
		updated.BiometricCipher = nil
		updated.BiometricUpdatedAt = nil
		if err := s.sealBiometric(updated, now); err != nil {
			return nil, err
		}
	}

	if err := s.citizens.Update(ctx, updated); err != nil {
		return nil, service.MapError(err, aggregate, "email")
	}

	s.events.Record(ctx, aggregate, event.ActionUpdated, id, map[string]interface{}{"fields": service.FieldNames(patch)})
	return s.expand(ctx, updated)
}

// Delete removes the citizen with its appointments and requests.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.citizens.Get(ctx, id); err != nil {
		return service.MapError(err, aggregate, "email")
	}

	appointments, err := s.appointments.List(ctx, &model.AppointmentFilter{CitizenID: &id})
	if err != nil {
		return apperrors.NewInternal(err)
	}
	for _, a := range appointments {
		if err := s.appointments.Delete(ctx, a.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewInternal(fmt.Errorf("failed to delete appointment %s: %w", a.ID, err))
		}
	}

	demandes, err := s.demandes.List(ctx, &model.DemandeFilter{CitizenID: &id})
	if err != nil {
		return apperrors.NewInternal(err)
	}
	for _, d := range demandes {
		if err := s.demandes.Delete(ctx, d.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewInternal(fmt.Errorf("failed to delete demande %s: %w", d.ID, err))
		}
	}

	if err := s.citizens.Delete(ctx, id); err != nil {
		return service.MapError(err, aggregate, "email")
	}
	s.refs.Forget(reference.Citizen, id)

	s.events.Record(ctx, aggregate, event.ActionDeleted, id, map[string]interface{}{
		"appointments": len(appointments),
		"requests":     len(demandes),
	})
	return nil
}

// Emergency returns the responder view, including the decrypted facial vector.
// Every call is recorded.
func (s *Service) Emergency(ctx context.Context, id uuid.UUID, actor *model.Identity) (*model.EmergencyView, error) {
	citizen, err := s.citizens.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "email")
	}

	view := &model.EmergencyView{
		Citizen:          *citizen.Summary(),
		BirthDate:        citizen.BirthDate,
		EmergencyProfile: citizen.EmergencyProfile,
	}

	if len(citizen.BiometricCipher) > 0 && s.encryptor != nil {
		vector, err := security.OpenVector(s.encryptor, citizen.BiometricCipher)
		if err != nil {
			return nil, apperrors.NewInternal(fmt.Errorf("failed to open biometric data: %w", err))
		}
		view.Biometric = &model.BiometricData{FacialVector: vector}
		if citizen.BiometricUpdatedAt != nil {
			view.Biometric.LastUpdated = *citizen.BiometricUpdatedAt
		}
	}

	var actorID, actorRole string
	if actor != nil {
		actorID, actorRole = actor.Subject.String(), string(actor.Role)
	}
	s.logger.Warn().
		Str("citizen_id", id.String()).
		Str("actor_id", actorID).
		Str("actor_role", actorRole).
		Msg("emergency profile accessed")
	s.events.Record(ctx, aggregate, event.ActionEmergencyAccess, id, map[string]interface{}{
		"actorId":   actorID,
		"actorRole": actorRole,
	})

	return view, nil
}

func (s *Service) expand(ctx context.Context, citizen *model.Citizen) (*model.CitizenView, error) {
	appointments, err := s.appointments.List(ctx, &model.AppointmentFilter{CitizenID: &citizen.ID})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	demandes, err := s.demandes.List(ctx, &model.DemandeFilter{CitizenID: &citizen.ID})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	view := &model.CitizenView{
		Citizen:      citizen,
		Appointments: make([]uuid.UUID, 0, len(appointments)),
		Requests:     make([]uuid.UUID, 0, len(demandes)),
	}
	for _, a := range appointments {
		view.Appointments = append(view.Appointments, a.ID)
	}
	for _, d := range demandes {
		view.Requests = append(view.Requests, d.ID)
	}
	return view, nil
}

// sealBiometric moves a submitted facial vector into its encrypted column.
func (s *Service) sealBiometric(citizen *model.Citizen, now time.Time) error {
	bio := citizen.Biometric
	citizen.Biometric = nil
	if bio == nil || len(bio.FacialVector) == 0 {
		return nil
	}
	if s.encryptor == nil {
		return apperrors.NewValidation("biometricData", "biometric enrollment is disabled")
	}

	sealed, err := security.SealVector(s.encryptor, bio.FacialVector)
	if err != nil {
		return apperrors.NewInternal(fmt.Errorf("failed to seal biometric data: %w", err))
	}
	citizen.BiometricCipher = sealed
	citizen.BiometricUpdatedAt = &now
	return nil
}
