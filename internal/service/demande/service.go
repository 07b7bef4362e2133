package demande

import (
	"context"
	"errors"
	"strings"
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

const aggregate = "demande"

type Servicer interface {
	Create(ctx context.Context, doc schema.Document, actor *model.Identity) (*model.DemandeView, error)
	Get(ctx context.Context, id uuid.UUID) (*model.DemandeView, error)
	List(ctx context.Context, filter *model.DemandeFilter) ([]*model.DemandeView, error)
	Update(ctx context.Context, id uuid.UUID, patch schema.Document) (*model.DemandeView, error)
	Assign(ctx context.Context, id, adminID uuid.UUID) (*model.DemandeView, error)
	Complete(ctx context.Context, id uuid.UUID) (*model.DemandeView, error)
	Reject(ctx context.Context, id uuid.UUID) (*model.DemandeView, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	demandes     repository.DemandeRepository
	citizens     repository.CitizenRepository
	institutions repository.InstitutionRepository
	staff        repository.StaffRepository
	refs         *reference.Checker
	events       event.Recorder
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	demandes repository.DemandeRepository,
	citizens repository.CitizenRepository,
	institutions repository.InstitutionRepository,
	staff repository.StaffRepository,
	refs *reference.Checker,
	events event.Recorder,
	logger zerolog.Logger,
) *Service {
	return &Service{
		demandes:     demandes,
		citizens:     citizens,
		institutions: institutions,
		staff:        staff,
		refs:         refs,
		events:       events,
		logger:       logger,
		now:          time.Now,
	}
}

// Create files a request. Citizens may only file for themselves.
func (s *Service) Create(ctx context.Context, doc schema.Document, actor *model.Identity) (*model.DemandeView, error) {
	if err := schema.Demande.ValidateCreate(doc, s.now().UTC()); err != nil {
		return nil, err
	}

	d := &model.Demande{}
	if err := schema.Decode(doc, d); err != nil {
		return nil, err
	}
	d.Base = model.Base{}
	d.ResolvedAt = nil

	if d.Status != model.DemandeStatusPending {
		return nil, apperrors.NewValidation("status", "new requests must be pending")
	}
	if actor != nil && actor.Role == model.RoleCitizen && actor.Subject != d.CitizenID {
		return nil, apperrors.Forbidden("citizens may only file their own requests")
	}
	if err := s.checkReferences(ctx, d); err != nil {
		return nil, err
	}

	if err := s.demandes.Create(ctx, d); err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}

	s.events.Record(ctx, aggregate, event.ActionCreated, d.ID, map[string]interface{}{
		"citizenId":     d.CitizenID,
		"institutionId": d.InstitutionID,
		"serviceId":     d.ServiceID,
	})
	return s.expand(ctx, d)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.DemandeView, error) {
	d, err := s.demandes.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}
	return s.expand(ctx, d)
}

func (s *Service) List(ctx context.Context, filter *model.DemandeFilter) ([]*model.DemandeView, error) {
	items, err := s.demandes.List(ctx, filter)
	if err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}

	views := make([]*model.DemandeView, 0, len(items))
	for _, d := range items {
		view, err := s.expand(ctx, d)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Update applies an allow-listed patch under the same rules as the action
// endpoints: terminal requests are frozen and status moves follow the machine.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch schema.Document) (*model.DemandeView, error) {
	current, err := s.demandes.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}
	if err := guard(current.Status, patch); err != nil {
		return nil, err
	}
	return s.apply(ctx, current, patch)
}

// Assign moves a pending request to processing under a staff member of the
// same institution.
func (s *Service) Assign(ctx context.Context, id, adminID uuid.UUID) (*model.DemandeView, error) {
	current, err := s.demandes.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}
	if err := transition(current.Status, model.DemandeStatusProcessing); err != nil {
		return nil, err
	}

	admin, err := s.admin(ctx, adminID, current.InstitutionID)
	if err != nil {
		return nil, err
	}

	return s.apply(ctx, current, schema.Document{
		"status":     string(model.DemandeStatusProcessing),
		"adminId":    admin.ID.String(),
		"adminName":  strings.TrimSpace(admin.FirstName + " " + admin.LastName),
		"adminEmail": admin.Email,
	})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*model.DemandeView, error) {
	return s.resolve(ctx, id, model.DemandeStatusCompleted)
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*model.DemandeView, error) {
	return s.resolve(ctx, id, model.DemandeStatusRejected)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.demandes.Delete(ctx, id); err != nil {
		return service.MapError(err, aggregate, "id")
	}
	s.events.Record(ctx, aggregate, event.ActionDeleted, id, nil)
	return nil
}

func (s *Service) resolve(ctx context.Context, id uuid.UUID, to model.DemandeStatus) (*model.DemandeView, error) {
	current, err := s.demandes.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}
	if err := transition(current.Status, to); err != nil {
		return nil, err
	}
	return s.apply(ctx, current, schema.Document{"status": string(to)})
}

func (s *Service) apply(ctx context.Context, current *model.Demande, patch schema.Document) (*model.DemandeView, error) {
	currentDoc, err := schema.ToDocument(current)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	now := s.now().UTC()
	merged, err := schema.Demande.ValidateUpdate(patch, currentDoc, now)
	if err != nil {
		return nil, err
	}

	updated := &model.Demande{}
	if err := schema.Decode(merged, updated); err != nil {
		return nil, err
	}
	updated.Base = current.Base
	updated.ResolvedAt = current.ResolvedAt

	if updated.CitizenID != current.CitizenID ||
		updated.InstitutionID != current.InstitutionID ||
		updated.ServiceID != current.ServiceID {
		if err := s.checkReferences(ctx, updated); err != nil {
			return nil, err
		}
	}

	if updated.Status == model.DemandeStatusProcessing && updated.AdminID == nil {
		return nil, apperrors.NewValidation("adminId", "is required while processing")
	}
	if updated.AdminID != nil && (current.AdminID == nil || *current.AdminID != *updated.AdminID ||
		current.InstitutionID != updated.InstitutionID) {
		if _, err := s.admin(ctx, *updated.AdminID, updated.InstitutionID); err != nil {
			return nil, err
		}
	}

	if updated.Status != current.Status && updated.Status.Terminal() {
		updated.ResolvedAt = &now
	}

	if err := s.demandes.Update(ctx, updated, current.Status); err != nil {
		return nil, service.MapError(err, aggregate, "id")
	}

	if updated.Status != current.Status {
		s.events.Record(ctx, aggregate, event.ActionStatusChanged, updated.ID, map[string]interface{}{
			"from": current.Status,
			"to":   updated.Status,
		})
		s.logger.Info().
			Str("demande_id", updated.ID.String()).
			Str("from", string(current.Status)).
			Str("to", string(updated.Status)).
			Msg("request status changed")
	}
	s.events.Record(ctx, aggregate, event.ActionUpdated, updated.ID, map[string]interface{}{"fields": service.FieldNames(patch)})
	return s.expand(ctx, updated)
}

// admin loads the staff member handling a request and requires them to work
// for the request's institution.
func (s *Service) admin(ctx context.Context, id, institutionID uuid.UUID) (*model.Staff, error) {
	admin, err := s.staff.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewValidation("adminId", "does not exist")
	}
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if admin.InstitutionID != institutionID {
		return nil, apperrors.NewValidation("adminId", "does not belong to the institution")
	}
	return admin, nil
}

func (s *Service) checkReferences(ctx context.Context, d *model.Demande) error {
	if err := s.refs.Require(ctx, reference.Citizen, "citizenId", d.CitizenID); err != nil {
		return err
	}

	inst, err := s.institutions.Get(ctx, d.InstitutionID)
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewValidation("institutionId", "does not exist")
	}
	if err != nil {
		return apperrors.NewInternal(err)
	}
	if _, ok := inst.Services.Find(d.ServiceID); !ok {
		return apperrors.NewValidation("serviceId", "is not offered by the institution")
	}
	return nil
}

func (s *Service) expand(ctx context.Context, d *model.Demande) (*model.DemandeView, error) {
	citizen, err := service.Optional(s.citizens.Get(ctx, d.CitizenID))
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	inst, err := service.Optional(s.institutions.Get(ctx, d.InstitutionID))
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	view := &model.DemandeView{
		Demande:            d,
		CitizenDetails:     citizen.Summary(),
		InstitutionDetails: inst.Summary(),
	}
	if inst != nil {
		if svc, ok := inst.Services.Find(d.ServiceID); ok {
			view.ServiceName = svc.Name
		}
	}
	return view, nil
}

func transition(from, to model.DemandeStatus) error {
	if !from.CanTransition(to) {
		return apperrors.NewInvalidTransition(aggregate, string(from), string(to))
	}
	return nil
}

// guard rejects updates to terminal requests and status jumps the state
// machine does not allow.
func guard(from model.DemandeStatus, patch schema.Document) error {
	to, _ := patch["status"].(string)

	if from.Terminal() {
		if to == "" {
			to = string(from)
		}
		return apperrors.NewInvalidTransition(aggregate, string(from), to)
	}
	if to == "" || to == string(from) || !model.DemandeStatuses.Has(to) {
		return nil
	}
	return transition(from, model.DemandeStatus(to))
}
