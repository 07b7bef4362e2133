package institution

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/jwalitptl/citizen-registry/pkg/security"
)

const aggregate = "institution"

type Servicer interface {
	Create(ctx context.Context, doc schema.Document) (*model.InstitutionView, error)
	Get(ctx context.Context, id uuid.UUID) (*model.InstitutionView, error)
	List(ctx context.Context, filter *model.InstitutionFilter) ([]*model.InstitutionView, error)
	Update(ctx context.Context, id uuid.UUID, patch schema.Document) (*model.InstitutionView, error)
	Delete(ctx context.Context, id uuid.UUID) error

	Services(ctx context.Context, id uuid.UUID) (model.ServiceList, error)
	ReplaceServices(ctx context.Context, id uuid.UUID, doc schema.Document) (model.ServiceList, error)
	Statistics(ctx context.Context, id uuid.UUID) (*model.Statistics, error)

	CreateAPIKey(ctx context.Context, id uuid.UUID, permissions []string) (*model.IssuedAPIKey, error)
	ListAPIKeys(ctx context.Context, id uuid.UUID) ([]*model.APIKey, error)
	DeactivateAPIKey(ctx context.Context, id, keyID uuid.UUID) error
}

type Service struct {
	institutions repository.InstitutionRepository
	staff        repository.StaffRepository
	appointments repository.AppointmentRepository
	demandes     repository.DemandeRepository
	refs         *reference.Checker
	events       event.Recorder
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(
	institutions repository.InstitutionRepository,
	staff repository.StaffRepository,
	appointments repository.AppointmentRepository,
	demandes repository.DemandeRepository,
	refs *reference.Checker,
	events event.Recorder,
	logger zerolog.Logger,
) *Service {
	return &Service{
		institutions: institutions,
		staff:        staff,
		appointments: appointments,
		demandes:     demandes,
		refs:         refs,
		events:       events,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *Service) Create(ctx context.Context, doc schema.Document) (*model.InstitutionView, error) {
	if err := schema.Institution.ValidateCreate(doc, s.now().UTC()); err != nil {
		return nil, err
	}

	inst := &model.Institution{}
	if err := schema.Decode(doc, inst); err != nil {
		return nil, err
	}
	inst.Base = model.Base{}
	inst.Statistics = model.Statistics{}
	assignServiceIDs(inst.Services)

	if err := s.institutions.Create(ctx, inst); err != nil {
		return nil, service.MapError(err, aggregate, "name")
	}
	s.refs.Remember(reference.Institution, inst.ID)

	s.events.Record(ctx, aggregate, event.ActionCreated, inst.ID, inst.Summary())
	return &model.InstitutionView{Institution: inst}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.InstitutionView, error) {
	inst, err := s.institutions.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "name")
	}
	return s.expand(ctx, inst)
}

func (s *Service) List(ctx context.Context, filter *model.InstitutionFilter) ([]*model.InstitutionView, error) {
	items, err := s.institutions.List(ctx, filter)
	if err != nil {
		return nil, service.MapError(err, aggregate, "name")
	}

	views := make([]*model.InstitutionView, 0, len(items))
	for _, inst := range items {
		view, err := s.expand(ctx, inst)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, patch schema.Document) (*model.InstitutionView, error) {
	current, err := s.institutions.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "name")
	}

	currentDoc, err := schema.ToDocument(current)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	merged, err := schema.Institution.ValidateUpdate(patch, currentDoc, s.now().UTC())
	if err != nil {
		return nil, err
	}

	updated := &model.Institution{}
	if err := schema.Decode(merged, updated); err != nil {
		return nil, err
	}
	updated.Base = current.Base
	updated.Statistics = current.Statistics
	assignServiceIDs(updated.Services)

	if err := s.institutions.Update(ctx, updated); err != nil {
		return nil, service.MapError(err, aggregate, "name")
	}

	s.events.Record(ctx, aggregate, event.ActionUpdated, id, map[string]interface{}{"fields": service.FieldNames(patch)})
	return s.expand(ctx, updated)
}

// Delete refuses while staff, appointments or requests reference the institution.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.institutions.Get(ctx, id); err != nil {
		return service.MapError(err, aggregate, "name")
	}

	counts, err := s.dependents(ctx, id)
	if err != nil {
		return err
	}
	var blocking []string
	if counts.StaffCount > 0 {
		blocking = append(blocking, fmt.Sprintf("%d staff", counts.StaffCount))
	}
	if counts.AppointmentCount > 0 {
		blocking = append(blocking, fmt.Sprintf("%d appointment(s)", counts.AppointmentCount))
	}
	if counts.RequestCount > 0 {
		blocking = append(blocking, fmt.Sprintf("%d request(s)", counts.RequestCount))
	}
	if len(blocking) > 0 {
		return apperrors.NewHasDependents("institution is referenced by " + strings.Join(blocking, ", "))
	}

	if err := s.institutions.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrReferenced) {
			return apperrors.NewHasDependents("institution is still referenced")
		}
		return service.MapError(err, aggregate, "name")
	}
	s.refs.Forget(reference.Institution, id)

	s.events.Record(ctx, aggregate, event.ActionDeleted, id, nil)
	return nil
}

func (s *Service) Services(ctx context.Context, id uuid.UUID) (model.ServiceList, error) {
	inst, err := s.institutions.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "name")
	}
	if inst.Services == nil {
		return model.ServiceList{}, nil
	}
	return inst.Services, nil
}

// ReplaceServices swaps the whole catalog. Entries without an id get one.
func (s *Service) ReplaceServices(ctx context.Context, id uuid.UUID, doc schema.Document) (model.ServiceList, error) {
	inst, err := s.institutions.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "name")
	}
	if err := schema.Services.ValidateCreate(doc, s.now().UTC()); err != nil {
		return nil, err
	}

	var body struct {
		Services model.ServiceList `json:"services"`
	}
	if err := schema.Decode(doc, &body); err != nil {
		return nil, err
	}
	if body.Services == nil {
		body.Services = model.ServiceList{}
	}
	assignServiceIDs(body.Services)

	inst.Services = body.Services
	if err := s.institutions.Update(ctx, inst); err != nil {
		return nil, service.MapError(err, aggregate, "name")
	}

	s.events.Record(ctx, aggregate, event.ActionUpdated, id, map[string]interface{}{"fields": []string{"services"}})
	return inst.Services, nil
}

// Statistics computes request figures on read. The satisfaction score is kept
// as stored.
func (s *Service) Statistics(ctx context.Context, id uuid.UUID) (*model.Statistics, error) {
	inst, err := s.institutions.Get(ctx, id)
	if err != nil {
		return nil, service.MapError(err, aggregate, "name")
	}

	stats, err := s.demandes.Statistics(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	stats.SatisfactionScore = inst.Statistics.SatisfactionScore
	stats.LastUpdated = s.now().UTC()
	return stats, nil
}

func (s *Service) CreateAPIKey(ctx context.Context, id uuid.UUID, permissions []string) (*model.IssuedAPIKey, error) {
	if _, err := s.institutions.Get(ctx, id); err != nil {
		return nil, service.MapError(err, aggregate, "name")
	}

	if len(permissions) == 0 {
		return nil, apperrors.NewValidation("permissions", "at least one permission is required")
	}
	for _, p := range permissions {
		if !model.APIPermissions.Has(p) {
			return nil, apperrors.NewValidation("permissions", fmt.Sprintf("unknown permission %q", p))
		}
	}

	key, prefix, digest, err := security.GenerateAPIKey()
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	record := &model.APIKey{
		InstitutionID: id,
		Prefix:        prefix,
		Digest:        digest,
		Permissions:   model.StringList(permissions),
		Active:        true,
	}
	if err := s.institutions.CreateAPIKey(ctx, record); err != nil {
		return nil, service.MapError(err, "api key", "key")
	}

	s.logger.Info().
		Str("institution_id", id.String()).
		Str("key_prefix", prefix).
		Msg("api key issued")
	s.events.Record(ctx, aggregate, "api_key_issued", id, map[string]interface{}{
		"keyId":       record.ID,
		"permissions": permissions,
	})
	return &model.IssuedAPIKey{APIKey: *record, Key: key}, nil
}

func (s *Service) ListAPIKeys(ctx context.Context, id uuid.UUID) ([]*model.APIKey, error) {
	if _, err := s.institutions.Get(ctx, id); err != nil {
		return nil, service.MapError(err, aggregate, "name")
	}
	keys, err := s.institutions.ListAPIKeys(ctx, id)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return keys, nil
}

func (s *Service) DeactivateAPIKey(ctx context.Context, id, keyID uuid.UUID) error {
	keys, err := s.ListAPIKeys(ctx, id)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if key.ID != keyID {
			continue
		}
		if !key.Active {
			return nil
		}
		if err := s.institutions.DeactivateAPIKey(ctx, key.ID); err != nil {
			return service.MapError(err, "api key", "key")
		}
		s.events.Record(ctx, aggregate, "api_key_revoked", id, map[string]interface{}{"keyId": keyID})
		return nil
	}
	return apperrors.NewNotFound("api key", repository.ErrNotFound)
}

func (s *Service) expand(ctx context.Context, inst *model.Institution) (*model.InstitutionView, error) {
	view, err := s.dependents(ctx, inst.ID)
	if err != nil {
		return nil, err
	}
	view.Institution = inst
	return view, nil
}

func (s *Service) dependents(ctx context.Context, id uuid.UUID) (*model.InstitutionView, error) {
	staff, err := s.staff.Count(ctx, &model.StaffFilter{InstitutionID: &id})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	appointments, err := s.appointments.Count(ctx, &model.AppointmentFilter{InstitutionID: &id})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	requests, err := s.demandes.Count(ctx, &model.DemandeFilter{InstitutionID: &id})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return &model.InstitutionView{
		StaffCount:       staff,
		AppointmentCount: appointments,
		RequestCount:     requests,
	}, nil
}

func assignServiceIDs(services model.ServiceList) {
	for i := range services {
		if services[i].ID == uuid.Nil {
			services[i].ID = uuid.New()
		}
	}
}
