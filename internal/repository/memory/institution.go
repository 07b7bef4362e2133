package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
)

type institutionRepository struct {
	rows *table[model.Institution]
	keys *table[model.APIKey]
}

func NewInstitutionRepository() repository.InstitutionRepository {
	return &institutionRepository{
		rows: newTable(cloneInstitution),
		keys: newTable(cloneAPIKey),
	}
}

func cloneInstitution(src *model.Institution) *model.Institution {
	i := *src
	i.Services = append(model.ServiceList(nil), src.Services...)
	i.EmergencyAccess.EmergencyContacts = append(model.IDList(nil), src.EmergencyAccess.EmergencyContacts...)
	return &i
}

func cloneAPIKey(src *model.APIKey) *model.APIKey {
	k := *src
	k.Permissions = append(model.StringList(nil), src.Permissions...)
	k.LastUsed = cloneTime(src.LastUsed)
	return &k
}

func (r *institutionRepository) Create(ctx context.Context, institution *model.Institution) error {
	institution.Touch(time.Now().UTC())
	return r.rows.insert(institution.ID, institution, nil)
}

func (r *institutionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Institution, error) {
	return r.rows.get(id)
}

func (r *institutionRepository) Update(ctx context.Context, institution *model.Institution) error {
	institution.UpdatedAt = time.Now().UTC()
	return r.rows.replace(institution.ID, institution, nil)
}

func (r *institutionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.rows.remove(id); err != nil {
		return err
	}
	for _, key := range r.keys.scan(func(k *model.APIKey) bool { return k.InstitutionID == id }) {
		_ = r.keys.remove(key.ID)
	}
	return nil
}

func (r *institutionRepository) List(ctx context.Context, filter *model.InstitutionFilter) ([]*model.Institution, error) {
	items := r.rows.scan(func(i *model.Institution) bool {
		return filter == nil || filter.Type == "" || string(i.Type) == filter.Type
	})
	newestFirst(items, func(i *model.Institution) (time.Time, uuid.UUID) { return i.CreatedAt, i.ID })
	return items, nil
}

func (r *institutionRepository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	key.CreatedAt = time.Now().UTC()
	return r.keys.insert(key.ID, key, func(existing *model.APIKey) bool {
		return existing.Digest == key.Digest
	})
}

func (r *institutionRepository) ListAPIKeys(ctx context.Context, institutionID uuid.UUID) ([]*model.APIKey, error) {
	items := r.keys.scan(func(k *model.APIKey) bool { return k.InstitutionID == institutionID })
	newestFirst(items, func(k *model.APIKey) (time.Time, uuid.UUID) { return k.CreatedAt, k.ID })
	return items, nil
}

func (r *institutionRepository) GetAPIKeyByDigest(ctx context.Context, digest string) (*model.APIKey, error) {
	return r.keys.find(func(k *model.APIKey) bool { return k.Digest == digest })
}

func (r *institutionRepository) GetAPIKey(ctx context.Context, id uuid.UUID) (*model.APIKey, error) {
	return r.keys.get(id)
}

func (r *institutionRepository) TouchAPIKey(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.keys.update(id, nil, func(stored *model.APIKey) (*model.APIKey, error) {
		next := *stored
		next.LastUsed = &at
		return &next, nil
	})
}

func (r *institutionRepository) DeactivateAPIKey(ctx context.Context, id uuid.UUID) error {
	return r.keys.update(id, nil, func(stored *model.APIKey) (*model.APIKey, error) {
		next := *stored
		next.Active = false
		return &next, nil
	})
}
