package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
)

const institutionColumns = `id, name, type, address, contact, services, emergency_access, statistics,
	created_at, updated_at`

const apiKeyColumns = `id, institution_id, prefix, digest, permissions, active, last_used, created_at`

func (r *institutionRepository) Create(ctx context.Context, institution *model.Institution) error {
	institution.Touch(time.Now().UTC())

	query := `
		INSERT INTO institutions (` + institutionColumns + `)
		VALUES (:id, :name, :type, :address, :contact, :services, :emergency_access, :statistics,
			:created_at, :updated_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, institution)
	return translate("create institution", err)
}

func (r *institutionRepository) Get(ctx context.Context, id uuid.UUID) (*model.Institution, error) {
	var institution model.Institution
	query := `SELECT ` + institutionColumns + ` FROM institutions WHERE id = $1`
	if err := r.db.GetContext(ctx, &institution, query, id); err != nil {
		return nil, translate("get institution", err)
	}
	return &institution, nil
}

func (r *institutionRepository) Update(ctx context.Context, institution *model.Institution) error {
	institution.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE institutions SET
			name = :name,
			type = :type,
			address = :address,
			contact = :contact,
			services = :services,
			emergency_access = :emergency_access,
			statistics = :statistics,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, institution)
	if err != nil {
		return translate("update institution", err)
	}
	return affected("update institution", result)
}

// Delete fails with ErrReferenced while staff, appointments or requests point at the institution.
func (r *institutionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM institutions WHERE id = $1`, id)
	if err != nil {
		return translate("delete institution", err)
	}
	return affected("delete institution", result)
}

func (r *institutionRepository) List(ctx context.Context, filter *model.InstitutionFilter) ([]*model.Institution, error) {
	var where whereBuilder
	if filter != nil && filter.Type != "" {
		where.add("type = $%d", filter.Type)
	}
	query := `SELECT ` + institutionColumns + ` FROM institutions` + where.sql() + ` ORDER BY created_at DESC, id::text ASC`

	institutions := []*model.Institution{}
	if err := r.db.SelectContext(ctx, &institutions, query, where.args...); err != nil {
		return nil, translate("list institutions", err)
	}
	return institutions, nil
}

func (r *institutionRepository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	key.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO institution_api_keys (` + apiKeyColumns + `)
		VALUES (:id, :institution_id, :prefix, :digest, :permissions, :active, :last_used, :created_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, key)
	return translate("create api key", err)
}

func (r *institutionRepository) ListAPIKeys(ctx context.Context, institutionID uuid.UUID) ([]*model.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM institution_api_keys WHERE institution_id = $1 ORDER BY created_at DESC, id::text ASC`

	keys := []*model.APIKey{}
	if err := r.db.SelectContext(ctx, &keys, query, institutionID); err != nil {
		return nil, translate("list api keys", err)
	}
	return keys, nil
}

func (r *institutionRepository) GetAPIKeyByDigest(ctx context.Context, digest string) (*model.APIKey, error) {
	var key model.APIKey
	query := `SELECT ` + apiKeyColumns + ` FROM institution_api_keys WHERE digest = $1`
	if err := r.db.GetContext(ctx, &key, query, digest); err != nil {
		return nil, translate("get api key", err)
	}
	return &key, nil
}

func (r *institutionRepository) GetAPIKey(ctx context.Context, id uuid.UUID) (*model.APIKey, error) {
	var key model.APIKey
	query := `SELECT ` + apiKeyColumns + ` FROM institution_api_keys WHERE id = $1`
	if err := r.db.GetContext(ctx, &key, query, id); err != nil {
		return nil, translate("get api key", err)
	}
	return &key, nil
}

func (r *institutionRepository) TouchAPIKey(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE institution_api_keys SET last_used = $2 WHERE id = $1`, id, at)
	if err != nil {
		return translate("touch api key", err)
	}
	return affected("touch api key", result)
}

func (r *institutionRepository) DeactivateAPIKey(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `UPDATE institution_api_keys SET active = false WHERE id = $1`, id)
	if err != nil {
		return translate("deactivate api key", err)
	}
	return affected("deactivate api key", result)
}
