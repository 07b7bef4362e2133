package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
)

const demandeColumns = `id, citizen_id, institution_id, service_id, admin_id, admin_name, admin_email,
	type, title, description, status, resolved_at, created_at, updated_at`

func (r *demandeRepository) Create(ctx context.Context, demande *model.Demande) error {
	demande.Touch(time.Now().UTC())

	query := `
		INSERT INTO demandes (` + demandeColumns + `)
		VALUES (:id, :citizen_id, :institution_id, :service_id, :admin_id, :admin_name, :admin_email,
			:type, :title, :description, :status, :resolved_at, :created_at, :updated_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, demande)
	return translate("create demande", err)
}

func (r *demandeRepository) Get(ctx context.Context, id uuid.UUID) (*model.Demande, error) {
	var demande model.Demande
	query := `SELECT ` + demandeColumns + ` FROM demandes WHERE id = $1`
	if err := r.db.GetContext(ctx, &demande, query, id); err != nil {
		return nil, translate("get demande", err)
	}
	return &demande, nil
}

type demandeUpdate struct {
	*model.Demande
	From model.DemandeStatus `db:"from_status"`
}

func (r *demandeRepository) Update(ctx context.Context, demande *model.Demande, from model.DemandeStatus) error {
	demande.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE demandes SET
			citizen_id = :citizen_id,
			institution_id = :institution_id,
			service_id = :service_id,
			admin_id = :admin_id,
			admin_name = :admin_name,
			admin_email = :admin_email,
			type = :type,
			title = :title,
			description = :description,
			status = :status,
			resolved_at = :resolved_at,
			updated_at = :updated_at
		WHERE id = :id AND status = :from_status
	`
	result, err := r.db.NamedExecContext(ctx, query, demandeUpdate{Demande: demande, From: from})
	if err != nil {
		return translate("update demande", err)
	}
	return r.guarded(ctx, "update demande", "demandes", demande.ID, result)
}

func (r *demandeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM demandes WHERE id = $1`, id)
	if err != nil {
		return translate("delete demande", err)
	}
	return affected("delete demande", result)
}

func demandeWhere(filter *model.DemandeFilter) whereBuilder {
	var where whereBuilder
	if filter == nil {
		return where
	}
	if filter.Status != "" {
		where.add("status = $%d", filter.Status)
	}
	if filter.CitizenID != nil {
		where.add("citizen_id = $%d", *filter.CitizenID)
	}
	if filter.InstitutionID != nil {
		where.add("institution_id = $%d", *filter.InstitutionID)
	}
	return where
}

func (r *demandeRepository) List(ctx context.Context, filter *model.DemandeFilter) ([]*model.Demande, error) {
	where := demandeWhere(filter)
	query := `SELECT ` + demandeColumns + ` FROM demandes` + where.sql() + ` ORDER BY created_at DESC, id::text ASC`

	demandes := []*model.Demande{}
	if err := r.db.SelectContext(ctx, &demandes, query, where.args...); err != nil {
		return nil, translate("list demandes", err)
	}
	return demandes, nil
}

func (r *demandeRepository) Count(ctx context.Context, filter *model.DemandeFilter) (int, error) {
	where := demandeWhere(filter)
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM demandes`+where.sql(), where.args...); err != nil {
		return 0, translate("count demandes", err)
	}
	return n, nil
}

// Statistics averages processing time in hours over resolved requests.
func (r *demandeRepository) Statistics(ctx context.Context, institutionID uuid.UUID) (*model.Statistics, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed,
			COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 3600)
				FILTER (WHERE status = 'completed' AND resolved_at IS NOT NULL), 0) AS avg_hours
		FROM demandes
		WHERE institution_id = $1
	`
	var row struct {
		Total     int     `db:"total"`
		Completed int     `db:"completed"`
		AvgHours  float64 `db:"avg_hours"`
	}
	if err := r.db.GetContext(ctx, &row, query, institutionID); err != nil {
		return nil, translate("compute statistics", err)
	}
	return &model.Statistics{
		TotalRequests:         row.Total,
		CompletedRequests:     row.Completed,
		AverageProcessingTime: row.AvgHours,
		LastUpdated:           time.Now().UTC(),
	}, nil
}
