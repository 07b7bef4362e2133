package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
)

type demandeRepository struct {
	rows *table[model.Demande]
}

func NewDemandeRepository() repository.DemandeRepository {
	return &demandeRepository{rows: newTable(cloneDemande)}
}

func cloneDemande(src *model.Demande) *model.Demande {
	d := *src
	d.AdminID = cloneID(src.AdminID)
	d.ResolvedAt = cloneTime(src.ResolvedAt)
	return &d
}

func demandeMatches(filter *model.DemandeFilter) func(*model.Demande) bool {
	return func(d *model.Demande) bool {
		if filter == nil {
			return true
		}
		if filter.Status != "" && string(d.Status) != filter.Status {
			return false
		}
		return sameID(filter.CitizenID, d.CitizenID) && sameID(filter.InstitutionID, d.InstitutionID)
	}
}

func (r *demandeRepository) Create(ctx context.Context, demande *model.Demande) error {
	demande.Touch(time.Now().UTC())
	return r.rows.insert(demande.ID, demande, nil)
}

func (r *demandeRepository) Get(ctx context.Context, id uuid.UUID) (*model.Demande, error) {
	return r.rows.get(id)
}

func (r *demandeRepository) Update(ctx context.Context, demande *model.Demande, from model.DemandeStatus) error {
	demande.UpdatedAt = time.Now().UTC()
	return r.rows.update(demande.ID, nil, func(stored *model.Demande) (*model.Demande, error) {
		if stored.Status != from {
			return nil, repository.ErrStale
		}
		return demande, nil
	})
}

func (r *demandeRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.rows.remove(id)
}

func (r *demandeRepository) List(ctx context.Context, filter *model.DemandeFilter) ([]*model.Demande, error) {
	items := r.rows.scan(demandeMatches(filter))
	newestFirst(items, func(d *model.Demande) (time.Time, uuid.UUID) { return d.CreatedAt, d.ID })
	return items, nil
}

func (r *demandeRepository) Count(ctx context.Context, filter *model.DemandeFilter) (int, error) {
	return r.rows.count(demandeMatches(filter)), nil
}

func (r *demandeRepository) Statistics(ctx context.Context, institutionID uuid.UUID) (*model.Statistics, error) {
	items := r.rows.scan(func(d *model.Demande) bool { return d.InstitutionID == institutionID })

	stats := &model.Statistics{TotalRequests: len(items), LastUpdated: time.Now().UTC()}
	var hours float64
	for _, d := range items {
		if d.Status != model.DemandeStatusCompleted || d.ResolvedAt == nil {
			continue
		}
		stats.CompletedRequests++
		hours += d.ResolvedAt.Sub(d.CreatedAt).Hours()
	}
	if stats.CompletedRequests > 0 {
		stats.AverageProcessingTime = hours / float64(stats.CompletedRequests)
	}
	return stats, nil
}
