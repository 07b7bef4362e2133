package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
)

type outboxRepository struct {
	rows *table[model.OutboxEvent]
}

func NewOutboxRepository() repository.OutboxRepository {
	return &outboxRepository{rows: newTable(cloneEvent)}
}

func cloneEvent(src *model.OutboxEvent) *model.OutboxEvent {
	e := *src
	e.Payload = append([]byte(nil), src.Payload...)
	return &e
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now().UTC()
	event.Status = model.OutboxStatusPending
	return r.rows.insert(event.ID, event, nil)
}

func (r *outboxRepository) GetPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	items := r.rows.scan(func(e *model.OutboxEvent) bool { return e.Status == model.OutboxStatusPending })
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	event, err := r.rows.get(id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	event.Status = model.OutboxStatusProcessed
	event.ProcessedAt = &now
	event.ErrorMessage = nil
	return r.rows.replace(id, event, nil)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, maxAttempts int) error {
	event, err := r.rows.get(id)
	if err != nil {
		return err
	}
	event.Attempts++
	event.ErrorMessage = &reason
	if event.Attempts >= maxAttempts {
		event.Status = model.OutboxStatusFailed
	}
	return r.rows.replace(id, event, nil)
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	for _, e := range r.rows.scan(func(e *model.OutboxEvent) bool {
		return e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before)
	}) {
		if err := r.rows.remove(e.ID); err == nil {
			n++
		}
	}
	return n, nil
}

var _ repository.OutboxRepository = (*outboxRepository)(nil)
