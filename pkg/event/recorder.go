package event

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
)

const (
	ActionCreated         = "created"
	ActionUpdated         = "updated"
	ActionDeleted         = "deleted"
	ActionStatusChanged   = "status_changed"
	ActionEmergencyAccess = "emergency_accessed"
)

// Type builds the "<aggregate>.<action>" event name.
func Type(aggregate, action string) string {
	return aggregate + "." + action
}

// Recorder writes domain events to the outbox.
type Recorder interface {
	Record(ctx context.Context, aggregate, action string, aggregateID uuid.UUID, payload interface{})
}

type outboxRecorder struct {
	repo   repository.OutboxRepository
	logger zerolog.Logger
}

// NewOutboxRecorder returns a Recorder whose failures are logged, not returned:
// the outbox is eventually consistent with the entity tables.
func NewOutboxRecorder(repo repository.OutboxRepository, logger zerolog.Logger) Recorder {
	return &outboxRecorder{repo: repo, logger: logger}
}

func (r *outboxRecorder) Record(ctx context.Context, aggregate, action string, aggregateID uuid.UUID, payload interface{}) {
	eventType := Type(aggregate, action)

	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		return
	}

	evt := &model.OutboxEvent{
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   aggregateID,
		Payload:       data,
	}
	if err := r.repo.Create(ctx, evt); err != nil {
		r.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("aggregate_id", aggregateID.String()).
			Msg("failed to record event")
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, string, string, uuid.UUID, interface{}) {}

