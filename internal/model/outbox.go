package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// OutboxEvent is a domain event waiting to be relayed to the broker.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	EventType     string          `db:"event_type" json:"eventType"`
	AggregateType string          `db:"aggregate_type" json:"aggregateType"`
	AggregateID   uuid.UUID       `db:"aggregate_id" json:"aggregateId"`
	Payload       json.RawMessage `db:"payload" json:"payload"`
	Status        OutboxStatus    `db:"status" json:"status"`
	Attempts      int             `db:"attempts" json:"attempts"`
	ErrorMessage  *string         `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"createdAt"`
	ProcessedAt   *time.Time      `db:"processed_at" json:"processedAt,omitempty"`
}
