package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/pkg/validator"
)

type DemandeStatus string

const (
	DemandeStatusPending    DemandeStatus = "pending"
	DemandeStatusProcessing DemandeStatus = "processing"
	DemandeStatusCompleted  DemandeStatus = "completed"
	DemandeStatusRejected   DemandeStatus = "rejected"
)

var DemandeStatuses = validator.NewSet(
	string(DemandeStatusPending),
	string(DemandeStatusProcessing),
	string(DemandeStatusCompleted),
	string(DemandeStatusRejected),
)

var demandeTransitions = map[DemandeStatus][]DemandeStatus{
	DemandeStatusPending:    {DemandeStatusProcessing, DemandeStatusRejected},
	DemandeStatusProcessing: {DemandeStatusCompleted, DemandeStatusRejected},
}

func (s DemandeStatus) CanTransition(to DemandeStatus) bool {
	for _, next := range demandeTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s DemandeStatus) Terminal() bool {
	return len(demandeTransitions[s]) == 0
}

// Demande is an administrative request filed by a citizen.
type Demande struct {
	Base
	CitizenID     uuid.UUID     `json:"citizenId" db:"citizen_id"`
	InstitutionID uuid.UUID     `json:"institutionId" db:"institution_id"`
	ServiceID     uuid.UUID     `json:"serviceId" db:"service_id"`
	AdminID       *uuid.UUID    `json:"adminId,omitempty" db:"admin_id"`
	AdminName     string        `json:"adminName,omitempty" db:"admin_name"`
	AdminEmail    string        `json:"adminEmail,omitempty" db:"admin_email"`
	Type          string        `json:"type" db:"type"`
	Title         string        `json:"title" db:"title"`
	Description   string        `json:"description,omitempty" db:"description"`
	Status        DemandeStatus `json:"status" db:"status"`
	ResolvedAt    *time.Time    `json:"resolvedAt,omitempty" db:"resolved_at"`
}

// DemandeView is the expanded demande representation.
type DemandeView struct {
	*Demande
	CitizenDetails     *CitizenSummary     `json:"citizenDetails,omitempty"`
	InstitutionDetails *InstitutionSummary `json:"institutionDetails,omitempty"`
	ServiceName        string              `json:"serviceName,omitempty"`
}

type DemandeFilter struct {
	Status        string
	CitizenID     *uuid.UUID
	InstitutionID *uuid.UUID
}
