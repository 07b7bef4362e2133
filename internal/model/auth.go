package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin       Role = "admin"
	RoleStaff       Role = "staff"
	RoleInstitution Role = "institution"
	RoleCitizen     Role = "citizen"
)

type Permission string

const (
	PermReadCitizenData    Permission = "read_citizen_data"
	PermWriteRequests      Permission = "write_requests"
	PermManageAppointments Permission = "manage_appointments"
	PermEmergencyAccess    Permission = "emergency_access"
)

// Identity is the authenticated caller attached to a request.
type Identity struct {
	Subject       uuid.UUID              `json:"sub"`
	Role          Role                   `json:"role"`
	Permissions   []Permission           `json:"permissions,omitempty"`
	InstitutionID *uuid.UUID             `json:"institution,omitempty"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
}

// Has reports whether the identity carries permission p.
func (i *Identity) Has(p Permission) bool {
	if i == nil {
		return false
	}
	for _, granted := range i.Permissions {
		if granted == p {
			return true
		}
	}
	return false
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type APIKeyLoginRequest struct {
	APIKey string `json:"apiKey" binding:"required,min=16"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type TokenPair struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// RefreshSession is what a refresh token resolves to.
type RefreshSession struct {
	Identity  Identity  `json:"identity"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}
