package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/pkg/validator"
)

type StaffRole string

const (
	StaffRoleAdmin        StaffRole = "admin"
	StaffRoleManager      StaffRole = "manager"
	StaffRoleReceptionist StaffRole = "receptionist"
	StaffRoleTechnician   StaffRole = "technician"
	StaffRoleOther        StaffRole = "other"
)

var StaffRoles = validator.NewSet(
	string(StaffRoleAdmin),
	string(StaffRoleManager),
	string(StaffRoleReceptionist),
	string(StaffRoleTechnician),
	string(StaffRoleOther),
)

type AvailabilityStatus string

const (
	AvailabilityAvailable AvailabilityStatus = "available"
	AvailabilityBusy      AvailabilityStatus = "busy"
	AvailabilityOnBreak   AvailabilityStatus = "on_break"
	AvailabilityOffDuty   AvailabilityStatus = "off_duty"
)

var AvailabilityStatuses = validator.NewSet(
	string(AvailabilityAvailable),
	string(AvailabilityBusy),
	string(AvailabilityOnBreak),
	string(AvailabilityOffDuty),
)

var Weekdays = validator.NewSet(
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
)

// Schedule times are HH:MM in the institution's local time.
type Schedule struct {
	Start string   `json:"start"`
	End   string   `json:"end"`
	Days  []string `json:"days"`
}

func (s Schedule) Value() (driver.Value, error) { return jsonValue(s) }
func (s *Schedule) Scan(src interface{}) error  { return jsonScan(src, s) }

type Availability struct {
	Status        AvailabilityStatus `json:"status"`
	NextAvailable *time.Time         `json:"nextAvailable,omitempty"`
}

func (a Availability) Value() (driver.Value, error) { return jsonValue(a) }
func (a *Availability) Scan(src interface{}) error  { return jsonScan(src, a) }

type StaffPermissions struct {
	ReadCitizenData    bool `json:"readCitizenData"`
	WriteRequests      bool `json:"writeRequests"`
	ManageAppointments bool `json:"manageAppointments"`
	EmergencyAccess    bool `json:"emergencyAccess"`
}

func (p StaffPermissions) Value() (driver.Value, error) { return jsonValue(p) }
func (p *StaffPermissions) Scan(src interface{}) error  { return jsonScan(src, p) }

// Grants lists the token permissions carried by the flags.
func (p StaffPermissions) Grants() []Permission {
	var grants []Permission
	if p.ReadCitizenData {
		grants = append(grants, PermReadCitizenData)
	}
	if p.WriteRequests {
		grants = append(grants, PermWriteRequests)
	}
	if p.ManageAppointments {
		grants = append(grants, PermManageAppointments)
	}
	if p.EmergencyAccess {
		grants = append(grants, PermEmergencyAccess)
	}
	return grants
}

type Credentials struct {
	LastLogin      *time.Time `json:"lastLogin,omitempty" db:"last_login"`
	FailedAttempts int        `json:"failedAttempts" db:"failed_attempts"`
	LockedUntil    *time.Time `json:"lockedUntil,omitempty" db:"locked_until"`
}

type Staff struct {
	Base
	FirstName     string           `json:"firstName" db:"first_name"`
	LastName      string           `json:"lastName" db:"last_name"`
	Email         string           `json:"email" db:"email"`
	PhoneNumber   string           `json:"phoneNumber" db:"phone_number"`
	InstitutionID uuid.UUID        `json:"institution" db:"institution_id"`
	Role          StaffRole        `json:"role" db:"role"`
	Department    string           `json:"department" db:"department"`
	PasswordHash  string           `json:"-" db:"password_hash"`
	Schedule      *Schedule        `json:"schedule,omitempty" db:"schedule"`
	Availability  Availability     `json:"availability" db:"availability"`
	Permissions   StaffPermissions `json:"permissions" db:"permissions"`
	Credentials   `json:"credentials"`
}

// Locked reports whether login is refused at now.
func (s *Staff) Locked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

func (s *Staff) Summary() *StaffSummary {
	if s == nil {
		return nil
	}
	return &StaffSummary{
		ID:         s.ID,
		FirstName:  s.FirstName,
		LastName:   s.LastName,
		Email:      s.Email,
		Role:       s.Role,
		Department: s.Department,
	}
}

// StaffView is the expanded staff representation.
type StaffView struct {
	*Staff
	Institution *InstitutionSummary `json:"institutionDetails,omitempty"`
}

type StaffFilter struct {
	Role          string
	InstitutionID *uuid.UUID
}
