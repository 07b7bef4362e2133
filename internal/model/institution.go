package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/pkg/validator"
)

type InstitutionType string

const (
	InstitutionHospital       InstitutionType = "hospital"
	InstitutionCityHall       InstitutionType = "city_hall"
	InstitutionAdministration InstitutionType = "administration"
)

var InstitutionTypes = validator.NewSet(
	string(InstitutionHospital),
	string(InstitutionCityHall),
	string(InstitutionAdministration),
)

type Contact struct {
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Website string `json:"website,omitempty"`
}

func (c Contact) Value() (driver.Value, error) { return jsonValue(c) }
func (c *Contact) Scan(src interface{}) error  { return jsonScan(src, c) }

// Service is an entry of an institution's catalog. Demandes reference it by ID.
type Service struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	ProcessingTime float64   `json:"processingTime"`
	AvailableSlots int       `json:"availableSlots"`
}

type ServiceList []Service

func (l ServiceList) Value() (driver.Value, error) { return jsonValue(l) }
func (l *ServiceList) Scan(src interface{}) error  { return jsonScan(src, l) }

// Find returns the service with the given id.
func (l ServiceList) Find(id uuid.UUID) (Service, bool) {
	for _, s := range l {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

type InstitutionEmergencyAccess struct {
	Enabled           bool   `json:"enabled"`
	FacialRecognition bool   `json:"facialRecognition"`
	EmergencyContacts IDList `json:"emergencyContacts"`
}

func (e InstitutionEmergencyAccess) Value() (driver.Value, error) { return jsonValue(e) }
func (e *InstitutionEmergencyAccess) Scan(src interface{}) error  { return jsonScan(src, e) }

type Statistics struct {
	TotalRequests         int       `json:"totalRequests"`
	CompletedRequests     int       `json:"completedRequests"`
	AverageProcessingTime float64   `json:"averageProcessingTime"`
	SatisfactionScore     float64   `json:"satisfactionScore"`
	LastUpdated           time.Time `json:"lastUpdated"`
}

func (s Statistics) Value() (driver.Value, error) { return jsonValue(s) }
func (s *Statistics) Scan(src interface{}) error  { return jsonScan(src, s) }

type Institution struct {
	Base
	Name            string                     `json:"name" db:"name"`
	Type            InstitutionType            `json:"type" db:"type"`
	Address         string                     `json:"address" db:"address"`
	Contact         Contact                    `json:"contact" db:"contact"`
	Services        ServiceList                `json:"services" db:"services"`
	EmergencyAccess InstitutionEmergencyAccess `json:"emergencyAccess" db:"emergency_access"`
	Statistics      Statistics                 `json:"statistics" db:"statistics"`
}

func (i *Institution) Summary() *InstitutionSummary {
	if i == nil {
		return nil
	}
	return &InstitutionSummary{
		ID:      i.ID,
		Name:    i.Name,
		Type:    i.Type,
		Address: i.Address,
	}
}

// InstitutionView is the expanded institution representation.
type InstitutionView struct {
	*Institution
	StaffCount       int `json:"staffCount"`
	AppointmentCount int `json:"appointmentCount"`
	RequestCount     int `json:"requestCount"`
}

type InstitutionFilter struct {
	Type string
}

type APIPermission string

const (
	APIReadCitizenData    APIPermission = "read_citizen_data"
	APIWriteRequests      APIPermission = "write_requests"
	APIManageAppointments APIPermission = "manage_appointments"
	APIEmergencyAccess    APIPermission = "emergency_access"
)

var APIPermissions = validator.NewSet(
	string(APIReadCitizenData),
	string(APIWriteRequests),
	string(APIManageAppointments),
	string(APIEmergencyAccess),
)

// APIKey grants an institution machine access. Only the digest is stored.
type APIKey struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	InstitutionID uuid.UUID  `json:"institution" db:"institution_id"`
	Prefix        string     `json:"prefix" db:"prefix"`
	Digest        string     `json:"-" db:"digest"`
	Permissions   StringList `json:"permissions" db:"permissions"`
	Active        bool       `json:"active" db:"active"`
	LastUsed      *time.Time `json:"lastUsed,omitempty" db:"last_used"`
	CreatedAt     time.Time  `json:"createdAt" db:"created_at"`
}

// IssuedAPIKey is returned once, at creation.
type IssuedAPIKey struct {
	APIKey
	Key string `json:"key"`
}
