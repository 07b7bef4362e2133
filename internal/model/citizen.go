package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

type EmergencyProfile struct {
	BloodType         string             `json:"bloodType"`
	Allergies         []string           `json:"allergies"`
	EmergencyContacts []EmergencyContact `json:"emergencyContacts"`
}

func (p EmergencyProfile) Value() (driver.Value, error) { return jsonValue(p) }
func (p *EmergencyProfile) Scan(src interface{}) error  { return jsonScan(src, p) }

// BiometricData is only populated on the emergency read path.
type BiometricData struct {
	FacialVector []float64 `json:"facialVector,omitempty"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

type Citizen struct {
	Base
	FirstName        string           `json:"firstName" db:"first_name"`
	LastName         string           `json:"lastName" db:"last_name"`
	Email            string           `json:"email" db:"email"`
	BirthDate        time.Time        `json:"birthDate" db:"birth_date"`
	PhoneNumber      string           `json:"phoneNumber" db:"phone_number"`
	Address          string           `json:"address" db:"address"`
	PasswordHash     string           `json:"-" db:"password_hash"`
	EmergencyProfile EmergencyProfile `json:"emergencyProfile" db:"emergency_profile"`
	// BiometricCipher holds the AES-GCM sealed facial vector.
	BiometricCipher    []byte         `json:"-" db:"biometric_data"`
	BiometricUpdatedAt *time.Time     `json:"biometricEnrolledAt,omitempty" db:"biometric_updated_at"`
	Biometric          *BiometricData `json:"biometricData,omitempty" db:"-"`
}

// Summary returns the embedded representation.
func (c *Citizen) Summary() *CitizenSummary {
	if c == nil {
		return nil
	}
	return &CitizenSummary{
		ID:          c.ID,
		FirstName:   c.FirstName,
		LastName:    c.LastName,
		Email:       c.Email,
		PhoneNumber: c.PhoneNumber,
	}
}

// CitizenView is the expanded citizen representation.
type CitizenView struct {
	*Citizen
	Appointments []uuid.UUID `json:"appointments"`
	Requests     []uuid.UUID `json:"requests"`
}

// EmergencyView is returned to responders with emergency access.
type EmergencyView struct {
	Citizen          CitizenSummary   `json:"citizen"`
	BirthDate        time.Time        `json:"birthDate"`
	EmergencyProfile EmergencyProfile `json:"emergencyProfile"`
	Biometric        *BiometricData   `json:"biometricData,omitempty"`
}

type CitizenFilter struct {
	BloodType string
	Allergy   string
}
