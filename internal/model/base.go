package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Touch stamps the record for a write at now. A zero ID is assigned on first write.
func (b *Base) Touch(now time.Time) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// StringList is a []string stored as a JSON array column.
type StringList []string

func (l StringList) Value() (driver.Value, error) { return jsonValue(l) }
func (l *StringList) Scan(src interface{}) error  { return jsonScan(src, l) }

// IDList is a []uuid.UUID stored as a JSON array column.
type IDList []uuid.UUID

func (l IDList) Value() (driver.Value, error) { return jsonValue(l) }
func (l *IDList) Scan(src interface{}) error  { return jsonScan(src, l) }

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}
	// lib/pq sends []byte as bytea; jsonb columns need text.
	return string(b), nil
}

func jsonScan(src interface{}, dst interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

// CitizenSummary is the embedded form of a citizen inside other resources.
type CitizenSummary struct {
	ID          uuid.UUID `json:"id"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	Email       string    `json:"email"`
	PhoneNumber string    `json:"phoneNumber"`
}

// InstitutionSummary is the embedded form of an institution.
type InstitutionSummary struct {
	ID      uuid.UUID       `json:"id"`
	Name    string          `json:"name"`
	Type    InstitutionType `json:"type"`
	Address string          `json:"address"`
}

// StaffSummary is the embedded form of a staff member.
type StaffSummary struct {
	ID         uuid.UUID `json:"id"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Email      string    `json:"email"`
	Role       StaffRole `json:"role"`
	Department string    `json:"department"`
}
