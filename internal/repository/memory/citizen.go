package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
)

type citizenRepository struct {
	rows *table[model.Citizen]
}

func NewCitizenRepository() repository.CitizenRepository {
	return &citizenRepository{rows: newTable(cloneCitizen)}
}

func cloneCitizen(src *model.Citizen) *model.Citizen {
	c := *src
	c.EmergencyProfile.Allergies = append([]string(nil), src.EmergencyProfile.Allergies...)
	c.EmergencyProfile.EmergencyContacts = append([]model.EmergencyContact(nil), src.EmergencyProfile.EmergencyContacts...)
	c.BiometricCipher = append([]byte(nil), src.BiometricCipher...)
	c.BiometricUpdatedAt = cloneTime(src.BiometricUpdatedAt)
	c.Biometric = nil
	return &c
}

func sameEmail(email string) func(*model.Citizen) bool {
	return func(existing *model.Citizen) bool {
		return strings.EqualFold(existing.Email, email)
	}
}

func (r *citizenRepository) Create(ctx context.Context, citizen *model.Citizen) error {
	citizen.Touch(time.Now().UTC())
	return r.rows.insert(citizen.ID, citizen, sameEmail(citizen.Email))
}

func (r *citizenRepository) Get(ctx context.Context, id uuid.UUID) (*model.Citizen, error) {
	return r.rows.get(id)
}

func (r *citizenRepository) GetByEmail(ctx context.Context, email string) (*model.Citizen, error) {
	return r.rows.find(sameEmail(email))
}

func (r *citizenRepository) Update(ctx context.Context, citizen *model.Citizen) error {
	citizen.UpdatedAt = time.Now().UTC()
	return r.rows.replace(citizen.ID, citizen, sameEmail(citizen.Email))
}

func (r *citizenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.rows.remove(id)
}

func (r *citizenRepository) List(ctx context.Context, filter *model.CitizenFilter) ([]*model.Citizen, error) {
	if filter == nil {
		filter = &model.CitizenFilter{}
	}
	items := r.rows.scan(func(c *model.Citizen) bool {
		if filter.BloodType != "" && c.EmergencyProfile.BloodType != filter.BloodType {
			return false
		}
		if filter.Allergy != "" && !containsFold(c.EmergencyProfile.Allergies, filter.Allergy) {
			return false
		}
		return true
	})
	newestFirst(items, func(c *model.Citizen) (time.Time, uuid.UUID) { return c.CreatedAt, c.ID })
	return items, nil
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
