package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
)

const citizenColumns = `id, first_name, last_name, email, birth_date, phone_number, address,
	password_hash, emergency_profile, biometric_data, biometric_updated_at, created_at, updated_at`

func (r *citizenRepository) Create(ctx context.Context, citizen *model.Citizen) error {
	citizen.Touch(time.Now().UTC())

	query := `
		INSERT INTO citizens (` + citizenColumns + `)
		VALUES (:id, :first_name, :last_name, :email, :birth_date, :phone_number, :address,
			:password_hash, :emergency_profile, :biometric_data, :biometric_updated_at, :created_at, :updated_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, citizen)
	return translate("create citizen", err)
}

func (r *citizenRepository) Get(ctx context.Context, id uuid.UUID) (*model.Citizen, error) {
	var citizen model.Citizen
	query := `SELECT ` + citizenColumns + ` FROM citizens WHERE id = $1`
	if err := r.db.GetContext(ctx, &citizen, query, id); err != nil {
		return nil, translate("get citizen", err)
	}
	return &citizen, nil
}

func (r *citizenRepository) GetByEmail(ctx context.Context, email string) (*model.Citizen, error) {
	var citizen model.Citizen
	query := `SELECT ` + citizenColumns + ` FROM citizens WHERE lower(email) = lower($1)`
	if err := r.db.GetContext(ctx, &citizen, query, email); err != nil {
		return nil, translate("get citizen by email", err)
	}
	return &citizen, nil
}

func (r *citizenRepository) Update(ctx context.Context, citizen *model.Citizen) error {
	citizen.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE citizens SET
			first_name = :first_name,
			last_name = :last_name,
			email = :email,
			birth_date = :birth_date,
			phone_number = :phone_number,
			address = :address,
			password_hash = :password_hash,
			emergency_profile = :emergency_profile,
			biometric_data = :biometric_data,
			biometric_updated_at = :biometric_updated_at,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, citizen)
	if err != nil {
		return translate("update citizen", err)
	}
	return affected("update citizen", result)
}

// Delete removes the citizen. Owned appointments and requests go with it.
func (r *citizenRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM citizens WHERE id = $1`, id)
	if err != nil {
		return translate("delete citizen", err)
	}
	return affected("delete citizen", result)
}

func (r *citizenRepository) List(ctx context.Context, filter *model.CitizenFilter) ([]*model.Citizen, error) {
	var where whereBuilder
	if filter != nil {
		if filter.BloodType != "" {
			where.add("emergency_profile->>'bloodType' = $%d", filter.BloodType)
		}
		if filter.Allergy != "" {
			where.add(`EXISTS (
				SELECT 1 FROM jsonb_array_elements_text(emergency_profile->'allergies') AS a
				WHERE lower(a) = lower($%d))`, filter.Allergy)
		}
	}

	query := `SELECT ` + citizenColumns + ` FROM citizens` + where.sql() + ` ORDER BY created_at DESC, id::text ASC`

	citizens := []*model.Citizen{}
	if err := r.db.SelectContext(ctx, &citizens, query, where.args...); err != nil {
		return nil, translate("list citizens", err)
	}
	return citizens, nil
}
