package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/citizen-registry/internal/repository"
)

type citizenRepository struct {
	BaseRepository
}

type staffRepository struct {
	BaseRepository
}

type institutionRepository struct {
	BaseRepository
}

type appointmentRepository struct {
	BaseRepository
}

type demandeRepository struct {
	BaseRepository
}

type outboxRepository struct {
	BaseRepository
}

func NewCitizenRepository(db *sqlx.DB) repository.CitizenRepository {
	return &citizenRepository{NewBaseRepository(db)}
}

func NewStaffRepository(db *sqlx.DB) repository.StaffRepository {
	return &staffRepository{NewBaseRepository(db)}
}

func NewInstitutionRepository(db *sqlx.DB) repository.InstitutionRepository {
	return &institutionRepository{NewBaseRepository(db)}
}

func NewAppointmentRepository(db *sqlx.DB) repository.AppointmentRepository {
	return &appointmentRepository{NewBaseRepository(db)}
}

func NewDemandeRepository(db *sqlx.DB) repository.DemandeRepository {
	return &demandeRepository{NewBaseRepository(db)}
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{NewBaseRepository(db)}
}
