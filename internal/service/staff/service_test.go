package staff

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
	"github.com/jwalitptl/citizen-registry/internal/repository/memory"
	"github.com/jwalitptl/citizen-registry/internal/schema"
	"github.com/jwalitptl/citizen-registry/internal/service/reference"
	apperrors "github.com/jwalitptl/citizen-registry/pkg/errors"
	"github.com/jwalitptl/citizen-registry/pkg/event"
	"github.com/jwalitptl/citizen-registry/pkg/security"
)

type StaffServiceSuite struct {
	suite.Suite
	ctx          context.Context
	staff        repository.StaffRepository
	appointments repository.AppointmentRepository
	institution  *model.Institution
	svc          *Service
}

func (s *StaffServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.staff = memory.NewStaffRepository()
	s.appointments = memory.NewAppointmentRepository()
	institutions := memory.NewInstitutionRepository()

	s.institution = &model.Institution{Name: "General Hospital", Type: model.InstitutionHospital, Address: "10 Main Street"}
	s.Require().NoError(institutions.Create(s.ctx, s.institution))

	refs := reference.NewChecker(memory.NewCitizenRepository(), institutions, s.staff, reference.DefaultConfig())
	s.svc = NewService(s.staff, institutions, s.appointments,
		security.NewBcryptHasher(bcrypt.MinCost), refs, event.Nop{}, zerolog.Nop())
}

func TestStaffServiceSuite(t *testing.T) {
	suite.Run(t, new(StaffServiceSuite))
}

func (s *StaffServiceSuite) doc() schema.Document {
	return schema.Document{
		"firstName":   "Alice",
		"lastName":    "Martin",
		"email":       "alice@hospital.fr",
		"phoneNumber": "+33600000001",
		"institution": s.institution.ID.String(),
		"role":        "receptionist",
		"department":  "Front desk",
		"password":    "Sup3rSecret",
		"schedule": map[string]interface{}{
			"start": "08:00",
			"end":   "17:00",
			"days":  []interface{}{"monday", "tuesday"},
		},
		"permissions": map[string]interface{}{"manageAppointments": true},
	}
}

func (s *StaffServiceSuite) TestCreate() {
	view, err := s.svc.Create(s.ctx, s.doc())
	s.Require().NoError(err)
	s.NotEqual(uuid.Nil, view.ID)
	s.Equal(model.StaffRoleReceptionist, view.Role)
	s.Equal(model.AvailabilityAvailable, view.Availability.Status)
	s.True(view.Permissions.ManageAppointments)
	s.NotEmpty(view.PasswordHash)
	s.Require().NotNil(view.Institution)
	s.Equal("General Hospital", view.Institution.Name)
}

func (s *StaffServiceSuite) TestCreateScheduleOrder() {
	doc := s.doc()
	doc["schedule"] = map[string]interface{}{
		"start": "17:00",
		"end":   "08:00",
		"days":  []interface{}{"monday"},
	}
	_, err := s.svc.Create(s.ctx, doc)
	s.Require().Error(err)
	appErr, ok := apperrors.As(err)
	s.Require().True(ok)
	s.Equal(apperrors.KindValidation, appErr.Kind)
	s.Equal("schedule", appErr.Field)
}

func (s *StaffServiceSuite) TestCreateUnknownInstitution() {
	doc := s.doc()
	doc["institution"] = uuid.New().String()
	_, err := s.svc.Create(s.ctx, doc)
	s.Require().Error(err)
	appErr, ok := apperrors.As(err)
	s.Require().True(ok)
	s.Equal("institution", appErr.Field)
}

func (s *StaffServiceSuite) TestUpdateScheduleOrder() {
	view, err := s.svc.Create(s.ctx, s.doc())
	s.Require().NoError(err)

	_, err = s.svc.Update(s.ctx, view.ID, schema.Document{
		"schedule": map[string]interface{}{
			"start": "12:00",
			"end":   "12:00",
			"days":  []interface{}{"friday"},
		},
	})
	s.Equal(apperrors.KindValidation, apperrors.KindOf(err))

	got, err := s.svc.Get(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Equal("08:00", got.Schedule.Start)
}

func (s *StaffServiceSuite) TestUpdateKeepsCredentials() {
	view, err := s.svc.Create(s.ctx, s.doc())
	s.Require().NoError(err)

	updated, err := s.svc.Update(s.ctx, view.ID, schema.Document{"department": "Radiology"})
	s.Require().NoError(err)
	s.Equal("Radiology", updated.Department)
	s.Equal(view.PasswordHash, updated.PasswordHash)
}

func (s *StaffServiceSuite) TestDeleteWithDependents() {
	view, err := s.svc.Create(s.ctx, s.doc())
	s.Require().NoError(err)

	appt := &model.Appointment{CitizenID: uuid.New(), InstitutionID: s.institution.ID, StaffID: view.ID,
		Type: model.AppointmentConsultation, Status: model.AppointmentStatusPending,
		ScheduledTime: time.Now().Add(time.Hour), Duration: 30}
	s.Require().NoError(s.appointments.Create(s.ctx, appt))

	err = s.svc.Delete(s.ctx, view.ID)
	s.Equal(apperrors.KindHasDependents, apperrors.KindOf(err))

	s.Require().NoError(s.appointments.Delete(s.ctx, appt.ID))
	s.Require().NoError(s.svc.Delete(s.ctx, view.ID))

	_, err = s.svc.Get(s.ctx, view.ID)
	s.Equal(apperrors.KindNotFound, apperrors.KindOf(err))
}

func (s *StaffServiceSuite) TestListByRole() {
	_, err := s.svc.Create(s.ctx, s.doc())
	s.Require().NoError(err)

	doc := s.doc()
	doc["email"] = "bob@hospital.fr"
	doc["role"] = "technician"
	_, err = s.svc.Create(s.ctx, doc)
	s.Require().NoError(err)

	techs, err := s.svc.List(s.ctx, &model.StaffFilter{Role: "technician"})
	s.Require().NoError(err)
	s.Require().Len(techs, 1)
	s.Equal("bob@hospital.fr", techs[0].Email)

	byInst, err := s.svc.List(s.ctx, &model.StaffFilter{InstitutionID: &s.institution.ID})
	s.Require().NoError(err)
	s.Len(byInst, 2)
}
