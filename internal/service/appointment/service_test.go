package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/suite"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
	"github.com/jwalitptl/citizen-registry/internal/repository/memory"
	"github.com/jwalitptl/citizen-registry/internal/schema"
	"github.com/jwalitptl/citizen-registry/internal/service/reference"
	apperrors "github.com/jwalitptl/citizen-registry/pkg/errors"
	"github.com/jwalitptl/citizen-registry/pkg/event"
)

type AppointmentServiceSuite struct {
	suite.Suite
	ctx          context.Context
	appointments repository.AppointmentRepository
	outbox       repository.OutboxRepository
	citizen      *model.Citizen
	institution  *model.Institution
	staff        *model.Staff
	svc          *Service
}

func (s *AppointmentServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.appointments = memory.NewAppointmentRepository()
	s.outbox = memory.NewOutboxRepository()
	citizens := memory.NewCitizenRepository()
	institutions := memory.NewInstitutionRepository()
	staff := memory.NewStaffRepository()

	s.citizen = &model.Citizen{FirstName: "Jean", LastName: "Dupont", Email: "jean@x.fr"}
	s.Require().NoError(citizens.Create(s.ctx, s.citizen))
	s.institution = &model.Institution{Name: "General Hospital", Type: model.InstitutionHospital}
	s.Require().NoError(institutions.Create(s.ctx, s.institution))
	s.staff = &model.Staff{FirstName: "Alice", LastName: "Martin", Email: "alice@h.fr",
		InstitutionID: s.institution.ID, Role: model.StaffRoleTechnician, Department: "Radiology"}
	s.Require().NoError(staff.Create(s.ctx, s.staff))

	refs := reference.NewChecker(citizens, institutions, staff, reference.DefaultConfig())
	s.svc = NewService(s.appointments, citizens, institutions, staff, refs,
		event.NewOutboxRecorder(s.outbox, zerolog.Nop()), zerolog.Nop())
}

func TestAppointmentServiceSuite(t *testing.T) {
	suite.Run(t, new(AppointmentServiceSuite))
}

func (s *AppointmentServiceSuite) doc() schema.Document {
	return schema.Document{
		"citizen":       s.citizen.ID.String(),
		"institution":   s.institution.ID.String(),
		"staff":         s.staff.ID.String(),
		"type":          "consultation",
		"scheduledTime": time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"location":      map[string]interface{}{"room": "12", "floor": "2"},
		"reminders": []interface{}{
			map[string]interface{}{
				"method":    "email",
				"timestamp": time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
			},
		},
	}
}

func (s *AppointmentServiceSuite) create() *model.AppointmentView {
	view, err := s.svc.Create(s.ctx, s.doc(), nil)
	s.Require().NoError(err)
	return view
}

func (s *AppointmentServiceSuite) requireField(err error, kind apperrors.Kind, field string) {
	s.Require().Error(err)
	appErr, ok := apperrors.As(err)
	s.Require().True(ok, "expected AppError, got %v", err)
	s.Equal(kind, appErr.Kind)
	s.Equal(field, appErr.Field)
}

func (s *AppointmentServiceSuite) TestCreateDefaults() {
	view := s.create()
	s.Equal(model.AppointmentStatusPending, view.Status)
	s.Equal(model.DefaultAppointmentDuration, view.Duration)
	s.Require().Len(view.Reminders, 1)
	s.Equal(model.ReminderEmail, view.Reminders[0].Method)
	s.Require().NotNil(view.CitizenDetails)
	s.Equal("Jean", view.CitizenDetails.FirstName)
	s.Require().NotNil(view.StaffDetails)
	s.Equal("Radiology", view.StaffDetails.Department)
}

func (s *AppointmentServiceSuite) TestCreateInThePast() {
	doc := s.doc()
	doc["scheduledTime"] = time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	_, err := s.svc.Create(s.ctx, doc, nil)
	s.requireField(err, apperrors.KindValidation, "scheduledTime")
}

func (s *AppointmentServiceSuite) TestCreateDurationBounds() {
	for _, d := range []interface{}{float64(14), float64(361)} {
		doc := s.doc()
		doc["duration"] = d
		_, err := s.svc.Create(s.ctx, doc, nil)
		s.requireField(err, apperrors.KindValidation, "duration")
	}
}

func (s *AppointmentServiceSuite) TestCreateReferences() {
	doc := s.doc()
	doc["staff"] = uuid.New().String()
	_, err := s.svc.Create(s.ctx, doc, nil)
	s.requireField(err, apperrors.KindValidation, "staff")

	doc = s.doc()
	doc["citizen"] = uuid.New().String()
	_, err = s.svc.Create(s.ctx, doc, nil)
	s.requireField(err, apperrors.KindValidation, "citizen")

	doc = s.doc()
	doc["citizen"] = "not-an-id"
	_, err = s.svc.Create(s.ctx, doc, nil)
	s.requireField(err, apperrors.KindValidation, "citizen")
}

func (s *AppointmentServiceSuite) TestCitizenBooksOnlyForSelf() {
	other := &model.Identity{Subject: uuid.New(), Role: model.RoleCitizen}
	_, err := s.svc.Create(s.ctx, s.doc(), other)
	s.Equal(apperrors.KindForbidden, apperrors.KindOf(err))

	self := &model.Identity{Subject: s.citizen.ID, Role: model.RoleCitizen}
	_, err = s.svc.Create(s.ctx, s.doc(), self)
	s.NoError(err)
}

func (s *AppointmentServiceSuite) TestStateMachine() {
	view := s.create()

	_, err := s.svc.Transition(s.ctx, view.ID, model.AppointmentStatusCompleted)
	s.requireField(err, apperrors.KindInvalidTransition, "status")

	confirmed, err := s.svc.Transition(s.ctx, view.ID, model.AppointmentStatusConfirmed)
	s.Require().NoError(err)
	s.Equal(model.AppointmentStatusConfirmed, confirmed.Status)

	completed, err := s.svc.Transition(s.ctx, view.ID, model.AppointmentStatusCompleted)
	s.Require().NoError(err)
	s.Equal(model.AppointmentStatusCompleted, completed.Status)

	_, err = s.svc.Transition(s.ctx, view.ID, model.AppointmentStatusCancelled)
	s.Equal(apperrors.KindInvalidTransition, apperrors.KindOf(err))
}

func (s *AppointmentServiceSuite) TestTerminalRejectsUpdates() {
	view := s.create()
	_, err := s.svc.Transition(s.ctx, view.ID, model.AppointmentStatusCancelled)
	s.Require().NoError(err)

	_, err = s.svc.Update(s.ctx, view.ID, schema.Document{"notes": "reopen"})
	s.Equal(apperrors.KindInvalidTransition, apperrors.KindOf(err))
}

func (s *AppointmentServiceSuite) TestUpdateStatusFollowsMachine() {
	view := s.create()

	_, err := s.svc.Update(s.ctx, view.ID, schema.Document{"status": "completed"})
	s.Equal(apperrors.KindInvalidTransition, apperrors.KindOf(err))

	_, err = s.svc.Update(s.ctx, view.ID, schema.Document{"status": "archived"})
	s.Equal(apperrors.KindValidation, apperrors.KindOf(err))

	updated, err := s.svc.Update(s.ctx, view.ID, schema.Document{"status": "confirmed", "notes": "bring documents"})
	s.Require().NoError(err)
	s.Equal(model.AppointmentStatusConfirmed, updated.Status)
	s.Equal("bring documents", updated.Notes)

	events, err := s.outbox.GetPending(s.ctx, 10)
	s.Require().NoError(err)
	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
	}
	s.Contains(types, "appointment.status_changed")
}

func (s *AppointmentServiceSuite) TestUpdateForbiddenField() {
	view := s.create()

	_, err := s.svc.Update(s.ctx, view.ID, schema.Document{
		"notes":   "changed",
		"citizen": uuid.New().String(),
	})
	s.requireField(err, apperrors.KindForbiddenField, "citizen")

	got, err := s.svc.Get(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Empty(got.Notes)
	s.Equal(s.citizen.ID, got.CitizenID)
}

func (s *AppointmentServiceSuite) TestListNewestScheduledFirst() {
	first := s.create()
	doc := s.doc()
	doc["scheduledTime"] = time.Now().Add(240 * time.Hour).UTC().Format(time.RFC3339)
	later, err := s.svc.Create(s.ctx, doc, nil)
	s.Require().NoError(err)

	views, err := s.svc.List(s.ctx, &model.AppointmentFilter{StaffID: &s.staff.ID})
	s.Require().NoError(err)
	s.Require().Len(views, 2)
	s.Equal(later.ID, views[0].ID)
	s.Equal(first.ID, views[1].ID)
}

func (s *AppointmentServiceSuite) TestDelete() {
	view := s.create()
	s.Require().NoError(s.svc.Delete(s.ctx, view.ID))

	_, err := s.svc.Get(s.ctx, view.ID)
	s.Equal(apperrors.KindNotFound, apperrors.KindOf(err))
	s.Equal(apperrors.KindNotFound, apperrors.KindOf(s.svc.Delete(s.ctx, view.ID)))
}
