package demande

import (
	"context"
	"testing"

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

type DemandeServiceSuite struct {
	suite.Suite
	ctx          context.Context
	demandes     repository.DemandeRepository
	institutions repository.InstitutionRepository
	staffRepo    repository.StaffRepository
	citizen      *model.Citizen
	institution  *model.Institution
	admin        *model.Staff
	svc          *Service
}

func (s *DemandeServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.demandes = memory.NewDemandeRepository()
	s.institutions = memory.NewInstitutionRepository()
	s.staffRepo = memory.NewStaffRepository()
	citizens := memory.NewCitizenRepository()

	s.citizen = &model.Citizen{FirstName: "Jean", LastName: "Dupont", Email: "jean@x.fr"}
	s.Require().NoError(citizens.Create(s.ctx, s.citizen))
	s.institution = &model.Institution{
		Name: "Mairie", Type: model.InstitutionCityHall,
		Services: model.ServiceList{{ID: uuid.New(), Name: "Passport", Description: "Passport renewal"}},
	}
	s.Require().NoError(s.institutions.Create(s.ctx, s.institution))
	s.admin = &model.Staff{FirstName: "Claire", LastName: "Moreau", Email: "claire@mairie.fr",
		InstitutionID: s.institution.ID, Role: model.StaffRoleAdmin, Department: "Civil"}
	s.Require().NoError(s.staffRepo.Create(s.ctx, s.admin))

	refs := reference.NewChecker(citizens, s.institutions, s.staffRepo, reference.DefaultConfig())
	s.svc = NewService(s.demandes, citizens, s.institutions, s.staffRepo, refs, event.Nop{}, zerolog.Nop())
}

func TestDemandeServiceSuite(t *testing.T) {
	suite.Run(t, new(DemandeServiceSuite))
}

func (s *DemandeServiceSuite) doc() schema.Document {
	return schema.Document{
		"citizenId":     s.citizen.ID.String(),
		"institutionId": s.institution.ID.String(),
		"serviceId":     s.institution.Services[0].ID.String(),
		"type":          "passport",
		"title":         "Passport renewal",
		"description":   "My passport expires next month",
	}
}

func (s *DemandeServiceSuite) create() *model.DemandeView {
	view, err := s.svc.Create(s.ctx, s.doc(), nil)
	s.Require().NoError(err)
	return view
}

func (s *DemandeServiceSuite) requireField(err error, kind apperrors.Kind, field string) {
	s.Require().Error(err)
	appErr, ok := apperrors.As(err)
	s.Require().True(ok, "expected AppError, got %v", err)
	s.Equal(kind, appErr.Kind)
	s.Equal(field, appErr.Field)
}

func (s *DemandeServiceSuite) TestCreate() {
	view := s.create()
	s.Equal(model.DemandeStatusPending, view.Status)
	s.Equal("Passport", view.ServiceName)
	s.Require().NotNil(view.CitizenDetails)
	s.Equal("jean@x.fr", view.CitizenDetails.Email)
	s.Nil(view.AdminID)
}

func (s *DemandeServiceSuite) TestCreateAdminWithoutDetails() {
	doc := s.doc()
	doc["adminId"] = s.admin.ID.String()
	_, err := s.svc.Create(s.ctx, doc, nil)
	s.requireField(err, apperrors.KindValidation, "adminName")

	doc["adminName"] = "Claire Moreau"
	_, err = s.svc.Create(s.ctx, doc, nil)
	s.requireField(err, apperrors.KindValidation, "adminEmail")
}

func (s *DemandeServiceSuite) TestCreateUnknownService() {
	doc := s.doc()
	doc["serviceId"] = uuid.New().String()
	_, err := s.svc.Create(s.ctx, doc, nil)
	s.requireField(err, apperrors.KindValidation, "serviceId")
}

func (s *DemandeServiceSuite) TestCitizenFilesOnlyForSelf() {
	_, err := s.svc.Create(s.ctx, s.doc(), &model.Identity{Subject: uuid.New(), Role: model.RoleCitizen})
	s.Equal(apperrors.KindForbidden, apperrors.KindOf(err))
}

func (s *DemandeServiceSuite) TestLifecycle() {
	view := s.create()

	_, err := s.svc.Complete(s.ctx, view.ID)
	s.requireField(err, apperrors.KindInvalidTransition, "status")

	assigned, err := s.svc.Assign(s.ctx, view.ID, s.admin.ID)
	s.Require().NoError(err)
	s.Equal(model.DemandeStatusProcessing, assigned.Status)
	s.Require().NotNil(assigned.AdminID)
	s.Equal(s.admin.ID, *assigned.AdminID)
	s.Equal("Claire Moreau", assigned.AdminName)
	s.Equal("claire@mairie.fr", assigned.AdminEmail)

	_, err = s.svc.Assign(s.ctx, view.ID, s.admin.ID)
	s.Equal(apperrors.KindInvalidTransition, apperrors.KindOf(err))

	completed, err := s.svc.Complete(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(model.DemandeStatusCompleted, completed.Status)
	s.NotNil(completed.ResolvedAt)

	_, err = s.svc.Reject(s.ctx, view.ID)
	s.Equal(apperrors.KindInvalidTransition, apperrors.KindOf(err))

	_, err = s.svc.Update(s.ctx, view.ID, schema.Document{"title": "Changed"})
	s.Equal(apperrors.KindInvalidTransition, apperrors.KindOf(err))
}

func (s *DemandeServiceSuite) TestAssignForeignStaff() {
	view := s.create()
	outsider := &model.Staff{FirstName: "Paul", LastName: "Roux", Email: "paul@elsewhere.fr",
		InstitutionID: uuid.New(), Role: model.StaffRoleAdmin, Department: "Other"}
	s.Require().NoError(s.staffRepo.Create(s.ctx, outsider))

	_, err := s.svc.Assign(s.ctx, view.ID, outsider.ID)
	s.requireField(err, apperrors.KindValidation, "adminId")
}

func (s *DemandeServiceSuite) TestRejectFromPending() {
	view := s.create()
	rejected, err := s.svc.Reject(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(model.DemandeStatusRejected, rejected.Status)
	s.NotNil(rejected.ResolvedAt)
}

func (s *DemandeServiceSuite) TestUpdate() {
	view := s.create()

	updated, err := s.svc.Update(s.ctx, view.ID, schema.Document{"title": "Urgent renewal"})
	s.Require().NoError(err)
	s.Equal("Urgent renewal", updated.Title)

	_, err = s.svc.Update(s.ctx, view.ID, schema.Document{"title": "X", "resolvedAt": "2020-01-01"})
	s.requireField(err, apperrors.KindForbiddenField, "resolvedAt")

	_, err = s.svc.Update(s.ctx, view.ID, schema.Document{"status": "completed"})
	s.Equal(apperrors.KindInvalidTransition, apperrors.KindOf(err))

	_, err = s.svc.Update(s.ctx, view.ID, schema.Document{"adminId": s.admin.ID.String()})
	s.requireField(err, apperrors.KindValidation, "adminName")
}

func (s *DemandeServiceSuite) TestUpdateToProcessingRequiresAdmin() {
	view := s.create()

	_, err := s.svc.Update(s.ctx, view.ID, schema.Document{"status": "processing"})
	s.requireField(err, apperrors.KindValidation, "adminId")

	stored, err := s.demandes.Get(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(model.DemandeStatusPending, stored.Status)
	s.Nil(stored.AdminID)

	updated, err := s.svc.Update(s.ctx, view.ID, schema.Document{
		"status":     "processing",
		"adminId":    s.admin.ID.String(),
		"adminName":  "Claire Martin",
		"adminEmail": "claire@x.fr",
	})
	s.Require().NoError(err)
	s.Equal(model.DemandeStatusProcessing, updated.Status)
	s.Require().NotNil(updated.AdminID)
	s.Equal(s.admin.ID, *updated.AdminID)
}

func (s *DemandeServiceSuite) TestUpdateLosesRaceWithResolve() {
	view := s.create()
	current, err := s.demandes.Get(s.ctx, view.ID)
	s.Require().NoError(err)

	_, err = s.svc.Reject(s.ctx, view.ID)
	s.Require().NoError(err)

	current.Title = "Stale edit"
	err = s.demandes.Update(s.ctx, current, model.DemandeStatusPending)
	s.ErrorIs(err, repository.ErrStale)

	stored, err := s.demandes.Get(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(model.DemandeStatusRejected, stored.Status)
}

func (s *DemandeServiceSuite) TestListMine() {
	s.create()
	other := &model.Demande{CitizenID: uuid.New(), InstitutionID: s.institution.ID,
		ServiceID: s.institution.Services[0].ID, Type: "passport", Title: "Other", Status: model.DemandeStatusPending}
	s.Require().NoError(s.demandes.Create(s.ctx, other))

	mine, err := s.svc.List(s.ctx, &model.DemandeFilter{CitizenID: &s.citizen.ID})
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(s.citizen.ID, mine[0].CitizenID)

	all, err := s.svc.List(s.ctx, &model.DemandeFilter{InstitutionID: &s.institution.ID})
	s.Require().NoError(err)
	s.Len(all, 2)
}
