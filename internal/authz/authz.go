// Package authz is the central capability table: which callers may invoke
// which named route.
package authz

import (
	"github.com/jwalitptl/citizen-registry/internal/model"
)

// Rule admits a caller whose role is listed, who holds any listed permission,
// or, with Self, whose subject equals the route's :id. With CitizenOwned,
// citizens pass the gate and the handler checks they own the record.
type Rule struct {
	Roles        []model.Role
	Permissions  []model.Permission
	Self         bool
	CitizenOwned bool
}

type Table map[string]Rule

// Allow evaluates the rule for route. Unknown routes are denied.
func (t Table) Allow(route string, identity *model.Identity, pathID string) bool {
	rule, ok := t[route]
	if !ok || identity == nil {
		return false
	}
	return rule.allows(identity, pathID)
}

func (r Rule) allows(identity *model.Identity, pathID string) bool {
	for _, role := range r.Roles {
		if identity.Role == role {
			return true
		}
	}
	for _, p := range r.Permissions {
		if identity.Has(p) {
			return true
		}
	}
	if r.Self && pathID != "" && identity.Subject.String() == pathID {
		return true
	}
	return r.CitizenOwned && identity.Role == model.RoleCitizen
}

// Owns reports whether identity may touch a record owned by citizenID once the
// route gate has passed. Only citizens are restricted.
func Owns(identity *model.Identity, citizenID string) bool {
	if identity == nil {
		return false
	}
	if identity.Role != model.RoleCitizen {
		return true
	}
	return identity.Subject.String() == citizenID
}

var (
	admin       = []model.Role{model.RoleAdmin}
	anyone      = []model.Role{model.RoleAdmin, model.RoleStaff, model.RoleInstitution, model.RoleCitizen}
	readCitizen = []model.Permission{model.PermReadCitizenData}
	emergency   = []model.Permission{model.PermEmergencyAccess}
	manageAppts = []model.Permission{model.PermManageAppointments}
	writeReqs   = []model.Permission{model.PermWriteRequests}
)

// Route names used by the router.
const (
	CitizenList        = "citizens.list"
	CitizenByBloodType = "citizens.byBloodType"
	CitizenByAllergy   = "citizens.byAllergy"
	CitizenGet         = "citizens.get"
	CitizenUpdate      = "citizens.update"
	CitizenDelete      = "citizens.delete"
	CitizenEmergency   = "citizens.emergency"

	AppointmentCreate        = "appointments.create"
	AppointmentList          = "appointments.list"
	AppointmentByCitizen     = "appointments.byCitizen"
	AppointmentByInstitution = "appointments.byInstitution"
	AppointmentGet           = "appointments.get"
	AppointmentUpdate        = "appointments.update"
	AppointmentDelete        = "appointments.delete"
	AppointmentConfirm       = "appointments.confirm"
	AppointmentComplete      = "appointments.complete"
	AppointmentCancel        = "appointments.cancel"

	DemandeCreate        = "demandes.create"
	DemandeList          = "demandes.list"
	DemandeMine          = "demandes.mine"
	DemandeByCitizen     = "demandes.byCitizen"
	DemandeByInstitution = "demandes.byInstitution"
	DemandeGet           = "demandes.get"
	DemandeUpdate        = "demandes.update"
	DemandeDelete        = "demandes.delete"
	DemandeAssign        = "demandes.assign"
	DemandeResolve       = "demandes.resolve"

	InstitutionCreate     = "institutions.create"
	InstitutionList       = "institutions.list"
	InstitutionGet        = "institutions.get"
	InstitutionUpdate     = "institutions.update"
	InstitutionDelete     = "institutions.delete"
	InstitutionServices   = "institutions.services"
	InstitutionSetService = "institutions.setServices"
	InstitutionStatistics = "institutions.statistics"
	InstitutionAPIKeys    = "institutions.apiKeys"

	StaffCreate = "staff.create"
	StaffList   = "staff.list"
	StaffGet    = "staff.get"
	StaffUpdate = "staff.update"
	StaffDelete = "staff.delete"

	Logout = "auth.logout"
)

// Default is the capability table served by the API.
func Default() Table {
	return Table{
		CitizenList:        {Roles: admin, Permissions: readCitizen},
		CitizenByBloodType: {Roles: admin, Permissions: readCitizen},
		CitizenByAllergy:   {Roles: admin, Permissions: readCitizen},
		CitizenGet:         {Roles: admin, Permissions: readCitizen, Self: true},
		CitizenUpdate:      {Roles: admin, Self: true},
		CitizenDelete:      {Roles: admin, Self: true},
		CitizenEmergency:   {Roles: admin, Permissions: emergency},

		AppointmentCreate:        {Roles: admin, Permissions: manageAppts, CitizenOwned: true},
		AppointmentList:          {Roles: admin, Permissions: manageAppts},
		AppointmentByCitizen:     {Roles: admin, Permissions: manageAppts, Self: true},
		AppointmentByInstitution: {Roles: admin, Permissions: manageAppts, Self: true},
		AppointmentGet:           {Roles: admin, Permissions: manageAppts, CitizenOwned: true},
		AppointmentUpdate:        {Roles: admin, Permissions: manageAppts},
		AppointmentDelete:        {Roles: admin, Permissions: manageAppts},
		AppointmentConfirm:       {Roles: admin, Permissions: manageAppts},
		AppointmentComplete:      {Roles: admin, Permissions: manageAppts},
		AppointmentCancel:        {Roles: admin, Permissions: manageAppts, CitizenOwned: true},

		DemandeCreate:        {Roles: admin, Permissions: writeReqs, CitizenOwned: true},
		DemandeList:          {Roles: admin, Permissions: writeReqs},
		DemandeMine:          {Roles: []model.Role{model.RoleCitizen}},
		DemandeByCitizen:     {Roles: admin, Permissions: writeReqs, Self: true},
		DemandeByInstitution: {Roles: admin, Permissions: writeReqs, Self: true},
		DemandeGet:           {Roles: admin, Permissions: writeReqs, CitizenOwned: true},
		DemandeUpdate:        {Roles: admin, Permissions: writeReqs},
		DemandeDelete:        {Roles: admin, Permissions: writeReqs},
		DemandeAssign:        {Roles: admin, Permissions: writeReqs},
		DemandeResolve:       {Roles: admin, Permissions: writeReqs},

		InstitutionCreate:     {Roles: admin},
		InstitutionList:       {Roles: admin},
		InstitutionGet:        {Roles: admin, Self: true},
		InstitutionUpdate:     {Roles: admin},
		InstitutionDelete:     {Roles: admin},
		InstitutionServices:   {Roles: anyone},
		InstitutionSetService: {Roles: admin, Self: true},
		InstitutionStatistics: {Roles: admin, Self: true},
		InstitutionAPIKeys:    {Roles: admin},

		StaffCreate: {Roles: admin},
		StaffList:   {Roles: admin},
		StaffGet:    {Roles: admin, Self: true},
		StaffUpdate: {Roles: admin},
		StaffDelete: {Roles: admin},

		Logout: {Roles: anyone},
	}
}
