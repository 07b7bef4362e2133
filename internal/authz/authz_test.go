package authz

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/citizen-registry/internal/model"
)

func TestDefaultTable(t *testing.T) {
	table := Default()

	citizen := &model.Identity{Subject: uuid.New(), Role: model.RoleCitizen}
	adminID := &model.Identity{Subject: uuid.New(), Role: model.RoleAdmin}
	reader := &model.Identity{Subject: uuid.New(), Role: model.RoleStaff,
		Permissions: []model.Permission{model.PermReadCitizenData}}
	plainStaff := &model.Identity{Subject: uuid.New(), Role: model.RoleStaff}
	institution := &model.Identity{Subject: uuid.New(), Role: model.RoleInstitution,
		Permissions: []model.Permission{model.PermWriteRequests}}

	tests := []struct {
		name     string
		route    string
		identity *model.Identity
		pathID   string
		want     bool
	}{
		{"admin creates institutions", InstitutionCreate, adminID, "", true},
		{"staff cannot create institutions", InstitutionCreate, plainStaff, "", false},
		{"citizen cannot create staff", StaffCreate, citizen, "", false},
		{"citizen reads own record", CitizenGet, citizen, citizen.Subject.String(), true},
		{"citizen cannot read another record", CitizenGet, citizen, uuid.NewString(), false},
		{"permission grants citizen reads", CitizenGet, reader, uuid.NewString(), true},
		{"staff without permission denied", CitizenList, plainStaff, "", false},
		{"emergency needs the permission", CitizenEmergency, reader, uuid.NewString(), false},
		{"citizen may book", AppointmentCreate, citizen, "", true},
		{"citizen may not confirm", AppointmentConfirm, citizen, uuid.NewString(), false},
		{"institution reads its own statistics", InstitutionStatistics, institution, institution.Subject.String(), true},
		{"institution cannot read other statistics", InstitutionStatistics, institution, uuid.NewString(), false},
		{"institution with write_requests lists requests", DemandeList, institution, "", true},
		{"only citizens have a mine view", DemandeMine, adminID, "", false},
		{"unknown route is denied", "nope", adminID, "", false},
		{"nil identity is denied", CitizenList, nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Allow(tt.route, tt.identity, tt.pathID))
		})
	}
}

func TestOwns(t *testing.T) {
	citizen := &model.Identity{Subject: uuid.New(), Role: model.RoleCitizen}
	staff := &model.Identity{Subject: uuid.New(), Role: model.RoleStaff}

	assert.True(t, Owns(citizen, citizen.Subject.String()))
	assert.False(t, Owns(citizen, uuid.NewString()))
	assert.True(t, Owns(staff, uuid.NewString()))
	assert.False(t, Owns(nil, uuid.NewString()))
}
