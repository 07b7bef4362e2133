package schema

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/citizen-registry/pkg/errors"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func citizenDoc() Document {
	return Document{
		"firstName":   "Jean",
		"lastName":    "Dupont",
		"email":       "jean@x.fr",
		"birthDate":   "1985-03-15",
		"phoneNumber": "+33612345678",
		"address":     "1 Rue X",
		"password":    "Abcdef12",
		"emergencyProfile": map[string]interface{}{
			"bloodType": "A+",
			"allergies": []interface{}{"penicillin"},
		},
	}
}

func appointmentDoc() Document {
	return Document{
		"citizen":       uuid.NewString(),
		"institution":   uuid.NewString(),
		"staff":         uuid.NewString(),
		"type":          "consultation",
		"scheduledTime": now.Add(48 * time.Hour).Format(time.RFC3339),
		"location": map[string]interface{}{
			"room":  "12",
			"floor": "2",
		},
	}
}

func requireValidation(t *testing.T, err error, field string) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok, "expected AppError, got %T", err)
	assert.Equal(t, apperrors.KindValidation, appErr.Kind)
	assert.Equal(t, field, appErr.Field)
}

func TestCitizenCreate(t *testing.T) {
	t.Run("valid payload normalizes birth date", func(t *testing.T) {
		doc := citizenDoc()
		require.NoError(t, Citizen.ValidateCreate(doc, now))
		assert.Equal(t, "1985-03-15T00:00:00Z", doc["birthDate"])
	})

	t.Run("first missing field is reported", func(t *testing.T) {
		doc := citizenDoc()
		delete(doc, "email")
		delete(doc, "address")
		requireValidation(t, Citizen.ValidateCreate(doc, now), "email")
	})

	t.Run("nested blood type", func(t *testing.T) {
		doc := citizenDoc()
		doc["emergencyProfile"] = map[string]interface{}{"bloodType": "Z"}
		requireValidation(t, Citizen.ValidateCreate(doc, now), "emergencyProfile.bloodType")
	})

	t.Run("birth date in the future", func(t *testing.T) {
		doc := citizenDoc()
		doc["birthDate"] = "2030-01-01"
		requireValidation(t, Citizen.ValidateCreate(doc, now), "birthDate")
	})

	t.Run("facial vector must have 128 components", func(t *testing.T) {
		doc := citizenDoc()
		doc["biometricData"] = map[string]interface{}{"facialVector": []interface{}{1.0, 2.0}}
		requireValidation(t, Citizen.ValidateCreate(doc, now), "biometricData.facialVector")
	})

	t.Run("emergency contact element path", func(t *testing.T) {
		doc := citizenDoc()
		doc["emergencyProfile"] = map[string]interface{}{
			"bloodType": "O-",
			"emergencyContacts": []interface{}{
				map[string]interface{}{"name": "Marie", "phone": "+33611111111", "relationship": "sister"},
				map[string]interface{}{"name": "Paul", "phone": "abc", "relationship": "brother"},
			},
		}
		requireValidation(t, Citizen.ValidateCreate(doc, now), "emergencyProfile.emergencyContacts[1].phone")
	})
}

func TestCitizenUpdate(t *testing.T) {
	current := citizenDoc()
	delete(current, "password")

	t.Run("forbidden field fails whole update", func(t *testing.T) {
		_, err := Citizen.ValidateUpdate(Document{"firstName": "Paul", "password": "x"}, current, now)
		require.Error(t, err)
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.KindForbiddenField, appErr.Kind)
		assert.Equal(t, "password", appErr.Field)
	})

	t.Run("unknown field is forbidden", func(t *testing.T) {
		_, err := Citizen.ValidateUpdate(Document{"role": "admin"}, current, now)
		assert.Equal(t, apperrors.KindForbiddenField, apperrors.KindOf(err))
	})

	t.Run("only present fields are validated", func(t *testing.T) {
		merged, err := Citizen.ValidateUpdate(Document{"phoneNumber": "+33700000000"}, current, now)
		require.NoError(t, err)
		assert.Equal(t, "+33700000000", merged["phoneNumber"])
		assert.Equal(t, "Jean", merged["firstName"])
	})

	t.Run("constrained sub-field revalidated", func(t *testing.T) {
		patch := Document{"emergencyProfile": map[string]interface{}{"bloodType": "Q+"}}
		_, err := Citizen.ValidateUpdate(patch, current, now)
		requireValidation(t, err, "emergencyProfile.bloodType")
	})

	t.Run("empty update", func(t *testing.T) {
		_, err := Citizen.ValidateUpdate(Document{}, current, now)
		assert.Equal(t, apperrors.KindValidation, apperrors.KindOf(err))
	})
}

func TestAppointmentCreate(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		doc := appointmentDoc()
		require.NoError(t, Appointment.ValidateCreate(doc, now))
		assert.Equal(t, "pending", doc["status"])
		assert.Equal(t, float64(30), doc["duration"])
	})

	t.Run("scheduled yesterday", func(t *testing.T) {
		doc := appointmentDoc()
		doc["scheduledTime"] = now.Add(-24 * time.Hour).Format(time.RFC3339)
		requireValidation(t, Appointment.ValidateCreate(doc, now), "scheduledTime")
	})

	t.Run("scheduled exactly now", func(t *testing.T) {
		doc := appointmentDoc()
		doc["scheduledTime"] = now.Format(time.RFC3339)
		requireValidation(t, Appointment.ValidateCreate(doc, now), "scheduledTime")
	})

	for _, d := range []float64{14, 361, 30.5} {
		doc := appointmentDoc()
		doc["duration"] = d
		requireValidation(t, Appointment.ValidateCreate(doc, now), "duration")
	}

	for _, d := range []float64{15, 360} {
		doc := appointmentDoc()
		doc["duration"] = d
		assert.NoError(t, Appointment.ValidateCreate(doc, now))
	}

	t.Run("invalid identifier", func(t *testing.T) {
		doc := appointmentDoc()
		doc["staff"] = "12345"
		requireValidation(t, Appointment.ValidateCreate(doc, now), "staff")
	})

	t.Run("reminder in the past", func(t *testing.T) {
		doc := appointmentDoc()
		doc["reminders"] = []interface{}{
			map[string]interface{}{"method": "email", "timestamp": now.Add(-time.Hour).Format(time.RFC3339)},
		}
		requireValidation(t, Appointment.ValidateCreate(doc, now), "reminders")
	})

	t.Run("reminder method", func(t *testing.T) {
		doc := appointmentDoc()
		doc["reminders"] = []interface{}{
			map[string]interface{}{"method": "pigeon", "timestamp": now.Add(time.Hour).Format(time.RFC3339)},
		}
		requireValidation(t, Appointment.ValidateCreate(doc, now), "reminders[0].method")
	})

	t.Run("location members", func(t *testing.T) {
		doc := appointmentDoc()
		doc["location"] = map[string]interface{}{"room": "12"}
		requireValidation(t, Appointment.ValidateCreate(doc, now), "location.floor")
	})
}

func TestAppointmentUpdateSkipsUntouchedConstraints(t *testing.T) {
	current := appointmentDoc()
	current["scheduledTime"] = now.Add(-time.Hour).Format(time.RFC3339)
	current["status"] = "confirmed"
	current["duration"] = float64(30)

	_, err := Appointment.ValidateUpdate(Document{"notes": "bring documents"}, current, now)
	require.NoError(t, err)

	_, err = Appointment.ValidateUpdate(Document{"citizen": uuid.NewString()}, current, now)
	assert.Equal(t, apperrors.KindForbiddenField, apperrors.KindOf(err))
}

func TestStaffSchedule(t *testing.T) {
	doc := Document{
		"firstName":   "Anne",
		"lastName":    "Martin",
		"email":       "anne@city.fr",
		"phoneNumber": "+33622222222",
		"institution": uuid.NewString(),
		"role":        "receptionist",
		"department":  "Front desk",
		"schedule": map[string]interface{}{
			"start": "17:00",
			"end":   "09:00",
			"days":  []interface{}{"monday"},
		},
	}
	requireValidation(t, Staff.ValidateCreate(doc, now), "schedule")

	doc["schedule"] = map[string]interface{}{"start": "09:00", "end": "09:00", "days": []interface{}{"monday"}}
	requireValidation(t, Staff.ValidateCreate(doc, now), "schedule")

	doc["schedule"] = map[string]interface{}{"start": "09:00", "end": "17:00", "days": []interface{}{"funday"}}
	requireValidation(t, Staff.ValidateCreate(doc, now), "schedule.days[0]")

	doc["schedule"] = map[string]interface{}{"start": "09:00", "end": "17:00", "days": []interface{}{"monday", "friday"}}
	require.NoError(t, Staff.ValidateCreate(doc, now))

	_, err := Staff.ValidateUpdate(Document{
		"schedule": map[string]interface{}{"start": "18:00", "end": "08:00", "days": []interface{}{"monday"}},
	}, doc, now)
	requireValidation(t, err, "schedule")

	_, err = Staff.ValidateUpdate(Document{
		"availability": map[string]interface{}{"status": "busy", "nextAvailable": now.Add(-time.Minute).Format(time.RFC3339)},
	}, doc, now)
	requireValidation(t, err, "availability.nextAvailable")
}

func TestStaffAvailabilityDefault(t *testing.T) {
	doc := Document{
		"firstName":   "Anne",
		"lastName":    "Martin",
		"email":       "anne@city.fr",
		"phoneNumber": "+33622222222",
		"institution": uuid.NewString(),
		"role":        "receptionist",
		"department":  "Front desk",
		"schedule":    map[string]interface{}{"start": "09:00", "end": "17:00", "days": []interface{}{"monday"}},
	}
	require.NoError(t, Staff.ValidateCreate(doc, now))
	status, ok := Get(doc, "availability.status")
	require.True(t, ok)
	assert.Equal(t, "available", status)

	doc["availability"] = map[string]interface{}{"nextAvailable": now.Add(time.Hour).Format(time.RFC3339)}
	require.NoError(t, Staff.ValidateCreate(doc, now))
	status, _ = Get(doc, "availability.status")
	assert.Equal(t, "available", status)
}

func TestDemandeAdminConstraint(t *testing.T) {
	doc := Document{
		"citizenId":     uuid.NewString(),
		"institutionId": uuid.NewString(),
		"serviceId":     uuid.NewString(),
		"type":          "passport",
		"title":         "Passport renewal",
		"adminId":       uuid.NewString(),
	}
	requireValidation(t, Demande.ValidateCreate(doc, now), "adminName")

	doc["adminName"] = "Claire"
	requireValidation(t, Demande.ValidateCreate(doc, now), "adminEmail")

	doc["adminEmail"] = "claire@mairie.fr"
	require.NoError(t, Demande.ValidateCreate(doc, now))
	assert.Equal(t, "pending", doc["status"])
}

func TestInstitutionCreate(t *testing.T) {
	doc := Document{
		"name":    "Hopital Central",
		"type":    "hospital",
		"address": "10 Avenue de la Gare",
		"contact": map[string]interface{}{
			"phone":   "+33140000000",
			"email":   "contact@hopital.fr",
			"website": "https://hopital.fr",
		},
		"services": []interface{}{
			map[string]interface{}{"name": "Radiology", "description": "X-ray imaging", "processingTime": 2.0, "availableSlots": 10.0},
		},
	}
	require.NoError(t, Institution.ValidateCreate(doc, now))

	doc["type"] = "school"
	requireValidation(t, Institution.ValidateCreate(doc, now), "type")

	doc["type"] = "hospital"
	doc["contact"] = map[string]interface{}{"phone": "+33140000000", "email": "contact@hopital.fr", "website": "ftp://x"}
	requireValidation(t, Institution.ValidateCreate(doc, now), "contact.website")
}
