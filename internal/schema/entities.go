package schema

import (
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/pkg/validator"
)

// MinPasswordLength applies to citizen and staff passwords.
const MinPasswordLength = 8

var password = str(MinPasswordLength, 128)

var Citizen = &Schema{
	Entity: "citizen",
	Fields: []Field{
		{Path: "firstName", Required: true, Check: name},
		{Path: "lastName", Required: true, Check: name},
		{Path: "email", Required: true, Check: email},
		{Path: "birthDate", Required: true, Check: date, Normalize: normalizeDate},
		{Path: "phoneNumber", Required: true, Check: phone},
		{Path: "address", Required: true, Check: str(1, 200)},
		{Path: "password", Required: true, Check: password},
		{Path: "emergencyProfile", Required: true, Check: object},
		{Path: "emergencyProfile.bloodType", Required: true, Check: bloodType},
		{Path: "emergencyProfile.allergies", Check: listOf(str(1, 100))},
		{Path: "emergencyProfile.emergencyContacts", Check: listOf(objectOf(
			member{name: "name", required: true, check: str(1, 100)},
			member{name: "phone", required: true, check: phone},
			member{name: "relationship", required: true, check: str(1, 50)},
		))},
		{Path: "biometricData", Check: object},
		{Path: "biometricData.facialVector", Check: facial},
	},
	Updatable: validator.NewSet(
		"firstName", "lastName", "email", "birthDate", "phoneNumber",
		"address", "emergencyProfile", "biometricData",
	),
	Constraints: []Constraint{
		{
			Field:   "birthDate",
			Trigger: []string{"birthDate"},
			Check: func(doc Document, now time.Time) string {
				if t, ok := timeAt(doc, "birthDate"); ok && !t.Before(now) {
					return "must be in the past"
				}
				return ""
			},
		},
	},
}

var Staff = &Schema{
	Entity: "staff",
	Fields: []Field{
		{Path: "firstName", Required: true, Check: name},
		{Path: "lastName", Required: true, Check: name},
		{Path: "email", Required: true, Check: email},
		{Path: "phoneNumber", Required: true, Check: phone},
		{Path: "institution", Required: true, Check: identifier},
		{Path: "role", Required: true, Check: enum(model.StaffRoles)},
		{Path: "department", Required: true, Check: str(1, 100)},
		{Path: "password", Check: password},
		{Path: "schedule", Check: object},
		{Path: "schedule.start", Required: true, Check: clock},
		{Path: "schedule.end", Required: true, Check: clock},
		{Path: "schedule.days", Required: true, Check: listOf(enum(model.Weekdays))},
		{
			Path:    "availability",
			Default: func() interface{} { return map[string]interface{}{} },
			Check:   object,
		},
		{
			Path:    "availability.status",
			Default: func() interface{} { return string(model.AvailabilityAvailable) },
			Check:   enum(model.AvailabilityStatuses),
		},
		{Path: "availability.nextAvailable", Check: date, Normalize: normalizeDate},
		{Path: "permissions", Check: objectOf(
			member{name: "readCitizenData", check: boolean},
			member{name: "writeRequests", check: boolean},
			member{name: "manageAppointments", check: boolean},
			member{name: "emergencyAccess", check: boolean},
		)},
	},
	Updatable: validator.NewSet(
		"firstName", "lastName", "email", "phoneNumber", "institution",
		"role", "department", "schedule", "availability", "permissions",
	),
	Constraints: []Constraint{
		{
			Field:   "schedule",
			Trigger: []string{"schedule"},
			Check: func(doc Document, _ time.Time) string {
				start, _ := lookup(doc, "schedule.start")
				end, _ := lookup(doc, "schedule.end")
				s, sok := start.(string)
				e, eok := end.(string)
				if sok && eok && s >= e {
					return "start must be before end"
				}
				return ""
			},
		},
		{
			Field:   "availability.nextAvailable",
			Trigger: []string{"availability"},
			Check: func(doc Document, now time.Time) string {
				if t, ok := timeAt(doc, "availability.nextAvailable"); ok && t.Before(now) {
					return "must not be in the past"
				}
				return ""
			},
		},
	},
}

var service = objectOf(
	member{name: "id", check: identifier},
	member{name: "name", required: true, check: str(2, 100)},
	member{name: "description", required: true, check: str(5, 500)},
	member{name: "processingTime", required: true, check: number(0)},
	member{name: "availableSlots", required: true, check: intRange(0, -1)},
)

// Services validates a replacement service catalog.
var Services = &Schema{
	Entity: "services",
	Fields: []Field{
		{Path: "services", Required: true, Check: listOf(service)},
	},
	Updatable: validator.NewSet("services"),
}

var Institution = &Schema{
	Entity: "institution",
	Fields: []Field{
		{Path: "name", Required: true, Check: str(2, 100)},
		{Path: "type", Required: true, Check: enum(model.InstitutionTypes)},
		{Path: "address", Required: true, Check: str(5, 200)},
		{Path: "contact", Required: true, Check: object},
		{Path: "contact.phone", Required: true, Check: phone},
		{Path: "contact.email", Required: true, Check: email},
		{Path: "contact.website", Check: url},
		{Path: "services", Check: listOf(service)},
		{Path: "emergencyAccess", Check: objectOf(
			member{name: "enabled", check: boolean},
			member{name: "facialRecognition", check: boolean},
			member{name: "emergencyContacts", check: listOf(identifier)},
		)},
	},
	Updatable: validator.NewSet(
		"name", "type", "address", "contact", "services", "emergencyAccess",
	),
}

var Appointment = &Schema{
	Entity: "appointment",
	Fields: []Field{
		{Path: "citizen", Required: true, Check: identifier},
		{Path: "institution", Required: true, Check: identifier},
		{Path: "staff", Required: true, Check: identifier},
		{Path: "type", Required: true, Check: enum(model.AppointmentTypes)},
		{
			Path:     "status",
			Required: true,
			Default:  func() interface{} { return string(model.AppointmentStatusPending) },
			Check:    enum(model.AppointmentStatuses),
		},
		{Path: "scheduledTime", Required: true, Check: date, Normalize: normalizeDate},
		{
			Path:     "duration",
			Required: true,
			Default:  func() interface{} { return float64(model.DefaultAppointmentDuration) },
			Check:    intRange(model.MinAppointmentDuration, model.MaxAppointmentDuration),
		},
		{Path: "location", Required: true, Check: object},
		{Path: "location.room", Required: true, Check: str(1, 50)},
		{Path: "location.floor", Required: true, Check: str(1, 50)},
		{Path: "notes", Check: str(0, 1000)},
		{
			Path: "reminders",
			Check: listOf(objectOf(
				member{name: "sent", check: boolean},
				member{name: "method", required: true, check: enum(model.ReminderMethods)},
				member{name: "timestamp", required: true, check: date},
			)),
			Normalize: normalizeMemberDates("timestamp"),
		},
		{Path: "emergencyAccess", Check: objectOf(
			member{name: "enabled", check: boolean},
			member{name: "facialRecognition", check: boolean},
		)},
	},
	Updatable: validator.NewSet(
		"type", "status", "scheduledTime", "duration", "location", "notes", "reminders",
	),
	Constraints: []Constraint{
		{
			Field:   "scheduledTime",
			Trigger: []string{"scheduledTime"},
			Check: func(doc Document, now time.Time) string {
				if t, ok := timeAt(doc, "scheduledTime"); ok && !t.After(now) {
					return "must be in the future"
				}
				return ""
			},
		},
		{
			Field:   "reminders",
			Trigger: []string{"reminders"},
			Check: func(doc Document, now time.Time) string {
				items, _ := Get(doc, "reminders")
				list, _ := items.([]interface{})
				for _, item := range list {
					r, _ := item.(map[string]interface{})
					if sent, _ := r["sent"].(bool); sent {
						continue
					}
					if t, ok := validator.ParseDate(r["timestamp"]); ok && !t.After(now) {
						return "reminder timestamp must be in the future"
					}
				}
				return ""
			},
		},
	},
}

var Demande = &Schema{
	Entity: "demande",
	Fields: []Field{
		{Path: "citizenId", Required: true, Check: identifier},
		{Path: "institutionId", Required: true, Check: identifier},
		{Path: "serviceId", Required: true, Check: identifier},
		{Path: "adminId", Check: identifier},
		{Path: "type", Required: true, Check: str(2, 50)},
		{Path: "title", Required: true, Check: str(2, 100)},
		{Path: "description", Check: str(0, 1000)},
		{
			Path:     "status",
			Required: true,
			Default:  func() interface{} { return string(model.DemandeStatusPending) },
			Check:    enum(model.DemandeStatuses),
		},
		{Path: "adminName", Check: str(1, 100)},
		{Path: "adminEmail", Check: email},
	},
	Updatable: validator.NewSet(
		"citizenId", "institutionId", "serviceId", "adminId", "type",
		"title", "description", "status", "adminName", "adminEmail",
	),
	Constraints: []Constraint{
		{
			Field:   "adminName",
			Trigger: []string{"adminId", "adminName", "adminEmail"},
			Check: func(doc Document, _ time.Time) string {
				if present(doc, "adminId") && !present(doc, "adminName") {
					return "is required when adminId is set"
				}
				return ""
			},
		},
		{
			Field:   "adminEmail",
			Trigger: []string{"adminId", "adminName", "adminEmail"},
			Check: func(doc Document, _ time.Time) string {
				if !present(doc, "adminId") {
					return ""
				}
				if !present(doc, "adminEmail") {
					return "is required when adminId is set"
				}
				if !validator.IsValidEmail(doc["adminEmail"]) {
					return "invalid email"
				}
				return ""
			},
		},
	},
}

func present(doc Document, key string) bool {
	v, ok := doc[key]
	return ok && v != nil && v != ""
}

// ParseID parses an identifier already accepted by the identifier check.
func ParseID(doc Document, key string) (uuid.UUID, bool) {
	s, ok := doc[key].(string)
	if !ok || !validator.IsValidIdentifier(s) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	return id, err == nil
}
