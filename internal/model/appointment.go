package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/citizen-registry/pkg/validator"
)

type AppointmentType string

const (
	AppointmentConsultation    AppointmentType = "consultation"
	AppointmentDocumentRequest AppointmentType = "document_request"
	AppointmentEmergency       AppointmentType = "emergency"
	AppointmentOther           AppointmentType = "other"
)

var AppointmentTypes = validator.NewSet(
	string(AppointmentConsultation),
	string(AppointmentDocumentRequest),
	string(AppointmentEmergency),
	string(AppointmentOther),
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
)

var AppointmentStatuses = validator.NewSet(
	string(AppointmentStatusPending),
	string(AppointmentStatusConfirmed),
	string(AppointmentStatusCompleted),
	string(AppointmentStatusCancelled),
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusPending:   {AppointmentStatusConfirmed, AppointmentStatusCancelled},
	AppointmentStatusConfirmed: {AppointmentStatusCompleted, AppointmentStatusCancelled},
}

// CanTransition reports whether the status machine allows s -> to.
func (s AppointmentStatus) CanTransition(to AppointmentStatus) bool {
	for _, next := range appointmentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s AppointmentStatus) Terminal() bool {
	return len(appointmentTransitions[s]) == 0
}

// Active reports whether reminders may still go out for s.
func (s AppointmentStatus) Active() bool {
	return s == AppointmentStatusPending || s == AppointmentStatusConfirmed
}

const (
	MinAppointmentDuration     = 15
	MaxAppointmentDuration     = 360
	DefaultAppointmentDuration = 30
)

type ReminderMethod string

const (
	ReminderEmail ReminderMethod = "email"
	ReminderSMS   ReminderMethod = "sms"
	ReminderBoth  ReminderMethod = "both"
)

var ReminderMethods = validator.NewSet(
	string(ReminderEmail),
	string(ReminderSMS),
	string(ReminderBoth),
)

type Location struct {
	Room  string `json:"room"`
	Floor string `json:"floor"`
}

func (l Location) Value() (driver.Value, error) { return jsonValue(l) }
func (l *Location) Scan(src interface{}) error  { return jsonScan(src, l) }

type Reminder struct {
	Sent      bool           `json:"sent"`
	Method    ReminderMethod `json:"method"`
	Timestamp time.Time      `json:"timestamp"`
	SentAt    *time.Time     `json:"sentAt,omitempty"`
	// EmailSent records the email leg of a "both" reminder whose SMS leg is pending.
	EmailSent bool `json:"emailSent,omitempty"`
}

// Due reports whether the reminder should go out at now.
func (r Reminder) Due(now time.Time) bool {
	return !r.Sent && !r.Timestamp.After(now)
}

type Reminders []Reminder

func (r Reminders) Value() (driver.Value, error) { return jsonValue(r) }
func (r *Reminders) Scan(src interface{}) error  { return jsonScan(src, r) }

type EmergencyFlags struct {
	Enabled           bool `json:"enabled"`
	FacialRecognition bool `json:"facialRecognition"`
}

func (e EmergencyFlags) Value() (driver.Value, error) { return jsonValue(e) }
func (e *EmergencyFlags) Scan(src interface{}) error  { return jsonScan(src, e) }

type Appointment struct {
	Base
	CitizenID       uuid.UUID         `json:"citizen" db:"citizen_id"`
	InstitutionID   uuid.UUID         `json:"institution" db:"institution_id"`
	StaffID         uuid.UUID         `json:"staff" db:"staff_id"`
	Type            AppointmentType   `json:"type" db:"type"`
	Status          AppointmentStatus `json:"status" db:"status"`
	ScheduledTime   time.Time         `json:"scheduledTime" db:"scheduled_time"`
	Duration        int               `json:"duration" db:"duration"`
	Location        Location          `json:"location" db:"location"`
	Notes           string            `json:"notes,omitempty" db:"notes"`
	Reminders       Reminders         `json:"reminders" db:"reminders"`
	EmergencyAccess EmergencyFlags    `json:"emergencyAccess" db:"emergency_access"`
}

// AppointmentView is the expanded appointment representation.
type AppointmentView struct {
	*Appointment
	CitizenDetails     *CitizenSummary     `json:"citizenDetails,omitempty"`
	InstitutionDetails *InstitutionSummary `json:"institutionDetails,omitempty"`
	StaffDetails       *StaffSummary       `json:"staffDetails,omitempty"`
}

type AppointmentFilter struct {
	Type          string
	Status        string
	CitizenID     *uuid.UUID
	InstitutionID *uuid.UUID
	StaffID       *uuid.UUID
}

// DueReminder pairs an appointment with the index of a reminder to send.
type DueReminder struct {
	Appointment *Appointment
	Index       int
}
