package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/citizen-registry/internal/email"
	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
	"github.com/jwalitptl/citizen-registry/pkg/logger"
	"github.com/jwalitptl/citizen-registry/pkg/messaging"
	"github.com/jwalitptl/citizen-registry/pkg/metrics"
)

const SMSReminderEvent = "reminder.sms"

type ReminderDispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// SMSReminder is the payload published for the SMS gateway.
type SMSReminder struct {
	AppointmentID string    `json:"appointmentId"`
	To            string    `json:"to"`
	Text          string    `json:"text"`
	ScheduledTime time.Time `json:"scheduledTime"`
}

// ReminderDispatcher sends due appointment reminders and marks them sent.
type ReminderDispatcher struct {
	appointments repository.AppointmentRepository
	citizens     repository.CitizenRepository
	institutions repository.InstitutionRepository
	mailer       email.Service
	sms          messaging.Publisher
	config       ReminderDispatcherConfig
	logger       *logger.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func NewReminderDispatcher(
	appointments repository.AppointmentRepository,
	citizens repository.CitizenRepository,
	institutions repository.InstitutionRepository,
	mailer email.Service,
	sms messaging.Publisher,
	config ReminderDispatcherConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *ReminderDispatcher {
	return &ReminderDispatcher{
		appointments: appointments,
		citizens:     citizens,
		institutions: institutions,
		mailer:       mailer,
		sms:          sms,
		config:       config,
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
	}
}

func (d *ReminderDispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	d.logger.Info("Starting reminder dispatcher")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Shutting down reminder dispatcher")
			return
		case <-ticker.C:
			if _, err := d.Dispatch(ctx); err != nil {
				d.logger.Error(err, "Failed to dispatch reminders")
			}
		}
	}
}

// Dispatch sends every reminder due now and returns how many went out.
// A reminder that fails stays unsent and is retried on the next poll.
func (d *ReminderDispatcher) Dispatch(ctx context.Context) (int, error) {
	now := d.now().UTC()
	due, err := d.appointments.ListDueReminders(ctx, now, d.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due reminders: %w", err)
	}

	sent := 0
	for _, appt := range due {
		n, err := d.dispatchAppointment(ctx, appt, now)
		sent += n
		if err != nil {
			d.logger.Error(err, "Failed to send reminder", "appointment_id", appt.ID.String())
		}
	}
	return sent, nil
}

func (d *ReminderDispatcher) dispatchAppointment(ctx context.Context, appt *model.Appointment, now time.Time) (int, error) {
	citizen, err := d.citizens.Get(ctx, appt.CitizenID)
	if err != nil {
		return 0, fmt.Errorf("failed to load citizen: %w", err)
	}
	institutionName := ""
	if inst, err := d.institutions.Get(ctx, appt.InstitutionID); err == nil {
		institutionName = inst.Name
	}

	sent := 0
	changed := false
	var firstErr error
	for i := range appt.Reminders {
		r := &appt.Reminders[i]
		if !r.Due(now) {
			continue
		}
		emailSent := r.EmailSent
		err := d.send(ctx, r, citizen, institutionName, appt)
		if r.EmailSent != emailSent {
			changed = true
		}
		if err != nil {
			d.metrics.RemindersSent.WithLabelValues(string(r.Method), "error").Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		d.metrics.RemindersSent.WithLabelValues(string(r.Method), "success").Inc()
		sentAt := now
		r.Sent = true
		r.SentAt = &sentAt
		r.EmailSent = false
		changed = true
		sent++
	}

	if changed {
		err := d.appointments.MarkRemindersSent(ctx, appt.ID, appt.Reminders)
		if errors.Is(err, repository.ErrStale) || errors.Is(err, repository.ErrNotFound) {
			d.logger.Warn("Appointment left the active states while reminding",
				"appointment_id", appt.ID.String())
			return sent, firstErr
		}
		if err != nil {
			return sent, fmt.Errorf("failed to mark reminders sent: %w", err)
		}
	}
	return sent, firstErr
}

// send delivers each leg of r. The email leg of a "both" reminder is recorded
// on r so a failed SMS leg does not resend the email.
func (d *ReminderDispatcher) send(ctx context.Context, r *model.Reminder, citizen *model.Citizen, institutionName string, appt *model.Appointment) error {
	method := r.Method
	if method == model.ReminderEmail || (method == model.ReminderBoth && !r.EmailSent) {
		err := d.mailer.SendAppointmentReminder(ctx, citizen.Email, email.Reminder{
			CitizenName:     citizen.FirstName + " " + citizen.LastName,
			InstitutionName: institutionName,
			AppointmentType: string(appt.Type),
			ScheduledTime:   appt.ScheduledTime,
			Room:            appt.Location.Room,
			Floor:           appt.Location.Floor,
		})
		if err != nil {
			return err
		}
		if method == model.ReminderBoth {
			r.EmailSent = true
		}
	}
	if method == model.ReminderSMS || method == model.ReminderBoth {
		text := fmt.Sprintf("Reminder: %s appointment at %s on %s",
			appt.Type, institutionName, appt.ScheduledTime.Format("02/01 15:04"))
		err := d.sms.Publish(ctx, SMSReminderEvent, SMSReminder{
			AppointmentID: appt.ID.String(),
			To:            citizen.PhoneNumber,
			Text:          text,
			ScheduledTime: appt.ScheduledTime,
		})
		if err != nil {
			return fmt.Errorf("failed to publish sms reminder: %w", err)
		}
	}
	return nil
}
