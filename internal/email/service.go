package email

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

type Service interface {
	SendAppointmentReminder(ctx context.Context, to string, reminder Reminder) error
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

// Reminder is the data rendered into an appointment reminder.
type Reminder struct {
	CitizenName     string
	InstitutionName string
	AppointmentType string
	ScheduledTime   time.Time
	Room            string
	Floor           string
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type smtpService struct {
	from string
	send func(*gomail.Message) error
}

// NewSMTPService sends through the configured relay. Without a host it
// returns a service that only logs.
func NewSMTPService(cfg Config, logger zerolog.Logger) Service {
	if cfg.Host == "" {
		return &logService{logger: logger}
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &smtpService{
		from: cfg.From,
		send: func(m *gomail.Message) error { return dialer.DialAndSend(m) },
	}
}

func (s *smtpService) SendAppointmentReminder(ctx context.Context, to string, r Reminder) error {
	return s.SendCustom(ctx, to, reminderSubject(r), reminderBody(r))
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	if err := s.send(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}
	return nil
}

type logService struct {
	logger zerolog.Logger
}

func (s *logService) SendAppointmentReminder(ctx context.Context, to string, r Reminder) error {
	return s.SendCustom(ctx, to, reminderSubject(r), reminderBody(r))
}

func (s *logService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	s.logger.Info().Str("to", to).Str("subject", subject).Msg("smtp not configured, email dropped")
	return nil
}

func reminderSubject(r Reminder) string {
	return fmt.Sprintf("Reminder: %s on %s", r.AppointmentType, r.ScheduledTime.Format("02/01/2006 15:04"))
}

func reminderBody(r Reminder) string {
	body := fmt.Sprintf("Hello %s,\n\nThis is a reminder of your %s appointment at %s on %s.\n",
		r.CitizenName, r.AppointmentType, r.InstitutionName, r.ScheduledTime.Format("Monday 02 January 2006 at 15:04"))
	if r.Room != "" {
		body += fmt.Sprintf("Location: room %s", r.Room)
		if r.Floor != "" {
			body += fmt.Sprintf(", floor %s", r.Floor)
		}
		body += "\n"
	}
	return body
}
