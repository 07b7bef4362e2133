package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/citizen-registry/internal/email"
	"github.com/jwalitptl/citizen-registry/internal/model"
	"github.com/jwalitptl/citizen-registry/internal/repository"
	"github.com/jwalitptl/citizen-registry/internal/repository/memory"
	"github.com/jwalitptl/citizen-registry/pkg/logger"
	"github.com/jwalitptl/citizen-registry/pkg/messaging"
	"github.com/jwalitptl/citizen-registry/pkg/metrics"
)

type failingBroker struct {
	calls int
}

func (b *failingBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.calls++
	return errors.New("broker down")
}

func (b *failingBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return nil, errors.New("broker down")
}

func (b *failingBroker) Close() error { return nil }

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
		MaxAttempts:   2,
	}
}

func TestNewOutboxProcessor_RejectsBadConfig(t *testing.T) {
	_, err := NewOutboxProcessor(memory.NewOutboxRepository(), messaging.NewMemoryBroker(),
		OutboxProcessorConfig{}, logger.Nop(), metrics.NewUnregistered())
	assert.Error(t, err)
}

func TestOutboxProcessor_PublishesAndMarksProcessed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := memory.NewOutboxRepository()
	broker := messaging.NewMemoryBroker()
	defer broker.Close()

	ch, err := broker.Subscribe(ctx, ChannelPrefix+"citizen.created")
	require.NoError(t, err)

	aggregateID := uuid.New()
	require.NoError(t, repo.Create(ctx, &model.OutboxEvent{
		EventType:     "citizen.created",
		AggregateType: "citizen",
		AggregateID:   aggregateID,
		Payload:       json.RawMessage(`{"email":"jean@x.fr"}`),
	}))

	p, err := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), metrics.NewUnregistered())
	require.NoError(t, err)

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var msg struct {
		Type        string            `json:"type"`
		AggregateID string            `json:"aggregateId"`
		Payload     map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(<-ch, &msg))
	assert.Equal(t, "citizen.created", msg.Type)
	assert.Equal(t, aggregateID.String(), msg.AggregateID)
	assert.Equal(t, "jean@x.fr", msg.Payload["email"])

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxProcessor_ParksEventAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()
	broker := &failingBroker{}

	require.NoError(t, repo.Create(ctx, &model.OutboxEvent{
		EventType:   "demande.created",
		AggregateID: uuid.New(),
		Payload:     json.RawMessage(`{}`),
	}))

	p, err := NewOutboxProcessor(repo, broker, testConfig(), logger.Nop(), metrics.NewUnregistered())
	require.NoError(t, err)

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 2, broker.calls)

	pending, err := repo.GetPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	require.NotNil(t, pending[0].ErrorMessage)
	assert.Contains(t, *pending[0].ErrorMessage, "broker down")

	_, err = p.ProcessBatch(ctx)
	require.NoError(t, err)

	pending, err = repo.GetPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxCleanupWorker_Purge(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepository()

	evt := &model.OutboxEvent{EventType: "x.y", AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Create(ctx, evt))
	require.NoError(t, repo.MarkProcessed(ctx, evt.ID))

	w := NewOutboxCleanupWorker(repo, time.Hour, time.Minute, logger.Nop(), metrics.NewUnregistered())
	assert.Equal(t, int64(0), w.Purge(ctx))

	w.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	assert.Equal(t, int64(1), w.Purge(ctx))
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) SendAppointmentReminder(ctx context.Context, to string, r email.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

func (m *recordingMailer) SendCustom(ctx context.Context, to, subject, content string) error {
	return nil
}

func TestReminderDispatcher_Dispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	citizens := memory.NewCitizenRepository()
	institutions := memory.NewInstitutionRepository()
	appointments := memory.NewAppointmentRepository()

	citizen := &model.Citizen{FirstName: "Jean", LastName: "Dupont", Email: "jean@x.fr", PhoneNumber: "+33612345678"}
	require.NoError(t, citizens.Create(ctx, citizen))
	inst := &model.Institution{Name: "Mairie", Type: model.InstitutionCityHall}
	require.NoError(t, institutions.Create(ctx, inst))

	now := time.Now().UTC()
	appt := &model.Appointment{
		CitizenID:     citizen.ID,
		InstitutionID: inst.ID,
		StaffID:       uuid.New(),
		Type:          model.AppointmentConsultation,
		Status:        model.AppointmentStatusConfirmed,
		ScheduledTime: now.Add(24 * time.Hour),
		Duration:      30,
		Reminders: model.Reminders{
			{Method: model.ReminderBoth, Timestamp: now.Add(-time.Minute)},
			{Method: model.ReminderEmail, Timestamp: now.Add(time.Hour)},
		},
	}
	require.NoError(t, appointments.Create(ctx, appt))

	broker := messaging.NewMemoryBroker()
	defer broker.Close()
	smsCh, err := broker.Subscribe(ctx, "notifications.sms")
	require.NoError(t, err)

	mailer := &recordingMailer{}
	d := NewReminderDispatcher(appointments, citizens, institutions, mailer,
		messaging.NewBrokerPublisher(broker, "notifications.sms"),
		ReminderDispatcherConfig{PollInterval: time.Minute, BatchSize: 10},
		logger.Nop(), metrics.NewUnregistered())

	n, err := d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"jean@x.fr"}, mailer.sent)

	var msg messaging.Message
	require.NoError(t, json.Unmarshal(<-smsCh, &msg))
	assert.Equal(t, SMSReminderEvent, msg.Type)

	stored, err := appointments.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.True(t, stored.Reminders[0].Sent)
	assert.NotNil(t, stored.Reminders[0].SentAt)
	assert.False(t, stored.Reminders[1].Sent)

	n, err = d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReminderDispatcher_FailureLeavesReminderUnsent(t *testing.T) {
	ctx := context.Background()

	citizens := memory.NewCitizenRepository()
	appointments := memory.NewAppointmentRepository()

	citizen := &model.Citizen{Email: "jean@x.fr"}
	require.NoError(t, citizens.Create(ctx, citizen))

	appt := &model.Appointment{
		CitizenID:     citizen.ID,
		Status:        model.AppointmentStatusPending,
		ScheduledTime: time.Now().Add(time.Hour),
		Reminders:     model.Reminders{{Method: model.ReminderEmail, Timestamp: time.Now().Add(-time.Minute)}},
	}
	require.NoError(t, appointments.Create(ctx, appt))

	d := NewReminderDispatcher(appointments, citizens, memory.NewInstitutionRepository(),
		&recordingMailer{err: errors.New("smtp down")}, nil,
		ReminderDispatcherConfig{PollInterval: time.Minute, BatchSize: 10},
		logger.Nop(), metrics.NewUnregistered())

	n, err := d.Dispatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored, err := appointments.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.False(t, stored.Reminders[0].Sent)
}

// cancellingAppointments cancels every appointment it hands out as due, as a
// citizen would between the dispatcher's read and its write.
type cancellingAppointments struct {
	repository.AppointmentRepository
}

func (r *cancellingAppointments) ListDueReminders(ctx context.Context, now time.Time, limit int) ([]*model.Appointment, error) {
	due, err := r.AppointmentRepository.ListDueReminders(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	for _, appt := range due {
		if err := r.UpdateStatus(ctx, appt.ID, appt.Status, model.AppointmentStatusCancelled); err != nil {
			return nil, err
		}
	}
	return due, nil
}

func TestReminderDispatcher_DoesNotRevertConcurrentCancel(t *testing.T) {
	ctx := context.Background()

	citizens := memory.NewCitizenRepository()
	appointments := memory.NewAppointmentRepository()

	citizen := &model.Citizen{Email: "jean@x.fr"}
	require.NoError(t, citizens.Create(ctx, citizen))

	appt := &model.Appointment{
		CitizenID:     citizen.ID,
		Status:        model.AppointmentStatusConfirmed,
		ScheduledTime: time.Now().Add(time.Hour),
		Reminders:     model.Reminders{{Method: model.ReminderEmail, Timestamp: time.Now().Add(-time.Minute)}},
	}
	require.NoError(t, appointments.Create(ctx, appt))

	mailer := &recordingMailer{}
	d := NewReminderDispatcher(&cancellingAppointments{appointments}, citizens, memory.NewInstitutionRepository(),
		mailer, nil,
		ReminderDispatcherConfig{PollInterval: time.Minute, BatchSize: 10},
		logger.Nop(), metrics.NewUnregistered())

	_, err := d.Dispatch(ctx)
	require.NoError(t, err)

	stored, err := appointments.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCancelled, stored.Status)
}

func TestReminderDispatcher_BothDoesNotResendEmail(t *testing.T) {
	ctx := context.Background()

	citizens := memory.NewCitizenRepository()
	appointments := memory.NewAppointmentRepository()

	citizen := &model.Citizen{Email: "jean@x.fr", PhoneNumber: "+33612345678"}
	require.NoError(t, citizens.Create(ctx, citizen))

	appt := &model.Appointment{
		CitizenID:     citizen.ID,
		Status:        model.AppointmentStatusPending,
		ScheduledTime: time.Now().Add(time.Hour),
		Reminders:     model.Reminders{{Method: model.ReminderBoth, Timestamp: time.Now().Add(-time.Minute)}},
	}
	require.NoError(t, appointments.Create(ctx, appt))

	mailer := &recordingMailer{}
	broker := &failingBroker{}
	d := NewReminderDispatcher(appointments, citizens, memory.NewInstitutionRepository(),
		mailer, messaging.NewBrokerPublisher(broker, "notifications.sms"),
		ReminderDispatcherConfig{PollInterval: time.Minute, BatchSize: 10},
		logger.Nop(), metrics.NewUnregistered())

	for i := 0; i < 2; i++ {
		n, err := d.Dispatch(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	}

	assert.Equal(t, []string{"jean@x.fr"}, mailer.sent)
	assert.Equal(t, 2, broker.calls)

	stored, err := appointments.Get(ctx, appt.ID)
	require.NoError(t, err)
	assert.False(t, stored.Reminders[0].Sent)
	assert.True(t, stored.Reminders[0].EmailSent)
}
