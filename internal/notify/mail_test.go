package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []Email
	fail map[string]error
}

func (m *fakeMailer) Send(_ context.Context, e Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[e.To]; err != nil {
		return err
	}
	m.sent = append(m.sent, e)
	return nil
}

func (m *fakeMailer) emails() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

func testWindow(t *testing.T) appointment.Window {
	t.Helper()
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	w, err := appointment.NewWindow(start, start.Add(30*time.Minute))
	require.NoError(t, err)
	return w
}

var (
	doctor  = Party{ID: uuid.New(), Name: "Ada", Surname: "Obi", Email: "ada@clinic.test"}
	patient = Party{ID: uuid.New(), Name: "Tunde", Surname: "Bello", Email: "tunde@mail.test"}
)

func TestMailNotifierBookedSendsToBothParties(t *testing.T) {
	m := &fakeMailer{}
	n := NewMailNotifier(m, MailConfig{From: "clinic@test"})

	err := n.NotifyBooked(context.Background(), doctor, patient, testWindow(t), 10, appointment.StatusPendingPayment)
	require.NoError(t, err)

	sent := m.emails()
	require.Len(t, sent, 2)
	assert.Equal(t, "ada@clinic.test", sent[0].To)
	assert.Equal(t, "New appointment booked (PENDING PAYMENT)", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "Extra time: 10 minutes")
	assert.Equal(t, "tunde@mail.test", sent[1].To)
	assert.Equal(t, "clinic@test", sent[1].From)
	assert.Contains(t, sent[1].Text, "Mon 10 Mar 2025, 09:00")
}

func TestMailNotifierBookedAttemptsPatientWhenDoctorFails(t *testing.T) {
	boom := errors.New("smtp down")
	m := &fakeMailer{fail: map[string]error{doctor.Email: boom}}
	n := NewMailNotifier(m, MailConfig{})

	err := n.NotifyBooked(context.Background(), doctor, patient, testWindow(t), 0, appointment.StatusConfirmed)
	require.ErrorIs(t, err, boom)

	sent := m.emails()
	require.Len(t, sent, 1)
	assert.Equal(t, patient.Email, sent[0].To)
}

func TestMailNotifierDoctorOverride(t *testing.T) {
	m := &fakeMailer{}
	n := NewMailNotifier(m, MailConfig{DoctorOverride: "desk@clinic.test"})

	require.NoError(t, n.NotifyCancelledByPatient(context.Background(), doctor, patient, testWindow(t), false))

	sent := m.emails()
	require.Len(t, sent, 1)
	assert.Equal(t, "desk@clinic.test", sent[0].To)
	assert.Contains(t, sent[0].Text, "was not reopened")
}

func TestMailNotifierSkipsMissingAddress(t *testing.T) {
	m := &fakeMailer{}
	n := NewMailNotifier(m, MailConfig{})

	require.NoError(t, n.NotifyConfirmed(context.Background(), Party{ID: uuid.New()}, testWindow(t)))
	assert.Empty(t, m.emails())
}

func TestMailNotifierUsesClinicTimezone(t *testing.T) {
	lagos := time.FixedZone("WAT", 60*60)
	m := &fakeMailer{}
	n := NewMailNotifier(m, MailConfig{Location: lagos})

	require.NoError(t, n.NotifyCancelledByClinic(context.Background(), patient, testWindow(t)))

	sent := m.emails()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Mon 10 Mar 2025, 10:00 - Mon 10 Mar 2025, 10:30")
}
