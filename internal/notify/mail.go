package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

const timeLayout = "Mon 02 Jan 2006, 15:04"

// Email is the transport-neutral message handed to a Mailer.
type Email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

type Mailer interface {
	Send(ctx context.Context, e Email) error
}

type MailConfig struct {
	From string
	// DoctorOverride, when set, receives every doctor-facing message.
	DoctorOverride string
	Location       *time.Location
}

// MailNotifier renders lifecycle messages as emails. Recipients without an address are skipped.
type MailNotifier struct {
	mailer Mailer
	cfg    MailConfig
}

func NewMailNotifier(mailer Mailer, cfg MailConfig) *MailNotifier {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &MailNotifier{mailer: mailer, cfg: cfg}
}

func (n *MailNotifier) span(w appointment.Window) string {
	return fmt.Sprintf("%s - %s",
		w.Start.In(n.cfg.Location).Format(timeLayout),
		w.End.In(n.cfg.Location).Format(timeLayout))
}

func statusLabel(s appointment.Status) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

func (n *MailNotifier) doctorAddress(doctor Party) string {
	if n.cfg.DoctorOverride != "" {
		return n.cfg.DoctorOverride
	}
	return doctor.Email
}

func (n *MailNotifier) send(ctx context.Context, to, subject string, lines ...string) error {
	if to == "" {
		return nil
	}
	return n.mailer.Send(ctx, Email{
		From:    n.cfg.From,
		To:      to,
		Subject: subject,
		Text:    strings.Join(lines, "\n"),
	})
}

func greeting(name string) string {
	return fmt.Sprintf("Hello %s,", name)
}

func doctorGreeting(doctor Party) string {
	if doctor.Name == "" {
		return "Hello,"
	}
	return fmt.Sprintf("Hello Dr. %s,", doctor.Name)
}

func reopenedLine(reopened bool) string {
	if reopened {
		return "The time slot has been made available for booking again."
	}
	return "The time slot was not reopened because it overlaps existing availability."
}

// NotifyBooked tells both the doctor and the patient. Both sends are attempted.
func (n *MailNotifier) NotifyBooked(ctx context.Context, doctor, patient Party, w appointment.Window, extraMinutes int, status appointment.Status) error {
	label := statusLabel(status)
	patientName := patient.DisplayName("Patient")

	doctorErr := n.send(ctx, n.doctorAddress(doctor),
		fmt.Sprintf("New appointment booked (%s)", label),
		doctorGreeting(doctor),
		"",
		fmt.Sprintf("%s (%s) booked a consultation.", patientName, patient.Email),
		"Time: "+n.span(w),
		fmt.Sprintf("Extra time: %d minutes", extraMinutes),
		"Status: "+label,
	)
	if doctorErr != nil {
		doctorErr = fmt.Errorf("doctor booked email: %w", doctorErr)
	}

	patientErr := n.send(ctx, patient.Email,
		fmt.Sprintf("Appointment booked (%s)", label),
		greeting(patientName),
		"",
		"Your consultation has been booked.",
		"Time: "+n.span(w),
		"Status: "+label,
	)
	if patientErr != nil {
		patientErr = fmt.Errorf("patient booked email: %w", patientErr)
	}

	return errors.Join(doctorErr, patientErr)
}

func (n *MailNotifier) NotifyConfirmed(ctx context.Context, patient Party, w appointment.Window) error {
	return n.send(ctx, patient.Email,
		"Your consultation has been confirmed",
		greeting(patient.DisplayName("Patient")),
		"",
		"Your consultation has been confirmed.",
		"Time: "+n.span(w),
	)
}

func (n *MailNotifier) NotifyCancelledByClinic(ctx context.Context, patient Party, w appointment.Window) error {
	return n.send(ctx, patient.Email,
		"Your consultation has been cancelled",
		greeting(patient.DisplayName("Patient")),
		"",
		"The clinic has cancelled your consultation.",
		"Time: "+n.span(w),
	)
}

func (n *MailNotifier) NotifyCancelledBySelf(ctx context.Context, patient Party, w appointment.Window, reopenedSlot bool) error {
	lines := []string{
		greeting(patient.DisplayName("Patient")),
		"",
		"You cancelled your appointment.",
		"Time: " + n.span(w),
	}
	if reopenedSlot {
		lines = append(lines, "The time is open for booking again if you change your mind.")
	}
	return n.send(ctx, patient.Email, "Your appointment has been cancelled", lines...)
}

func (n *MailNotifier) NotifyCancelledByPatient(ctx context.Context, doctor, patient Party, w appointment.Window, reopenedSlot bool) error {
	return n.send(ctx, n.doctorAddress(doctor),
		"Appointment cancelled by patient",
		doctorGreeting(doctor),
		"",
		fmt.Sprintf("%s (%s) cancelled their appointment.", patient.DisplayName("Patient"), patient.Email),
		"Time: "+n.span(w),
		reopenedLine(reopenedSlot),
	)
}
