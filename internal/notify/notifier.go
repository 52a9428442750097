package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

// Notifier delivers lifecycle messages. Every call may fail independently.
type Notifier interface {
	NotifyBooked(ctx context.Context, doctor, patient Party, w appointment.Window, extraMinutes int, status appointment.Status) error
	NotifyConfirmed(ctx context.Context, patient Party, w appointment.Window) error
	NotifyCancelledByClinic(ctx context.Context, patient Party, w appointment.Window) error
	NotifyCancelledBySelf(ctx context.Context, patient Party, w appointment.Window, reopenedSlot bool) error
	NotifyCancelledByPatient(ctx context.Context, doctor, patient Party, w appointment.Window, reopenedSlot bool) error
}

// LogNotifier only writes what would have been sent. Used when no mail transport is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notifier")}
}

func (n *LogNotifier) NotifyBooked(_ context.Context, doctor, patient Party, w appointment.Window, extraMinutes int, status appointment.Status) error {
	n.log.Info("booked",
		zap.String("doctor", doctor.Email),
		zap.String("patient", patient.Email),
		zap.Stringer("window", w),
		zap.Int("extra_minutes", extraMinutes),
		zap.String("status", string(status)),
	)
	return nil
}

func (n *LogNotifier) NotifyConfirmed(_ context.Context, patient Party, w appointment.Window) error {
	n.log.Info("confirmed", zap.String("patient", patient.Email), zap.Stringer("window", w))
	return nil
}

func (n *LogNotifier) NotifyCancelledByClinic(_ context.Context, patient Party, w appointment.Window) error {
	n.log.Info("cancelled by clinic", zap.String("patient", patient.Email), zap.Stringer("window", w))
	return nil
}

func (n *LogNotifier) NotifyCancelledBySelf(_ context.Context, patient Party, w appointment.Window, reopenedSlot bool) error {
	n.log.Info("cancelled by self",
		zap.String("patient", patient.Email), zap.Stringer("window", w), zap.Bool("reopened_slot", reopenedSlot))
	return nil
}

func (n *LogNotifier) NotifyCancelledByPatient(_ context.Context, doctor, patient Party, w appointment.Window, reopenedSlot bool) error {
	n.log.Info("cancelled by patient",
		zap.String("doctor", doctor.Email),
		zap.String("patient", patient.Email),
		zap.Stringer("window", w),
		zap.Bool("reopened_slot", reopenedSlot),
	)
	return nil
}
