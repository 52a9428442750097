package appointment

import "time"

type EventKind string

const (
	EventBooked             EventKind = "APPOINTMENT_BOOKED"
	EventConfirmed          EventKind = "APPOINTMENT_CONFIRMED"
	EventCompleted          EventKind = "APPOINTMENT_COMPLETED"
	EventCancelledByClinic  EventKind = "APPOINTMENT_CANCELLED_BY_CLINIC"
	EventCancelledByPatient EventKind = "APPOINTMENT_CANCELLED_BY_PATIENT"
)

// Event is a committed lifecycle change handed to the outbound queue.
type Event struct {
	Kind         EventKind
	Appointment  Appointment
	ReopenedSlot bool
	OccurredAt   time.Time
}

type discardPublisher struct{}

func (discardPublisher) Publish(Event) {}
