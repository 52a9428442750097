package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all store interactions needed by the engines.
// The same interface is served outside a transaction and, through Store.WithinTx, inside one.
type Repository interface {
	// Availability
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	// GetSlotForUpdate re-reads a slot and holds it until the surrounding transaction ends.
	GetSlotForUpdate(ctx context.Context, id uuid.UUID) (*Slot, error)
	FindOverlappingSlots(ctx context.Context, doctorID uuid.UUID, w Window) ([]Slot, error)
	CreateSlot(ctx context.Context, doctorID uuid.UUID, w Window) (*Slot, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	ListSlots(ctx context.Context, f SlotFilter) ([]Slot, error)

	GetPricingProfile(ctx context.Context, doctorID uuid.UUID) (*PricingProfile, error)

	// Appointments
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// FindOverlappingAppointments returns non-cancelled appointments of the doctor overlapping w.
	FindOverlappingAppointments(ctx context.Context, doctorID uuid.UUID, w Window) ([]Appointment, error)
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	// UpdateAppointmentStatus is a compare-and-set on the current status; a mismatch yields ErrAppointmentNotFound.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error)
	FindStalePending(ctx context.Context, createdBefore time.Time) ([]Appointment, error)

	// LockDoctor serializes availability writes for one doctor until the transaction ends.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
}

// Store is a Repository that can run a function inside one isolated transaction.
// Everything fn does through tx commits together or not at all.
type Store interface {
	Repository
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
}

// EntitlementChecker answers whether a patient currently holds an active subscription.
type EntitlementChecker interface {
	HasActiveEntitlement(ctx context.Context, patientID uuid.UUID) (bool, error)
}

// EventPublisher receives lifecycle events after commit. Publish must not block the caller.
type EventPublisher interface {
	Publish(ev Event)
}
