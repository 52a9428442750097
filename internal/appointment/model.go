package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
	RoleAdmin   Role = "ADMIN"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// IsStaff reports whether the actor may manage availability and appointment status.
func (a Actor) IsStaff() bool {
	return a.Role == RoleDoctor || a.Role == RoleAdmin
}

// Slot is an open, unbooked window offered by a doctor.
type Slot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Window    Window
	CreatedAt time.Time
}

// PricingProfile is read-only input to ComputePrice.
type PricingProfile struct {
	DoctorID            uuid.UUID
	BaseDurationMinutes int
	BasePriceKobo       int64
	ExtraBlockPriceKobo int64 // per ExtraBlockMinutes increment
}

type Appointment struct {
	ID                  uuid.UUID
	PatientID           uuid.UUID
	DoctorID            uuid.UUID
	Window              Window
	BaseDurationMinutes int
	ExtraMinutes        int
	ExtraBlocks         int
	TotalPriceKobo      int64
	Status              Status
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsActive reports whether the appointment still holds its window.
func (a *Appointment) IsActive() bool {
	return a.Status != StatusCancelled
}

type SlotFilter struct {
	DoctorID *uuid.UUID
	From     *time.Time // slots starting after From
	To       *time.Time // slots starting before To
	Limit    int
	Offset   int
}

type AppointmentFilter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    *Status
	Limit     int
	Offset    int
}

// ChangeResult is the outcome of a status change.
type ChangeResult struct {
	Appointment  *Appointment
	ReopenedSlot bool
}
