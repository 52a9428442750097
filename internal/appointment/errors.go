package appointment

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

var (
	ErrSlotNotFound        = fmt.Errorf("slot %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)
	ErrProfileNotFound     = fmt.Errorf("doctor pricing profile %w", ErrNotFound)
)

var (
	ErrForbidden           = errors.New("forbidden")
	ErrEntitlementRequired = errors.New("an active subscription is required to book a consultation")
	ErrInvalidWindow       = errors.New("invalid time window")
	ErrInvalidDuration     = errors.New("invalid extra duration")
	ErrDurationExceedsSlot = errors.New("selected duration exceeds the available slot")
	ErrSlotConflict        = errors.New("this time is already booked")
	ErrSlotAlreadyTaken    = errors.New("slot was just booked by someone else, please pick another")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrOverlapRejected     = errors.New("availability overlaps with an existing slot")

	// ErrConfiguration signals a data setup defect, not a user error.
	ErrConfiguration = errors.New("doctor profile not configured")
)
