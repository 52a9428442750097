package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateSlot offers a new window for a doctor. Windows overlapping an existing slot of the
// same doctor are rejected.
func (s *Service) CreateSlot(ctx context.Context, actor Actor, doctorID uuid.UUID, w Window) (*Slot, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}

	if _, err := s.store.GetPricingProfile(ctx, doctorID); err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, fmt.Errorf("%w: create the doctor pricing profile first", ErrConfiguration)
		}
		return nil, fmt.Errorf("load pricing profile: %w", err)
	}

	var created *Slot

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.LockDoctor(ctx, doctorID); err != nil {
			return fmt.Errorf("lock doctor availability: %w", err)
		}

		overlap, err := tx.FindOverlappingSlots(ctx, doctorID, w)
		if err != nil {
			return fmt.Errorf("check overlapping slots: %w", err)
		}
		if len(overlap) > 0 {
			return ErrOverlapRejected
		}

		slot, err := tx.CreateSlot(ctx, doctorID, w)
		if err != nil {
			return fmt.Errorf("create slot: %w", err)
		}
		created = slot
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("slot created", zap.Stringer("slot_id", created.ID), zap.Stringer("doctor_id", doctorID),
		zap.Stringer("window", created.Window))
	return created, nil
}

func (s *Service) DeleteSlot(ctx context.Context, actor Actor, id uuid.UUID) error {
	if !actor.IsStaff() {
		return ErrForbidden
	}
	if err := s.store.DeleteSlot(ctx, id); err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return err
		}
		return fmt.Errorf("delete slot: %w", err)
	}
	return nil
}

// ListSlots returns every slot matching f. Staff only.
func (s *Service) ListSlots(ctx context.Context, actor Actor, f SlotFilter) ([]Slot, error) {
	if !actor.IsStaff() {
		return nil, ErrForbidden
	}
	f.Limit, f.Offset = normalizePage(f.Limit, f.Offset)
	slots, err := s.store.ListSlots(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// AvailableSlots lists bookable slots starting in the future, earliest first.
func (s *Service) AvailableSlots(ctx context.Context, f SlotFilter) ([]Slot, error) {
	now := s.now()
	if f.From == nil || f.From.Before(now) {
		f.From = &now
	}
	f.Limit, f.Offset = normalizePage(f.Limit, f.Offset)
	slots, err := s.store.ListSlots(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// GetAppointment loads one appointment; patients may only read their own.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !actor.IsStaff() && appt.PatientID != actor.ID {
		return nil, ErrForbidden
	}
	return appt, nil
}

// ListAppointments scopes patients to their own appointments.
func (s *Service) ListAppointments(ctx context.Context, actor Actor, f AppointmentFilter) ([]Appointment, error) {
	switch {
	case actor.Role == RolePatient:
		f.PatientID = &actor.ID
	case !actor.IsStaff():
		return nil, ErrForbidden
	}
	f.Limit, f.Offset = normalizePage(f.Limit, f.Offset)

	appts, err := s.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
