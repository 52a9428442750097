package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Observer receives engine outcomes for metrics.
type Observer interface {
	ObserveReservation(outcome string)
	ObserveStatusChange(to Status, reopenedSlot bool)
}

type noopObserver struct{}

func (noopObserver) ObserveReservation(string) {}
func (noopObserver) ObserveStatusChange(Status, bool) {}

// SystemActor is used by background jobs acting on behalf of the clinic.
var SystemActor = Actor{ID: uuid.Nil, Role: RoleAdmin}

type Service struct {
	store        Store
	entitlements EntitlementChecker
	events       EventPublisher
	observer     Observer
	log          *zap.Logger
	now          func() time.Time
}

type Option func(*Service)

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, entitlements EntitlementChecker, events EventPublisher, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		entitlements: entitlements,
		events:       events,
		observer:     noopObserver{},
		log:          log,
		now:          time.Now,
	}
	if s.events == nil {
		s.events = discardPublisher{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quote is a priced, fitted booking request that has not been committed.
type Quote struct {
	Slot    Slot
	Profile PricingProfile
	Price   Price
	Window  Window
}

// Quote prices extraMinutes against a slot and checks that the result fits inside it.
// Nothing is mutated.
func (s *Service) Quote(ctx context.Context, slotID uuid.UUID, extraMinutes int) (*Quote, error) {
	if _, err := ComputePrice(PricingProfile{}, extraMinutes); err != nil {
		return nil, err
	}

	slot, err := s.store.GetSlot(ctx, slotID)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load slot: %w", err)
	}

	profile, err := s.store.GetPricingProfile(ctx, slot.DoctorID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			s.log.Error("pricing profile missing for doctor with open slots",
				zap.Stringer("doctor_id", slot.DoctorID), zap.Stringer("slot_id", slot.ID))
			return nil, ErrConfiguration
		}
		return nil, fmt.Errorf("load pricing profile: %w", err)
	}

	// Compared in whole minutes so huge requests cannot wrap the duration into the slot.
	if extraMinutes > slot.Window.Minutes()-profile.BaseDurationMinutes {
		return nil, ErrDurationExceedsSlot
	}

	price, err := ComputePrice(*profile, extraMinutes)
	if err != nil {
		return nil, err
	}

	minutes := profile.BaseDurationMinutes + extraMinutes
	window, err := NewWindow(slot.Window.Start, slot.Window.Start.Add(time.Duration(minutes)*time.Minute))
	if err != nil {
		return nil, err
	}

	return &Quote{Slot: *slot, Profile: *profile, Price: price, Window: window}, nil
}

// Reserve books slotID for the calling patient. Pre-checks fail fast without mutating anything;
// the transactional re-read of the slot is what guarantees at most one booking per slot.
func (s *Service) Reserve(ctx context.Context, actor Actor, slotID uuid.UUID, extraMinutes int) (*Appointment, error) {
	appt, err := s.reserve(ctx, actor, slotID, extraMinutes)
	s.observer.ObserveReservation(reservationOutcome(err))
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment booked",
		zap.Stringer("appointment_id", appt.ID),
		zap.Stringer("slot_id", slotID),
		zap.Stringer("doctor_id", appt.DoctorID),
		zap.String("status", string(appt.Status)),
		zap.Int64("total_price_kobo", appt.TotalPriceKobo),
	)
	s.events.Publish(Event{Kind: EventBooked, Appointment: *appt, OccurredAt: s.now()})

	return appt, nil
}

func (s *Service) reserve(ctx context.Context, actor Actor, slotID uuid.UUID, extraMinutes int) (*Appointment, error) {
	if actor.Role != RolePatient {
		return nil, fmt.Errorf("%w: only patients can book appointments", ErrForbidden)
	}

	active, err := s.entitlements.HasActiveEntitlement(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("check entitlement: %w", err)
	}
	if !active {
		return nil, ErrEntitlementRequired
	}

	q, err := s.Quote(ctx, slotID, extraMinutes)
	if err != nil {
		return nil, err
	}

	clash, err := s.store.FindOverlappingAppointments(ctx, q.Slot.DoctorID, q.Window)
	if err != nil {
		return nil, fmt.Errorf("check overlapping appointments: %w", err)
	}
	if len(clash) > 0 {
		return nil, ErrSlotConflict
	}

	var created *Appointment

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := tx.LockDoctor(ctx, q.Slot.DoctorID); err != nil {
			return fmt.Errorf("lock doctor availability: %w", err)
		}

		// Inside the transaction re-read the slot: a concurrent booking may have consumed it.
		if _, err := tx.GetSlotForUpdate(ctx, slotID); err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return ErrSlotAlreadyTaken
			}
			return fmt.Errorf("re-read slot: %w", err)
		}

		clash, err := tx.FindOverlappingAppointments(ctx, q.Slot.DoctorID, q.Window)
		if err != nil {
			return fmt.Errorf("re-check overlapping appointments: %w", err)
		}
		if len(clash) > 0 {
			return ErrSlotConflict
		}

		appt, err := tx.CreateAppointment(ctx, &Appointment{
			PatientID:           actor.ID,
			DoctorID:            q.Slot.DoctorID,
			Window:              q.Window,
			BaseDurationMinutes: q.Profile.BaseDurationMinutes,
			ExtraMinutes:        extraMinutes,
			ExtraBlocks:         q.Price.ExtraBlocks,
			TotalPriceKobo:      q.Price.TotalPriceKobo,
			Status:              InitialStatus(q.Price.TotalPriceKobo),
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		if err := tx.DeleteSlot(ctx, slotID); err != nil {
			if errors.Is(err, ErrSlotNotFound) {
				return ErrSlotAlreadyTaken
			}
			return fmt.Errorf("consume slot: %w", err)
		}

		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func reservationOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrSlotAlreadyTaken):
		return "slot_already_taken"
	case errors.Is(err, ErrSlotConflict):
		return "conflict"
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrEntitlementRequired):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrDurationExceedsSlot), errors.Is(err, ErrInvalidWindow):
		return "invalid"
	default:
		return "error"
	}
}

// ChangeStatus moves an appointment through the state machine. Cancelling reopens the
// appointment's window as a slot unless an existing slot of the doctor already overlaps it.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, target Status, actor Actor) (*ChangeResult, error) {
	if actor.Role != RolePatient && !actor.IsStaff() {
		return nil, ErrForbidden
	}

	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if actor.Role == RolePatient {
		if appt.PatientID != actor.ID {
			return nil, fmt.Errorf("%w: appointment belongs to another patient", ErrForbidden)
		}
		if target != StatusCancelled {
			return nil, fmt.Errorf("%w: patients can only cancel appointments", ErrForbidden)
		}
	}

	if err := ValidateTransition(appt.Status, target); err != nil {
		return nil, err
	}

	var (
		result ChangeResult
		from   Status
	)

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("re-read appointment: %w", err)
		}
		if err := ValidateTransition(current.Status, target); err != nil {
			return err
		}
		from = current.Status

		updated, err := tx.UpdateAppointmentStatus(ctx, id, current.Status, target)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
			}
			return fmt.Errorf("update status: %w", err)
		}
		result.Appointment = updated

		if target == StatusCancelled {
			reopened, err := reopenSlot(ctx, tx, updated)
			if err != nil {
				return err
			}
			result.ReopenedSlot = reopened
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.observer.ObserveStatusChange(target, result.ReopenedSlot)
	s.log.Info("appointment status changed",
		zap.Stringer("appointment_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
		zap.Bool("reopened_slot", result.ReopenedSlot),
		zap.String("actor_role", string(actor.Role)),
	)

	s.events.Publish(Event{
		Kind:         statusEventKind(target, actor),
		Appointment:  *result.Appointment,
		ReopenedSlot: result.ReopenedSlot,
		OccurredAt:   s.now(),
	})

	return &result, nil
}

// Cancel is the patient-facing cancellation.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*ChangeResult, error) {
	return s.ChangeStatus(ctx, id, StatusCancelled, actor)
}

// reopenSlot only looks at existing slots, not at other appointments, when deciding to reopen.
func reopenSlot(ctx context.Context, tx Repository, appt *Appointment) (bool, error) {
	if err := tx.LockDoctor(ctx, appt.DoctorID); err != nil {
		return false, fmt.Errorf("lock doctor availability: %w", err)
	}

	existing, err := tx.FindOverlappingSlots(ctx, appt.DoctorID, appt.Window)
	if err != nil {
		return false, fmt.Errorf("check overlapping slots: %w", err)
	}
	if len(existing) > 0 {
		return false, nil
	}

	if _, err := tx.CreateSlot(ctx, appt.DoctorID, appt.Window); err != nil {
		return false, fmt.Errorf("reopen slot: %w", err)
	}
	return true, nil
}

func statusEventKind(target Status, actor Actor) EventKind {
	switch target {
	case StatusConfirmed:
		return EventConfirmed
	case StatusCompleted:
		return EventCompleted
	default:
		if actor.Role == RolePatient {
			return EventCancelledByPatient
		}
		return EventCancelledByClinic
	}
}

// ExpireStalePending cancels PENDING_PAYMENT appointments created more than ttl ago.
// It is intended to be called by the worker periodically.
func (s *Service) ExpireStalePending(ctx context.Context, ttl time.Duration) (int, error) {
	stale, err := s.store.FindStalePending(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	expired := 0
	for _, appt := range stale {
		_, err := s.ChangeStatus(ctx, appt.ID, StatusCancelled, SystemActor)
		if err != nil {
			// Confirmed or cancelled by someone else since the scan.
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			s.log.Warn("failed to expire pending appointment", zap.Stringer("appointment_id", appt.ID), zap.Error(err))
			continue
		}
		expired++
	}

	return expired, nil
}
