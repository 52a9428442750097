package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

var _ appointment.EventPublisher = (*Dispatcher)(nil)

// Observer is told about every delivery attempt and every dropped event.
type Observer interface {
	ObserveNotification(kind string, err error)
	ObserveDropped()
}

type noopObserver struct{}

func (noopObserver) ObserveNotification(string, error) {}
func (noopObserver) ObserveDropped()                   {}

// Dispatcher is the outbound event queue. Engines publish after commit; workers resolve
// the parties and call the Notifier. Failures are logged and dropped, never retried.
type Dispatcher struct {
	notifier Notifier
	dir      Directory
	log      *zap.Logger
	observer Observer
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan appointment.Event
	wg     sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// WithTimeout bounds a single delivery attempt.
func WithTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = t }
}

func NewDispatcher(n Notifier, dir Directory, log *zap.Logger, buffer int, opts ...DispatcherOption) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	d := &Dispatcher{
		notifier: n,
		dir:      dir,
		log:      log.Named("dispatcher"),
		observer: noopObserver{},
		timeout:  10 * time.Second,
		queue:    make(chan appointment.Event, buffer),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the workers. They exit once Close has drained the queue.
func (d *Dispatcher) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				d.deliver(ev)
			}
		}()
	}
}

// Publish never blocks: when the queue is full or closed the event is dropped.
func (d *Dispatcher) Publish(ev appointment.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ev, "dispatcher closed")
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.drop(ev, "queue full")
	}
}

func (d *Dispatcher) drop(ev appointment.Event, reason string) {
	d.observer.ObserveDropped()
	d.log.Warn("notification dropped",
		zap.String("reason", reason),
		zap.String("event", string(ev.Kind)),
		zap.Stringer("appointment_id", ev.Appointment.ID),
	)
}

// Close stops accepting events and waits for queued ones to be delivered or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain notifications: %w", ctx.Err())
	}
}

func (d *Dispatcher) deliver(ev appointment.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("notifier panicked", zap.String("event", string(ev.Kind)), zap.Any("panic", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	a := ev.Appointment

	switch ev.Kind {
	case appointment.EventBooked:
		doctor, patient, err := d.parties(ctx, a)
		if err != nil {
			d.report(ev, "booked", err)
			return
		}
		d.report(ev, "booked", d.notifier.NotifyBooked(ctx, doctor, patient, a.Window, a.ExtraMinutes, a.Status))

	case appointment.EventConfirmed:
		patient, err := d.dir.Party(ctx, a.PatientID)
		if err != nil {
			d.report(ev, "confirmed", fmt.Errorf("resolve patient: %w", err))
			return
		}
		d.report(ev, "confirmed", d.notifier.NotifyConfirmed(ctx, patient, a.Window))

	case appointment.EventCancelledByClinic:
		patient, err := d.dir.Party(ctx, a.PatientID)
		if err != nil {
			d.report(ev, "cancelled_by_clinic", fmt.Errorf("resolve patient: %w", err))
			return
		}
		d.report(ev, "cancelled_by_clinic", d.notifier.NotifyCancelledByClinic(ctx, patient, a.Window))

	case appointment.EventCancelledByPatient:
		doctor, patient, err := d.parties(ctx, a)
		if err != nil {
			d.report(ev, "cancelled_by_patient", err)
			return
		}
		d.report(ev, "cancelled_by_self",
			d.notifier.NotifyCancelledBySelf(ctx, patient, a.Window, ev.ReopenedSlot))
		d.report(ev, "cancelled_by_patient",
			d.notifier.NotifyCancelledByPatient(ctx, doctor, patient, a.Window, ev.ReopenedSlot))

	case appointment.EventCompleted:
		// nothing is sent for completed consultations
	}
}

func (d *Dispatcher) parties(ctx context.Context, a appointment.Appointment) (Party, Party, error) {
	doctor, doctorErr := d.dir.Party(ctx, a.DoctorID)
	if doctorErr != nil {
		doctorErr = fmt.Errorf("resolve doctor: %w", doctorErr)
	}
	patient, patientErr := d.dir.Party(ctx, a.PatientID)
	if patientErr != nil {
		patientErr = fmt.Errorf("resolve patient: %w", patientErr)
	}
	return doctor, patient, errors.Join(doctorErr, patientErr)
}

func (d *Dispatcher) report(ev appointment.Event, kind string, err error) {
	d.observer.ObserveNotification(kind, err)
	if err != nil {
		d.log.Warn("notification failed",
			zap.String("notification", kind),
			zap.String("event", string(ev.Kind)),
			zap.Stringer("appointment_id", ev.Appointment.ID),
			zap.Error(err),
		)
	}
}
