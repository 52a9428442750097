package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. A transaction holds the store mutex for its whole
// duration and works on a copy that replaces the live data only when fn succeeds, which
// gives serializable isolation and all-or-nothing commits.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	slots        map[uuid.UUID]Slot
	profiles     map[uuid.UUID]PricingProfile
	appointments map[uuid.UUID]Appointment
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &memData{
			slots:        make(map[uuid.UUID]Slot),
			profiles:     make(map[uuid.UUID]PricingProfile),
			appointments: make(map[uuid.UUID]Appointment),
			now:          time.Now,
		},
	}
}

// SetClock replaces the clock used for created/updated timestamps.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.now = now
}

// PutProfile creates or replaces a doctor's pricing profile.
func (s *MemoryStore) PutProfile(p PricingProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.profiles[p.DoctorID] = p
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.data.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.data = work
	return nil
}

func view[T any](s *MemoryStore, fn func(d *memData) (T, error)) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func (s *MemoryStore) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return view(s, func(d *memData) (*Slot, error) { return d.GetSlot(ctx, id) })
}

func (s *MemoryStore) GetSlotForUpdate(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return view(s, func(d *memData) (*Slot, error) { return d.GetSlotForUpdate(ctx, id) })
}

func (s *MemoryStore) FindOverlappingSlots(ctx context.Context, doctorID uuid.UUID, w Window) ([]Slot, error) {
	return view(s, func(d *memData) ([]Slot, error) { return d.FindOverlappingSlots(ctx, doctorID, w) })
}

func (s *MemoryStore) CreateSlot(ctx context.Context, doctorID uuid.UUID, w Window) (*Slot, error) {
	return view(s, func(d *memData) (*Slot, error) { return d.CreateSlot(ctx, doctorID, w) })
}

func (s *MemoryStore) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	_, err := view(s, func(d *memData) (struct{}, error) { return struct{}{}, d.DeleteSlot(ctx, id) })
	return err
}

func (s *MemoryStore) ListSlots(ctx context.Context, f SlotFilter) ([]Slot, error) {
	return view(s, func(d *memData) ([]Slot, error) { return d.ListSlots(ctx, f) })
}

func (s *MemoryStore) GetPricingProfile(ctx context.Context, doctorID uuid.UUID) (*PricingProfile, error) {
	return view(s, func(d *memData) (*PricingProfile, error) { return d.GetPricingProfile(ctx, doctorID) })
}

func (s *MemoryStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return view(s, func(d *memData) (*Appointment, error) { return d.GetAppointment(ctx, id) })
}

func (s *MemoryStore) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return view(s, func(d *memData) (*Appointment, error) { return d.GetAppointmentForUpdate(ctx, id) })
}

func (s *MemoryStore) FindOverlappingAppointments(ctx context.Context, doctorID uuid.UUID, w Window) ([]Appointment, error) {
	return view(s, func(d *memData) ([]Appointment, error) { return d.FindOverlappingAppointments(ctx, doctorID, w) })
}

func (s *MemoryStore) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	return view(s, func(d *memData) (*Appointment, error) { return d.CreateAppointment(ctx, a) })
}

func (s *MemoryStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	return view(s, func(d *memData) (*Appointment, error) { return d.UpdateAppointmentStatus(ctx, id, from, to) })
}

func (s *MemoryStore) ListAppointments(ctx context.Context, f AppointmentFilter) ([]Appointment, error) {
	return view(s, func(d *memData) ([]Appointment, error) { return d.ListAppointments(ctx, f) })
}

func (s *MemoryStore) FindStalePending(ctx context.Context, createdBefore time.Time) ([]Appointment, error) {
	return view(s, func(d *memData) ([]Appointment, error) { return d.FindStalePending(ctx, createdBefore) })
}

func (s *MemoryStore) LockDoctor(context.Context, uuid.UUID) error {
	return nil
}

// memData

func (d *memData) clone() *memData {
	c := &memData{
		slots:        make(map[uuid.UUID]Slot, len(d.slots)),
		profiles:     make(map[uuid.UUID]PricingProfile, len(d.profiles)),
		appointments: make(map[uuid.UUID]Appointment, len(d.appointments)),
		now:          d.now,
	}
	for k, v := range d.slots {
		c.slots[k] = v
	}
	for k, v := range d.profiles {
		c.profiles[k] = v
	}
	for k, v := range d.appointments {
		c.appointments[k] = v
	}
	return c
}

func (d *memData) GetSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	sl, ok := d.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &sl, nil
}

func (d *memData) GetSlotForUpdate(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return d.GetSlot(ctx, id)
}

func (d *memData) FindOverlappingSlots(_ context.Context, doctorID uuid.UUID, w Window) ([]Slot, error) {
	var out []Slot
	for _, sl := range d.slots {
		if sl.DoctorID == doctorID && sl.Window.Overlaps(w) {
			out = append(out, sl)
		}
	}
	sortSlots(out)
	return out, nil
}

func (d *memData) CreateSlot(_ context.Context, doctorID uuid.UUID, w Window) (*Slot, error) {
	sl := Slot{ID: uuid.New(), DoctorID: doctorID, Window: w, CreatedAt: d.now().UTC()}
	d.slots[sl.ID] = sl
	return &sl, nil
}

func (d *memData) DeleteSlot(_ context.Context, id uuid.UUID) error {
	if _, ok := d.slots[id]; !ok {
		return ErrSlotNotFound
	}
	delete(d.slots, id)
	return nil
}

func (d *memData) ListSlots(_ context.Context, f SlotFilter) ([]Slot, error) {
	var out []Slot
	for _, sl := range d.slots {
		if f.DoctorID != nil && sl.DoctorID != *f.DoctorID {
			continue
		}
		if f.From != nil && !sl.Window.Start.After(*f.From) {
			continue
		}
		if f.To != nil && !sl.Window.Start.Before(*f.To) {
			continue
		}
		out = append(out, sl)
	}
	sortSlots(out)
	return page(out, f.Limit, f.Offset), nil
}

func (d *memData) GetPricingProfile(_ context.Context, doctorID uuid.UUID) (*PricingProfile, error) {
	p, ok := d.profiles[doctorID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return &p, nil
}

func (d *memData) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := d.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (d *memData) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return d.GetAppointment(ctx, id)
}

func (d *memData) FindOverlappingAppointments(_ context.Context, doctorID uuid.UUID, w Window) ([]Appointment, error) {
	var out []Appointment
	for _, a := range d.appointments {
		if a.DoctorID == doctorID && a.IsActive() && a.Window.Overlaps(w) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (d *memData) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	now := d.now().UTC()
	created := *a
	created.ID = uuid.New()
	created.CreatedAt = now
	created.UpdatedAt = now
	d.appointments[created.ID] = created
	return &created, nil
}

func (d *memData) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	a, ok := d.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = d.now().UTC()
	d.appointments[id] = a
	return &a, nil
}

func (d *memData) ListAppointments(_ context.Context, f AppointmentFilter) ([]Appointment, error) {
	var out []Appointment
	for _, a := range d.appointments {
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)
	return page(out, f.Limit, f.Offset), nil
}

func (d *memData) FindStalePending(_ context.Context, createdBefore time.Time) ([]Appointment, error) {
	var out []Appointment
	for _, a := range d.appointments {
		if a.Status == StatusPendingPayment && a.CreatedAt.Before(createdBefore) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

func (d *memData) LockDoctor(context.Context, uuid.UUID) error {
	return nil
}

func sortSlots(s []Slot) {
	sort.Slice(s, func(i, j int) bool { return s[i].Window.Start.Before(s[j].Window.Start) })
}

func sortAppointments(a []Appointment) {
	sort.Slice(a, func(i, j int) bool { return a[i].Window.Start.Before(a[j].Window.Start) })
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
