package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/notify"
)

// demoSize controls how much fake data the in-memory store starts with.
type demoSize struct {
	Doctors        int
	Patients       int
	SlotsPerDoctor int
	SlotMinutes    int
}

var defaultDemoSize = demoSize{Doctors: 3, Patients: 5, SlotsPerDoctor: 8, SlotMinutes: 60}

type demoData struct {
	Admin    appointment.Actor
	Doctors  []uuid.UUID
	Patients []appointment.Actor
	Slots    int
}

// seedMemory fills an empty in-memory store so a memory-mode server can take bookings
// right away: doctors with pricing profiles and directory entries, patients, an admin,
// and slots from the next day at 09:00 UTC. Slots go through svc so overlap rules hold.
func seedMemory(ctx context.Context, svc *appointment.Service, store *appointment.MemoryStore,
	dir *notify.MemoryDirectory, faker *gofakeit.Faker, now time.Time, size demoSize) (demoData, error) {
	baseDurations := []int{15, 20, 30, 45}
	data := demoData{Admin: appointment.Actor{ID: uuid.New(), Role: appointment.RoleAdmin}}

	for i := 0; i < size.Doctors; i++ {
		id := uuid.New()
		dir.Put(fakeParty(faker, id))

		// The first doctor consults for free so confirmed bookings are possible without payment.
		basePrice := int64(0)
		if i > 0 {
			basePrice = int64(faker.Number(5, 50)) * 100_000
		}
		store.PutProfile(appointment.PricingProfile{
			DoctorID:            id,
			BaseDurationMinutes: baseDurations[faker.Number(0, len(baseDurations)-1)],
			BasePriceKobo:       basePrice,
			ExtraBlockPriceKobo: int64(faker.Number(1, 10)) * 100_000,
		})
		data.Doctors = append(data.Doctors, id)
	}

	for i := 0; i < size.Patients; i++ {
		id := uuid.New()
		dir.Put(fakeParty(faker, id))
		data.Patients = append(data.Patients, appointment.Actor{ID: id, Role: appointment.RolePatient})
	}

	day := now.UTC().Truncate(24 * time.Hour).Add(24*time.Hour + 9*time.Hour)
	length := time.Duration(size.SlotMinutes) * time.Minute
	perDay := 8

	for _, doctorID := range data.Doctors {
		for i := 0; i < size.SlotsPerDoctor; i++ {
			start := day.Add(time.Duration(i/perDay)*24*time.Hour + time.Duration(i%perDay)*length)
			w, err := appointment.NewWindow(start, start.Add(length))
			if err != nil {
				return data, err
			}
			if _, err := svc.CreateSlot(ctx, data.Admin, doctorID, w); err != nil {
				return data, fmt.Errorf("doctor %s: %w", doctorID, err)
			}
			data.Slots++
		}
	}
	return data, nil
}

func fakeParty(faker *gofakeit.Faker, id uuid.UUID) notify.Party {
	return notify.Party{
		ID:      id,
		Name:    faker.FirstName(),
		Surname: faker.LastName(),
		Email:   fmt.Sprintf("%s.%s@%s", faker.Username(), id.String()[:8], faker.DomainName()),
	}
}
