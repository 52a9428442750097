package appointment_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/db"
	"github.com/hackgods/clinic-booking/internal/entitlement"
)

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, db.DefaultPoolConfig)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = db.Migrate(ctx, pool)
	require.NoError(t, err)
	return pool
}

func insertUser(t *testing.T, pool *pgxpool.Pool, role appointment.Role) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, name, surname, email, role) VALUES ($1, 'Test', 'User', $2, $3)
	`, id, id.String()+"@test.local", string(role))
	require.NoError(t, err)
	return id
}

func TestPgStoreReservationRace(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	doctor := insertUser(t, pool, appointment.RoleDoctor)
	_, err := pool.Exec(ctx, `
		INSERT INTO doctor_profiles (user_id, base_duration_minutes, base_price_kobo, extra_block_price_kobo)
		VALUES ($1, 30, 0, 1000000)
	`, doctor)
	require.NoError(t, err)

	store := appointment.NewPgStore(pool)
	checker := entitlement.NewStaticChecker(true)
	svc := appointment.NewService(store, checker, nil, zap.NewNop())
	admin := appointment.Actor{ID: uuid.New(), Role: appointment.RoleAdmin}

	start := time.Now().UTC().Add(48 * time.Hour).Truncate(time.Hour)
	w, err := appointment.NewWindow(start, start.Add(30*time.Minute))
	require.NoError(t, err)

	slot, err := svc.CreateSlot(ctx, admin, doctor, w)
	require.NoError(t, err)

	_, err = svc.CreateSlot(ctx, admin, doctor, w)
	require.ErrorIs(t, err, appointment.ErrOverlapRejected)

	const racers = 8
	patients := make([]uuid.UUID, racers)
	for i := range patients {
		patients[i] = insertUser(t, pool, appointment.RolePatient)
	}

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := range patients {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := appointment.Actor{ID: patients[i], Role: appointment.RolePatient}
			_, errs[i] = svc.Reserve(ctx, actor, slot.ID, 0)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.True(t,
			errorsIsAny(err, appointment.ErrSlotAlreadyTaken, appointment.ErrSlotNotFound, appointment.ErrSlotConflict),
			"unexpected error: %v", err)
	}
	require.Equal(t, 1, created)

	doctorID := doctor
	appts, err := store.ListAppointments(ctx, appointment.AppointmentFilter{DoctorID: &doctorID})
	require.NoError(t, err)
	require.Len(t, appts, 1)

	res, err := svc.ChangeStatus(ctx, appts[0].ID, appointment.StatusCancelled, admin)
	require.NoError(t, err)
	assert.True(t, res.ReopenedSlot)

	reopened, err := store.FindOverlappingSlots(ctx, doctor, w)
	require.NoError(t, err)
	require.Len(t, reopened, 1)
	assert.True(t, reopened[0].Window.Start.Equal(w.Start))
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
