package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
	"github.com/hackgods/clinic-booking/internal/entitlement"
)

var secret = []byte("test-secret")

type fixture struct {
	router   http.Handler
	store    *appointment.MemoryStore
	checker  *entitlement.StaticChecker
	doctorID uuid.UUID
	patient  appointment.Actor
	admin    appointment.Actor
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	store := appointment.NewMemoryStore()
	store.SetClock(func() time.Time { return now })

	checker := entitlement.NewStaticChecker(false)
	svc := appointment.NewService(store, checker, nil, zap.NewNop(),
		appointment.WithClock(func() time.Time { return now }))

	f := &fixture{
		store:    store,
		checker:  checker,
		doctorID: uuid.New(),
		patient:  appointment.Actor{ID: uuid.New(), Role: appointment.RolePatient},
		admin:    appointment.Actor{ID: uuid.New(), Role: appointment.RoleAdmin},
		now:      now,
	}
	checker.Grant(f.patient.ID)
	store.PutProfile(appointment.PricingProfile{
		DoctorID:            f.doctorID,
		BaseDurationMinutes: 30,
		BasePriceKobo:       0,
		ExtraBlockPriceKobo: 1_000_000,
	})

	f.router = NewRouter(RouterConfig{
		Service:   svc,
		Logger:    zap.NewNop(),
		JWTSecret: secret,
	})
	return f
}

func (f *fixture) slot(t *testing.T, startHour, minutes int) appointment.Slot {
	t.Helper()
	start := time.Date(2025, 3, 10, startHour, 0, 0, 0, time.UTC)
	w, err := appointment.NewWindow(start, start.Add(time.Duration(minutes)*time.Minute))
	require.NoError(t, err)
	var created *appointment.Slot
	require.NoError(t, f.store.WithinTx(context.Background(), func(ctx context.Context, tx appointment.Repository) error {
		created, err = tx.CreateSlot(ctx, f.doctorID, w)
		return err
	}))
	return *created
}

func (f *fixture) do(t *testing.T, method, path string, actor *appointment.Actor, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := SignToken(secret, *actor, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestReserveFreeConsultationIsConfirmed(t *testing.T) {
	f := newFixture(t)
	slot := f.slot(t, 10, 30)

	rec := f.do(t, http.MethodPost, "/appointments", &f.patient, map[string]any{
		"slot_id":       slot.ID.String(),
		"extra_minutes": 0,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	resp := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "CONFIRMED", resp.Status)
	assert.Equal(t, int64(0), resp.TotalPriceKobo)
	assert.Equal(t, f.patient.ID, resp.PatientID)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	_, err := f.store.GetSlot(context.Background(), slot.ID)
	assert.True(t, errors.Is(err, appointment.ErrSlotNotFound))
}

func TestReserveErrorMapping(t *testing.T) {
	f := newFixture(t)
	slot := f.slot(t, 10, 30)
	outsider := appointment.Actor{ID: uuid.New(), Role: appointment.RolePatient}

	tests := []struct {
		name   string
		actor  *appointment.Actor
		body   map[string]any
		status int
		code   string
	}{
		{"missing token", nil, map[string]any{"slot_id": slot.ID.String()}, http.StatusUnauthorized, "unauthorized"},
		{"staff cannot book", &f.admin, map[string]any{"slot_id": slot.ID.String()}, http.StatusForbidden, "forbidden"},
		{"no subscription", &outsider, map[string]any{"slot_id": slot.ID.String()}, http.StatusForbidden, "entitlement_required"},
		{"bad slot id", &f.patient, map[string]any{"slot_id": "nope"}, http.StatusBadRequest, "validation_error"},
		{"unknown slot", &f.patient, map[string]any{"slot_id": uuid.NewString()}, http.StatusNotFound, "slot_not_found"},
		{"odd minutes", &f.patient, map[string]any{"slot_id": slot.ID.String(), "extra_minutes": 15}, http.StatusBadRequest, "invalid_duration"},
		{"too long", &f.patient, map[string]any{"slot_id": slot.ID.String(), "extra_minutes": 20}, http.StatusBadRequest, "duration_exceeds_slot"},
		{"huge minutes", &f.patient, map[string]any{"slot_id": slot.ID.String(), "extra_minutes": 450359962737049600}, http.StatusBadRequest, "duration_exceeds_slot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/appointments", tt.actor, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error)
		})
	}

	_, err := f.store.GetSlot(context.Background(), slot.ID)
	assert.NoError(t, err, "failed attempts must leave the slot in place")
}

func TestReserveSecondAttemptIsSlotNotFound(t *testing.T) {
	f := newFixture(t)
	slot := f.slot(t, 10, 30)
	body := map[string]any{"slot_id": slot.ID.String()}

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/appointments", &f.patient, body).Code)

	rec := f.do(t, http.MethodPost, "/appointments", &f.patient, body)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQuote(t *testing.T) {
	f := newFixture(t)
	slot := f.slot(t, 10, 60)

	rec := f.do(t, http.MethodGet, "/quote?slot_id="+slot.ID.String()+"&extra_minutes=20", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	q := decode[QuoteResponse](t, rec)
	assert.Equal(t, 2, q.ExtraBlocks)
	assert.Equal(t, int64(2_000_000), q.TotalPriceKobo)
	assert.Equal(t, "PENDING_PAYMENT", q.InitialStatus)
	assert.True(t, slot.Window.Start.Add(50*time.Minute).Equal(q.EndTime))
}

func TestAvailableSlotsOnlyFuture(t *testing.T) {
	f := newFixture(t)
	f.slot(t, 7, 30) // before the fixture clock
	upcoming := f.slot(t, 10, 30)

	rec := f.do(t, http.MethodGet, "/slots?doctor_id="+f.doctorID.String(), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[ListResponse[SlotResponse]](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, upcoming.ID, list.Items[0].ID)
}

func TestPatientCancelReopensSlot(t *testing.T) {
	f := newFixture(t)
	slot := f.slot(t, 10, 30)

	rec := f.do(t, http.MethodPost, "/appointments", &f.patient, map[string]any{"slot_id": slot.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[AppointmentResponse](t, rec)

	rec = f.do(t, http.MethodPatch, "/me/appointments/"+appt.ID.String(), &f.patient, map[string]any{"action": "CANCEL"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[StatusChangeResponse](t, rec)
	assert.Equal(t, "CANCELLED", resp.Appointment.Status)
	assert.True(t, resp.ReopenedSlot)

	rec = f.do(t, http.MethodPatch, "/me/appointments/"+appt.ID.String(), &f.patient, map[string]any{"action": "CANCEL"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", decode[ErrorResponse](t, rec).Error)
}

func TestPatientCannotTouchOthersAppointments(t *testing.T) {
	f := newFixture(t)
	slot := f.slot(t, 10, 30)

	rec := f.do(t, http.MethodPost, "/appointments", &f.patient, map[string]any{"slot_id": slot.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[AppointmentResponse](t, rec)

	other := appointment.Actor{ID: uuid.New(), Role: appointment.RolePatient}
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/appointments/"+appt.ID.String(), &other, nil).Code)
	assert.Equal(t, http.StatusForbidden,
		f.do(t, http.MethodPatch, "/me/appointments/"+appt.ID.String(), &other, map[string]any{"action": "CANCEL"}).Code)

	rec = f.do(t, http.MethodGet, "/me/appointments", &other, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[ListResponse[AppointmentResponse]](t, rec).Count)
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/admin/slots", &f.patient, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminSlotLifecycle(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)

	body := map[string]any{
		"doctor_id":  f.doctorID.String(),
		"start_time": start,
		"end_time":   start.Add(time.Hour),
	}
	rec := f.do(t, http.MethodPost, "/admin/slots", &f.admin, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[SlotResponse](t, rec)
	assert.Equal(t, 60, created.DurationMinutes)

	body["start_time"] = start.Add(30 * time.Minute)
	body["end_time"] = start.Add(90 * time.Minute)
	rec = f.do(t, http.MethodPost, "/admin/slots", &f.admin, body)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "overlap_rejected", decode[ErrorResponse](t, rec).Error)

	body["end_time"] = body["start_time"]
	rec = f.do(t, http.MethodPost, "/admin/slots", &f.admin, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_window", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodPost, "/admin/slots", &f.admin, map[string]any{
		"doctor_id":  uuid.NewString(),
		"start_time": start,
		"end_time":   start.Add(time.Hour),
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "configuration_error", decode[ErrorResponse](t, rec).Error)

	rec = f.do(t, http.MethodDelete, "/admin/slots/"+created.ID.String(), &f.admin, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, "/admin/slots/"+created.ID.String(), &f.admin, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminStatusChanges(t *testing.T) {
	f := newFixture(t)
	slot := f.slot(t, 10, 30)

	rec := f.do(t, http.MethodPost, "/appointments", &f.patient, map[string]any{"slot_id": slot.ID.String()})
	require.Equal(t, http.StatusCreated, rec.Code)
	appt := decode[AppointmentResponse](t, rec)
	path := "/admin/appointments/" + appt.ID.String()

	rec = f.do(t, http.MethodPatch, path, &f.admin, map[string]any{"status": "COMPLETED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "COMPLETED", decode[StatusChangeResponse](t, rec).Appointment.Status)

	rec = f.do(t, http.MethodPatch, path, &f.admin, map[string]any{"status": "CANCELLED"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPatch, path, &f.admin, map[string]any{"status": "ARCHIVED"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/appointments?status=COMPLETED", &f.admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ListResponse[AppointmentResponse]](t, rec).Count)
}

func TestInvalidTokenRejected(t *testing.T) {
	f := newFixture(t)

	token, err := SignToken([]byte("other-secret"), f.patient, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthReadiness(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("down") })
	up := PingFunc(func(context.Context) error { return nil })

	tests := []struct {
		name   string
		store  Pinger
		redis  Pinger
		status int
		want   string
	}{
		{"all up", up, up, http.StatusOK, "ok"},
		{"memory store without redis", nil, nil, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"store down", down, up, http.StatusServiceUnavailable, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.store, tt.redis, "test", "v0")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.want, decode[ReadinessResponse](t, rec).Status)
		})
	}
}
