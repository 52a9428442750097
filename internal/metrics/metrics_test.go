package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

var _ appointment.Observer = (*Metrics)(nil)

func TestObserversIncrementCounters(t *testing.T) {
	m := New("clinic")

	m.ObserveReservation("created")
	m.ObserveReservation("created")
	m.ObserveReservation("slot_already_taken")
	m.ObserveStatusChange(appointment.StatusCancelled, true)
	m.ObserveNotification("booked", nil)
	m.ObserveNotification("booked", errors.New("down"))
	m.ObserveDropped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reservations.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reservations.WithLabelValues("slot_already_taken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statusChanges.WithLabelValues("CANCELLED", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("booked", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("booked", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New("clinic")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/appointments/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/appointments/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/appointments/{id}", "GET", "404")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "clinic_http_requests_total"))
}
