package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

// AppointmentService is the engine surface the HTTP layer needs.
type AppointmentService interface {
	Quote(ctx context.Context, slotID uuid.UUID, extraMinutes int) (*appointment.Quote, error)
	Reserve(ctx context.Context, actor appointment.Actor, slotID uuid.UUID, extraMinutes int) (*appointment.Appointment, error)
	ChangeStatus(ctx context.Context, id uuid.UUID, target appointment.Status, actor appointment.Actor) (*appointment.ChangeResult, error)
	Cancel(ctx context.Context, id uuid.UUID, actor appointment.Actor) (*appointment.ChangeResult, error)
	GetAppointment(ctx context.Context, actor appointment.Actor, id uuid.UUID) (*appointment.Appointment, error)
	ListAppointments(ctx context.Context, actor appointment.Actor, f appointment.AppointmentFilter) ([]appointment.Appointment, error)
	CreateSlot(ctx context.Context, actor appointment.Actor, doctorID uuid.UUID, w appointment.Window) (*appointment.Slot, error)
	DeleteSlot(ctx context.Context, actor appointment.Actor, id uuid.UUID) error
	ListSlots(ctx context.Context, actor appointment.Actor, f appointment.SlotFilter) ([]appointment.Slot, error)
	AvailableSlots(ctx context.Context, f appointment.SlotFilter) ([]appointment.Slot, error)
}

var _ AppointmentService = (*appointment.Service)(nil)

type RouterConfig struct {
	Service   AppointmentService
	Logger    *zap.Logger
	JWTSecret []byte

	// Store and Redis are probed by /health/ready; either may be nil.
	Store Pinger
	Redis Pinger

	// Metrics is optional. When set its middleware wraps every route and Handler serves /metrics.
	Metrics interface {
		Middleware(http.Handler) http.Handler
		Handler() http.Handler
	}

	BookingRateLimit int // per minute per IP, 0 disables
	AllowedOrigins   []string
	Env              string
	Version          string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	svc := cfg.Service

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(RecoverMiddleware(log))
	r.Use(LoggingMiddleware(log))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	health := NewHealthHandler(cfg.Store, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}

	// Public availability and pricing
	r.Get("/slots", availableSlotsHandler(svc, log))
	r.Get("/quote", quoteHandler(svc, log))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Group(func(r chi.Router) {
			if cfg.BookingRateLimit > 0 {
				r.Use(httprate.LimitByIP(cfg.BookingRateLimit, time.Minute))
			}
			r.Post("/appointments", reserveHandler(svc, log))
		})
		r.Get("/appointments/{id}", getAppointmentHandler(svc, log))

		r.Get("/me/appointments", listAppointmentsHandler(svc, log))
		r.Patch("/me/appointments/{id}", cancelAppointmentHandler(svc, log))

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireStaff)

			r.Get("/slots", listSlotsHandler(svc, log))
			r.Post("/slots", createSlotHandler(svc, log))
			r.Delete("/slots/{id}", deleteSlotHandler(svc, log))

			r.Get("/appointments", listAppointmentsHandler(svc, log))
			r.Patch("/appointments/{id}", changeStatusHandler(svc, log))
		})
	})

	return r
}
