package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

func availableSlotsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := parseSlotFilter(w, r)
		if !ok {
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, slotList(slots))
	}
}

func quoteHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		slotID, err := uuid.Parse(q.Get("slot_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		extra := 0
		if raw := q.Get("extra_minutes"); raw != "" {
			extra, err = strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_duration", "extra_minutes must be an integer")
				return
			}
		}

		quote, err := svc.Quote(r.Context(), slotID, extra)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, QuoteResponse{
			SlotID:              quote.Slot.ID,
			DoctorID:            quote.Slot.DoctorID,
			StartTime:           quote.Window.Start,
			EndTime:             quote.Window.End,
			BaseDurationMinutes: quote.Profile.BaseDurationMinutes,
			ExtraMinutes:        extra,
			ExtraBlocks:         quote.Price.ExtraBlocks,
			TotalPriceKobo:      quote.Price.TotalPriceKobo,
			InitialStatus:       string(appointment.InitialStatus(quote.Price.TotalPriceKobo)),
		})
	}
}

func reserveHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReserveRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		slotID := uuid.MustParse(req.SlotID)

		actor, _ := ActorFrom(r.Context())
		appt, err := svc.Reserve(r.Context(), actor, slotID, req.ExtraMinutes)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}

		actor, _ := ActorFrom(r.Context())
		appt, err := svc.GetAppointment(r.Context(), actor, id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := parseAppointmentFilter(w, r)
		if !ok {
			return
		}

		actor, _ := ActorFrom(r.Context())
		appts, err := svc.ListAppointments(r.Context(), actor, f)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		items := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			items = append(items, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{Items: items, Count: len(items)})
	}
}

func cancelAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}
		var req CancelRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		actor, _ := ActorFrom(r.Context())
		res, err := svc.Cancel(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusChangeResponse{
			Appointment:  toAppointmentResponse(res.Appointment),
			ReopenedSlot: res.ReopenedSlot,
		})
	}
}

func changeStatusHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_appointment_id")
		if !ok {
			return
		}
		var req ChangeStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		target, err := appointment.ParseStatus(req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}

		actor, _ := ActorFrom(r.Context())
		res, err := svc.ChangeStatus(r.Context(), id, target, actor)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, StatusChangeResponse{
			Appointment:  toAppointmentResponse(res.Appointment),
			ReopenedSlot: res.ReopenedSlot,
		})
	}
}

func listSlotsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := parseSlotFilter(w, r)
		if !ok {
			return
		}

		actor, _ := ActorFrom(r.Context())
		slots, err := svc.ListSlots(r.Context(), actor, f)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, slotList(slots))
	}
}

func createSlotHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		window, err := appointment.NewWindow(req.StartTime, req.EndTime)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		actor, _ := ActorFrom(r.Context())
		slot, err := svc.CreateSlot(r.Context(), actor, uuid.MustParse(req.DoctorID), window)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
	}
}

func deleteSlotHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "invalid_slot_id")
		if !ok {
			return
		}

		actor, _ := ActorFrom(r.Context())
		if err := svc.DeleteSlot(r.Context(), actor, id); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func pathID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func slotList(slots []appointment.Slot) ListResponse[SlotResponse] {
	items := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		items = append(items, toSlotResponse(s))
	}
	return ListResponse[SlotResponse]{Items: items, Count: len(items)}
}

func parsePage(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	var err error
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return 0, 0, false
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
			return 0, 0, false
		}
	}
	return limit, offset, true
}

func parseSlotFilter(w http.ResponseWriter, r *http.Request) (appointment.SlotFilter, bool) {
	var f appointment.SlotFilter
	q := r.URL.Query()

	if raw := q.Get("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return f, false
		}
		f.DoctorID = &id
	}
	for name, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be an RFC3339 timestamp")
			return f, false
		}
		t = t.UTC()
		*dst = &t
	}

	var ok bool
	f.Limit, f.Offset, ok = parsePage(w, r)
	return f, ok
}

func parseAppointmentFilter(w http.ResponseWriter, r *http.Request) (appointment.AppointmentFilter, bool) {
	var f appointment.AppointmentFilter
	q := r.URL.Query()

	if raw := q.Get("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return f, false
		}
		f.DoctorID = &id
	}
	if raw := q.Get("status"); raw != "" {
		st, err := appointment.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return f, false
		}
		f.Status = &st
	}

	var ok bool
	f.Limit, f.Offset, ok = parsePage(w, r)
	return f, ok
}
