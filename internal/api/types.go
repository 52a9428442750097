package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/appointment"
)

type ReserveRequest struct {
	SlotID       string `json:"slot_id" validate:"required,uuid"`
	ExtraMinutes int    `json:"extra_minutes"`
}

type CreateSlotRequest struct {
	DoctorID  string    `json:"doctor_id" validate:"required,uuid"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING_PAYMENT CONFIRMED COMPLETED CANCELLED"`
}

type CancelRequest struct {
	Action string `json:"action" validate:"required,eq=CANCEL"`
}

type SlotResponse struct {
	ID              uuid.UUID `json:"id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
}

type AppointmentResponse struct {
	ID                  uuid.UUID `json:"id"`
	PatientID           uuid.UUID `json:"patient_id"`
	DoctorID            uuid.UUID `json:"doctor_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	BaseDurationMinutes int       `json:"base_duration_minutes"`
	ExtraMinutes        int       `json:"extra_minutes"`
	ExtraBlocks         int       `json:"extra_blocks"`
	TotalPriceKobo      int64     `json:"total_price_kobo"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type StatusChangeResponse struct {
	Appointment  AppointmentResponse `json:"appointment"`
	ReopenedSlot bool                `json:"reopened_slot"`
}

type QuoteResponse struct {
	SlotID              uuid.UUID `json:"slot_id"`
	DoctorID            uuid.UUID `json:"doctor_id"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	BaseDurationMinutes int       `json:"base_duration_minutes"`
	ExtraMinutes        int       `json:"extra_minutes"`
	ExtraBlocks         int       `json:"extra_blocks"`
	TotalPriceKobo      int64     `json:"total_price_kobo"`
	InitialStatus       string    `json:"initial_status"`
}

type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s appointment.Slot) SlotResponse {
	return SlotResponse{
		ID:              s.ID,
		DoctorID:        s.DoctorID,
		StartTime:       s.Window.Start,
		EndTime:         s.Window.End,
		DurationMinutes: s.Window.Minutes(),
	}
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                  a.ID,
		PatientID:           a.PatientID,
		DoctorID:            a.DoctorID,
		StartTime:           a.Window.Start,
		EndTime:             a.Window.End,
		BaseDurationMinutes: a.BaseDurationMinutes,
		ExtraMinutes:        a.ExtraMinutes,
		ExtraBlocks:         a.ExtraBlocks,
		TotalPriceKobo:      a.TotalPriceKobo,
		Status:              string(a.Status),
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}
