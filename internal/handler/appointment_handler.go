package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/fonomed/internal/model"
)

// AppointmentServiceInterface は予約ハンドラーが必要とするサービスインターフェース。
type AppointmentServiceInterface interface {
	List(ctx context.Context, actor *model.User) ([]*model.Appointment, error)
	Create(ctx context.Context, actor *model.User, input model.Appointment) (*model.Appointment, error)
	Update(ctx context.Context, actor *model.User, id string, patch model.AppointmentPatch) (*model.Appointment, error)
}

// AppointmentHandler は予約のHTTPハンドラー。
type AppointmentHandler struct {
	service AppointmentServiceInterface
}

// NewAppointmentHandler はAppointmentHandlerを生成する。
func NewAppointmentHandler(service AppointmentServiceInterface) *AppointmentHandler {
	return &AppointmentHandler{service: service}
}

type appointmentRequest struct {
	PatientID       string    `json:"patient_id"`
	TherapistID     string    `json:"therapist_id"`
	Date            time.Time `json:"date" validate:"required"`
	AppointmentType string    `json:"appointment_type" validate:"omitempty,oneof=presencial online"`
	Status          string    `json:"status" validate:"omitempty,oneof=scheduled completed cancelled"`
	MeetingURL      string    `json:"meeting_url"`
	Notes           string    `json:"notes"`
}

// List は呼び出し元が当事者の予約を返す。管理者は全件。
// GET /appointments
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	appointments, err := h.service.List(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(appointments))
}

// Create は予約を作成する。
// POST /appointments
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req appointmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	appt, err := h.service.Create(r.Context(), user, model.Appointment{
		PatientID:       req.PatientID,
		TherapistID:     req.TherapistID,
		Date:            req.Date,
		AppointmentType: req.AppointmentType,
		Status:          req.Status,
		MeetingURL:      req.MeetingURL,
		Notes:           req.Notes,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Update は許可されたフィールドのみを更新する。
// PUT /appointments/{id}
func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var patch model.AppointmentPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		handleServiceError(w, err)
		return
	}

	appt, err := h.service.Update(r.Context(), user, chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}
