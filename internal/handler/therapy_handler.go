package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/fonomed/internal/model"
	"github.com/hitoshi/fonomed/internal/therapy"
)

// TherapyServiceInterface は治療計画ハンドラーが必要とするサービスインターフェース。
type TherapyServiceInterface interface {
	List(ctx context.Context, actor *model.User) ([]*model.TherapyPlan, error)
	Get(ctx context.Context, actor *model.User, id string) (*therapy.PlanDetail, error)
	Create(ctx context.Context, actor *model.User, input model.TherapyPlan) (*model.TherapyPlan, error)
	AddExercise(ctx context.Context, actor *model.User, planID string, input model.PlanExercise) (*model.PlanExercise, error)
}

// TherapyHandler は治療計画のHTTPハンドラー。
type TherapyHandler struct {
	service TherapyServiceInterface
}

// NewTherapyHandler はTherapyHandlerを生成する。
func NewTherapyHandler(service TherapyServiceInterface) *TherapyHandler {
	return &TherapyHandler{service: service}
}

type planRequest struct {
	PatientID   string     `json:"patient_id" validate:"required"`
	TherapistID string     `json:"therapist_id"`
	Title       string     `json:"title" validate:"required"`
	Objectives  string     `json:"objectives"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Status      string     `json:"status"`
}

// planExerciseRequest は計画への訓練追加リクエスト。
// plan_id はパスの値を使うため、ボディに含まれていても無視する。
type planExerciseRequest struct {
	PlanID     string `json:"plan_id"`
	ExerciseID string `json:"exercise_id" validate:"required"`
	Schedule   string `json:"schedule"`
	Frequency  string `json:"frequency"`
	Notes      string `json:"notes"`
}

// List は呼び出し元が参照できる治療計画を返す。
// GET /therapy-plans
func (h *TherapyHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	plans, err := h.service.List(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(plans))
}

// Get は計画内訓練を含む治療計画を返す。
// GET /therapy-plans/{id}
func (h *TherapyHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Get(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	detail.Exercises = nonNil(detail.Exercises)
	writeJSON(w, http.StatusOK, detail)
}

// Create は治療計画を作成する。
// POST /therapy-plans（言語聴覚士・管理者）
func (h *TherapyHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req planRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	input := model.TherapyPlan{
		PatientID:   req.PatientID,
		TherapistID: req.TherapistID,
		Title:       req.Title,
		Objectives:  req.Objectives,
		EndDate:     req.EndDate,
		Status:      req.Status,
	}
	if req.StartDate != nil {
		input.StartDate = *req.StartDate
	}

	plan, err := h.service.Create(r.Context(), user, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// AddExercise は治療計画に訓練を割り当てる。
// POST /therapy-plans/{id}/exercises（言語聴覚士・管理者）
func (h *TherapyHandler) AddExercise(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req planExerciseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	pe, err := h.service.AddExercise(r.Context(), user, chi.URLParam(r, "id"), model.PlanExercise{
		ExerciseID: req.ExerciseID,
		Schedule:   req.Schedule,
		Frequency:  req.Frequency,
		Notes:      req.Notes,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pe)
}
