package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/fonomed/internal/model"
)

// ProfileServiceInterface は患者・言語聴覚士ハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	ListPatients(ctx context.Context, actor *model.User) ([]*model.Patient, error)
	GetPatient(ctx context.Context, actor *model.User, id string) (*model.Patient, error)
	CreatePatient(ctx context.Context, actor *model.User, input model.Patient) (*model.Patient, error)
	UpdatePatient(ctx context.Context, actor *model.User, id string, patch model.PatientPatch) (*model.Patient, error)
	ListTherapists(ctx context.Context) ([]*model.Therapist, error)
	CreateTherapist(ctx context.Context, actor *model.User, input model.Therapist) (*model.Therapist, error)
}

// ProfileHandler は患者・言語聴覚士プロフィールのHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

type patientRequest struct {
	UserID       string `json:"user_id"`
	FullName     string `json:"full_name" validate:"required"`
	BirthDate    string `json:"birth_date"`
	CPF          string `json:"cpf"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	Diagnosis    string `json:"diagnosis"`
	Observations string `json:"observations"`
}

type therapistRequest struct {
	UserID      string   `json:"user_id"`
	FullName    string   `json:"full_name" validate:"required"`
	CRFaNumber  string   `json:"crfa_number" validate:"required"`
	Specialties []string `json:"specialties"`
	Bio         string   `json:"bio"`
}

// ListPatients は全患者を返す。
// GET /patients（言語聴覚士・管理者）
func (h *ProfileHandler) ListPatients(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	patients, err := h.service.ListPatients(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(patients))
}

// CreatePatient は患者プロフィールを作成する。
// POST /patients
func (h *ProfileHandler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req patientRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	patient, err := h.service.CreatePatient(r.Context(), user, model.Patient{
		UserID:       req.UserID,
		FullName:     req.FullName,
		BirthDate:    req.BirthDate,
		CPF:          req.CPF,
		Phone:        req.Phone,
		Address:      req.Address,
		Diagnosis:    req.Diagnosis,
		Observations: req.Observations,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

// GetPatient は患者プロフィールを返す。
// GET /patients/{id}
func (h *ProfileHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	patient, err := h.service.GetPatient(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

// UpdatePatient は許可されたフィールドのみを更新する。
// PUT /patients/{id}
func (h *ProfileHandler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var patch model.PatientPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		handleServiceError(w, err)
		return
	}

	patient, err := h.service.UpdatePatient(r.Context(), user, chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, patient)
}

// ListTherapists は全言語聴覚士を返す。
// GET /therapists
func (h *ProfileHandler) ListTherapists(w http.ResponseWriter, r *http.Request) {
	therapists, err := h.service.ListTherapists(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(therapists))
}

// CreateTherapist は言語聴覚士プロフィールを作成する。
// POST /therapists（言語聴覚士・管理者）
func (h *ProfileHandler) CreateTherapist(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req therapistRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	therapist, err := h.service.CreateTherapist(r.Context(), user, model.Therapist{
		UserID:      req.UserID,
		FullName:    req.FullName,
		CRFaNumber:  req.CRFaNumber,
		Specialties: req.Specialties,
		Bio:         req.Bio,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, therapist)
}

// nonNil は一覧レスポンスがnullではなく空配列になるようにする。
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
