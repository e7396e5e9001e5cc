package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/fonomed/internal/model"
)

// ProgressServiceInterface は経過日誌ハンドラーが必要とするサービスインターフェース。
type ProgressServiceInterface interface {
	List(ctx context.Context, actor *model.User) ([]*model.ProgressEntry, error)
	Create(ctx context.Context, actor *model.User, input model.ProgressEntry) (*model.ProgressEntry, error)
	Comment(ctx context.Context, actor *model.User, id, comment string) error
}

// ProgressHandler は経過日誌のHTTPハンドラー。
type ProgressHandler struct {
	service ProgressServiceInterface
}

// NewProgressHandler はProgressHandlerを生成する。
func NewProgressHandler(service ProgressServiceInterface) *ProgressHandler {
	return &ProgressHandler{service: service}
}

type progressRequest struct {
	PatientID  string     `json:"patient_id"`
	PlanID     string     `json:"plan_id" validate:"required"`
	ExerciseID string     `json:"exercise_id" validate:"required"`
	Date       *time.Time `json:"date"`
	AudioURL   string     `json:"audio_url"`
	VideoURL   string     `json:"video_url"`
	TextNotes  string     `json:"text_notes"`
}

type commentForm struct {
	Comment string `form:"comment" validate:"required"`
}

// List は呼び出し元が参照できる経過日誌を新しい順に返す。
// GET /progress
func (h *ProgressHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	entries, err := h.service.List(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// Create は経過日誌を記録する。
// POST /progress
func (h *ProgressHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	input := model.ProgressEntry{
		PatientID:  req.PatientID,
		PlanID:     req.PlanID,
		ExerciseID: req.ExerciseID,
		AudioURL:   req.AudioURL,
		VideoURL:   req.VideoURL,
		TextNotes:  req.TextNotes,
	}
	if req.Date != nil {
		input.Date = *req.Date
	}

	entry, err := h.service.Create(r.Context(), user, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Comment は言語聴覚士コメントを設定する。
// PUT /progress/{id}/comment（言語聴覚士・管理者、フォーム: comment）
func (h *ProgressHandler) Comment(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("フォームの解析に失敗しました"))
		return
	}
	form := commentForm{Comment: r.PostFormValue("comment")}
	if err := validateStruct(form); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Comment(r.Context(), user, chi.URLParam(r, "id"), form.Comment); err != nil {
		handleServiceError(w, err)
		return
	}
	writeMessage(w, "Comment added successfully")
}
