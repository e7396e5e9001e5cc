package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/fonomed/internal/model"
)

// ExerciseServiceInterface は訓練ハンドラーが必要とするサービスインターフェース。
type ExerciseServiceInterface interface {
	List(ctx context.Context, filter model.ExerciseFilter) ([]*model.Exercise, error)
	Get(ctx context.Context, id string) (*model.Exercise, error)
	Create(ctx context.Context, actor *model.User, input model.Exercise) (*model.Exercise, error)
	Update(ctx context.Context, actor *model.User, id string, patch model.ExercisePatch) (*model.Exercise, error)
	Delete(ctx context.Context, actor *model.User, id string) error
}

// ExerciseHandler は訓練ライブラリのHTTPハンドラー。
type ExerciseHandler struct {
	service ExerciseServiceInterface
}

// NewExerciseHandler はExerciseHandlerを生成する。
func NewExerciseHandler(service ExerciseServiceInterface) *ExerciseHandler {
	return &ExerciseHandler{service: service}
}

type exerciseRequest struct {
	Title           string   `json:"title" validate:"required"`
	Description     string   `json:"description"`
	Category        string   `json:"category" validate:"required"`
	DifficultyLevel string   `json:"difficulty_level" validate:"required"`
	MediaURLs       []string `json:"media_urls"`
	Instructions    string   `json:"instructions"`
	EstimatedTime   *int     `json:"estimated_time" validate:"omitempty,min=0"`
	Frequency       string   `json:"frequency"`
}

// List は訓練一覧を返す。category と difficulty で絞り込める。
// GET /exercises（認証不要）
func (h *ExerciseHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	exercises, err := h.service.List(r.Context(), model.ExerciseFilter{
		Category:        q.Get("category"),
		DifficultyLevel: q.Get("difficulty"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(exercises))
}

// Get は訓練を返す。
// GET /exercises/{id}（認証不要）
func (h *ExerciseHandler) Get(w http.ResponseWriter, r *http.Request) {
	exercise, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exercise)
}

// Create は訓練を作成する。
// POST /exercises（言語聴覚士・管理者）
func (h *ExerciseHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req exerciseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	exercise, err := h.service.Create(r.Context(), user, model.Exercise{
		Title:           req.Title,
		Description:     req.Description,
		Category:        req.Category,
		DifficultyLevel: req.DifficultyLevel,
		MediaURLs:       req.MediaURLs,
		Instructions:    req.Instructions,
		EstimatedTime:   req.EstimatedTime,
		Frequency:       req.Frequency,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exercise)
}

// Update は許可されたフィールドのみを更新する。
// PUT /exercises/{id}（言語聴覚士・管理者）
func (h *ExerciseHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var patch model.ExercisePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		handleServiceError(w, err)
		return
	}

	exercise, err := h.service.Update(r.Context(), user, chi.URLParam(r, "id"), patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exercise)
}

// Delete は訓練を削除する。
// DELETE /exercises/{id}（言語聴覚士・管理者）
func (h *ExerciseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), user, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	writeMessage(w, "Exercise deleted successfully")
}
