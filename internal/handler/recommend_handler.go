package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/fonomed/internal/model"
)

// RecommendServiceInterface はAI推薦ハンドラーが必要とするサービスインターフェース。
type RecommendServiceInterface interface {
	Recommend(ctx context.Context, actor *model.User, patientID string) (string, error)
}

// RecommendHandler はAIによる訓練推薦のHTTPハンドラー。
type RecommendHandler struct {
	service RecommendServiceInterface
}

// NewRecommendHandler はRecommendHandlerを生成する。
func NewRecommendHandler(service RecommendServiceInterface) *RecommendHandler {
	return &RecommendHandler{service: service}
}

type recommendForm struct {
	PatientID string `form:"patient_id" validate:"required"`
}

type recommendResponse struct {
	Recommendations string `json:"recommendations"`
}

// RecommendExercises は患者に合う訓練の推薦文を返す。
// 生成に失敗した場合もフォールバック文で200を返す。
// POST /ai/recommend-exercises（言語聴覚士・管理者、フォーム: patient_id）
func (h *RecommendHandler) RecommendExercises(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("フォームの解析に失敗しました"))
		return
	}
	form := recommendForm{PatientID: r.PostFormValue("patient_id")}
	if err := validateStruct(form); err != nil {
		handleServiceError(w, err)
		return
	}

	text, err := h.service.Recommend(r.Context(), user, form.PatientID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recommendResponse{Recommendations: text})
}
