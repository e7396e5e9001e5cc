package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/fonomed/internal/model"
)

// AdminServiceInterface は管理者ハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	ListUsers(ctx context.Context, actor *model.User) ([]*model.User, error)
	UpdateRole(ctx context.Context, actor *model.User, userID, role string) error
	Stats(ctx context.Context, actor *model.User) (*model.Stats, error)
}

// AdminHandler は管理機能のHTTPハンドラー。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

type roleForm struct {
	Role string `form:"role" validate:"required"`
}

// ListUsers は全ユーザーの公開プロジェクションを返す。
// GET /admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	users, err := h.service.ListUsers(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateRole はユーザーのロールを変更する。
// PUT /admin/users/{id}/role（フォーム: role）
func (h *AdminHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("フォームの解析に失敗しました"))
		return
	}
	form := roleForm{Role: r.PostFormValue("role")}
	if err := validateStruct(form); err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.UpdateRole(r.Context(), user, chi.URLParam(r, "id"), form.Role); err != nil {
		handleServiceError(w, err)
		return
	}
	writeMessage(w, "User role updated successfully")
}

// Stats は管理画面向けの集計値を返す。
// GET /admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	stats, err := h.service.Stats(r.Context(), user)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
