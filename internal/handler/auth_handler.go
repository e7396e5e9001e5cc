package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/fonomed/internal/auth"
	"github.com/hitoshi/fonomed/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password, name string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	ExchangeExternalSession(ctx context.Context, externalSessionID string) (*model.Session, *model.User, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool          // trueならSecure + SameSite=None、falseならSameSite=Lax
	SessionMaxAge time.Duration // セッションCookieの有効期間
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	if config.SessionMaxAge <= 0 {
		config.SessionMaxAge = auth.DefaultSessionTTL
	}
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// registerForm はユーザー登録フォーム。
type registerForm struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,max=72"`
	Name     string `form:"name" validate:"required"`
}

// loginForm はログインフォーム。
type loginForm struct {
	Email    string `form:"email" validate:"required"`
	Password string `form:"password" validate:"required"`
}

// userSummary はセッション発行時に返すユーザー情報。
type userSummary struct {
	ID      string     `json:"id"`
	Email   string     `json:"email"`
	Name    string     `json:"name"`
	Picture string     `json:"picture,omitempty"`
	Role    model.Role `json:"role"`
}

// userResponse はユーザーの公開プロジェクション。
type userResponse struct {
	userSummary
	CreatedAt time.Time `json:"created_at"`
}

type registerResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

type loginResponse struct {
	Message string      `json:"message"`
	User    userSummary `json:"user"`
}

type sessionResponse struct {
	User userSummary `json:"user"`
}

// Register はメールアドレスとパスワードでユーザーを登録する。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("フォームの解析に失敗しました"))
		return
	}
	form := registerForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Name:     strings.TrimSpace(r.PostFormValue("name")),
	}
	if err := validateStruct(form); err != nil {
		handleServiceError(w, err)
		return
	}

	user, err := h.service.Register(r.Context(), form.Email, form.Password, form.Name)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, registerResponse{
		Message: "User registered successfully",
		Email:   user.Email,
	})
}

// Login はパスワード認証を行いセッションを発行する。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		handleServiceError(w, model.NewInvalidRequestError("フォームの解析に失敗しました"))
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	if err := validateStruct(form); err != nil {
		handleServiceError(w, err)
		return
	}

	session, user, err := h.service.Login(r.Context(), form.Email, form.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID)
	summary := toUserSummary(user)
	summary.Picture = ""
	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Login successful",
		User:    summary,
	})
}

// Session は外部IdPのセッションIDを自サービスのセッションに交換する。
// GET /auth/session?session_id=xxx
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	externalID := r.URL.Query().Get("session_id")
	if externalID == "" {
		handleServiceError(w, model.NewInvalidRequestError("session_id は必須です"))
		return
	}

	session, user, err := h.service.ExchangeExternalSession(r.Context(), externalID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID)
	writeJSON(w, http.StatusOK, sessionResponse{User: toUserSummary(user)})
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me（認証ゲート配下）
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Logout はリクエストの資格情報に対応するセッションを破棄する。
// 資格情報がなくても、2回目の呼び出しでも200を返す。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := auth.ExtractToken(r); ok {
		if err := h.service.Logout(r.Context(), token); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	h.clearSessionCookie(w)
	writeMessage(w, "Logged out successfully")
}

// sameSite はCookieのSameSite属性を返す。
// Secure CookieはクロスサイトのフロントエンドからでもCookieを送れるようNoneにする。
func (h *AuthHandler) sameSite() http.SameSite {
	if h.config.CookieSecure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   int(h.config.SessionMaxAge / time.Second),
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: h.sameSite(),
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: h.sameSite(),
	})
}

func toUserSummary(u *model.User) userSummary {
	return userSummary{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Picture: u.Picture,
		Role:    u.Role,
	}
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		userSummary: toUserSummary(u),
		CreatedAt:   u.CreatedAt,
	}
}
