// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/fonomed/internal/auth"
	"github.com/hitoshi/fonomed/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userContextKey は認証済みユーザーを格納するキー。
	userContextKey = contextKey("user")
	// requestStateKey はミドルウェア間で共有するリクエスト状態のキー。
	requestStateKey = contextKey("request_state")
)

// requestState は外側のミドルウェアが内側で決まった値を参照するための可変状態。
// ログミドルウェアが生成し、認証ゲートがユーザーIDを書き込む。
type requestState struct {
	userID string
}

// Authenticator はセッショントークンからユーザーを解決するインターフェース。
// auth.Serviceが実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.User, error)
}

// NewAuthGate はCookieまたはBearerヘッダーからセッショントークンを読み取り、
// ユーザーを解決してリクエストコンテキストに注入するミドルウェアを返す。
// トークンがない、または無効な場合は401を返す。
func NewAuthGate(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.ExtractToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			user, err := authenticator.Authenticate(r.Context(), token)
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					WriteAPIError(w, apiErr)
					return
				}
				slog.Error("failed to authenticate session",
					slog.String("error", err.Error()),
				)
				WriteInternalServerError(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// RequireRoles は認証済みユーザーのロールがrolesのいずれかであることを要求するミドルウェアを返す。
// 認証ゲートの内側に配置する。
func RequireRoles(roles ...model.Role) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}
			if !auth.Allowed(user.Role, roles...) {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// 認証ゲートを通過したリクエストでのみ有効。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// ContextWithUser はコンテキストにユーザーを注入する。
// リクエスト状態があればユーザーIDも記録する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	if state, ok := ctx.Value(requestStateKey).(*requestState); ok && user != nil {
		state.userID = user.ID
	}
	return context.WithValue(ctx, userContextKey, user)
}

func withRequestState(ctx context.Context) (context.Context, *requestState) {
	state := &requestState{}
	return context.WithValue(ctx, requestStateKey, state), state
}
