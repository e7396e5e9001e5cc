package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, clinic, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated        = "UNAUTHENTICATED"
	ErrCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	ErrCodeSessionExpired         = "SESSION_EXPIRED"
	ErrCodeExternalAuthRejected   = "EXTERNAL_AUTH_REJECTED"
	ErrCodeForbidden              = "FORBIDDEN"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeEmailAlreadyRegistered = "EMAIL_ALREADY_REGISTERED"
	ErrCodeProfileAlreadyExists   = "PROFILE_ALREADY_EXISTS"
	ErrCodeInvalidRequest         = "INVALID_REQUEST"
	ErrCodeInvalidURL             = "INVALID_URL"
	ErrCodeExternalServiceFailure = "EXTERNAL_SERVICE_FAILURE"
	ErrCodeCSRFTokenInvalid       = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// NewUnauthenticatedError は認証情報がない、または無効な場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSessionExpiredError はセッションの有効期限切れエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れています。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードが正しくない場合のエラーを生成する。
// 未登録のメールアドレスとパスワード誤りは同じエラーになる。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: "auth",
		Action:   "メールアドレスとパスワードを確認してください。",
	}
}

// NewExternalAuthRejectedError は外部IdPがセッションIDを拒否した場合のエラーを生成する。
func NewExternalAuthRejectedError() *APIError {
	return &APIError{
		Code:     ErrCodeExternalAuthRejected,
		Message:  "Invalid session ID",
		Category: "auth",
		Action:   "もう一度ログインをやり直してください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Not authorized",
		Category: "auth",
		Action:   "この操作を行う権限がありません。管理者に問い合わせてください。",
	}
}

// NewNotFoundError は指定したリソースが存在しない場合のエラーを生成する。
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotFound,
		Message:  fmt.Sprintf("%s not found", resource),
		Category: "clinic",
		Action:   "IDを確認してください。",
	}
}

// NewUserNotFoundError はセッションに紐付くユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewEmailAlreadyRegisteredError はメールアドレス重複エラーを生成する。
func NewEmailAlreadyRegisteredError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailAlreadyRegistered,
		Message:  "Email already registered",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewProfileAlreadyExistsError は利用者に既にプロフィールがある場合のエラーを生成する。
func NewProfileAlreadyExistsError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileAlreadyExists,
		Message:  fmt.Sprintf("%s profile already exists for this user", resource),
		Category: "clinic",
		Action:   "既存のプロフィールを更新してください。",
	}
}

// NewInvalidRequestError はリクエスト内容が不正な場合のエラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "公開されている http:// または https:// のURLを入力してください。",
	}
}

// NewExternalServiceError は外部サービス呼び出し失敗エラーを生成する。
func NewExternalServiceError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeExternalServiceFailure,
		Message:  fmt.Sprintf("外部サービスの呼び出しに失敗しました: %s", service),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFTokenInvalidError はCSRFトークン検証失敗エラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "CSRF token validation failed",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエスト数が制限を超えました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
