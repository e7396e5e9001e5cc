// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの認可区分を表す。
// 値は RolePatient / RoleTherapist / RoleAdmin の3つに閉じている。
type Role string

const (
	RolePatient   Role = "patient"
	RoleTherapist Role = "therapist"
	RoleAdmin     Role = "admin"
)

// ParseRole は文字列をRoleに変換する。未知の値の場合はfalseを返す。
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RolePatient, RoleTherapist, RoleAdmin:
		return Role(s), true
	default:
		return "", false
	}
}

// Valid はRoleが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// User はサービス利用ユーザーの公開プロジェクションを表す。
// パスワードハッシュは保持せず、Credentialとして別に管理する。
// IDはメールアドレスと同一の値を持つ。
type User struct {
	ID        string
	Email     string
	Name      string
	Picture   string
	Role      Role
	CreatedAt time.Time
}

// Credential はパスワード認証用の内部資格情報を表す。
// 外部IdP経由で作成されたユーザーは Credential を持たない。
type Credential struct {
	UserID       string
	PasswordHash string
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
// IDはCookieまたはBearerヘッダーで運ばれる不透明トークンそのもの。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired はnow時点でセッションが失効しているかを返す。
// expires_at と同時刻は失効扱いとする。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
