package auth

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
)

// CookieName はセッショントークンを運ぶCookie名。
const CookieName = "session_token"

const bearerPrefix = "Bearer "

// ExtractToken はリクエストからセッショントークンを取り出す。
// session_token Cookie を優先し、なければ Authorization ヘッダーの "Bearer " 以降を使う。
// プレフィックスは大文字小文字を区別し、空白は1つのみを許す。
func ExtractToken(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	token := header[len(bearerPrefix):]
	if token == "" {
		return "", false
	}
	return token, true
}

// generateSessionToken は暗号的に安全なセッショントークンを生成する。
func generateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
