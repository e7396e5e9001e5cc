package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// corsMaxAge はプリフライト結果のキャッシュ秒数。
const corsMaxAge = 86400

// NewCORSMiddleware は許可オリジン一覧に対するCORSミドルウェアを返す。
// credentials送信と共存するため、"*" はワイルドカード応答ではなく
// リクエストのオリジンをそのまま返す扱いにする。
func NewCORSMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	}

	if allowsAnyOrigin(allowedOrigins) {
		opts.AllowOriginFunc = func(r *http.Request, origin string) bool { return true }
	} else {
		opts.AllowedOrigins = allowedOrigins
	}

	return cors.Handler(opts)
}

func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
