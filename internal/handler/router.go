package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/fonomed/internal/auth"
	"github.com/hitoshi/fonomed/internal/middleware"
)

// DefaultAPIPrefix はAPIルートの共通プレフィックス。
const DefaultAPIPrefix = "/api"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger    *slog.Logger
	APIPrefix string

	// ミドルウェア依存
	CORSOrigins   []string
	Authenticator middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Metrics       middleware.HTTPMetricsRecorder
	CSRFEnabled   bool
	CSRFConfig    middleware.CSRFConfig

	// プレフィックス外のエンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 診療ドメイン
	ProfileService     ProfileServiceInterface
	ExerciseService    ExerciseServiceInterface
	TherapyService     TherapyServiceInterface
	ProgressService    ProgressServiceInterface
	AppointmentService AppointmentServiceInterface
	RecommendService   RecommendServiceInterface
	AdminService       AdminServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID/RealIP → SecurityHeaders → Logging → Metrics → CORS
//	  → 認証系: AuthRateLimit
//	  → 公開: GeneralRateLimit
//	  → 要認証: AuthGate → CSRF(任意) → GeneralRateLimit → RequireRoles
//
// /health と /metrics はプレフィックスの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSOrigins))

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	prefix := normalizePrefix(deps.APIPrefix)
	r.Route(prefix, func(r chi.Router) {
		mountAPIRoutes(r, deps)
	})

	return r
}

func mountAPIRoutes(r chi.Router, deps *RouterDeps) {
	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	profileHandler := NewProfileHandler(deps.ProfileService)
	exerciseHandler := NewExerciseHandler(deps.ExerciseService)
	therapyHandler := NewTherapyHandler(deps.TherapyService)
	progressHandler := NewProgressHandler(deps.ProgressService)
	appointmentHandler := NewAppointmentHandler(deps.AppointmentService)
	recommendHandler := NewRecommendHandler(deps.RecommendService)
	adminHandler := NewAdminHandler(deps.AdminService)

	staff := middleware.RequireRoles(auth.Staff...)
	adminOnly := middleware.RequireRoles(auth.AdminOnly...)

	// --- 認証不要のルート ---

	// 資格情報の発行（IP単位の認証レート制限）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.AuthMiddleware())

		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Get("/auth/session", authHandler.Session)
	})

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ログアウトは認証ゲートを通さず、2回目の呼び出しも成功させる
		r.Post("/auth/logout", authHandler.Logout)

		if deps.CSRFEnabled {
			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))
		}

		// 訓練ライブラリの閲覧
		r.Get("/exercises", exerciseHandler.List)
		r.Get("/exercises/{id}", exerciseHandler.Get)
	})

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthGate(deps.Authenticator))
		if deps.CSRFEnabled {
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		}
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/auth/me", authHandler.Me)

		// 患者
		r.With(staff).Get("/patients", profileHandler.ListPatients)
		r.Post("/patients", profileHandler.CreatePatient)
		r.Get("/patients/{id}", profileHandler.GetPatient)
		r.Put("/patients/{id}", profileHandler.UpdatePatient)

		// 言語聴覚士
		r.Get("/therapists", profileHandler.ListTherapists)
		r.With(staff).Post("/therapists", profileHandler.CreateTherapist)

		// 訓練ライブラリの編集
		r.With(staff).Post("/exercises", exerciseHandler.Create)
		r.With(staff).Put("/exercises/{id}", exerciseHandler.Update)
		r.With(staff).Delete("/exercises/{id}", exerciseHandler.Delete)

		// 治療計画
		r.Get("/therapy-plans", therapyHandler.List)
		r.With(staff).Post("/therapy-plans", therapyHandler.Create)
		r.Get("/therapy-plans/{id}", therapyHandler.Get)
		r.With(staff).Post("/therapy-plans/{id}/exercises", therapyHandler.AddExercise)

		// 経過日誌
		r.Get("/progress", progressHandler.List)
		r.Post("/progress", progressHandler.Create)
		r.With(staff).Put("/progress/{id}/comment", progressHandler.Comment)

		// 予約
		r.Get("/appointments", appointmentHandler.List)
		r.Post("/appointments", appointmentHandler.Create)
		r.Put("/appointments/{id}", appointmentHandler.Update)

		// AI推薦
		r.With(staff).Post("/ai/recommend-exercises", recommendHandler.RecommendExercises)

		// 管理
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/users", adminHandler.ListUsers)
			r.Put("/users/{id}/role", adminHandler.UpdateRole)
			r.Get("/stats", adminHandler.Stats)
		})
	})
}

// normalizePrefix はプレフィックスを "/api" 形式に揃える。空の場合はデフォルト値を使う。
func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultAPIPrefix
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if len(prefix) > 1 {
		prefix = strings.TrimRight(prefix, "/")
	}
	return prefix
}
