package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/fonomed/internal/admin"
	"github.com/hitoshi/fonomed/internal/appointment"
	"github.com/hitoshi/fonomed/internal/auth"
	"github.com/hitoshi/fonomed/internal/config"
	"github.com/hitoshi/fonomed/internal/database"
	"github.com/hitoshi/fonomed/internal/exercise"
	"github.com/hitoshi/fonomed/internal/handler"
	"github.com/hitoshi/fonomed/internal/logger"
	"github.com/hitoshi/fonomed/internal/metrics"
	"github.com/hitoshi/fonomed/internal/middleware"
	"github.com/hitoshi/fonomed/internal/profile"
	"github.com/hitoshi/fonomed/internal/progress"
	"github.com/hitoshi/fonomed/internal/recommend"
	"github.com/hitoshi/fonomed/internal/repository"
	"github.com/hitoshi/fonomed/internal/security"
	"github.com/hitoshi/fonomed/internal/seed"
	"github.com/hitoshi/fonomed/internal/therapy"
	"github.com/hitoshi/fonomed/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	level := logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定に従ってログレベルを変更する
	lv, ok := logger.ParseLevel(cfg.LogLevel)
	if !ok {
		slog.Warn("unknown LOG_LEVEL, falling back to info", slog.String("log_level", cfg.LogLevel))
	}
	level.Set(lv)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	if args == nil {
		args = []string{}
	}
	root := newRootCommand(w, func(cmd Command) error {
		return runCommand(w, cmd)
	}, runHealthcheck)
	root.SetArgs(args)
	return root.Execute()
}

// runCommand は設定とログを初期化し、シグナルで止まるcontextの下でcmdを実行する。
func runCommand(w io.Writer, cmd Command) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("session_store", cfg.SessionStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// sessionStore はセッションの保存と失効行の掃除の両方を行うストア。
type sessionStore interface {
	repository.SessionRepository
	repository.ExpiredSessionDeleter
}

// stores は起動時に生成するストアハンドル。終了時にCloseで解放する。
type stores struct {
	db       *sql.DB
	redis    *redis.Client
	sessions sessionStore
}

// openStores はDB接続（と設定されていればRedis接続）を開き、セッションストアを選択する。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	slog.Info("database connection established")

	s := &stores{db: db, sessions: repository.NewPostgresSessionRepo(db)}

	if cfg.SessionStore == config.SessionStoreRedis {
		client, err := database.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.redis = client
		s.sessions = repository.NewRedisSessionRepo(client)
		slog.Info("redis connection established")
	}

	return s, nil
}

// Close はストアハンドルを閉じる。
func (s *stores) Close() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("failed to close redis", slog.String("error", err.Error()))
		}
	}
	if err := s.db.Close(); err != nil {
		slog.Error("failed to close database", slog.String("error", err.Error()))
	}
}

// repositories はルーター構築に必要なリポジトリ群。
type repositories struct {
	users        repository.UserRepository
	credentials  repository.CredentialRepository
	sessions     repository.SessionRepository
	patients     repository.PatientRepository
	therapists   repository.TherapistRepository
	exercises    repository.ExerciseRepository
	plans        repository.TherapyPlanRepository
	progress     repository.ProgressRepository
	appointments repository.AppointmentRepository
}

func postgresRepositories(db *sql.DB, sessions repository.SessionRepository) repositories {
	return repositories{
		users:        repository.NewPostgresUserRepo(db),
		credentials:  repository.NewPostgresCredentialRepo(db),
		sessions:     sessions,
		patients:     repository.NewPostgresPatientRepo(db),
		therapists:   repository.NewPostgresTherapistRepo(db),
		exercises:    repository.NewPostgresExerciseRepo(db),
		plans:        repository.NewPostgresTherapyPlanRepo(db),
		progress:     repository.NewPostgresProgressRepo(db),
		appointments: repository.NewPostgresAppointmentRepo(db),
	}
}

// newMetrics はプロセス用のPrometheusレジストリとCollectorを生成する。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// buildRouter はリポジトリからサービスとハンドラーを組み立てる。
// 返されたstop関数でレートリミッターのクリーンアップを停止する。
func buildRouter(
	cfg *config.Config,
	repos repositories,
	health handler.HealthChecker,
	reg *prometheus.Registry,
	collector *metrics.Collector,
) (http.Handler, func()) {
	// 1. セキュリティサービスの初期化
	urlGuard := security.NewURLGuard(cfg.OutboundSSRFGuard)
	sanitizer := security.NewTextSanitizer()

	// 2. 外部サービスクライアントの初期化
	identityProvider := auth.NewHTTPIdentityProvider(auth.HTTPIdentityProviderConfig{
		URL:    cfg.AuthProviderURL,
		Client: urlGuard.NewOutboundClient(cfg.AuthProviderTimeout),
	})
	chatClient := recommend.NewChatClient(
		urlGuard.NewOutboundClient(cfg.LLMTimeout),
		slog.Default(),
		recommend.ChatClientConfig{
			BaseURL: cfg.LLMAPIURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
		},
	)

	// 3. ドメインサービスの初期化
	authService := auth.NewService(
		identityProvider, repos.users, repos.credentials, repos.sessions, collector,
		auth.ServiceConfig{SessionTTL: cfg.SessionTTL},
	)
	profileService := profile.NewService(repos.patients, repos.therapists, sanitizer)
	exerciseService := exercise.NewService(repos.exercises, urlGuard, sanitizer)
	therapyService := therapy.NewService(repos.plans, repos.patients, repos.therapists, repos.exercises, sanitizer)
	progressService := progress.NewService(repos.progress, repos.patients, urlGuard, sanitizer)
	appointmentService := appointment.NewService(repos.appointments, repos.patients, repos.therapists, urlGuard, sanitizer)
	recommendService := recommend.NewService(
		chatClient, repos.patients, repos.exercises, repos.progress, collector, slog.Default(),
	)
	adminService := admin.NewService(admin.Repositories{
		Users:        repos.users,
		Patients:     repos.patients,
		Therapists:   repos.therapists,
		Exercises:    repos.exercises,
		Plans:        repos.plans,
		Appointments: repos.appointments,
		Progress:     repos.progress,
	})

	// 4. ルーターの構築（設定はreq/min単位）
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	csrfConfig := middleware.CSRFConfig{
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
	}

	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		APIPrefix:     cfg.APIPrefix,
		CORSOrigins:   cfg.CORSOrigins,
		Authenticator: authService,
		RateLimiter:   rateLimiter,
		Metrics:       collector,
		CSRFEnabled:   cfg.CSRFEnabled,
		CSRFConfig:    csrfConfig,

		HealthChecker:  health,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: authService.SessionTTL(),
		},

		ProfileService:     profileService,
		ExerciseService:    exerciseService,
		TherapyService:     therapyService,
		ProgressService:    progressService,
		AppointmentService: appointmentService,
		RecommendService:   recommendService,
		AdminService:       adminService,
	}

	return handler.NewRouter(deps), rateLimiter.Stop
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	reg, collector := newMetrics()
	router, stopLimiter := buildRouter(cfg, postgresRepositories(st.db, st.sessions), st.db, reg, collector)
	defer stopLimiter()

	// 組み込みのセッション掃除
	if cfg.SessionSweepEmbedded && cfg.SessionStore == config.SessionStorePostgres {
		sweeper := cleanup.NewScheduler(
			cleanup.NewSessionSweepJob(st.sessions, collector, slog.Default()),
			cfg.SessionSweepSchedule,
			slog.Default(),
		)
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second, // テキスト生成の待ち時間を含む
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// セッション掃除ジョブをcronスケジュールで実行し、ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	_, collector := newMetrics()
	job := cleanup.NewSessionSweepJob(st.sessions, collector, slog.Default())

	// 起動直後に1回実行
	if _, err := job.Run(ctx); err != nil {
		slog.Error("initial session sweep failed", slog.String("error", err.Error()))
	}

	scheduler := cleanup.NewScheduler(job, cfg.SessionSweepSchedule, slog.Default())
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	slog.Info("worker starting", slog.String("schedule", cfg.SessionSweepSchedule))
	<-ctx.Done()

	slog.Info("shutting down worker...")
	scheduler.Stop()
	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("from_version", uint64(result.FromVersion)),
		slog.Uint64("version", uint64(result.Version)),
		slog.Bool("changed", result.Changed()),
	)
	return nil
}

// runSeed はデモ用のアカウントと訓練を投入する。既存の行は変更しない。
func runSeed(ctx context.Context, cfg *config.Config) error {
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	seeder := seed.NewSeeder(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresPatientRepo(db),
		repository.NewPostgresTherapistRepo(db),
		repository.NewPostgresExerciseRepo(db),
		slog.Default(),
	)
	if _, err := seeder.Run(ctx, cfg.SeedPassword); err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
