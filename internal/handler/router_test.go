package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/fonomed/internal/admin"
	"github.com/hitoshi/fonomed/internal/appointment"
	"github.com/hitoshi/fonomed/internal/auth"
	"github.com/hitoshi/fonomed/internal/exercise"
	"github.com/hitoshi/fonomed/internal/metrics"
	"github.com/hitoshi/fonomed/internal/middleware"
	"github.com/hitoshi/fonomed/internal/model"
	"github.com/hitoshi/fonomed/internal/profile"
	"github.com/hitoshi/fonomed/internal/progress"
	"github.com/hitoshi/fonomed/internal/recommend"
	"github.com/hitoshi/fonomed/internal/repository/repotest"
	"github.com/hitoshi/fonomed/internal/security"
	"github.com/hitoshi/fonomed/internal/therapy"
)

// --- モック定義 ---

type mockProvider struct {
	resolveFn func(ctx context.Context, externalSessionID string) (*auth.ExternalIdentity, error)
}

func (m *mockProvider) ResolveSession(ctx context.Context, externalSessionID string) (*auth.ExternalIdentity, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, externalSessionID)
	}
	return nil, auth.ErrProviderRejected
}

type mockGenerator struct {
	completeFn func(ctx context.Context, system, prompt string) (string, error)
}

func (m *mockGenerator) Complete(ctx context.Context, system, prompt string) (string, error) {
	if m.completeFn != nil {
		return m.completeFn(ctx, system, prompt)
	}
	return "", errors.New("generator not configured")
}

type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(context.Context) error {
	return m.err
}

// --- テスト環境 ---

type testEnv struct {
	store     *repotest.Store
	provider  *mockProvider
	generator *mockGenerator
	router    http.Handler
}

type envOption func(*RouterDeps)

func withCSRF() envOption {
	return func(d *RouterDeps) {
		d.CSRFEnabled = true
	}
}

func withSecureCookies() envOption {
	return func(d *RouterDeps) {
		d.AuthConfig.CookieSecure = true
		d.AuthConfig.CookieDomain = "clinic.example.com"
	}
}

func withHealthChecker(c HealthChecker) envOption {
	return func(d *RouterDeps) {
		d.HealthChecker = c
	}
}

// newTestEnv はインメモリストアと実サービスでルーターを構成する。
func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	store := repotest.New()
	provider := &mockProvider{}
	generator := &mockGenerator{}
	sanitizer := security.NewTextSanitizer()
	guard := security.NewURLGuard(false)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	authService := auth.NewService(provider, store.Users(), store.Credentials(), store.Sessions(), metrics.Nop{}, auth.ServiceConfig{})

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	deps := &RouterDeps{
		Logger:        logger,
		APIPrefix:     "/api",
		CORSOrigins:   []string{"*"},
		Authenticator: authService,
		RateLimiter:   limiter,
		AuthService:   authService,
		AuthConfig:    AuthHandlerConfig{SessionMaxAge: authService.SessionTTL()},
		ProfileService: profile.NewService(
			store.Patients(), store.Therapists(), sanitizer,
		),
		ExerciseService: exercise.NewService(store.Exercises(), guard, sanitizer),
		TherapyService: therapy.NewService(
			store.Plans(), store.Patients(), store.Therapists(), store.Exercises(), sanitizer,
		),
		ProgressService: progress.NewService(store.Progress(), store.Patients(), guard, sanitizer),
		AppointmentService: appointment.NewService(
			store.Appointments(), store.Patients(), store.Therapists(), guard, sanitizer,
		),
		RecommendService: recommend.NewService(
			generator, store.Patients(), store.Exercises(), store.Progress(), metrics.Nop{}, logger,
		),
		AdminService: admin.NewService(admin.Repositories{
			Users:        store.Users(),
			Patients:     store.Patients(),
			Therapists:   store.Therapists(),
			Exercises:    store.Exercises(),
			Plans:        store.Plans(),
			Appointments: store.Appointments(),
			Progress:     store.Progress(),
		}),
	}
	for _, opt := range opts {
		opt(deps)
	}

	return &testEnv{
		store:     store,
		provider:  provider,
		generator: generator,
		router:    NewRouter(deps),
	}
}

// seedUser は利用者と有効なセッションを直接ストアに作成し、セッショントークンを返す。
func (e *testEnv) seedUser(t *testing.T, email string, role model.Role) string {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	if err := e.store.Users().Create(ctx, &model.User{ID: email, Email: email, Name: email, Role: role, CreatedAt: now}); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	token := "token-" + email
	if err := e.store.Sessions().Create(ctx, &model.Session{ID: token, UserID: email, ExpiresAt: now.Add(time.Hour), CreatedAt: now}); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	return token
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func bearerRequest(method, path, token string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func formRequest(method, path string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	return bytes.NewReader(b)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v (body=%s)", err, w.Body.String())
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	decodeBody(t, w, &body)
	return body.Code
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	return nil
}

// --- 認証フロー ---

func TestAuthFlow_RegisterLoginMeLogout(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(formRequest(http.MethodPost, "/api/auth/register", url.Values{
		"email":    {"Paciente@Example.com"},
		"password": {"s3cret"},
		"name":     {"Ana"},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}
	var reg registerResponse
	decodeBody(t, w, &reg)
	if reg.Message != "User registered successfully" || reg.Email != "paciente@example.com" {
		t.Errorf("register response = %+v", reg)
	}

	w = env.do(formRequest(http.MethodPost, "/api/auth/login", url.Values{
		"email":    {"paciente@example.com"},
		"password": {"s3cret"},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}
	cookie := sessionCookie(w)
	if cookie == nil || cookie.Value == "" {
		t.Fatal("expected session cookie on login")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax for insecure cookies", cookie.SameSite)
	}
	if cookie.MaxAge != int(auth.DefaultSessionTTL/time.Second) {
		t.Errorf("MaxAge = %d, want %d", cookie.MaxAge, int(auth.DefaultSessionTTL/time.Second))
	}
	var login loginResponse
	decodeBody(t, w, &login)
	if login.Message != "Login successful" || login.User.Role != model.RolePatient {
		t.Errorf("login response = %+v", login)
	}

	me := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	me.AddCookie(cookie)
	w = env.do(me)
	if w.Code != http.StatusOK {
		t.Fatalf("me status = %d, want %d", w.Code, http.StatusOK)
	}
	var profileBody userResponse
	decodeBody(t, w, &profileBody)
	if profileBody.Email != "paciente@example.com" || profileBody.Name != "Ana" {
		t.Errorf("me response = %+v", profileBody)
	}

	logout := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	logout.AddCookie(cookie)
	w = env.do(logout)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d, want %d", w.Code, http.StatusOK)
	}
	if cleared := sessionCookie(w); cleared == nil || cleared.MaxAge >= 0 {
		t.Errorf("logout should clear session cookie, got %+v", cleared)
	}

	me = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	me.AddCookie(cookie)
	w = env.do(me)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("me after logout status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	// 2回目のログアウトも成功する
	logout = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	logout.AddCookie(cookie)
	if w := env.do(logout); w.Code != http.StatusOK {
		t.Errorf("second logout status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	form := url.Values{"email": {"dup@example.com"}, "password": {"pw"}, "name": {"Dup"}}

	if w := env.do(formRequest(http.MethodPost, "/api/auth/register", form)); w.Code != http.StatusOK {
		t.Fatalf("first register status = %d", w.Code)
	}
	w := env.do(formRequest(http.MethodPost, "/api/auth/register", form))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, w); code != model.ErrCodeEmailAlreadyRegistered {
		t.Errorf("code = %q, want %q", code, model.ErrCodeEmailAlreadyRegistered)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(formRequest(http.MethodPost, "/api/auth/register", url.Values{"email": {"a@example.com"}}))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, w); code != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidRequest)
	}
}

// bcryptの上限を超えるパスワードは500ではなく入力エラーになる
func TestRegister_PasswordTooLong(t *testing.T) {
	env := newTestEnv(t)

	for name, password := range map[string]string{
		"ascii":     strings.Repeat("p", 80),
		"multibyte": strings.Repeat("ç", 40), // 40文字だが80バイト
	} {
		form := url.Values{"email": {name + "@example.com"}, "password": {password}, "name": {"Long"}}
		w := env.do(formRequest(http.MethodPost, "/api/auth/register", form))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want %d (body=%s)", name, w.Code, http.StatusBadRequest, w.Body.String())
			continue
		}
		if code := errorCode(t, w); code != model.ErrCodeInvalidRequest {
			t.Errorf("%s: code = %q, want %q", name, code, model.ErrCodeInvalidRequest)
		}
	}

	// 72バイトちょうどは登録してログインできる
	password := strings.Repeat("p", 72)
	form := url.Values{"email": {"limit@example.com"}, "password": {password}, "name": {"Limit"}}
	if w := env.do(formRequest(http.MethodPost, "/api/auth/register", form)); w.Code != http.StatusOK {
		t.Fatalf("72-byte register status = %d (body=%s)", w.Code, w.Body.String())
	}
	login := url.Values{"email": {"limit@example.com"}, "password": {password}}
	if w := env.do(formRequest(http.MethodPost, "/api/auth/login", login)); w.Code != http.StatusOK {
		t.Errorf("72-byte login status = %d", w.Code)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.do(formRequest(http.MethodPost, "/api/auth/register", url.Values{
		"email": {"x@example.com"}, "password": {"right"}, "name": {"X"},
	}))

	tests := []struct {
		name  string
		email string
	}{
		{"パスワード誤り", "x@example.com"},
		{"未登録", "nobody@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(formRequest(http.MethodPost, "/api/auth/login", url.Values{
				"email": {tt.email}, "password": {"wrong"},
			}))
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			if code := errorCode(t, w); code != model.ErrCodeInvalidCredentials {
				t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidCredentials)
			}
			if sessionCookie(w) != nil {
				t.Error("no session cookie should be set on failed login")
			}
		})
	}
}

func TestSession_ExchangeCreatesPatient(t *testing.T) {
	env := newTestEnv(t, withSecureCookies())
	env.provider.resolveFn = func(ctx context.Context, id string) (*auth.ExternalIdentity, error) {
		return &auth.ExternalIdentity{
			Email:        "Novo@Example.com",
			Name:         "Novo",
			Picture:      "https://cdn.example.com/p.png",
			SessionToken: "idp-token-1",
		}, nil
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/session?session_id=ext-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}

	cookie := sessionCookie(w)
	if cookie == nil || cookie.Value != "idp-token-1" {
		t.Fatalf("session cookie = %+v, want value idp-token-1", cookie)
	}
	if !cookie.Secure || cookie.SameSite != http.SameSiteNoneMode {
		t.Errorf("secure cookie policy: Secure=%v SameSite=%v", cookie.Secure, cookie.SameSite)
	}
	if cookie.Domain != "clinic.example.com" {
		t.Errorf("Domain = %q, want %q", cookie.Domain, "clinic.example.com")
	}

	var body sessionResponse
	decodeBody(t, w, &body)
	if body.User.Email != "novo@example.com" || body.User.Role != model.RolePatient {
		t.Errorf("user = %+v", body.User)
	}
	if body.User.Picture == "" {
		t.Error("exchange response should include picture")
	}
}

func TestSession_RejectedExchange_CreatesNoUser(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/session?session_id=bogus", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := errorCode(t, w); code != model.ErrCodeExternalAuthRejected {
		t.Errorf("code = %q, want %q", code, model.ErrCodeExternalAuthRejected)
	}
	count, _ := env.store.Users().Count(context.Background())
	if count != 0 {
		t.Errorf("users = %d, want 0", count)
	}
	if env.store.Sessions().Len() != 0 {
		t.Errorf("sessions = %d, want 0", env.store.Sessions().Len())
	}
}

func TestSession_MissingSessionID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestSession_ProviderFailure_Returns502(t *testing.T) {
	env := newTestEnv(t)
	env.provider.resolveFn = func(ctx context.Context, id string) (*auth.ExternalIdentity, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/auth/session?session_id=ext", nil))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
	if code := errorCode(t, w); code != model.ErrCodeExternalServiceFailure {
		t.Errorf("code = %q, want %q", code, model.ErrCodeExternalServiceFailure)
	}
}

func TestMe_ExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()
	env.store.Users().Create(ctx, &model.User{ID: "old@example.com", Email: "old@example.com", Role: model.RolePatient, CreatedAt: now})
	env.store.Sessions().Create(ctx, &model.Session{ID: "expired", UserID: "old@example.com", ExpiresAt: now.Add(-time.Minute), CreatedAt: now.Add(-time.Hour)})

	w := env.do(bearerRequest(http.MethodGet, "/api/auth/me", "expired", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if code := errorCode(t, w); code != model.ErrCodeSessionExpired {
		t.Errorf("code = %q, want %q", code, model.ErrCodeSessionExpired)
	}
}

// --- 訓練ライブラリ ---

func TestExercises_PublicReadStaffWrite(t *testing.T) {
	env := newTestEnv(t)
	therapist := env.seedUser(t, "fono@example.com", model.RoleTherapist)
	patient := env.seedUser(t, "pac@example.com", model.RolePatient)

	w := env.do(bearerRequest(http.MethodPost, "/api/exercises", therapist, jsonBody(t, map[string]any{
		"title":            "Vibração de lábios",
		"category":         "voz",
		"difficulty_level": "iniciante",
		"description":      "<b>aquecimento</b>",
	})))
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}
	var created model.Exercise
	decodeBody(t, w, &created)
	if created.CreatedBy != "fono@example.com" {
		t.Errorf("created_by = %q, want %q", created.CreatedBy, "fono@example.com")
	}
	if strings.Contains(created.Description, "<b>") {
		t.Errorf("description should be sanitized, got %q", created.Description)
	}

	// 未認証でも一覧と詳細を参照できる
	w = env.do(httptest.NewRequest(http.MethodGet, "/api/exercises?category=voz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("public list status = %d", w.Code)
	}
	var list []model.Exercise
	decodeBody(t, w, &list)
	if len(list) != 1 {
		t.Errorf("list len = %d, want 1", len(list))
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/exercises?category=fala", nil))
	decodeBody(t, w, &list)
	if len(list) != 0 {
		t.Errorf("filtered list len = %d, want 0", len(list))
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/exercises/"+created.ID, nil))
	if w.Code != http.StatusOK {
		t.Errorf("public get status = %d", w.Code)
	}

	// 患者は削除できない
	w = env.do(bearerRequest(http.MethodDelete, "/api/exercises/"+created.ID, patient, nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("patient delete status = %d, want %d", w.Code, http.StatusForbidden)
	}

	// 未認証の書き込みは401
	w = env.do(bearerRequest(http.MethodDelete, "/api/exercises/"+created.ID, "", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous delete status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	w = env.do(bearerRequest(http.MethodDelete, "/api/exercises/"+created.ID, therapist, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	var msg messageResponse
	decodeBody(t, w, &msg)
	if msg.Message != "Exercise deleted successfully" {
		t.Errorf("message = %q", msg.Message)
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/api/exercises/"+created.ID, nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestExercises_UpdateReturnsUpdatedRecord(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin@example.com", model.RoleAdmin)
	env.store.Exercises().Create(context.Background(), &model.Exercise{ID: "ex-1", Title: "Antigo", Category: "voz", DifficultyLevel: "iniciante"})

	w := env.do(bearerRequest(http.MethodPut, "/api/exercises/ex-1", admin, jsonBody(t, map[string]any{"title": "Novo"})))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body=%s)", w.Code, w.Body.String())
	}
	var updated model.Exercise
	decodeBody(t, w, &updated)
	if updated.Title != "Novo" || updated.Category != "voz" {
		t.Errorf("updated = %+v", updated)
	}

	w = env.do(bearerRequest(http.MethodPut, "/api/exercises/missing", admin, jsonBody(t, map[string]any{"title": "X"})))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// --- 患者 ---

func TestPatients_PatientSeesOnlyOwnProfile(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice@example.com", model.RolePatient)
	bob := env.seedUser(t, "bob@example.com", model.RolePatient)
	therapist := env.seedUser(t, "fono@example.com", model.RoleTherapist)

	// 患者が他人のuser_idを指定しても自分に固定される
	w := env.do(bearerRequest(http.MethodPost, "/api/patients", alice, jsonBody(t, map[string]any{
		"user_id":   "bob@example.com",
		"full_name": "Alice Souza",
	})))
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d (body=%s)", w.Code, w.Body.String())
	}
	var created model.Patient
	decodeBody(t, w, &created)
	if created.UserID != "alice@example.com" {
		t.Errorf("user_id = %q, want %q", created.UserID, "alice@example.com")
	}

	if w := env.do(bearerRequest(http.MethodGet, "/api/patients/"+created.ID, alice, nil)); w.Code != http.StatusOK {
		t.Errorf("owner get status = %d, want %d", w.Code, http.StatusOK)
	}
	if w := env.do(bearerRequest(http.MethodGet, "/api/patients/"+created.ID, bob, nil)); w.Code != http.StatusForbidden {
		t.Errorf("other patient get status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if w := env.do(bearerRequest(http.MethodPut, "/api/patients/"+created.ID, bob, jsonBody(t, map[string]any{"phone": "1"}))); w.Code != http.StatusForbidden {
		t.Errorf("other patient update status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if w := env.do(bearerRequest(http.MethodGet, "/api/patients", alice, nil)); w.Code != http.StatusForbidden {
		t.Errorf("patient list status = %d, want %d", w.Code, http.StatusForbidden)
	}

	w = env.do(bearerRequest(http.MethodGet, "/api/patients", therapist, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("therapist list status = %d", w.Code)
	}
	var patients []model.Patient
	decodeBody(t, w, &patients)
	if len(patients) != 1 {
		t.Errorf("patients = %d, want 1", len(patients))
	}

	w = env.do(bearerRequest(http.MethodPut, "/api/patients/"+created.ID, therapist, jsonBody(t, map[string]any{"diagnosis": "Disfonia"})))
	if w.Code != http.StatusOK {
		t.Fatalf("therapist update status = %d", w.Code)
	}
	var updated model.Patient
	decodeBody(t, w, &updated)
	if updated.Diagnosis != "Disfonia" || updated.FullName != "Alice Souza" {
		t.Errorf("updated = %+v", updated)
	}
}

func TestPatients_InvalidBodies(t *testing.T) {
	env := newTestEnv(t)
	token := env.seedUser(t, "p@example.com", model.RolePatient)

	tests := []struct {
		name string
		body string
	}{
		{"未知のフィールド", `{"full_name":"A","role":"admin"}`},
		{"必須フィールドなし", `{"phone":"123"}`},
		{"不正なJSON", `{"full_name":`},
		{"型不一致", `{"full_name":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(bearerRequest(http.MethodPost, "/api/patients", token, strings.NewReader(tt.body)))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if code := errorCode(t, w); code != model.ErrCodeInvalidRequest {
				t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidRequest)
			}
		})
	}
}

func TestPatients_SecondProfileForSameUser(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice@example.com", model.RolePatient)
	therapist := env.seedUser(t, "fono@example.com", model.RoleTherapist)
	body := map[string]any{"full_name": "Alice Souza"}

	if w := env.do(bearerRequest(http.MethodPost, "/api/patients", alice, jsonBody(t, body))); w.Code != http.StatusOK {
		t.Fatalf("first create status = %d (body=%s)", w.Code, w.Body.String())
	}

	w := env.do(bearerRequest(http.MethodPost, "/api/patients", alice, jsonBody(t, body)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("second create status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, w); code != model.ErrCodeProfileAlreadyExists {
		t.Errorf("code = %q, want %q", code, model.ErrCodeProfileAlreadyExists)
	}

	// アカウントに紐付かない患者はスタッフが何件でも登録できる
	for i := 0; i < 2; i++ {
		w := env.do(bearerRequest(http.MethodPost, "/api/patients", therapist, jsonBody(t, map[string]any{"full_name": "Sem conta"})))
		if w.Code != http.StatusOK {
			t.Fatalf("staff create %d status = %d (body=%s)", i, w.Code, w.Body.String())
		}
	}

	w = env.do(bearerRequest(http.MethodGet, "/api/patients", therapist, nil))
	var patients []model.Patient
	decodeBody(t, w, &patients)
	if len(patients) != 3 {
		t.Errorf("patients = %d, want 3", len(patients))
	}
}

func TestTherapists_SecondProfileForSameUser(t *testing.T) {
	env := newTestEnv(t)
	therapist := env.seedUser(t, "t@example.com", model.RoleTherapist)
	body := map[string]any{"full_name": "Dra. Lima", "crfa_number": "2-12345"}

	if w := env.do(bearerRequest(http.MethodPost, "/api/therapists", therapist, jsonBody(t, body))); w.Code != http.StatusOK {
		t.Fatalf("first create status = %d (body=%s)", w.Code, w.Body.String())
	}
	w := env.do(bearerRequest(http.MethodPost, "/api/therapists", therapist, jsonBody(t, body)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("second create status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := errorCode(t, w); code != model.ErrCodeProfileAlreadyExists {
		t.Errorf("code = %q, want %q", code, model.ErrCodeProfileAlreadyExists)
	}
}

func TestTherapists_CreateRequiresStaff(t *testing.T) {
	env := newTestEnv(t)
	patient := env.seedUser(t, "p@example.com", model.RolePatient)
	therapist := env.seedUser(t, "t@example.com", model.RoleTherapist)
	body := map[string]any{"full_name": "Dra. Lima", "crfa_number": "2-12345", "specialties": []string{"voz"}}

	if w := env.do(bearerRequest(http.MethodPost, "/api/therapists", patient, jsonBody(t, body))); w.Code != http.StatusForbidden {
		t.Errorf("patient create status = %d, want %d", w.Code, http.StatusForbidden)
	}

	w := env.do(bearerRequest(http.MethodPost, "/api/therapists", therapist, jsonBody(t, body)))
	if w.Code != http.StatusOK {
		t.Fatalf("therapist create status = %d (body=%s)", w.Code, w.Body.String())
	}

	w = env.do(bearerRequest(http.MethodGet, "/api/therapists", patient, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var therapists []model.Therapist
	decodeBody(t, w, &therapists)
	if len(therapists) != 1 || therapists[0].UserID != "t@example.com" {
		t.Errorf("therapists = %+v", therapists)
	}
}

// --- 推薦 ---

func TestRecommend_ReturnsGeneratedText(t *testing.T) {
	env := newTestEnv(t)
	therapist := env.seedUser(t, "t@example.com", model.RoleTherapist)
	env.store.Patients().Create(context.Background(), &model.Patient{ID: "pat-1", UserID: "p@example.com", FullName: "P"})
	env.generator.completeFn = func(ctx context.Context, system, prompt string) (string, error) {
		return "Recomendo vibração de lábios.", nil
	}

	req := formRequest(http.MethodPost, "/api/ai/recommend-exercises", url.Values{"patient_id": {"pat-1"}})
	req.Header.Set("Authorization", "Bearer "+therapist)
	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body=%s)", w.Code, w.Body.String())
	}
	var body recommendResponse
	decodeBody(t, w, &body)
	if body.Recommendations != "Recomendo vibração de lábios." {
		t.Errorf("recommendations = %q", body.Recommendations)
	}
}

func TestRecommend_GeneratorFailureFallsBack(t *testing.T) {
	env := newTestEnv(t)
	therapist := env.seedUser(t, "t@example.com", model.RoleTherapist)
	env.store.Patients().Create(context.Background(), &model.Patient{ID: "pat-1", UserID: "p@example.com"})

	req := formRequest(http.MethodPost, "/api/ai/recommend-exercises", url.Values{"patient_id": {"pat-1"}})
	req.Header.Set("Authorization", "Bearer "+therapist)
	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body recommendResponse
	decodeBody(t, w, &body)
	if body.Recommendations != recommend.FallbackText {
		t.Errorf("recommendations = %q, want fallback", body.Recommendations)
	}
}

// --- 管理 ---

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	tokens := map[model.Role]string{
		model.RolePatient:   env.seedUser(t, "p@example.com", model.RolePatient),
		model.RoleTherapist: env.seedUser(t, "t@example.com", model.RoleTherapist),
	}

	for role, token := range tokens {
		for _, path := range []string{"/api/admin/users", "/api/admin/stats"} {
			t.Run(fmt.Sprintf("%s %s", role, path), func(t *testing.T) {
				w := env.do(bearerRequest(http.MethodGet, path, token, nil))
				if w.Code != http.StatusForbidden {
					t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
				}
			})
		}
	}
}

func TestAdmin_UpdateRoleAndStats(t *testing.T) {
	env := newTestEnv(t)
	adminToken := env.seedUser(t, "admin@example.com", model.RoleAdmin)
	patientToken := env.seedUser(t, "p@example.com", model.RolePatient)

	req := formRequest(http.MethodPut, "/api/admin/users/p@example.com/role", url.Values{"role": {"therapist"}})
	req.Header.Set("Authorization", "Bearer "+adminToken)
	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("update role status = %d (body=%s)", w.Code, w.Body.String())
	}
	var msg messageResponse
	decodeBody(t, w, &msg)
	if msg.Message != "User role updated successfully" {
		t.Errorf("message = %q", msg.Message)
	}

	// 次のリクエストから新しいロールが反映される
	w = env.do(bearerRequest(http.MethodGet, "/api/auth/me", patientToken, nil))
	var me userResponse
	decodeBody(t, w, &me)
	if me.Role != model.RoleTherapist {
		t.Errorf("role = %q, want %q", me.Role, model.RoleTherapist)
	}

	req = formRequest(http.MethodPut, "/api/admin/users/p@example.com/role", url.Values{"role": {"superuser"}})
	req.Header.Set("Authorization", "Bearer "+adminToken)
	if w := env.do(req); w.Code != http.StatusBadRequest {
		t.Errorf("invalid role status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	req = formRequest(http.MethodPut, "/api/admin/users/ghost@example.com/role", url.Values{"role": {"admin"}})
	req.Header.Set("Authorization", "Bearer "+adminToken)
	if w := env.do(req); w.Code != http.StatusNotFound {
		t.Errorf("missing user status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w = env.do(bearerRequest(http.MethodGet, "/api/admin/stats", adminToken, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	var stats model.Stats
	decodeBody(t, w, &stats)
	if stats.TotalUsers != 2 {
		t.Errorf("total_users = %d, want 2", stats.TotalUsers)
	}

	w = env.do(bearerRequest(http.MethodGet, "/api/admin/users", adminToken, nil))
	var users []userResponse
	decodeBody(t, w, &users)
	if len(users) != 2 {
		t.Errorf("users = %d, want 2", len(users))
	}
}

// --- ミドルウェアとの結合 ---

func TestCSRF_CookieSessionWriteRequiresToken(t *testing.T) {
	env := newTestEnv(t, withCSRF())
	token := env.seedUser(t, "t@example.com", model.RoleTherapist)
	body := `{"title":"T","category":"voz","difficulty_level":"iniciante"}`

	req := httptest.NewRequest(http.MethodPost, "/api/exercises", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	w := env.do(req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("missing csrf status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if code := errorCode(t, w); code != model.ErrCodeCSRFTokenInvalid {
		t.Errorf("code = %q, want %q", code, model.ErrCodeCSRFTokenInvalid)
	}

	// トークンを取得してから送る
	w = env.do(httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))
	var csrf struct {
		Token string `json:"token"`
	}
	decodeBody(t, w, &csrf)

	req = httptest.NewRequest(http.MethodPost, "/api/exercises", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: token})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: csrf.Token})
	req.Header.Set("X-CSRF-Token", csrf.Token)
	if w := env.do(req); w.Code != http.StatusOK {
		t.Errorf("with csrf status = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
	}

	// Bearerのみのクライアントは対象外
	if w := env.do(bearerRequest(http.MethodPost, "/api/exercises", token, strings.NewReader(body))); w.Code != http.StatusOK {
		t.Errorf("bearer status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_SecurityHeadersAndRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/api/exercises", nil))
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := w.Header().Get("Permissions-Policy"); !strings.Contains(got, "microphone=(self)") {
		t.Errorf("Permissions-Policy = %q, want microphone allowed", got)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/patients", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := env.do(req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Access-Control-Allow-Credentials = %q", got)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	if w := env.do(httptest.NewRequest(http.MethodGet, "/api/nothing-here", nil)); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"DB正常", nil, http.StatusOK, "ok"},
		{"DB停止", errors.New("connection refused"), http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, withHealthChecker(&mockHealthChecker{err: tt.err}))

			w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body healthResponse
			decodeBody(t, w, &body)
			if body.Status != tt.wantBody {
				t.Errorf("status = %q, want %q", body.Status, tt.wantBody)
			}
		})
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/api"},
		{"/api", "/api"},
		{"api", "/api"},
		{"/api/", "/api"},
		{" /v1 ", "/v1"},
	}
	for _, tt := range tests {
		if got := normalizePrefix(tt.in); got != tt.want {
			t.Errorf("normalizePrefix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
