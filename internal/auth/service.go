// Package auth はパスワード認証、外部IdPセッション交換、セッション管理と権限判定を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/fonomed/internal/metrics"
	"github.com/hitoshi/fonomed/internal/model"
	"github.com/hitoshi/fonomed/internal/repository"
)

// DefaultSessionTTL はセッションの既定有効期間（7日）。
const DefaultSessionTTL = 7 * 24 * time.Hour

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionTTL time.Duration
	// Now は現在時刻を返す。nilの場合はtime.Nowを使う。
	Now func() time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provider    IdentityProvider
	userRepo    repository.UserRepository
	credRepo    repository.CredentialRepository
	sessionRepo repository.SessionRepository
	metrics     metrics.Recorder
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	provider IdentityProvider,
	userRepo repository.UserRepository,
	credRepo repository.CredentialRepository,
	sessionRepo repository.SessionRepository,
	recorder metrics.Recorder,
	config ServiceConfig,
) *Service {
	if config.SessionTTL <= 0 {
		config.SessionTTL = DefaultSessionTTL
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Service{
		provider:    provider,
		userRepo:    userRepo,
		credRepo:    credRepo,
		sessionRepo: sessionRepo,
		metrics:     recorder,
		config:      config,
	}
}

// SessionTTL はセッション有効期間を返す。Cookieのmax-ageに使う。
func (s *Service) SessionTTL() time.Duration {
	return s.config.SessionTTL
}

// normalizeEmail はメールアドレスを比較用に正規化する。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register はパスワード認証のユーザーを作成する。ロールはpatient固定。
func (s *Service) Register(ctx context.Context, email, password, name string) (*model.User, error) {
	email = normalizeEmail(email)

	hash, err := HashPassword(password)
	if err != nil {
		if errors.Is(err, ErrPasswordTooLong) {
			s.metrics.RecordAuthEvent(metrics.AuthEventRegister, metrics.OutcomeRejected)
			return nil, model.NewInvalidRequestError(
				fmt.Sprintf("password は%dバイト以内で指定してください", MaxPasswordBytes),
			)
		}
		return nil, err
	}

	now := s.config.Now()
	user := &model.User{
		ID:        email,
		Email:     email,
		Name:      strings.TrimSpace(name),
		Role:      model.RolePatient,
		CreatedAt: now,
	}
	cred := &model.Credential{
		UserID:       email,
		PasswordHash: hash,
		UpdatedAt:    now,
	}

	if err := s.userRepo.CreateWithCredential(ctx, user, cred); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			s.metrics.RecordAuthEvent(metrics.AuthEventRegister, metrics.OutcomeRejected)
			return nil, model.NewEmailAlreadyRegisteredError()
		}
		s.metrics.RecordAuthEvent(metrics.AuthEventRegister, metrics.OutcomeError)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.metrics.RecordAuthEvent(metrics.AuthEventRegister, metrics.OutcomeSuccess)
	slog.Info("user registered", slog.String("user_id", user.ID))
	return user, nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// equalizeTiming は未登録メールアドレスでもbcrypt比較を1回行い、応答時間の差を小さくする。
func equalizeTiming(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = HashPassword("fonomed-timing-equalizer")
	})
	_, _ = VerifyPassword(dummyHash, password)
}

// Login はメールアドレスとパスワードを検証し、新しいセッションを発行する。
// 未登録・パスワード不一致・パスワード未設定はいずれも同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	email = normalizeEmail(email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.RecordAuthEvent(metrics.AuthEventLogin, metrics.OutcomeError)
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}

	var cred *model.Credential
	if user != nil {
		cred, err = s.credRepo.FindByUserID(ctx, user.ID)
		if err != nil {
			s.metrics.RecordAuthEvent(metrics.AuthEventLogin, metrics.OutcomeError)
			return nil, nil, fmt.Errorf("failed to find credential: %w", err)
		}
	}

	if cred == nil {
		equalizeTiming(password)
		s.metrics.RecordAuthEvent(metrics.AuthEventLogin, metrics.OutcomeRejected)
		return nil, nil, model.NewInvalidCredentialsError()
	}

	ok, err := VerifyPassword(cred.PasswordHash, password)
	if err != nil {
		slog.Warn("stored password hash is unreadable",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	if !ok {
		s.metrics.RecordAuthEvent(metrics.AuthEventLogin, metrics.OutcomeRejected)
		return nil, nil, model.NewInvalidCredentialsError()
	}

	token, err := generateSessionToken()
	if err != nil {
		s.metrics.RecordAuthEvent(metrics.AuthEventLogin, metrics.OutcomeError)
		return nil, nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session, err := s.createSession(ctx, token, user.ID)
	if err != nil {
		s.metrics.RecordAuthEvent(metrics.AuthEventLogin, metrics.OutcomeError)
		return nil, nil, err
	}

	s.metrics.RecordAuthEvent(metrics.AuthEventLogin, metrics.OutcomeSuccess)
	slog.Info("user logged in", slog.String("user_id", user.ID))
	return session, user, nil
}

// ExchangeExternalSession は外部IdPのセッションIDを内部セッションに交換する。
// 初回の場合はpatientロールでユーザーを作成する。
// 内部セッションのトークンにはIdPが発行したトークンをそのまま使う。
func (s *Service) ExchangeExternalSession(ctx context.Context, externalSessionID string) (*model.Session, *model.User, error) {
	identity, err := s.provider.ResolveSession(ctx, externalSessionID)
	if err != nil {
		if errors.Is(err, ErrProviderRejected) {
			s.metrics.RecordAuthEvent(metrics.AuthEventExchange, metrics.OutcomeRejected)
			return nil, nil, model.NewExternalAuthRejectedError()
		}
		s.metrics.RecordAuthEvent(metrics.AuthEventExchange, metrics.OutcomeError)
		slog.Error("identity provider call failed", slog.String("error", err.Error()))
		return nil, nil, model.NewExternalServiceError("identity provider")
	}

	email := normalizeEmail(identity.Email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.RecordAuthEvent(metrics.AuthEventExchange, metrics.OutcomeError)
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		user = &model.User{
			ID:        email,
			Email:     email,
			Name:      identity.Name,
			Picture:   identity.Picture,
			Role:      model.RolePatient,
			CreatedAt: s.config.Now(),
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			if !errors.Is(err, repository.ErrDuplicateKey) {
				s.metrics.RecordAuthEvent(metrics.AuthEventExchange, metrics.OutcomeError)
				return nil, nil, fmt.Errorf("failed to create user: %w", err)
			}
			// 同時交換で先に作成された場合は既存ユーザーを使う
			user, err = s.userRepo.FindByEmail(ctx, email)
			if err != nil || user == nil {
				s.metrics.RecordAuthEvent(metrics.AuthEventExchange, metrics.OutcomeError)
				return nil, nil, fmt.Errorf("failed to reload user after conflict: %w", err)
			}
		} else {
			slog.Info("user created from external identity", slog.String("user_id", user.ID))
		}
	}

	session, err := s.createSession(ctx, identity.SessionToken, user.ID)
	if err != nil {
		s.metrics.RecordAuthEvent(metrics.AuthEventExchange, metrics.OutcomeError)
		return nil, nil, err
	}

	s.metrics.RecordAuthEvent(metrics.AuthEventExchange, metrics.OutcomeSuccess)
	return session, user, nil
}

// Logout はセッションを破棄する。トークンが空または存在しない場合もエラーにしない。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessionRepo.DeleteByID(ctx, token); err != nil {
		s.metrics.RecordAuthEvent(metrics.AuthEventLogout, metrics.OutcomeError)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.metrics.RecordAuthEvent(metrics.AuthEventLogout, metrics.OutcomeSuccess)
	return nil
}

// Authenticate はセッショントークンを利用者に解決する。
// トークンが存在しない、または expires_at <= now の場合は未認証エラーを返す。
// 失効したセッション行はここでは削除しない。
// セッションの利用者が存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, model.NewUnauthenticatedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewUnauthenticatedError()
	}
	if session.Expired(s.config.Now()) {
		return nil, model.NewSessionExpiredError()
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, token, userID string) (*model.Session, error) {
	now := s.config.Now()
	session := &model.Session{
		ID:        token,
		UserID:    userID,
		ExpiresAt: now.Add(s.config.SessionTTL),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}
