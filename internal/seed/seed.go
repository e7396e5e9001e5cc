// Package seed はデモ用アカウント、プロフィール、訓練ライブラリを投入する。
// 既存の行は変更しないため、繰り返し実行できる。
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fonomed/internal/auth"
	"github.com/hitoshi/fonomed/internal/model"
	"github.com/hitoshi/fonomed/internal/repository"
)

// DefaultPassword はデモアカウントの既定パスワード。
const DefaultPassword = "demo123"

// Result は投入件数を表す。
type Result struct {
	UsersCreated      int
	ProfilesCreated   int
	ExercisesCreated  int
	ExercisesExisting int64
}

// Seeder はデモデータを投入する。
type Seeder struct {
	users      repository.UserRepository
	patients   repository.PatientRepository
	therapists repository.TherapistRepository
	exercises  repository.ExerciseRepository
	logger     *slog.Logger
	now        func() time.Time
}

// NewSeeder はSeederを生成する。
func NewSeeder(
	users repository.UserRepository,
	patients repository.PatientRepository,
	therapists repository.TherapistRepository,
	exercises repository.ExerciseRepository,
	logger *slog.Logger,
) *Seeder {
	return &Seeder{
		users:      users,
		patients:   patients,
		therapists: therapists,
		exercises:  exercises,
		logger:     logger,
		now:        time.Now,
	}
}

// Run はデモデータを投入する。passwordが空の場合はDefaultPasswordを使う。
func (s *Seeder) Run(ctx context.Context, password string) (*Result, error) {
	if password == "" {
		password = DefaultPassword
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	for _, acct := range demoAccounts {
		created, err := s.ensureUser(ctx, acct, hash)
		if err != nil {
			return nil, err
		}
		if created {
			result.UsersCreated++
		}

		profiled, err := s.ensureProfile(ctx, acct)
		if err != nil {
			return nil, err
		}
		if profiled {
			result.ProfilesCreated++
		}
	}

	count, err := s.exercises.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("訓練件数の取得に失敗しました: %w", err)
	}
	if count > 0 {
		result.ExercisesExisting = count
		s.logger.Info("exercises already present, skipping catalogue", slog.Int64("count", count))
	} else {
		admin := demoAccounts[0].email
		for _, ex := range demoExercises {
			e := ex
			e.ID = uuid.NewString()
			e.CreatedBy = admin
			e.CreatedAt = s.now()
			if e.MediaURLs == nil {
				e.MediaURLs = []string{}
			}
			if err := s.exercises.Create(ctx, &e); err != nil {
				return nil, fmt.Errorf("訓練の作成に失敗しました: %w", err)
			}
			result.ExercisesCreated++
		}
	}

	s.logger.Info("seed completed",
		slog.Int("users_created", result.UsersCreated),
		slog.Int("profiles_created", result.ProfilesCreated),
		slog.Int("exercises_created", result.ExercisesCreated),
	)
	return result, nil
}

func (s *Seeder) ensureUser(ctx context.Context, acct demoAccount, hash string) (bool, error) {
	existing, err := s.users.FindByID(ctx, acct.email)
	if err != nil {
		return false, fmt.Errorf("利用者の取得に失敗しました: %w", err)
	}
	if existing != nil {
		s.logger.Info("demo user already exists", slog.String("user_id", acct.email))
		return false, nil
	}

	now := s.now()
	user := &model.User{ID: acct.email, Email: acct.email, Name: acct.name, Role: acct.role, CreatedAt: now}
	cred := &model.Credential{UserID: acct.email, PasswordHash: hash, UpdatedAt: now}
	if err := s.users.CreateWithCredential(ctx, user, cred); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return false, nil
		}
		return false, fmt.Errorf("利用者の作成に失敗しました: %w", err)
	}
	return true, nil
}

func (s *Seeder) ensureProfile(ctx context.Context, acct demoAccount) (bool, error) {
	switch {
	case acct.patient != nil:
		existing, err := s.patients.FindByUserID(ctx, acct.email)
		if err != nil {
			return false, fmt.Errorf("患者プロフィールの取得に失敗しました: %w", err)
		}
		if existing != nil {
			return false, nil
		}
		p := *acct.patient
		p.ID = uuid.NewString()
		p.UserID = acct.email
		p.CreatedAt = s.now()
		if err := s.patients.Create(ctx, &p); err != nil {
			return false, fmt.Errorf("患者プロフィールの作成に失敗しました: %w", err)
		}
		return true, nil

	case acct.therapist != nil:
		existing, err := s.therapists.FindByUserID(ctx, acct.email)
		if err != nil {
			return false, fmt.Errorf("言語聴覚士プロフィールの取得に失敗しました: %w", err)
		}
		if existing != nil {
			return false, nil
		}
		th := *acct.therapist
		th.ID = uuid.NewString()
		th.UserID = acct.email
		th.Specialties = append([]string{}, acct.therapist.Specialties...)
		th.CreatedAt = s.now()
		if err := s.therapists.Create(ctx, &th); err != nil {
			return false, fmt.Errorf("言語聴覚士プロフィールの作成に失敗しました: %w", err)
		}
		return true, nil
	}
	return false, nil
}
