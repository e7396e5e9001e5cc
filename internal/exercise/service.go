// Package exercise は訓練ライブラリの管理を提供する。
package exercise

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fonomed/internal/auth"
	"github.com/hitoshi/fonomed/internal/model"
	"github.com/hitoshi/fonomed/internal/repository"
	"github.com/hitoshi/fonomed/internal/security"
)

// Service は訓練ライブラリのサービス層。
// 一覧と詳細は認証不要、作成・更新・削除は言語聴覚士と管理者のみ。
type Service struct {
	repo      repository.ExerciseRepository
	urlGuard  *security.URLGuard
	sanitizer *security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.ExerciseRepository, urlGuard *security.URLGuard, sanitizer *security.TextSanitizer) *Service {
	return &Service{
		repo:      repo,
		urlGuard:  urlGuard,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List は条件に一致する訓練を返す。
func (s *Service) List(ctx context.Context, filter model.ExerciseFilter) ([]*model.Exercise, error) {
	exercises, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("訓練一覧の取得に失敗しました: %w", err)
	}
	return exercises, nil
}

// Get は訓練を取得する。
func (s *Service) Get(ctx context.Context, id string) (*model.Exercise, error) {
	exercise, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("訓練の取得に失敗しました: %w", err)
	}
	if exercise == nil {
		return nil, model.NewNotFoundError("Exercise")
	}
	return exercise, nil
}

// Create は訓練を作成する。created_byは呼び出し元に固定する。
func (s *Service) Create(ctx context.Context, actor *model.User, input model.Exercise) (*model.Exercise, error) {
	if !auth.Allowed(actor.Role, auth.Staff...) {
		return nil, model.NewForbiddenError()
	}

	mediaURLs := input.MediaURLs
	if mediaURLs == nil {
		mediaURLs = []string{}
	}
	if err := s.urlGuard.ValidateURLs(mediaURLs); err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}

	exercise := &model.Exercise{
		ID:              uuid.NewString(),
		Title:           s.sanitizer.Sanitize(input.Title),
		Description:     s.sanitizer.Sanitize(input.Description),
		Category:        input.Category,
		DifficultyLevel: input.DifficultyLevel,
		MediaURLs:       mediaURLs,
		Instructions:    s.sanitizer.Sanitize(input.Instructions),
		EstimatedTime:   input.EstimatedTime,
		Frequency:       input.Frequency,
		CreatedBy:       actor.ID,
		CreatedAt:       s.now(),
	}

	if err := s.repo.Create(ctx, exercise); err != nil {
		return nil, fmt.Errorf("訓練の作成に失敗しました: %w", err)
	}
	return exercise, nil
}

// Update は許可されたフィールドのみを更新し、更新後の訓練を返す。
func (s *Service) Update(ctx context.Context, actor *model.User, id string, patch model.ExercisePatch) (*model.Exercise, error) {
	if !auth.Allowed(actor.Role, auth.Staff...) {
		return nil, model.NewForbiddenError()
	}
	if patch.IsEmpty() {
		return nil, model.NewInvalidRequestError("更新するフィールドがありません")
	}
	if patch.MediaURLs != nil {
		if err := s.urlGuard.ValidateURLs(*patch.MediaURLs); err != nil {
			return nil, model.NewInvalidURLError(err.Error())
		}
	}

	patch.Title = s.sanitizer.SanitizePtr(patch.Title)
	patch.Description = s.sanitizer.SanitizePtr(patch.Description)
	patch.Instructions = s.sanitizer.SanitizePtr(patch.Instructions)

	ok, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("訓練の更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewNotFoundError("Exercise")
	}
	return s.Get(ctx, id)
}

// Delete は訓練を削除する。
func (s *Service) Delete(ctx context.Context, actor *model.User, id string) error {
	if !auth.Allowed(actor.Role, auth.Staff...) {
		return model.NewForbiddenError()
	}
	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("訓練の削除に失敗しました: %w", err)
	}
	if !ok {
		return model.NewNotFoundError("Exercise")
	}
	return nil
}
