// Package admin は管理者向けの利用者管理と集計を提供する。
package admin

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/fonomed/internal/auth"
	"github.com/hitoshi/fonomed/internal/model"
	"github.com/hitoshi/fonomed/internal/repository"
)

// Repositories は集計対象のリポジトリ群。
type Repositories struct {
	Users        repository.UserRepository
	Patients     repository.PatientRepository
	Therapists   repository.TherapistRepository
	Exercises    repository.ExerciseRepository
	Plans        repository.TherapyPlanRepository
	Appointments repository.AppointmentRepository
	Progress     repository.ProgressRepository
}

// Service は管理機能のサービス層。すべての操作は管理者のみ。
type Service struct {
	repos Repositories
}

// NewService はServiceを生成する。
func NewService(repos Repositories) *Service {
	return &Service{repos: repos}
}

// ListUsers は全利用者の公開情報を返す。
func (s *Service) ListUsers(ctx context.Context, actor *model.User) ([]*model.User, error) {
	if !auth.Allowed(actor.Role, auth.AdminOnly...) {
		return nil, model.NewForbiddenError()
	}
	users, err := s.repos.Users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("利用者一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// UpdateRole は利用者のロールを変更する。
func (s *Service) UpdateRole(ctx context.Context, actor *model.User, userID, role string) error {
	if !auth.Allowed(actor.Role, auth.AdminOnly...) {
		return model.NewForbiddenError()
	}
	r, ok := model.ParseRole(role)
	if !ok {
		return model.NewInvalidRequestError(fmt.Sprintf("role が不正です: %s", role))
	}

	updated, err := s.repos.Users.UpdateRole(ctx, userID, r)
	if err != nil {
		return fmt.Errorf("ロールの更新に失敗しました: %w", err)
	}
	if !updated {
		return model.NewUserNotFoundError()
	}

	slog.Info("user role updated",
		slog.String("user_id", userID),
		slog.String("role", string(r)),
		slog.String("updated_by", actor.ID),
	)
	return nil
}

// Stats は各テーブルの件数を返す。
func (s *Service) Stats(ctx context.Context, actor *model.User) (*model.Stats, error) {
	if !auth.Allowed(actor.Role, auth.AdminOnly...) {
		return nil, model.NewForbiddenError()
	}

	type counter interface {
		Count(ctx context.Context) (int64, error)
	}
	stats := &model.Stats{}
	targets := []struct {
		name string
		repo counter
		dst  *int64
	}{
		{"users", s.repos.Users, &stats.TotalUsers},
		{"patients", s.repos.Patients, &stats.TotalPatients},
		{"therapists", s.repos.Therapists, &stats.TotalTherapists},
		{"exercises", s.repos.Exercises, &stats.TotalExercises},
		{"therapy_plans", s.repos.Plans, &stats.TotalPlans},
		{"appointments", s.repos.Appointments, &stats.TotalAppointments},
		{"progress_entries", s.repos.Progress, &stats.TotalProgressEntries},
	}
	for _, t := range targets {
		n, err := t.repo.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s の件数取得に失敗しました: %w", t.name, err)
		}
		*t.dst = n
	}
	return stats, nil
}
