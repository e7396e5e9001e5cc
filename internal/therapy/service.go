// Package therapy は治療計画と計画内訓練の管理を提供する。
package therapy

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

// PlanDetail は治療計画と割り当て済み訓練を結合したレスポンス。
type PlanDetail struct {
	model.TherapyPlan
	Exercises []*model.PlanExercise `json:"exercises"`
}

// Service は治療計画のサービス層。
type Service struct {
	plans      repository.TherapyPlanRepository
	patients   repository.PatientRepository
	therapists repository.TherapistRepository
	exercises  repository.ExerciseRepository
	sanitizer  *security.TextSanitizer
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	plans repository.TherapyPlanRepository,
	patients repository.PatientRepository,
	therapists repository.TherapistRepository,
	exercises repository.ExerciseRepository,
	sanitizer *security.TextSanitizer,
) *Service {
	return &Service{
		plans:      plans,
		patients:   patients,
		therapists: therapists,
		exercises:  exercises,
		sanitizer:  sanitizer,
		now:        time.Now,
	}
}

// List は治療計画を返す。患者ロールは自分の計画のみ、プロフィールがなければ空。
func (s *Service) List(ctx context.Context, actor *model.User) ([]*model.TherapyPlan, error) {
	patientID := ""
	if !auth.Allowed(actor.Role, auth.Staff...) {
		patient, err := s.patients.FindByUserID(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("患者プロフィールの取得に失敗しました: %w", err)
		}
		if patient == nil {
			return []*model.TherapyPlan{}, nil
		}
		patientID = patient.ID
	}

	plans, err := s.plans.List(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("治療計画一覧の取得に失敗しました: %w", err)
	}
	return plans, nil
}

// Get は治療計画を割り当て済み訓練付きで返す。患者ロールは自分の計画のみ参照できる。
func (s *Service) Get(ctx context.Context, actor *model.User, id string) (*PlanDetail, error) {
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("治療計画の取得に失敗しました: %w", err)
	}
	if plan == nil {
		return nil, model.NewNotFoundError("Plan")
	}

	if !auth.Allowed(actor.Role, auth.Staff...) {
		patient, err := s.patients.FindByUserID(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("患者プロフィールの取得に失敗しました: %w", err)
		}
		if patient == nil || patient.ID != plan.PatientID {
			return nil, model.NewForbiddenError()
		}
	}

	exercises, err := s.plans.ListExercises(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("計画内訓練の取得に失敗しました: %w", err)
	}
	return &PlanDetail{TherapyPlan: *plan, Exercises: exercises}, nil
}

// Create は治療計画を作成する。
// therapist_id省略時は呼び出し元の言語聴覚士プロフィールを使う。
func (s *Service) Create(ctx context.Context, actor *model.User, input model.TherapyPlan) (*model.TherapyPlan, error) {
	if !auth.Allowed(actor.Role, auth.Staff...) {
		return nil, model.NewForbiddenError()
	}

	patient, err := s.patients.FindByID(ctx, input.PatientID)
	if err != nil {
		return nil, fmt.Errorf("患者の取得に失敗しました: %w", err)
	}
	if patient == nil {
		return nil, model.NewNotFoundError("Patient")
	}

	therapistID := input.TherapistID
	if therapistID == "" {
		therapist, err := s.therapists.FindByUserID(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("言語聴覚士プロフィールの取得に失敗しました: %w", err)
		}
		if therapist == nil {
			return nil, model.NewInvalidRequestError("therapist_id は必須です")
		}
		therapistID = therapist.ID
	}

	status := input.Status
	if status == "" {
		status = model.PlanStatusActive
	}
	if !model.ValidPlanStatus(status) {
		return nil, model.NewInvalidRequestError(fmt.Sprintf("status が不正です: %s", status))
	}

	now := s.now()
	startDate := input.StartDate
	if startDate.IsZero() {
		startDate = now
	}
	if input.EndDate != nil && input.EndDate.Before(startDate) {
		return nil, model.NewInvalidRequestError("end_date は start_date 以降である必要があります")
	}

	plan := &model.TherapyPlan{
		ID:          uuid.NewString(),
		PatientID:   patient.ID,
		TherapistID: therapistID,
		Title:       s.sanitizer.Sanitize(input.Title),
		Objectives:  s.sanitizer.Sanitize(input.Objectives),
		StartDate:   startDate,
		EndDate:     input.EndDate,
		Status:      status,
		CreatedAt:   now,
	}

	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, fmt.Errorf("治療計画の作成に失敗しました: %w", err)
	}
	return plan, nil
}

// AddExercise は治療計画に訓練を割り当てる。計画IDはパスの値を使う。
func (s *Service) AddExercise(ctx context.Context, actor *model.User, planID string, input model.PlanExercise) (*model.PlanExercise, error) {
	if !auth.Allowed(actor.Role, auth.Staff...) {
		return nil, model.NewForbiddenError()
	}

	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("治療計画の取得に失敗しました: %w", err)
	}
	if plan == nil {
		return nil, model.NewNotFoundError("Plan")
	}

	exercise, err := s.exercises.FindByID(ctx, input.ExerciseID)
	if err != nil {
		return nil, fmt.Errorf("訓練の取得に失敗しました: %w", err)
	}
	if exercise == nil {
		return nil, model.NewNotFoundError("Exercise")
	}

	pe := &model.PlanExercise{
		ID:         uuid.NewString(),
		PlanID:     plan.ID,
		ExerciseID: exercise.ID,
		Schedule:   input.Schedule,
		Frequency:  input.Frequency,
		Notes:      s.sanitizer.Sanitize(input.Notes),
	}

	if err := s.plans.AddExercise(ctx, pe); err != nil {
		return nil, fmt.Errorf("計画内訓練の追加に失敗しました: %w", err)
	}
	return pe, nil
}
