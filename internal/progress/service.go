// Package progress は経過日誌と言語聴覚士コメントを提供する。
package progress

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

// Service は経過日誌のサービス層。
type Service struct {
	entries   repository.ProgressRepository
	patients  repository.PatientRepository
	urlGuard  *security.URLGuard
	sanitizer *security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	entries repository.ProgressRepository,
	patients repository.PatientRepository,
	urlGuard *security.URLGuard,
	sanitizer *security.TextSanitizer,
) *Service {
	return &Service{
		entries:   entries,
		patients:  patients,
		urlGuard:  urlGuard,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// List は経過日誌を新しい順に返す。患者ロールは自分の記録のみ。
func (s *Service) List(ctx context.Context, actor *model.User) ([]*model.ProgressEntry, error) {
	patientID := ""
	if !auth.Allowed(actor.Role, auth.Staff...) {
		patient, err := s.patients.FindByUserID(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("患者プロフィールの取得に失敗しました: %w", err)
		}
		if patient == nil {
			return []*model.ProgressEntry{}, nil
		}
		patientID = patient.ID
	}

	entries, err := s.entries.List(ctx, patientID, 0)
	if err != nil {
		return nil, fmt.Errorf("経過日誌の取得に失敗しました: %w", err)
	}
	return entries, nil
}

// Create は経過日誌を記録する。
// 患者ロールはpatient_idを自分のプロフィールに固定し、それ以外はpatient_idを必須とする。
func (s *Service) Create(ctx context.Context, actor *model.User, input model.ProgressEntry) (*model.ProgressEntry, error) {
	var patient *model.Patient
	var err error
	if auth.Allowed(actor.Role, auth.Staff...) {
		if input.PatientID == "" {
			return nil, model.NewInvalidRequestError("patient_id は必須です")
		}
		patient, err = s.patients.FindByID(ctx, input.PatientID)
	} else {
		patient, err = s.patients.FindByUserID(ctx, actor.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("患者の取得に失敗しました: %w", err)
	}
	if patient == nil {
		return nil, model.NewNotFoundError("Patient")
	}

	for _, u := range []string{input.AudioURL, input.VideoURL} {
		if u == "" {
			continue
		}
		if err := s.urlGuard.ValidateURL(u); err != nil {
			return nil, model.NewInvalidURLError(err.Error())
		}
	}

	now := s.now()
	date := input.Date
	if date.IsZero() {
		date = now
	}

	entry := &model.ProgressEntry{
		ID:         uuid.NewString(),
		PatientID:  patient.ID,
		PlanID:     input.PlanID,
		ExerciseID: input.ExerciseID,
		Date:       date,
		AudioURL:   input.AudioURL,
		VideoURL:   input.VideoURL,
		TextNotes:  s.sanitizer.Sanitize(input.TextNotes),
		CreatedAt:  now,
	}

	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("経過日誌の作成に失敗しました: %w", err)
	}
	return entry, nil
}

// Comment は言語聴覚士コメントを設定する。言語聴覚士と管理者のみ。
func (s *Service) Comment(ctx context.Context, actor *model.User, id, comment string) error {
	if !auth.Allowed(actor.Role, auth.Staff...) {
		return model.NewForbiddenError()
	}
	ok, err := s.entries.UpdateComment(ctx, id, s.sanitizer.Sanitize(comment))
	if err != nil {
		return fmt.Errorf("コメントの更新に失敗しました: %w", err)
	}
	if !ok {
		return model.NewNotFoundError("Entry")
	}
	return nil
}
