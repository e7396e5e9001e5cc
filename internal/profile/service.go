// Package profile は患者と言語聴覚士のプロフィール管理を提供する。
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fonomed/internal/auth"
	"github.com/hitoshi/fonomed/internal/model"
	"github.com/hitoshi/fonomed/internal/repository"
	"github.com/hitoshi/fonomed/internal/security"
)

// Service はプロフィール管理のサービス層。
type Service struct {
	patients   repository.PatientRepository
	therapists repository.TherapistRepository
	sanitizer  *security.TextSanitizer
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	patients repository.PatientRepository,
	therapists repository.TherapistRepository,
	sanitizer *security.TextSanitizer,
) *Service {
	return &Service{
		patients:   patients,
		therapists: therapists,
		sanitizer:  sanitizer,
		now:        time.Now,
	}
}

// ListPatients は全患者を返す。言語聴覚士と管理者のみ。
func (s *Service) ListPatients(ctx context.Context, actor *model.User) ([]*model.Patient, error) {
	if !auth.Allowed(actor.Role, auth.Staff...) {
		return nil, model.NewForbiddenError()
	}
	patients, err := s.patients.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("患者一覧の取得に失敗しました: %w", err)
	}
	return patients, nil
}

// GetPatient は患者を取得する。患者ロールは自分のプロフィールのみ参照できる。
func (s *Service) GetPatient(ctx context.Context, actor *model.User, id string) (*model.Patient, error) {
	patient, err := s.patients.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("患者の取得に失敗しました: %w", err)
	}
	if patient == nil {
		return nil, model.NewNotFoundError("Patient")
	}
	if !canAccessPatient(actor, patient) {
		return nil, model.NewForbiddenError()
	}
	return patient, nil
}

// CreatePatient は患者プロフィールを作成する。
// 患者ロールが作成する場合、user_idは呼び出し元に固定する。
func (s *Service) CreatePatient(ctx context.Context, actor *model.User, input model.Patient) (*model.Patient, error) {
	patient := &model.Patient{
		ID:           uuid.NewString(),
		UserID:       input.UserID,
		FullName:     s.sanitizer.Sanitize(input.FullName),
		BirthDate:    input.BirthDate,
		CPF:          input.CPF,
		Phone:        input.Phone,
		Address:      s.sanitizer.Sanitize(input.Address),
		Diagnosis:    s.sanitizer.Sanitize(input.Diagnosis),
		Observations: s.sanitizer.Sanitize(input.Observations),
		CreatedAt:    s.now(),
	}
	if !auth.Allowed(actor.Role, auth.Staff...) {
		patient.UserID = actor.ID
	}

	if err := s.patients.Create(ctx, patient); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, model.NewProfileAlreadyExistsError("Patient")
		}
		return nil, fmt.Errorf("患者の作成に失敗しました: %w", err)
	}
	return patient, nil
}

// UpdatePatient は許可されたフィールドのみを更新し、更新後の患者を返す。
// 言語聴覚士・管理者、またはプロフィールを所有する患者のみ更新できる。
func (s *Service) UpdatePatient(ctx context.Context, actor *model.User, id string, patch model.PatientPatch) (*model.Patient, error) {
	if patch.IsEmpty() {
		return nil, model.NewInvalidRequestError("更新するフィールドがありません")
	}

	if _, err := s.GetPatient(ctx, actor, id); err != nil {
		return nil, err
	}

	patch.FullName = s.sanitizer.SanitizePtr(patch.FullName)
	patch.Address = s.sanitizer.SanitizePtr(patch.Address)
	patch.Diagnosis = s.sanitizer.SanitizePtr(patch.Diagnosis)
	patch.Observations = s.sanitizer.SanitizePtr(patch.Observations)

	ok, err := s.patients.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("患者の更新に失敗しました: %w", err)
	}
	if !ok {
		return nil, model.NewNotFoundError("Patient")
	}

	updated, err := s.patients.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("患者の再取得に失敗しました: %w", err)
	}
	if updated == nil {
		return nil, model.NewNotFoundError("Patient")
	}
	return updated, nil
}

// ListTherapists は全言語聴覚士を返す。
func (s *Service) ListTherapists(ctx context.Context) ([]*model.Therapist, error) {
	therapists, err := s.therapists.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("言語聴覚士一覧の取得に失敗しました: %w", err)
	}
	return therapists, nil
}

// CreateTherapist は言語聴覚士プロフィールを作成する。
// 言語聴覚士ロールが作成する場合、user_idは呼び出し元に固定する。
func (s *Service) CreateTherapist(ctx context.Context, actor *model.User, input model.Therapist) (*model.Therapist, error) {
	if !auth.Allowed(actor.Role, auth.Staff...) {
		return nil, model.NewForbiddenError()
	}

	specialties := make([]string, 0, len(input.Specialties))
	for _, sp := range input.Specialties {
		if v := s.sanitizer.Sanitize(sp); v != "" {
			specialties = append(specialties, v)
		}
	}

	therapist := &model.Therapist{
		ID:          uuid.NewString(),
		UserID:      input.UserID,
		FullName:    s.sanitizer.Sanitize(input.FullName),
		CRFaNumber:  input.CRFaNumber,
		Specialties: specialties,
		Bio:         s.sanitizer.Sanitize(input.Bio),
		CreatedAt:   s.now(),
	}
	if actor.Role == model.RoleTherapist {
		therapist.UserID = actor.ID
	}

	if err := s.therapists.Create(ctx, therapist); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, model.NewProfileAlreadyExistsError("Therapist")
		}
		return nil, fmt.Errorf("言語聴覚士の作成に失敗しました: %w", err)
	}
	return therapist, nil
}

// canAccessPatient はactorが患者プロフィールを参照・更新できるかを返す。
func canAccessPatient(actor *model.User, patient *model.Patient) bool {
	if auth.Allowed(actor.Role, auth.Staff...) {
		return true
	}
	return actor.Role == model.RolePatient && patient.UserID == actor.ID
}
