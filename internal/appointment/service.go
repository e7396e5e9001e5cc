// Package appointment は診療予約の管理を提供する。
package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fonomed/internal/model"
	"github.com/hitoshi/fonomed/internal/repository"
	"github.com/hitoshi/fonomed/internal/security"
)

// Service は診療予約のサービス層。
// 参照・更新範囲は呼び出し元のロールとプロフィールで決まる。
type Service struct {
	appointments repository.AppointmentRepository
	patients     repository.PatientRepository
	therapists   repository.TherapistRepository
	urlGuard     *security.URLGuard
	sanitizer    *security.TextSanitizer
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	appointments repository.AppointmentRepository,
	patients repository.PatientRepository,
	therapists repository.TherapistRepository,
	urlGuard *security.URLGuard,
	sanitizer *security.TextSanitizer,
) *Service {
	return &Service{
		appointments: appointments,
		patients:     patients,
		therapists:   therapists,
		urlGuard:     urlGuard,
		sanitizer:    sanitizer,
		now:          time.Now,
	}
}

// scope は呼び出し元が参照できる予約の範囲を返す。
// okがfalseの場合、呼び出し元にはプロフィールがなく参照できる予約はない。
func (s *Service) scope(ctx context.Context, actor *model.User) (filter repository.AppointmentFilter, ok bool, err error) {
	switch actor.Role {
	case model.RoleAdmin:
		return repository.AppointmentFilter{}, true, nil
	case model.RoleTherapist:
		therapist, err := s.therapists.FindByUserID(ctx, actor.ID)
		if err != nil {
			return filter, false, fmt.Errorf("言語聴覚士プロフィールの取得に失敗しました: %w", err)
		}
		if therapist == nil {
			return filter, false, nil
		}
		return repository.AppointmentFilter{TherapistID: therapist.ID}, true, nil
	case model.RolePatient:
		patient, err := s.patients.FindByUserID(ctx, actor.ID)
		if err != nil {
			return filter, false, fmt.Errorf("患者プロフィールの取得に失敗しました: %w", err)
		}
		if patient == nil {
			return filter, false, nil
		}
		return repository.AppointmentFilter{PatientID: patient.ID}, true, nil
	}
	return filter, false, nil
}

// List は呼び出し元が参照できる予約を日時順に返す。
func (s *Service) List(ctx context.Context, actor *model.User) ([]*model.Appointment, error) {
	filter, ok, err := s.scope(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []*model.Appointment{}, nil
	}

	appointments, err := s.appointments.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("予約一覧の取得に失敗しました: %w", err)
	}
	return appointments, nil
}

// Create は予約を作成する。
// 患者ロールはpatient_idを、プロフィールを持つ言語聴覚士はtherapist_idを自分に固定する。
func (s *Service) Create(ctx context.Context, actor *model.User, input model.Appointment) (*model.Appointment, error) {
	appt := &model.Appointment{
		ID:              uuid.NewString(),
		PatientID:       input.PatientID,
		TherapistID:     input.TherapistID,
		Date:            input.Date,
		AppointmentType: input.AppointmentType,
		Status:          input.Status,
		MeetingURL:      input.MeetingURL,
		Notes:           s.sanitizer.Sanitize(input.Notes),
		CreatedAt:       s.now(),
	}

	switch actor.Role {
	case model.RolePatient:
		patient, err := s.patients.FindByUserID(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("患者プロフィールの取得に失敗しました: %w", err)
		}
		if patient == nil {
			return nil, model.NewNotFoundError("Patient")
		}
		appt.PatientID = patient.ID
	case model.RoleTherapist:
		therapist, err := s.therapists.FindByUserID(ctx, actor.ID)
		if err != nil {
			return nil, fmt.Errorf("言語聴覚士プロフィールの取得に失敗しました: %w", err)
		}
		if therapist != nil {
			appt.TherapistID = therapist.ID
		}
	case model.RoleAdmin:
	default:
		return nil, model.NewForbiddenError()
	}

	if appt.PatientID == "" {
		return nil, model.NewInvalidRequestError("patient_id は必須です")
	}
	if appt.TherapistID == "" {
		return nil, model.NewInvalidRequestError("therapist_id は必須です")
	}
	if appt.Date.IsZero() {
		return nil, model.NewInvalidRequestError("date は必須です")
	}
	if appt.AppointmentType == "" {
		appt.AppointmentType = model.AppointmentTypeInPerson
	}
	if appt.Status == "" {
		appt.Status = model.AppointmentStatusScheduled
	}
	if err := s.validateFields(&appt.AppointmentType, &appt.Status, &appt.MeetingURL); err != nil {
		return nil, err
	}

	if actor.Role != model.RolePatient {
		patient, err := s.patients.FindByID(ctx, appt.PatientID)
		if err != nil {
			return nil, fmt.Errorf("患者の取得に失敗しました: %w", err)
		}
		if patient == nil {
			return nil, model.NewNotFoundError("Patient")
		}
	}
	therapist, err := s.therapists.FindByID(ctx, appt.TherapistID)
	if err != nil {
		return nil, fmt.Errorf("言語聴覚士の取得に失敗しました: %w", err)
	}
	if therapist == nil {
		return nil, model.NewNotFoundError("Therapist")
	}

	if err := s.appointments.Create(ctx, appt); err != nil {
		return nil, fmt.Errorf("予約の作成に失敗しました: %w", err)
	}
	return appt, nil
}

// Update は許可されたフィールドのみを更新し、更新後の予約を返す。
// 管理者はすべて、言語聴覚士と患者は自分が当事者の予約のみ更新できる。
func (s *Service) Update(ctx context.Context, actor *model.User, id string, patch model.AppointmentPatch) (*model.Appointment, error) {
	if patch.IsEmpty() {
		return nil, model.NewInvalidRequestError("更新するフィールドがありません")
	}
	if patch.Date != nil && patch.Date.IsZero() {
		return nil, model.NewInvalidRequestError("date が不正です")
	}
	if err := s.validateFields(patch.AppointmentType, patch.Status, patch.MeetingURL); err != nil {
		return nil, err
	}
	patch.Notes = s.sanitizer.SanitizePtr(patch.Notes)

	appt, err := s.appointments.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("予約の取得に失敗しました: %w", err)
	}
	if appt == nil {
		return nil, model.NewNotFoundError("Appointment")
	}

	filter, ok, err := s.scope(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !ok || !filter.Matches(appt) {
		return nil, model.NewForbiddenError()
	}

	updated, err := s.appointments.Update(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("予約の更新に失敗しました: %w", err)
	}
	if !updated {
		return nil, model.NewNotFoundError("Appointment")
	}

	appt, err = s.appointments.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("予約の再取得に失敗しました: %w", err)
	}
	if appt == nil {
		return nil, model.NewNotFoundError("Appointment")
	}
	return appt, nil
}

// validateFields は種別・ステータス・会議URLを検証する。nilの項目は検証しない。
func (s *Service) validateFields(apptType, status, meetingURL *string) error {
	if apptType != nil && !model.ValidAppointmentType(*apptType) {
		return model.NewInvalidRequestError(fmt.Sprintf("appointment_type が不正です: %s", *apptType))
	}
	if status != nil && !model.ValidAppointmentStatus(*status) {
		return model.NewInvalidRequestError(fmt.Sprintf("status が不正です: %s", *status))
	}
	if meetingURL != nil && *meetingURL != "" {
		if err := s.urlGuard.ValidateURL(*meetingURL); err != nil {
			return model.NewInvalidURLError(err.Error())
		}
	}
	return nil
}
