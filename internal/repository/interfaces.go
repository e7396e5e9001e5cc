// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/fonomed/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
// パスワードハッシュは扱わず、CredentialRepository に分離している。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレス重複時は ErrDuplicateKey を返す。
	Create(ctx context.Context, user *model.User) error

	// CreateWithCredential はユーザーとパスワード資格情報を同一トランザクションで作成する。
	// メールアドレス重複時は ErrDuplicateKey を返す。
	CreateWithCredential(ctx context.Context, user *model.User, credential *model.Credential) error

	// List は全ユーザーを作成日時の昇順で返す。
	List(ctx context.Context) ([]*model.User, error)

	// UpdateRole はユーザーのロールを更新する。対象が存在しない場合はfalseを返す。
	UpdateRole(ctx context.Context, id string, role model.Role) (bool, error)

	// Count は全ユーザー数を返す。
	Count(ctx context.Context) (int64, error)
}

// CredentialRepository はパスワード資格情報の永続化インターフェース。
type CredentialRepository interface {
	// FindByUserID はユーザーの資格情報を取得する。存在しない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Credential, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを保存する。同じIDのセッションが存在する場合は上書きする。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れでも行が存在すれば返す。
	// 見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しない場合もエラーにしない。
	DeleteByID(ctx context.Context, id string) error
}

// ExpiredSessionDeleter は期限切れセッションの一括削除インターフェース。
type ExpiredSessionDeleter interface {
	// DeleteExpired はnow以前に失効したセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PatientRepository は患者プロフィールの永続化インターフェース。
type PatientRepository interface {
	FindByID(ctx context.Context, id string) (*model.Patient, error)
	// FindByUserID は利用者アカウントに紐付く患者プロフィールを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.Patient, error)
	List(ctx context.Context) ([]*model.Patient, error)
	Create(ctx context.Context, patient *model.Patient) error
	// Update はpatchの非nilフィールドのみを更新する。対象が存在しない場合はfalseを返す。
	Update(ctx context.Context, id string, patch model.PatientPatch) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// TherapistRepository は言語聴覚士プロフィールの永続化インターフェース。
type TherapistRepository interface {
	FindByID(ctx context.Context, id string) (*model.Therapist, error)
	FindByUserID(ctx context.Context, userID string) (*model.Therapist, error)
	List(ctx context.Context) ([]*model.Therapist, error)
	Create(ctx context.Context, therapist *model.Therapist) error
	Count(ctx context.Context) (int64, error)
}

// ExerciseRepository は訓練ライブラリの永続化インターフェース。
type ExerciseRepository interface {
	FindByID(ctx context.Context, id string) (*model.Exercise, error)
	List(ctx context.Context, filter model.ExerciseFilter) ([]*model.Exercise, error)
	Create(ctx context.Context, exercise *model.Exercise) error
	Update(ctx context.Context, id string, patch model.ExercisePatch) (bool, error)
	// Delete は訓練を削除する。対象が存在しない場合はfalseを返す。
	Delete(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// TherapyPlanRepository は治療計画と計画内訓練の永続化インターフェース。
type TherapyPlanRepository interface {
	FindByID(ctx context.Context, id string) (*model.TherapyPlan, error)
	// List は治療計画を返す。patientIDが空の場合は全件を返す。
	List(ctx context.Context, patientID string) ([]*model.TherapyPlan, error)
	Create(ctx context.Context, plan *model.TherapyPlan) error
	AddExercise(ctx context.Context, pe *model.PlanExercise) error
	ListExercises(ctx context.Context, planID string) ([]*model.PlanExercise, error)
	Count(ctx context.Context) (int64, error)
}

// ProgressRepository は経過日誌の永続化インターフェース。
type ProgressRepository interface {
	FindByID(ctx context.Context, id string) (*model.ProgressEntry, error)
	// List は経過日誌を日付の降順で返す。patientIDが空の場合は全件、limitが0以下の場合は上限なし。
	List(ctx context.Context, patientID string, limit int) ([]*model.ProgressEntry, error)
	Create(ctx context.Context, entry *model.ProgressEntry) error
	// UpdateComment は言語聴覚士コメントを更新する。対象が存在しない場合はfalseを返す。
	UpdateComment(ctx context.Context, id, comment string) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// AppointmentFilter は予約一覧の絞り込み条件を表す。空文字は条件なし。
type AppointmentFilter struct {
	PatientID   string
	TherapistID string
}

// Matches は予約が絞り込み条件に一致するかを返す。
func (f AppointmentFilter) Matches(a *model.Appointment) bool {
	if f.PatientID != "" && a.PatientID != f.PatientID {
		return false
	}
	if f.TherapistID != "" && a.TherapistID != f.TherapistID {
		return false
	}
	return true
}

// AppointmentRepository は診療予約の永続化インターフェース。
type AppointmentRepository interface {
	FindByID(ctx context.Context, id string) (*model.Appointment, error)
	List(ctx context.Context, filter AppointmentFilter) ([]*model.Appointment, error)
	Create(ctx context.Context, appointment *model.Appointment) error
	Update(ctx context.Context, id string, patch model.AppointmentPatch) (bool, error)
	Count(ctx context.Context) (int64, error)
}
