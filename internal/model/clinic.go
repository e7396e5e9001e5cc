package model

import "time"

// Patient は患者プロフィールを表す。UserIDで利用者アカウントに紐付く。
type Patient struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	FullName     string    `json:"full_name"`
	BirthDate    string    `json:"birth_date"`
	CPF          string    `json:"cpf"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	Diagnosis    string    `json:"diagnosis"`
	Observations string    `json:"observations"`
	CreatedAt    time.Time `json:"created_at"`
}

// PatientPatch は患者プロフィールの更新可能フィールドを表す。
// nilのフィールドは更新しない。
type PatientPatch struct {
	FullName     *string `json:"full_name"`
	BirthDate    *string `json:"birth_date"`
	CPF          *string `json:"cpf"`
	Phone        *string `json:"phone"`
	Address      *string `json:"address"`
	Diagnosis    *string `json:"diagnosis"`
	Observations *string `json:"observations"`
}

// IsEmpty は更新対象フィールドが1つもないかを返す。
func (p PatientPatch) IsEmpty() bool {
	return p.FullName == nil && p.BirthDate == nil && p.CPF == nil && p.Phone == nil &&
		p.Address == nil && p.Diagnosis == nil && p.Observations == nil
}

// Therapist は言語聴覚士プロフィールを表す。
type Therapist struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	FullName    string    `json:"full_name"`
	CRFaNumber  string    `json:"crfa_number"`
	Specialties []string  `json:"specialties"`
	Bio         string    `json:"bio"`
	CreatedAt   time.Time `json:"created_at"`
}

// Exercise は訓練ライブラリの1件を表す。
type Exercise struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	DifficultyLevel string    `json:"difficulty_level"`
	MediaURLs       []string  `json:"media_urls"`
	Instructions    string    `json:"instructions"`
	EstimatedTime   *int      `json:"estimated_time"` // 分
	Frequency       string    `json:"frequency"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
}

// ExercisePatch は訓練の更新可能フィールドを表す。
type ExercisePatch struct {
	Title           *string   `json:"title"`
	Description     *string   `json:"description"`
	Category        *string   `json:"category"`
	DifficultyLevel *string   `json:"difficulty_level"`
	MediaURLs       *[]string `json:"media_urls"`
	Instructions    *string   `json:"instructions"`
	EstimatedTime   *int      `json:"estimated_time"`
	Frequency       *string   `json:"frequency"`
}

// IsEmpty は更新対象フィールドが1つもないかを返す。
func (p ExercisePatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.DifficultyLevel == nil &&
		p.MediaURLs == nil && p.Instructions == nil && p.EstimatedTime == nil && p.Frequency == nil
}

// ExerciseFilter は訓練一覧の絞り込み条件を表す。空文字は条件なし。
type ExerciseFilter struct {
	Category        string
	DifficultyLevel string
}

// 治療計画のステータス
const (
	PlanStatusActive    = "active"
	PlanStatusCompleted = "completed"
	PlanStatusCancelled = "cancelled"
)

// TherapyPlan は患者ごとの治療計画を表す。
type TherapyPlan struct {
	ID          string     `json:"id"`
	PatientID   string     `json:"patient_id"`
	TherapistID string     `json:"therapist_id"`
	Title       string     `json:"title"`
	Objectives  string     `json:"objectives"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ValidPlanStatus は治療計画ステータスが定義済みの値かを返す。
func ValidPlanStatus(s string) bool {
	switch s {
	case PlanStatusActive, PlanStatusCompleted, PlanStatusCancelled:
		return true
	}
	return false
}

// PlanExercise は治療計画に割り当てられた訓練を表す。
type PlanExercise struct {
	ID         string `json:"id"`
	PlanID     string `json:"plan_id"`
	ExerciseID string `json:"exercise_id"`
	Schedule   string `json:"schedule"`
	Frequency  string `json:"frequency"`
	Notes      string `json:"notes"`
}

// ProgressEntry は経過日誌の1件を表す。
type ProgressEntry struct {
	ID               string    `json:"id"`
	PatientID        string    `json:"patient_id"`
	PlanID           string    `json:"plan_id"`
	ExerciseID       string    `json:"exercise_id"`
	Date             time.Time `json:"date"`
	AudioURL         string    `json:"audio_url"`
	VideoURL         string    `json:"video_url"`
	TextNotes        string    `json:"text_notes"`
	TherapistComment string    `json:"therapist_comment"`
	CreatedAt        time.Time `json:"created_at"`
}

// 予約種別と予約ステータス
const (
	AppointmentTypeInPerson = "presencial"
	AppointmentTypeOnline   = "online"

	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusCompleted = "completed"
	AppointmentStatusCancelled = "cancelled"
)

// Appointment は診療予約を表す。
type Appointment struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	TherapistID     string    `json:"therapist_id"`
	Date            time.Time `json:"date"`
	AppointmentType string    `json:"appointment_type"`
	Status          string    `json:"status"`
	MeetingURL      string    `json:"meeting_url"`
	Notes           string    `json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
}

// AppointmentPatch は予約の更新可能フィールドを表す。
type AppointmentPatch struct {
	Date            *time.Time `json:"date"`
	AppointmentType *string    `json:"appointment_type"`
	Status          *string    `json:"status"`
	MeetingURL      *string    `json:"meeting_url"`
	Notes           *string    `json:"notes"`
}

// IsEmpty は更新対象フィールドが1つもないかを返す。
func (p AppointmentPatch) IsEmpty() bool {
	return p.Date == nil && p.AppointmentType == nil && p.Status == nil && p.MeetingURL == nil && p.Notes == nil
}

// ValidAppointmentType は予約種別が定義済みの値かを返す。
func ValidAppointmentType(s string) bool {
	return s == AppointmentTypeInPerson || s == AppointmentTypeOnline
}

// ValidAppointmentStatus は予約ステータスが定義済みの値かを返す。
func ValidAppointmentStatus(s string) bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// Stats は管理画面向けの集計値を表す。
type Stats struct {
	TotalUsers           int64 `json:"total_users"`
	TotalPatients        int64 `json:"total_patients"`
	TotalTherapists      int64 `json:"total_therapists"`
	TotalExercises       int64 `json:"total_exercises"`
	TotalPlans           int64 `json:"total_plans"`
	TotalAppointments    int64 `json:"total_appointments"`
	TotalProgressEntries int64 `json:"total_progress_entries"`
}
