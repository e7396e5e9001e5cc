// Package recommend は患者ごとの訓練推薦をテキスト生成APIで提供する。
// 生成に失敗しても定型文で正常応答する。
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/fonomed/internal/auth"
	"github.com/hitoshi/fonomed/internal/metrics"
	"github.com/hitoshi/fonomed/internal/model"
	"github.com/hitoshi/fonomed/internal/repository"
)

const (
	// FallbackText はテキスト生成に失敗した場合の応答。
	FallbackText = "AI service temporarily unavailable. Please try again later."
	// SystemMessage はテキスト生成APIに渡すシステムメッセージ。
	SystemMessage = "You are a professional speech therapy assistant."
	// recentProgressLimit はプロンプトに含める直近の経過日誌件数。
	recentProgressLimit = 10
)

// 代替応答の理由
const (
	FallbackNotConfigured = "not_configured"
	FallbackTimeout       = "timeout"
	FallbackEmpty         = "empty_response"
	FallbackUpstream      = "upstream_error"
)

// Generator はテキスト生成のインターフェース。
type Generator interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Service は訓練推薦のサービス層。
type Service struct {
	generator Generator
	patients  repository.PatientRepository
	exercises repository.ExerciseRepository
	progress  repository.ProgressRepository
	metrics   metrics.Recorder
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	generator Generator,
	patients repository.PatientRepository,
	exercises repository.ExerciseRepository,
	progress repository.ProgressRepository,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		generator: generator,
		patients:  patients,
		exercises: exercises,
		progress:  progress,
		metrics:   recorder,
		logger:    logger,
	}
}

// Recommend は患者に適した訓練の推薦文を返す。
// 患者が存在しない場合はNotFound、生成失敗時はFallbackTextを返す。
func (s *Service) Recommend(ctx context.Context, actor *model.User, patientID string) (string, error) {
	if !auth.Allowed(actor.Role, auth.Staff...) {
		return "", model.NewForbiddenError()
	}

	patient, err := s.patients.FindByID(ctx, patientID)
	if err != nil {
		return "", fmt.Errorf("患者の取得に失敗しました: %w", err)
	}
	if patient == nil {
		return "", model.NewNotFoundError("Patient")
	}

	exercises, err := s.exercises.List(ctx, model.ExerciseFilter{})
	if err != nil {
		return "", fmt.Errorf("訓練一覧の取得に失敗しました: %w", err)
	}

	entries, err := s.progress.List(ctx, patient.ID, recentProgressLimit)
	if err != nil {
		return "", fmt.Errorf("経過日誌の取得に失敗しました: %w", err)
	}

	text, err := s.generator.Complete(ctx, SystemMessage, BuildPrompt(patient, exercises, entries))
	if err != nil {
		reason := fallbackReason(err)
		s.metrics.RecordRecommendationFallback(reason)
		s.logger.Warn("訓練推薦の生成に失敗したため定型文を返します",
			slog.String("patient_id", patient.ID),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return FallbackText, nil
	}
	return text, nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return FallbackNotConfigured
	case errors.Is(err, ErrEmptyResponse):
		return FallbackEmpty
	case errors.Is(err, context.DeadlineExceeded):
		return FallbackTimeout
	default:
		return FallbackUpstream
	}
}

// BuildPrompt は患者情報、訓練カタログ、直近の経過からプロンプトを組み立てる。
func BuildPrompt(patient *model.Patient, exercises []*model.Exercise, entries []*model.ProgressEntry) string {
	var b strings.Builder

	b.WriteString("Based on the following patient information and available exercises, ")
	b.WriteString("recommend 5 exercises that would be most beneficial.\n\n")

	b.WriteString("Patient Information:\n")
	fmt.Fprintf(&b, "- Diagnosis: %s\n", orDefault(patient.Diagnosis, "Not specified"))
	fmt.Fprintf(&b, "- Observations: %s\n\n", orDefault(patient.Observations, "None"))

	b.WriteString("Recent Progress:\n")
	if len(entries) == 0 {
		b.WriteString("No progress recorded yet\n")
	}
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s\n", e.Date.Format("2006-01-02"), orDefault(e.TextNotes, "No notes"))
	}

	b.WriteString("\nAvailable Exercises:\n")
	for _, ex := range exercises {
		fmt.Fprintf(&b, "- %s (%s, %s)\n", ex.Title, ex.Category, ex.DifficultyLevel)
	}

	b.WriteString("\nProvide recommendations in JSON format:\n")
	b.WriteString(`{"recommended_exercises": [{"title": "Exercise Title", "rationale": "Why this exercise is recommended"}]}`)
	return b.String()
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
