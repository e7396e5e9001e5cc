package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/fonomed/internal/model"
)

// PostgresTherapyPlanRepo はPostgreSQLを使用した治療計画リポジトリ。
type PostgresTherapyPlanRepo struct {
	db *sql.DB
}

// NewPostgresTherapyPlanRepo はPostgresTherapyPlanRepoを生成する。
func NewPostgresTherapyPlanRepo(db *sql.DB) *PostgresTherapyPlanRepo {
	return &PostgresTherapyPlanRepo{db: db}
}

const planColumns = `id, patient_id, therapist_id, title, objectives, start_date, end_date, status, created_at`

func scanPlan(row interface{ Scan(...any) error }) (*model.TherapyPlan, error) {
	p := &model.TherapyPlan{}
	var endDate sql.NullTime
	err := row.Scan(&p.ID, &p.PatientID, &p.TherapistID, &p.Title, &p.Objectives,
		&p.StartDate, &endDate, &p.Status, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if endDate.Valid {
		p.EndDate = &endDate.Time
	}
	return p, nil
}

// FindByID は指定IDの治療計画を取得する。見つからない場合はnilを返す。
func (r *PostgresTherapyPlanRepo) FindByID(ctx context.Context, id string) (*model.TherapyPlan, error) {
	p, err := scanPlan(r.db.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM therapy_plans WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find therapy plan: %w", err)
	}
	return p, nil
}

// List は治療計画を開始日の降順で返す。patientIDが空の場合は全件を返す。
func (r *PostgresTherapyPlanRepo) List(ctx context.Context, patientID string) ([]*model.TherapyPlan, error) {
	query := `SELECT ` + planColumns + ` FROM therapy_plans`
	var args []any
	if patientID != "" {
		query += ` WHERE patient_id = $1`
		args = append(args, patientID)
	}
	query += ` ORDER BY start_date DESC, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list therapy plans: %w", err)
	}
	defer rows.Close()

	plans := []*model.TherapyPlan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan therapy plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate therapy plans: %w", err)
	}
	return plans, nil
}

// Create は治療計画を作成する。
func (r *PostgresTherapyPlanRepo) Create(ctx context.Context, p *model.TherapyPlan) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO therapy_plans (`+planColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.PatientID, p.TherapistID, p.Title, p.Objectives,
		p.StartDate, p.EndDate, p.Status, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert therapy plan: %w", err)
	}
	return nil
}

// AddExercise は治療計画に訓練を追加する。
func (r *PostgresTherapyPlanRepo) AddExercise(ctx context.Context, pe *model.PlanExercise) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO plan_exercises (id, plan_id, exercise_id, schedule, frequency, notes)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		pe.ID, pe.PlanID, pe.ExerciseID, pe.Schedule, pe.Frequency, pe.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert plan exercise: %w", err)
	}
	return nil
}

// ListExercises は治療計画に割り当てられた訓練を返す。
func (r *PostgresTherapyPlanRepo) ListExercises(ctx context.Context, planID string) ([]*model.PlanExercise, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, plan_id, exercise_id, schedule, frequency, notes
		 FROM plan_exercises WHERE plan_id = $1 ORDER BY id`,
		planID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan exercises: %w", err)
	}
	defer rows.Close()

	exercises := []*model.PlanExercise{}
	for rows.Next() {
		pe := &model.PlanExercise{}
		if err := rows.Scan(&pe.ID, &pe.PlanID, &pe.ExerciseID, &pe.Schedule, &pe.Frequency, &pe.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan plan exercise: %w", err)
		}
		exercises = append(exercises, pe)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plan exercises: %w", err)
	}
	return exercises, nil
}

// Count は治療計画数を返す。
func (r *PostgresTherapyPlanRepo) Count(ctx context.Context) (int64, error) {
	return count(ctx, r.db, "therapy_plans")
}

// compile-time interface check
var _ TherapyPlanRepository = (*PostgresTherapyPlanRepo)(nil)
