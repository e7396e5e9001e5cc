package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/fonomed/internal/model"
)

// PostgresProgressRepo はPostgreSQLを使用した経過日誌リポジトリ。
type PostgresProgressRepo struct {
	db *sql.DB
}

// NewPostgresProgressRepo はPostgresProgressRepoを生成する。
func NewPostgresProgressRepo(db *sql.DB) *PostgresProgressRepo {
	return &PostgresProgressRepo{db: db}
}

const progressColumns = `id, patient_id, plan_id, exercise_id, date, audio_url, video_url,
	text_notes, therapist_comment, created_at`

func scanProgress(row interface{ Scan(...any) error }) (*model.ProgressEntry, error) {
	e := &model.ProgressEntry{}
	err := row.Scan(&e.ID, &e.PatientID, &e.PlanID, &e.ExerciseID, &e.Date, &e.AudioURL,
		&e.VideoURL, &e.TextNotes, &e.TherapistComment, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// FindByID は指定IDの経過日誌を取得する。見つからない場合はnilを返す。
func (r *PostgresProgressRepo) FindByID(ctx context.Context, id string) (*model.ProgressEntry, error) {
	e, err := scanProgress(r.db.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM progress_entries WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find progress entry: %w", err)
	}
	return e, nil
}

// List は経過日誌を日付の降順で返す。
func (r *PostgresProgressRepo) List(ctx context.Context, patientID string, limit int) ([]*model.ProgressEntry, error) {
	query := `SELECT ` + progressColumns + ` FROM progress_entries`
	var args []any
	if patientID != "" {
		args = append(args, patientID)
		query += fmt.Sprintf(` WHERE patient_id = $%d`, len(args))
	}
	query += ` ORDER BY date DESC, id`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress entries: %w", err)
	}
	defer rows.Close()

	entries := []*model.ProgressEntry{}
	for rows.Next() {
		e, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate progress entries: %w", err)
	}
	return entries, nil
}

// Create は経過日誌を作成する。
func (r *PostgresProgressRepo) Create(ctx context.Context, e *model.ProgressEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO progress_entries (`+progressColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.PatientID, e.PlanID, e.ExerciseID, e.Date, e.AudioURL,
		e.VideoURL, e.TextNotes, e.TherapistComment, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert progress entry: %w", err)
	}
	return nil
}

// UpdateComment は言語聴覚士コメントを更新する。
func (r *PostgresProgressRepo) UpdateComment(ctx context.Context, id, comment string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE progress_entries SET therapist_comment = $1 WHERE id = $2`,
		comment, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update therapist comment: %w", err)
	}
	return affected(result)
}

// Count は経過日誌の件数を返す。
func (r *PostgresProgressRepo) Count(ctx context.Context) (int64, error) {
	return count(ctx, r.db, "progress_entries")
}

// compile-time interface check
var _ ProgressRepository = (*PostgresProgressRepo)(nil)
