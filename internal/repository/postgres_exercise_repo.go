package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/fonomed/internal/model"
)

// PostgresExerciseRepo はPostgreSQLを使用した訓練リポジトリ。
type PostgresExerciseRepo struct {
	db *sql.DB
}

// NewPostgresExerciseRepo はPostgresExerciseRepoを生成する。
func NewPostgresExerciseRepo(db *sql.DB) *PostgresExerciseRepo {
	return &PostgresExerciseRepo{db: db}
}

const exerciseColumns = `id, title, description, category, difficulty_level, media_urls,
	instructions, estimated_time, frequency, created_by, created_at`

func scanExercise(row interface{ Scan(...any) error }) (*model.Exercise, error) {
	e := &model.Exercise{}
	var estimated sql.NullInt64
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Category, &e.DifficultyLevel,
		pq.Array(&e.MediaURLs), &e.Instructions, &estimated, &e.Frequency, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if estimated.Valid {
		v := int(estimated.Int64)
		e.EstimatedTime = &v
	}
	if e.MediaURLs == nil {
		e.MediaURLs = []string{}
	}
	return e, nil
}

// FindByID は指定IDの訓練を取得する。見つからない場合はnilを返す。
func (r *PostgresExerciseRepo) FindByID(ctx context.Context, id string) (*model.Exercise, error) {
	e, err := scanExercise(r.db.QueryRowContext(ctx,
		`SELECT `+exerciseColumns+` FROM exercises WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find exercise: %w", err)
	}
	return e, nil
}

// List はカテゴリ・難易度で絞り込んだ訓練一覧をタイトル順で返す。
func (r *PostgresExerciseRepo) List(ctx context.Context, filter model.ExerciseFilter) ([]*model.Exercise, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.DifficultyLevel != "" {
		args = append(args, filter.DifficultyLevel)
		conds = append(conds, fmt.Sprintf("difficulty_level = $%d", len(args)))
	}

	query := `SELECT ` + exerciseColumns + ` FROM exercises`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY title, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list exercises: %w", err)
	}
	defer rows.Close()

	exercises := []*model.Exercise{}
	for rows.Next() {
		e, err := scanExercise(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exercise: %w", err)
		}
		exercises = append(exercises, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate exercises: %w", err)
	}
	return exercises, nil
}

// Create は訓練を作成する。
func (r *PostgresExerciseRepo) Create(ctx context.Context, e *model.Exercise) error {
	mediaURLs := e.MediaURLs
	if mediaURLs == nil {
		mediaURLs = []string{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO exercises (`+exerciseColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.Title, e.Description, e.Category, e.DifficultyLevel, pq.Array(mediaURLs),
		e.Instructions, e.EstimatedTime, e.Frequency, e.CreatedBy, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert exercise: %w", err)
	}
	return nil
}

// Update はpatchの非nilフィールドのみを更新する。
func (r *PostgresExerciseRepo) Update(ctx context.Context, id string, patch model.ExercisePatch) (bool, error) {
	b := newUpdateBuilder("exercises")
	setString(b, "title", patch.Title)
	setString(b, "description", patch.Description)
	setString(b, "category", patch.Category)
	setString(b, "difficulty_level", patch.DifficultyLevel)
	if patch.MediaURLs != nil {
		b.set("media_urls", pq.Array(*patch.MediaURLs))
	}
	setString(b, "instructions", patch.Instructions)
	if patch.EstimatedTime != nil {
		b.set("estimated_time", *patch.EstimatedTime)
	}
	setString(b, "frequency", patch.Frequency)
	if b.empty() {
		return false, fmt.Errorf("no fields to update")
	}

	query, args := b.build(id)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update exercise: %w", err)
	}
	return affected(result)
}

// Delete は訓練を削除する。
func (r *PostgresExerciseRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM exercises WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete exercise: %w", err)
	}
	return affected(result)
}

// Count は訓練数を返す。
func (r *PostgresExerciseRepo) Count(ctx context.Context) (int64, error) {
	return count(ctx, r.db, "exercises")
}

// compile-time interface check
var _ ExerciseRepository = (*PostgresExerciseRepo)(nil)
