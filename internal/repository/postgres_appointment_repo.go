package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/fonomed/internal/model"
)

// PostgresAppointmentRepo はPostgreSQLを使用した予約リポジトリ。
type PostgresAppointmentRepo struct {
	db *sql.DB
}

// NewPostgresAppointmentRepo はPostgresAppointmentRepoを生成する。
func NewPostgresAppointmentRepo(db *sql.DB) *PostgresAppointmentRepo {
	return &PostgresAppointmentRepo{db: db}
}

const appointmentColumns = `id, patient_id, therapist_id, date, appointment_type, status,
	meeting_url, notes, created_at`

func scanAppointment(row interface{ Scan(...any) error }) (*model.Appointment, error) {
	a := &model.Appointment{}
	err := row.Scan(&a.ID, &a.PatientID, &a.TherapistID, &a.Date, &a.AppointmentType,
		&a.Status, &a.MeetingURL, &a.Notes, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// FindByID は指定IDの予約を取得する。見つからない場合はnilを返す。
func (r *PostgresAppointmentRepo) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	a, err := scanAppointment(r.db.QueryRowContext(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find appointment: %w", err)
	}
	return a, nil
}

// List は予約を日時の昇順で返す。
func (r *PostgresAppointmentRepo) List(ctx context.Context, filter AppointmentFilter) ([]*model.Appointment, error) {
	var (
		conds []string
		args  []any
	)
	if filter.PatientID != "" {
		args = append(args, filter.PatientID)
		conds = append(conds, fmt.Sprintf("patient_id = $%d", len(args)))
	}
	if filter.TherapistID != "" {
		args = append(args, filter.TherapistID)
		conds = append(conds, fmt.Sprintf("therapist_id = $%d", len(args)))
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY date, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	appointments := []*model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate appointments: %w", err)
	}
	return appointments, nil
}

// Create は予約を作成する。
func (r *PostgresAppointmentRepo) Create(ctx context.Context, a *model.Appointment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO appointments (`+appointmentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.PatientID, a.TherapistID, a.Date, a.AppointmentType,
		a.Status, a.MeetingURL, a.Notes, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}
	return nil
}

// Update はpatchの非nilフィールドのみを更新する。
func (r *PostgresAppointmentRepo) Update(ctx context.Context, id string, patch model.AppointmentPatch) (bool, error) {
	b := newUpdateBuilder("appointments")
	if patch.Date != nil {
		b.set("date", *patch.Date)
	}
	setString(b, "appointment_type", patch.AppointmentType)
	setString(b, "status", patch.Status)
	setString(b, "meeting_url", patch.MeetingURL)
	setString(b, "notes", patch.Notes)
	if b.empty() {
		return false, fmt.Errorf("no fields to update")
	}

	query, args := b.build(id)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update appointment: %w", err)
	}
	return affected(result)
}

// Count は予約数を返す。
func (r *PostgresAppointmentRepo) Count(ctx context.Context) (int64, error) {
	return count(ctx, r.db, "appointments")
}

// compile-time interface check
var _ AppointmentRepository = (*PostgresAppointmentRepo)(nil)
