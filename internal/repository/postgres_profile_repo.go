package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/fonomed/internal/model"
)

// PostgresPatientRepo はPostgreSQLを使用した患者プロフィールリポジトリ。
type PostgresPatientRepo struct {
	db *sql.DB
}

// NewPostgresPatientRepo はPostgresPatientRepoを生成する。
func NewPostgresPatientRepo(db *sql.DB) *PostgresPatientRepo {
	return &PostgresPatientRepo{db: db}
}

const patientColumns = `id, user_id, full_name, birth_date, cpf, phone, address, diagnosis, observations, created_at`

func scanPatient(row interface{ Scan(...any) error }) (*model.Patient, error) {
	p := &model.Patient{}
	err := row.Scan(&p.ID, &p.UserID, &p.FullName, &p.BirthDate, &p.CPF, &p.Phone,
		&p.Address, &p.Diagnosis, &p.Observations, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresPatientRepo) findOne(ctx context.Context, where string, arg string) (*model.Patient, error) {
	p, err := scanPatient(r.db.QueryRowContext(ctx,
		`SELECT `+patientColumns+` FROM patients WHERE `+where+` = $1 ORDER BY created_at LIMIT 1`, arg,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find patient: %w", err)
	}
	return p, nil
}

// FindByID は指定IDの患者を取得する。見つからない場合はnilを返す。
func (r *PostgresPatientRepo) FindByID(ctx context.Context, id string) (*model.Patient, error) {
	return r.findOne(ctx, "id", id)
}

// FindByUserID は利用者アカウントに紐付く患者を取得する。
func (r *PostgresPatientRepo) FindByUserID(ctx context.Context, userID string) (*model.Patient, error) {
	return r.findOne(ctx, "user_id", userID)
}

// List は全患者を氏名順で返す。
func (r *PostgresPatientRepo) List(ctx context.Context) ([]*model.Patient, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+patientColumns+` FROM patients ORDER BY full_name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	defer rows.Close()

	patients := []*model.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate patients: %w", err)
	}
	return patients, nil
}

// Create は患者を作成する。
func (r *PostgresPatientRepo) Create(ctx context.Context, p *model.Patient) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO patients (`+patientColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.UserID, p.FullName, p.BirthDate, p.CPF, p.Phone,
		p.Address, p.Diagnosis, p.Observations, p.CreatedAt,
	)
	if uniqueViolation(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert patient: %w", err)
	}
	return nil
}

// Update はpatchの非nilフィールドのみを更新する。
func (r *PostgresPatientRepo) Update(ctx context.Context, id string, patch model.PatientPatch) (bool, error) {
	b := newUpdateBuilder("patients")
	setString(b, "full_name", patch.FullName)
	setString(b, "birth_date", patch.BirthDate)
	setString(b, "cpf", patch.CPF)
	setString(b, "phone", patch.Phone)
	setString(b, "address", patch.Address)
	setString(b, "diagnosis", patch.Diagnosis)
	setString(b, "observations", patch.Observations)
	if b.empty() {
		return false, fmt.Errorf("no fields to update")
	}

	query, args := b.build(id)
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update patient: %w", err)
	}
	return affected(result)
}

// Count は患者数を返す。
func (r *PostgresPatientRepo) Count(ctx context.Context) (int64, error) {
	return count(ctx, r.db, "patients")
}

// PostgresTherapistRepo はPostgreSQLを使用した言語聴覚士プロフィールリポジトリ。
type PostgresTherapistRepo struct {
	db *sql.DB
}

// NewPostgresTherapistRepo はPostgresTherapistRepoを生成する。
func NewPostgresTherapistRepo(db *sql.DB) *PostgresTherapistRepo {
	return &PostgresTherapistRepo{db: db}
}

const therapistColumns = `id, user_id, full_name, crfa_number, specialties, bio, created_at`

func scanTherapist(row interface{ Scan(...any) error }) (*model.Therapist, error) {
	th := &model.Therapist{}
	err := row.Scan(&th.ID, &th.UserID, &th.FullName, &th.CRFaNumber,
		pq.Array(&th.Specialties), &th.Bio, &th.CreatedAt)
	if err != nil {
		return nil, err
	}
	if th.Specialties == nil {
		th.Specialties = []string{}
	}
	return th, nil
}

func (r *PostgresTherapistRepo) findOne(ctx context.Context, where string, arg string) (*model.Therapist, error) {
	th, err := scanTherapist(r.db.QueryRowContext(ctx,
		`SELECT `+therapistColumns+` FROM therapists WHERE `+where+` = $1 ORDER BY created_at LIMIT 1`, arg,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find therapist: %w", err)
	}
	return th, nil
}

// FindByID は指定IDの言語聴覚士を取得する。見つからない場合はnilを返す。
func (r *PostgresTherapistRepo) FindByID(ctx context.Context, id string) (*model.Therapist, error) {
	return r.findOne(ctx, "id", id)
}

// FindByUserID は利用者アカウントに紐付く言語聴覚士を取得する。
func (r *PostgresTherapistRepo) FindByUserID(ctx context.Context, userID string) (*model.Therapist, error) {
	return r.findOne(ctx, "user_id", userID)
}

// List は全言語聴覚士を氏名順で返す。
func (r *PostgresTherapistRepo) List(ctx context.Context) ([]*model.Therapist, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+therapistColumns+` FROM therapists ORDER BY full_name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list therapists: %w", err)
	}
	defer rows.Close()

	therapists := []*model.Therapist{}
	for rows.Next() {
		th, err := scanTherapist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan therapist: %w", err)
		}
		therapists = append(therapists, th)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate therapists: %w", err)
	}
	return therapists, nil
}

// Create は言語聴覚士を作成する。
func (r *PostgresTherapistRepo) Create(ctx context.Context, th *model.Therapist) error {
	specialties := th.Specialties
	if specialties == nil {
		specialties = []string{}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO therapists (`+therapistColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		th.ID, th.UserID, th.FullName, th.CRFaNumber, pq.Array(specialties), th.Bio, th.CreatedAt,
	)
	if uniqueViolation(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("failed to insert therapist: %w", err)
	}
	return nil
}

// Count は言語聴覚士数を返す。
func (r *PostgresTherapistRepo) Count(ctx context.Context) (int64, error) {
	return count(ctx, r.db, "therapists")
}

func setString(b *updateBuilder, col string, v *string) {
	if v != nil {
		b.set(col, *v)
	}
}

// compile-time interface check
var (
	_ PatientRepository   = (*PostgresPatientRepo)(nil)
	_ TherapistRepository = (*PostgresTherapistRepo)(nil)
)
