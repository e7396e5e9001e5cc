package repository

import (
	"testing"
	"time"

	"github.com/hitoshi/fonomed/internal/model"
)

// 各Postgresリポジトリが対応するインターフェースを満たすことを検証
func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
	var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
	var _ ExpiredSessionDeleter = (*PostgresSessionRepo)(nil)
	var _ PatientRepository = (*PostgresPatientRepo)(nil)
	var _ TherapistRepository = (*PostgresTherapistRepo)(nil)
	var _ ExerciseRepository = (*PostgresExerciseRepo)(nil)
	var _ TherapyPlanRepository = (*PostgresTherapyPlanRepo)(nil)
	var _ ProgressRepository = (*PostgresProgressRepo)(nil)
	var _ AppointmentRepository = (*PostgresAppointmentRepo)(nil)
}

// RedisSessionRepoもセッションストアとして差し替えられること
func TestRedisSessionRepo_ImplementsInterfaces(t *testing.T) {
	var _ SessionRepository = (*RedisSessionRepo)(nil)
	var _ ExpiredSessionDeleter = (*RedisSessionRepo)(nil)
}

// コンストラクタはDB接続なしでも生成できること
func TestNewPostgresRepos_Initialize(t *testing.T) {
	repos := map[string]any{
		"user":        NewPostgresUserRepo(nil),
		"credential":  NewPostgresCredentialRepo(nil),
		"session":     NewPostgresSessionRepo(nil),
		"patient":     NewPostgresPatientRepo(nil),
		"therapist":   NewPostgresTherapistRepo(nil),
		"exercise":    NewPostgresExerciseRepo(nil),
		"plan":        NewPostgresTherapyPlanRepo(nil),
		"progress":    NewPostgresProgressRepo(nil),
		"appointment": NewPostgresAppointmentRepo(nil),
	}
	for name, repo := range repos {
		if repo == nil {
			t.Errorf("%s repo should not be nil", name)
		}
	}
}

// 失効判定は expires_at == now を失効として扱う
func TestSession_Expired_Boundary(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"past", now.Add(-time.Hour), true},
		{"equal", now, true},
		{"future", now.Add(time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &model.Session{ID: "s", UserID: "u", ExpiresAt: tt.expiresAt}
			if got := s.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
