// Package repotest はテスト用にリポジトリインターフェースのインメモリ実装を提供する。
// 並び順と「見つからない場合はnil」の規約はPostgreSQL実装に合わせている。
package repotest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/fonomed/internal/model"
	"github.com/hitoshi/fonomed/internal/repository"
)

// Store は全テーブルをメモリ上に保持する。
type Store struct {
	mu            sync.Mutex
	users         map[string]model.User
	credentials   map[string]model.Credential
	sessions      map[string]model.Session
	patients      map[string]model.Patient
	therapists    map[string]model.Therapist
	exercises     map[string]model.Exercise
	plans         map[string]model.TherapyPlan
	planExercises map[string]model.PlanExercise
	progress      map[string]model.ProgressEntry
	appointments  map[string]model.Appointment
}

// New は空のStoreを生成する。
func New() *Store {
	return &Store{
		users:         map[string]model.User{},
		credentials:   map[string]model.Credential{},
		sessions:      map[string]model.Session{},
		patients:      map[string]model.Patient{},
		therapists:    map[string]model.Therapist{},
		exercises:     map[string]model.Exercise{},
		plans:         map[string]model.TherapyPlan{},
		planExercises: map[string]model.PlanExercise{},
		progress:      map[string]model.ProgressEntry{},
		appointments:  map[string]model.Appointment{},
	}
}

// Users はUserRepositoryとしてのビューを返す。
func (s *Store) Users() *Users { return &Users{s} }

// Credentials はCredentialRepositoryとしてのビューを返す。
func (s *Store) Credentials() *Credentials { return &Credentials{s} }

// Sessions はSessionRepositoryとしてのビューを返す。
func (s *Store) Sessions() *Sessions { return &Sessions{s} }

// Patients はPatientRepositoryとしてのビューを返す。
func (s *Store) Patients() *Patients { return &Patients{s} }

// Therapists はTherapistRepositoryとしてのビューを返す。
func (s *Store) Therapists() *Therapists { return &Therapists{s} }

// Exercises はExerciseRepositoryとしてのビューを返す。
func (s *Store) Exercises() *Exercises { return &Exercises{s} }

// Plans はTherapyPlanRepositoryとしてのビューを返す。
func (s *Store) Plans() *Plans { return &Plans{s} }

// Progress はProgressRepositoryとしてのビューを返す。
func (s *Store) Progress() *Progress { return &Progress{s} }

// Appointments はAppointmentRepositoryとしてのビューを返す。
func (s *Store) Appointments() *Appointments { return &Appointments{s} }

// --- users / credentials ---

type Users struct{ s *Store }

func (r *Users) FindByID(_ context.Context, id string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *Users) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *Users) insert(user *model.User) error {
	if _, ok := r.s.users[user.ID]; ok {
		return repository.ErrDuplicateKey
	}
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateKey
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r *Users) Create(_ context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.insert(user)
}

func (r *Users) CreateWithCredential(_ context.Context, user *model.User, cred *model.Credential) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.insert(user); err != nil {
		return err
	}
	r.s.credentials[cred.UserID] = *cred
	return nil
}

func (r *Users) List(_ context.Context) ([]*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	users := make([]*model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool {
		if !users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].CreatedAt.Before(users[j].CreatedAt)
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (r *Users) UpdateRole(_ context.Context, id string, role model.Role) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return false, nil
	}
	u.Role = role
	r.s.users[id] = u
	return true, nil
}

func (r *Users) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.users)), nil
}

type Credentials struct{ s *Store }

func (r *Credentials) FindByUserID(_ context.Context, userID string) (*model.Credential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.credentials[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

// --- sessions ---

type Sessions struct{ s *Store }

func (r *Sessions) Create(_ context.Context, session *model.Session) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sessions[session.ID] = *session
	return nil
}

func (r *Sessions) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sess, ok := r.s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (r *Sessions) DeleteByID(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.sessions, id)
	return nil
}

func (r *Sessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, sess := range r.s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(r.s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len は保存されているセッション数を返す。
func (r *Sessions) Len() int {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.sessions)
}

// --- patients / therapists ---

type Patients struct{ s *Store }

func (r *Patients) FindByID(_ context.Context, id string) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *Patients) FindByUserID(_ context.Context, userID string) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *model.Patient
	for _, p := range r.s.patients {
		if p.UserID != userID {
			continue
		}
		if found == nil || p.CreatedAt.Before(found.CreatedAt) {
			found = &p
		}
	}
	return found, nil
}

func (r *Patients) List(_ context.Context) ([]*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := make([]*model.Patient, 0, len(r.s.patients))
	for _, p := range r.s.patients {
		list = append(list, &p)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].FullName != list[j].FullName {
			return list[i].FullName < list[j].FullName
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (r *Patients) Create(_ context.Context, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.patients[p.ID]; ok {
		return repository.ErrDuplicateKey
	}
	for _, existing := range r.s.patients {
		if p.UserID != "" && existing.UserID == p.UserID {
			return repository.ErrDuplicateKey
		}
	}
	r.s.patients[p.ID] = *p
	return nil
}

func (r *Patients) Update(_ context.Context, id string, patch model.PatientPatch) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return false, nil
	}
	assign(&p.FullName, patch.FullName)
	assign(&p.BirthDate, patch.BirthDate)
	assign(&p.CPF, patch.CPF)
	assign(&p.Phone, patch.Phone)
	assign(&p.Address, patch.Address)
	assign(&p.Diagnosis, patch.Diagnosis)
	assign(&p.Observations, patch.Observations)
	r.s.patients[id] = p
	return true, nil
}

func (r *Patients) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.patients)), nil
}

type Therapists struct{ s *Store }

func (r *Therapists) FindByID(_ context.Context, id string) (*model.Therapist, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	th, ok := r.s.therapists[id]
	if !ok {
		return nil, nil
	}
	return &th, nil
}

func (r *Therapists) FindByUserID(_ context.Context, userID string) (*model.Therapist, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *model.Therapist
	for _, th := range r.s.therapists {
		if th.UserID != userID {
			continue
		}
		if found == nil || th.CreatedAt.Before(found.CreatedAt) {
			found = &th
		}
	}
	return found, nil
}

func (r *Therapists) List(_ context.Context) ([]*model.Therapist, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := make([]*model.Therapist, 0, len(r.s.therapists))
	for _, th := range r.s.therapists {
		list = append(list, &th)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].FullName != list[j].FullName {
			return list[i].FullName < list[j].FullName
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (r *Therapists) Create(_ context.Context, th *model.Therapist) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.therapists[th.ID]; ok {
		return repository.ErrDuplicateKey
	}
	for _, existing := range r.s.therapists {
		if th.UserID != "" && existing.UserID == th.UserID {
			return repository.ErrDuplicateKey
		}
	}
	r.s.therapists[th.ID] = *th
	return nil
}

func (r *Therapists) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.therapists)), nil
}

// --- exercises ---

type Exercises struct{ s *Store }

func (r *Exercises) FindByID(_ context.Context, id string) (*model.Exercise, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.exercises[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *Exercises) List(_ context.Context, filter model.ExerciseFilter) ([]*model.Exercise, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := []*model.Exercise{}
	for _, e := range r.s.exercises {
		if filter.Category != "" && e.Category != filter.Category {
			continue
		}
		if filter.DifficultyLevel != "" && e.DifficultyLevel != filter.DifficultyLevel {
			continue
		}
		list = append(list, &e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Title != list[j].Title {
			return list[i].Title < list[j].Title
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (r *Exercises) Create(_ context.Context, e *model.Exercise) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.exercises[e.ID]; ok {
		return repository.ErrDuplicateKey
	}
	r.s.exercises[e.ID] = *e
	return nil
}

func (r *Exercises) Update(_ context.Context, id string, patch model.ExercisePatch) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.exercises[id]
	if !ok {
		return false, nil
	}
	assign(&e.Title, patch.Title)
	assign(&e.Description, patch.Description)
	assign(&e.Category, patch.Category)
	assign(&e.DifficultyLevel, patch.DifficultyLevel)
	assign(&e.Instructions, patch.Instructions)
	assign(&e.Frequency, patch.Frequency)
	if patch.MediaURLs != nil {
		e.MediaURLs = append([]string{}, (*patch.MediaURLs)...)
	}
	if patch.EstimatedTime != nil {
		v := *patch.EstimatedTime
		e.EstimatedTime = &v
	}
	r.s.exercises[id] = e
	return true, nil
}

func (r *Exercises) Delete(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.exercises[id]; !ok {
		return false, nil
	}
	delete(r.s.exercises, id)
	return true, nil
}

func (r *Exercises) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.exercises)), nil
}

// --- therapy plans ---

type Plans struct{ s *Store }

func (r *Plans) FindByID(_ context.Context, id string) (*model.TherapyPlan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *Plans) List(_ context.Context, patientID string) ([]*model.TherapyPlan, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := []*model.TherapyPlan{}
	for _, p := range r.s.plans {
		if patientID != "" && p.PatientID != patientID {
			continue
		}
		list = append(list, &p)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].StartDate.Equal(list[j].StartDate) {
			return list[i].StartDate.After(list[j].StartDate)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (r *Plans) Create(_ context.Context, p *model.TherapyPlan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.plans[p.ID]; ok {
		return repository.ErrDuplicateKey
	}
	r.s.plans[p.ID] = *p
	return nil
}

func (r *Plans) AddExercise(_ context.Context, pe *model.PlanExercise) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.planExercises[pe.ID] = *pe
	return nil
}

func (r *Plans) ListExercises(_ context.Context, planID string) ([]*model.PlanExercise, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := []*model.PlanExercise{}
	for _, pe := range r.s.planExercises {
		if pe.PlanID == planID {
			list = append(list, &pe)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (r *Plans) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.plans)), nil
}

// --- progress ---

type Progress struct{ s *Store }

func (r *Progress) FindByID(_ context.Context, id string) (*model.ProgressEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.progress[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *Progress) List(_ context.Context, patientID string, limit int) ([]*model.ProgressEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := []*model.ProgressEntry{}
	for _, e := range r.s.progress {
		if patientID != "" && e.PatientID != patientID {
			continue
		}
		list = append(list, &e)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Date.Equal(list[j].Date) {
			return list[i].Date.After(list[j].Date)
		}
		return list[i].ID < list[j].ID
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (r *Progress) Create(_ context.Context, e *model.ProgressEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.progress[e.ID]; ok {
		return repository.ErrDuplicateKey
	}
	r.s.progress[e.ID] = *e
	return nil
}

func (r *Progress) UpdateComment(_ context.Context, id, comment string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.progress[id]
	if !ok {
		return false, nil
	}
	e.TherapistComment = comment
	r.s.progress[id] = e
	return true, nil
}

func (r *Progress) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.progress)), nil
}

// --- appointments ---

type Appointments struct{ s *Store }

func (r *Appointments) FindByID(_ context.Context, id string) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appointments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *Appointments) List(_ context.Context, filter repository.AppointmentFilter) ([]*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	list := []*model.Appointment{}
	for _, a := range r.s.appointments {
		if !filter.Matches(&a) {
			continue
		}
		list = append(list, &a)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Date.Equal(list[j].Date) {
			return list[i].Date.Before(list[j].Date)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (r *Appointments) Create(_ context.Context, a *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.appointments[a.ID]; ok {
		return repository.ErrDuplicateKey
	}
	r.s.appointments[a.ID] = *a
	return nil
}

func (r *Appointments) Update(_ context.Context, id string, patch model.AppointmentPatch) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appointments[id]
	if !ok {
		return false, nil
	}
	if patch.Date != nil {
		a.Date = *patch.Date
	}
	assign(&a.AppointmentType, patch.AppointmentType)
	assign(&a.Status, patch.Status)
	assign(&a.MeetingURL, patch.MeetingURL)
	assign(&a.Notes, patch.Notes)
	r.s.appointments[id] = a
	return true, nil
}

func (r *Appointments) Count(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return int64(len(r.s.appointments)), nil
}

func assign(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

var (
	_ repository.UserRepository        = (*Users)(nil)
	_ repository.CredentialRepository  = (*Credentials)(nil)
	_ repository.SessionRepository     = (*Sessions)(nil)
	_ repository.ExpiredSessionDeleter = (*Sessions)(nil)
	_ repository.PatientRepository     = (*Patients)(nil)
	_ repository.TherapistRepository   = (*Therapists)(nil)
	_ repository.ExerciseRepository    = (*Exercises)(nil)
	_ repository.TherapyPlanRepository = (*Plans)(nil)
	_ repository.ProgressRepository    = (*Progress)(nil)
	_ repository.AppointmentRepository = (*Appointments)(nil)
)
