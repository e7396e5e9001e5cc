package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/fonomed/internal/model"
	"github.com/hitoshi/fonomed/internal/repository/repotest"
	"github.com/hitoshi/fonomed/internal/security"
)

var (
	patientUser   = &model.User{ID: "p@x.com", Role: model.RolePatient}
	strangerUser  = &model.User{ID: "s@x.com", Role: model.RolePatient}
	therapistUser = &model.User{ID: "t@x.com", Role: model.RoleTherapist}
)

func setup(t *testing.T) (*Service, *repotest.Store) {
	t.Helper()
	store := repotest.New()
	ctx := context.Background()
	if err := store.Patients().Create(ctx, &model.Patient{ID: "pat-1", UserID: "p@x.com"}); err != nil {
		t.Fatal(err)
	}
	if err := store.Patients().Create(ctx, &model.Patient{ID: "pat-2", UserID: "other@x.com"}); err != nil {
		t.Fatal(err)
	}
	svc := NewService(store.Progress(), store.Patients(), security.NewURLGuard(true), security.NewTextSanitizer())
	return svc, store
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Errorf("expected %s, got %s", code, apiErr.Code)
	}
}

func TestCreate_PatientForcedToOwnProfile(t *testing.T) {
	svc, _ := setup(t)

	entry, err := svc.Create(context.Background(), patientUser, model.ProgressEntry{
		PatientID: "pat-2",
		TextNotes: "Hoje consegui <b>sem</b> esforço",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.PatientID != "pat-1" {
		t.Errorf("expected own patient id, got %s", entry.PatientID)
	}
	if entry.TextNotes != "Hoje consegui sem esforço" {
		t.Errorf("expected sanitized notes, got %q", entry.TextNotes)
	}
	if entry.Date.IsZero() {
		t.Error("expected date default")
	}
}

func TestCreate_Errors(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, strangerUser, model.ProgressEntry{})
	assertCode(t, err, model.ErrCodeNotFound)

	_, err = svc.Create(ctx, therapistUser, model.ProgressEntry{})
	assertCode(t, err, model.ErrCodeInvalidRequest)

	_, err = svc.Create(ctx, therapistUser, model.ProgressEntry{PatientID: "missing"})
	assertCode(t, err, model.ErrCodeNotFound)

	_, err = svc.Create(ctx, therapistUser, model.ProgressEntry{PatientID: "pat-1", AudioURL: "file:///etc/passwd"})
	assertCode(t, err, model.ErrCodeInvalidURL)
}

func TestList_ScopingAndOrder(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	for i, pid := range []string{"pat-1", "pat-1", "pat-2"} {
		_, err := svc.Create(ctx, therapistUser, model.ProgressEntry{PatientID: pid, Date: base.AddDate(0, 0, i)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	own, err := svc.List(ctx, patientUser)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(own) != 2 {
		t.Fatalf("expected 2 own entries, got %d", len(own))
	}
	if !own[0].Date.After(own[1].Date) {
		t.Error("expected newest first")
	}

	none, err := svc.List(ctx, strangerUser)
	if err != nil || len(none) != 0 {
		t.Errorf("expected empty list, got %v (err=%v)", none, err)
	}

	all, err := svc.List(ctx, therapistUser)
	if err != nil || len(all) != 3 {
		t.Errorf("expected all 3 entries, got %d (err=%v)", len(all), err)
	}
}

func TestComment(t *testing.T) {
	svc, store := setup(t)
	ctx := context.Background()

	entry, err := svc.Create(ctx, patientUser, model.ProgressEntry{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Comment(ctx, therapistUser, entry.ID, "Muito bem"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := store.Progress().FindByID(ctx, entry.ID)
	if got.TherapistComment != "Muito bem" {
		t.Errorf("comment not stored: %q", got.TherapistComment)
	}

	assertCode(t, svc.Comment(ctx, patientUser, entry.ID, "x"), model.ErrCodeForbidden)
	assertCode(t, svc.Comment(ctx, therapistUser, "missing", "x"), model.ErrCodeNotFound)
}
