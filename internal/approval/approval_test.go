package approval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/EduConnect/TutorHub/internal/models"
	"github.com/EduConnect/TutorHub/internal/store"
)

type recordingNotifier struct {
	sent []string
	err  error
}

func (n *recordingNotifier) SendText(ctx context.Context, identity, text string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, identity+": "+text)
	return nil
}

func seedTutor(t *testing.T, st *store.InMemoryStore, id, identity string) {
	t.Helper()
	err := st.InsertTutor(models.Tutor{
		ID:        id,
		Identity:  identity,
		Name:      "Jane Doe",
		Subjects:  []string{"Physics"},
		Grades:    "9-10",
		Method:    "Home",
		Location:  "Bole",
		Contact:   "@janedoe",
		Status:    models.StatusPending,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecideApprove(t *testing.T) {
	st := store.NewInMemoryStore()
	seedTutor(t, st, "r1", "u1")
	n := &recordingNotifier{}
	w := NewWorkflow(st, n)

	rec, err := w.Decide(context.Background(), "r1", models.DecisionApprove)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != models.StatusApproved {
		t.Errorf("status = %s, want approved", rec.Status)
	}
	stored, _ := st.GetTutorByID("r1")
	if stored.Status != models.StatusApproved {
		t.Errorf("stored status = %s, want approved", stored.Status)
	}
	if len(n.sent) != 1 {
		t.Errorf("expected one notification, got %d", len(n.sent))
	}
}

func TestDecideSurvivesNotificationFailure(t *testing.T) {
	st := store.NewInMemoryStore()
	seedTutor(t, st, "r1", "u1")
	n := &recordingNotifier{err: errors.New("delivery failed")}
	w := NewWorkflow(st, n)

	rec, err := w.Decide(context.Background(), "r1", models.DecisionApprove)
	if err != nil {
		t.Fatalf("notification failure must not fail the decision: %v", err)
	}
	if rec.Status != models.StatusApproved {
		t.Errorf("status = %s, want approved", rec.Status)
	}
}

func TestRedecideOverwritesStatus(t *testing.T) {
	st := store.NewInMemoryStore()
	seedTutor(t, st, "r1", "u1")
	w := NewWorkflow(st, &recordingNotifier{})

	if _, err := w.Decide(context.Background(), "r1", models.DecisionApprove); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, err := w.Decide(context.Background(), "r1", models.DecisionReject)
	if err != nil {
		t.Fatalf("re-deciding must be allowed: %v", err)
	}
	if rec.Status != models.StatusRejected {
		t.Errorf("status = %s, want rejected", rec.Status)
	}
}

func TestDecideUnknownRecord(t *testing.T) {
	w := NewWorkflow(store.NewInMemoryStore(), nil)
	_, err := w.Decide(context.Background(), "nope", models.DecisionApprove)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDecideInvalidDecision(t *testing.T) {
	st := store.NewInMemoryStore()
	seedTutor(t, st, "r1", "u1")
	w := NewWorkflow(st, nil)
	_, err := w.Decide(context.Background(), "r1", models.Decision("maybe"))
	if !errors.Is(err, models.ErrInvalidDecision) {
		t.Errorf("expected ErrInvalidDecision, got %v", err)
	}
}

func TestUpdateField(t *testing.T) {
	st := store.NewInMemoryStore()
	seedTutor(t, st, "r1", "u1")
	w := NewWorkflow(st, nil)

	rec, err := w.UpdateField("u1", models.FieldLocation, "Piassa")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Location != "Piassa" {
		t.Errorf("location = %s, want Piassa", rec.Location)
	}
	if rec.Status != models.StatusPending {
		t.Errorf("field update must not touch status, got %s", rec.Status)
	}
}

func TestUpdateFieldValidates(t *testing.T) {
	st := store.NewInMemoryStore()
	seedTutor(t, st, "r1", "u1")
	w := NewWorkflow(st, nil)

	if _, err := w.UpdateField("u1", models.FieldContact, "not-a-contact"); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := w.UpdateField("u1", models.FieldKey("favorite_color"), "blue"); !errors.Is(err, models.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if _, err := w.UpdateField("u1", models.FieldSubjects, "Astrology, Alchemy"); !errors.Is(err, models.ErrEmptySelection) {
		t.Errorf("expected ErrEmptySelection, got %v", err)
	}
}

func TestUpdateSubjectsParsesCommaList(t *testing.T) {
	st := store.NewInMemoryStore()
	seedTutor(t, st, "r1", "u1")
	w := NewWorkflow(st, nil)

	rec, err := w.UpdateField("u1", models.FieldSubjects, "Chemistry, Biology, Chemistry, Astrology")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.Subjects) != 2 || rec.Subjects[0] != "Chemistry" || rec.Subjects[1] != "Biology" {
		t.Errorf("subjects = %v, want [Chemistry Biology]", rec.Subjects)
	}
}
