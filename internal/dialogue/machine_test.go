package dialogue

import (
	"strings"
	"testing"
	"time"

	"github.com/EduConnect/TutorHub/internal/models"
	"github.com/EduConnect/TutorHub/internal/store"
)

func newTestMachine() (*Machine, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	fin := NewFinalizer(st, st)
	return NewMachine(st, st, fin), st
}

func textEvent(identity, text string) models.Event {
	return models.Event{Identity: identity, Kind: models.EventText, Text: text}
}

func mustHandle(t *testing.T, m *Machine, ev models.Event) string {
	t.Helper()
	reply, handled, err := m.HandleEvent(ev)
	if err != nil {
		t.Fatalf("unexpected error handling %s event: %v", ev.Kind, err)
	}
	if !handled {
		t.Fatalf("event %s not handled, no live session", ev.Kind)
	}
	return reply
}

func TestValidateContact(t *testing.T) {
	cases := []struct {
		input string
		ok    bool
	}{
		{"@abc", true},
		{"+251911223344", true},
		{"911223344", true},
		{"abc", false},
		{"@", false},
		{"+", false},
		{"+2519abc", false},
		{"", false},
	}
	for _, c := range cases {
		_, err := ValidateContact(c.input)
		if c.ok && err != nil {
			t.Errorf("ValidateContact(%q) rejected: %v", c.input, err)
		}
		if !c.ok && err == nil {
			t.Errorf("ValidateContact(%q) accepted, want rejection", c.input)
		}
	}
}

func TestStartCreatesSession(t *testing.T) {
	m, st := newTestMachine()
	reply, err := m.Start("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "full name") {
		t.Errorf("expected name prompt, got %q", reply)
	}
	sess, _ := st.GetSession("u1")
	if sess == nil || sess.Step != 0 {
		t.Errorf("expected fresh session at step 0, got %+v", sess)
	}
}

func TestStartResumesLiveSession(t *testing.T) {
	m, st := newTestMachine()
	if _, err := m.Start("u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mustHandle(t, m, textEvent("u1", "Jane Doe"))

	reply, err := m.Start("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "Resuming") {
		t.Errorf("expected resume message, got %q", reply)
	}
	sess, _ := st.GetSession("u1")
	if sess.Step != 1 {
		t.Errorf("resume must not restart: step = %d, want 1", sess.Step)
	}
}

func TestStartBlockedByExistingRecord(t *testing.T) {
	m, st := newTestMachine()
	st.InsertTutor(models.Tutor{ID: "r1", Identity: "u1", Status: models.StatusApproved})

	reply, err := m.Start("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "already registered") {
		t.Errorf("expected already-registered message, got %q", reply)
	}
	sess, _ := st.GetSession("u1")
	if sess != nil {
		t.Error("no session should be created for a registered identity")
	}
}

func TestInvalidTextReprompts(t *testing.T) {
	m, st := newTestMachine()
	m.Start("u1")

	reply := mustHandle(t, m, textEvent("u1", "   "))
	if !strings.Contains(reply, "full name") {
		t.Errorf("expected re-prompt of same step, got %q", reply)
	}
	sess, _ := st.GetSession("u1")
	if sess.Step != 0 {
		t.Errorf("invalid input must not advance: step = %d", sess.Step)
	}
	if len(sess.Answers) != 0 {
		t.Errorf("invalid input must not mutate answers: %v", sess.Answers)
	}
}

func TestToggleIsSelfInverse(t *testing.T) {
	m, st := newTestMachine()
	m.Start("u1")
	for _, answer := range []string{"Jane Doe", "AAU", "Physics", "3"} {
		mustHandle(t, m, textEvent("u1", answer))
	}

	toggle := models.Event{Identity: "u1", Kind: models.EventToggle, Text: "Physics"}
	mustHandle(t, m, toggle)
	sess, _ := st.GetSession("u1")
	if len(sess.Selections) != 1 || sess.Selections[0] != "Physics" {
		t.Fatalf("expected single selection, got %v", sess.Selections)
	}

	mustHandle(t, m, toggle)
	sess, _ = st.GetSession("u1")
	if len(sess.Selections) != 0 {
		t.Errorf("toggling twice must restore the set, got %v", sess.Selections)
	}
	if sess.Step != 4 {
		t.Errorf("toggling must never advance: step = %d", sess.Step)
	}
}

func TestDoneWithEmptySelectionReprompts(t *testing.T) {
	m, st := newTestMachine()
	m.Start("u1")
	for _, answer := range []string{"Jane Doe", "AAU", "Physics", "3"} {
		mustHandle(t, m, textEvent("u1", answer))
	}

	reply := mustHandle(t, m, models.Event{Identity: "u1", Kind: models.EventDone})
	if !strings.Contains(reply, "at least one") {
		t.Errorf("expected empty-selection re-prompt, got %q", reply)
	}
	sess, _ := st.GetSession("u1")
	if sess.Step != 4 {
		t.Errorf("empty done must not advance: step = %d", sess.Step)
	}
}

func TestCancelDeletesSession(t *testing.T) {
	m, st := newTestMachine()
	m.Start("u1")
	mustHandle(t, m, textEvent("u1", "Jane Doe"))

	reply := mustHandle(t, m, models.Event{Identity: "u1", Kind: models.EventCancel})
	if !strings.Contains(reply, "cancelled") {
		t.Errorf("expected cancel confirmation, got %q", reply)
	}
	sess, _ := st.GetSession("u1")
	if sess != nil {
		t.Error("session must be gone after cancel")
	}
	rec, _ := st.GetTutorByIdentity("u1")
	if rec != nil {
		t.Error("cancel must leave no record")
	}

	// Cancel is idempotent.
	if _, err := m.Cancel("u1"); err != nil {
		t.Errorf("repeated cancel must succeed: %v", err)
	}
}

func TestEndToEndRegistration(t *testing.T) {
	m, st := newTestMachine()

	reply, err := m.Start("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "full name") {
		t.Fatalf("expected name prompt first, got %q", reply)
	}

	reply = mustHandle(t, m, textEvent("u1", "Jane Doe"))
	if !strings.Contains(reply, "university") {
		t.Fatalf("expected university prompt, got %q", reply)
	}
	mustHandle(t, m, textEvent("u1", "AAU"))
	mustHandle(t, m, textEvent("u1", "Physics"))
	mustHandle(t, m, textEvent("u1", "3"))

	mustHandle(t, m, models.Event{Identity: "u1", Kind: models.EventToggle, Text: "Mathematics"})
	mustHandle(t, m, models.Event{Identity: "u1", Kind: models.EventToggle, Text: "Physics"})
	mustHandle(t, m, models.Event{Identity: "u1", Kind: models.EventDone})

	mustHandle(t, m, textEvent("u1", "9-10"))
	mustHandle(t, m, textEvent("u1", "Home"))
	mustHandle(t, m, textEvent("u1", "Bole"))
	mustHandle(t, m, textEvent("u1", "@janedoe"))

	reply = mustHandle(t, m, models.Event{Identity: "u1", Kind: models.EventSkip})
	if !strings.Contains(reply, "pending approval") {
		t.Fatalf("expected completion message, got %q", reply)
	}

	rec, err := st.GetTutorByIdentity("u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a finalized record")
	}
	if rec.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
	if rec.Name != "Jane Doe" || rec.University != "AAU" || rec.Contact != "@janedoe" {
		t.Errorf("answers not carried into record: %+v", rec)
	}
	if len(rec.Subjects) != 2 || rec.Subjects[0] != "Mathematics" || rec.Subjects[1] != "Physics" {
		t.Errorf("subjects = %v, want [Mathematics Physics]", rec.Subjects)
	}
	if rec.PhotoRef != "" {
		t.Errorf("skipped photo must leave PhotoRef empty, got %q", rec.PhotoRef)
	}

	sess, _ := st.GetSession("u1")
	if sess != nil {
		t.Error("session must be absent after finalization")
	}
}

func TestChoiceAcceptsNumberReply(t *testing.T) {
	m, st := newTestMachine()
	m.Start("u1")
	for _, answer := range []string{"Jane Doe", "AAU", "Physics", "3"} {
		mustHandle(t, m, textEvent("u1", answer))
	}
	mustHandle(t, m, models.Event{Identity: "u1", Kind: models.EventToggle, Text: "1"})
	mustHandle(t, m, models.Event{Identity: "u1", Kind: models.EventDone})

	// Grade range by its 1-based option number.
	mustHandle(t, m, textEvent("u1", "3"))
	sess, _ := st.GetSession("u1")
	if sess.Answers[models.FieldGrades] != models.GradeRanges[2] {
		t.Errorf("grades = %q, want %q", sess.Answers[models.FieldGrades], models.GradeRanges[2])
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	st := store.NewInMemoryStore()
	fin := NewFinalizer(st, st)

	sess := models.NewDialogueSession("u1", time.Now())
	sess.Answers = map[models.FieldKey]string{
		models.FieldName:       "Jane Doe",
		models.FieldUniversity: "AAU",
		models.FieldDepartment: "Physics",
		models.FieldYear:       "3",
		models.FieldGrades:     "9-10",
		models.FieldMethod:     "Home",
		models.FieldLocation:   "Bole",
		models.FieldContact:    "@janedoe",
	}
	sess.Subjects = []string{"Physics"}

	first, err := fin.Finalize(sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := fin.Finalize(sess)
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("retry produced a second record: %s vs %s", second.ID, first.ID)
	}
	count, _ := st.CountTutors(models.SearchFilter{})
	if count != 1 {
		t.Errorf("expected exactly one record, got %d", count)
	}
}

func TestFinalizeRejectsIncompleteSession(t *testing.T) {
	st := store.NewInMemoryStore()
	fin := NewFinalizer(st, st)

	sess := models.NewDialogueSession("u1", time.Now())
	sess.Answers[models.FieldName] = "Jane Doe"

	if _, err := fin.Finalize(sess); err == nil {
		t.Fatal("expected incomplete-dialogue error")
	}
	count, _ := st.CountTutors(models.SearchFilter{})
	if count != 0 {
		t.Errorf("incomplete session must not persist a record, got %d", count)
	}
}
