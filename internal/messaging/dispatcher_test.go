package messaging

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/EduConnect/TutorHub/internal/approval"
	"github.com/EduConnect/TutorHub/internal/dialogue"
	"github.com/EduConnect/TutorHub/internal/models"
	"github.com/EduConnect/TutorHub/internal/store"
)

func newTestDispatcher() (*Dispatcher, *MemoryService, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	svc := NewMemoryService()
	machine := dialogue.NewMachine(st, st, dialogue.NewFinalizer(st, st))
	workflow := approval.NewWorkflow(st, svc)
	d := NewDispatcher(svc, NewDecoder(st), machine, workflow, st)
	return d, svc, st
}

func routeText(t *testing.T, d *Dispatcher, identity, text string) string {
	t.Helper()
	ev := d.decoder.Decode(models.Event{Identity: identity, Kind: models.EventText, Text: text})
	reply, err := d.route(context.Background(), ev)
	if err != nil {
		t.Fatalf("unexpected error routing %q: %v", text, err)
	}
	return reply
}

func TestDecodeClassifiesEvents(t *testing.T) {
	st := store.NewInMemoryStore()
	dec := NewDecoder(st)

	cases := []struct {
		text string
		kind models.EventKind
		cmd  string
	}{
		{"register", models.EventCommand, models.CommandRegister},
		{"/start", models.EventCommand, models.CommandRegister},
		{"MyProfile", models.EventCommand, models.CommandMyProfile},
		{"update location Bole", models.EventCommand, models.CommandUpdate},
		{"find physics 2", models.EventCommand, models.CommandFind},
		{"cancel", models.EventCancel, ""},
		{"done", models.EventDone, ""},
		{"skip", models.EventSkip, ""},
		{"Jane Doe", models.EventText, ""},
	}
	for _, c := range cases {
		ev := dec.Decode(models.Event{Identity: "u1", Kind: models.EventText, Text: c.text})
		if ev.Kind != c.kind {
			t.Errorf("Decode(%q) kind = %s, want %s", c.text, ev.Kind, c.kind)
		}
		if c.cmd != "" && ev.Text != c.cmd {
			t.Errorf("Decode(%q) command = %s, want %s", c.text, ev.Text, c.cmd)
		}
	}
}

func TestDecodeCommandArgs(t *testing.T) {
	dec := NewDecoder(store.NewInMemoryStore())
	ev := dec.Decode(models.Event{Identity: "u1", Kind: models.EventText, Text: "update location Bole Arabsa"})
	if ev.Args != "location Bole Arabsa" {
		t.Errorf("args = %q, want %q", ev.Args, "location Bole Arabsa")
	}
}

func TestDecodeTogglesOnMultiSelectStep(t *testing.T) {
	st := store.NewInMemoryStore()
	sess := models.NewDialogueSession("u1", time.Now())
	sess.Step = 4 // subjects step
	if err := st.SaveSession(*sess); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dec := NewDecoder(st)

	ev := dec.Decode(models.Event{Identity: "u1", Kind: models.EventText, Text: "Physics"})
	if ev.Kind != models.EventToggle || ev.Text != "Physics" {
		t.Errorf("expected toggle event, got %s %q", ev.Kind, ev.Text)
	}
}

func TestDispatcherFullRegistration(t *testing.T) {
	d, _, st := newTestDispatcher()

	routeText(t, d, "251911000001", "register")
	for _, msg := range []string{"Jane Doe", "AAU", "Physics", "3", "Mathematics", "Physics", "done", "9-10", "Home", "Bole", "@janedoe", "skip"} {
		routeText(t, d, "251911000001", msg)
	}

	rec, err := st.GetTutorByIdentity("251911000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil || rec.Status != models.StatusPending {
		t.Fatalf("expected pending record after full dialogue, got %+v", rec)
	}
	if len(rec.Subjects) != 2 {
		t.Errorf("subjects = %v, want two", rec.Subjects)
	}
}

func TestDispatcherMyProfile(t *testing.T) {
	d, _, st := newTestDispatcher()

	reply := routeText(t, d, "u1", "myprofile")
	if !strings.Contains(reply, "not registered") {
		t.Errorf("expected not-registered reply, got %q", reply)
	}

	st.InsertTutor(models.Tutor{ID: "r1", Identity: "u1", Name: "Jane Doe", Subjects: []string{"Physics"}, Status: models.StatusPending, CreatedAt: time.Now()})
	reply = routeText(t, d, "u1", "myprofile")
	if !strings.Contains(reply, "Jane Doe") {
		t.Errorf("expected profile reply, got %q", reply)
	}
}

func TestDispatcherUpdateCommand(t *testing.T) {
	d, _, st := newTestDispatcher()
	st.InsertTutor(models.Tutor{ID: "r1", Identity: "u1", Name: "Jane Doe", Location: "Bole", Status: models.StatusApproved, CreatedAt: time.Now()})

	reply := routeText(t, d, "u1", "update location Piassa")
	if !strings.Contains(reply, "Updated") {
		t.Errorf("expected update confirmation, got %q", reply)
	}
	rec, _ := st.GetTutorByIdentity("u1")
	if rec.Location != "Piassa" {
		t.Errorf("location = %s, want Piassa", rec.Location)
	}

	reply = routeText(t, d, "u1", "update contact not!valid")
	if !strings.Contains(reply, "Couldn't update") {
		t.Errorf("expected validation failure reply, got %q", reply)
	}
}

func TestDispatcherSearchPagination(t *testing.T) {
	d, _, st := newTestDispatcher()
	names := []string{"Abel", "Biruk", "Chaltu", "Dawit", "Eyob", "Feven", "Girma"}
	for i, name := range names {
		st.InsertTutor(models.Tutor{
			ID: name, Identity: name, Name: name,
			Subjects: []string{"Physics"}, Grades: "9-10", Method: "Home",
			Location: "Bole", Contact: "@" + name,
			Status: models.StatusApproved, CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		})
	}
	// A pending tutor must stay out of search results.
	st.InsertTutor(models.Tutor{ID: "p1", Identity: "p1", Name: "Hana", Subjects: []string{"Physics"}, Status: models.StatusPending, CreatedAt: time.Now()})

	reply := routeText(t, d, "student1", "find physics")
	if !strings.Contains(reply, "page 1 of 2") {
		t.Errorf("expected first page header, got %q", reply)
	}
	if strings.Contains(reply, "Hana") {
		t.Errorf("pending tutors must not appear in search: %q", reply)
	}
	if !strings.Contains(reply, "find physics 2") {
		t.Errorf("expected next-page hint, got %q", reply)
	}

	reply = routeText(t, d, "student1", "find physics 2")
	if !strings.Contains(reply, "page 2 of 2") {
		t.Errorf("expected second page header, got %q", reply)
	}

	reply = routeText(t, d, "student1", "find astrology")
	if !strings.Contains(reply, "Unknown subject") {
		t.Errorf("expected unknown-subject reply, got %q", reply)
	}
}

func TestDispatcherSearchByGradeLocationAndAll(t *testing.T) {
	d, _, st := newTestDispatcher()
	st.InsertTutor(models.Tutor{
		ID: "r1", Identity: "u1", Name: "Abel", Subjects: []string{"Physics"},
		Grades: "9-10", Method: "Home", Location: "Bole", Contact: "@abel",
		Status: models.StatusApproved, CreatedAt: time.Now(),
	})
	st.InsertTutor(models.Tutor{
		ID: "r2", Identity: "u2", Name: "Biruk", Subjects: []string{"English"},
		Grades: "KG-4", Method: "Home", Location: "Piassa", Contact: "@biruk",
		Status: models.StatusApproved, CreatedAt: time.Now(),
	})
	st.InsertTutor(models.Tutor{
		ID: "r3", Identity: "u3", Name: "Chaltu", Subjects: []string{"Physics"},
		Grades: "9-10", Method: "Home", Location: "Bole", Contact: "@chaltu",
		Status: models.StatusPending, CreatedAt: time.Now(),
	})

	reply := routeText(t, d, "student1", "find grade 9-10")
	if !strings.Contains(reply, "Abel") || strings.Contains(reply, "Biruk") {
		t.Errorf("grade search returned wrong tutors: %q", reply)
	}
	if strings.Contains(reply, "Chaltu") {
		t.Errorf("pending tutors must not appear in grade search: %q", reply)
	}

	reply = routeText(t, d, "student1", "find grade 13")
	if !strings.Contains(reply, "Unknown grade range") {
		t.Errorf("expected unknown-grade reply, got %q", reply)
	}

	reply = routeText(t, d, "student1", "find location pia")
	if !strings.Contains(reply, "Biruk") || strings.Contains(reply, "Abel") {
		t.Errorf("location search returned wrong tutors: %q", reply)
	}

	reply = routeText(t, d, "student1", "find all")
	if !strings.Contains(reply, "Abel") || !strings.Contains(reply, "Biruk") {
		t.Errorf("find all must list every approved tutor: %q", reply)
	}
	if strings.Contains(reply, "Chaltu") {
		t.Errorf("pending tutors must not appear in find all: %q", reply)
	}
}

func TestDispatcherCancelWithoutSession(t *testing.T) {
	d, _, _ := newTestDispatcher()

	reply := routeText(t, d, "u1", "cancel")
	if !strings.Contains(reply, "Nothing to cancel") {
		t.Errorf("expected cancel acknowledgment, got %q", reply)
	}
}

func TestDispatcherSerializesPerIdentity(t *testing.T) {
	d, svc, st := newTestDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	svc.Inject(models.Event{Identity: "u1", Kind: models.EventText, Text: "register"})
	svc.Inject(models.Event{Identity: "u1", Kind: models.EventText, Text: "Jane Doe"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sess, _ := st.GetSession("u1")
		if sess != nil && sess.Step == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	sess, _ := st.GetSession("u1")
	t.Fatalf("events not processed in order, session: %+v, sent: %d", sess, len(svc.Sent()))
}
