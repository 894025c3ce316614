package dialogue

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/EduConnect/TutorHub/internal/models"
)

// Machine advances dialogue sessions through the ordered field sequence.
// One instance serves all identities; callers must serialize events per
// identity (the dispatcher owns that locking).
type Machine struct {
	sessions  SessionStore
	records   RecordStore
	finalizer *Finalizer
	now       func() time.Time
}

// NewMachine creates a dialogue machine over the given stores.
func NewMachine(sessions SessionStore, records RecordStore, finalizer *Finalizer) *Machine {
	return &Machine{
		sessions:  sessions,
		records:   records,
		finalizer: finalizer,
		now:       time.Now,
	}
}

// Start handles the registration entry trigger. A finalized record blocks a
// new dialogue; a live session resumes at its current step.
func (m *Machine) Start(identity string) (string, error) {
	slog.Debug("Dialogue Start invoked", "identity", identity)

	rec, err := m.records.GetTutorByIdentity(identity)
	if err != nil {
		slog.Error("Dialogue Start record lookup failed", "error", err, "identity", identity)
		return "", err
	}
	if rec != nil {
		slog.Debug("Dialogue Start blocked, identity already registered", "identity", identity, "status", rec.Status)
		return fmt.Sprintf("You are already registered (status: %s). Use 'update' to change a field of your profile.", rec.Status), nil
	}

	sess, err := m.sessions.GetSession(identity)
	if err != nil {
		slog.Error("Dialogue Start session lookup failed", "error", err, "identity", identity)
		return "", err
	}
	if sess != nil {
		spec, _ := FieldAt(sess.Step)
		slog.Debug("Dialogue Start resuming existing session", "identity", identity, "step", sess.Step)
		return "Resuming your registration.\n\n" + RenderPrompt(spec, sess), nil
	}

	sess, err = openSession(m.sessions, identity, m.now())
	if err != nil {
		return "", err
	}
	spec, _ := FieldAt(0)
	return "Welcome to tutor registration! Send 'cancel' at any time to stop.\n\n" + RenderPrompt(spec, sess), nil
}

// SessionFor returns the live session for an identity, or nil when none.
func (m *Machine) SessionFor(identity string) (*models.DialogueSession, error) {
	return m.sessions.GetSession(identity)
}

// Cancel deletes any live session for the identity. Idempotent.
func (m *Machine) Cancel(identity string) (string, error) {
	slog.Debug("Dialogue Cancel invoked", "identity", identity)
	if err := m.sessions.DeleteSession(identity); err != nil {
		slog.Error("Dialogue Cancel failed", "error", err, "identity", identity)
		return "", err
	}
	return "Registration cancelled. Send 'register' to start again.", nil
}

// HandleEvent applies one inbound event to the identity's session. The
// handled flag is false when no session is live, in which case the event is
// not a dialogue event and the caller should route it elsewhere. Validation
// failures never surface as errors; they produce a re-prompt reply with the
// session unchanged.
func (m *Machine) HandleEvent(ev models.Event) (reply string, handled bool, err error) {
	sess, err := m.sessions.GetSession(ev.Identity)
	if err != nil {
		slog.Error("Dialogue HandleEvent session lookup failed", "error", err, "identity", ev.Identity)
		return "", false, err
	}
	if sess == nil {
		return "", false, nil
	}
	slog.Debug("Dialogue HandleEvent invoked", "identity", ev.Identity, "kind", ev.Kind, "step", sess.Step)

	if ev.Kind == models.EventCancel {
		reply, err = m.Cancel(ev.Identity)
		return reply, true, err
	}

	spec, ok := FieldAt(sess.Step)
	if !ok {
		slog.Error("Dialogue session step out of range", "identity", ev.Identity, "step", sess.Step)
		return "", true, fmt.Errorf("session step %d out of range for %s", sess.Step, ev.Identity)
	}

	switch {
	case spec.Kind == KindMultiSelect && ev.Kind == models.EventToggle:
		return m.handleToggle(sess, spec, ev)
	case spec.Kind == KindMultiSelect && ev.Kind == models.EventDone:
		return m.handleDone(sess, spec)
	case spec.Kind == KindMedia && ev.Kind == models.EventSkip:
		return m.commitAnswer(sess, spec, "")
	case spec.Kind == KindMedia && ev.Kind == models.EventPhoto:
		if ev.Text == "" {
			return RenderPrompt(spec, sess), true, nil
		}
		return m.commitAnswer(sess, spec, ev.Text)
	case ev.Kind == models.EventText:
		return m.handleText(sess, spec, ev)
	default:
		// Event kind does not fit the current step. Re-prompt without
		// mutating anything.
		slog.Debug("Dialogue event kind mismatch, re-prompting", "identity", ev.Identity, "kind", ev.Kind, "step", sess.Step)
		return RenderPrompt(spec, sess), true, nil
	}
}

// handleToggle flips membership of the toggled value in the working
// selection set. Selections never auto-advance.
func (m *Machine) handleToggle(sess *models.DialogueSession, spec FieldSpec, ev models.Event) (string, bool, error) {
	value, ok := ResolveOption(spec, ev.Text)
	if !ok {
		return "That is not one of the options.\n\n" + RenderPrompt(spec, sess), true, nil
	}
	sess.ToggleSelection(value)
	sess.UpdatedAt = m.now()
	if err := m.sessions.SaveSession(*sess); err != nil {
		slog.Error("Dialogue toggle session save failed", "error", err, "identity", sess.Identity)
		return "", true, err
	}
	return RenderPrompt(spec, sess), true, nil
}

// handleDone commits the selection set and advances. An empty set re-prompts
// and never advances.
func (m *Machine) handleDone(sess *models.DialogueSession, spec FieldSpec) (string, bool, error) {
	if len(sess.Selections) == 0 {
		slog.Debug("Dialogue done with empty selection, re-prompting", "identity", sess.Identity)
		return "Please pick at least one option before sending 'done'.\n\n" + RenderPrompt(spec, sess), true, nil
	}
	sess.Subjects = append([]string(nil), sess.Selections...)
	sess.Selections = nil
	return m.advance(sess)
}

// handleText validates free text or a fixed-choice reply for the current
// step and advances on success.
func (m *Machine) handleText(sess *models.DialogueSession, spec FieldSpec, ev models.Event) (string, bool, error) {
	switch spec.Kind {
	case KindChoice:
		value, ok := ResolveOption(spec, ev.Text)
		if !ok {
			return "That is not one of the options.\n\n" + RenderPrompt(spec, sess), true, nil
		}
		return m.commitAnswer(sess, spec, value)
	case KindText:
		value, err := spec.Validate(ev.Text)
		if err != nil {
			slog.Debug("Dialogue input rejected, re-prompting", "identity", sess.Identity, "field", spec.Key, "error", err)
			return "That doesn't look right.\n\n" + RenderPrompt(spec, sess), true, nil
		}
		return m.commitAnswer(sess, spec, value)
	case KindMultiSelect:
		// Free-text replies on a multi-select step act as toggles.
		return m.handleToggle(sess, spec, ev)
	default:
		return RenderPrompt(spec, sess), true, nil
	}
}

// commitAnswer writes the validated value and advances the session.
func (m *Machine) commitAnswer(sess *models.DialogueSession, spec FieldSpec, value string) (string, bool, error) {
	sess.Answers[spec.Key] = value
	return m.advance(sess)
}

// advance moves the session to the next step, finalizing when all fields
// are collected. The session is persisted only after the in-memory mutation
// is complete.
func (m *Machine) advance(sess *models.DialogueSession) (string, bool, error) {
	sess.Step++
	sess.UpdatedAt = m.now()

	if sess.Step >= FieldCount() {
		tutor, err := m.finalizer.Finalize(sess)
		if err != nil {
			slog.Error("Dialogue finalize failed", "error", err, "identity", sess.Identity)
			return "", true, err
		}
		slog.Info("Dialogue completed", "identity", sess.Identity, "record_id", tutor.ID)
		return "Registration complete! Your profile is pending approval and you will be notified once it is reviewed.", true, nil
	}

	if err := m.sessions.SaveSession(*sess); err != nil {
		slog.Error("Dialogue session save failed", "error", err, "identity", sess.Identity)
		return "", true, err
	}
	spec, _ := FieldAt(sess.Step)
	return RenderPrompt(spec, sess), true, nil
}
