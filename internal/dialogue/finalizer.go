package dialogue

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/EduConnect/TutorHub/internal/models"
	"github.com/google/uuid"
)

// Finalizer converts a completed session into a persisted tutor record and
// clears the session.
type Finalizer struct {
	records  RecordStore
	sessions SessionStore
	now      func() time.Time
	newID    func() string
}

// NewFinalizer creates a finalizer over the given stores.
func NewFinalizer(records RecordStore, sessions SessionStore) *Finalizer {
	return &Finalizer{
		records:  records,
		sessions: sessions,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Finalize persists the session as a pending tutor record and deletes the
// session. Idempotent: if a record already exists for the identity, it is
// returned unchanged and the session is cleared, so a retry after a crash
// between persist and delete never produces a second record.
func (f *Finalizer) Finalize(sess *models.DialogueSession) (*models.Tutor, error) {
	slog.Debug("Finalize invoked", "identity", sess.Identity)

	existing, err := f.records.GetTutorByIdentity(sess.Identity)
	if err != nil {
		slog.Error("Finalize existing-record lookup failed", "error", err, "identity", sess.Identity)
		return nil, err
	}
	if existing != nil {
		slog.Debug("Finalize found existing record, clearing session", "identity", sess.Identity, "record_id", existing.ID)
		if err := f.sessions.DeleteSession(sess.Identity); err != nil {
			slog.Error("Finalize session cleanup failed", "error", err, "identity", sess.Identity)
			return nil, err
		}
		return existing, nil
	}

	if err := checkComplete(sess); err != nil {
		slog.Error("Finalize rejected incomplete session", "error", err, "identity", sess.Identity)
		return nil, err
	}

	tutor := models.Tutor{
		ID:         f.newID(),
		Identity:   sess.Identity,
		Name:       sess.Answers[models.FieldName],
		University: sess.Answers[models.FieldUniversity],
		Department: sess.Answers[models.FieldDepartment],
		Year:       sess.Answers[models.FieldYear],
		Subjects:   append([]string(nil), sess.Subjects...),
		Grades:     sess.Answers[models.FieldGrades],
		Method:     sess.Answers[models.FieldMethod],
		Location:   sess.Answers[models.FieldLocation],
		Contact:    sess.Answers[models.FieldContact],
		PhotoRef:   sess.Answers[models.FieldPhoto],
		Status:     models.StatusPending,
		CreatedAt:  f.now(),
	}

	if err := f.records.InsertTutor(tutor); err != nil {
		slog.Error("Finalize record insert failed", "error", err, "identity", sess.Identity)
		return nil, err
	}
	if err := f.sessions.DeleteSession(sess.Identity); err != nil {
		slog.Error("Finalize session delete failed", "error", err, "identity", sess.Identity)
		return nil, err
	}
	slog.Info("Tutor record finalized", "identity", sess.Identity, "record_id", tutor.ID)
	return &tutor, nil
}

// checkComplete verifies every required field has an answer. The media field
// may be absent, signifying skip. A failure here is an invariant violation,
// not a user-facing error.
func checkComplete(sess *models.DialogueSession) error {
	for _, spec := range Fields() {
		switch spec.Kind {
		case KindMultiSelect:
			if len(sess.Subjects) == 0 {
				return fmt.Errorf("%w: no subjects selected", models.ErrIncompleteDialogue)
			}
		case KindMedia:
			// optional
		default:
			if sess.Answers[spec.Key] == "" {
				return fmt.Errorf("%w: missing %s", models.ErrIncompleteDialogue, spec.Key)
			}
		}
	}
	return nil
}
