package dialogue

import (
	"log/slog"
	"time"

	"github.com/EduConnect/TutorHub/internal/models"
)

// SessionStore persists in-progress dialogue sessions keyed by identity.
// Exactly one session exists per identity. store.Store satisfies this.
type SessionStore interface {
	SaveSession(sess models.DialogueSession) error
	GetSession(identity string) (*models.DialogueSession, error)
	DeleteSession(identity string) error
}

// RecordStore is the slice of the record store the dialogue needs: checking
// for an already-finalized record and inserting the finalized one.
type RecordStore interface {
	GetTutorByIdentity(identity string) (*models.Tutor, error)
	InsertTutor(t models.Tutor) error
}

// openSession creates and persists a fresh session for an identity.
func openSession(sessions SessionStore, identity string, now time.Time) (*models.DialogueSession, error) {
	sess := models.NewDialogueSession(identity, now)
	if err := sessions.SaveSession(*sess); err != nil {
		slog.Error("Failed to persist new dialogue session", "error", err, "identity", identity)
		return nil, err
	}
	slog.Debug("Opened dialogue session", "identity", identity)
	return sess, nil
}
