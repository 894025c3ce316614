package messaging

import (
	"strings"

	"github.com/EduConnect/TutorHub/internal/dialogue"
	"github.com/EduConnect/TutorHub/internal/models"
)

// Decoder refines a raw inbound text event into the closed event union
// exactly once, at the transport boundary. Downstream components never
// re-parse the payload.
type Decoder struct {
	sessions dialogue.SessionStore
}

// NewDecoder creates a decoder over the session store, which it consults to
// learn the active dialogue step for an identity.
func NewDecoder(sessions dialogue.SessionStore) *Decoder {
	return &Decoder{sessions: sessions}
}

// Decode classifies a raw text event. Photo and already-classified events
// pass through unchanged.
func (d *Decoder) Decode(ev models.Event) models.Event {
	if ev.Kind != models.EventText {
		return ev
	}
	raw := strings.TrimSpace(ev.Text)
	lower := strings.ToLower(raw)

	if cmd, args, ok := parseCommand(lower, raw); ok {
		ev.Kind = models.EventCommand
		ev.Text = cmd
		ev.Args = args
		return ev
	}

	switch lower {
	case "cancel":
		ev.Kind = models.EventCancel
		ev.Text = ""
		return ev
	case "done":
		ev.Kind = models.EventDone
		ev.Text = ""
		return ev
	case "skip":
		ev.Kind = models.EventSkip
		ev.Text = ""
		return ev
	}

	// Replies on a multi-select step act as selection toggles.
	sess, err := d.sessions.GetSession(ev.Identity)
	if err == nil && sess != nil {
		if spec, ok := dialogue.FieldAt(sess.Step); ok && spec.Kind == dialogue.KindMultiSelect {
			ev.Kind = models.EventToggle
			ev.Text = raw
			return ev
		}
	}

	ev.Text = raw
	return ev
}

// parseCommand recognizes bot commands, with or without a leading slash.
// Commands that take arguments keep the argument's original casing.
func parseCommand(lower, raw string) (cmd, args string, ok bool) {
	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return "", "", false
	}
	head := strings.TrimPrefix(fields[0], "/")
	switch head {
	case models.CommandRegister, "start":
		return models.CommandRegister, "", true
	case models.CommandMyProfile, "profile":
		return models.CommandMyProfile, "", true
	case models.CommandHelp:
		return models.CommandHelp, "", true
	case models.CommandUpdate, models.CommandFind:
		parts := strings.SplitN(strings.TrimSpace(raw), " ", 2)
		if len(parts) == 2 {
			args = strings.TrimSpace(parts[1])
		}
		return head, args, true
	}
	return "", "", false
}
