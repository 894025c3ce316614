// Package models defines the core data structures for TutorHub.
//
// It includes the tutor record, the dialogue session, inbound events, and the
// error values shared across modules.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status represents the approval state of a tutor record.
type Status string

const (
	// StatusPending indicates the record awaits an administrator decision.
	StatusPending Status = "pending"
	// StatusApproved indicates the record was approved and is visible in search.
	StatusApproved Status = "approved"
	// StatusRejected indicates the record was rejected.
	StatusRejected Status = "rejected"
)

// IsValidStatus checks if the given status is supported.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Decision is an administrator action applied to a record's status.
type Decision string

const (
	// DecisionApprove sets the record status to approved.
	DecisionApprove Decision = "approve"
	// DecisionReject sets the record status to rejected.
	DecisionReject Decision = "reject"
)

// StatusFor maps a decision to the record status it produces.
func (d Decision) StatusFor() (Status, error) {
	switch d {
	case DecisionApprove:
		return StatusApproved, nil
	case DecisionReject:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, string(d))
	}
}

// FieldKey identifies one collectible registration field.
type FieldKey string

// Field key constants, in dialogue order.
const (
	FieldName       FieldKey = "name"
	FieldUniversity FieldKey = "university"
	FieldDepartment FieldKey = "department"
	FieldYear       FieldKey = "year"
	FieldSubjects   FieldKey = "subjects"
	FieldGrades     FieldKey = "grades"
	FieldMethod     FieldKey = "method"
	FieldLocation   FieldKey = "location"
	FieldContact    FieldKey = "contact"
	FieldPhoto      FieldKey = "photo"
)

// Closed option sets for fixed-choice and multi-select fields.
var (
	// SubjectList is the closed set of subjects a tutor may offer.
	SubjectList = []string{
		"Mathematics", "English", "Physics", "Chemistry", "Biology",
		"History", "Geography", "Civics", "ICT", "Amharic",
	}
	// GradeRanges is the closed set of grade bands.
	GradeRanges = []string{"KG-4", "5-8", "9-10"}
	// TeachingMethods is the closed set of teaching methods.
	TeachingMethods = []string{"Home"}
)

// Error variables shared across modules.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmptySelection     = errors.New("selection set is empty")
	ErrNotFound           = errors.New("record not found")
	ErrIncompleteDialogue = errors.New("dialogue session is incomplete")
	ErrInvalidDecision    = errors.New("invalid decision")
	ErrUnknownField       = errors.New("unknown field key")
	ErrEmptyRecipient     = errors.New("recipient cannot be empty")
)

// Tutor represents a persisted tutor profile.
type Tutor struct {
	ID         string    `json:"id"`
	Identity   string    `json:"identity"`
	Name       string    `json:"name"`
	University string    `json:"university"`
	Department string    `json:"department"`
	Year       string    `json:"year"`
	Subjects   []string  `json:"subjects"`
	Grades     string    `json:"grades"`
	Method     string    `json:"method"`
	Location   string    `json:"location"`
	Contact    string    `json:"contact"`
	PhotoRef   string    `json:"photo_ref,omitempty"`
	Status     Status    `json:"status"`
	Username   string    `json:"username,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DisplayName returns the preferred human-readable name for the tutor.
func (t *Tutor) DisplayName() string {
	if t.Username != "" {
		return t.Username
	}
	return t.Name
}

// FormatProfile renders the tutor record as plain text for messenger replies.
func (t *Tutor) FormatProfile() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", t.Name)
	fmt.Fprintf(&b, "University: %s - %s\n", t.University, t.Department)
	fmt.Fprintf(&b, "Year of study: %s\n", t.Year)
	fmt.Fprintf(&b, "Subjects: %s\n", strings.Join(t.Subjects, ", "))
	fmt.Fprintf(&b, "Grades: %s\n", t.Grades)
	fmt.Fprintf(&b, "Teaching method: %s\n", t.Method)
	fmt.Fprintf(&b, "Location: %s\n", t.Location)
	fmt.Fprintf(&b, "Contact: %s\n", t.Contact)
	fmt.Fprintf(&b, "Status: %s", t.Status)
	return b.String()
}

// SearchFilter selects tutor records by status and optional criteria.
// Subject and Grade match exactly against the closed sets; Location is a
// case-insensitive substring match.
type SearchFilter struct {
	Status   Status `json:"status,omitempty"`
	Subject  string `json:"subject,omitempty"`
	Grade    string `json:"grade,omitempty"`
	Location string `json:"location,omitempty"`
}

// FieldPatch is a validated single-field update for a tutor record.
// Exactly one of Text or Subjects carries the new value, depending on the key.
type FieldPatch struct {
	Key      FieldKey
	Text     string
	Subjects []string
}

// DialogueSession is the per-identity scratch state of an in-progress
// registration dialogue. It is keyed by Identity in the session store and
// destroyed on finalization or cancellation.
type DialogueSession struct {
	Identity   string             `json:"identity"`
	Step       int                `json:"step"`
	Answers    map[FieldKey]string `json:"answers"`
	Subjects   []string           `json:"subjects,omitempty"`
	Selections []string           `json:"selections,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// NewDialogueSession creates an empty session at step 0 for the identity.
func NewDialogueSession(identity string, now time.Time) *DialogueSession {
	return &DialogueSession{
		Identity:  identity,
		Answers:   make(map[FieldKey]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasSelection reports whether value is in the working selection set.
func (s *DialogueSession) HasSelection(value string) bool {
	for _, v := range s.Selections {
		if v == value {
			return true
		}
	}
	return false
}

// ToggleSelection flips membership of value in the working selection set.
func (s *DialogueSession) ToggleSelection(value string) {
	for i, v := range s.Selections {
		if v == value {
			s.Selections = append(s.Selections[:i], s.Selections[i+1:]...)
			return
		}
	}
	s.Selections = append(s.Selections, value)
}

// BroadcastResult reports a fan-out outcome as counts; partial success is
// expected and is not an error.
type BroadcastResult struct {
	Sent             int      `json:"sent"`
	Failed           int      `json:"failed"`
	FailedRecipients []string `json:"failed_recipients,omitempty"`
}
