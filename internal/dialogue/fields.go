// Package dialogue implements the multi-step registration dialogue: an
// ordered field registry, durable per-identity sessions, the state machine
// that advances them, and the finalizer that turns a completed session into
// a tutor record.
package dialogue

import (
	"fmt"
	"strings"

	"github.com/EduConnect/TutorHub/internal/models"
)

// FieldKind classifies how a field collects its value.
type FieldKind string

const (
	KindText        FieldKind = "text"
	KindMultiSelect FieldKind = "multiselect"
	KindChoice      FieldKind = "choice"
	KindMedia       FieldKind = "media"
)

// FieldSpec describes one collectible registration field. The ordered
// sequence of specs defines the dialogue's step order.
type FieldSpec struct {
	Key      models.FieldKey
	Kind     FieldKind
	Prompt   string
	Options  []string
	Validate func(raw string) (string, error)
}

// fieldSequence is the fixed dialogue step order. Steps cannot be skipped
// except the trailing media step, which accepts an explicit skip.
var fieldSequence = []FieldSpec{
	{
		Key:      models.FieldName,
		Kind:     KindText,
		Prompt:   "What is your full name?",
		Validate: validateNonEmpty("name"),
	},
	{
		Key:      models.FieldUniversity,
		Kind:     KindText,
		Prompt:   "Which university or college do you attend (or graduated from)?",
		Validate: validateNonEmpty("university"),
	},
	{
		Key:      models.FieldDepartment,
		Kind:     KindText,
		Prompt:   "What is your department or field of study?",
		Validate: validateNonEmpty("department"),
	},
	{
		Key:      models.FieldYear,
		Kind:     KindText,
		Prompt:   "What year of study are you in?",
		Validate: validateNonEmpty("year"),
	},
	{
		Key:     models.FieldSubjects,
		Kind:    KindMultiSelect,
		Prompt:  "Which subjects can you teach? Pick one or more, then send 'done'.",
		Options: models.SubjectList,
	},
	{
		Key:     models.FieldGrades,
		Kind:    KindChoice,
		Prompt:  "Which grade range do you want to teach?",
		Options: models.GradeRanges,
	},
	{
		Key:     models.FieldMethod,
		Kind:    KindChoice,
		Prompt:  "How will you deliver the tutoring?",
		Options: models.TeachingMethods,
	},
	{
		Key:      models.FieldLocation,
		Kind:     KindText,
		Prompt:   "Where are you located? (neighborhood or city area)",
		Validate: validateNonEmpty("location"),
	},
	{
		Key:      models.FieldContact,
		Kind:     KindText,
		Prompt:   "How can students reach you? Send a handle starting with @ or a phone number.",
		Validate: ValidateContact,
	},
	{
		Key:    models.FieldPhoto,
		Kind:   KindMedia,
		Prompt: "Finally, send a profile photo, or send 'skip' to continue without one.",
	},
}

// Fields returns the ordered field sequence.
func Fields() []FieldSpec {
	return fieldSequence
}

// FieldCount returns the number of dialogue steps.
func FieldCount() int {
	return len(fieldSequence)
}

// FieldAt returns the spec for a step index.
func FieldAt(step int) (FieldSpec, bool) {
	if step < 0 || step >= len(fieldSequence) {
		return FieldSpec{}, false
	}
	return fieldSequence[step], true
}

// FieldByKey looks up a spec by its field key. Used by single-field updates
// outside the dialogue.
func FieldByKey(key models.FieldKey) (FieldSpec, bool) {
	for _, spec := range fieldSequence {
		if spec.Key == key {
			return spec, true
		}
	}
	return FieldSpec{}, false
}

// RenderPrompt renders the prompt for a spec, including its option set and,
// for multi-select steps, the current selections.
func RenderPrompt(spec FieldSpec, sess *models.DialogueSession) string {
	var b strings.Builder
	b.WriteString(spec.Prompt)
	for i, opt := range spec.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
		if spec.Kind == KindMultiSelect && sess != nil && sess.HasSelection(opt) {
			b.WriteString(" ✅")
		}
	}
	if spec.Kind == KindMultiSelect && sess != nil && len(sess.Selections) > 0 {
		fmt.Fprintf(&b, "\n\nSelected: %s", strings.Join(sess.Selections, ", "))
	}
	return b.String()
}

// ResolveOption maps a raw reply to a member of the spec's option set. It
// accepts either the option's 1-based number or its name (case-insensitive).
func ResolveOption(spec FieldSpec, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for i, opt := range spec.Options {
		if raw == fmt.Sprintf("%d", i+1) || strings.EqualFold(raw, opt) {
			return opt, true
		}
	}
	return "", false
}

// ValidateContact accepts a handle beginning with @ (any non-empty suffix)
// or a phone number: an optional leading + followed by digits only.
func ValidateContact(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "@") {
		if len(raw) > 1 {
			return raw, nil
		}
		return "", fmt.Errorf("%w: handle must have characters after @", models.ErrInvalidInput)
	}
	digits := strings.TrimPrefix(raw, "+")
	if digits == "" {
		return "", fmt.Errorf("%w: contact cannot be empty", models.ErrInvalidInput)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: contact must be an @handle or a phone number", models.ErrInvalidInput)
		}
	}
	return raw, nil
}

func validateNonEmpty(field string) func(string) (string, error) {
	return func(raw string) (string, error) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return "", fmt.Errorf("%w: %s cannot be empty", models.ErrInvalidInput, field)
		}
		return raw, nil
	}
}
