// Package approval implements the administrator review workflow over tutor
// records: pending records are approved or rejected, and the owner is
// notified of the outcome on a best-effort basis.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/EduConnect/TutorHub/internal/dialogue"
	"github.com/EduConnect/TutorHub/internal/models"
)

// Notifier delivers decision outcomes to record owners. Delivery failures
// are logged and never roll back a status change.
type Notifier interface {
	SendText(ctx context.Context, identity, text string) error
}

// RecordStore is the slice of the store the workflow needs.
type RecordStore interface {
	GetTutorByID(id string) (*models.Tutor, error)
	GetTutorByIdentity(identity string) (*models.Tutor, error)
	UpdateTutorStatus(id string, status models.Status) error
	UpdateTutorField(identity string, patch models.FieldPatch) error
}

// Workflow applies administrator decisions and owner-initiated field updates
// to persisted records.
type Workflow struct {
	records  RecordStore
	notifier Notifier
}

// NewWorkflow creates an approval workflow. notifier may be nil, in which
// case decisions are applied silently.
func NewWorkflow(records RecordStore, notifier Notifier) *Workflow {
	return &Workflow{records: records, notifier: notifier}
}

// Decide applies an approve or reject decision to a record and notifies the
// owner. Re-deciding an already-decided record is allowed and overwrites the
// status; administrators may re-review at any time. The status change is
// authoritative regardless of notification delivery.
func (w *Workflow) Decide(ctx context.Context, recordID string, decision models.Decision) (*models.Tutor, error) {
	slog.Debug("Approval Decide invoked", "record_id", recordID, "decision", decision)

	status, err := decision.StatusFor()
	if err != nil {
		return nil, err
	}

	rec, err := w.records.GetTutorByID(recordID)
	if err != nil {
		slog.Error("Approval Decide record lookup failed", "error", err, "record_id", recordID)
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: record %s", models.ErrNotFound, recordID)
	}

	if err := w.records.UpdateTutorStatus(recordID, status); err != nil {
		slog.Error("Approval Decide status update failed", "error", err, "record_id", recordID)
		return nil, err
	}
	rec.Status = status
	slog.Info("Record decided", "record_id", recordID, "identity", rec.Identity, "status", status)

	if w.notifier != nil {
		if err := w.notifier.SendText(ctx, rec.Identity, decisionMessage(status)); err != nil {
			slog.Error("Decision notification failed, status change stands", "error", err, "record_id", recordID, "identity", rec.Identity)
		}
	}
	return rec, nil
}

// UpdateField applies a single-field edit to the identity's own record,
// validated against the field's dialogue rule. Status is never affected.
func (w *Workflow) UpdateField(identity string, key models.FieldKey, raw string) (*models.Tutor, error) {
	slog.Debug("Approval UpdateField invoked", "identity", identity, "field", key)

	spec, ok := dialogue.FieldByKey(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownField, string(key))
	}

	patch, err := buildPatch(spec, raw)
	if err != nil {
		slog.Debug("Approval UpdateField rejected input", "identity", identity, "field", key, "error", err)
		return nil, err
	}

	if err := w.records.UpdateTutorField(identity, patch); err != nil {
		slog.Error("Approval UpdateField store update failed", "error", err, "identity", identity, "field", key)
		return nil, err
	}
	rec, err := w.records.GetTutorByIdentity(identity)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: record for %s", models.ErrNotFound, identity)
	}
	slog.Info("Record field updated", "identity", identity, "field", key)
	return rec, nil
}

// buildPatch validates raw input against the field spec and produces the
// store patch for it.
func buildPatch(spec dialogue.FieldSpec, raw string) (models.FieldPatch, error) {
	switch spec.Kind {
	case dialogue.KindMultiSelect:
		subjects := parseSubjectList(spec, raw)
		if len(subjects) == 0 {
			return models.FieldPatch{}, fmt.Errorf("%w: no valid subjects in %q", models.ErrEmptySelection, raw)
		}
		return models.FieldPatch{Key: spec.Key, Subjects: subjects}, nil
	case dialogue.KindChoice:
		value, ok := dialogue.ResolveOption(spec, raw)
		if !ok {
			return models.FieldPatch{}, fmt.Errorf("%w: %q is not a valid %s", models.ErrInvalidInput, raw, spec.Key)
		}
		return models.FieldPatch{Key: spec.Key, Text: value}, nil
	case dialogue.KindMedia:
		return models.FieldPatch{Key: spec.Key, Text: strings.TrimSpace(raw)}, nil
	default:
		value, err := spec.Validate(raw)
		if err != nil {
			return models.FieldPatch{}, err
		}
		return models.FieldPatch{Key: spec.Key, Text: value}, nil
	}
}

// parseSubjectList splits a comma-separated reply and keeps only members of
// the closed subject set.
func parseSubjectList(spec dialogue.FieldSpec, raw string) []string {
	var subjects []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		value, ok := dialogue.ResolveOption(spec, strings.TrimSpace(part))
		if !ok || seen[value] {
			continue
		}
		seen[value] = true
		subjects = append(subjects, value)
	}
	return subjects
}

func decisionMessage(status models.Status) string {
	if status == models.StatusApproved {
		return "Good news! Your tutor profile has been approved and is now visible to students. 🎉"
	}
	return "Your tutor profile was reviewed and could not be approved. You can edit your details with 'update' and ask for another review."
}
