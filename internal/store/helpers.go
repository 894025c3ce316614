package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/EduConnect/TutorHub/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalStrings encodes a string slice as JSON for a text column.
// A nil or empty slice encodes as "[]".
func marshalStrings(vals []string) (string, error) {
	if len(vals) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "", fmt.Errorf("failed to marshal string list: %w", err)
	}
	return string(b), nil
}

func unmarshalStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(raw), &vals); err != nil {
		// A corrupt column should not take the whole row down.
		slog.Error("store: failed to unmarshal string list column", "error", err)
		return nil
	}
	return vals
}

// scanTutorRow scans one tutors row. The row must select the columns in the
// order of tutorColumns.
const tutorColumns = "id, identity, name, university, department, year, subjects, grades, method, location, contact, photo_ref, status, username, created_at"

func scanTutor(scan func(dest ...interface{}) error) (models.Tutor, error) {
	var t models.Tutor
	var subjectsJSON string
	var photoRef, username sql.NullString
	err := scan(
		&t.ID, &t.Identity, &t.Name, &t.University, &t.Department, &t.Year,
		&subjectsJSON, &t.Grades, &t.Method, &t.Location, &t.Contact,
		&photoRef, &t.Status, &username, &t.CreatedAt,
	)
	if err != nil {
		return t, err
	}
	t.Subjects = unmarshalStrings(subjectsJSON)
	t.PhotoRef = photoRef.String
	t.Username = username.String
	return t, nil
}

// tutorFilterClause builds a WHERE clause for a search filter. The
// placeholder function maps an argument index (1-based) to the driver's
// placeholder syntax ("?" for SQLite, "$n" for Postgres).
//
// Subjects are stored as a JSON array of closed-set values, so an exact
// subject match is a quoted-substring match on the column.
func tutorFilterClause(f models.SearchFilter, placeholder func(int) string) (string, []interface{}) {
	var conds []string
	var args []interface{}
	next := func() string {
		return placeholder(len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, "status = "+next())
	}
	if f.Grade != "" {
		args = append(args, f.Grade)
		conds = append(conds, "grades = "+next())
	}
	if f.Subject != "" {
		args = append(args, `%"`+f.Subject+`"%`)
		conds = append(conds, "subjects LIKE "+next())
	}
	if f.Location != "" {
		args = append(args, "%"+strings.ToLower(f.Location)+"%")
		conds = append(conds, "LOWER(location) LIKE "+next())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// fieldColumn maps a field key to its tutors column. The key must come from
// a validated FieldPatch.
func fieldColumn(key models.FieldKey) (string, error) {
	switch key {
	case models.FieldName:
		return "name", nil
	case models.FieldUniversity:
		return "university", nil
	case models.FieldDepartment:
		return "department", nil
	case models.FieldYear:
		return "year", nil
	case models.FieldSubjects:
		return "subjects", nil
	case models.FieldGrades:
		return "grades", nil
	case models.FieldMethod:
		return "method", nil
	case models.FieldLocation:
		return "location", nil
	case models.FieldContact:
		return "contact", nil
	case models.FieldPhoto:
		return "photo_ref", nil
	default:
		return "", fmt.Errorf("%w: %q", models.ErrUnknownField, string(key))
	}
}

// patchValue resolves the SQL value for a field patch.
func patchValue(patch models.FieldPatch) (interface{}, error) {
	if patch.Key == models.FieldSubjects {
		return marshalStrings(patch.Subjects)
	}
	if patch.Key == models.FieldPhoto {
		return nilIfEmpty(patch.Text), nil
	}
	return patch.Text, nil
}

// marshalAnswers serializes a session answer map to JSON for storage.
func marshalAnswers(answers map[models.FieldKey]string) (string, error) {
	if answers == nil {
		answers = map[models.FieldKey]string{}
	}
	data, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("failed to marshal answers: %w", err)
	}
	return string(data), nil
}

// scanSession reads a dialogue session row. The scan argument abstracts over
// sql.Row and sql.Rows.
func scanSession(scan func(dest ...interface{}) error) (models.DialogueSession, error) {
	var sess models.DialogueSession
	var answersJSON, subjectsJSON, selectionsJSON string
	err := scan(&sess.Identity, &sess.Step, &answersJSON, &subjectsJSON, &selectionsJSON,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return sess, err
	}
	sess.Answers = map[models.FieldKey]string{}
	if answersJSON != "" {
		if err := json.Unmarshal([]byte(answersJSON), &sess.Answers); err != nil {
			slog.Warn("Failed to decode session answers, starting empty", "error", err, "identity", sess.Identity)
			sess.Answers = map[models.FieldKey]string{}
		}
	}
	sess.Subjects = unmarshalStrings(subjectsJSON)
	sess.Selections = unmarshalStrings(selectionsJSON)
	return sess, nil
}
