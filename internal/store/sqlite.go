// Package store provides storage backends for TutorHub.
//
// This file implements an SQLite-backed store for tutor records and dialogue
// sessions.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/EduConnect/TutorHub/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) InsertTutor(t models.Tutor) error {
	subjectsJSON, err := marshalStrings(t.Subjects)
	if err != nil {
		slog.Error("SQLiteStore InsertTutor marshal failed", "error", err, "identity", t.Identity)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO tutors (`+tutorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Identity, t.Name, t.University, t.Department, t.Year,
		subjectsJSON, t.Grades, t.Method, t.Location, t.Contact,
		nilIfEmpty(t.PhotoRef), string(t.Status), nilIfEmpty(t.Username), t.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore InsertTutor failed", "error", err, "identity", t.Identity)
		return fmt.Errorf("failed to insert tutor %s: %w", t.Identity, err)
	}
	slog.Debug("SQLiteStore InsertTutor succeeded", "id", t.ID, "identity", t.Identity)
	return nil
}

func (s *SQLiteStore) GetTutorByID(id string) (*models.Tutor, error) {
	row := s.db.QueryRow(`SELECT `+tutorColumns+` FROM tutors WHERE id = ?`, id)
	t, err := scanTutor(row.Scan)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetTutorByID not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetTutorByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query tutor %s: %w", id, err)
	}
	return &t, nil
}

func (s *SQLiteStore) GetTutorByIdentity(identity string) (*models.Tutor, error) {
	row := s.db.QueryRow(`SELECT `+tutorColumns+` FROM tutors WHERE identity = ?`, identity)
	t, err := scanTutor(row.Scan)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetTutorByIdentity not found", "identity", identity)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetTutorByIdentity failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query tutor for %s: %w", identity, err)
	}
	return &t, nil
}

func (s *SQLiteStore) UpdateTutorStatus(id string, status models.Status) error {
	res, err := s.db.Exec(`UPDATE tutors SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		slog.Error("SQLiteStore UpdateTutorStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update status for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	slog.Debug("SQLiteStore UpdateTutorStatus succeeded", "id", id, "status", status)
	return nil
}

func (s *SQLiteStore) UpdateTutorField(identity string, patch models.FieldPatch) error {
	column, err := fieldColumn(patch.Key)
	if err != nil {
		return err
	}
	value, err := patchValue(patch)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE tutors SET `+column+` = ? WHERE identity = ?`, value, identity)
	if err != nil {
		slog.Error("SQLiteStore UpdateTutorField failed", "error", err, "identity", identity, "field", patch.Key)
		return fmt.Errorf("failed to update field %s for %s: %w", patch.Key, identity, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	slog.Debug("SQLiteStore UpdateTutorField succeeded", "identity", identity, "field", patch.Key)
	return nil
}

func (s *SQLiteStore) ListTutors(f models.SearchFilter, skip, limit int) ([]models.Tutor, error) {
	clause, args := tutorFilterClause(f, func(int) string { return "?" })
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	args = append(args, limit, skip)
	rows, err := s.db.Query(`SELECT `+tutorColumns+` FROM tutors`+clause+` ORDER BY name LIMIT ? OFFSET ?`, args...)
	if err != nil {
		slog.Error("SQLiteStore ListTutors query failed", "error", err)
		return nil, fmt.Errorf("failed to query tutors: %w", err)
	}
	defer rows.Close()

	var tutors []models.Tutor
	for rows.Next() {
		t, err := scanTutor(rows.Scan)
		if err != nil {
			slog.Error("SQLiteStore ListTutors scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan tutor row: %w", err)
		}
		tutors = append(tutors, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore ListTutors rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate tutor rows: %w", err)
	}
	slog.Debug("SQLiteStore ListTutors succeeded", "count", len(tutors))
	return tutors, nil
}

func (s *SQLiteStore) CountTutors(f models.SearchFilter) (int, error) {
	clause, args := tutorFilterClause(f, func(int) string { return "?" })
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tutors`+clause, args...).Scan(&count)
	if err != nil {
		slog.Error("SQLiteStore CountTutors failed", "error", err)
		return 0, fmt.Errorf("failed to count tutors: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) ListIdentities() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT identity FROM tutors ORDER BY identity`)
	if err != nil {
		slog.Error("SQLiteStore ListIdentities query failed", "error", err)
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("SQLiteStore ListIdentities scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan identity row: %w", err)
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identity rows: %w", err)
	}
	return identities, nil
}

// SaveSession stores or replaces the dialogue session for an identity.
func (s *SQLiteStore) SaveSession(sess models.DialogueSession) error {
	answersJSON, err := marshalAnswers(sess.Answers)
	if err != nil {
		slog.Error("SQLiteStore SaveSession marshal failed", "error", err, "identity", sess.Identity)
		return err
	}
	subjectsJSON, err := marshalStrings(sess.Subjects)
	if err != nil {
		return err
	}
	selectionsJSON, err := marshalStrings(sess.Selections)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO dialogue_sessions (identity, step, answers, subjects, selections, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.Identity, sess.Step, answersJSON, subjectsJSON, selectionsJSON, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "identity", sess.Identity)
		return fmt.Errorf("failed to save session for %s: %w", sess.Identity, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "identity", sess.Identity, "step", sess.Step)
	return nil
}

// GetSession retrieves the dialogue session for an identity, or nil if absent.
func (s *SQLiteStore) GetSession(identity string) (*models.DialogueSession, error) {
	row := s.db.QueryRow(`SELECT identity, step, answers, subjects, selections, created_at, updated_at
		FROM dialogue_sessions WHERE identity = ?`, identity)
	sess, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "identity", identity)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query session for %s: %w", identity, err)
	}
	return &sess, nil
}

// DeleteSession removes the dialogue session for an identity.
func (s *SQLiteStore) DeleteSession(identity string) error {
	_, err := s.db.Exec(`DELETE FROM dialogue_sessions WHERE identity = ?`, identity)
	if err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "identity", identity)
		return fmt.Errorf("failed to delete session for %s: %w", identity, err)
	}
	slog.Debug("SQLiteStore DeleteSession succeeded", "identity", identity)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
