package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/EduConnect/TutorHub/internal/models"
	_ "github.com/lib/pq"
)

// Constants for PostgreSQL connection pool configuration
const (
	// DefaultMaxOpenConns defines the default maximum number of open connections
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns defines the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime defines the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running PostgreSQL migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) InsertTutor(t models.Tutor) error {
	subjectsJSON, err := marshalStrings(t.Subjects)
	if err != nil {
		slog.Error("PostgresStore InsertTutor marshal failed", "error", err, "identity", t.Identity)
		return err
	}
	_, err = s.db.Exec(`INSERT INTO tutors (`+tutorColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.Identity, t.Name, t.University, t.Department, t.Year,
		subjectsJSON, t.Grades, t.Method, t.Location, t.Contact,
		nilIfEmpty(t.PhotoRef), string(t.Status), nilIfEmpty(t.Username), t.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore InsertTutor failed", "error", err, "identity", t.Identity)
		return fmt.Errorf("failed to insert tutor %s: %w", t.Identity, err)
	}
	slog.Debug("PostgresStore InsertTutor succeeded", "id", t.ID, "identity", t.Identity)
	return nil
}

func (s *PostgresStore) GetTutorByID(id string) (*models.Tutor, error) {
	row := s.db.QueryRow(`SELECT `+tutorColumns+` FROM tutors WHERE id = $1`, id)
	t, err := scanTutor(row.Scan)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetTutorByID not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTutorByID failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to query tutor %s: %w", id, err)
	}
	return &t, nil
}

func (s *PostgresStore) GetTutorByIdentity(identity string) (*models.Tutor, error) {
	row := s.db.QueryRow(`SELECT `+tutorColumns+` FROM tutors WHERE identity = $1`, identity)
	t, err := scanTutor(row.Scan)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetTutorByIdentity not found", "identity", identity)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetTutorByIdentity failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query tutor for %s: %w", identity, err)
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTutorStatus(id string, status models.Status) error {
	res, err := s.db.Exec(`UPDATE tutors SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		slog.Error("PostgresStore UpdateTutorStatus failed", "error", err, "id", id)
		return fmt.Errorf("failed to update status for %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	slog.Debug("PostgresStore UpdateTutorStatus succeeded", "id", id, "status", status)
	return nil
}

func (s *PostgresStore) UpdateTutorField(identity string, patch models.FieldPatch) error {
	column, err := fieldColumn(patch.Key)
	if err != nil {
		return err
	}
	value, err := patchValue(patch)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE tutors SET `+column+` = $1 WHERE identity = $2`, value, identity)
	if err != nil {
		slog.Error("PostgresStore UpdateTutorField failed", "error", err, "identity", identity, "field", patch.Key)
		return fmt.Errorf("failed to update field %s for %s: %w", patch.Key, identity, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrNotFound
	}
	slog.Debug("PostgresStore UpdateTutorField succeeded", "identity", identity, "field", patch.Key)
	return nil
}

func (s *PostgresStore) ListTutors(f models.SearchFilter, skip, limit int) ([]models.Tutor, error) {
	clause, args := tutorFilterClause(f, func(n int) string { return fmt.Sprintf("$%d", n) })
	query := `SELECT ` + tutorColumns + ` FROM tutors` + clause + ` ORDER BY name`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}
	query += fmt.Sprintf(" OFFSET $%d", len(args)+1)
	args = append(args, skip)
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListTutors query failed", "error", err)
		return nil, fmt.Errorf("failed to query tutors: %w", err)
	}
	defer rows.Close()

	var tutors []models.Tutor
	for rows.Next() {
		t, err := scanTutor(rows.Scan)
		if err != nil {
			slog.Error("PostgresStore ListTutors scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan tutor row: %w", err)
		}
		tutors = append(tutors, t)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore ListTutors rows iteration failed", "error", err)
		return nil, fmt.Errorf("failed to iterate tutor rows: %w", err)
	}
	slog.Debug("PostgresStore ListTutors succeeded", "count", len(tutors))
	return tutors, nil
}

func (s *PostgresStore) CountTutors(f models.SearchFilter) (int, error) {
	clause, args := tutorFilterClause(f, func(n int) string { return fmt.Sprintf("$%d", n) })
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM tutors`+clause, args...).Scan(&count)
	if err != nil {
		slog.Error("PostgresStore CountTutors failed", "error", err)
		return 0, fmt.Errorf("failed to count tutors: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListIdentities() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT identity FROM tutors ORDER BY identity`)
	if err != nil {
		slog.Error("PostgresStore ListIdentities query failed", "error", err)
		return nil, fmt.Errorf("failed to query identities: %w", err)
	}
	defer rows.Close()

	var identities []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("PostgresStore ListIdentities scan failed", "error", err)
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
func (s *PostgresStore) SaveSession(sess models.DialogueSession) error {
	answersJSON, err := marshalAnswers(sess.Answers)
	if err != nil {
		slog.Error("PostgresStore SaveSession marshal failed", "error", err, "identity", sess.Identity)
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
		INSERT INTO dialogue_sessions (identity, step, answers, subjects, selections, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identity) DO UPDATE SET
			step = EXCLUDED.step,
			answers = EXCLUDED.answers,
			subjects = EXCLUDED.subjects,
			selections = EXCLUDED.selections,
			updated_at = EXCLUDED.updated_at`,
		sess.Identity, sess.Step, answersJSON, subjectsJSON, selectionsJSON, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "identity", sess.Identity)
		return fmt.Errorf("failed to save session for %s: %w", sess.Identity, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "identity", sess.Identity, "step", sess.Step)
	return nil
}

// GetSession retrieves the dialogue session for an identity, or nil if absent.
func (s *PostgresStore) GetSession(identity string) (*models.DialogueSession, error) {
	row := s.db.QueryRow(`SELECT identity, step, answers, subjects, selections, created_at, updated_at
		FROM dialogue_sessions WHERE identity = $1`, identity)
	sess, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetSession not found", "identity", identity)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query session for %s: %w", identity, err)
	}
	return &sess, nil
}

// DeleteSession removes the dialogue session for an identity.
func (s *PostgresStore) DeleteSession(identity string) error {
	_, err := s.db.Exec(`DELETE FROM dialogue_sessions WHERE identity = $1`, identity)
	if err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "identity", identity)
		return fmt.Errorf("failed to delete session for %s: %w", identity, err)
	}
	slog.Debug("PostgresStore DeleteSession succeeded", "identity", identity)
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close PostgreSQL database", "error", err)
	}
	return err
}
