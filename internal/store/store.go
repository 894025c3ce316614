// Package store provides storage backends for TutorHub.
//
// It includes an in-memory store for tests and small deployments, plus
// SQLite- and PostgreSQL-backed stores sharing the same interface.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/EduConnect/TutorHub/internal/models"
)

// Store is the persistence interface consumed by the dialogue engine, the
// approval workflow, and the API server.
type Store interface {
	// Tutor records
	InsertTutor(t models.Tutor) error
	GetTutorByID(id string) (*models.Tutor, error)
	GetTutorByIdentity(identity string) (*models.Tutor, error)
	UpdateTutorStatus(id string, status models.Status) error
	UpdateTutorField(identity string, patch models.FieldPatch) error
	// ListTutors returns matching records ordered by name. A limit of zero
	// or less means no limit.
	ListTutors(f models.SearchFilter, skip, limit int) ([]models.Tutor, error)
	CountTutors(f models.SearchFilter) (int, error)
	ListIdentities() ([]string, error)

	// Dialogue sessions
	SaveSession(s models.DialogueSession) error
	GetSession(identity string) (*models.DialogueSession, error)
	DeleteSession(identity string) error

	Close() error
}

// matchesFilter reports whether a tutor record satisfies the search filter.
// Shared by the in-memory store; the SQL stores express the same semantics
// in their WHERE clauses.
func matchesFilter(t *models.Tutor, f models.SearchFilter) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Grade != "" && t.Grades != f.Grade {
		return false
	}
	if f.Location != "" && !strings.Contains(strings.ToLower(t.Location), strings.ToLower(f.Location)) {
		return false
	}
	if f.Subject != "" {
		found := false
		for _, s := range t.Subjects {
			if s == f.Subject {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// InMemoryStore is a mutex-protected Store kept entirely in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	tutors   []models.Tutor
	sessions map[string]models.DialogueSession
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]models.DialogueSession)}
}

func (s *InMemoryStore) InsertTutor(t models.Tutor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tutors = append(s.tutors, cloneTutor(t))
	return nil
}

func (s *InMemoryStore) GetTutorByID(id string) (*models.Tutor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.tutors {
		if s.tutors[i].ID == id {
			t := cloneTutor(s.tutors[i])
			return &t, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) GetTutorByIdentity(identity string) (*models.Tutor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.tutors {
		if s.tutors[i].Identity == identity {
			t := cloneTutor(s.tutors[i])
			return &t, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) UpdateTutorStatus(id string, status models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tutors {
		if s.tutors[i].ID == id {
			s.tutors[i].Status = status
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *InMemoryStore) UpdateTutorField(identity string, patch models.FieldPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tutors {
		if s.tutors[i].Identity == identity {
			applyFieldPatch(&s.tutors[i], patch)
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *InMemoryStore) ListTutors(f models.SearchFilter, skip, limit int) ([]models.Tutor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []models.Tutor
	for i := range s.tutors {
		if matchesFilter(&s.tutors[i], f) {
			matched = append(matched, cloneTutor(s.tutors[i]))
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })
	if skip >= len(matched) {
		return nil, nil
	}
	matched = matched[skip:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *InMemoryStore) CountTutors(f models.SearchFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for i := range s.tutors {
		if matchesFilter(&s.tutors[i], f) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) ListIdentities() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool, len(s.tutors))
	var identities []string
	for i := range s.tutors {
		id := s.tutors[i].Identity
		if id != "" && !seen[id] {
			seen[id] = true
			identities = append(identities, id)
		}
	}
	sort.Strings(identities)
	return identities, nil
}

func (s *InMemoryStore) SaveSession(sess models.DialogueSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Identity] = cloneSession(sess)
	return nil
}

func (s *InMemoryStore) GetSession(identity string) (*models.DialogueSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[identity]
	if !ok {
		return nil, nil
	}
	c := cloneSession(sess)
	return &c, nil
}

func (s *InMemoryStore) DeleteSession(identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, identity)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func cloneTutor(t models.Tutor) models.Tutor {
	c := t
	c.Subjects = append([]string(nil), t.Subjects...)
	return c
}

// cloneSession copies the map and slice fields so callers never share
// backing storage with the store. Mutating a fetched session must be
// invisible until it is saved back.
func cloneSession(sess models.DialogueSession) models.DialogueSession {
	c := sess
	c.Answers = make(map[models.FieldKey]string, len(sess.Answers))
	for k, v := range sess.Answers {
		c.Answers[k] = v
	}
	c.Subjects = append([]string(nil), sess.Subjects...)
	c.Selections = append([]string(nil), sess.Selections...)
	return c
}

// applyFieldPatch applies a validated single-field patch to a record in place.
// Only field content changes; status is untouched.
func applyFieldPatch(t *models.Tutor, patch models.FieldPatch) {
	switch patch.Key {
	case models.FieldName:
		t.Name = patch.Text
	case models.FieldUniversity:
		t.University = patch.Text
	case models.FieldDepartment:
		t.Department = patch.Text
	case models.FieldYear:
		t.Year = patch.Text
	case models.FieldSubjects:
		t.Subjects = append([]string(nil), patch.Subjects...)
	case models.FieldGrades:
		t.Grades = patch.Text
	case models.FieldMethod:
		t.Method = patch.Text
	case models.FieldLocation:
		t.Location = patch.Text
	case models.FieldContact:
		t.Contact = patch.Text
	case models.FieldPhoto:
		t.PhotoRef = patch.Text
	}
}
