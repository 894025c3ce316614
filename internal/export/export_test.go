package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/EduConnect/TutorHub/internal/models"
	"github.com/EduConnect/TutorHub/internal/store"
)

func TestWriteCSV(t *testing.T) {
	st := store.NewInMemoryStore()
	err := st.InsertTutor(models.Tutor{
		ID:         "r1",
		Identity:   "secret-identity",
		Name:       "Jane Doe",
		University: "AAU",
		Department: "Physics",
		Year:       "3",
		Subjects:   []string{"Physics", "Mathematics"},
		Grades:     "9-10",
		Method:     "Home",
		Location:   "Bole",
		Contact:    "@janedoe",
		PhotoRef:   "photos/secret.jpg",
		Status:     models.StatusApproved,
		CreatedAt:  time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, st, models.SearchFilter{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d rows", len(rows))
	}
	if rows[0][0] != "name" {
		t.Errorf("unexpected header: %v", rows[0])
	}
	row := strings.Join(rows[1], ",")
	if !strings.Contains(row, "Jane Doe") || !strings.Contains(row, "Physics, Mathematics") {
		t.Errorf("row missing expected fields: %v", rows[1])
	}
	if strings.Contains(row, "secret-identity") || strings.Contains(row, "secret.jpg") {
		t.Errorf("identity and photo reference must not be exported: %v", rows[1])
	}
}

func TestWriteCSVEmptyStore(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, store.NewInMemoryStore(), models.SearchFilter{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected header only, got %d rows", len(rows))
	}
}
