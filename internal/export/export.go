// Package export renders tutor records as a flat CSV dump for
// administrators.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/EduConnect/TutorHub/internal/models"
)

// RecordSource lists the records to export.
type RecordSource interface {
	ListTutors(f models.SearchFilter, skip, limit int) ([]models.Tutor, error)
}

// csvHeader is the exported column set. Contact identity and photo handles
// stay out of the dump.
var csvHeader = []string{
	"name", "university", "department", "year", "subjects",
	"grades", "method", "location", "contact", "status", "created_at",
}

// WriteCSV streams all records matching the filter to w as CSV.
func WriteCSV(w io.Writer, source RecordSource, f models.SearchFilter) error {
	slog.Debug("Export WriteCSV invoked", "status", f.Status)

	tutors, err := source.ListTutors(f, 0, 0)
	if err != nil {
		slog.Error("Export failed to list records", "error", err)
		return fmt.Errorf("failed to list records for export: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, t := range tutors {
		row := []string{
			t.Name, t.University, t.Department, t.Year,
			strings.Join(t.Subjects, ", "),
			t.Grades, t.Method, t.Location, t.Contact,
			string(t.Status), t.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("Export CSV flush failed", "error", err)
		return fmt.Errorf("failed to flush CSV output: %w", err)
	}
	slog.Debug("Export WriteCSV succeeded", "rows", len(tutors))
	return nil
}
