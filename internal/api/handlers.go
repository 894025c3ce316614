package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/EduConnect/TutorHub/internal/export"
	"github.com/EduConnect/TutorHub/internal/models"
	"github.com/go-chi/chi/v5"
)

// Default pagination bounds for record listings
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// listRecordsHandler returns records matching the query filters. Supported
// query parameters: status, subject, grade, location, skip, limit.
func (s *Server) listRecordsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.listRecordsHandler: processing list request", "query", r.URL.RawQuery)

	filter := models.SearchFilter{
		Status:   models.Status(r.URL.Query().Get("status")),
		Subject:  r.URL.Query().Get("subject"),
		Grade:    r.URL.Query().Get("grade"),
		Location: r.URL.Query().Get("location"),
	}
	if filter.Status != "" && !models.IsValidStatus(filter.Status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid status filter"))
		return
	}

	skip := parseIntParam(r, "skip", 0)
	limit := parseIntParam(r, "limit", DefaultPageLimit)
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	tutors, err := s.records.ListTutors(filter, skip, limit)
	if err != nil {
		slog.Error("Server.listRecordsHandler: failed to list records", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list records"))
		return
	}
	total, err := s.records.CountTutors(filter)
	if err != nil {
		slog.Error("Server.listRecordsHandler: failed to count records", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to count records"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"total":   total,
		"records": tutors,
	}))
}

// pendingRecordsHandler returns records awaiting a decision.
func (s *Server) pendingRecordsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.pendingRecordsHandler: processing pending list request")
	tutors, err := s.records.ListTutors(models.SearchFilter{Status: models.StatusPending}, 0, 0)
	if err != nil {
		slog.Error("Server.pendingRecordsHandler: failed to list pending records", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list pending records"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(tutors))
}

// getRecordHandler returns one record by ID.
func (s *Server) getRecordHandler(w http.ResponseWriter, r *http.Request) {
	recordID := chi.URLParam(r, "recordID")
	rec, err := s.records.GetTutorByID(recordID)
	if err != nil {
		slog.Error("Server.getRecordHandler: lookup failed", "error", err, "record_id", recordID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch record"))
		return
	}
	if rec == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("record not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rec))
}

// decisionRequest is the body of a decision request.
type decisionRequest struct {
	Decision models.Decision `json:"decision"`
}

// decisionHandler applies an approve or reject decision to a record.
func (s *Server) decisionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	recordID := chi.URLParam(r, "recordID")
	slog.Debug("Server.decisionHandler: processing decision", "record_id", recordID)

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.decisionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	rec, err := s.workflow.Decide(r.Context(), recordID, req.Decision)
	switch {
	case err == nil:
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Decision applied", rec))
	case errors.Is(err, models.ErrInvalidDecision):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
	case errors.Is(err, models.ErrNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error(err.Error()))
	default:
		slog.Error("Server.decisionHandler: decision failed", "error", err, "record_id", recordID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to apply decision"))
	}
}

// exportHandler streams all records as CSV.
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.exportHandler: processing export request")

	filter := models.SearchFilter{Status: models.Status(r.URL.Query().Get("status"))}
	if filter.Status != "" && !models.IsValidStatus(filter.Status) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid status filter"))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="tutors.csv"`)
	if err := export.WriteCSV(w, s.records, filter); err != nil {
		// Headers may already be written; log and drop the connection.
		slog.Error("Server.exportHandler: export failed", "error", err)
	}
}

// broadcastRequest is the body of a broadcast request.
type broadcastRequest struct {
	Message string `json:"message"`
}

// broadcastHandler sends a message to every registered identity.
func (s *Server) broadcastHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.broadcastHandler: processing broadcast request")

	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.broadcastHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Message == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("message cannot be empty"))
		return
	}

	result, err := s.broadcaster.Send(r.Context(), req.Message)
	if err != nil {
		slog.Error("Server.broadcastHandler: broadcast failed", "error", err, "sent", result.Sent, "failed", result.Failed)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Broadcast failed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// statsHandler reports record counts per status.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.statsHandler: processing stats request")
	stats := make(map[string]int, 4)
	total := 0
	for _, status := range []models.Status{models.StatusPending, models.StatusApproved, models.StatusRejected} {
		count, err := s.records.CountTutors(models.SearchFilter{Status: status})
		if err != nil {
			slog.Error("Server.statsHandler: failed to count records", "error", err, "status", status)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute stats"))
			return
		}
		stats[string(status)] = count
		total += count
	}
	stats["total"] = total
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
