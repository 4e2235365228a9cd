package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// SubmitReportRequest is the body of POST /api/v1/reports
type SubmitReportRequest struct {
	Addresses []string `json:"addresses"`
	Providers []string `json:"providers,omitempty"`
}

// SubmitReportResponse acknowledges an accepted report
type SubmitReportResponse struct {
	ReportID string `json:"reportId"`
}

// handleSubmitReport accepts a batch of addresses and starts scanning
func (s *Server) handleSubmitReport(w http.ResponseWriter, r *http.Request) {
	var req SubmitReportRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	reportID, err := s.scans.Submit(r.Context(), req.Addresses, req.Providers)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusAccepted, SubmitReportResponse{ReportID: reportID})
}

// handleGetReport returns the current snapshot of a report
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["reportID"]

	snapshot, err := s.scans.Snapshot(r.Context(), reportID)
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// handleListReports returns summaries of all reports, most recent first
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.scans.ListReports(r.Context())
	if err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"reports": summaries,
		"count":   len(summaries),
	})
}

// handleCancelReport cancels a report's outstanding scans
func (s *Server) handleCancelReport(w http.ResponseWriter, r *http.Request) {
	reportID := mux.Vars(r)["reportID"]

	if err := s.scans.Cancel(r.Context(), reportID); err != nil {
		status, code, message := mapServiceError(err)
		respondError(w, status, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"reportId": reportID,
		"status":   "cancelled",
	})
}

// handleHealth reports service and storage health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if s.storage != nil {
		if err := s.storage.Ping(r.Context()); err != nil {
			health["status"] = "degraded"
			health["storage"] = "unreachable"
			respondJSON(w, http.StatusServiceUnavailable, health)
			return
		}
		health["storage"] = "ok"
	}

	respondJSON(w, http.StatusOK, health)
}
