package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"hubspot-deals-connector/internal/export"
	"hubspot-deals-connector/internal/model"
	"hubspot-deals-connector/internal/scan"
	"hubspot-deals-connector/internal/store"
	"hubspot-deals-connector/pkg/router"
)

// scanIDSegment is the position of the {id} wildcard in /api/v1/scans/{id}/...
const scanIDSegment = 3

// Handler serves the scan control API.
type Handler struct {
	svc   *scan.Service
	store *store.Store
	log   *zap.Logger
}

func New(svc *scan.Service, st *store.Store, log *zap.Logger) *Handler {
	return &Handler{svc: svc, store: st, log: log}
}

// StartScan starts a new extraction
// @Summary Start a deals extraction
// @Description Accept an extraction request and launch it in the background. An id whose previous run finished is restarted from scratch; a non-terminal id is resumed from its checkpoint.
// @Tags scans
// @Accept json
// @Produce json
// @Param scan body model.ScanRequest true "Extraction request"
// @Success 202 {object} map[string]interface{} "Scan accepted"
// @Failure 400 {object} map[string]interface{} "Invalid request payload"
// @Failure 409 {object} map[string]interface{} "Scan already running or pool full"
// @Router /scans [post]
func (h *Handler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req model.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, model.ErrValidation, "invalid JSON payload")
		return
	}

	job, err := h.svc.Start(req)
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":    "scan accepted",
		"scan_id":    job.ScanID,
		"status":     job.Status,
		"created_at": job.CreatedAt,
	})
}

// ListScans lists all known scans
// @Summary List scans
// @Description Get every scan job with its current status and counters
// @Tags scans
// @Produce json
// @Success 200 {array} model.ScanJob "List of scans"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /scans [get]
func (h *Handler) ListScans(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.svc.List()
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	if jobs == nil {
		jobs = []model.ScanJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetScanStatus reports a scan's status and progress
// @Summary Get scan status
// @Description Retrieve status and progress counters. An unknown id is not an error: it answers with status "not_found".
// @Tags scans
// @Produce json
// @Param id path string true "Scan ID"
// @Success 200 {object} map[string]interface{} "Scan status"
// @Router /scans/{id}/status [get]
func (h *Handler) GetScanStatus(w http.ResponseWriter, r *http.Request) {
	scanID := router.Param(r.URL.Path, scanIDSegment)

	job, err := h.svc.Status(scanID)
	if model.IsNotFound(err) {
		writeJSON(w, http.StatusOK, map[string]any{
			"scan_id": scanID,
			"status":  "not_found",
		})
		return
	}
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	payload := map[string]any{
		"scan_id":         job.ScanID,
		"status":          job.Status,
		"total_items":     job.TotalItems,
		"processed_items": job.ProcessedItems,
		"failed_items":    job.FailedItems,
		"success_rate":    job.SuccessRate(),
		"created_at":      job.CreatedAt,
		"updated_at":      job.UpdatedAt,
	}
	if job.StartedAt != nil {
		payload["started_at"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		payload["completed_at"] = job.CompletedAt
	}
	if job.ErrorMessage != "" {
		payload["error"] = job.ErrorMessage
	}
	writeJSON(w, http.StatusOK, payload)
}

// CancelScan requests a cooperative stop
// @Summary Cancel a scan
// @Description Ask a running scan to stop at its next page boundary. Rows already extracted stay available.
// @Tags scans
// @Produce json
// @Param id path string true "Scan ID"
// @Success 202 {object} map[string]interface{} "Cancellation requested"
// @Failure 404 {object} map[string]interface{} "Unknown scan"
// @Failure 409 {object} map[string]interface{} "Scan already finished"
// @Router /scans/{id}/cancel [patch]
func (h *Handler) CancelScan(w http.ResponseWriter, r *http.Request) {
	scanID := router.Param(r.URL.Path, scanIDSegment)
	if err := h.svc.Cancel(scanID); err != nil {
		h.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"scan_id": scanID,
		"status":  "cancelling",
	})
}

// RemoveScan deletes a scan and its data
// @Summary Remove a scan
// @Description Delete a scan job together with its checkpoint and extracted rows. A running scan must be cancelled first.
// @Tags scans
// @Produce json
// @Param id path string true "Scan ID"
// @Success 200 {object} map[string]interface{} "Scan removed"
// @Failure 404 {object} map[string]interface{} "Unknown scan"
// @Failure 409 {object} map[string]interface{} "Scan is running"
// @Router /scans/{id} [delete]
func (h *Handler) RemoveScan(w http.ResponseWriter, r *http.Request) {
	scanID := router.Param(r.URL.Path, scanIDSegment)
	if err := h.svc.Remove(scanID); err != nil {
		h.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan_id": scanID,
		"status":  "removed",
	})
}

// GetScanResults pages through extracted rows
// @Summary Get scan results
// @Description Retrieve one page of a scan's extracted deals. Pages are 1-based; page_size is capped at 1000.
// @Tags scans
// @Produce json
// @Param id path string true "Scan ID"
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Rows per page (default 100, max 1000)"
// @Success 200 {object} map[string]interface{} "Result page"
// @Failure 400 {object} map[string]interface{} "Invalid paging parameters"
// @Failure 404 {object} map[string]interface{} "Unknown scan"
// @Router /scans/{id}/results [get]
func (h *Handler) GetScanResults(w http.ResponseWriter, r *http.Request) {
	scanID := router.Param(r.URL.Path, scanIDSegment)

	page, err := queryInt(r, "page", 1)
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	pageSize, err := queryInt(r, "page_size", 100)
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	recs, total, err := h.svc.Results(scanID, page, pageSize)
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	if recs == nil {
		recs = []model.DealRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan_id":   scanID,
		"page":      page,
		"page_size": pageSize,
		"total":     total,
		"count":     len(recs),
		"results":   recs,
	})
}

// ExportScan downloads a scan's rows as a file
// @Summary Export scan results
// @Description Download every extracted row of a scan as CSV or JSON.
// @Tags scans
// @Produce octet-stream
// @Param id path string true "Scan ID"
// @Param format query string false "Export format: csv or json (default csv)"
// @Success 200 {file} file "Exported data"
// @Failure 400 {object} map[string]interface{} "Unknown format"
// @Failure 404 {object} map[string]interface{} "Unknown scan"
// @Router /scans/{id}/export [get]
func (h *Handler) ExportScan(w http.ResponseWriter, r *http.Request) {
	scanID := router.Param(r.URL.Path, scanIDSegment)

	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	job, recs, err := h.svc.Export(scanID)
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(scanID, format)+`"`)
	switch format {
	case export.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
		err = export.WriteJSON(w, job, recs)
	default:
		w.Header().Set("Content-Type", "text/csv")
		err = export.WriteCSV(w, recs)
	}
	if err != nil {
		h.log.Error("export write failed", zap.String("scan_id", scanID), zap.Error(err))
	}
}

// TestConnection probes the source API with a token
// @Summary Test HubSpot credentials
// @Description Issue a single probe request against the deals endpoint to verify the token.
// @Tags connection
// @Accept json
// @Produce json
// @Param credentials body object true "JSON object with access_token"
// @Success 200 {object} map[string]interface{} "Credentials accepted"
// @Failure 400 {object} map[string]interface{} "Missing token"
// @Failure 401 {object} map[string]interface{} "Authentication failed"
// @Failure 403 {object} map[string]interface{} "Authorization failed"
// @Router /connection/test [post]
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, model.ErrValidation, "invalid JSON payload")
		return
	}
	if err := h.svc.TestConnection(r.Context(), body.AccessToken); err != nil {
		h.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// GetStats summarizes the connector
// @Summary Connector statistics
// @Description Report job counts per status and the number of live scans.
// @Tags stats
// @Produce json
// @Success 200 {object} scan.Stats "Statistics"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /stats [get]
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats()
	if err != nil {
		h.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Healthz reports process and database health.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// writeError maps the failure taxonomy onto HTTP status codes.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string) {
	if msg == "" {
		msg = err.Error()
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, model.ErrAuthenticationFailed):
		status = http.StatusUnauthorized
	case errors.Is(err, model.ErrAuthorizationFailed):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrRateLimitExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, model.ErrTransientAPI):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", model.ErrValidation, key)
	}
	return n, nil
}
