package http

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"store-monitoring/internal/audit"
	"store-monitoring/internal/auth"
	monitoring "store-monitoring/internal/monitoring/domain"
	"store-monitoring/internal/monitoring/infrastructure/artifact"
	"store-monitoring/internal/monitoring/ingest"
)

const (
	timeLayout         = time.RFC3339
	defaultUploadLimit = 512 << 20
)

// ReportService is the report pipeline as seen by the API.
type ReportService interface {
	Submit(ctx context.Context) (string, error)
	Status(ctx context.Context, id string) (*monitoring.ReportJob, error)
}

// ArtifactReader opens stored report files.
type ArtifactReader interface {
	Open(handle string, format artifact.Format) (io.ReadCloser, artifact.Descriptor, error)
}

// ArchiveLoader loads an uploaded data archive.
type ArchiveLoader interface {
	LoadZip(ctx context.Context, zr *zip.Reader) (ingest.Result, error)
}

// Handler provides the report APIs.
type Handler struct {
	reports     ReportService
	artifacts   ArtifactReader
	loader      ArchiveLoader
	uploadGuard func(http.Handler) http.Handler
	uploadLimit int64
	audit       audit.Logger
	logger      *log.Logger
}

// Option configures the handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithAuditLogger records report triggers and uploads.
func WithAuditLogger(logger audit.Logger) Option {
	return func(h *Handler) { h.audit = logger }
}

// WithArchiveUpload enables POST /api/v1/ingest. guard, when set, wraps the route.
func WithArchiveUpload(loader ArchiveLoader, guard func(http.Handler) http.Handler, limit int64) Option {
	return func(h *Handler) {
		h.loader = loader
		h.uploadGuard = guard
		if limit > 0 {
			h.uploadLimit = limit
		}
	}
}

// NewHandler constructs a handler.
func NewHandler(reports ReportService, artifacts ArtifactReader, opts ...Option) (*Handler, error) {
	if reports == nil || artifacts == nil {
		return nil, errors.New("report handler: nil dependency")
	}
	h := &Handler{reports: reports, artifacts: artifacts, uploadLimit: defaultUploadLimit}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the routes on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/trigger_report", h.handleTrigger).Methods(http.MethodPost)
	r.HandleFunc("/get_report", h.handleGetReport).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/reports", h.handleTrigger).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/reports/{id}", h.handleReportView).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/reports/{id}/download", h.handleDownload).Methods(http.MethodGet)
	if h.loader != nil {
		var upload http.Handler = http.HandlerFunc(h.handleIngest)
		if h.uploadGuard != nil {
			upload = h.uploadGuard(upload)
		}
		r.Handle("/api/v1/ingest", upload).Methods(http.MethodPost)
	}
}

func (h *Handler) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id, err := h.reports.Submit(r.Context())
	if err != nil {
		h.logf("event=report_trigger_failed error=%v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to trigger report"})
		return
	}
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		h.logf("event=report_triggered report_id=%s subject=%s tenant_id=%s", id, identity.Subject, identity.TenantID)
	}
	h.record(r, audit.NewEntry(r, audit.ActionReportTrigger, "report", id, nil))
	writeJSON(w, http.StatusOK, map[string]string{"report_id": id})
}

// handleGetReport is the polling endpoint: status while running, the csv once complete.
func (h *Handler) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("report_id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "report_id is required"})
		return
	}
	job, ok := h.loadJob(w, r, id)
	if !ok {
		return
	}
	switch job.Status {
	case monitoring.JobRunning:
		writeJSON(w, http.StatusOK, map[string]string{"status": string(job.Status)})
	case monitoring.JobError:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": string(job.Status)})
	default:
		h.serveArtifact(w, job, artifact.FormatCSV)
	}
}

func (h *Handler) handleReportView(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r, mux.Vars(r)["id"])
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newReportView(job))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	format, err := artifact.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "format must be csv, xlsx, pdf or zip"})
		return
	}
	job, ok := h.loadJob(w, r, mux.Vars(r)["id"])
	if !ok {
		return
	}
	if job.Status != monitoring.JobComplete {
		writeJSON(w, http.StatusConflict, map[string]string{"status": string(job.Status)})
		return
	}
	h.serveArtifact(w, job, format)
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.uploadLimit))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "archive too large"})
		return
	}
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be a zip archive"})
		return
	}
	result, err := h.loader.LoadZip(r.Context(), zr)
	if err != nil {
		h.logf("event=ingest_failed error=%v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "result": result})
		return
	}
	h.logf("event=ingest_complete accepted=%d rejected=%d", result.Accepted(), result.Rejected())
	h.record(r, audit.NewEntry(r, audit.ActionDataIngest, "archive", "", map[string]int{
		"files":    len(result.Files),
		"accepted": result.Accepted(),
		"rejected": result.Rejected(),
	}))
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) loadJob(w http.ResponseWriter, r *http.Request, id string) (*monitoring.ReportJob, bool) {
	job, err := h.reports.Status(r.Context(), id)
	if err != nil {
		if errors.Is(err, monitoring.ErrJobNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "report not found"})
			return nil, false
		}
		h.logf("event=report_status_failed report_id=%s error=%v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load report"})
		return nil, false
	}
	return job, true
}

func (h *Handler) serveArtifact(w http.ResponseWriter, job *monitoring.ReportJob, format artifact.Format) {
	rc, desc, err := h.artifacts.Open(job.ArtifactHandle, format)
	if err != nil {
		h.logf("event=artifact_open_failed report_id=%s handle=%s error=%v", job.ID, job.ArtifactHandle, err)
		if errors.Is(err, artifact.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "report file missing"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to open report"})
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", desc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+desc.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logf("event=artifact_write_failed report_id=%s error=%v", job.ID, err)
	}
}

func (h *Handler) record(r *http.Request, entry audit.Entry) {
	if h.audit == nil {
		return
	}
	if err := h.audit.Log(r.Context(), entry); err != nil {
		h.logf("event=audit_failed action=%s error=%v", entry.Action, err)
	}
}

func (h *Handler) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}

type reportView struct {
	ID           string            `json:"report_id"`
	Status       string            `json:"status"`
	StoreCount   int               `json:"store_count"`
	FailedStores int               `json:"failed_stores"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    string            `json:"created_at"`
	StartedAt    string            `json:"started_at,omitempty"`
	FinishedAt   string            `json:"finished_at,omitempty"`
	Downloads    map[string]string `json:"downloads,omitempty"`
}

func newReportView(job *monitoring.ReportJob) reportView {
	view := reportView{
		ID:           job.ID,
		Status:       string(job.Status),
		StoreCount:   job.StoreCount,
		FailedStores: job.FailedStores,
		Error:        job.Error,
		CreatedAt:    job.CreatedAt.Format(timeLayout),
	}
	if job.StartedAt != nil {
		view.StartedAt = job.StartedAt.Format(timeLayout)
	}
	if job.FinishedAt != nil {
		view.FinishedAt = job.FinishedAt.Format(timeLayout)
	}
	if job.Status == monitoring.JobComplete {
		view.Downloads = make(map[string]string, 4)
		for _, format := range []artifact.Format{artifact.FormatCSV, artifact.FormatXLSX, artifact.FormatPDF, artifact.FormatZip} {
			view.Downloads[string(format)] = "/api/v1/reports/" + job.ID + "/download?format=" + string(format)
		}
	}
	return view
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
