package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/metainsyt/emaildb/internal/logging"
	"github.com/metainsyt/emaildb/internal/pipeline"
)

// handleHome serves the embedded landing page with the upload forms.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, staticFiles, "static/index.html")
}

// handleHealth reports database reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleStats reports the size of both email homes.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.service.Counts(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to read stats")
		return
	}
	writeJSON(w, counts)
}

// handleUpload ingests an uploaded CSV of email addresses into the
// valid home and relays the ingestion summary.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, ok := s.formFile(w, r, "emailList")
	if !ok {
		return
	}
	defer file.Close()

	// Spool the upload; the ingest pipeline owns the artifact from here
	// (it finalizes on success and removes on failure).
	path, err := s.spool(file)
	if err != nil {
		logging.FromContext(r.Context()).Error("spool upload failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to store upload")
		return
	}

	sum, err := s.service.IngestFile(r.Context(), path, header.Filename)
	switch {
	case errors.Is(err, pipeline.ErrTooManyUploads):
		writeError(w, r, http.StatusTooManyRequests, err.Error())
		return
	case err != nil:
		logging.FromContext(r.Context()).Error("ingest failed", "file", header.Filename, "error", err)
		writeError(w, r, http.StatusInternalServerError, "CSV processing failed")
		return
	}

	writeJSON(w, struct {
		Message string `json:"message"`
		pipeline.IngestSummary
	}{
		Message:       "CSV processed successfully",
		IngestSummary: sum,
	})
}

// handleRemoveInvalid reconciles an uploaded candidate list against the
// valid home, migrating matches to the invalid home.
func (s *Server) handleRemoveInvalid(w http.ResponseWriter, r *http.Request) {
	file, _, ok := s.formFile(w, r, "emailList")
	if !ok {
		return
	}
	defer file.Close()

	sum, err := s.service.Reconcile(r.Context(), file)
	if err != nil {
		logging.FromContext(r.Context()).Error("reconciliation failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "CSV processing failed")
		return
	}

	writeJSON(w, sum)
}

// handleDownloadAll exports the entire valid home as a CSV attachment.
func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	path, _, err := s.service.ExportAllToFile(r.Context())
	switch {
	case errors.Is(err, pipeline.ErrNoRecords):
		writeError(w, r, http.StatusNotFound, "no emails found")
		return
	case err != nil:
		logging.FromContext(r.Context()).Error("export failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "download failed")
		return
	}
	defer os.Remove(path)

	serveCSV(w, r, path, fmt.Sprintf("all_emails_%d.csv", time.Now().UnixMilli()))
}

// handleDownloadDomain exports one domain's records as a CSV attachment.
func (s *Server) handleDownloadDomain(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	if domain == "" {
		writeError(w, r, http.StatusBadRequest, "domain required")
		return
	}

	path, _, err := s.service.ExportDomainToFile(r.Context(), domain)
	switch {
	case errors.Is(err, pipeline.ErrEmptyDomainList):
		writeError(w, r, http.StatusBadRequest, "domain required")
		return
	case errors.Is(err, pipeline.ErrNoRecords):
		writeError(w, r, http.StatusNotFound, "no emails found for this domain")
		return
	case err != nil:
		logging.FromContext(r.Context()).Error("domain export failed", "domain", domain, "error", err)
		writeError(w, r, http.StatusInternalServerError, "domain download failed")
		return
	}
	defer os.Remove(path)

	serveCSV(w, r, path, fmt.Sprintf("domain_%s_%d.csv", domain, time.Now().UnixMilli()))
}

// handleDownloadDomains streams the records matching an uploaded domain
// list straight to the response, with no temporary artifact. An empty
// match for a non-empty list yields a header-only CSV.
func (s *Server) handleDownloadDomains(w http.ResponseWriter, r *http.Request) {
	file, _, ok := s.formFile(w, r, "domainList")
	if !ok {
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="domains_%d.csv"`, time.Now().UnixMilli()))

	_, err := s.service.ExportDomains(r.Context(), file, w)
	switch {
	case errors.Is(err, pipeline.ErrEmptyDomainList):
		w.Header().Del("Content-Disposition")
		writeError(w, r, http.StatusBadRequest, "domain list is empty")
		return
	case err != nil:
		// Headers may already be gone; log and give up on this response.
		logging.FromContext(r.Context()).Error("domain list export failed", "error", err)
		w.Header().Del("Content-Disposition")
		writeError(w, r, http.StatusInternalServerError, "download failed")
		return
	}
}

// formFile extracts a multipart file field, writing the error response
// itself when the upload is missing or oversized. The bool reports
// whether the caller can proceed.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, r, http.StatusBadRequest, "file too large or invalid form")
		return nil, nil, false
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "No file uploaded.")
		return nil, nil, false
	}

	return file, header, true
}

// spool copies an upload into a uniquely named file in the pipeline's
// spool directory and returns its path.
func (s *Server) spool(src io.Reader) (string, error) {
	path := filepath.Join(s.service.Dir(), uuid.New().String())

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}

	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write spool file: %w", err)
	}

	return path, nil
}

// serveCSV sends a generated export file as an attachment.
func serveCSV(w http.ResponseWriter, r *http.Request, path, downloadName string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, downloadName))
	http.ServeFile(w, r, path)
}
