package web

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/CatalogImport/internal/core"
	"github.com/JonMunkholm/CatalogImport/internal/logging"
	"github.com/JonMunkholm/CatalogImport/internal/service"
)

// StartResponse is returned by POST /api/imports.
type StartResponse struct {
	RunID string `json:"run_id"`
}

// handleStartImport accepts a multipart upload with the file in "file" and
// optional behavior, validation_strategy and allowed_error_count fields.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			respondError(w, r, fmt.Errorf("file too large: limit is %d bytes", maxSize), http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, fmt.Errorf("%w: %w", service.ErrInvalidRequest, err), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errors.New("no file provided"), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusInternalServerError)
		return
	}

	req := service.Request{
		FileName: header.Filename,
		Data:     data,
		Behavior: r.FormValue("behavior"),
		Strategy: r.FormValue("validation_strategy"),
	}
	if v := r.FormValue("allowed_error_count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, r, fmt.Errorf("%w: allowed_error_count %q is not a number", service.ErrInvalidRequest, v), http.StatusBadRequest)
			return
		}
		req.AllowedErrorCount = &n
	}

	id, err := s.imports.Start(r.Context(), req)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Location", "/api/imports/"+id)
	writeJSONStatus(w, http.StatusAccepted, StartResponse{RunID: id})
}

// handleImportProgress returns the live state of a run.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.imports.Progress(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, p)
}

// handleImportEvents streams progress as Server-Sent Events until the run
// finishes or the client goes away.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	ch, err := s.imports.Subscribe(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for {
		select {
		case p, ok := <-ch:
			if !ok {
				fmt.Fprint(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, _ := json.Marshal(p)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", p.Bunches, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleImportResult waits for the run to finish and returns its report.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.imports.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, res)
}

// handleImportErrors lists row errors recorded so far. format=csv returns
// them as a download.
func (s *Server) handleImportErrors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rowErrors, err := s.imports.Errors(id)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	if r.URL.Query().Get("format") != "csv" {
		if rowErrors == nil {
			rowErrors = []core.RowError{}
		}
		writeJSON(w, rowErrors)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="import_%s_errors.csv"`, id))

	if err := writeErrorsCSV(w, rowErrors); err != nil {
		// Headers are sent; the client sees a truncated file.
		logging.FromContext(r.Context()).Error("csv export failed", "run_id", id, "error", err)
	}
}

func writeErrorsCSV(w io.Writer, rowErrors []core.RowError) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"row", "column", "severity", "code", "message"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range rowErrors {
		if err := cw.Write([]string{strconv.Itoa(e.RowNum), e.Column, e.Severity.String(), e.Code, e.Message}); err != nil {
			return fmt.Errorf("write row %d: %w", e.RowNum, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// handleCancelImport stops a run.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	if err := s.imports.Cancel(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleProductTypes lists the supported product types.
func (s *Server) handleProductTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.imports.ProductTypes())
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status  string                `json:"status"`
	Error   string                `json:"error,omitempty"`
	Imports service.LimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Imports: s.imports.LimiterStatus()}
	status := http.StatusOK
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			resp.Status = "unavailable"
			resp.Error = core.MapError(err).Message
			status = http.StatusServiceUnavailable
		}
	}
	writeJSONStatus(w, status, resp)
}
