package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/CatalogImport/internal/config"
	"github.com/JonMunkholm/CatalogImport/internal/core"
	"github.com/JonMunkholm/CatalogImport/internal/service"
)

type fakeImports struct {
	startReq  service.Request
	startErr  error
	progress  map[string]service.Progress
	rowErrors []core.RowError
	cancelled []string
}

func (f *fakeImports) Start(_ context.Context, req service.Request) (string, error) {
	f.startReq = req
	if f.startErr != nil {
		return "", f.startErr
	}
	return "run-1", nil
}

func (f *fakeImports) Progress(id string) (service.Progress, error) {
	p, ok := f.progress[id]
	if !ok {
		return service.Progress{}, fmt.Errorf("%w: %s", service.ErrRunNotFound, id)
	}
	return p, nil
}

func (f *fakeImports) Subscribe(id string) (<-chan service.Progress, error) {
	p, err := f.Progress(id)
	if err != nil {
		return nil, err
	}
	ch := make(chan service.Progress, 2)
	ch <- p
	p.Phase = service.PhaseCompleted
	p.Bunches++
	ch <- p
	close(ch)
	return ch, nil
}

func (f *fakeImports) Result(_ context.Context, id string) (*service.Result, error) {
	p, err := f.Progress(id)
	if err != nil {
		return nil, err
	}
	return &service.Result{RunID: id, Phase: p.Phase, Report: core.Report{RowsProcessed: p.RowsProcessed}}, nil
}

func (f *fakeImports) Errors(id string) ([]core.RowError, error) {
	if _, err := f.Progress(id); err != nil {
		return nil, err
	}
	return f.rowErrors, nil
}

func (f *fakeImports) Cancel(id string) error {
	if _, err := f.Progress(id); err != nil {
		return err
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeImports) ProductTypes() []service.TypeInfo {
	return []service.TypeInfo{{ID: "simple", Label: "Simple Product", TracksQty: true}}
}

func (f *fakeImports) LimiterStatus() service.LimiterStatus {
	return service.LimiterStatus{Active: 1, Available: 1, MaxConcurrent: 2}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{MaxFileSize: 1 << 20},
	}
}

func newTestServer(imports *fakeImports) *Server {
	if imports.progress == nil {
		imports.progress = map[string]service.Progress{
			"run-1": {RunID: "run-1", Phase: service.PhaseImporting, RowsProcessed: 4},
		}
	}
	return NewServer(testConfig(), imports, nil, nil)
}

func multipartBody(t *testing.T, fileName, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile("file", fileName)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHandleStartImport(t *testing.T) {
	imports := &fakeImports{}
	s := newTestServer(imports)

	body, ct := multipartBody(t, "products.csv", "sku,name\nA,Shirt\n", map[string]string{
		"behavior":            "replace",
		"validation_strategy": "stop-on-error",
		"allowed_error_count": "5",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/imports", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(s, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	var resp StartResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.RunID != "run-1" {
		t.Errorf("run_id = %q, want %q", resp.RunID, "run-1")
	}
	if got := rec.Header().Get("Location"); got != "/api/imports/run-1" {
		t.Errorf("Location = %q, want %q", got, "/api/imports/run-1")
	}

	got := imports.startReq
	if got.FileName != "products.csv" || got.Behavior != "replace" || got.Strategy != "stop-on-error" {
		t.Errorf("request = %+v", got)
	}
	if got.AllowedErrorCount == nil || *got.AllowedErrorCount != 5 {
		t.Errorf("AllowedErrorCount = %v, want 5", got.AllowedErrorCount)
	}
	if string(got.Data) != "sku,name\nA,Shirt\n" {
		t.Errorf("Data = %q", got.Data)
	}
}

func TestHandleStartImport_Errors(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		fields   map[string]string
		startErr error
		want     int
	}{
		{name: "missing file", want: http.StatusBadRequest},
		{name: "bad error count", fileName: "a.csv", fields: map[string]string{"allowed_error_count": "many"}, want: http.StatusBadRequest},
		{name: "invalid request", fileName: "a.pdf", startErr: fmt.Errorf("%w: unsupported file type", service.ErrInvalidRequest), want: http.StatusBadRequest},
		{name: "too many runs", fileName: "a.csv", startErr: service.ErrTooManyRuns, want: http.StatusTooManyRequests},
		{name: "internal failure", fileName: "a.csv", startErr: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeImports{startErr: tt.startErr})
			body, ct := multipartBody(t, tt.fileName, "sku\nA\n", tt.fields)
			req := httptest.NewRequest(http.MethodPost, "/api/imports", body)
			req.Header.Set("Content-Type", ct)
			rec := serve(s, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHandleStartImport_TooLarge(t *testing.T) {
	s := newTestServer(&fakeImports{})
	s.cfg.Import.MaxFileSize = 64

	body, ct := multipartBody(t, "big.csv", strings.Repeat("x", 1024), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/imports", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(s, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestHandleImportProgress(t *testing.T) {
	s := newTestServer(&fakeImports{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/imports/run-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var p service.Progress
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.RowsProcessed != 4 || p.Phase != service.PhaseImporting {
		t.Errorf("progress = %+v", p)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/imports/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	var e ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatal(err)
	}
	if e.Code == "" {
		t.Error("error response has no code")
	}
}

func TestHandleImportEvents(t *testing.T) {
	s := newTestServer(&fakeImports{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/imports/run-1/events", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	body := rec.Body.String()
	if n := strings.Count(body, "event: progress"); n != 2 {
		t.Errorf("progress events = %d, want 2\n%s", n, body)
	}
	if !strings.HasSuffix(body, "event: complete\ndata: {}\n\n") {
		t.Errorf("stream does not end with complete event:\n%s", body)
	}
}

func TestHandleImportResult(t *testing.T) {
	s := newTestServer(&fakeImports{})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/imports/run-1/result", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var res service.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Report.RowsProcessed != 4 {
		t.Errorf("RowsProcessed = %d, want 4", res.Report.RowsProcessed)
	}
}

func TestHandleImportErrors(t *testing.T) {
	imports := &fakeImports{rowErrors: []core.RowError{
		{RowNum: 2, Kind: core.KindValueIsRequired, Column: "name", Severity: core.SeverityCritical, Message: "Please make sure attribute \"name\" is not empty.", Code: "ROW002"},
	}}
	s := newTestServer(imports)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/imports/run-1/errors", nil))
	var got []core.RowError
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].RowNum != 2 {
		t.Errorf("errors = %+v", got)
	}

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/api/imports/run-1/errors?format=csv", nil))
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q, want text/csv", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("csv lines = %d, want 2", len(lines))
	}
	if lines[0] != "row,column,severity,code,message" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2,name,critical,ROW002,") {
		t.Errorf("row = %q", lines[1])
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestWriteErrorsCSV(t *testing.T) {
	rowErrors := []core.RowError{{RowNum: 2, Column: "name", Severity: core.SeverityCritical, Code: "ROW001", Message: "Value is required"}}
	broken := errors.New("broken pipe")

	tests := []struct {
		name    string
		w       func(*bytes.Buffer) io.Writer
		wantErr error
	}{
		{"written", func(b *bytes.Buffer) io.Writer { return b }, nil},
		{"write failure surfaces", func(*bytes.Buffer) io.Writer { return failingWriter{broken} }, broken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := writeErrorsCSV(tt.w(&buf), rowErrors)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("writeErrorsCSV() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				if got := strings.Count(buf.String(), "\n"); got != 2 {
					t.Errorf("lines = %d, want 2", got)
				}
			}
		})
	}
}

func TestHandleImportErrors_EmptyIsArray(t *testing.T) {
	s := newTestServer(&fakeImports{})
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/imports/run-1/errors", nil))
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestHandleCancelImport(t *testing.T) {
	imports := &fakeImports{}
	s := newTestServer(imports)

	rec := serve(s, httptest.NewRequest(http.MethodPost, "/api/imports/run-1/cancel", nil))
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if len(imports.cancelled) != 1 || imports.cancelled[0] != "run-1" {
		t.Errorf("cancelled = %v, want [run-1]", imports.cancelled)
	}
}

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name string
		ping Pinger
		want int
	}{
		{"no pinger", nil, http.StatusOK},
		{"database up", func(context.Context) error { return nil }, http.StatusOK},
		{"database down", func(context.Context) error { return errors.New("dial tcp: connection refused") }, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(testConfig(), &fakeImports{}, nil, tt.ping)
			rec := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			var h HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &h); err != nil {
				t.Fatal(err)
			}
			if h.Imports.MaxConcurrent != 2 {
				t.Errorf("max_concurrent = %d, want 2", h.Imports.MaxConcurrent)
			}
		})
	}
}

func TestProductTypesAndHeaders(t *testing.T) {
	s := newTestServer(&fakeImports{})
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/api/product-types", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	var types []service.TypeInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &types); err != nil {
		t.Fatal(err)
	}
	if len(types) != 1 || types[0].ID != "simple" {
		t.Errorf("types = %+v", types)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("catalog_import_runs_total 0\n"))
	})
	s := NewServer(testConfig(), &fakeImports{}, metrics, nil)
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "catalog_import_runs_total") {
		t.Errorf("metrics body = %q", rec.Body.String())
	}

	s = newTestServer(&fakeImports{})
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("disabled metrics status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRateLimiter(t *testing.T) {
	tests := []struct {
		name  string
		ips   []string
		wants []bool
	}{
		{"burst then reject", []string{"1.2.3.4", "1.2.3.4", "1.2.3.4"}, []bool{true, true, false}},
		{"clients are independent", []string{"1.2.3.4", "1.2.3.4", "5.6.7.8"}, []bool{true, true, true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := newRateLimiter(2, time.Minute)
			for i, ip := range tt.ips {
				if got := rl.allow(ip); got != tt.wants[i] {
					t.Errorf("allow(%q) #%d = %v, want %v", ip, i+1, got, tt.wants[i])
				}
			}
		})
	}
}

func TestRateLimiter_DropsIdleVisitors(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	rl.allow("1.2.3.4")
	rl.visitors["1.2.3.4"].lastSeen = time.Now().Add(-3 * time.Minute)
	rl.lastSweep = time.Now().Add(-2 * time.Minute)

	rl.allow("5.6.7.8")
	if _, ok := rl.visitors["1.2.3.4"]; ok {
		t.Error("idle visitor kept, want dropped")
	}
	if got := len(rl.visitors); got != 1 {
		t.Errorf("visitors = %d, want 1", got)
	}
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		wantError  string
		wantCode   string
		retryAfter bool
	}{
		{
			name:      "client error keeps detail",
			err:       fmt.Errorf("%w: unsupported file type", service.ErrInvalidRequest),
			status:    http.StatusBadRequest,
			wantError: "invalid import request: unsupported file type",
		},
		{
			name:      "known server error is formatted",
			err:       errors.New("dial tcp 127.0.0.1:5432: connection refused"),
			status:    http.StatusInternalServerError,
			wantError: "Unable to connect to database (Code: DB004). Please try again in a few moments",
			wantCode:  "DB004",
		},
		{
			name:      "unknown server error hides detail",
			err:       errors.New("boom"),
			status:    http.StatusInternalServerError,
			wantError: "An unexpected error occurred (Code: ERR000). Please try again or contact support",
			wantCode:  "ERR000",
		},
		{
			name:       "too many runs sets retry header",
			err:        service.ErrTooManyRuns,
			status:     http.StatusTooManyRequests,
			wantError:  service.ErrTooManyRuns.Error(),
			retryAfter: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respondError(rec, httptest.NewRequest(http.MethodGet, "/api/imports", nil), tt.err, tt.status)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var e ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
				t.Fatal(err)
			}
			if e.Error != tt.wantError {
				t.Errorf("error = %q, want %q", e.Error, tt.wantError)
			}
			if tt.wantCode != "" && e.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", e.Code, tt.wantCode)
			}
			if got := rec.Header().Get("Retry-After") != ""; got != tt.retryAfter {
				t.Errorf("Retry-After set = %v, want %v", got, tt.retryAfter)
			}
		})
	}
}
