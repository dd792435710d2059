package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JonMunkholm/CatalogImport/internal/core"
)

func TestObserver_BunchSaved(t *testing.T) {
	o := NewObserver(prometheus.NewRegistry())
	ctx := context.Background()

	o.BunchSaved(ctx, core.BunchSummary{Rows: 10, Accepted: 7, Rejected: 2, Skipped: 1, EntitiesCreated: 5, EntitiesUpdated: 2, StockItems: 5, Duration: time.Second})
	o.BunchSaved(ctx, core.BunchSummary{Rows: 3, Accepted: 3, EntitiesUpdated: 3, Duration: time.Second})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"accepted rows", testutil.ToFloat64(o.rows.WithLabelValues("accepted")), 10},
		{"rejected rows", testutil.ToFloat64(o.rows.WithLabelValues("rejected")), 2},
		{"created entities", testutil.ToFloat64(o.entities.WithLabelValues("created")), 5},
		{"updated entities", testutil.ToFloat64(o.entities.WithLabelValues("updated")), 5},
		{"stock items", testutil.ToFloat64(o.stockItems), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestObserver_ImportFinished(t *testing.T) {
	tests := []struct {
		name   string
		report core.Report
		want   string
	}{
		{"clean run", core.Report{}, "completed"},
		{"row errors", core.Report{CriticalErrors: 2}, "completed_with_errors"},
		{"terminated", core.Report{CriticalErrors: 20, Terminated: true}, "terminated"},
		{"fatal", core.Report{Fatal: "save entities: connection reset"}, "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewObserver(prometheus.NewRegistry())
			o.ImportFinished(context.Background(), tt.report)
			if got := testutil.ToFloat64(o.runs.WithLabelValues(tt.want)); got != 1 {
				t.Errorf("runs{result=%q} = %v, want 1", tt.want, got)
			}
		})
	}
}

func TestObserver_RowErrorsByKind(t *testing.T) {
	o := NewObserver(prometheus.NewRegistry())
	o.ImportFinished(context.Background(), core.Report{
		CriticalErrors: 3,
		Errors: []core.RowError{
			{Kind: core.KindValueIsRequired},
			{Kind: core.KindValueIsRequired},
			{Kind: core.KindInvalidAttributeType},
		},
	})

	if got := testutil.ToFloat64(o.rowErrors.WithLabelValues(string(core.KindValueIsRequired))); got != 2 {
		t.Errorf("row errors = %v, want 2", got)
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg)
	o.BunchSaved(context.Background(), core.BunchSummary{Accepted: 1})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `catalog_import_rows_total{result="accepted"} 1`) {
		t.Errorf("metrics output missing accepted rows:\n%s", body)
	}
}
