package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
)

func TestRecorderCountsBatches(t *testing.T) {
	r := New()
	r.ReadingStored()
	r.ReadingStored()
	r.AlertTriggered()
	r.BatchFinished(alerts.StatusSent, 100, 2, 40*time.Millisecond)
	r.BatchFinished(alerts.StatusFailed, 3, 0, time.Second)

	if got := testutil.ToFloat64(r.readingsTotal); got != 2 {
		t.Fatalf("readings = %v", got)
	}
	if got := testutil.ToFloat64(r.alertsTotal); got != 1 {
		t.Fatalf("alerts = %v", got)
	}
	if got := testutil.ToFloat64(r.batchesTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed batches = %v", got)
	}
	if got := testutil.ToFloat64(r.messagesTotal.WithLabelValues("sent")); got != 100 {
		t.Fatalf("sent messages = %v", got)
	}
	if got := testutil.ToFloat64(r.ticketErrors); got != 2 {
		t.Fatalf("ticket errors = %v", got)
	}
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	rec := New()
	router := chi.NewRouter()
	router.Use(rec.Middleware)
	router.Get("/latest-distance", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	router.Handle("/metrics", rec.Handler())

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/latest-distance", nil))

	if got := testutil.ToFloat64(rec.requestsTotal.WithLabelValues("/latest-distance", "418")); got != 1 {
		t.Fatalf("expected one labelled request, got %v", got)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "ultrasense_http_requests_total") {
		t.Fatalf("metrics output missing request counter")
	}
}
