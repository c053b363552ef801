// Package metrics exposes Prometheus collectors for the ingestion pipeline,
// push dispatch and HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
)

// Recorder implements alerts.Observer.
type Recorder struct {
	registry *prometheus.Registry

	readingsTotal  prometheus.Counter
	alertsTotal    prometheus.Counter
	batchesTotal   *prometheus.CounterVec
	messagesTotal  *prometheus.CounterVec
	ticketErrors   prometheus.Counter
	batchDuration  prometheus.Histogram
	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		readingsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ultrasense_readings_total",
			Help: "Distance readings stored",
		}),
		alertsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "ultrasense_alerts_total",
			Help: "Readings above the alert threshold",
		}),
		batchesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ultrasense_push_batches_total",
			Help: "Push batches submitted, by outcome",
		}, []string{"status"}),
		messagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ultrasense_push_messages_total",
			Help: "Push messages in submitted batches, by batch outcome",
		}, []string{"status"}),
		ticketErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "ultrasense_push_ticket_errors_total",
			Help: "Per-message errors reported inside accepted batches",
		}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ultrasense_push_batch_duration_seconds",
			Help:    "Time spent submitting one push batch",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		requestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ultrasense_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		requestLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ultrasense_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"route"}),
	}
}

// ReadingStored counts a stored reading.
func (r *Recorder) ReadingStored() { r.readingsTotal.Inc() }

// AlertTriggered counts an alert.
func (r *Recorder) AlertTriggered() { r.alertsTotal.Inc() }

// BatchFinished records one batch outcome.
func (r *Recorder) BatchFinished(status alerts.Status, size, ticketErrors int, elapsed time.Duration) {
	r.batchesTotal.WithLabelValues(string(status)).Inc()
	r.messagesTotal.WithLabelValues(string(status)).Add(float64(size))
	r.ticketErrors.Add(float64(ticketErrors))
	r.batchDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Middleware records per-route request counts and latency. Routes are
// labelled by chi pattern so path parameters don't explode cardinality.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
		next.ServeHTTP(ww, req)

		route := "unmatched"
		if rctx := chi.RouteContext(req.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		r.requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		r.requestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
