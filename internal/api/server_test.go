package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ultrasense/ultrasense-server/internal/alerts"
	"github.com/ultrasense/ultrasense-server/internal/alerts/alertstest"
	"github.com/ultrasense/ultrasense-server/internal/api/handler"
	"github.com/ultrasense/ultrasense-server/internal/api/respond"
	"github.com/ultrasense/ultrasense-server/internal/app"
	"github.com/ultrasense/ultrasense-server/internal/cache"
	"github.com/ultrasense/ultrasense-server/internal/config"
	"github.com/ultrasense/ultrasense-server/internal/metrics"
)

type testServer struct {
	router http.Handler
	h      *handler.Handler
	store  *alertstest.Store
	sender *alertstest.Sender
	rec    *metrics.Recorder
}

func newTestServer(t *testing.T, attach bool) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{CORSAllowOrigins: []string{"*"}}

	ts := &testServer{
		h:      handler.New(cache.New(true), logger),
		store:  alertstest.NewStore(),
		sender: alertstest.NewSender(alerts.ExpoMaxChunkSize),
		rec:    metrics.New(),
	}
	ts.router = NewRouter(ts.h, ts.rec, cfg)
	if attach {
		ts.attach()
	}
	return ts
}

func (ts *testServer) attach() {
	ts.h.Attach(app.New(ts.store, app.Options{
		Sender:   ts.sender,
		Observer: ts.rec,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
}

func (ts *testServer) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) respond.ErrorResponse {
	t.Helper()
	var resp respond.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestUnavailableUntilAttached(t *testing.T) {
	ts := newTestServer(t, false)

	for _, path := range []string{"/latest-distance", "/nowhere"} {
		w := ts.do(t, http.MethodGet, path, "")
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, w.Code)
		}
		if e := decodeError(t, w); e.Error.Message != "Service unavailable: DB not connected" {
			t.Fatalf("unexpected message %q", e.Error.Message)
		}
	}
	if w := ts.do(t, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health must answer while starting, got %d", w.Code)
	}
	if w := ts.do(t, http.MethodGet, "/health/db", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("db health must report unavailable, got %d", w.Code)
	}

	ts.attach()
	if w := ts.do(t, http.MethodGet, "/latest-distance", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200 after attach, got %d", w.Code)
	}
}

func TestAlertFanOutOverHTTP(t *testing.T) {
	ts := newTestServer(t, true)

	for _, reg := range []struct{ token, tenant string }{
		{alertstest.Token("a1"), "app1"},
		{alertstest.Token("a2"), "app1"},
		{alertstest.Token("b1"), "app2"},
	} {
		body := `{"token":"` + reg.token + `","experienceId":"` + reg.tenant + `"}`
		if w := ts.do(t, http.MethodPost, "/register-token", body); w.Code != http.StatusOK {
			t.Fatalf("register: %d %s", w.Code, w.Body.String())
		}
	}

	w := ts.do(t, http.MethodPost, "/send-distance", `{"distance":150}`)
	if w.Code != http.StatusOK {
		t.Fatalf("send-distance: %d %s", w.Code, w.Body.String())
	}
	var resp handler.SendDistanceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Distance received" || resp.Reading.DistanceCm != 150 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Dispatch == nil || len(resp.Dispatch.Outcomes) != 2 {
		t.Fatalf("expected two batches, got %+v", resp.Dispatch)
	}
	first, second := resp.Dispatch.Outcomes[0], resp.Dispatch.Outcomes[1]
	if first.TenantID != "app1" || first.Size != 2 || second.TenantID != "app2" || second.Size != 1 {
		t.Fatalf("unexpected outcomes %+v", resp.Dispatch.Outcomes)
	}

	batches := ts.sender.Batches()
	if len(batches) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(batches))
	}
	for _, b := range batches {
		for _, m := range b {
			if m.Body != "Alert 🚨 Distance too high: 150.00 cm!" {
				t.Fatalf("unexpected body %q", m.Body)
			}
		}
	}
}

func TestQuietReadingDoesNotDispatch(t *testing.T) {
	ts := newTestServer(t, true)
	ts.do(t, http.MethodPost, "/register-token", `{"token":"`+alertstest.Token("a")+`","experienceId":"app1"}`)

	w := ts.do(t, http.MethodPost, "/send-distance", `{"distance":50}`)
	if w.Code != http.StatusOK {
		t.Fatalf("send-distance: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"dispatch":null`) {
		t.Fatalf("expected null dispatch, got %s", w.Body.String())
	}
	if len(ts.sender.Batches()) != 0 {
		t.Fatalf("expected no provider calls")
	}
}

func TestLatestDistanceWithETag(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodGet, "/latest-distance", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"distance":null}` {
		t.Fatalf("expected null distance, got %d %s", w.Code, w.Body.String())
	}

	for _, d := range []string{"10", "20", "30"} {
		ts.do(t, http.MethodPost, "/send-distance", `{"distance":`+d+`}`)
	}

	w = ts.do(t, http.MethodGet, "/latest-distance", "")
	var latest alerts.Reading
	if err := json.Unmarshal(w.Body.Bytes(), &latest); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if latest.DistanceCm != 30 {
		t.Fatalf("expected 30, got %+v", latest)
	}
	etag := w.Header().Get("ETag")
	if etag == "" || w.Header().Get("X-Cache") != "MISS" {
		t.Fatalf("expected etag on cache miss, headers %v", w.Header())
	}

	w = ts.do(t, http.MethodGet, "/latest-distance", "", "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	ts.do(t, http.MethodPost, "/send-distance", `{"distance":40}`)
	w = ts.do(t, http.MethodGet, "/latest-distance", "", "If-None-Match", etag)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"distance":40`) {
		t.Fatalf("expected fresh reading after append, got %d %s", w.Code, w.Body.String())
	}
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t, true)
	cases := []struct {
		path, body string
		status     int
		code       string
	}{
		{"/register-token", `{"token":"x"}`, http.StatusBadRequest, "MISSING_FIELDS"},
		{"/register-token", ``, http.StatusBadRequest, "MISSING_FIELDS"},
		{"/register-token", `{"token":1,"experienceId":"a"}`, http.StatusBadRequest, "MISSING_FIELDS"},
		{"/send-distance", `{}`, http.StatusBadRequest, "INVALID_DISTANCE"},
		{"/send-distance", `{"distance":"150"}`, http.StatusBadRequest, "INVALID_DISTANCE"},
		{"/send-distance", `{"distance":null}`, http.StatusBadRequest, "INVALID_DISTANCE"},
		{"/send-distance", `{"distance":`, http.StatusBadRequest, "INVALID_JSON"},
	}
	for _, tc := range cases {
		w := ts.do(t, http.MethodPost, tc.path, tc.body)
		if w.Code != tc.status {
			t.Fatalf("%s %q: expected %d, got %d", tc.path, tc.body, tc.status, w.Code)
		}
		if e := decodeError(t, w); e.Error.Code != tc.code {
			t.Fatalf("%s %q: expected %s, got %s", tc.path, tc.body, tc.code, e.Error.Code)
		}
	}
	if n := len(ts.store.Readings()); n != 0 {
		t.Fatalf("invalid requests must not store readings, got %d", n)
	}
}

func TestStorageFailureAnswers500(t *testing.T) {
	ts := newTestServer(t, true)
	ts.store.FailReadings = true

	w := ts.do(t, http.MethodPost, "/send-distance", `{"distance":150}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Error.Code != "STORAGE_ERROR" {
		t.Fatalf("unexpected code %s", e.Error.Code)
	}
}

func TestSnapshotFailureAfterStoreAnswers500WithReading(t *testing.T) {
	ts := newTestServer(t, true)
	ts.store.FailTokens = true

	w := ts.do(t, http.MethodPost, "/send-distance", `{"distance":150}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	e := decodeError(t, w)
	if e.Error.Message != "Error dispatching alert" || e.Error.Detail != "reading 1 was stored" {
		t.Fatalf("unexpected error body %+v", e.Error)
	}
	if n := len(ts.store.Readings()); n != 1 {
		t.Fatalf("reading must stay stored, got %d", n)
	}
}

// pausingStore holds the first FindLatestReading after it has read, until
// release is closed.
type pausingStore struct {
	*alertstest.Store
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *pausingStore) FindLatestReading(ctx context.Context) (*alerts.Reading, error) {
	r, err := s.Store.FindLatestReading(ctx)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return r, err
}

func TestLatestDistanceDropsFillRacingAnAppend(t *testing.T) {
	ts := newTestServer(t, false)
	store := &pausingStore{
		Store:   ts.store,
		read:    make(chan struct{}),
		release: make(chan struct{}),
	}
	ts.h.Attach(app.New(store, app.Options{
		Sender: ts.sender,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	if _, err := ts.store.InsertReading(context.Background(), 10, time.Now()); err != nil {
		t.Fatalf("seed reading: %v", err)
	}

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/latest-distance", nil)
		w := httptest.NewRecorder()
		ts.router.ServeHTTP(w, req)
		done <- w
	}()
	<-store.read

	if w := ts.do(t, http.MethodPost, "/send-distance", `{"distance":20}`); w.Code != http.StatusOK {
		t.Fatalf("send-distance: %d %s", w.Code, w.Body.String())
	}
	close(store.release)
	if w := <-done; !strings.Contains(w.Body.String(), `"distance":10`) {
		t.Fatalf("paused read should answer what it read, got %s", w.Body.String())
	}

	w := ts.do(t, http.MethodGet, "/latest-distance", "")
	if !strings.Contains(w.Body.String(), `"distance":20`) {
		t.Fatalf("expected the newer reading, got %s (X-Cache=%s)", w.Body.String(), w.Header().Get("X-Cache"))
	}
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, true)
	w := ts.do(t, http.MethodGet, "/nope?x=1", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if e := decodeError(t, w); e.Error.Message != "Route not found: /nope?x=1" {
		t.Fatalf("unexpected message %q", e.Error.Message)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, true)
	ts.do(t, http.MethodPost, "/send-distance", `{"distance":1}`)

	w := ts.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ultrasense_readings_total 1") {
		t.Fatalf("expected readings counter in metrics output")
	}
}
