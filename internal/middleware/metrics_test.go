package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type httpRecord struct {
	method string
	route  string
	status int
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []httpRecord
}

func (f *fakeRecorder) RecordHTTPRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, httpRecord{method, route, status})
}
func (f *fakeRecorder) RecordExchange(string)               {}
func (f *fakeRecorder) RecordProviderLatency(time.Duration) {}
func (f *fakeRecorder) RecordBreakerState(string)           {}
func (f *fakeRecorder) RecordTaskOperation(string)          {}
func (f *fakeRecorder) RecordCleanupDeleted(int64)          {}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	rec := &fakeRecorder{}

	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(rec))
	r.Get("/api/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/tasks/abc-123", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	if len(rec.records) != 2 {
		t.Fatalf("records = %d, want 2", len(rec.records))
	}
	if got := rec.records[0]; got != (httpRecord{"GET", "/api/tasks/{id}", http.StatusNotFound}) {
		t.Errorf("record = %+v", got)
	}
	if got := rec.records[1]; got.route != "unmatched" || got.status != http.StatusNotFound {
		t.Errorf("unmatched record = %+v", got)
	}
}
