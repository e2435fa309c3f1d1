package observability

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRequestIDMiddlewarePreservesIncomingID(t *testing.T) {
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := RequestIDFromContext(r.Context()); got != "req-1" {
			t.Fatalf("RequestIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(RequestIDHeader); got != "req-1" {
		t.Fatalf("request id header = %q", got)
	}
}

func TestRequestIDMiddlewareGeneratesID(t *testing.T) {
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated request id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if len(rr.Header().Get(RequestIDHeader)) != 36 {
		t.Fatalf("expected uuid request id, got %q", rr.Header().Get(RequestIDHeader))
	}
}

func TestRequestIDMiddlewareReplacesOversizedID(t *testing.T) {
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLength+1))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(RequestIDHeader); len(got) != 36 {
		t.Fatalf("request id header = %q", got)
	}
}

func TestRequestIDContextHelpers(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "abc123")
	if got := RequestIDFromContext(ctx); got != "abc123" {
		t.Fatalf("RequestIDFromContext() = %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("RequestIDFromContext() = %q, want empty", got)
	}
}

func TestLoggingMiddlewareDoesNotPanic(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
}

func TestMetricsMiddlewareUsesUnmatchedOutsideRouter(t *testing.T) {
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "418"))
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/anything/123", nil))

	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "418"))
	if after-before != 1 {
		t.Fatalf("counter delta = %v", after-before)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("select 1", 0); got != "select 1" {
		t.Fatalf("Truncate() = %q", got)
	}
	if got := Truncate("select 1", 20); got != "select 1" {
		t.Fatalf("Truncate() = %q", got)
	}
	if got := Truncate("select * from orders", 6); got != "select...(truncated)" {
		t.Fatalf("Truncate() = %q", got)
	}
}

func TestDomainMetricHelpers(t *testing.T) {
	before := testutil.ToFloat64(orchestratorRequestsTotal.WithLabelValues("DATA_RETRIEVAL", "success"))
	ObserveOrchestration("DATA_RETRIEVAL", "success", 120*time.Millisecond)
	if got := testutil.ToFloat64(orchestratorRequestsTotal.WithLabelValues("DATA_RETRIEVAL", "success")); got-before != 1 {
		t.Fatalf("orchestrator counter delta = %v", got-before)
	}

	truncatedBefore := testutil.ToFloat64(sqlRowsTruncatedTotal)
	ObserveSQLExecution("success", true, time.Millisecond)
	ObserveSQLExecution("success", false, time.Millisecond)
	if got := testutil.ToFloat64(sqlRowsTruncatedTotal); got-truncatedBefore != 1 {
		t.Fatalf("truncated counter delta = %v", got-truncatedBefore)
	}

	ObserveSchemaRefresh("success", 7)
	if got := testutil.ToFloat64(schemaTables); got != 7 {
		t.Fatalf("schema tables gauge = %v", got)
	}
}
