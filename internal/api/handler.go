package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duckmesh/nlq/internal/config"
	"github.com/duckmesh/nlq/internal/observability"
	"github.com/duckmesh/nlq/internal/orchestrator"
	"github.com/duckmesh/nlq/internal/schema"
)

type ReadinessCheck func(ctx context.Context) error

// QueryHandler answers one natural-language question.
type QueryHandler interface {
	Handle(ctx context.Context, q orchestrator.Query) orchestrator.Result
}

// SchemaService exposes the current schema snapshot and refreshes it on
// demand.
type SchemaService interface {
	Current() schema.Snapshot
	Refresh(ctx context.Context) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Queries           QueryHandler
	Schemas           SchemaService
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	router := chi.NewRouter()
	router.Use(observability.RequestIDMiddleware)
	router.Use(observability.MetricsMiddleware)
	if deps.Logger != nil {
		router.Use(observability.LoggingMiddleware(deps.Logger))
	}
	router.Use(middleware.Recoverer)

	router.Get("/v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	router.Get("/v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			if deps.Logger != nil {
				deps.Logger.Warn("readiness check failed", slog.Any("error", err))
			}
			writeError(r.Context(), w, http.StatusServiceUnavailable, "not_ready", "The service is not ready to accept queries.")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	router.Handle("/v1/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.With(RateLimiter(cfg.RateLimit)).Post("/query", func(w http.ResponseWriter, r *http.Request) {
			handleQuery(cfg, deps, w, r)
		})
		r.Get("/schema", func(w http.ResponseWriter, r *http.Request) {
			handleGetSchema(deps, w, r)
		})
		r.Post("/schema/refresh", func(w http.ResponseWriter, r *http.Request) {
			handleRefreshSchema(deps, w, r)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, http.StatusNotFound, "not_found", "The requested resource does not exist.")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(r.Context(), w, http.StatusMethodNotAllowed, "method_not_allowed", "The method is not allowed for this resource.")
	})
	return router
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

func CheckDatabase(db Pinger) ReadinessCheck {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database is not configured")
		}
		return db.PingContext(ctx)
	}
}

// CheckSchema fails until the first schema snapshot is loaded.
func CheckSchema(ready func(context.Context) error) ReadinessCheck {
	return func(ctx context.Context) error {
		if ready == nil {
			return errors.New("schema provider is not configured")
		}
		return ready(ctx)
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes the client-facing failure body. detail must never carry
// SQL, prompts or driver output.
func writeError(ctx context.Context, w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{
		Detail:    detail,
		ErrorCode: code,
		RequestID: observability.RequestIDFromContext(ctx),
	})
}
