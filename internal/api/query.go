package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/duckmesh/nlq/internal/config"
	"github.com/duckmesh/nlq/internal/observability"
	"github.com/duckmesh/nlq/internal/orchestrator"
)

const maxQueryBodyBytes = 64 << 10

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Response string `json:"response"`
}

func handleQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Queries == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "query_not_configured", "Query answering is not configured.")
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "body_too_large", "The request body is too large.")
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "invalid_json", "The request body must be a JSON object with a single \"query\" string.")
		return
	}
	if decoder.More() {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid_json", "The request body must contain exactly one JSON object.")
		return
	}

	text := strings.TrimSpace(request.Query)
	if text == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "query_required", "The query must not be empty.")
		return
	}
	if limit := cfg.HTTP.QueryMaxLength; limit > 0 && utf8.RuneCountInString(text) > limit {
		writeError(r.Context(), w, http.StatusBadRequest, "query_too_long", "The query is too long.")
		return
	}

	ctx := r.Context()
	if cfg.HTTP.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.HTTP.RequestTimeout)
		defer cancel()
	}
	result := deps.Queries.Handle(ctx, orchestrator.NewQuery(text, observability.RequestIDFromContext(r.Context())))
	if result.Failed() {
		// Every orchestration failure is a server-side failure of the request.
		writeError(r.Context(), w, http.StatusInternalServerError, string(result.Err.Kind), result.Err.Detail)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{Response: result.Answer})
}
