package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/duckmesh/nlq/internal/schema"
)

type columnResponse struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
	Default    string `json:"default,omitempty"`
	References string `json:"references,omitempty"`
}

type tableResponse struct {
	Name    string           `json:"name"`
	Columns []columnResponse `json:"columns"`
}

type schemaResponse struct {
	Tables   []tableResponse `json:"tables"`
	LoadedAt *time.Time      `json:"loaded_at,omitempty"`
	Rendered string          `json:"rendered"`
}

func handleGetSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schemas == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "schema_not_configured", "Schema access is not configured.")
		return
	}
	writeJSON(w, http.StatusOK, toSchemaResponse(deps.Schemas.Current()))
}

func handleRefreshSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schemas == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "schema_not_configured", "Schema access is not configured.")
		return
	}
	if err := deps.Schemas.Refresh(r.Context()); err != nil {
		if deps.Logger != nil {
			deps.Logger.Error("schema refresh failed", slog.Any("error", err))
		}
		writeError(r.Context(), w, http.StatusServiceUnavailable, "schema_refresh_failed", "The schema could not be refreshed; the previous schema is still in use.")
		return
	}
	snapshot := deps.Schemas.Current()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "refreshed",
		"tables":    len(snapshot.Tables),
		"loaded_at": snapshot.LoadedAt,
	})
}

func toSchemaResponse(snapshot schema.Snapshot) schemaResponse {
	response := schemaResponse{
		Tables:   make([]tableResponse, 0, len(snapshot.Tables)),
		Rendered: schema.Render(snapshot),
	}
	if !snapshot.LoadedAt.IsZero() {
		loadedAt := snapshot.LoadedAt.UTC()
		response.LoadedAt = &loadedAt
	}
	for _, table := range snapshot.Tables {
		item := tableResponse{Name: table.Name, Columns: make([]columnResponse, 0, len(table.Columns))}
		for _, column := range table.Columns {
			entry := columnResponse{
				Name:       column.Name,
				Type:       column.Type,
				Nullable:   column.Nullable,
				PrimaryKey: column.PrimaryKey,
				Default:    column.Default,
			}
			if column.ForeignKey != nil {
				entry.References = column.ForeignKey.Table + "." + column.ForeignKey.Column
			}
			item.Columns = append(item.Columns, entry)
		}
		response.Tables = append(response.Tables, item)
	}
	return response
}
