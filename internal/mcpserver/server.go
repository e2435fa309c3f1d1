// Package mcpserver exposes the query orchestrator as Model Context Protocol
// tools.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/duckmesh/nlq/internal/orchestrator"
	"github.com/duckmesh/nlq/internal/schema"
)

type QueryHandler interface {
	Handle(ctx context.Context, q orchestrator.Query) orchestrator.Result
}

type SchemaService interface {
	Current() schema.Snapshot
	Refresh(ctx context.Context) error
}

type AskArgs struct {
	Question string `json:"question" jsonschema:"required,description=Natural-language question about the connected database"`
}

type RefreshArgs struct{}

type tools struct {
	queries        QueryHandler
	schemas        SchemaService
	logger         *slog.Logger
	maxQuestionLen int
}

type Options struct {
	Name    string
	Version string
	// MaxQuestionLength caps question length in runes; 0 disables the cap.
	MaxQuestionLength int
	Logger            *slog.Logger
}

// New builds an MCP server with the ask_database, describe_schema and
// refresh_schema tools.
func New(queries QueryHandler, schemas SchemaService, options Options) (*server.MCPServer, error) {
	if queries == nil {
		return nil, fmt.Errorf("query handler is required")
	}
	if schemas == nil {
		return nil, fmt.Errorf("schema service is required")
	}
	if options.Name == "" {
		options.Name = "nlq"
	}
	if options.Version == "" {
		options.Version = "dev"
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	t := &tools{queries: queries, schemas: schemas, logger: options.Logger, maxQuestionLen: options.MaxQuestionLength}
	s := server.NewMCPServer(options.Name, options.Version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("ask_database",
		mcp.WithDescription("Answer a natural-language question from the connected database. "+
			"Greetings get a short reply; data questions are translated to read-only SQL, executed and summarized; "+
			"analytical questions may run several queries before answering."),
		mcp.WithInputSchema[AskArgs](),
	), t.ask)

	s.AddTool(mcp.NewTool("describe_schema",
		mcp.WithDescription("Show the tables, columns and foreign keys the assistant answers from."),
		mcp.WithInputSchema[RefreshArgs](),
	), t.describe)

	s.AddTool(mcp.NewTool("refresh_schema",
		mcp.WithDescription("Reload the database schema after tables or columns changed."),
		mcp.WithInputSchema[RefreshArgs](),
	), t.refresh)

	return s, nil
}

func (t *tools) ask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args AskArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	question := strings.TrimSpace(args.Question)
	if question == "" {
		return mcp.NewToolResultError("question must not be empty"), nil
	}
	if t.maxQuestionLen > 0 && len([]rune(question)) > t.maxQuestionLen {
		return mcp.NewToolResultError(fmt.Sprintf("question is longer than %d characters", t.maxQuestionLen)), nil
	}

	result := t.queries.Handle(ctx, orchestrator.NewQuery(question, ""))
	if result.Failed() {
		return mcp.NewToolResultError(fmt.Sprintf("%s (error_code=%s, request_id=%s)", result.Err.Detail, result.Err.Kind, result.QueryID)), nil
	}
	return mcp.NewToolResultText(result.Answer), nil
}

func (t *tools) describe(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshot := t.schemas.Current()
	if len(snapshot.Tables) == 0 {
		return mcp.NewToolResultError("schema is not loaded"), nil
	}
	return mcp.NewToolResultText(schema.Render(snapshot)), nil
}

func (t *tools) refresh(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.schemas.Refresh(ctx); err != nil {
		t.logger.Error("schema refresh failed", slog.Any("error", err))
		return mcp.NewToolResultError("schema refresh failed; the previous schema is still in use"), nil
	}
	snapshot := t.schemas.Current()
	return mcp.NewToolResultText(fmt.Sprintf("schema refreshed: %d tables (%s)", len(snapshot.Tables), strings.Join(snapshot.TableNames(), ", "))), nil
}
