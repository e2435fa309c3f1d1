package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/duckmesh/nlq/internal/config"
	"github.com/duckmesh/nlq/internal/llm"
	"github.com/duckmesh/nlq/internal/orchestrator"
	"github.com/duckmesh/nlq/internal/query/duckdb"
	"github.com/duckmesh/nlq/internal/query/sqldb"
	"github.com/duckmesh/nlq/internal/schema"
	s3store "github.com/duckmesh/nlq/internal/storage/s3"
)

// App bundles the long-lived dependencies shared by the API and MCP servers.
type App struct {
	DB           *sql.DB
	Dialect      sqldb.Dialect
	Engine       *sqldb.Engine
	Schemas      *schema.Provider
	Orchestrator *orchestrator.Orchestrator
	Lake         *duckdb.Lake
}

// Build opens the database, prepares the optional lake, performs the initial
// schema load and assembles the orchestrator. A failed initial load is fatal.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, dialect, err := sqldb.Open(ctx, sqldb.DBConfig{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	a := &App{DB: db, Dialect: dialect}

	engine, err := sqldb.NewEngine(db, dialect)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Engine = engine

	providerOptions := schema.ProviderOptions{Tables: cfg.Schema.Tables, Logger: logger}
	if cfg.Lake.Enabled {
		lake, err := openLake(ctx, cfg, db)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Lake = lake
		providerOptions.BeforeLoad = func(ctx context.Context) error {
			report, err := lake.Sync(ctx)
			if err != nil {
				return err
			}
			logger.Info("lake synced",
				slog.Int("tables", len(report.Tables)),
				slog.Int("files", report.Files),
				slog.Int64("bytes", report.Bytes),
			)
			return nil
		}
	}

	provider, err := schema.NewProvider(SchemaLoader(db, dialect), providerOptions)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := provider.Load(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Schemas = provider

	model, err := NewModel(cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	orch, err := orchestrator.New(model, engine, provider, OrchestratorConfig(cfg, dialect), logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Orchestrator = orch
	return a, nil
}

func (a *App) Close() error {
	if a.Lake != nil {
		_ = a.Lake.Close()
	}
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

// SchemaLoader picks the introspection strategy for dialect.
func SchemaLoader(db *sql.DB, dialect sqldb.Dialect) schema.Loader {
	switch dialect {
	case sqldb.DialectSQLite:
		return schema.SQLiteLoader{DB: db}
	case sqldb.DialectDuckDB:
		return schema.InformationSchemaLoader{DB: db, Schema: "main"}
	default:
		return schema.InformationSchemaLoader{DB: db, Schema: "public", Constraints: true}
	}
}

// NewModel builds the OpenAI-compatible client wrapped in bounded retries.
func NewModel(cfg config.Config) (llm.Model, error) {
	client, err := llm.NewOpenAI(llm.OpenAIConfig{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey})
	if err != nil {
		return nil, fmt.Errorf("init language model: %w", err)
	}
	return &llm.Retrying{Model: client, MaxRetries: cfg.LLM.MaxRetries}, nil
}

func OrchestratorConfig(cfg config.Config, dialect sqldb.Dialect) orchestrator.Config {
	return orchestrator.Config{
		LLM: llm.Params{
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		},
		SQLTimeout:     cfg.SQL.Timeout,
		MaxRows:        cfg.SQL.MaxRowsReturned,
		MaxCorrections: cfg.SQL.CorrectionMaxAttempts,
		MaxRounds:      cfg.Insight.MaxRounds,
		PromptMaxRows:  cfg.LLM.PromptMaxRows,
		Dialect:        dialect.String(),
		Format: orchestrator.FormatOptions{
			CurrencySuffix:  cfg.Format.CurrencySuffix,
			CurrencyColumns: cfg.Format.CurrencyColumns,
			CountColumns:    cfg.Format.CountColumns,
		},
		SQLLogMaxLength: cfg.SQL.LogMaxLength,
		LLMLogMaxLength: cfg.LLM.LogContentMaxLength,
	}
}

// ObjectStore opens the configured bucket.
func ObjectStore(ctx context.Context, cfg config.Config) (*s3store.Store, error) {
	store, err := s3store.New(ctx, s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}
	return store, nil
}

func openLake(ctx context.Context, cfg config.Config, db *sql.DB) (*duckdb.Lake, error) {
	store, err := ObjectStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	lake, err := duckdb.NewLake(store, db, cfg.Lake.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("init lake: %w", err)
	}
	return lake, nil
}
