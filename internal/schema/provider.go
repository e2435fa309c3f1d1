package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/duckmesh/nlq/internal/observability"
)

var ErrNotLoaded = errors.New("schema not loaded")

type Loader interface {
	Load(ctx context.Context) (Snapshot, error)
}

type LoaderFunc func(ctx context.Context) (Snapshot, error)

func (f LoaderFunc) Load(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

type ProviderOptions struct {
	// Tables restricts the snapshot to an allow-list.
	Tables []string
	// BeforeLoad runs under the refresh lock ahead of every load, e.g. to
	// resync lake views.
	BeforeLoad func(ctx context.Context) error
	Logger     *slog.Logger
	Now        func() time.Time
}

// Provider holds the process-wide snapshot. Readers never block; refreshes
// are serialized and swap the snapshot only when the load succeeds.
type Provider struct {
	loader  Loader
	options ProviderOptions

	refreshMu sync.Mutex
	current   atomic.Pointer[Snapshot]
}

func NewProvider(loader Loader, options ProviderOptions) (*Provider, error) {
	if loader == nil {
		return nil, fmt.Errorf("schema loader is required")
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Now == nil {
		options.Now = time.Now
	}
	return &Provider{loader: loader, options: options}, nil
}

// Current returns the last loaded snapshot, or an empty one before the
// first successful load.
func (p *Provider) Current() Snapshot {
	if snapshot := p.current.Load(); snapshot != nil {
		return *snapshot
	}
	return Snapshot{}
}

func (p *Provider) Loaded() bool {
	return p.current.Load() != nil
}

// Load performs the startup load. It is Refresh under another name so
// startup failures read clearly in logs.
func (p *Provider) Load(ctx context.Context) error {
	if err := p.Refresh(ctx); err != nil {
		return fmt.Errorf("initial schema load: %w", err)
	}
	return nil
}

// Refresh reloads the snapshot. On failure the previous snapshot stays in
// place.
func (p *Provider) Refresh(ctx context.Context) error {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	start := p.options.Now()
	if p.options.BeforeLoad != nil {
		if err := p.options.BeforeLoad(ctx); err != nil {
			observability.ObserveSchemaRefresh("error", 0)
			return fmt.Errorf("prepare schema load: %w", err)
		}
	}

	snapshot, err := p.loader.Load(ctx)
	if err != nil {
		observability.ObserveSchemaRefresh("error", 0)
		p.options.Logger.Error("schema refresh failed", slog.Any("error", err))
		return fmt.Errorf("load schema: %w", err)
	}
	snapshot = snapshot.Filter(p.options.Tables)
	snapshot.LoadedAt = p.options.Now()
	p.current.Store(&snapshot)

	observability.ObserveSchemaRefresh("success", len(snapshot.Tables))
	p.options.Logger.Info("schema refreshed",
		slog.Int("tables", len(snapshot.Tables)),
		slog.Duration("elapsed", snapshot.LoadedAt.Sub(start)),
	)
	return nil
}

// Ready reports ErrNotLoaded until the first successful load.
func (p *Provider) Ready(context.Context) error {
	if !p.Loaded() {
		return ErrNotLoaded
	}
	return nil
}
