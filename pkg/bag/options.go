package bag

import (
	"io"
	"log/slog"

	"github.com/ssargent/frost/pkg/chunk"
	"github.com/ssargent/frost/pkg/compression"
	"github.com/ssargent/frost/pkg/index"
)

type options struct {
	logger    *slog.Logger
	registry  *compression.Registry
	metrics   *chunk.Metrics
	forceScan bool
}

// Option configures how a handle is opened.
type Option func(*options)

// WithLogger sets the logger. Handles log nothing by default.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRegistry sets the chunk codec registry.
func WithRegistry(r *compression.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithMetrics records chunk cache and decompression metrics.
func WithMetrics(m *chunk.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithForceScan builds the catalog by scanning every chunk even when the
// file has a usable index.
func WithForceScan() Option {
	return func(o *options) { o.forceScan = true }
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		registry: compression.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) buildCatalog(src io.ReaderAt, size int64) (*index.Catalog, error) {
	cfg := index.Config{
		Registry: o.registry,
		Metrics:  o.metrics,
		Logger:   o.logger,
	}
	if o.forceScan {
		return index.Scan(src, size, cfg)
	}
	return index.Build(src, size, cfg)
}

func (o *options) chunkManager(src io.ReaderAt) *chunk.Manager {
	return chunk.NewManager(src,
		chunk.WithRegistry(o.registry),
		chunk.WithMetrics(o.metrics),
		chunk.WithLogger(o.logger))
}
