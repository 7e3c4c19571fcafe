// Package di provides dependency injection container
package di

import (
	"log/slog"
	"sync"

	"github.com/ssargent/frost/pkg/api"
	"github.com/ssargent/frost/pkg/bag"
	"github.com/ssargent/frost/pkg/config"
	"github.com/ssargent/frost/pkg/logging"
	"github.com/ssargent/frost/pkg/metacache"
)

// Container holds all the dependencies for the application
type Container struct {
	config        *config.Config
	logger        *slog.Logger
	serverFactory api.ServerFactory

	cacheOnce sync.Once
	cache     *metacache.Cache
	cacheErr  error
}

// NewContainer creates a new dependency injection container. A nil config
// uses config.DefaultConfig.
func NewContainer(cfg *config.Config) *Container {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Container{
		config:        cfg,
		logger:        logging.New(cfg.Logging.Level, cfg.Logging.Format),
		serverFactory: api.NewServerFactory(),
	}
}

// Config returns the effective configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the application logger
func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// SetLogger allows overriding the logger (for testing)
func (c *Container) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}

// MetadataCache opens the metadata cache on first use. It returns nil
// without error when the cache is disabled.
func (c *Container) MetadataCache() (*metacache.Cache, error) {
	if !c.config.Cache.Enabled {
		return nil, nil
	}
	c.cacheOnce.Do(func() {
		c.cache, c.cacheErr = metacache.Open(c.config.Cache.Dir, c.logger)
	})
	return c.cache, c.cacheErr
}

// MetadataSource returns a source reading through the cache when it is
// enabled and can be opened, and directly from the files otherwise.
func (c *Container) MetadataSource() api.MetadataSource {
	cache, err := c.MetadataCache()
	if err != nil {
		c.logger.Warn("metadata cache unavailable", "dir", c.config.Cache.Dir, "error", err)
		cache = nil
	}
	logger := c.logger
	return api.MetadataFunc(func(path string) (*bag.Metadata, error) {
		return metacache.ReadMetadata(cache, path, bag.WithLogger(logger))
	})
}

// BagOptions returns the options every handle opened by the application
// uses.
func (c *Container) BagOptions() []bag.Option {
	return []bag.Option{bag.WithLogger(c.logger)}
}

// Close releases resources opened by the container
func (c *Container) Close() error {
	if c.cache != nil {
		err := c.cache.Close()
		c.cache = nil
		return err
	}
	return nil
}
