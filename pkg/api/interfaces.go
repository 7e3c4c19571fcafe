// Package api provides interfaces for dependency injection
package api

import (
	"context"
	"log/slog"

	"github.com/ssargent/frost/pkg/bag"
)

// MetadataSource returns bag metadata by path. Implementations may cache.
type MetadataSource interface {
	ReadMetadata(path string) (*bag.Metadata, error)
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer runs the server until ctx is cancelled.
	StartServer(ctx context.Context, config ServerConfig, source MetadataSource, logger *slog.Logger) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
