package api

import (
	"time"

	"github.com/ssargent/frost/pkg/bag"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Addr string
	// APIKey protects /api/v1 when set.
	APIKey string
	// DataDir is the directory whose *.bag files are served.
	DataDir        string
	AllowedOrigins []string
	EnableMetrics  bool
	// MaxMessages caps the limit parameter of the messages endpoint.
	MaxMessages int
}

// BagSummary is one entry of the bag listing.
type BagSummary struct {
	Name            string    `json:"name"`
	SizeBytes       int64     `json:"size_bytes"`
	ModTime         time.Time `json:"mod_time"`
	Messages        uint64    `json:"messages"`
	Topics          []string  `json:"topics,omitempty"`
	DurationSeconds float64   `json:"duration_seconds"`
	Error           string    `json:"error,omitempty"`
}

// MessageRecord is one message returned by the messages endpoint. Data is
// only set when requested and is base64 encoded in JSON.
type MessageRecord struct {
	Time  string  `json:"time"`
	Stamp float64 `json:"stamp"`
	Topic string  `json:"topic"`
	Type  string  `json:"type"`
	Size  uint64  `json:"size"`
	Data  []byte  `json:"data,omitempty"`
}

// MessagesResponse is the body of the messages endpoint.
type MessagesResponse struct {
	Query     string          `json:"query"`
	Messages  []MessageRecord `json:"messages"`
	Truncated bool            `json:"truncated"`
}

// MetadataFunc adapts a function to MetadataSource.
type MetadataFunc func(path string) (*bag.Metadata, error)

// ReadMetadata calls f.
func (f MetadataFunc) ReadMetadata(path string) (*bag.Metadata, error) {
	return f(path)
}
