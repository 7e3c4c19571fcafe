// Package compression maps chunk codec names to decompression functions.
//
// Bags compress each chunk independently and name the codec in the chunk's
// "compression" header field. A Registry resolves that name to a Codec.
// Unknown names fail with an UnsupportedCompression error and corrupt
// payloads with a DecompressionError; neither is retried.
package compression

import (
	"sort"
	"sync"

	"github.com/ssargent/frost/pkg/bagerr"
)

// Codec names found in chunk headers.
const (
	None   = "none"
	BZ2    = "bz2"
	LZ4    = "lz4"
	ZSTD   = "zstd"
	GZIP   = "gzip"
	Snappy = "snappy"
)

// Codec decompresses (and, for fixtures and tools, compresses) chunk payloads.
type Codec interface {
	// Name returns the name stored in chunk headers.
	Name() string
	// Decompress returns exactly size bytes decoded from src.
	Decompress(src []byte, size int) ([]byte, error)
	// Compress encodes src. The read path never calls it.
	Compress(src []byte) ([]byte, error)
}

// Registry maps codec names to codecs.
type Registry struct {
	mu     sync.RWMutex
	codecs map[string]Codec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// NewDefaultRegistry creates a registry holding every built-in codec.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(noneCodec{})
	r.Register(bz2Codec{})
	r.Register(lz4Codec{})
	r.Register(newZstdCodec())
	r.Register(gzipCodec{})
	r.Register(snappyCodec{})
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the shared registry of built-in codecs.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewDefaultRegistry()
	})
	return defaultRegistry
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codecs[c.Name()] = c
}

// Lookup returns the codec registered under name.
func (r *Registry) Lookup(name string) (Codec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.codecs[name]
	if !ok {
		return nil, bagerr.UnsupportedCompression(name)
	}
	return c, nil
}

// Decompress decodes src with the named codec into exactly size bytes.
func (r *Registry) Decompress(name string, src []byte, size int) ([]byte, error) {
	c, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return c.Decompress(src, size)
}

// Compress encodes src with the named codec.
func (r *Registry) Compress(name string, src []byte) ([]byte, error) {
	c, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return c.Compress(src)
}

// Names returns the registered codec names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.codecs))
	for name := range r.codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
