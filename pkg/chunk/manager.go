// Package chunk loads and decompresses chunk payloads.
//
// A Manager keeps exactly one decompressed chunk: the most recently loaded.
// Loading the cached chunk again returns the same buffer without running
// the codec; loading any other chunk replaces it. Slices taken from a
// returned buffer stay valid until the next Load of a different chunk, or
// until Reset.
package chunk

import (
	"io"
	"log/slog"
	"time"

	"github.com/ssargent/frost/pkg/bagerr"
	"github.com/ssargent/frost/pkg/codec"
	"github.com/ssargent/frost/pkg/compression"
)

// Location describes where a chunk's payload lives and how it is encoded.
type Location struct {
	// Offset is the absolute offset of the chunk record. It keys the cache.
	Offset int64
	// DataOffset is the absolute offset of the compressed payload.
	DataOffset int64
	// CompressedSize is the length of the compressed payload.
	CompressedSize uint32
	// UncompressedSize is the declared decompressed length.
	UncompressedSize uint32
	// Compression is the codec name from the chunk header.
	Compression string
}

// LocationFromRecord builds a Location from a chunk record header.
func LocationFromRecord(info *codec.RecordInfo) (Location, error) {
	if info.Op != codec.OpChunk {
		return Location{}, bagerr.Malformed(info.Offset, "expected chunk record, got %s", info.Op)
	}
	compression, err := info.Header.Text(codec.FieldCompression)
	if err != nil {
		return Location{}, err
	}
	size, err := info.Header.Uint32(codec.FieldSize)
	if err != nil {
		return Location{}, err
	}
	return Location{
		Offset:           info.Offset,
		DataOffset:       info.DataOffset,
		CompressedSize:   info.DataLen,
		UncompressedSize: size,
		Compression:      compression,
	}, nil
}

// slot is the single cache entry.
type slot struct {
	offset int64
	buf    []byte
	valid  bool
}

// Manager decompresses chunks from a byte source with a one-chunk cache.
// It is not safe for concurrent use.
type Manager struct {
	src      io.ReaderAt
	registry *compression.Registry
	metrics  *Metrics
	logger   *slog.Logger
	cache    slot
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry sets the codec registry. The default is compression.Default().
func WithRegistry(r *compression.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithMetrics records cache and decompression metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l.With("component", "chunk_manager")
		}
	}
}

// NewManager creates a Manager reading compressed payloads from src.
func NewManager(src io.ReaderAt, opts ...Option) *Manager {
	m := &Manager{
		src:      src,
		registry: compression.Default(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load returns the decompressed payload of the chunk at loc, exactly
// loc.UncompressedSize bytes long.
func (m *Manager) Load(loc Location) ([]byte, error) {
	if m.cache.valid && m.cache.offset == loc.Offset {
		m.metrics.hit()
		return m.cache.buf, nil
	}
	m.metrics.miss()

	buf, err := m.decompress(loc)
	if err != nil {
		// A failed load leaves no cached chunk behind.
		m.Reset()
		return nil, bagerr.AtOffset(err, loc.Offset)
	}
	m.cache = slot{offset: loc.Offset, buf: buf, valid: true}
	return buf, nil
}

func (m *Manager) decompress(loc Location) ([]byte, error) {
	c, err := m.registry.Lookup(loc.Compression)
	if err != nil {
		return nil, err
	}

	compressed := make([]byte, loc.CompressedSize)
	if n, err := m.src.ReadAt(compressed, loc.DataOffset); n != len(compressed) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, bagerr.IO(err, loc.DataOffset, "reading chunk payload")
	}

	start := time.Now()
	buf, err := c.Decompress(compressed, int(loc.UncompressedSize))
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	m.metrics.decompressed(loc.Compression, len(buf), elapsed)
	m.logger.Debug("decompressed chunk",
		"offset", loc.Offset,
		"compression", loc.Compression,
		"compressed_bytes", loc.CompressedSize,
		"uncompressed_bytes", loc.UncompressedSize,
		"elapsed", elapsed)
	return buf, nil
}

// Cached reports the offset of the cached chunk, if any.
func (m *Manager) Cached() (int64, bool) {
	return m.cache.offset, m.cache.valid
}

// Reset drops the cached chunk.
func (m *Manager) Reset() {
	m.cache = slot{}
}
