package bag

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ssargent/frost/pkg/bagerr"
	"github.com/ssargent/frost/pkg/chunk"
	"github.com/ssargent/frost/pkg/index"
	"github.com/ssargent/frost/pkg/query"
)

// ErrClosed is returned when reading from a closed handle.
var ErrClosed = errors.New("bag is closed")

// Reader is implemented by both handle types.
type Reader interface {
	Metadata() *Metadata
	ReadMessages(q query.Query) (*MessageIterator, error)
	Close() error
}

var (
	_ Reader = (*Bag)(nil)
	_ Reader = (*DecompressedBag)(nil)
)

// chunkLoader returns the decompressed payload of a catalog chunk.
type chunkLoader interface {
	loadChunk(i int) ([]byte, error)
}

// Bag reads chunks lazily from its source, keeping one decompressed chunk
// cached.
type Bag struct {
	src    io.ReaderAt
	file   *os.File
	cat    *index.Catalog
	meta   *Metadata
	chunks *chunk.Manager
	logger *slog.Logger
	closed bool
}

// Open opens the bag file at path. The file stays open until Close.
func Open(path string, opts ...Option) (*Bag, error) {
	f, size, err := openFile(path)
	if err != nil {
		return nil, err
	}
	b, err := newBag(f, size, absPath(path), newOptions(opts))
	if err != nil {
		f.Close()
		return nil, err
	}
	b.file = f
	return b, nil
}

// FromBytes reads a bag held in memory. data must not be modified while the
// bag is in use.
func FromBytes(data []byte, opts ...Option) (*Bag, error) {
	return FromReaderAt(bytes.NewReader(data), int64(len(data)), opts...)
}

// FromReaderAt reads a bag of size bytes from r.
func FromReaderAt(r io.ReaderAt, size int64, opts ...Option) (*Bag, error) {
	return newBag(r, size, "", newOptions(opts))
}

func newBag(src io.ReaderAt, size int64, path string, o *options) (*Bag, error) {
	cat, err := o.buildCatalog(src, size)
	if err != nil {
		return nil, err
	}
	b := &Bag{
		src:    src,
		cat:    cat,
		meta:   newMetadata(cat, path, size),
		chunks: o.chunkManager(src),
		logger: o.logger.With("component", "bag"),
	}
	b.logger.Debug("opened bag",
		"path", path,
		"bytes", size,
		"index_mode", cat.Mode,
		"chunks", len(cat.Chunks))
	return b, nil
}

// Metadata returns the bag summary.
func (b *Bag) Metadata() *Metadata {
	return b.meta
}

// Catalog returns the connection and chunk catalog.
func (b *Bag) Catalog() *index.Catalog {
	return b.cat
}

// ReadMessages starts a pass over the messages matching q. Each call starts
// from the beginning. Only one iterator should be active per Bag: they share
// the chunk cache.
func (b *Bag) ReadMessages(q query.Query) (*MessageIterator, error) {
	if b.closed {
		return nil, ErrClosed
	}
	return newMessageIterator(b.cat, b, q), nil
}

func (b *Bag) loadChunk(i int) ([]byte, error) {
	if b.closed {
		return nil, ErrClosed
	}
	return b.chunks.Load(b.cat.Chunks[i].Location())
}

// Close releases the chunk cache and closes the file, if any.
func (b *Bag) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.chunks.Reset()
	if b.file != nil {
		return b.file.Close()
	}
	return nil
}

// ReadMetadata reads the metadata of the bag at path and closes the file.
func ReadMetadata(path string, opts ...Option) (*Metadata, error) {
	b, err := Open(path, opts...)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	return b.Metadata(), nil
}

func openFile(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, bagerr.IO(err, -1, "opening bag")
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, bagerr.IO(err, -1, "reading bag size")
	}
	return f, st.Size(), nil
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
