package bag

import (
	"bytes"
	"io"
	"log/slog"
	"time"

	"github.com/ssargent/frost/pkg/index"
	"github.com/ssargent/frost/pkg/query"
)

// DecompressedBag holds every chunk of a bag decompressed in one buffer.
// The source is not needed after opening.
type DecompressedBag struct {
	cat  *index.Catalog
	meta *Metadata
	// buf holds chunk i at buf[starts[i] : starts[i]+UncompressedSize].
	buf    []byte
	starts []int64
	logger *slog.Logger
	closed bool
}

// OpenDecompressed reads and decompresses the bag file at path.
func OpenDecompressed(path string, opts ...Option) (*DecompressedBag, error) {
	f, size, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return newDecompressed(f, size, absPath(path), newOptions(opts))
}

// DecompressedFromBytes decompresses a bag held in memory.
func DecompressedFromBytes(data []byte, opts ...Option) (*DecompressedBag, error) {
	return DecompressedFromReaderAt(bytes.NewReader(data), int64(len(data)), opts...)
}

// DecompressedFromReaderAt decompresses a bag of size bytes read from r.
func DecompressedFromReaderAt(r io.ReaderAt, size int64, opts ...Option) (*DecompressedBag, error) {
	return newDecompressed(r, size, "", newOptions(opts))
}

func newDecompressed(src io.ReaderAt, size int64, path string, o *options) (*DecompressedBag, error) {
	start := time.Now()
	cat, err := o.buildCatalog(src, size)
	if err != nil {
		return nil, err
	}

	// Declared sizes are not trusted for allocation; the buffer grows as
	// each chunk decodes to its declared length.
	starts := make([]int64, len(cat.Chunks))
	var buf []byte
	mgr := o.chunkManager(src)
	for i := range cat.Chunks {
		data, err := mgr.Load(cat.Chunks[i].Location())
		if err != nil {
			return nil, err
		}
		starts[i] = int64(len(buf))
		buf = append(buf, data...)
	}
	mgr.Reset()

	d := &DecompressedBag{
		cat:    cat,
		meta:   newMetadata(cat, path, size),
		buf:    buf,
		starts: starts,
		logger: o.logger.With("component", "decompressed_bag"),
	}
	d.logger.Debug("decompressed bag",
		"path", path,
		"bytes", size,
		"uncompressed_bytes", len(buf),
		"chunks", len(cat.Chunks),
		"elapsed", time.Since(start))
	return d, nil
}

// Metadata returns the bag summary.
func (d *DecompressedBag) Metadata() *Metadata {
	return d.meta
}

// Catalog returns the connection and chunk catalog.
func (d *DecompressedBag) Catalog() *index.Catalog {
	return d.cat
}

// ReadMessages starts a pass over the messages matching q. Views borrow
// from the bag's buffer and stay valid until Close.
func (d *DecompressedBag) ReadMessages(q query.Query) (*MessageIterator, error) {
	if d.closed {
		return nil, ErrClosed
	}
	return newMessageIterator(d.cat, d, q), nil
}

func (d *DecompressedBag) loadChunk(i int) ([]byte, error) {
	if d.closed {
		return nil, ErrClosed
	}
	start := d.starts[i]
	return d.buf[start : start+int64(d.cat.Chunks[i].UncompressedSize)], nil
}

// Close drops the decompressed buffer.
func (d *DecompressedBag) Close() error {
	d.closed = true
	d.buf = nil
	return nil
}
