package compression

import (
	"bytes"
	"io"
	"math"
	"sync"

	"github.com/dsnet/compress/bzip2"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"

	"github.com/ssargent/frost/pkg/bagerr"
)

// maxPrealloc caps how much of a declared size is reserved up front. Chunk
// headers are untrusted, so the buffer grows with what the stream yields.
const maxPrealloc = 4 << 20

// readExactly drains r and requires it to yield exactly size bytes.
func readExactly(name string, r io.Reader, size int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(min(size, maxPrealloc))
	n, err := io.CopyN(&buf, r, int64(size)+1)
	if err != nil && err != io.EOF {
		return nil, bagerr.Decompression(name, errors.Wrapf(err, "expected %d bytes", size))
	}
	switch {
	case n > int64(size):
		return nil, bagerr.Decompression(name, errors.Errorf("stream longer than declared %d bytes", size))
	case n < int64(size):
		return nil, bagerr.Decompression(name, errors.Errorf("decoded %d bytes, expected %d", n, size))
	}
	return buf.Bytes(), nil
}

func checkLen(name string, out []byte, size int) ([]byte, error) {
	if len(out) != size {
		return nil, bagerr.Decompression(name, errors.Errorf("decoded %d bytes, expected %d", len(out), size))
	}
	return out, nil
}

type noneCodec struct{}

func (noneCodec) Name() string { return None }

// Decompress returns src itself; the payload must already be size bytes.
func (noneCodec) Decompress(src []byte, size int) ([]byte, error) {
	return checkLen(None, src, size)
}

func (noneCodec) Compress(src []byte) ([]byte, error) { return src, nil }

type bz2Codec struct{}

func (bz2Codec) Name() string { return BZ2 }

func (bz2Codec) Decompress(src []byte, size int) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(src), nil)
	if err != nil {
		return nil, bagerr.Decompression(BZ2, err)
	}
	defer r.Close()
	return readExactly(BZ2, r, size)
}

func (bz2Codec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.DefaultCompression})
	if err != nil {
		return nil, errors.Wrap(err, "creating bz2 writer")
	}
	if _, err := w.Write(src); err != nil {
		return nil, errors.Wrap(err, "writing bz2 stream")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "closing bz2 stream")
	}
	return buf.Bytes(), nil
}

// lz4Codec reads and writes the LZ4 frame format.
type lz4Codec struct{}

func (lz4Codec) Name() string { return LZ4 }

func (lz4Codec) Decompress(src []byte, size int) ([]byte, error) {
	return readExactly(LZ4, lz4.NewReader(bytes.NewReader(src)), size)
}

func (lz4Codec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, errors.Wrap(err, "writing lz4 frame")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "closing lz4 frame")
	}
	return buf.Bytes(), nil
}

// zstdCodec shares one stateless decoder and encoder across calls.
type zstdCodec struct {
	once    sync.Once
	dec     *zstd.Decoder
	enc     *zstd.Encoder
	initErr error
}

func newZstdCodec() *zstdCodec { return &zstdCodec{} }

func (c *zstdCodec) init() error {
	c.once.Do(func() {
		c.dec, c.initErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(math.MaxUint32))
		if c.initErr != nil {
			return
		}
		c.enc, c.initErr = zstd.NewWriter(nil)
	})
	return c.initErr
}

func (c *zstdCodec) Name() string { return ZSTD }

func (c *zstdCodec) Decompress(src []byte, size int) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, bagerr.Decompression(ZSTD, err)
	}
	var h zstd.Header
	if err := h.Decode(src); err != nil {
		return nil, bagerr.Decompression(ZSTD, err)
	}
	if h.HasFCS && h.FrameContentSize != uint64(size) {
		return nil, bagerr.Decompression(ZSTD, errors.Errorf("frame declares %d bytes, expected %d", h.FrameContentSize, size))
	}
	out, err := c.dec.DecodeAll(src, nil)
	if err != nil {
		return nil, bagerr.Decompression(ZSTD, err)
	}
	return checkLen(ZSTD, out, size)
}

func (c *zstdCodec) Compress(src []byte) ([]byte, error) {
	if err := c.init(); err != nil {
		return nil, errors.Wrap(err, "creating zstd encoder")
	}
	return c.enc.EncodeAll(src, nil), nil
}

type gzipCodec struct{}

func (gzipCodec) Name() string { return GZIP }

func (gzipCodec) Decompress(src []byte, size int) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, bagerr.Decompression(GZIP, err)
	}
	defer r.Close()
	return readExactly(GZIP, r, size)
}

func (gzipCodec) Compress(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(src); err != nil {
		return nil, errors.Wrap(err, "writing gzip stream")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "closing gzip stream")
	}
	return buf.Bytes(), nil
}

// snappyCodec uses the snappy block format.
type snappyCodec struct{}

func (snappyCodec) Name() string { return Snappy }

func (snappyCodec) Decompress(src []byte, size int) ([]byte, error) {
	n, err := snappy.DecodedLen(src)
	if err != nil {
		return nil, bagerr.Decompression(Snappy, err)
	}
	if n != size {
		return nil, bagerr.Decompression(Snappy, errors.Errorf("block declares %d bytes, expected %d", n, size))
	}
	out, err := snappy.Decode(make([]byte, n), src)
	if err != nil {
		return nil, bagerr.Decompression(Snappy, err)
	}
	return out, nil
}

func (snappyCodec) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}
