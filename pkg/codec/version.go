package codec

import (
	"bytes"
	"io"
	"strings"

	"github.com/ssargent/frost/pkg/bagerr"
)

const (
	// Version is the only supported format version.
	Version = "2.0"
	// VersionLine is the leading magic of every supported file.
	VersionLine = "#ROSBAG V" + Version + "\n"
	// BagHeaderSize is the padded size of the bag header record.
	BagHeaderSize = 4096
)

const versionPrefix = "#ROSBAG V"

// ReadVersion reads and checks the version line at the start of r. It
// returns the offset of the first record.
func ReadVersion(r io.ReaderAt, size int64) (int64, error) {
	buf := make([]byte, len(VersionLine))
	n, err := r.ReadAt(buf, 0)
	if n < len(buf) && err != nil && err != io.EOF {
		return 0, bagerr.IO(err, 0, "reading version line")
	}
	return CheckVersion(buf[:n])
}

// CheckVersion validates the version line at the start of b.
func CheckVersion(b []byte) (int64, error) {
	if len(b) >= len(VersionLine) && bytes.Equal(b[:len(VersionLine)], []byte(VersionLine)) {
		return int64(len(VersionLine)), nil
	}
	if bytes.HasPrefix(b, []byte(versionPrefix)) {
		v := string(b[len(versionPrefix):])
		if i := strings.IndexByte(v, '\n'); i >= 0 {
			v = v[:i]
		}
		return 0, bagerr.InvalidFormat("unsupported bag version %q", v)
	}
	return 0, bagerr.InvalidFormat("missing %q version line", strings.TrimSpace(VersionLine))
}

// BagHeader is the decoded bag header record.
type BagHeader struct {
	IndexPos   uint64
	ConnCount  uint32
	ChunkCount uint32
	// End is the offset just past the bag header record.
	End int64
}

// DecodeBagHeader extracts the bag header from a record.
func DecodeBagHeader(h Header, end int64) (*BagHeader, error) {
	indexPos, err := h.Uint64(FieldIndexPos)
	if err != nil {
		return nil, err
	}
	connCount, err := h.Uint32(FieldConnCount)
	if err != nil {
		return nil, err
	}
	chunkCount, err := h.Uint32(FieldChunkCount)
	if err != nil {
		return nil, err
	}
	return &BagHeader{IndexPos: indexPos, ConnCount: connCount, ChunkCount: chunkCount, End: end}, nil
}

// ReadBagHeader validates the version line and decodes the bag header
// record that follows it.
func (c *RecordCodec) ReadBagHeader(r io.ReaderAt, size int64) (*BagHeader, error) {
	off, err := ReadVersion(r, size)
	if err != nil {
		return nil, err
	}
	info, err := c.ReadHeaderAt(r, off, size)
	if err != nil {
		return nil, err
	}
	if info.Op != OpBagHeader {
		return nil, bagerr.Malformed(off, "expected bag_header record, got %s", info.Op)
	}
	return DecodeBagHeader(info.Header, info.End())
}

// EncodeBagHeader builds a bag header record padded with spaces to
// BagHeaderSize bytes, counting the version line.
func (c *RecordCodec) EncodeBagHeader(indexPos uint64, connCount, chunkCount uint32) []byte {
	fields := []Field{
		OpField(OpBagHeader),
		Uint64Field(FieldIndexPos, indexPos),
		Uint32Field(FieldConnCount, connCount),
		Uint32Field(FieldChunkCount, chunkCount),
	}
	header := c.EncodeHeader(fields)
	pad := BagHeaderSize - len(VersionLine) - 2*lengthSize - len(header)
	if pad < 0 {
		pad = 0
	}
	return c.Encode(fields, bytes.Repeat([]byte{' '}, pad))
}
