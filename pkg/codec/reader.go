package codec

import (
	"encoding/binary"
	"io"

	"github.com/ssargent/frost/pkg/bagerr"
)

// RecordInfo describes a record whose header has been read but whose data
// has not. It lets callers skip large payloads such as chunk data.
type RecordInfo struct {
	Op     Op
	Header Header
	// Offset is the absolute offset of the record's first byte.
	Offset int64
	// DataOffset is the absolute offset of the first data byte.
	DataOffset int64
	// DataLen is the length of the data block.
	DataLen uint32
}

// End returns the absolute offset just past the record.
func (ri *RecordInfo) End() int64 {
	return ri.DataOffset + int64(ri.DataLen)
}

// ReadHeaderAt reads the record header at off from r without reading its
// data block. size is the total size of r; declared lengths beyond it are
// reported as malformed.
func (c *RecordCodec) ReadHeaderAt(r io.ReaderAt, off, size int64) (*RecordInfo, error) {
	var lenBuf [lengthSize]byte
	if off+lengthSize > size {
		return nil, bagerr.Malformed(off, "data too short for record header length")
	}
	if err := readFullAt(r, lenBuf[:], off); err != nil {
		return nil, err
	}
	headerLen := int64(binary.LittleEndian.Uint32(lenBuf[:]))
	headerStart := off + lengthSize
	if headerLen+lengthSize > size-headerStart {
		return nil, bagerr.Malformed(off, "header length %d exceeds remaining %d bytes", headerLen, size-headerStart)
	}

	// Read the header block and the data length in one call.
	buf := make([]byte, headerLen+lengthSize)
	if err := readFullAt(r, buf, headerStart); err != nil {
		return nil, err
	}
	dataLen := binary.LittleEndian.Uint32(buf[headerLen:])
	dataOffset := headerStart + headerLen + lengthSize
	if int64(dataLen) > size-dataOffset {
		return nil, bagerr.Malformed(headerStart+headerLen, "data length %d exceeds remaining %d bytes", dataLen, size-dataOffset)
	}

	header, err := ParseHeader(buf[:headerLen], headerStart)
	if err != nil {
		return nil, err
	}
	op, err := header.Op()
	if err != nil {
		return nil, bagerr.Malformed(off, "record without a valid op field")
	}
	info := &RecordInfo{
		Op:         op,
		Header:     header,
		Offset:     off,
		DataOffset: dataOffset,
		DataLen:    dataLen,
	}
	rec := Record{Op: op, Header: header, Offset: off}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

// ReadAt reads the complete record at off from r.
func (c *RecordCodec) ReadAt(r io.ReaderAt, off, size int64) (*Record, error) {
	info, err := c.ReadHeaderAt(r, off, size)
	if err != nil {
		return nil, err
	}
	data, err := ReadData(r, info)
	if err != nil {
		return nil, err
	}
	return &Record{
		Op:     info.Op,
		Header: info.Header,
		Data:   data,
		Offset: info.Offset,
		Size:   int(info.End() - info.Offset),
	}, nil
}

// ReadData reads the data block described by info.
func ReadData(r io.ReaderAt, info *RecordInfo) ([]byte, error) {
	data := make([]byte, info.DataLen)
	if err := readFullAt(r, data, info.DataOffset); err != nil {
		return nil, err
	}
	return data, nil
}

func readFullAt(r io.ReaderAt, p []byte, off int64) error {
	n, err := r.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return bagerr.IO(err, off, "reading record")
}

// Cursor walks the records of an in-memory buffer in order. Records it
// returns borrow from the buffer.
type Cursor struct {
	codec *RecordCodec
	buf   []byte
	pos   int
	base  int64
}

// NewCursor creates a cursor over buf. base is the absolute offset of buf[0]
// (the chunk data offset for decompressed chunk buffers, 0 for a whole file).
func NewCursor(buf []byte, base int64) *Cursor {
	return &Cursor{codec: NewRecordCodec(), buf: buf, base: base}
}

// Next decodes the record at the cursor and advances past it. It returns
// io.EOF once the buffer is exhausted. After any other error the cursor
// position is unspecified.
func (c *Cursor) Next() (*Record, error) {
	if c.pos >= len(c.buf) {
		return nil, io.EOF
	}
	rec, err := c.codec.Decode(c.buf[c.pos:], c.base+int64(c.pos))
	if err != nil {
		return nil, err
	}
	c.pos += rec.Size
	return rec, nil
}

// Pos returns the cursor position relative to the start of the buffer.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Seek moves the cursor to pos, relative to the start of the buffer.
func (c *Cursor) Seek(pos int) error {
	if pos < 0 || pos > len(c.buf) {
		return bagerr.Malformed(c.base+int64(pos), "seek outside of buffer of %d bytes", len(c.buf))
	}
	c.pos = pos
	return nil
}
