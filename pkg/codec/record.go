package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ssargent/frost/pkg/bagerr"
)

// Op identifies the kind of a record through its required "op" header field.
type Op byte

const (
	OpMessageData Op = 0x02
	OpBagHeader   Op = 0x03
	OpIndexData   Op = 0x04
	OpChunk       Op = 0x05
	OpChunkInfo   Op = 0x06
	OpConnection  Op = 0x07
)

func (o Op) String() string {
	switch o {
	case OpMessageData:
		return "message_data"
	case OpBagHeader:
		return "bag_header"
	case OpIndexData:
		return "index_data"
	case OpChunk:
		return "chunk"
	case OpChunkInfo:
		return "chunk_info"
	case OpConnection:
		return "connection"
	default:
		return fmt.Sprintf("op(0x%02x)", byte(o))
	}
}

// Header field names.
const (
	FieldOp          = "op"
	FieldIndexPos    = "index_pos"
	FieldConnCount   = "conn_count"
	FieldChunkCount  = "chunk_count"
	FieldConn        = "conn"
	FieldTime        = "time"
	FieldVer         = "ver"
	FieldCount       = "count"
	FieldCompression = "compression"
	FieldSize        = "size"
	FieldChunkPos    = "chunk_pos"
	FieldStartTime   = "start_time"
	FieldEndTime     = "end_time"
	FieldTopic       = "topic"
	FieldType        = "type"
	FieldMD5Sum      = "md5sum"
	FieldMsgDef      = "message_definition"
	FieldCallerID    = "callerid"
	FieldLatching    = "latching"
)

// requiredFields lists the header fields each op must carry.
var requiredFields = map[Op][]string{
	OpMessageData: {FieldConn, FieldTime},
	OpBagHeader:   {FieldIndexPos, FieldConnCount, FieldChunkCount},
	OpIndexData:   {FieldVer, FieldConn, FieldCount},
	OpChunk:       {FieldCompression, FieldSize},
	OpChunkInfo:   {FieldVer, FieldChunkPos, FieldStartTime, FieldEndTime, FieldCount},
	OpConnection:  {FieldConn, FieldTopic},
}

// lengthSize is the size of every length prefix in the format.
const lengthSize = 4

// Field is one name=value header field in encoding order.
type Field struct {
	Name  string
	Value []byte
}

// StringField builds a string-valued field.
func StringField(name, value string) Field {
	return Field{Name: name, Value: []byte(value)}
}

// Uint32Field builds a little-endian uint32 field.
func Uint32Field(name string, v uint32) Field {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return Field{Name: name, Value: b}
}

// Uint64Field builds a little-endian uint64 field.
func Uint64Field(name string, v uint64) Field {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return Field{Name: name, Value: b}
}

// TimeField builds a Time-valued field.
func TimeField(name string, t Time) Field {
	b := make([]byte, TimeSize)
	PutTime(b, t)
	return Field{Name: name, Value: b}
}

// OpField builds the op field.
func OpField(op Op) Field {
	return Field{Name: FieldOp, Value: []byte{byte(op)}}
}

// Header holds the decoded fields of a header block. Values are zero-copy
// slices of the decoded buffer.
type Header struct {
	fields map[string][]byte
	// offset is the absolute offset of the header block, for error reporting.
	offset int64
}

// ParseHeader decodes a header block: a sequence of length-prefixed
// name=value fields filling buf exactly.
func ParseHeader(buf []byte, offset int64) (Header, error) {
	h := Header{fields: make(map[string][]byte), offset: offset}
	pos := 0
	for pos < len(buf) {
		if len(buf)-pos < lengthSize {
			return Header{}, bagerr.Malformed(offset+int64(pos), "truncated header field length")
		}
		fieldLen := int(binary.LittleEndian.Uint32(buf[pos:]))
		pos += lengthSize
		if fieldLen < 0 || fieldLen > len(buf)-pos {
			return Header{}, bagerr.Malformed(offset+int64(pos), "header field length %d exceeds remaining %d bytes", fieldLen, len(buf)-pos)
		}
		field := buf[pos : pos+fieldLen]
		sep := bytes.IndexByte(field, '=')
		if sep < 0 {
			return Header{}, bagerr.Malformed(offset+int64(pos), "header field without '='")
		}
		h.fields[string(field[:sep])] = field[sep+1:]
		pos += fieldLen
	}
	return h, nil
}

// Has reports whether the field is present.
func (h Header) Has(name string) bool {
	_, ok := h.fields[name]
	return ok
}

// Names returns the field names in sorted order.
func (h Header) Names() []string {
	names := make([]string, 0, len(h.fields))
	for name := range h.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bytes returns the raw field value.
func (h Header) Bytes(name string) ([]byte, error) {
	v, ok := h.fields[name]
	if !ok {
		return nil, bagerr.Malformed(h.offset, "missing header field %q", name)
	}
	return v, nil
}

// Text returns a string-valued field.
func (h Header) Text(name string) (string, error) {
	v, err := h.Bytes(name)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// TextOr returns a string-valued field or def when it is absent.
func (h Header) TextOr(name, def string) string {
	if v, ok := h.fields[name]; ok {
		return string(v)
	}
	return def
}

// Uint32 returns a little-endian uint32 field.
func (h Header) Uint32(name string) (uint32, error) {
	v, err := h.sized(name, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(v), nil
}

// Uint64 returns a little-endian uint64 field.
func (h Header) Uint64(name string) (uint64, error) {
	v, err := h.sized(name, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(v), nil
}

// Time returns a Time field.
func (h Header) Time(name string) (Time, error) {
	v, err := h.sized(name, TimeSize)
	if err != nil {
		return Time{}, err
	}
	return DecodeTime(v), nil
}

// Op returns the op field.
func (h Header) Op() (Op, error) {
	v, err := h.sized(FieldOp, 1)
	if err != nil {
		return 0, err
	}
	return Op(v[0]), nil
}

func (h Header) sized(name string, n int) ([]byte, error) {
	v, err := h.Bytes(name)
	if err != nil {
		return nil, err
	}
	if len(v) != n {
		return nil, bagerr.Malformed(h.offset, "header field %q has %d bytes, want %d", name, len(v), n)
	}
	return v, nil
}

// Record is one decoded header+data unit.
type Record struct {
	Op     Op
	Header Header
	// Data is a zero-copy slice of the decoded buffer.
	Data []byte
	// Offset is the absolute offset of the record's first byte.
	Offset int64
	// Size is the encoded length of the record.
	Size int
}

// Validate checks that every field required by the record's op is present.
func (r *Record) Validate() error {
	for _, name := range requiredFields[r.Op] {
		if !r.Header.Has(name) {
			return bagerr.Malformed(r.Offset, "%s record missing required field %q", r.Op, name)
		}
	}
	return nil
}

// End returns the absolute offset just past the record.
func (r *Record) End() int64 {
	return r.Offset + int64(r.Size)
}

// RecordCodec handles serialization and deserialization of records.
//
// Format: [HeaderLen(4)][Header][DataLen(4)][Data], where Header is a run of
// [FieldLen(4)][name=value] fields. All lengths are little-endian.
type RecordCodec struct{}

// NewRecordCodec creates a new record codec instance
func NewRecordCodec() *RecordCodec {
	return &RecordCodec{}
}

// EncodeHeader serializes header fields into a header block.
func (c *RecordCodec) EncodeHeader(fields []Field) []byte {
	size := 0
	for _, f := range fields {
		size += lengthSize + len(f.Name) + 1 + len(f.Value)
	}
	buf := make([]byte, 0, size)
	var lenBuf [lengthSize]byte
	for _, f := range fields {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(f.Name)+1+len(f.Value)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, f.Name...)
		buf = append(buf, '=')
		buf = append(buf, f.Value...)
	}
	return buf
}

// Encode serializes header fields and data into a record.
func (c *RecordCodec) Encode(fields []Field, data []byte) []byte {
	header := c.EncodeHeader(fields)
	buf := make([]byte, lengthSize+len(header)+lengthSize+len(data))
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(header)))
	copy(buf[lengthSize:], header)
	binary.LittleEndian.PutUint32(buf[lengthSize+len(header):], uint32(len(data)))
	copy(buf[2*lengthSize+len(header):], data)
	return buf
}

// Decode deserializes the record at the start of buf. base is the absolute
// offset of buf[0], used for Record.Offset and error reporting.
func (c *RecordCodec) Decode(buf []byte, base int64) (*Record, error) {
	if len(buf) < lengthSize {
		return nil, bagerr.Malformed(base, "data too short for record header length: %d bytes", len(buf))
	}
	headerLen := int64(binary.LittleEndian.Uint32(buf))
	remaining := int64(len(buf)) - lengthSize
	if headerLen > remaining {
		return nil, bagerr.Malformed(base, "header length %d exceeds remaining %d bytes", headerLen, remaining)
	}
	headerStart := int64(lengthSize)
	dataLenPos := headerStart + headerLen
	if int64(len(buf))-dataLenPos < lengthSize {
		return nil, bagerr.Malformed(base+dataLenPos, "data too short for record data length")
	}
	dataLen := int64(binary.LittleEndian.Uint32(buf[dataLenPos:]))
	dataStart := dataLenPos + lengthSize
	if dataLen > int64(len(buf))-dataStart {
		return nil, bagerr.Malformed(base+dataLenPos, "data length %d exceeds remaining %d bytes", dataLen, int64(len(buf))-dataStart)
	}

	header, err := ParseHeader(buf[headerStart:dataLenPos], base+headerStart)
	if err != nil {
		return nil, err
	}
	return newRecord(header, buf[dataStart:dataStart+dataLen], base, int(dataStart+dataLen))
}

func newRecord(header Header, data []byte, offset int64, size int) (*Record, error) {
	op, err := header.Op()
	if err != nil {
		return nil, bagerr.Malformed(offset, "record without a valid op field")
	}
	r := &Record{
		Op:     op,
		Header: header,
		Data:   data,
		Offset: offset,
		Size:   size,
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}
