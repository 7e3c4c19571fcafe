package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/ssargent/frost/pkg/bagerr"
)

func messageFields(conn uint32, t Time) []Field {
	return []Field{
		OpField(OpMessageData),
		Uint32Field(FieldConn, conn),
		TimeField(FieldTime, t),
	}
}

func TestRecordCodec_EncodeDecodeRoundTrip(t *testing.T) {
	codec := NewRecordCodec()

	testCases := []struct {
		name   string
		fields []Field
		data   []byte
		op     Op
	}{
		{
			name:   "message data",
			fields: messageFields(3, NewTime(10, 500)),
			data:   []byte("payload"),
			op:     OpMessageData,
		},
		{
			name:   "empty data",
			fields: messageFields(0, NewTime(1, 0)),
			data:   []byte{},
			op:     OpMessageData,
		},
		{
			name: "chunk header",
			fields: []Field{
				OpField(OpChunk),
				StringField(FieldCompression, "lz4"),
				Uint32Field(FieldSize, 1234),
			},
			data: bytes.Repeat([]byte{0xAB}, 64),
			op:   OpChunk,
		},
		{
			name: "connection with value containing '='",
			fields: []Field{
				OpField(OpConnection),
				Uint32Field(FieldConn, 7),
				StringField(FieldTopic, "/a=b"),
			},
			data: []byte("type=std_msgs/String"),
			op:   OpConnection,
		},
		{
			name:   "large data",
			fields: messageFields(1, NewTime(5, 5)),
			data:   bytes.Repeat([]byte("v"), 10240),
			op:     OpMessageData,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := codec.Encode(tc.fields, tc.data)

			record, err := codec.Decode(encoded, 100)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if record.Op != tc.op {
				t.Errorf("Op mismatch: got %s, want %s", record.Op, tc.op)
			}
			if !bytes.Equal(record.Data, tc.data) {
				t.Errorf("Data mismatch: got %d bytes, want %d bytes", len(record.Data), len(tc.data))
			}
			if record.Size != len(encoded) {
				t.Errorf("Size mismatch: got %d, want %d", record.Size, len(encoded))
			}
			if record.Offset != 100 {
				t.Errorf("Offset mismatch: got %d, want 100", record.Offset)
			}
			for _, f := range tc.fields {
				got, err := record.Header.Bytes(f.Name)
				if err != nil {
					t.Fatalf("missing field %q: %v", f.Name, err)
				}
				if !bytes.Equal(got, f.Value) {
					t.Errorf("field %q mismatch: got %x, want %x", f.Name, got, f.Value)
				}
			}
		})
	}
}

func TestRecordCodec_TypedFields(t *testing.T) {
	codec := NewRecordCodec()
	encoded := codec.Encode([]Field{
		OpField(OpChunkInfo),
		Uint32Field(FieldVer, 1),
		Uint64Field(FieldChunkPos, 1<<40),
		TimeField(FieldStartTime, NewTime(100, 1)),
		TimeField(FieldEndTime, NewTime(200, 2)),
		Uint32Field(FieldCount, 2),
	}, nil)

	record, err := codec.Decode(encoded, 0)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	pos, err := record.Header.Uint64(FieldChunkPos)
	if err != nil || pos != 1<<40 {
		t.Errorf("chunk_pos: got %d (%v), want %d", pos, err, uint64(1<<40))
	}
	start, err := record.Header.Time(FieldStartTime)
	if err != nil || start != NewTime(100, 1) {
		t.Errorf("start_time: got %v (%v)", start, err)
	}

	// A uint32 field read as uint64 is a size mismatch.
	if _, err := record.Header.Uint64(FieldVer); !errors.Is(err, bagerr.ErrMalformedRecord) {
		t.Errorf("expected malformed record for wrong-width field, got %v", err)
	}
	if _, err := record.Header.Text("missing"); !errors.Is(err, bagerr.ErrMalformedRecord) {
		t.Errorf("expected malformed record for missing field, got %v", err)
	}
	if got := record.Header.TextOr("missing", "dflt"); got != "dflt" {
		t.Errorf("TextOr: got %q", got)
	}
}

func TestRecordCodec_DecodeErrors(t *testing.T) {
	codec := NewRecordCodec()
	valid := codec.Encode(messageFields(1, NewTime(1, 1)), []byte("data"))

	headerLenTooBig := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(headerLenTooBig, 1<<20)

	dataLenTooBig := append([]byte(nil), valid...)
	headerLen := binary.LittleEndian.Uint32(valid)
	binary.LittleEndian.PutUint32(dataLenTooBig[4+headerLen:], 1<<20)

	fieldLenTooBig := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(fieldLenTooBig[4:], 1<<20)

	testCases := []struct {
		name string
		data []byte
	}{
		{name: "too short", data: []byte{0x01, 0x02, 0x03}},
		{name: "header length exceeds input", data: headerLenTooBig},
		{name: "data length exceeds input", data: dataLenTooBig},
		{name: "field length exceeds header", data: fieldLenTooBig},
		{name: "truncated data", data: valid[:len(valid)-1]},
		{name: "missing op", data: codec.Encode([]Field{Uint32Field(FieldConn, 1)}, nil)},
		{name: "missing required field", data: codec.Encode([]Field{OpField(OpMessageData), Uint32Field(FieldConn, 1)}, nil)},
		{name: "field without separator", data: func() []byte {
			b := codec.Encode([]Field{OpField(OpChunk), StringField(FieldCompression, "none"), Uint32Field(FieldSize, 0)}, nil)
			// Replace the '=' of the first field with another byte.
			b[4+4+2] = '_'
			return b
		}()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := codec.Decode(tc.data, 0)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, bagerr.ErrMalformedRecord) {
				t.Errorf("expected malformed record error, got %v", err)
			}
		})
	}
}

func TestRecordCodec_ReadHeaderAt(t *testing.T) {
	codec := NewRecordCodec()
	first := codec.Encode([]Field{OpField(OpChunk), StringField(FieldCompression, "none"), Uint32Field(FieldSize, 4)}, []byte("abcd"))
	second := codec.Encode(messageFields(2, NewTime(3, 4)), []byte("xyz"))
	file := append(append([]byte(nil), first...), second...)
	r := bytes.NewReader(file)

	info, err := codec.ReadHeaderAt(r, 0, int64(len(file)))
	if err != nil {
		t.Fatalf("ReadHeaderAt failed: %v", err)
	}
	if info.Op != OpChunk || info.DataLen != 4 || info.End() != int64(len(first)) {
		t.Errorf("unexpected info: %+v", info)
	}
	data, err := ReadData(r, info)
	if err != nil || string(data) != "abcd" {
		t.Errorf("ReadData: got %q (%v)", data, err)
	}

	rec, err := codec.ReadAt(r, info.End(), int64(len(file)))
	if err != nil {
		t.Fatalf("ReadAt failed: %v", err)
	}
	if rec.Op != OpMessageData || string(rec.Data) != "xyz" || rec.End() != int64(len(file)) {
		t.Errorf("unexpected record: op=%s data=%q end=%d", rec.Op, rec.Data, rec.End())
	}

	if _, err := codec.ReadHeaderAt(r, 0, int64(len(first))-1); !errors.Is(err, bagerr.ErrMalformedRecord) {
		t.Errorf("expected malformed record when size truncates data, got %v", err)
	}
}

func TestCursor_Next(t *testing.T) {
	codec := NewRecordCodec()
	var buf []byte
	for i := 0; i < 5; i++ {
		buf = append(buf, codec.Encode(messageFields(uint32(i), NewTime(uint32(i), 0)), []byte{byte(i)})...)
	}

	cur := NewCursor(buf, 1000)
	count := 0
	for {
		rec, err := cur.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		conn, _ := rec.Header.Uint32(FieldConn)
		if conn != uint32(count) {
			t.Errorf("record %d: conn %d", count, conn)
		}
		if rec.Offset < 1000 {
			t.Errorf("record %d: offset %d not absolute", count, rec.Offset)
		}
		count++
	}
	if count != 5 {
		t.Errorf("expected 5 records, got %d", count)
	}
	if cur.Remaining() != 0 {
		t.Errorf("expected empty cursor, %d bytes remain", cur.Remaining())
	}
	if err := cur.Seek(len(buf) + 1); err == nil {
		t.Error("expected seek past the end to fail")
	}
}

func TestVersion(t *testing.T) {
	testCases := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{name: "v2.0", data: []byte(VersionLine + "rest")},
		{name: "v1.2", data: []byte("#ROSBAG V1.2\n"), wantErr: true},
		{name: "garbage", data: []byte("PK\x03\x04 not a bag"), wantErr: true},
		{name: "truncated", data: []byte("#ROS"), wantErr: true},
		{name: "empty", data: nil, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			off, err := ReadVersion(bytes.NewReader(tc.data), int64(len(tc.data)))
			if tc.wantErr {
				if !errors.Is(err, bagerr.ErrInvalidFormat) {
					t.Errorf("expected invalid format, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if off != int64(len(VersionLine)) {
				t.Errorf("offset: got %d", off)
			}
		})
	}
}

func TestBagHeader_RoundTrip(t *testing.T) {
	codec := NewRecordCodec()
	file := append([]byte(VersionLine), codec.EncodeBagHeader(9000, 2, 3)...)
	if len(file) != BagHeaderSize {
		t.Errorf("bag header should pad to %d bytes, got %d", BagHeaderSize, len(file))
	}

	bh, err := codec.ReadBagHeader(bytes.NewReader(file), int64(len(file)))
	if err != nil {
		t.Fatalf("ReadBagHeader failed: %v", err)
	}
	if bh.IndexPos != 9000 || bh.ConnCount != 2 || bh.ChunkCount != 3 || bh.End != BagHeaderSize {
		t.Errorf("unexpected bag header: %+v", bh)
	}
}
