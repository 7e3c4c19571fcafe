// Package bagtest builds bag files in memory for tests.
package bagtest

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ssargent/frost/pkg/codec"
	"github.com/ssargent/frost/pkg/compression"
	"github.com/ssargent/frost/pkg/index"
)

// Message is one message to write.
type Message struct {
	Conn uint32
	Time codec.Time
	Data []byte
}

// Msg is shorthand for a Message.
func Msg(conn uint32, t codec.Time, data []byte) Message {
	return Message{Conn: conn, Time: t, Data: data}
}

type chunkDef struct {
	compression string
	messages    []Message
}

// Builder accumulates connections and chunks and lays them out as a bag.
type Builder struct {
	codec    *codec.RecordCodec
	registry *compression.Registry
	conns    []index.Connection
	chunks   []chunkDef
}

// New creates an empty builder.
func New() *Builder {
	return &Builder{
		codec:    codec.NewRecordCodec(),
		registry: compression.Default(),
	}
}

// WithRegistry sets the registry used to compress chunks.
func (b *Builder) WithRegistry(r *compression.Registry) *Builder {
	b.registry = r
	return b
}

// AddConnection registers a connection on topic with message type typ and
// returns its id.
func (b *Builder) AddConnection(topic, typ string) uint32 {
	sum := md5.Sum([]byte(typ))
	return b.AddConnectionDef(index.Connection{
		Topic:             topic,
		Type:              typ,
		MD5Sum:            hex.EncodeToString(sum[:]),
		MessageDefinition: "# " + typ + "\nstring data\n",
	})
}

// AddConnectionDef registers a fully specified connection. The ID field is
// ignored and assigned sequentially.
func (b *Builder) AddConnectionDef(conn index.Connection) uint32 {
	conn.ID = uint32(len(b.conns))
	b.conns = append(b.conns, conn)
	return conn.ID
}

// AddChunk appends a chunk holding msgs, compressed with the named codec.
func (b *Builder) AddChunk(compressionName string, msgs ...Message) *Builder {
	b.chunks = append(b.chunks, chunkDef{compression: compressionName, messages: msgs})
	return b
}

// Fixture is a built bag together with what a reader should report for it.
type Fixture struct {
	Data []byte
	// ChunkOffsets holds the offset of each chunk record.
	ChunkOffsets []int64
	// IndexPos is the offset of the index section, or 0 when unindexed.
	IndexPos int64
	// Messages lists every message in expected read order.
	Messages []Message
	// Connections is indexed by connection id.
	Connections []index.Connection
}

// Topic returns the topic of a connection id.
func (f *Fixture) Topic(conn uint32) string {
	return f.Connections[conn].Topic
}

// Build lays out an indexed bag.
func (b *Builder) Build() (*Fixture, error) {
	return b.build(true)
}

// BuildUnindexed lays out a bag as left by an interrupted recording: a zero
// index_pos and no index records.
func (b *Builder) BuildUnindexed() (*Fixture, error) {
	return b.build(false)
}

// MustBuild is Build for tests.
func (b *Builder) MustBuild(t testing.TB) *Fixture {
	t.Helper()
	f, err := b.Build()
	if err != nil {
		t.Fatalf("building bag: %v", err)
	}
	return f
}

// MustBuildUnindexed is BuildUnindexed for tests.
func (b *Builder) MustBuildUnindexed(t testing.TB) *Fixture {
	t.Helper()
	f, err := b.BuildUnindexed()
	if err != nil {
		t.Fatalf("building unindexed bag: %v", err)
	}
	return f
}

type chunkSummary struct {
	pos        int64
	start, end codec.Time
	counts     map[uint32]uint32
}

func (b *Builder) build(indexed bool) (*Fixture, error) {
	f := &Fixture{Connections: append([]index.Connection(nil), b.conns...)}
	body := []byte(codec.VersionLine)
	// Placeholder, rewritten once the index position is known.
	body = append(body, b.codec.EncodeBagHeader(0, 0, 0)...)

	written := make(map[uint32]bool)
	var summaries []chunkSummary
	for _, c := range b.chunks {
		var payload []byte
		entries := make(map[uint32][]index.Entry)
		sum := chunkSummary{counts: make(map[uint32]uint32)}
		for i, m := range c.messages {
			if int(m.Conn) >= len(b.conns) {
				return nil, fmt.Errorf("message references unknown connection %d", m.Conn)
			}
			if !written[m.Conn] {
				payload = append(payload, b.connectionRecord(b.conns[m.Conn])...)
				written[m.Conn] = true
			}
			entries[m.Conn] = append(entries[m.Conn], index.Entry{Time: m.Time, Offset: uint32(len(payload))})
			payload = append(payload, b.codec.Encode([]codec.Field{
				codec.OpField(codec.OpMessageData),
				codec.Uint32Field(codec.FieldConn, m.Conn),
				codec.TimeField(codec.FieldTime, m.Time),
			}, m.Data)...)

			if i == 0 || m.Time.Before(sum.start) {
				sum.start = m.Time
			}
			if i == 0 || m.Time.After(sum.end) {
				sum.end = m.Time
			}
			sum.counts[m.Conn]++
		}

		compressed, err := b.registry.Compress(c.compression, payload)
		if err != nil {
			return nil, fmt.Errorf("compressing chunk with %s: %w", c.compression, err)
		}
		sum.pos = int64(len(body))
		f.ChunkOffsets = append(f.ChunkOffsets, sum.pos)
		body = append(body, b.codec.Encode([]codec.Field{
			codec.OpField(codec.OpChunk),
			codec.StringField(codec.FieldCompression, c.compression),
			codec.Uint32Field(codec.FieldSize, uint32(len(payload))),
		}, compressed)...)

		if indexed {
			for _, conn := range sortedKeys(entries) {
				list := entries[conn]
				data := make([]byte, 0, len(list)*(codec.TimeSize+4))
				for _, e := range list {
					var buf [codec.TimeSize + 4]byte
					codec.PutTime(buf[:], e.Time)
					binary.LittleEndian.PutUint32(buf[codec.TimeSize:], e.Offset)
					data = append(data, buf[:]...)
				}
				body = append(body, b.codec.Encode([]codec.Field{
					codec.OpField(codec.OpIndexData),
					codec.Uint32Field(codec.FieldVer, 1),
					codec.Uint32Field(codec.FieldConn, conn),
					codec.Uint32Field(codec.FieldCount, uint32(len(list))),
				}, data)...)
			}
		}
		summaries = append(summaries, sum)
		f.Messages = append(f.Messages, readOrder(c.messages)...)
	}

	if !indexed {
		f.Data = body
		return f, nil
	}

	f.IndexPos = int64(len(body))
	for _, conn := range b.conns {
		body = append(body, b.connectionRecord(conn)...)
	}
	for _, s := range summaries {
		conns := sortedKeys(s.counts)
		data := make([]byte, 0, len(conns)*8)
		for _, conn := range conns {
			var buf [8]byte
			binary.LittleEndian.PutUint32(buf[:], conn)
			binary.LittleEndian.PutUint32(buf[4:], s.counts[conn])
			data = append(data, buf[:]...)
		}
		body = append(body, b.codec.Encode([]codec.Field{
			codec.OpField(codec.OpChunkInfo),
			codec.Uint32Field(codec.FieldVer, 1),
			codec.Uint64Field(codec.FieldChunkPos, uint64(s.pos)),
			codec.TimeField(codec.FieldStartTime, s.start),
			codec.TimeField(codec.FieldEndTime, s.end),
			codec.Uint32Field(codec.FieldCount, uint32(len(conns))),
		}, data)...)
	}

	header := b.codec.EncodeBagHeader(uint64(f.IndexPos), uint32(len(b.conns)), uint32(len(b.chunks)))
	copy(body[len(codec.VersionLine):], header)
	f.Data = body
	return f, nil
}

func (b *Builder) connectionRecord(conn index.Connection) []byte {
	fields := []codec.Field{
		codec.StringField(codec.FieldTopic, conn.Topic),
		codec.StringField(codec.FieldType, conn.Type),
		codec.StringField(codec.FieldMD5Sum, conn.MD5Sum),
		codec.StringField(codec.FieldMsgDef, conn.MessageDefinition),
	}
	if conn.CallerID != "" {
		fields = append(fields, codec.StringField(codec.FieldCallerID, conn.CallerID))
	}
	if conn.Latching {
		fields = append(fields, codec.StringField(codec.FieldLatching, "1"))
	}
	return b.codec.Encode([]codec.Field{
		codec.OpField(codec.OpConnection),
		codec.Uint32Field(codec.FieldConn, conn.ID),
		codec.StringField(codec.FieldTopic, conn.Topic),
	}, b.codec.EncodeHeader(fields))
}

// readOrder returns msgs sorted by time, keeping write order for ties.
func readOrder(msgs []Message) []Message {
	out := append([]Message(nil), msgs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

func sortedKeys[V any](m map[uint32]V) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// WriteFile writes data to name under dir and returns the path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
