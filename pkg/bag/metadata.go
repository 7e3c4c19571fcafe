package bag

import (
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/ssargent/frost/pkg/bagerr"
	"github.com/ssargent/frost/pkg/codec"
	"github.com/ssargent/frost/pkg/index"
)

// CompressionInfo aggregates the chunks using one codec.
type CompressionInfo struct {
	Name             string `json:"name" yaml:"name" msgpack:"name"`
	ChunkCount       int    `json:"chunk_count" yaml:"chunk_count" msgpack:"chunk_count"`
	CompressedSize   uint64 `json:"compressed_size" yaml:"compressed_size" msgpack:"compressed_size"`
	UncompressedSize uint64 `json:"uncompressed_size" yaml:"uncompressed_size" msgpack:"uncompressed_size"`
}

// Ratio returns compressed size over uncompressed size, or 0 when nothing
// was compressed.
func (c CompressionInfo) Ratio() float64 {
	if c.UncompressedSize == 0 {
		return 0
	}
	return float64(c.CompressedSize) / float64(c.UncompressedSize)
}

// TopicType pairs a topic with its message type.
type TopicType struct {
	Topic string `json:"topic" yaml:"topic" msgpack:"topic"`
	Type  string `json:"type" yaml:"type" msgpack:"type"`
}

// Metadata summarizes a bag. The exported fields are set when the bag is
// opened and never change; aggregates are computed on first use.
type Metadata struct {
	// FilePath is the absolute path of the bag, empty for in-memory sources.
	FilePath    string                       `json:"file_path,omitempty" yaml:"file_path,omitempty" msgpack:"file_path"`
	Version     string                       `json:"version" yaml:"version" msgpack:"version"`
	NumBytes    uint64                       `json:"num_bytes" yaml:"num_bytes" msgpack:"num_bytes"`
	IndexMode   index.Mode                   `json:"index_mode" yaml:"index_mode" msgpack:"index_mode"`
	Connections map[uint32]*index.Connection `json:"connections" yaml:"connections" msgpack:"connections"`
	Chunks      []index.ChunkInfo            `json:"chunks" yaml:"chunks" msgpack:"chunks"`

	once sync.Once
	agg  aggregates
}

type aggregates struct {
	topics         []string
	types          []string
	topicsAndTypes []TopicType
	messageCount   uint64
	topicCounts    map[string]uint64
	connCounts     map[uint32]uint64
	compression    []CompressionInfo
	start, end     codec.Time
	hasBounds      bool
}

func newMetadata(cat *index.Catalog, path string, size int64) *Metadata {
	return &Metadata{
		FilePath:    path,
		Version:     codec.Version,
		NumBytes:    uint64(size),
		IndexMode:   cat.Mode,
		Connections: cat.Connections,
		Chunks:      cat.Chunks,
	}
}

func (m *Metadata) aggregates() *aggregates {
	m.once.Do(m.compute)
	return &m.agg
}

func (m *Metadata) compute() {
	a := aggregates{
		topicCounts: make(map[string]uint64),
		connCounts:  make(map[uint32]uint64),
	}

	ids := make([]uint32, 0, len(m.Connections))
	for id := range m.Connections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	topics := make(map[string]bool)
	types := make(map[string]bool)
	for _, id := range ids {
		c := m.Connections[id]
		if !topics[c.Topic] {
			topics[c.Topic] = true
			a.topics = append(a.topics, c.Topic)
			// The lowest connection id decides the type of a shared topic.
			a.topicsAndTypes = append(a.topicsAndTypes, TopicType{Topic: c.Topic, Type: c.Type})
			a.topicCounts[c.Topic] = 0
		}
		if !types[c.Type] {
			types[c.Type] = true
			a.types = append(a.types, c.Type)
		}
	}
	sort.Strings(a.topics)
	sort.Strings(a.types)
	sort.Slice(a.topicsAndTypes, func(i, j int) bool { return a.topicsAndTypes[i].Topic < a.topicsAndTypes[j].Topic })

	byCodec := make(map[string]*CompressionInfo)
	for i := range m.Chunks {
		ci := &m.Chunks[i]
		for id, n := range ci.ConnectionCounts {
			a.messageCount += uint64(n)
			a.connCounts[id] += uint64(n)
			if c, ok := m.Connections[id]; ok {
				a.topicCounts[c.Topic] += uint64(n)
			}
		}

		info, ok := byCodec[ci.Compression]
		if !ok {
			info = &CompressionInfo{Name: ci.Compression}
			byCodec[ci.Compression] = info
		}
		info.ChunkCount++
		info.CompressedSize += uint64(ci.CompressedSize)
		info.UncompressedSize += uint64(ci.UncompressedSize)

		if ci.MessageCount() == 0 {
			continue
		}
		if !a.hasBounds || ci.StartTime.Before(a.start) {
			a.start = ci.StartTime
		}
		if !a.hasBounds || ci.EndTime.After(a.end) {
			a.end = ci.EndTime
		}
		a.hasBounds = true
	}

	for _, info := range byCodec {
		a.compression = append(a.compression, *info)
	}
	sort.Slice(a.compression, func(i, j int) bool { return a.compression[i].Name < a.compression[j].Name })

	m.agg = a
}

// Topics returns the distinct topic names, sorted.
func (m *Metadata) Topics() []string {
	return append([]string(nil), m.aggregates().topics...)
}

// Types returns the distinct message type names, sorted.
func (m *Metadata) Types() []string {
	return append([]string(nil), m.aggregates().types...)
}

// TopicsAndTypes returns one topic/type pair per distinct topic, sorted by
// topic.
func (m *Metadata) TopicsAndTypes() []TopicType {
	return append([]TopicType(nil), m.aggregates().topicsAndTypes...)
}

// MessageCount returns the number of messages in the bag.
func (m *Metadata) MessageCount() uint64 {
	return m.aggregates().messageCount
}

// TopicMessageCounts returns message counts by topic. Connections sharing a
// topic are summed; every topic appears, even with zero messages.
func (m *Metadata) TopicMessageCounts() map[string]uint64 {
	return copyMap(m.aggregates().topicCounts)
}

// ConnectionMessageCounts returns message counts by connection id.
func (m *Metadata) ConnectionMessageCounts() map[uint32]uint64 {
	return copyMap(m.aggregates().connCounts)
}

// CompressionInfo returns one entry per codec used by any chunk, sorted by
// codec name.
func (m *Metadata) CompressionInfo() []CompressionInfo {
	return append([]CompressionInfo(nil), m.aggregates().compression...)
}

// StartTime returns the earliest message time. It fails with
// bagerr.ErrNoChunks if the bag has no messages.
func (m *Metadata) StartTime() (codec.Time, error) {
	a := m.aggregates()
	if !a.hasBounds {
		return codec.Time{}, bagerr.ErrNoChunks
	}
	return a.start, nil
}

// EndTime returns the latest message time. It fails with
// bagerr.ErrNoChunks if the bag has no messages.
func (m *Metadata) EndTime() (codec.Time, error) {
	a := m.aggregates()
	if !a.hasBounds {
		return codec.Time{}, bagerr.ErrNoChunks
	}
	return a.end, nil
}

// Duration returns EndTime - StartTime, or 0 for a bag without messages.
func (m *Metadata) Duration() time.Duration {
	a := m.aggregates()
	if !a.hasBounds {
		return 0
	}
	return a.end.Sub(a.start)
}

// ChunkCount returns the number of chunks.
func (m *Metadata) ChunkCount() int {
	return len(m.Chunks)
}

// UncompressedSize returns the summed uncompressed size of all chunks.
func (m *Metadata) UncompressedSize() uint64 {
	var n uint64
	for _, info := range m.aggregates().compression {
		n += info.UncompressedSize
	}
	return n
}

// ConnectionsForTopic returns the connections on topic, ordered by id.
func (m *Metadata) ConnectionsForTopic(topic string) []*index.Connection {
	var conns []*index.Connection
	for _, c := range m.Connections {
		if c.Topic == topic {
			conns = append(conns, c)
		}
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].ID < conns[j].ID })
	return conns
}

// Equivalent reports whether m and o describe the same recording content:
// version, size, connections, counts, time bounds and compression. The
// file path and index mode are not compared.
func (m *Metadata) Equivalent(o *Metadata) bool {
	if m.Version != o.Version || m.NumBytes != o.NumBytes {
		return false
	}
	if !reflect.DeepEqual(m.Connections, o.Connections) {
		return false
	}
	a, b := m.aggregates(), o.aggregates()
	return reflect.DeepEqual(a.topics, b.topics) &&
		reflect.DeepEqual(a.types, b.types) &&
		reflect.DeepEqual(a.topicsAndTypes, b.topicsAndTypes) &&
		a.messageCount == b.messageCount &&
		reflect.DeepEqual(a.topicCounts, b.topicCounts) &&
		reflect.DeepEqual(a.connCounts, b.connCounts) &&
		reflect.DeepEqual(a.compression, b.compression) &&
		a.hasBounds == b.hasBounds &&
		a.start == b.start &&
		a.end == b.end
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
