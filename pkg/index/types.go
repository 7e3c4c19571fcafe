// Package index builds the connection and chunk catalog of a bag.
//
// A Catalog is built either from the trailing index section (Indexed) or,
// when that section is absent or inconsistent, by decompressing every chunk
// and reconstructing the same information (Scanned). Both paths end with
// Verify, so callers see the same shape regardless of how it was built.
package index

import (
	"sort"

	"github.com/ssargent/frost/pkg/chunk"
	"github.com/ssargent/frost/pkg/codec"
)

// Mode records how a Catalog was built.
type Mode string

const (
	Indexed Mode = "indexed"
	Scanned Mode = "scanned"
)

// Connection is a topic registration. Several connections may share a topic.
type Connection struct {
	ID                uint32 `json:"id" yaml:"id" msgpack:"id"`
	Topic             string `json:"topic" yaml:"topic" msgpack:"topic"`
	Type              string `json:"type" yaml:"type" msgpack:"type"`
	MD5Sum            string `json:"md5sum" yaml:"md5sum" msgpack:"md5sum"`
	MessageDefinition string `json:"message_definition,omitempty" yaml:"message_definition,omitempty" msgpack:"message_definition"`
	CallerID          string `json:"callerid,omitempty" yaml:"callerid,omitempty" msgpack:"callerid"`
	Latching          bool   `json:"latching,omitempty" yaml:"latching,omitempty" msgpack:"latching"`
}

// ChunkInfo describes one chunk: where it lives, how it is compressed and
// which connections have messages in it.
type ChunkInfo struct {
	// Position is the absolute offset of the chunk record.
	Position         int64      `json:"position" yaml:"position" msgpack:"position"`
	DataOffset       int64      `json:"data_offset" yaml:"data_offset" msgpack:"data_offset"`
	Compression      string     `json:"compression" yaml:"compression" msgpack:"compression"`
	CompressedSize   uint32     `json:"compressed_size" yaml:"compressed_size" msgpack:"compressed_size"`
	UncompressedSize uint32     `json:"uncompressed_size" yaml:"uncompressed_size" msgpack:"uncompressed_size"`
	StartTime        codec.Time `json:"start_time" yaml:"start_time" msgpack:"start_time"`
	EndTime          codec.Time `json:"end_time" yaml:"end_time" msgpack:"end_time"`
	// ConnectionCounts maps connection id to its message count in the chunk.
	ConnectionCounts map[uint32]uint32 `json:"connection_counts" yaml:"connection_counts" msgpack:"connection_counts"`
}

// Location returns the chunk manager address of the chunk.
func (ci *ChunkInfo) Location() chunk.Location {
	return chunk.Location{
		Offset:           ci.Position,
		DataOffset:       ci.DataOffset,
		CompressedSize:   ci.CompressedSize,
		UncompressedSize: ci.UncompressedSize,
		Compression:      ci.Compression,
	}
}

// End returns the offset just past the chunk record.
func (ci *ChunkInfo) End() int64 {
	return ci.DataOffset + int64(ci.CompressedSize)
}

// MessageCount returns the number of messages in the chunk.
func (ci *ChunkInfo) MessageCount() uint64 {
	var n uint64
	for _, c := range ci.ConnectionCounts {
		n += uint64(c)
	}
	return n
}

// ConnectionIDs returns the ids of connections with messages in the chunk,
// in ascending order.
func (ci *ChunkInfo) ConnectionIDs() []uint32 {
	ids := make([]uint32, 0, len(ci.ConnectionCounts))
	for id := range ci.ConnectionCounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Entry locates one message inside a decompressed chunk.
type Entry struct {
	Time codec.Time
	// Offset is the position of the message record within the uncompressed
	// chunk payload.
	Offset uint32
}

// ChunkEntries holds the entries of one chunk, by connection id.
type ChunkEntries map[uint32][]Entry

// Catalog is the random-access view of a bag.
type Catalog struct {
	Mode   Mode
	Header *codec.BagHeader
	// Connections maps connection id to connection.
	Connections map[uint32]*Connection
	// Chunks are ordered by file offset.
	Chunks []ChunkInfo
	// Entries is parallel to Chunks.
	Entries []ChunkEntries
}

// MessageCount returns the number of messages across all chunks.
func (c *Catalog) MessageCount() uint64 {
	var n uint64
	for i := range c.Chunks {
		n += c.Chunks[i].MessageCount()
	}
	return n
}

// ConnectionIDs returns all connection ids in ascending order.
func (c *Catalog) ConnectionIDs() []uint32 {
	ids := make([]uint32, 0, len(c.Connections))
	for id := range c.Connections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SortEntries orders the entries of a connection by time, then offset.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].Time.Compare(entries[j].Time); c != 0 {
			return c < 0
		}
		return entries[i].Offset < entries[j].Offset
	})
}
