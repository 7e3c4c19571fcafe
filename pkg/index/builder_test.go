package index_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/frost/internal/bagtest"
	"github.com/ssargent/frost/pkg/bagerr"
	"github.com/ssargent/frost/pkg/codec"
	"github.com/ssargent/frost/pkg/compression"
	"github.com/ssargent/frost/pkg/index"
)

func build(t *testing.T, data []byte) *index.Catalog {
	t.Helper()
	cat, err := index.Build(bytes.NewReader(data), int64(len(data)), index.Config{})
	require.NoError(t, err)
	return cat
}

func scan(t *testing.T, data []byte) *index.Catalog {
	t.Helper()
	cat, err := index.Scan(bytes.NewReader(data), int64(len(data)), index.Config{})
	require.NoError(t, err)
	return cat
}

func TestBuild_Indexed(t *testing.T) {
	f := bagtest.TwoTopicsFixture(t)
	cat := build(t, f.Data)

	assert.Equal(t, index.Indexed, cat.Mode)
	assert.Len(t, cat.Connections, 2)
	assert.Len(t, cat.Chunks, len(f.ChunkOffsets))
	assert.Equal(t, uint64(bagtest.ChatterCount+bagtest.OdomCount), cat.MessageCount())
	assert.Equal(t, uint64(f.IndexPos), cat.Header.IndexPos)

	for i, ci := range cat.Chunks {
		assert.Equal(t, f.ChunkOffsets[i], ci.Position)
		assert.Equal(t, uint64(bagtest.PerChunk), ci.MessageCount())
	}

	chatter := cat.Connections[0]
	assert.Equal(t, bagtest.ChatterTopic, chatter.Topic)
	assert.Equal(t, bagtest.ChatterType, chatter.Type)
	assert.Len(t, chatter.MD5Sum, 32)
	assert.Equal(t, compression.BZ2, cat.Chunks[0].Compression)
	assert.Equal(t, compression.LZ4, cat.Chunks[1].Compression)
}

func TestBuild_IndexedAndScannedAgree(t *testing.T) {
	f := bagtest.TwoTopicsFixture(t)
	indexed := build(t, f.Data)
	scanned := scan(t, f.Data)

	assert.Equal(t, index.Scanned, scanned.Mode)
	assert.Equal(t, indexed.Connections, scanned.Connections)
	assert.Equal(t, indexed.Chunks, scanned.Chunks)
	assert.Equal(t, indexed.Entries, scanned.Entries)
}

func TestBuild_FallsBackWithoutIndex(t *testing.T) {
	f := bagtest.TwoTopics().MustBuildUnindexed(t)
	cat := build(t, f.Data)

	assert.Equal(t, index.Scanned, cat.Mode)
	assert.Equal(t, uint64(80), cat.MessageCount())
	assert.Len(t, cat.Chunks, 8)

	// Without index data records the chunks sit at different offsets, so
	// compare everything but the layout.
	indexed := build(t, bagtest.TwoTopicsFixture(t).Data)
	assert.Equal(t, indexed.Connections, cat.Connections)
	require.Len(t, cat.Chunks, len(indexed.Chunks))
	for i := range cat.Chunks {
		assert.Equal(t, indexed.Chunks[i].Compression, cat.Chunks[i].Compression)
		assert.Equal(t, indexed.Chunks[i].UncompressedSize, cat.Chunks[i].UncompressedSize)
		assert.Equal(t, indexed.Chunks[i].StartTime, cat.Chunks[i].StartTime)
		assert.Equal(t, indexed.Chunks[i].EndTime, cat.Chunks[i].EndTime)
		assert.Equal(t, indexed.Chunks[i].ConnectionCounts, cat.Chunks[i].ConnectionCounts)
		assert.Equal(t, indexed.Entries[i], cat.Entries[i])
	}
}

func TestBuild_FallsBackOnBrokenIndex(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(f *bagtest.Fixture) []byte
	}{
		{
			name: "index_pos beyond file",
			mutate: func(f *bagtest.Fixture) []byte {
				return setIndexPos(f.Data, uint64(len(f.Data))+100)
			},
		},
		{
			name: "index section truncated",
			mutate: func(f *bagtest.Fixture) []byte {
				// Drop the trailing chunk info records but keep the connections.
				return f.Data[:f.IndexPos+int64(connectionsLen(t, f))]
			},
		},
		{
			name: "chunk count mismatch",
			mutate: func(f *bagtest.Fixture) []byte {
				out := append([]byte(nil), f.Data...)
				copy(out[len(codec.VersionLine):], codec.NewRecordCodec().EncodeBagHeader(uint64(f.IndexPos), 2, 9))
				return out
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data := tc.mutate(bagtest.TwoTopicsFixture(t))
			cat := build(t, data)
			assert.Equal(t, index.Scanned, cat.Mode)
			assert.Equal(t, uint64(80), cat.MessageCount())
		})
	}
}

func TestBuild_Errors(t *testing.T) {
	f := bagtest.TwoTopicsFixture(t)

	testCases := []struct {
		name string
		data []byte
		kind error
	}{
		{name: "empty", data: nil, kind: bagerr.ErrInvalidFormat},
		{name: "wrong version", data: append([]byte("#ROSBAG V1.2\n"), f.Data[13:]...), kind: bagerr.ErrInvalidFormat},
		{name: "version line only", data: f.Data[:len(codec.VersionLine)], kind: bagerr.ErrMalformedRecord},
		{name: "truncated bag header", data: f.Data[:100], kind: bagerr.ErrMalformedRecord},
		{name: "truncated in first chunk", data: f.Data[:f.ChunkOffsets[0]+50], kind: bagerr.ErrMalformedRecord},
		{name: "truncated mid file", data: f.Data[:f.ChunkOffsets[3]+10], kind: bagerr.ErrMalformedRecord},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := index.Build(bytes.NewReader(tc.data), int64(len(tc.data)), index.Config{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
		})
	}
}

func TestBuild_CorruptChunkDuringScan(t *testing.T) {
	f := bagtest.TwoTopics().MustBuildUnindexed(t)
	data := append([]byte(nil), f.Data...)

	// Overwrite the start of the first chunk's compressed payload.
	rc := codec.NewRecordCodec()
	info, err := rc.ReadHeaderAt(bytes.NewReader(data), f.ChunkOffsets[0], int64(len(data)))
	require.NoError(t, err)
	copy(data[info.DataOffset:], bytes.Repeat([]byte{0xFF}, 16))

	_, err = index.Build(bytes.NewReader(data), int64(len(data)), index.Config{})
	require.Error(t, err)
	assert.ErrorIs(t, err, bagerr.ErrDecompression)
}

func TestBuild_UnsupportedCompressionDuringScan(t *testing.T) {
	b := bagtest.New()
	conn := b.AddConnection("/a", "std_msgs/Empty")
	reg := compression.NewDefaultRegistry()
	reg.Register(upperless{})
	b.WithRegistry(reg).AddChunk("custom", bagtest.Msg(conn, codec.NewTime(1, 0), []byte("x")))
	f := b.MustBuildUnindexed(t)

	_, err := index.Build(bytes.NewReader(f.Data), int64(len(f.Data)), index.Config{})
	assert.ErrorIs(t, err, bagerr.ErrUnsupportedCompression)

	cat, err := index.Build(bytes.NewReader(f.Data), int64(len(f.Data)), index.Config{Registry: reg})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cat.MessageCount())
}

func TestBuild_EmptyBag(t *testing.T) {
	f := bagtest.New().MustBuild(t)
	cat := build(t, f.Data)
	assert.Equal(t, index.Indexed, cat.Mode)
	assert.Empty(t, cat.Chunks)
	assert.Empty(t, cat.Connections)
	assert.Zero(t, cat.MessageCount())
}

func TestBuild_SharedTopicAndConnectionFields(t *testing.T) {
	b := bagtest.New()
	first := b.AddConnectionDef(index.Connection{Topic: "/scan", Type: "sensor_msgs/LaserScan", MD5Sum: "90c7ef2dc6895d81024acba2ac42f369", CallerID: "/lidar", Latching: true})
	second := b.AddConnection("/scan", "sensor_msgs/LaserScan")
	b.AddChunk(compression.None,
		bagtest.Msg(first, codec.NewTime(1, 0), []byte("a")),
		bagtest.Msg(second, codec.NewTime(1, 5), []byte("b")),
		bagtest.Msg(first, codec.NewTime(2, 0), []byte("c")))
	f := b.MustBuild(t)

	for _, cat := range []*index.Catalog{build(t, f.Data), scan(t, f.Data)} {
		require.Len(t, cat.Connections, 2)
		assert.Equal(t, "/scan", cat.Connections[first].Topic)
		assert.Equal(t, "/scan", cat.Connections[second].Topic)
		assert.Equal(t, "/lidar", cat.Connections[first].CallerID)
		assert.True(t, cat.Connections[first].Latching)
		assert.False(t, cat.Connections[second].Latching)
		assert.Equal(t, map[uint32]uint32{first: 2, second: 1}, cat.Chunks[0].ConnectionCounts)
		assert.Equal(t, codec.NewTime(1, 0), cat.Chunks[0].StartTime)
		assert.Equal(t, codec.NewTime(2, 0), cat.Chunks[0].EndTime)
	}
}

func TestCatalog_Verify(t *testing.T) {
	valid := func() *index.Catalog {
		return build(t, bagtest.TwoTopicsFixture(t).Data)
	}

	testCases := []struct {
		name   string
		mutate func(c *index.Catalog)
	}{
		{name: "unknown connection", mutate: func(c *index.Catalog) { delete(c.Connections, 0) }},
		{name: "overlapping chunks", mutate: func(c *index.Catalog) { c.Chunks[1].Position = c.Chunks[0].Position + 1 }},
		{name: "count mismatch", mutate: func(c *index.Catalog) { c.Chunks[0].ConnectionCounts[0]++ }},
		{name: "entry outside time bounds", mutate: func(c *index.Catalog) { c.Chunks[0].EndTime = c.Chunks[0].StartTime }},
		{name: "entry beyond payload", mutate: func(c *index.Catalog) { c.Chunks[0].UncompressedSize = 1 }},
		{name: "entry sets out of step", mutate: func(c *index.Catalog) { c.Entries = c.Entries[1:] }},
	}

	require.NoError(t, valid().Verify())
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(c)
			assert.ErrorIs(t, c.Verify(), bagerr.ErrMalformedRecord)
		})
	}
}

// upperless is an identity codec registered under a custom name.
type upperless struct{}

func (upperless) Name() string { return "custom" }

func (upperless) Decompress(src []byte, size int) ([]byte, error) {
	return append([]byte(nil), src...), nil
}

func (upperless) Compress(src []byte) ([]byte, error) { return src, nil }

func setIndexPos(data []byte, pos uint64) []byte {
	out := append([]byte(nil), data...)
	hdr := codec.NewRecordCodec().EncodeBagHeader(pos, 2, 8)
	copy(out[len(codec.VersionLine):], hdr)
	return out
}

// connectionsLen returns the length of the connection records at the start
// of the index section.
func connectionsLen(t *testing.T, f *bagtest.Fixture) int {
	t.Helper()
	rc := codec.NewRecordCodec()
	r := bytes.NewReader(f.Data)
	off := f.IndexPos
	for {
		info, err := rc.ReadHeaderAt(r, off, int64(len(f.Data)))
		require.NoError(t, err)
		if info.Op != codec.OpConnection {
			return int(off - f.IndexPos)
		}
		off = info.End()
	}
}
