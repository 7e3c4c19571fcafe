package chunk

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/frost/pkg/bagerr"
	"github.com/ssargent/frost/pkg/codec"
	"github.com/ssargent/frost/pkg/compression"
)

// countingCodec is an identity codec that counts Decompress calls.
type countingCodec struct {
	calls int
}

func (c *countingCodec) Name() string { return "counting" }

func (c *countingCodec) Decompress(src []byte, size int) ([]byte, error) {
	c.calls++
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

func (c *countingCodec) Compress(src []byte) ([]byte, error) { return src, nil }

// chunkFile lays out one chunk record per payload and returns the file bytes
// and the location of each chunk.
func chunkFile(t *testing.T, compressionName string, payloads ...[]byte) ([]byte, []Location) {
	t.Helper()
	rc := codec.NewRecordCodec()
	var file []byte
	var locs []Location
	for _, p := range payloads {
		rec := rc.Encode([]codec.Field{
			codec.OpField(codec.OpChunk),
			codec.StringField(codec.FieldCompression, compressionName),
			codec.Uint32Field(codec.FieldSize, uint32(len(p))),
		}, p)
		off := int64(len(file))
		file = append(file, rec...)

		info, err := rc.ReadHeaderAt(bytes.NewReader(file), off, int64(len(file)))
		require.NoError(t, err)
		loc, err := LocationFromRecord(info)
		require.NoError(t, err)
		locs = append(locs, loc)
	}
	return file, locs
}

func TestManager_CacheHitSkipsCodec(t *testing.T) {
	counter := &countingCodec{}
	reg := compression.NewDefaultRegistry()
	reg.Register(counter)

	file, locs := chunkFile(t, "counting", []byte("first chunk"), []byte("second chunk"))
	m := NewManager(bytes.NewReader(file), WithRegistry(reg))

	buf, err := m.Load(locs[0])
	require.NoError(t, err)
	assert.Equal(t, "first chunk", string(buf))
	assert.Equal(t, 1, counter.calls)

	again, err := m.Load(locs[0])
	require.NoError(t, err)
	assert.Equal(t, 1, counter.calls, "cache hit must not decompress")
	assert.Equal(t, buf, again)

	off, ok := m.Cached()
	assert.True(t, ok)
	assert.Equal(t, locs[0].Offset, off)

	// A different chunk evicts the first.
	buf, err = m.Load(locs[1])
	require.NoError(t, err)
	assert.Equal(t, "second chunk", string(buf))
	assert.Equal(t, 2, counter.calls)

	_, err = m.Load(locs[0])
	require.NoError(t, err)
	assert.Equal(t, 3, counter.calls)

	m.Reset()
	_, ok = m.Cached()
	assert.False(t, ok)
}

func TestManager_Codecs(t *testing.T) {
	payload := bytes.Repeat([]byte("ros message payload "), 64)
	for _, name := range compression.Default().Names() {
		t.Run(name, func(t *testing.T) {
			compressed, err := compression.Default().Compress(name, payload)
			require.NoError(t, err)

			rc := codec.NewRecordCodec()
			file := rc.Encode([]codec.Field{
				codec.OpField(codec.OpChunk),
				codec.StringField(codec.FieldCompression, name),
				codec.Uint32Field(codec.FieldSize, uint32(len(payload))),
			}, compressed)
			info, err := rc.ReadHeaderAt(bytes.NewReader(file), 0, int64(len(file)))
			require.NoError(t, err)
			loc, err := LocationFromRecord(info)
			require.NoError(t, err)

			buf, err := NewManager(bytes.NewReader(file)).Load(loc)
			require.NoError(t, err)
			assert.Equal(t, payload, buf)
		})
	}
}

func TestManager_Errors(t *testing.T) {
	t.Run("unsupported compression", func(t *testing.T) {
		file, locs := chunkFile(t, "brotli", []byte("x"))
		m := NewManager(bytes.NewReader(file))
		_, err := m.Load(locs[0])
		require.Error(t, err)
		assert.ErrorIs(t, err, bagerr.ErrUnsupportedCompression)

		var be *bagerr.Error
		require.ErrorAs(t, err, &be)
		assert.Equal(t, locs[0].Offset, be.Offset)
		_, ok := m.Cached()
		assert.False(t, ok)
	})

	t.Run("size mismatch", func(t *testing.T) {
		file, locs := chunkFile(t, compression.None, []byte("abc"))
		loc := locs[0]
		loc.UncompressedSize = 10
		_, err := NewManager(bytes.NewReader(file)).Load(loc)
		assert.ErrorIs(t, err, bagerr.ErrDecompression)
	})

	t.Run("truncated source", func(t *testing.T) {
		file, locs := chunkFile(t, compression.None, []byte("abcdef"))
		_, err := NewManager(bytes.NewReader(file[:len(file)-2])).Load(locs[0])
		assert.ErrorIs(t, err, bagerr.ErrIO)
	})

	t.Run("failed load clears cache", func(t *testing.T) {
		good, goodLocs := chunkFile(t, compression.None, []byte("ok"))
		m := NewManager(bytes.NewReader(good))
		_, err := m.Load(goodLocs[0])
		require.NoError(t, err)

		bad := goodLocs[0]
		bad.Offset = 1000
		bad.Compression = "brotli"
		_, err = m.Load(bad)
		require.Error(t, err)
		_, ok := m.Cached()
		assert.False(t, ok)
	})
}

func TestLocationFromRecord_WrongOp(t *testing.T) {
	rc := codec.NewRecordCodec()
	file := rc.Encode([]codec.Field{
		codec.OpField(codec.OpMessageData),
		codec.Uint32Field(codec.FieldConn, 0),
		codec.TimeField(codec.FieldTime, codec.NewTime(1, 0)),
	}, nil)
	info, err := rc.ReadHeaderAt(bytes.NewReader(file), 0, int64(len(file)))
	require.NoError(t, err)

	_, err = LocationFromRecord(info)
	assert.ErrorIs(t, err, bagerr.ErrMalformedRecord)
}

func TestManager_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	file, locs := chunkFile(t, compression.None, []byte("one"), []byte("two"))
	m := NewManager(bytes.NewReader(file), WithMetrics(metrics))

	for _, loc := range []Location{locs[0], locs[0], locs[1], locs[1], locs[1]} {
		_, err := m.Load(loc)
		require.NoError(t, err)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.cacheHits))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.cacheMisses))
	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.decompressedBytes.WithLabelValues(compression.None)))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.decompressedChunks.WithLabelValues(compression.None)))
}
