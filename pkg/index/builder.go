package index

import (
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/ssargent/frost/pkg/bagerr"
	"github.com/ssargent/frost/pkg/chunk"
	"github.com/ssargent/frost/pkg/codec"
	"github.com/ssargent/frost/pkg/compression"
)

// Config holds configuration for catalog construction.
type Config struct {
	// Registry resolves chunk codecs for the scanned path. Defaults to
	// compression.Default().
	Registry *compression.Registry
	// Metrics, when set, records chunk decompression during a scan.
	Metrics *chunk.Metrics
	Logger  *slog.Logger
}

const (
	indexDataVersion = 1
	chunkInfoVersion = 1

	// entrySize is one index data entry: time(8) + offset(4).
	entrySize = codec.TimeSize + 4
	// countSize is one chunk info entry: conn(4) + count(4).
	countSize = 8
)

type builder struct {
	src      io.ReaderAt
	size     int64
	codec    *codec.RecordCodec
	registry *compression.Registry
	metrics  *chunk.Metrics
	logger   *slog.Logger
}

func newBuilder(src io.ReaderAt, size int64, cfg Config) *builder {
	b := &builder{
		src:      src,
		size:     size,
		codec:    codec.NewRecordCodec(),
		registry: cfg.Registry,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if b.registry == nil {
		b.registry = compression.Default()
	}
	if b.logger == nil {
		b.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b.logger = b.logger.With("component", "catalog")
	return b
}

// Build reads the catalog from the trailing index section. If the index is
// absent or inconsistent it falls back to a full scan of the chunks. Errors
// reading the version line or the bag header are returned as is.
func Build(src io.ReaderAt, size int64, cfg Config) (*Catalog, error) {
	b := newBuilder(src, size, cfg)
	start := time.Now()

	header, err := b.codec.ReadBagHeader(src, size)
	if err != nil {
		return nil, err
	}

	cat, err := b.readIndex(header)
	if err == nil {
		err = cat.Verify()
	}
	if err == nil {
		b.logBuilt(cat, start)
		return cat, nil
	}
	if bagerr.KindOf(err) == bagerr.KindIO {
		return nil, err
	}

	b.logger.Warn("index unusable, scanning chunks", "error", err)
	cat, err = b.scan(header)
	if err != nil {
		return nil, err
	}
	b.logBuilt(cat, start)
	return cat, nil
}

// Scan builds the catalog by decompressing every chunk, ignoring any trailing
// index.
func Scan(src io.ReaderAt, size int64, cfg Config) (*Catalog, error) {
	b := newBuilder(src, size, cfg)
	start := time.Now()

	header, err := b.codec.ReadBagHeader(src, size)
	if err != nil {
		return nil, err
	}
	cat, err := b.scan(header)
	if err != nil {
		return nil, err
	}
	b.logBuilt(cat, start)
	return cat, nil
}

func (b *builder) logBuilt(cat *Catalog, start time.Time) {
	b.logger.Debug("built catalog",
		"mode", cat.Mode,
		"connections", len(cat.Connections),
		"chunks", len(cat.Chunks),
		"elapsed", time.Since(start))
}

func (b *builder) readIndex(header *codec.BagHeader) (*Catalog, error) {
	indexPos := int64(header.IndexPos)
	if indexPos == 0 {
		return nil, bagerr.MissingIndex("index_pos is zero")
	}
	if indexPos < header.End || indexPos > b.size {
		return nil, bagerr.MissingIndex("index_pos %d outside of file of %d bytes", indexPos, b.size)
	}

	cat := &Catalog{
		Mode:        Indexed,
		Header:      header,
		Connections: make(map[uint32]*Connection),
	}
	for off := indexPos; off < b.size; {
		info, err := b.codec.ReadHeaderAt(b.src, off, b.size)
		if err != nil {
			return nil, err
		}
		switch info.Op {
		case codec.OpConnection:
			conn, err := b.readConnection(info)
			if err != nil {
				return nil, err
			}
			cat.Connections[conn.ID] = conn
		case codec.OpChunkInfo:
			ci, err := b.readChunkInfo(info)
			if err != nil {
				return nil, err
			}
			cat.Chunks = append(cat.Chunks, *ci)
		default:
			return nil, bagerr.MissingIndex("unexpected %s record in index section at offset %d", info.Op, off)
		}
		off = info.End()
	}

	if got := uint32(len(cat.Connections)); got != header.ConnCount {
		return nil, bagerr.MissingIndex("index holds %d connections, bag header declares %d", got, header.ConnCount)
	}
	if got := uint32(len(cat.Chunks)); got != header.ChunkCount {
		return nil, bagerr.MissingIndex("index holds %d chunk infos, bag header declares %d", got, header.ChunkCount)
	}

	sort.Slice(cat.Chunks, func(i, j int) bool { return cat.Chunks[i].Position < cat.Chunks[j].Position })
	cat.Entries = make([]ChunkEntries, len(cat.Chunks))
	for i := range cat.Chunks {
		limit := indexPos
		if i+1 < len(cat.Chunks) {
			limit = cat.Chunks[i+1].Position
		}
		entries, err := b.readChunkEntries(&cat.Chunks[i], limit)
		if err != nil {
			return nil, err
		}
		cat.Entries[i] = entries
	}
	return cat, nil
}

func (b *builder) readConnection(info *codec.RecordInfo) (*Connection, error) {
	data, err := codec.ReadData(b.src, info)
	if err != nil {
		return nil, err
	}
	return ParseConnection(info.Header, data, info.DataOffset)
}

// ParseConnection decodes a connection record from its header and data block.
func ParseConnection(h codec.Header, data []byte, dataOffset int64) (*Connection, error) {
	id, err := h.Uint32(codec.FieldConn)
	if err != nil {
		return nil, err
	}
	topic, err := h.Text(codec.FieldTopic)
	if err != nil {
		return nil, err
	}
	fields, err := codec.ParseHeader(data, dataOffset)
	if err != nil {
		return nil, err
	}
	typ, err := fields.Text(codec.FieldType)
	if err != nil {
		return nil, err
	}
	md5sum, err := fields.Text(codec.FieldMD5Sum)
	if err != nil {
		return nil, err
	}
	return &Connection{
		ID:                id,
		Topic:             topic,
		Type:              typ,
		MD5Sum:            md5sum,
		MessageDefinition: fields.TextOr(codec.FieldMsgDef, ""),
		CallerID:          fields.TextOr(codec.FieldCallerID, ""),
		Latching:          fields.TextOr(codec.FieldLatching, "0") == "1",
	}, nil
}

func (b *builder) readChunkInfo(info *codec.RecordInfo) (*ChunkInfo, error) {
	h := info.Header
	ver, err := h.Uint32(codec.FieldVer)
	if err != nil {
		return nil, err
	}
	if ver != chunkInfoVersion {
		return nil, bagerr.Malformed(info.Offset, "unsupported chunk_info version %d", ver)
	}
	pos, err := h.Uint64(codec.FieldChunkPos)
	if err != nil {
		return nil, err
	}
	startTime, err := h.Time(codec.FieldStartTime)
	if err != nil {
		return nil, err
	}
	endTime, err := h.Time(codec.FieldEndTime)
	if err != nil {
		return nil, err
	}
	count, err := h.Uint32(codec.FieldCount)
	if err != nil {
		return nil, err
	}
	if uint64(info.DataLen) != uint64(count)*countSize {
		return nil, bagerr.Malformed(info.Offset, "chunk_info declares %d connections in %d bytes", count, info.DataLen)
	}

	data, err := codec.ReadData(b.src, info)
	if err != nil {
		return nil, err
	}
	counts := make(map[uint32]uint32, count)
	for i := 0; i < int(count); i++ {
		e := data[i*countSize:]
		counts[le.Uint32(e)] += le.Uint32(e[4:])
	}
	return &ChunkInfo{
		Position:         int64(pos),
		StartTime:        startTime,
		EndTime:          endTime,
		ConnectionCounts: counts,
	}, nil
}

// readChunkEntries fills in the chunk location from its record header and
// reads the index data records that follow the chunk, up to limit.
func (b *builder) readChunkEntries(ci *ChunkInfo, limit int64) (ChunkEntries, error) {
	info, err := b.codec.ReadHeaderAt(b.src, ci.Position, b.size)
	if err != nil {
		return nil, err
	}
	loc, err := chunk.LocationFromRecord(info)
	if err != nil {
		return nil, err
	}
	ci.DataOffset = loc.DataOffset
	ci.Compression = loc.Compression
	ci.CompressedSize = loc.CompressedSize
	ci.UncompressedSize = loc.UncompressedSize

	entries := make(ChunkEntries, len(ci.ConnectionCounts))
	for off := info.End(); off < limit; {
		info, err := b.codec.ReadHeaderAt(b.src, off, b.size)
		if err != nil {
			return nil, err
		}
		if info.Op != codec.OpIndexData {
			break
		}
		conn, list, err := b.readIndexData(info)
		if err != nil {
			return nil, err
		}
		entries[conn] = append(entries[conn], list...)
		off = info.End()
	}

	for conn, n := range ci.ConnectionCounts {
		if got := len(entries[conn]); got != int(n) {
			return nil, bagerr.MissingIndex("chunk at offset %d: %d index entries for connection %d, chunk_info declares %d",
				ci.Position, got, conn, n)
		}
	}
	for conn, list := range entries {
		if _, ok := ci.ConnectionCounts[conn]; !ok {
			return nil, bagerr.MissingIndex("chunk at offset %d: index data for connection %d absent from chunk_info", ci.Position, conn)
		}
		SortEntries(list)
	}
	return entries, nil
}

func (b *builder) readIndexData(info *codec.RecordInfo) (uint32, []Entry, error) {
	h := info.Header
	ver, err := h.Uint32(codec.FieldVer)
	if err != nil {
		return 0, nil, err
	}
	if ver != indexDataVersion {
		return 0, nil, bagerr.Malformed(info.Offset, "unsupported index_data version %d", ver)
	}
	conn, err := h.Uint32(codec.FieldConn)
	if err != nil {
		return 0, nil, err
	}
	count, err := h.Uint32(codec.FieldCount)
	if err != nil {
		return 0, nil, err
	}
	if uint64(info.DataLen) != uint64(count)*entrySize {
		return 0, nil, bagerr.Malformed(info.Offset, "index_data declares %d entries in %d bytes", count, info.DataLen)
	}

	data, err := codec.ReadData(b.src, info)
	if err != nil {
		return 0, nil, err
	}
	list := make([]Entry, count)
	for i := range list {
		e := data[i*entrySize:]
		list[i] = Entry{Time: codec.DecodeTime(e), Offset: le.Uint32(e[codec.TimeSize:])}
	}
	return conn, list, nil
}

// scan walks every top-level record after the bag header, decompressing
// each chunk to rebuild its chunk info and entries. Index records already
// present in the file are ignored.
func (b *builder) scan(header *codec.BagHeader) (*Catalog, error) {
	cat := &Catalog{
		Mode:        Scanned,
		Header:      header,
		Connections: make(map[uint32]*Connection),
	}
	mgr := chunk.NewManager(b.src,
		chunk.WithRegistry(b.registry),
		chunk.WithMetrics(b.metrics),
		chunk.WithLogger(b.logger))

	for off := header.End; off < b.size; {
		info, err := b.codec.ReadHeaderAt(b.src, off, b.size)
		if err != nil {
			return nil, err
		}
		switch info.Op {
		case codec.OpChunk:
			ci, entries, err := b.scanChunk(mgr, info, cat)
			if err != nil {
				return nil, err
			}
			cat.Chunks = append(cat.Chunks, *ci)
			cat.Entries = append(cat.Entries, entries)
		case codec.OpConnection:
			conn, err := b.readConnection(info)
			if err != nil {
				return nil, err
			}
			cat.addConnection(conn)
		case codec.OpIndexData, codec.OpChunkInfo:
		default:
			return nil, bagerr.Malformed(off, "unexpected top-level %s record", info.Op)
		}
		off = info.End()
	}

	if err := cat.Verify(); err != nil {
		return nil, err
	}
	return cat, nil
}

func (b *builder) scanChunk(mgr *chunk.Manager, info *codec.RecordInfo, cat *Catalog) (*ChunkInfo, ChunkEntries, error) {
	loc, err := chunk.LocationFromRecord(info)
	if err != nil {
		return nil, nil, err
	}
	buf, err := mgr.Load(loc)
	if err != nil {
		return nil, nil, err
	}

	ci := &ChunkInfo{
		Position:         loc.Offset,
		DataOffset:       loc.DataOffset,
		Compression:      loc.Compression,
		CompressedSize:   loc.CompressedSize,
		UncompressedSize: loc.UncompressedSize,
		ConnectionCounts: make(map[uint32]uint32),
	}
	entries := make(ChunkEntries)
	cur := codec.NewCursor(buf, 0)
	for {
		rec, err := cur.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "scanning chunk at offset %d", loc.Offset)
		}
		switch rec.Op {
		case codec.OpConnection:
			conn, err := ParseConnection(rec.Header, rec.Data, rec.Offset)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "scanning chunk at offset %d", loc.Offset)
			}
			cat.addConnection(conn)
		case codec.OpMessageData:
			conn, err := rec.Header.Uint32(codec.FieldConn)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "scanning chunk at offset %d", loc.Offset)
			}
			t, err := rec.Header.Time(codec.FieldTime)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "scanning chunk at offset %d", loc.Offset)
			}
			if len(entries) == 0 || t.Before(ci.StartTime) {
				ci.StartTime = t
			}
			if len(entries) == 0 || t.After(ci.EndTime) {
				ci.EndTime = t
			}
			entries[conn] = append(entries[conn], Entry{Time: t, Offset: uint32(rec.Offset)})
			ci.ConnectionCounts[conn]++
		default:
			return nil, nil, bagerr.Malformed(loc.Offset, "unexpected %s record inside chunk", rec.Op)
		}
	}
	for _, list := range entries {
		SortEntries(list)
	}
	return ci, entries, nil
}

// addConnection keeps the first record seen for each id. Connection records
// are repeated inside chunks and in the index section.
func (c *Catalog) addConnection(conn *Connection) {
	if _, ok := c.Connections[conn.ID]; !ok {
		c.Connections[conn.ID] = conn
	}
}
