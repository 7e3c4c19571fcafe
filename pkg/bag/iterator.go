package bag

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/ssargent/frost/pkg/bagerr"
	"github.com/ssargent/frost/pkg/codec"
	"github.com/ssargent/frost/pkg/index"
	"github.com/ssargent/frost/pkg/query"
)

// MessageView is one message. Data borrows from a chunk buffer; see the
// package documentation for how long it stays valid.
type MessageView struct {
	Topic      string
	Time       codec.Time
	Data       []byte
	Connection *index.Connection
}

// Size returns the payload length in bytes.
func (m MessageView) Size() uint64 {
	return uint64(len(m.Data))
}

// Clone returns a copy of m that owns its payload.
func (m MessageView) Clone() MessageView {
	m.Data = append([]byte(nil), m.Data...)
	return m
}

type pendingEntry struct {
	conn uint32
	index.Entry
}

// MessageIterator yields the messages matching a query, in non-decreasing
// time order for bags whose chunks do not overlap in time.
//
//	for it.Next() {
//		msg := it.Message()
//	}
//	if err := it.Err(); err != nil {
//		...
//	}
type MessageIterator struct {
	cat    *index.Catalog
	loader chunkLoader
	q      query.Query
	sel    query.Selection
	codec  *codec.RecordCodec

	next    int // next position in sel.Chunks
	chunk   int // catalog index of the loaded chunk
	buf     []byte
	pending []pendingEntry
	pos     int

	current MessageView
	err     error
	closed  bool
}

func newMessageIterator(cat *index.Catalog, loader chunkLoader, q query.Query) *MessageIterator {
	return &MessageIterator{
		cat:    cat,
		loader: loader,
		q:      q,
		sel:    query.Select(cat, q),
		codec:  codec.NewRecordCodec(),
		chunk:  -1,
	}
}

// Next advances to the next matching message. It returns false when the
// messages are exhausted or an error occurred; check Err.
func (it *MessageIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	for {
		if it.pos < len(it.pending) {
			p := it.pending[it.pos]
			it.pos++
			msg, err := it.decode(p)
			if err != nil {
				it.err = err
				return false
			}
			it.current = msg
			return true
		}
		if it.next >= len(it.sel.Chunks) {
			return false
		}
		i := it.sel.Chunks[it.next]
		it.next++
		if err := it.load(i); err != nil {
			it.err = err
			return false
		}
	}
}

// load prepares the matching entries of chunk i, decompressing the chunk
// only if any entry matches.
func (it *MessageIterator) load(i int) error {
	it.pending = it.pending[:0]
	it.pos = 0
	for conn, entries := range it.cat.Entries[i] {
		if !it.sel.Connections[conn] {
			continue
		}
		for _, e := range entries {
			if it.q.MatchesTime(e.Time) {
				it.pending = append(it.pending, pendingEntry{conn: conn, Entry: e})
			}
		}
	}
	if len(it.pending) == 0 {
		return nil
	}
	sort.Slice(it.pending, func(a, b int) bool {
		if c := it.pending[a].Time.Compare(it.pending[b].Time); c != 0 {
			return c < 0
		}
		return it.pending[a].Offset < it.pending[b].Offset
	})

	buf, err := it.loader.loadChunk(i)
	if err != nil {
		return err
	}
	it.buf = buf
	it.chunk = i
	return nil
}

func (it *MessageIterator) decode(p pendingEntry) (MessageView, error) {
	ci := &it.cat.Chunks[it.chunk]
	if int(p.Offset) >= len(it.buf) {
		return MessageView{}, bagerr.Malformed(ci.Position, "message offset %d beyond chunk payload of %d bytes", p.Offset, len(it.buf))
	}
	rec, err := it.codec.Decode(it.buf[p.Offset:], int64(p.Offset))
	if err != nil {
		return MessageView{}, errors.Wrapf(err, "reading message in chunk at offset %d", ci.Position)
	}
	if rec.Op != codec.OpMessageData {
		return MessageView{}, bagerr.Malformed(ci.Position, "index entry at chunk offset %d points at a %s record", p.Offset, rec.Op)
	}
	conn, err := rec.Header.Uint32(codec.FieldConn)
	if err != nil {
		return MessageView{}, errors.Wrapf(err, "reading message in chunk at offset %d", ci.Position)
	}
	if conn != p.conn {
		return MessageView{}, bagerr.Malformed(ci.Position, "message at chunk offset %d has connection %d, index says %d", p.Offset, conn, p.conn)
	}
	t, err := rec.Header.Time(codec.FieldTime)
	if err != nil {
		return MessageView{}, errors.Wrapf(err, "reading message in chunk at offset %d", ci.Position)
	}
	c := it.cat.Connections[conn]
	return MessageView{
		Topic:      c.Topic,
		Time:       t,
		Data:       rec.Data,
		Connection: c,
	}, nil
}

// Message returns the current message. It is only valid after Next
// returned true.
func (it *MessageIterator) Message() MessageView {
	return it.current
}

// Err returns the error that stopped iteration, if any. Messages yielded
// before the error remain valid.
func (it *MessageIterator) Err() error {
	return it.err
}

// Close stops the iteration.
func (it *MessageIterator) Close() error {
	it.closed = true
	it.buf = nil
	it.pending = nil
	it.current = MessageView{}
	return nil
}

// Collect drains it, cloning every message, and closes it.
func Collect(it *MessageIterator) ([]MessageView, error) {
	defer it.Close()
	var out []MessageView
	for it.Next() {
		out = append(out, it.Message().Clone())
	}
	return out, it.Err()
}
