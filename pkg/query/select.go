package query

import (
	"github.com/ssargent/frost/pkg/index"
)

// Selection is the part of a catalog a query can touch.
type Selection struct {
	// Connections holds the ids of connections whose topic matches.
	Connections map[uint32]bool
	// Chunks holds indexes into the catalog's chunks, in file order, of
	// chunks whose time bounds overlap the query and which contain a
	// matching connection.
	Chunks []int
}

// Select prunes cat down to the chunks and connections q can match, without
// reading any chunk data.
func Select(cat *index.Catalog, q Query) Selection {
	sel := Selection{Connections: make(map[uint32]bool)}
	for id, conn := range cat.Connections {
		if q.MatchesTopic(conn.Topic) {
			sel.Connections[id] = true
		}
	}
	if len(sel.Connections) == 0 {
		return sel
	}

	for i := range cat.Chunks {
		ci := &cat.Chunks[i]
		if ci.MessageCount() == 0 || !q.OverlapsTime(ci.StartTime, ci.EndTime) {
			continue
		}
		for id, n := range ci.ConnectionCounts {
			if n > 0 && sel.Connections[id] {
				sel.Chunks = append(sel.Chunks, i)
				break
			}
		}
	}
	return sel
}

// Count returns the number of messages in the selected chunks on selected
// connections. It is an upper bound on the messages a time-restricted query
// yields and exact otherwise.
func (s Selection) Count(cat *index.Catalog) uint64 {
	var n uint64
	for _, i := range s.Chunks {
		for id, c := range cat.Chunks[i].ConnectionCounts {
			if s.Connections[id] {
				n += uint64(c)
			}
		}
	}
	return n
}
