package index

import (
	"encoding/binary"

	"github.com/ssargent/frost/pkg/bagerr"
)

var le = binary.LittleEndian

// Verify checks the catalog invariants shared by both build modes: chunks
// are ordered and do not overlap, every counted message has an entry,
// every entry references a known connection, and entries fall inside their
// chunk's payload and time bounds.
func (c *Catalog) Verify() error {
	if len(c.Entries) != len(c.Chunks) {
		return bagerr.Malformed(-1, "catalog has %d chunks but %d entry sets", len(c.Chunks), len(c.Entries))
	}

	var prevEnd int64
	if c.Header != nil {
		prevEnd = c.Header.End
	}
	for i := range c.Chunks {
		ci := &c.Chunks[i]
		if ci.Position < prevEnd {
			return bagerr.Malformed(ci.Position, "chunk overlaps preceding data ending at %d", prevEnd)
		}
		prevEnd = ci.End()

		entries := c.Entries[i]
		for conn, n := range ci.ConnectionCounts {
			if _, ok := c.Connections[conn]; !ok {
				return bagerr.Malformed(ci.Position, "chunk references unknown connection %d", conn)
			}
			if got := len(entries[conn]); got != int(n) {
				return bagerr.Malformed(ci.Position, "connection %d has %d entries, %d counted", conn, got, n)
			}
		}
		if ci.MessageCount() > 0 && ci.EndTime.Before(ci.StartTime) {
			return bagerr.Malformed(ci.Position, "chunk end time %s before start time %s", ci.EndTime, ci.StartTime)
		}
		for conn, list := range entries {
			if _, ok := ci.ConnectionCounts[conn]; !ok {
				return bagerr.Malformed(ci.Position, "entries for connection %d not counted in chunk", conn)
			}
			for _, e := range list {
				if e.Offset >= ci.UncompressedSize {
					return bagerr.Malformed(ci.Position, "entry offset %d beyond chunk payload of %d bytes", e.Offset, ci.UncompressedSize)
				}
				if e.Time.Before(ci.StartTime) || e.Time.After(ci.EndTime) {
					return bagerr.Malformed(ci.Position, "entry time %s outside chunk bounds [%s, %s]", e.Time, ci.StartTime, ci.EndTime)
				}
			}
		}
	}
	return nil
}
