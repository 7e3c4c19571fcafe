// Package report renders bag metadata for people and for machines.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ssargent/frost/pkg/bag"
	"github.com/ssargent/frost/pkg/codec"
)

// labelWidth is the width of the left-hand label column.
const labelWidth = 13

// TimeLayout is used for calendar times in the info report.
const TimeLayout = "Jan 02 2006 15:04:05.00"

// noPath stands in for the path of a bag read from memory.
const noPath = "None"

var byteUnits = []struct {
	size  uint64
	label string
}{
	{humanize.GiByte, "GB"},
	{humanize.MiByte, "MB"},
	{humanize.KiByte, "KB"},
}

// HumanBytes formats n as "n bytes" below 1024 and otherwise as the
// binary multiple with two decimals followed by the exact count, e.g.
// "1.50 KB (1536 bytes)". GB is the largest unit.
func HumanBytes(n uint64) string {
	for _, u := range byteUnits {
		if n >= u.size {
			return fmt.Sprintf("%.2f %s (%d bytes)", float64(n)/float64(u.size), u.label, n)
		}
	}
	return fmt.Sprintf("%d bytes", n)
}

// TypeDigest pairs a message type with its md5sum.
type TypeDigest struct {
	Type   string `json:"type" yaml:"type"`
	MD5Sum string `json:"md5sum" yaml:"md5sum"`
}

// TypeDigests returns the distinct type and md5sum pairs, sorted by type.
func TypeDigests(meta *bag.Metadata) []TypeDigest {
	seen := make(map[TypeDigest]bool)
	var out []TypeDigest
	for _, c := range meta.Connections {
		td := TypeDigest{Type: c.Type, MD5Sum: c.MD5Sum}
		if !seen[td] {
			seen[td] = true
			out = append(out, td)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].MD5Sum < out[j].MD5Sum
	})
	return out
}

// Info writes the summary report. minimal stops after the compression
// lines.
func Info(w io.Writer, meta *bag.Metadata, minimal bool) error {
	p := &printer{w: w}

	path := meta.FilePath
	if path == "" {
		path = noPath
	}
	p.line("path:", "%s", path)
	p.line("version:", "%s", meta.Version)
	// Whole seconds, truncated.
	p.line("duration:", "%ds", int64(meta.Duration()/time.Second))
	if start, err := meta.StartTime(); err == nil {
		p.line("start:", "%s", formatTime(start))
	}
	if end, err := meta.EndTime(); err == nil {
		p.line("end:", "%s", formatTime(end))
	}
	p.line("size:", "%s", HumanBytes(meta.NumBytes))
	p.line("messages:", "%d", meta.MessageCount())

	infos := meta.CompressionInfo()
	total, nameWidth := 0, 0
	for _, info := range infos {
		total += info.ChunkCount
		nameWidth = max(nameWidth, len(info.Name))
	}
	for i, info := range infos {
		p.line(first(i, "compression:"), "%-*s [%d/%d chunks; %.2f%%]",
			nameWidth, info.Name, info.ChunkCount, total, 100*info.Ratio())
	}

	if minimal {
		return p.err
	}

	typeWidth, topicWidth := columnWidths(meta)
	for i, td := range TypeDigests(meta) {
		p.line(first(i, "types:"), "%-*s [%s]", typeWidth, td.Type, td.MD5Sum)
	}

	counts := meta.TopicMessageCounts()
	for i, tt := range meta.TopicsAndTypes() {
		p.line(first(i, "topics:"), "%-*s %10d msgs : %s", topicWidth, tt.Topic, counts[tt.Topic], tt.Type)
	}
	return p.err
}

// Topics writes one topic per line, sorted.
func Topics(w io.Writer, meta *bag.Metadata) error {
	return lines(w, meta.Topics())
}

// Types writes one message type per line, sorted.
func Types(w io.Writer, meta *bag.Metadata) error {
	return lines(w, meta.Types())
}

func lines(w io.Writer, items []string) error {
	for _, s := range items {
		if _, err := fmt.Fprintln(w, s); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t codec.Time) string {
	return fmt.Sprintf("%s (%.6f)", t.Local().Format(TimeLayout), t.Float64())
}

func columnWidths(meta *bag.Metadata) (typeWidth, topicWidth int) {
	for _, c := range meta.Connections {
		typeWidth = max(typeWidth, len(c.Type))
		topicWidth = max(topicWidth, len(c.Topic))
	}
	return typeWidth, topicWidth
}

func first(i int, label string) string {
	if i == 0 {
		return label
	}
	return ""
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(label, format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, "%-*s%s\n", labelWidth, label, fmt.Sprintf(format, args...))
}
