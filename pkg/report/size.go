package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/ssargent/frost/pkg/bag"
	"github.com/ssargent/frost/pkg/query"
)

// SizeEntry is the summed payload size of one topic or type.
type SizeEntry struct {
	Name  string `json:"name" yaml:"name"`
	Bytes uint64 `json:"bytes" yaml:"bytes"`
}

// Sizes sums message payload sizes per topic, or per message type when
// byType is set. Entries are sorted by descending size, then by name.
func Sizes(r bag.Reader, byType bool) ([]SizeEntry, error) {
	meta := r.Metadata()
	typeOf := make(map[string]string)
	for _, tt := range meta.TopicsAndTypes() {
		typeOf[tt.Topic] = tt.Type
	}

	it, err := r.ReadMessages(query.All())
	if err != nil {
		return nil, err
	}
	defer it.Close()

	sums := make(map[string]uint64)
	for it.Next() {
		msg := it.Message()
		key := msg.Topic
		if byType {
			key = typeOf[msg.Topic]
		}
		sums[key] += msg.Size()
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	entries := make([]SizeEntry, 0, len(sums))
	for name, n := range sums {
		entries = append(entries, SizeEntry{Name: name, Bytes: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Bytes != entries[j].Bytes {
			return entries[i].Bytes > entries[j].Bytes
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Size writes the size report for entries computed by Sizes.
func Size(w io.Writer, meta *bag.Metadata, entries []SizeEntry) error {
	p := &printer{w: w}
	path := meta.FilePath
	if path == "" {
		path = noPath
	}
	p.line("path:", "%s", path)
	p.line("size:", "%s", HumanBytes(meta.NumBytes))

	width := 0
	for _, e := range entries {
		width = max(width, len(e.Name))
	}
	for _, e := range entries {
		if p.err != nil {
			break
		}
		_, p.err = fmt.Fprintf(w, "%4s%-*s %10s\n", "", width+4, e.Name, HumanBytes(e.Bytes))
	}
	return p.err
}
