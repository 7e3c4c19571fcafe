package report

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/frost/pkg/bag"
)

// Output formats accepted by Encode.
const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// TopicSummary describes one topic.
type TopicSummary struct {
	Topic       string `json:"topic" yaml:"topic"`
	Type        string `json:"type" yaml:"type"`
	Messages    uint64 `json:"messages" yaml:"messages"`
	Connections int    `json:"connections" yaml:"connections"`
}

// Summary is the machine-readable form of the info report.
type Summary struct {
	Path            string                `json:"path,omitempty" yaml:"path,omitempty"`
	Version         string                `json:"version" yaml:"version"`
	IndexMode       string                `json:"index_mode" yaml:"index_mode"`
	DurationSeconds float64               `json:"duration_seconds" yaml:"duration_seconds"`
	Start           *float64              `json:"start,omitempty" yaml:"start,omitempty"`
	End             *float64              `json:"end,omitempty" yaml:"end,omitempty"`
	SizeBytes       uint64                `json:"size_bytes" yaml:"size_bytes"`
	Messages        uint64                `json:"messages" yaml:"messages"`
	Chunks          int                   `json:"chunks" yaml:"chunks"`
	Compression     []bag.CompressionInfo `json:"compression" yaml:"compression"`
	Types           []TypeDigest          `json:"types,omitempty" yaml:"types,omitempty"`
	Topics          []TopicSummary        `json:"topics,omitempty" yaml:"topics,omitempty"`
}

// NewSummary builds a Summary. minimal leaves out types and topics.
func NewSummary(meta *bag.Metadata, minimal bool) *Summary {
	s := &Summary{
		Path:            meta.FilePath,
		Version:         meta.Version,
		IndexMode:       string(meta.IndexMode),
		DurationSeconds: meta.Duration().Seconds(),
		SizeBytes:       meta.NumBytes,
		Messages:        meta.MessageCount(),
		Chunks:          meta.ChunkCount(),
		Compression:     meta.CompressionInfo(),
	}
	if start, err := meta.StartTime(); err == nil {
		v := start.Float64()
		s.Start = &v
	}
	if end, err := meta.EndTime(); err == nil {
		v := end.Float64()
		s.End = &v
	}
	if minimal {
		return s
	}

	s.Types = TypeDigests(meta)
	counts := meta.TopicMessageCounts()
	for _, tt := range meta.TopicsAndTypes() {
		s.Topics = append(s.Topics, TopicSummary{
			Topic:       tt.Topic,
			Type:        tt.Type,
			Messages:    counts[tt.Topic],
			Connections: len(meta.ConnectionsForTopic(tt.Topic)),
		})
	}
	return s
}

// Encode writes v as YAML or indented JSON.
func Encode(w io.Writer, format string, v any) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, "failed to encode yaml")
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(v), "failed to encode json")
	}
	return errors.Errorf("unsupported output format %q", format)
}
