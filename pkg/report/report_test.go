package report_test

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/frost/internal/bagtest"
	"github.com/ssargent/frost/pkg/bag"
	"github.com/ssargent/frost/pkg/query"
	"github.com/ssargent/frost/pkg/report"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func twoTopics(t *testing.T) *bag.Bag {
	t.Helper()
	b, err := bag.FromBytes(bagtest.TwoTopicsFixture(t).Data)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "0 bytes", report.HumanBytes(0))
	assert.Equal(t, "1023 bytes", report.HumanBytes(1023))
	assert.Equal(t, "1.00 KB (1024 bytes)", report.HumanBytes(1024))
	assert.Equal(t, "1.50 KB (1536 bytes)", report.HumanBytes(1536))
	assert.Equal(t, "1.50 MB (1572864 bytes)", report.HumanBytes(1572864))
	assert.Equal(t, "2.00 GB (2147483648 bytes)", report.HumanBytes(2<<30))
	assert.Equal(t, "2048.00 GB (2199023255552 bytes)", report.HumanBytes(2<<40))
}

func TestInfo(t *testing.T) {
	b := twoTopics(t)
	var buf bytes.Buffer
	require.NoError(t, report.Info(&buf, b.Metadata(), false))
	out := buf.String()
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")

	assert.Equal(t, "path:        None", lines[0])
	assert.Equal(t, "version:     2.0", lines[1])
	assert.Equal(t, "duration:    7s", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "start:       "))
	assert.True(t, strings.HasSuffix(lines[3], "(1700000000.000000)"), lines[3])
	assert.True(t, strings.HasSuffix(lines[4], "(1700000007.900000)"), lines[4])
	assert.True(t, strings.HasPrefix(lines[5], "size:        "))
	assert.Equal(t, "messages:    80", lines[6])
	assert.True(t, strings.HasPrefix(lines[7], "compression: bz2 [5/8 chunks; "), lines[7])
	assert.True(t, strings.HasPrefix(lines[8], "             lz4 [3/8 chunks; "), lines[8])

	assert.Equal(t, "types:       nav_msgs/Odometry ["+md5Hex("nav_msgs/Odometry")+"]", lines[9])
	assert.Equal(t, "             std_msgs/String   ["+md5Hex("std_msgs/String")+"]", lines[10])
	assert.Equal(t, "topics:      /chatter         50 msgs : std_msgs/String", lines[11])
	assert.Equal(t, "             /odom            30 msgs : nav_msgs/Odometry", lines[12])
	assert.Len(t, lines, 13)
}

func TestInfo_Minimal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.Info(&buf, twoTopics(t).Metadata(), true))
	assert.NotContains(t, buf.String(), "types:")
	assert.NotContains(t, buf.String(), "topics:")
	assert.Contains(t, buf.String(), "compression:")
}

func TestInfo_EmptyBag(t *testing.T) {
	b, err := bag.FromBytes(bagtest.New().MustBuild(t).Data)
	require.NoError(t, err)
	defer b.Close()

	var buf bytes.Buffer
	require.NoError(t, report.Info(&buf, b.Metadata(), false))
	assert.Contains(t, buf.String(), "duration:    0s\n")
	assert.Contains(t, buf.String(), "messages:    0\n")
	assert.NotContains(t, buf.String(), "start:")
}

func TestTopicsAndTypes(t *testing.T) {
	b := twoTopics(t)
	var buf bytes.Buffer
	require.NoError(t, report.Topics(&buf, b.Metadata()))
	assert.Equal(t, "/chatter\n/odom\n", buf.String())

	buf.Reset()
	require.NoError(t, report.Types(&buf, b.Metadata()))
	assert.Equal(t, "nav_msgs/Odometry\nstd_msgs/String\n", buf.String())
}

func TestSizes(t *testing.T) {
	fixture := bagtest.TwoTopicsFixture(t)
	d, err := bag.DecompressedFromBytes(fixture.Data)
	require.NoError(t, err)
	defer d.Close()

	byTopic, err := report.Sizes(d, false)
	require.NoError(t, err)
	// "hello world N" for N in 0..49 and "odom N" for N in 0..29.
	assert.Equal(t, []report.SizeEntry{
		{Name: bagtest.ChatterTopic, Bytes: 690},
		{Name: bagtest.OdomTopic, Bytes: 200},
	}, byTopic)

	byType, err := report.Sizes(d, true)
	require.NoError(t, err)
	assert.Equal(t, []report.SizeEntry{
		{Name: bagtest.ChatterType, Bytes: 690},
		{Name: bagtest.OdomType, Bytes: 200},
	}, byType)

	var buf bytes.Buffer
	require.NoError(t, report.Size(&buf, d.Metadata(), byTopic))
	assert.Equal(t, strings.Join([]string{
		"path:        None",
		"size:        " + report.HumanBytes(uint64(len(fixture.Data))),
		"    /chatter      690 bytes",
		"    /odom         200 bytes",
		"",
	}, "\n"), buf.String())
}

func TestMessages(t *testing.T) {
	b := twoTopics(t)
	it, err := b.ReadMessages(query.ByTopic(bagtest.OdomTopic).
		WithTimeRange(bagtest.ScenarioStart, bagtest.ScenarioStart.Add(2_000_000_000)))
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := report.Messages(&buf, it)
	require.NoError(t, err)
	// Odom messages 0..9 fall at 1.0s..1.9s.
	assert.Equal(t, 10, n)
	first := strings.SplitN(buf.String(), "\n", 2)[0]
	assert.Equal(t, "1700000001.000000000 /odom 6", first)
}

func TestSummaryEncode(t *testing.T) {
	meta := twoTopics(t).Metadata()
	s := report.NewSummary(meta, false)
	assert.Equal(t, uint64(80), s.Messages)
	assert.Equal(t, 8, s.Chunks)
	require.NotNil(t, s.Start)
	assert.InDelta(t, 1_700_000_000.0, *s.Start, 1e-6)
	require.Len(t, s.Topics, 2)
	assert.Equal(t, report.TopicSummary{Topic: "/chatter", Type: "std_msgs/String", Messages: 50, Connections: 1}, s.Topics[0])

	var buf bytes.Buffer
	require.NoError(t, report.Encode(&buf, report.FormatJSON, s))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "indexed", decoded["index_mode"])
	assert.EqualValues(t, 80, decoded["messages"])

	buf.Reset()
	require.NoError(t, report.Encode(&buf, report.FormatYAML, report.NewSummary(meta, true)))
	var fromYAML report.Summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, uint64(80), fromYAML.Messages)
	assert.Empty(t, fromYAML.Topics)

	assert.Error(t, report.Encode(&buf, "xml", s))
}
