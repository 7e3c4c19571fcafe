package bagtest

import (
	"fmt"
	"testing"

	"github.com/ssargent/frost/pkg/codec"
	"github.com/ssargent/frost/pkg/compression"
)

// Two-topic scenario constants.
const (
	ChatterTopic = "/chatter"
	ChatterType  = "std_msgs/String"
	ChatterCount = 50
	OdomTopic    = "/odom"
	OdomType     = "nav_msgs/Odometry"
	OdomCount    = 30

	// PerChunk is the number of messages per chunk in the scenario.
	PerChunk = 10
)

// ScenarioStart is the time of the first message in the two-topic scenario.
var ScenarioStart = codec.NewTime(1_700_000_000, 0)

// TwoTopics builds a bag with /chatter (50 messages, bz2 chunks) and /odom
// (30 messages, lz4 chunks). Chunks alternate between the topics and
// message times increase by 100ms across the whole file.
func TwoTopics() *Builder {
	b := New()
	chatter := b.AddConnection(ChatterTopic, ChatterType)
	odom := b.AddConnection(OdomTopic, OdomType)

	t := ScenarioStart
	next := func() codec.Time {
		cur := t
		t = t.Add(100_000_000)
		return cur
	}

	chatterLeft, odomLeft := ChatterCount, OdomCount
	for i := 0; chatterLeft > 0 || odomLeft > 0; i++ {
		var msgs []Message
		switch {
		case odomLeft > 0 && (i%2 == 1 || chatterLeft == 0):
			for j := 0; j < PerChunk; j++ {
				msgs = append(msgs, Msg(odom, next(), []byte(fmt.Sprintf("odom %d", OdomCount-odomLeft+j))))
			}
			odomLeft -= PerChunk
			b.AddChunk(compression.LZ4, msgs...)
		default:
			for j := 0; j < PerChunk; j++ {
				msgs = append(msgs, Msg(chatter, next(), []byte(fmt.Sprintf("hello world %d", ChatterCount-chatterLeft+j))))
			}
			chatterLeft -= PerChunk
			b.AddChunk(compression.BZ2, msgs...)
		}
	}
	return b
}

// TwoTopicsFixture builds the indexed two-topic scenario.
func TwoTopicsFixture(t testing.TB) *Fixture {
	t.Helper()
	return TwoTopics().MustBuild(t)
}
