// Package query defines the topic and time filters applied while reading
// messages.
//
// A Query is an immutable value. The zero value, also returned by All,
// matches every message. Topic and time restrictions combine with logical
// AND. A restricted topic set that is empty matches nothing, which is
// different from no topic restriction at all. Time ranges are closed:
// a message at t matches when start <= t <= end.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ssargent/frost/pkg/codec"
)

// Query filters messages by topic and time.
type Query struct {
	topics    map[string]struct{}
	hasTopics bool
	start     codec.Time
	end       codec.Time
	hasTime   bool
}

// All returns the query matching every message.
func All() Query {
	return Query{}
}

// ByTopic returns a query matching messages on any of topics.
func ByTopic(topics ...string) Query {
	return All().WithTopics(topics...)
}

// ByTime returns a query matching messages with start <= t <= end. If end
// is before start the query matches nothing.
func ByTime(start, end codec.Time) Query {
	return All().WithTimeRange(start, end)
}

// WithTopics returns a copy of q further restricted to topics. If q already
// has a topic restriction the result matches the intersection.
func (q Query) WithTopics(topics ...string) Query {
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if !q.hasTopics {
			set[t] = struct{}{}
			continue
		}
		if _, ok := q.topics[t]; ok {
			set[t] = struct{}{}
		}
	}
	q.topics = set
	q.hasTopics = true
	return q
}

// WithTimeRange returns a copy of q further restricted to [start, end]. If
// q already has a time restriction the result matches the intersection.
func (q Query) WithTimeRange(start, end codec.Time) Query {
	if q.hasTime {
		if q.start.After(start) {
			start = q.start
		}
		if q.end.Before(end) {
			end = q.end
		}
	}
	q.start, q.end, q.hasTime = start, end, true
	return q
}

// IsAll reports whether q has no restriction.
func (q Query) IsAll() bool {
	return !q.hasTopics && !q.hasTime
}

// Topics returns the sorted topic set and whether q restricts topics.
func (q Query) Topics() ([]string, bool) {
	if !q.hasTopics {
		return nil, false
	}
	topics := make([]string, 0, len(q.topics))
	for t := range q.topics {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics, true
}

// TimeRange returns the time bounds and whether q restricts time.
func (q Query) TimeRange() (start, end codec.Time, ok bool) {
	return q.start, q.end, q.hasTime
}

// MatchesTopic reports whether messages on topic pass the topic filter.
func (q Query) MatchesTopic(topic string) bool {
	if !q.hasTopics {
		return true
	}
	_, ok := q.topics[topic]
	return ok
}

// MatchesTime reports whether t passes the time filter.
func (q Query) MatchesTime(t codec.Time) bool {
	if !q.hasTime {
		return true
	}
	return !t.Before(q.start) && !t.After(q.end)
}

// Matches reports whether a message on topic at t passes both filters.
func (q Query) Matches(topic string, t codec.Time) bool {
	return q.MatchesTopic(topic) && q.MatchesTime(t)
}

// OverlapsTime reports whether any instant in [start, end] passes the time
// filter.
func (q Query) OverlapsTime(start, end codec.Time) bool {
	if !q.hasTime {
		return true
	}
	if q.end.Before(q.start) {
		return false
	}
	return !end.Before(q.start) && !start.After(q.end)
}

func (q Query) String() string {
	if q.IsAll() {
		return "all"
	}
	var parts []string
	if topics, ok := q.Topics(); ok {
		parts = append(parts, fmt.Sprintf("topics=[%s]", strings.Join(topics, ",")))
	}
	if q.hasTime {
		parts = append(parts, fmt.Sprintf("time=[%s, %s]", q.start, q.end))
	}
	return strings.Join(parts, " ")
}
