package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const nsecPerSec = 1_000_000_000

// TimeSize is the encoded size of a Time: sec(4) + nsec(4).
const TimeSize = 8

// Time is a bag timestamp stored as unsigned seconds and nanoseconds.
// Nsec is always in [0, 1e9) for values built with NewTime or decoded with
// DecodeTime.
type Time struct {
	Sec  uint32 `json:"sec" yaml:"sec" msgpack:"sec"`
	Nsec uint32 `json:"nsec" yaml:"nsec" msgpack:"nsec"`
}

// MinTime and MaxTime bound every representable Time.
var (
	MinTime = Time{}
	MaxTime = Time{Sec: math.MaxUint32, Nsec: nsecPerSec - 1}
)

// NewTime creates a Time, carrying nanosecond overflow into seconds. A
// carry past the largest second clamps to MaxTime.
func NewTime(sec, nsec uint32) Time {
	total := uint64(sec) + uint64(nsec/nsecPerSec)
	if total > math.MaxUint32 {
		return MaxTime
	}
	return Time{Sec: uint32(total), Nsec: nsec % nsecPerSec}
}

// TimeFromStd converts a time.Time. Instants before the Unix epoch clamp to
// MinTime and instants beyond the uint32 seconds range clamp to MaxTime.
func TimeFromStd(t time.Time) Time {
	sec := t.Unix()
	switch {
	case sec < 0:
		return MinTime
	case sec > math.MaxUint32:
		return MaxTime
	}
	return Time{Sec: uint32(sec), Nsec: uint32(t.Nanosecond())}
}

// TimeFromFloat converts floating-point seconds.
func TimeFromFloat(secs float64) Time {
	if secs <= 0 {
		return MinTime
	}
	if secs >= float64(math.MaxUint32)+1 {
		return MaxTime
	}
	whole := math.Floor(secs)
	nsec := math.Round((secs - whole) * nsecPerSec)
	return NewTime(uint32(whole), uint32(nsec))
}

// DecodeTime reads a Time from its 8 byte little-endian encoding.
func DecodeTime(b []byte) Time {
	return NewTime(binary.LittleEndian.Uint32(b[0:4]), binary.LittleEndian.Uint32(b[4:8]))
}

// PutTime writes t into b, which must be at least TimeSize bytes.
func PutTime(b []byte, t Time) {
	binary.LittleEndian.PutUint32(b[0:4], t.Sec)
	binary.LittleEndian.PutUint32(b[4:8], t.Nsec)
}

// Float64 returns t as floating-point seconds.
func (t Time) Float64() float64 {
	return float64(t.Sec) + float64(t.Nsec)/nsecPerSec
}

// Std returns t as a UTC time.Time.
func (t Time) Std() time.Time {
	return time.Unix(int64(t.Sec), int64(t.Nsec)).UTC()
}

// Local returns t in the local time zone, for calendar display.
func (t Time) Local() time.Time {
	return time.Unix(int64(t.Sec), int64(t.Nsec)).Local()
}

// Nanoseconds returns t as nanoseconds since the epoch.
func (t Time) Nanoseconds() int64 {
	return int64(t.Sec)*nsecPerSec + int64(t.Nsec)
}

// Compare returns -1, 0 or +1 depending on whether t is before, equal to or
// after o.
func (t Time) Compare(o Time) int {
	switch {
	case t.Sec < o.Sec:
		return -1
	case t.Sec > o.Sec:
		return 1
	case t.Nsec < o.Nsec:
		return -1
	case t.Nsec > o.Nsec:
		return 1
	}
	return 0
}

// Before reports whether t is strictly before o.
func (t Time) Before(o Time) bool { return t.Compare(o) < 0 }

// After reports whether t is strictly after o.
func (t Time) After(o Time) bool { return t.Compare(o) > 0 }

// Equal reports whether t and o are the same instant.
func (t Time) Equal(o Time) bool { return t == o }

// IsZero reports whether t is the epoch.
func (t Time) IsZero() bool { return t == Time{} }

// Sub returns t - o.
func (t Time) Sub(o Time) time.Duration {
	return time.Duration(t.Nanoseconds() - o.Nanoseconds())
}

// Add returns t + d, clamped to [MinTime, MaxTime].
func (t Time) Add(d time.Duration) Time {
	ns := t.Nanoseconds() + int64(d)
	if ns <= 0 {
		return MinTime
	}
	if ns >= MaxTime.Nanoseconds() {
		return MaxTime
	}
	return NewTime(uint32(ns/nsecPerSec), uint32(ns%nsecPerSec))
}

// String formats t as seconds with nanosecond precision.
func (t Time) String() string {
	return fmt.Sprintf("%d.%09d", t.Sec, t.Nsec)
}
