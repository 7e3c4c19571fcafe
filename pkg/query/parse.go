package query

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ssargent/frost/pkg/codec"
)

// ParseTime parses a time given as seconds since the epoch ("1700000000",
// "1700000000.25") or as RFC 3339 ("2023-11-14T22:13:20Z").
func ParseTime(s string) (codec.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return codec.Time{}, errors.New("empty time")
	}
	if sec, frac, ok := strings.Cut(s, "."); ok || isDigits(s) {
		if !isDigits(sec) || (ok && !isDigits(frac)) {
			return codec.Time{}, errors.Errorf("invalid time %q", s)
		}
		secs, err := strconv.ParseUint(sec, 10, 32)
		if err != nil {
			return codec.Time{}, errors.Wrapf(err, "invalid seconds in %q", s)
		}
		var nsec uint64
		if ok {
			if len(frac) > 9 {
				frac = frac[:9]
			}
			frac += strings.Repeat("0", 9-len(frac))
			nsec, _ = strconv.ParseUint(frac, 10, 32)
		}
		return codec.NewTime(uint32(secs), uint32(nsec)), nil
	}

	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return codec.Time{}, errors.Wrapf(err, "invalid time %q", s)
	}
	return codec.TimeFromStd(t), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
