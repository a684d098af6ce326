package compute

import (
	"strings"
	"time"
)

// zonedLayouts carry their own offset and ignore the configured location.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
}

// localLayouts are interpreted in the caller's location.
var localLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"02.01.2006 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02",
}

// ParseTime parses a passage timestamp. Timestamps without an offset are read
// in loc; a nil loc means time.Local.
func ParseTime(raw string, loc *time.Location) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TruncateMinute rounds t down to the start of its minute. It works on
// absolute time, so both occurrences of a repeated wall-clock hour stay
// distinct across a DST fall-back.
func TruncateMinute(t time.Time) time.Time {
	return t.Truncate(time.Minute)
}
