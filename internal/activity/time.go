package activity

import (
	"fmt"
	"time"
)

// TimeLayout is the text form of every timestamp in the store.
// Values are UTC, so lexicographic order matches temporal order, and the
// layout is one SQLite's date functions understand.
const TimeLayout = "2006-01-02 15:04:05.000"

// FormatTime renders t in TimeLayout after converting to UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp. It also accepts the second-precision
// form SQLite's CURRENT_TIMESTAMP produces.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range []string{TimeLayout, time.DateTime, time.RFC3339Nano} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q: unrecognised layout", s)
}
