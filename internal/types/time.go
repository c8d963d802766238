package types

import (
	"fmt"
	"time"
)

// TimeLayout is the wire format for all dex timestamps: UTC ISO-8601 with
// millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Time wraps time.Time to marshal as millisecond-precision UTC ISO-8601.
// The zero value marshals as null-like empty and should be avoided in
// required fields; optional timestamps use *Time.
type Time struct {
	time.Time
}

// Now returns the current wall-clock time truncated to millisecond precision.
func Now() Time {
	return Time{time.Now().UTC().Truncate(time.Millisecond)}
}

// At wraps an arbitrary time.Time, normalizing to UTC millisecond precision.
func At(t time.Time) Time {
	return Time{t.UTC().Truncate(time.Millisecond)}
}

// AtPtr returns a *Time for optional fields.
func AtPtr(t time.Time) *Time {
	v := At(t)
	return &v
}

// MarshalJSON implements json.Marshaler.
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.UTC().Format(TimeLayout) + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. Accepts the canonical layout
// plus RFC3339 with arbitrary sub-second precision and numeric offsets, so
// files written by other tools still load.
func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid timestamp %s", s)
	}
	s = s[1 : len(s)-1]
	for _, layout := range []string{TimeLayout, time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05Z"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = At(parsed)
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}

// String returns the canonical wire form.
func (t Time) String() string {
	return t.UTC().Format(TimeLayout)
}
