package core

import (
	"fmt"
	"time"
)

// DateTimeLayout is the serialized form of task timestamps. Values are
// rendered in the process's local zone without offset information.
const DateTimeLayout = "2006-01-02 15:04:05"

// DateTime wraps time.Time with the gateway's wire format.
type DateTime struct {
	time.Time
}

// Now returns the current local time.
func Now() DateTime {
	return DateTime{time.Now()}
}

// NewDateTime wraps an existing time value.
func NewDateTime(t time.Time) DateTime {
	return DateTime{t}
}

// MarshalJSON renders the timestamp as "2006-01-02 15:04:05" local time.
func (t DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.In(time.Local).Format(DateTimeLayout) + `"`), nil
}

// UnmarshalJSON parses the wire format, interpreting it in the local zone.
func (t *DateTime) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid datetime value: %s", data)
	}
	parsed, err := time.ParseInLocation(DateTimeLayout, string(data[1:len(data)-1]), time.Local)
	if err != nil {
		return fmt.Errorf("invalid datetime value %s: %w", data, err)
	}
	t.Time = parsed
	return nil
}

// String implements fmt.Stringer using the wire format.
func (t DateTime) String() string {
	return t.In(time.Local).Format(DateTimeLayout)
}
