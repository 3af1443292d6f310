package timeofday

import (
	"encoding/json"
	"fmt"
	"time"
)

// LastMinute is 23:59, the latest representable wall-clock minute.
const LastMinute TimeOfDay = 24*60 - 1

// TimeOfDay is a wall-clock time with minute precision, stored as minutes since midnight.
type TimeOfDay int

// New builds a TimeOfDay from hour and minute.
func New(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// Parse reads "HH:MM". "HH:MM:SS" is accepted too and the seconds are dropped.
func Parse(s string) (TimeOfDay, error) {
	var layout string
	switch len(s) {
	case len("15:04"):
		layout = "15:04"
	case len("15:04:05"):
		layout = "15:04:05"
	default:
		return 0, fmt.Errorf("invalid time string: %q", s)
	}
	tt, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time string: %q", s)
	}
	return New(tt.Hour(), tt.Minute()), nil
}

// MustParse is Parse for constants in tests and fixtures.
func MustParse(s string) TimeOfDay {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Clamp limits m to the [00:00, 23:59] range.
func Clamp(m int) TimeOfDay {
	if m < 0 {
		return 0
	}
	if m > int(LastMinute) {
		return LastMinute
	}
	return TimeOfDay(m)
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Valid reports whether t lies within a single day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= LastMinute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// On places t on the calendar date of d in loc.
func (t TimeOfDay) On(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, t.Hour(), t.Minute(), 0, 0, loc)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse time: %v", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
