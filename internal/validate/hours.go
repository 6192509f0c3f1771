package validate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrOutsideBusinessHours is reported when an appointment time falls outside the clinic windows.
var ErrOutsideBusinessHours = errors.New("validate: outside business hours")

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

// NewClock builds a Clock from hour and minute.
func NewClock(hour, minute int) Clock { return Clock(hour*60 + minute) }

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("validate: parse clock %q: %w", s, err)
	}
	return NewClock(t.Hour(), t.Minute()), nil
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }

// UnmarshalText lets clocks be written as "08:00" in configuration files.
func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// MarshalText renders the clock as "HH:MM".
func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Window is a half-open interval [Start, End) within one day.
type Window struct {
	Start Clock `yaml:"start" json:"start"`
	End   Clock `yaml:"end" json:"end"`
}

func (w Window) contains(c Clock) bool { return c >= w.Start && c < w.End }

// Day is a weekday that reads and writes as its English name.
type Day time.Weekday

// UnmarshalText accepts weekday names, case-insensitive ("monday", "Mon").
func (d *Day) UnmarshalText(b []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(b)))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		full := strings.ToLower(wd.String())
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			*d = Day(wd)
			return nil
		}
	}
	return fmt.Errorf("validate: unknown weekday %q", string(b))
}

// MarshalText renders the weekday name.
func (d Day) MarshalText() ([]byte, error) { return []byte(time.Weekday(d).String()), nil }

// Hours describes the days and daily windows the clinic takes appointments.
type Hours struct {
	Days    []Day    `yaml:"days" json:"days"`
	Windows []Window `yaml:"windows" json:"windows"`
}

// DefaultHours is Monday to Friday, 08:00-12:00 and 13:00-18:00.
func DefaultHours() Hours {
	return Hours{
		Days: []Day{
			Day(time.Monday), Day(time.Tuesday), Day(time.Wednesday), Day(time.Thursday), Day(time.Friday),
		},
		Windows: []Window{
			{Start: NewClock(8, 0), End: NewClock(12, 0)},
			{Start: NewClock(13, 0), End: NewClock(18, 0)},
		},
	}
}

// Validate reports configuration mistakes such as empty or inverted windows.
func (h Hours) Validate() error {
	if len(h.Days) == 0 {
		return errors.New("validate: hours: no days configured")
	}
	if len(h.Windows) == 0 {
		return errors.New("validate: hours: no windows configured")
	}
	for _, w := range h.Windows {
		if w.End <= w.Start {
			return fmt.Errorf("validate: hours: window %s-%s is empty", w.Start, w.End)
		}
	}
	return nil
}

// Contains reports whether t (already in clinic-local time) falls on an open day inside
// one of the windows. Seconds are ignored, so 11:59:59 is inside and 12:00 is not.
func (h Hours) Contains(t time.Time) bool {
	open := false
	for _, d := range h.Days {
		if time.Weekday(d) == t.Weekday() {
			open = true
			break
		}
	}
	if !open {
		return false
	}
	c := NewClock(t.Hour(), t.Minute())
	for _, w := range h.Windows {
		if w.contains(c) {
			return true
		}
	}
	return false
}

// Describe renders the windows for prompts, e.g. "08:00-12:00, 13:00-18:00".
func (h Hours) Describe() string {
	parts := make([]string, 0, len(h.Windows))
	for _, w := range h.Windows {
		parts = append(parts, w.Start.String()+"-"+w.End.String())
	}
	return strings.Join(parts, ", ")
}

// ValidateBusinessHours checks t against DefaultHours. No timezone conversion happens here.
func ValidateBusinessHours(t time.Time) bool { return DefaultHours().Contains(t) }
