package availability

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var ErrInvalidClock = errors.New("invalid clock time")

// Clock is a wall-clock time of day in minutes since midnight.
type Clock int

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock accepts "HH:MM" (and "H.MM").
func ParseClock(s string) (Clock, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ".", ":")
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return NewClock(h, m), nil
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) Add(minutes int) Clock { return c + Clock(minutes) }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On anchors the clock to the calendar day of date, in date's location.
func (c Clock) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, date.Location())
}

// ClockOf returns the time of day of t, truncated to the minute.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value stores the clock as minutes since midnight.
func (c Clock) Value() (driver.Value, error) {
	return int64(c), nil
}

func (c *Clock) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*c = Clock(v)
	case int32:
		*c = Clock(v)
	case int:
		*c = Clock(v)
	case string:
		return c.UnmarshalText([]byte(v))
	case nil:
		*c = 0
	default:
		return fmt.Errorf("scan clock: unsupported type %T", src)
	}
	return nil
}

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

func (r TimeRange) Valid() bool {
	return r.Start >= 0 && r.Start < r.End && r.End <= NewClock(24, 0)
}

func (r TimeRange) Minutes() int {
	return int(r.End - r.Start)
}

// Overlaps reports whether two half-open ranges share any minute.
func (r TimeRange) Overlaps(o TimeRange) bool {
	return r.Start < o.End && r.End > o.Start
}

func (r TimeRange) Contains(o TimeRange) bool {
	return r.Start <= o.Start && o.End <= r.End
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// DateOf returns the calendar day of t as midnight UTC, the canonical form
// used for every (doctor, date) key.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}
