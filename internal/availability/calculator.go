// Package availability turns a doctor's declared working hours into bookable
// slots for a single day.
package availability

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"time"
)

const DefaultSlotMinutes = 30

const LeaveApproved = "approved"

var (
	ErrInvalidDuration = errors.New("slot duration must be positive")
	ErrInvalidHours    = errors.New("invalid working hours")
)

// DayHours is the working-hours entry for one weekday.
type DayHours struct {
	Weekday     time.Weekday `json:"weekday"`
	IsAvailable bool         `json:"is_available"`
	Start       Clock        `json:"start"`
	End         Clock        `json:"end"`
	Break       *TimeRange   `json:"break,omitempty"`
}

func (d DayHours) Validate() error {
	if !d.IsAvailable {
		return nil
	}
	if !(TimeRange{Start: d.Start, End: d.End}).Valid() {
		return fmt.Errorf("%w: %s start %s must be before end %s", ErrInvalidHours, d.Weekday, d.Start, d.End)
	}
	if d.Break != nil {
		if !d.Break.Valid() || !(TimeRange{Start: d.Start, End: d.End}).Contains(*d.Break) {
			return fmt.Errorf("%w: %s break %s outside %s-%s", ErrInvalidHours, d.Weekday, d.Break, d.Start, d.End)
		}
	}
	return nil
}

// WorkingHours is a doctor's weekly plan plus the length of one appointment.
type WorkingHours struct {
	Days        []DayHours `json:"days"`
	SlotMinutes int        `json:"slot_minutes"`
}

// ForWeekday returns the entry for wd, if the doctor declared one.
func (w WorkingHours) ForWeekday(wd time.Weekday) (DayHours, bool) {
	for _, d := range w.Days {
		if d.Weekday == wd {
			return d, true
		}
	}
	return DayHours{}, false
}

type Leave struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	Status    string    `json:"status"`
}

// Covers reports whether date falls inside the leave period, inclusive.
func (l Leave) Covers(date time.Time) bool {
	d := DateOf(date)
	return !d.Before(DateOf(l.StartDate)) && !d.After(DateOf(l.EndDate))
}

// OnLeave only honours approved leave; pending or rejected requests do not
// close the day.
func OnLeave(date time.Time, leaves []Leave) bool {
	for _, l := range leaves {
		if l.Status == LeaveApproved && l.Covers(date) {
			return true
		}
	}
	return false
}

type Slot struct {
	Start           Clock `json:"start"`
	End             Clock `json:"end"`
	DurationMinutes int   `json:"duration_minutes"`
	IsBooked        bool  `json:"is_booked"`
}

func (s Slot) Range() TimeRange {
	return TimeRange{Start: s.Start, End: s.End}
}

// Slots yields the slots for date. The sequence holds no state between
// iterations, so ranging over it twice yields the same slots. booked holds the
// ranges already taken by blocking appointments that day.
func Slots(hours WorkingHours, date time.Time, leaves []Leave, booked []TimeRange) (iter.Seq[Slot], error) {
	if hours.SlotMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	day, ok := hours.ForWeekday(date.Weekday())
	if !ok || !day.IsAvailable || OnLeave(date, leaves) {
		return func(func(Slot) bool) {}, nil
	}
	if err := day.Validate(); err != nil {
		return nil, err
	}

	step := hours.SlotMinutes
	return func(yield func(Slot) bool) {
		for start := day.Start; start.Add(step) <= day.End; start = start.Add(step) {
			candidate := TimeRange{Start: start, End: start.Add(step)}
			if day.Break != nil && candidate.Overlaps(*day.Break) {
				continue
			}
			slot := Slot{
				Start:           candidate.Start,
				End:             candidate.End,
				DurationMinutes: step,
				IsBooked:        OverlapsAny(candidate, booked),
			}
			if !yield(slot) {
				return
			}
		}
	}, nil
}

// SlotList is Slots collected into a slice.
func SlotList(hours WorkingHours, date time.Time, leaves []Leave, booked []TimeRange) ([]Slot, error) {
	seq, err := Slots(hours, date, leaves, booked)
	if err != nil {
		return nil, err
	}
	out := slices.Collect(seq)
	if out == nil {
		out = []Slot{}
	}
	return out, nil
}

// OverlapsAny reports whether r intersects any of ranges.
func OverlapsAny(r TimeRange, ranges []TimeRange) bool {
	for _, b := range ranges {
		if r.Overlaps(b) {
			return true
		}
	}
	return false
}

// InHours reports whether r lies inside the doctor's working day on date,
// clear of the break and of approved leave. Unlike Slots it does not require r
// to sit on the slot grid.
func InHours(hours WorkingHours, date time.Time, leaves []Leave, r TimeRange) bool {
	day, ok := hours.ForWeekday(date.Weekday())
	if !ok || !day.IsAvailable || OnLeave(date, leaves) || !r.Valid() {
		return false
	}
	if !(TimeRange{Start: day.Start, End: day.End}).Contains(r) {
		return false
	}
	return day.Break == nil || !r.Overlaps(*day.Break)
}
