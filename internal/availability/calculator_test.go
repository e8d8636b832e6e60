package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func weekdayHours(breakWindow *TimeRange) WorkingHours {
	return WorkingHours{
		SlotMinutes: 30,
		Days: []DayHours{{
			Weekday:     time.Monday,
			IsAvailable: true,
			Start:       NewClock(9, 0),
			End:         NewClock(17, 0),
			Break:       breakWindow,
		}},
	}
}

func TestSlotList_FullDayWithLunchBreak(t *testing.T) {
	hours := weekdayHours(&TimeRange{Start: NewClock(13, 0), End: NewClock(14, 0)})

	slots, err := SlotList(hours, monday, nil, nil)
	require.NoError(t, err)
	require.Len(t, slots, 14)

	assert.Equal(t, "09:00", slots[0].Start.String())
	assert.Equal(t, "12:30", slots[7].Start.String())
	assert.Equal(t, "14:00", slots[8].Start.String())
	assert.Equal(t, "17:00", slots[13].End.String())
	for _, s := range slots {
		assert.False(t, s.IsBooked)
		assert.Equal(t, 30, s.DurationMinutes)
		assert.False(t, s.Range().Overlaps(TimeRange{Start: NewClock(13, 0), End: NewClock(14, 0)}))
	}
}

func TestSlotList_NoEntryForWeekday(t *testing.T) {
	hours := weekdayHours(nil)

	slots, err := SlotList(hours, monday.AddDate(0, 0, 1), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotList_UnavailableDay(t *testing.T) {
	hours := weekdayHours(nil)
	hours.Days[0].IsAvailable = false

	slots, err := SlotList(hours, monday, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotList_ApprovedLeaveClosesDay(t *testing.T) {
	hours := weekdayHours(nil)
	leaves := []Leave{{StartDate: monday.AddDate(0, 0, -2), EndDate: monday, Status: LeaveApproved}}

	slots, err := SlotList(hours, monday, leaves, nil)
	require.NoError(t, err)
	assert.Empty(t, slots)
}

func TestSlotList_PendingLeaveIgnored(t *testing.T) {
	hours := weekdayHours(nil)
	leaves := []Leave{{StartDate: monday, EndDate: monday, Status: "pending"}}

	slots, err := SlotList(hours, monday, leaves, nil)
	require.NoError(t, err)
	assert.Len(t, slots, 16)
}

func TestSlotList_DropsPartialFinalSlot(t *testing.T) {
	hours := weekdayHours(nil)
	hours.Days[0].End = NewClock(10, 45)

	slots, err := SlotList(hours, monday, nil, nil)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, "10:30", slots[2].End.String())
}

func TestSlotList_BreakUntilEndOfDay(t *testing.T) {
	hours := weekdayHours(&TimeRange{Start: NewClock(16, 0), End: NewClock(17, 0)})

	slots, err := SlotList(hours, monday, nil, nil)
	require.NoError(t, err)
	require.Len(t, slots, 14)
	assert.Equal(t, "16:00", slots[13].End.String())
}

func TestSlotList_MarksBookedRanges(t *testing.T) {
	hours := weekdayHours(nil)
	booked := []TimeRange{{Start: NewClock(10, 15), End: NewClock(10, 45)}}

	slots, err := SlotList(hours, monday, nil, booked)
	require.NoError(t, err)

	var bookedStarts []string
	for _, s := range slots {
		if s.IsBooked {
			bookedStarts = append(bookedStarts, s.Start.String())
		}
	}
	assert.Equal(t, []string{"10:00", "10:30"}, bookedStarts)
}

func TestSlots_InvalidDuration(t *testing.T) {
	hours := weekdayHours(nil)
	hours.SlotMinutes = 0

	_, err := Slots(hours, monday, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestSlots_InvalidHours(t *testing.T) {
	hours := weekdayHours(&TimeRange{Start: NewClock(8, 0), End: NewClock(9, 30)})

	_, err := Slots(hours, monday, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidHours)
}

func TestSlots_Restartable(t *testing.T) {
	hours := weekdayHours(&TimeRange{Start: NewClock(13, 0), End: NewClock(14, 0)})
	seq, err := Slots(hours, monday, nil, nil)
	require.NoError(t, err)

	var first, second []Slot
	for s := range seq {
		first = append(first, s)
	}
	for s := range seq {
		second = append(second, s)
	}
	assert.Equal(t, first, second)

	count := 0
	for range seq {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:05")
	require.NoError(t, err)
	assert.Equal(t, NewClock(9, 5), c)

	c, err = ParseClock("13.30")
	require.NoError(t, err)
	assert.Equal(t, "13:30", c.String())

	for _, bad := range []string{"", "9", "25:00", "10:60", "ab:cd", "24:30"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidClock, bad)
	}
}

func TestTimeRange_Overlaps(t *testing.T) {
	base := TimeRange{Start: NewClock(10, 0), End: NewClock(10, 30)}

	assert.True(t, base.Overlaps(TimeRange{Start: NewClock(10, 15), End: NewClock(10, 45)}))
	assert.True(t, base.Overlaps(TimeRange{Start: NewClock(9, 0), End: NewClock(11, 0)}))
	assert.False(t, base.Overlaps(TimeRange{Start: NewClock(10, 30), End: NewClock(11, 0)}))
	assert.False(t, base.Overlaps(TimeRange{Start: NewClock(9, 30), End: NewClock(10, 0)}))
}

func TestClock_Scan(t *testing.T) {
	var c Clock
	require.NoError(t, c.Scan(int64(615)))
	assert.Equal(t, "10:15", c.String())

	require.NoError(t, c.Scan("08:45"))
	assert.Equal(t, NewClock(8, 45), c)

	assert.Error(t, c.Scan(3.5))
}

func TestInHours(t *testing.T) {
	hours := weekdayHours(&TimeRange{Start: NewClock(13, 0), End: NewClock(14, 0)})
	r := func(sh, sm, eh, em int) TimeRange { return TimeRange{Start: NewClock(sh, sm), End: NewClock(eh, em)} }

	assert.True(t, InHours(hours, monday, nil, r(10, 15, 10, 45)))
	assert.False(t, InHours(hours, monday, nil, r(8, 30, 9, 30)))
	assert.False(t, InHours(hours, monday, nil, r(12, 45, 13, 15)))
	assert.False(t, InHours(hours, monday.AddDate(0, 0, 1), nil, r(10, 0, 10, 30)))

	leave := []Leave{{StartDate: monday, EndDate: monday, Status: LeaveApproved}}
	assert.False(t, InHours(hours, monday, leave, r(10, 0, 10, 30)))
}
