package availability

import (
	"time"

	"github.com/autoflowai/autoflow/internal/bookings"
)

// Rule is a recurring weekly open/closed window. At most one rule is
// effective per weekday; the store resolves duplicates latest-write-wins.
type Rule struct {
	ID          string
	ProfileID   string
	DayOfWeek   int // 0=Sunday .. 6=Saturday
	StartTime   bookings.TimeOfDay
	EndTime     bookings.TimeOfDay
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BlockedDate marks a specific calendar date fully unavailable,
// overriding any weekly rule.
type BlockedDate struct {
	ID        string
	ProfileID string
	Date      time.Time
	Reason    string
	CreatedAt time.Time
}

// Slot is a candidate one-hour booking interval on a given date.
type Slot struct {
	Date  time.Time
	Start bookings.TimeOfDay
	End   bookings.TimeOfDay
}

// Interval returns the slot's occupied time-of-day range.
func (s Slot) Interval() bookings.Interval {
	return bookings.Interval{Start: s.Start, End: s.End}
}

// DayOpenings is a day-labelled slot summary for the text generator.
type DayOpenings struct {
	Date  time.Time
	Slots []Slot
}

// Weekday returns the day label, e.g. "Tuesday".
func (d DayOpenings) Weekday() string {
	return d.Date.Weekday().String()
}
