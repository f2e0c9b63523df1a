package bookings

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the booking lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// ValidStatus rejects values outside the closed status set.
func ValidStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return Status(s), true
	}
	return "", false
}

// Source identifies how the booking was created.
type Source string

const (
	SourceManual  Source = "manual"
	SourceWebsite Source = "website"
	SourceAISMS   Source = "ai_sms"
)

// TimeOfDay is minutes since midnight. Slot arithmetic and overlap checks
// operate on this rather than wall-clock timestamps.
type TimeOfDay int

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("bookings: invalid time of day %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("bookings: invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("bookings: invalid minute in %q", s)
	}
	return TimeOfDay(hour*60 + minute), nil
}

// HourOfDay returns a TimeOfDay on the hour.
func HourOfDay(hour int) TimeOfDay {
	return TimeOfDay(hour * 60)
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int { return int(t) }

// String formats as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Label formats for customer-facing messages, e.g. "9am", "1:30pm".
func (t TimeOfDay) Label() string {
	hour := int(t) / 60
	minute := int(t) % 60
	suffix := "am"
	display := hour
	switch {
	case hour == 0:
		display = 12
	case hour == 12:
		suffix = "pm"
	case hour > 12:
		display = hour - 12
		suffix = "pm"
	}
	if minute == 0 {
		return fmt.Sprintf("%d%s", display, suffix)
	}
	return fmt.Sprintf("%d:%02d%s", display, minute, suffix)
}

// Interval is a half-open [Start, End) time-of-day range.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Overlaps reports half-open interval intersection:
// a.Start < b.End && a.End > b.Start.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start < b.End && a.End > b.Start
}

// Booking is a committed calendar entry.
type Booking struct {
	ID              string
	ProfileID       string
	LeadID          string
	CustomerName    string
	CustomerPhone   string
	CustomerEmail   string
	Title           string
	Description     string
	BookingDate     time.Time // date component only, in the business timezone
	StartTime       TimeOfDay
	EndTime         TimeOfDay
	Status          Status
	Source          Source
	Notes           string
	ReminderSent24h bool
	ReminderSent2h  bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Interval returns the booking's occupied time-of-day range.
func (b *Booking) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// StartAt combines the booking date and start time in the given location.
func (b *Booking) StartAt(loc *time.Location) time.Time {
	return time.Date(b.BookingDate.Year(), b.BookingDate.Month(), b.BookingDate.Day(),
		b.StartTime.Hour(), b.StartTime.Minutes()%60, 0, 0, loc)
}

// CreateBookingRequest carries the fields for committing a booking.
type CreateBookingRequest struct {
	ProfileID     string
	LeadID        string
	CustomerName  string
	CustomerPhone string
	CustomerEmail string
	Title         string
	Description   string
	BookingDate   time.Time
	StartTime     TimeOfDay
	EndTime       TimeOfDay
	Status        Status
	Source        Source
	Notes         string
}
