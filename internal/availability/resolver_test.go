package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoflowai/autoflow/internal/bookings"
)

type fakeCalendar struct {
	rules      []Rule
	blocked    []BlockedDate
	rulesErr   error
	blockedErr error
}

func (f *fakeCalendar) ListRules(ctx context.Context, profileID string) ([]Rule, error) {
	return f.rules, f.rulesErr
}

func (f *fakeCalendar) ListBlockedDates(ctx context.Context, profileID string, from, to time.Time) ([]BlockedDate, error) {
	return f.blocked, f.blockedErr
}

type fakeBookings struct {
	bookings []bookings.Booking
	err      error
}

func (f *fakeBookings) ListActiveInRange(ctx context.Context, profileID string, from, to time.Time) ([]bookings.Booking, error) {
	return f.bookings, f.err
}

func mustTime(t *testing.T, s string) bookings.TimeOfDay {
	t.Helper()
	tod, err := bookings.ParseTimeOfDay(s)
	require.NoError(t, err)
	return tod
}

// Tue 3 Mar 2026. The following Monday is 9 Mar.
var testNow = time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)

func mondayRuleOnly(t *testing.T) *fakeCalendar {
	t.Helper()
	return &fakeCalendar{rules: []Rule{
		{ProfileID: "prof-1", DayOfWeek: 1, StartTime: mustTime(t, "09:00"), EndTime: mustTime(t, "12:00"), IsAvailable: true},
		{ProfileID: "prof-1", DayOfWeek: 2, IsAvailable: false},
		{ProfileID: "prof-1", DayOfWeek: 3, IsAvailable: false},
		{ProfileID: "prof-1", DayOfWeek: 4, IsAvailable: false},
		{ProfileID: "prof-1", DayOfWeek: 5, IsAvailable: false},
	}}
}

func TestResolve_MondayMorningRule(t *testing.T) {
	r := NewResolver(mondayRuleOnly(t), &fakeBookings{}, 14, 5, 7, 17)

	days, err := r.Resolve(context.Background(), "prof-1", testNow, time.UTC)
	require.NoError(t, err)
	require.Len(t, days, 2) // two Mondays inside the 14-day window

	monday := days[0]
	assert.Equal(t, time.Monday, monday.Date.Weekday())
	assert.Equal(t, 9, monday.Date.Day())
	require.Len(t, monday.Slots, 3)
	assert.Equal(t, "09:00", monday.Slots[0].Start.String())
	assert.Equal(t, "10:00", monday.Slots[1].Start.String())
	assert.Equal(t, "11:00", monday.Slots[2].Start.String())
}

func TestResolve_ExcludesBookedHour(t *testing.T) {
	booked := &fakeBookings{bookings: []bookings.Booking{{
		ProfileID:   "prof-1",
		BookingDate: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		StartTime:   bookings.HourOfDay(10),
		EndTime:     bookings.HourOfDay(11),
		Status:      bookings.StatusConfirmed,
	}}}
	r := NewResolver(mondayRuleOnly(t), booked, 14, 5, 7, 17)

	days, err := r.Resolve(context.Background(), "prof-1", testNow, time.UTC)
	require.NoError(t, err)
	require.NotEmpty(t, days)

	monday := days[0]
	require.Len(t, monday.Slots, 2)
	assert.Equal(t, "09:00", monday.Slots[0].Start.String())
	assert.Equal(t, "11:00", monday.Slots[1].Start.String())
}

func TestResolve_DefaultWeekdayHours(t *testing.T) {
	// No stored rules at all: weekdays fall back to 7-17, weekends closed.
	r := NewResolver(&fakeCalendar{}, &fakeBookings{}, 14, 5, 7, 17)

	days, err := r.Resolve(context.Background(), "prof-1", testNow, time.UTC)
	require.NoError(t, err)
	require.Len(t, days, 5)
	for _, day := range days {
		wd := day.Date.Weekday()
		assert.NotEqual(t, time.Saturday, wd)
		assert.NotEqual(t, time.Sunday, wd)
	}
	// 10 open hours downsample to first, middle, last.
	require.Len(t, days[0].Slots, 3)
	assert.Equal(t, "07:00", days[0].Slots[0].Start.String())
	assert.Equal(t, "12:00", days[0].Slots[1].Start.String())
	assert.Equal(t, "16:00", days[0].Slots[2].Start.String())
}

func TestResolve_SkipsBlockedDate(t *testing.T) {
	cal := mondayRuleOnly(t)
	cal.blocked = []BlockedDate{{
		ProfileID: "prof-1",
		Date:      time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		Reason:    "public holiday",
	}}
	r := NewResolver(cal, &fakeBookings{}, 14, 5, 7, 17)

	days, err := r.Resolve(context.Background(), "prof-1", testNow, time.UTC)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, 16, days[0].Date.Day()) // only the second Monday survives
}

func TestResolve_StartsTomorrow(t *testing.T) {
	r := NewResolver(&fakeCalendar{}, &fakeBookings{}, 14, 5, 7, 17)

	days, err := r.Resolve(context.Background(), "prof-1", testNow, time.UTC)
	require.NoError(t, err)
	require.NotEmpty(t, days)
	assert.True(t, days[0].Date.After(testNow), "first opening must be after today")
	assert.Equal(t, 4, days[0].Date.Day())
}

func TestResolve_FullyBookedDayYieldsNoOpenings(t *testing.T) {
	var taken []bookings.Booking
	for h := 9; h < 12; h++ {
		taken = append(taken, bookings.Booking{
			ProfileID:   "prof-1",
			BookingDate: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
			StartTime:   bookings.HourOfDay(h),
			EndTime:     bookings.HourOfDay(h + 1),
		})
	}
	r := NewResolver(mondayRuleOnly(t), &fakeBookings{bookings: taken}, 14, 5, 7, 17)

	days, err := r.Resolve(context.Background(), "prof-1", testNow, time.UTC)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, 16, days[0].Date.Day())
}

func TestResolve_StopsAtTargetDays(t *testing.T) {
	r := NewResolver(&fakeCalendar{}, &fakeBookings{}, 14, 2, 7, 17)

	days, err := r.Resolve(context.Background(), "prof-1", testNow, time.UTC)
	require.NoError(t, err)
	assert.Len(t, days, 2)
}

func TestResolve_DataAccessFailure(t *testing.T) {
	boom := errors.New("connection refused")

	_, err := NewResolver(&fakeCalendar{rulesErr: boom}, &fakeBookings{}, 14, 5, 7, 17).
		Resolve(context.Background(), "prof-1", testNow, time.UTC)
	assert.ErrorIs(t, err, boom)

	_, err = NewResolver(&fakeCalendar{}, &fakeBookings{err: boom}, 14, 5, 7, 17).
		Resolve(context.Background(), "prof-1", testNow, time.UTC)
	assert.ErrorIs(t, err, boom)
}

func TestFormatOpenings(t *testing.T) {
	days := []DayOpenings{{
		Date: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		Slots: []Slot{
			{Start: bookings.HourOfDay(9)},
			{Start: bookings.HourOfDay(13)},
		},
	}}
	assert.Equal(t, "Monday Mar 9: 9am, 1pm", FormatOpenings(days))
	assert.Equal(t, "No availability in the next two weeks.", FormatOpenings(nil))
}
