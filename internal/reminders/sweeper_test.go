package reminders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoflowai/autoflow/internal/bookings"
	"github.com/autoflowai/autoflow/internal/profiles"
	"github.com/autoflowai/autoflow/pkg/logging"
)

type fakeProfiles struct {
	profiles []profiles.Profile
	err      error
}

func (f *fakeProfiles) ListWithTelephony(context.Context) ([]profiles.Profile, error) {
	return f.profiles, f.err
}

type fakeBookings struct {
	due24h     []bookings.Booking
	due2h      []bookings.Booking
	claimed    map[string]bookings.ReminderWindow
	claimDeny  bool
	from24, to time.Time
	today      time.Time
}

func (f *fakeBookings) ListUnreminded24h(_ context.Context, _ string, fromDate, toDate time.Time) ([]bookings.Booking, error) {
	f.from24, f.to = fromDate, toDate
	return f.due24h, nil
}

func (f *fakeBookings) ListUnreminded2h(_ context.Context, _ string, date time.Time) ([]bookings.Booking, error) {
	f.today = date
	return f.due2h, nil
}

func (f *fakeBookings) MarkReminderSent(_ context.Context, id string, window bookings.ReminderWindow) (bool, error) {
	if f.claimDeny {
		return false, nil
	}
	if f.claimed == nil {
		f.claimed = map[string]bookings.ReminderWindow{}
	}
	f.claimed[id] = window
	return true, nil
}

type fakeSMS struct {
	err    error
	bodies []string
	to     []string
}

func (f *fakeSMS) SendSMS(_ context.Context, _, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.bodies = append(f.bodies, body)
	f.to = append(f.to, to)
	return "SM1", nil
}

// Tuesday morning in the business timezone.
var sweepNow = time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC)

func bookingAt(id string, date time.Time, start bookings.TimeOfDay) bookings.Booking {
	return bookings.Booking{
		ID:            id,
		ProfileID:     "prof-1",
		CustomerName:  "Sam Carter",
		CustomerPhone: "+61400000001",
		BookingDate:   date,
		StartTime:     start,
		EndTime:       start + 60,
		Status:        bookings.StatusConfirmed,
	}
}

func newTestSweeper(profs *fakeProfiles, books *fakeBookings, sms *fakeSMS) *Sweeper {
	s := NewSweeper(profs, books, sms, nil, "UTC", logging.New("error"))
	s.now = func() time.Time { return sweepNow }
	return s
}

func telephonyProfile(tone profiles.Tone) profiles.Profile {
	return profiles.Profile{
		ID:                "prof-1",
		BusinessName:      "Adelaide Plumbing Co",
		ResponseTone:      tone,
		Timezone:          "UTC",
		TwilioPhoneNumber: "+61870000000",
	}
}

func TestSweepSends24hReminder(t *testing.T) {
	tomorrow := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	books := &fakeBookings{due24h: []bookings.Booking{bookingAt("b1", tomorrow, bookings.HourOfDay(9))}}
	sms := &fakeSMS{}
	sweeper := newTestSweeper(&fakeProfiles{profiles: []profiles.Profile{telephonyProfile(profiles.ToneFriendly)}}, books, sms)

	res, err := sweeper.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent24h)
	assert.Equal(t, 0, res.Errors)

	require.Len(t, sms.bodies, 1)
	assert.Contains(t, sms.bodies[0], "Sam")
	assert.Contains(t, sms.bodies[0], "Wednesday")
	assert.Contains(t, sms.bodies[0], "9am")
	assert.Contains(t, sms.bodies[0], "Reply CANCEL")
	assert.Equal(t, bookings.Window24h, books.claimed["b1"])

	// 23h and 25h ahead of Tuesday 09:00 both land on Wednesday.
	assert.Equal(t, tomorrow, books.from24)
	assert.Equal(t, tomorrow, books.to)
}

func TestSweep2hWindowFilter(t *testing.T) {
	today := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	books := &fakeBookings{due2h: []bookings.Booking{
		bookingAt("soon", today, bookings.HourOfDay(11)),         // 120 min out
		bookingAt("too-soon", today, bookings.HourOfDay(10)),     // 60 min out
		bookingAt("too-far", today, bookings.HourOfDay(13)),      // 240 min out
		bookingAt("edge-low", today, bookings.HourOfDay(10)+30),  // 90 min out
		bookingAt("edge-high", today, bookings.HourOfDay(11)+30), // 150 min out
	}}
	sms := &fakeSMS{}
	sweeper := newTestSweeper(&fakeProfiles{profiles: []profiles.Profile{telephonyProfile(profiles.ToneFriendly)}}, books, sms)

	res, err := sweeper.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent2h)
	assert.Equal(t, today, books.today)

	assert.Contains(t, books.claimed, "soon")
	assert.Contains(t, books.claimed, "edge-low")
	assert.Contains(t, books.claimed, "edge-high")
	assert.NotContains(t, books.claimed, "too-soon")
	assert.NotContains(t, books.claimed, "too-far")

	require.NotEmpty(t, sms.bodies)
	assert.Contains(t, sms.bodies[0], "in about 2 hours")
}

func TestSweepSkipsBookingsWithoutPhone(t *testing.T) {
	tomorrow := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	b := bookingAt("b1", tomorrow, bookings.HourOfDay(9))
	b.CustomerPhone = ""
	books := &fakeBookings{due24h: []bookings.Booking{b}}
	sms := &fakeSMS{}
	sweeper := newTestSweeper(&fakeProfiles{profiles: []profiles.Profile{telephonyProfile(profiles.ToneFriendly)}}, books, sms)

	res, err := sweeper.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sent24h)
	assert.Empty(t, sms.bodies)
	assert.Empty(t, books.claimed)
}

func TestSweepSendFailureLeavesFlagUnset(t *testing.T) {
	tomorrow := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	books := &fakeBookings{due24h: []bookings.Booking{bookingAt("b1", tomorrow, bookings.HourOfDay(9))}}
	sms := &fakeSMS{err: errors.New("carrier down")}
	sweeper := newTestSweeper(&fakeProfiles{profiles: []profiles.Profile{telephonyProfile(profiles.ToneFriendly)}}, books, sms)

	res, err := sweeper.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sent24h)
	assert.Equal(t, 1, res.Errors)
	assert.Empty(t, books.claimed, "flag must only flip after a successful send")
}

func TestSweepAlreadyClaimedNotCounted(t *testing.T) {
	tomorrow := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	books := &fakeBookings{
		due24h:    []bookings.Booking{bookingAt("b1", tomorrow, bookings.HourOfDay(9))},
		claimDeny: true,
	}
	sms := &fakeSMS{}
	sweeper := newTestSweeper(&fakeProfiles{profiles: []profiles.Profile{telephonyProfile(profiles.ToneFriendly)}}, books, sms)

	res, err := sweeper.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Sent24h)
}

func TestReminderToneVariants(t *testing.T) {
	tomorrow := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)
	b := bookingAt("b1", tomorrow, bookings.HourOfDay(9))

	pro := telephonyProfile(profiles.ToneProfessional)
	cas := telephonyProfile(profiles.ToneCasual)
	fri := telephonyProfile(profiles.ToneFriendly)

	assert.Contains(t, reminder24hMessage(&pro, &b), "this is a reminder")
	assert.Contains(t, reminder24hMessage(&cas, &b), "Hey Sam!")
	assert.Contains(t, reminder24hMessage(&fri, &b), "See you then!")

	assert.Contains(t, reminder2hMessage(&pro, &b), "We look forward to seeing you.")
	assert.Contains(t, reminder2hMessage(&cas, &b), "Heads up")
	assert.Contains(t, reminder2hMessage(&fri, &b), "See you soon!")
}

func TestReminderUnnamedCustomer(t *testing.T) {
	b := bookingAt("b1", time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC), bookings.HourOfDay(9))
	b.CustomerName = ""
	p := telephonyProfile(profiles.ToneFriendly)
	assert.Contains(t, reminder24hMessage(&p, &b), "Hi there,")
}

func TestSweepProfileListError(t *testing.T) {
	sweeper := newTestSweeper(&fakeProfiles{err: errors.New("db down")}, &fakeBookings{}, &fakeSMS{})
	_, err := sweeper.ProcessDue(context.Background())
	require.Error(t, err)
}
