package reminders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/autoflowai/autoflow/internal/bookings"
	"github.com/autoflowai/autoflow/internal/profiles"
	"github.com/autoflowai/autoflow/pkg/logging"
)

// ProfileSource lists the businesses whose bookings get reminders.
type ProfileSource interface {
	ListWithTelephony(ctx context.Context) ([]profiles.Profile, error)
}

// BookingSource exposes the unreminded-booking queries and the conditional
// flag flip.
type BookingSource interface {
	ListUnreminded24h(ctx context.Context, profileID string, fromDate, toDate time.Time) ([]bookings.Booking, error)
	ListUnreminded2h(ctx context.Context, profileID string, date time.Time) ([]bookings.Booking, error)
	MarkReminderSent(ctx context.Context, id string, window bookings.ReminderWindow) (bool, error)
}

// SMSSender delivers reminder texts.
type SMSSender interface {
	SendSMS(ctx context.Context, from, to, body string) (string, error)
}

// Metrics counts reminder outcomes.
type Metrics interface {
	ReminderSent(window string)
	ReminderFailed()
}

// Result summarizes a sweep.
type Result struct {
	Sent24h int
	Sent2h  int
	Errors  int
}

// Sweeper walks every telephony-enabled business and sends due booking
// reminders. Per-business failures are logged and counted, never fatal to
// the rest of the sweep.
type Sweeper struct {
	profiles ProfileSource
	bookings BookingSource
	sms      SMSSender
	metrics  Metrics
	logger   *logging.Logger

	defaultTimezone string
	now             func() time.Time
}

// NewSweeper wires a reminder sweeper. defaultTimezone applies to profiles
// without a configured timezone.
func NewSweeper(profileSrc ProfileSource, bookingSrc BookingSource, sms SMSSender, metrics Metrics, defaultTimezone string, logger *logging.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{
		profiles:        profileSrc,
		bookings:        bookingSrc,
		sms:             sms,
		metrics:         metrics,
		logger:          logger,
		defaultTimezone: defaultTimezone,
		now:             time.Now,
	}
}

// ProcessDue runs one sweep and reports what was sent.
func (s *Sweeper) ProcessDue(ctx context.Context) (Result, error) {
	var res Result

	profs, err := s.profiles.ListWithTelephony(ctx)
	if err != nil {
		return res, fmt.Errorf("reminders: list profiles: %w", err)
	}

	for i := range profs {
		profile := &profs[i]
		loc := profile.Location(s.defaultTimezone)
		now := s.now().In(loc)

		s.sweep24h(ctx, profile, now, &res)
		s.sweep2h(ctx, profile, now, &res)
	}

	s.logger.Info("reminder sweep complete", "sent_24h", res.Sent24h, "sent_2h", res.Sent2h, "errors", res.Errors)
	return res, nil
}

func (s *Sweeper) sweep24h(ctx context.Context, profile *profiles.Profile, now time.Time, res *Result) {
	from := dateOnly(now.Add(23 * time.Hour))
	to := dateOnly(now.Add(25 * time.Hour))

	due, err := s.bookings.ListUnreminded24h(ctx, profile.ID, from, to)
	if err != nil {
		s.logger.Error("24h reminder query failed", "error", err, "profile_id", profile.ID)
		res.Errors++
		return
	}

	for i := range due {
		booking := &due[i]
		if booking.CustomerPhone == "" {
			continue
		}
		body := reminder24hMessage(profile, booking)
		if !s.deliver(ctx, profile, booking, bookings.Window24h, body, res) {
			continue
		}
		res.Sent24h++
	}
}

func (s *Sweeper) sweep2h(ctx context.Context, profile *profiles.Profile, now time.Time, res *Result) {
	due, err := s.bookings.ListUnreminded2h(ctx, profile.ID, dateOnly(now))
	if err != nil {
		s.logger.Error("2h reminder query failed", "error", err, "profile_id", profile.ID)
		res.Errors++
		return
	}

	nowMinutes := now.Hour()*60 + now.Minute()
	for i := range due {
		booking := &due[i]
		if booking.CustomerPhone == "" {
			continue
		}
		diff := booking.StartTime.Minutes() - nowMinutes
		if diff < 90 || diff > 150 {
			continue
		}
		body := reminder2hMessage(profile, booking)
		if !s.deliver(ctx, profile, booking, bookings.Window2h, body, res) {
			continue
		}
		res.Sent2h++
	}
}

// deliver sends the reminder and then flips the flag. The flag flip is
// conditional, so an overlapping sweep that already claimed this booking
// does not count it twice.
func (s *Sweeper) deliver(ctx context.Context, profile *profiles.Profile, booking *bookings.Booking, window bookings.ReminderWindow, body string, res *Result) bool {
	if _, err := s.sms.SendSMS(ctx, profile.TwilioPhoneNumber, booking.CustomerPhone, body); err != nil {
		s.logger.Error("reminder send failed", "error", err, "booking_id", booking.ID, "window", string(window))
		res.Errors++
		if s.metrics != nil {
			s.metrics.ReminderFailed()
		}
		return false
	}

	claimed, err := s.bookings.MarkReminderSent(ctx, booking.ID, window)
	if err != nil {
		s.logger.Error("reminder flag update failed", "error", err, "booking_id", booking.ID, "window", string(window))
		res.Errors++
		return false
	}
	if !claimed {
		s.logger.Warn("reminder already claimed by another sweep", "booking_id", booking.ID, "window", string(window))
		return false
	}

	if s.metrics != nil {
		s.metrics.ReminderSent(string(window))
	}
	s.logger.Info("reminder sent", "booking_id", booking.ID, "window", string(window), "to", booking.CustomerPhone)
	return true
}

func reminder24hMessage(profile *profiles.Profile, booking *bookings.Booking) string {
	name := firstName(booking.CustomerName)
	business := profile.DisplayName()
	day := booking.BookingDate.Weekday().String()
	at := booking.StartTime.Label()

	switch profile.ResponseTone {
	case profiles.ToneProfessional:
		return fmt.Sprintf("Hi %s, this is a reminder that you have an appointment with %s tomorrow (%s) at %s. Reply CANCEL if you need to reschedule.", name, business, day, at)
	case profiles.ToneCasual:
		return fmt.Sprintf("Hey %s! Just a reminder you've got an appointment with %s tomorrow (%s) at %s. Reply CANCEL if you need to reschedule.", name, business, day, at)
	default:
		return fmt.Sprintf("Hi %s, just a reminder you have an appointment with %s tomorrow (%s) at %s. See you then! Reply CANCEL if you need to reschedule.", name, business, day, at)
	}
}

func reminder2hMessage(profile *profiles.Profile, booking *bookings.Booking) string {
	name := firstName(booking.CustomerName)
	business := profile.DisplayName()
	at := booking.StartTime.Label()

	switch profile.ResponseTone {
	case profiles.ToneProfessional:
		return fmt.Sprintf("Hi %s, your appointment with %s is in about 2 hours at %s. We look forward to seeing you.", name, business, at)
	case profiles.ToneCasual:
		return fmt.Sprintf("Hey %s! Heads up: your appointment with %s is in about 2 hours at %s. See you soon!", name, business, at)
	default:
		return fmt.Sprintf("Hi %s, just a heads up: your appointment with %s is in about 2 hours at %s. See you soon!", name, business, at)
	}
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "there"
	}
	return fields[0]
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
