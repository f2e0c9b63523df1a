package availability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/autoflowai/autoflow/internal/bookings"
)

// RuleSource loads calendar configuration for a profile.
type RuleSource interface {
	ListRules(ctx context.Context, profileID string) ([]Rule, error)
	ListBlockedDates(ctx context.Context, profileID string, from, to time.Time) ([]BlockedDate, error)
}

// BookingSource loads occupied intervals for a profile.
type BookingSource interface {
	ListActiveInRange(ctx context.Context, profileID string, from, to time.Time) ([]bookings.Booking, error)
}

// Resolver computes open appointment slots from weekly rules, one-off
// blocked dates, and existing bookings. It reads calendar data and has
// no side effects.
type Resolver struct {
	rules    RuleSource
	bookings BookingSource

	lookaheadDays    int
	targetDays       int
	defaultOpenHour  int
	defaultCloseHour int
}

// NewResolver wires a resolver. lookaheadDays caps how far ahead the
// calendar walk goes; targetDays caps how many days with openings are
// returned. The default hours apply on weekdays with no stored rule.
func NewResolver(rules RuleSource, bookingSrc BookingSource, lookaheadDays, targetDays, defaultOpenHour, defaultCloseHour int) *Resolver {
	return &Resolver{
		rules:            rules,
		bookings:         bookingSrc,
		lookaheadDays:    lookaheadDays,
		targetDays:       targetDays,
		defaultOpenHour:  defaultOpenHour,
		defaultCloseHour: defaultCloseHour,
	}
}

// Resolve walks calendar dates from tomorrow through the lookahead window
// and returns up to targetDays days that still have open hourly slots.
// An empty result (or an error) means no availability; the caller should
// escalate to a human rather than keep proposing times.
func (r *Resolver) Resolve(ctx context.Context, profileID string, now time.Time, loc *time.Location) ([]DayOpenings, error) {
	today := time.Date(now.In(loc).Year(), now.In(loc).Month(), now.In(loc).Day(), 0, 0, 0, 0, loc)
	from := today.AddDate(0, 0, 1)
	to := today.AddDate(0, 0, r.lookaheadDays)

	rules, err := r.rules.ListRules(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("availability: resolve: %w", err)
	}
	byWeekday := make(map[int]Rule, len(rules))
	for _, rule := range rules {
		byWeekday[rule.DayOfWeek] = rule
	}

	blockedList, err := r.rules.ListBlockedDates(ctx, profileID, from, to)
	if err != nil {
		return nil, fmt.Errorf("availability: resolve: %w", err)
	}
	blocked := make(map[string]struct{}, len(blockedList))
	for _, b := range blockedList {
		blocked[dateKey(b.Date)] = struct{}{}
	}

	booked, err := r.bookings.ListActiveInRange(ctx, profileID, from, to)
	if err != nil {
		return nil, fmt.Errorf("availability: resolve: %w", err)
	}
	occupied := make(map[string][]bookings.Interval)
	for _, b := range booked {
		key := dateKey(b.BookingDate)
		occupied[key] = append(occupied[key], b.Interval())
	}

	var days []DayOpenings
	for d := 1; d <= r.lookaheadDays && len(days) < r.targetDays; d++ {
		date := today.AddDate(0, 0, d)
		if _, isBlocked := blocked[dateKey(date)]; isBlocked {
			continue
		}

		openHour, closeHour, open := r.hoursFor(date.Weekday(), byWeekday)
		if !open {
			continue
		}

		var slots []Slot
		for h := openHour; h < closeHour; h++ {
			slot := Slot{Date: date, Start: bookings.HourOfDay(h), End: bookings.HourOfDay(h + 1)}
			if overlapsAny(slot.Interval(), occupied[dateKey(date)]) {
				continue
			}
			slots = append(slots, slot)
		}
		if len(slots) == 0 {
			continue
		}
		days = append(days, DayOpenings{Date: date, Slots: downsample(slots)})
	}
	return days, nil
}

// hoursFor picks the effective hours for a weekday. A stored rule wins;
// without one, weekdays fall back to the business-default hours and
// weekends stay closed.
func (r *Resolver) hoursFor(weekday time.Weekday, byWeekday map[int]Rule) (openHour, closeHour int, open bool) {
	if rule, ok := byWeekday[int(weekday)]; ok {
		if !rule.IsAvailable {
			return 0, 0, false
		}
		return rule.StartTime.Hour(), rule.EndTime.Hour(), true
	}
	if weekday == time.Saturday || weekday == time.Sunday {
		return 0, 0, false
	}
	return r.defaultOpenHour, r.defaultCloseHour, true
}

// downsample keeps the slot summary compact for the text generator:
// more than 4 open hours collapse to first, middle, and last.
func downsample(slots []Slot) []Slot {
	if len(slots) <= 4 {
		return slots
	}
	return []Slot{slots[0], slots[len(slots)/2], slots[len(slots)-1]}
}

func overlapsAny(candidate bookings.Interval, taken []bookings.Interval) bool {
	for _, iv := range taken {
		if candidate.Overlaps(iv) {
			return true
		}
	}
	return false
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatOpenings renders the day-to-sample-times structure as prompt
// context, e.g. "Tuesday Mar 10: 9am, 12pm, 4pm".
func FormatOpenings(days []DayOpenings) string {
	if len(days) == 0 {
		return "No availability in the next two weeks."
	}
	var sb strings.Builder
	for i, day := range days {
		if i > 0 {
			sb.WriteString("\n")
		}
		labels := make([]string, 0, len(day.Slots))
		for _, s := range day.Slots {
			labels = append(labels, s.Start.Label())
		}
		sb.WriteString(fmt.Sprintf("%s %s: %s", day.Weekday(), day.Date.Format("Jan 2"), strings.Join(labels, ", ")))
	}
	return sb.String()
}
