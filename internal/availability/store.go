package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/autoflowai/autoflow/internal/bookings"
)

// DB abstracts the pgx pool surface used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists weekly rules and blocked dates.
type Store struct {
	db DB
}

// NewStore creates an availability store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// ListRules returns the effective rule per weekday for the profile.
// When a weekday has been written more than once, the most recently
// updated row wins.
func (s *Store) ListRules(ctx context.Context, profileID string) ([]Rule, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT ON (day_of_week)
			id, profile_id, day_of_week, start_time, end_time, is_available, created_at, updated_at
		FROM availability_rules
		WHERE profile_id = $1
		ORDER BY day_of_week ASC, updated_at DESC`, profileID)
	if err != nil {
		return nil, fmt.Errorf("availability: list rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		var start, end string
		if err := rows.Scan(&r.ID, &r.ProfileID, &r.DayOfWeek, &start, &end,
			&r.IsAvailable, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("availability: scan rule: %w", err)
		}
		if r.StartTime, err = bookings.ParseTimeOfDay(start); err != nil {
			return nil, err
		}
		if r.EndTime, err = bookings.ParseTimeOfDay(end); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// UpsertRule replaces the weekly rule for a weekday.
func (s *Store) UpsertRule(ctx context.Context, r Rule) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO availability_rules (id, profile_id, day_of_week, start_time, end_time, is_available)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		ON CONFLICT (profile_id, day_of_week)
		DO UPDATE SET start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time,
			is_available = EXCLUDED.is_available, updated_at = NOW()`,
		r.ProfileID, r.DayOfWeek, r.StartTime.String(), r.EndTime.String(), r.IsAvailable)
	if err != nil {
		return fmt.Errorf("availability: upsert rule: %w", err)
	}
	return nil
}

// ListBlockedDates returns blocked dates for the profile within [from, to].
func (s *Store) ListBlockedDates(ctx context.Context, profileID string, from, to time.Time) ([]BlockedDate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, profile_id, blocked_date, reason, created_at
		FROM blocked_dates
		WHERE profile_id = $1 AND blocked_date >= $2 AND blocked_date <= $3
		ORDER BY blocked_date ASC`, profileID, from, to)
	if err != nil {
		return nil, fmt.Errorf("availability: list blocked dates: %w", err)
	}
	defer rows.Close()

	var blocked []BlockedDate
	for rows.Next() {
		var b BlockedDate
		var reason *string
		if err := rows.Scan(&b.ID, &b.ProfileID, &b.Date, &reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("availability: scan blocked date: %w", err)
		}
		if reason != nil {
			b.Reason = *reason
		}
		blocked = append(blocked, b)
	}
	return blocked, rows.Err()
}

// BlockDate marks a calendar date fully unavailable.
func (s *Store) BlockDate(ctx context.Context, profileID string, date time.Time, reason string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO blocked_dates (id, profile_id, blocked_date, reason)
		VALUES (gen_random_uuid(), $1, $2, NULLIF($3, ''))
		ON CONFLICT (profile_id, blocked_date) DO NOTHING`,
		profileID, date, reason)
	if err != nil {
		return fmt.Errorf("availability: block date: %w", err)
	}
	return nil
}

// UnblockDate removes a blocked date.
func (s *Store) UnblockDate(ctx context.Context, profileID string, date time.Time) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM blocked_dates WHERE profile_id = $1 AND blocked_date = $2`,
		profileID, date)
	if err != nil {
		return fmt.Errorf("availability: unblock date: %w", err)
	}
	return nil
}
