package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrSlotTaken indicates the requested interval collides with an
	// existing non-cancelled booking. This is an expected business
	// condition, not a system failure.
	ErrSlotTaken = errors.New("bookings: slot already taken")
	// ErrBookingNotFound indicates the booking does not exist.
	ErrBookingNotFound = errors.New("bookings: booking not found")
)

// DB abstracts the pgx pool surface used by the store. Begin is required
// because the slot-conflict re-check and the insert must share a transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store persists bookings.
type Store struct {
	db DB
}

// NewStore creates a booking store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const bookingColumns = `id, profile_id, lead_id, customer_name, customer_phone, customer_email,
		title, description, booking_date, start_time, end_time, status, source, notes,
		reminder_sent_24h, reminder_sent_2h, created_at, updated_at`

// CreateIfSlotFree commits a booking after re-checking the target slot
// against current rows. The candidate slot may have been proposed seconds
// earlier; the re-check and insert share a transaction so a concurrent
// commit for the same interval loses with ErrSlotTaken.
func (s *Store) CreateIfSlotFree(ctx context.Context, req CreateBookingRequest) (*Booking, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: begin commit tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var conflict bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE profile_id = $1 AND booking_date = $2 AND status <> 'cancelled'
				AND start_time < $4 AND end_time > $3
		)`,
		req.ProfileID, req.BookingDate, req.StartTime.String(), req.EndTime.String(),
	).Scan(&conflict)
	if err != nil {
		return nil, fmt.Errorf("bookings: conflict check: %w", err)
	}
	if conflict {
		return nil, ErrSlotTaken
	}

	status := req.Status
	if status == "" {
		status = StatusConfirmed
	}
	source := req.Source
	if source == "" {
		source = SourceManual
	}
	title := req.Title
	if title == "" {
		title = "Job: " + req.CustomerName
	}

	id := uuid.New()
	var createdAt, updatedAt time.Time
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (id, profile_id, lead_id, customer_name, customer_phone,
			customer_email, title, description, booking_date, start_time, end_time,
			status, source, notes)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`,
		id, req.ProfileID, req.LeadID, req.CustomerName, req.CustomerPhone,
		req.CustomerEmail, title, req.Description, req.BookingDate,
		req.StartTime.String(), req.EndTime.String(), string(status), string(source), req.Notes,
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("bookings: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bookings: commit: %w", err)
	}

	return &Booking{
		ID:            id.String(),
		ProfileID:     req.ProfileID,
		LeadID:        req.LeadID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Title:         title,
		Description:   req.Description,
		BookingDate:   req.BookingDate,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Status:        status,
		Source:        source,
		Notes:         req.Notes,
		CreatedAt:     createdAt,
		UpdatedAt:     updatedAt,
	}, nil
}

// ListActiveInRange returns non-cancelled bookings for the profile whose
// date falls within [from, to]. The availability resolver feeds on this.
func (s *Store) ListActiveInRange(ctx context.Context, profileID string, from, to time.Time) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE profile_id = $1 AND booking_date >= $2 AND booking_date <= $3
			AND status <> 'cancelled'
		ORDER BY booking_date ASC, start_time ASC`, profileID, from, to)
	if err != nil {
		return nil, fmt.Errorf("bookings: list active in range: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ListUnreminded24h returns confirmed bookings in the date window that have
// not yet received the 24-hour reminder. The filter is date-granular by
// design; see the reminder sweep.
func (s *Store) ListUnreminded24h(ctx context.Context, profileID string, fromDate, toDate time.Time) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE profile_id = $1 AND status = 'confirmed' AND reminder_sent_24h = FALSE
			AND booking_date >= $2 AND booking_date <= $3
		ORDER BY booking_date ASC, start_time ASC`, profileID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("bookings: list unreminded 24h: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ListUnreminded2h returns today's confirmed bookings that have not yet
// received the 2-hour reminder.
func (s *Store) ListUnreminded2h(ctx context.Context, profileID string, date time.Time) ([]Booking, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE profile_id = $1 AND status = 'confirmed' AND reminder_sent_2h = FALSE
			AND booking_date = $2
		ORDER BY start_time ASC`, profileID, date)
	if err != nil {
		return nil, fmt.Errorf("bookings: list unreminded 2h: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

// ReminderWindow selects which reminder flag to flip.
type ReminderWindow string

const (
	Window24h ReminderWindow = "24h"
	Window2h  ReminderWindow = "2h"
)

// MarkReminderSent flips the per-window reminder flag, but only if it is
// still unset. Returns false when another sweep already claimed it, which
// keeps the send-and-flag sequence at-most-once under overlapping runs.
func (s *Store) MarkReminderSent(ctx context.Context, id string, window ReminderWindow) (bool, error) {
	var column string
	switch window {
	case Window24h:
		column = "reminder_sent_24h"
	case Window2h:
		column = "reminder_sent_2h"
	default:
		return false, fmt.Errorf("bookings: unknown reminder window %q", window)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE bookings SET `+column+` = TRUE, updated_at = NOW()
		WHERE id = $1 AND `+column+` = FALSE`, id)
	if err != nil {
		return false, fmt.Errorf("bookings: mark reminder sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanBookings(rows pgx.Rows) ([]Booking, error) {
	var result []Booking
	for rows.Next() {
		var b Booking
		var leadID *string
		var startTime, endTime, status, source string
		if err := rows.Scan(
			&b.ID, &b.ProfileID, &leadID, &b.CustomerName, &b.CustomerPhone,
			&b.CustomerEmail, &b.Title, &b.Description, &b.BookingDate,
			&startTime, &endTime, &status, &source, &b.Notes,
			&b.ReminderSent24h, &b.ReminderSent2h, &b.CreatedAt, &b.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("bookings: scan booking: %w", err)
		}
		if leadID != nil {
			b.LeadID = *leadID
		}
		st, err := ParseTimeOfDay(startTime)
		if err != nil {
			return nil, err
		}
		et, err := ParseTimeOfDay(endTime)
		if err != nil {
			return nil, err
		}
		b.StartTime = st
		b.EndTime = et
		if parsed, ok := ValidStatus(status); ok {
			b.Status = parsed
		} else {
			b.Status = StatusPending
		}
		b.Source = Source(source)
		result = append(result, b)
	}
	return result, rows.Err()
}
