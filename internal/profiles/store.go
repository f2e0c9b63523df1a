package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrProfileNotFound indicates no profile matches the lookup key.
var ErrProfileNotFound = errors.New("profiles: profile not found")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides read access to business profiles.
type Store struct {
	db DB
}

// NewStore creates a profile store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const profileColumns = `id, email, business_name, industry, business_description, business_services,
		business_phone, business_address, response_tone, auto_reply_enabled, timezone,
		twilio_phone_number, api_key, created_at, updated_at`

// GetByTwilioNumber resolves the profile owning an inbound telephony number.
func (s *Store) GetByTwilioNumber(ctx context.Context, number string) (*Profile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE twilio_phone_number = $1`, number)
	return scanProfile(row)
}

// GetByAPIKey resolves the profile for a web-form intake request.
func (s *Store) GetByAPIKey(ctx context.Context, apiKey string) (*Profile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE api_key = $1`, apiKey)
	return scanProfile(row)
}

// GetByID fetches a profile by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Profile, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE id = $1`, id)
	return scanProfile(row)
}

// ListWithTelephony returns every profile with a provisioned phone number.
// The reminder sweep iterates this set.
func (s *Store) ListWithTelephony(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE twilio_phone_number IS NOT NULL AND twilio_phone_number <> ''
		ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("profiles: list with telephony: %w", err)
	}
	defer rows.Close()

	var result []Profile
	for rows.Next() {
		p, err := scanProfileRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

func scanProfile(row pgx.Row) (*Profile, error) {
	p, err := scanProfileRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanProfileRow(row pgx.Row) (*Profile, error) {
	var p Profile
	var tone string
	if err := row.Scan(
		&p.ID, &p.Email, &p.BusinessName, &p.Industry, &p.BusinessDescription,
		&p.BusinessServices, &p.BusinessPhone, &p.BusinessAddress, &tone,
		&p.AutoReplyEnabled, &p.Timezone, &p.TwilioPhoneNumber, &p.APIKey,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("profiles: scan profile: %w", err)
	}
	p.ResponseTone = NormalizeTone(tone)
	return &p, nil
}
