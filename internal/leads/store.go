package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists leads and their activity log.
type Store struct {
	db DB
}

// NewStore creates a lead store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const leadColumns = `id, profile_id, name, email, phone, address, message, source, urgency, category,
		ai_summary, ai_response_sent, status, follow_up_count, next_follow_up_at,
		created_at, updated_at`

// Create inserts a new lead row.
func (s *Store) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	urgency := req.Urgency
	if urgency == "" {
		urgency = UrgencyWarm
	}
	status := req.Status
	if status == "" {
		status = StatusNew
	}
	name := req.Name
	if name == "" {
		name = req.Phone
	}

	id := uuid.New()
	var createdAt, updatedAt time.Time
	err := s.db.QueryRow(ctx, `
		INSERT INTO leads (id, profile_id, name, email, phone, message, source, urgency,
			category, ai_summary, status, follow_up_count, next_follow_up_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, $12)
		RETURNING created_at, updated_at`,
		id, req.ProfileID, name, req.Email, req.Phone, req.Message, string(req.Source),
		string(urgency), req.Category, req.AISummary, string(status), req.NextFollowUpAt,
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("leads: insert: %w", err)
	}

	return &Lead{
		ID:             id.String(),
		ProfileID:      req.ProfileID,
		Name:           name,
		Email:          req.Email,
		Phone:          req.Phone,
		Message:        req.Message,
		Source:         req.Source,
		Urgency:        urgency,
		Category:       req.Category,
		AISummary:      req.AISummary,
		Status:         status,
		NextFollowUpAt: req.NextFollowUpAt,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// GetByID fetches a lead scoped to the owning profile.
func (s *Store) GetByID(ctx context.Context, profileID, id string) (*Lead, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE id = $1 AND profile_id = $2`, id, profileID)
	return scanLead(row)
}

// FindRecentByPhone returns the newest lead from a caller created after the
// cutoff. The missed-call and recording callbacks race; this lookup is the
// best-effort dedup between them.
func (s *Store) FindRecentByPhone(ctx context.Context, profileID, phone string, since time.Time) (*Lead, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE profile_id = $1 AND phone = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1`, profileID, phone, since)
	lead, err := scanLead(row)
	if errors.Is(err, ErrLeadNotFound) {
		return nil, nil
	}
	return lead, err
}

// FindLatestBySource returns the newest lead from a caller with the given source.
func (s *Store) FindLatestBySource(ctx context.Context, profileID, phone string, source Source) (*Lead, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE profile_id = $1 AND phone = $2 AND source = $3
		ORDER BY created_at DESC
		LIMIT 1`, profileID, phone, string(source))
	lead, err := scanLead(row)
	if errors.Is(err, ErrLeadNotFound) {
		return nil, nil
	}
	return lead, err
}

// ApplyFieldUpdates merges classifier-extracted fields into the lead.
// Only fields present in the update are written.
func (s *Store) ApplyFieldUpdates(ctx context.Context, id string, updates FieldUpdates) error {
	if updates.Empty() {
		return nil
	}

	set := []string{"updated_at = NOW()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if updates.Name != nil {
		add("name", *updates.Name)
	}
	if updates.Email != nil {
		add("email", *updates.Email)
	}
	if updates.Address != nil {
		add("address", *updates.Address)
	}
	if updates.AISummary != nil {
		add("ai_summary", *updates.AISummary)
	}
	if updates.Urgency != nil {
		add("urgency", string(*updates.Urgency))
	}
	if updates.Category != nil {
		add("category", *updates.Category)
	}
	if updates.Message != nil {
		add("message", *updates.Message)
	}
	if updates.Source != nil {
		add("source", string(*updates.Source))
	}

	query := "UPDATE leads SET " + strings.Join(set, ", ") + " WHERE id = $1"
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("leads: apply field updates: %w", err)
	}
	return nil
}

// SetUrgency overwrites the triage label.
func (s *Store) SetUrgency(ctx context.Context, id string, urgency Urgency) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE leads SET urgency = $2, updated_at = NOW() WHERE id = $1`,
		id, string(urgency)); err != nil {
		return fmt.Errorf("leads: set urgency: %w", err)
	}
	return nil
}

// TransitionStatus moves the lead to a new lifecycle status. Terminal
// statuses clear any pending follow-up in the same statement so the
// invariant (terminal implies no next_follow_up_at) holds at the store.
func (s *Store) TransitionStatus(ctx context.Context, id string, status Status) error {
	if _, ok := ValidStatus(string(status)); !ok {
		return ErrInvalidStatus
	}

	var err error
	if status.Terminal() {
		_, err = s.db.Exec(ctx, `
			UPDATE leads SET status = $2, next_follow_up_at = NULL, updated_at = NOW()
			WHERE id = $1`, id, string(status))
	} else {
		_, err = s.db.Exec(ctx, `
			UPDATE leads SET status = $2, updated_at = NOW()
			WHERE id = $1`, id, string(status))
	}
	if err != nil {
		return fmt.Errorf("leads: transition status: %w", err)
	}
	return nil
}

// RecordFollowUp bumps the follow-up counter and schedules (or clears) the
// next one after a follow-up email goes out.
func (s *Store) RecordFollowUp(ctx context.Context, id string, count int, next *time.Time) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE leads SET follow_up_count = $2, next_follow_up_at = $3,
			status = 'contacted', updated_at = NOW()
		WHERE id = $1`, id, count, next); err != nil {
		return fmt.Errorf("leads: record follow-up: %w", err)
	}
	return nil
}

// SetAIResponseSent records the auto-reply body the customer received.
func (s *Store) SetAIResponseSent(ctx context.Context, id, response string) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE leads SET ai_response_sent = $2, updated_at = NOW() WHERE id = $1`,
		id, response); err != nil {
		return fmt.Errorf("leads: set ai response: %w", err)
	}
	return nil
}

// ListDueFollowUps returns leads whose scheduled follow-up has come due and
// which are still in an automatable status.
func (s *Store) ListDueFollowUps(ctx context.Context, asOf time.Time, limit int) ([]Lead, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE next_follow_up_at IS NOT NULL AND next_follow_up_at <= $1
			AND status IN ('new', 'contacted')
			AND follow_up_count < $2
		ORDER BY next_follow_up_at ASC
		LIMIT $3`, asOf, MaxFollowUps, limit)
	if err != nil {
		return nil, fmt.Errorf("leads: list due follow-ups: %w", err)
	}
	defer rows.Close()

	var result []Lead
	for rows.Next() {
		lead, err := scanLeadRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *lead)
	}
	return result, rows.Err()
}

// AppendActivity writes an audit entry for a lead.
func (s *Store) AppendActivity(ctx context.Context, leadID, profileID string, kind ActivityType, description string) error {
	if _, err := s.db.Exec(ctx, `
		INSERT INTO lead_activities (id, lead_id, profile_id, type, description)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), leadID, profileID, string(kind), description); err != nil {
		return fmt.Errorf("leads: append activity: %w", err)
	}
	return nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	lead, err := scanLeadRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return lead, nil
}

func scanLeadRow(row pgx.Row) (*Lead, error) {
	var l Lead
	var source, urgency, status string
	if err := row.Scan(
		&l.ID, &l.ProfileID, &l.Name, &l.Email, &l.Phone, &l.Address, &l.Message,
		&source, &urgency, &l.Category, &l.AISummary, &l.AIResponseSent,
		&status, &l.FollowUpCount, &l.NextFollowUpAt, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("leads: scan lead: %w", err)
	}
	l.Source = Source(source)
	l.Urgency = NormalizeUrgency(urgency)
	if st, ok := ValidStatus(status); ok {
		l.Status = st
	} else {
		l.Status = StatusNew
	}
	return &l, nil
}
