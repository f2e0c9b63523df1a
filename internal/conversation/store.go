package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConversationNotFound indicates the conversation does not exist.
var ErrConversationNotFound = errors.New("conversation: not found")

// DB abstracts the pgx pool surface used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations and their turns.
type Store struct {
	db DB
}

// NewStore creates a conversation store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const conversationColumns = `id, profile_id, lead_id, customer_number, business_number,
		status, stage, message_count, booking_id, escalated_reason, created_at, updated_at`

// FindActive returns the most recent active conversation for the number
// pair, or nil when none exists. The lookup is best-effort: two
// near-simultaneous inbound messages can still race to create duplicates,
// which is tolerated.
func (s *Store) FindActive(ctx context.Context, profileID, customerNumber, businessNumber string) (*Conversation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE profile_id = $1 AND customer_number = $2 AND business_number = $3
			AND status = 'active'
		ORDER BY updated_at DESC
		LIMIT 1`, profileID, customerNumber, businessNumber)
	conv, err := scanConversation(row)
	if errors.Is(err, ErrConversationNotFound) {
		return nil, nil
	}
	return conv, err
}

// FindLatest returns the most recent conversation for the pair regardless
// of status, or nil when none exists. The SMS path uses this to detect an
// escalated thread, which must swallow the message rather than spawn a
// fresh active conversation.
func (s *Store) FindLatest(ctx context.Context, profileID, customerNumber, businessNumber string) (*Conversation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE profile_id = $1 AND customer_number = $2 AND business_number = $3
		ORDER BY updated_at DESC
		LIMIT 1`, profileID, customerNumber, businessNumber)
	conv, err := scanConversation(row)
	if errors.Is(err, ErrConversationNotFound) {
		return nil, nil
	}
	return conv, err
}

// GetByID fetches a conversation scoped to the owning profile.
func (s *Store) GetByID(ctx context.Context, profileID, id string) (*Conversation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE profile_id = $1 AND id = $2`, profileID, id)
	return scanConversation(row)
}

// CreateConversationRequest carries the fields for opening a new thread.
type CreateConversationRequest struct {
	ProfileID      string
	LeadID         string
	CustomerNumber string
	BusinessNumber string
	Stage          Stage
}

// Create opens a new active conversation. message_count starts at zero
// and increments as turns are appended.
func (s *Store) Create(ctx context.Context, req CreateConversationRequest) (*Conversation, error) {
	stage := req.Stage
	if stage == "" {
		stage = StageGreeting
	}

	id := uuid.New()
	var createdAt, updatedAt time.Time
	err := s.db.QueryRow(ctx, `
		INSERT INTO conversations (id, profile_id, lead_id, customer_number, business_number, status, stage, message_count)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, 'active', $6, 0)
		RETURNING created_at, updated_at`,
		id, req.ProfileID, req.LeadID, req.CustomerNumber, req.BusinessNumber, string(stage),
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("conversation: insert: %w", err)
	}

	return &Conversation{
		ID:             id.String(),
		ProfileID:      req.ProfileID,
		LeadID:         req.LeadID,
		CustomerNumber: req.CustomerNumber,
		BusinessNumber: req.BusinessNumber,
		Status:         StatusActive,
		Stage:          stage,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// AppendMessage records one turn and bumps the conversation's counter.
// Messages are append-only; creation order is transcript order.
func (s *Store) AppendMessage(ctx context.Context, msg Message) (string, error) {
	id := uuid.New()
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, direction, sender, body, provider_message_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))`,
		id, msg.ConversationID, string(msg.Direction), string(msg.Sender), msg.Body, msg.ProviderMessageID)
	if err != nil {
		return "", fmt.Errorf("conversation: append message: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		UPDATE conversations SET message_count = message_count + 1, updated_at = NOW()
		WHERE id = $1`, msg.ConversationID)
	if err != nil {
		return "", fmt.Errorf("conversation: bump message count: %w", err)
	}
	return id.String(), nil
}

// RecentTranscript returns the last limit turns in transcript order,
// oldest first. The classifier's context window feeds on this.
func (s *Store) RecentTranscript(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, direction, sender, body, COALESCE(provider_message_id, ''), created_at
		FROM (
			SELECT * FROM messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: recent transcript: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var direction, sender string
		if err := rows.Scan(&m.ID, &m.ConversationID, &direction, &sender, &m.Body,
			&m.ProviderMessageID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		m.Direction = Direction(direction)
		m.Sender = Sender(sender)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SetStage writes the funnel stage. Callers are responsible for only
// moving forward; the store does not validate ordering.
func (s *Store) SetStage(ctx context.Context, id string, stage Stage) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversations SET stage = $2, updated_at = NOW()
		WHERE id = $1`, id, string(stage))
	if err != nil {
		return fmt.Errorf("conversation: set stage: %w", err)
	}
	return nil
}

// Escalate suspends automated replies on the thread. Escalation is sticky
// until Reactivate.
func (s *Store) Escalate(ctx context.Context, id, reason string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversations SET status = 'escalated', escalated_reason = $2, updated_at = NOW()
		WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("conversation: escalate: %w", err)
	}
	return nil
}

// Reactivate clears escalation so automated replies resume. Returns
// ErrConversationNotFound when the id does not belong to the profile.
func (s *Store) Reactivate(ctx context.Context, profileID, id string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE conversations SET status = 'active', escalated_reason = '', updated_at = NOW()
		WHERE id = $1 AND profile_id = $2`, id, profileID)
	if err != nil {
		return fmt.Errorf("conversation: reactivate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// ClaimBooking links a committed booking to the conversation, but only if
// none is linked yet. Returns false when a booking already exists, which
// makes repeated confirmation messages a no-op.
func (s *Store) ClaimBooking(ctx context.Context, id, bookingID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE conversations SET booking_id = $2, updated_at = NOW()
		WHERE id = $1 AND booking_id IS NULL`, id, bookingID)
	if err != nil {
		return false, fmt.Errorf("conversation: claim booking: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// LinkLead attaches a lead to a conversation created before the lead
// existed.
func (s *Store) LinkLead(ctx context.Context, id, leadID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversations SET lead_id = $2, updated_at = NOW()
		WHERE id = $1`, id, leadID)
	if err != nil {
		return fmt.Errorf("conversation: link lead: %w", err)
	}
	return nil
}

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	var leadID, bookingID, escalatedReason *string
	var status, stage string
	if err := row.Scan(
		&c.ID, &c.ProfileID, &leadID, &c.CustomerNumber, &c.BusinessNumber,
		&status, &stage, &c.MessageCount, &bookingID, &escalatedReason,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversation: scan: %w", err)
	}
	if leadID != nil {
		c.LeadID = *leadID
	}
	if bookingID != nil {
		c.BookingID = *bookingID
	}
	if escalatedReason != nil {
		c.EscalatedReason = *escalatedReason
	}
	c.Status = Status(status)
	if st, ok := ValidStage(stage); ok {
		c.Stage = st
	} else {
		c.Stage = StageGreeting
	}
	return &c, nil
}
