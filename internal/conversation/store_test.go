package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func conversationRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "profile_id", "lead_id", "customer_number", "business_number",
		"status", "stage", "message_count", "booking_id", "escalated_reason",
		"created_at", "updated_at",
	})
}

func TestFindActive_ReturnsNilOnMiss(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM conversations`).
		WithArgs("prof-1", "+15550001111", "+15559998888").
		WillReturnRows(conversationRows())

	conv, err := store.FindActive(context.Background(), "prof-1", "+15550001111", "+15559998888")
	require.NoError(t, err)
	assert.Nil(t, conv)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLatest_ScansEscalated(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	leadID := "lead-1"
	reason := "slot conflict"

	mock.ExpectQuery(`SELECT (.+) FROM conversations`).
		WithArgs("prof-1", "+15550001111", "+15559998888").
		WillReturnRows(conversationRows().AddRow(
			"conv-1", "prof-1", &leadID, "+15550001111", "+15559998888",
			"escalated", "booking", 6, (*string)(nil), &reason, now, now,
		))

	conv, err := store.FindLatest(context.Background(), "prof-1", "+15550001111", "+15559998888")
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.True(t, conv.Escalated())
	assert.Equal(t, "slot conflict", conv.EscalatedReason)
	assert.Equal(t, StageBooking, conv.Stage)
	assert.False(t, conv.HasBooking())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DefaultsToGreeting(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO conversations`).
		WithArgs(pgxmock.AnyArg(), "prof-1", "lead-1", "+15550001111", "+15559998888", "greeting").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	conv, err := store.Create(context.Background(), CreateConversationRequest{
		ProfileID:      "prof-1",
		LeadID:         "lead-1",
		CustomerNumber: "+15550001111",
		BusinessNumber: "+15559998888",
	})
	require.NoError(t, err)
	assert.Equal(t, StageGreeting, conv.Stage)
	assert.Equal(t, StatusActive, conv.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendMessage_BumpsCounter(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(pgxmock.AnyArg(), "conv-1", "inbound", "customer", "hi there", "SM123").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`UPDATE conversations SET message_count = message_count \+ 1`).
		WithArgs("conv-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	id, err := store.AppendMessage(context.Background(), Message{
		ConversationID:    "conv-1",
		Direction:         DirectionInbound,
		Sender:            SenderCustomer,
		Body:              "hi there",
		ProviderMessageID: "SM123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentTranscript_OldestFirst(t *testing.T) {
	store, mock := newMockStore(t)
	base := time.Now().Add(-time.Hour)

	mock.ExpectQuery(`ORDER BY created_at ASC`).
		WithArgs("conv-1", 20).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "conversation_id", "direction", "sender", "body", "provider_message_id", "created_at",
		}).
			AddRow("m-1", "conv-1", "inbound", "customer", "hi", "SM1", base).
			AddRow("m-2", "conv-1", "outbound", "ai", "hello!", "SM2", base.Add(time.Minute)))

	msgs, err := store.RecentTranscript(context.Background(), "conv-1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, DirectionInbound, msgs[0].Direction)
	assert.Equal(t, SenderAI, msgs[1].Sender)
	assert.True(t, msgs[0].CreatedAt.Before(msgs[1].CreatedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimBooking_OnlyOnce(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE conversations SET booking_id`).
		WithArgs("conv-1", "bk-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE conversations SET booking_id`).
		WithArgs("conv-1", "bk-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	claimed, err := store.ClaimBooking(context.Background(), "conv-1", "bk-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.ClaimBooking(context.Background(), "conv-1", "bk-2")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReactivate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE conversations SET status = 'active'`).
		WithArgs("conv-1", "prof-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE conversations SET status = 'active'`).
		WithArgs("conv-missing", "prof-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.Reactivate(context.Background(), "prof-1", "conv-1"))
	assert.ErrorIs(t, store.Reactivate(context.Background(), "prof-1", "conv-missing"), ErrConversationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStageAdvances(t *testing.T) {
	assert.True(t, StageQualifying.Advances(StageGreeting))
	assert.True(t, StageComplete.Advances(StageBooking))
	assert.False(t, StageGreeting.Advances(StageBooking))
	assert.False(t, StageBooking.Advances(StageBooking))
}
