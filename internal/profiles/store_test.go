package profiles

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profileRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "email", "business_name", "industry", "business_description",
		"business_services", "business_phone", "business_address", "response_tone",
		"auto_reply_enabled", "timezone", "twilio_phone_number", "api_key",
		"created_at", "updated_at",
	})
}

func TestGetByTwilioNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM profiles").
		WithArgs("+61870001234").
		WillReturnRows(profileRows().AddRow(
			"prof_1", "owner@example.com", "Adelaide Plumbing", "trades",
			"Emergency plumbing", "Repairs, installs", "+61870009999", "12 Pirie St",
			"casual", true, "Australia/Adelaide", "+61870001234", "key_abc", now, now,
		))

	store := NewStore(mock)
	p, err := store.GetByTwilioNumber(context.Background(), "+61870001234")
	require.NoError(t, err)
	assert.Equal(t, "Adelaide Plumbing", p.BusinessName)
	assert.Equal(t, ToneCasual, p.ResponseTone)
}

func TestGetByAPIKeyNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT (.+) FROM profiles").
		WithArgs("nope").
		WillReturnRows(profileRows())

	store := NewStore(mock)
	_, err = store.GetByAPIKey(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestGetUnknownToneNormalized(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM profiles").
		WithArgs("prof_1").
		WillReturnRows(profileRows().AddRow(
			"prof_1", "owner@example.com", "Biz", "", "", "", "", "",
			"shouty", true, "", "+61870001234", "key", now, now,
		))

	store := NewStore(mock)
	p, err := store.GetByID(context.Background(), "prof_1")
	require.NoError(t, err)
	assert.Equal(t, ToneFriendly, p.ResponseTone)
}

func TestListWithTelephony(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM profiles").
		WillReturnRows(profileRows().
			AddRow("prof_1", "a@example.com", "A", "", "", "", "", "", "friendly", true, "UTC", "+1555", "k1", now, now).
			AddRow("prof_2", "b@example.com", "B", "", "", "", "", "", "professional", false, "UTC", "+1666", "k2", now, now))

	store := NewStore(mock)
	list, err := store.ListWithTelephony(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ToneProfessional, list[1].ResponseTone)
}

func TestProfileLocationFallback(t *testing.T) {
	p := &Profile{}
	assert.Equal(t, "Australia/Adelaide", p.Location("Australia/Adelaide").String())

	p.Timezone = "Not/AZone"
	assert.Equal(t, time.UTC, p.Location("Australia/Adelaide"))
}
