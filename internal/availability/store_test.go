package availability

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

func TestListRules_ParsesTimes(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT DISTINCT ON \(day_of_week\)`).
		WithArgs("prof-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "profile_id", "day_of_week", "start_time", "end_time",
			"is_available", "created_at", "updated_at",
		}).
			AddRow("r-1", "prof-1", 1, "09:00:00", "12:00:00", true, now, now).
			AddRow("r-2", "prof-1", 6, "00:00", "00:00", false, now, now))

	rules, err := store.ListRules(context.Background(), "prof-1")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, 1, rules[0].DayOfWeek)
	assert.Equal(t, "09:00", rules[0].StartTime.String())
	assert.Equal(t, 12, rules[0].EndTime.Hour())
	assert.False(t, rules[1].IsAvailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListBlockedDates(t *testing.T) {
	store, mock := newMockStore(t)

	from := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 14)
	reason := "public holiday"

	mock.ExpectQuery(`SELECT (.+) FROM blocked_dates`).
		WithArgs("prof-1", from, to).
		WillReturnRows(pgxmock.NewRows([]string{"id", "profile_id", "blocked_date", "reason", "created_at"}).
			AddRow("b-1", "prof-1", from.AddDate(0, 0, 5), &reason, time.Now()).
			AddRow("b-2", "prof-1", from.AddDate(0, 0, 6), (*string)(nil), time.Now()))

	blocked, err := store.ListBlockedDates(context.Background(), "prof-1", from, to)
	require.NoError(t, err)
	require.Len(t, blocked, 2)
	assert.Equal(t, "public holiday", blocked[0].Reason)
	assert.Empty(t, blocked[1].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertRule(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO availability_rules`).
		WithArgs("prof-1", 1, "09:00", "12:00", true).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.UpsertRule(context.Background(), Rule{
		ProfileID:   "prof-1",
		DayOfWeek:   1,
		StartTime:   mustTime(t, "09:00"),
		EndTime:     mustTime(t, "12:00"),
		IsAvailable: true,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockAndUnblockDate(t *testing.T) {
	store, mock := newMockStore(t)
	date := time.Date(2026, 4, 25, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO blocked_dates`).
		WithArgs("prof-1", date, "Anzac Day").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM blocked_dates`).
		WithArgs("prof-1", date).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, store.BlockDate(context.Background(), "prof-1", date, "Anzac Day"))
	require.NoError(t, store.UnblockDate(context.Background(), "prof-1", date))
	assert.NoError(t, mock.ExpectationsWereMet())
}
