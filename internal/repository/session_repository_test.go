package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focuspal/backend/internal/model"
)

func TestSessionRepository_InsertSession(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSessionRepository(db)
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	session := &model.FocusSession{
		ID:        "s-1",
		UserID:    "u-1",
		Kind:      model.KindFocus,
		PlannedMs: 1500000,
		ActualMs:  1500000,
		Status:    model.SessionCompleted,
		StartedAt: started,
		EndedAt:   started.Add(25 * time.Minute),
	}

	mock.ExpectExec("INSERT INTO focus_sessions").
		WithArgs(
			"s-1", "u-1", "focus", int64(1500000), int64(1500000), "completed",
			"2026-03-01T09:00:00.000000000Z", "2026-03-01T09:25:00.000000000Z",
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.InsertSession(context.Background(), session))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_InsertSession_DBError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSessionRepository(db)
	mock.ExpectExec("INSERT INTO focus_sessions").WillReturnError(errors.New("disk full"))

	err = repo.InsertSession(context.Background(), &model.FocusSession{ID: "s-2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert session")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_ListSessionsAppliesFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSessionRepository(db)
	rows := sqlmock.NewRows(sessionColumns).
		AddRow("s-1", "u-1", "focus", 600000, 600000, "completed",
			"2026-03-01T09:00:00.000000000Z", "2026-03-01T09:10:00.000000000Z")

	mock.ExpectQuery(`SELECT id, user_id, kind, planned_ms, actual_ms, status, started_at, ended_at FROM focus_sessions WHERE user_id = \? AND kind = \? ORDER BY started_at DESC LIMIT 10`).
		WithArgs("u-1", "focus").
		WillReturnRows(rows)

	sessions, err := repo.ListSessions(context.Background(), "u-1", model.HistoryFilter{Kind: "focus", Limit: 10})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "s-1", sessions[0].ID)
	assert.Equal(t, int64(600000), sessions[0].ActualMs)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 10, 0, 0, time.UTC), sessions[0].EndedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_ListSessionsBadTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSessionRepository(db)
	rows := sqlmock.NewRows(sessionColumns).
		AddRow("s-1", "u-1", "focus", 1, 1, "completed", "yesterday", "today")
	mock.ExpectQuery("FROM focus_sessions").WillReturnRows(rows)

	_, err = repo.ListSessions(context.Background(), "u-1", model.HistoryFilter{Limit: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "started_at")
}

func TestSessionRepository_FocusTotals(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewSessionRepository(db)
	mock.ExpectQuery("FROM focus_sessions WHERE kind = \\? AND user_id = \\?").
		WithArgs("focus", "u-1").
		WillReturnRows(sqlmock.NewRows([]string{"completed", "cancelled", "total"}).AddRow(3, 1, 4500000))

	completed, cancelled, total, err := repo.FocusTotals(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, 3, completed)
	assert.Equal(t, 1, cancelled)
	assert.Equal(t, int64(4500000), total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_TransitionReportsMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewNotificationRepository(db)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE scheduled_notifications").
		WithArgs("cancelled", sqlmock.AnyArg(), "n-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE scheduled_notifications").
		WithArgs("cancelled", sqlmock.AnyArg(), "n-1", "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Transition(context.Background(), "n-1", model.NotificationPending, model.NotificationCancelled, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Transition(context.Background(), "n-1", model.NotificationPending, model.NotificationCancelled, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKVRepository_GetMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	repo := NewKVRepository(db)
	mock.ExpectQuery("SELECT value FROM kv_entries").
		WithArgs("u-1", "session.state").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	value, found, err := repo.Get(context.Background(), "u-1", "session.state")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestFormatTimeSortsLexically(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := formatTime(base.Add(500 * time.Millisecond))
	b := formatTime(base.Add(550 * time.Millisecond))
	assert.Less(t, a, b)

	parsed, err := parseTime(a)
	require.NoError(t, err)
	assert.Equal(t, base.Add(500*time.Millisecond), parsed)
}
