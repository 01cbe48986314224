package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"focuspal/backend/internal/model"
)

// sqb builds statements with sqlite's ? placeholders.
var sqb = sq.StatementBuilder.PlaceholderFormat(sq.Question)

var sessionColumns = []string{
	"id", "user_id", "kind", "planned_ms", "actual_ms",
	"status", "started_at", "ended_at",
}

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) InsertSession(ctx context.Context, session *model.FocusSession) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO focus_sessions (
			id, user_id, kind, planned_ms, actual_ms, status, started_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		session.Kind,
		session.PlannedMs,
		session.ActualMs,
		session.Status,
		formatTime(session.StartedAt),
		formatTime(session.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) ListSessions(ctx context.Context, userID string, filter model.HistoryFilter) ([]model.FocusSession, error) {
	qb := sqb.Select(sessionColumns...).
		From("focus_sessions").
		Where(sq.Eq{"user_id": userID})
	if filter.Kind != "" {
		qb = qb.Where(sq.Eq{"kind": filter.Kind})
	}
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"status": filter.Status})
	}
	if filter.Since != nil {
		qb = qb.Where(sq.GtOrEq{"started_at": formatTime(*filter.Since)})
	}
	qb = qb.OrderBy("started_at DESC")
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.FocusSession, 0, filter.Limit)
	for rows.Next() {
		session, scanErr := scanFocusSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// FocusTotals returns completed count, cancelled count and completed focus
// time for a user.
func (r *SessionRepository) FocusTotals(ctx context.Context, userID string) (int, int, int64, error) {
	query, args, err := sqb.Select(
		"COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN status = 'cancelled' THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN status = 'completed' THEN actual_ms ELSE 0 END), 0)",
	).
		From("focus_sessions").
		Where(sq.Eq{"user_id": userID, "kind": model.KindFocus}).
		ToSql()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("build focus totals: %w", err)
	}

	var completed, cancelled int
	var totalMs int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&completed, &cancelled, &totalMs); err != nil {
		return 0, 0, 0, fmt.Errorf("focus totals: %w", err)
	}
	return completed, cancelled, totalMs, nil
}

// CompletedDays lists the distinct UTC days (YYYY-MM-DD) with a completed
// focus session, newest first.
func (r *SessionRepository) CompletedDays(ctx context.Context, userID string, limit int) ([]string, error) {
	query, args, err := sqb.Select("DISTINCT substr(ended_at, 1, 10) AS day").
		From("focus_sessions").
		Where(sq.Eq{"user_id": userID, "kind": model.KindFocus, "status": model.SessionCompleted}).
		OrderBy("day DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build completed days: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("completed days: %w", err)
	}
	defer rows.Close()

	days := make([]string, 0, limit)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan completed day: %w", err)
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completed days: %w", err)
	}
	return days, nil
}

func (r *SessionRepository) CountCompletedSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query, args, err := sqb.Select("COUNT(1)").
		From("focus_sessions").
		Where(sq.Eq{"user_id": userID, "kind": model.KindFocus, "status": model.SessionCompleted}).
		Where(sq.GtOrEq{"ended_at": formatTime(since)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count completed: %w", err)
	}

	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count completed: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFocusSession(s scanner) (*model.FocusSession, error) {
	session := model.FocusSession{}
	var startedAt string
	var endedAt string
	err := s.Scan(
		&session.ID,
		&session.UserID,
		&session.Kind,
		&session.PlannedMs,
		&session.ActualMs,
		&session.Status,
		&startedAt,
		&endedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	parsedStartedAt, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse session started_at: %w", err)
	}
	session.StartedAt = parsedStartedAt

	parsedEndedAt, err := parseTime(endedAt)
	if err != nil {
		return nil, fmt.Errorf("parse session ended_at: %w", err)
	}
	session.EndedAt = parsedEndedAt

	return &session, nil
}
