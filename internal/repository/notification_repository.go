package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"focuspal/backend/internal/model"
)

var notificationColumns = []string{
	"id", "user_id", "title", "body", "fire_at", "status", "created_at", "updated_at",
}

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Insert(ctx context.Context, n *model.Notification) error {
	_, err := r.db.ExecContext(
		ctx,
		`INSERT INTO scheduled_notifications (
			id, user_id, title, body, fire_at, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID,
		n.UserID,
		n.Title,
		n.Body,
		formatTime(n.FireAt),
		n.Status,
		formatTime(n.CreatedAt),
		formatTime(n.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Transition moves a notification from one status to another. It reports
// false when the notification is missing or not in the from status.
func (r *NotificationRepository) Transition(ctx context.Context, id, from, to string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE scheduled_notifications
		 SET status = ?,
		     updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		formatTime(now),
		id,
		from,
	)
	if err != nil {
		return false, fmt.Errorf("transition notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition notification rows: %w", err)
	}
	return affected > 0, nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID, status string, limit int) ([]model.Notification, error) {
	qb := sqb.Select(notificationColumns...).
		From("scheduled_notifications").
		Where(sq.Eq{"user_id": userID})
	if status != "" {
		qb = qb.Where(sq.Eq{"status": status})
	}
	return r.list(ctx, qb.OrderBy("fire_at ASC").Limit(uint64(limit)))
}

// ListDue returns pending notifications whose fire time is not after now.
func (r *NotificationRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]model.Notification, error) {
	qb := sqb.Select(notificationColumns...).
		From("scheduled_notifications").
		Where(sq.Eq{"status": model.NotificationPending}).
		Where(sq.LtOrEq{"fire_at": formatTime(now)}).
		OrderBy("fire_at ASC").
		Limit(uint64(limit))
	return r.list(ctx, qb)
}

func (r *NotificationRepository) list(ctx context.Context, qb sq.SelectBuilder) ([]model.Notification, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list notifications: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]model.Notification, 0)
	for rows.Next() {
		item, scanErr := scanNotification(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func scanNotification(s scanner) (*model.Notification, error) {
	n := model.Notification{}
	var fireAt, createdAt, updatedAt string
	err := s.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Body,
		&fireAt,
		&n.Status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}

	if n.FireAt, err = parseTime(fireAt); err != nil {
		return nil, fmt.Errorf("parse notification fire_at: %w", err)
	}
	if n.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse notification created_at: %w", err)
	}
	if n.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse notification updated_at: %w", err)
	}
	return &n, nil
}
