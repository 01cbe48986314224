// Package notify keeps scheduled session notifications in the database and
// hands them off once they fall due.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"focuspal/backend/internal/model"
	"focuspal/backend/internal/repository"
	"focuspal/backend/internal/timer"
)

type Outbox struct {
	repo  *repository.NotificationRepository
	clock timer.Clock
}

func NewOutbox(repo *repository.NotificationRepository, clock timer.Clock) *Outbox {
	if clock == nil {
		clock = timer.SystemClock{}
	}
	return &Outbox{repo: repo, clock: clock}
}

// ForUser returns a timer.Notifier writing to this outbox on behalf of userID.
func (o *Outbox) ForUser(userID string) timer.Notifier {
	return &userNotifier{outbox: o, userID: userID}
}

// Pending lists a user's notifications that have not fired yet.
func (o *Outbox) Pending(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	return o.repo.ListByUser(ctx, userID, model.NotificationPending, limit)
}

type userNotifier struct {
	outbox *Outbox
	userID string
}

func (n *userNotifier) Schedule(ctx context.Context, after time.Duration, title, body string) (string, error) {
	now := n.outbox.clock.Now()
	item := model.Notification{
		ID:        uuid.NewString(),
		UserID:    n.userID,
		Title:     title,
		Body:      body,
		FireAt:    now.Add(after),
		Status:    model.NotificationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := n.outbox.repo.Insert(ctx, &item); err != nil {
		return "", err
	}
	return item.ID, nil
}

// Cancel is a no-op for notifications that already fired or were cancelled.
func (n *userNotifier) Cancel(ctx context.Context, id string) error {
	_, err := n.outbox.repo.Transition(ctx, id, model.NotificationPending, model.NotificationCancelled, n.outbox.clock.Now())
	return err
}
