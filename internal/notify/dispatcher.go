package notify

import (
	"context"
	"log/slog"
	"time"

	"focuspal/backend/internal/model"
	"focuspal/backend/internal/observability"
	"focuspal/backend/internal/repository"
	"focuspal/backend/internal/timer"
)

const defaultBatchSize = 100

// Dispatcher marks due notifications delivered. Push transport is outside
// this service; delivery here means the notification is handed to the log.
type Dispatcher struct {
	repo     *repository.NotificationRepository
	clock    timer.Clock
	logger   *slog.Logger
	interval time.Duration
}

func NewDispatcher(repo *repository.NotificationRepository, clock timer.Clock, interval time.Duration) *Dispatcher {
	if clock == nil {
		clock = timer.SystemClock{}
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{
		repo:     repo,
		clock:    clock,
		logger:   observability.WithFields("component", "notify_dispatcher"),
		interval: interval,
	}
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := d.DispatchDue(ctx); err != nil {
				d.logger.Error("dispatch notifications failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// DispatchDue delivers every pending notification whose fire time has
// passed and returns how many were delivered.
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	delivered := 0
	for {
		now := d.clock.Now()
		due, err := d.repo.ListDue(ctx, now, defaultBatchSize)
		if err != nil {
			return delivered, err
		}

		for _, item := range due {
			ok, err := d.repo.Transition(ctx, item.ID, model.NotificationPending, model.NotificationDelivered, now)
			if err != nil {
				return delivered, err
			}
			if !ok {
				continue
			}
			delivered++
			d.logger.Info("notification delivered",
				"notification_id", item.ID,
				"user_id", item.UserID,
				"title", item.Title,
				"fire_at", item.FireAt,
			)
		}

		if len(due) < defaultBatchSize {
			return delivered, nil
		}
	}
}
