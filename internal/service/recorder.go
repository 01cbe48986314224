package service

import (
	"context"

	"github.com/google/uuid"

	"focuspal/backend/internal/model"
	"focuspal/backend/internal/repository"
	"focuspal/backend/internal/timer"
)

// historyRecorder stores finished focus intervals for statistics.
type historyRecorder struct {
	repo   *repository.SessionRepository
	userID string
}

func (h *historyRecorder) Record(ctx context.Context, c timer.Completion) error {
	status := model.SessionCancelled
	if c.Completed {
		status = model.SessionCompleted
	}
	kind := model.KindFocus
	if c.Kind == timer.KindBreak {
		kind = model.KindBreak
	}

	return h.repo.InsertSession(ctx, &model.FocusSession{
		ID:        uuid.NewString(),
		UserID:    h.userID,
		Kind:      kind,
		PlannedMs: c.PlannedMs,
		ActualMs:  c.ActualMs,
		Status:    status,
		StartedAt: c.StartedAt,
		EndedAt:   c.EndedAt,
	})
}
