package service

import (
	"context"
	"fmt"
	"time"

	apperrors "focuspal/backend/internal/errors"
	"focuspal/backend/internal/model"
	"focuspal/backend/internal/notify"
	"focuspal/backend/internal/repository"
	"focuspal/backend/internal/timer"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	streakLookbackDays  = 366
)

type FocusService struct {
	registry *Registry
	history  *repository.SessionRepository
	outbox   *notify.Outbox
	clock    timer.Clock
}

type StateView struct {
	timer.State
	ManuallyStopped bool            `json:"manuallyStopped"`
	Settings        timer.Durations `json:"settings"`
	ServerTime      time.Time       `json:"serverTime"`
}

type HistoryInput struct {
	Kind   string
	Status string
	Limit  int
}

func NewFocusService(registry *Registry, history *repository.SessionRepository, outbox *notify.Outbox, clock timer.Clock) *FocusService {
	if clock == nil {
		clock = timer.SystemClock{}
	}
	return &FocusService{
		registry: registry,
		history:  history,
		outbox:   outbox,
		clock:    clock,
	}
}

func (s *FocusService) GetState(ctx context.Context, userID string) (*StateView, *apperrors.APIError) {
	session := s.registry.Session(ctx, userID)
	view := s.toStateView(ctx, session, session.State())
	return &view, nil
}

func (s *FocusService) Start(ctx context.Context, userID string, minutes, baseVersion int) (*StateView, *apperrors.APIError) {
	if apiErr := validateMinutes(minutes); apiErr != nil {
		return nil, apiErr
	}
	return s.apply(ctx, userID, baseVersion, func(session *timer.Session) timer.State {
		return session.Start(ctx, minutes)
	})
}

func (s *FocusService) StartBreak(ctx context.Context, userID string, minutes, baseVersion int) (*StateView, *apperrors.APIError) {
	if apiErr := validateMinutes(minutes); apiErr != nil {
		return nil, apiErr
	}
	return s.apply(ctx, userID, baseVersion, func(session *timer.Session) timer.State {
		return session.StartBreak(ctx, minutes)
	})
}

func (s *FocusService) Pause(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.apply(ctx, userID, baseVersion, func(session *timer.Session) timer.State {
		return session.Pause(ctx)
	})
}

func (s *FocusService) Resume(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.apply(ctx, userID, baseVersion, func(session *timer.Session) timer.State {
		return session.Resume(ctx)
	})
}

func (s *FocusService) Stop(ctx context.Context, userID string, manually bool, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.apply(ctx, userID, baseVersion, func(session *timer.Session) timer.State {
		return session.Stop(ctx, manually)
	})
}

func (s *FocusService) UpdateSettings(ctx context.Context, userID string, focusMinutes, breakMinutes int) (*StateView, *apperrors.APIError) {
	if focusMinutes <= 0 || breakMinutes <= 0 {
		return nil, apperrors.BadRequest("invalid_duration", "all durations must be positive minutes")
	}
	if focusMinutes > timer.MaxMinutes || breakMinutes > timer.MaxMinutes {
		return nil, apperrors.BadRequest("invalid_duration", fmt.Sprintf("durations must not exceed %d minutes", timer.MaxMinutes))
	}

	e := s.registry.lock(ctx, userID)
	defer e.mu.Unlock()

	e.session.Configure(ctx, timer.Durations{FocusMinutes: focusMinutes, BreakMinutes: breakMinutes})
	view := s.toStateView(ctx, e.session, e.session.State())
	return &view, nil
}

// Subscribe streams state snapshots for userID until the returned func is
// called.
func (s *FocusService) Subscribe(ctx context.Context, userID string) (<-chan timer.State, func(), *StateView) {
	e := s.registry.lock(ctx, userID)
	defer e.mu.Unlock()

	events, cancel := e.session.Subscribe(16)
	view := s.toStateView(ctx, e.session, e.session.State())
	return events, cancel, &view
}

func (s *FocusService) GetHistory(ctx context.Context, userID string, input HistoryInput) ([]model.FocusSession, *apperrors.APIError) {
	if input.Kind != "" && input.Kind != model.KindFocus && input.Kind != model.KindBreak {
		return nil, apperrors.BadRequest("invalid_kind", "kind must be one of focus, break")
	}
	if input.Status != "" && input.Status != model.SessionCompleted && input.Status != model.SessionCancelled {
		return nil, apperrors.BadRequest("invalid_status", "status must be one of completed, cancelled")
	}
	if input.Limit <= 0 || input.Limit > maxHistoryLimit {
		input.Limit = defaultHistoryLimit
	}

	sessions, err := s.history.ListSessions(ctx, userID, model.HistoryFilter{
		Kind:   input.Kind,
		Status: input.Status,
		Limit:  input.Limit,
	})
	if err != nil {
		return nil, apperrors.Internal("failed to get history")
	}
	return sessions, nil
}

func (s *FocusService) GetStats(ctx context.Context, userID string) (*model.FocusStats, *apperrors.APIError) {
	completed, cancelled, totalMs, err := s.history.FocusTotals(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to get stats")
	}

	now := s.clock.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	today, err := s.history.CountCompletedSince(ctx, userID, startOfDay)
	if err != nil {
		return nil, apperrors.Internal("failed to get stats")
	}

	days, err := s.history.CompletedDays(ctx, userID, streakLookbackDays)
	if err != nil {
		return nil, apperrors.Internal("failed to get stats")
	}

	return &model.FocusStats{
		CompletedSessions: completed,
		CancelledSessions: cancelled,
		TotalFocusMs:      totalMs,
		CompletedToday:    today,
		CurrentStreakDays: currentStreak(days, now),
	}, nil
}

func (s *FocusService) ListNotifications(ctx context.Context, userID string) ([]model.Notification, *apperrors.APIError) {
	if s.outbox == nil {
		return []model.Notification{}, nil
	}
	items, err := s.outbox.Pending(ctx, userID, defaultHistoryLimit)
	if err != nil {
		return nil, apperrors.Internal("failed to list notifications")
	}
	return items, nil
}

func (s *FocusService) apply(
	ctx context.Context,
	userID string,
	baseVersion int,
	command func(session *timer.Session) timer.State,
) (*StateView, *apperrors.APIError) {
	e := s.registry.lock(ctx, userID)
	defer e.mu.Unlock()

	current := e.session.State()
	if baseVersion > 0 && baseVersion != current.Version {
		view := s.toStateView(ctx, e.session, current)
		return nil, apperrors.StateConflict(view)
	}

	view := s.toStateView(ctx, e.session, command(e.session))
	return &view, nil
}

func (s *FocusService) toStateView(ctx context.Context, session *timer.Session, state timer.State) StateView {
	return StateView{
		State:           state,
		ManuallyStopped: session.ManuallyStopped(),
		Settings:        session.Settings(ctx),
		ServerTime:      s.clock.Now(),
	}
}

// validateMinutes accepts 0 (use the configured duration) up to
// timer.MaxMinutes.
func validateMinutes(minutes int) *apperrors.APIError {
	if minutes < 0 {
		return apperrors.BadRequest("invalid_duration", "minutes must not be negative")
	}
	if minutes > timer.MaxMinutes {
		return apperrors.BadRequest("invalid_duration", fmt.Sprintf("minutes must not exceed %d", timer.MaxMinutes))
	}
	return nil
}

// currentStreak counts consecutive days ending today or yesterday. days are
// YYYY-MM-DD strings, newest first.
func currentStreak(days []string, now time.Time) int {
	if len(days) == 0 {
		return 0
	}

	cursor := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if days[0] != cursor.Format(time.DateOnly) {
		cursor = cursor.AddDate(0, 0, -1)
		if days[0] != cursor.Format(time.DateOnly) {
			return 0
		}
	}

	streak := 0
	for _, day := range days {
		if day != cursor.Format(time.DateOnly) {
			break
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}
