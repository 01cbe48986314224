package model

import "time"

const (
	KindFocus = "focus"
	KindBreak = "break"

	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

const (
	NotificationPending   = "pending"
	NotificationCancelled = "cancelled"
	NotificationDelivered = "delivered"
)

type FocusSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind"`
	PlannedMs int64     `json:"plannedMs"`
	ActualMs  int64     `json:"actualMs"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
}

type HistoryFilter struct {
	Kind   string
	Status string
	Since  *time.Time
	Limit  int
}

type FocusStats struct {
	CompletedSessions int   `json:"completedSessions"`
	CancelledSessions int   `json:"cancelledSessions"`
	TotalFocusMs      int64 `json:"totalFocusMs"`
	CompletedToday    int   `json:"completedToday"`
	CurrentStreakDays int   `json:"currentStreakDays"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	FireAt    time.Time `json:"fireAt"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
