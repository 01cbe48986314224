package timer

import "time"

type Mode string

const (
	ModeIdle   Mode = "idle"
	ModeFocus  Mode = "focus"
	ModePaused Mode = "paused"
	ModeBreak  Mode = "breakTime"
)

const (
	DefaultFocusMinutes = 25
	DefaultBreakMinutes = 5
	DefaultTickInterval = time.Second

	// MaxMinutes caps a single interval at one day.
	MaxMinutes = 24 * 60
)

// Keys written to the session's Store.
const (
	KeyState           = "session.state"
	KeyManuallyStopped = "session.manuallyStopped"
	KeyDurations       = "settings.durations"
)

const msPerMinute = int64(time.Minute / time.Millisecond)

// State is the observable snapshot of a Session.
type State struct {
	Mode        Mode       `json:"mode"`
	RemainingMs int64      `json:"remainingMs"`
	TotalMs     int64      `json:"totalMs"`
	ExpectedEnd *time.Time `json:"expectedEndDate,omitempty"`
	IsBreak     bool       `json:"isBreak"`
	Version     int        `json:"version"`
}

// Counting reports whether the countdown is live.
func (s State) Counting() bool {
	return s.Mode == ModeFocus || s.Mode == ModeBreak
}

// Record is the persisted form of an in-progress session. ExpectedEnd is
// deliberately absent; it is recomputed on restore.
type Record struct {
	Mode            Mode   `json:"mode"`
	RemainingMs     int64  `json:"remainingMs"`
	TotalMs         int64  `json:"totalMs"`
	ManuallyStopped bool   `json:"manuallyStopped"`
	IsBreak         bool   `json:"isBreak"`
	NotificationID  string `json:"notificationId,omitempty"`
	Version         int    `json:"version,omitempty"`
}

// Durations are the last configured interval lengths.
type Durations struct {
	FocusMinutes int `json:"focusMinutes"`
	BreakMinutes int `json:"breakMinutes"`
}

type Kind string

const (
	KindFocus Kind = "focus"
	KindBreak Kind = "break"
)

// Completion describes a finished interval handed to a Recorder.
type Completion struct {
	Kind      Kind
	PlannedMs int64
	ActualMs  int64
	StartedAt time.Time
	EndedAt   time.Time
	Completed bool
}
