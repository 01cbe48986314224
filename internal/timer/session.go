package timer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"focuspal/backend/internal/observability"
)

type Options struct {
	Clock        Clock
	Scheduler    Scheduler
	Store        Store
	Notifier     Notifier
	Recorder     Recorder
	Logger       *slog.Logger
	TickInterval time.Duration
	Defaults     Durations
}

// Session tracks a single focus or break countdown. All methods are safe for
// concurrent use; side-effect failures are logged and never returned.
type Session struct {
	mu sync.Mutex

	clock        Clock
	scheduler    Scheduler
	store        Store
	notifier     Notifier
	recorder     Recorder
	logger       *slog.Logger
	tickInterval time.Duration
	defaults     Durations

	state           State
	manuallyStopped bool
	startedAt       time.Time
	notificationID  string

	cancelTick func()
	tickGen    uint64

	subs    map[int]chan State
	nextSub int
}

func New(opts Options) *Session {
	s := &Session{
		clock:        opts.Clock,
		scheduler:    opts.Scheduler,
		store:        opts.Store,
		notifier:     opts.Notifier,
		recorder:     opts.Recorder,
		logger:       opts.Logger,
		tickInterval: opts.TickInterval,
		defaults:     opts.Defaults,
		state:        State{Mode: ModeIdle},
		subs:         make(map[int]chan State),
	}
	if s.clock == nil {
		s.clock = SystemClock{}
	}
	if s.scheduler == nil {
		s.scheduler = TickerScheduler{}
	}
	if s.store == nil {
		s.store = nopStore{}
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.logger == nil {
		s.logger = observability.Logger()
	}
	if s.tickInterval <= 0 {
		s.tickInterval = DefaultTickInterval
	}
	if s.defaults.FocusMinutes < 1 || s.defaults.FocusMinutes > MaxMinutes {
		s.defaults.FocusMinutes = DefaultFocusMinutes
	}
	if s.defaults.BreakMinutes < 1 || s.defaults.BreakMinutes > MaxMinutes {
		s.defaults.BreakMinutes = DefaultBreakMinutes
	}
	return s
}

// State returns a copy of the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// ManuallyStopped reports whether the last stop was requested by the user.
func (s *Session) ManuallyStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manuallyStopped
}

// Start begins a focus interval. minutes < 1 selects the last configured
// focus duration and values above MaxMinutes are capped. Calling Start
// mid-interval restarts it.
func (s *Session) Start(ctx context.Context, minutes int) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.durations(ctx)
	if minutes < 1 {
		minutes = d.FocusMinutes
	} else if minutes = clampMinutes(minutes); minutes != d.FocusMinutes {
		d.FocusMinutes = minutes
		s.saveDurations(ctx, d)
	}

	s.begin(ctx, ModeFocus, minutes)
	return s.snapshot()
}

// StartBreak begins a break interval. minutes < 1 selects the last
// configured break duration.
func (s *Session) StartBreak(ctx context.Context, minutes int) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.durations(ctx)
	if minutes < 1 {
		minutes = d.BreakMinutes
	} else if minutes = clampMinutes(minutes); minutes != d.BreakMinutes {
		d.BreakMinutes = minutes
		s.saveDurations(ctx, d)
	}

	s.begin(ctx, ModeBreak, minutes)
	return s.snapshot()
}

// Pause halts a running focus interval. Any other mode is left untouched.
func (s *Session) Pause(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Mode != ModeFocus {
		return s.snapshot()
	}

	remaining := s.remainingAt(s.clock.Now())
	if remaining == 0 {
		s.complete(ctx)
		return s.snapshot()
	}

	s.stopTicking()
	s.cancelNotification(ctx)
	s.state.RemainingMs = remaining
	s.state.Mode = ModePaused
	s.state.ExpectedEnd = nil
	s.commit(ctx, true)
	return s.snapshot()
}

// Resume continues a paused focus interval from its remaining time.
func (s *Session) Resume(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Mode != ModePaused {
		return s.snapshot()
	}

	s.state.Mode = ModeFocus
	s.runCountdown(ctx)
	s.commit(ctx, true)
	return s.snapshot()
}

// Stop ends the session from any mode and clears persisted state. A manual
// stop of a focus interval is recorded as cancelled, never as completed.
func (s *Session) Stop(ctx context.Context, manually bool) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	focusInterval := s.state.Mode == ModeFocus || s.state.Mode == ModePaused
	if manually && focusInterval && s.state.TotalMs > 0 {
		remaining := s.state.RemainingMs
		if s.state.Mode == ModeFocus {
			remaining = s.remainingAt(now)
		}
		s.record(ctx, Completion{
			Kind:      KindFocus,
			PlannedMs: s.state.TotalMs,
			ActualMs:  s.state.TotalMs - remaining,
			StartedAt: s.startedAt,
			EndedAt:   now,
			Completed: false,
		})
	}

	s.stopTicking()
	s.cancelNotification(ctx)
	s.manuallyStopped = manually
	s.state.Mode = ModeIdle
	s.state.RemainingMs = 0
	s.state.ExpectedEnd = nil
	s.state.IsBreak = false
	s.clearPersisted(ctx)
	s.state.Version++
	s.publish()
	return s.snapshot()
}

// Tick recomputes the remaining time from the expected end rather than
// decrementing, so coalesced or missed ticks do not drift the countdown.
func (s *Session) Tick(ctx context.Context) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(ctx)
	return s.snapshot()
}

// Restore loads a persisted session. Counting sessions resume with the
// stored remaining time measured from now; time spent while the process was
// down is not deducted. Unreadable records are treated as no session.
func (s *Session) Restore(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, found, err := s.store.Get(ctx, KeyState)
	if err != nil {
		s.logger.Warn("read persisted session failed", "error", err)
		return false
	}
	if !found {
		s.manuallyStopped = s.readManualFlag(ctx)
		return false
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn("decode persisted session failed", "error", err)
		return false
	}
	if !validRecord(rec) {
		s.logger.Warn("discarding invalid persisted session", "mode", rec.Mode, "remaining_ms", rec.RemainingMs, "total_ms", rec.TotalMs)
		return false
	}

	if rec.NotificationID != "" {
		if err := s.notifier.Cancel(ctx, rec.NotificationID); err != nil {
			s.logger.Warn("cancel stale notification failed", "notification_id", rec.NotificationID, "error", err)
		}
	}

	now := s.clock.Now()
	s.state = State{
		Mode:        rec.Mode,
		RemainingMs: rec.RemainingMs,
		TotalMs:     rec.TotalMs,
		IsBreak:     rec.IsBreak || rec.Mode == ModeBreak,
		Version:     rec.Version,
	}
	s.manuallyStopped = rec.ManuallyStopped
	s.startedAt = now.Add(-time.Duration(rec.TotalMs-rec.RemainingMs) * time.Millisecond)
	if s.state.Counting() {
		s.runCountdown(ctx)
	}
	s.commit(ctx, false)

	s.logger.Info("restored session", "mode", s.state.Mode, "remaining_ms", s.state.RemainingMs)
	return true
}

// Settings returns the last configured durations.
func (s *Session) Settings(ctx context.Context) Durations {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durations(ctx)
}

// Configure stores new default durations, clamped to 1..MaxMinutes.
func (s *Session) Configure(ctx context.Context, d Durations) Durations {
	s.mu.Lock()
	defer s.mu.Unlock()

	d.FocusMinutes = clampMinutes(d.FocusMinutes)
	d.BreakMinutes = clampMinutes(d.BreakMinutes)
	s.saveDurations(ctx, d)
	return d
}

// Subscribe returns a channel receiving a snapshot after every change.
// Slow subscribers miss snapshots instead of blocking the session.
func (s *Session) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Dormant reports whether the session has no running countdown and no
// subscribers, so dropping it from memory loses nothing that Restore cannot
// rebuild.
func (s *Session) Dormant() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.state.Counting() && len(s.subs) == 0
}

// Close stops the tick source but keeps persisted state so the session can
// be restored later.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTicking()
}

func (s *Session) begin(ctx context.Context, mode Mode, minutes int) {
	s.stopTicking()
	s.cancelNotification(ctx)

	total := int64(clampMinutes(minutes)) * msPerMinute
	s.state.Mode = mode
	s.state.TotalMs = total
	s.state.RemainingMs = total
	s.state.IsBreak = mode == ModeBreak
	s.manuallyStopped = false
	s.startedAt = s.clock.Now()

	s.runCountdown(ctx)
	s.commit(ctx, true)
}

func (s *Session) runCountdown(ctx context.Context) {
	end := s.clock.Now().Add(time.Duration(s.state.RemainingMs) * time.Millisecond)
	s.state.ExpectedEnd = &end

	s.stopTicking()
	gen := s.tickGen
	s.cancelTick = s.scheduler.Every(s.tickInterval, func() {
		s.tickFrom(gen)
	})

	title, body := "Focus session complete", "Nice work. Time for a break."
	if s.state.IsBreak {
		title, body = "Break is over", "Ready to focus again?"
	}
	after := time.Duration(s.state.RemainingMs) * time.Millisecond
	id, err := s.notifier.Schedule(ctx, after, title, body)
	if err != nil {
		s.logger.Warn("schedule notification failed", "after", after, "error", err)
		return
	}
	s.notificationID = id
}

func (s *Session) tickFrom(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.tickGen {
		return
	}
	s.advance(context.Background())
}

func (s *Session) advance(ctx context.Context) {
	if !s.state.Counting() {
		return
	}

	remaining := s.remainingAt(s.clock.Now())
	if remaining == 0 {
		s.complete(ctx)
		return
	}
	if remaining == s.state.RemainingMs {
		return
	}
	s.state.RemainingMs = remaining
	s.commit(ctx, false)
}

func (s *Session) complete(ctx context.Context) {
	wasBreak := s.state.IsBreak
	total := s.state.TotalMs
	startedAt := s.startedAt
	now := s.clock.Now()

	s.stopTicking()
	// The completion notification is due now; leave it for delivery.
	s.notificationID = ""
	s.manuallyStopped = false
	s.state.Mode = ModeIdle
	s.state.RemainingMs = 0
	s.state.ExpectedEnd = nil
	s.state.IsBreak = false
	s.clearPersisted(ctx)
	s.state.Version++
	s.publish()

	s.logger.Info("interval completed", "break", wasBreak, "total_ms", total)
	if wasBreak {
		return
	}
	s.record(ctx, Completion{
		Kind:      KindFocus,
		PlannedMs: total,
		ActualMs:  total,
		StartedAt: startedAt,
		EndedAt:   now,
		Completed: true,
	})
}

func (s *Session) remainingAt(now time.Time) int64 {
	if s.state.ExpectedEnd == nil {
		return s.state.RemainingMs
	}
	remaining := s.state.ExpectedEnd.Sub(now).Milliseconds()
	if remaining < 0 {
		return 0
	}
	if remaining > s.state.TotalMs {
		return s.state.TotalMs
	}
	return remaining
}

func (s *Session) stopTicking() {
	s.tickGen++
	if s.cancelTick != nil {
		s.cancelTick()
		s.cancelTick = nil
	}
}

func (s *Session) cancelNotification(ctx context.Context) {
	if s.notificationID == "" {
		return
	}
	if err := s.notifier.Cancel(ctx, s.notificationID); err != nil {
		s.logger.Warn("cancel notification failed", "notification_id", s.notificationID, "error", err)
	}
	s.notificationID = ""
}

func (s *Session) commit(ctx context.Context, bump bool) {
	if bump {
		s.state.Version++
	}
	s.persist(ctx)
	s.publish()
}

func (s *Session) persist(ctx context.Context) {
	if s.state.Mode == ModeIdle {
		return
	}
	raw, err := json.Marshal(Record{
		Mode:            s.state.Mode,
		RemainingMs:     s.state.RemainingMs,
		TotalMs:         s.state.TotalMs,
		ManuallyStopped: s.manuallyStopped,
		IsBreak:         s.state.IsBreak,
		NotificationID:  s.notificationID,
		Version:         s.state.Version,
	})
	if err != nil {
		s.logger.Warn("encode session failed", "error", err)
		return
	}
	if err := s.store.Set(ctx, KeyState, raw); err != nil {
		s.logger.Warn("persist session failed", "error", err)
	}
}

func (s *Session) clearPersisted(ctx context.Context) {
	if err := s.store.Remove(ctx, KeyState); err != nil {
		s.logger.Warn("clear persisted session failed", "error", err)
	}
	raw, _ := json.Marshal(s.manuallyStopped)
	if err := s.store.Set(ctx, KeyManuallyStopped, raw); err != nil {
		s.logger.Warn("persist stop flag failed", "error", err)
	}
}

func (s *Session) readManualFlag(ctx context.Context) bool {
	raw, found, err := s.store.Get(ctx, KeyManuallyStopped)
	if err != nil || !found {
		return false
	}
	var flag bool
	if err := json.Unmarshal(raw, &flag); err != nil {
		return false
	}
	return flag
}

func (s *Session) durations(ctx context.Context) Durations {
	d := s.defaults
	raw, found, err := s.store.Get(ctx, KeyDurations)
	if err != nil {
		s.logger.Warn("read durations failed", "error", err)
		return d
	}
	if !found {
		return d
	}
	var stored Durations
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.Warn("decode durations failed", "error", err)
		return d
	}
	if stored.FocusMinutes >= 1 {
		d.FocusMinutes = clampMinutes(stored.FocusMinutes)
	}
	if stored.BreakMinutes >= 1 {
		d.BreakMinutes = clampMinutes(stored.BreakMinutes)
	}
	return d
}

func (s *Session) saveDurations(ctx context.Context, d Durations) {
	raw, err := json.Marshal(d)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, KeyDurations, raw); err != nil {
		s.logger.Warn("persist durations failed", "error", err)
	}
}

func (s *Session) record(ctx context.Context, c Completion) {
	if c.ActualMs < 0 {
		c.ActualMs = 0
	}
	if err := s.recorder.Record(ctx, c); err != nil {
		s.logger.Warn("record session failed", "kind", c.Kind, "completed", c.Completed, "error", err)
	}
}

func (s *Session) publish() {
	snap := s.snapshot()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (s *Session) snapshot() State {
	snap := s.state
	if s.state.ExpectedEnd != nil {
		end := *s.state.ExpectedEnd
		snap.ExpectedEnd = &end
	}
	return snap
}

func validRecord(rec Record) bool {
	switch rec.Mode {
	case ModeFocus, ModePaused, ModeBreak:
	default:
		return false
	}
	return rec.TotalMs > 0 && rec.TotalMs <= MaxMinutes*msPerMinute &&
		rec.RemainingMs >= 0 && rec.RemainingMs <= rec.TotalMs
}

func clampMinutes(minutes int) int {
	if minutes < 1 {
		return 1
	}
	if minutes > MaxMinutes {
		return MaxMinutes
	}
	return minutes
}
