package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"focuspal/backend/internal/kvstore"
	"focuspal/backend/internal/notify"
	"focuspal/backend/internal/observability"
	"focuspal/backend/internal/repository"
	"focuspal/backend/internal/timer"
)

const defaultIdleTTL = 30 * time.Minute

type RegistryConfig struct {
	Backend      kvstore.Backend
	Outbox       *notify.Outbox
	History      *repository.SessionRepository
	Clock        timer.Clock
	Scheduler    timer.Scheduler
	TickInterval time.Duration
	Defaults     timer.Durations
	// IdleTTL is how long an unused session that is not counting down stays
	// loaded.
	IdleTTL time.Duration
}

// Registry owns one timer.Session per user. Sessions are created on first
// use, restored from the user's persisted state, and dropped by Prune once
// they sit unused without a running countdown.
type Registry struct {
	cfg RegistryConfig

	mu      sync.Mutex
	entries map[string]*sessionEntry
}

// sessionEntry serialises version-checked commands for one user.
type sessionEntry struct {
	mu      sync.Mutex
	evicted bool // guarded by mu

	init    sync.Once
	ready   atomic.Bool
	session *timer.Session

	lastUsed time.Time // guarded by Registry.mu
}

func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Backend == nil {
		cfg.Backend = kvstore.NewMemory()
	}
	if cfg.Clock == nil {
		cfg.Clock = timer.SystemClock{}
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	return &Registry{
		cfg:     cfg,
		entries: make(map[string]*sessionEntry),
	}
}

// entry returns the user's entry, restoring its session on first use. The
// restore runs outside r.mu so a slow read only delays callers for the same
// user.
func (r *Registry) entry(ctx context.Context, userID string) *sessionEntry {
	r.mu.Lock()
	e, ok := r.entries[userID]
	if !ok {
		e = &sessionEntry{}
		r.entries[userID] = e
	}
	e.lastUsed = r.cfg.Clock.Now()
	r.mu.Unlock()

	e.init.Do(func() {
		session := timer.New(r.options(userID))
		// Restored state outlives the request that triggered the load.
		session.Restore(context.WithoutCancel(ctx))
		e.session = session
		e.ready.Store(true)
	})
	return e
}

// lock returns the user's entry with its command lock held. Entries evicted
// between lookup and locking are skipped.
func (r *Registry) lock(ctx context.Context, userID string) *sessionEntry {
	for {
		e := r.entry(ctx, userID)
		e.mu.Lock()
		if !e.evicted {
			return e
		}
		e.mu.Unlock()
	}
}

func (r *Registry) options(userID string) timer.Options {
	opts := timer.Options{
		Clock:        r.cfg.Clock,
		Scheduler:    r.cfg.Scheduler,
		Store:        kvstore.Namespace(r.cfg.Backend, userID),
		Logger:       observability.WithFields("component", "timer", "user_id", userID),
		TickInterval: r.cfg.TickInterval,
		Defaults:     r.cfg.Defaults,
	}
	if r.cfg.Outbox != nil {
		opts.Notifier = r.cfg.Outbox.ForUser(userID)
	}
	if r.cfg.History != nil {
		opts.Recorder = &historyRecorder{repo: r.cfg.History, userID: userID}
	}
	return opts
}

// Session returns the user's session, restoring it on first access.
func (r *Registry) Session(ctx context.Context, userID string) *timer.Session {
	return r.entry(ctx, userID).session
}

// Len reports how many sessions are loaded.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Prune drops sessions unused for IdleTTL that have no running countdown and
// no subscribers. Their state is already persisted, so the next access
// restores them. Entries busy with a command are left for the next pass.
func (r *Registry) Prune() int {
	now := r.cfg.Clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for userID, e := range r.entries {
		if !e.ready.Load() || now.Sub(e.lastUsed) < r.cfg.IdleTTL {
			continue
		}
		if !e.mu.TryLock() {
			continue
		}
		if e.session.Dormant() {
			e.evicted = true
			e.session.Close()
			delete(r.entries, userID)
			pruned++
		}
		e.mu.Unlock()
	}
	return pruned
}

// Run prunes on an interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.IdleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	logger := observability.WithFields("component", "session_registry")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Prune(); n > 0 {
				logger.Debug("pruned idle sessions", "count", n, "loaded", r.Len())
			}
		}
	}
}

// Close halts every tick source; persisted state is kept for the next start.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ready.Load() {
			e.session.Close()
		}
	}
}
