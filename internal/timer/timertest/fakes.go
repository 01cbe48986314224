// Package timertest provides deterministic clocks and collaborators for
// exercising timer.Session without real time passing.
package timertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"focuspal/backend/internal/timer"
)

type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Scheduler records periodic callbacks and runs them only when Fire is called.
type Scheduler struct {
	mu     sync.Mutex
	nextID int
	jobs   map[int]func()
}

func NewScheduler() *Scheduler {
	return &Scheduler{jobs: make(map[int]func())}
}

func (s *Scheduler) Every(_ time.Duration, fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.jobs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.jobs, id)
		s.mu.Unlock()
	}
}

// Active returns the number of uncancelled callbacks.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Fire runs every active callback once.
func (s *Scheduler) Fire() {
	s.mu.Lock()
	jobs := make([]func(), 0, len(s.jobs))
	for _, fn := range s.jobs {
		jobs = append(jobs, fn)
	}
	s.mu.Unlock()

	for _, fn := range jobs {
		fn()
	}
}

// Run advances clock by step and fires, n times.
func (s *Scheduler) Run(clock *Clock, step time.Duration, n int) {
	for i := 0; i < n; i++ {
		clock.Advance(step)
		s.Fire()
	}
}

type Notification struct {
	ID        string
	After     time.Duration
	Title     string
	Body      string
	Cancelled bool
}

var ErrNotifierDown = errors.New("notifier unavailable")

type Notifier struct {
	mu    sync.Mutex
	Fail  bool
	items []*Notification
}

func (n *Notifier) Schedule(_ context.Context, after time.Duration, title, body string) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		return "", ErrNotifierDown
	}
	item := &Notification{
		ID:    fmt.Sprintf("n-%d", len(n.items)+1),
		After: after,
		Title: title,
		Body:  body,
	}
	n.items = append(n.items, item)
	return item.ID, nil
}

func (n *Notifier) Cancel(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail {
		return ErrNotifierDown
	}
	for _, item := range n.items {
		if item.ID == id {
			item.Cancelled = true
		}
	}
	return nil
}

func (n *Notifier) All() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, 0, len(n.items))
	for _, item := range n.items {
		out = append(out, *item)
	}
	return out
}

// Pending returns notifications that were scheduled and not cancelled.
func (n *Notifier) Pending() []Notification {
	var out []Notification
	for _, item := range n.All() {
		if !item.Cancelled {
			out = append(out, item)
		}
	}
	return out
}

type Recorder struct {
	mu          sync.Mutex
	Completions []timer.Completion
}

func (r *Recorder) Record(_ context.Context, c timer.Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Completions = append(r.Completions, c)
	return nil
}

func (r *Recorder) All() []timer.Completion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]timer.Completion(nil), r.Completions...)
}

// FailingStore fails every operation.
type FailingStore struct{}

var ErrStoreDown = errors.New("store unavailable")

func (FailingStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, ErrStoreDown
}
func (FailingStore) Set(context.Context, string, []byte) error { return ErrStoreDown }
func (FailingStore) Remove(context.Context, string) error      { return ErrStoreDown }
