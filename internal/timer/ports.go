package timer

import (
	"context"
	"time"
)

// Store is a process-local key-value store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Notifier schedules local notifications. Delivery is best-effort.
type Notifier interface {
	Schedule(ctx context.Context, after time.Duration, title, body string) (string, error)
	Cancel(ctx context.Context, id string) error
}

// Recorder receives finished focus intervals for statistics.
type Recorder interface {
	Record(ctx context.Context, c Completion) error
}

type nopStore struct{}

func (nopStore) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (nopStore) Set(context.Context, string, []byte) error         { return nil }
func (nopStore) Remove(context.Context, string) error              { return nil }

type nopNotifier struct{}

func (nopNotifier) Schedule(context.Context, time.Duration, string, string) (string, error) {
	return "", nil
}
func (nopNotifier) Cancel(context.Context, string) error { return nil }

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, Completion) error { return nil }
