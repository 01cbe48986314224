// Package kvstore provides the key-value stores that back session
// persistence.
package kvstore

import (
	"context"
	"sync"
)

// Backend stores values partitioned by namespace.
type Backend interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool, error)
	Put(ctx context.Context, namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace, key string) error
}

// Store is a Backend bound to one namespace.
type Store struct {
	backend   Backend
	namespace string
}

func Namespace(backend Backend, namespace string) *Store {
	return &Store{backend: backend, namespace: namespace}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.backend.Get(ctx, s.namespace, key)
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.backend.Put(ctx, s.namespace, key, value)
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, s.namespace, key)
}

type entryKey struct {
	namespace string
	key       string
}

// Memory is an in-process Backend.
type Memory struct {
	mu      sync.RWMutex
	entries map[entryKey][]byte
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[entryKey][]byte)}
}

func (m *Memory) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[entryKey{namespace, key}]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (m *Memory) Put(_ context.Context, namespace, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entryKey{namespace, key}] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, entryKey{namespace, key})
	return nil
}
