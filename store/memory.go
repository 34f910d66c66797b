package store

import (
	"context"
	"strings"
	"sync"

	"github.com/goliatone/go-authclient/core"
)

// MemoryStore keeps credentials in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	ready  *readiness
	// keys set or deleted before hydration; hydration must not revive them
	written map[string]struct{}
}

// NewMemoryStore returns a store that is ready immediately.
func NewMemoryStore(seed map[string]string) *MemoryStore {
	store := NewPendingMemoryStore()
	store.Hydrate(seed)
	return store
}

// NewPendingMemoryStore returns a store whose reads wait until Hydrate or
// MarkReady is called.
func NewPendingMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]string{}, ready: newReadiness(), written: map[string]struct{}{}}
}

// Hydrate merges values into the store and marks it ready. Keys written or
// deleted while the store was pending keep their newer state.
func (s *MemoryStore) Hydrate(values map[string]string) {
	s.mu.Lock()
	for key, value := range values {
		if _, ok := s.written[key]; ok {
			continue
		}
		s.values[key] = value
	}
	s.written = nil
	s.mu.Unlock()
	s.ready.markReady()
}

func (s *MemoryStore) MarkReady() {
	s.ready.markReady()
}

func (s *MemoryStore) WaitReady(ctx context.Context) bool {
	return s.ready.wait(ctx)
}

func (s *MemoryStore) GetString(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[strings.TrimSpace(key)]
	return value, ok
}

func (s *MemoryStore) GetStringAsync(ctx context.Context, key string) (string, bool, error) {
	if !s.WaitReady(ctx) {
		return "", false, notReadyError(ctx)
	}
	value, ok := s.GetString(key)
	return value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return badKeyError()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	s.track(key)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return badKeyError()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	s.track(key)
	return nil
}

func (s *MemoryStore) track(key string) {
	if s.written != nil && !s.ready.isReady() {
		s.written[key] = struct{}{}
	}
}

// Snapshot returns a copy of every stored value.
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for key, value := range s.values {
		out[key] = value
	}
	return out
}

var _ core.CredentialStore = (*MemoryStore)(nil)
