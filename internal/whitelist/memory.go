package whitelist

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a volatile, thread-safe Store. Hosts are kept in a sorted
// slice so List never has to sort and lookups are binary searches.
type MemoryStore struct {
	mu    sync.RWMutex
	hosts []string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.hosts))
	copy(out, s.hosts)
	return out, nil
}

// Add implements Store.
func (s *MemoryStore) Add(_ context.Context, host string) error {
	if err := validate(host); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.SearchStrings(s.hosts, host)
	if i < len(s.hosts) && s.hosts[i] == host {
		return ErrAlreadyExists
	}
	s.hosts = append(s.hosts, "")
	copy(s.hosts[i+1:], s.hosts[i:])
	s.hosts[i] = host
	return nil
}

// Remove implements Store.
func (s *MemoryStore) Remove(_ context.Context, host string) error {
	if err := validate(host); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.SearchStrings(s.hosts, host)
	if i == len(s.hosts) || s.hosts[i] != host {
		return ErrNotFound
	}
	s.hosts = append(s.hosts[:i], s.hosts[i+1:]...)
	return nil
}
