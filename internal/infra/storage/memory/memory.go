package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/vietddude/chainmetrics/internal/infra/storage"
)

type list struct {
	items   []string
	members map[string]struct{}
}

// MemoryStorage is an in-process Store guarded by a single RWMutex.
type MemoryStorage struct {
	values map[string]string
	lists  map[string]*list
	mu     sync.RWMutex
}

var _ storage.Store = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		values: make(map[string]string),
		lists:  make(map[string]*list),
	}
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *MemoryStorage) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStorage) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value
	return true, nil
}

func (s *MemoryStorage) ListGet(ctx context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[key]
	if !ok {
		return []string{}, nil
	}
	return slices.Clone(l.items), nil
}

func (s *MemoryStorage) ListAppend(ctx context.Context, key, item string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listFor(key).add(item), nil
}

func (s *MemoryStorage) ListUpsert(ctx context.Context, key string, items []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.listFor(key)
	added := 0
	for _, item := range items {
		if l.add(item) {
			added++
		}
	}
	return added, nil
}

func (s *MemoryStorage) ListContains(ctx context.Context, key, item string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.lists[key]
	if !ok {
		return false, nil
	}
	_, found := l.members[item]
	return found, nil
}

func (s *MemoryStorage) ListLen(ctx context.Context, key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if l, ok := s.lists[key]; ok {
		return len(l.items), nil
	}
	return 0, nil
}

func (s *MemoryStorage) ListDelete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lists, key)
	return nil
}

func (s *MemoryStorage) KeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	for k := range s.lists {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys), nil
}

func (s *MemoryStorage) BulkDelete(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
		delete(s.lists, k)
	}
	return nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStorage) Close() error {
	return nil
}

// listFor must be called with the write lock held.
func (s *MemoryStorage) listFor(key string) *list {
	l, ok := s.lists[key]
	if !ok {
		l = &list{members: make(map[string]struct{})}
		s.lists[key] = l
	}
	return l
}

func (l *list) add(item string) bool {
	if _, ok := l.members[item]; ok {
		return false
	}
	l.members[item] = struct{}{}
	l.items = append(l.items, item)
	return true
}
