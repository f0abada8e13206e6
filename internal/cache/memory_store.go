package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// NewMemoryRegistry 构建进程内 Registry，重启后内容丢失，主要用于测试与开发。
func NewMemoryRegistry() Registry {
	return &memoryRegistry{stores: make(map[string]*memoryStore)}
}

type memoryRegistry struct {
	mu     sync.RWMutex
	stores map[string]*memoryStore
	closed bool
	now    func() time.Time
}

type memoryStore struct {
	name string

	mu      sync.RWMutex
	entries map[Identity]Payload
	deleted bool
	now     func() time.Time
}

func (r *memoryRegistry) Open(ctx context.Context, name string) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateStoreName(name); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrStoreClosed
	}
	if store, ok := r.stores[name]; ok {
		return store, nil
	}
	now := r.now
	if now == nil {
		now = time.Now
	}
	store := &memoryStore{
		name:    name,
		entries: make(map[Identity]Payload),
		now:     now,
	}
	r.stores[name] = store
	return store, nil
}

func (r *memoryRegistry) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, ErrStoreClosed
	}
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *memoryRegistry) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrStoreClosed
	}
	store, ok := r.stores[name]
	if !ok {
		return false, nil
	}
	delete(r.stores, name)

	store.mu.Lock()
	store.deleted = true
	store.entries = nil
	store.mu.Unlock()
	return true, nil
}

func (r *memoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (s *memoryStore) Name() string {
	return s.name
}

func (s *memoryStore) Get(ctx context.Context, id Identity) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return Payload{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deleted {
		return Payload{}, ErrStoreClosed
	}
	payload, ok := s.entries[id]
	if !ok {
		return Payload{}, ErrNotFound
	}
	return payload.Clone(), nil
}

func (s *memoryStore) Put(ctx context.Context, id Identity, payload Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := payload.Clone()
	if snapshot.StoredAt.IsZero() {
		snapshot.StoredAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return ErrStoreClosed
	}
	s.entries[id] = snapshot
	return nil
}

func (s *memoryStore) Len(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deleted {
		return 0, ErrStoreClosed
	}
	return len(s.entries), nil
}
