package workflow

import "sync"

// Store is the per-run keyed state store. Values are opaque; callers that
// need structured state keep typed snapshots behind a single well-known key
// and go through Edit for read-modify-write.
type Store struct {
	mu     sync.RWMutex
	values map[string]any
	locks  map[string]*sync.Mutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		values: make(map[string]any),
		locks:  make(map[string]*sync.Mutex),
	}
}

// Get returns the value for key, or def when the key is absent. Never fails.
func (s *Store) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// Set overwrites the value for key atomically.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Editor is a scoped exclusive view over one key. Mutate Value and call
// Close to publish; Close must run on every exit path (defer it).
type Editor struct {
	store *Store
	key   string
	lock  *sync.Mutex

	// Value is the current value for the key; assign to change it.
	Value any

	closed bool
}

// Edit acquires exclusive access to key and returns an editor seeded with
// the current value (or nil when absent). Edits on the same key serialize;
// readers observe either the pre- or post-edit value, never a partial one.
func (s *Store) Edit(key string) *Editor {
	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()

	lock.Lock()

	s.mu.RLock()
	value := s.values[key]
	s.mu.RUnlock()

	return &Editor{store: s, key: key, lock: lock, Value: value}
}

// Close publishes Value atomically and releases the key. Safe to call once.
func (e *Editor) Close() {
	if e.closed {
		return
	}
	e.closed = true

	e.store.mu.Lock()
	e.store.values[e.key] = e.Value
	e.store.mu.Unlock()

	e.lock.Unlock()
}

// Discard releases the key without publishing Value.
func (e *Editor) Discard() {
	if e.closed {
		return
	}
	e.closed = true
	e.lock.Unlock()
}
