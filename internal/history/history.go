// Package history implements a bounded, linear undo/redo stack of state
// snapshots.
//
// A Manager owns an ordered list of entries and a cursor. Push appends after
// the cursor (discarding any redo branch), Undo and Redo move the cursor and
// hand the restored entry to the owner's callback. Because owners usually
// feed every state change back through Push, the first Push after an Undo or
// Redo is swallowed so that replaying history never records a new entry.
package history

import "sync"

// DefaultCapacity is the number of entries kept before the oldest is evicted.
const DefaultCapacity = 50

type Option func(*config)

type config struct {
	capacity int
}

// WithCapacity bounds the history length. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// Manager is safe for concurrent use. onStateChange runs without the
// internal lock held, so it may call back into the Manager.
type Manager[T any] struct {
	mu            sync.Mutex
	entries       []T
	index         int
	capacity      int
	initialized   bool
	suppressNext  bool
	onStateChange func(T)
}

// New returns an empty manager (index -1). onStateChange may be nil.
func New[T any](onStateChange func(T), opts ...Option) *Manager[T] {
	cfg := config{capacity: DefaultCapacity}
	for _, o := range opts {
		o(&cfg)
	}
	return &Manager[T]{
		index:         -1,
		capacity:      cfg.capacity,
		onStateChange: onStateChange,
	}
}

// Initialize seeds the history with s. Only the first call has any effect.
func (m *Manager[T]) Initialize(s T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return
	}
	m.seed(s)
}

// Reset reseeds the history with s regardless of prior initialization.
func (m *Manager[T]) Reset(s T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seed(s)
}

func (m *Manager[T]) seed(s T) {
	m.entries = []T{s}
	m.index = 0
	m.initialized = true
	m.suppressNext = false
}

// Push records s as the newest entry. It reports false when the push was
// consumed by a preceding Undo or Redo.
func (m *Manager[T]) Push(s T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.suppressNext {
		m.suppressNext = false
		return false
	}

	// Reuse of the backing array is safe: entries past the cursor are dead.
	next := append(m.entries[:m.index+1], s)
	if len(next) > m.capacity {
		var zero T
		next[0] = zero
		next = next[1:]
	}
	m.entries = next
	m.index = len(next) - 1
	return true
}

// Undo steps back one entry. It is a no-op when CanUndo is false.
func (m *Manager[T]) Undo() bool {
	return m.move(-1)
}

// Redo steps forward one entry. It is a no-op when CanRedo is false.
func (m *Manager[T]) Redo() bool {
	return m.move(1)
}

func (m *Manager[T]) move(delta int) bool {
	m.mu.Lock()
	target := m.index + delta
	if target < 0 || target >= len(m.entries) {
		m.mu.Unlock()
		return false
	}
	m.index = target
	m.suppressNext = true
	entry := m.entries[target]
	cb := m.onStateChange
	m.mu.Unlock()

	if cb != nil {
		cb(entry)
	}
	return true
}

func (m *Manager[T]) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index > 0
}

func (m *Manager[T]) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index < len(m.entries)-1
}

// Index returns the cursor, -1 before initialization.
func (m *Manager[T]) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

func (m *Manager[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Current returns the entry under the cursor.
func (m *Manager[T]) Current() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index < 0 {
		var zero T
		return zero, false
	}
	return m.entries[m.index], true
}

// Entries returns a copy of the recorded entries, oldest first.
func (m *Manager[T]) Entries() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]T(nil), m.entries...)
}
