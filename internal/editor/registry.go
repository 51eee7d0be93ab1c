package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schemati/schemati-backend/internal/diagram"
	"github.com/schemati/schemati-backend/internal/history"
	"github.com/schemati/schemati-backend/internal/metrics"
)

type Option func(*Registry)

// WithHistoryCapacity bounds each session's undo history.
func WithHistoryCapacity(n int) Option {
	return func(r *Registry) { r.capacity = n }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// Registry holds the live sessions of one process.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	projects ProjectStore
	capacity int
	now      func() time.Time
	log      *slog.Logger
}

func NewRegistry(projects ProjectStore, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		projects: projects,
		capacity: history.DefaultCapacity,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create starts a session seeded with initial. Nothing is saved until the
// first edit.
func (r *Registry) Create(initial diagram.Snapshot) *Session {
	s := newSession(uuid.NewString(), r.projects, r.capacity, r.now, r.log)
	initial = initial.Normalize()
	s.current = initial
	s.history.Initialize(initial)
	r.add(s)
	return s
}

// Open loads a project, makes it current and starts a session on it with
// a fresh history.
func (r *Registry) Open(ctx context.Context, projectID string) (*Session, error) {
	data, err := r.projects.Load(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("open project %s: %w", projectID, err)
	}

	s := newSession(uuid.NewString(), r.projects, r.capacity, r.now, r.log)
	s.current = data
	s.project = projectID
	s.history.Reset(data)
	r.add(s)
	return s, nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove ends a session. It reports whether the session existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	return true
}

// Evict removes sessions without activity for longer than idle.
func (r *Registry) Evict(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	if removed > 0 {
		r.log.Info("evicted idle editor sessions", "count", removed)
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	r.sessions[s.id] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
}
