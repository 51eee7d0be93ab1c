// Package editor keeps live editing sessions: the current diagram, its
// undo history and autosave into the project store.
package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/schemati/schemati-backend/internal/diagram"
	"github.com/schemati/schemati-backend/internal/history"
)

// ProjectStore is the part of the project manager a session needs.
// AutosaveTo with an empty id mints a new project.
type ProjectStore interface {
	Load(ctx context.Context, id string) (diagram.Snapshot, error)
	AutosaveTo(ctx context.Context, id string, data diagram.Snapshot) (saved string, ok bool, err error)
}

// View is a point-in-time copy of a session's state.
type View struct {
	ID            string           `json:"id"`
	ProjectID     string           `json:"project_id,omitempty"`
	Data          diagram.Snapshot `json:"data"`
	CanUndo       bool             `json:"can_undo"`
	CanRedo       bool             `json:"can_redo"`
	HistoryIndex  int              `json:"history_index"`
	HistoryLength int              `json:"history_length"`
	Saved         bool             `json:"saved"`
	AutosaveError string           `json:"autosave_error,omitempty"`
}

// Session is one editor. Every state change, including undo and redo,
// runs through sync: the snapshot becomes current, is offered to history
// and is autosaved into the session's own project. A session started
// blank gets a project of its own on its first autosave.
type Session struct {
	id       string
	mu       sync.Mutex
	history  *history.Manager[diagram.Snapshot]
	current  diagram.Snapshot
	projects ProjectStore
	project  string

	lastActive time.Time
	now        func() time.Time
	log        *slog.Logger
}

func newSession(id string, projects ProjectStore, capacity int, now func() time.Time, log *slog.Logger) *Session {
	s := &Session{
		id:         id,
		current:    diagram.Empty(),
		projects:   projects,
		lastActive: now(),
		now:        now,
		log:        log,
	}
	s.history = history.New(s.restore, history.WithCapacity(capacity))
	return s
}

func (s *Session) ID() string { return s.id }

// restore is the history callback. It runs with s.mu held by Undo or Redo.
func (s *Session) restore(snap diagram.Snapshot) {
	s.current = snap
	s.history.Push(snap)
}

// Apply makes snap the current diagram, records it and autosaves.
func (s *Session) Apply(ctx context.Context, snap diagram.Snapshot) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap = snap.Normalize()
	s.current = snap
	s.history.Push(snap)
	return s.autosaveLocked(ctx)
}

// Undo restores the previous entry. The bool is false when there is none.
func (s *Session) Undo(ctx context.Context) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.history.Undo() {
		return s.viewLocked(), false
	}
	return s.autosaveLocked(ctx), true
}

// Redo reapplies the next entry. The bool is false when there is none.
func (s *Session) Redo(ctx context.Context) (View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.history.Redo() {
		return s.viewLocked(), false
	}
	return s.autosaveLocked(ctx), true
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Current returns the current diagram.
func (s *Session) Current() diagram.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) autosaveLocked(ctx context.Context) View {
	s.lastActive = s.now()
	v := s.viewLocked()

	id, saved, err := s.projects.AutosaveTo(ctx, s.project, s.current)
	if err != nil {
		s.log.Warn("autosave failed", "session_id", s.id, "error", err)
		v.AutosaveError = err.Error()
		return v
	}
	if saved {
		s.project = id
		v.ProjectID = id
		v.Saved = true
	}
	return v
}

func (s *Session) viewLocked() View {
	return View{
		ID:            s.id,
		ProjectID:     s.project,
		Data:          s.current,
		CanUndo:       s.history.CanUndo(),
		CanRedo:       s.history.CanRedo(),
		HistoryIndex:  s.history.Index(),
		HistoryLength: s.history.Len(),
	}
}
