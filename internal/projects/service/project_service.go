package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schemati/schemati-backend/internal/diagram"
	"github.com/schemati/schemati-backend/internal/metrics"
	"github.com/schemati/schemati-backend/internal/projects/domain"
	"github.com/schemati/schemati-backend/internal/store"
)

// Store keys. Values are JSON except the current project pointer, which is
// the bare id.
const (
	ProjectsKey       = "schemati_projects"
	CurrentProjectKey = "schemati_current_project"
	AutosaveKey       = "schemati_autosave"
)

// AutosaveName names projects first created by an autosave.
const AutosaveName = "Autosave"

const exportTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides project id minting.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager owns the project collection, the current project pointer and the
// autosave flag. Every mutation rewrites the whole collection in the store
// before the in-memory copy changes, so a failed write leaves both as they
// were. Writers in other processes are not coordinated; the last write wins.
type Manager struct {
	mu        sync.Mutex
	kv        store.KV
	projects  []domain.Project
	currentID string
	autosave  bool

	now   func() time.Time
	newID func() string
	log   *slog.Logger
}

// Open loads persisted state from kv. Unreadable or corrupt entries are
// logged and treated as absent.
func Open(ctx context.Context, kv store.KV, opts ...Option) *Manager {
	m := &Manager{
		kv:       kv,
		autosave: true,
		now:      time.Now,
		newID:    func() string { return "project-" + uuid.NewString() },
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	m.load(ctx)
	return m
}

// Reload replaces the in-memory state with what the store holds, picking
// up writes made by other processes.
func (m *Manager) Reload(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects = nil
	m.currentID = ""
	m.autosave = true
	m.load(ctx)
}

func (m *Manager) load(ctx context.Context) {
	if raw, ok, err := m.kv.Get(ctx, ProjectsKey); err != nil {
		m.log.Error("failed to load projects", "error", err)
	} else if ok {
		var projects []domain.Project
		if err := json.Unmarshal(raw, &projects); err != nil {
			m.log.Error("failed to parse stored projects", "error", err)
		} else {
			m.projects = projects
		}
	}

	if raw, ok, err := m.kv.Get(ctx, CurrentProjectKey); err != nil {
		m.log.Error("failed to load current project", "error", err)
	} else if ok {
		m.currentID = parsePointer(raw)
	}

	if raw, ok, err := m.kv.Get(ctx, AutosaveKey); err != nil {
		m.log.Error("failed to load autosave flag", "error", err)
	} else if ok {
		var enabled bool
		if err := json.Unmarshal(raw, &enabled); err != nil {
			m.log.Error("failed to parse autosave flag", "error", err)
		} else {
			m.autosave = enabled
		}
	}
}

// parsePointer accepts the bare id and, for robustness, a JSON string.
func parsePointer(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if strings.HasPrefix(s, `"`) {
		var id string
		if err := json.Unmarshal([]byte(s), &id); err == nil {
			return id
		}
	}
	return s
}

// Projects returns a copy of the collection.
func (m *Manager) Projects() []domain.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Project(nil), m.projects...)
}

// Get returns one project without changing the current pointer.
func (m *Manager) Get(id string) (domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexOf(id); i >= 0 {
		return m.projects[i], nil
	}
	return domain.Project{}, domain.ErrNotFound
}

// Current returns the current project id, or "" when none is selected.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID
}

func (m *Manager) AutosaveEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autosave
}

type saveMode int

const (
	saveManual saveMode = iota
	saveAuto
)

// Save writes data to the current project, minting and selecting a new one
// when no project is current. An empty name keeps the stored name, or
// defaults to "Project <date>" for a new project. createdAt survives
// overwrites.
func (m *Manager) Save(ctx context.Context, data diagram.Snapshot, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, err := m.save(ctx, m.currentID, data, name, saveManual)
	metrics.RecordProjectOp("save", err)
	return id, err
}

// Autosave saves data to the current project when autosave is enabled. An
// existing project keeps its name; a project minted by autosave is named
// "Autosave".
func (m *Manager) Autosave(ctx context.Context, data diagram.Snapshot) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.autosave {
		return "", false, nil
	}
	id, err := m.save(ctx, m.currentID, data, AutosaveName, saveAuto)
	metrics.RecordProjectOp("autosave", err)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// AutosaveTo is Autosave against an explicit project instead of the
// current one. An empty id mints and selects a new "Autosave" project; an
// id that no longer exists is ErrNotFound. Writing to an existing project
// leaves the current pointer alone.
func (m *Manager) AutosaveTo(ctx context.Context, id string, data diagram.Snapshot) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.autosave {
		return "", false, nil
	}
	if id != "" && m.indexOf(id) < 0 {
		metrics.RecordProjectOp("autosave", domain.ErrNotFound)
		return "", false, domain.ErrNotFound
	}
	saved, err := m.save(ctx, id, data, AutosaveName, saveAuto)
	metrics.RecordProjectOp("autosave", err)
	if err != nil {
		return "", false, err
	}
	return saved, true, nil
}

// save writes data into project id, or into a newly minted project that
// becomes current when id is empty. When selecting the new project fails
// the collection write is undone, so neither the store nor memory keeps a
// half-created project.
func (m *Manager) save(ctx context.Context, id string, data diagram.Snapshot, name string, mode saveMode) (string, error) {
	now := m.now()
	name = strings.TrimSpace(name)

	minted := id == ""
	if minted {
		id = m.newID()
	}

	next := append([]domain.Project(nil), m.projects...)
	p := domain.Project{ID: id, Name: name, Data: data.Normalize(), CreatedAt: now, UpdatedAt: now}

	if i := indexOf(next, id); i >= 0 {
		p.CreatedAt = next[i].CreatedAt
		if name == "" || mode == saveAuto {
			p.Name = next[i].Name
		}
		next[i] = p
	} else {
		if p.Name == "" {
			p.Name = "Project " + now.Format("2006-01-02")
		}
		next = append(next, p)
	}

	if err := m.writeProjects(ctx, next); err != nil {
		return "", err
	}

	if minted {
		if err := m.kv.Set(ctx, CurrentProjectKey, []byte(id)); err != nil {
			if rbErr := m.writeProjects(ctx, m.projects); rbErr != nil {
				m.log.Error("failed to roll back project collection", "project_id", id, "error", rbErr)
			}
			return "", fmt.Errorf("persist current project: %w", err)
		}
		m.currentID = id
	}
	m.projects = next
	return id, nil
}

// Load selects the project and returns its diagram.
func (m *Manager) Load(ctx context.Context, id string) (diagram.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		metrics.RecordProjectOp("load", domain.ErrNotFound)
		return diagram.Snapshot{}, domain.ErrNotFound
	}
	if err := m.kv.Set(ctx, CurrentProjectKey, []byte(id)); err != nil {
		metrics.RecordProjectOp("load", err)
		return diagram.Snapshot{}, fmt.Errorf("persist current project: %w", err)
	}
	m.currentID = id
	metrics.RecordProjectOp("load", nil)
	return m.projects[i].Data, nil
}

// Delete removes a project and clears the current pointer if it pointed at it.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return domain.ErrNotFound
	}
	next := make([]domain.Project, 0, len(m.projects)-1)
	next = append(next, m.projects[:i]...)
	next = append(next, m.projects[i+1:]...)

	err := m.writeProjects(ctx, next)
	metrics.RecordProjectOp("delete", err)
	if err != nil {
		return err
	}
	m.projects = next

	if m.currentID == id {
		return m.clearCurrent(ctx)
	}
	return nil
}

// Rename changes a project's name and bumps updatedAt.
func (m *Manager) Rename(ctx context.Context, id, name string) (domain.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Project{}, domain.ErrInvalidName
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return domain.Project{}, domain.ErrNotFound
	}
	next := append([]domain.Project(nil), m.projects...)
	next[i].Name = name
	next[i].UpdatedAt = m.now()

	err := m.writeProjects(ctx, next)
	metrics.RecordProjectOp("rename", err)
	if err != nil {
		return domain.Project{}, err
	}
	m.projects = next
	return next[i], nil
}

// New deselects the current project; the next Save mints a new one.
func (m *Manager) New(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearCurrent(ctx)
}

func (m *Manager) clearCurrent(ctx context.Context) error {
	if err := m.kv.Delete(ctx, CurrentProjectKey); err != nil {
		return fmt.Errorf("clear current project: %w", err)
	}
	m.currentID = ""
	return nil
}

// ToggleAutosave flips and persists the autosave flag, returning the new value.
func (m *Manager) ToggleAutosave(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := !m.autosave
	raw, _ := json.Marshal(next)
	if err := m.kv.Set(ctx, AutosaveKey, raw); err != nil {
		return m.autosave, fmt.Errorf("persist autosave flag: %w", err)
	}
	m.autosave = next
	return next, nil
}

// Export renders a project as an interchange file.
func (m *Manager) Export(id string) (*domain.Export, error) {
	p, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	f := diagram.NewFile(p.Data, diagram.Metadata{
		Version:     diagram.FormatVersion,
		ExportedAt:  m.now().UTC().Format(exportTimeFormat),
		ProjectName: p.Name,
		ProjectID:   p.ID,
	})
	body, err := f.Encode()
	metrics.RecordProjectOp("export", err)
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return &domain.Export{
		ProjectID: p.ID,
		Filename:  diagram.SanitizeFilename(p.Name),
		Body:      body,
	}, nil
}

// Import reads an interchange file and saves it as a new, selected project.
// Nothing is written when the file is invalid.
func (m *Manager) Import(ctx context.Context, r io.Reader) (*domain.ImportResult, error) {
	data, meta, err := diagram.ParseFile(r)
	if err != nil {
		metrics.RecordProjectOp("import", err)
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	name := ""
	if meta != nil {
		name = strings.TrimSpace(meta.ProjectName)
	}
	if name == "" {
		name = "Imported " + m.now().Format("2006-01-02")
	}

	id, err := m.save(ctx, "", data, name, saveManual)
	metrics.RecordProjectOp("import", err)
	if err != nil {
		return nil, err
	}
	return &domain.ImportResult{ProjectID: id, Name: name, Data: data}, nil
}

func (m *Manager) writeProjects(ctx context.Context, projects []domain.Project) error {
	if projects == nil {
		projects = []domain.Project{}
	}
	raw, err := json.Marshal(projects)
	if err != nil {
		return fmt.Errorf("encode projects: %w", err)
	}
	if err := m.kv.Set(ctx, ProjectsKey, raw); err != nil {
		return fmt.Errorf("persist projects: %w", err)
	}
	return nil
}

func (m *Manager) indexOf(id string) int {
	return indexOf(m.projects, id)
}

func indexOf(projects []domain.Project, id string) int {
	for i := range projects {
		if projects[i].ID == id {
			return i
		}
	}
	return -1
}
