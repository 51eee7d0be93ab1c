package editor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemati/schemati-backend/internal/diagram"
	"github.com/schemati/schemati-backend/internal/projects/domain"
	"github.com/schemati/schemati-backend/internal/projects/service"
	"github.com/schemati/schemati-backend/internal/store"
)

func nodes(raw string) diagram.Snapshot {
	return diagram.Snapshot{
		Nodes:       json.RawMessage(raw),
		Connections: json.RawMessage(`[]`),
		Borders:     json.RawMessage(`[]`),
	}
}

func newTestRegistry(t *testing.T) (*Registry, *service.Manager) {
	t.Helper()
	projects := service.Open(context.Background(), store.NewMemoryStore())
	return NewRegistry(projects), projects
}

func TestSession_ApplyUndoRedo(t *testing.T) {
	ctx := context.Background()
	reg, projects := newTestRegistry(t)
	s := reg.Create(diagram.Empty())

	v := s.View()
	assert.Equal(t, 0, v.HistoryIndex)
	assert.False(t, v.CanUndo)

	a, b := nodes(`[{"id":1}]`), nodes(`[{"id":1},{"id":2}]`)
	s.Apply(ctx, a)
	v = s.Apply(ctx, b)
	assert.Equal(t, 3, v.HistoryLength)
	assert.True(t, v.Saved)
	require.NotEmpty(t, v.ProjectID)

	v, ok := s.Undo(ctx)
	require.True(t, ok)
	assert.True(t, a.Equal(v.Data))
	assert.Equal(t, 3, v.HistoryLength, "undo must not record a new entry")
	assert.True(t, v.CanRedo)

	stored, err := projects.Get(v.ProjectID)
	require.NoError(t, err)
	assert.True(t, a.Equal(stored.Data), "undo autosaves the restored state")

	v, ok = s.Redo(ctx)
	require.True(t, ok)
	assert.True(t, b.Equal(v.Data))
	assert.Equal(t, 2, v.HistoryIndex)

	_, ok = s.Redo(ctx)
	assert.False(t, ok)
}

func TestSession_EditAfterUndoDropsRedoBranch(t *testing.T) {
	ctx := context.Background()
	reg, _ := newTestRegistry(t)
	s := reg.Create(diagram.Empty())

	s.Apply(ctx, nodes(`[1]`))
	s.Apply(ctx, nodes(`[2]`))
	_, _ = s.Undo(ctx)
	v := s.Apply(ctx, nodes(`[3]`))

	assert.Equal(t, 3, v.HistoryLength)
	assert.False(t, v.CanRedo)
	assert.JSONEq(t, `[3]`, string(v.Data.Nodes))
}

func TestSession_AutosaveDisabled(t *testing.T) {
	ctx := context.Background()
	reg, projects := newTestRegistry(t)
	_, err := projects.ToggleAutosave(ctx)
	require.NoError(t, err)

	v := reg.Create(diagram.Empty()).Apply(ctx, nodes(`[1]`))
	assert.False(t, v.Saved)
	assert.Empty(t, projects.Projects())
}

type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (diagram.Snapshot, error) {
	return diagram.Snapshot{}, domain.ErrNotFound
}

func (brokenStore) AutosaveTo(context.Context, string, diagram.Snapshot) (string, bool, error) {
	return "", false, errors.New("disk full")
}

func TestSession_AutosaveErrorIsReported(t *testing.T) {
	reg := NewRegistry(brokenStore{})
	v := reg.Create(diagram.Empty()).Apply(context.Background(), nodes(`[1]`))

	assert.Equal(t, "disk full", v.AutosaveError)
	assert.JSONEq(t, `[1]`, string(v.Data.Nodes))
}

func TestRegistry_Open(t *testing.T) {
	ctx := context.Background()
	reg, projects := newTestRegistry(t)

	id, err := projects.Save(ctx, nodes(`[{"id":"x"}]`), "Saved")
	require.NoError(t, err)
	require.NoError(t, projects.New(ctx))

	s, err := reg.Open(ctx, id)
	require.NoError(t, err)
	v := s.View()
	assert.Equal(t, id, v.ProjectID)
	assert.Equal(t, 1, v.HistoryLength)
	assert.JSONEq(t, `[{"id":"x"}]`, string(v.Data.Nodes))
	assert.Equal(t, id, projects.Current())

	_, err = reg.Open(ctx, "project-missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_GetRemoveEvict(t *testing.T) {
	now := time.Unix(0, 0)
	projects := service.Open(context.Background(), store.NewMemoryStore())
	reg := NewRegistry(projects, WithClock(func() time.Time { return now }))

	old := reg.Create(diagram.Empty())
	now = now.Add(time.Hour)
	fresh := reg.Create(diagram.Empty())

	got, ok := reg.Get(fresh.ID())
	require.True(t, ok)
	assert.Same(t, fresh, got)

	assert.Equal(t, 1, reg.Evict(30*time.Minute))
	_, ok = reg.Get(old.ID())
	assert.False(t, ok)

	assert.True(t, reg.Remove(fresh.ID()))
	assert.False(t, reg.Remove(fresh.ID()))
	assert.Zero(t, reg.Len())
}

func TestRegistry_HistoryCapacity(t *testing.T) {
	ctx := context.Background()
	projects := service.Open(ctx, store.NewMemoryStore())
	reg := NewRegistry(projects, WithHistoryCapacity(3))

	s := reg.Create(diagram.Empty())
	for i := 0; i < 5; i++ {
		s.Apply(ctx, nodes(`[]`))
	}
	assert.Equal(t, 3, s.View().HistoryLength)
}

func TestRegistry_SessionsAutosaveIntoTheirOwnProjects(t *testing.T) {
	ctx := context.Background()
	reg, projects := newTestRegistry(t)

	x, err := projects.Save(ctx, nodes(`[{"id":"x"}]`), "X")
	require.NoError(t, err)
	require.NoError(t, projects.New(ctx))
	y, err := projects.Save(ctx, nodes(`[{"id":"y"}]`), "Y")
	require.NoError(t, err)

	a, err := reg.Open(ctx, x)
	require.NoError(t, err)
	b, err := reg.Open(ctx, y)
	require.NoError(t, err)

	v := a.Apply(ctx, nodes(`[{"id":"x"},{"id":"x2"}]`))
	require.Empty(t, v.AutosaveError)
	assert.Equal(t, x, v.ProjectID)
	v = b.Apply(ctx, nodes(`[{"id":"y"},{"id":"y2"}]`))
	assert.Equal(t, y, v.ProjectID)

	px, _ := projects.Get(x)
	py, _ := projects.Get(y)
	assert.JSONEq(t, `[{"id":"x"},{"id":"x2"}]`, string(px.Data.Nodes))
	assert.JSONEq(t, `[{"id":"y"},{"id":"y2"}]`, string(py.Data.Nodes))

	fresh := reg.Create(diagram.Empty())
	v = fresh.Apply(ctx, nodes(`[{"id":"fresh"}]`))
	require.True(t, v.Saved)
	assert.NotContains(t, []string{x, y}, v.ProjectID)
	second := fresh.Apply(ctx, nodes(`[{"id":"fresh"},{"id":"more"}]`))
	assert.Equal(t, v.ProjectID, second.ProjectID)

	py, _ = projects.Get(y)
	assert.JSONEq(t, `[{"id":"y"},{"id":"y2"}]`, string(py.Data.Nodes))
	assert.Len(t, projects.Projects(), 3)
}
