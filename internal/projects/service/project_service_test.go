package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemati/schemati-backend/internal/diagram"
	"github.com/schemati/schemati-backend/internal/projects/domain"
	"github.com/schemati/schemati-backend/internal/store"
)

var errStoreDown = errors.New("store down")

// failingKV wraps a KV and fails writes while failSet is true, or writes
// to failKey.
type failingKV struct {
	store.KV
	failSet bool
	failKey string
}

func (f *failingKV) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet || key == f.failKey {
		return errStoreDown
	}
	return f.KV.Set(ctx, key, value)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("project-%d", n)
	}
}

func snap(nodes string) diagram.Snapshot {
	return diagram.Snapshot{
		Nodes:       json.RawMessage(nodes),
		Connections: json.RawMessage(`[]`),
		Borders:     json.RawMessage(`[]`),
	}
}

func newTestManager(t *testing.T, kv store.KV) (*Manager, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)}
	m := Open(context.Background(), kv, WithClock(c.now), WithIDGenerator(sequentialIDs()))
	return m, c
}

func TestOpen_Defaults(t *testing.T) {
	m, _ := newTestManager(t, store.NewMemoryStore())

	assert.Empty(t, m.Projects())
	assert.Empty(t, m.Current())
	assert.True(t, m.AutosaveEnabled())
}

func TestOpen_CorruptDataIsIgnored(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, ProjectsKey, []byte("{not json")))
	require.NoError(t, kv.Set(ctx, AutosaveKey, []byte("maybe")))

	m, _ := newTestManager(t, kv)
	assert.Empty(t, m.Projects())
	assert.True(t, m.AutosaveEnabled())
}

func TestOpen_AcceptsQuotedPointer(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Set(ctx, CurrentProjectKey, []byte(`"project-7"`)))

	m, _ := newTestManager(t, kv)
	assert.Equal(t, "project-7", m.Current())
}

func TestSave_MintsThenOverwrites(t *testing.T) {
	ctx := context.Background()
	m, c := newTestManager(t, store.NewMemoryStore())

	id, err := m.Save(ctx, snap(`[{"id":1}]`), "Checkout flow")
	require.NoError(t, err)
	assert.Equal(t, "project-1", id)
	assert.Equal(t, id, m.Current())

	created := m.Projects()[0].CreatedAt
	c.advance(time.Minute)

	id2, err := m.Save(ctx, snap(`[{"id":1},{"id":2}]`), "")
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	projects := m.Projects()
	require.Len(t, projects, 1)
	assert.Equal(t, "Checkout flow", projects[0].Name)
	assert.Equal(t, created, projects[0].CreatedAt)
	assert.True(t, projects[0].UpdatedAt.After(created))
	assert.JSONEq(t, `[{"id":1},{"id":2}]`, string(projects[0].Data.Nodes))
}

func TestSave_DefaultName(t *testing.T) {
	m, _ := newTestManager(t, store.NewMemoryStore())

	_, err := m.Save(context.Background(), diagram.Empty(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "Project 2024-03-09", m.Projects()[0].Name)
}

func TestSave_FailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{KV: store.NewMemoryStore()}
	m, _ := newTestManager(t, kv)

	_, err := m.Save(ctx, snap(`[{"id":1}]`), "First")
	require.NoError(t, err)
	before := m.Projects()

	kv.failSet = true
	_, err = m.Save(ctx, snap(`[{"id":9}]`), "Second")
	require.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, before, m.Projects())

	require.NoError(t, m.New(ctx))
	_, err = m.Save(ctx, snap(`[]`), "Third")
	require.Error(t, err)
	assert.Len(t, m.Projects(), 1)
	assert.Empty(t, m.Current())
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	m, _ := newTestManager(t, kv)

	first, err := m.Save(ctx, snap(`[{"id":"a"}]`), "A")
	require.NoError(t, err)
	require.NoError(t, m.New(ctx))
	second, err := m.Save(ctx, snap(`[{"id":"b"}]`), "B")
	require.NoError(t, err)
	assert.Equal(t, second, m.Current())

	data, err := m.Load(ctx, first)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"a"}]`, string(data.Nodes))
	assert.Equal(t, first, m.Current())

	raw, ok, err := kv.Get(ctx, CurrentProjectKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first, string(raw))

	_, err = m.Load(ctx, "project-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, first, m.Current())
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, store.NewMemoryStore())

	keep, err := m.Save(ctx, diagram.Empty(), "Keep")
	require.NoError(t, err)
	require.NoError(t, m.New(ctx))
	gone, err := m.Save(ctx, diagram.Empty(), "Gone")
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, gone))
	assert.Empty(t, m.Current())
	require.Len(t, m.Projects(), 1)
	assert.Equal(t, keep, m.Projects()[0].ID)

	_, err = m.Load(ctx, keep)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Delete(ctx, gone), domain.ErrNotFound)
	assert.Equal(t, keep, m.Current())
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	m, c := newTestManager(t, store.NewMemoryStore())

	id, err := m.Save(ctx, diagram.Empty(), "Old")
	require.NoError(t, err)
	c.advance(time.Hour)

	p, err := m.Rename(ctx, id, "  New name ")
	require.NoError(t, err)
	assert.Equal(t, "New name", p.Name)
	assert.Equal(t, c.now(), p.UpdatedAt)

	_, err = m.Rename(ctx, id, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidName)
	_, err = m.Rename(ctx, "project-404", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestToggleAutosave(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	m, _ := newTestManager(t, kv)

	enabled, err := m.ToggleAutosave(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	reopened, _ := newTestManager(t, kv)
	assert.False(t, reopened.AutosaveEnabled())

	id, saved, err := reopened.Autosave(ctx, diagram.Empty())
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Empty(t, id)
	assert.Empty(t, reopened.Projects())
}

func TestAutosave(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, store.NewMemoryStore())

	id, saved, err := m.Autosave(ctx, snap(`[{"id":1}]`))
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, AutosaveName, m.Projects()[0].Name)

	_, err = m.Rename(ctx, id, "Named")
	require.NoError(t, err)

	_, _, err = m.Autosave(ctx, snap(`[{"id":2}]`))
	require.NoError(t, err)
	require.Len(t, m.Projects(), 1)
	assert.Equal(t, "Named", m.Projects()[0].Name)
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, store.NewMemoryStore())

	data := diagram.Snapshot{
		Nodes:       json.RawMessage(`[{"id":1,"type":"rectangle","x":10}]`),
		Connections: json.RawMessage(`[{"id":2,"from":1,"to":1}]`),
		Borders:     json.RawMessage(`[{"id":3}]`),
	}
	id, err := m.Save(ctx, data, "My Flow-Chart")
	require.NoError(t, err)

	exp, err := m.Export(id)
	require.NoError(t, err)
	assert.Equal(t, "my_flow_chart.json", exp.Filename)
	assert.Contains(t, string(exp.Body), `"projectName": "My Flow-Chart"`)
	assert.Contains(t, string(exp.Body), "\n  \"nodes\"")

	res, err := m.Import(ctx, strings.NewReader(string(exp.Body)))
	require.NoError(t, err)
	assert.NotEqual(t, id, res.ProjectID)
	assert.Equal(t, res.ProjectID, m.Current())
	assert.Equal(t, "My Flow-Chart", res.Name)

	imported, err := m.Get(res.ProjectID)
	require.NoError(t, err)
	assert.True(t, data.Equal(imported.Data))
	assert.Len(t, m.Projects(), 2)
}

func TestImport_DefaultsAndErrors(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, store.NewMemoryStore())

	res, err := m.Import(ctx, strings.NewReader(`{"nodes":[],"connections":[]}`))
	require.NoError(t, err)
	assert.Equal(t, "Imported 2024-03-09", res.Name)
	assert.JSONEq(t, `[]`, string(res.Data.Borders))

	_, err = m.Import(ctx, strings.NewReader(`{"nodes":[]}`))
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)
	_, err = m.Import(ctx, strings.NewReader(`not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidFormat)
	assert.Len(t, m.Projects(), 1)
}

func TestExport_NotFound(t *testing.T) {
	m, _ := newTestManager(t, store.NewMemoryStore())
	_, err := m.Export("project-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestManager_PersistsAcrossReopenOnRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	kv := store.NewRedisStore(client, "test:")
	m, _ := newTestManager(t, kv)

	id, err := m.Save(ctx, snap(`[{"id":1}]`), "Persisted")
	require.NoError(t, err)

	pointer, err := mr.Get("test:" + CurrentProjectKey)
	require.NoError(t, err)
	assert.Equal(t, id, pointer)

	reopened := Open(ctx, kv)
	assert.Equal(t, id, reopened.Current())
	require.Len(t, reopened.Projects(), 1)
	assert.Equal(t, "Persisted", reopened.Projects()[0].Name)
	assert.True(t, snap(`[{"id":1}]`).Equal(reopened.Projects()[0].Data))
}

func TestReload_PicksUpOtherWriters(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryStore()
	reader, _ := newTestManager(t, kv)
	writer := Open(ctx, kv)

	id, err := writer.Save(ctx, diagram.Empty(), "From elsewhere")
	require.NoError(t, err)
	assert.Empty(t, reader.Projects())

	reader.Reload(ctx)
	require.Len(t, reader.Projects(), 1)
	assert.Equal(t, id, reader.Current())
}

func TestSave_PointerFailureRollsBackCollection(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{KV: store.NewMemoryStore(), failKey: CurrentProjectKey}
	m, _ := newTestManager(t, kv)

	_, err := m.Save(ctx, snap(`[{"id":1}]`), "First")
	require.ErrorIs(t, err, errStoreDown)
	assert.Empty(t, m.Projects())
	assert.Empty(t, m.Current())

	raw, ok, err := kv.Get(ctx, ProjectsKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `[]`, string(raw))

	kv.failKey = ""
	id, err := m.Save(ctx, snap(`[{"id":1}]`), "First")
	require.NoError(t, err)
	assert.Len(t, m.Projects(), 1)
	assert.Equal(t, id, m.Current())
}

func TestAutosaveTo_WritesOnlyTheNamedProject(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, store.NewMemoryStore())

	x, err := m.Save(ctx, snap(`[{"id":"x"}]`), "X")
	require.NoError(t, err)
	require.NoError(t, m.New(ctx))
	y, err := m.Save(ctx, snap(`[{"id":"y"}]`), "Y")
	require.NoError(t, err)
	require.Equal(t, y, m.Current())

	id, saved, err := m.AutosaveTo(ctx, x, snap(`[{"id":"x"},{"id":"x2"}]`))
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, x, id)
	assert.Equal(t, y, m.Current(), "writing an explicit project keeps the pointer")

	px, _ := m.Get(x)
	py, _ := m.Get(y)
	assert.JSONEq(t, `[{"id":"x"},{"id":"x2"}]`, string(px.Data.Nodes))
	assert.Equal(t, "X", px.Name)
	assert.JSONEq(t, `[{"id":"y"}]`, string(py.Data.Nodes))
}

func TestAutosaveTo_EmptyIDMintsProject(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, store.NewMemoryStore())

	existing, err := m.Save(ctx, snap(`[{"id":"keep"}]`), "Keep")
	require.NoError(t, err)

	id, saved, err := m.AutosaveTo(ctx, "", snap(`[{"id":"fresh"}]`))
	require.NoError(t, err)
	assert.True(t, saved)
	assert.NotEqual(t, existing, id)

	p, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, AutosaveName, p.Name)
	kept, _ := m.Get(existing)
	assert.JSONEq(t, `[{"id":"keep"}]`, string(kept.Data.Nodes))
}

func TestAutosaveTo_MissingOrDisabled(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, store.NewMemoryStore())

	_, _, err := m.AutosaveTo(ctx, "project-gone", snap(`[]`))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = m.ToggleAutosave(ctx)
	require.NoError(t, err)
	_, saved, err := m.AutosaveTo(ctx, "", snap(`[]`))
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Empty(t, m.Projects())
}
