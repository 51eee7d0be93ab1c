package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemati/schemati-backend/internal/diagram"
	"github.com/schemati/schemati-backend/internal/projects/service"
	"github.com/schemati/schemati-backend/internal/store"
)

func setupRouter(t *testing.T) (*gin.Engine, *service.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := service.Open(context.Background(), store.NewMemoryStore())
	r := gin.New()
	New(m).Register(r.Group("/api/projects"))
	return r, m
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestSaveListLoad(t *testing.T) {
	r, m := setupRouter(t)

	w := do(r, http.MethodPost, "/api/projects", `{"name":"Flow","data":{"nodes":[{"id":1}],"connections":[],"borders":[]}}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["ok"])
	id := body["project"].(map[string]any)["id"].(string)
	assert.True(t, strings.HasPrefix(id, "project-"))

	w = do(r, http.MethodGet, "/api/projects", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Len(t, body["projects"], 1)
	assert.Equal(t, id, body["current_project"])
	assert.Equal(t, true, body["autosave_enabled"])

	require.NoError(t, m.New(context.Background()))
	w = do(r, http.MethodGet, "/api/projects/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, m.Current())
	assert.JSONEq(t, `{"nodes":[{"id":1}],"connections":[],"borders":[]}`, mustJSON(t, decode(t, w)["data"]))
}

func TestLoad_NotFound(t *testing.T) {
	r, _ := setupRouter(t)

	w := do(r, http.MethodGet, "/api/projects/project-missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, decode(t, w)["ok"])
}

func TestRenameAndDelete(t *testing.T) {
	r, m := setupRouter(t)
	id, err := m.Save(context.Background(), diagram.Empty(), "Old")
	require.NoError(t, err)

	w := do(r, http.MethodPatch, "/api/projects/"+id, `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPatch, "/api/projects/"+id, `{"name":"New"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "New", decode(t, w)["project"].(map[string]any)["name"])

	w = do(r, http.MethodDelete, "/api/projects/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, m.Projects())

	w = do(r, http.MethodDelete, "/api/projects/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAutosaveEndpoints(t *testing.T) {
	r, m := setupRouter(t)

	w := do(r, http.MethodPost, "/api/projects/autosave", `{"nodes":[],"connections":[],"borders":[]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["saved"])
	assert.Equal(t, service.AutosaveName, m.Projects()[0].Name)

	w = do(r, http.MethodPost, "/api/projects/autosave/toggle", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["autosave_enabled"])

	w = do(r, http.MethodPost, "/api/projects/autosave", `{"nodes":[],"connections":[],"borders":[]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["saved"])
}

func TestExport(t *testing.T) {
	r, m := setupRouter(t)
	id, err := m.Save(context.Background(), diagram.Empty(), "Sales Pipeline")
	require.NoError(t, err)

	w := do(r, http.MethodGet, "/api/projects/"+id+"/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="sales_pipeline.json"`, w.Header().Get("Content-Disposition"))

	var file map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	meta := file["metadata"].(map[string]any)
	assert.Equal(t, "1.0", meta["version"])
	assert.Equal(t, id, meta["projectId"])
}

func TestImport_RawBody(t *testing.T) {
	r, m := setupRouter(t)

	w := do(r, http.MethodPost, "/api/projects/import", `{"nodes":[{"id":1}],"connections":[],"metadata":{"projectName":"From Disk"}}`)
	require.Equal(t, http.StatusCreated, w.Code)
	project := decode(t, w)["project"].(map[string]any)
	assert.Equal(t, "From Disk", project["name"])
	assert.Equal(t, m.Current(), project["projectId"])
}

func TestImport_Multipart(t *testing.T) {
	r, m := setupRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "flow.json")
	require.NoError(t, err)
	_, err = fw.Write([]byte(`{"nodes":[],"connections":[]}`))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/projects/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, m.Projects(), 1)
}

func TestImport_MultipartTooLarge(t *testing.T) {
	r, m := setupRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "huge.json")
	require.NoError(t, err)
	_, err = fw.Write(bytes.Repeat([]byte(" "), maxImportSize+1))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/projects/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, m.Projects())
}

func TestImport_InvalidFormat(t *testing.T) {
	r, m := setupRouter(t)

	w := do(r, http.MethodPost, "/api/projects/import", `{"nodes":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid project file format", decode(t, w)["error"])
	assert.Empty(t, m.Projects())
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
