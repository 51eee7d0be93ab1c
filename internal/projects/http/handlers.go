package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/schemati/schemati-backend/internal/diagram"
	"github.com/schemati/schemati-backend/internal/logging"
	"github.com/schemati/schemati-backend/internal/projects/domain"
)

// maxImportSize bounds uploaded interchange files.
const maxImportSize = 10 << 20

type saveReq struct {
	Name string           `json:"name"`
	Data diagram.Snapshot `json:"data"`
}

type renameReq struct {
	Name string `json:"name"`
}

func (h *Handler) list(c *gin.Context) {
	projects := h.projects.Projects()
	items := make([]domain.Summary, 0, len(projects))
	for _, p := range projects {
		items = append(items, p.Summary())
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":               true,
		"projects":         items,
		"current_project":  h.projects.Current(),
		"autosave_enabled": h.projects.AutosaveEnabled(),
	})
}

func (h *Handler) save(c *gin.Context) {
	var req saveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	id, err := h.projects.Save(c.Request.Context(), req.Data, req.Name)
	if err != nil {
		h.fail(c, "save_project", err)
		return
	}

	p, _ := h.projects.Get(id)
	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p.Summary()})
}

func (h *Handler) load(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	data, err := h.projects.Load(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "load_project", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "project_id": id, "data": data})
}

func (h *Handler) rename(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	var req renameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	p, err := h.projects.Rename(c.Request.Context(), id, req.Name)
	if err != nil {
		h.fail(c, "rename_project", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "project": p.Summary()})
}

func (h *Handler) delete(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	if err := h.projects.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, "delete_project", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) newProject(c *gin.Context) {
	if err := h.projects.New(c.Request.Context()); err != nil {
		h.fail(c, "new_project", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) autosave(c *gin.Context) {
	var data diagram.Snapshot
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	id, saved, err := h.projects.Autosave(c.Request.Context(), data)
	if err != nil {
		h.fail(c, "autosave_project", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "saved": saved, "project_id": id})
}

func (h *Handler) toggleAutosave(c *gin.Context) {
	enabled, err := h.projects.ToggleAutosave(c.Request.Context())
	if err != nil {
		h.fail(c, "toggle_autosave", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "autosave_enabled": enabled})
}

func (h *Handler) export(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))

	exp, err := h.projects.Export(id)
	if err != nil {
		h.fail(c, "export_project", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	c.Data(http.StatusOK, "application/json", exp.Body)
}

// importProject accepts either a multipart "file" field or a raw JSON body,
// each bounded by maxImportSize.
func (h *Handler) importProject(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize)
	var body io.Reader = c.Request.Body

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"ok": false, "error": "file too large"})
			return
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "missing file"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "unreadable file"})
			return
		}
		defer f.Close()
		body = f
	}

	res, err := h.projects.Import(c.Request.Context(), body)
	if err != nil {
		h.fail(c, "import_project", err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "project": res})
}

func (h *Handler) fail(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
	case errors.Is(err, domain.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
	case errors.Is(err, domain.ErrInvalidFormat):
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "Invalid project file format"})
	default:
		logging.FromContext(c.Request.Context()).LogError(operation, err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage unavailable"})
	}
}
