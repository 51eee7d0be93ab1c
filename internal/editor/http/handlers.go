package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/schemati/schemati-backend/internal/diagram"
	"github.com/schemati/schemati-backend/internal/editor"
	"github.com/schemati/schemati-backend/internal/logging"
	"github.com/schemati/schemati-backend/internal/projects/domain"
)

// Handler serves editing sessions.
type Handler struct {
	sessions *editor.Registry
}

func New(sessions *editor.Registry) *Handler {
	return &Handler{sessions: sessions}
}

// Register attaches session routes to the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("", h.create)
	rg.GET("/:id", h.get)
	rg.PUT("/:id/state", h.apply)
	rg.POST("/:id/undo", h.undo)
	rg.POST("/:id/redo", h.redo)
	rg.DELETE("/:id", h.remove)
}

type createReq struct {
	ProjectID string            `json:"project_id"`
	Data      *diagram.Snapshot `json:"data"`
}

func (h *Handler) create(c *gin.Context) {
	var req createReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
			return
		}
	}

	if req.ProjectID != "" {
		s, err := h.sessions.Open(c.Request.Context(), req.ProjectID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "project not found"})
				return
			}
			logging.FromContext(c.Request.Context()).LogError("open_session", err)
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "storage unavailable"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"ok": true, "session": s.View()})
		return
	}

	initial := diagram.Empty()
	if req.Data != nil {
		initial = *req.Data
	}
	s := h.sessions.Create(initial)
	c.JSON(http.StatusCreated, gin.H{"ok": true, "session": s.View()})
}

func (h *Handler) get(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "session": s.View()})
}

func (h *Handler) apply(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}

	var data diagram.Snapshot
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "session": s.Apply(c.Request.Context(), data)})
}

func (h *Handler) undo(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	v, moved := s.Undo(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"ok": true, "changed": moved, "session": v})
}

func (h *Handler) redo(c *gin.Context) {
	s, ok := h.lookup(c)
	if !ok {
		return
	}
	v, moved := s.Redo(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"ok": true, "changed": moved, "session": v})
}

func (h *Handler) remove(c *gin.Context) {
	if !h.sessions.Remove(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) lookup(c *gin.Context) (*editor.Session, bool) {
	s, ok := h.sessions.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "session not found"})
	}
	return s, ok
}
