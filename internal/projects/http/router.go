package http

import "github.com/gin-gonic/gin"

// Register attaches project routes to the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("", h.list)
	rg.POST("", h.save)
	rg.POST("/new", h.newProject)
	rg.POST("/autosave", h.autosave)
	rg.POST("/autosave/toggle", h.toggleAutosave)
	rg.POST("/import", h.importProject)
	rg.GET("/:id", h.load)
	rg.PATCH("/:id", h.rename)
	rg.DELETE("/:id", h.delete)
	rg.GET("/:id/export", h.export)
}
