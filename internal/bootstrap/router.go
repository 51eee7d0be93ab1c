package bootstrap

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpapi "github.com/schemati/schemati-backend/internal/api/http"
	"github.com/schemati/schemati-backend/internal/api/http/middleware"
	chathttp "github.com/schemati/schemati-backend/internal/chat/http"
	"github.com/schemati/schemati-backend/internal/editor"
	editorhttp "github.com/schemati/schemati-backend/internal/editor/http"
	projecthttp "github.com/schemati/schemati-backend/internal/projects/http"
	"github.com/schemati/schemati-backend/internal/projects/service"
	"github.com/schemati/schemati-backend/internal/store"
)

type RouterDeps struct {
	ServiceName    string
	Version        string
	AllowedOrigins []string
	Logger         *slog.Logger

	Store       store.KV
	Projects    *service.Manager
	Sessions    *editor.Registry
	ChatProxy   *chathttp.Proxy
	ChatLimiter *middleware.IPRateLimiter
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware(dep.Logger))

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = dep.AllowedOrigins
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, middleware.RequestIDHeader)
	corsCfg.ExposeHeaders = []string{middleware.RequestIDHeader, "Content-Disposition"}
	if len(dep.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))

	pinger, _ := dep.Store.(store.Pinger)
	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, pinger)
	healthHandler.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	projecthttp.New(dep.Projects).Register(api.Group("/projects"))
	editorhttp.New(dep.Sessions).Register(api.Group("/sessions"))

	if dep.ChatProxy != nil {
		var limits []gin.HandlerFunc
		if dep.ChatLimiter != nil {
			limits = append(limits, dep.ChatLimiter.Middleware())
		}
		dep.ChatProxy.Register(api, limits...)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not found"})
	})

	return r
}
