package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schemati/schemati-backend/config"
	"github.com/schemati/schemati-backend/internal/api/http/middleware"
	"github.com/schemati/schemati-backend/internal/bootstrap"
	chathttp "github.com/schemati/schemati-backend/internal/chat/http"
	"github.com/schemati/schemati-backend/internal/editor"
	"github.com/schemati/schemati-backend/internal/logging"
	"github.com/schemati/schemati-backend/internal/projects/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.App.LogLevel,
		Format: cfg.App.LogFormat,
		File:   cfg.App.LogFile,
	})
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer closeLog.Close()
	slog.SetDefault(logger)

	bootstrap.SetGinMode(cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		logger.Error("open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	projects := service.Open(ctx, kv, service.WithLogger(logger))
	sessions := editor.NewRegistry(projects, editor.WithLogger(logger))

	prompt, err := chathttp.LoadSystemPrompt(cfg.Chat.SystemPromptFile)
	if err != nil {
		logger.Error("load system prompt", "error", err)
		os.Exit(1)
	}
	proxy := chathttp.NewProxy(chathttp.Config{
		UpstreamURL:  cfg.Chat.UpstreamURL,
		APIKey:       cfg.Chat.APIKey,
		Model:        cfg.Chat.Model,
		MaxTokens:    cfg.Chat.MaxTokens,
		SystemPrompt: prompt,
		Timeout:      cfg.Chat.RequestTimeout,
	}, nil)
	limiter := middleware.NewIPRateLimiter(cfg.Chat.RateLimit, cfg.Chat.RateBurst)

	janitor, err := bootstrap.StartMaintenance(cfg.Editor.EvictSchedule,
		func() { sessions.Evict(cfg.Editor.SessionIdleTTL) },
		func() { limiter.Prune(cfg.Editor.SessionIdleTTL) },
	)
	if err != nil {
		logger.Error("start maintenance", "error", err)
		os.Exit(1)
	}
	defer janitor.Stop()

	r := bootstrap.BuildRouter(bootstrap.RouterDeps{
		ServiceName:    "schemati-api",
		Version:        cfg.App.Version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         logger,
		Store:          kv,
		Projects:       projects,
		Sessions:       sessions,
		ChatProxy:      proxy,
		ChatLimiter:    limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", srv.Addr, "store", cfg.Store.Backend, "env", cfg.App.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
