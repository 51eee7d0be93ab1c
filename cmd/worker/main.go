package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schemati/schemati-backend/config"
	"github.com/schemati/schemati-backend/internal/backup"
	"github.com/schemati/schemati-backend/internal/bootstrap"
	"github.com/schemati/schemati-backend/internal/logging"
	"github.com/schemati/schemati-backend/internal/projects/service"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: worker backup [once]")
	}

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "backup":
		if err := runBackup(ctx, cfg, logger, len(os.Args) > 2 && os.Args[2] == "once"); err != nil {
			logger.Error("backup", "error", err)
			os.Exit(1)
		}
	default:
		log.Fatalf("unknown command: %s", os.Args[1])
	}
}

func runBackup(ctx context.Context, cfg *config.Config, logger *slog.Logger, once bool) error {
	kv, closeStore, err := bootstrap.OpenPersistentStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	sink, err := openSink(ctx, cfg)
	if err != nil {
		return err
	}

	runner := backup.NewRunner(service.Open(ctx, kv, service.WithLogger(logger)), sink, backup.WithLogger(logger))
	if once {
		_, err := runner.RunOnce(ctx)
		return err
	}

	c, err := runner.Start(ctx, cfg.Backup.Schedule)
	if err != nil {
		return err
	}
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func openSink(ctx context.Context, cfg *config.Config) (backup.Sink, error) {
	if cfg.Backup.S3Bucket != "" {
		return backup.NewS3Sink(ctx, backup.S3Config{
			Bucket:          cfg.Backup.S3Bucket,
			Region:          cfg.Backup.S3Region,
			Endpoint:        cfg.Backup.S3Endpoint,
			Prefix:          cfg.Backup.S3Prefix,
			AccessKeyID:     cfg.Backup.S3AccessKey,
			SecretAccessKey: cfg.Backup.S3SecretKey,
			UsePathStyle:    cfg.Backup.S3PathStyle,
		})
	}
	dir := cfg.Backup.Dir
	if dir == "" {
		dir = "./backups"
	}
	return backup.NewDirSink(dir)
}
