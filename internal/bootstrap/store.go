package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/schemati/schemati-backend/config"
	"github.com/schemati/schemati-backend/internal/store"
)

// ErrEphemeralStore is returned to one-shot processes asked to use the
// in-memory backend.
var ErrEphemeralStore = errors.New("the memory store does not outlive this process; set STORE_BACKEND to file, redis or postgres")

// OpenPersistentStore is OpenStore for the CLI and the backup worker. When
// STORE_BACKEND is unset it uses the file backend under STORE_DIR, and it
// refuses an explicit memory backend.
func OpenPersistentStore(ctx context.Context, cfg *config.Config) (store.KV, func(), error) {
	c := *cfg
	if !c.Store.Explicit {
		c.Store.Backend = "file"
	}
	if c.Store.Backend == "memory" {
		return nil, func() {}, ErrEphemeralStore
	}
	return OpenStore(ctx, &c)
}

// OpenStore connects the backend named by STORE_BACKEND. The returned
// close function is never nil.
func OpenStore(ctx context.Context, cfg *config.Config) (store.KV, func(), error) {
	noop := func() {}

	switch cfg.Store.Backend {
	case "memory":
		slog.Warn("using in-memory store; projects are lost on restart")
		return store.NewMemoryStore(), noop, nil

	case "file":
		fs, err := store.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, noop, err
		}
		return fs, noop, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, fmt.Errorf("redis ping: %w", err)
		}
		return store.NewRedisStore(client, cfg.Redis.KeyPrefix), func() { _ = client.Close() }, nil

	case "postgres":
		db, err := OpenDB(ctx, DBOptions{Driver: cfg.Database.Driver, DSN: DSN(&cfg.Database)})
		if err != nil {
			return nil, noop, err
		}
		ps := store.NewPostgresStore(db, cfg.Database.Table)
		if err := ps.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		return ps, func() { _ = db.Close() }, nil

	default:
		return nil, noop, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
