package cli

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"anchorsync/internal/config"
	"anchorsync/internal/storage"
	"anchorsync/src/logger"
)

// openRepository connects the configured task store
func openRepository(ctx context.Context, cfg config.RepositoryConfig) (storage.TaskRepository, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryTaskRepository()
	case "redis":
		client, err := storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return storage.NewRedisTaskRepository(client, cfg.RedisKey, cfg.RedisChannel), nil
	case "sqlite":
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return storage.NewSQLiteTaskRepository(db), nil
	case "file":
		return storage.NewFileTaskRepository(cfg.FilePath), nil
	}
	return nil, fmt.Errorf("unknown repository backend %q", cfg.Backend)
}

// openRedis connects the Redis instance named by the repository settings
func openRedis(ctx context.Context, cfg config.RepositoryConfig) (*redis.Client, error) {
	return storage.NewRedisClient(ctx, cfg.RedisURL)
}

func closeRepository(repo storage.TaskRepository) {
	if err := repo.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close task repository")
	}
}
