// Package bootstrap wires the runtime dependencies shared by the commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"parley/internal/cache"
	"parley/internal/config"
	"parley/internal/database"
	"parley/internal/observability"
	"parley/internal/seed"
	"parley/internal/storage"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	// SeedDemo populates an empty database with demo data.
	SeedDemo bool
}

// Runtime holds the connected infrastructure.
type Runtime struct {
	DB    *gorm.DB
	Redis *redis.Client
	Files storage.FileStore
}

// InitRuntime connects to the database, Redis and blob storage and optionally seeds demo data.
// Redis is optional: a nil client means the cache, rate limits and fan-out are skipped.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	files, err := NewFileStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("blob storage initialization failed: %w", err)
	}

	rt := &Runtime{
		DB:    db,
		Redis: cache.NewClient(ctx, cfg.RedisURL),
		Files: files,
	}

	if opts.SeedDemo {
		if err := seedIfEmpty(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}
	return rt, nil
}

// NewFileStore returns the attachment store selected by STORAGE_DRIVER.
func NewFileStore(ctx context.Context, cfg *config.Config) (storage.FileStore, error) {
	switch cfg.StorageDriver {
	case "minio":
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	case "disk", "":
		return storage.NewDiskStore(cfg.UploadDir)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func seedIfEmpty(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Table("users").Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		observability.Logger.InfoContext(ctx, "database already populated, skipping demo seed",
			slog.Int64("users", count))
		return nil
	}
	_, err := seed.Seed(ctx, db, seed.Options{
		NumUsers:        8,
		MessagesPerPair: 6,
		NumGroups:       2,
		GroupMessages:   12,
	})
	return err
}
