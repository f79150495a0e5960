// Package credstore persists the session credential between runs.
package credstore

import (
	"context"
	"fmt"

	"github.com/kilimopesa/internal/config"
	"github.com/kilimopesa/internal/domain"
)

// Open returns the store selected by cfg.Storage.Driver
func Open(ctx context.Context, cfg config.StorageConfig) (domain.CredentialStore, error) {
	switch cfg.Driver {
	case config.StorageSQLite:
		return OpenSQLite(cfg.Path, cfg.CredentialKey)
	case config.StorageRedis:
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.CredentialKey)
	case config.StorageMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
