package store

import (
	"fmt"

	"alpharoyale/internal/config"
	"alpharoyale/internal/core"
	apperrors "alpharoyale/pkg/errors"
)

// Open builds the store gateway selected by configuration.
func Open(cfg config.StoreConfig, bounds config.DurationBounds, notifier core.Notifier, logger core.ILogger) (core.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.DSN, cfg.RetentionDays, bounds, notifier, logger)
	case "postgres":
		return NewPostgres(cfg.DSN, cfg.RetentionDays, bounds, notifier, logger)
	case "memory":
		return NewMemory(bounds, notifier), nil
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownStoreDriver, cfg.Driver)
	}
}
