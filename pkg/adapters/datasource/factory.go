package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// New builds the adapter for the configured backend type.
func New(ctx context.Context, cfg *Config, maxRows int, logger *zap.Logger) (Database, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteDatabase(cfg, maxRows, logger)
	case "postgres":
		return NewPostgresDatabase(ctx, cfg, maxRows, logger)
	case "mssql":
		return NewMSSQLDatabase(cfg, maxRows, logger)
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}
}
