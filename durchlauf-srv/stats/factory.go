package stats

import (
	"fmt"

	"github.com/codefionn/durchlauf/durchlauf-srv/config"
)

// NewCollector creates a statistics collector for the configured backend.
func NewCollector(cfg config.StatisticsConfig) (Collector, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemoryCollector(), nil
	case "sqlite":
		sqlitePath := cfg.SQLitePath
		if sqlitePath == "" {
			sqlitePath = "durchlauf_stats.db"
		}
		collector, err := NewSQLiteCollector(sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite collector: %w", err)
		}
		return collector, nil
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres-dsn is required for postgres backend")
		}
		collector, err := NewPostgresCollector(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres collector: %w", err)
		}
		return collector, nil
	case "dummy", "none":
		return NewDummyCollector(), nil
	default:
		return nil, fmt.Errorf("unsupported stats backend: %s", cfg.Backend)
	}
}
