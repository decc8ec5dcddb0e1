package stats

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/codefionn/durchlauf/durchlauf-srv/logger"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS connections (
	id BIGSERIAL PRIMARY KEY,
	client_addr TEXT NOT NULL,
	target_host TEXT NOT NULL,
	target_port INTEGER NOT NULL,
	method TEXT NOT NULL,
	outcome TEXT NOT NULL,
	status INTEGER,
	bytes_sent BIGINT NOT NULL DEFAULT 0,
	bytes_received BIGINT NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_connections_target_host ON connections(target_host);
CREATE INDEX IF NOT EXISTS idx_connections_outcome ON connections(outcome);
`

// PostgresCollector persists connection records to PostgreSQL while keeping
// the aggregate counters in memory.
type PostgresCollector struct {
	counterSet
	db *sql.DB
}

// NewPostgresCollector creates a new PostgreSQL-based statistics collector.
func NewPostgresCollector(dsn string) (*PostgresCollector, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if _, err := db.Exec(postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("Initialized postgres stats collector")
	return &PostgresCollector{db: db}, nil
}

// RecordConnection inserts one connection row.
func (p *PostgresCollector) RecordConnection(ctx context.Context, rec ConnectionRecord) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO connections
			(client_addr, target_host, target_port, method, outcome, status, bytes_sent, bytes_received, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ClientAddr, rec.TargetHost, rec.TargetPort, rec.Method, rec.Outcome,
		nullableStatus(rec.Status), rec.BytesSent, rec.BytesReceived, rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record connection: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (p *PostgresCollector) Close() error {
	return p.db.Close()
}
