package stats

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codefionn/durchlauf/durchlauf-srv/logger"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS connections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	client_addr TEXT NOT NULL,
	target_host TEXT NOT NULL,
	target_port INTEGER NOT NULL,
	method TEXT NOT NULL,
	outcome TEXT NOT NULL,
	status INTEGER,
	bytes_sent INTEGER NOT NULL DEFAULT 0,
	bytes_received INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_connections_target_host ON connections(target_host);
CREATE INDEX IF NOT EXISTS idx_connections_outcome ON connections(outcome);
`

// SQLiteCollector persists connection records to a SQLite database while
// keeping the aggregate counters in memory.
type SQLiteCollector struct {
	counterSet
	db *sql.DB
}

// NewSQLiteCollector creates a new SQLite-based statistics collector.
func NewSQLiteCollector(dbPath string) (*SQLiteCollector, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug("Initialized sqlite stats collector at %s", dbPath)
	return &SQLiteCollector{db: db}, nil
}

// RecordConnection inserts one connection row.
func (s *SQLiteCollector) RecordConnection(ctx context.Context, rec ConnectionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO connections
			(client_addr, target_host, target_port, method, outcome, status, bytes_sent, bytes_received, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ClientAddr, rec.TargetHost, rec.TargetPort, rec.Method, rec.Outcome,
		nullableStatus(rec.Status), rec.BytesSent, rec.BytesReceived, rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record connection: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteCollector) Close() error {
	return s.db.Close()
}

func nullableStatus(status int) any {
	if status == 0 {
		return nil
	}
	return status
}
