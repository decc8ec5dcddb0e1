package stats

import (
	"context"
	"time"
)

// ConnectionRecord describes one finished proxied connection.
type ConnectionRecord struct {
	ClientAddr    string
	TargetHost    string
	TargetPort    int
	Method        string
	Outcome       string
	Status        int // 0 when no HTTP status was observed
	BytesSent     int64
	BytesReceived int64
	Duration      time.Duration
}

// Snapshot is a point-in-time copy of the aggregate counters.
type Snapshot struct {
	Total         int64
	Allowed       int64
	Blocked       int64
	BytesSent     int64
	BytesReceived int64
}

// Collector receives per-connection outcomes and maintains the process-wide
// aggregate counters. Counter methods must be safe for concurrent use from
// all connection handlers.
type Collector interface {
	// RecordConnection persists one finished connection.
	RecordConnection(ctx context.Context, rec ConnectionRecord) error

	// Aggregate counters
	IncrementTotal()
	IncrementAllowed()
	IncrementBlocked()
	AddBytesSent(n int64)
	AddBytesReceived(n int64)
	Snapshot() Snapshot

	// Close cleans up backend resources.
	Close() error
}
