package stats

import (
	"context"
)

// DummyCollector discards everything. Used when statistics are disabled and
// as a safe fallback so callers never need nil checks.
type DummyCollector struct{}

// NewDummyCollector creates a new no-op collector.
func NewDummyCollector() *DummyCollector {
	return &DummyCollector{}
}

func (d *DummyCollector) RecordConnection(_ context.Context, _ ConnectionRecord) error {
	return nil
}

func (d *DummyCollector) IncrementTotal()          {}
func (d *DummyCollector) IncrementAllowed()        {}
func (d *DummyCollector) IncrementBlocked()        {}
func (d *DummyCollector) AddBytesSent(_ int64)     {}
func (d *DummyCollector) AddBytesReceived(_ int64) {}
func (d *DummyCollector) Snapshot() Snapshot       { return Snapshot{} }
func (d *DummyCollector) Close() error             { return nil }
