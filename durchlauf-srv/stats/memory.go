package stats

import (
	"context"
)

// MemoryCollector keeps the aggregate counters in process memory and
// discards individual connection records. This is the default backend.
type MemoryCollector struct {
	counterSet
}

// NewMemoryCollector creates a new in-memory collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

// RecordConnection is a no-op; the memory backend only tracks aggregates.
func (m *MemoryCollector) RecordConnection(_ context.Context, _ ConnectionRecord) error {
	return nil
}

// Close is a no-op.
func (m *MemoryCollector) Close() error {
	return nil
}
