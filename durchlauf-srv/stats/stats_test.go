package stats

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/durchlauf/durchlauf-srv/config"
)

func TestMemoryCollectorCounters(t *testing.T) {
	c := NewMemoryCollector()

	c.IncrementTotal()
	c.IncrementTotal()
	c.IncrementAllowed()
	c.IncrementBlocked()
	c.AddBytesSent(100)
	c.AddBytesReceived(200)

	s := c.Snapshot()
	assert.Equal(t, int64(2), s.Total)
	assert.Equal(t, int64(1), s.Allowed)
	assert.Equal(t, int64(1), s.Blocked)
	assert.Equal(t, int64(100), s.BytesSent)
	assert.Equal(t, int64(200), s.BytesReceived)

	require.NoError(t, c.RecordConnection(context.Background(), ConnectionRecord{}))
	require.NoError(t, c.Close())
}

func TestMemoryCollectorConcurrent(t *testing.T) {
	c := NewMemoryCollector()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.IncrementTotal()
				c.AddBytesSent(2)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, int64(16000), s.Total)
	assert.Equal(t, int64(32000), s.BytesSent)
}

func TestAtomicInt64Counter(t *testing.T) {
	var c AtomicInt64Counter
	assert.Equal(t, int64(5), c.Add(5))
	assert.Equal(t, int64(5), c.Load())
	c.Store(42)
	assert.Equal(t, int64(42), c.Load())
}

func TestDummyCollector(t *testing.T) {
	c := NewDummyCollector()
	c.IncrementTotal()
	c.AddBytesSent(100)

	assert.Equal(t, Snapshot{}, c.Snapshot())
	require.NoError(t, c.RecordConnection(context.Background(), ConnectionRecord{}))
	require.NoError(t, c.Close())
}

func TestNewCollectorBackends(t *testing.T) {
	c, err := NewCollector(config.StatisticsConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCollector{}, c)

	c, err = NewCollector(config.StatisticsConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCollector{}, c)

	c, err = NewCollector(config.StatisticsConfig{Backend: "dummy"})
	require.NoError(t, err)
	assert.IsType(t, &DummyCollector{}, c)

	_, err = NewCollector(config.StatisticsConfig{Backend: "postgres"})
	require.Error(t, err)

	_, err = NewCollector(config.StatisticsConfig{Backend: "bogus"})
	require.Error(t, err)
}

func TestSQLiteCollectorRecords(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "stats.db")
	c, err := NewSQLiteCollector(dbPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, c.Close())
	}()

	rec := ConnectionRecord{
		ClientAddr:    "127.0.0.1:50000",
		TargetHost:    "example.com",
		TargetPort:    443,
		Method:        "CONNECT",
		Outcome:       "ALLOWED",
		Status:        200,
		BytesSent:     10,
		BytesReceived: 20,
		Duration:      150 * time.Millisecond,
	}
	require.NoError(t, c.RecordConnection(context.Background(), rec))
	require.NoError(t, c.RecordConnection(context.Background(), ConnectionRecord{
		ClientAddr: "127.0.0.1:50001",
		TargetHost: "down.example.com",
		TargetPort: 80,
		Method:     "GET",
		Outcome:    "REFUSED",
	}))

	var count int
	require.NoError(t, c.db.QueryRow("SELECT COUNT(*) FROM connections").Scan(&count))
	assert.Equal(t, 2, count)

	var status *int
	require.NoError(t, c.db.QueryRow(
		"SELECT status FROM connections WHERE outcome = 'REFUSED'").Scan(&status))
	assert.Nil(t, status)

	var host string
	var durationMs int64
	require.NoError(t, c.db.QueryRow(
		"SELECT target_host, duration_ms FROM connections WHERE outcome = 'ALLOWED'").Scan(&host, &durationMs))
	assert.Equal(t, "example.com", host)
	assert.Equal(t, int64(150), durationMs)
}
