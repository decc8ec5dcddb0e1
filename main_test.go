package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/durchlauf/durchlauf-srv/config"
	"github.com/codefionn/durchlauf/durchlauf-srv/stats"
)

func TestBuildServerCreatesCollector(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogDir = t.TempDir()
	cfg.EnableFiltering = false

	server, err := buildServer(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, server.Collector())
	assert.Equal(t, stats.Snapshot{}, server.Collector().Snapshot())
}

func TestBuildServerKeepsCollectorAcrossReload(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogDir = t.TempDir()
	cfg.EnableFiltering = false

	collector := stats.NewMemoryCollector()
	collector.IncrementTotal()
	collector.IncrementAllowed()
	collector.AddBytesSent(42)

	server, err := buildServer(cfg, collector)
	require.NoError(t, err)

	// The counters accumulated before the rebuild survive it.
	snapshot := server.Collector().Snapshot()
	assert.Equal(t, int64(1), snapshot.Total)
	assert.Equal(t, int64(1), snapshot.Allowed)
	assert.Equal(t, int64(42), snapshot.BytesSent)
}
