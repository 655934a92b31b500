package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cluster "github.com/Martini024/point-cluster"
)

func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{"CLUSTER_DATA_FILE": "places.geojson"}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "places.geojson", cfg.DataFile)
	assert.Equal(t, 40.0, cfg.Radius)
	assert.Equal(t, 0, cfg.MinZoom)
	assert.Equal(t, 16, cfg.MaxZoom)
	assert.Equal(t, 2, cfg.MinPoints)
	assert.Equal(t, 64, cfg.NodeSize)
	assert.Empty(t, cfg.SumProperties)
	assert.Zero(t, cfg.RateLimitQPS)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestFromLookup(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"CLUSTER_ADDR":           "127.0.0.1:9000",
		"CLUSTER_SNAPSHOT_FILE":  "places.gcls",
		"CLUSTER_RADIUS":         "60.5",
		"CLUSTER_MIN_ZOOM":       "2",
		"CLUSTER_MAX_ZOOM":       "12",
		"CLUSTER_MIN_POINTS":     "3",
		"CLUSTER_NODE_SIZE":      "32",
		"CLUSTER_SUM_PROPERTIES": "visitors, revenue,,",
		"RATE_LIMIT_QPS":         "100",
		"REDIS_ADDR":             "localhost:6379",
		"REDIS_DB":               "2",
		"CACHE_TTL":              "30s",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "places.gcls", cfg.SnapshotFile)
	assert.Equal(t, 60.5, cfg.Radius)
	assert.Equal(t, []string{"visitors", "revenue"}, cfg.SumProperties)
	assert.Equal(t, 100.0, cfg.RateLimitQPS)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)

	opts := ClusterOptions(cfg, cluster.DefaultOptions[map[string]any, struct{}]())
	assert.Equal(t, 60.5, opts.Radius)
	assert.Equal(t, 2, opts.MinZoom)
	assert.Equal(t, 12, opts.MaxZoom)
	assert.Equal(t, 3, opts.MinPoints)
	assert.Equal(t, 32, opts.NodeSize)
	_, err = cluster.New(opts)
	assert.NoError(t, err)
}

func TestFromLookup_Errors(t *testing.T) {
	_, err := FromLookup(lookupFrom(map[string]string{}))
	assert.Error(t, err, "no data source")

	_, err = FromLookup(lookupFrom(map[string]string{
		"CLUSTER_DATA_FILE": "places.geojson",
		"CLUSTER_MAX_ZOOM":  "many",
		"CACHE_TTL":         "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLUSTER_MAX_ZOOM")
	assert.Contains(t, err.Error(), "CACHE_TTL")

	_, err = FromLookup(lookupFrom(map[string]string{
		"CLUSTER_DATA_FILE": "places.geojson",
		"RATE_LIMIT_QPS":    "-1",
	}))
	assert.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CLUSTER_DATA_FILE=from-dotenv.geojson\nCLUSTER_RADIUS=25\n"), 0o600))
	t.Chdir(dir)
	t.Setenv("CLUSTER_RADIUS", "30")
	t.Cleanup(func() { os.Unsetenv("CLUSTER_DATA_FILE") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv.geojson", cfg.DataFile)
	assert.Equal(t, 30.0, cfg.Radius, "the environment wins over .env")
}
