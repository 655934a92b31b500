// Package config reads the configuration of the cluster binaries from the environment.
// A .env file in the working directory is loaded first, real environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	cluster "github.com/Martini024/point-cluster"
)

// Config holds everything clusterd needs to start.
type Config struct {
	Addr         string
	DataFile     string // GeoJSON points, clustered on start
	SnapshotFile string // used instead of DataFile when set

	Radius        float64
	MinZoom       int
	MaxZoom       int
	MinPoints     int
	NodeSize      int
	SumProperties []string

	RateLimitQPS float64 // 0 disables rate limiting

	RedisAddr string // empty disables the response cache
	RedisPass string
	RedisDB   int
	CacheTTL  time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads .env, if present, and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from lookup, which has the signature of os.LookupEnv.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	e := &env{lookup: lookup}
	cfg := &Config{
		Addr:         e.str("CLUSTER_ADDR", ":8080"),
		DataFile:     e.str("CLUSTER_DATA_FILE", ""),
		SnapshotFile: e.str("CLUSTER_SNAPSHOT_FILE", ""),

		Radius:        e.float("CLUSTER_RADIUS", cluster.DefaultRadius),
		MinZoom:       e.integer("CLUSTER_MIN_ZOOM", cluster.DefaultMinZoom),
		MaxZoom:       e.integer("CLUSTER_MAX_ZOOM", cluster.DefaultMaxZoom),
		MinPoints:     e.integer("CLUSTER_MIN_POINTS", cluster.DefaultMinPoints),
		NodeSize:      e.integer("CLUSTER_NODE_SIZE", cluster.DefaultNodeSize),
		SumProperties: e.list("CLUSTER_SUM_PROPERTIES"),

		RateLimitQPS: e.float("RATE_LIMIT_QPS", 0),

		RedisAddr: e.str("REDIS_ADDR", ""),
		RedisPass: e.str("REDIS_PASS", ""),
		RedisDB:   e.integer("REDIS_DB", 0),
		CacheTTL:  e.duration("CACHE_TTL", time.Minute),

		LogLevel:  e.str("LOG_LEVEL", "info"),
		LogFormat: e.str("LOG_FORMAT", "text"),
	}
	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	if cfg.DataFile == "" && cfg.SnapshotFile == "" {
		return nil, errors.New("config: CLUSTER_DATA_FILE or CLUSTER_SNAPSHOT_FILE is required")
	}
	if cfg.RateLimitQPS < 0 {
		return nil, errors.New("config: RATE_LIMIT_QPS must not be negative")
	}
	return cfg, nil
}

// ClusterOptions fills the numeric options of a cluster from the config.
// Validation is left to cluster.New.
func ClusterOptions[P, C any](cfg *Config, opts cluster.Options[P, C]) cluster.Options[P, C] {
	opts.Radius = cfg.Radius
	opts.MinZoom = cfg.MinZoom
	opts.MaxZoom = cfg.MaxZoom
	opts.MinPoints = cfg.MinPoints
	opts.NodeSize = cfg.NodeSize
	return opts
}

// env collects parse errors, so all bad variables are reported at once.
type env struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok && v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	s := e.str(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return v
}

func (e *env) float(key string, def float64) float64 {
	s := e.str(key, "")
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return v
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	s := e.str(key, "")
	if s == "" {
		return def
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s: %w", key, err))
		return def
	}
	return v
}

func (e *env) list(key string) []string {
	var out []string
	for _, item := range strings.Split(e.str(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
