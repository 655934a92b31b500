// Package dataset builds the cluster hierarchy the binaries serve:
// GeoJSON points with their raw properties, clusters carrying sums of selected numeric properties.
package dataset

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"time"

	"github.com/google/uuid"

	cluster "github.com/Martini024/point-cluster"
	"github.com/Martini024/point-cluster/geojson"
	"github.com/Martini024/point-cluster/internal/config"
)

// Props are the properties of an input point as read from GeoJSON.
type Props = map[string]any

// Sums are the aggregated properties of a cluster.
type Sums = map[string]float64

// Index is the hierarchy type served by clusterd.
type Index = cluster.Cluster[Props, Sums]

// Dataset is a loaded Index with an id that changes every time data is loaded.
type Dataset struct {
	ID    string
	Index *Index
	Took  time.Duration
}

// SumOptions enables aggregation of the numeric properties named by keys.
// With no keys opts is returned unchanged and clusters carry no properties.
func SumOptions(keys []string, opts cluster.Options[Props, Sums]) cluster.Options[Props, Sums] {
	if len(keys) == 0 {
		return opts
	}
	keys = append([]string(nil), keys...)
	opts.Map = func(p Props) Sums {
		sums := make(Sums, len(keys))
		for _, k := range keys {
			if v, ok := number(p[k]); ok {
				sums[k] = v
			}
		}
		return sums
	}
	opts.Reduce = func(acc *Sums, s Sums) {
		for k, v := range s {
			(*acc)[k] += v
		}
	}
	opts.Clone = maps.Clone[Sums]
	return opts
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Options returns the cluster options described by cfg.
func Options(cfg *config.Config, l *cluster.Logger) cluster.Options[Props, Sums] {
	opts := cluster.DefaultOptions[Props, Sums]()
	opts.Logger = l
	opts = config.ClusterOptions(cfg, opts)
	return SumOptions(cfg.SumProperties, opts)
}

// Build clusters points read from a GeoJSON file.
func Build(filename string, opts cluster.Options[Props, Sums]) (*Dataset, error) {
	start := time.Now()
	points, err := geojson.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	idx, err := cluster.New(opts)
	if err != nil {
		return nil, err
	}
	if err := idx.Load(points); err != nil {
		return nil, err
	}
	return &Dataset{ID: uuid.NewString(), Index: idx, Took: time.Since(start)}, nil
}

// Restore reads a hierarchy from a snapshot file. The zoom range and radius come from the snapshot.
func Restore(filename string, opts cluster.Options[Props, Sums]) (*Dataset, error) {
	start := time.Now()
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx, err := cluster.New(opts)
	if err != nil {
		return nil, err
	}
	if err := idx.ReadSnapshot(f, nil); err != nil {
		return nil, fmt.Errorf("restore %s: %w", filename, err)
	}
	return &Dataset{ID: uuid.NewString(), Index: idx, Took: time.Since(start)}, nil
}

// Open restores the snapshot named by cfg when there is one, and builds from GeoJSON otherwise.
func Open(cfg *config.Config, l *slog.Logger, cl *cluster.Logger) (*Dataset, error) {
	opts := Options(cfg, cl)
	if cfg.SnapshotFile != "" {
		l.Info("dataset_restore", "file", cfg.SnapshotFile)
		return Restore(cfg.SnapshotFile, opts)
	}
	l.Info("dataset_build", "file", cfg.DataFile, "sum", cfg.SumProperties)
	return Build(cfg.DataFile, opts)
}

// SnapshotName returns a unique snapshot file name like cluster-1200p-z0-16-1a2b3c4d.gcls.
func SnapshotName(idx *Index) string {
	minZoom, maxZoom := idx.Zooms()
	return fmt.Sprintf("cluster-%dp-z%d-%d-%s.gcls", idx.Len(), minZoom, maxZoom, uuid.New().String()[:8])
}
