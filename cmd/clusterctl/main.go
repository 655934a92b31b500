// clusterctl builds snapshots from GeoJSON files and queries them.
//
//	clusterctl build -in places.geojson -out snapshots [-compression zstd] [-codec json] [-sum visitors,revenue]
//	clusterctl query -snapshot snapshots/cluster-....gcls -bbox minX,minY,maxX,maxY -zoom 3
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	cluster "github.com/Martini024/point-cluster"
	"github.com/Martini024/point-cluster/geojson"
	"github.com/Martini024/point-cluster/internal/config"
	"github.com/Martini024/point-cluster/internal/dataset"
	"github.com/Martini024/point-cluster/internal/logger"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "clusterctl:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: clusterctl build|query [flags]")
	}
	switch args[0] {
	case "build":
		return build(args[1:], out)
	case "query":
		return query(args[1:], out)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func build(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	in := fs.String("in", "", "GeoJSON FeatureCollection of points")
	dir := fs.String("out", ".", "directory for the snapshot")
	compression := fs.String("compression", "zstd", "none, lz4 or zstd")
	codecName := fs.String("codec", "json", "properties codec, json or go-json")
	radius := fs.Float64("radius", cluster.DefaultRadius, "cluster radius")
	minZoom := fs.Int("min-zoom", cluster.DefaultMinZoom, "minimum zoom")
	maxZoom := fs.Int("max-zoom", cluster.DefaultMaxZoom, "maximum zoom")
	minPoints := fs.Int("min-points", cluster.DefaultMinPoints, "minimum points to form a cluster")
	sum := fs.String("sum", "", "comma separated numeric properties to sum")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("build: -in is required")
	}
	comp, err := cluster.ParseCompression(*compression)
	if err != nil {
		return err
	}
	codec, ok := cluster.CodecByName(*codecName)
	if !ok {
		return fmt.Errorf("build: unknown codec %q", *codecName)
	}

	cfg := &config.Config{
		DataFile:  *in,
		Radius:    *radius,
		MinZoom:   *minZoom,
		MaxZoom:   *maxZoom,
		MinPoints: *minPoints,
		NodeSize:  cluster.DefaultNodeSize,
	}
	for _, k := range strings.Split(*sum, ",") {
		if k = strings.TrimSpace(k); k != "" {
			cfg.SumProperties = append(cfg.SumProperties, k)
		}
	}

	ds, err := dataset.Build(*in, dataset.Options(cfg, logger.Cluster()))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		return err
	}
	filename := filepath.Join(*dir, dataset.SnapshotName(ds.Index))
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := ds.Index.WriteSnapshot(f, cluster.SnapshotOptions{Compression: comp, Codec: codec}); err != nil {
		f.Close()
		os.Remove(filename)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(out, filename)
	return nil
}

func query(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	snapshot := fs.String("snapshot", "", "snapshot written by build")
	bbox := fs.String("bbox", "", "minX,minY,maxX,maxY")
	zoom := fs.Float64("zoom", 0, "zoom level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *snapshot == "" {
		return errors.New("query: -snapshot is required")
	}
	bounds, err := geojson.ParseBBox(*bbox)
	if err != nil {
		return err
	}

	ds, err := dataset.Restore(*snapshot, cluster.DefaultOptions[dataset.Props, dataset.Sums]())
	if err != nil {
		return err
	}
	features, err := ds.Index.GetClusters(bounds, *zoom)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(geojson.FromFeatures(features, nil, nil))
}
