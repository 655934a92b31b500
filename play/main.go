package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	cluster "github.com/Martini024/point-cluster"
	"github.com/Martini024/point-cluster/geojson"
)

//random points in a 512x512 box, used when no file is given
func randomPoints(n int) []cluster.Point[map[string]any] {
	rnd := rand.New(rand.NewSource(1))
	points := make([]cluster.Point[map[string]any], n)
	for i := range points {
		points[i] = cluster.Point[map[string]any]{
			X:          rnd.Float64() * 512,
			Y:          rnd.Float64() * 512,
			Properties: map[string]any{"weight": float64(rnd.Intn(10))},
		}
	}
	return points
}

func main() {
	file := flag.String("file", "", "GeoJSON FeatureCollection of points")
	zoom := flag.Float64("zoom", 2, "zoom to print")
	flag.Parse()

	points := randomPoints(10000)
	if *file != "" {
		var err error
		if points, err = geojson.ReadFile(*file); err != nil {
			fmt.Println(err.Error())
			os.Exit(1)
		}
	}

	opts := cluster.DefaultOptions[map[string]any, map[string]float64]()
	opts.MaxZoom = 8
	opts.Logger = cluster.NewTextLogger(slog.LevelDebug)
	opts.Map = func(p map[string]any) map[string]float64 {
		w, _ := p["weight"].(float64)
		return map[string]float64{"weight": w}
	}
	opts.Reduce = func(acc *map[string]float64, props map[string]float64) {
		(*acc)["weight"] += props["weight"]
	}
	opts.Clone = func(m map[string]float64) map[string]float64 {
		return map[string]float64{"weight": m["weight"]}
	}

	c, err := cluster.New(opts)
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
	if err := c.Load(points); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}

	result, _ := c.GetClusters(cluster.Bounds{MinX: 0, MinY: 0, MaxX: 512, MaxY: 512}, *zoom)
	fmt.Printf("Getting points: length %v \n", len(result))

	for _, f := range result {
		if !f.IsCluster() {
			continue
		}
		expansion, _ := c.GetClusterExpansionZoom(f.Cluster.ID)
		leaves, _ := c.GetLeaves(f.Cluster.ID, 3, 0)
		fmt.Printf("cluster %d: %s points, expands at zoom %d, first leaves %+v\n",
			f.Cluster.ID, f.Cluster.NumPointsAbbreviated, expansion, leaves)
		break
	}

	resultJSON, _ := json.MarshalIndent(geojson.FromFeatures(result, nil, nil), "", "  ")
	fmt.Println(string(resultJSON))
}
