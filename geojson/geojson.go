// Package geojson converts between GeoJSON FeatureCollections and the cluster package.
//
// Only Point geometries are supported. Coordinates are taken as is,
// [x, y], without any projection.
package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	cluster "github.com/Martini024/point-cluster"
)

// ErrUnsupportedGeometry is returned for features that are not points.
var ErrUnsupportedGeometry = errors.New("unsupported geometry")

// Property names set on cluster features.
const (
	PropCluster               = "cluster"
	PropClusterID             = "cluster_id"
	PropPointCount            = "point_count"
	PropPointCountAbbreviated = "point_count_abbreviated"
)

// ParseBBox parses a "minX,minY,maxX,maxY" bounding box.
// NaN values and boxes with the min corner above the max corner are rejected.
func ParseBBox(s string) (cluster.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return cluster.Bounds{}, fmt.Errorf("bbox: want minX,minY,maxX,maxY, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) {
			return cluster.Bounds{}, fmt.Errorf("bbox: %q is not a number", p)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return cluster.Bounds{}, fmt.Errorf("bbox: min corner is above max corner in %q", s)
	}
	return cluster.Bounds{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}, nil
}

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string         `json:"type"`
	ID         any            `json:"id,omitempty"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Geometry is a GeoJSON geometry, only "Point" is used.
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Read decodes a FeatureCollection of points.
// Feature ids, numeric or string, become Point.ID.
func Read(r io.Reader) ([]cluster.Point[map[string]any], error) {
	var fc FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("expected FeatureCollection, got %q", fc.Type)
	}

	points := make([]cluster.Point[map[string]any], len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry.Type != "Point" {
			return nil, fmt.Errorf("feature %d: %w %q", i, ErrUnsupportedGeometry, f.Geometry.Type)
		}
		if len(f.Geometry.Coordinates) < 2 {
			return nil, fmt.Errorf("feature %d: point needs two coordinates, got %d", i, len(f.Geometry.Coordinates))
		}
		points[i] = cluster.Point[map[string]any]{
			ID:         featureID(f.ID),
			X:          f.Geometry.Coordinates[0],
			Y:          f.Geometry.Coordinates[1],
			Properties: f.Properties,
		}
	}
	return points, nil
}

// ReadFile reads a FeatureCollection of points from a file.
func ReadFile(filename string) ([]cluster.Point[map[string]any], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

func featureID(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// FromFeatures converts a query result to a FeatureCollection.
//
// Points keep their properties, clusters get cluster, cluster_id, point_count and
// point_count_abbreviated on top of their aggregated properties.
// pointProps and clusterProps may be nil for map property types.
func FromFeatures[P, C any](features []cluster.Feature[P, C], pointProps func(P) map[string]any, clusterProps func(C) map[string]any) *FeatureCollection {
	if pointProps == nil {
		pointProps = asMap[P]
	}
	if clusterProps == nil {
		clusterProps = asMap[C]
	}

	fc := &FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, len(features))}
	for i, f := range features {
		if !f.IsCluster() {
			fc.Features[i] = pointFeature(f.Point, pointProps)
			continue
		}

		c := f.Cluster
		properties := make(map[string]any)
		if c.HasProperties {
			for k, v := range clusterProps(c.Properties) {
				properties[k] = v
			}
		}
		properties[PropCluster] = true
		properties[PropClusterID] = c.ID
		properties[PropPointCount] = c.NumPoints
		properties[PropPointCountAbbreviated] = c.NumPointsAbbreviated

		fc.Features[i] = Feature{
			Type:       "Feature",
			ID:         c.ID,
			Geometry:   Geometry{Type: "Point", Coordinates: []float64{c.X, c.Y}},
			Properties: properties,
		}
	}
	return fc
}

// FromPoints converts input points, for example leaves of a cluster, to a FeatureCollection.
func FromPoints[P any](points []cluster.Point[P], pointProps func(P) map[string]any) *FeatureCollection {
	if pointProps == nil {
		pointProps = asMap[P]
	}
	fc := &FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, len(points))}
	for i := range points {
		fc.Features[i] = pointFeature(&points[i], pointProps)
	}
	return fc
}

func pointFeature[P any](p *cluster.Point[P], pointProps func(P) map[string]any) Feature {
	properties := make(map[string]any)
	for k, v := range pointProps(p.Properties) {
		properties[k] = v
	}
	f := Feature{
		Type:       "Feature",
		Geometry:   Geometry{Type: "Point", Coordinates: []float64{p.X, p.Y}},
		Properties: properties,
	}
	if p.ID != "" {
		f.ID = p.ID
	}
	return f
}

// asMap passes map properties through and drops everything else.
func asMap[T any](v T) map[string]any {
	switch m := any(v).(type) {
	case map[string]any:
		return m
	case map[string]float64:
		out := make(map[string]any, len(m))
		for k, x := range m {
			out[k] = x
		}
		return out
	default:
		return nil
	}
}
