package cluster

import (
	"math"
	"reflect"
)

// MaxSupportedZoom is the largest MaxZoom a Cluster accepts.
// Cluster ids store zoom+1 in 5 bits.
const MaxSupportedZoom = 30

const (
	DefaultRadius    = 40
	DefaultMinZoom   = 0
	DefaultMaxZoom   = 16
	DefaultMinPoints = 2
	DefaultNodeSize  = 64
)

// ScalingFunction maps a zoom level to the factor the base radius is
// multiplied by during the merge pass at that zoom.
type ScalingFunction func(zoom int) float64

// DefaultScaling returns 1/zoom, so the merge radius halves every time
// the zoom doubles. At zoom 0 it returns +Inf.
func DefaultScaling(zoom int) float64 {
	return 1 / float64(zoom)
}

// Options configure a Cluster.
//
// Start from DefaultOptions, change what you need and pass the result to New:
//
//	opts := cluster.DefaultOptions[Props, Sum]()
//	opts.MaxZoom = 12
//	opts.Map = func(p Props) Sum { return Sum{V: p.V} }
//	opts.Reduce = func(acc *Sum, s Sum) { acc.V += s.V }
//	c, err := cluster.New(opts)
//
// Radius - cluster radius, in the same units as the point coordinates at zoom 1
// MinZoom, MaxZoom - zoom range to build clusters for, MaxZoom is limited by MaxSupportedZoom
// MinPoints - minimum number of points to form a cluster
// NodeSize - leaf size of the spatial index, affects performance only
type Options[P, C any] struct {
	Radius    float64
	MinZoom   int
	MaxZoom   int
	MinPoints int
	NodeSize  int

	// ScalingFunction is called once per merge pass. nil means DefaultScaling.
	ScalingFunction ScalingFunction

	// Map turns the properties of an input point into cluster properties.
	// The returned value must not share memory with p.
	Map func(p P) C
	// Reduce folds props into accumulated. It must not modify props.
	// Aggregation is enabled only when both Map and Reduce are set.
	Reduce func(accumulated *C, props C)
	// Clone copies cluster properties before they seed a new cluster.
	// nil means a plain value copy. New rejects a nil Clone when C is a map,
	// slice, pointer or interface, struct fields are not inspected.
	Clone func(C) C

	// IndexFactory builds the spatial index for every zoom level.
	// nil means the kdbush index.
	IndexFactory IndexFactory

	// Logger receives load progress. nil means NoopLogger.
	Logger *Logger
}

// DefaultOptions returns Options with every documented default applied.
func DefaultOptions[P, C any]() Options[P, C] {
	return Options[P, C]{
		Radius:          DefaultRadius,
		MinZoom:         DefaultMinZoom,
		MaxZoom:         DefaultMaxZoom,
		MinPoints:       DefaultMinPoints,
		NodeSize:        DefaultNodeSize,
		ScalingFunction: DefaultScaling,
		IndexFactory:    NewKDBushIndex,
		Logger:          NoopLogger(),
	}
}

func (o *Options[P, C]) applyDefaults() {
	if o.NodeSize <= 0 {
		o.NodeSize = DefaultNodeSize
	}
	if o.ScalingFunction == nil {
		o.ScalingFunction = DefaultScaling
	}
	if o.IndexFactory == nil {
		o.IndexFactory = NewKDBushIndex
	}
	if o.Logger == nil {
		o.Logger = NoopLogger()
	}
}

func (o *Options[P, C]) validate() error {
	switch {
	case o.MinZoom < 0:
		return &ConfigError{Field: "MinZoom", Reason: "must not be negative"}
	case o.MaxZoom > MaxSupportedZoom:
		return &ConfigError{Field: "MaxZoom", Reason: "exceeds the zoom capacity of cluster ids"}
	case o.MinZoom > o.MaxZoom:
		return &ConfigError{Field: "MinZoom", Reason: "is larger than MaxZoom"}
	case math.IsNaN(o.Radius) || o.Radius <= 0:
		return &ConfigError{Field: "Radius", Reason: "must be positive"}
	case o.MinPoints < 1:
		return &ConfigError{Field: "MinPoints", Reason: "must be at least 1"}
	case (o.Map == nil) != (o.Reduce == nil):
		return &ConfigError{Field: "Map/Reduce", Reason: "must be set together"}
	case o.aggregates() && o.Clone == nil && sharesMemory(reflect.TypeFor[C]()):
		return &ConfigError{Field: "Clone", Reason: "is required when cluster properties are a map, slice, pointer or interface"}
	}
	return nil
}

func (o *Options[P, C]) aggregates() bool {
	return o.Map != nil && o.Reduce != nil
}

// sharesMemory reports whether a plain copy of a t value still points to the same data.
func sharesMemory(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return true
	}
	return false
}
