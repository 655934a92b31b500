package cluster

import (
	"context"
	"math"
	"slices"
	"strconv"
	"time"
)

// DefaultLeavesLimit is the page size GetLeaves callers usually want.
const DefaultLeavesLimit = 10

// Point is an input point. ID is optional and opaque to the cluster.
// Coordinates are plain Cartesian values, they are reduced to float32 inside the hierarchy.
type Point[P any] struct {
	ID         string
	X, Y       float64
	Properties P
}

// ClusterPoint is a cluster as returned by queries.
// X and Y are the centroid of all points in the cluster, weighted by point count.
type ClusterPoint[C any] struct {
	ID                   int
	X, Y                 float64
	NumPoints            int
	NumPointsAbbreviated string
	Properties           C
	HasProperties        bool // false when aggregation is disabled
}

// Feature is one item of a query result: exactly one of Point and Cluster is set.
type Feature[P, C any] struct {
	Point   *Point[P]
	Cluster *ClusterPoint[C]
}

// IsCluster reports whether the feature is a cluster.
func (f Feature[P, C]) IsCluster() bool {
	return f.Cluster != nil
}

// Coordinates returns the point coordinates or the cluster centroid.
func (f Feature[P, C]) Coordinates() (float64, float64) {
	if f.Cluster != nil {
		return f.Cluster.X, f.Cluster.Y
	}
	return f.Point.X, f.Point.Y
}

// NumPoints returns the number of input points the feature stands for.
func (f Feature[P, C]) NumPoints() int {
	if f.Cluster != nil {
		return f.Cluster.NumPoints
	}
	return 1
}

// Bounds is an axis-aligned box, borders included.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Cluster builds all levels of clusters for a static set of points
// and answers queries against them.
// A Cluster is loaded once, after Load returns it is read only and
// safe for concurrent use by multiple goroutines.
type Cluster[P, C any] struct {
	opts   Options[P, C]
	points []Point[P]
	levels []*level // levels[z] for z in MinZoom..MaxZoom+1
	props  propertyTable[C]
	loaded bool
}

// New validates opts and creates an empty Cluster.
// Missing NodeSize, ScalingFunction, IndexFactory and Logger fall back to defaults.
func New[P, C any](opts Options[P, C]) (*Cluster[P, C], error) {
	opts.applyDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Cluster[P, C]{opts: opts}, nil
}

// Options returns the options the Cluster was created with.
func (c *Cluster[P, C]) Options() Options[P, C] {
	return c.opts
}

// Load builds every zoom level for points, from MaxZoom+1 (unclustered) down to MinZoom.
// The slice is copied, properties are not.
// Load can be called only once.
func (c *Cluster[P, C]) Load(points []Point[P]) error {
	ctx := context.Background()
	if c.loaded {
		return ErrAlreadyLoaded
	}
	if len(points) >= maxPoints {
		c.opts.Logger.LogLoad(ctx, len(points), 0, 0, ErrTooManyPoints)
		return ErrTooManyPoints
	}

	start := time.Now()
	c.points = slices.Clone(points)

	//adding extra layer for unclustered points
	c.levels = make([]*level, c.opts.MaxZoom+2)

	records := newLeafRecords(c.points)
	c.levels[c.opts.MaxZoom+1] = newLevel(records, c.opts.IndexFactory, c.opts.NodeSize)

	for z := c.opts.MaxZoom; z >= c.opts.MinZoom; z-- {
		passStart := time.Now()

		//create clusters for level up using the index of the previous iteration
		next, formed := c.clusterize(c.levels[z+1], z)
		c.levels[z] = newLevel(next, c.opts.IndexFactory, c.opts.NodeSize)

		c.opts.Logger.LogZoomPass(ctx, z, len(next), formed, time.Since(passStart))
	}

	c.loaded = true
	c.opts.Logger.LogLoad(ctx, len(points), c.opts.MaxZoom-c.opts.MinZoom+2, time.Since(start), nil)
	return nil
}

// IsLoaded reports whether the hierarchy has been built.
func (c *Cluster[P, C]) IsLoaded() bool {
	return c.loaded
}

// Len returns the number of input points.
func (c *Cluster[P, C]) Len() int {
	return len(c.points)
}

// Zooms returns the configured zoom range. Queries accept zooms up to max+1.
func (c *Cluster[P, C]) Zooms() (minZoom, maxZoom int) {
	return c.opts.MinZoom, c.opts.MaxZoom
}

// GetClusters returns clusters and points inside bbox at zoom.
// zoom is floored and limited to [MinZoom, MaxZoom+1], only NaN is rejected.
// Before Load the result is empty.
func (c *Cluster[P, C]) GetClusters(bbox Bounds, zoom float64) ([]Feature[P, C], error) {
	if math.IsNaN(zoom) {
		return nil, ErrInvalidZoom
	}
	if !c.loaded {
		return nil, nil
	}
	lvl := c.levels[c.limitZoom(zoom)]
	ids := lvl.index.Range(bbox.MinX, bbox.MinY, bbox.MaxX, bbox.MaxY)
	result := make([]Feature[P, C], len(ids))
	for i, id := range ids {
		result[i] = c.feature(&lvl.records[id])
	}
	return result, nil
}

// GetChildren returns the clusters and points a cluster was formed from,
// one zoom level below the zoom it first appears at.
func (c *Cluster[P, C]) GetChildren(clusterID int) ([]Feature[P, C], error) {
	children, err := c.children(clusterID)
	if err != nil {
		return nil, err
	}
	result := make([]Feature[P, C], len(children))
	for i := range children {
		result[i] = c.feature(&children[i])
	}
	return result, nil
}

// children returns copies of the records whose parent is clusterID.
func (c *Cluster[P, C]) children(clusterID int) ([]record, error) {
	anchor, originZoom, ok := decodeClusterID(clusterID, len(c.points))
	if !ok || !c.loaded || originZoom <= c.opts.MinZoom || originZoom >= len(c.levels) {
		return nil, unknownCluster(clusterID)
	}
	lvl := c.levels[originZoom]
	if lvl == nil || anchor >= len(lvl.records) {
		return nil, unknownCluster(clusterID)
	}

	//radius of the default scaling at the zoom the cluster was formed,
	//ScalingFunction is not applied here
	r := c.opts.Radius / float64(originZoom-1)
	p := &lvl.records[anchor]
	ids := lvl.index.Within(float64(p.x), float64(p.y), r)

	var children []record
	for _, id := range ids {
		if lvl.records[id].parent == clusterID {
			children = append(children, lvl.records[id])
		}
	}
	if len(children) == 0 {
		return nil, unknownCluster(clusterID)
	}
	return children, nil
}

// GetClusterExpansionZoom returns the zoom on which the cluster expands into several children,
// useful for "click to zoom" feature. The result never exceeds MaxZoom+1.
func (c *Cluster[P, C]) GetClusterExpansionZoom(clusterID int) (int, error) {
	_, originZoom, ok := decodeClusterID(clusterID, len(c.points))
	if !ok || !c.loaded || originZoom <= c.opts.MinZoom || originZoom > c.opts.MaxZoom+1 {
		return 0, unknownCluster(clusterID)
	}
	expansionZoom := originZoom - 1
	for expansionZoom <= c.opts.MaxZoom {
		children, err := c.children(clusterID)
		if err != nil {
			return 0, err
		}
		expansionZoom++
		//a single point child has no children of its own, it is visible from here on
		if len(children) != 1 || !children[0].isCluster() {
			break
		}
		clusterID = children[0].id
	}
	return expansionZoom, nil
}

func (c *Cluster[P, C]) feature(r *record) Feature[P, C] {
	if !r.isCluster() {
		p := c.points[r.id]
		return Feature[P, C]{Point: &p}
	}
	cp := &ClusterPoint[C]{
		ID:                   r.id,
		X:                    float64(r.x),
		Y:                    float64(r.y),
		NumPoints:            r.numPoints,
		NumPointsAbbreviated: abbreviate(r.numPoints),
	}
	if props, ok := c.props.get(r.propIndex); ok {
		cp.Properties = props
		cp.HasProperties = true
	}
	return Feature[P, C]{Cluster: cp}
}

func (c *Cluster[P, C]) limitZoom(zoom float64) int {
	z := math.Floor(zoom)
	if z > float64(c.opts.MaxZoom+1) {
		return c.opts.MaxZoom + 1
	}
	if z < float64(c.opts.MinZoom) {
		return c.opts.MinZoom
	}
	return int(z)
}

// abbreviate shortens large point counts: 1234 becomes "1.2k", 12345 becomes "12k".
func abbreviate(count int) string {
	switch {
	case count >= 10000:
		return strconv.FormatFloat(math.Round(float64(count)/1000), 'f', -1, 64) + "k"
	case count >= 1000:
		return strconv.FormatFloat(math.Round(float64(count)/100)/10, 'f', -1, 64) + "k"
	default:
		return strconv.Itoa(count)
	}
}
