package cluster

import "github.com/MadAppGang/kdbush"

// SpatialIndex is a static 2D point index. It is built once over the records
// of a zoom level and never changes afterwards. Both queries return positions
// in the coordinate slices the index was built from.
type SpatialIndex interface {
	// Range returns every point inside the box, borders included.
	Range(minX, minY, maxX, maxY float64) []int
	// Within returns every point at distance r or less from (x, y).
	Within(x, y, r float64) []int
}

// IndexFactory builds a SpatialIndex over the points (xs[i], ys[i]).
// nodeSize is a performance hint.
type IndexFactory func(xs, ys []float32, nodeSize int) SpatialIndex

// kdbushIndex adapts KD-tree geospatial index https://github.com/MadAppGang/kdbush
type kdbushIndex struct {
	bush *kdbush.KDBush
}

// NewKDBushIndex is the default IndexFactory.
func NewKDBushIndex(xs, ys []float32, nodeSize int) SpatialIndex {
	if len(xs) == 0 {
		return emptyIndex{}
	}
	points := make([]kdbush.Point, len(xs))
	for i := range xs {
		points[i] = &kdbush.SimplePoint{X: float64(xs[i]), Y: float64(ys[i])}
	}
	return &kdbushIndex{bush: kdbush.NewBush(points, nodeSize)}
}

func (k *kdbushIndex) Range(minX, minY, maxX, maxY float64) []int {
	return k.bush.Range(minX, minY, maxX, maxY)
}

func (k *kdbushIndex) Within(x, y, r float64) []int {
	return k.bush.Within(&kdbush.SimplePoint{X: x, Y: y}, r)
}

type emptyIndex struct{}

func (emptyIndex) Range(_, _, _, _ float64) []int { return nil }

func (emptyIndex) Within(_, _, _ float64) []int { return nil }
