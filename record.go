package cluster

import "math"

// unprocessed marks a record that no merge pass has visited yet,
// it is larger than any zoom a Cluster accepts
const unprocessed = math.MaxInt32

const (
	noParent   = -1
	noProperty = -1
)

// record is one entry of a zoom level: either an input point or a cluster.
// Records are copied by value from level to level, so every level owns its slice.
type record struct {
	x, y      float32
	zoom      int // zoom of the pass that last visited the record
	id        int // input index for points, cluster id for clusters
	parent    int
	numPoints int
	propIndex int
}

func (r *record) isCluster() bool {
	return r.numPoints > 1
}

// newLeafRecords creates the finest level, one record per input point.
func newLeafRecords[P any](points []Point[P]) []record {
	result := make([]record, len(points))
	for i, p := range points {
		result[i] = record{
			x:         float32(p.X),
			y:         float32(p.Y),
			zoom:      unprocessed,
			id:        i,
			parent:    noParent,
			numPoints: 1,
			propIndex: noProperty,
		}
	}
	return result
}

// level pairs the records of one zoom with the index built over them.
type level struct {
	records []record
	index   SpatialIndex
}

func newLevel(records []record, factory IndexFactory, nodeSize int) *level {
	xs := make([]float32, len(records))
	ys := make([]float32, len(records))
	for i := range records {
		xs[i] = records[i].x
		ys[i] = records[i].y
	}
	return &level{records: records, index: factory(xs, ys, nodeSize)}
}

// propertyTable holds aggregated cluster properties, indexed by record.propIndex.
type propertyTable[C any] struct {
	values []C
}

func (t *propertyTable[C]) add(v C) int {
	t.values = append(t.values, v)
	return len(t.values) - 1
}

func (t *propertyTable[C]) get(idx int) (C, bool) {
	if idx < 0 || idx >= len(t.values) {
		var zero C
		return zero, false
	}
	return t.values[idx], true
}

func (t *propertyTable[C]) size() int {
	return len(t.values)
}
