package cluster

import "strconv"

// cluster ids are laid out as ((anchor << zoomBits) | (zoom + 1)) + number of input points,
// so ids of input points (0..n-1) never collide with cluster ids
const (
	zoomBits = 5
	zoomMask = 1<<zoomBits - 1
)

// maxPoints bounds the input size so the largest possible id,
// built from anchor < n, still fits in an int
const maxPoints = 1 << (strconv.IntSize - zoomBits - 2)

func encodeClusterID(anchor, zoom, n int) int {
	return (anchor << zoomBits) + (zoom + 1) + n
}

// decodeClusterID returns the index of the anchor record and the zoom of the level it lives in.
// ok is false for ids that can't belong to a cluster.
func decodeClusterID(id, n int) (anchor, originZoom int, ok bool) {
	if id < n {
		return 0, 0, false
	}
	v := id - n
	return v >> zoomBits, v & zoomMask, true
}

// IsClusterID reports whether id is in the cluster id range of a Cluster holding n points.
func IsClusterID(id, n int) bool {
	return id >= n
}

// OriginZoom returns the zoom of the level a cluster id was formed from,
// one above the zoom at which the cluster first appears.
func (c *Cluster[P, C]) OriginZoom(clusterID int) (int, error) {
	_, z, ok := decodeClusterID(clusterID, len(c.points))
	if !ok {
		return 0, unknownCluster(clusterID)
	}
	return z, nil
}
