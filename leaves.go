package cluster

import "github.com/RoaringBitmap/roaring/v2"

// GetLeaves returns the input points of a cluster, depth first, skipping the first offset of them.
// At most limit points are returned, a negative limit returns all of them.
func (c *Cluster[P, C]) GetLeaves(clusterID, limit, offset int) ([]Point[P], error) {
	result := []Point[P]{}
	if limit == 0 {
		//still report unknown ids
		if _, err := c.children(clusterID); err != nil {
			return nil, err
		}
		return result, nil
	}
	if _, err := c.appendLeaves(&result, clusterID, limit, offset, 0); err != nil {
		return nil, err
	}
	return result, nil
}

// appendLeaves walks the children of clusterID and returns the updated skipped counter.
// Subtrees that end before offset are skipped as a whole.
func (c *Cluster[P, C]) appendLeaves(result *[]Point[P], clusterID, limit, offset, skipped int) (int, error) {
	children, err := c.children(clusterID)
	if err != nil {
		return skipped, err
	}

	for i := range children {
		child := &children[i]
		switch {
		case child.isCluster():
			if skipped+child.numPoints <= offset {
				skipped += child.numPoints
			} else {
				skipped, err = c.appendLeaves(result, child.id, limit, offset, skipped)
				if err != nil {
					return skipped, err
				}
			}
		case skipped < offset:
			skipped++
		default:
			*result = append(*result, c.points[child.id])
		}
		if limit > 0 && len(*result) >= limit {
			break
		}
	}
	return skipped, nil
}

// GetLeafIndices returns the positions, in the slice given to Load, of every point in a cluster.
func (c *Cluster[P, C]) GetLeafIndices(clusterID int) (*roaring.Bitmap, error) {
	bm := roaring.New()
	if err := c.collectLeafIndices(bm, clusterID); err != nil {
		return nil, err
	}
	return bm, nil
}

func (c *Cluster[P, C]) collectLeafIndices(bm *roaring.Bitmap, clusterID int) error {
	children, err := c.children(clusterID)
	if err != nil {
		return err
	}
	for i := range children {
		if children[i].isCluster() {
			if err := c.collectLeafIndices(bm, children[i].id); err != nil {
				return err
			}
			continue
		}
		bm.Add(uint32(children[i].id))
	}
	return nil
}
