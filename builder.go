package cluster

// clusterize runs the greedy merge pass for zoom over lvl, the level built for zoom+1,
// and returns the records of the next, coarser level together with the number of clusters it formed.
// Records of lvl get their zoom marker and parent updated in place.
func (c *Cluster[P, C]) clusterize(lvl *level, zoom int) ([]record, int) {
	//the radius is recomputed for each pass, ScalingFunction may be anything monotonic
	r := c.opts.Radius * c.opts.ScalingFunction(zoom)
	data := lvl.records
	n := len(c.points)
	aggregate := c.opts.aggregates()

	next := make([]record, 0, len(data))
	formed := 0

	//iterate all records in index order, so one pass is deterministic
	for i := range data {
		p := &data[i]
		//skip records we have already visited at this zoom
		if p.zoom <= zoom {
			continue
		}
		//mark this record as visited
		p.zoom = zoom

		//find all neighbours, visited ones included
		neighbourIds := lvl.index.Within(float64(p.x), float64(p.y), r)

		numPointsOrigin := p.numPoints
		numPoints := numPointsOrigin
		for _, j := range neighbourIds {
			if b := &data[j]; b.zoom > zoom {
				numPoints += b.numPoints
			}
		}

		if numPoints <= numPointsOrigin || numPoints < c.opts.MinPoints {
			//not enough new neighbours, carry the record forward as it is
			next = append(next, *p)
			if numPoints > 1 {
				//and its unvisited neighbours too, they must not trigger their own merge at this zoom
				for _, j := range neighbourIds {
					b := &data[j]
					if b.zoom <= zoom {
						continue
					}
					b.zoom = zoom
					next = append(next, *b)
				}
			}
			continue
		}

		id := encodeClusterID(i, zoom, n)
		wx := float64(p.x) * float64(numPointsOrigin)
		wy := float64(p.y) * float64(numPointsOrigin)
		propIndex := noProperty

		for _, j := range neighbourIds {
			b := &data[j]
			//filter out neighbours that are already processed (and the record itself)
			if b.zoom <= zoom {
				continue
			}
			b.zoom = zoom
			b.parent = id
			wx += float64(b.x) * float64(b.numPoints)
			wy += float64(b.y) * float64(b.numPoints)

			if aggregate {
				if propIndex == noProperty {
					propIndex = c.props.add(c.mapProperties(p, true))
				}
				c.opts.Reduce(&c.props.values[propIndex], c.mapProperties(b, false))
			}
		}

		p.parent = id
		next = append(next, record{
			x:         float32(wx / float64(numPoints)),
			y:         float32(wy / float64(numPoints)),
			zoom:      unprocessed,
			id:        id,
			parent:    noParent,
			numPoints: numPoints,
			propIndex: propIndex,
		})
		formed++
	}
	return next, formed
}

// mapProperties returns the cluster properties a record contributes to a merge.
// For a cluster that is its aggregated entry, cloned when it seeds a new cluster,
// for a point it is Map applied to the input properties.
func (c *Cluster[P, C]) mapProperties(r *record, seed bool) C {
	if r.isCluster() {
		props, _ := c.props.get(r.propIndex)
		if seed {
			return c.cloneProperties(props)
		}
		return props
	}
	return c.opts.Map(c.points[r.id].Properties)
}

func (c *Cluster[P, C]) cloneProperties(props C) C {
	if c.opts.Clone != nil {
		return c.opts.Clone(props)
	}
	return props
}
