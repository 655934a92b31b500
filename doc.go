// MIT License
//
// Copyright (c) 2016 MadAppGang

// Package cluster is a fast library for hierarchical point clustering.
//
// The cluster uses hierarchical greedy clustering approach:
// for every zoom level from MaxZoom down to MinZoom, each point not yet visited
// absorbs all unvisited neighbours within the zoom radius into a new cluster,
// and the result becomes the input for the next, coarser zoom.
//
// The same approach used by Dave Leaver with his fantastic Leaflet.markercluster plugin
// and by MapBox's supercluster JS library: https://www.mapbox.com/blog/supercluster/
//
// So this approach is extremely fast, the only drawback is that all clustered points are stored in memory.
// Coordinates are plain Cartesian values, no projection is applied.
//
// Very easy to use:
//
//	//1.Create new cluster
//	c, err := cluster.New(cluster.DefaultOptions[Place, struct{}]())
//
//	//2.Build index
//	err = c.Load(points)
//
//	//3.Get clusters and points inside a box for a zoom level
//	features, err := c.GetClusters(cluster.Bounds{MinX: 0, MinY: 0, MaxX: 512, MaxY: 512}, 3)
//
//	//4.Drill down
//	children, err := c.GetChildren(features[0].Cluster.ID)
//	leaves, err := c.GetLeaves(features[0].Cluster.ID, cluster.DefaultLeavesLimit, 0)
//	zoom, err := c.GetClusterExpansionZoom(features[0].Cluster.ID)
//
// Spatial index is KD-tree https://github.com/MadAppGang/kdbush,
// any other static index can be plugged in through Options.IndexFactory.
//
// Ids of input points are their positions in the slice given to Load.
// Cluster ids start right after them: the anchor record and the zoom
// the cluster was formed at are encoded as ((anchor << 5) | (zoom + 1)) + len(points),
// which limits MaxZoom to MaxSupportedZoom.
//
// Cluster properties are aggregated with Options.Map and Options.Reduce,
// for example to sum a value over all points of a cluster.
//
// A built hierarchy is immutable and can be stored with WriteSnapshot
// and restored with ReadSnapshot.
package cluster
