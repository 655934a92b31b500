package cluster

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned by New when Options can't describe a valid hierarchy.
	ErrInvalidConfig = errors.New("invalid cluster configuration")

	// ErrUnknownCluster is returned by every query that takes a cluster id
	// when no cluster with that id exists.
	ErrUnknownCluster = errors.New("no cluster with the specified id")

	// ErrAlreadyLoaded is returned when Load or ReadSnapshot is called on a
	// Cluster that already holds a hierarchy. A built hierarchy is immutable.
	ErrAlreadyLoaded = errors.New("cluster already loaded")

	// ErrInvalidZoom is returned by GetClusters for a zoom that is not a number.
	ErrInvalidZoom = errors.New("zoom is not a number")

	// ErrTooManyPoints is returned by Load when cluster ids for the point set
	// would not fit in an int.
	ErrTooManyPoints = errors.New("too many points")

	// ErrInvalidSnapshot is returned when a snapshot stream is malformed.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// ConfigError describes a single rejected Options field.
//
// errors.Is(err, ErrInvalidConfig) reports true for every ConfigError.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// UnknownClusterError carries the id a query could not resolve.
//
// errors.Is(err, ErrUnknownCluster) reports true for every UnknownClusterError.
type UnknownClusterError struct {
	ID int
}

func (e *UnknownClusterError) Error() string {
	return fmt.Sprintf("%s: %d", ErrUnknownCluster, e.ID)
}

func (e *UnknownClusterError) Unwrap() error { return ErrUnknownCluster }

func unknownCluster(id int) error {
	return &UnknownClusterError{ID: id}
}
