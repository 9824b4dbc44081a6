// Package shape defines the convex geometry the collision pipeline works on.
// Every shape is described by a support map in its local frame; bounding
// boxes and mass properties are derived from it or cached at construction.
package shape

import (
	"errors"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/geom"
)

var (
	// ErrCapacityExceeded indicates a hull with more distinct vertices than
	// its adjacency index type can address.
	ErrCapacityExceeded = errors.New("shape: vertex capacity exceeded")

	// ErrEmptyHull indicates a hull built from no triangles.
	ErrEmptyHull = errors.New("shape: convex hull needs at least one triangle")

	// ErrThicknessTooSmall indicates a fat triangle thickness below MinimumThickness.
	ErrThicknessTooSmall = errors.New("shape: thickness below minimum")

	// ErrIndexOutOfRange indicates a mesh index that does not address a vertex or triangle.
	ErrIndexOutOfRange = errors.New("shape: index out of range")

	// ErrInvalidDimensions indicates a non-positive size parameter.
	ErrInvalidDimensions = errors.New("shape: dimensions must be positive")
)

// SupportMapper is the minimal contract of the narrow phase.
type SupportMapper interface {
	// SupportMap returns the point of the shape furthest along direction,
	// in the shape's local frame.
	SupportMap(direction mgl64.Vec3) mgl64.Vec3

	// Center returns a point strictly inside the shape.
	Center() mgl64.Vec3
}

// Shape is a support mapper that can also report its bounds and unit-density
// mass properties. Inertia is taken about the local origin.
type Shape interface {
	SupportMapper
	BoundingBox(orientation mgl64.Quat, position mgl64.Vec3) geom.AABB
	MassInertia() (inertia mgl64.Mat3, com mgl64.Vec3, mass float64)
}

// supportBounds derives a local box from six support queries.
func supportBounds(s SupportMapper) geom.AABB {
	var box geom.AABB
	for i := 0; i < 3; i++ {
		var d mgl64.Vec3
		d[i] = 1
		box.Max[i] = s.SupportMap(d)[i]
		d[i] = -1
		box.Min[i] = s.SupportMap(d)[i]
	}
	return box
}
