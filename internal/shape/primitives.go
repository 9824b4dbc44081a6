package shape

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/geom"
)

// Box is a cuboid centered on the local origin.
type Box struct {
	half mgl64.Vec3
}

func NewBox(size mgl64.Vec3) (*Box, error) {
	if size[0] <= 0 || size[1] <= 0 || size[2] <= 0 {
		return nil, fmt.Errorf("%w: box size %v", ErrInvalidDimensions, size)
	}
	return &Box{half: size.Mul(0.5)}, nil
}

func (b *Box) Size() mgl64.Vec3 { return b.half.Mul(2) }

func (b *Box) SupportMap(d mgl64.Vec3) mgl64.Vec3 {
	var r mgl64.Vec3
	for i := 0; i < 3; i++ {
		if d[i] < 0 {
			r[i] = -b.half[i]
		} else {
			r[i] = b.half[i]
		}
	}
	return r
}

func (b *Box) Center() mgl64.Vec3 { return mgl64.Vec3{} }

func (b *Box) BoundingBox(orientation mgl64.Quat, position mgl64.Vec3) geom.AABB {
	local := geom.AABB{Min: b.half.Mul(-1), Max: b.half}
	return local.Transform(orientation, position)
}

func (b *Box) MassInertia() (mgl64.Mat3, mgl64.Vec3, float64) {
	s := b.half.Mul(2)
	mass := s[0] * s[1] * s[2]
	k := mass / 12
	inertia := mgl64.Diag3(mgl64.Vec3{
		k * (s[1]*s[1] + s[2]*s[2]),
		k * (s[0]*s[0] + s[2]*s[2]),
		k * (s[0]*s[0] + s[1]*s[1]),
	})
	return inertia, mgl64.Vec3{}, mass
}

// Sphere is a ball centered on the local origin.
type Sphere struct {
	radius float64
}

func NewSphere(radius float64) (*Sphere, error) {
	if radius <= 0 {
		return nil, fmt.Errorf("%w: radius %f", ErrInvalidDimensions, radius)
	}
	return &Sphere{radius: radius}, nil
}

func (s *Sphere) Radius() float64 { return s.radius }

func (s *Sphere) SupportMap(d mgl64.Vec3) mgl64.Vec3 {
	l := d.Len()
	if l < 1e-12 {
		return mgl64.Vec3{s.radius, 0, 0}
	}
	return d.Mul(s.radius / l)
}

func (s *Sphere) Center() mgl64.Vec3 { return mgl64.Vec3{} }

func (s *Sphere) BoundingBox(_ mgl64.Quat, position mgl64.Vec3) geom.AABB {
	r := mgl64.Vec3{s.radius, s.radius, s.radius}
	return geom.AABB{Min: position.Sub(r), Max: position.Add(r)}
}

func (s *Sphere) MassInertia() (mgl64.Mat3, mgl64.Vec3, float64) {
	r := s.radius
	mass := 4.0 / 3.0 * math.Pi * r * r * r
	i := 0.4 * mass * r * r
	return mgl64.Diag3(mgl64.Vec3{i, i, i}), mgl64.Vec3{}, mass
}
