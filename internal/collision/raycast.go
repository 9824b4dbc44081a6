package collision

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/shape"
)

const rayCastEpsilon = 1e-10

// RayCast casts the segment origin + t*dir, t in [0, 1], against a convex
// shape by conservative advancement (van den Bergen). It returns the hit
// fraction and the outward surface normal. A segment starting inside the
// shape hits at fraction 0 with a normal opposing dir.
func RayCast(s shape.SupportMapper, pose Pose, origin, dir mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	lambda := 0.0
	x := origin
	var normal mgl64.Vec3

	v := x.Sub(Center(s, pose))
	var sx simplex

	for iter := 0; iter < MaxIterations; iter++ {
		if v.Dot(v) < rayCastEpsilon {
			if normal.Dot(normal) == 0 {
				l := dir.Len()
				if l < eps {
					return 0, mgl64.Vec3{}, true
				}
				return 0, dir.Mul(-1 / l), true
			}
			return lambda, normal.Normalize(), true
		}

		p := Support(s, pose, v)
		w := x.Sub(p)

		vw := v.Dot(w)
		if vw > 0 {
			vr := v.Dot(dir)
			if vr >= 0 {
				return 0, mgl64.Vec3{}, false
			}
			lambda -= vw / vr
			if lambda > 1 {
				return 0, mgl64.Vec3{}, false
			}
			x = origin.Add(dir.Mul(lambda))
			normal = v
		}

		sx.add(p)
		v = sx.closest(func(q mgl64.Vec3) mgl64.Vec3 { return x.Sub(q) })
	}
	return 0, mgl64.Vec3{}, false
}
