package collision

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/shape"
)

func at(x, y, z float64) Pose {
	return Pose{Position: mgl64.Vec3{x, y, z}, Orientation: mgl64.QuatIdent()}
}

func mustSphere(t *testing.T, r float64) *shape.Sphere {
	t.Helper()
	s, err := shape.NewSphere(r)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func mustBox(t *testing.T, x, y, z float64) *shape.Box {
	t.Helper()
	b, err := shape.NewBox(mgl64.Vec3{x, y, z})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func checkContact(t *testing.T, c Contact) {
	t.Helper()
	if math.Abs(c.Normal.Len()-1) > 1e-6 {
		t.Errorf("normal not unit length: %v", c.Normal)
	}
	if got := c.PointA.Sub(c.PointB).Dot(c.Normal); math.Abs(got-c.Penetration) > 1e-9 {
		t.Errorf("witness points disagree with depth: %f vs %f", got, c.Penetration)
	}
}

func TestMPRSpheres(t *testing.T) {
	a := mustSphere(t, 1)
	b := mustSphere(t, 1)

	tests := []struct {
		name   string
		poseB  Pose
		hit    bool
		depth  float64
		normal mgl64.Vec3
	}{
		{"apart", at(3, 0, 0), false, 0, mgl64.Vec3{}},
		{"shallow x", at(1.9, 0, 0), true, 0.1, mgl64.Vec3{1, 0, 0}},
		{"shallow -y", at(0, -1.5, 0), true, 0.5, mgl64.Vec3{0, -1, 0}},
		{"diagonal", at(1, 1, 0), true, 2 - math.Sqrt2, mgl64.Vec3{1, 1, 0}.Normalize()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := MPR(a, b, at(0, 0, 0), tt.poseB)
			if ok != tt.hit {
				t.Fatalf("MPR hit = %v, want %v", ok, tt.hit)
			}
			if !ok {
				return
			}
			checkContact(t, c)
			if math.Abs(c.Penetration-tt.depth) > 1e-4 {
				t.Errorf("depth %f, want %f", c.Penetration, tt.depth)
			}
			if c.Normal.Dot(tt.normal) < 0.999 {
				t.Errorf("normal %v, want %v", c.Normal, tt.normal)
			}
		})
	}
}

func TestMPRCoincidentCenters(t *testing.T) {
	a := mustBox(t, 1, 1, 1)
	b := mustBox(t, 1, 1, 1)

	c, ok := MPREPA(a, b, at(0, 0, 0), at(0, 0, 0), 0.1)
	if !ok {
		t.Fatal("coincident boxes must overlap")
	}
	checkContact(t, c)
	if math.Abs(c.Penetration-1) > 1e-3 {
		t.Errorf("expected depth 1 for coincident unit boxes, got %f", c.Penetration)
	}
}

func TestMPRBoxes(t *testing.T) {
	ground := mustBox(t, 10, 1, 10)
	box := mustBox(t, 1, 1, 1)

	c, ok := MPREPA(ground, box, at(0, -0.5, 0), at(0.3, 0.45, -0.2), 0.1)
	if !ok {
		t.Fatal("expected contact")
	}
	checkContact(t, c)
	if c.Normal.Dot(mgl64.Vec3{0, 1, 0}) < 0.999 {
		t.Errorf("expected +y normal from ground to box, got %v", c.Normal)
	}
	if math.Abs(c.Penetration-0.05) > 1e-4 {
		t.Errorf("expected depth 0.05, got %f", c.Penetration)
	}

	if _, ok := MPR(ground, box, at(0, -0.5, 0), at(0, 0.6, 0)); ok {
		t.Error("separated boxes reported contact")
	}
}

func TestEPADeepPenetration(t *testing.T) {
	ground := mustBox(t, 10, 1, 10)
	box := mustBox(t, 1, 1, 1)

	c, ok := EPA(ground, box, at(0, -0.5, 0), at(2, 0.1, 1))
	if !ok {
		t.Fatal("expected EPA contact")
	}
	checkContact(t, c)
	if c.Normal.Dot(mgl64.Vec3{0, 1, 0}) < 0.999 {
		t.Errorf("expected +y normal, got %v", c.Normal)
	}
	if math.Abs(c.Penetration-0.4) > 1e-4 {
		t.Errorf("expected depth 0.4, got %f", c.Penetration)
	}
}

func TestCollideManifold(t *testing.T) {
	ground := mustBox(t, 10, 1, 10)
	box := mustBox(t, 1, 1, 1)

	var contacts []Contact
	ok, _ := Collide(ground, box, at(0, -0.5, 0), at(0, 0.49, 0), DefaultSettings(), func(c Contact) {
		contacts = append(contacts, c)
	})
	if !ok {
		t.Fatal("expected contact")
	}

	corners := 0
	for _, c := range contacts {
		checkContact(t, c)
		if math.Abs(math.Abs(c.PointB[0])-0.5) < 1e-6 && math.Abs(math.Abs(c.PointB[2])-0.5) < 1e-6 {
			corners++
		}
	}
	if corners < 4 {
		t.Errorf("expected the four bottom corners among %d contacts, got %d", len(contacts), corners)
	}
}

func TestRayCastSphere(t *testing.T) {
	s := mustSphere(t, 1)

	frac, n, ok := RayCast(s, at(0, 0, 0), mgl64.Vec3{-5, 0, 0}, mgl64.Vec3{10, 0, 0})
	if !ok {
		t.Fatal("expected hit")
	}
	if math.Abs(frac-0.4) > 1e-4 {
		t.Errorf("fraction %f, want 0.4", frac)
	}
	if n.Dot(mgl64.Vec3{-1, 0, 0}) < 0.999 {
		t.Errorf("normal %v, want -x", n)
	}

	if _, _, ok := RayCast(s, at(0, 0, 0), mgl64.Vec3{-5, 2, 0}, mgl64.Vec3{10, 0, 0}); ok {
		t.Error("expected miss above sphere")
	}
	if _, _, ok := RayCast(s, at(0, 0, 0), mgl64.Vec3{-5, 0, 0}, mgl64.Vec3{3, 0, 0}); ok {
		t.Error("expected miss for short segment")
	}
}

func TestRayCastRotatedBox(t *testing.T) {
	b := mustBox(t, 2, 2, 2)
	pose := Pose{
		Position:    mgl64.Vec3{0, 0, 0},
		Orientation: mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{0, 1, 0}),
	}

	frac, n, ok := RayCast(b, pose, mgl64.Vec3{-5, 0, 0}, mgl64.Vec3{10, 0, 0})
	if !ok {
		t.Fatal("expected hit")
	}
	want := (5 - math.Sqrt2) / 10
	if math.Abs(frac-want) > 1e-4 {
		t.Errorf("fraction %f, want %f", frac, want)
	}
	if n.Dot(mgl64.Vec3{-1, 0, 0}) < 0.5 {
		t.Errorf("normal %v should face the ray", n)
	}
}

func collect(t *testing.T, a, b shape.SupportMapper, poseA, poseB Pose) []Contact {
	t.Helper()
	var contacts []Contact
	ok, _ := Collide(a, b, poseA, poseB, DefaultSettings(), func(c Contact) {
		contacts = append(contacts, c)
	})
	if !ok {
		t.Fatal("expected contact")
	}
	for _, c := range contacts {
		checkContact(t, c)
	}
	return contacts
}

func TestCollideStackedBoxesKeepsCorners(t *testing.T) {
	lower := mustBox(t, 1, 1, 1)
	upper := mustBox(t, 1, 1, 1)

	// Nearly coincident faces: edges almost overlap.
	poses := []Pose{
		at(1e-4, 1.499, -1e-4),
		{Position: mgl64.Vec3{-2e-4, 1.4992, 1e-4}, Orientation: mgl64.QuatRotate(2e-4, mgl64.Vec3{0, 1, 0})},
		{Position: mgl64.Vec3{3e-4, 1.4988, 0}, Orientation: mgl64.QuatRotate(-3e-4, mgl64.Vec3{0, 1, 0})},
	}

	var first []Contact
	for i, pose := range poses {
		contacts := collect(t, lower, upper, at(0, 0.5, 0), pose)
		if len(contacts) != 4 {
			t.Fatalf("pose %d: expected 4 face contacts, got %d", i, len(contacts))
		}
		for _, c := range contacts {
			if math.Abs(math.Abs(c.PointB.X())-0.5) > 2e-3 || math.Abs(math.Abs(c.PointB.Z())-0.5) > 2e-3 {
				t.Errorf("pose %d: contact %v is not at a corner", i, c.PointB)
			}
			if c.Penetration < 0 || c.Penetration > 2e-3 {
				t.Errorf("pose %d: penetration %f", i, c.Penetration)
			}
		}
		if i == 0 {
			first = contacts
			continue
		}
		// Each corner stays within the cache matching distance of a
		// corner reported for the first pose.
		for _, c := range contacts {
			near := false
			for _, f := range first {
				if c.PointA.Sub(f.PointA).Len() < DefaultSettings().BreakThreshold {
					near = true
				}
			}
			if !near {
				t.Errorf("pose %d: contact %v moved away from every earlier corner", i, c.PointA)
			}
		}
	}
}

func TestCollideRotatedFaceReducesToFour(t *testing.T) {
	lower := mustBox(t, 1, 1, 1)
	upper := mustBox(t, 1, 1, 1)
	pose := Pose{Position: mgl64.Vec3{0, 0.99, 0}, Orientation: mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{0, 1, 0})}

	contacts := collect(t, lower, upper, at(0, 0, 0), pose)
	if len(contacts) != 4 {
		t.Fatalf("expected the octagon overlap reduced to 4 points, got %d", len(contacts))
	}
	for _, c := range contacts {
		if math.Abs(c.Penetration-0.01) > 1e-3 {
			t.Errorf("penetration %f, want 0.01", c.Penetration)
		}
		if math.Abs(c.PointA.X()) > 0.51 || math.Abs(c.PointA.Z()) > 0.51 {
			t.Errorf("contact %v outside the lower face", c.PointA)
		}
	}
}

func TestCollideSphereOnBoxSinglePoint(t *testing.T) {
	ground := mustBox(t, 10, 1, 10)
	ball := mustSphere(t, 0.5)

	contacts := collect(t, ground, ball, at(0, -0.5, 0), at(0.2, 0.49, -0.1))
	if len(contacts) != 1 {
		t.Fatalf("a curved surface touches in one point, got %d", len(contacts))
	}
	if math.Abs(contacts[0].Penetration-0.01) > 1e-4 {
		t.Errorf("penetration %f, want 0.01", contacts[0].Penetration)
	}
}

func TestReduceManifold(t *testing.T) {
	var points []Contact
	for i := 0; i < 8; i++ {
		a := 2 * math.Pi * float64(i) / 8
		p := mgl64.Vec3{math.Cos(a), 0, math.Sin(a)}
		points = append(points, Contact{PointA: p, PointB: p, Normal: mgl64.Vec3{0, 1, 0}, Penetration: 0.01})
	}
	points[5].Penetration = 0.02

	reduced := reduceManifold(points)
	if len(reduced) != 4 {
		t.Fatalf("expected 4 points, got %d", len(reduced))
	}
	if reduced[0].Penetration != 0.02 {
		t.Errorf("deepest point not kept first: %v", reduced[0])
	}
	// The four kept points of a regular octagon span at least a square.
	var hull float64
	p := reduced
	hull += p[1].PointA.Sub(p[0].PointA).Cross(p[2].PointA.Sub(p[0].PointA)).Len() / 2
	if hull < 0.9 {
		t.Errorf("kept points span too little area: %f", hull)
	}
}

func TestMPREPANeedsVolume(t *testing.T) {
	mesh, err := shape.NewTriangleMesh([]mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 0, 1}}, []uint32{0, 1, 2})
	if err != nil {
		t.Fatal(err)
	}
	thinA, err := shape.NewTriangle(mesh, 0)
	if err != nil {
		t.Fatal(err)
	}
	thinB, err := shape.NewTriangle(mesh, 0)
	if err != nil {
		t.Fatal(err)
	}
	poseB := at(0.2, 0, 0.1)
	if _, ok := MPREPA(thinA, thinB, at(0, 0, 0), poseB, 0.1); ok {
		t.Error("coplanar thin triangles reported as touching")
	}

	fatA, err := shape.NewFatTriangle(mesh, 0, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	fatB, err := shape.NewFatTriangle(mesh, 0, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	c, ok := MPREPA(fatA, fatB, at(0, 0, 0), poseB, 0.1)
	if !ok {
		t.Fatal("overlapping fat triangles must collide")
	}
	checkContact(t, c)
	if c.Penetration <= 0 {
		t.Errorf("expected positive depth, got %f", c.Penetration)
	}
}
