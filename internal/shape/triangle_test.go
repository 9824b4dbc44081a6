package shape

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func flatMesh(t *testing.T) *TriangleMesh {
	t.Helper()
	m, err := NewTriangleMesh(
		[]mgl64.Vec3{{0, 0, 0}, {0, 0, 1}, {1, 0, 0}},
		[]uint32{0, 1, 2},
	)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestTriangleMeshNormals(t *testing.T) {
	m := flatMesh(t)
	if n := m.Triangles[0].Normal; !n.ApproxEqual(mgl64.Vec3{0, 1, 0}) {
		t.Errorf("expected +y normal, got %v", n)
	}

	if _, err := NewTriangleMesh([]mgl64.Vec3{{0, 0, 0}}, []uint32{0, 1, 2}); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	if _, err := NewTriangleMesh(nil, []uint32{0, 1}); !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange for partial triangle, got %v", err)
	}
}

func TestFatTriangleThickness(t *testing.T) {
	m := flatMesh(t)

	if _, err := NewFatTriangle(m, 0, 0.001); !errors.Is(err, ErrThicknessTooSmall) {
		t.Errorf("expected ErrThicknessTooSmall, got %v", err)
	}

	f, err := NewFatTriangle(m, 0, DefaultThickness)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		thickness float64
		wantErr   bool
		want      float64
	}{
		{0.5, false, 0.5},
		{0.009, true, 0.5},
		{-1, true, 0.5},
		{math.NaN(), true, 0.5},
		{MinimumThickness, false, MinimumThickness},
	}
	for _, tt := range tests {
		err := f.SetThickness(tt.thickness)
		if (err != nil) != tt.wantErr {
			t.Errorf("SetThickness(%f) err = %v, wantErr %v", tt.thickness, err, tt.wantErr)
		}
		if f.Thickness() != tt.want {
			t.Errorf("after SetThickness(%f): thickness %f, want %f", tt.thickness, f.Thickness(), tt.want)
		}
	}
}

func TestFatTriangleSupport(t *testing.T) {
	m := flatMesh(t)
	f, err := NewFatTriangle(m, 0, 0.2)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		dir  mgl64.Vec3
		want mgl64.Vec3
	}{
		{"front x", mgl64.Vec3{1, 0.1, 0}, mgl64.Vec3{1, 0, 0}},
		{"back x", mgl64.Vec3{1, -0.1, 0}, mgl64.Vec3{1, -0.2, 0}},
		{"back z", mgl64.Vec3{0, -1, 1}, mgl64.Vec3{0, -0.2, 1}},
		{"tie keeps first corner", mgl64.Vec3{0, 1, 0}, mgl64.Vec3{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.SupportMap(tt.dir); !got.ApproxEqual(tt.want) {
				t.Errorf("SupportMap(%v) = %v, want %v", tt.dir, got, tt.want)
			}
		})
	}

	box := f.BoundingBox(mgl64.QuatIdent(), mgl64.Vec3{})
	if box.Min[1] != -0.2 || box.Max[1] != 0 || box.Max[0] != 1 || box.Max[2] != 1 {
		t.Errorf("unexpected bounding box %v", box)
	}
}

func TestPrimitiveMass(t *testing.T) {
	b, err := NewBox(mgl64.Vec3{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	inertia, _, mass := b.MassInertia()
	if math.Abs(mass-6) > 1e-12 {
		t.Errorf("box mass %f, want 6", mass)
	}
	if math.Abs(inertia.At(0, 0)-6.0/12*(4+9)) > 1e-12 {
		t.Errorf("box Ixx %f", inertia.At(0, 0))
	}

	if _, err := NewBox(mgl64.Vec3{1, 0, 1}); !errors.Is(err, ErrInvalidDimensions) {
		t.Errorf("expected ErrInvalidDimensions, got %v", err)
	}

	s, err := NewSphere(2)
	if err != nil {
		t.Fatal(err)
	}
	if got := s.SupportMap(mgl64.Vec3{0, 0, -5}); !got.ApproxEqual(mgl64.Vec3{0, 0, -2}) {
		t.Errorf("sphere support %v", got)
	}
	if got := s.SupportMap(mgl64.Vec3{}); got.Len() != 2 {
		t.Errorf("zero direction support should stay on the surface, got %v", got)
	}
}
