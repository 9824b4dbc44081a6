package broadphase

import (
	"cmp"
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/geom"
	"github.com/san-kum/rigid/internal/parallel"
)

type box struct {
	center, half, vel mgl64.Vec3
}

func (b *box) WorldBoundingBox() geom.AABB {
	return geom.AABB{Min: b.center.Sub(b.half), Max: b.center.Add(b.half)}
}

func (b *box) Velocity() mgl64.Vec3 { return b.vel }

// sphereProxy answers exact ray queries.
type sphereProxy struct {
	center mgl64.Vec3
	radius float64
}

func (s *sphereProxy) WorldBoundingBox() geom.AABB {
	r := mgl64.Vec3{s.radius, s.radius, s.radius}
	return geom.AABB{Min: s.center.Sub(r), Max: s.center.Add(r)}
}

func (s *sphereProxy) Velocity() mgl64.Vec3 { return mgl64.Vec3{} }

func (s *sphereProxy) RayCast(origin, dir mgl64.Vec3) (float64, mgl64.Vec3, bool) {
	m := origin.Sub(s.center)
	a := dir.Dot(dir)
	b := m.Dot(dir)
	c := m.Dot(m) - s.radius*s.radius
	disc := b*b - a*c
	if disc < 0 || a == 0 {
		return 0, mgl64.Vec3{}, false
	}
	t := (-b - math.Sqrt(disc)) / a
	if t < 0 || t > 1 {
		return 0, mgl64.Vec3{}, false
	}
	p := origin.Add(dir.Mul(t))
	return t, p.Sub(s.center).Normalize(), true
}

func randomBox(rng *rand.Rand) *box {
	return &box{
		center: mgl64.Vec3{rng.Float64() * 20, rng.Float64() * 20, rng.Float64() * 20},
		half:   mgl64.Vec3{0.2 + rng.Float64(), 0.2 + rng.Float64(), 0.2 + rng.Float64()},
	}
}

func normalize(pairs []Pair) [][2]uint64 {
	out := make([][2]uint64, 0, len(pairs))
	for _, p := range pairs {
		a, b := p.A.ID(), p.B.ID()
		if a > b {
			a, b = b, a
		}
		out = append(out, [2]uint64{a, b})
	}
	slices.SortFunc(out, func(x, y [2]uint64) int {
		if c := cmp.Compare(x[0], y[0]); c != 0 {
			return c
		}
		return cmp.Compare(x[1], y[1])
	})
	return out
}

func bruteForcePairs(t *DynamicTree, ids []ProxyID) []Pair {
	var pairs []Pair
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if !t.IsActive(ids[i]) && !t.IsActive(ids[j]) {
				continue
			}
			bi, _ := t.FatBox(ids[i])
			bj, _ := t.FatBox(ids[j])
			if bi.Overlaps(bj) {
				pairs = append(pairs, Pair{A: ids[i], B: ids[j]})
			}
		}
	}
	return pairs
}

func TestOverlappingPairsMatchBruteForce(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	pool := parallel.NewThreadPool(4, nil)
	defer pool.Stop()

	tree := NewDynamicTree()
	var ids []ProxyID
	for i := 0; i < 200; i++ {
		ids = append(ids, tree.AddProxy(randomBox(rng), i%5 != 0))
	}
	if err := tree.Validate(); err != nil {
		t.Fatal(err)
	}

	got := normalize(tree.OverlappingPairs(pool, 8, nil))
	want := normalize(bruteForcePairs(tree, ids))
	if !slices.Equal(got, want) {
		t.Fatalf("tree reported %d pairs, brute force %d", len(got), len(want))
	}

	for i := 1; i < len(got); i++ {
		if got[i] == got[i-1] {
			t.Fatalf("pair %v reported twice", got[i])
		}
	}
}

func TestOverlappingPairsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	tree := NewDynamicTree()
	for i := 0; i < 150; i++ {
		tree.AddProxy(randomBox(rng), true)
	}

	serial := parallel.NewThreadPool(1, nil)
	defer serial.Stop()
	wide := parallel.NewThreadPool(4, nil)
	defer wide.Stop()

	a := tree.OverlappingPairs(serial, 1, nil)
	b := tree.OverlappingPairs(wide, 1, nil)
	if !slices.Equal(a, b) {
		t.Fatal("pair order depends on thread count")
	}
}

func TestRemoveReAddRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	tree := NewDynamicTree()
	var ids []ProxyID
	boxes := make(map[ProxyID]*box)
	for i := 0; i < 60; i++ {
		b := randomBox(rng)
		id := tree.AddProxy(b, true)
		ids = append(ids, id)
		boxes[id] = b
	}

	query := geom.AABB{Min: mgl64.Vec3{5, 5, 5}, Max: mgl64.Vec3{12, 12, 12}}
	collect := func() []geom.AABB {
		var out []geom.AABB
		tree.Query(query, func(_ ProxyID, p Proxy) bool {
			out = append(out, p.WorldBoundingBox())
			return true
		})
		slices.SortFunc(out, func(x, y geom.AABB) int {
			for i := 0; i < 3; i++ {
				if c := cmp.Compare(x.Min[i], y.Min[i]); c != 0 {
					return c
				}
			}
			return 0
		})
		return out
	}

	before := collect()
	victim := ids[17]
	if !tree.RemoveProxy(victim) {
		t.Fatal("remove failed")
	}
	if tree.RemoveProxy(victim) {
		t.Fatal("stale handle removed twice")
	}
	if _, ok := tree.Proxy(victim); ok {
		t.Fatal("removed proxy still resolvable")
	}
	tree.AddProxy(boxes[victim], true)

	if err := tree.Validate(); err != nil {
		t.Fatal(err)
	}
	if after := collect(); !slices.Equal(before, after) {
		t.Fatalf("query changed after round trip: %d vs %d results", len(before), len(after))
	}
}

func TestUpdateReinsertsEscapedProxies(t *testing.T) {
	pool := parallel.NewThreadPool(2, nil)
	defer pool.Stop()

	tree := NewDynamicTree()
	moving := &box{center: mgl64.Vec3{0, 0, 0}, half: mgl64.Vec3{0.5, 0.5, 0.5}}
	still := &box{center: mgl64.Vec3{5, 0, 0}, half: mgl64.Vec3{0.5, 0.5, 0.5}}
	sleeping := &box{center: mgl64.Vec3{-5, 0, 0}, half: mgl64.Vec3{0.5, 0.5, 0.5}}
	id := tree.AddProxy(moving, true)
	tree.AddProxy(still, true)
	sid := tree.AddProxy(sleeping, false)

	moving.center = moving.center.Add(mgl64.Vec3{0.01, 0, 0})
	if n := tree.Update(pool, 1.0/60, 1); n != 0 {
		t.Fatalf("small move inside margin reinserted %d proxies", n)
	}

	moving.center = mgl64.Vec3{3, 0, 0}
	sleeping.center = mgl64.Vec3{-9, 0, 0}
	if n := tree.Update(pool, 1.0/60, 1); n != 1 {
		t.Fatalf("expected one reinsertion, got %d", n)
	}
	fat, _ := tree.FatBox(id)
	if !fat.Contains(moving.WorldBoundingBox()) {
		t.Error("fat box does not contain the moved proxy")
	}
	if fat, _ := tree.FatBox(sid); fat.Contains(sleeping.WorldBoundingBox()) {
		t.Error("inactive proxy was refitted")
	}
	if err := tree.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestFatBoxSweepsVelocity(t *testing.T) {
	tree := NewDynamicTree()
	b := &box{half: mgl64.Vec3{1, 1, 1}, vel: mgl64.Vec3{6, 0, 0}}
	id := tree.AddProxy(b, true)

	fat, _ := tree.FatBox(id)
	wantMax := 1 + tree.Margin + 6*tree.dt*tree.VelocityFactor
	if math.Abs(fat.Max[0]-wantMax) > 1e-12 {
		t.Errorf("fat max x %f, want %f", fat.Max[0], wantMax)
	}
	if math.Abs(fat.Min[0]-(-1-tree.Margin)) > 1e-12 {
		t.Errorf("fat min x %f, want %f", fat.Min[0], -1-tree.Margin)
	}
}

func TestRayCast(t *testing.T) {
	tree := NewDynamicTree()
	near := &sphereProxy{center: mgl64.Vec3{4, 0, 0}, radius: 1}
	far := &sphereProxy{center: mgl64.Vec3{8, 0, 0}, radius: 1}
	crate := &box{center: mgl64.Vec3{6, 0, 0}, half: mgl64.Vec3{0.5, 0.5, 0.5}}
	nearID := tree.AddProxy(near, true)
	tree.AddProxy(far, true)
	crateID := tree.AddProxy(crate, false)

	origin, dir := mgl64.Vec3{0, 0, 0}, mgl64.Vec3{10, 0, 0}

	tests := []struct {
		name   string
		pre    PreFilter
		post   PostFilter
		hit    bool
		id     ProxyID
		frac   float64
		normal mgl64.Vec3
	}{
		{
			name: "closest", hit: true, id: nearID, frac: 0.3,
			normal: mgl64.Vec3{-1, 0, 0},
		},
		{
			name: "pre filter skips own proxy",
			pre:  func(p Proxy) bool { return p != near },
			hit:  true, id: crateID, frac: (6 - 0.5 - 0.05) / 10,
			normal: mgl64.Vec3{-1, 0, 0},
		},
		{
			name: "post filter rejects everything",
			post: func(RayHit) bool { return false },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit, ok := tree.RayCast(origin, dir, tt.pre, tt.post)
			if ok != tt.hit {
				t.Fatalf("hit = %v, want %v", ok, tt.hit)
			}
			if !ok {
				return
			}
			if hit.ID != tt.id {
				t.Errorf("hit %v, want %v", hit.ID, tt.id)
			}
			if math.Abs(hit.Fraction-tt.frac) > 1e-9 {
				t.Errorf("fraction %f, want %f", hit.Fraction, tt.frac)
			}
			if hit.Normal.Dot(tt.normal) < 0.999 {
				t.Errorf("normal %v, want %v", hit.Normal, tt.normal)
			}
		})
	}

	if _, ok := tree.RayCast(origin, mgl64.Vec3{0, 10, 0}, nil, nil); ok {
		t.Error("ray pointing away reported a hit")
	}

	empty := NewDynamicTree()
	if _, ok := empty.RayCast(origin, dir, nil, nil); ok {
		t.Error("empty tree reported a hit")
	}
}

func TestValidateAfterRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 13))
	tree := NewDynamicTree()
	var live []ProxyID

	for step := 0; step < 2000; step++ {
		switch {
		case len(live) == 0 || rng.IntN(3) > 0:
			live = append(live, tree.AddProxy(randomBox(rng), rng.IntN(2) == 0))
		default:
			i := rng.IntN(len(live))
			tree.RemoveProxy(live[i])
			live = slices.Delete(live, i, i+1)
		}
	}

	if err := tree.Validate(); err != nil {
		t.Fatal(err)
	}
	if tree.ProxyCount() != len(live) {
		t.Fatalf("proxy count %d, want %d", tree.ProxyCount(), len(live))
	}
	if h := tree.Height(); h > 4*int(math.Log2(float64(len(live))+1))+2 {
		t.Errorf("tree height %d is not balanced for %d leaves", h, len(live))
	}
}

func TestValidateDetectsCorruption(t *testing.T) {
	tree := NewDynamicTree()
	tree.AddProxy(&box{half: mgl64.Vec3{1, 1, 1}}, true)
	tree.AddProxy(&box{center: mgl64.Vec3{3, 0, 0}, half: mgl64.Vec3{1, 1, 1}}, true)

	tree.nodes[tree.root].box = geom.AABB{}
	if err := tree.Validate(); !errors.Is(err, ErrInvalidTree) {
		t.Fatalf("expected ErrInvalidTree, got %v", err)
	}
}
