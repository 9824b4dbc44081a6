package broadphase

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/geom"
	"github.com/san-kum/rigid/internal/parallel"
)

// Query calls fn for every proxy whose fat box overlaps box, stopping early
// when fn returns false.
func (t *DynamicTree) Query(box geom.AABB, fn func(id ProxyID, p Proxy) bool) {
	t.lock.EnterReadLock()
	defer t.lock.ExitReadLock()

	var stack [64]int32
	t.query(stack[:0], box, func(leaf *treeNode) bool {
		e, _ := t.proxies.Get(leaf.proxy)
		return fn(leaf.proxy, e.proxy)
	})
}

func (t *DynamicTree) query(stack []int32, box geom.AABB, fn func(leaf *treeNode) bool) {
	if t.root == nullNode {
		return
	}
	stack = append(stack, t.root)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[idx]
		if !n.box.Overlaps(box) {
			continue
		}
		if n.isLeaf() {
			if !fn(n) {
				return
			}
			continue
		}
		stack = append(stack, n.child1, n.child2)
	}
}

// OverlappingPairs appends every overlapping pair to dst. Only active
// proxies search the tree. A pair of two active proxies is reported once,
// by the proxy in the lower slot; a pair with an inactive proxy is reported
// by the active one. The result order depends only on the tree contents.
func (t *DynamicTree) OverlappingPairs(pool *parallel.ThreadPool, minBatch int, dst []Pair) []Pair {
	n := t.proxies.Cap()
	if len(t.pairBuf) < n {
		t.pairBuf = append(t.pairBuf, make([][]Pair, n-len(t.pairBuf))...)
	}

	t.lock.EnterReadLock()
	pool.ParallelFor(n, minBatch, func(start, end int) {
		var stack [64]int32
		for i := start; i < end; i++ {
			buf := t.pairBuf[i][:0]

			self, e, ok := t.proxies.At(i)
			if !ok || !e.active {
				t.pairBuf[i] = buf
				continue
			}

			box := t.nodes[e.node].box
			t.query(stack[:0], box, func(leaf *treeNode) bool {
				other := leaf.proxy
				if other == self {
					return true
				}
				oe, _ := t.proxies.Get(other)
				if oe.active && other.Index() < i {
					return true
				}
				buf = append(buf, Pair{A: self, B: other})
				return true
			})
			t.pairBuf[i] = buf
		}
	})
	t.lock.ExitReadLock()

	for i := 0; i < n; i++ {
		dst = append(dst, t.pairBuf[i]...)
	}
	return dst
}

// RayCast returns the closest hit along origin + t*dir, t in [0, 1]. Proxies
// rejected by pre are skipped before testing and hits rejected by post are
// ignored. Proxies implementing RayCaster are tested exactly, others by
// their fat box.
func (t *DynamicTree) RayCast(origin, dir mgl64.Vec3, pre PreFilter, post PostFilter) (RayHit, bool) {
	t.lock.EnterReadLock()
	defer t.lock.ExitReadLock()

	var best RayHit
	found := false
	limit := 1.0

	if t.root == nullNode {
		return best, false
	}

	var storage [64]int32
	stack := append(storage[:0], t.root)
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := &t.nodes[idx]
		enter, boxNormal, ok := n.box.RayIntersect(origin, dir)
		if !ok || enter > limit {
			continue
		}
		if !n.isLeaf() {
			stack = append(stack, n.child1, n.child2)
			continue
		}

		e, _ := t.proxies.Get(n.proxy)
		if pre != nil && !pre(e.proxy) {
			continue
		}

		hit := RayHit{ID: n.proxy, Proxy: e.proxy}
		if rc, ok := e.proxy.(RayCaster); ok {
			frac, normal, ok := rc.RayCast(origin, dir)
			if !ok {
				continue
			}
			hit.Fraction, hit.Normal = frac, normal
		} else {
			hit.Fraction, hit.Normal = enter, boxNormal
		}

		if hit.Fraction > limit {
			continue
		}
		if post != nil && !post(hit) {
			continue
		}
		best, found, limit = hit, true, hit.Fraction
	}
	return best, found
}
