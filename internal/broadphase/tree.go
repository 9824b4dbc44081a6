package broadphase

import (
	"errors"
	"fmt"

	"github.com/san-kum/rigid/internal/geom"
	"github.com/san-kum/rigid/internal/handle"
	"github.com/san-kum/rigid/internal/parallel"
)

const nullNode = int32(-1)

// ErrInvalidTree is returned by Validate when a structural invariant fails.
var ErrInvalidTree = errors.New("broadphase: tree invariant violated")

type treeNode struct {
	box            geom.AABB
	parent         int32
	child1, child2 int32
	height         int32
	proxy          ProxyID
}

func (n *treeNode) isLeaf() bool { return n.child1 == nullNode }

type proxyEntry struct {
	proxy  Proxy
	node   int32
	active bool
}

// DynamicTree is an incrementally balanced AABB tree. Leaves store fat
// boxes: the proxy box grown by Margin and swept along its velocity, so
// small motions do not restructure the tree.
type DynamicTree struct {
	Margin         float64
	VelocityFactor float64

	nodes    []treeNode
	root     int32
	freeList int32

	proxies handle.Pool[proxyEntry]
	lock    parallel.ReaderWriterLock
	dt      float64

	escaped []bool
	pairBuf [][]Pair
}

func NewDynamicTree() *DynamicTree {
	return &DynamicTree{
		Margin:         0.05,
		VelocityFactor: 2,
		root:           nullNode,
		freeList:       nullNode,
		dt:             1.0 / 60.0,
	}
}

// Lock exposes the tree's reader/writer lock to callers that read proxies
// while the tree may be refitted.
func (t *DynamicTree) Lock() *parallel.ReaderWriterLock { return &t.lock }

func (t *DynamicTree) ProxyCount() int { return t.proxies.Len() }

func (t *DynamicTree) Proxy(id ProxyID) (Proxy, bool) {
	e, ok := t.proxies.Get(id)
	if !ok {
		return nil, false
	}
	return e.proxy, true
}

func (t *DynamicTree) IsActive(id ProxyID) bool {
	e, ok := t.proxies.Get(id)
	return ok && e.active
}

// FatBox returns the box stored in the tree for a proxy.
func (t *DynamicTree) FatBox(id ProxyID) (geom.AABB, bool) {
	e, ok := t.proxies.Get(id)
	if !ok {
		return geom.AABB{}, false
	}
	return t.nodes[e.node].box, true
}

// Height returns the height of the tree, 0 for a single leaf.
func (t *DynamicTree) Height() int {
	if t.root == nullNode {
		return 0
	}
	return int(t.nodes[t.root].height)
}

func (t *DynamicTree) fatBox(p Proxy) geom.AABB {
	return p.WorldBoundingBox().Expand(t.Margin).Sweep(p.Velocity().Mul(t.dt * t.VelocityFactor))
}

// AddProxy inserts p. Only active proxies move and query for pairs.
func (t *DynamicTree) AddProxy(p Proxy, active bool) ProxyID {
	t.lock.EnterWriteLock()
	defer t.lock.ExitWriteLock()

	id := t.proxies.Insert(proxyEntry{proxy: p, active: active})
	leaf := t.allocate()
	t.nodes[leaf].box = t.fatBox(p)
	t.nodes[leaf].proxy = id
	t.insertLeaf(leaf)

	e, _ := t.proxies.Get(id)
	e.node = leaf
	return id
}

// RemoveProxy deletes a proxy. Unknown IDs are ignored.
func (t *DynamicTree) RemoveProxy(id ProxyID) bool {
	t.lock.EnterWriteLock()
	defer t.lock.ExitWriteLock()

	e, ok := t.proxies.Get(id)
	if !ok {
		return false
	}
	t.removeLeaf(e.node)
	t.free(e.node)
	t.proxies.Remove(id)
	return true
}

func (t *DynamicTree) SetActive(id ProxyID, active bool) {
	if e, ok := t.proxies.Get(id); ok {
		e.active = active
	}
}

// UpdateProxy refits a single proxy immediately, for example after its
// owner was teleported.
func (t *DynamicTree) UpdateProxy(id ProxyID) {
	t.lock.EnterWriteLock()
	defer t.lock.ExitWriteLock()

	e, ok := t.proxies.Get(id)
	if !ok {
		return
	}
	t.reinsert(e)
}

func (t *DynamicTree) reinsert(e *proxyEntry) {
	t.removeLeaf(e.node)
	t.nodes[e.node].box = t.fatBox(e.proxy)
	t.insertLeaf(e.node)
}

// Update refits every active proxy. Boxes are checked in parallel; proxies
// that escaped their fat box are reinserted serially in slot order.
func (t *DynamicTree) Update(pool *parallel.ThreadPool, dt float64, minBatch int) int {
	t.dt = dt

	n := t.proxies.Cap()
	if cap(t.escaped) < n {
		t.escaped = make([]bool, n)
	}
	t.escaped = t.escaped[:n]

	pool.ParallelFor(n, minBatch, func(start, end int) {
		for i := start; i < end; i++ {
			_, e, ok := t.proxies.At(i)
			if !ok || !e.active {
				t.escaped[i] = false
				continue
			}
			t.escaped[i] = !t.nodes[e.node].box.Contains(e.proxy.WorldBoundingBox())
		}
	})

	moved := 0
	t.lock.EnterWriteLock()
	for i := 0; i < n; i++ {
		if !t.escaped[i] {
			continue
		}
		_, e, _ := t.proxies.At(i)
		t.reinsert(e)
		moved++
	}
	t.lock.ExitWriteLock()
	return moved
}

func (t *DynamicTree) allocate() int32 {
	if t.freeList != nullNode {
		idx := t.freeList
		t.freeList = t.nodes[idx].parent
		t.nodes[idx] = treeNode{parent: nullNode, child1: nullNode, child2: nullNode}
		return idx
	}
	t.nodes = append(t.nodes, treeNode{parent: nullNode, child1: nullNode, child2: nullNode})
	return int32(len(t.nodes) - 1)
}

func (t *DynamicTree) free(idx int32) {
	t.nodes[idx] = treeNode{parent: t.freeList, child1: nullNode, child2: nullNode, height: -1}
	t.freeList = idx
}

func (t *DynamicTree) insertLeaf(leaf int32) {
	if t.root == nullNode {
		t.root = leaf
		t.nodes[leaf].parent = nullNode
		return
	}

	leafBox := t.nodes[leaf].box
	index := t.root
	for !t.nodes[index].isLeaf() {
		node := &t.nodes[index]
		child1, child2 := node.child1, node.child2

		area := node.box.SurfaceArea()
		combinedArea := node.box.Union(leafBox).SurfaceArea()

		// Cost of creating a new parent for this node and the leaf.
		cost := 2 * combinedArea
		// Minimum cost of pushing the leaf further down.
		inheritance := 2 * (combinedArea - area)

		cost1 := t.descendCost(child1, leafBox) + inheritance
		cost2 := t.descendCost(child2, leafBox) + inheritance

		if cost < cost1 && cost < cost2 {
			break
		}
		if cost1 < cost2 {
			index = child1
		} else {
			index = child2
		}
	}

	sibling := index
	oldParent := t.nodes[sibling].parent
	newParent := t.allocate()

	t.nodes[newParent].parent = oldParent
	t.nodes[newParent].box = leafBox.Union(t.nodes[sibling].box)
	t.nodes[newParent].height = t.nodes[sibling].height + 1
	t.nodes[newParent].child1 = sibling
	t.nodes[newParent].child2 = leaf
	t.nodes[sibling].parent = newParent
	t.nodes[leaf].parent = newParent

	if oldParent != nullNode {
		if t.nodes[oldParent].child1 == sibling {
			t.nodes[oldParent].child1 = newParent
		} else {
			t.nodes[oldParent].child2 = newParent
		}
	} else {
		t.root = newParent
	}

	t.refit(t.nodes[leaf].parent)
}

func (t *DynamicTree) descendCost(child int32, leafBox geom.AABB) float64 {
	c := &t.nodes[child]
	union := leafBox.Union(c.box).SurfaceArea()
	if c.isLeaf() {
		return union
	}
	return union - c.box.SurfaceArea()
}

func (t *DynamicTree) removeLeaf(leaf int32) {
	if leaf == t.root {
		t.root = nullNode
		return
	}

	parent := t.nodes[leaf].parent
	grandParent := t.nodes[parent].parent
	sibling := t.nodes[parent].child1
	if sibling == leaf {
		sibling = t.nodes[parent].child2
	}

	if grandParent != nullNode {
		if t.nodes[grandParent].child1 == parent {
			t.nodes[grandParent].child1 = sibling
		} else {
			t.nodes[grandParent].child2 = sibling
		}
		t.nodes[sibling].parent = grandParent
		t.free(parent)
		t.refit(grandParent)
	} else {
		t.root = sibling
		t.nodes[sibling].parent = nullNode
		t.free(parent)
	}
	t.nodes[leaf].parent = nullNode
}

// refit walks from index to the root, rebalancing and fixing boxes and
// heights.
func (t *DynamicTree) refit(index int32) {
	for index != nullNode {
		index = t.balance(index)

		n := &t.nodes[index]
		c1, c2 := &t.nodes[n.child1], &t.nodes[n.child2]
		n.height = 1 + max(c1.height, c2.height)
		n.box = c1.box.Union(c2.box)

		index = n.parent
	}
}

// balance performs a left or right rotation if node a is imbalanced and
// returns the new subtree root.
func (t *DynamicTree) balance(ia int32) int32 {
	a := &t.nodes[ia]
	if a.isLeaf() || a.height < 2 {
		return ia
	}

	ib, ic := a.child1, a.child2
	b, c := &t.nodes[ib], &t.nodes[ic]
	diff := c.height - b.height

	// Rotate c up.
	if diff > 1 {
		iF, iG := c.child1, c.child2
		f, g := &t.nodes[iF], &t.nodes[iG]

		c.child1 = ia
		c.parent = a.parent
		a.parent = ic
		t.replaceChild(c.parent, ia, ic)

		if f.height > g.height {
			c.child2 = iF
			a.child2 = iG
			g.parent = ia
			a.box = b.box.Union(g.box)
			c.box = a.box.Union(f.box)
			a.height = 1 + max(b.height, g.height)
			c.height = 1 + max(a.height, f.height)
		} else {
			c.child2 = iG
			a.child2 = iF
			f.parent = ia
			a.box = b.box.Union(f.box)
			c.box = a.box.Union(g.box)
			a.height = 1 + max(b.height, f.height)
			c.height = 1 + max(a.height, g.height)
		}
		return ic
	}

	// Rotate b up.
	if diff < -1 {
		iD, iE := b.child1, b.child2
		d, e := &t.nodes[iD], &t.nodes[iE]

		b.child1 = ia
		b.parent = a.parent
		a.parent = ib
		t.replaceChild(b.parent, ia, ib)

		if d.height > e.height {
			b.child2 = iD
			a.child1 = iE
			e.parent = ia
			a.box = c.box.Union(e.box)
			b.box = a.box.Union(d.box)
			a.height = 1 + max(c.height, e.height)
			b.height = 1 + max(a.height, d.height)
		} else {
			b.child2 = iE
			a.child1 = iD
			d.parent = ia
			a.box = c.box.Union(d.box)
			b.box = a.box.Union(e.box)
			a.height = 1 + max(c.height, d.height)
			b.height = 1 + max(a.height, e.height)
		}
		return ib
	}
	return ia
}

func (t *DynamicTree) replaceChild(parent, old, repl int32) {
	if parent == nullNode {
		t.root = repl
		return
	}
	if t.nodes[parent].child1 == old {
		t.nodes[parent].child1 = repl
	} else {
		t.nodes[parent].child2 = repl
	}
}

// Validate checks parent links, heights and box containment.
func (t *DynamicTree) Validate() error {
	if t.root == nullNode {
		return nil
	}
	if t.nodes[t.root].parent != nullNode {
		return fmt.Errorf("%w: root has a parent", ErrInvalidTree)
	}
	leaves := 0
	if err := t.validate(t.root, &leaves); err != nil {
		return err
	}
	if leaves != t.proxies.Len() {
		return fmt.Errorf("%w: %d leaves for %d proxies", ErrInvalidTree, leaves, t.proxies.Len())
	}
	return nil
}

func (t *DynamicTree) validate(idx int32, leaves *int) error {
	n := &t.nodes[idx]
	if n.isLeaf() {
		*leaves++
		if n.height != 0 {
			return fmt.Errorf("%w: leaf %d has height %d", ErrInvalidTree, idx, n.height)
		}
		e, ok := t.proxies.Get(n.proxy)
		if !ok || e.node != idx {
			return fmt.Errorf("%w: leaf %d does not match its proxy", ErrInvalidTree, idx)
		}
		return nil
	}

	for _, c := range [2]int32{n.child1, n.child2} {
		if t.nodes[c].parent != idx {
			return fmt.Errorf("%w: node %d has wrong parent", ErrInvalidTree, c)
		}
		if !n.box.Contains(t.nodes[c].box) {
			return fmt.Errorf("%w: node %d box does not contain child %d", ErrInvalidTree, idx, c)
		}
		if err := t.validate(c, leaves); err != nil {
			return err
		}
	}
	if h := 1 + max(t.nodes[n.child1].height, t.nodes[n.child2].height); h != n.height {
		return fmt.Errorf("%w: node %d height %d, want %d", ErrInvalidTree, idx, n.height, h)
	}
	return nil
}
