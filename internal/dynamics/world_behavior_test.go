package dynamics

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/rigid/internal/shape"
)

const frame = 1.0 / 60

func mustBox(size mgl64.Vec3) *shape.Box {
	b, err := shape.NewBox(size)
	Expect(err).NotTo(HaveOccurred())
	return b
}

func addGround(w *World) BodyID {
	id := w.CreateBody()
	Expect(w.SetStatic(id, true)).To(Succeed())
	Expect(w.SetPosition(id, mgl64.Vec3{0, -0.5, 0})).To(Succeed())
	_, err := w.AttachShape(id, mustBox(mgl64.Vec3{40, 1, 40}))
	Expect(err).NotTo(HaveOccurred())
	return id
}

func addBox(w *World, pos mgl64.Vec3) BodyID {
	id := w.CreateBody()
	Expect(w.SetPosition(id, pos)).To(Succeed())
	_, err := w.AttachShape(id, mustBox(mgl64.Vec3{1, 1, 1}))
	Expect(err).NotTo(HaveOccurred())
	return id
}

func run(w *World, steps int) {
	for i := 0; i < steps; i++ {
		Expect(w.Step(frame)).To(Succeed())
	}
}

func position(w *World, id BodyID) mgl64.Vec3 {
	b, ok := w.Body(id)
	Expect(ok).To(BeTrue())
	return b.Position
}

// maxPenetration is the deepest cached contact over all arbiters.
func maxPenetration(w *World) float64 {
	deepest := 0.0
	w.Arbiters().Each(func(a *Arbiter) bool {
		deepest = math.Max(deepest, a.Contact.MaxPenetration())
		return true
	})
	return deepest
}

func stateHash(w *World) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	put := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	w.Bodies(func(_ BodyID, b *RigidBody) bool {
		for i := 0; i < 3; i++ {
			put(b.Position[i])
			put(b.Velocity[i])
			put(b.AngularVelocity[i])
		}
		put(b.Orientation.W)
		for i := 0; i < 3; i++ {
			put(b.Orientation.V[i])
		}
		return true
	})
	return h.Sum64()
}

var _ = Describe("World", func() {
	var w *World

	newWorld := func(mutate func(c *Config)) *World {
		cfg := DefaultConfig()
		if mutate != nil {
			mutate(&cfg)
		}
		world, err := NewWorld(cfg)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(world.Close)
		return world
	}

	Context("a box resting on the ground", func() {
		var box BodyID

		BeforeEach(func() {
			w = newWorld(nil)
			addGround(w)
			box = addBox(w, mgl64.Vec3{0, 0.5, 0})
		})

		It("settles without sinking", func() {
			run(w, 60)
			p := position(w, box)
			Expect(p.Y()).To(BeNumerically("~", 0.5, 0.05))
			Expect(math.Abs(p.X())).To(BeNumerically("<", 0.01))
			Expect(math.Abs(p.Z())).To(BeNumerically("<", 0.01))
			Expect(w.Stats().Contacts).To(BeNumerically(">=", 3))
		})

		It("keeps warm-start impulses between steps", func() {
			run(w, 30)
			Expect(w.Arbiters().Len()).To(Equal(1))

			var a *Arbiter
			w.Arbiters().Each(func(x *Arbiter) bool {
				a = x
				return false
			})
			total := 0.0
			for _, c := range a.Contact.Contacts(nil) {
				Expect(c.NormalImpulse).To(BeNumerically(">=", 0))
				total += c.NormalImpulse
			}
			// One step of gravity on a unit mass.
			Expect(total).To(BeNumerically("~", 9.81*frame, 0.5*9.81*frame))
		})

		It("falls asleep and wakes on a force", func() {
			run(w, 180)
			b, _ := w.Body(box)
			Expect(b.IsActive()).To(BeFalse())
			Expect(w.Stats().Awake).To(Equal(0))

			Expect(w.AddForce(box, mgl64.Vec3{0, 50, 0}, b.Position)).To(Succeed())
			Expect(b.IsActive()).To(BeTrue())
			run(w, 1)
			Expect(b.Velocity.Y()).To(BeNumerically(">", 0))
		})

		It("never sleeps when deactivation is off", func() {
			w = newWorld(func(c *Config) { c.AllowDeactivation = false })
			addGround(w)
			box = addBox(w, mgl64.Vec3{0, 0.5, 0})
			run(w, 180)
			b, _ := w.Body(box)
			Expect(b.IsActive()).To(BeTrue())
		})
	})

	Context("a stack of two boxes", func() {
		It("stays upright", func() {
			w = newWorld(nil)
			addGround(w)
			bottom := addBox(w, mgl64.Vec3{0, 0.5, 0})
			top := addBox(w, mgl64.Vec3{0, 1.5, 0})

			run(w, 120)
			Expect(position(w, bottom).Y()).To(BeNumerically("~", 0.5, 0.05))
			Expect(position(w, top).Y()).To(BeNumerically("~", 1.5, 0.08))
			Expect(math.Abs(position(w, top).X())).To(BeNumerically("<", 0.05))
		})
	})

	Context("a stack of four boxes", func() {
		const height = 4
		var boxes []BodyID

		BeforeEach(func() {
			w = newWorld(nil)
			addGround(w)
			boxes = boxes[:0]
			for i := 0; i < height; i++ {
				boxes = append(boxes, addBox(w, mgl64.Vec3{0, 0.5 + float64(i), 0}))
			}
		})

		It("stops sinking after the first frames", func() {
			const settle = 60
			var growth int
			last := maxPenetration(w)
			for i := 0; i < 300; i++ {
				Expect(w.Step(frame)).To(Succeed())
				pen := maxPenetration(w)
				if i >= settle && pen > last+1e-3 {
					growth++
				}
				last = pen
			}
			Expect(growth).To(BeZero())
			Expect(last).To(BeNumerically("<", 0.03))
		})

		It("comes to rest in place", func() {
			run(w, 240)
			for i := 1; i < height; i++ {
				lower, _ := w.Body(boxes[i-1])
				upper, _ := w.Body(boxes[i])
				Expect(upper.Velocity.Sub(lower.Velocity).Len()).To(BeNumerically("<", 0.05))
				Expect(upper.AngularVelocity.Sub(lower.AngularVelocity).Len()).To(BeNumerically("<", 0.05))
			}
			top := position(w, boxes[height-1])
			Expect(top.Y()).To(BeNumerically("~", height-0.5, 0.1))
			Expect(math.Hypot(top.X(), top.Z())).To(BeNumerically("<", 0.05))
		})

		It("falls asleep", func() {
			run(w, 600)
			Expect(w.Stats().Awake).To(BeZero())
		})

		It("wakes the touched island only", func() {
			far := addBox(w, mgl64.Vec3{10, 0.5, 0})
			run(w, 600)
			Expect(w.Stats().Awake).To(BeZero())

			top, _ := w.Body(boxes[height-1])
			Expect(w.AddForce(boxes[height-1], mgl64.Vec3{0, 1, 0}, top.Position)).To(Succeed())
			for _, id := range boxes {
				b, _ := w.Body(id)
				Expect(b.IsActive()).To(BeTrue())
			}
			lone, _ := w.Body(far)
			Expect(lone.IsActive()).To(BeFalse())

			Expect(w.AddForce(boxes[0], mgl64.Vec3{0, 1, 0}, top.Position)).To(Succeed())
			Expect(lone.IsActive()).To(BeFalse())
		})
	})

	Context("with several threads", func() {
		scene := func(threads int) uint64 {
			world := newWorld(func(c *Config) {
				c.Threads = threads
				c.ParallelMinBatch = 1
			})
			addGround(world)
			for i := 0; i < 4; i++ {
				for j := 0; j < 4; j++ {
					for k := 0; k < 2; k++ {
						p := mgl64.Vec3{float64(i)*1.1 + 0.05*float64(k), 0.6 + float64(k)*1.2, float64(j) * 1.1}
						id := addBox(world, p)
						q := mgl64.QuatRotate(0.1*float64(i+j+k), mgl64.Vec3{1, 1, 0}.Normalize())
						Expect(world.SetOrientation(id, q)).To(Succeed())
					}
				}
			}
			run(world, 120)
			return stateHash(world)
		}

		It("produces the same state for any thread count", func() {
			want := scene(1)
			Expect(scene(2)).To(Equal(want))
			Expect(scene(4)).To(Equal(want))
		})
	})

	Context("ray casts", func() {
		var a, b BodyID

		BeforeEach(func() {
			w = newWorld(nil)
			sphere, err := shape.NewSphere(0.5)
			Expect(err).NotTo(HaveOccurred())
			a = w.CreateBody()
			b = w.CreateBody()
			w.AttachShape(a, sphere)
			w.AttachShape(b, sphere)
			Expect(w.SetPosition(b, mgl64.Vec3{4.5, 0, 0})).To(Succeed())
		})

		It("hits the body the ray starts in", func() {
			hit, ok := w.RayCast(mgl64.Vec3{}, mgl64.Vec3{10, 0, 0}, nil, nil)
			Expect(ok).To(BeTrue())
			Expect(hit.Proxy.(*ShapeInstance).Body).To(Equal(a))
			Expect(hit.Fraction).To(BeNumerically("~", 0, 1e-9))
		})

		It("skips an excluded body", func() {
			hit, ok := w.RayCast(mgl64.Vec3{}, mgl64.Vec3{10, 0, 0}, ExcludeBody(a), nil)
			Expect(ok).To(BeTrue())
			Expect(hit.Proxy.(*ShapeInstance).Body).To(Equal(b))
			Expect(hit.Fraction).To(BeNumerically("~", 0.4, 1e-6))
			Expect(hit.Normal.ApproxEqualThreshold(mgl64.Vec3{-1, 0, 0}, 1e-4)).To(BeTrue())
		})

		It("misses when the segment is too short", func() {
			_, ok := w.RayCast(mgl64.Vec3{}, mgl64.Vec3{3, 0, 0}, ExcludeBody(a), nil)
			Expect(ok).To(BeFalse())
		})
	})

	Context("a point on plane constraint", func() {
		var slider BodyID
		var c *PointOnPlane

		attach := func(limit LinearLimit) {
			w = newWorld(nil)
			slider = w.CreateBody()
			nb, _ := w.Body(w.NullBody())
			sb, _ := w.Body(slider)
			c = NewPointOnPlane(nb, sb, mgl64.Vec3{0, 1, 0}, mgl64.Vec3{}, mgl64.Vec3{}, limit)
			_, err := w.AddConstraint(c)
			Expect(err).NotTo(HaveOccurred())
		}

		distance := func() float64 {
			nb, _ := w.Body(w.NullBody())
			sb, _ := w.Body(slider)
			return c.Distance(nb, sb)
		}

		It("holds a fixed anchor against gravity", func() {
			attach(Fixed)
			Expect(w.SetVelocity(slider, mgl64.Vec3{1, 0, 0})).To(Succeed())
			for i := 0; i < 120; i++ {
				Expect(w.Step(frame)).To(Succeed())
				Expect(math.Abs(distance())).To(BeNumerically("<", 0.02))
			}
			Expect(position(w, slider).X()).To(BeNumerically(">", 1))
		})

		It("stops a fall at the lower limit", func() {
			attach(NewLinearLimit(-0.5, 0.5))
			run(w, 120)
			Expect(distance()).To(BeNumerically("~", -0.5, 0.1))
			Expect(c.Impulse()).To(BeNumerically(">=", 0))
		})

		It("is free inside the limit", func() {
			attach(Full)
			run(w, 30)
			Expect(distance()).To(BeNumerically("<", -1))
			Expect(c.Impulse()).To(BeZero())
		})
	})
})
