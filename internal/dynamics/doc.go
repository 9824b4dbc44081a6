// Package dynamics is the rigid body world: bodies, attached shapes,
// persistent contacts, joints and the sequential impulse solver.
//
// A [World] advances with [World.Step]:
//
//   - integrate forces into velocities
//   - drop contacts that drifted apart
//   - refit the broad phase and collect overlapping pairs
//   - run the broad phase filter and create arbiters
//   - generate contacts in parallel
//   - retire arbiters whose shapes no longer overlap
//   - wake islands touched by awake bodies and put resting islands to sleep
//   - prepare and iterate contacts and constraints in colored batches
//   - integrate velocities into positions
//
// # Handles
//
// Bodies and constraints are addressed by generational handles and shapes by
// numeric ids. Pointers returned by [World.Body] are valid until the next
// body is created.
//
// # Thread Safety
//
// A World is NOT safe for concurrent use. Parallelism happens inside Step on
// the world's [parallel.ThreadPool]; results are identical for any thread
// count.
//
//	w, _ := dynamics.NewWorld(dynamics.DefaultConfig())
//	defer w.Close()
//	id := w.CreateBody()
//	w.AttachShape(id, box)
//	for i := 0; i < 600; i++ {
//		w.Step(1.0 / 60)
//	}
package dynamics
