package dynamics

import (
	"fmt"

	"github.com/san-kum/rigid/internal/handle"
)

// ConstraintID identifies a constraint inside a World.
type ConstraintID = handle.Handle

// MaxConstraintSize is the largest payload a constraint may carry, in
// bytes. Every concrete payload asserts it fits at compile time.
const MaxConstraintSize uintptr = 256

// Constraint is a joint solved alongside contacts. Both operations receive
// the resolved bodies; a constraint never stores body pointers.
type Constraint interface {
	Bodies() (BodyID, BodyID)
	PrepareForIteration(b1, b2 *RigidBody, idt float64)
	Iterate(b1, b2 *RigidBody, idt float64)
	PayloadSize() uintptr
}

// checkPayload panics when c does not fit the constraint block. This is a
// programming error, not an input error.
func checkPayload(c Constraint) {
	if size := c.PayloadSize(); size > MaxConstraintSize {
		panic(fmt.Sprintf("dynamics: %T payload of %d bytes exceeds MaxConstraintSize (%d)", c, size, MaxConstraintSize))
	}
}
