// Package scene turns a config.Config into a populated dynamics.World and
// runs it.
package scene

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/san-kum/rigid/internal/config"
	"github.com/san-kum/rigid/internal/dynamics"
	"github.com/san-kum/rigid/internal/geom"
	"github.com/san-kum/rigid/internal/shape"
)

var (
	// ErrUnknownShape indicates a body whose shape name is not box, sphere or hull.
	ErrUnknownShape = errors.New("scene: unknown shape")

	// ErrUnknownJoint indicates a joint type that is not point_on_plane or ball_socket.
	ErrUnknownJoint = errors.New("scene: unknown joint")
)

// Scene is a world built from a config, with the handles of what was
// created in config order.
type Scene struct {
	Name        string
	World       *dynamics.World
	Ground      dynamics.BodyID
	Bodies      []dynamics.BodyID
	Constraints []dynamics.ConstraintID
	Terrain     *TerrainFilter
}

// Build creates the world and every body, joint and terrain of cfg. The
// world's thread count is taken from threads when positive.
func Build(cfg *config.Config, threads int, opts ...dynamics.Option) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w, err := dynamics.NewWorld(cfg.ToDynamics(threads), opts...)
	if err != nil {
		return nil, err
	}

	s := &Scene{Name: cfg.Scene.Name, World: w}
	if err := s.populate(&cfg.Scene); err != nil {
		w.Close()
		return nil, err
	}
	w.Logger().Debug("scene built", "name", s.Name, "bodies", len(s.Bodies), "joints", len(s.Constraints))
	return s, nil
}

func (s *Scene) Close() { s.World.Close() }

func (s *Scene) populate(sc *config.SceneConfig) error {
	w := s.World

	if g := sc.Ground; g != nil {
		box, err := shape.NewBox(g.Size)
		if err != nil {
			return fmt.Errorf("ground: %w", err)
		}
		s.Ground = w.CreateBody()
		if err := w.SetStatic(s.Ground, true); err != nil {
			return fmt.Errorf("ground: %w", err)
		}
		if err := w.SetPosition(s.Ground, mgl64.Vec3{0, -g.Size.Y() / 2, 0}); err != nil {
			return fmt.Errorf("ground: %w", err)
		}
		if _, err := w.AttachShape(s.Ground, box); err != nil {
			return fmt.Errorf("ground: %w", err)
		}
	}

	if t := sc.Terrain; t != nil {
		vertices, indices := Heightfield(t.Cells, t.Size, t.Amplitude)
		f, err := NewTerrainFilter(w, vertices, indices, t.Thickness)
		if err != nil {
			return fmt.Errorf("terrain: %w", err)
		}
		s.Terrain = f
		w.SetBroadPhaseFilter(f)
	}

	hulls := make(map[*mgl64.Vec3]*shape.ConvexHull)
	for i, bc := range sc.Bodies {
		sh, err := buildShape(bc, hulls)
		if err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		id, err := s.addBody(bc, sh)
		if err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		s.Bodies = append(s.Bodies, id)
	}

	for i, jc := range sc.Joints {
		c, err := s.buildJoint(jc)
		if err != nil {
			return fmt.Errorf("joint %d: %w", i, err)
		}
		cid, err := w.AddConstraint(c)
		if err != nil {
			return fmt.Errorf("joint %d: %w", i, err)
		}
		s.Constraints = append(s.Constraints, cid)
	}
	return nil
}

// buildShape creates the shape of one body. Hulls listed with the same
// vertex slice share geometry through ConvexHull.Clone.
func buildShape(bc config.BodyConfig, hulls map[*mgl64.Vec3]*shape.ConvexHull) (shape.Shape, error) {
	switch bc.Shape {
	case "box":
		return shape.NewBox(bc.Size)
	case "sphere":
		return shape.NewSphere(bc.Radius)
	case "hull":
		if len(bc.Vertices) == 0 {
			return nil, shape.ErrEmptyHull
		}
		key := &bc.Vertices[0]
		if h, ok := hulls[key]; ok {
			return h.Clone(), nil
		}
		tris := make([]geom.Triangle, 0, len(bc.Faces))
		for _, f := range bc.Faces {
			for _, idx := range f {
				if idx < 0 || idx >= len(bc.Vertices) {
					return nil, fmt.Errorf("%w: face vertex %d of %d", shape.ErrIndexOutOfRange, idx, len(bc.Vertices))
				}
			}
			tris = append(tris, geom.Triangle{A: bc.Vertices[f[0]], B: bc.Vertices[f[1]], C: bc.Vertices[f[2]]})
		}
		h, err := shape.NewConvexHull(tris)
		if err != nil {
			return nil, err
		}
		hulls[key] = h
		return h, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownShape, bc.Shape)
	}
}

func (s *Scene) addBody(bc config.BodyConfig, sh shape.Shape) (dynamics.BodyID, error) {
	id := s.World.CreateBody()
	return id, s.configureBody(id, bc, sh)
}

// configureBody attaches sh to id and applies the settings of bc.
func (s *Scene) configureBody(id dynamics.BodyID, bc config.BodyConfig, sh shape.Shape) error {
	w := s.World
	if bc.Static {
		if err := w.SetStatic(id, true); err != nil {
			return fmt.Errorf("static: %w", err)
		}
	}
	if _, err := w.AttachShape(id, sh); err != nil {
		return err
	}
	if bc.Mass > 0 {
		if err := w.SetMass(id, bc.Mass); err != nil {
			return fmt.Errorf("mass: %w", err)
		}
	}
	if err := w.SetPosition(id, bc.Position); err != nil {
		return fmt.Errorf("position: %w", err)
	}
	if err := w.SetOrientation(id, bc.Rotation()); err != nil {
		return fmt.Errorf("orientation: %w", err)
	}
	if err := w.SetVelocity(id, bc.Velocity); err != nil {
		return fmt.Errorf("velocity: %w", err)
	}
	if err := w.SetAngularVelocity(id, bc.AngularVelocity); err != nil {
		return fmt.Errorf("angular velocity: %w", err)
	}

	b, ok := w.Body(id)
	if !ok {
		return fmt.Errorf("%w: %v", dynamics.ErrBodyNotFound, id)
	}
	if bc.Friction != nil {
		b.Friction = *bc.Friction
	}
	b.Restitution = bc.Restitution
	return nil
}

func (s *Scene) bodyAt(index int) (*dynamics.RigidBody, error) {
	id := s.World.NullBody()
	if index != config.NullBody {
		id = s.Bodies[index]
	}
	b, ok := s.World.Body(id)
	if !ok {
		return nil, fmt.Errorf("%w: %v", dynamics.ErrBodyNotFound, id)
	}
	return b, nil
}

func (s *Scene) buildJoint(jc config.JointConfig) (dynamics.Constraint, error) {
	b1, err := s.bodyAt(jc.Body1)
	if err != nil {
		return nil, err
	}
	b2, err := s.bodyAt(jc.Body2)
	if err != nil {
		return nil, err
	}

	switch jc.Type {
	case "point_on_plane":
		axis := jc.Axis
		if axis.Len() == 0 {
			axis = mgl64.Vec3{0, 1, 0}
		}
		return dynamics.NewPointOnPlane(b1, b2, axis, jc.Anchor1, jc.Anchor2, jc.LinearLimit()), nil
	case "ball_socket":
		return dynamics.NewBallSocket(b1, b2, jc.Anchor1), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownJoint, jc.Type)
	}
}
