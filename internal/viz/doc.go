// Package viz draws a running world in the terminal.
//
// [LiveModel] is a Bubble Tea model that steps a scene once per frame and
// projects every shape onto a braille [Canvas] through an orbiting
// [Camera]. Awake bodies, sleeping or static bodies and contact points are
// inked in different theme colors. [Picker] wraps it with a preset menu.
//
// # Key Bindings
//
//	Space  - Pause/Resume
//	N      - Single step while paused
//	R      - Rebuild the scene
//	Arrows - Orbit the camera
//	+ -    - Zoom
//	T      - Cycle color themes
//	?      - Show help overlay
package viz
