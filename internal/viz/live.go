package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/rigid/internal/config"
	"github.com/san-kum/rigid/internal/dynamics"
	"github.com/san-kum/rigid/internal/metrics"
	"github.com/san-kum/rigid/internal/scene"
)

const (
	canvasWidth     = 60
	canvasHeight    = 24
	historyCapacity = 600
	frameRate       = 60
)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(time.Second/frameRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// LiveModel steps a scene once per tick and draws it as a braille
// wireframe next to a stats panel.
type LiveModel struct {
	cfg     *config.Config
	threads int
	opts    []dynamics.Option

	scene    *scene.Scene
	dt       float64
	canvas   *Canvas
	wire     *Wireframe
	camera   *Camera
	theme    Theme
	energy   []float64
	awake    []float64
	running  bool
	showHelp bool
	err      error
}

// NewLiveModel builds the scene of cfg. The caller owns the model and
// must Close it when the program exits.
func NewLiveModel(cfg *config.Config, threads int, opts ...dynamics.Option) (LiveModel, error) {
	m := LiveModel{
		cfg:     cfg,
		threads: threads,
		opts:    opts,
		dt:      cfg.Run.Dt,
		canvas:  NewCanvas(canvasWidth, canvasHeight),
		wire:    NewWireframe(),
		theme:   Themes[0],
		running: true,
	}
	if err := m.reset(); err != nil {
		return LiveModel{}, err
	}
	return m, nil
}

func (m *LiveModel) reset() error {
	s, err := scene.Build(m.cfg, m.threads, m.opts...)
	if err != nil {
		return err
	}
	if m.scene != nil {
		m.scene.Close()
	}
	m.scene = s
	m.camera = NewCamera(Frame(s))
	m.energy = m.energy[:0]
	m.awake = m.awake[:0]
	m.err = nil
	m.draw()
	return nil
}

func (m LiveModel) Scene() *scene.Scene { return m.scene }
func (m LiveModel) Running() bool       { return m.running }
func (m LiveModel) Err() error          { return m.err }

func (m LiveModel) Close() {
	if m.scene != nil {
		m.scene.Close()
	}
}

func (m LiveModel) Init() tea.Cmd { return tick() }

func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ", "space":
			m.running = !m.running
		case "n":
			if !m.running {
				m.step()
			}
		case "r":
			if err := m.reset(); err != nil {
				m.err = err
			}
		case "left", "h":
			m.camera.RotateY(-0.1)
		case "right", "l":
			m.camera.RotateY(0.1)
		case "up", "k":
			m.camera.RotateX(0.1)
		case "down", "j":
			m.camera.RotateX(-0.1)
		case "+", "=":
			m.camera.ZoomIn()
		case "-", "_":
			m.camera.ZoomOut()
		case "t":
			m.theme = NextTheme(m.theme)
		case "?":
			m.showHelp = !m.showHelp
		}
		m.draw()
	case tea.WindowSizeMsg:
		w := max(msg.Width-int(statsStyle.GetWidth())-8, 20)
		h := max(msg.Height-4, 8)
		m.canvas.Resize(w, h)
		m.draw()
	case TickMsg:
		if m.running && m.err == nil {
			m.step()
		}
		m.draw()
		return m, tick()
	}
	return m, nil
}

func (m *LiveModel) step() {
	w := m.scene.World
	if err := w.Step(m.dt); err != nil {
		m.err = err
		m.running = false
		return
	}
	m.energy = pushCapped(m.energy, metrics.KineticEnergy(w))
	m.awake = pushCapped(m.awake, float64(w.Stats().Awake))
}

func pushCapped(h []float64, v float64) []float64 {
	if len(h) >= historyCapacity {
		copy(h, h[1:])
		h = h[:len(h)-1]
	}
	return append(h, v)
}

func (m *LiveModel) draw() {
	m.canvas.Clear()
	m.wire.Clear()
	m.wire.AddScene(m.scene)
	Render3D(m.canvas, m.wire, m.camera)
}

func (m LiveModel) status() string {
	switch {
	case m.err != nil:
		return StatusError.Render("ERROR")
	case m.running:
		return StatusRunning.Render("RUNNING")
	default:
		return StatusPaused.Render("PAUSED")
	}
}

func (m LiveModel) View() string {
	w := m.scene.World
	st := w.Stats()

	var s strings.Builder
	s.WriteString(HeaderStyle.Render(strings.ToUpper(m.scene.Name)) + "\n")
	s.WriteString(m.status() + "\n\n")

	s.WriteString(Metric("Time", "%.2fs", w.Time()))
	s.WriteString(Metric("Step", "%d", st.Step))
	s.WriteString(Metric("Bodies", "%d", st.Bodies))
	s.WriteString(Metric("Awake", "%d", st.Awake))
	s.WriteString(Metric("Islands", "%d", st.Islands))
	s.WriteString(Metric("Arbiters", "%d", st.Arbiters))
	s.WriteString(Metric("Contacts", "%d", st.Contacts))
	s.WriteString(Metric("Colors", "%d (+%d)", st.Colors, st.Overflow))
	s.WriteString(Metric("Penetration", "%.4f", metrics.MaxPenetration(w)))
	s.WriteString(Metric("Threads", "%d", w.ThreadPool().ThreadCount()))

	if len(m.energy) > 1 {
		chart := asciigraph.Plot(m.energy, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("kinetic energy"))
		s.WriteString("\n" + chart + "\n")
	}
	if len(m.awake) > 0 {
		s.WriteString("\n" + MetricLabel.Render("awake") + Sparkline(m.awake, 28) + "\n")
	}
	if m.err != nil {
		s.WriteString("\n" + StatusError.Render(m.err.Error()) + "\n")
	}
	s.WriteString("\n" + Separator(40) + "\n")
	s.WriteString(KeyHint.Render("SP:Pause N:Step R:Reset Q:Quit\n←→↑↓:Orbit +-:Zoom T:Theme ?:Help"))

	view := lipgloss.JoinHorizontal(lipgloss.Top,
		canvasStyle.Render(m.canvas.Render(m.theme)),
		statsStyle.Render(s.String()))
	if m.showHelp {
		return helpText + "\n" + view
	}
	return view
}

var helpText = fmt.Sprintf(`
  Space    pause or resume
  N        single step while paused
  R        rebuild the scene
  Arrows   orbit the camera (h j k l)
  + -      zoom
  T        cycle themes (%s)
  Q        quit
`, strings.Join(ThemeNames(), ", "))
