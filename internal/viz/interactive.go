package viz

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/rigid/internal/config"
	"github.com/san-kum/rigid/internal/dynamics"
)

// Picker lists the presets and opens the chosen one in a LiveModel.
type Picker struct {
	presets []string
	cursor  int
	threads int
	opts    []dynamics.Option

	live   *LiveModel
	width  int
	height int
	err    error
}

func NewPicker(threads int, opts ...dynamics.Option) Picker {
	return Picker{presets: config.ListPresets(), threads: threads, opts: opts}
}

// Live returns the open scene, if any, so the caller can close it.
func (p Picker) Live() (LiveModel, bool) {
	if p.live == nil {
		return LiveModel{}, false
	}
	return *p.live, true
}

func (p Picker) Init() tea.Cmd { return nil }

func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if p.live != nil {
		if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
			p.live.Close()
			p.live = nil
			return p, nil
		}
		next, cmd := p.live.Update(msg)
		lm := next.(LiveModel)
		p.live = &lm
		return p, cmd
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width, p.height = msg.Width, msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return p, tea.Quit
		case "up", "k":
			if p.cursor > 0 {
				p.cursor--
			}
		case "down", "j":
			if p.cursor < len(p.presets)-1 {
				p.cursor++
			}
		case "enter":
			return p.open()
		}
	}
	return p, nil
}

func (p Picker) open() (tea.Model, tea.Cmd) {
	cfg, err := config.GetPreset(p.presets[p.cursor])
	if err != nil {
		p.err = err
		return p, nil
	}
	lm, err := NewLiveModel(cfg, p.threads, p.opts...)
	if err != nil {
		p.err = err
		return p, nil
	}
	if p.width > 0 {
		next, _ := lm.Update(tea.WindowSizeMsg{Width: p.width, Height: p.height})
		lm = next.(LiveModel)
	}
	p.err = nil
	p.live = &lm
	return p, lm.Init()
}

func (p Picker) View() string {
	if p.live != nil {
		return p.live.View()
	}

	var s strings.Builder
	s.WriteString(HeaderStyle.Render("RIGID") + "\n\n")
	for i, name := range p.presets {
		cfg, _ := config.GetPreset(name)
		line := name + "  " + Subtle.Render(cfg.Scene.Description)
		if i == p.cursor {
			s.WriteString(Selected.Render("> "+name) + "  " + Subtle.Render(cfg.Scene.Description) + "\n")
		} else {
			s.WriteString("  " + line + "\n")
		}
	}
	if p.err != nil {
		s.WriteString("\n" + StatusError.Render(p.err.Error()) + "\n")
	}
	s.WriteString("\n" + KeyHint.Render("↑↓:Select Enter:Open Esc:Back Q:Quit"))
	return canvasStyle.Render(s.String())
}
