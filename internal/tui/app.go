// Package tui is the terminal now-playing view.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tessro/verse/internal/coordinator"
	"github.com/tessro/verse/internal/core"
	"github.com/tessro/verse/internal/observe"
	"github.com/tessro/verse/internal/tui/components"
	"github.com/tessro/verse/internal/tui/styles"
)

// SeekStep is how far the arrow keys move, as a fraction of the track.
const SeekStep = 0.05

const commandTimeout = 10 * time.Second

// Controller is the playback surface the view drives.
type Controller interface {
	State() observe.Observable[core.PlaybackState]
	Selected() observe.Observable[core.Source]
	Artwork() observe.Observable[coordinator.Artwork]
	Sources() []core.Source
	Provider(src core.Source) (core.Provider, bool)

	TogglePlayback(ctx context.Context)
	SkipNext(ctx context.Context)
	SkipPrevious(ctx context.Context)
	Seek(ctx context.Context, progress float64)
	SwitchSource(to core.Source) error
	Connect(ctx context.Context, src core.Source) error
}

// Model is the main TUI model.
type Model struct {
	ctl    Controller
	width  int
	height int

	state  core.PlaybackState
	source core.Source
	art    coordinator.Artwork

	nowPlaying *components.NowPlaying
	keys       keyMap
	help       help.Model

	lastError   error
	errorExpiry time.Time

	quitting bool
}

// NewModel creates a model seeded from ctl's current state.
func NewModel(ctl Controller) Model {
	return Model{
		ctl:        ctl,
		state:      ctl.State().Get(),
		source:     ctl.Selected().Get(),
		art:        ctl.Artwork().Get(),
		nowPlaying: components.NewNowPlaying(),
		keys:       defaultKeyMap(),
		help:       help.New(),
	}
}

// Messages
type stateMsg core.PlaybackState
type sourceMsg core.Source
type artworkMsg coordinator.Artwork
type errMsg struct{ err error }

// Subscribe forwards every change of ctl's observables to send. The
// returned func cancels the subscriptions.
func Subscribe(ctl Controller, send func(tea.Msg)) func() {
	cancels := []func(){
		ctl.State().Subscribe(func(s core.PlaybackState) { send(stateMsg(s)) }),
		ctl.Selected().Subscribe(func(s core.Source) { send(sourceMsg(s)) }),
		ctl.Artwork().Subscribe(func(a coordinator.Artwork) { send(artworkMsg(a)) }),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case stateMsg:
		if time.Now().After(m.errorExpiry) {
			m.lastError = nil
		}
		m.state = core.PlaybackState(msg)
		return m, nil

	case sourceMsg:
		m.source = core.Source(msg)
		return m, nil

	case artworkMsg:
		m.art = coordinator.Artwork(msg)
		return m, nil

	case errMsg:
		m.lastError = msg.err
		m.errorExpiry = time.Now().Add(5 * time.Second)
		return m, nil
	}

	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Toggle):
		return m, m.run(m.ctl.TogglePlayback)
	case key.Matches(msg, m.keys.Next):
		return m, m.run(m.ctl.SkipNext)
	case key.Matches(msg, m.keys.Previous):
		return m, m.run(m.ctl.SkipPrevious)
	case key.Matches(msg, m.keys.Back):
		return m, m.seekBy(-SeekStep)
	case key.Matches(msg, m.keys.Forward):
		return m, m.seekBy(SeekStep)
	case key.Matches(msg, m.keys.Switch):
		return m, m.switchSource()
	case key.Matches(msg, m.keys.Connect):
		return m, m.connect()
	}
	return m, nil
}

// run issues a playback command off the UI goroutine.
func (m Model) run(fn func(ctx context.Context)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		fn(ctx)
		return nil
	}
}

func (m Model) seekBy(delta float64) tea.Cmd {
	if m.state.Track == nil {
		return nil
	}
	target := m.state.Progress() + delta
	return m.run(func(ctx context.Context) {
		m.ctl.Seek(ctx, target)
	})
}

// NextSource returns the source after cur in order, wrapping around.
func NextSource(sources []core.Source, cur core.Source) (core.Source, bool) {
	if len(sources) < 2 {
		return "", false
	}
	for i, s := range sources {
		if s == cur {
			return sources[(i+1)%len(sources)], true
		}
	}
	return sources[0], true
}

func (m Model) switchSource() tea.Cmd {
	next, ok := NextSource(m.ctl.Sources(), m.source)
	if !ok {
		return nil
	}
	return func() tea.Msg {
		if err := m.ctl.SwitchSource(next); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) connect() tea.Cmd {
	src := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := m.ctl.Connect(ctx, src); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m Model) sourceInfo() components.Source {
	info := components.Source{ID: m.source, Name: string(m.source)}
	if p, ok := m.ctl.Provider(m.source); ok {
		info.Name = p.DisplayName()
		info.Connected = p.IsConnected().Get()
	}
	return info
}

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.width == 0 {
		return "Loading..."
	}

	panel := m.nowPlaying.Render(m.state, m.sourceInfo(), m.art, min(m.width-2, 80))

	return lipgloss.JoinVertical(lipgloss.Left, panel, m.renderStatusBar())
}

func (m Model) renderStatusBar() string {
	status := m.help.View(m.keys)
	if m.lastError != nil {
		status = styles.ErrorText.Render("Error: " + m.lastError.Error())
	}

	return lipgloss.NewStyle().
		Width(m.width).
		Padding(0, 1).
		Render(status)
}

// Run starts the TUI and blocks until the user quits or ctx is done.
func Run(ctx context.Context, ctl Controller) error {
	p := tea.NewProgram(NewModel(ctl), tea.WithAltScreen(), tea.WithContext(ctx))

	unsubscribe := Subscribe(ctl, p.Send)
	defer unsubscribe()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
