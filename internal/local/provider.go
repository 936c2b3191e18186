package local

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tessro/verse/internal/core"
	"github.com/tessro/verse/internal/observe"
)

// DefaultSampleRate is the position sampling frequency in Hz.
const DefaultSampleRate = 60

// Provider implements core.Provider over a local Backend.
type Provider struct {
	backend  Backend
	interval time.Duration
	log      *log.Logger

	track     *observe.Value[*core.Track]
	position  *observe.Value[time.Duration]
	playing   *observe.Value[bool]
	connected *observe.Value[bool]

	// connMu serializes Connect and Disconnect.
	connMu sync.Mutex

	mu         sync.Mutex
	sampling   bool
	stopSample chan struct{}
	sampleDone chan struct{}
	eventsDone chan struct{}
}

// Option configures a Provider.
type Option func(*Provider)

// WithSampleRate sets the position sampling frequency in Hz.
func WithSampleRate(hz int) Option {
	return func(p *Provider) {
		if hz > 0 {
			p.interval = time.Second / time.Duration(hz)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// New creates a disconnected Provider.
func New(b Backend, opts ...Option) *Provider {
	p := &Provider{
		backend:   b,
		interval:  time.Second / DefaultSampleRate,
		log:       log.Default(),
		track:     observe.NewValue[*core.Track](nil, core.EqualTrack),
		position:  observe.NewComparable(time.Duration(0)),
		playing:   observe.NewComparable(false),
		connected: observe.NewComparable(false),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) SupportsLyrics() bool { return true }
func (p *Provider) DisplayName() string { return "Local Player" }
func (p *Provider) Source() core.Source { return core.SourceLocal }

func (p *Provider) CurrentTrack() observe.Observable[*core.Track] { return p.track }
func (p *Provider) Position() observe.Observable[time.Duration] { return p.position }
func (p *Provider) IsPlaying() observe.Observable[bool] { return p.playing }
func (p *Provider) IsConnected() observe.Observable[bool] { return p.connected }

// Connect obtains authorization and starts observing the backend. The
// consent prompt is shown only when authorization was never decided.
func (p *Provider) Connect(ctx context.Context) error {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	if p.connected.Get() {
		return nil
	}

	switch p.backend.Authorization() {
	case Authorized:
	case Denied:
		return fmt.Errorf("%w: access was denied", core.ErrAuthorization)
	default:
		status, err := p.backend.RequestAuthorization(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", core.ErrAuthorization, err)
		}
		if status != Authorized {
			return fmt.Errorf("%w: access is %s", core.ErrAuthorization, status)
		}
	}

	events, err := p.backend.BeginNotifications(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrConnectivity, err)
	}

	p.mu.Lock()
	p.eventsDone = make(chan struct{})
	done := p.eventsDone
	p.mu.Unlock()
	go p.watch(events, done)

	p.connected.Set(true)
	p.refreshTrack()
	p.refreshStatus()
	p.startSampling()
	return nil
}

// Disconnect stops notifications and the sampler and clears state.
func (p *Provider) Disconnect() {
	p.connMu.Lock()
	defer p.connMu.Unlock()

	p.stopSampling()
	p.backend.EndNotifications()

	p.mu.Lock()
	done := p.eventsDone
	p.eventsDone = nil
	p.mu.Unlock()
	if done != nil {
		<-done
	}

	p.track.Set(nil)
	p.position.Set(0)
	p.playing.Set(false)
	p.connected.Set(false)
}

func (p *Provider) watch(events <-chan Event, done chan struct{}) {
	defer close(done)
	for ev := range events {
		p.handle(ev)
	}
}

func (p *Provider) handle(ev Event) {
	if ev == EventItemChanged {
		p.refreshTrack()
	}
	p.refreshStatus()
}

// refreshStatus re-derives IsPlaying and resamples the position at once
// rather than waiting for the next tick.
func (p *Provider) refreshStatus() {
	p.playing.Set(p.backend.Status() == StatusPlaying)
	p.position.Set(p.backend.Position())
}

func (p *Provider) refreshTrack() {
	p.track.Set(trackFromItem(p.backend.NowPlaying()))
}

// sample reads the position while playing.
func (p *Provider) sample() {
	if !p.playing.Get() {
		return
	}
	p.position.Set(p.backend.Position())
}

// startSampling starts the ticker unless it is already running.
func (p *Provider) startSampling() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sampling {
		return
	}
	p.sampling = true
	p.stopSample = make(chan struct{})
	p.sampleDone = make(chan struct{})
	go p.sampleLoop(p.stopSample, p.sampleDone)
}

func (p *Provider) stopSampling() {
	p.mu.Lock()
	if !p.sampling {
		p.mu.Unlock()
		return
	}
	p.sampling = false
	stop, done := p.stopSample, p.sampleDone
	p.mu.Unlock()

	close(stop)
	<-done
}

func (p *Provider) sampleLoop(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.sample()
		}
	}
}

func (p *Provider) Play(ctx context.Context) {
	p.run("play", func() error { return p.backend.Play(ctx) })
}

func (p *Provider) Pause(ctx context.Context) {
	p.run("pause", func() error { return p.backend.Pause(ctx) })
}

func (p *Provider) Seek(ctx context.Context, to time.Duration) {
	p.run("seek", func() error { return p.backend.Seek(ctx, to) })
}

func (p *Provider) SkipNext(ctx context.Context) {
	p.run("next", func() error { return p.backend.SkipNext(ctx) })
}

func (p *Provider) SkipPrevious(ctx context.Context) {
	p.run("previous", func() error { return p.backend.SkipPrevious(ctx) })
}

func (p *Provider) run(name string, fn func() error) {
	if err := fn(); err != nil {
		p.log.Warn("command failed", "command", name, "err", err)
	}
}

// trackFromItem returns nil for anything that is not a song.
func trackFromItem(it *Item) *core.Track {
	if it == nil || it.Kind != KindSong {
		return nil
	}
	return &core.Track{
		ID:         it.ID,
		Title:      it.Title,
		Artist:     it.Artist,
		Album:      it.Album,
		ArtworkURL: it.ArtworkURL,
		Duration:   it.Duration,
		ISRC:       it.ISRC,
		Source:     core.SourceLocal,
	}
}

var _ core.Provider = (*Provider)(nil)
