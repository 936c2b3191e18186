// Package coordinator merges the state of every playback provider into one
// view driven by the selected source, and keeps the lyrics renderer and the
// artwork in step with it.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tessro/verse/internal/core"
	"github.com/tessro/verse/internal/observe"
)

// ErrUnknownSource is returned when a source has no registered provider.
var ErrUnknownSource = errors.New("unknown source")

// Renderer receives track and position updates for lyrics display.
// Implementations must not block.
type Renderer interface {
	SetTrack(t core.Track)
	SetPosition(d time.Duration)
	Clear()
}

// Fetcher loads artwork bytes for a URI.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Artwork is the image for the current track.
type Artwork struct {
	TrackID string
	Image   []byte
	Loading bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// Coordinator owns the merged playback state.
type Coordinator struct {
	providers map[core.Source]core.Provider
	order     []core.Source
	renderer  Renderer
	fetcher   Fetcher
	logger    *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	unsubs []func()

	// pubMu serializes publishing so that a write derived from a source
	// can never land after that source was deselected. Lock order is pubMu,
	// then mu. Subscribers to the merged state must not switch sources
	// synchronously.
	pubMu sync.Mutex

	mu      sync.Mutex
	source  core.Source
	trackID string
	lastPos time.Duration
	artGen  uint64

	state     *observe.Value[core.PlaybackState]
	selection *observe.Value[core.Source]
	artwork   *observe.Value[Artwork]
}

// New creates a coordinator over providers. The first provider starts
// selected. renderer and fetcher may be nil.
func New(providers []core.Provider, renderer Renderer, fetcher Fetcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		providers: make(map[core.Source]core.Provider, len(providers)),
		renderer:  renderer,
		fetcher:   fetcher,
		state:     observe.NewValue(core.PlaybackState{}, core.PlaybackState.Equal),
		artwork:   observe.NewValue[Artwork](Artwork{}, nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	c.logger = c.logger.WithPrefix("coordinator")
	c.ctx, c.cancel = context.WithCancel(context.Background())

	for _, p := range providers {
		src := p.Source()
		if _, dup := c.providers[src]; dup {
			continue
		}
		c.providers[src] = p
		c.order = append(c.order, src)
	}
	if len(c.order) > 0 {
		c.source = c.order[0]
	}
	c.selection = observe.NewComparable(c.source)

	for _, src := range c.order {
		c.watch(c.providers[src])
	}
	if c.source != "" {
		c.update(c.source)
	}
	return c
}

// watch subscribes to every observable of p. Providers keep running while
// unselected; their emissions are filtered in update.
func (c *Coordinator) watch(p core.Provider) {
	src := p.Source()
	c.unsubs = append(c.unsubs,
		p.CurrentTrack().Subscribe(func(*core.Track) { c.update(src) }),
		p.Position().Subscribe(func(time.Duration) { c.update(src) }),
		p.IsPlaying().Subscribe(func(bool) { c.update(src) }),
		p.IsConnected().Subscribe(func(bool) { c.update(src) }),
	)
}

// Close stops observing providers and abandons in-flight artwork fetches.
func (c *Coordinator) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.cancel()
}

// State is the merged playback state of the selected provider.
func (c *Coordinator) State() observe.Observable[core.PlaybackState] {
	return c.state
}

// Selected is the selected source.
func (c *Coordinator) Selected() observe.Observable[core.Source] {
	return c.selection
}

// Artwork is the current track's image.
func (c *Coordinator) Artwork() observe.Observable[Artwork] {
	return c.artwork
}

// Sources lists registered sources in registration order.
func (c *Coordinator) Sources() []core.Source {
	return append([]core.Source(nil), c.order...)
}

// Provider returns the provider for src.
func (c *Coordinator) Provider(src core.Source) (core.Provider, bool) {
	p, ok := c.providers[src]
	return p, ok
}

// Active returns the selected provider.
func (c *Coordinator) Active() core.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.providers[c.source]
}

// update re-derives the merged state from src's current snapshot.
func (c *Coordinator) update(src core.Source) {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.publish(src)
}

// publish does the work of update. The caller holds pubMu.
func (c *Coordinator) publish(src core.Source) {
	c.mu.Lock()
	if src != c.source {
		c.mu.Unlock()
		return
	}
	p := c.providers[src]
	snap := core.Snapshot(p)
	lyrics := p.SupportsLyrics() && c.renderer != nil

	var (
		fetchURL string
		fetchGen uint64
		art      *Artwork
	)

	newID := ""
	if snap.Track != nil {
		newID = snap.Track.ID
	}
	trackChanged := newID != c.trackID
	if trackChanged {
		c.trackID = newID
		c.artGen++
		if snap.Track == nil {
			if lyrics {
				c.renderer.Clear()
			}
			art = &Artwork{}
		} else {
			if lyrics {
				c.renderer.SetTrack(*snap.Track)
				c.renderer.SetPosition(snap.Position)
				c.lastPos = snap.Position
			}
			art = &Artwork{TrackID: newID}
			if snap.Track.ArtworkURL != "" && c.fetcher != nil {
				art.Loading = true
				fetchURL = snap.Track.ArtworkURL
				fetchGen = c.artGen
			}
		}
	} else if lyrics && snap.Track != nil && snap.Position != c.lastPos {
		c.renderer.SetPosition(snap.Position)
		c.lastPos = snap.Position
	}
	c.mu.Unlock()

	c.state.Set(snap)
	if art != nil {
		c.artwork.Set(*art)
	}
	if fetchURL != "" {
		go c.fetchArtwork(fetchGen, newID, fetchURL)
	}
}

func (c *Coordinator) fetchArtwork(gen uint64, trackID, url string) {
	img, err := c.fetcher.Fetch(c.ctx, url)
	if err != nil {
		c.logger.Debug("artwork fetch failed", "url", url, "err", err)
		img = nil
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	stale := gen != c.artGen
	c.mu.Unlock()
	if stale {
		return
	}
	c.artwork.Set(Artwork{TrackID: trackID, Image: img})
}

// Resync re-sends the selected provider's track and position to the
// renderer. Call it when a renderer finishes loading, since anything sent
// before then was dropped.
func (c *Coordinator) Resync() {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.providers[c.source]
	if c.renderer == nil || p == nil || !p.SupportsLyrics() {
		return
	}
	snap := core.Snapshot(p)
	if snap.Track == nil {
		c.renderer.Clear()
		return
	}
	c.renderer.SetTrack(*snap.Track)
	c.renderer.SetPosition(snap.Position)
	c.lastPos = snap.Position
}

// SwitchSource selects to. The merged state and the renderer are cleared,
// then re-seeded from the new provider's current snapshot.
func (c *Coordinator) SwitchSource(to core.Source) error {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	if _, ok := c.providers[to]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSource, to)
	}
	if to == c.source {
		c.mu.Unlock()
		return nil
	}
	c.source = to
	c.trackID = ""
	c.lastPos = 0
	c.artGen++
	if c.renderer != nil {
		c.renderer.Clear()
	}
	c.mu.Unlock()

	c.logger.Info("switched source", "source", to)
	c.state.Set(core.PlaybackState{})
	c.artwork.Set(Artwork{})
	c.selection.Set(to)
	c.publish(to)
	return nil
}

// Seek moves to progress (0..1) of the current track.
func (c *Coordinator) Seek(ctx context.Context, progress float64) {
	st := c.state.Get()
	if st.Track == nil {
		return
	}
	if math.IsNaN(progress) || progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	to := time.Duration(progress * float64(st.Track.Duration))
	c.Active().Seek(ctx, to)
}

// HandleSeekRequest seeks to a renderer-supplied position in milliseconds.
// Local playback resumes after the seek.
func (c *Coordinator) HandleSeekRequest(ctx context.Context, ms float64) {
	if math.IsNaN(ms) || ms < 0 {
		ms = 0
	}
	to := time.Duration(ms * float64(time.Millisecond))
	if st := c.state.Get(); st.Track != nil && st.Track.Duration > 0 && to > st.Track.Duration {
		to = st.Track.Duration
	}

	p := c.Active()
	if p == nil {
		return
	}
	p.Seek(ctx, to)
	if p.Source() == core.SourceLocal {
		p.Play(ctx)
	}
}

func (c *Coordinator) Play(ctx context.Context) {
	if p := c.Active(); p != nil {
		p.Play(ctx)
	}
}

func (c *Coordinator) Pause(ctx context.Context) {
	if p := c.Active(); p != nil {
		p.Pause(ctx)
	}
}

func (c *Coordinator) TogglePlayback(ctx context.Context) {
	if p := c.Active(); p != nil {
		core.TogglePlayback(ctx, p)
	}
}

func (c *Coordinator) SkipNext(ctx context.Context) {
	if p := c.Active(); p != nil {
		p.SkipNext(ctx)
	}
}

func (c *Coordinator) SkipPrevious(ctx context.Context) {
	if p := c.Active(); p != nil {
		p.SkipPrevious(ctx)
	}
}

// Connect connects the provider for src.
func (c *Coordinator) Connect(ctx context.Context, src core.Source) error {
	p, ok := c.providers[src]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, src)
	}
	return p.Connect(ctx)
}

// Disconnect disconnects the provider for src.
func (c *Coordinator) Disconnect(src core.Source) error {
	p, ok := c.providers[src]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSource, src)
	}
	p.Disconnect()
	return nil
}
