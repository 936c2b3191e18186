package player

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tessro/verse/internal/core"
	"github.com/tessro/verse/internal/observe"
	"github.com/tessro/verse/internal/spotify/client"
)

// DefaultPollInterval is how often the current playback is fetched.
const DefaultPollInterval = time.Second

// SessionManager is the part of the OAuth session the player depends on.
type SessionManager interface {
	Authenticate(ctx context.Context) error
	RefreshTokenIfNeeded(ctx context.Context) error
	Authenticated() observe.Observable[bool]
}

// Player implements core.Provider for Spotify. It is connected exactly
// while the session is signed in, and polls the currently-playing endpoint
// while connected.
type Player struct {
	client   *client.Client
	session  SessionManager
	interval time.Duration
	deviceID string
	log      *log.Logger

	track     *observe.Value[*core.Track]
	position  *observe.Value[time.Duration]
	playing   *observe.Value[bool]
	connected *observe.Value[bool]

	// pollMu is held for the duration of each fetch so that at most one
	// request for the current playback is outstanding.
	pollMu sync.Mutex

	// applyMu orders poll results against reset, so a fetch that finishes
	// after polling stopped cannot overwrite the disconnected defaults.
	applyMu sync.Mutex

	mu       sync.Mutex
	unsub    func()
	stopPoll context.CancelFunc
	pollCtx  context.Context
	pollDone chan struct{}
}

// Option configures a Player.
type Option func(*Player)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithDevice targets playback commands at a specific device.
func WithDevice(deviceID string) Option {
	return func(p *Player) { p.deviceID = deviceID }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Player) { p.log = l }
}

// New creates a Spotify player and starts mirroring the session's
// authentication state.
func New(c *client.Client, session SessionManager, opts ...Option) *Player {
	p := &Player{
		client:    c,
		session:   session,
		interval:  DefaultPollInterval,
		log:       log.Default(),
		track:     observe.NewValue[*core.Track](nil, core.EqualTrack),
		position:  observe.NewComparable(time.Duration(0)),
		playing:   observe.NewComparable(false),
		connected: observe.NewComparable(false),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.attach()
	return p
}

func (p *Player) SupportsLyrics() bool { return true }
func (p *Player) DisplayName() string { return "Spotify" }
func (p *Player) Source() core.Source { return core.SourceSpotify }

func (p *Player) CurrentTrack() observe.Observable[*core.Track] { return p.track }
func (p *Player) Position() observe.Observable[time.Duration] { return p.position }
func (p *Player) IsPlaying() observe.Observable[bool] { return p.playing }
func (p *Player) IsConnected() observe.Observable[bool] { return p.connected }

// attach subscribes to the session and applies its current state.
func (p *Player) attach() {
	p.mu.Lock()
	if p.unsub != nil {
		p.mu.Unlock()
		return
	}
	p.unsub = p.session.Authenticated().Subscribe(p.authChanged)
	p.mu.Unlock()

	p.authChanged(p.session.Authenticated().Get())
}

func (p *Player) authChanged(authenticated bool) {
	if authenticated {
		p.connected.Set(true)
		p.startPolling()
		return
	}
	p.stopPolling()
	p.reset()
}

// Connect starts the interactive sign-in when the session is signed out.
// The player becomes connected only once the OAuth callback completes.
func (p *Player) Connect(ctx context.Context) error {
	p.attach()
	if p.connected.Get() {
		return nil
	}
	return p.session.Authenticate(ctx)
}

// Disconnect stops polling, stops mirroring the session and clears state.
// The session itself stays signed in.
func (p *Player) Disconnect() {
	p.mu.Lock()
	unsub := p.unsub
	p.unsub = nil
	p.mu.Unlock()
	if unsub != nil {
		unsub()
	}

	p.stopPolling()
	p.reset()
}

func (p *Player) reset() {
	p.applyMu.Lock()
	defer p.applyMu.Unlock()
	p.track.Set(nil)
	p.position.Set(0)
	p.playing.Set(false)
	p.connected.Set(false)
}

func (p *Player) startPolling() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopPoll != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.pollCtx = ctx
	p.stopPoll = cancel
	p.pollDone = make(chan struct{})
	go p.pollLoop(ctx, p.pollDone)
}

func (p *Player) stopPolling() {
	p.mu.Lock()
	cancel, done := p.stopPoll, p.pollDone
	p.stopPoll, p.pollCtx, p.pollDone = nil, nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Player) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	go p.tryPoll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			go p.tryPoll(ctx)
		}
	}
}

// tryPoll skips the tick when a fetch is still in flight.
func (p *Player) tryPoll(ctx context.Context) {
	if !p.pollMu.TryLock() {
		return
	}
	defer p.pollMu.Unlock()
	p.fetch(ctx)
}

// poll waits for any in-flight fetch and then fetches again.
func (p *Player) poll(ctx context.Context) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	p.fetch(ctx)
}

func (p *Player) fetch(ctx context.Context) {
	if err := p.session.RefreshTokenIfNeeded(ctx); err != nil {
		p.log.Debug("skipping poll", "err", err)
		return
	}

	cp, err := p.client.CurrentlyPlaying(ctx)
	if err != nil {
		p.log.Debug("poll failed", "err", err)
		return
	}

	p.applyMu.Lock()
	defer p.applyMu.Unlock()
	// Polling is cancelled before reset, so a result checked here after
	// cancellation is dropped and one applied before it is cleared by reset.
	if ctx.Err() != nil {
		return
	}
	p.apply(cp)
}

// apply installs a decoded poll result. The track is replaced only when
// its ID changes.
func (p *Player) apply(cp *client.CurrentlyPlaying) {
	if cp == nil {
		p.track.Set(nil)
		p.position.Set(0)
		p.playing.Set(false)
		return
	}

	if cp.Item == nil || (cp.CurrentlyPlayingType != "" && cp.CurrentlyPlayingType != "track") {
		p.track.Set(nil)
	} else if cur := p.track.Get(); cur == nil || cur.ID != cp.Item.ID {
		p.track.Set(convertTrack(cp.Item))
	}

	p.position.Set(time.Duration(cp.ProgressMS) * time.Millisecond)
	p.playing.Set(cp.IsPlaying)
}

// command refreshes the session, runs fn, and re-polls regardless of the
// outcome so observers see the post-command state.
func (p *Player) command(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if err := p.session.RefreshTokenIfNeeded(ctx); err != nil {
		p.log.Warn("command skipped, session unavailable", "command", name, "err", err)
	} else if err := fn(ctx); err != nil {
		p.log.Warn("command failed", "command", name, "err", err)
	}

	p.mu.Lock()
	pollCtx := p.pollCtx
	p.mu.Unlock()
	if pollCtx != nil {
		p.poll(pollCtx)
	}
}

func (p *Player) Play(ctx context.Context) {
	p.command(ctx, "play", func(ctx context.Context) error {
		return p.client.Play(ctx, p.deviceID)
	})
}

func (p *Player) Pause(ctx context.Context) {
	p.command(ctx, "pause", func(ctx context.Context) error {
		return p.client.Pause(ctx, p.deviceID)
	})
}

// Seek sends the position as whole milliseconds, truncating any remainder.
func (p *Player) Seek(ctx context.Context, to time.Duration) {
	p.command(ctx, "seek", func(ctx context.Context) error {
		return p.client.Seek(ctx, int(to.Milliseconds()), p.deviceID)
	})
}

func (p *Player) SkipNext(ctx context.Context) {
	p.command(ctx, "next", func(ctx context.Context) error {
		return p.client.Next(ctx, p.deviceID)
	})
}

func (p *Player) SkipPrevious(ctx context.Context) {
	p.command(ctx, "previous", func(ctx context.Context) error {
		return p.client.Previous(ctx, p.deviceID)
	})
}

// convertTrack converts a Spotify track to a core track.
func convertTrack(t *client.Track) *core.Track {
	if t == nil {
		return nil
	}

	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	return &core.Track{
		ID:         t.ID,
		Title:      t.Name,
		Artist:     strings.Join(artists, ", "),
		Album:      t.Album.Name,
		ArtworkURL: client.LargestImage(t.Album.Images),
		Duration:   time.Duration(t.DurationMS) * time.Millisecond,
		ISRC:       t.ExternalIDs.ISRC,
		Source:     core.SourceSpotify,
	}
}

var _ core.Provider = (*Player)(nil)
