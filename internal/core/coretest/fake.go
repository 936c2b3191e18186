// Package coretest provides a scriptable core.Provider for tests.
package coretest

import (
	"context"
	"sync"
	"time"

	"github.com/tessro/verse/internal/core"
	"github.com/tessro/verse/internal/observe"
)

// Call records one command received by a Provider.
type Call struct {
	Name string
	To   time.Duration
}

// Provider is an in-memory core.Provider. Tests drive its observables
// directly and inspect the commands it received.
type Provider struct {
	Src    core.Source
	Name   string
	Lyrics bool

	// ConnectErr is returned by Connect when set.
	ConnectErr error

	Track     *observe.Value[*core.Track]
	Pos       *observe.Value[time.Duration]
	Playing   *observe.Value[bool]
	Connected *observe.Value[bool]

	mu    sync.Mutex
	calls []Call
}

// NewProvider returns a disconnected fake for src.
func NewProvider(src core.Source, lyrics bool) *Provider {
	return &Provider{
		Src:       src,
		Name:      string(src),
		Lyrics:    lyrics,
		Track:     observe.NewValue[*core.Track](nil, core.EqualTrack),
		Pos:       observe.NewComparable(time.Duration(0)),
		Playing:   observe.NewComparable(false),
		Connected: observe.NewComparable(false),
	}
}

func (p *Provider) record(name string, to time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Name: name, To: to})
}

// Calls returns a copy of the recorded commands.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Reset forgets recorded commands.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

func (p *Provider) Connect(ctx context.Context) error {
	p.record("connect", 0)
	if p.ConnectErr != nil {
		return p.ConnectErr
	}
	p.Connected.Set(true)
	return nil
}

func (p *Provider) Disconnect() {
	p.record("disconnect", 0)
	p.Track.Set(nil)
	p.Playing.Set(false)
	p.Connected.Set(false)
}

func (p *Provider) Play(ctx context.Context) { p.record("play", 0) }
func (p *Provider) Pause(ctx context.Context) { p.record("pause", 0) }
func (p *Provider) Seek(ctx context.Context, to time.Duration) {
	p.record("seek", to)
}
func (p *Provider) SkipNext(ctx context.Context) { p.record("next", 0) }
func (p *Provider) SkipPrevious(ctx context.Context) { p.record("previous", 0) }

func (p *Provider) SupportsLyrics() bool { return p.Lyrics }
func (p *Provider) DisplayName() string { return p.Name }
func (p *Provider) Source() core.Source { return p.Src }

func (p *Provider) CurrentTrack() observe.Observable[*core.Track] { return p.Track }
func (p *Provider) Position() observe.Observable[time.Duration] { return p.Pos }
func (p *Provider) IsPlaying() observe.Observable[bool] { return p.Playing }
func (p *Provider) IsConnected() observe.Observable[bool] { return p.Connected }

var _ core.Provider = (*Provider)(nil)
