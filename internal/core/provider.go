package core

import (
	"context"
	"time"

	"github.com/tessro/verse/internal/observe"
)

// Provider is the playback contract shared by every media source.
//
// Playback commands are fire-and-forget: failures are logged by the
// provider and show up only through the next observed state.
type Provider interface {
	// Connect is idempotent. It returns an error wrapping ErrAuthorization
	// or ErrConnectivity when the backend cannot be reached.
	Connect(ctx context.Context) error
	// Disconnect releases backend resources and resets observed state.
	Disconnect()

	Play(ctx context.Context)
	Pause(ctx context.Context)
	Seek(ctx context.Context, to time.Duration)
	SkipNext(ctx context.Context)
	SkipPrevious(ctx context.Context)

	SupportsLyrics() bool
	DisplayName() string
	Source() Source

	CurrentTrack() observe.Observable[*Track]
	Position() observe.Observable[time.Duration]
	IsPlaying() observe.Observable[bool]
	IsConnected() observe.Observable[bool]
}

// TogglePlayback pauses p if it is playing and plays it otherwise.
func TogglePlayback(ctx context.Context, p Provider) {
	if p.IsPlaying().Get() {
		p.Pause(ctx)
		return
	}
	p.Play(ctx)
}

// Snapshot reads the current value of every observable on p.
func Snapshot(p Provider) PlaybackState {
	return PlaybackState{
		Track:       p.CurrentTrack().Get(),
		Position:    p.Position().Get(),
		IsPlaying:   p.IsPlaying().Get(),
		IsConnected: p.IsConnected().Get(),
	}
}
