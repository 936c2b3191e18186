// Package local implements the provider for on-device media playback.
//
// The provider is event-driven: the backend notifies it when the item or
// the playback status changes, and a fixed-rate sampler reads the position
// while playing.
package local

import (
	"context"
	"time"
)

// Authorization is the user's consent to read and control local media.
type Authorization int

const (
	NotDetermined Authorization = iota
	Denied
	Authorized
)

func (a Authorization) String() string {
	switch a {
	case NotDetermined:
		return "not determined"
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	default:
		return "unknown"
	}
}

// ItemKind classifies the backend's now-playing entry.
type ItemKind int

const (
	KindSong ItemKind = iota
	KindVideo
	KindOther
)

// Item is the backend's now-playing entry.
type Item struct {
	ID         string
	Title      string
	Artist     string
	Album      string
	ArtworkURL string
	ISRC       string
	Duration   time.Duration
	Kind       ItemKind
}

// Status is the backend's playback status.
type Status int

const (
	StatusStopped Status = iota
	StatusPlaying
	StatusPaused
	StatusInterrupted
	StatusSeeking
)

// Event is a backend notification.
type Event int

const (
	EventItemChanged Event = iota
	EventStatusChanged
)

// Backend is a local media subsystem.
type Backend interface {
	Authorization() Authorization
	// RequestAuthorization shows the consent prompt and returns the result.
	RequestAuthorization(ctx context.Context) (Authorization, error)

	// BeginNotifications starts event delivery. The channel is closed by
	// EndNotifications or when the backend goes away.
	BeginNotifications(ctx context.Context) (<-chan Event, error)
	EndNotifications()

	// NowPlaying returns the current item, or nil when nothing is queued.
	NowPlaying() *Item
	Status() Status
	Position() time.Duration

	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, to time.Duration) error
	SkipNext(ctx context.Context) error
	SkipPrevious(ctx context.Context) error
}
