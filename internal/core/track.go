package core

import "time"

// Source identifies which provider a track came from.
type Source string

const (
	SourceLocal   Source = "local"
	SourceSpotify Source = "spotify"
)

// ParseSource converts a user-supplied name to a Source.
func ParseSource(s string) (Source, bool) {
	switch Source(s) {
	case SourceLocal, SourceSpotify:
		return Source(s), true
	}
	return "", false
}

// Track is an immutable description of a playable item. A metadata change
// produces a new Track rather than mutating an existing one.
type Track struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Artist     string        `json:"artist"`
	Album      string        `json:"album"`
	ArtworkURL string        `json:"artwork_url,omitempty"`
	Duration   time.Duration `json:"duration"`
	ISRC       string        `json:"isrc,omitempty"`
	Source     Source        `json:"source"`
}

// SameTrack reports whether a and b refer to the same track by ID.
// Two nil tracks are the same; a nil and non-nil track are not.
func SameTrack(a, b *Track) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}

// EqualTrack reports whether a and b are structurally identical.
func EqualTrack(a, b *Track) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
