package core

import "time"

// PlaybackState is a snapshot of one provider, or of the merged view.
// Position may briefly exceed Track.Duration during track transitions.
type PlaybackState struct {
	Track       *Track        `json:"track"`
	Position    time.Duration `json:"position"`
	IsPlaying   bool          `json:"is_playing"`
	IsConnected bool          `json:"is_connected"`
}

// HasTrack returns true if there is an active track.
func (s PlaybackState) HasTrack() bool {
	return s.Track != nil
}

// Progress returns playback progress in the range 0..1.
func (s PlaybackState) Progress() float64 {
	if s.Track == nil || s.Track.Duration <= 0 {
		return 0
	}
	p := float64(s.Position) / float64(s.Track.Duration)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Equal reports whether two states are identical, comparing tracks by value.
func (s PlaybackState) Equal(o PlaybackState) bool {
	return EqualTrack(s.Track, o.Track) &&
		s.Position == o.Position &&
		s.IsPlaying == o.IsPlaying &&
		s.IsConnected == o.IsConnected
}
