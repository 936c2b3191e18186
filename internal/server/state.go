package server

import (
	"github.com/tessro/verse/internal/coordinator"
	"github.com/tessro/verse/internal/core"
)

// TrackResponse is a track as served by the API. Durations are milliseconds.
type TrackResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	ArtworkURL string `json:"artwork_url,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	ISRC       string `json:"isrc,omitempty"`
}

// StateResponse is the body of GET /api/state.
type StateResponse struct {
	Source         string         `json:"source"`
	Track          *TrackResponse `json:"track"`
	PositionMs     int64          `json:"position_ms"`
	Progress       float64        `json:"progress"`
	IsPlaying      bool           `json:"is_playing"`
	IsConnected    bool           `json:"is_connected"`
	HasArtwork     bool           `json:"has_artwork"`
	ArtworkLoading bool           `json:"artwork_loading"`
}

// NewStateResponse builds the API view of the merged state.
func NewStateResponse(src core.Source, st core.PlaybackState, art coordinator.Artwork) StateResponse {
	resp := StateResponse{
		Source:         string(src),
		PositionMs:     st.Position.Milliseconds(),
		Progress:       st.Progress(),
		IsPlaying:      st.IsPlaying,
		IsConnected:    st.IsConnected,
		HasArtwork:     len(art.Image) > 0,
		ArtworkLoading: art.Loading,
	}
	if t := st.Track; t != nil {
		resp.Track = &TrackResponse{
			ID:         t.ID,
			Title:      t.Title,
			Artist:     t.Artist,
			Album:      t.Album,
			ArtworkURL: t.ArtworkURL,
			DurationMs: t.Duration.Milliseconds(),
			ISRC:       t.ISRC,
		}
	}
	return resp
}
