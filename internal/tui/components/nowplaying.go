package components

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/tessro/verse/internal/coordinator"
	"github.com/tessro/verse/internal/core"
	"github.com/tessro/verse/internal/tui/styles"
)

// NowPlaying displays the merged playback state.
type NowPlaying struct{}

// NewNowPlaying creates a new NowPlaying component.
func NewNowPlaying() *NowPlaying {
	return &NowPlaying{}
}

// Source describes the selected source for display.
type Source struct {
	ID        core.Source
	Name      string
	Connected bool
}

// Render renders the now playing panel.
func (n *NowPlaying) Render(state core.PlaybackState, src Source, art coordinator.Artwork, width int) string {
	title := styles.PanelTitle("Now Playing", true)

	var content string
	switch {
	case !state.IsConnected:
		content = styles.Muted.Render(src.Name + " is not connected. Press c to connect.")
	case state.Track == nil:
		content = styles.Muted.Render("Nothing playing")
	default:
		content = n.renderTrack(state, width-4)
	}

	source := styles.SourceBadge(src.ID, src.Name)
	footer := lipgloss.JoinHorizontal(lipgloss.Top,
		styles.Dim.Render("source "), source,
		styles.Dim.Render("  ·  "), styles.Dim.Render(ArtworkStatus(art, state.Track)),
	)

	return styles.Panel(true).
		Width(width).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			title,
			"",
			content,
			"",
			footer,
		))
}

func (n *NowPlaying) renderTrack(state core.PlaybackState, width int) string {
	track := state.Track

	icon := styles.StatusIcon(state.IsPlaying)
	title := styles.Title.Width(max(width-4, 1)).Render(track.Title)

	artist := styles.Subtitle.Render(track.Artist)
	album := styles.Dim.Render(track.Album)

	// Leave room for the times on either side.
	barWidth := max(width-14, 10)
	progress := fmt.Sprintf("%s %s %s",
		FormatDuration(state.Position),
		styles.ProgressBar(state.Progress(), barWidth),
		FormatDuration(track.Duration),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		icon+" "+title,
		"  "+artist,
		"  "+album,
		"",
		progress,
	)
}

// ArtworkStatus summarizes the artwork for the current track.
func ArtworkStatus(art coordinator.Artwork, track *core.Track) string {
	switch {
	case track == nil:
		return "no artwork"
	case art.Loading:
		return "artwork loading"
	case len(art.Image) > 0:
		return "artwork " + humanize.Bytes(uint64(len(art.Image)))
	default:
		return "no artwork"
	}
}

// FormatDuration renders d as m:ss.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}
