package tail

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/tessro/verse/internal/server"
)

// Formatter formats events for output.
type Formatter struct {
	showEmoji     bool
	showTimestamp bool
	template      *template.Template
}

// FormatterOption configures a Formatter.
type FormatterOption func(*Formatter)

// WithEmoji enables emoji output.
func WithEmoji(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showEmoji = enabled
	}
}

// WithTimestamp enables timestamp output.
func WithTimestamp(enabled bool) FormatterOption {
	return func(f *Formatter) {
		f.showTimestamp = enabled
	}
}

// WithTemplate sets a custom format template. An invalid template is
// reported by ParseTemplate; here it is ignored.
func WithTemplate(tmpl string) FormatterOption {
	return func(f *Formatter) {
		if t, err := ParseTemplate(tmpl); err == nil {
			f.template = t
		}
	}
}

// ParseTemplate parses a custom format. An empty string yields nil.
func ParseTemplate(tmpl string) (*template.Template, error) {
	if tmpl == "" {
		return nil, nil
	}
	return template.New("format").Parse(tmpl)
}

// NewFormatter creates a new formatter with the given options.
func NewFormatter(opts ...FormatterOption) *Formatter {
	f := &Formatter{
		showEmoji: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format formats an event as a string.
func (f *Formatter) Format(e Event) string {
	if f.template != nil {
		return f.formatTemplate(e)
	}
	return f.formatLine(e)
}

func (f *Formatter) formatLine(e Event) string {
	var parts []string

	if f.showTimestamp {
		parts = append(parts, e.Timestamp.Format("15:04:05"))
	}
	if f.showEmoji {
		parts = append(parts, eventEmoji(e.Type))
	}
	parts = append(parts, f.eventDescription(e))

	return strings.Join(parts, " ")
}

func (f *Formatter) formatTemplate(e Event) string {
	data := templateData{
		Type:      eventTypeName(e.Type),
		Emoji:     eventEmoji(e.Type),
		Timestamp: e.Timestamp,
		Time:      e.Timestamp.Format("15:04:05"),
	}

	if e.Current != nil {
		data.Source = e.Current.Source
		data.Position = clock(e.Current.PositionMs)
		if t := e.Current.Track; t != nil {
			data.Title = t.Title
			data.Artist = t.Artist
			data.Album = t.Album
			data.Duration = clock(t.DurationMs)
		}
	}

	var buf bytes.Buffer
	if err := f.template.Execute(&buf, data); err != nil {
		return f.formatLine(e)
	}
	return buf.String()
}

type templateData struct {
	Type      string
	Emoji     string
	Timestamp time.Time
	Time      string
	Title     string
	Artist    string
	Album     string
	Source    string
	Position  string
	Duration  string
}

// eventKinds maps each event type to its template name, emoji and
// fallback description.
var eventKinds = map[EventType]struct {
	name, emoji, fallback string
}{
	EventTrackChange:   {"track_change", "🎵", "Track changed"},
	EventTrackComplete: {"track_complete", "✅", "Track completed"},
	EventTrackSkip:     {"track_skip", "⏭️", "Track skipped"},
	EventPause:         {"pause", "⏸️", "Paused"},
	EventResume:        {"resume", "▶️", "Resumed"},
	EventSourceChange:  {"source_change", "🔀", "Source changed"},
	EventConnect:       {"connect", "🔌", "Connected"},
	EventDisconnect:    {"disconnect", "⛔", "Disconnected"},
}

func (f *Formatter) eventDescription(e Event) string {
	kind, ok := eventKinds[e.Type]
	if !ok {
		return "Unknown event"
	}

	switch e.Type {
	case EventTrackChange:
		if label, ok := trackLabel(e.Current); ok {
			return "Now playing: " + label
		}
	case EventTrackComplete:
		if label, ok := trackLabel(e.Previous); ok {
			return "Finished: " + label
		}
	case EventTrackSkip:
		if label, ok := trackLabel(e.Previous); ok {
			return "Skipped: " + label
		}
	case EventSourceChange:
		if e.Current != nil {
			return "Source: " + e.Current.Source
		}
	case EventConnect, EventDisconnect:
		if e.Current != nil {
			return kind.fallback + ": " + e.Current.Source
		}
	}
	return kind.fallback
}

// trackLabel renders "Artist - Title" for the state's track.
func trackLabel(st *server.StateResponse) (string, bool) {
	if st == nil || st.Track == nil {
		return "", false
	}
	return fmt.Sprintf("%s - %s", st.Track.Artist, st.Track.Title), true
}

func eventEmoji(t EventType) string {
	if kind, ok := eventKinds[t]; ok {
		return kind.emoji
	}
	return "❓"
}

func eventTypeName(t EventType) string {
	if kind, ok := eventKinds[t]; ok {
		return kind.name
	}
	return "unknown"
}

// clock renders milliseconds as m:ss.
func clock(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
