package tail

import (
	"context"
	"time"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/tessro/verse/internal/server"
)

// EventType represents the type of playback event.
type EventType int

const (
	EventTrackChange EventType = iota
	EventTrackComplete
	EventTrackSkip
	EventPause
	EventResume
	EventSourceChange
	EventConnect
	EventDisconnect
)

// CompletionThreshold is the progress at which a track that changes is
// counted as finished rather than skipped.
const CompletionThreshold = 0.95

// Event represents a playback state change.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Previous  *server.StateResponse
	Current   *server.StateResponse
}

// StateSource returns the current merged state. server.Client is one.
type StateSource interface {
	State(ctx context.Context) (*server.StateResponse, error)
}

// Watcher polls a running instance for state changes and emits events.
type Watcher struct {
	source   StateSource
	interval time.Duration
	events   chan Event
	done     chan struct{}
}

// NewWatcher creates a new state watcher.
func NewWatcher(source StateSource, interval time.Duration) *Watcher {
	if interval == 0 {
		interval = time.Second
	}
	return &Watcher{
		source:   source,
		interval: interval,
		events:   make(chan Event, 16),
		done:     make(chan struct{}),
	}
}

// Events returns the channel of playback events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins polling for state changes. The first successful poll emits
// a track change when something is playing.
func (w *Watcher) Start(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.events)

	var (
		prev     *server.StateResponse
		lastHash uint64
	)

	poll := func() {
		curr, err := w.source.State(ctx)
		if err != nil {
			return
		}
		hash, err := fingerprint(curr)
		if err != nil || prev == nil || hash != lastHash {
			for _, e := range diffStates(prev, curr) {
				select {
				case w.events <- e:
				default:
					// Drop event if channel is full
				}
			}
		}
		prev, lastHash = curr, hash
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.done:
			return nil
		case <-ticker.C:
			poll()
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.done)
}

// fingerprint hashes the parts of a state that produce events. Position
// is left out so that steady playback hashes the same on every poll.
func fingerprint(st *server.StateResponse) (uint64, error) {
	key := struct {
		Source      string
		TrackID     string
		IsPlaying   bool
		IsConnected bool
	}{
		Source:      st.Source,
		IsPlaying:   st.IsPlaying,
		IsConnected: st.IsConnected,
	}
	if st.Track != nil {
		key.TrackID = st.Track.ID
	}
	return hashstructure.Hash(key, hashstructure.FormatV2, nil)
}

// diffStates compares two states and returns detected events.
func diffStates(prev, curr *server.StateResponse) []Event {
	if curr == nil {
		return nil
	}

	now := time.Now()
	var events []Event
	add := func(t EventType) {
		events = append(events, Event{Type: t, Timestamp: now, Previous: prev, Current: curr})
	}

	// First poll - no previous state
	if prev == nil {
		if curr.Track != nil {
			add(EventTrackChange)
		}
		return events
	}

	if prev.Source != curr.Source {
		add(EventSourceChange)
	} else if prev.IsConnected != curr.IsConnected {
		if curr.IsConnected {
			add(EventConnect)
		} else {
			add(EventDisconnect)
		}
	}

	if trackChanged(prev, curr) {
		// A source switch replaces the track without finishing it.
		if prev.Track != nil && prev.Source == curr.Source {
			if wasCompleted(prev) {
				add(EventTrackComplete)
			} else {
				add(EventTrackSkip)
			}
		}
		if curr.Track != nil {
			add(EventTrackChange)
		}
	}

	if prev.IsPlaying && !curr.IsPlaying {
		add(EventPause)
	} else if !prev.IsPlaying && curr.IsPlaying {
		add(EventResume)
	}

	return events
}

// trackChanged returns true if the track changed.
func trackChanged(prev, curr *server.StateResponse) bool {
	if prev.Track == nil && curr.Track == nil {
		return false
	}
	if prev.Track == nil || curr.Track == nil {
		return true
	}
	return prev.Track.ID != curr.Track.ID
}

// wasCompleted returns true if the track likely completed naturally.
func wasCompleted(st *server.StateResponse) bool {
	if st.Track == nil || st.Track.DurationMs == 0 {
		return false
	}
	return st.Progress >= CompletionThreshold
}
