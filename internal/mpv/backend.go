package mpv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tessro/verse/internal/local"
)

// ConsentKey names the stored consent record.
const ConsentKey = "mpv"

// Stored consent values.
const (
	ConsentAuthorized = "authorized"
	ConsentDenied     = "denied"
)

// ErrNotConnected is returned for commands issued before BeginNotifications.
var ErrNotConnected = errors.New("mpv not connected")

// ConsentStore persists the user's answer to the consent prompt.
type ConsentStore interface {
	Consent(name string) (string, error)
	SetConsent(name, value string) error
}

// Prompter asks the user for consent.
type Prompter func(ctx context.Context) (bool, error)

// Config locates the mpv instance.
type Config struct {
	// Socket is the IPC socket path.
	Socket string
	// Binary, when set, is launched with the socket if nothing is listening.
	Binary string
}

var observed = []string{
	"pause",
	"idle-active",
	"metadata",
	"path",
	"duration",
	"time-pos",
	"current-tracks/video",
}

type videoTrack struct {
	AlbumArt bool `json:"albumart"`
}

// Backend is a local.Backend over mpv's IPC socket.
type Backend struct {
	cfg     Config
	consent ConsentStore
	prompt  Prompter
	logger  *log.Logger

	mu       sync.Mutex
	conn     *Conn
	notify   chan struct{}
	finished chan struct{}
	launched *Process

	// Pending notifications, coalesced until the pump delivers them.
	pendingItem   bool
	pendingStatus bool

	paused   bool
	idle     bool
	path     string
	metadata map[string]string
	duration time.Duration
	position time.Duration
	video    bool
}

// New creates a backend. prompt may be nil, in which case consent is denied
// unless already stored.
func New(cfg Config, consent ConsentStore, prompt Prompter, logger *log.Logger) *Backend {
	if logger == nil {
		logger = log.Default()
	}
	return &Backend{
		cfg:     cfg,
		consent: consent,
		prompt:  prompt,
		logger:  logger.WithPrefix("mpv"),
		idle:    true,
	}
}

func (b *Backend) Authorization() local.Authorization {
	if b.consent == nil {
		return local.NotDetermined
	}
	v, err := b.consent.Consent(ConsentKey)
	if err != nil {
		b.logger.Warn("failed to read consent", "err", err)
		return local.NotDetermined
	}
	switch v {
	case ConsentAuthorized:
		return local.Authorized
	case ConsentDenied:
		return local.Denied
	default:
		return local.NotDetermined
	}
}

func (b *Backend) RequestAuthorization(ctx context.Context) (local.Authorization, error) {
	if b.prompt == nil {
		return local.NotDetermined, nil
	}
	ok, err := b.prompt(ctx)
	if err != nil {
		return local.NotDetermined, err
	}

	value, result := ConsentDenied, local.Denied
	if ok {
		value, result = ConsentAuthorized, local.Authorized
	}
	if b.consent != nil {
		if err := b.consent.SetConsent(ConsentKey, value); err != nil {
			b.logger.Warn("failed to save consent", "err", err)
		}
	}
	return result, nil
}

func (b *Backend) BeginNotifications(ctx context.Context) (<-chan local.Event, error) {
	b.mu.Lock()
	if b.conn != nil {
		b.mu.Unlock()
		return nil, errors.New("mpv notifications already started")
	}
	b.mu.Unlock()

	conn, err := Dial(ctx, b.cfg.Socket, b.onEvent)
	if err != nil && b.cfg.Binary != "" {
		b.logger.Debug("launching mpv", "binary", b.cfg.Binary, "socket", b.cfg.Socket)
		proc, lerr := Launch(ctx, b.cfg.Binary, b.cfg.Socket)
		if lerr != nil {
			return nil, lerr
		}
		b.mu.Lock()
		b.launched = proc
		b.mu.Unlock()
		conn, err = Dial(ctx, b.cfg.Socket, b.onEvent)
	}
	if err != nil {
		return nil, err
	}

	events := make(chan local.Event)
	notify := make(chan struct{}, 1)
	finished := make(chan struct{})

	b.mu.Lock()
	b.conn = conn
	b.notify = notify
	b.finished = finished
	b.mu.Unlock()

	go b.pump(conn, notify, events, finished)

	for i, name := range observed {
		if _, err := conn.Call(ctx, "observe_property", i+1, name); err != nil {
			b.EndNotifications()
			return nil, fmt.Errorf("could not observe %s: %w", name, err)
		}
	}

	return events, nil
}

func (b *Backend) EndNotifications() {
	b.mu.Lock()
	conn, finished := b.conn, b.finished
	b.conn, b.notify, b.finished = nil, nil, nil
	b.mu.Unlock()

	if conn == nil {
		return
	}
	_ = conn.Close()
	<-finished
}

// Close ends notifications and stops an mpv process this backend launched.
func (b *Backend) Close() error {
	b.EndNotifications()

	b.mu.Lock()
	proc := b.launched
	b.launched = nil
	b.mu.Unlock()

	if proc != nil {
		return proc.Stop()
	}
	return nil
}

// pump delivers coalesced notifications until the connection ends. mpv
// reports every observed property right after observe_property is
// acknowledged, so the read loop must never wait on the consumer.
func (b *Backend) pump(conn *Conn, notify <-chan struct{}, events chan<- local.Event, finished chan struct{}) {
	defer func() {
		b.mu.Lock()
		if b.conn == conn {
			b.conn, b.notify, b.finished = nil, nil, nil
		}
		b.pendingItem, b.pendingStatus = false, false
		b.mu.Unlock()
		close(events)
		close(finished)
	}()

	for {
		select {
		case <-conn.Done():
			return
		case <-notify:
		}

		// An item change also re-reads the status, so it covers both.
		b.mu.Lock()
		var ev local.Event
		switch {
		case b.pendingItem:
			ev = local.EventItemChanged
		case b.pendingStatus:
			ev = local.EventStatusChanged
		default:
			b.mu.Unlock()
			continue
		}
		b.pendingItem, b.pendingStatus = false, false
		b.mu.Unlock()

		select {
		case events <- ev:
		case <-conn.Done():
			return
		}
	}
}

func (b *Backend) onEvent(msg Message) {
	if msg.Event != "property-change" {
		return
	}

	var emit []local.Event

	b.mu.Lock()
	switch msg.Name {
	case "pause":
		var v bool
		_ = json.Unmarshal(msg.Data, &v)
		if v != b.paused {
			b.paused = v
			emit = append(emit, local.EventStatusChanged)
		}
	case "idle-active":
		var v bool
		_ = json.Unmarshal(msg.Data, &v)
		if v != b.idle {
			b.idle = v
			emit = append(emit, local.EventStatusChanged, local.EventItemChanged)
		}
	case "path":
		var v string
		_ = json.Unmarshal(msg.Data, &v)
		if v != b.path {
			b.path = v
			b.position = 0
			emit = append(emit, local.EventItemChanged)
		}
	case "metadata":
		b.metadata = parseMetadata(msg.Data)
		emit = append(emit, local.EventItemChanged)
	case "duration":
		var v float64
		_ = json.Unmarshal(msg.Data, &v)
		b.duration = seconds(v)
		emit = append(emit, local.EventItemChanged)
	case "current-tracks/video":
		var vt *videoTrack
		_ = json.Unmarshal(msg.Data, &vt)
		video := vt != nil && !vt.AlbumArt
		if video != b.video {
			b.video = video
			emit = append(emit, local.EventItemChanged)
		}
	case "time-pos":
		var v float64
		_ = json.Unmarshal(msg.Data, &v)
		b.position = seconds(v)
	}
	for _, ev := range emit {
		switch ev {
		case local.EventItemChanged:
			b.pendingItem = true
		case local.EventStatusChanged:
			b.pendingStatus = true
		}
	}
	notify := b.notify
	b.mu.Unlock()

	if notify == nil || len(emit) == 0 {
		return
	}
	select {
	case notify <- struct{}{}:
	default:
	}
}

func (b *Backend) NowPlaying() *local.Item {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.idle || b.path == "" {
		return nil
	}

	item := &local.Item{
		ID:       b.path,
		Title:    b.metadata["title"],
		Artist:   b.metadata["artist"],
		Album:    b.metadata["album"],
		ISRC:     b.metadata["isrc"],
		Duration: b.duration,
		Kind:     local.KindSong,
	}
	if item.Title == "" {
		item.Title = strings.TrimSuffix(filepath.Base(b.path), filepath.Ext(b.path))
	}
	if b.video {
		item.Kind = local.KindVideo
	}
	return item
}

func (b *Backend) Status() local.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.idle:
		return local.StatusStopped
	case b.paused:
		return local.StatusPaused
	default:
		return local.StatusPlaying
	}
}

func (b *Backend) Position() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

func (b *Backend) Play(ctx context.Context) error {
	return b.call(ctx, "set_property", "pause", false)
}

func (b *Backend) Pause(ctx context.Context) error {
	return b.call(ctx, "set_property", "pause", true)
}

func (b *Backend) Seek(ctx context.Context, to time.Duration) error {
	return b.call(ctx, "seek", to.Seconds(), "absolute")
}

func (b *Backend) SkipNext(ctx context.Context) error {
	return b.call(ctx, "playlist-next")
}

func (b *Backend) SkipPrevious(ctx context.Context) error {
	return b.call(ctx, "playlist-prev")
}

func (b *Backend) call(ctx context.Context, args ...any) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	_, err := conn.Call(ctx, args...)
	return err
}

// parseMetadata lowercases tag names; container formats disagree on case.
func parseMetadata(data json.RawMessage) map[string]string {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	md := make(map[string]string, len(raw))
	for k, v := range raw {
		md[strings.ToLower(k)] = v
	}
	return md
}

func seconds(s float64) time.Duration {
	if s < 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
