// Package bridge carries messages between verse and the lyrics renderer page.
//
// Outbound messages are small JavaScript calls evaluated by the page.
// Inbound messages are JSON objects tagged by "type".
package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tessro/verse/internal/core"
)

// Inbound message types.
const (
	TypeReady       = "ready"
	TypeSeekRequest = "seekRequest"
)

// Transport delivers scripts to a loaded renderer. Send must not block.
type Transport interface {
	Send(script string) bool
}

// SeekListener receives renderer seek requests in milliseconds.
type SeekListener func(ms float64)

type inbound struct {
	Type      string   `json:"type"`
	Timestamp *float64 `json:"timestamp"`
	TimeMs    *float64 `json:"timeMs"`
}

// Channel tracks renderer readiness and drops outbound calls until the page
// reports ready.
type Channel struct {
	logger *log.Logger

	mu        sync.Mutex
	transport Transport
	ready     bool
	onSeek    SeekListener
	onReady   func()
}

// NewChannel creates a channel with no transport attached.
func NewChannel(logger *log.Logger) *Channel {
	if logger == nil {
		logger = log.Default()
	}
	return &Channel{logger: logger.WithPrefix("bridge")}
}

// SetTransport attaches a freshly loaded renderer. Readiness resets until the
// new page signals ready.
func (c *Channel) SetTransport(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transport = t
	c.ready = false
}

// DetachTransport removes t if it is still the attached transport.
func (c *Channel) DetachTransport(t Transport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == t {
		c.transport = nil
		c.ready = false
	}
}

// OnSeekRequest registers the seek listener.
func (c *Channel) OnSeekRequest(fn SeekListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSeek = fn
}

// OnReady registers fn to run each time a loaded renderer signals ready.
// Calls made before that were dropped, so fn typically re-sends the
// current track.
func (c *Channel) OnReady(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReady = fn
}

// Ready reports whether the renderer has signalled readiness.
func (c *Channel) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Receive handles one inbound message. Malformed and unknown messages are
// ignored.
func (c *Channel) Receive(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("ignoring malformed message", "err", err)
		return
	}

	switch msg.Type {
	case TypeReady:
		c.mu.Lock()
		first := !c.ready
		c.ready = true
		fn := c.onReady
		c.mu.Unlock()
		c.logger.Debug("renderer ready")
		if first && fn != nil {
			fn()
		}

	case TypeSeekRequest:
		ts := msg.Timestamp
		if ts == nil {
			ts = msg.TimeMs
		}
		if ts == nil {
			return
		}
		c.mu.Lock()
		fn := c.onSeek
		c.mu.Unlock()
		if fn != nil {
			fn(*ts)
		}

	default:
		c.logger.Debug("ignoring message", "type", msg.Type)
	}
}

// SetTrack sends track metadata to the renderer.
func (c *Channel) SetTrack(t core.Track) {
	isrc := "null"
	if t.ISRC != "" {
		isrc = quote(t.ISRC)
	}
	c.send(fmt.Sprintf("setTrack(%s,%s,%s,%d,%s,%s)",
		quote(t.Title),
		quote(t.Artist),
		quote(t.Album),
		t.Duration.Milliseconds(),
		quote(t.ID),
		isrc,
	))
}

// SetPosition sends the playback position to the renderer.
func (c *Channel) SetPosition(d time.Duration) {
	c.send(fmt.Sprintf("setPositionMs(%d)", d.Milliseconds()))
}

// Clear resets the renderer.
func (c *Channel) Clear() {
	c.send("clear()")
}

func (c *Channel) send(script string) {
	c.mu.Lock()
	t, ready := c.transport, c.ready
	c.mu.Unlock()

	if !ready || t == nil {
		return
	}
	if !t.Send(script) {
		c.logger.Debug("renderer buffer full, dropped message")
	}
}

var escaper = []struct{ old, new string }{
	{`\`, `\\`},
	{`'`, `\'`},
	{`"`, `\"`},
	{"\n", `\n`},
	{"\r", `\r`},
}

// Escape makes s safe to embed in a quoted script string literal.
// Backslashes are escaped first so later replacements are not doubled.
func Escape(s string) string {
	for _, r := range escaper {
		s = strings.ReplaceAll(s, r.old, r.new)
	}
	return s
}

func quote(s string) string {
	return "'" + Escape(s) + "'"
}
