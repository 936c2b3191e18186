// Package mpv drives an mpv process over its JSON IPC socket and exposes it
// as a local media backend.
package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned for commands issued on a closed connection.
var ErrClosed = errors.New("mpv connection closed")

// Command is a request frame.
type Command struct {
	Command   []any `json:"command"`
	RequestID int64 `json:"request_id,omitempty"`
}

// Message is any frame mpv sends: a command reply or an event.
type Message struct {
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
	RequestID int64           `json:"request_id"`
	Event     string          `json:"event"`
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
}

// Conn is a multiplexed IPC connection. Replies are matched to requests by
// request_id; events go to the handler given to Dial.
type Conn struct {
	conn    net.Conn
	enc     *json.Encoder
	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan Message
	closed  bool
	done    chan struct{}
}

// Dial connects to the socket at path. onEvent runs on the read goroutine.
func Dial(ctx context.Context, path string, onEvent func(Message)) (*Conn, error) {
	var d net.Dialer
	nc, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("could not connect to mpv socket: %w", err)
	}

	c := &Conn{
		conn:    nc,
		enc:     json.NewEncoder(nc),
		pending: make(map[int64]chan Message),
		done:    make(chan struct{}),
	}
	go c.readLoop(onEvent)
	return c, nil
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) readLoop(onEvent func(Message)) {
	defer c.shutdown()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			continue
		}

		if msg.Event != "" {
			if onEvent != nil {
				onEvent(msg)
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.RequestID]
		delete(c.pending, msg.RequestID)
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	close(c.done)
	_ = c.conn.Close()
}

// Close closes the connection and fails pending commands.
func (c *Conn) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

// Call sends a command and waits for its reply.
func (c *Conn) Call(ctx context.Context, args ...any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.enc.Encode(Command{Command: args, RequestID: id})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("error sending mpv command: %w", err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if msg.Error != "success" {
			return nil, fmt.Errorf("mpv %v: %s", args[0], msg.Error)
		}
		return msg.Data, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Conn) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
