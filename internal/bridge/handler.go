package bridge

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Handler upgrades renderer connections and attaches them to a Channel.
// Each new connection replaces the previous one.
type Handler struct {
	channel  *Channel
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler for ch.
func NewHandler(ch *Channel, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		channel: ch,
		logger:  logger.WithPrefix("bridge"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	t := &wsTransport{
		conn: conn,
		send: make(chan string, sendBuffer),
		done: make(chan struct{}),
	}
	h.channel.SetTransport(t)
	h.logger.Debug("renderer connected", "remote", r.RemoteAddr)

	go t.writePump()
	t.readPump(h.channel, h.logger)

	h.channel.DetachTransport(t)
	h.logger.Debug("renderer disconnected", "remote", r.RemoteAddr)
}

type wsTransport struct {
	conn *websocket.Conn
	send chan string
	done chan struct{}
}

func (t *wsTransport) Send(script string) bool {
	select {
	case <-t.done:
		return false
	default:
	}
	select {
	case t.send <- script:
		return true
	default:
		return false
	}
}

func (t *wsTransport) readPump(ch *Channel, logger *log.Logger) {
	defer func() {
		close(t.done)
		t.conn.Close()
	}()

	t.conn.SetReadLimit(maxMessageSize)
	t.conn.SetReadDeadline(time.Now().Add(pongWait))
	t.conn.SetPongHandler(func(string) error {
		t.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", "err", err)
			}
			return
		}
		ch.Receive(message)
	}
}

func (t *wsTransport) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.conn.Close()
	}()

	for {
		select {
		case script := <-t.send:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, []byte(script)); err != nil {
				return
			}
		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-t.done:
			return
		}
	}
}
