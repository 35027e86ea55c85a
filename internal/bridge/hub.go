package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/TechinMama/RecipeForADisaster/internal/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMsgSize = 4 * 1024
	wsSendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

// client is one connected application window.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Hub is the websocket control channel. Each client may send control
// messages; replies go back on the same connection and bus events are
// broadcast to every client.
type Hub struct {
	bridge  *Bridge
	log     logger.Logger
	mu      sync.RWMutex
	clients map[string]*client
	wg      sync.WaitGroup
}

// NewHub creates a hub and subscribes it to bus.
func NewHub(b *Bridge, bus *EventBus, log logger.Logger) *Hub {
	if log == nil {
		log = logger.Discard()
	}
	h := &Hub{
		bridge:  b,
		log:     log.Module("hub"),
		clients: make(map[string]*client),
	}
	if bus != nil {
		bus.Subscribe(h.onEvent)
	}
	return h
}

func (h *Hub) onEvent(event *Event) {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		h.log.Error("encoding event failed", logger.String("type", event.Type), logger.Error(err))
		return
	}
	h.Broadcast(data)
}

// Broadcast queues data for every client. Slow clients whose buffer is full
// miss the message.
func (h *Hub) Broadcast(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("client send buffer full, dropping message", logger.String("client", c.id))
		}
	}
}

// ClientCount is the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logger.Error(err))
		return nil
	}

	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[cl.id] = cl
	h.mu.Unlock()
	h.log.Debug("client connected", logger.String("client", cl.id))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writeLoop(cl)
	}()

	h.readLoop(c.Request().Context(), cl)

	h.mu.Lock()
	delete(h.clients, cl.id)
	h.mu.Unlock()
	cl.close()
	h.log.Debug("client disconnected", logger.String("client", cl.id))
	return nil
}

// writeLoop is the only writer on the connection.
func (h *Hub) writeLoop(cl *client) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				cl.close()
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cl.close()
				return
			}
		case <-cl.done:
			return
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, cl *client) {
	cl.conn.SetReadLimit(wsMaxMsgSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		msgType, data, err := cl.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.dispatch(ctx, cl, data)
	}
}

// dispatch handles one control message and writes any reply back to the sender.
func (h *Hub) dispatch(ctx context.Context, cl *client, data []byte) {
	msg, err := DecodeMessage(data)
	if err != nil {
		h.reply(cl, map[string]string{"type": TypeError, "error": err.Error()})
		return
	}
	if msg == nil {
		return
	}

	reply, err := h.bridge.Handle(ctx, msg)
	if err != nil {
		h.reply(cl, map[string]string{"type": TypeError, "request": TypeOf(msg), "error": err.Error()})
		return
	}
	if reply != nil {
		h.reply(cl, struct {
			Type string `json:"type"`
			StatusReply
		}{TypeStatusReply, *reply})
	}
}

func (h *Hub) reply(cl *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case cl.send <- data:
	case <-cl.done:
	}
}

// Close disconnects every client and waits for their writers to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, cl := range h.clients {
		_ = cl.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "gateway shutting down"),
			time.Now().Add(time.Second))
		cl.close()
		delete(h.clients, id)
	}
	h.mu.Unlock()
	h.wg.Wait()
}
