package httpapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tianshand/internal/eventbus"
	"tianshand/pkg/types"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingPeriod   = 30 * time.Second
	// wsSendBuffer bounds the per-client frame backlog. A client that falls
	// further behind has frames dropped rather than stalling dispatch.
	wsSendBuffer = 64
)

// WSHub fans bus events out to websocket clients. It subscribes a wildcard
// handler on the bus; the handler only does a non-blocking channel send per
// client, so a slow client can never stall the dispatch goroutine.
type WSHub struct {
	log      zerolog.Logger
	bus      *eventbus.Bus
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool

	handle eventbus.Handle
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWSHub registers the hub's wildcard handler on the bus.
func NewWSHub(bus *eventbus.Bus, log zerolog.Logger) (*WSHub, error) {
	h := &WSHub{
		log:     log,
		bus:     bus,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	handle, err := bus.Register(eventbus.AnyBase, eventbus.AnyID, h.onEvent)
	if err != nil {
		return nil, err
	}
	h.handle = handle
	return h, nil
}

// Close unsubscribes from the bus and disconnects every client.
func (h *WSHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = map[*wsClient]struct{}{}
	h.mu.Unlock()

	_ = h.bus.Unregister(h.handle)
	for _, c := range clients {
		close(c.send)
	}
}

// onEvent runs on the bus dispatch goroutine. It must not block.
func (h *WSHub) onEvent(ev eventbus.Event) {
	msg := types.EventMessage{
		Base:      ev.Base,
		ID:        ev.ID,
		Priority:  ev.Priority.String(),
		Timestamp: ev.Timestamp.UnixNano(),
	}
	if len(ev.Payload) > 0 {
		if json.Valid(ev.Payload) {
			msg.Payload = json.RawMessage(ev.Payload)
		} else {
			// non-JSON payloads ride as a base64 string
			b, err := json.Marshal(ev.Payload)
			if err == nil {
				msg.Payload = b
			}
		}
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			wsDroppedTotal.Inc()
		}
	}
}

// ServeWS upgrades the connection and streams events until the client goes
// away.
func (h *WSHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	wsClientsGauge.Set(float64(n))

	h.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("event stream client connected")
	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound frames and detects disconnects.
func (h *WSHub) readPump(c *wsClient) {
	defer h.drop(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump serializes all writes on one goroutine, as the websocket
// package requires.
func (h *WSHub) writePump(c *wsClient) {
	ping := time.NewTicker(wsPingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(wsWriteTimeout))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *WSHub) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	wsClientsGauge.Set(float64(n))
	c.conn.Close()
	h.log.Debug().Msg("event stream client disconnected")
}
